package main

import (
	"fmt"
	"strings"

	"github.com/cuemby/heartbeat/pkg/control"
	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/spf13/cobra"
)

var sendCmd = &cobra.Command{
	Use:   "send TITLE MESSAGE",
	Short: "Send an event to the local daemon",
	Long: `Send an event to a running daemon through its control socket.

Examples:
  # Report a warning
  heartbeat send --type WARNING "Backup" "nightly backup failed"

  # Send the same event every time, bypassing repeat suppression
  heartbeat send --one-time "Deploy" "web rolled out"`,
	Args: cobra.ExactArgs(2),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringP("type", "t", string(events.TopicInfo), "Event type")
	sendCmd.Flags().String("host", "", "Origin host (defaults to localhost)")
	sendCmd.Flags().String("socket", "", "Control socket path (defaults to the config value)")
	sendCmd.Flags().Bool("one-time", false, "Exempt the event from repeat suppression")
	sendCmd.Flags().StringToString("payload", nil, "Payload entries as key=value")

	rootCmd.AddCommand(sendCmd)
}

func runSend(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	topic, _ := cmd.Flags().GetString("type")
	host, _ := cmd.Flags().GetString("host")
	socket, _ := cmd.Flags().GetString("socket")
	oneTime, _ := cmd.Flags().GetBool("one-time")
	payload, _ := cmd.Flags().GetStringToString("payload")

	if socket == "" {
		socket = cfg.Control.Socket
	}

	opts := []events.Option{events.WithType(events.Topic(strings.ToUpper(topic)))}
	if host != "" {
		opts = append(opts, events.WithHost(host))
	}
	if oneTime {
		opts = append(opts, events.OneTime())
	}
	for k, v := range payload {
		opts = append(opts, events.WithPayload(k, v))
	}

	e, err := events.New(args[0], args[1], opts...)
	if err != nil {
		return err
	}

	if err := control.Send(socket, e); err != nil {
		return err
	}

	fmt.Printf("✓ Event %s sent\n", e.ID)
	return nil
}
