package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cuemby/heartbeat/pkg/config"
	"github.com/cuemby/heartbeat/pkg/daemon"
	"github.com/cuemby/heartbeat/pkg/log"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "heartbeat",
	Short: "Heartbeat - peer presence and event distribution",
	Long: `Heartbeat announces this node on the local network, tracks which
peers are alive, and routes events between plugins and peers.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Heartbeat version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (.yaml, .yml or .toml)")

	runCmd.Flags().String("log-level", "info", "Log level (debug, info, warn, error)")
	runCmd.Flags().Bool("log-json", false, "Write logs as JSON")
	runCmd.Flags().String("http-addr", "", "Address for metrics, health and the live event feed (empty disables)")
	runCmd.Flags().String("identity", "", "Override the discovered node identity")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads --config, or the defaults when it is not set
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the heartbeat daemon",
	Long: `Run the heartbeat daemon in the foreground until interrupted.

Flags override the matching config file values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("log-json") {
			cfg.Log.JSON, _ = cmd.Flags().GetBool("log-json")
		}
		if cmd.Flags().Changed("http-addr") {
			cfg.HTTP.Addr, _ = cmd.Flags().GetString("http-addr")
		}
		if cmd.Flags().Changed("identity") {
			cfg.Identity, _ = cmd.Flags().GetString("identity")
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		metrics.SetVersion(Version)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return daemon.Run(ctx, cfg)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("Heartbeat version %s\nCommit: %s\nBuilt: %s\n", Version, Commit, BuildTime)
	},
}
