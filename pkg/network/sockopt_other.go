//go:build !unix

package network

import (
	"errors"
	"net"
)

func setBroadcast(*net.UDPConn) error {
	return errors.New("broadcast not supported on this platform")
}
