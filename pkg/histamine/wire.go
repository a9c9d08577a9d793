package histamine

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/security"
)

const (
	// DefaultPort is the UDP port events are exchanged on
	DefaultPort = 22000

	// DefaultMaxAttempts bounds how many times an unacknowledged event is
	// sent before it is dropped
	DefaultMaxAttempts = 4
)

var (
	ErrBadSecret = errors.New("datagram does not carry the shared secret")
	ErrNotSent   = errors.New("datagram not sent")
)

// Codec frames events as secret || body, where body is the JSON event,
// encrypted when a cipher is set
type Codec struct {
	Secret []byte
	Cipher security.Cipher

	// AcceptPlaintext lets Decode take bodies that fail to decrypt as
	// plain JSON
	AcceptPlaintext bool
}

// Encode frames e for the wire
func (c *Codec) Encode(e *events.Event) ([]byte, error) {
	body, err := e.Marshal()
	if err != nil {
		return nil, err
	}

	if c.Cipher != nil {
		body, err = c.Cipher.Encrypt(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt event: %w", err)
		}
	}

	frame := make([]byte, 0, len(c.Secret)+len(body))
	frame = append(frame, c.Secret...)
	return append(frame, body...), nil
}

// Decode verifies the secret and decodes the event in data
func (c *Codec) Decode(data []byte) (*events.Event, error) {
	if !bytes.HasPrefix(data, c.Secret) {
		return nil, ErrBadSecret
	}
	body := data[len(c.Secret):]

	if c.Cipher != nil {
		plain, err := c.Cipher.Decrypt(body)
		switch {
		case err == nil:
			body = plain
		case !c.AcceptPlaintext:
			return nil, err
		}
	}

	return events.Unmarshal(body)
}
