package events

import "strconv"

// Payload carries auxiliary data alongside an event. Producers put values
// under the documented keys below; anything else is passed through untouched.
type Payload map[string]any

const (
	// PayloadIP is an address reported by an IP-change producer
	PayloadIP = "ip"
	// PayloadIPType is "LAN" or "WAN", accompanying PayloadIP
	PayloadIPType = "ip_type"
	// PayloadAttempt counts histamine transmissions of the event
	PayloadAttempt = "histamine_attempt"
	// PayloadAcking holds the id of the event an ACK acknowledges
	PayloadAcking = "histamine_acking"
	// PayloadDest is the address an ACK must be sent back to
	PayloadDest = "dest"
	// PayloadOrigin is the source address of an event received over the network
	PayloadOrigin = "histamine_origin"
)

// String returns the value under key if it is a string
func (p Payload) String(key string) (string, bool) {
	v, ok := p[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// Int returns the value under key as an int. JSON decoding yields float64
// and some producers store numeric strings, so both are accepted.
func (p Payload) Int(key string) (int, bool) {
	switch v := p[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		n, err := strconv.Atoi(v)
		return n, err == nil
	default:
		return 0, false
	}
}

// Has reports whether key is set
func (p Payload) Has(key string) bool {
	_, ok := p[key]
	return ok
}

// Clone returns a shallow copy
func (p Payload) Clone() Payload {
	c := make(Payload, len(p))
	for k, v := range p {
		c[k] = v
	}
	return c
}
