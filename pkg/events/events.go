package events

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Topic classifies an event and selects the subscribers it is routed to
type Topic string

const (
	TopicWarning   Topic = "WARNING"
	TopicInfo      Topic = "INFO"
	TopicDebug     Topic = "DEBUG"
	TopicVirt      Topic = "VIRT"
	TopicHeartbeat Topic = "HEARTBEAT"
	TopicStartup   Topic = "STARTUP"
	TopicAck       Topic = "ACK"
)

// Topics lists every recognized topic in declaration order
var Topics = []Topic{
	TopicWarning,
	TopicInfo,
	TopicDebug,
	TopicVirt,
	TopicHeartbeat,
	TopicStartup,
	TopicAck,
}

// Valid reports whether t is one of the recognized topics
func (t Topic) Valid() bool {
	for _, known := range Topics {
		if t == known {
			return true
		}
	}
	return false
}

var (
	ErrInvalidTopic    = errors.New("topic not recognized")
	ErrMalformedEvent  = errors.New("malformed event")
	ErrMissingField    = errors.New("missing required field")
	ErrUnsupportedType = errors.New("unsupported event type")
)

// DefaultHost is used when an event is built without an origin host
const DefaultHost = "localhost"

// Event is one occurrence worth routing. Only Payload may be mutated after
// construction, and only before the event is first dispatched.
type Event struct {
	ID        string
	Title     string
	Message   string
	Host      string
	Type      Topic
	Source    string
	Timestamp time.Time
	OneTime   bool
	Payload   Payload
}

// Option configures an event under construction
type Option func(*Event)

// WithHost sets the origin identity of the event
func WithHost(host string) Option {
	return func(e *Event) { e.Host = host }
}

// WithType sets the topic of the event
func WithType(t Topic) Option {
	return func(e *Event) { e.Type = t }
}

// WithSource overrides the auto-detected producing component
func WithSource(source string) Option {
	return func(e *Event) { e.Source = source }
}

// WithPayload sets a payload entry
func WithPayload(key string, value any) Option {
	return func(e *Event) { e.Payload[key] = value }
}

// OneTime marks the event as exempt from repeat suppression
func OneTime() Option {
	return func(e *Event) { e.OneTime = true }
}

// New builds an event. The host defaults to "localhost", the topic to INFO,
// and the source to the package and type of the calling function.
func New(title, message string, opts ...Option) (*Event, error) {
	e := &Event{
		ID:        uuid.NewString(),
		Title:     title,
		Message:   message,
		Host:      DefaultHost,
		Type:      TopicInfo,
		Source:    detectSource(2),
		Timestamp: time.Now(),
		Payload:   make(Payload),
	}

	for _, opt := range opts {
		opt(e)
	}

	if !e.Type.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidTopic, e.Type)
	}

	return e, nil
}

// MustNew is New for topics known at compile time. It panics on an
// unrecognized topic.
func MustNew(title, message string, opts ...Option) *Event {
	opts = append([]Option{WithSource(detectSource(2))}, opts...)
	e, err := New(title, message, opts...)
	if err != nil {
		panic(err)
	}
	return e
}

// When returns the creation instant as fractional seconds since the epoch
func (e *Event) When() float64 {
	return float64(e.Timestamp.UnixNano()) / float64(time.Second)
}

// ContentHash returns a stable digest of title, message, source, host and
// type. ID and timestamp are not part of the hash, so repeats of the same
// occurrence hash identically across processes.
func (e *Event) ContentHash() string {
	h := sha256.New()
	for _, field := range []string{e.Title, e.Message, e.Source, e.Host, string(e.Type)} {
		h.Write([]byte(field))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Clone returns a copy with its own payload map
func (e *Event) Clone() *Event {
	c := *e
	c.Payload = e.Payload.Clone()
	return &c
}

func (e *Event) String() string {
	return e.Title + ": " + e.Host + ": " + e.Message
}

// detectSource names the component that called into this package, e.g.
// "pulse.Pulse" for a method on *pulse.Pulse or "control" for a plain function.
func detectSource(skip int) string {
	pc, _, _, ok := runtime.Caller(skip)
	if !ok {
		return ""
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return ""
	}
	return sourceFromFuncName(fn.Name())
}

func sourceFromFuncName(name string) string {
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}

	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return name
	}

	pkg := parts[0]
	if strings.HasPrefix(parts[1], "(") {
		typ := strings.Trim(parts[1], "(*)")
		return pkg + "." + typ
	}
	if len(parts) > 2 && !strings.HasPrefix(parts[2], "func") {
		// value receiver: pkg.Type.Method
		return pkg + "." + parts[1]
	}
	return pkg
}

// Emit hands a produced event to whoever routes it
type Emit func(e *Event)
