package events

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// FormatVersion is written into every serialized event
const FormatVersion = 1

// wireEvent is the JSON shape of an event. Pointer fields distinguish
// absent keys from zero values during decoding.
type wireEvent struct {
	Version int            `json:"v"`
	ID      string         `json:"id"`
	Title   *string        `json:"title"`
	Message *string        `json:"message"`
	Host    *string        `json:"host"`
	Type    *string        `json:"type"`
	Source  *string        `json:"source"`
	OneTime *bool          `json:"one_time"`
	When    *float64       `json:"when,omitempty"`
	Payload map[string]any `json:"payload"`
}

// Marshal serializes an event to JSON. The human readable timestamp is
// not written; it is rebuilt from "when".
func (e *Event) Marshal() ([]byte, error) {
	w := wireEvent{
		Version: FormatVersion,
		ID:      e.ID,
		Title:   &e.Title,
		Message: &e.Message,
		Host:    &e.Host,
		OneTime: &e.OneTime,
		Payload: e.Payload,
	}

	t := string(e.Type)
	w.Type = &t

	if e.Source != "" {
		s := e.Source
		w.Source = &s
	}

	if !e.Timestamp.IsZero() {
		when := e.When()
		w.When = &when
	}

	if w.Payload == nil {
		w.Payload = map[string]any{}
	}

	return json.Marshal(w)
}

// MarshalJSON implements json.Marshaler
func (e *Event) MarshalJSON() ([]byte, error) {
	return e.Marshal()
}

// Unmarshal decodes an event. Title, message and type are required; host,
// one_time, source, payload and id fall back to defaults so that payloads
// from older senders still decode.
func Unmarshal(data []byte) (*Event, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	switch {
	case w.Title == nil:
		return nil, fmt.Errorf("%w: title", ErrMissingField)
	case w.Message == nil:
		return nil, fmt.Errorf("%w: message", ErrMissingField)
	case w.Type == nil:
		return nil, fmt.Errorf("%w: type", ErrMissingField)
	}

	topic := Topic(*w.Type)
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, *w.Type)
	}

	e := &Event{
		ID:      w.ID,
		Title:   *w.Title,
		Message: *w.Message,
		Host:    DefaultHost,
		Type:    topic,
		Payload: Payload(w.Payload),
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if w.Host != nil {
		e.Host = *w.Host
	}
	if w.Source != nil {
		e.Source = *w.Source
	}
	if w.OneTime != nil {
		e.OneTime = *w.OneTime
	}
	if e.Payload == nil {
		e.Payload = make(Payload)
	}

	if w.When != nil {
		sec, frac := math.Modf(*w.When)
		e.Timestamp = time.Unix(int64(sec), int64(frac*float64(time.Second)))
	} else {
		e.Timestamp = time.Now()
	}

	return e, nil
}
