package histamine

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/cuemby/heartbeat/pkg/events"
	"github.com/cuemby/heartbeat/pkg/metrics"
	"github.com/cuemby/heartbeat/pkg/network"
	"github.com/cuemby/heartbeat/pkg/security"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePusher struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
}

func (p *fakePusher) Push(data []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return false
	}
	p.frames = append(p.frames, append([]byte(nil), data...))
	return true
}

func (p *fakePusher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.frames)
}

type owner map[string]bool

func (o owner) IsOwn(host string) bool { return o[host] }

type emitted struct {
	mu     sync.Mutex
	events []*events.Event
}

func (e *emitted) emit(ev *events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *emitted) byType(t events.Topic) []*events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*events.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func newTestSender(t *testing.T, cfg SenderConfig) (*Sender, *fakePusher) {
	t.Helper()
	s := NewSender(cfg)
	p := &fakePusher{}
	s.push = p
	return s, p
}

func peer() *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("10.0.0.7"), Port: 40000}
}

func TestCodecRoundTrip(t *testing.T) {
	enc, err := security.NewEncryptor("hunter2")
	require.NoError(t, err)

	tests := []struct {
		name   string
		cipher security.Cipher
	}{
		{"plaintext", nil},
		{"encrypted", enc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Codec{Secret: []byte("s3cret"), Cipher: tt.cipher}
			e := events.MustNew("title", "message", events.WithType(events.TopicWarning), events.WithHost("node-a"))

			frame, err := c.Encode(e)
			require.NoError(t, err)
			assert.Equal(t, "s3cret", string(frame[:6]))

			got, err := c.Decode(frame)
			require.NoError(t, err)
			assert.Equal(t, e.ID, got.ID)
			assert.Equal(t, e.Title, got.Title)
			assert.Equal(t, events.TopicWarning, got.Type)
		})
	}
}

func TestCodecRejectsWrongSecret(t *testing.T) {
	c := &Codec{Secret: []byte("one")}
	frame, err := c.Encode(events.MustNew("t", "m"))
	require.NoError(t, err)

	_, err = (&Codec{Secret: []byte("two")}).Decode(frame)
	assert.ErrorIs(t, err, ErrBadSecret)
}

func TestCodecPlaintextFallback(t *testing.T) {
	enc, err := security.NewEncryptor("hunter2")
	require.NoError(t, err)

	plainFrame, err := (&Codec{Secret: []byte("k")}).Encode(events.MustNew("t", "m"))
	require.NoError(t, err)

	_, err = (&Codec{Secret: []byte("k"), Cipher: enc}).Decode(plainFrame)
	assert.Error(t, err)

	got, err := (&Codec{Secret: []byte("k"), Cipher: enc, AcceptPlaintext: true}).Decode(plainFrame)
	require.NoError(t, err)
	assert.Equal(t, "t", got.Title)
}

func TestCodecGarbage(t *testing.T) {
	_, err := (&Codec{Secret: []byte("k")}).Decode([]byte("k{not json"))
	assert.Error(t, err)
}

func TestSenderSubscriptions(t *testing.T) {
	s := NewSender(SenderConfig{})
	assert.Len(t, s.Subscriptions(), len(events.Topics))
	assert.Nil(t, s.Producers())

	s = NewSender(SenderConfig{Topics: []events.Topic{events.TopicWarning}, Acking: true})
	subs := s.Subscriptions()
	assert.Len(t, subs, 2)
	assert.Contains(t, subs, events.TopicWarning)
	assert.Contains(t, subs, events.TopicAck)
	assert.Len(t, s.Producers(), 1)
}

func TestSenderSendsWithoutAcking(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Codec: &Codec{Secret: []byte("k")}})

	require.NoError(t, s.Send(context.Background(), events.MustNew("t", "m")))
	assert.Equal(t, 1, p.count())
	assert.Empty(t, s.Unacked())
}

func TestSenderSkipsReceivedEvents(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Acking: true})

	e := events.MustNew("t", "m", events.WithPayload(events.PayloadOrigin, "10.0.0.7"))
	require.NoError(t, s.Send(context.Background(), e))
	assert.Zero(t, p.count())
	assert.Empty(t, s.Unacked())
}

func TestSenderAckLifecycle(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Acking: true})
	ctx := context.Background()

	e := events.MustNew("t", "m")
	require.NoError(t, s.Send(ctx, e))
	assert.Equal(t, []string{e.ID}, s.Unacked())
	assert.Empty(t, e.Payload, "caller's event must not be mutated")

	ack := events.MustNew("Histamine ACK", "",
		events.WithType(events.TopicAck),
		events.WithPayload(events.PayloadAcking, e.ID),
		events.WithPayload(events.PayloadOrigin, "10.0.0.7"),
	)
	require.NoError(t, s.Send(ctx, ack))
	assert.Empty(t, s.Unacked())
	assert.Equal(t, 1, p.count())
}

func TestSenderResendGivesUp(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Acking: true, MaxAttempts: 3})
	ctx := context.Background()

	require.NoError(t, s.Send(ctx, events.MustNew("t", "m")))

	require.NoError(t, s.Resend(ctx, nil))
	require.NoError(t, s.Resend(ctx, nil))
	assert.Len(t, s.Unacked(), 1)
	assert.Equal(t, 3, p.count())

	require.NoError(t, s.Resend(ctx, nil))
	assert.Empty(t, s.Unacked())
	assert.Equal(t, 3, p.count())

	codec := &Codec{}
	last, err := codec.Decode(p.frames[2])
	require.NoError(t, err)
	attempt, ok := last.Payload.Int(events.PayloadAttempt)
	require.True(t, ok)
	assert.Equal(t, 3, attempt)
}

func TestSenderKeepsUnsentEvents(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Acking: true})
	p.fail = true
	failedBefore := testutil.ToFloat64(metrics.HistamineSent.WithLabelValues("failed"))

	// a refused push is not a subscriber failure
	assert.NoError(t, s.Send(context.Background(), events.MustNew("t", "m")))
	assert.Len(t, s.Unacked(), 1)

	assert.NoError(t, s.Resend(context.Background(), nil))
	assert.Len(t, s.Unacked(), 1)
	assert.Equal(t, failedBefore+2, testutil.ToFloat64(metrics.HistamineSent.WithLabelValues("failed")))

	p.fail = false
	require.NoError(t, s.Resend(context.Background(), nil))
	assert.Equal(t, 1, p.count())
}

func TestSenderSwallowsRefusedPushWithoutAcking(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{})
	p.fail = true

	assert.NoError(t, s.Send(context.Background(), events.MustNew("t", "m")))
	assert.Empty(t, s.Unacked())
	assert.Zero(t, p.count())
}

func TestSenderRoutesAckToDestination(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Acking: true})
	direct := &fakePusher{}
	var dialed []string
	s.dial = func(host string, port int) network.Pusher {
		dialed = append(dialed, host)
		return direct
	}

	ack := events.MustNew("Histamine ACK", "",
		events.WithType(events.TopicAck),
		events.WithPayload(events.PayloadAcking, "some-id"),
		events.WithPayload(events.PayloadDest, "10.0.0.7"),
	)
	require.NoError(t, s.Send(context.Background(), ack))
	require.NoError(t, s.Send(context.Background(), ack))

	assert.Equal(t, []string{"10.0.0.7"}, dialed)
	assert.Equal(t, 2, direct.count())
	assert.Zero(t, p.count())
	assert.Empty(t, s.Unacked(), "ACKs are never awaited")
}

func TestListenerReceive(t *testing.T) {
	codec := &Codec{Secret: []byte("k")}
	l, err := NewListener(ListenerConfig{Codec: codec, Identity: "node-b", Acking: true})
	require.NoError(t, err)

	e := events.MustNew("t", "m", events.WithHost("node-a"))
	frame, err := codec.Encode(e)
	require.NoError(t, err)

	var out emitted
	l.Receive(frame, peer(), out.emit)

	infos := out.byType(events.TopicInfo)
	require.Len(t, infos, 1)
	assert.Equal(t, "node-a@10.0.0.7", infos[0].Host)
	origin, _ := infos[0].Payload.String(events.PayloadOrigin)
	assert.Equal(t, "10.0.0.7", origin)

	acks := out.byType(events.TopicAck)
	require.Len(t, acks, 1)
	assert.Equal(t, "Histamine ACK", acks[0].Title)
	assert.Equal(t, "node-b", acks[0].Host)
	acking, _ := acks[0].Payload.String(events.PayloadAcking)
	assert.Equal(t, e.ID, acking)
	dest, _ := acks[0].Payload.String(events.PayloadDest)
	assert.Equal(t, "10.0.0.7", dest)
}

func TestListenerDuplicatesAckedButDispatchedOnce(t *testing.T) {
	codec := &Codec{}
	l, err := NewListener(ListenerConfig{Codec: codec, Acking: true})
	require.NoError(t, err)

	frame, err := codec.Encode(events.MustNew("t", "m", events.WithHost("node-a")))
	require.NoError(t, err)

	var out emitted
	l.Receive(frame, peer(), out.emit)
	l.Receive(frame, peer(), out.emit)

	assert.Len(t, out.byType(events.TopicInfo), 1)
	assert.Len(t, out.byType(events.TopicAck), 2)
}

func TestListenerDoesNotAckAcks(t *testing.T) {
	codec := &Codec{}
	l, err := NewListener(ListenerConfig{Codec: codec, Acking: true})
	require.NoError(t, err)

	ack := events.MustNew("Histamine ACK", "",
		events.WithType(events.TopicAck),
		events.WithHost("node-a"),
		events.WithPayload(events.PayloadAcking, "x"),
	)
	frame, err := codec.Encode(ack)
	require.NoError(t, err)

	var out emitted
	l.Receive(frame, peer(), out.emit)
	require.Len(t, out.events, 1)
	assert.Equal(t, ack.ID, out.events[0].ID)
}

func TestListenerDropsOwnAndGarbage(t *testing.T) {
	codec := &Codec{Secret: []byte("k")}
	l, err := NewListener(ListenerConfig{Codec: codec, Owner: owner{"node-b": true}, Acking: true})
	require.NoError(t, err)

	frame, err := codec.Encode(events.MustNew("t", "m", events.WithHost("node-b")))
	require.NoError(t, err)

	var out emitted
	l.Receive(frame, peer(), out.emit)
	l.Receive([]byte("k garbage"), peer(), out.emit)
	l.Receive([]byte("no secret"), peer(), out.emit)
	assert.Empty(t, out.events)
}

func TestSenderToListenerOverUDP(t *testing.T) {
	enc, err := security.NewEncryptor("hunter2")
	require.NoError(t, err)
	codec := &Codec{Secret: []byte("k"), Cipher: enc}

	l, err := NewListener(ListenerConfig{Codec: codec, Addr: "127.0.0.1:0"})
	require.NoError(t, err)

	received := make(chan *events.Event, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx, func(e *events.Event) { received <- e })

	var addr *net.UDPAddr
	select {
	case addr = <-l.Bound():
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not bind")
	}

	s := NewSender(SenderConfig{Codec: codec, Destination: "127.0.0.1", Port: addr.Port})
	e := events.MustNew("over the wire", "m", events.WithHost("node-a"))
	require.NoError(t, s.Send(context.Background(), e))

	select {
	case got := <-received:
		assert.Equal(t, e.ID, got.ID)
		assert.Equal(t, "node-a@127.0.0.1", got.Host)
	case <-time.After(2 * time.Second):
		t.Fatal("event not received")
	}
}

func TestSenderHeartbeatsUsePulsePort(t *testing.T) {
	s, p := newTestSender(t, SenderConfig{Port: 22000, PulsePort: 21999})
	require.NotNil(t, s.pulse)
	pulse := &fakePusher{}
	s.pulse = pulse

	ctx := context.Background()
	require.NoError(t, s.Send(ctx, events.MustNew("System heartbeat", "", events.WithType(events.TopicHeartbeat))))
	require.NoError(t, s.Send(ctx, events.MustNew("t", "m")))

	assert.Equal(t, 1, pulse.count())
	assert.Equal(t, 1, p.count())
}
