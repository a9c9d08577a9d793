package metrics

import (
	"sync"
	"time"
)

// PeerSource is anything that knows how many peers are currently alive
type PeerSource interface {
	KnownPeers() int
}

// Collector samples a PeerSource into the PeersKnown gauge so the gauge
// also drops when peers are forgotten between heartbeats
type Collector struct {
	source   PeerSource
	interval time.Duration

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewCollector(source PeerSource, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		source:   source,
		interval: interval,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start samples once immediately, then every interval until Stop
func (c *Collector) Start() {
	c.sample()

	go func() {
		defer close(c.done)
		ticker := time.NewTicker(c.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				c.sample()
			case <-c.stop:
				return
			}
		}
	}()
}

// Stop ends sampling and waits for the loop to exit. Safe to call twice.
func (c *Collector) Stop() {
	c.stopOnce.Do(func() {
		close(c.stop)
		<-c.done
	})
}

func (c *Collector) sample() {
	PeersKnown.Set(float64(c.source.KnownPeers()))
}
