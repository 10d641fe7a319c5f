package realtime

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultProbeInterval is the liveness-probe cycle length.
const DefaultProbeInterval = 30 * time.Second

// missedProbeLimit is how many consecutive unanswered probes a connection
// may accumulate before it is evicted. 1 means a single missed cycle kills
// the connection; raise it to tolerate brief network jitter.
const missedProbeLimit = 1

// Monitor detects connections that died without a clean close by probing
// them on a fixed interval and evicting the ones that stop answering.
type Monitor struct {
	registry *Registry
	interval time.Duration
	onEvict  func(*Conn)
	stop     chan struct{}
	stopOnce sync.Once
}

func NewMonitor(registry *Registry, interval time.Duration, onEvict func(*Conn)) *Monitor {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Monitor{
		registry: registry,
		interval: interval,
		onEvict:  onEvict,
		stop:     make(chan struct{}),
	}
}

// Start launches the probe cycle. Failure here is the only fatal condition
// in the subsystem.
func (m *Monitor) Start() error {
	if m.registry == nil {
		return fmt.Errorf("liveness monitor has no registry")
	}
	go m.run()
	return nil
}

func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *Monitor) run() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweep()
		}
	}
}

// sweep evicts connections with too many missed probes and probes the
// rest. A client that answers before the next sweep resets its counter.
func (m *Monitor) sweep() {
	for _, c := range m.registry.all() {
		if c.missedProbes() >= missedProbeLimit {
			slog.Debug(
				"evicting unresponsive connection",
				slog.String("connectionId", c.ID()),
				slog.String("module", "socket"),
			)
			c.close()
			if m.onEvict != nil {
				m.onEvict(c)
			}
			continue
		}
		c.noteProbe()
		if err := c.ping(time.Now().Add(m.interval)); err != nil {
			c.close()
			if m.onEvict != nil {
				m.onEvict(c)
			}
		}
	}
}
