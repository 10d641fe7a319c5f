package realtime

import (
	"testing"
	"time"
)

func TestMonitorStartRequiresRegistry(t *testing.T) {
	m := NewMonitor(nil, time.Second, nil)
	if err := m.Start(); err == nil {
		t.Fatal("expected start to fail without a registry")
	}
}

func TestMonitorSweepProbesThenEvicts(t *testing.T) {
	registry := NewRegistry()
	var evicted []*Conn
	m := NewMonitor(registry, time.Second, func(c *Conn) {
		evicted = append(evicted, c)
		registry.Remove(c.ID())
	})

	tr := &fakeTransport{}
	c := newConn(tr)
	registry.Register(c)

	// First sweep sends a probe and charges a miss.
	m.sweep()
	if tr.pingCount() != 1 {
		t.Fatalf("expected 1 ping, got %d", tr.pingCount())
	}
	if len(evicted) != 0 {
		t.Fatal("connection evicted too early")
	}

	// No pong arrived, so the next sweep evicts.
	m.sweep()
	if len(evicted) != 1 || evicted[0] != c {
		t.Fatalf("expected eviction of the silent connection, got %v", evicted)
	}
	select {
	case <-c.closed():
	default:
		t.Fatal("expected evicted connection to be closed")
	}
	if conns, _ := registry.Stats(); conns != 0 {
		t.Fatalf("expected empty registry after eviction, got %d", conns)
	}
}

func TestMonitorPongPreventsEviction(t *testing.T) {
	registry := NewRegistry()
	var evicted []*Conn
	m := NewMonitor(registry, time.Second, func(c *Conn) { evicted = append(evicted, c) })

	c := newConn(&fakeTransport{})
	registry.Register(c)

	for i := 0; i < 5; i++ {
		m.sweep()
		c.markAlive() // the client answers every probe
	}

	if len(evicted) != 0 {
		t.Fatalf("responsive connection was evicted after %d sweeps", len(evicted))
	}
}

func TestMonitorEvictsOnProbeFailure(t *testing.T) {
	registry := NewRegistry()
	var evicted []*Conn
	m := NewMonitor(registry, time.Second, func(c *Conn) { evicted = append(evicted, c) })

	c := newConn(&fakeTransport{failPing: true})
	registry.Register(c)

	m.sweep()
	if len(evicted) != 1 {
		t.Fatalf("expected immediate eviction when the probe cannot be written, got %d", len(evicted))
	}
}

func TestMonitorDefaultInterval(t *testing.T) {
	m := NewMonitor(NewRegistry(), 0, nil)
	if m.interval != DefaultProbeInterval {
		t.Fatalf("expected default interval %v, got %v", DefaultProbeInterval, m.interval)
	}
}
