package server

import (
	"context"
	"sync/atomic"

	"marketpulse/internal/aggregate"
)

// Latest keeps the newest Snapshot for the HTTP routes. It is also a sink.
type Latest struct {
	p atomic.Pointer[aggregate.Snapshot]
}

func (l *Latest) Name() string { return "http" }

// Publish replaces the stored Snapshot unless snap is older than it.
func (l *Latest) Publish(_ context.Context, snap aggregate.Snapshot) error {
	for {
		cur := l.p.Load()
		if cur != nil && snap.GeneratedAt.Before(cur.GeneratedAt) {
			return nil
		}
		if l.p.CompareAndSwap(cur, &snap) {
			return nil
		}
	}
}

// Load returns the stored Snapshot, if any.
func (l *Latest) Load() (*aggregate.Snapshot, bool) {
	s := l.p.Load()
	return s, s != nil
}
