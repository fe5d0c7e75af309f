// Package sink delivers Snapshots to the terminal, a chat recipient, Redis
// and Kafka.
package sink

import "marketpulse/internal/aggregate"

// Sink receives each Snapshot. See aggregate.Sink.
type Sink = aggregate.Sink

// ErrUnavailable is returned when a sink cannot deliver this cycle. The
// aggregator skips it and the next cycle tries again.
var ErrUnavailable = aggregate.ErrSinkUnavailable
