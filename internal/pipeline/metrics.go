package pipeline

import (
	"sync/atomic"
)

// workerStats are the counters of one worker. They are written by the worker
// only and read by Stats.
type workerStats struct {
	received      atomic.Uint64
	parseErrors   atomic.Uint64
	allowed       atomic.Uint64
	blocked       atomic.Uint64
	released      atomic.Uint64
	emptyPolls    atomic.Uint64
	backoffSleeps atomic.Uint64
}

func (m *workerStats) snapshot() Stats {
	return Stats{
		Received:      m.received.Load(),
		ParseErrors:   m.parseErrors.Load(),
		Allowed:       m.allowed.Load(),
		Blocked:       m.blocked.Load(),
		Released:      m.released.Load(),
		EmptyPolls:    m.emptyPolls.Load(),
		BackoffSleeps: m.backoffSleeps.Load(),
	}
}

// Stats are worker counters, per worker or summed over workers.
type Stats struct {
	Received      uint64
	ParseErrors   uint64
	Allowed       uint64
	Blocked       uint64
	Released      uint64
	EmptyPolls    uint64
	BackoffSleeps uint64
}

// Add returns the field-wise sum of s and o.
func (s Stats) Add(o Stats) Stats {
	return Stats{
		Received:      s.Received + o.Received,
		ParseErrors:   s.ParseErrors + o.ParseErrors,
		Allowed:       s.Allowed + o.Allowed,
		Blocked:       s.Blocked + o.Blocked,
		Released:      s.Released + o.Released,
		EmptyPolls:    s.EmptyPolls + o.EmptyPolls,
		BackoffSleeps: s.BackoffSleeps + o.BackoffSleeps,
	}
}
