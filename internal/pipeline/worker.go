package pipeline

import (
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/core/decoder"
	"firestige.xyz/fastdrop/internal/log"
	"firestige.xyz/fastdrop/internal/metrics"
	"firestige.xyz/fastdrop/internal/nic"
)

// parseErrorSampleEvery is how many parse errors share one debug record.
const parseErrorSampleEvery = 1000

// Worker polls one receive queue. It is driven by Run from a single
// goroutine; only State and Stats may be called concurrently.
type Worker struct {
	id    int
	queue int

	provider nic.Provider
	decoder  decoder.Decoder
	matcher  Matcher
	acceptor Acceptor
	blocks   BlockRecorder

	burst         []core.Frame
	idleThreshold int
	idleSleep     time.Duration
	sleep         func(time.Duration)
	emptyPolls    int // Consecutive, local to the worker

	state    atomic.Int32
	stats    workerStats
	counters *metrics.WorkerCounters
	sampler  rate.Sometimes
}

func newWorker(id, queue int, cfg Config, deps dependencies) *Worker {
	return &Worker{
		id:            id,
		queue:         queue,
		provider:      deps.provider,
		decoder:       deps.decoder,
		matcher:       deps.matcher,
		acceptor:      deps.acceptor,
		blocks:        deps.blocks,
		burst:         make([]core.Frame, cfg.BurstSize),
		idleThreshold: cfg.IdleThreshold,
		idleSleep:     cfg.IdleSleep,
		sleep:         deps.sleep,
		counters:      metrics.ForWorker(id),
		sampler:       rate.Sometimes{First: 1, Every: parseErrorSampleEvery},
	}
}

// ID returns the worker ordinal.
func (w *Worker) ID() int { return w.id }

// Queue returns the receive queue the worker polls.
func (w *Worker) Queue() int { return w.queue }

// State returns the current lifecycle state.
func (w *Worker) State() State {
	return State(w.state.Load())
}

// Stats returns the worker's counters.
func (w *Worker) Stats() Stats {
	return w.stats.snapshot()
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run polls until stop is set. stop is only checked between bursts, so a
// burst that was received is always processed and released in full.
func (w *Worker) Run(stop *atomic.Bool) {
	w.setState(StatePolling)
	for !stop.Load() {
		n := w.provider.RxBurst(w.queue, w.burst)
		if n == 0 {
			w.idle()
			continue
		}
		w.emptyPolls = 0
		w.setState(StatePolling)
		w.counters.Burst.Observe(float64(n))
		w.process(w.burst[:n])
	}
	w.setState(StateDraining)
	w.setState(StateStopped)
}

// idle accounts one empty poll. After idleThreshold consecutive empty polls
// the worker sleeps once and starts counting again; below that it only
// yields.
func (w *Worker) idle() {
	w.stats.emptyPolls.Add(1)
	w.counters.EmptyPolls.Inc()

	w.emptyPolls++
	if w.emptyPolls < w.idleThreshold {
		runtime.Gosched()
		return
	}

	w.setState(StateBackoff)
	w.sleep(w.idleSleep)
	w.setState(StatePolling)
	w.emptyPolls = 0
	w.stats.backoffSleeps.Add(1)
	w.counters.BackoffSleeps.Inc()
}

func (w *Worker) process(frames []core.Frame) {
	for i := range frames {
		f := frames[i]
		w.stats.received.Add(1)

		pkt, err := w.decoder.Decode(f)
		switch {
		case err != nil:
			w.stats.parseErrors.Add(1)
			w.counters.Malformed.Inc()
			w.logParseError(err, f)
		case w.matcher.MatchPacket(&pkt):
			w.stats.allowed.Add(1)
			w.counters.Allowed.Inc()
			w.acceptor.Accept(f, &pkt)
		default:
			w.stats.blocked.Add(1)
			w.counters.Blocked.Inc()
			w.blocks.RecordBlock(w.id, &pkt)
		}

		w.provider.Release(f)
		w.stats.released.Add(1)
		frames[i] = core.Frame{}
	}
}

// logParseError logs one in parseErrorSampleEvery parse errors, with the
// leading frame bytes at trace level. f must not be released yet.
func (w *Worker) logParseError(err error, f core.Frame) {
	logger := log.GetLogger()
	if !logger.IsDebugEnabled() {
		return
	}
	w.sampler.Do(func() {
		l := logger.WithFields(map[string]interface{}{
			"worker":       w.id,
			"queue":        w.queue,
			"parse_errors": w.stats.parseErrors.Load(),
		})
		l.WithError(err).Debug("dropped malformed frame")
		if logger.IsTraceEnabled() {
			for _, row := range decoder.HexDump(f.Data[:min(f.Length, len(f.Data))], decoder.DefaultDumpLen) {
				l.Trace(row)
			}
		}
	})
}
