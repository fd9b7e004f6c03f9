package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"firestige.xyz/fastdrop/internal/config"
	"firestige.xyz/fastdrop/internal/core"
	"firestige.xyz/fastdrop/internal/core/decoder"
	"firestige.xyz/fastdrop/internal/log"
	"firestige.xyz/fastdrop/internal/metrics"
	"firestige.xyz/fastdrop/internal/nic"
)

// Worker loop defaults.
const (
	DefaultBurstSize     = 32
	DefaultIdleThreshold = 100
	DefaultIdleSleep     = 100 * time.Microsecond
)

// Config sizes the worker set. Workers beyond Queues are not launched, so
// each queue has at most one reader.
type Config struct {
	Workers       int
	Queues        int
	BurstSize     int
	IdleThreshold int           // Consecutive empty polls before a sleep
	IdleSleep     time.Duration // Length of that sleep
	PinCPUs       bool
	ControlCPU    int // Left free of workers when pinning
}

// ConfigFrom takes the worker settings out of a validated configuration.
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		Workers:       cfg.Workers.Count,
		Queues:        cfg.Port.Queues,
		BurstSize:     cfg.Workers.BurstSize,
		IdleThreshold: cfg.Workers.IdleThreshold,
		IdleSleep:     cfg.Workers.IdleSleep,
		PinCPUs:       cfg.Workers.PinCPUs,
		ControlCPU:    cfg.Workers.ControlCPU,
	}
}

func (c Config) withDefaults() Config {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.Queues < 1 {
		c.Queues = 1
	}
	if c.Workers > c.Queues {
		c.Workers = c.Queues
	}
	if c.BurstSize < 1 {
		c.BurstSize = DefaultBurstSize
	}
	if c.IdleThreshold < 1 {
		c.IdleThreshold = DefaultIdleThreshold
	}
	if c.IdleSleep <= 0 {
		c.IdleSleep = DefaultIdleSleep
	}
	return c
}

type dependencies struct {
	provider  nic.Provider
	decoder   decoder.Decoder
	matcher   Matcher
	acceptor  Acceptor
	blocks    BlockRecorder
	readiness Readiness
	sleep     func(time.Duration)
}

// Controller launches the workers and owns their shared stop flag.
type Controller struct {
	cfg  Config
	deps dependencies

	mu       sync.Mutex
	stop     *atomic.Bool
	running  bool
	finished bool // A session was joined; the next Launch gets a fresh flag
	wg       sync.WaitGroup
	workers  []*Worker
	retired  Stats // Counters of joined sessions
}

// NewController returns a controller for cfg. Workers use the standard
// decoder, drop allowed frames and log blocked ones at trace level; use a
// Builder to change that.
func NewController(cfg Config, provider nic.Provider, matcher Matcher, readiness Readiness) *Controller {
	return NewBuilder().
		WithConfig(cfg).
		WithProvider(provider).
		WithMatcher(matcher).
		WithReadiness(readiness).
		Build()
}

func newController(cfg Config, deps dependencies) *Controller {
	if deps.decoder == nil {
		deps.decoder = decoder.Standard{}
	}
	if deps.acceptor == nil {
		deps.acceptor = NopAcceptor{}
	}
	if deps.blocks == nil {
		deps.blocks = TraceRecorder{}
	}
	if deps.sleep == nil {
		deps.sleep = time.Sleep
	}
	return &Controller{
		cfg:  cfg.withDefaults(),
		deps: deps,
		stop: new(atomic.Bool),
	}
}

// Launch starts the workers. Worker i polls queue i mod Queues. It fails with
// core.ErrNotReady unless bring-up reported success, and with
// core.ErrAlreadyRunning while a session is active.
//
// If Stop was called before the first Launch, the workers see the flag
// already set and return without polling.
func (c *Controller) Launch() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deps.readiness == nil || !c.deps.readiness.Ready() {
		return fmt.Errorf("%w: bring-up has not completed", core.ErrNotReady)
	}
	if c.running {
		return core.ErrAlreadyRunning
	}
	if c.deps.provider == nil || c.deps.matcher == nil {
		return fmt.Errorf("%w: controller needs a provider and a matcher", core.ErrNotConfigured)
	}
	if c.finished {
		c.stop = new(atomic.Bool)
		c.finished = false
	}

	cpus := workerCPUs(runtime.NumCPU(), c.cfg.ControlCPU)
	c.workers = make([]*Worker, c.cfg.Workers)
	for i := range c.workers {
		c.workers[i] = newWorker(i, i%c.cfg.Queues, c.cfg, c.deps)
	}
	for i, w := range c.workers {
		cpu := -1
		if c.cfg.PinCPUs && len(cpus) > 0 {
			cpu = cpus[i%len(cpus)]
		}
		c.wg.Add(1)
		go c.run(w, c.stop, cpu)
	}
	c.running = true

	log.GetLogger().WithFields(map[string]interface{}{
		"workers": c.cfg.Workers,
		"queues":  c.cfg.Queues,
		"burst":   c.cfg.BurstSize,
		"pinned":  c.cfg.PinCPUs,
	}).Info("workers launched")
	return nil
}

func (c *Controller) run(w *Worker, stop *atomic.Bool, cpu int) {
	defer c.wg.Done()
	metrics.WorkersRunning.Inc()
	defer metrics.WorkersRunning.Dec()

	if cpu >= 0 {
		if err := pinToCPU(cpu); err != nil {
			log.GetLogger().WithField("worker", w.id).WithError(err).Warnf("failed to pin worker to cpu %d", cpu)
		}
	}
	w.Run(stop)
}

// Stop sets the stop flag and waits for every launched worker to return. It
// may be called any number of times.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stop.Store(true)
	if !c.running {
		return
	}
	c.wg.Wait()

	for _, w := range c.workers {
		c.retired = c.retired.Add(w.Stats())
	}
	c.workers = nil
	c.running = false
	c.finished = true
	log.GetLogger().Info("workers stopped")
}

// Running reports whether a session is active.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// States returns the state of each running worker.
func (c *Controller) States() []State {
	c.mu.Lock()
	defer c.mu.Unlock()
	states := make([]State, len(c.workers))
	for i, w := range c.workers {
		states[i] = w.State()
	}
	return states
}

// Stats sums the counters of all workers launched so far.
func (c *Controller) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := c.retired
	for _, w := range c.workers {
		total = total.Add(w.Stats())
	}
	return total
}

// workerCPUs lists the CPUs workers may be pinned to.
func workerCPUs(n, control int) []int {
	cpus := make([]int, 0, n)
	for cpu := 0; cpu < n; cpu++ {
		if cpu != control {
			cpus = append(cpus, cpu)
		}
	}
	if len(cpus) == 0 {
		cpus = append(cpus, 0)
	}
	return cpus
}
