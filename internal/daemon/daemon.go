// Package daemon runs the firewall agent: bring-up, rule loading, the worker
// pool and the metrics endpoint, driven by process signals.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"firestige.xyz/fastdrop/internal/bringup"
	"firestige.xyz/fastdrop/internal/config"
	"firestige.xyz/fastdrop/internal/filter"
	"firestige.xyz/fastdrop/internal/log"
	"firestige.xyz/fastdrop/internal/metrics"
	"firestige.xyz/fastdrop/internal/nic"
	"firestige.xyz/fastdrop/internal/pipeline"
)

// Reload results recorded in metrics.RuleReloadsTotal.
const (
	reloadSuccess = "success"
	reloadFailure = "failure"
)

// pooled is implemented by providers that own a buffer pool.
type pooled interface {
	Pool() *nic.Pool
}

// rxCounted is implemented by providers that keep receive counters.
type rxCounted interface {
	Stats() nic.RxStats
}

// Daemon manages the agent process lifecycle.
type Daemon struct {
	config     *config.Config
	configPath string
	pidFile    string

	bringup       *bringup.Bringup
	provider      nic.Provider
	engine        *filter.Engine
	controller    *pipeline.Controller
	metricsServer *metrics.Server // nil if metrics disabled
	unregister    []func()        // Remove the provider collectors

	registerer prometheus.Registerer
	mu         sync.Mutex // Serialises Reload and Stop

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownChan chan struct{}
	sigChan      chan os.Signal
	stopped      bool
}

// New loads the configuration at configPath and returns an unstarted daemon.
func New(configPath, pidFile string) (*Daemon, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	d := NewWithConfig(cfg, bringup.New())
	d.configPath = configPath
	d.pidFile = pidFile
	return d, nil
}

// NewWithConfig returns an unstarted daemon for a validated configuration.
func NewWithConfig(cfg *config.Config, b *bringup.Bringup) *Daemon {
	d := &Daemon{
		config:       cfg,
		bringup:      b,
		engine:       filter.NewEngine(nil),
		registerer:   prometheus.DefaultRegisterer,
		shutdownChan: make(chan struct{}, 1),
	}
	d.ctx, d.cancel = context.WithCancel(context.Background())
	return d
}

// Start brings the host and port up, loads the rules and launches the
// workers. On error everything started so far is torn down again.
func (d *Daemon) Start() error {
	if err := log.Init(d.config.Log); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"config":   d.configPath,
		"provider": d.config.Port.Provider,
		"queues":   d.config.Port.Queues,
		"workers":  d.config.Workers.Count,
	}).Info("starting fastdrop")

	if err := d.start(); err != nil {
		d.Stop()
		return err
	}
	log.GetLogger().Info("fastdrop started")
	return nil
}

func (d *Daemon) start() error {
	if err := writePIDFile(d.pidFile); err != nil {
		return err
	}

	// Rules first: a bad rule file must not leave the port promiscuous.
	if err := d.engine.ReloadFile(d.config.Rules.Path); err != nil {
		return fmt.Errorf("failed to load rules: %w", err)
	}
	metrics.RulesActive.Set(float64(d.engine.Len()))

	if err := d.bringUp(); err != nil {
		return err
	}

	d.provider = newProvider(d.config)
	if err := d.provider.Configure(d.config.Port.Queues); err != nil {
		return fmt.Errorf("failed to configure %s provider: %w", d.config.Port.Provider, err)
	}

	if err := d.startMetrics(); err != nil {
		return fmt.Errorf("failed to start metrics: %w", err)
	}

	d.controller = pipeline.NewController(pipeline.ConfigFrom(d.config), d.provider, d.engine, d.bringup)
	if err := d.controller.Launch(); err != nil {
		return fmt.Errorf("failed to launch workers: %w", err)
	}
	return nil
}

func (d *Daemon) bringUp() error {
	env := d.config.Environment
	err := d.bringup.CheckEnvironment(bringup.EnvOptions{
		RequireRoot:      env.RequireRoot,
		RequireHugepages: env.RequireHugepages,
		MeminfoPath:      env.MeminfoPath,
		MountsPath:       env.MountsPath,
	})
	if err != nil {
		return fmt.Errorf("environment check failed: %w", err)
	}

	switch {
	case d.config.Port.Provider != config.ProviderAFPacket:
		d.bringup.SkipPort(d.config.Port.Provider + " provider has no port")
	case env.SkipPortSetup:
		d.bringup.SkipPort("port setup disabled")
	default:
		if err := d.bringup.BringUpPort(d.config.Port.Interface, d.config.Port.Queues); err != nil {
			return fmt.Errorf("port bring-up failed: %w", err)
		}
	}
	return nil
}

func newProvider(cfg *config.Config) nic.Provider {
	pool := nic.PoolOptions{
		Size:       cfg.Pool.Size,
		BufferSize: cfg.Pool.BufferSize,
		Cache:      cfg.Pool.Cache,
	}
	if cfg.Port.Provider == config.ProviderPcap {
		return nic.NewPcapReplay(cfg.Port.PcapFile, pool)
	}
	return nic.NewAFPacket(nic.AFPacketOptions{
		Interface:    cfg.Port.Interface,
		SnapLen:      cfg.Port.SnapLen,
		RingSizeMB:   cfg.Port.RingSizeMB,
		BlockTimeout: cfg.Port.BlockTimeout,
		PollTimeout:  cfg.Port.PollTimeout,
		FanoutID:     cfg.Port.FanoutID,
		KernelFilter: cfg.Port.KernelFilter,
	}, pool)
}

// startMetrics registers the pool and receive collectors and starts the HTTP
// endpoint if enabled.
func (d *Daemon) startMetrics() error {
	if p, ok := d.provider.(pooled); ok && p.Pool() != nil {
		pool := p.Pool()
		unregister, err := metrics.RegisterPool(d.registerer, func() (uint64, uint64, uint64) {
			s := pool.Stats()
			return s.Free(), s.InUse, s.DoubleReleases
		})
		if err != nil {
			return err
		}
		d.unregister = append(d.unregister, unregister)
	}
	if rx, ok := d.provider.(rxCounted); ok {
		unregister, err := metrics.RegisterRx(d.registerer, func() (uint64, uint64, uint64, uint64) {
			s := rx.Stats()
			return s.Received, s.KernelDrops, s.NoBuffer, s.RxErrors
		})
		if err != nil {
			return err
		}
		d.unregister = append(d.unregister, unregister)
	}

	if !d.config.Metrics.Enabled {
		log.GetLogger().Info("metrics server disabled")
		return nil
	}
	d.metricsServer = metrics.NewServer(d.config.Metrics.Listen, d.config.Metrics.Path)
	return d.metricsServer.Start()
}

// Stop shuts down in order: stop flag and join of all workers, provider
// close, port release, then the metrics endpoint. It may be called more than
// once.
func (d *Daemon) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.stopped = true
	logger := log.GetLogger()
	logger.Info("initiating graceful shutdown")

	if d.controller != nil {
		d.controller.Stop()
		st := d.controller.Stats()
		logger.WithFields(map[string]interface{}{
			"received":     st.Received,
			"allowed":      st.Allowed,
			"blocked":      st.Blocked,
			"parse_errors": st.ParseErrors,
		}).Info("workers joined")
	}

	if rx, ok := d.provider.(rxCounted); ok {
		st := rx.Stats()
		logger.WithFields(map[string]interface{}{
			"rx_received":     st.Received,
			"rx_kernel_drops": st.KernelDrops,
			"rx_no_buffer":    st.NoBuffer,
			"rx_errors":       st.RxErrors,
		}).Info("receive totals")
	}

	if d.provider != nil {
		if err := d.provider.Close(); err != nil {
			logger.WithError(err).Error("error closing provider")
		}
	}

	if err := d.bringup.ReleasePort(); err != nil {
		logger.WithError(err).Error("error releasing port")
	}

	for _, unregister := range d.unregister {
		unregister()
	}
	d.unregister = nil
	if d.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := d.metricsServer.Stop(ctx); err != nil {
			logger.WithError(err).Error("error stopping metrics server")
		}
		cancel()
	}

	if err := removePIDFile(d.pidFile); err != nil {
		logger.WithError(err).Error("error removing PID file")
	}

	d.cancel()
	if d.sigChan != nil {
		signal.Stop(d.sigChan)
	}
	logger.Info("fastdrop stopped")
}

// Run blocks until SIGINT, SIGTERM, TriggerShutdown or cancellation. SIGHUP
// reloads the rules.
func (d *Daemon) Run() error {
	d.sigChan = make(chan os.Signal, 1)
	signal.Notify(d.sigChan, syscall.SIGTERM, syscall.SIGINT, syscall.SIGHUP)

	log.GetLogger().Info("running, waiting for signals")
	for {
		select {
		case sig := <-d.sigChan:
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				log.GetLogger().WithField("signal", sig.String()).Info("received shutdown signal")
				d.Stop()
				return nil
			case syscall.SIGHUP:
				log.GetLogger().Info("received reload signal")
				if err := d.Reload(); err != nil {
					log.GetLogger().WithError(err).Error("reload failed, previous rules stay active")
				}
			}

		case <-d.shutdownChan:
			log.GetLogger().Info("shutdown triggered")
			d.Stop()
			return nil

		case <-d.ctx.Done():
			d.Stop()
			return d.ctx.Err()
		}
	}
}

// TriggerShutdown asks Run to shut down.
func (d *Daemon) TriggerShutdown() {
	select {
	case d.shutdownChan <- struct{}{}:
	default:
	}
}

// Reload re-reads the configuration file for the log settings and the rule
// path, then replaces the rule set: the workers are stopped, the new set is
// installed and the workers are launched again. If the rule file does not
// load, the workers keep running with the previous set.
func (d *Daemon) Reload() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped || d.controller == nil {
		return errors.New("daemon is not running")
	}
	logger := log.GetLogger()

	if d.configPath != "" {
		if cfg, err := config.Load(d.configPath); err != nil {
			logger.WithError(err).Warn("config reload failed, keeping previous settings")
		} else {
			d.applyReloadable(cfg)
		}
	}

	rs, err := filter.LoadFile(d.config.Rules.Path)
	if err != nil {
		metrics.RuleReloadsTotal.WithLabelValues(reloadFailure).Inc()
		return fmt.Errorf("failed to reload rules from %s: %w", d.config.Rules.Path, err)
	}

	d.controller.Stop()
	d.engine.Install(rs)
	metrics.RulesActive.Set(float64(len(rs)))
	if err := d.controller.Launch(); err != nil {
		metrics.RuleReloadsTotal.WithLabelValues(reloadFailure).Inc()
		return fmt.Errorf("failed to relaunch workers: %w", err)
	}

	metrics.RuleReloadsTotal.WithLabelValues(reloadSuccess).Inc()
	logger.WithField("rules", len(rs)).Info("rules reloaded")
	return nil
}

// applyReloadable takes the log settings and rule path from cfg. Everything
// else needs a restart.
func (d *Daemon) applyReloadable(cfg *config.Config) {
	logger := log.GetLogger()
	if err := log.Init(cfg.Log); err != nil {
		logger.WithError(err).Error("failed to reinitialize logging")
	} else {
		d.config.Log = cfg.Log
	}
	d.config.Rules = cfg.Rules

	var restart []string
	if cfg.Port != d.config.Port {
		restart = append(restart, "port")
	}
	if cfg.Pool != d.config.Pool {
		restart = append(restart, "pool")
	}
	if cfg.Workers != d.config.Workers {
		restart = append(restart, "workers")
	}
	if cfg.Metrics != d.config.Metrics {
		restart = append(restart, "metrics")
	}
	if len(restart) > 0 {
		logger.WithField("sections", restart).Warn("configuration changes need a restart")
	}
}

// Stats returns the worker counters.
func (d *Daemon) Stats() pipeline.Stats {
	if d.controller == nil {
		return pipeline.Stats{}
	}
	return d.controller.Stats()
}

// Rules returns the active rule set.
func (d *Daemon) Rules() filter.RuleSet {
	return d.engine.Rules()
}
