// Package metrics implements Prometheus metrics.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Verdict label values.
const (
	VerdictAllowed   = "allowed"
	VerdictBlocked   = "blocked"
	VerdictMalformed = "malformed"
)

var (
	// FramesTotal counts frames handled by each worker, by verdict
	FramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastdrop_frames_total",
			Help: "Total number of frames handled by workers",
		},
		[]string{"worker", "verdict"},
	)

	// EmptyPollsTotal counts polls that returned no frames
	EmptyPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastdrop_empty_polls_total",
			Help: "Total number of receive polls that returned no frames",
		},
		[]string{"worker"},
	)

	// BackoffSleepsTotal counts idle sleeps taken after a run of empty polls
	BackoffSleepsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastdrop_backoff_sleeps_total",
			Help: "Total number of idle sleeps taken by workers",
		},
		[]string{"worker"},
	)

	// BurstFrames tracks how full non-empty bursts are
	BurstFrames = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "fastdrop_burst_frames",
			Help:    "Number of frames per non-empty receive burst",
			Buckets: prometheus.ExponentialBuckets(1, 2, 9), // 1, 2, 4, ..., 256
		},
	)

	// RulesActive is the size of the installed rule set
	RulesActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastdrop_rules_active",
			Help: "Number of rules in the active rule set",
		},
	)

	// RuleReloadsTotal counts rule reload attempts by result
	RuleReloadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fastdrop_rule_reloads_total",
			Help: "Total number of rule reload attempts",
		},
		[]string{"result"},
	)

	// WorkersRunning is the number of launched worker loops that have not exited
	WorkersRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "fastdrop_workers_running",
			Help: "Number of running worker loops",
		},
	)
)

// WorkerCounters are the per-worker series resolved once at launch so the
// poll loop never does a label lookup.
type WorkerCounters struct {
	Allowed       prometheus.Counter
	Blocked       prometheus.Counter
	Malformed     prometheus.Counter
	EmptyPolls    prometheus.Counter
	BackoffSleeps prometheus.Counter
	Burst         prometheus.Observer
}

// ForWorker returns the counters labelled with worker id.
func ForWorker(id int) *WorkerCounters {
	w := strconv.Itoa(id)
	return &WorkerCounters{
		Allowed:       FramesTotal.WithLabelValues(w, VerdictAllowed),
		Blocked:       FramesTotal.WithLabelValues(w, VerdictBlocked),
		Malformed:     FramesTotal.WithLabelValues(w, VerdictMalformed),
		EmptyPolls:    EmptyPollsTotal.WithLabelValues(w),
		BackoffSleeps: BackoffSleepsTotal.WithLabelValues(w),
		Burst:         BurstFrames,
	}
}

// PoolStatsFunc reports buffer pool occupancy.
type PoolStatsFunc func() (free, inUse, doubleReleases uint64)

// RegisterPool exposes buffer pool occupancy through reg. The returned
// function unregisters the collectors.
func RegisterPool(reg prometheus.Registerer, stats PoolStatsFunc) (func(), error) {
	collectors := []prometheus.Collector{
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fastdrop_pool_free_buffers",
			Help: "Number of buffers available in the pool",
		}, func() float64 { free, _, _ := stats(); return float64(free) }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "fastdrop_pool_in_use_buffers",
			Help: "Number of buffers held by workers or the receive path",
		}, func() float64 { _, inUse, _ := stats(); return float64(inUse) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fastdrop_pool_double_releases_total",
			Help: "Total number of rejected double releases",
		}, func() float64 { _, _, dr := stats(); return float64(dr) }),
	}

	return registerAll(reg, collectors)
}

// RxStatsFunc reports receive counters of the NIC provider.
type RxStatsFunc func() (received, kernelDrops, noBuffer, rxErrors uint64)

// RegisterRx exposes provider receive counters through reg. The returned
// function unregisters the collectors.
func RegisterRx(reg prometheus.Registerer, stats RxStatsFunc) (func(), error) {
	collectors := []prometheus.Collector{
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fastdrop_rx_received_total",
			Help: "Total number of frames seen by the receive queues",
		}, func() float64 { rx, _, _, _ := stats(); return float64(rx) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fastdrop_rx_kernel_drops_total",
			Help: "Total number of frames dropped by the kernel for lack of ring space",
		}, func() float64 { _, drops, _, _ := stats(); return float64(drops) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fastdrop_rx_no_buffer_total",
			Help: "Total number of frames lost for lack of a pool buffer",
		}, func() float64 { _, _, nobuf, _ := stats(); return float64(nobuf) }),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "fastdrop_rx_errors_total",
			Help: "Total number of receive errors",
		}, func() float64 { _, _, _, errs := stats(); return float64(errs) }),
	}
	return registerAll(reg, collectors)
}

func registerAll(reg prometheus.Registerer, collectors []prometheus.Collector) (func(), error) {
	for i, c := range collectors {
		if err := reg.Register(c); err != nil {
			for _, done := range collectors[:i] {
				reg.Unregister(done)
			}
			return nil, err
		}
	}
	return func() {
		for _, c := range collectors {
			reg.Unregister(c)
		}
	}, nil
}
