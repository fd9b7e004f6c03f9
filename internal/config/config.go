// Package config handles agent configuration loading using viper.
package config

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/viper"

	"firestige.xyz/fastdrop/internal/core"
)

// Config is the agent's static configuration. Maps to the `fastdrop:` root
// key in YAML.
type Config struct {
	Port        PortConfig        `mapstructure:"port"`
	Pool        PoolConfig        `mapstructure:"pool"`
	Workers     WorkersConfig     `mapstructure:"workers"`
	Rules       RulesConfig       `mapstructure:"rules"`
	Environment EnvironmentConfig `mapstructure:"environment"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
}

// ─── Port ───

// Provider names accepted in port.provider.
const (
	ProviderAFPacket = "afpacket"
	ProviderPcap     = "pcap"
)

// PortConfig selects the NIC provider and its receive queues.
type PortConfig struct {
	Interface    string        `mapstructure:"interface"`
	Queues       int           `mapstructure:"queues"`
	Provider     string        `mapstructure:"provider"`  // afpacket | pcap
	PcapFile     string        `mapstructure:"pcap_file"` // Required for provider=pcap
	SnapLen      int           `mapstructure:"snap_len"`
	RingSizeMB   int           `mapstructure:"ring_size_mb"` // Per queue
	BlockTimeout time.Duration `mapstructure:"block_timeout"`
	PollTimeout  time.Duration `mapstructure:"poll_timeout"` // 0 = non-blocking receive
	FanoutID     uint16        `mapstructure:"fanout_id"`
	KernelFilter bool          `mapstructure:"kernel_filter"` // Drop non-IP frames in the kernel
}

// PoolConfig sizes the frame buffer pool.
type PoolConfig struct {
	Size       int `mapstructure:"size"`
	Cache      int `mapstructure:"cache"` // Per-queue cache
	BufferSize int `mapstructure:"buffer_size"`
}

// ─── Workers ───

// WorkersConfig controls the poll loops.
type WorkersConfig struct {
	Count         int           `mapstructure:"count"` // 0 = one per CPU minus the control CPU, at most one per queue
	BurstSize     int           `mapstructure:"burst_size"`
	IdleThreshold int           `mapstructure:"idle_threshold"` // Empty polls before sleeping
	IdleSleep     time.Duration `mapstructure:"idle_sleep"`
	PinCPUs       bool          `mapstructure:"pin_cpus"`
	ControlCPU    int           `mapstructure:"control_cpu"`
}

// RulesConfig locates the rule file.
type RulesConfig struct {
	Path string `mapstructure:"path"`
}

// EnvironmentConfig switches the individual bring-up checks.
type EnvironmentConfig struct {
	RequireRoot      bool   `mapstructure:"require_root"`
	RequireHugepages bool   `mapstructure:"require_hugepages"`
	SkipPortSetup    bool   `mapstructure:"skip_port_setup"`
	MeminfoPath      string `mapstructure:"meminfo_path"`
	MountsPath       string `mapstructure:"mounts_path"`
}

// ─── Log ───

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"` // trace / debug / info / warn / error
	Pattern string           `mapstructure:"pattern"`
	Time    string           `mapstructure:"time"`
	File    FileOutputConfig `mapstructure:"file"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// ─── Metrics ───

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// ─── Loading ───

type configRoot struct {
	Fastdrop Config `mapstructure:"fastdrop"`
}

// Load loads configuration from file. An empty path yields the defaults with
// environment overrides applied. Env vars use the FASTDROP_ prefix, e.g.
// FASTDROP_WORKERS_COUNT.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Key "fastdrop.log.level" maps to env "FASTDROP_LOG_LEVEL".
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Fastdrop

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Port defaults
	v.SetDefault("fastdrop.port.interface", "eth0")
	v.SetDefault("fastdrop.port.queues", 1)
	v.SetDefault("fastdrop.port.provider", ProviderAFPacket)
	v.SetDefault("fastdrop.port.pcap_file", "")
	v.SetDefault("fastdrop.port.snap_len", 2048)
	v.SetDefault("fastdrop.port.ring_size_mb", 64)
	v.SetDefault("fastdrop.port.block_timeout", "10ms")
	v.SetDefault("fastdrop.port.poll_timeout", "0s")
	v.SetDefault("fastdrop.port.fanout_id", 42)
	v.SetDefault("fastdrop.port.kernel_filter", false)

	// Pool defaults
	v.SetDefault("fastdrop.pool.size", 8192)
	v.SetDefault("fastdrop.pool.cache", 250)
	v.SetDefault("fastdrop.pool.buffer_size", 2048)

	// Worker defaults
	v.SetDefault("fastdrop.workers.count", 0)
	v.SetDefault("fastdrop.workers.burst_size", 32)
	v.SetDefault("fastdrop.workers.idle_threshold", 100)
	v.SetDefault("fastdrop.workers.idle_sleep", "100us")
	v.SetDefault("fastdrop.workers.pin_cpus", false)
	v.SetDefault("fastdrop.workers.control_cpu", 0)

	v.SetDefault("fastdrop.rules.path", "/etc/fastdrop/rules.json")

	// Environment defaults
	v.SetDefault("fastdrop.environment.require_root", true)
	v.SetDefault("fastdrop.environment.require_hugepages", false)
	v.SetDefault("fastdrop.environment.skip_port_setup", false)
	v.SetDefault("fastdrop.environment.meminfo_path", "/proc/meminfo")
	v.SetDefault("fastdrop.environment.mounts_path", "/proc/mounts")

	// Log defaults
	v.SetDefault("fastdrop.log.level", "info")
	v.SetDefault("fastdrop.log.pattern", "%time [%level] %field %msg\n")
	v.SetDefault("fastdrop.log.time", "2006-01-02 15:04:05.000")
	v.SetDefault("fastdrop.log.file.enabled", false)
	v.SetDefault("fastdrop.log.file.path", "/var/log/fastdrop/fastdrop.log")
	v.SetDefault("fastdrop.log.file.rotation.max_size_mb", 100)
	v.SetDefault("fastdrop.log.file.rotation.max_age_days", 30)
	v.SetDefault("fastdrop.log.file.rotation.max_backups", 5)
	v.SetDefault("fastdrop.log.file.rotation.compress", true)

	// Metrics defaults
	v.SetDefault("fastdrop.metrics.enabled", true)
	v.SetDefault("fastdrop.metrics.listen", ":9095")
	v.SetDefault("fastdrop.metrics.path", "/metrics")
}

// ValidateAndApplyDefaults validates configuration and resolves runtime
// defaults such as the worker count. Errors wrap core.ErrConfigInvalid.
func (cfg *Config) ValidateAndApplyDefaults() error {
	// ── Log ──
	validLevels := map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return invalid("invalid log level: %s (must be trace/debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.File.Enabled && cfg.Log.File.Path == "" {
		return invalid("log.file.path is required when log.file.enabled=true")
	}

	// ── Port ──
	switch cfg.Port.Provider {
	case ProviderAFPacket:
		if cfg.Port.Interface == "" {
			return invalid("port.interface is required for provider %s", ProviderAFPacket)
		}
	case ProviderPcap:
		if cfg.Port.PcapFile == "" {
			return invalid("port.pcap_file is required for provider %s", ProviderPcap)
		}
	default:
		return invalid("unsupported port.provider: %s (must be afpacket/pcap)", cfg.Port.Provider)
	}
	if cfg.Port.Queues < 1 {
		return invalid("port.queues must be at least 1, got %d", cfg.Port.Queues)
	}
	if cfg.Port.Provider == ProviderAFPacket {
		if cfg.Port.SnapLen < 64 {
			return invalid("port.snap_len must be at least 64, got %d", cfg.Port.SnapLen)
		}
		if cfg.Port.RingSizeMB < 1 {
			return invalid("port.ring_size_mb must be positive, got %d", cfg.Port.RingSizeMB)
		}
		if cfg.Port.BlockTimeout < time.Millisecond {
			return invalid("port.block_timeout must be at least 1ms, got %s", cfg.Port.BlockTimeout)
		}
		if cfg.Port.PollTimeout < 0 {
			return invalid("port.poll_timeout must not be negative, got %s", cfg.Port.PollTimeout)
		}
	}

	// ── Pool ──
	if cfg.Pool.Size < 1 {
		return invalid("pool.size must be positive, got %d", cfg.Pool.Size)
	}
	if cfg.Pool.Cache < 0 || cfg.Pool.Cache > cfg.Pool.Size {
		return invalid("pool.cache must be within [0, pool.size], got %d", cfg.Pool.Cache)
	}
	if cfg.Pool.BufferSize < 64 {
		return invalid("pool.buffer_size must be at least 64, got %d", cfg.Pool.BufferSize)
	}

	// ── Workers ──
	if cfg.Workers.Count < 0 {
		return invalid("workers.count must not be negative, got %d", cfg.Workers.Count)
	}
	if cfg.Workers.Count == 0 {
		cfg.Workers.Count = min(max(1, runtime.NumCPU()-1), cfg.Port.Queues)
	}
	if cfg.Workers.Count > cfg.Port.Queues {
		return invalid("workers.count must not exceed port.queues (%d), got %d", cfg.Port.Queues, cfg.Workers.Count)
	}
	if cfg.Workers.BurstSize < 1 {
		return invalid("workers.burst_size must be positive, got %d", cfg.Workers.BurstSize)
	}
	if cfg.Workers.IdleThreshold < 1 {
		return invalid("workers.idle_threshold must be positive, got %d", cfg.Workers.IdleThreshold)
	}
	if cfg.Workers.IdleSleep < 0 {
		return invalid("workers.idle_sleep must not be negative, got %s", cfg.Workers.IdleSleep)
	}

	// ── Metrics ──
	if cfg.Metrics.Enabled && cfg.Metrics.Listen == "" {
		return invalid("metrics.listen is required when metrics.enabled=true")
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrConfigInvalid, fmt.Sprintf(format, args...))
}
