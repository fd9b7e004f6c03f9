// Package log provides the agent's leveled logger, backed by logrus.
package log

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"firestige.xyz/fastdrop/internal/config"
)

type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	Fatal(args ...interface{})
	Fatalf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsTraceEnabled() bool
	IsDebugEnabled() bool
}

const (
	defaultPattern = "%time [%level] %field %msg\n"
	defaultTime    = "2006-01-02 15:04:05.000"
)

var logger atomic.Pointer[entryLogger]

var (
	outputMu sync.Mutex
	output   *MultiWriter // Output of the logger installed by Init
)

func init() {
	l := logrus.New()
	l.SetFormatter(&formatter{pattern: defaultPattern, time: defaultTime})
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	logger.Store(&entryLogger{logrus.NewEntry(l)})
}

// GetLogger returns the process logger. It is usable before Init with
// info level output to stdout.
func GetLogger() Logger {
	return logger.Load()
}

// Init replaces the process logger according to cfg and closes the log
// files of the logger it replaces.
func Init(cfg config.LogConfig) error {
	l, err := newLogrus(cfg)
	if err != nil {
		return err
	}

	outputMu.Lock()
	defer outputMu.Unlock()
	logger.Store(&entryLogger{logrus.NewEntry(l)})
	prev := output
	output, _ = l.Out.(*MultiWriter)
	if prev != nil {
		if err := prev.Close(); err != nil {
			GetLogger().WithError(err).Warn("failed to close previous log output")
		}
	}
	return nil
}

func newLogrus(cfg config.LogConfig) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	pattern, timeLayout := cfg.Pattern, cfg.Time
	if pattern == "" {
		pattern = defaultPattern
	}
	if timeLayout == "" {
		timeLayout = defaultTime
	}

	out := NewMultiWriter().Add(os.Stdout)
	if cfg.File.Enabled {
		if cfg.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(cfg.File)
	}

	l := logrus.New()
	l.SetFormatter(&formatter{pattern: pattern, time: timeLayout})
	l.SetLevel(level)
	l.SetOutput(out)
	return l, nil
}
