package pipeline

import (
	"time"

	"firestige.xyz/fastdrop/internal/core/decoder"
	"firestige.xyz/fastdrop/internal/nic"
)

// Builder assembles a Controller with optional collaborators.
type Builder struct {
	cfg  Config
	deps dependencies
}

// NewBuilder creates a builder with default worker settings.
func NewBuilder() *Builder {
	return &Builder{}
}

// WithConfig sets the worker settings.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.cfg = cfg
	return b
}

// WithProvider sets the receive provider.
func (b *Builder) WithProvider(p nic.Provider) *Builder {
	b.deps.provider = p
	return b
}

// WithDecoder replaces the standard frame decoder.
func (b *Builder) WithDecoder(d decoder.Decoder) *Builder {
	b.deps.decoder = d
	return b
}

// WithMatcher sets the rule matcher.
func (b *Builder) WithMatcher(m Matcher) *Builder {
	b.deps.matcher = m
	return b
}

// WithAcceptor sets where allowed frames go.
func (b *Builder) WithAcceptor(a Acceptor) *Builder {
	b.deps.acceptor = a
	return b
}

// WithBlockRecorder sets who is told about blocked packets.
func (b *Builder) WithBlockRecorder(r BlockRecorder) *Builder {
	b.deps.blocks = r
	return b
}

// WithReadiness sets the bring-up result consulted by Launch.
func (b *Builder) WithReadiness(r Readiness) *Builder {
	b.deps.readiness = r
	return b
}

// WithSleep replaces time.Sleep for the idle backoff.
func (b *Builder) WithSleep(sleep func(time.Duration)) *Builder {
	b.deps.sleep = sleep
	return b
}

// Build creates the controller.
func (b *Builder) Build() *Controller {
	return newController(b.cfg, b.deps)
}
