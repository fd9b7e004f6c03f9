// Package core defines sentinel errors.
package core

import "errors"

// Sentinel errors, wrapped with %w by callers and matched with errors.Is.
var (
	// Frame decoding errors
	ErrTooShort           = errors.New("fastdrop: frame too short")
	ErrTruncatedExtension = errors.New("fastdrop: ipv6 extension header exceeds frame")
	ErrExtChainTooLong    = errors.New("fastdrop: ipv6 extension header chain too long")

	// Rule errors
	ErrInvalidRuleDocument = errors.New("fastdrop: invalid rule document")

	// NIC and buffer pool errors
	ErrPoolExhausted   = errors.New("fastdrop: buffer pool exhausted")
	ErrDoubleRelease   = errors.New("fastdrop: buffer released twice")
	ErrUnknownBuffer   = errors.New("fastdrop: buffer does not belong to pool")
	ErrQueueOutOfRange = errors.New("fastdrop: receive queue out of range")
	ErrNotConfigured   = errors.New("fastdrop: provider not configured")

	// Lifecycle errors
	ErrNotReady       = errors.New("fastdrop: environment bring-up has not completed")
	ErrAlreadyRunning = errors.New("fastdrop: workers already running")
	ErrUnsupported    = errors.New("fastdrop: not supported on this platform")

	// Configuration errors
	ErrConfigInvalid = errors.New("fastdrop: invalid configuration")
)
