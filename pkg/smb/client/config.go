package client

import (
	"time"

	"github.com/marmos91/dittosmb/pkg/smb/handle"
	"github.com/marmos91/dittosmb/pkg/smb/wire"
)

// Default tunables.
const (
	DefaultRequestTimeout      = 30 * time.Second
	DefaultMaxReplays          = 3
	DefaultMaxIOSize           = 1 << 20
	DefaultDurableTimeout      = 60 * time.Second
	DefaultSecondaryStream     = "AFP_AfpInfo"
	DefaultSecondaryStreamSize = 60
	DefaultAsyncDepth          = 8
	DefaultCreditLowWater      = 16
)

// Config holds the engine tunables of a Session.
type Config struct {
	// RequestTimeout bounds every compound exchange. Expiry is terminal.
	RequestTimeout time.Duration

	// MaxReplays is the number of times a compound is rebuilt and resent
	// after the transport reconnected under it.
	MaxReplays int

	// CloseTimeout bounds the fallback CLOSE of a leaked handle.
	CloseTimeout time.Duration

	// MaxReadSize and MaxWriteSize cap the payload of one READ or WRITE.
	MaxReadSize  uint32
	MaxWriteSize uint32

	// DirectoryLeases requests a read/handle lease on opened directories.
	DirectoryLeases bool

	// DurableHandles requests durable handles for kept opens that ask
	// for them.
	DurableHandles bool
	DurableTimeout time.Duration

	// SecondaryStream is the named stream prefetched with directory
	// metadata, read up to SecondaryStreamSize bytes.
	SecondaryStream     string
	SecondaryStreamSize uint32

	// AsyncDepth is the number of compounds a prefetch batch keeps in
	// flight. Below CreditLowWater available credits it drops to one.
	AsyncDepth     int
	CreditLowWater int
}

// DefaultConfig returns the default tunables.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:      DefaultRequestTimeout,
		MaxReplays:          DefaultMaxReplays,
		CloseTimeout:        handle.DefaultCloseTimeout,
		MaxReadSize:         DefaultMaxIOSize,
		MaxWriteSize:        DefaultMaxIOSize,
		DirectoryLeases:     true,
		DurableHandles:      true,
		DurableTimeout:      DefaultDurableTimeout,
		SecondaryStream:     DefaultSecondaryStream,
		SecondaryStreamSize: DefaultSecondaryStreamSize,
		AsyncDepth:          DefaultAsyncDepth,
		CreditLowWater:      DefaultCreditLowWater,
	}
}

// RequiredCredits returns the charge of the largest compound a session
// builds with c: CREATE, the longest READ or WRITE chain and CLOSE. A
// transport window below it cannot send that compound.
func (c Config) RequiredCredits() int {
	size := max(c.MaxReadSize, c.MaxWriteSize)
	if size == 0 {
		size = DefaultMaxIOSize
	}
	return 2 + maxIOChunks*int(wire.PayloadCharge(int(size)))
}

// applyDefaults fills zero values. MaxReplays and CreditLowWater keep a
// zero since it is meaningful for both.
func (c *Config) applyDefaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.MaxReplays < 0 {
		c.MaxReplays = 0
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = handle.DefaultCloseTimeout
	}
	if c.MaxReadSize == 0 {
		c.MaxReadSize = DefaultMaxIOSize
	}
	if c.MaxWriteSize == 0 {
		c.MaxWriteSize = DefaultMaxIOSize
	}
	if c.DurableTimeout <= 0 {
		c.DurableTimeout = DefaultDurableTimeout
	}
	if c.SecondaryStreamSize == 0 {
		c.SecondaryStreamSize = DefaultSecondaryStreamSize
	}
	if c.AsyncDepth <= 0 {
		c.AsyncDepth = DefaultAsyncDepth
	}
	if c.CreditLowWater < 0 {
		c.CreditLowWater = 0
	}
}
