package dict

import (
	"fmt"
	"math/rand"
	"os"
)

const (
	// InitialSize is the size of the first bucket array of every Dict
	InitialSize = 4
	// DefaultForceResizeRatio is the load factor above which a Dict grows even if resizing is disabled
	DefaultForceResizeRatio = 5
	// DefaultMaxTableSize caps the number of buckets of one generation
	DefaultMaxTableSize = 1 << 32
)

// Config is the runtime context shared by a group of dictionaries.
// It replaces process wide flags so that independent groups can be configured separately.
// Dictionaries sharing a Config must be driven by a single goroutine.
type Config struct {
	resizeEnabled bool

	// ForceResizeRatio overrides a disabled resize when used/size exceeds it
	ForceResizeRatio uint64
	// HashSeed seeds the hash functions built by StringHash and CaseInsensitiveHash
	HashSeed uint64
	// MaxTableSize is the largest bucket array that may be allocated, larger requests go to OnOOM
	MaxTableSize uint64
	// OnOOM is invoked before an allocation request is abandoned
	OnOOM func(size uint64)
	// OnViolation is invoked when a caller breaks the dict contract, e.g. mutating under an unsafe iterator
	OnViolation func(msg string)
}

// NewConfig creates a Config with resizing enabled and a random hash seed
func NewConfig() *Config {
	return &Config{
		resizeEnabled:    true,
		ForceResizeRatio: DefaultForceResizeRatio,
		HashSeed:         rand.Uint64(),
		MaxTableSize:     DefaultMaxTableSize,
		OnOOM:            defaultOOMHandler,
		OnViolation:      defaultViolationHandler,
	}
}

// DefaultConfig is used by dictionaries created with a nil Config
var DefaultConfig = NewConfig()

// EnableResize allows dictionaries to grow whenever the load factor reaches 1
func (cfg *Config) EnableResize() {
	cfg.resizeEnabled = true
}

// DisableResize stops load factor driven growth until ForceResizeRatio is exceeded.
// Used while a background save is running to avoid dirtying shared pages.
func (cfg *Config) DisableResize() {
	cfg.resizeEnabled = false
}

// ResizeEnabled returns the current resize policy
func (cfg *Config) ResizeEnabled() bool {
	return cfg.resizeEnabled
}

func (cfg *Config) oom(size uint64) {
	if cfg.OnOOM != nil {
		cfg.OnOOM(size)
	}
}

func (cfg *Config) violation(msg string) {
	if cfg.OnViolation != nil {
		cfg.OnViolation(msg)
		return
	}
	defaultViolationHandler(msg)
}

func defaultOOMHandler(size uint64) {
	_, _ = fmt.Fprintf(os.Stderr, "dict: out of memory allocating %d buckets\n", size)
	os.Exit(1)
}

// AssertionError is the panic value of the default violation handler
type AssertionError struct {
	Msg string
}

func (e *AssertionError) Error() string {
	return "dict assertion failed: " + e.Msg
}

func defaultViolationHandler(msg string) {
	panic(&AssertionError{Msg: msg})
}
