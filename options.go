// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package reactor

import "time"

// Options holds the configuration a Reactor is built with. The zero value
// is not valid. Setup builds one from DefaultOptions with the given Option
// values applied; LoadOptionsYAML decodes one from YAML.
type Options struct {
	// NumFibers is the upper bound on concurrent fibers (including the
	// main and idle fibers).
	NumFibers int `yaml:"num_fibers"`

	// FiberStackSize is the size, in bytes, of each fiber's slab in the
	// guard-paged region, rounded up to the page size. The whole slab is
	// the fiber's FLS area; the exception buffer and stack descriptor are
	// not stored in it.
	FiberStackSize int `yaml:"fiber_stack_size"`

	// TimerGranularity is the level-0 bin width of the cascading timer
	// queue.
	TimerGranularity time.Duration `yaml:"timer_granularity"`

	// HoggerWarningThreshold is the maximum time a fiber may run
	// uninterrupted before switchToNext logs a hogger warning.
	HoggerWarningThreshold time.Duration `yaml:"hogger_warning_threshold"`

	// HangDetectorTimeout, if non-zero, installs a hang detector that
	// aborts the process if a non-idle fiber runs longer than this
	// without yielding.
	HangDetectorTimeout time.Duration `yaml:"hang_detector_timeout"`

	// NumTimers is the pool size for TimedCallback nodes.
	NumTimers int `yaml:"num_timers"`

	// GCInterval is the period at which the reactor, at a ready-queue-empty
	// safe point, asks the Go runtime to run a GC cycle.
	GCInterval time.Duration `yaml:"gc_interval"`

	// RegisterDefaultIdler installs the poller as the reactor's only idle
	// callback, so an otherwise-empty ready queue blocks in the poller's
	// Poll call.
	RegisterDefaultIdler bool `yaml:"register_default_idler"`

	// MetricsEnabled attaches a Metrics collector to the reactor.
	MetricsEnabled bool `yaml:"metrics_enabled"`

	// Logger receives structured diagnostics (hogger warnings, hang-detector
	// kills, fault-handler dumps, poller errors). Defaults to a no-op
	// logger, in which case Setup uses the process-wide logger set by
	// SetStructuredLogger; set per reactor via WithLogger.
	Logger Logger `yaml:"-"`
}

// DefaultOptions returns the documented default configuration.
func DefaultOptions() Options {
	return Options{
		NumFibers:              256,
		FiberStackSize:         32 * 1024,
		TimerGranularity:       time.Millisecond,
		HoggerWarningThreshold: 200 * time.Millisecond,
		HangDetectorTimeout:    0,
		NumTimers:              10_000,
		GCInterval:             30 * time.Second,
		RegisterDefaultIdler:   true,
		MetricsEnabled:         false,
		Logger:                 NewNoOpLogger(),
	}
}

// Option configures Options during Setup.
type Option interface {
	apply(*Options) error
}

type optionFunc func(*Options) error

func (f optionFunc) apply(o *Options) error { return f(o) }

// WithNumFibers overrides the fiber table size.
func WithNumFibers(n int) Option {
	return optionFunc(func(o *Options) error {
		if n <= 2 {
			return &AssertionFailure{Message: "num_fibers must be greater than 2 (slots 0 and 1 are reserved)"}
		}
		o.NumFibers = n
		return nil
	})
}

// WithFiberStackSize overrides the per-fiber control-block slab size.
func WithFiberStackSize(bytes int) Option {
	return optionFunc(func(o *Options) error {
		if bytes <= 0 {
			return &AssertionFailure{Message: "fiber_stack_size must be positive"}
		}
		o.FiberStackSize = bytes
		return nil
	})
}

// WithTimerGranularity overrides the CTQ level-0 bin width.
func WithTimerGranularity(d time.Duration) Option {
	return optionFunc(func(o *Options) error {
		if d <= 0 {
			return &AssertionFailure{Message: "timer_granularity must be positive"}
		}
		o.TimerGranularity = d
		return nil
	})
}

// WithHoggerWarningThreshold overrides the hogger-warning threshold.
func WithHoggerWarningThreshold(d time.Duration) Option {
	return optionFunc(func(o *Options) error {
		o.HoggerWarningThreshold = d
		return nil
	})
}

// WithHangDetectorTimeout enables the hang detector with the given timeout.
// Zero disables it.
func WithHangDetectorTimeout(d time.Duration) Option {
	return optionFunc(func(o *Options) error {
		o.HangDetectorTimeout = d
		return nil
	})
}

// WithNumTimers overrides the TimedCallback pool size.
func WithNumTimers(n int) Option {
	return optionFunc(func(o *Options) error {
		if n <= 0 {
			return &AssertionFailure{Message: "num_timers must be positive"}
		}
		o.NumTimers = n
		return nil
	})
}

// WithGCInterval overrides the GC-hook period. Zero disables the hook.
func WithGCInterval(d time.Duration) Option {
	return optionFunc(func(o *Options) error {
		o.GCInterval = d
		return nil
	})
}

// WithRegisterDefaultIdler controls whether the poller is installed as the
// sole idle callback.
func WithRegisterDefaultIdler(enabled bool) Option {
	return optionFunc(func(o *Options) error {
		o.RegisterDefaultIdler = enabled
		return nil
	})
}

// WithMetrics enables the runtime Metrics collector.
func WithMetrics(enabled bool) Option {
	return optionFunc(func(o *Options) error {
		o.MetricsEnabled = enabled
		return nil
	})
}

// WithLogger installs a structured Logger for reactor diagnostics.
func WithLogger(l Logger) Option {
	return optionFunc(func(o *Options) error {
		if l == nil {
			l = NewNoOpLogger()
		}
		o.Logger = l
		return nil
	})
}

// resolveOptions applies Option values over DefaultOptions.
func resolveOptions(opts []Option) (Options, error) {
	cfg := DefaultOptions()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt.apply(&cfg); err != nil {
			return Options{}, err
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = NewNoOpLogger()
	}
	return cfg, nil
}
