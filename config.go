package reactor

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// yamlOptions mirrors Options with yaml-friendly duration fields, since
// time.Duration does not round-trip through yaml.v3 as "1ms" by default
// without a custom type.
type yamlOptions struct {
	NumFibers              int    `yaml:"num_fibers"`
	FiberStackSize         int    `yaml:"fiber_stack_size"`
	TimerGranularity       string `yaml:"timer_granularity"`
	HoggerWarningThreshold string `yaml:"hogger_warning_threshold"`
	HangDetectorTimeout    string `yaml:"hang_detector_timeout"`
	NumTimers              int    `yaml:"num_timers"`
	GCInterval             string `yaml:"gc_interval"`
	RegisterDefaultIdler   *bool  `yaml:"register_default_idler"`
	MetricsEnabled         bool   `yaml:"metrics_enabled"`
}

// LoadOptionsYAML decodes an Options value from YAML, starting from
// DefaultOptions so a config file only needs to name the fields it
// overrides. This lets an embedding application externalise reactor
// tuning (NumFibers, TimerGranularity, HangDetectorTimeout, ...) instead of
// hard-coding Option calls.
func LoadOptionsYAML(r io.Reader) (Options, error) {
	cfg := DefaultOptions()

	var raw yamlOptions
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		if err == io.EOF {
			return cfg, nil
		}
		return Options{}, err
	}

	if raw.NumFibers != 0 {
		cfg.NumFibers = raw.NumFibers
	}
	if raw.FiberStackSize != 0 {
		cfg.FiberStackSize = raw.FiberStackSize
	}
	if raw.TimerGranularity != "" {
		d, err := parseDurationField("timer_granularity", raw.TimerGranularity)
		if err != nil {
			return Options{}, err
		}
		cfg.TimerGranularity = d
	}
	if raw.HoggerWarningThreshold != "" {
		d, err := parseDurationField("hogger_warning_threshold", raw.HoggerWarningThreshold)
		if err != nil {
			return Options{}, err
		}
		cfg.HoggerWarningThreshold = d
	}
	if raw.HangDetectorTimeout != "" {
		d, err := parseDurationField("hang_detector_timeout", raw.HangDetectorTimeout)
		if err != nil {
			return Options{}, err
		}
		cfg.HangDetectorTimeout = d
	}
	if raw.NumTimers != 0 {
		cfg.NumTimers = raw.NumTimers
	}
	if raw.GCInterval != "" {
		d, err := parseDurationField("gc_interval", raw.GCInterval)
		if err != nil {
			return Options{}, err
		}
		cfg.GCInterval = d
	}
	if raw.RegisterDefaultIdler != nil {
		cfg.RegisterDefaultIdler = *raw.RegisterDefaultIdler
	}
	cfg.MetricsEnabled = raw.MetricsEnabled

	return cfg, nil
}

// LoadOptionsYAMLFile is a convenience wrapper around LoadOptionsYAML for
// the common case of configuration living in a file on disk.
func LoadOptionsYAMLFile(path string) (Options, error) {
	f, err := os.Open(path)
	if err != nil {
		return Options{}, err
	}
	defer f.Close()
	return LoadOptionsYAML(f)
}

func parseDurationField(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("reactor: config field %q: %w", field, err)
	}
	return d, nil
}
