package reactor

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOptionsYAMLOverridesDefaults(t *testing.T) {
	yamlDoc := `
num_fibers: 64
timer_granularity: 5ms
hang_detector_timeout: 250ms
register_default_idler: false
metrics_enabled: true
`
	opts, err := LoadOptionsYAML(strings.NewReader(yamlDoc))
	require.NoError(t, err)

	assert.Equal(t, 64, opts.NumFibers)
	assert.Equal(t, 5*time.Millisecond, opts.TimerGranularity)
	assert.Equal(t, 250*time.Millisecond, opts.HangDetectorTimeout)
	assert.False(t, opts.RegisterDefaultIdler)
	assert.True(t, opts.MetricsEnabled)

	// Fields left unset in the document fall back to DefaultOptions.
	assert.Equal(t, DefaultOptions().FiberStackSize, opts.FiberStackSize)
}

func TestLoadOptionsYAMLEmptyReturnsDefaults(t *testing.T) {
	opts, err := LoadOptionsYAML(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, DefaultOptions().NumFibers, opts.NumFibers)
}

func TestLoadOptionsYAMLRejectsBadDuration(t *testing.T) {
	_, err := LoadOptionsYAML(strings.NewReader("timer_granularity: not-a-duration\n"))
	assert.Error(t, err)
}
