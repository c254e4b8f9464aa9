package cmd

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/vsbench/config"
	"github.com/dshills/vsbench/core"
	"github.com/dshills/vsbench/workload"
)

func parseRunFlags(t *testing.T, args ...string) *viper.Viper {
	t.Helper()
	f := pflag.NewFlagSet("run", pflag.ContinueOnError)
	addRunFlags(f)
	f.String("log-level", "", "")
	require.NoError(t, f.Parse(args))

	v := viper.New()
	require.NoError(t, bindRunFlags(v, f))
	return v
}

func TestResolveConfigFlagsOverrideFile(t *testing.T) {
	loaded := config.DefaultConfig()
	loaded.Scenario.Index.Name = "from_file"
	loaded.Scenario.Search.K = 7

	v := parseRunFlags(t,
		"--dimension=16",
		"--metadata",
		"--filters=none,or",
		"--seed=42",
		"--naming=snake",
		"--mock-latency=20ms",
		"--log-level=debug",
	)

	cfg, err := resolveConfig(v, loaded)
	require.NoError(t, err)

	s := cfg.Scenario
	assert.Equal(t, 16, s.Index.Dimension)
	assert.True(t, s.Workload.WithMetadata)
	assert.Equal(t, []string{workload.FilterNone, workload.FilterOr}, s.Search.Filters)
	require.NotNil(t, s.Workload.Seed)
	assert.Equal(t, int64(42), *s.Workload.Seed)
	assert.Equal(t, "snake", string(s.Client.Wire.Naming))
	assert.Equal(t, 20*time.Millisecond, cfg.Server.Latency)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// Values without a flag keep the loaded config
	assert.Equal(t, "from_file", s.Index.Name)
	assert.Equal(t, 7, s.Search.K)
	assert.Equal(t, loaded.Scenario.Client.RequestTimeout, s.Client.RequestTimeout)
	assert.Equal(t, loaded.Scenario.Pool.AcquireTimeout, s.Pool.AcquireTimeout)
	assert.Equal(t, loaded.Persistence.Timeout, cfg.Persistence.Timeout)
}

func TestResolveConfigUnsetFlagsKeepFile(t *testing.T) {
	loaded := config.DefaultConfig()
	loaded.Scenario.Cleanup = false

	cfg, err := resolveConfig(parseRunFlags(t), loaded)
	require.NoError(t, err)

	// Flag defaults never replace loaded values
	assert.False(t, cfg.Scenario.Cleanup)
	assert.Nil(t, cfg.Scenario.Workload.Seed)
	assert.Equal(t, loaded.Scenario, cfg.Scenario)
}

func TestResolveConfigRejectsInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"zero dimension", []string{"--dimension=0"}},
		{"filters without metadata", []string{"--filters=all"}},
		{"bad format", []string{"--format=xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := resolveConfig(parseRunFlags(t, tt.args...), config.DefaultConfig())
			require.Error(t, err)
			assert.True(t, core.IsConfigError(err))
		})
	}
}
