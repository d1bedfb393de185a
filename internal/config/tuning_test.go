package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestEmptyTuningConfigDefaults(t *testing.T) {
	t.Parallel()
	cfg := EmptyTuningConfig()

	assert.Equal(t, 1.0, cfg.GetToFGain())
	assert.Equal(t, 0.0, cfg.GetIMUDriftCorrection())
	assert.Equal(t, 50.0, cfg.GetPressureThreshold())
	assert.Equal(t, 20.0, cfg.GetFilterCutoffHz())
	assert.Equal(t, 250*time.Millisecond, cfg.GetSampleWindow())
	assert.Equal(t, 0.5, cfg.GetMinWindowFraction())
	assert.Equal(t, 0.85, cfg.GetAnomalyThreshold())
	assert.Equal(t, 32, cfg.GetHeatMapResolution())
	assert.Equal(t, 4, cfg.GetHeatMapWorkers())
	assert.Equal(t, 100*time.Millisecond, cfg.GetCycleBudget())
}

func TestLoadTuningConfig(t *testing.T) {
	t.Parallel()

	t.Run("partial config keeps defaults for omitted fields", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{
			"tof_gain": 1.5,
			"sample_window": "400ms",
			"heatmap_resolution": 64
		}`)

		cfg, err := LoadTuningConfig(path)
		require.NoError(t, err)
		assert.Equal(t, 1.5, cfg.GetToFGain())
		assert.Equal(t, 400*time.Millisecond, cfg.GetSampleWindow())
		assert.Equal(t, 64, cfg.GetHeatMapResolution())
		// Omitted fields fall back.
		assert.Equal(t, 0.85, cfg.GetAnomalyThreshold())
		assert.Equal(t, 100*time.Millisecond, cfg.GetCycleBudget())
	})

	t.Run("rejects non-json extension", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.yaml", `{}`)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, ".json extension")
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		t.Parallel()
		path := writeConfig(t, "tuning.json", `{"tof_gain": `)
		_, err := LoadTuningConfig(path)
		assert.ErrorContains(t, err, "parse config JSON")
	})

	t.Run("rejects missing file", func(t *testing.T) {
		t.Parallel()
		_, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json"))
		assert.ErrorContains(t, err, "stat config file")
	})
}

func TestTuningConfigValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero gain", `{"tof_gain": 0}`, "tof_gain must be positive"},
		{"negative threshold", `{"pressure_threshold": -1}`, "pressure_threshold must be non-negative"},
		{"threshold above one", `{"anomaly_threshold": 1.2}`, "anomaly_threshold must be between 0 and 1"},
		{"fraction above one", `{"min_window_fraction": 1.5}`, "min_window_fraction must be in (0,1]"},
		{"zero resolution", `{"heatmap_resolution": 0}`, "heatmap_resolution must be positive"},
		{"bad window duration", `{"sample_window": "fast"}`, "invalid sample_window"},
		{"bad budget duration", `{"cycle_budget": "later"}`, "invalid cycle_budget"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			path := writeConfig(t, "tuning.json", tc.body)
			_, err := LoadTuningConfig(path)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}
