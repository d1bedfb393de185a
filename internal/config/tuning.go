// Package config loads analytics tuning parameters from JSON files.
// Every field is optional; omitted fields fall back to the same defaults
// the analyzers use, so partial configs are safe.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// TuningConfig is the root configuration for analytics tuning. The schema
// doubles as the runtime-update payload, so the same JSON works for both
// startup configuration and live re-tuning.
type TuningConfig struct {
	// Calibration params
	ToFGain                 *float64 `json:"tof_gain,omitempty"`
	IMUDriftCorrection      *float64 `json:"imu_drift_correction,omitempty"`
	PressureThreshold       *float64 `json:"pressure_threshold,omitempty"`
	FilterCutoffHz          *float64 `json:"filter_cutoff_hz,omitempty"`
	TemperatureCompensation *float64 `json:"temperature_compensation,omitempty"`

	// Window params
	SampleWindow      *string  `json:"sample_window,omitempty"` // duration string like "250ms"
	MinWindowFraction *float64 `json:"min_window_fraction,omitempty"`

	// Performance params
	AnomalyThreshold *float64 `json:"anomaly_threshold,omitempty"`

	// Heat-map params
	HeatMapResolution *int `json:"heatmap_resolution,omitempty"`
	HeatMapWorkers    *int `json:"heatmap_workers,omitempty"`

	// Pipeline params
	CycleBudget *string `json:"cycle_budget,omitempty"` // duration string like "100ms"
}

// EmptyTuningConfig returns a TuningConfig with all fields unset. Use
// LoadTuningConfig to load actual values from a file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must
// have a .json extension and stay under the max file size. Fields omitted
// from the JSON keep their defaults via the Get* accessors.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks that the configuration values are internally valid.
// Range checks that depend on calibration semantics stay with the
// analyzer constructors; this only rejects values no analyzer accepts.
func (c *TuningConfig) Validate() error {
	if c.ToFGain != nil && *c.ToFGain <= 0 {
		return fmt.Errorf("tof_gain must be positive, got %f", *c.ToFGain)
	}
	if c.PressureThreshold != nil && *c.PressureThreshold < 0 {
		return fmt.Errorf("pressure_threshold must be non-negative, got %f", *c.PressureThreshold)
	}
	if c.FilterCutoffHz != nil && *c.FilterCutoffHz <= 0 {
		return fmt.Errorf("filter_cutoff_hz must be positive, got %f", *c.FilterCutoffHz)
	}
	if c.MinWindowFraction != nil {
		if *c.MinWindowFraction <= 0 || *c.MinWindowFraction > 1 {
			return fmt.Errorf("min_window_fraction must be in (0,1], got %f", *c.MinWindowFraction)
		}
	}
	if c.AnomalyThreshold != nil {
		if *c.AnomalyThreshold < 0 || *c.AnomalyThreshold > 1 {
			return fmt.Errorf("anomaly_threshold must be between 0 and 1, got %f", *c.AnomalyThreshold)
		}
	}
	if c.HeatMapResolution != nil && *c.HeatMapResolution <= 0 {
		return fmt.Errorf("heatmap_resolution must be positive, got %d", *c.HeatMapResolution)
	}
	if c.SampleWindow != nil && *c.SampleWindow != "" {
		if _, err := time.ParseDuration(*c.SampleWindow); err != nil {
			return fmt.Errorf("invalid sample_window '%s': %w", *c.SampleWindow, err)
		}
	}
	if c.CycleBudget != nil && *c.CycleBudget != "" {
		if _, err := time.ParseDuration(*c.CycleBudget); err != nil {
			return fmt.Errorf("invalid cycle_budget '%s': %w", *c.CycleBudget, err)
		}
	}
	return nil
}

// GetToFGain returns the tof_gain value or the default.
func (c *TuningConfig) GetToFGain() float64 {
	if c.ToFGain == nil {
		return 1.0
	}
	return *c.ToFGain
}

// GetIMUDriftCorrection returns the imu_drift_correction value or the default.
func (c *TuningConfig) GetIMUDriftCorrection() float64 {
	if c.IMUDriftCorrection == nil {
		return 0
	}
	return *c.IMUDriftCorrection
}

// GetPressureThreshold returns the pressure_threshold value or the default.
func (c *TuningConfig) GetPressureThreshold() float64 {
	if c.PressureThreshold == nil {
		return 50.0
	}
	return *c.PressureThreshold
}

// GetFilterCutoffHz returns the filter_cutoff_hz value or the default.
func (c *TuningConfig) GetFilterCutoffHz() float64 {
	if c.FilterCutoffHz == nil {
		return 20.0
	}
	return *c.FilterCutoffHz
}

// GetTemperatureCompensation returns the temperature_compensation value or
// the default (no compensation).
func (c *TuningConfig) GetTemperatureCompensation() float64 {
	if c.TemperatureCompensation == nil {
		return 0
	}
	return *c.TemperatureCompensation
}

// GetSampleWindow parses and returns the sample_window as a time.Duration.
func (c *TuningConfig) GetSampleWindow() time.Duration {
	if c.SampleWindow == nil || *c.SampleWindow == "" {
		return 250 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.SampleWindow)
	if err != nil {
		return 250 * time.Millisecond
	}
	return d
}

// GetMinWindowFraction returns the min_window_fraction value or the default.
func (c *TuningConfig) GetMinWindowFraction() float64 {
	if c.MinWindowFraction == nil {
		return 0.5
	}
	return *c.MinWindowFraction
}

// GetAnomalyThreshold returns the anomaly_threshold value or the default.
func (c *TuningConfig) GetAnomalyThreshold() float64 {
	if c.AnomalyThreshold == nil {
		return 0.85
	}
	return *c.AnomalyThreshold
}

// GetHeatMapResolution returns the heatmap_resolution value or the default.
func (c *TuningConfig) GetHeatMapResolution() int {
	if c.HeatMapResolution == nil {
		return 32
	}
	return *c.HeatMapResolution
}

// GetHeatMapWorkers returns the heatmap_workers value or the default.
func (c *TuningConfig) GetHeatMapWorkers() int {
	if c.HeatMapWorkers == nil {
		return 4
	}
	return *c.HeatMapWorkers
}

// GetCycleBudget parses and returns the cycle_budget as a time.Duration.
func (c *TuningConfig) GetCycleBudget() time.Duration {
	if c.CycleBudget == nil || *c.CycleBudget == "" {
		return 100 * time.Millisecond
	}
	d, err := time.ParseDuration(*c.CycleBudget)
	if err != nil {
		return 100 * time.Millisecond
	}
	return d
}
