package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/topsalign/internal/gmtsar"
	"github.com/banshee-data/topsalign/internal/grid"
	"github.com/banshee-data/topsalign/internal/pipeline"
)

// DefaultConfigPath is the path to the canonical defaults file.
const DefaultConfigPath = "config/topsalign.defaults.json"

// Config holds the processing parameters. Every field is optional; the
// Get* methods supply the default for fields left out of the file.
type Config struct {
	// Correction grid
	GridCellRange        *float64 `json:"grid_cell_range,omitempty"`
	GridCellAzimuth      *float64 `json:"grid_cell_azimuth,omitempty"`
	SurfaceTension       *float64 `json:"surface_tension,omitempty"`
	SurfaceMaxIterations *int     `json:"surface_max_iterations,omitempty"`
	SurfaceTolerance     *float64 `json:"surface_tolerance,omitempty"`

	// Offset samples and fitting
	OffsetSNR        *float64 `json:"offset_snr,omitempty"`
	FitRangeParams   *int     `json:"fit_range_params,omitempty"`
	FitAzimuthParams *int     `json:"fit_azimuth_params,omitempty"`
	FitSNRThreshold  *float64 `json:"fit_snr_threshold,omitempty"`
	Fitter           *string  `json:"fitter,omitempty"` // "native" or "fitoffset"

	// DEM sampling
	DEMFilterWidth *string `json:"dem_filter_width,omitempty"`
	DEMIncrement   *string `json:"dem_increment,omitempty"`

	// Run control
	OnError *string `json:"on_error,omitempty"` // "fail" or "skip"
	Workers *int    `json:"workers,omitempty"`

	// Tools maps collaborator names to the binaries to run.
	Tools map[string]string `json:"tools,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// Empty returns a Config with every field unset.
func Empty() *Config {
	return &Config{}
}

// Load reads a Config from a JSON file.
// The file must have a .json extension and be under the max file size.
// Fields omitted from the file keep their defaults, so partial configs
// are safe.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Empty()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical defaults from DefaultConfigPath,
// searching the current directory and its parents.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *Config {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,    // from internal/config/
		"../../../" + DefaultConfigPath, // from cmd/topsalign/
	}
	for _, path := range candidates {
		if cfg, err := Load(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that set values are usable.
func (c *Config) Validate() error {
	if c.GridCellRange != nil && *c.GridCellRange <= 0 {
		return fmt.Errorf("grid_cell_range must be positive, got %v", *c.GridCellRange)
	}
	if c.GridCellAzimuth != nil && *c.GridCellAzimuth <= 0 {
		return fmt.Errorf("grid_cell_azimuth must be positive, got %v", *c.GridCellAzimuth)
	}
	if c.SurfaceTension != nil && (*c.SurfaceTension <= 0 || *c.SurfaceTension > 1) {
		return fmt.Errorf("surface_tension must be in (0, 1], got %v", *c.SurfaceTension)
	}
	if c.SurfaceMaxIterations != nil && *c.SurfaceMaxIterations <= 0 {
		return fmt.Errorf("surface_max_iterations must be positive, got %d", *c.SurfaceMaxIterations)
	}
	if c.SurfaceTolerance != nil && *c.SurfaceTolerance <= 0 {
		return fmt.Errorf("surface_tolerance must be positive, got %v", *c.SurfaceTolerance)
	}
	if c.OffsetSNR != nil && *c.OffsetSNR < 0 {
		return fmt.Errorf("offset_snr must be non-negative, got %v", *c.OffsetSNR)
	}
	for name, p := range map[string]*int{"fit_range_params": c.FitRangeParams, "fit_azimuth_params": c.FitAzimuthParams} {
		if p != nil && *p != 1 && *p != 3 {
			return fmt.Errorf("%s must be 1 or 3, got %d", name, *p)
		}
	}
	if c.Fitter != nil && *c.Fitter != pipeline.FitterNative && *c.Fitter != pipeline.FitterFitOffset {
		return fmt.Errorf("fitter must be %q or %q, got %q", pipeline.FitterNative, pipeline.FitterFitOffset, *c.Fitter)
	}
	if c.OnError != nil {
		if _, err := pipeline.ParseErrorPolicy(*c.OnError); err != nil {
			return err
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	known := make(map[string]bool, len(gmtsar.Tools))
	for _, t := range gmtsar.Tools {
		known[t] = true
	}
	for name, bin := range c.Tools {
		if !known[name] {
			return fmt.Errorf("unknown tool %q", name)
		}
		if bin == "" {
			return fmt.Errorf("empty binary for tool %q", name)
		}
	}
	return nil
}

// GetGridSpec returns the correction grid settings.
func (c *Config) GetGridSpec() grid.Spec {
	s := grid.DefaultSpec()
	if c.GridCellRange != nil {
		s.CellRange = *c.GridCellRange
	}
	if c.GridCellAzimuth != nil {
		s.CellAzimuth = *c.GridCellAzimuth
	}
	if c.SurfaceTension != nil {
		s.Tension = *c.SurfaceTension
	}
	if c.SurfaceMaxIterations != nil {
		s.MaxIterations = *c.SurfaceMaxIterations
	}
	if c.SurfaceTolerance != nil {
		s.Tolerance = *c.SurfaceTolerance
	}
	return s
}

// GetOffsetSNR returns the SNR assigned to projected offset samples.
func (c *Config) GetOffsetSNR() float64 {
	if c.OffsetSNR == nil {
		return 100 // default
	}
	return *c.OffsetSNR
}

// GetFitRangeParams returns the number of range fit terms.
func (c *Config) GetFitRangeParams() int {
	if c.FitRangeParams == nil {
		return 3 // default
	}
	return *c.FitRangeParams
}

// GetFitAzimuthParams returns the number of azimuth fit terms.
func (c *Config) GetFitAzimuthParams() int {
	if c.FitAzimuthParams == nil {
		return 3 // default
	}
	return *c.FitAzimuthParams
}

// GetFitSNRThreshold returns the SNR below which samples are not fitted.
func (c *Config) GetFitSNRThreshold() float64 {
	if c.FitSNRThreshold == nil {
		return 20 // default
	}
	return *c.FitSNRThreshold
}

// GetFitter returns the fitter name.
func (c *Config) GetFitter() string {
	if c.Fitter == nil || *c.Fitter == "" {
		return pipeline.FitterNative
	}
	return *c.Fitter
}

// GetDEMFilterWidth returns the Gaussian filter width for DEM sampling.
func (c *Config) GetDEMFilterWidth() string {
	if c.DEMFilterWidth == nil || *c.DEMFilterWidth == "" {
		return "2" // default
	}
	return *c.DEMFilterWidth
}

// GetDEMIncrement returns the DEM sampling increment.
func (c *Config) GetDEMIncrement() string {
	if c.DEMIncrement == nil || *c.DEMIncrement == "" {
		return "12s" // default
	}
	return *c.DEMIncrement
}

// GetOnError returns the line error policy.
func (c *Config) GetOnError() pipeline.ErrorPolicy {
	if c.OnError == nil {
		return pipeline.FailFast
	}
	p, err := pipeline.ParseErrorPolicy(*c.OnError)
	if err != nil {
		return pipeline.FailFast // default on parse error
	}
	return p
}

// GetWorkers returns the number of concurrent lines.
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 1 // default
	}
	return *c.Workers
}

// GetTools returns a copy of the tool binary overrides.
func (c *Config) GetTools() map[string]string {
	out := make(map[string]string, len(c.Tools))
	for k, v := range c.Tools {
		out[k] = v
	}
	return out
}

// Options builds pipeline options for workdir from the configuration.
func (c *Config) Options(workdir string) pipeline.Options {
	o := pipeline.DefaultOptions(workdir)
	o.Grid = c.GetGridSpec()
	o.SampleSNR = c.GetOffsetSNR()
	o.Fitter = c.GetFitter()
	o.FitRangeParams = c.GetFitRangeParams()
	o.FitAzimuthParams = c.GetFitAzimuthParams()
	o.FitSNRThreshold = c.GetFitSNRThreshold()
	o.DEMFilterWidth = c.GetDEMFilterWidth()
	o.DEMIncrement = c.GetDEMIncrement()
	o.OnError = c.GetOnError()
	o.Workers = c.GetWorkers()
	return o
}
