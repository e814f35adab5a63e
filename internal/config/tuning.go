package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rajiv-sit/RadarProcessor/internal/radarcore"
)

// TuningConfig is the root configuration for the runtime-adjustable
// thresholds used by the core packages. Every field is optional so a
// partial JSON document only overrides what it names; the Get* methods
// supply the documented default for anything left nil.
type TuningConfig struct {
	// Association / classification
	StationarySigma  *float64 `json:"stationary_sigma,omitempty"`
	BoundingBoxScale *float64 `json:"bounding_box_scale,omitempty"`
	RangeRateSigma   *float64 `json:"range_rate_sigma,omitempty"`

	// Odometry estimator
	OdometryMaxIterations      *int     `json:"odometry_max_iterations,omitempty"`
	OdometryInlierThresholdMps *float64 `json:"odometry_inlier_threshold_mps,omitempty"`
	OdometryMinInliers         *int     `json:"odometry_min_inliers,omitempty"`
	OdometrySeed               *int64   `json:"odometry_seed,omitempty"`

	// Occupancy grid
	GridCellSizeM  *float64 `json:"grid_cell_size_m,omitempty"`
	GridMapRadiusM *float64 `json:"grid_map_radius_m,omitempty"`
	GridHitIncrement  *float64 `json:"grid_hit_increment,omitempty"`
	GridMissDecrement *float64 `json:"grid_miss_decrement,omitempty"`
	GridCombination   *string  `json:"grid_combination,omitempty"` // "average" | "product" | "minimum" | "custom"

	// Virtual ring
	RingSegmentCount *int `json:"ring_segment_count,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with all fields nil; every
// Get* accessor then falls back to the documented default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file, after validating
// the path has a .json extension and is under the max file size.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

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

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that any set values are in their legal range. Unset
// (nil) fields are always valid since they defer to a default.
func (c *TuningConfig) Validate() error {
	if c.StationarySigma != nil && *c.StationarySigma <= 0 {
		return fmt.Errorf("stationary_sigma must be positive, got %f", *c.StationarySigma)
	}
	if c.BoundingBoxScale != nil && *c.BoundingBoxScale < 1.0 {
		return fmt.Errorf("bounding_box_scale must be >= 1.0, got %f", *c.BoundingBoxScale)
	}
	if c.RangeRateSigma != nil && *c.RangeRateSigma <= 0 {
		return fmt.Errorf("range_rate_sigma must be positive, got %f", *c.RangeRateSigma)
	}
	if c.OdometryMaxIterations != nil && *c.OdometryMaxIterations < 1 {
		return fmt.Errorf("odometry_max_iterations must be >= 1, got %d", *c.OdometryMaxIterations)
	}
	if c.OdometryInlierThresholdMps != nil && *c.OdometryInlierThresholdMps <= 0 {
		return fmt.Errorf("odometry_inlier_threshold_mps must be positive, got %f", *c.OdometryInlierThresholdMps)
	}
	if c.OdometryMinInliers != nil && *c.OdometryMinInliers < 2 {
		return fmt.Errorf("odometry_min_inliers must be >= 2, got %d", *c.OdometryMinInliers)
	}
	if c.GridCellSizeM != nil && *c.GridCellSizeM <= 0 {
		return fmt.Errorf("grid_cell_size_m must be positive, got %f", *c.GridCellSizeM)
	}
	if c.GridMapRadiusM != nil && *c.GridMapRadiusM <= 0 {
		return fmt.Errorf("grid_map_radius_m must be positive, got %f", *c.GridMapRadiusM)
	}
	if c.RingSegmentCount != nil && *c.RingSegmentCount < 3 {
		return fmt.Errorf("ring_segment_count must be >= 3, got %d", *c.RingSegmentCount)
	}
	if c.GridCombination != nil {
		switch *c.GridCombination {
		case "average", "product", "minimum", "custom":
		default:
			return fmt.Errorf("grid_combination must be one of average|product|minimum|custom, got %q", *c.GridCombination)
		}
	}
	return nil
}

// GetStationarySigma returns the configured stationary_sigma or the default.
func (c *TuningConfig) GetStationarySigma() float64 {
	if c.StationarySigma == nil {
		return radarcore.DefaultStationarySigma
	}
	return *c.StationarySigma
}

// GetBoundingBoxScale returns the configured bounding_box_scale or the default.
func (c *TuningConfig) GetBoundingBoxScale() float64 {
	if c.BoundingBoxScale == nil {
		return radarcore.DefaultBoundingBoxScale
	}
	return *c.BoundingBoxScale
}

// GetRangeRateSigma returns the configured range_rate_sigma or the default.
func (c *TuningConfig) GetRangeRateSigma() float64 {
	if c.RangeRateSigma == nil {
		return radarcore.DefaultRangeRateSigma
	}
	return *c.RangeRateSigma
}

// GetOdometrySettings materializes an OdometrySettings from any configured
// overrides, falling back to radarcore's documented defaults field by field.
func (c *TuningConfig) GetOdometrySettings() radarcore.OdometrySettings {
	s := radarcore.DefaultOdometrySettings()
	if c.OdometryMaxIterations != nil {
		s.MaxIterations = *c.OdometryMaxIterations
	}
	if c.OdometryInlierThresholdMps != nil {
		s.InlierThresholdMps = *c.OdometryInlierThresholdMps
	}
	if c.OdometryMinInliers != nil {
		s.MinInliers = *c.OdometryMinInliers
	}
	if c.OdometrySeed != nil {
		s.Seed = *c.OdometrySeed
	}
	s.Sanitize()
	return s
}

// GetGridSettings materializes a GridSettings from any configured
// overrides, falling back to radarcore's documented defaults field by field.
func (c *TuningConfig) GetGridSettings() radarcore.GridSettings {
	s := radarcore.DefaultGridSettings()
	if c.GridCellSizeM != nil {
		s.CellSizeM = *c.GridCellSizeM
	}
	if c.GridMapRadiusM != nil {
		s.MapRadiusM = *c.GridMapRadiusM
	}
	if c.GridHitIncrement != nil {
		s.HitIncrement = *c.GridHitIncrement
	}
	if c.GridMissDecrement != nil {
		s.MissDecrement = *c.GridMissDecrement
	}
	if c.GridCombination != nil {
		switch *c.GridCombination {
		case "average":
			s.Combination = radarcore.CombineAverage
		case "product":
			s.Combination = radarcore.CombineProduct
		case "minimum":
			s.Combination = radarcore.CombineMinimum
		case "custom":
			s.Combination = radarcore.CombineCustom
		}
	}
	return s
}

// GetRingSegmentCount returns the configured ring_segment_count or the default.
func (c *TuningConfig) GetRingSegmentCount() int {
	if c.RingSegmentCount == nil {
		return 360
	}
	return *c.RingSegmentCount
}
