package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the path to the canonical builder defaults file.
const DefaultConfigPath = "config/builder.defaults.json"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// BuilderConfig holds the reconstruction builder settings. Every field is
// optional; the Get* methods supply defaults for unset fields, so partial
// files are safe.
type BuilderConfig struct {
	// Extraction and matching
	NumThreads              *int     `json:"num_threads,omitempty" yaml:"num_threads,omitempty"`
	OnlyCalibratedViews     *bool    `json:"only_calibrated_views,omitempty" yaml:"only_calibrated_views,omitempty"`
	MinNumInlierMatches     *int     `json:"min_num_inlier_matches,omitempty" yaml:"min_num_inlier_matches,omitempty"`
	DefaultFocalLengthRatio *float64 `json:"default_focal_length_ratio,omitempty" yaml:"default_focal_length_ratio,omitempty"`

	// Tracks
	MinTrackLength *int `json:"min_track_length,omitempty" yaml:"min_track_length,omitempty"`
	MaxTrackLength *int `json:"max_track_length,omitempty" yaml:"max_track_length,omitempty"`

	// Estimation loop
	ReconstructLargestConnectedComponent *bool   `json:"reconstruct_largest_connected_component,omitempty" yaml:"reconstruct_largest_connected_component,omitempty"`
	RandomSeed                           *uint64 `json:"random_seed,omitempty" yaml:"random_seed,omitempty"`
	EstimatorType                        *string `json:"estimator_type,omitempty" yaml:"estimator_type,omitempty"`

	// Robust estimation
	RansacType               *string  `json:"ransac_type,omitempty" yaml:"ransac_type,omitempty"`
	RansacErrorThreshold     *float64 `json:"ransac_error_threshold,omitempty" yaml:"ransac_error_threshold,omitempty"` // pixels
	RansacFailureProbability *float64 `json:"ransac_failure_probability,omitempty" yaml:"ransac_failure_probability,omitempty"`
	RansacMinIterations      *int     `json:"ransac_min_iterations,omitempty" yaml:"ransac_min_iterations,omitempty"`
	RansacMaxIterations      *int     `json:"ransac_max_iterations,omitempty" yaml:"ransac_max_iterations,omitempty"`

	// Incremental estimator
	MinTriangulationAngleDegrees *float64 `json:"min_triangulation_angle_degrees,omitempty" yaml:"min_triangulation_angle_degrees,omitempty"`
	MaxReprojectionErrorPixels   *float64 `json:"max_reprojection_error_pixels,omitempty" yaml:"max_reprojection_error_pixels,omitempty"`
	MinNumLocalizationInliers    *int     `json:"min_num_localization_inliers,omitempty" yaml:"min_num_localization_inliers,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }
func ptrUint64(v uint64) *uint64    { return &v }

// EmptyBuilderConfig returns a BuilderConfig with all fields unset.
func EmptyBuilderConfig() *BuilderConfig {
	return &BuilderConfig{}
}

// LoadBuilderConfig loads a BuilderConfig from a .json, .yaml or .yml file
// of at most 1MB and validates it.
func LoadBuilderConfig(path string) (*BuilderConfig, error) {
	cleanPath := filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(cleanPath))
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyBuilderConfig()
	if ext == ".json" {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config JSON: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config YAML: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads DefaultConfigPath, searching the current
// directory and its parents. It panics if the file cannot be loaded and is
// intended for test setup.
func MustLoadDefaultConfig() *BuilderConfig {
	candidates := []string{
		DefaultConfigPath,
		"../" + DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/sfm/builder/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadBuilderConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the set values are in range.
func (c *BuilderConfig) Validate() error {
	if c.NumThreads != nil && *c.NumThreads <= 0 {
		return fmt.Errorf("num_threads must be positive, got %d", *c.NumThreads)
	}
	if c.MinNumInlierMatches != nil && *c.MinNumInlierMatches < 0 {
		return fmt.Errorf("min_num_inlier_matches must be non-negative, got %d", *c.MinNumInlierMatches)
	}
	if c.MinTrackLength != nil && *c.MinTrackLength < 2 {
		return fmt.Errorf("min_track_length must be at least 2, got %d", *c.MinTrackLength)
	}
	if c.GetMaxTrackLength() < c.GetMinTrackLength() {
		return fmt.Errorf("max_track_length %d is less than min_track_length %d",
			c.GetMaxTrackLength(), c.GetMinTrackLength())
	}
	if c.RansacFailureProbability != nil {
		if p := *c.RansacFailureProbability; p <= 0 || p >= 1 {
			return fmt.Errorf("ransac_failure_probability must be between 0 and 1, got %f", p)
		}
	}
	if c.RansacErrorThreshold != nil && *c.RansacErrorThreshold <= 0 {
		return fmt.Errorf("ransac_error_threshold must be positive, got %f", *c.RansacErrorThreshold)
	}
	if c.RansacMinIterations != nil && *c.RansacMinIterations < 0 {
		return fmt.Errorf("ransac_min_iterations must be non-negative, got %d", *c.RansacMinIterations)
	}
	if c.GetRansacMaxIterations() < c.GetRansacMinIterations() {
		return fmt.Errorf("ransac_max_iterations %d is less than ransac_min_iterations %d",
			c.GetRansacMaxIterations(), c.GetRansacMinIterations())
	}
	if c.RansacType != nil {
		switch strings.ToLower(*c.RansacType) {
		case "ransac", "mlesac":
		default:
			return fmt.Errorf("unknown ransac_type %q", *c.RansacType)
		}
	}
	if c.EstimatorType != nil && strings.ToLower(*c.EstimatorType) != "incremental" {
		return fmt.Errorf("unknown estimator_type %q", *c.EstimatorType)
	}
	if c.MinTriangulationAngleDegrees != nil {
		if a := *c.MinTriangulationAngleDegrees; a < 0 || a >= 90 {
			return fmt.Errorf("min_triangulation_angle_degrees must be in [0, 90), got %f", a)
		}
	}
	if c.MaxReprojectionErrorPixels != nil && *c.MaxReprojectionErrorPixels <= 0 {
		return fmt.Errorf("max_reprojection_error_pixels must be positive, got %f", *c.MaxReprojectionErrorPixels)
	}
	if c.MinNumLocalizationInliers != nil && *c.MinNumLocalizationInliers < 6 {
		return fmt.Errorf("min_num_localization_inliers must be at least 6, got %d", *c.MinNumLocalizationInliers)
	}
	if c.DefaultFocalLengthRatio != nil && *c.DefaultFocalLengthRatio <= 0 {
		return fmt.Errorf("default_focal_length_ratio must be positive, got %f", *c.DefaultFocalLengthRatio)
	}
	return nil
}

// GetNumThreads returns num_threads or the default.
func (c *BuilderConfig) GetNumThreads() int {
	if c.NumThreads == nil {
		return 1
	}
	return *c.NumThreads
}

// GetOnlyCalibratedViews returns only_calibrated_views or the default.
func (c *BuilderConfig) GetOnlyCalibratedViews() bool {
	if c.OnlyCalibratedViews == nil {
		return false
	}
	return *c.OnlyCalibratedViews
}

// GetMinNumInlierMatches returns min_num_inlier_matches or the default.
func (c *BuilderConfig) GetMinNumInlierMatches() int {
	if c.MinNumInlierMatches == nil {
		return 30
	}
	return *c.MinNumInlierMatches
}

// GetDefaultFocalLengthRatio returns default_focal_length_ratio or the
// default.
func (c *BuilderConfig) GetDefaultFocalLengthRatio() float64 {
	if c.DefaultFocalLengthRatio == nil {
		return 1.2
	}
	return *c.DefaultFocalLengthRatio
}

// GetMinTrackLength returns min_track_length or the default.
func (c *BuilderConfig) GetMinTrackLength() int {
	if c.MinTrackLength == nil {
		return 2
	}
	return *c.MinTrackLength
}

// GetMaxTrackLength returns max_track_length or the default.
func (c *BuilderConfig) GetMaxTrackLength() int {
	if c.MaxTrackLength == nil {
		return 50
	}
	return *c.MaxTrackLength
}

// GetReconstructLargestConnectedComponent returns
// reconstruct_largest_connected_component or the default.
func (c *BuilderConfig) GetReconstructLargestConnectedComponent() bool {
	if c.ReconstructLargestConnectedComponent == nil {
		return false
	}
	return *c.ReconstructLargestConnectedComponent
}

// GetRandomSeed returns random_seed or the default.
func (c *BuilderConfig) GetRandomSeed() uint64 {
	if c.RandomSeed == nil {
		return 0
	}
	return *c.RandomSeed
}

// GetEstimatorType returns estimator_type or the default.
func (c *BuilderConfig) GetEstimatorType() string {
	if c.EstimatorType == nil {
		return "incremental"
	}
	return *c.EstimatorType
}

// GetRansacType returns ransac_type or the default.
func (c *BuilderConfig) GetRansacType() string {
	if c.RansacType == nil {
		return "ransac"
	}
	return *c.RansacType
}

// GetRansacErrorThreshold returns ransac_error_threshold in pixels or the
// default.
func (c *BuilderConfig) GetRansacErrorThreshold() float64 {
	if c.RansacErrorThreshold == nil {
		return 4.0
	}
	return *c.RansacErrorThreshold
}

// GetRansacFailureProbability returns ransac_failure_probability or the
// default.
func (c *BuilderConfig) GetRansacFailureProbability() float64 {
	if c.RansacFailureProbability == nil {
		return 0.01
	}
	return *c.RansacFailureProbability
}

// GetRansacMinIterations returns ransac_min_iterations or the default.
func (c *BuilderConfig) GetRansacMinIterations() int {
	if c.RansacMinIterations == nil {
		return 0
	}
	return *c.RansacMinIterations
}

// GetRansacMaxIterations returns ransac_max_iterations or the default.
func (c *BuilderConfig) GetRansacMaxIterations() int {
	if c.RansacMaxIterations == nil {
		return 1000
	}
	return *c.RansacMaxIterations
}

// GetMinTriangulationAngleDegrees returns min_triangulation_angle_degrees
// or the default.
func (c *BuilderConfig) GetMinTriangulationAngleDegrees() float64 {
	if c.MinTriangulationAngleDegrees == nil {
		return 2.0
	}
	return *c.MinTriangulationAngleDegrees
}

// GetMaxReprojectionErrorPixels returns max_reprojection_error_pixels or
// the default.
func (c *BuilderConfig) GetMaxReprojectionErrorPixels() float64 {
	if c.MaxReprojectionErrorPixels == nil {
		return 4.0
	}
	return *c.MaxReprojectionErrorPixels
}

// GetMinNumLocalizationInliers returns min_num_localization_inliers or the
// default.
func (c *BuilderConfig) GetMinNumLocalizationInliers() int {
	if c.MinNumLocalizationInliers == nil {
		return 12
	}
	return *c.MinNumLocalizationInliers
}
