package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for tuning parameters.
// The schema matches the /api/params endpoint so the same JSON can be
// used for both startup configuration and runtime updates.
type TuningConfig struct {
	// Vision params
	FrameTimeout           *string  `json:"frame_timeout,omitempty"` // duration string like "250ms"
	DisparityEpsilonPx     *float64 `json:"disparity_epsilon_px,omitempty"`
	WristMatchFraction     *float64 `json:"wrist_match_fraction,omitempty"`
	MinDetectionConfidence *float64 `json:"min_detection_confidence,omitempty"`

	// Scene params
	SampleCount      *int     `json:"sample_count,omitempty"`
	CurveThicknessMM *float64 `json:"curve_thickness_mm,omitempty"`
	TableHeightMM    *float64 `json:"table_height_mm,omitempty"`
	XMinMM           *float64 `json:"x_min_mm,omitempty"`
	XMaxMM           *float64 `json:"x_max_mm,omitempty"`
	ZMinMM           *float64 `json:"z_min_mm,omitempty"`
	ZMaxMM           *float64 `json:"z_max_mm,omitempty"`
	RangeStepMM      *float64 `json:"range_step_mm,omitempty"`
	MinSpanMM        *float64 `json:"min_span_mm,omitempty"`

	// Loop params
	LoopHz             *float64 `json:"loop_hz,omitempty"`
	MutationQueueDepth *int     `json:"mutation_queue_depth,omitempty"`

	// Haptic params
	MotorCount *int `json:"motor_count,omitempty"`

	// Calibration params
	MaxReprojectionRMSPx *float64 `json:"max_reprojection_rms_px,omitempty"`
	MinCalibrationViews  *int     `json:"min_calibration_views,omitempty"`
	BoardCols            *int     `json:"board_cols,omitempty"`
	BoardRows            *int     `json:"board_rows,omitempty"`
	SquareSizeMM         *float64 `json:"square_size_mm,omitempty"`
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
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

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/vision/netdetect/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	// Validate FrameTimeout can be parsed if set
	if c.FrameTimeout != nil && *c.FrameTimeout != "" {
		if _, err := time.ParseDuration(*c.FrameTimeout); err != nil {
			return fmt.Errorf("invalid frame_timeout '%s': %w", *c.FrameTimeout, err)
		}
	}

	// Validate DisparityEpsilonPx if set
	if c.DisparityEpsilonPx != nil {
		if *c.DisparityEpsilonPx < 0 {
			return fmt.Errorf("disparity_epsilon_px must be non-negative, got %f", *c.DisparityEpsilonPx)
		}
	}

	// Validate WristMatchFraction if set
	if c.WristMatchFraction != nil {
		if *c.WristMatchFraction <= 0 || *c.WristMatchFraction > 1 {
			return fmt.Errorf("wrist_match_fraction must be in (0, 1], got %f", *c.WristMatchFraction)
		}
	}

	// Validate SampleCount if set
	if c.SampleCount != nil {
		if *c.SampleCount < 2 {
			return fmt.Errorf("sample_count must be at least 2, got %d", *c.SampleCount)
		}
	}

	// Validate CurveThicknessMM if set
	if c.CurveThicknessMM != nil {
		if *c.CurveThicknessMM <= 0 {
			return fmt.Errorf("curve_thickness_mm must be positive, got %f", *c.CurveThicknessMM)
		}
	}

	// Validate MinSpanMM if set
	if c.MinSpanMM != nil {
		if *c.MinSpanMM <= 0 {
			return fmt.Errorf("min_span_mm must be positive, got %f", *c.MinSpanMM)
		}
	}

	// Validate RangeStepMM if set
	if c.RangeStepMM != nil {
		if *c.RangeStepMM <= 0 {
			return fmt.Errorf("range_step_mm must be positive, got %f", *c.RangeStepMM)
		}
	}

	// Validate the X range if both ends are set
	if c.XMinMM != nil && c.XMaxMM != nil {
		if *c.XMinMM >= *c.XMaxMM {
			return fmt.Errorf("x_min_mm must be less than x_max_mm, got [%f, %f]", *c.XMinMM, *c.XMaxMM)
		}
	}

	// Validate the Z range if both ends are set
	if c.ZMinMM != nil && c.ZMaxMM != nil {
		if *c.ZMinMM >= *c.ZMaxMM {
			return fmt.Errorf("z_min_mm must be less than z_max_mm, got [%f, %f]", *c.ZMinMM, *c.ZMaxMM)
		}
	}

	// Validate LoopHz if set
	if c.LoopHz != nil {
		if *c.LoopHz <= 0 {
			return fmt.Errorf("loop_hz must be positive, got %f", *c.LoopHz)
		}
	}

	// Validate MutationQueueDepth if set
	if c.MutationQueueDepth != nil {
		if *c.MutationQueueDepth < 1 {
			return fmt.Errorf("mutation_queue_depth must be at least 1, got %d", *c.MutationQueueDepth)
		}
	}

	// Validate MotorCount if set
	if c.MotorCount != nil {
		if *c.MotorCount < 1 {
			return fmt.Errorf("motor_count must be at least 1, got %d", *c.MotorCount)
		}
	}

	// Validate MinCalibrationViews if set
	if c.MinCalibrationViews != nil {
		if *c.MinCalibrationViews < 3 {
			return fmt.Errorf("min_calibration_views must be at least 3, got %d", *c.MinCalibrationViews)
		}
	}

	return nil
}

// GetFrameTimeout parses and returns the FrameTimeout as a time.Duration.
func (c *TuningConfig) GetFrameTimeout() time.Duration {
	if c.FrameTimeout == nil || *c.FrameTimeout == "" {
		return 250 * time.Millisecond // default
	}
	d, err := time.ParseDuration(*c.FrameTimeout)
	if err != nil {
		return 250 * time.Millisecond // default on parse error
	}
	return d
}

// GetDisparityEpsilonPx returns the disparity_epsilon_px value or the default.
func (c *TuningConfig) GetDisparityEpsilonPx() float64 {
	if c.DisparityEpsilonPx == nil {
		return 0.5
	}
	return *c.DisparityEpsilonPx
}

// GetWristMatchFraction returns the wrist_match_fraction value or the default.
func (c *TuningConfig) GetWristMatchFraction() float64 {
	if c.WristMatchFraction == nil {
		return 0.1
	}
	return *c.WristMatchFraction
}

// GetMinDetectionConfidence returns the min_detection_confidence value or the default.
func (c *TuningConfig) GetMinDetectionConfidence() float64 {
	if c.MinDetectionConfidence == nil {
		return 0.5
	}
	return *c.MinDetectionConfidence
}

// GetSampleCount returns the sample_count value or the default.
func (c *TuningConfig) GetSampleCount() int {
	if c.SampleCount == nil {
		return 100
	}
	return *c.SampleCount
}

// GetCurveThicknessMM returns the curve_thickness_mm value or the default.
func (c *TuningConfig) GetCurveThicknessMM() float64 {
	if c.CurveThicknessMM == nil {
		return 30.0
	}
	return *c.CurveThicknessMM
}

// GetTableHeightMM returns the table_height_mm value or the default.
func (c *TuningConfig) GetTableHeightMM() float64 {
	if c.TableHeightMM == nil {
		return 500.0
	}
	return *c.TableHeightMM
}

// GetXMinMM returns the x_min_mm value or the default.
func (c *TuningConfig) GetXMinMM() float64 {
	if c.XMinMM == nil {
		return -300.0
	}
	return *c.XMinMM
}

// GetXMaxMM returns the x_max_mm value or the default.
func (c *TuningConfig) GetXMaxMM() float64 {
	if c.XMaxMM == nil {
		return 300.0
	}
	return *c.XMaxMM
}

// GetZMinMM returns the z_min_mm value or the default.
func (c *TuningConfig) GetZMinMM() float64 {
	if c.ZMinMM == nil {
		return 100.0
	}
	return *c.ZMinMM
}

// GetZMaxMM returns the z_max_mm value or the default.
func (c *TuningConfig) GetZMaxMM() float64 {
	if c.ZMaxMM == nil {
		return 700.0
	}
	return *c.ZMaxMM
}

// GetRangeStepMM returns the range_step_mm value or the default.
func (c *TuningConfig) GetRangeStepMM() float64 {
	if c.RangeStepMM == nil {
		return 50.0
	}
	return *c.RangeStepMM
}

// GetMinSpanMM returns the min_span_mm value or the default.
func (c *TuningConfig) GetMinSpanMM() float64 {
	if c.MinSpanMM == nil {
		return 100.0
	}
	return *c.MinSpanMM
}

// GetLoopHz returns the loop_hz value or the default.
func (c *TuningConfig) GetLoopHz() float64 {
	if c.LoopHz == nil {
		return 20.0
	}
	return *c.LoopHz
}

// GetMutationQueueDepth returns the mutation_queue_depth value or the default.
func (c *TuningConfig) GetMutationQueueDepth() int {
	if c.MutationQueueDepth == nil {
		return 64
	}
	return *c.MutationQueueDepth
}

// GetMotorCount returns the motor_count value or the default.
func (c *TuningConfig) GetMotorCount() int {
	if c.MotorCount == nil {
		return 4
	}
	return *c.MotorCount
}

// GetMaxReprojectionRMSPx returns the max_reprojection_rms_px value or the default.
func (c *TuningConfig) GetMaxReprojectionRMSPx() float64 {
	if c.MaxReprojectionRMSPx == nil {
		return 1.0
	}
	return *c.MaxReprojectionRMSPx
}

// GetMinCalibrationViews returns the min_calibration_views value or the default.
func (c *TuningConfig) GetMinCalibrationViews() int {
	if c.MinCalibrationViews == nil {
		return 6
	}
	return *c.MinCalibrationViews
}

// GetBoardCols returns the board_cols value or the default.
func (c *TuningConfig) GetBoardCols() int {
	if c.BoardCols == nil {
		return 9
	}
	return *c.BoardCols
}

// GetBoardRows returns the board_rows value or the default.
func (c *TuningConfig) GetBoardRows() int {
	if c.BoardRows == nil {
		return 6
	}
	return *c.BoardRows
}

// GetSquareSizeMM returns the square_size_mm value or the default.
func (c *TuningConfig) GetSquareSizeMM() float64 {
	if c.SquareSizeMM == nil {
		return 25.0
	}
	return *c.SquareSizeMM
}
