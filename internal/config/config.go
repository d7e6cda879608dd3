package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Config holds every tunable of the scanning pipeline. Fields may be loaded
// from a JSON file and overridden by command-line flags; none of them are
// computed at runtime.
//
// The step sizes and search bounds were chosen empirically for mobile-class
// CPUs and should be validated on target hardware rather than treated as
// constants with inherent meaning.
type Config struct {
	// Scheduling
	TickIntervalMs int `json:"tick_interval_ms"` // cooperative tick period
	ThrottleFactor int `json:"throttle_factor"`  // run pipeline every Nth tick

	// Working frame
	MaxWorkingWidth int     `json:"max_working_width"`
	EdgeThreshold   int     `json:"edge_threshold"` // 0-765 scale, gradient sum
	Blur            bool    `json:"blur"`           // Gaussian pre-blur before edges
	BlurSigma       float64 `json:"blur_sigma"`

	// Candidate search
	OriginFraction    float64 `json:"origin_fraction"`
	MinWidthFraction  float64 `json:"min_width_fraction"`
	MaxWidthFraction  float64 `json:"max_width_fraction"`
	MinHeightFraction float64 `json:"min_height_fraction"`
	MaxHeightFraction float64 `json:"max_height_fraction"`
	PositionStep      int     `json:"position_step"`
	SizeStep          int     `json:"size_step"`
	MinAspect         float64 `json:"min_aspect"`
	MaxAspect         float64 `json:"max_aspect"`
	ConfidenceFloor   float64 `json:"confidence_floor"`

	// Stability and capture
	IoUThreshold       float64 `json:"iou_threshold"`
	StabilityThreshold int     `json:"stability_threshold"` // consecutive stable ticks
	SettleDelayMs      int     `json:"settle_delay_ms"`

	// Capture post-processing
	Enhance  bool    `json:"enhance"`  // contrast/sharpen the cropped card
	Contrast float64 `json:"contrast"` // bild contrast change, -100..100

	// Upload collaborator
	UploadEndpoint string `json:"upload_endpoint"`
}

// DefaultConfig returns a Config populated with standard defaults.
func DefaultConfig() *Config {
	return &Config{
		TickIntervalMs:     16, // one display refresh at 60Hz
		ThrottleFactor:     3,
		MaxWorkingWidth:    640,
		EdgeThreshold:      100,
		Blur:               false,
		BlurSigma:          1.0,
		OriginFraction:     0.3,
		MinWidthFraction:   0.3,
		MaxWidthFraction:   0.9,
		MinHeightFraction:  0.2,
		MaxHeightFraction:  0.7,
		PositionStep:       20,
		SizeStep:           30,
		MinAspect:          1.2,
		MaxAspect:          2.2,
		ConfidenceFloor:    0.3,
		IoUThreshold:       0.8,
		StabilityThreshold: 8,
		SettleDelayMs:      200,
		Enhance:            true,
		Contrast:           10,
	}
}

// TickInterval returns the cooperative tick period as a Duration.
func (c *Config) TickInterval() time.Duration {
	if c.TickIntervalMs <= 0 {
		return 16 * time.Millisecond
	}
	return time.Duration(c.TickIntervalMs) * time.Millisecond
}

// SettleDelay returns the pause between the stability threshold being
// reached and the actual capture.
func (c *Config) SettleDelay() time.Duration {
	if c.SettleDelayMs < 0 {
		return 0
	}
	return time.Duration(c.SettleDelayMs) * time.Millisecond
}

// Load reads a Config from a JSON file. Fields absent from the file keep
// their default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

// Save writes the Config to a JSON file with indentation.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
