package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// maxTuningFileSize bounds the JSON tuning file the demo host may load,
// matching the teacher config loader's defensive size check.
const maxTuningFileSize = 1 * 1024 * 1024

// TuningConfig is a JSON document of optional pointer fields covering the
// pipeline's tunables. Unset fields fall back to their documented default
// via the Get* accessors; LoadTuningConfig is only ever used by the
// embedding host (cmd/presenced) to seed initial values — the per-call
// setters on Tracker/Engine/Smoother remain the authoritative runtime
// surface (spec.md §6).
type TuningConfig struct {
	GateBaseMM             *float64 `json:"gate_base_mm,omitempty"`
	OcclusionTimeoutFrames *int     `json:"occlusion_timeout_frames,omitempty"`
	ConfirmThreshold       *int     `json:"confirm_threshold,omitempty"`
	TentativeDrop          *int     `json:"tentative_drop,omitempty"`
	DisconnectTimeoutMS    *int     `json:"disconnect_timeout_ms,omitempty"`
	DefaultSensitivity     *int     `json:"default_sensitivity,omitempty"`
	MinHoldMS              *int     `json:"min_hold_ms,omitempty"`
	MaxHoldMS              *int     `json:"max_hold_ms,omitempty"`
	MovingThresholdMMPS    *int     `json:"moving_threshold_mm_ps,omitempty"`
}

// EmptyTuningConfig returns a TuningConfig with every field unset, so every
// Get* accessor falls back to its default.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// GetGateBaseMM returns the configured gate base, or the spec default.
func (c *TuningConfig) GetGateBaseMM() float64 {
	if c != nil && c.GateBaseMM != nil {
		return *c.GateBaseMM
	}
	return 500
}

// GetOcclusionTimeoutFrames returns the configured occlusion timeout, or
// the spec default (33 frames, ~1s at 33Hz).
func (c *TuningConfig) GetOcclusionTimeoutFrames() int {
	if c != nil && c.OcclusionTimeoutFrames != nil {
		return *c.OcclusionTimeoutFrames
	}
	return 33
}

// GetConfirmThreshold returns the configured confirm threshold, or the
// spec default.
func (c *TuningConfig) GetConfirmThreshold() int {
	if c != nil && c.ConfirmThreshold != nil {
		return *c.ConfirmThreshold
	}
	return 3
}

// GetTentativeDrop returns the configured tentative-drop threshold, or the
// spec default.
func (c *TuningConfig) GetTentativeDrop() int {
	if c != nil && c.TentativeDrop != nil {
		return *c.TentativeDrop
	}
	return 3
}

// GetDisconnectTimeoutMS returns the configured disconnect timeout, or the
// spec default (3000ms).
func (c *TuningConfig) GetDisconnectTimeoutMS() int {
	if c != nil && c.DisconnectTimeoutMS != nil {
		return *c.DisconnectTimeoutMS
	}
	return 3000
}

// GetDefaultSensitivity returns the configured default zone sensitivity, or
// the midpoint default.
func (c *TuningConfig) GetDefaultSensitivity() int {
	if c != nil && c.DefaultSensitivity != nil {
		return *c.DefaultSensitivity
	}
	return 50
}

// GetMinHoldMS returns the configured global hold floor, or the spec
// default.
func (c *TuningConfig) GetMinHoldMS() int {
	if c != nil && c.MinHoldMS != nil {
		return *c.MinHoldMS
	}
	return 100
}

// GetMaxHoldMS returns the configured global hold ceiling, or the spec
// default.
func (c *TuningConfig) GetMaxHoldMS() int {
	if c != nil && c.MaxHoldMS != nil {
		return *c.MaxHoldMS
	}
	return 10000
}

// GetMovingThresholdMMPS returns the configured has_moving speed
// threshold, or the spec default (10 cm/s).
func (c *TuningConfig) GetMovingThresholdMMPS() int {
	if c != nil && c.MovingThresholdMMPS != nil {
		return *c.MovingThresholdMMPS
	}
	return 100
}

// LoadTuningConfig reads and validates a JSON tuning file from path: it
// must have a .json extension and be no larger than maxTuningFileSize.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	clean := filepath.Clean(path)
	if filepath.Ext(clean) != ".json" {
		return nil, fmt.Errorf("pipeline: tuning config %q must have a .json extension", path)
	}
	info, err := os.Stat(clean)
	if err != nil {
		return nil, fmt.Errorf("pipeline: stat tuning config: %w", err)
	}
	if info.Size() > maxTuningFileSize {
		return nil, fmt.Errorf("pipeline: tuning config %q exceeds %d bytes", path, maxTuningFileSize)
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return nil, fmt.Errorf("pipeline: read tuning config: %w", err)
	}
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("pipeline: parse tuning config: %w", err)
	}
	return cfg, nil
}
