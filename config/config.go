// Package config holds the deployment constants for plantbot. Values are fixed
// for a run: they are loaded once from a preset, optionally overlaid with a
// JSON file and command-line flags, and never mutated afterwards.
package config

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Strategy names for producing the APPROACHING command
const (
	StrategyThreshold = "threshold"
	StrategyPolicy    = "policy"
)

// Duration is a time.Duration that reads "500ms"-style strings or plain
// seconds from JSON.
type Duration time.Duration

// D returns the value as a time.Duration
func (d Duration) D() time.Duration { return time.Duration(d) }

// MarshalJSON writes the duration as a string
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// UnmarshalJSON accepts "3s" or 3 (seconds)
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(v)
		return nil
	}
	var secs float64
	if err := json.Unmarshal(b, &secs); err != nil {
		return fmt.Errorf("duration must be a string or seconds: %s", string(b))
	}
	*d = Duration(secs * float64(time.Second))
	return nil
}

// Geometry holds the camera and target constants used for localization
type Geometry struct {
	PotClassID          int     `json:"pot_class_id"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	RealTargetWidthCM   float64 `json:"real_target_width_cm"`
	FocalLengthBox      float64 `json:"focal_length_bbox"`
	FocalLengthMask     float64 `json:"focal_length_mask"`
	FieldOfViewDeg      float64 `json:"field_of_view_deg"`
	MaskThreshold       uint8   `json:"mask_threshold"`
	// Below this bbox distance the mask estimate is ignored; the refinement
	// saturates at close range.
	NearFieldCutoffCM float64 `json:"near_field_cutoff_cm"`
}

// Policy configures the delegated approach strategy
type Policy struct {
	WeightsPath     string  `json:"weights_path"`
	DistanceOffsetM float64 `json:"distance_offset_m"`
	ActionScale     float64 `json:"action_scale"`
	OutputScale     float64 `json:"output_scale"`
	OmegaGain       float64 `json:"omega_gain"`
	DepthChannels   int     `json:"depth_channels"`
}

// Approach configures the controller thresholds and speeds
type Approach struct {
	Strategy          string  `json:"strategy"`
	AngleThresholdRad float64 `json:"angle_threshold_rad"`
	StopDistanceM     float64 `json:"stop_distance_m"`
	ForwardSpeed      float64 `json:"forward_speed"`
	TurnSpeed         float64 `json:"turn_speed"`
	CreepSpeed        float64 `json:"creep_speed"`
	RetreatSpeed      float64 `json:"retreat_speed"`
	Policy            Policy  `json:"policy"`
}

// Holds are the fixed open-loop pauses of the close-range sequence
type Holds struct {
	Standstill    Duration `json:"standstill"`
	Creep         Duration `json:"creep"`
	Watering      Duration `json:"watering"`
	Retreat       Duration `json:"retreat"`
	ApproachPulse Duration `json:"approach_pulse"`
}

// Source selects the frame source
type Source struct {
	Kind     string `json:"kind"` // video, dir, snapshot
	URL      string `json:"url"`
	User     string `json:"user"`
	Password string `json:"password"`
}

// Detector configures the YOLO network
type Detector struct {
	WeightsPath  string  `json:"weights_path"`
	ConfigPath   string  `json:"config_path"`
	InputSize    int     `json:"input_size"`
	NMSThreshold float64 `json:"nms_threshold"`
	PreferGPU    bool    `json:"prefer_gpu"`
}

// Depth configures the optional depth channel
type Depth struct {
	Enabled   bool   `json:"enabled"`
	ModelPath string `json:"model_path"`
	InputSize int    `json:"input_size"`
}

// Limits bound every command sent to the actuator
type Limits struct {
	MaxVx    float64 `json:"max_vx"`
	MaxVy    float64 `json:"max_vy"`
	MaxOmega float64 `json:"max_omega"`
}

// Actuator selects the motion transport
type Actuator struct {
	Kind       string   `json:"kind"` // udp, serial, http, dry-run
	Addr       string   `json:"addr"`
	Interface  string   `json:"interface"`
	SerialPort string   `json:"serial_port"`
	BaudRate   int      `json:"baud_rate"`
	URL        string   `json:"url"`
	User       string   `json:"user"`
	Password   string   `json:"password"`
	Timeout    Duration `json:"timeout"`
	Limits     Limits   `json:"limits"`
}

// Display toggles the diagnostic windows
type Display struct {
	Enabled bool `json:"enabled"`
	MapSize int  `json:"map_size"`
}

// Log controls console logging
type Log struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// AppConfig aggregates all configuration sections
type AppConfig struct {
	Geometry Geometry `json:"geometry"`
	Approach Approach `json:"approach"`
	Holds    Holds    `json:"holds"`
	Source   Source   `json:"source"`
	Detector Detector `json:"detector"`
	Depth    Depth    `json:"depth"`
	Actuator Actuator `json:"actuator"`
	Display  Display  `json:"display"`
	Log      Log      `json:"log"`
}

func deg(d float64) float64 { return d / 180 * math.Pi }

// Calibrated returns the calibrated-threshold preset with direct threshold
// steering.
func Calibrated() AppConfig {
	return AppConfig{
		Geometry: Geometry{
			PotClassID:          1,
			ConfidenceThreshold: 0.5,
			RealTargetWidthCM:   20,
			FocalLengthBox:      1200,
			FocalLengthMask:     1200,
			FieldOfViewDeg:      120,
			MaskThreshold:       180,
			NearFieldCutoffCM:   150,
		},
		Approach: Approach{
			Strategy:          StrategyThreshold,
			AngleThresholdRad: deg(6),
			StopDistanceM:     0.8,
			ForwardSpeed:      1.0,
			TurnSpeed:         0.2,
			CreepSpeed:        0.2,
			RetreatSpeed:      0.2,
			Policy: Policy{
				DistanceOffsetM: 0.4,
				ActionScale:     0.1,
				OutputScale:     0.2,
				OmegaGain:       5,
				DepthChannels:   12,
			},
		},
		Holds: Holds{
			Standstill: Duration(3 * time.Second),
			Creep:      Duration(2500 * time.Millisecond),
			Watering:   Duration(10 * time.Second),
			Retreat:    Duration(2 * time.Second),
		},
		Source:   Source{Kind: "video", URL: "0"},
		Detector: Detector{WeightsPath: "models/pot.onnx", InputSize: 640, NMSThreshold: 0.45, PreferGPU: true},
		Depth:    Depth{ModelPath: "models/midas_small.onnx", InputSize: 256},
		Actuator: Actuator{
			Kind:     "udp",
			Addr:     "192.168.123.161:8082",
			BaudRate: 115200,
			Timeout:  Duration(3 * time.Second),
			Limits:   Limits{MaxVx: 1.0, MaxVy: 0.5, MaxOmega: 1.0},
		},
		Display: Display{MapSize: 1000},
		Log:     Log{Level: "info", Format: "console"},
	}
}

// Uncalibrated returns the early preset: tighter angle, closer stop and a
// longer retreat.
func Uncalibrated() AppConfig {
	cfg := Calibrated()
	cfg.Approach.AngleThresholdRad = deg(3)
	cfg.Approach.StopDistanceM = 0.6
	cfg.Holds.Retreat = Duration(3 * time.Second)
	return cfg
}

// PolicyDriven returns the calibrated preset with the learned policy making
// the APPROACHING decision from detections plus depth.
func PolicyDriven() AppConfig {
	cfg := Calibrated()
	cfg.Approach.Strategy = StrategyPolicy
	cfg.Approach.Policy.WeightsPath = "models/policy.json"
	cfg.Holds.ApproachPulse = Duration(500 * time.Millisecond)
	cfg.Depth.Enabled = true
	return cfg
}

var presets = map[string]func() AppConfig{
	"calibrated":   Calibrated,
	"uncalibrated": Uncalibrated,
	"policy":       PolicyDriven,
}

// Preset returns the named preset
func Preset(name string) (AppConfig, error) {
	fn, ok := presets[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return AppConfig{}, fmt.Errorf("unknown preset %q (have %s)", name, strings.Join(PresetNames(), ", "))
	}
	return fn(), nil
}

// PresetNames lists the preset names in sorted order
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

const maxFileSize = 1 << 20

// Load overlays the JSON file at path onto base. Fields omitted from the file
// keep the base values.
func Load(path string, base AppConfig) (AppConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return base, fmt.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return base, fmt.Errorf("stat config: %w", err)
	}
	if info.Size() > maxFileSize {
		return base, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return base, fmt.Errorf("read config: %w", err)
	}
	cfg := base
	if err := json.Unmarshal(data, &cfg); err != nil {
		return base, fmt.Errorf("parse config %s: %w", cleanPath, err)
	}
	return cfg, cfg.Validate()
}

// Validate checks the constants that the estimators and controller divide by
// or compare against.
func (c AppConfig) Validate() error {
	var errs []string
	g := c.Geometry
	if g.ConfidenceThreshold < 0 || g.ConfidenceThreshold >= 1 {
		errs = append(errs, "geometry.confidence_threshold must be in [0,1)")
	}
	if g.RealTargetWidthCM <= 0 {
		errs = append(errs, "geometry.real_target_width_cm must be > 0")
	}
	if g.FocalLengthBox <= 0 || g.FocalLengthMask <= 0 {
		errs = append(errs, "geometry focal lengths must be > 0")
	}
	if g.FieldOfViewDeg <= 0 || g.FieldOfViewDeg >= 360 {
		errs = append(errs, "geometry.field_of_view_deg must be in (0,360)")
	}
	if g.NearFieldCutoffCM < 0 {
		errs = append(errs, "geometry.near_field_cutoff_cm must be >= 0")
	}

	a := c.Approach
	switch a.Strategy {
	case StrategyThreshold:
	case StrategyPolicy:
		if a.Policy.WeightsPath == "" {
			errs = append(errs, "approach.policy.weights_path is required for the policy strategy")
		}
		if a.Policy.DepthChannels < 0 {
			errs = append(errs, "approach.policy.depth_channels must be >= 0")
		}
	default:
		errs = append(errs, fmt.Sprintf("approach.strategy %q is not one of %s, %s", a.Strategy, StrategyThreshold, StrategyPolicy))
	}
	if a.AngleThresholdRad <= 0 {
		errs = append(errs, "approach.angle_threshold_rad must be > 0")
	}
	if a.StopDistanceM <= 0 {
		errs = append(errs, "approach.stop_distance_m must be > 0")
	}

	h := c.Holds
	for name, d := range map[string]Duration{
		"standstill": h.Standstill, "creep": h.Creep, "watering": h.Watering,
		"retreat": h.Retreat, "approach_pulse": h.ApproachPulse,
	} {
		if d < 0 {
			errs = append(errs, fmt.Sprintf("holds.%s must be >= 0", name))
		}
	}

	switch c.Actuator.Kind {
	case "udp", "serial", "http", "dry-run":
	default:
		errs = append(errs, fmt.Sprintf("actuator.kind %q is not one of udp, serial, http, dry-run", c.Actuator.Kind))
	}
	switch c.Source.Kind {
	case "video", "dir", "snapshot":
	default:
		errs = append(errs, fmt.Sprintf("source.kind %q is not one of video, dir, snapshot", c.Source.Kind))
	}

	if len(errs) > 0 {
		sort.Strings(errs)
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
