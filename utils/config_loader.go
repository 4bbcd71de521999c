package utils

import (
	"fmt"
	"os"
	"strings"

	"github.com/golang/geo/r3"
	"gopkg.in/yaml.v3"

	"imu-fusion/models"
)

// ─── Fusion settings ────────────────────────────────────────────────────

// FusionSection mirrors models.Settings in the config file. Convention is
// decoded from "nwu", "enu" or "ned".
type FusionSection struct {
	SampleRate            int               `yaml:"sample_rate"`
	Convention            models.Convention `yaml:"convention"`
	Gain                  float64           `yaml:"gain"`
	GyroscopeRange        float64           `yaml:"gyroscope_range"`
	AccelerationRejection float64           `yaml:"acceleration_rejection"`
	MagneticRejection     float64           `yaml:"magnetic_rejection"`
	RecoveryTriggerPeriod *int              `yaml:"recovery_trigger_period"` // samples; nil = 4 s worth
	Initial               *models.Euler     `yaml:"initial"`                 // starting orientation, identity if nil
}

// ─── Simulated IMU ──────────────────────────────────────────────────────

// Disturbance kinds.
const (
	DisturbAcceleration = "acceleration"
	DisturbMagnetic     = "magnetic"
)

// DisturbanceConfig adds Magnitude along the sensor X axis of one
// reference sensor for a time window.
type DisturbanceConfig struct {
	Kind            string  `yaml:"kind"`
	StartSeconds    float64 `yaml:"start_seconds"`
	DurationSeconds float64 `yaml:"duration_seconds"`
	Magnitude       float64 `yaml:"magnitude"` // g or field units
}

type SimulationConfig struct {
	Seed            int64               `yaml:"seed"`
	DurationSeconds int                 `yaml:"duration_seconds"` // real-time mode only; 0 = until signalled
	ChannelBuffer   int                 `yaml:"channel_buffer"`
	Orientation     models.Euler        `yaml:"orientation"`   // true starting orientation, degrees
	RotationRate    r3.Vector           `yaml:"rotation_rate"` // deg/s, sensor frame
	GyroBias        r3.Vector           `yaml:"gyro_bias"`     // deg/s
	GyroNoise       float64             `yaml:"gyro_noise"`    // deg/s, 1 sigma
	AccelNoise      float64             `yaml:"accel_noise"`   // g, 1 sigma
	MagNoise        float64             `yaml:"mag_noise"`
	FieldHorizontal float64             `yaml:"field_horizontal"` // towards north
	FieldVertical   float64             `yaml:"field_vertical"`   // positive points down
	Disturbances    []DisturbanceConfig `yaml:"disturbances"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// FusionConfig is the top-level structure for fusion.yaml.
type FusionConfig struct {
	Fusion     FusionSection    `yaml:"fusion"`
	Simulation SimulationConfig `yaml:"simulation"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// DefaultFusionConfig returns the values used for keys absent from the
// file.
func DefaultFusionConfig() FusionConfig {
	return FusionConfig{
		Fusion: FusionSection{
			SampleRate:            15,
			Convention:            models.NWU,
			Gain:                  0.789,
			GyroscopeRange:        1000,
			AccelerationRejection: 10,
			MagneticRejection:     10,
		},
		Simulation: SimulationConfig{
			Seed:            1,
			ChannelBuffer:   512,
			GyroNoise:       0.05,
			AccelNoise:      0.002,
			MagNoise:        0.2,
			FieldHorizontal: 20,
			FieldVertical:   45,
		},
		Logging: LoggingConfig{Level: "info"},
	}
}

// Settings maps the fusion section onto engine settings.
func (c *FusionConfig) Settings() models.Settings {
	f := c.Fusion
	period := 4 * f.SampleRate
	if f.RecoveryTriggerPeriod != nil {
		period = *f.RecoveryTriggerPeriod
	}
	return models.Settings{
		SampleRate:            f.SampleRate,
		Convention:            f.Convention,
		Gain:                  f.Gain,
		GyroscopeRange:        f.GyroscopeRange,
		AccelerationRejection: f.AccelerationRejection,
		MagneticRejection:     f.MagneticRejection,
		RecoveryTriggerPeriod: period,
	}
}

// Validate checks the engine settings and the simulation block.
func (c *FusionConfig) Validate() error {
	if err := c.Settings().Validate(); err != nil {
		return err
	}
	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	for i, d := range c.Simulation.Disturbances {
		switch d.Kind {
		case DisturbAcceleration, DisturbMagnetic:
		default:
			return fmt.Errorf("simulation.disturbances[%d]: unknown kind %q", i, d.Kind)
		}
		if d.DurationSeconds <= 0 || d.StartSeconds < 0 {
			return fmt.Errorf("simulation.disturbances[%d]: window [%v, +%v] is empty or negative",
				i, d.StartSeconds, d.DurationSeconds)
		}
	}
	return nil
}

// ─── Storage configs ────────────────────────────────────────────────────

type CSVStorageConfig struct {
	FlushIntervalMs int  `yaml:"flush_interval_ms"`
	BufferSizeKB    int  `yaml:"buffer_size_kb"`
	WriteHeader     bool `yaml:"write_header"`
}

type DatalogConfig struct {
	Enabled  bool   `yaml:"enabled"`
	FileName string `yaml:"file_name"`
}

type StorageConfig struct {
	Storage struct {
		BaseDir       string           `yaml:"base_dir"`
		SessionPrefix string           `yaml:"session_prefix"`
		CSV           CSVStorageConfig `yaml:"csv"`
		Datalog       DatalogConfig    `yaml:"datalog"`
		Overwrite     bool             `yaml:"overwrite"`
	} `yaml:"storage"`
}

// ─── Loaders ────────────────────────────────────────────────────────────

// LoadFusionConfig reads, parses and validates fusion.yaml. Absent keys
// keep the DefaultFusionConfig values.
func LoadFusionConfig(path string) (*FusionConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fusion config: %w", err)
	}
	cfg := DefaultFusionConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse fusion config: %w", err)
	}
	for i := range cfg.Simulation.Disturbances {
		d := &cfg.Simulation.Disturbances[i]
		d.Kind = strings.ToLower(strings.TrimSpace(d.Kind))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("fusion config: %w", err)
	}
	return &cfg, nil
}

// LoadStorageConfig reads and parses storage.yaml.
func LoadStorageConfig(path string) (*StorageConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read storage config: %w", err)
	}
	var cfg StorageConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse storage config: %w", err)
	}
	if cfg.Storage.BaseDir == "" {
		cfg.Storage.BaseDir = "sessions"
	}
	if cfg.Storage.SessionPrefix == "" {
		cfg.Storage.SessionPrefix = "fusion"
	}
	if cfg.Storage.Datalog.FileName == "" {
		cfg.Storage.Datalog.FileName = "outputs.db"
	}
	return &cfg, nil
}
