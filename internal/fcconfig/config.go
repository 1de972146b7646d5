// Package fcconfig loads and persists the flight core's gain file.
// A missing file is a recoverable error: defaults are used and an
// attempt is made to persist them, with a warning logged — never a
// startup failure.
package fcconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/arobi/flightcore/internal/fcstate"
	"github.com/arobi/flightcore/internal/obslog"
)

// fileFormat mirrors fcstate.Config with YAML tags; kept separate so
// the in-memory shared-state type stays free of serialization concerns.
type fileFormat struct {
	RollKP float64 `yaml:"roll_kp"`
	RollKI float64 `yaml:"roll_ki"`
	RollKD float64 `yaml:"roll_kd"`

	PitchKP float64 `yaml:"pitch_kp"`
	PitchKI float64 `yaml:"pitch_ki"`
	PitchKD float64 `yaml:"pitch_kd"`

	YawKP float64 `yaml:"yaw_kp"`
	YawKI float64 `yaml:"yaw_ki"`
	YawKD float64 `yaml:"yaw_kd"`

	IdleThrottle float64 `yaml:"idle_throttle"`

	MaxRollSetpoint  float64 `yaml:"max_roll_setpoint"`
	MaxPitchSetpoint float64 `yaml:"max_pitch_setpoint"`
	MaxYawRate       float64 `yaml:"max_yaw_rate"`

	RollRatePerRad  float64 `yaml:"roll_rate_per_rad"`
	PitchRatePerRad float64 `yaml:"pitch_rate_per_rad"`
}

// Default returns the factory gain set, used whenever no config file
// is found on disk.
func Default() fcstate.Config {
	return fcstate.Config{
		RollKP: 0.4, RollKI: 0.2, RollKD: 0.01,
		PitchKP: 0.4, PitchKI: 0.2, PitchKD: 0.01,
		YawKP: 0.5, YawKI: 0.1, YawKD: 0,
		IdleThrottle:     0.1,
		MaxRollSetpoint:  0.4,
		MaxPitchSetpoint: 0.4,
		MaxYawRate:       2.5,
		RollRatePerRad:   4.0,
		PitchRatePerRad:  4.0,
	}
}

// Load reads path, falling back to (and attempting to persist)
// defaults if the file does not exist.
func Load(path string) (fcstate.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			obslog.Logger.WithField("path", path).Warn("no configuration file found, using defaults")
			def := Default()
			if saveErr := Save(path, def); saveErr != nil {
				obslog.Logger.WithError(saveErr).Warn("failed to persist default configuration")
			}
			return def, nil
		}
		return fcstate.Config{}, err
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fcstate.Config{}, err
	}
	return toState(f), nil
}

// Save writes cfg to path as YAML.
func Save(path string, cfg fcstate.Config) error {
	f := fromState(cfg)
	data, err := yaml.Marshal(f)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func toState(f fileFormat) fcstate.Config {
	return fcstate.Config{
		RollKP: f.RollKP, RollKI: f.RollKI, RollKD: f.RollKD,
		PitchKP: f.PitchKP, PitchKI: f.PitchKI, PitchKD: f.PitchKD,
		YawKP: f.YawKP, YawKI: f.YawKI, YawKD: f.YawKD,
		IdleThrottle:     f.IdleThrottle,
		MaxRollSetpoint:  f.MaxRollSetpoint,
		MaxPitchSetpoint: f.MaxPitchSetpoint,
		MaxYawRate:       f.MaxYawRate,
		RollRatePerRad:   f.RollRatePerRad,
		PitchRatePerRad:  f.PitchRatePerRad,
	}
}

func fromState(c fcstate.Config) fileFormat {
	return fileFormat{
		RollKP: c.RollKP, RollKI: c.RollKI, RollKD: c.RollKD,
		PitchKP: c.PitchKP, PitchKI: c.PitchKI, PitchKD: c.PitchKD,
		YawKP: c.YawKP, YawKI: c.YawKI, YawKD: c.YawKD,
		IdleThrottle:     c.IdleThrottle,
		MaxRollSetpoint:  c.MaxRollSetpoint,
		MaxPitchSetpoint: c.MaxPitchSetpoint,
		MaxYawRate:       c.MaxYawRate,
		RollRatePerRad:   c.RollRatePerRad,
		PitchRatePerRad:  c.PitchRatePerRad,
	}
}
