package model

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/magnomatos822/replicatorg/coord"
)

// Config is a machine description, loaded from YAML.
type Config struct {
	Name     string                `yaml:"name"`
	Driver   string                `yaml:"driver"`
	Axes     map[string]AxisConfig `yaml:"axes"`
	Tools    []ToolConfig          `yaml:"tools"`
	Leveling *LevelingConfig       `yaml:"leveling,omitempty"`
}

// AxisConfig holds the conversion factors for one axis.
type AxisConfig struct {
	StepsPerMM  float64 `yaml:"steps_per_mm"`
	MaxFeedrate float64 `yaml:"max_feedrate"`
}

// ToolConfig describes a tool. StepAxis optionally names the axis the tool
// motor is wired to.
type ToolConfig struct {
	Name     string      `yaml:"name"`
	Index    int         `yaml:"index"`
	StepAxis string      `yaml:"step_axis,omitempty"`
	Motor    MotorConfig `yaml:"motor"`
}

type MotorConfig struct {
	SpeedRPM    float64 `yaml:"speed_rpm"`
	StepsPerRev float64 `yaml:"steps_per_rev"`
	Direction   string  `yaml:"direction"`
	Enabled     bool    `yaml:"enabled"`
}

// LevelingConfig lists probed bed heights used for mesh leveling. Heights
// are measured against Reference.
type LevelingConfig struct {
	Granularity float64      `yaml:"granularity"`
	Reference   float64      `yaml:"reference"`
	Points      [][3]float64 `yaml:"points"`
}

// Probes returns the leveling points as coordinates.
func (l *LevelingConfig) Probes() []coord.Point {
	res := make([]coord.Point, len(l.Points))
	for i, p := range l.Points {
		res[i] = coord.Point{X: p[0], Y: p[1], Z: p[2]}
	}
	return res
}

// LoadConfig reads a machine description from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("machine config: read %s: %w", path, err)
	}
	return ParseConfig(data)
}

// ParseConfig unmarshals and validates a machine description.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("machine config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Name == "" {
		c.Name = "Unknown Machine"
	}
	if c.Driver == "" {
		c.Driver = "makerbot4g"
	}
	for name, a := range c.Axes {
		if a.MaxFeedrate == 0 {
			a.MaxFeedrate = DefaultMaxFeedrate
			c.Axes[name] = a
		}
	}
	if c.Leveling != nil && c.Leveling.Granularity == 0 {
		c.Leveling.Granularity = 5
	}
}

func (c *Config) validate() error {
	var errs []string
	if len(c.Axes) == 0 {
		errs = append(errs, "at least one axis is required")
	}
	for name, a := range c.Axes {
		if _, err := coord.ParseAxis(name); err != nil {
			errs = append(errs, fmt.Sprintf("axes.%s: unknown axis", name))
		}
		if a.StepsPerMM <= 0 {
			errs = append(errs, fmt.Sprintf("axes.%s.steps_per_mm must be positive", name))
		}
		if a.MaxFeedrate < 0 {
			errs = append(errs, fmt.Sprintf("axes.%s.max_feedrate must be positive", name))
		}
	}
	seen := make(map[int]bool)
	for i, t := range c.Tools {
		if seen[t.Index] {
			errs = append(errs, fmt.Sprintf("tools[%d].index %d is repeated", i, t.Index))
		}
		seen[t.Index] = true
		if _, err := ParseDirection(t.Motor.Direction); err != nil {
			errs = append(errs, fmt.Sprintf("tools[%d].motor.direction: %v", i, err))
		}
	}
	if c.Leveling != nil && len(c.Leveling.Points) < 3 {
		errs = append(errs, "leveling needs at least 3 points")
	}
	if len(errs) > 0 {
		return fmt.Errorf("machine config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// Machine builds a fresh machine model from the description. Step axes are
// not seized yet; that happens when a driver binds the model.
func (c *Config) Machine() *Machine {
	var axes []coord.Axis
	var spm, maxFeed coord.Point
	for name, ac := range c.Axes {
		a, err := coord.ParseAxis(name)
		if err != nil {
			continue
		}
		axes = append(axes, a)
		spm = spm.SetAxis(a, ac.StepsPerMM)
		maxFeed = maxFeed.SetAxis(a, ac.MaxFeedrate)
	}
	m := NewMachine(c.Name, axes...)
	m.StepsPerMM = spm
	m.MaxFeedrate = maxFeed
	for _, tc := range c.Tools {
		dir, _ := ParseDirection(tc.Motor.Direction)
		name := tc.Name
		if name == "" {
			name = fmt.Sprintf("tool%d", tc.Index)
		}
		m.AddTool(&Tool{
			Index:            tc.Index,
			Name:             name,
			MotorSpeedRPM:    tc.Motor.SpeedRPM,
			MotorStepsPerRev: tc.Motor.StepsPerRev,
			MotorDirection:   dir,
			MotorEnabled:     tc.Motor.Enabled,
			StepAxis:         tc.StepAxis,
		})
	}
	return m
}
