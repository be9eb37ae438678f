package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultGravityY      = -9.8
	DefaultIterations    = 10
	DefaultFixedTimeStep = 1.0 / 60.0
	DefaultMaxSubSteps   = 4
	DefaultMaxBodies     = 10000
	DefaultDebugSize     = 65536
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	World  WorldConfig  `yaml:"world"`
	Buffer BufferConfig `yaml:"buffer"`
	Loop   LoopConfig   `yaml:"loop"`
	Queue  QueueConfig  `yaml:"queue"`
	Debug  DebugConfig  `yaml:"debug"`
}

type WorldConfig struct {
	Gravity            [3]float32 `yaml:"gravity"`
	Iterations         int        `yaml:"iterations"`
	Damping            float64    `yaml:"damping"`
	FixedTimeStep      float64    `yaml:"fixed_time_step"`
	MaxSubSteps        int        `yaml:"max_sub_steps"`
	SleepTimeThreshold float64    `yaml:"sleep_time_threshold"`
}

type BufferConfig struct {
	MaxBodies int    `yaml:"max_bodies"`
	Mode      string `yaml:"mode"`
}

type LoopConfig struct {
	// Interval between tick attempts. Zero busy-polls.
	Interval time.Duration `yaml:"interval"`
}

type QueueConfig struct {
	// MaxRetries bounds how many ticks a request may wait on a missing
	// dependency. Zero waits forever.
	MaxRetries int `yaml:"max_retries"`
}

type DebugConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
}

func Default() *Config {
	return &Config{
		World: WorldConfig{
			Gravity:       [3]float32{0, DefaultGravityY, 0},
			Iterations:    DefaultIterations,
			Damping:       1,
			FixedTimeStep: DefaultFixedTimeStep,
			MaxSubSteps:   DefaultMaxSubSteps,
		},
		Buffer: BufferConfig{
			MaxBodies: DefaultMaxBodies,
			Mode:      "shared",
		},
		Debug: DebugConfig{
			BufferSize: DefaultDebugSize,
		},
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: load %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	switch {
	case c.Buffer.MaxBodies <= 0:
		return fmt.Errorf("%w: buffer.max_bodies must be positive, got %d", ErrInvalid, c.Buffer.MaxBodies)
	case c.Buffer.Mode != "" && c.Buffer.Mode != "shared" && c.Buffer.Mode != "transfer":
		return fmt.Errorf("%w: buffer.mode %q", ErrInvalid, c.Buffer.Mode)
	case c.World.Iterations < 0:
		return fmt.Errorf("%w: world.iterations %d", ErrInvalid, c.World.Iterations)
	case c.World.FixedTimeStep < 0:
		return fmt.Errorf("%w: world.fixed_time_step %v", ErrInvalid, c.World.FixedTimeStep)
	case c.World.MaxSubSteps < 0:
		return fmt.Errorf("%w: world.max_sub_steps %d", ErrInvalid, c.World.MaxSubSteps)
	case c.World.Damping < 0 || c.World.Damping > 1:
		return fmt.Errorf("%w: world.damping %v outside [0,1]", ErrInvalid, c.World.Damping)
	case c.Loop.Interval < 0:
		return fmt.Errorf("%w: loop.interval %v", ErrInvalid, c.Loop.Interval)
	case c.Queue.MaxRetries < 0:
		return fmt.Errorf("%w: queue.max_retries %d", ErrInvalid, c.Queue.MaxRetries)
	case c.Debug.Enabled && c.Debug.BufferSize <= 0:
		return fmt.Errorf("%w: debug.buffer_size must be positive", ErrInvalid)
	}
	return nil
}
