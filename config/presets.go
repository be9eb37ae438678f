package config

import "sort"

var presets = map[string]func(*Config){
	"tiny": func(c *Config) {
		c.Buffer.MaxBodies = 4
	},
	"zero-g": func(c *Config) {
		c.World.Gravity = [3]float32{}
	},
	"transfer": func(c *Config) {
		c.Buffer.Mode = "transfer"
	},
	"precise": func(c *Config) {
		c.World.Iterations = 30
		c.World.FixedTimeStep = 1.0 / 240.0
		c.World.MaxSubSteps = 16
	},
}

// GetPreset returns the defaults with the named preset applied, or nil.
func GetPreset(name string) *Config {
	apply, ok := presets[name]
	if !ok {
		return nil
	}
	cfg := Default()
	apply(cfg)
	return cfg
}

// Apply layers the named preset onto c. It reports false for unknown names.
func Apply(c *Config, name string) bool {
	apply, ok := presets[name]
	if ok {
		apply(c)
	}
	return ok
}

func ListPresets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
