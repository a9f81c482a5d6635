package env

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Preset is a named environment loaded from a YAML scenario file.
type Preset struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description,omitempty"`
	Environment Environment `yaml:"environment"`
}

// presetFile is the on-disk shape: a list of presets under one key.
type presetFile struct {
	Presets []Preset `yaml:"presets"`
}

// LoadPresets reads and validates a YAML preset file. Every preset must
// carry a unique name and a valid environment; one bad entry rejects the
// whole file so a half-loaded library never serves requests.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read presets: %w", err)
	}

	var pf presetFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return nil, fmt.Errorf("parse presets: %w", err)
	}
	if len(pf.Presets) == 0 {
		return nil, fmt.Errorf("preset file %s contains no presets", path)
	}

	seen := make(map[string]bool, len(pf.Presets))
	for i, p := range pf.Presets {
		if p.Name == "" {
			return nil, fmt.Errorf("preset %d has no name", i)
		}
		if seen[p.Name] {
			return nil, fmt.Errorf("duplicate preset name %q", p.Name)
		}
		seen[p.Name] = true
		if err := p.Environment.Validate(); err != nil {
			return nil, fmt.Errorf("preset %q: %w", p.Name, err)
		}
	}
	return pf.Presets, nil
}

// FindPreset returns the preset with the given name.
func FindPreset(presets []Preset, name string) (Preset, error) {
	for _, p := range presets {
		if p.Name == name {
			return p, nil
		}
	}
	return Preset{}, fmt.Errorf("no preset named %q", name)
}
