package registry

import (
	"fmt"
	"sort"
	"time"

	"github.com/spf13/viper"
)

// Preset bundles a category selection with execution limits. The built-in
// presets can be overridden or extended from a YAML file.
type Preset struct {
	Name          string        `mapstructure:"name" json:"name"`
	Description   string        `mapstructure:"description" json:"description"`
	Categories    []Category    `mapstructure:"categories" json:"categories"`
	MaxParallel   int           `mapstructure:"max_parallel" json:"max_parallel"`
	CheckTimeout  time.Duration `mapstructure:"check_timeout" json:"check_timeout"`
	RedTeam       bool          `mapstructure:"red_team" json:"red_team"`
	MaxScenarios  int           `mapstructure:"max_scenarios" json:"max_scenarios"`
	MaxIterations int           `mapstructure:"max_iterations" json:"max_iterations"`
}

func builtinPresets() map[string]Preset {
	return map[string]Preset{
		"quick": {
			Name:         "quick",
			Description:  "Protocol and schema surface only, fast feedback",
			Categories:   []Category{CategoryProtocolRobustness, CategorySchemaAbuse},
			MaxParallel:  4,
			CheckTimeout: 15 * time.Second,
		},
		"standard": {
			Name:        "standard",
			Description: "All deterministic categories",
			Categories: []Category{
				CategoryProtocolRobustness, CategorySchemaAbuse,
				CategoryBoundaryViolation, CategoryAuthValidation,
				CategoryResourceExhaustion, CategoryDataLeakage,
			},
			MaxParallel:  8,
			CheckTimeout: 30 * time.Second,
		},
		"deep": {
			Name:        "deep",
			Description: "All deterministic categories plus the autonomous red team",
			Categories: []Category{
				CategoryProtocolRobustness, CategorySchemaAbuse,
				CategoryBoundaryViolation, CategoryAuthValidation,
				CategoryResourceExhaustion, CategoryDataLeakage,
				CategoryAIRedTeam,
			},
			MaxParallel:   8,
			CheckTimeout:  30 * time.Second,
			RedTeam:       true,
			MaxScenarios:  5,
			MaxIterations: 12,
		},
	}
}

// PresetCatalog resolves preset names, merging built-ins with an optional
// override file.
type PresetCatalog struct {
	presets map[string]Preset
}

// NewPresetCatalog returns the built-in catalog.
func NewPresetCatalog() *PresetCatalog {
	return &PresetCatalog{presets: builtinPresets()}
}

// LoadPresetFile merges presets from a YAML file over the built-ins.
// File entries with the same name replace built-in presets.
func (pc *PresetCatalog) LoadPresetFile(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read preset file %s: %w", path, err)
	}

	var file struct {
		Presets []Preset `mapstructure:"presets"`
	}
	if err := v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse preset file %s: %w", path, err)
	}

	for _, p := range file.Presets {
		if p.Name == "" {
			return fmt.Errorf("preset file %s: preset without a name", path)
		}
		for _, c := range p.Categories {
			if !ValidCategory(string(c)) {
				return fmt.Errorf("preset %s: unknown category %q", p.Name, c)
			}
		}
		pc.presets[p.Name] = p
	}
	return nil
}

// Get resolves a preset by name.
func (pc *PresetCatalog) Get(name string) (Preset, bool) {
	p, ok := pc.presets[name]
	return p, ok
}

// List returns every preset sorted by name.
func (pc *PresetCatalog) List() []Preset {
	out := make([]Preset, 0, len(pc.presets))
	for _, p := range pc.presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
