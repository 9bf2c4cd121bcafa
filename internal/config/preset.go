package config

import (
	"fmt"
	"sort"

	"awacsweep/internal/core"
)

const (
	PresetSupervised   = "q4-supervised"
	PresetUnsupervised = "q4-unsupervised"
)

type preset struct {
	description string
	settings    func() Settings
}

var presets = map[string]preset{
	PresetSupervised: {
		description: "AWAC lambda sweep on PointmassEasy-v0 with RND, supervised",
		settings:    func() Settings { return q4(core.ModeSupervised) },
	},
	PresetUnsupervised: {
		description: "AWAC lambda sweep on PointmassEasy-v0 with RND, unsupervised exploration",
		settings:    func() Settings { return q4(core.ModeUnsupervised) },
	},
}

func q4(mode core.Mode) Settings {
	return Settings{
		Mode:    string(mode),
		Lambdas: append([]float64(nil), core.DefaultLambdas...),
		Base:    core.DefaultBase(),
	}
}

// Preset returns the settings of a built-in preset.
func Preset(name string) (Settings, error) {
	p, ok := presets[name]
	if !ok {
		return Settings{}, &ConfigError{Err: fmt.Errorf("unknown preset %q (available: %v)", name, PresetNames())}
	}
	return p.settings(), nil
}

// PresetNames lists the built-in presets, sorted.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PresetDescription returns the one-line description of a preset.
func PresetDescription(name string) string {
	return presets[name].description
}
