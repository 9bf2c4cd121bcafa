// Package config resolves a sweep from a built-in preset, an optional TOML
// file and command-line overrides, in that order of increasing precedence.
package config

import (
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pingcap/errors"

	"awacsweep/internal/core"
	"awacsweep/internal/sweep"
)

// Settings is the unresolved sweep configuration as it appears in a TOML
// file.
type Settings struct {
	Mode          string              `toml:"mode"`
	ExpPrefix     string              `toml:"exp_prefix"`
	Lambdas       []float64           `toml:"lambdas"`
	Grid          *core.Grid          `toml:"grid"`
	Base          core.BaseInvocation `toml:"base"`
	Env           map[string]string   `toml:"env"`
	FailurePolicy string              `toml:"failure_policy"`
	Parallel      int                 `toml:"parallel"`
}

// Resolved is a validated sweep ready to be built into invocations.
type Resolved struct {
	Spec     core.SweepSpec
	Policy   sweep.FailurePolicy
	Parallel int
}

// ConfigError reports an unusable configuration source.
type ConfigError struct {
	Source string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Source == "" {
		return fmt.Sprintf("invalid configuration: %v", e.Err)
	}
	return fmt.Sprintf("invalid configuration %s: %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Defaults returns settings equal to the q4-supervised preset.
func Defaults() Settings {
	s, _ := Preset(PresetSupervised)
	return s
}

// LoadFile decodes path on top of s. Keys absent from the file keep their
// current values; unknown keys are an error.
func LoadFile(path string, s *Settings) error {
	fromFile := s.clone()
	meta, err := toml.DecodeFile(path, &fromFile)
	if err != nil {
		return &ConfigError{Source: path, Err: errors.Annotate(err, "decode toml")}
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		sort.Strings(keys)
		return &ConfigError{Source: path, Err: errors.Errorf("unknown configuration keys: %s", strings.Join(keys, ", "))}
	}

	hasLambdas, hasGrid := meta.IsDefined("lambdas"), meta.IsDefined("grid")
	switch {
	case hasLambdas && hasGrid:
		return &ConfigError{Source: path, Err: errors.New("lambdas and grid are mutually exclusive")}
	case hasGrid:
		fromFile.Lambdas = nil
	case hasLambdas:
		fromFile.Grid = nil
	}
	*s = fromFile
	return nil
}

// clone returns a copy that shares no slices, maps or pointers with s, so
// that a failed decode cannot leave s half-updated.
func (s Settings) clone() Settings {
	c := s
	c.Lambdas = append([]float64(nil), s.Lambdas...)
	c.Base.ExtraArgs = append([]string(nil), s.Base.ExtraArgs...)
	if s.Grid != nil {
		g := *s.Grid
		c.Grid = &g
	}
	if s.Env != nil {
		c.Env = make(map[string]string, len(s.Env))
		for k, v := range s.Env {
			c.Env[k] = v
		}
	}
	return c
}

// Overrides carries command-line values; nil fields were not given.
type Overrides struct {
	Mode                *string
	ExpPrefix           *string
	Lambdas             []float64
	Interpreter         *string
	Script              *string
	EnvName             *string
	UseRND              *bool
	NumExplorationSteps *int
	ExtraArgs           []string
	FailurePolicy       *string
	Parallel            *int
}

// Apply copies every set override into s.
func (o Overrides) Apply(s *Settings) {
	if o.Mode != nil {
		s.Mode = *o.Mode
	}
	if o.ExpPrefix != nil {
		s.ExpPrefix = *o.ExpPrefix
	}
	if o.Lambdas != nil {
		s.Lambdas = append([]float64(nil), o.Lambdas...)
		s.Grid = nil
	}
	if o.Interpreter != nil {
		s.Base.Interpreter = *o.Interpreter
	}
	if o.Script != nil {
		s.Base.Script = *o.Script
	}
	if o.EnvName != nil {
		s.Base.EnvName = *o.EnvName
	}
	if o.UseRND != nil {
		s.Base.UseRND = *o.UseRND
	}
	if o.NumExplorationSteps != nil {
		s.Base.NumExplorationSteps = *o.NumExplorationSteps
	}
	if len(o.ExtraArgs) > 0 {
		s.Base.ExtraArgs = append(append([]string(nil), s.Base.ExtraArgs...), o.ExtraArgs...)
	}
	if o.FailurePolicy != nil {
		s.FailurePolicy = *o.FailurePolicy
	}
	if o.Parallel != nil {
		s.Parallel = *o.Parallel
	}
}

// Resolve normalizes and validates s.
func (s Settings) Resolve() (*Resolved, error) {
	var errs []error

	mode, err := core.ParseMode(s.Mode)
	if err != nil {
		errs = append(errs, err)
	}
	policy, err := sweep.ParseFailurePolicy(s.FailurePolicy)
	if err != nil {
		errs = append(errs, err)
	}
	parallel := s.Parallel
	if parallel == 0 {
		parallel = 1
	}
	if parallel < 0 {
		errs = append(errs, fmt.Errorf("parallel must be >= 1 (got %d)", s.Parallel))
	}

	lambdas := s.Lambdas
	if s.Grid != nil {
		lambdas, err = s.Grid.Lambdas()
		if err != nil {
			errs = append(errs, err)
		}
	}

	spec := core.SweepSpec{
		Lambdas:   append([]float64(nil), lambdas...),
		Base:      s.Base,
		Mode:      mode,
		ExpPrefix: strings.TrimSpace(s.ExpPrefix),
		Env:       s.Env,
	}
	if mode != "" {
		if err := spec.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return nil, &ConfigError{Err: joinErrors(errs)}
	}
	return &Resolved{Spec: spec, Policy: policy, Parallel: parallel}, nil
}

func joinErrors(errs []error) error {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error())
	}
	return errors.New(strings.Join(msgs, "; "))
}
