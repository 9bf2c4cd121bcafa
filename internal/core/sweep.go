package core

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Mode selects between the two template variants of the sweep.
type Mode string

const (
	ModeSupervised   Mode = "supervised"
	ModeUnsupervised Mode = "unsupervised"
)

// ParseMode normalizes a user supplied mode string.
func ParseMode(raw string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeSupervised:
		return ModeSupervised, nil
	case ModeUnsupervised:
		return ModeUnsupervised, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected supervised|unsupervised)", raw)
	}
}

const (
	DefaultInterpreter         = "python"
	DefaultScript              = "cs285/scripts/run_hw5_awac.py"
	DefaultEnvName             = "PointmassEasy-v0"
	DefaultNumExplorationSteps = 20000
	DefaultExpPrefixStem       = "q4_awac_easy"
)

// DefaultLambdas is the coefficient list swept by the reference scripts.
var DefaultLambdas = []float64{0.1, 1, 2, 10, 20, 50}

// BaseInvocation is the fixed part of every invocation: interpreter, script
// and the constant flags understood by the training script.
type BaseInvocation struct {
	Interpreter         string   `json:"interpreter" toml:"interpreter"`
	Script              string   `json:"script" toml:"script"`
	EnvName             string   `json:"env_name" toml:"env_name"`
	UseRND              bool     `json:"use_rnd" toml:"use_rnd"`
	NumExplorationSteps int      `json:"num_exploration_steps" toml:"num_exploration_steps"`
	ExtraArgs           []string `json:"extra_args,omitempty" toml:"extra_args"`
}

// DefaultBase returns the base invocation used by the reference scripts.
func DefaultBase() BaseInvocation {
	return BaseInvocation{
		Interpreter:         DefaultInterpreter,
		Script:              DefaultScript,
		EnvName:             DefaultEnvName,
		UseRND:              true,
		NumExplorationSteps: DefaultNumExplorationSteps,
	}
}

// SweepSpec is the Sweep Configuration: ordered coefficients, base
// invocation, mode and naming template.
type SweepSpec struct {
	Lambdas []float64
	Base    BaseInvocation
	Mode    Mode

	// ExpPrefix overrides the default q4_awac_easy_<mode> prefix.
	ExpPrefix string

	// Env is added on top of the runner's own environment.
	Env map[string]string
}

// Prefix returns the experiment name prefix for the sweep.
func (s SweepSpec) Prefix() string {
	if p := strings.TrimSpace(s.ExpPrefix); p != "" {
		return p
	}
	return DefaultExpPrefixStem + "_" + string(s.Mode)
}

// Validate reports every problem with the sweep at once.
func (s SweepSpec) Validate() error {
	var errs []error
	if len(s.Lambdas) == 0 {
		errs = append(errs, errors.New("at least one lambda is required"))
	}
	seen := make(map[string]int, len(s.Lambdas))
	for i, v := range s.Lambdas {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			errs = append(errs, fmt.Errorf("lambdas[%d] must be finite", i))
			continue
		}
		text := FormatLambda(v)
		if j, dup := seen[text]; dup {
			errs = append(errs, fmt.Errorf("lambdas[%d] duplicates lambdas[%d] (%s): experiment names would collide", i, j, text))
			continue
		}
		seen[text] = i
	}
	switch s.Mode {
	case ModeSupervised, ModeUnsupervised:
	default:
		errs = append(errs, fmt.Errorf("invalid mode %q", s.Mode))
	}
	if strings.TrimSpace(s.Base.Interpreter) == "" {
		errs = append(errs, errors.New("interpreter is required"))
	}
	if strings.TrimSpace(s.Base.Script) == "" {
		errs = append(errs, errors.New("script is required"))
	}
	if strings.TrimSpace(s.Base.EnvName) == "" {
		errs = append(errs, errors.New("env_name is required"))
	}
	if s.Base.NumExplorationSteps < 0 {
		errs = append(errs, errors.New("num_exploration_steps must be >= 0"))
	}
	if strings.ContainsAny(s.Prefix(), " \t\n/") {
		errs = append(errs, fmt.Errorf("exp prefix %q must not contain whitespace or '/'", s.Prefix()))
	}
	for k := range s.Env {
		if strings.TrimSpace(k) == "" || strings.Contains(k, "=") {
			errs = append(errs, fmt.Errorf("invalid env key %q", k))
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// FormatLambda renders a coefficient the way it appears on the command line
// and in the experiment name: the shortest decimal that round-trips, with no
// exponent (0.1, 1, 50).
func FormatLambda(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// ParseLambdas parses a comma separated coefficient list such as "0.1,1,2".
func ParseLambdas(raw string) ([]float64, error) {
	parts := strings.Split(raw, ",")
	out := make([]float64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid lambda %q: %w", p, err)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, errors.New("lambda list is empty")
	}
	return out, nil
}
