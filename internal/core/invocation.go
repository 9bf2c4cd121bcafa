package core

import (
	"fmt"
	"sort"
	"strconv"
)

const (
	FlagEnvName                 = "--env_name"
	FlagUseRND                  = "--use_rnd"
	FlagNumExplorationSteps     = "--num_exploration_steps"
	FlagUnsupervisedExploration = "--unsupervised_exploration"
	FlagAWACLambda              = "--awac_lambda"
	FlagExpName                 = "--exp_name"
)

// Invocation is one child process of the sweep.
type Invocation struct {
	// Index is the position of the coefficient in the sweep list.
	Index int

	Lambda float64

	// ExpName is <prefix>_lam<lambda>; unique within a sweep.
	ExpName string

	// Argv[0] is the interpreter.
	Argv []string

	// Env holds variables added to the runner's environment.
	Env map[string]string
}

// LambdaText is the exact text passed as --awac_lambda.
func (inv Invocation) LambdaText() string { return FormatLambda(inv.Lambda) }

// ExpName returns the experiment identifier for a single coefficient.
func ExpName(prefix string, lambda float64) string {
	return prefix + "_lam" + FormatLambda(lambda)
}

// BaseArgv builds the argument list shared by every invocation of the sweep.
func (s SweepSpec) BaseArgv() []string {
	argv := []string{s.Base.Interpreter, s.Base.Script, FlagEnvName, s.Base.EnvName}
	if s.Base.UseRND {
		argv = append(argv, FlagUseRND)
	}
	argv = append(argv, FlagNumExplorationSteps, strconv.Itoa(s.Base.NumExplorationSteps))
	argv = append(argv, s.Base.ExtraArgs...)
	return argv
}

// BuildInvocations expands the sweep into one invocation per coefficient, in
// list order.
func BuildInvocations(s SweepSpec) ([]Invocation, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sweep: %w", err)
	}

	prefix := s.Prefix()
	base := s.BaseArgv()
	out := make([]Invocation, 0, len(s.Lambdas))
	for i, lam := range s.Lambdas {
		argv := make([]string, 0, len(base)+3)
		argv = append(argv, base...)
		if s.Mode == ModeUnsupervised {
			argv = append(argv, FlagUnsupervisedExploration)
		}
		name := ExpName(prefix, lam)
		argv = append(argv,
			FlagAWACLambda+"="+FormatLambda(lam),
			FlagExpName+"="+name,
		)
		out = append(out, Invocation{
			Index:   i,
			Lambda:  lam,
			ExpName: name,
			Argv:    argv,
			Env:     copyEnv(s.Env),
		})
	}
	return out, nil
}

func copyEnv(env map[string]string) map[string]string {
	if len(env) == 0 {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// sortedEnvPairs returns KEY=VALUE pairs sorted by key.
func sortedEnvPairs(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
