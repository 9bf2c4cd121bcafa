package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"awacsweep/internal/config"
	"awacsweep/internal/sweep"
)

func TestExitCode_Mapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{nil, ExitSuccess},
		{invalidInvocationf("bad"), ExitInvalidInvocation},
		{&InvocationError{Message: "no code"}, ExitInvalidInvocation},
		{&config.ConfigError{Err: errors.New("x")}, ExitConfigError},
		{fmt.Errorf("wrapped: %w", &config.ConfigError{Err: errors.New("x")}), ExitConfigError},
		{fmt.Errorf("%w: %w", sweep.ErrCancelled, errors.New("signal")), ExitInterrupted},
		{errors.New("boom"), ExitInternalError},
	}
	for _, c := range cases {
		require.Equal(t, c.want, ExitCode(c.err), "%v", c.err)
	}
}

func TestCanonicalize_ResolvesPathsUnderWorkDir(t *testing.T) {
	inv := CLIInvocation{
		WorkDir:     "exp",
		ConfigPath:  "sweep.toml",
		TracePath:   "/abs/trace.json",
		LogDir:      "logs/",
		MetricsPath: "  ",
	}
	require.NoError(t, inv.canonicalize("/home/u"))
	require.Equal(t, "/home/u/exp", inv.WorkDir)
	require.Equal(t, "/home/u/exp/sweep.toml", inv.ConfigPath)
	require.Equal(t, "/abs/trace.json", inv.TracePath)
	require.Equal(t, "/home/u/exp/logs", inv.LogDir)
	require.Empty(t, inv.MetricsPath)
}

func TestCanonicalize_Rejects(t *testing.T) {
	inv := CLIInvocation{WorkDir: "/w", Resume: true, ResumeFrom: "r1"}
	require.Equal(t, ExitInvalidInvocation, ExitCode(inv.canonicalize("/")))

	inv = CLIInvocation{WorkDir: "/w", TracePath: "."}
	require.Equal(t, ExitInvalidInvocation, ExitCode(inv.canonicalize("/")))
}

func TestSettings_PrecedencePresetFileFlags(t *testing.T) {
	mode := "supervised"
	inv := CLIInvocation{
		Preset:    config.PresetUnsupervised,
		Overrides: config.Overrides{Mode: &mode, Lambdas: []float64{3}},
	}
	r, err := inv.Resolve()
	require.NoError(t, err)
	require.Equal(t, "supervised", string(r.Spec.Mode))
	require.Equal(t, []float64{3}, r.Spec.Lambdas)
}

func TestShellJoin(t *testing.T) {
	require.Equal(t, "python run.py --exp_name=a_lam0.1", shellJoin([]string{"python", "run.py", "--exp_name=a_lam0.1"}))
	require.Equal(t, `echo 'two words' '' 'it'\''s'`, shellJoin([]string{"echo", "two words", "", "it's"}))
}
