package core

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func mustInvocations(t *testing.T, spec SweepSpec) []Invocation {
	t.Helper()
	invs, err := BuildInvocations(spec)
	require.NoError(t, err)
	return invs
}

func TestComputeSweepHash_Deterministic(t *testing.T) {
	spec := referenceSpec(ModeSupervised, DefaultLambdas...)
	h1 := ComputeSweepHash("/work", mustInvocations(t, spec))
	h2 := ComputeSweepHash("/work", mustInvocations(t, spec))
	require.Equal(t, h1, h2)
	require.Len(t, h1.String(), 64)
	require.Len(t, h1.Short(), 12)
}

func TestComputeSweepHash_ChangesWithSweepIdentity(t *testing.T) {
	base := ComputeSweepHash("/work", mustInvocations(t, referenceSpec(ModeSupervised, 0.1, 1)))

	cases := map[string]SweepHash{
		"mode":    ComputeSweepHash("/work", mustInvocations(t, referenceSpec(ModeUnsupervised, 0.1, 1))),
		"order":   ComputeSweepHash("/work", mustInvocations(t, referenceSpec(ModeSupervised, 1, 0.1))),
		"lambdas": ComputeSweepHash("/work", mustInvocations(t, referenceSpec(ModeSupervised, 0.1, 2))),
		"workdir": ComputeSweepHash("/other", mustInvocations(t, referenceSpec(ModeSupervised, 0.1, 1))),
	}
	for name, h := range cases {
		require.NotEqual(t, base, h, name)
	}

	withEnv := referenceSpec(ModeSupervised, 0.1, 1)
	withEnv.Env = map[string]string{"SEED": "1"}
	require.NotEqual(t, base, ComputeSweepHash("/work", mustInvocations(t, withEnv)))
}

func TestComputeSweepHash_EnvOrderIndependent(t *testing.T) {
	a := referenceSpec(ModeSupervised, 1)
	a.Env = map[string]string{"A": "1", "B": "2", "C": "3"}
	b := referenceSpec(ModeSupervised, 1)
	b.Env = map[string]string{"C": "3", "A": "1", "B": "2"}
	require.Equal(t,
		ComputeSweepHash("/w", mustInvocations(t, a)),
		ComputeSweepHash("/w", mustInvocations(t, b)))
}
