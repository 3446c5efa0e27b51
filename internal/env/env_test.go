package env

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeLayersAndExpands(t *testing.T) {
	t.Setenv("XPROCESS_ENV_TEST_BASE", "base")
	e := New()
	e.Set("GLOBAL", "g")
	e.Set("OVERRIDDEN", "global")

	out := Parse(e.Merge(Var{
		"OVERRIDDEN": "proc",
		"REF":        "${GLOBAL}-${XPROCESS_ENV_TEST_BASE}-${MISSING}",
	}, false))

	assert.Equal(t, "base", out["XPROCESS_ENV_TEST_BASE"])
	assert.Equal(t, "g", out["GLOBAL"])
	assert.Equal(t, "proc", out["OVERRIDDEN"])
	assert.Equal(t, "g-base-${MISSING}", out["REF"])
}

func TestMergeClean(t *testing.T) {
	t.Setenv("XPROCESS_ENV_TEST_BASE", "base")
	e := New()
	e.Set("GLOBAL", "g")
	out := e.Merge(Var{"ONLY": "1"}, true)
	require.Equal(t, []string{"ONLY=1"}, out)
}

func TestMergeIsSorted(t *testing.T) {
	out := New().Merge(Var{"B": "2", "A": "1"}, true)
	assert.Equal(t, []string{"A=1", "B=2"}, out)
}

func TestWithSetCopies(t *testing.T) {
	a := New()
	a.Set("X", "1")
	b := a.WithSet("Y", "2")
	assert.NotContains(t, a.Var, "Y")
	assert.Equal(t, "1", b.Var["X"])
	b.Unset("X")
	assert.Equal(t, "1", a.Var["X"])
}

func TestParseSkipsMalformed(t *testing.T) {
	m := Parse([]string{"A=1", "=bad", "novalue", "B=x=y"})
	assert.Equal(t, Var{"A": "1", "B": "x=y"}, m)
}
