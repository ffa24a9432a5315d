// Package apptest builds engines over throwaway stores for the domain
// procedure tests.
package apptest

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/roach88/crudkit/internal/catalog"
	"github.com/roach88/crudkit/internal/engine"
	"github.com/roach88/crudkit/internal/ir"
	"github.com/roach88/crudkit/internal/testutil"
)

// Env is an engine over a migrated temporary database.
type Env struct {
	T      *testing.T
	Engine *engine.Engine
	Clock  *testutil.DeterministicClock
}

// New opens a fresh store with the default catalog, a deterministic clock
// and sequential request IDs, then runs each register function.
func New(t *testing.T, register ...func(*engine.Engine) error) *Env {
	t.Helper()
	return NewWithClock(t, testutil.NewDeterministicClock(), register...)
}

// NewWithClock is New with a caller-supplied clock.
func NewWithClock(t *testing.T, clock *testutil.DeterministicClock, register ...func(*engine.Engine) error) *Env {
	t.Helper()
	e, err := engine.Open(context.Background(), engine.OpenConfig{
		Path:  filepath.Join(t.TempDir(), "app.db"),
		Specs: catalog.MustDefault(),
		Clock: clock,
	}, zaptest.NewLogger(t), engine.WithRequestIDs(testutil.NewSequentialIDs("")))
	require.NoError(t, err)
	t.Cleanup(func() { e.Store().Close() })

	for _, fn := range register {
		require.NoError(t, fn(e))
	}
	return &Env{T: t, Engine: e, Clock: clock}
}

// Invoke calls a procedure and returns the raw result and error.
func (env *Env) Invoke(name string, args ir.IRObject) (ir.IRValue, error) {
	return env.Engine.Invoke(context.Background(), name, args)
}

// MustObject calls a procedure that must succeed with an object result.
func (env *Env) MustObject(name string, args ir.IRObject) ir.IRObject {
	env.T.Helper()
	out, err := env.Invoke(name, args)
	require.NoError(env.T, err, name)
	obj, ok := out.(ir.IRObject)
	require.True(env.T, ok, "%s returned %T", name, out)
	return obj
}

// MustList calls a procedure that must succeed with an array result.
func (env *Env) MustList(name string, args ir.IRObject) ir.IRArray {
	env.T.Helper()
	out, err := env.Invoke(name, args)
	require.NoError(env.T, err, name)
	arr, ok := out.(ir.IRArray)
	require.True(env.T, ok, "%s returned %T", name, out)
	return arr
}

// Column extracts one field from every record in a list.
func Column(list ir.IRArray, field string) []ir.IRValue {
	out := make([]ir.IRValue, len(list))
	for i, v := range list {
		out[i] = v.(ir.IRObject)[field]
	}
	return out
}

// Ints converts int64 values to IRInts for comparisons against Column.
func Ints(ns ...int64) []ir.IRValue {
	out := make([]ir.IRValue, len(ns))
	for i, n := range ns {
		out[i] = ir.IRInt(n)
	}
	return out
}
