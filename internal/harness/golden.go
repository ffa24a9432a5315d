package harness

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/natefinch/atomic"
	"github.com/sebdah/goldie/v2"

	"github.com/roach88/crudkit/internal/ir"
)

// GoldenDir is where scenario traces are kept, relative to the scenarios.
const GoldenDir = "golden"

// goldenSuffix is the golden file extension.
const goldenSuffix = ".golden"

// ErrGoldenMissing is returned by CheckGolden when no golden file exists.
var ErrGoldenMissing = errors.New("golden file missing")

// Snapshot renders a result's trace as canonical JSON with a trailing
// newline. The output is byte-identical across runs of the same scenario.
func Snapshot(name string, result *Result) ([]byte, error) {
	trace := make(ir.IRArray, len(result.Trace))
	for i, ev := range result.Trace {
		trace[i] = ev.canonical()
	}
	data, err := ir.MarshalCanonical(ir.IRObject{
		"scenario": ir.IRString(name),
		"trace":    trace,
	})
	if err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", name, err)
	}
	return append(data, '\n'), nil
}

// GoldenPath returns the golden file for a scenario under dir.
func GoldenPath(dir, name string) string {
	return filepath.Join(dir, name+goldenSuffix)
}

// MismatchError reports a trace that differs from its golden file.
type MismatchError struct {
	Path string
	Diff string // -golden +actual
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("trace differs from %s (-golden +actual):\n%s", e.Path, e.Diff)
}

// CheckGolden compares data with the golden file for name. It returns
// ErrGoldenMissing (wrapped) when the file does not exist and
// *MismatchError when the contents differ.
func CheckGolden(dir, name string, data []byte) error {
	path := GoldenPath(dir, name)
	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", path, ErrGoldenMissing)
	}
	if err != nil {
		return fmt.Errorf("read golden: %w", err)
	}
	if diff := cmp.Diff(string(want), string(data)); diff != "" {
		return &MismatchError{Path: path, Diff: diff}
	}
	return nil
}

// UpdateGolden atomically replaces the golden file for name.
func UpdateGolden(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create golden dir: %w", err)
	}
	path := GoldenPath(dir, name)
	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// AssertGolden compares a result's trace with testdata/golden/<name>.golden
// in tests. Run the test with -update to regenerate.
func AssertGolden(t *testing.T, name string, result *Result) {
	t.Helper()
	data, err := Snapshot(name, result)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	g := goldie.New(t,
		goldie.WithFixtureDir(filepath.Join("testdata", GoldenDir)),
		goldie.WithNameSuffix(goldenSuffix),
	)
	g.Assert(t, name, data)
}
