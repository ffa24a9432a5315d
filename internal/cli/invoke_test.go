package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type invokeResponse struct {
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data"`
	Error     *CLIError       `json:"error"`
	RequestID string          `json:"request_id"`
}

func invoke(t *testing.T, format, db string, args ...string) (string, error) {
	t.Helper()
	cmd := NewInvokeCommand(&RootOptions{Format: format})
	return execute(t, cmd, append(args, "--db", db)...)
}

func TestInvokeCreateThenGet(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	out, err := invoke(t, "json", db, "tag.create", "--args", `{"name":"go"}`)
	require.NoError(t, err)
	var created invokeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "ok", created.Status)
	assert.NotEmpty(t, created.RequestID)

	// A second process-level invocation sees the row the first one wrote.
	out, err = invoke(t, "json", db, "tag.get", "--args", `{"id":1}`)
	require.NoError(t, err)
	var got invokeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "ok", got.Status)

	var tag map[string]any
	require.NoError(t, json.Unmarshal(got.Data, &tag))
	assert.Equal(t, "go", tag["name"])
	assert.EqualValues(t, 1, tag["id"])
}

func TestInvokeTextIsIndented(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	out, err := invoke(t, "text", db, "tag.create", "--args", `{"name":"go"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "\n  \"name\": \"go\"")
}

func TestInvokeListDefaultsToEmptyArgs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	out, err := invoke(t, "json", db, "product.list")
	require.NoError(t, err)
	var resp invokeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.JSONEq(t, `[]`, string(resp.Data))
}

func TestInvokeProcedureErrors(t *testing.T) {
	tests := []struct {
		name string
		proc string
		args string
		code string
	}{
		{"missing row", "tag.get", `{"id":99}`, "NOT_FOUND"},
		{"unknown procedure", "tag.frobnicate", `{}`, "NOT_FOUND"},
		{"invalid field", "tag.create", `{"name":""}`, "VALIDATION_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := filepath.Join(t.TempDir(), "app.db")

			out, err := invoke(t, "json", db, tt.proc, "--args", tt.args)
			require.Error(t, err)
			assert.Equal(t, ExitFailure, GetExitCode(err))

			var resp invokeResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			assert.Equal(t, "error", resp.Status)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestInvokeBadArgs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	for _, args := range []string{`{"name":`, `[1,2]`} {
		_, err := invoke(t, "text", db, "tag.create", "--args", args)
		require.Error(t, err, args)
		assert.Equal(t, ExitCommandError, GetExitCode(err), args)
	}
}

func TestInvokeCustomSpecs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "notes.db")
	specs := notesDir(t)

	out, err := invoke(t, "json", db, "note.create", "--specs", specs, "--args", `{"body":"hello"}`)
	require.NoError(t, err)
	var resp invokeResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	var note map[string]any
	require.NoError(t, json.Unmarshal(resp.Data, &note))
	assert.Equal(t, "hello", note["body"])
	assert.Equal(t, false, note["pinned"])
}

func TestParseArgs(t *testing.T) {
	obj, err := parseArgs("  ")
	require.NoError(t, err)
	assert.Empty(t, obj)

	obj, err = parseArgs(`{"id":3}`)
	require.NoError(t, err)
	assert.Len(t, obj, 1)

	_, err = parseArgs(`"tag"`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be a JSON object")
}
