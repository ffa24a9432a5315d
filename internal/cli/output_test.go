package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"plain error", errors.New("boom"), ExitFailure},
		{"exit failure", NewExitError(ExitFailure, "failed"), ExitFailure},
		{"command error", NewExitError(ExitCommandError, "bad flag"), ExitCommandError},
		{"wrapped", WrapExitError(ExitCommandError, "outer", errors.New("inner")), ExitCommandError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestExitErrorMessage(t *testing.T) {
	inner := errors.New("inner")
	err := WrapExitError(ExitFailure, "outer", inner)
	assert.Equal(t, "outer: inner", err.Error())
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, "just this", NewExitError(ExitFailure, "just this").Error())
}

func TestOutputFormatterJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("NOT_FOUND", "Tag 9 not found", map[string]any{"id": 9}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "NOT_FOUND", resp.Error.Code)
	assert.Equal(t, "Tag 9 not found", resp.Error.Message)
}

func TestOutputFormatterText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Error("E005", "specs directory not found", nil))
	assert.Equal(t, "Error [E005]: specs directory not found\n", buf.String())
}

func TestOutputFormatterTextDetailsWhenVerbose(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf, Verbose: true}

	require.NoError(t, f.ErrorWithRequest("NOT_FOUND", "Tag 9 not found", map[string]any{"id": 9}, "req-1"))
	assert.Equal(t, "Error [NOT_FOUND]: Tag 9 not found\nDetails: {\"id\":9}\nRequest: req-1\n", buf.String())
}

func TestOutputFormatterSuccessText(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Success("plain"))
	require.NoError(t, f.Success(map[string]int{"n": 1}))
	assert.Equal(t, "plain\n{\n  \"n\": 1\n}\n", buf.String())
}

func TestOutputFormatterResult(t *testing.T) {
	raw := json.RawMessage(`{"id":1,"name":"a"}`)

	text := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "text", Writer: text}).Result(raw, "req-1"))
	assert.Equal(t, "{\n  \"id\": 1,\n  \"name\": \"a\"\n}\n", text.String())

	js := &bytes.Buffer{}
	require.NoError(t, (&OutputFormatter{Format: "json", Writer: js}).Result(raw, "req-1"))
	assert.JSONEq(t, `{"status":"ok","data":{"id":1,"name":"a"},"request_id":"req-1"}`, js.String())
}

func TestVerboseLogUsesErrWriter(t *testing.T) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}

	quiet := &OutputFormatter{Writer: out, ErrWriter: errOut}
	quiet.VerboseLog("hidden %d", 1)
	assert.Empty(t, errOut.String())

	loud := &OutputFormatter{Writer: out, ErrWriter: errOut, Verbose: true}
	loud.VerboseLog("shown %d", 2)
	assert.Equal(t, "shown 2\n", errOut.String())
	assert.Empty(t, out.String())
}
