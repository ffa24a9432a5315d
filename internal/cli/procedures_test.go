package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProceduresText(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	out, err := execute(t, NewProceduresCommand(&RootOptions{Format: "text"}), "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "PROCEDURE")
	assert.Contains(t, out, "stock_movement.record")
	assert.Contains(t, out, "expense.summary")
	assert.Contains(t, out, "procedure(s)")
}

func TestProceduresJSONSortedByName(t *testing.T) {
	db := filepath.Join(t.TempDir(), "app.db")

	out, err := execute(t, NewProceduresCommand(&RootOptions{Format: "json"}), "--db", db)
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		Data   []struct {
			Name   string `json:"name"`
			Kind   string `json:"kind"`
			Entity string `json:"entity"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.NotEmpty(t, resp.Data)
	for i := 1; i < len(resp.Data); i++ {
		assert.Less(t, resp.Data[i-1].Name, resp.Data[i].Name)
	}
}

func TestProceduresCustomSpecs(t *testing.T) {
	db := filepath.Join(t.TempDir(), "notes.db")

	out, err := execute(t, NewProceduresCommand(&RootOptions{Format: "text"}), "--db", db, "--specs", notesDir(t))
	require.NoError(t, err)
	for _, name := range []string{"note.create", "note.list", "note.get", "note.update", "note.delete"} {
		assert.Contains(t, out, name)
	}
	assert.NotContains(t, out, "tag.create")
}
