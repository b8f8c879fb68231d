package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/qinfer/internal/store"
)

const authorNameQuery = `{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "name"]}]}}`

type resolveResponse struct {
	Status string        `json:"status"`
	Data   ResolveResult `json:"data"`
	Error  *CLIError     `json:"error"`
}

func resolveJSON(t *testing.T, args ...string) (resolveResponse, error) {
	t.Helper()
	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "json"}), args...)
	var resp resolveResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp, err
}

func TestResolveInlineQuery(t *testing.T) {
	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "text"}), "-m", bookshopModel, authorNameQuery)
	require.NoError(t, err)

	assert.Contains(t, out, "✓ SELECT")
	assert.Contains(t, out, "    author_name: cds.String\n")
	assert.Contains(t, out, "    Books (Books)\n")
	assert.Contains(t, out, "      author -> Authors as author\n")
}

func TestResolveForeignKeyOnlyPath(t *testing.T) {
	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "text"}), "-m", bookshopModel,
		`{"SELECT": {"from": "Books", "columns": [{"ref": ["author", "ID"]}]}}`)
	require.NoError(t, err)

	assert.Contains(t, out, "author_ID: cds.Integer")
	assert.Contains(t, out, "author -> Authors as author [foreign keys only]")
}

func TestResolveNamedQueryJSON(t *testing.T) {
	resp, err := resolveJSON(t, "-m", bookshopModel, "--query", "booksWithAuthor")
	require.NoError(t, err)

	assert.Equal(t, "ok", resp.Status)
	assert.Len(t, resp.Data.ModelHash, 64)
	require.Len(t, resp.Data.Resolutions, 1)

	r := resp.Data.Resolutions[0]
	assert.Equal(t, "booksWithAuthor", r.Name)
	assert.NotEmpty(t, r.ID)
	assert.Equal(t, "SELECT", r.Snapshot["kind"])
	assert.Equal(t, []any{
		map[string]any{"name": "title", "type": "cds.String"},
		map[string]any{"name": "author", "type": "cds.String"},
	}, r.Snapshot["elements"])
	assert.Equal(t, 0, resp.Data.Recorded)
}

func TestResolveAll(t *testing.T) {
	resp, err := resolveJSON(t, "-m", bookshopModel, "--all")
	require.NoError(t, err)

	names := make([]string, len(resp.Data.Resolutions))
	ids := map[string]bool{}
	for i, r := range resp.Data.Resolutions {
		names[i] = r.Name
		ids[r.ID] = true
	}
	assert.Equal(t, []string{"booksWithAuthor", "expensiveBooks", "printsWithBook", "renameAuthor"}, names)
	assert.Len(t, ids, 4, "every resolution has its own id")
	assert.Equal(t, "UPDATE", resp.Data.Resolutions[3].Snapshot["kind"])
	assert.Equal(t, "Authors", resp.Data.Resolutions[3].Snapshot["target"])
}

func TestResolveQueryFromStdin(t *testing.T) {
	cmd := NewResolveCommand(&RootOptions{Format: "text"})
	cmd.SetIn(strings.NewReader(authorNameQuery))

	out, err := execute(t, cmd, "-m", bookshopModel, "-")
	require.NoError(t, err)
	assert.Contains(t, out, "author_name: cds.String")
}

func TestResolveQueryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	require.NoError(t, os.WriteFile(path, []byte(authorNameQuery), 0644))

	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "text"}), "-m", bookshopModel, path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+path+" (SELECT)")
}

func TestResolveError(t *testing.T) {
	resp, err := resolveJSON(t, "-m", bookshopModel, `{"SELECT": {"from": "Books", "columns": [{"ref": ["nope"]}]}}`)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "UNRESOLVED_REFERENCE", resp.Error.Code)
	assert.Contains(t, resp.Error.Message, "nope")
}

func TestResolveErrorText(t *testing.T) {
	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "text"}), "-m", bookshopModel,
		`{"SELECT": {"from": "Books", "columns": [{"ref": ["nope"]}]}}`)
	require.Error(t, err)
	assert.Contains(t, out, "✗ Resolution failed")
}

func TestResolveCommandErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		code string
	}{
		{"no query", []string{"-m", bookshopModel}, ErrCodeBadQuery},
		{"two query sources", []string{"-m", bookshopModel, "--all", "--query", "booksWithAuthor"}, ErrCodeBadQuery},
		{"unknown named query", []string{"-m", bookshopModel, "--query", "nope"}, ErrCodeBadQuery},
		{"malformed query", []string{"-m", bookshopModel, `{"SELECT": `}, ErrCodeBadQuery},
		{"no model", []string{authorNameQuery}, ErrCodeNoModel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := resolveJSON(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, ExitCommandError, GetExitCode(err))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestResolveRecord(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "qinfer.db")

	resp, err := resolveJSON(t, "-m", bookshopModel, "--all", "--record", "--store", storePath)
	require.NoError(t, err)
	assert.Equal(t, 4, resp.Data.Recorded)

	// A query is recorded once per model.
	resp, err = resolveJSON(t, "-m", bookshopModel, "--all", "--record", "--store", storePath)
	require.NoError(t, err)
	assert.Equal(t, 0, resp.Data.Recorded)

	st, err := store.Open(storePath)
	require.NoError(t, err)
	defer st.Close()

	records, err := st.ReadResolutions(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "booksWithAuthor", records[0].Name)
	assert.Equal(t, resp.Data.ModelHash, records[0].ModelHash)
}

func TestResolveRecordText(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "qinfer.db")

	out, err := execute(t, NewResolveCommand(&RootOptions{Format: "text"}),
		"-m", bookshopModel, "--query", "printsWithBook", "--record", "--store", storePath)
	require.NoError(t, err)
	assert.Contains(t, out, "Recorded 1 new resolution(s)")
}
