package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExitError(t *testing.T) {
	err := NewExitError(ExitFailure, "resolution failed")
	assert.Equal(t, "resolution failed", err.Error())
	assert.Nil(t, err.Unwrap())

	cause := errors.New("disk full")
	wrapped := WrapExitError(ExitCommandError, "write failed", cause)
	assert.Equal(t, "write failed: disk full", wrapped.Error())
	assert.ErrorIs(t, wrapped, cause)
}

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"exit error", NewExitError(ExitCommandError, "x"), ExitCommandError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(ExitSuccess, "x")), ExitSuccess},
		{"plain error", errors.New("x"), ExitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestFormatterJSONSuccess(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Success(map[string]int{"n": 1}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Error)
	assert.Equal(t, map[string]any{"n": float64(1)}, resp.Data)
}

func TestFormatterJSONError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: buf}

	require.NoError(t, f.Error("AMBIGUOUS_REFERENCE", "ID is ambiguous", map[string]any{"candidates": []string{"a", "b"}}))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "AMBIGUOUS_REFERENCE", resp.Error.Code)
	assert.Equal(t, "ID is ambiguous", resp.Error.Message)
	assert.Equal(t, map[string]any{"candidates": []any{"a", "b"}}, resp.Error.Details)
}

func TestFormatterTextError(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	require.NoError(t, f.Error("E005", "model not found: x.cue", "ignored"))
	assert.Equal(t, "Error [E005]: model not found: x.cue\n", buf.String())

	buf.Reset()
	f.Verbose = true
	require.NoError(t, f.Error("E005", "model not found: x.cue", "stat failed"))
	assert.Contains(t, buf.String(), "Details: stat failed")
}

func TestFormatterMarkers(t *testing.T) {
	buf := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: buf}

	f.OK("compiled %d", 3)
	f.Fail("failed")
	f.Warn("cycle")

	assert.Equal(t, "✓ compiled 3\n✗ failed\n⚠ cycle\n", buf.String())
}

func TestFormatterVerboseLog(t *testing.T) {
	out := &bytes.Buffer{}
	errOut := &bytes.Buffer{}
	f := &OutputFormatter{Format: "json", Writer: out, ErrWriter: errOut}

	f.VerboseLog("hidden")
	assert.Empty(t, errOut.String())

	f.Verbose = true
	f.VerboseLog("loaded %s", "model")
	assert.Equal(t, "loaded model\n", errOut.String())
	assert.Empty(t, out.String(), "diagnostics never reach the JSON stream")
}

func TestFormatterErrWriterFallback(t *testing.T) {
	out := &bytes.Buffer{}
	f := &OutputFormatter{Format: "text", Writer: out, Verbose: true}

	f.VerboseLog("note")
	assert.Equal(t, "note\n", out.String())
}
