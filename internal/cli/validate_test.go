package cli

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/treecep/internal/compiler"
)

func runValidateCmd(t *testing.T, format, path string) (string, error) {
	t.Helper()
	buf := &bytes.Buffer{}
	rootOpts := &RootOptions{Format: format}
	cmd := NewValidateCommand(rootOpts)
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{path})
	err := cmd.Execute()
	return buf.String(), err
}

func TestValidateValidPatterns(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rise.cue", risePatterns)

	output, err := runValidateCmd(t, "text", dir)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ All patterns valid (2)")
}

func TestValidateSingleFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rise.cue", risePatterns)

	output, err := runValidateCmd(t, "text", path)
	require.NoError(t, err)
	assert.Contains(t, output, "✓ All patterns valid")
}

func TestValidateValidPatternsJSON(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rise.cue", risePatterns)

	output, err := runValidateCmd(t, "json", dir)
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.True(t, resp.Data.Valid)
	assert.ElementsMatch(t, []string{"rise", "rise_quiet"}, resp.Data.Patterns)
}

func TestValidateNonExistentPath(t *testing.T) {
	output, err := runValidateCmd(t, "text", "/nonexistent/directory/path")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), ErrCodeNotFound)
	assert.Contains(t, output, "not found")
}

func TestValidateEmptyDirectory(t *testing.T) {
	_, err := runValidateCmd(t, "text", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateNotCUEFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "rise.yaml", "pattern: {}")
	_, err := runValidateCmd(t, "text", path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), ErrCodeNoFiles)
}

func TestValidateSyntaxError(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", "pattern: rise: {operator: \n")

	output, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, output, "Error [")
}

func TestValidateCollectsAllErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "bad.cue", `
pattern: no_window: {
	operator: "seq"
	events: [{type: "A", name: "a"}]
}
pattern: bad_op: {
	operator: "or"
	window:   "1m"
	events: [{type: "A", name: "a"}]
}
`)

	output, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 error(s)")
	assert.Contains(t, output, "✗ Validation failed")
	assert.Contains(t, output, "no_window")
	assert.Contains(t, output, "bad_op")
}

func TestValidateDuplicateNamesAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a/rise.cue", risePatterns)
	writeFile(t, dir, "b/rise.cue", risePatterns)

	output, err := runValidateCmd(t, "json", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(output), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Errors)
	for _, e := range resp.Data.Errors {
		assert.Equal(t, compiler.ErrDuplicatePattern, e.Code)
	}
}

func TestValidateBadTopology(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "topo.cue", `
pattern: lopsided: {
	operator: "and"
	window:   "1m"
	events: [{type: "A", name: "a"}, {type: "B", name: "b"}, {type: "C", name: "c"}]
	topology: [[0, 1], 1]
}
`)

	output, err := runValidateCmd(t, "text", dir)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, output, "lopsided")
}

func TestLoadDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "rise.cue", risePatterns)

	defs, err := loadDefinitions(dir)
	require.NoError(t, err)
	require.Len(t, defs, 2)

	_, err = loadDefinitions(t.TempDir())
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}
