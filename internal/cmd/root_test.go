package cmd

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execRoot(t *testing.T, projectDir string, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--project", projectDir}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestPieceValidateBuiltinDemo(t *testing.T) {
	dir := t.TempDir()
	out, err := execRoot(t, dir, "piece", "validate", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "demo is valid")
	assert.Contains(t, out, "layer=builtin")
}

func TestPieceDescribeBuiltinDemo(t *testing.T) {
	dir := t.TempDir()
	out, err := execRoot(t, dir, "piece", "describe", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "initial_movement: plan")
	assert.Contains(t, out, "- plan [sequential] persona=plan")
	assert.Contains(t, out, "-> implement")
}

func TestPieceListIncludesBuiltinDemo(t *testing.T) {
	dir := t.TempDir()
	out, err := execRoot(t, dir, "piece", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "demo")
}

func TestAddThenListRoundTrip(t *testing.T) {
	dir := t.TempDir()
	_, err := execRoot(t, dir, "add", "fix the flaky test")
	require.NoError(t, err)

	out, err := execRoot(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, out, "pending")
	assert.Contains(t, out, "piece=demo")
}

func TestAddWithIssueRef(t *testing.T) {
	dir := t.TempDir()
	out, err := execRoot(t, dir, "add", "#42")
	require.NoError(t, err)
	assert.Contains(t, out, "added task")

	listOut, err := execRoot(t, dir, "list")
	require.NoError(t, err)
	assert.Contains(t, listOut, "pending")
}

func TestEjectBuiltinPiece(t *testing.T) {
	dir := t.TempDir()
	out, err := execRoot(t, dir, "eject", "demo")
	require.NoError(t, err)
	assert.Contains(t, out, "ejected demo to")

	// A second eject must refuse to overwrite.
	_, err = execRoot(t, dir, "eject", "demo")
	assert.Error(t, err)
}

func TestExternalStubsReportNotImplemented(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"ensemble", "repertoire", "export-cc"} {
		out, err := execRoot(t, dir, name)
		require.NoError(t, err)
		assert.Contains(t, out, "not implemented in this core")
	}
}
