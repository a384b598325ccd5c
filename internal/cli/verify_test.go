package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaypatrick/ad-blocking/internal/testutil"
)

func TestVerifyRecordsAndPasses(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "integrity.db")
	file := testutil.SourceFile(t, dir, "list.txt", "||ads.example.com^")

	buf := &bytes.Buffer{}
	cmd := NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Verified 1 file(s)")

	// Unchanged content verifies again.
	buf.Reset()
	cmd = NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Verified 1 file(s)")
}

func TestVerifyStrictMismatch(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "integrity.db")
	file := testutil.SourceFile(t, dir, "list.txt", "||ads.example.com^")

	cmd := NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{file, "--audit-db", dbPath})
	require.NoError(t, cmd.Execute())

	require.NoError(t, os.WriteFile(file, []byte("tampered\n"), 0644))

	buf := &bytes.Buffer{}
	cmd = NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath, "--strict"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, buf.String(), "Error [E301]")

	// Strict mode keeps the stored hash, so a second strict run still fails.
	buf.Reset()
	cmd = NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath, "--strict"})
	require.Error(t, cmd.Execute())
}

func TestVerifyPermissiveAcceptsNewContent(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "integrity.db")
	file := testutil.SourceFile(t, dir, "list.txt", "||ads.example.com^")

	cmd := NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{file, "--audit-db", dbPath})
	require.NoError(t, cmd.Execute())

	require.NoError(t, os.WriteFile(file, []byte("changed\n"), 0644))

	// Permissive mode reports the mismatch once and records the new hash.
	cmd = NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{file, "--audit-db", dbPath})
	require.Error(t, cmd.Execute())

	buf := &bytes.Buffer{}
	cmd = NewVerifyCommand(&RootOptions{Format: "text"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, buf.String(), "✓ Verified")
}

func TestVerifyJSON(t *testing.T) {
	dir := t.TempDir()
	dbPath := filepath.Join(dir, "integrity.db")
	file := testutil.SourceFile(t, dir, "list.txt", "||ads.example.com^")

	buf := &bytes.Buffer{}
	cmd := NewVerifyCommand(&RootOptions{Format: "json"})
	cmd.SetOut(buf)
	cmd.SetArgs([]string{file, "--audit-db", dbPath})

	require.NoError(t, cmd.Execute())

	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
}
