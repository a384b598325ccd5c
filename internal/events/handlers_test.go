package events

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaypatrick/ad-blocking/internal/integrity"
)

func auditFixture(t *testing.T) (*integrity.DB, string) {
	t.Helper()
	dir := t.TempDir()

	db, err := integrity.Open(filepath.Join(dir, "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	source := filepath.Join(dir, "list.txt")
	require.NoError(t, os.WriteFile(source, []byte("||example.org^\n"), 0644))
	return db, source
}

func loadedArgs(path string) *SourceLoadedArgs {
	return &SourceLoadedArgs{SourceURL: path, IsLocalFile: true, Success: true}
}

func TestHashAudit_Strict(t *testing.T) {
	db, source := auditFixture(t)
	h := NewHashAuditHandler(db)

	// First sighting records the hash.
	h.OnSourceLoaded(loadedArgs(source))
	v := &ValidationArgs{StageName: "sources"}
	h.OnValidation(v)
	assert.False(t, v.Abort)

	// Tamper with the file behind the database's back.
	require.NoError(t, os.WriteFile(source, []byte("||tampered.org^\n"), 0644))

	h.OnSourceLoaded(loadedArgs(source))
	v = &ValidationArgs{StageName: "sources"}
	h.OnValidation(v)

	assert.True(t, v.Abort)
	require.Len(t, v.Findings, 1)
	assert.Equal(t, SeverityCritical, v.Findings[0].Severity)
	assert.Equal(t, "HASH_MISMATCH", v.Findings[0].Code)
}

func TestHashAudit_Permissive(t *testing.T) {
	db, source := auditFixture(t)
	h := NewPermissiveHashAuditHandler(db)

	h.OnSourceLoaded(loadedArgs(source))
	require.NoError(t, os.WriteFile(source, []byte("||changed.org^\n"), 0644))

	h.OnSourceLoaded(loadedArgs(source))
	v := &ValidationArgs{StageName: "sources"}
	h.OnValidation(v)

	// Permissive mode never aborts and accepts the new hash.
	assert.False(t, v.Abort)

	want, err := integrity.HashFile(source)
	require.NoError(t, err)
	entry, found, err := db.Get(source)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, want, entry.Hash)
}

func TestHashAudit_IgnoresFailedLoads(t *testing.T) {
	db, _ := auditFixture(t)
	h := NewHashAuditHandler(db)

	h.OnSourceLoaded(&SourceLoadedArgs{SourceURL: "/nonexistent.txt", Success: false})

	v := &ValidationArgs{}
	h.OnValidation(v)
	assert.False(t, v.Abort)

	n, err := db.Len()
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
