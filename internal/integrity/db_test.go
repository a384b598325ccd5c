package integrity

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_CreatesDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Error("database file was not created")
	}
}

func TestOpen_Idempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")

	for i := 0; i < 3; i++ {
		db, err := Open(path)
		if err != nil {
			t.Fatalf("Open() iteration %d failed: %v", i, err)
		}
		db.Close()
	}
}

func TestPutGetRemove(t *testing.T) {
	db := openTestDB(t)

	entry := Entry{
		Hash:         HashBytes([]byte("||example.org^")),
		Size:         14,
		LastModified: time.Unix(1700000000, 0).UTC(),
		LastVerified: time.Unix(1700000100, 0).UTC(),
	}
	if err := db.Put("/lists/base.txt", entry); err != nil {
		t.Fatalf("Put() failed: %v", err)
	}

	got, found, err := db.Get("/lists/base.txt")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !found {
		t.Fatal("Get() did not find stored entry")
	}
	if got != entry {
		t.Errorf("Get() = %+v, want %+v", got, entry)
	}

	if err := db.Remove("/lists/base.txt"); err != nil {
		t.Fatalf("Remove() failed: %v", err)
	}
	if _, found, _ := db.Get("/lists/base.txt"); found {
		t.Error("entry still present after Remove()")
	}

	// Removing an untracked path is a no-op.
	if err := db.Remove("/lists/never-stored.txt"); err != nil {
		t.Errorf("Remove() of untracked path failed: %v", err)
	}
}

func TestLenAndPaths(t *testing.T) {
	db := openTestDB(t)

	entry := Entry{Hash: "x", LastModified: time.Now(), LastVerified: time.Now()}
	for _, p := range []string{"/b.txt", "/a.txt"} {
		if err := db.Put(p, entry); err != nil {
			t.Fatal(err)
		}
	}

	n, err := db.Len()
	if err != nil {
		t.Fatalf("Len() failed: %v", err)
	}
	if n != 2 {
		t.Errorf("Len() = %d, want 2", n)
	}

	paths, err := db.Paths()
	if err != nil {
		t.Fatalf("Paths() failed: %v", err)
	}
	if len(paths) != 2 || paths[0] != "/a.txt" || paths[1] != "/b.txt" {
		t.Errorf("Paths() = %v, want sorted [/a.txt /b.txt]", paths)
	}
}

func TestVerifyAndUpdate_TracksNewFile(t *testing.T) {
	db := openTestDB(t)
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("||example.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := db.VerifyAndUpdate(path, true)
	if err != nil {
		t.Fatalf("VerifyAndUpdate() failed: %v", err)
	}
	if !ok {
		t.Error("new file should verify")
	}

	entry, found, err := db.Get(path)
	if err != nil || !found {
		t.Fatalf("entry not recorded: found=%v err=%v", found, err)
	}
	if want, _ := HashFile(path); entry.Hash != want {
		t.Errorf("recorded hash = %s, want %s", entry.Hash, want)
	}
}

func TestVerifyAndUpdate_UnchangedFile(t *testing.T) {
	db := openTestDB(t)
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("||example.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := db.VerifyAndUpdate(path, true); err != nil {
		t.Fatal(err)
	}
	ok, err := db.VerifyAndUpdate(path, true)
	if err != nil {
		t.Fatalf("second VerifyAndUpdate() failed: %v", err)
	}
	if !ok {
		t.Error("unchanged file should verify")
	}
}

func TestVerifyAndUpdate_ModifiedStrict(t *testing.T) {
	db := openTestDB(t)
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("||example.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := db.VerifyAndUpdate(path, true); err != nil {
		t.Fatal(err)
	}
	original, _, _ := db.Get(path)

	if err := os.WriteFile(path, []byte("||tampered.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := db.VerifyAndUpdate(path, true)
	if ok {
		t.Error("modified file should not verify")
	}
	if !IsMismatch(err) {
		t.Errorf("want MismatchError, got %v", err)
	}

	// Strict mode must not overwrite the recorded hash.
	after, _, _ := db.Get(path)
	if after.Hash != original.Hash {
		t.Error("strict mismatch overwrote recorded hash")
	}
}

func TestVerifyAndUpdate_ModifiedPermissive(t *testing.T) {
	db := openTestDB(t)
	path := filepath.Join(t.TempDir(), "list.txt")
	if err := os.WriteFile(path, []byte("||example.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := db.VerifyAndUpdate(path, false); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("||changed.org^\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ok, err := db.VerifyAndUpdate(path, false)
	if err != nil {
		t.Fatalf("permissive VerifyAndUpdate() failed: %v", err)
	}
	if ok {
		t.Error("modified file should report verified=false")
	}

	// Permissive mode accepts the new content.
	entry, _, _ := db.Get(path)
	if want, _ := HashFile(path); entry.Hash != want {
		t.Errorf("recorded hash not updated: got %s, want %s", entry.Hash, want)
	}
}
