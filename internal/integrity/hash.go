// Package integrity computes and persists SHA-384 content hashes for
// rule lists and their source files.
package integrity

import (
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"os"
)

// hashBufferSize is the read buffer used when hashing streams.
const hashBufferSize = 8192

// HashBytes computes the SHA-384 hash of data, hex encoded.
func HashBytes(data []byte) string {
	sum := sha512.Sum384(data)
	return hex.EncodeToString(sum[:])
}

// HashReader computes the SHA-384 hash of everything readable from r.
// Reads in fixed-size chunks so large rule lists never load fully into memory.
func HashReader(r io.Reader) (string, error) {
	h := sha512.New384()
	buf := make([]byte, hashBufferSize)
	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", fmt.Errorf("hashing stream: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// HashFile computes the SHA-384 hash of the file at path.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening %s for hashing: %w", path, err)
	}
	defer f.Close()

	hash, err := HashReader(f)
	if err != nil {
		return "", fmt.Errorf("hashing %s: %w", path, err)
	}
	return hash, nil
}

// VerifyFile recomputes the hash of path and compares it against expected.
// Returns true when the hashes match. An error is returned only for I/O
// failures, never for a mismatch.
func VerifyFile(path, expected string) (bool, error) {
	actual, err := HashFile(path)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
