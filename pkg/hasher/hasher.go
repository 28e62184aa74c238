// Package hasher computes content-addressing hashes over bytes and files.
//
// Hashing streams through a hash.Hash via io.Copy, never buffering
// the whole input when a reader is available.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
)

// Sum256Hex returns the lowercase hex SHA-256 of b.
func Sum256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// HashReader streams r through SHA-256 and returns the lowercase hex digest
// and the number of bytes read.
func HashReader(r io.Reader) (string, int64, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return "", 0, err
	}
	return hex.EncodeToString(h.Sum(nil)), n, nil
}

// HashFile opens path and returns its lowercase hex SHA-256 digest and size.
func HashFile(path string) (string, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	return HashReader(f)
}
