// Package fingerprint computes deterministic digests of record field maps.
// Equal maps always hash equal regardless of key order; any content change
// produces a different digest. The hash marks change since last seen, it is
// not a security boundary.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
)

// Separators keep "ab"+"c" and "a"+"bc" from canonicalizing identically.
const (
	fieldSep = '\x1e'
	kvSep    = '\x1f'
)

// Fingerprint canonicalizes the field map (sorted keys, length-safe
// separators) and returns the hex SHA-256 of the serialization.
func Fingerprint(fields map[string]string) string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	for _, k := range keys {
		h.Write([]byte(k))
		h.Write([]byte{kvSep})
		h.Write([]byte(fields[k]))
		h.Write([]byte{fieldSep})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Hasher implements harvester.Fingerprinter.
type Hasher struct{}

// New returns a field-map hasher.
func New() *Hasher {
	return &Hasher{}
}

// Fingerprint hashes the field map.
func (Hasher) Fingerprint(fields map[string]string) string {
	return Fingerprint(fields)
}

// URLHash returns the hex SHA-256 of a URL string, used for sitemap entries
// and blob object names.
func URLHash(rawURL string) string {
	sum := sha256.Sum256([]byte(rawURL))
	return hex.EncodeToString(sum[:])
}

// Sum returns the hex SHA-256 of raw bytes, used for page body hashes.
func Sum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
