package schema

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

const FingerprintPrefix = "blake3:"

// Fingerprint returns the digest of the normalized schema: keys sorted,
// string leaves whitespace-collapsed and lower-cased.
func Fingerprint(v interface{}) (string, error) {
	data, err := Canonical(v)
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(data)
	return FingerprintPrefix + hex.EncodeToString(sum[:]), nil
}

// Canonical returns the byte form that Fingerprint hashes.
func Canonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := canonicalize(&buf, v); err != nil {
		return nil, fmt.Errorf("canonicalize schema: %w", err)
	}
	return buf.Bytes(), nil
}

// HashContent is the content address used for artifacts and documents.
func HashContent(data []byte) string {
	sum := blake3.Sum256(data)
	return FingerprintPrefix + hex.EncodeToString(sum[:])
}
