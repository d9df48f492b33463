// Package checksum fingerprints stored images for the run journal.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Algorithm prefixes every digest, e.g. "sha256:9f86d0...".
const Algorithm = "sha256"

// Sum returns the algorithm-prefixed, hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return Algorithm + ":" + hex.EncodeToString(h[:])
}
