// Package checksum provides the content fingerprint used for
// attachment deduplication. Equal digests are treated as byte-identical
// content everywhere in the storage layer.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex-encoded SHA-256 digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
