package migrate

import (
	"crypto/sha256"
	"encoding/hex"
)

// Checksum returns the sha256 hex digest of a migration body. Stored in the
// ledger for audit; never compared against the file on later runs.
func Checksum(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}
