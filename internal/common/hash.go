package common

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Sha256Hex digests parts joined by "|" and returns lowercase hex. Callers
// pass the fields of a compound key separately so none of them has to be
// escaped.
func Sha256Hex(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}
