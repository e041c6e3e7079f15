package util

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
)

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// ObjectKey builds a storage key of the form <scope>/<hashed user>/<name>.
// User IDs never appear in keys verbatim.
func ObjectKey(scope, userID, name string) string {
	return path.Join(scope, HashUserKey(userID), name)
}
