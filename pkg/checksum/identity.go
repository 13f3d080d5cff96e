package checksum

import (
	"crypto/md5" //nolint:gosec // identifier derivation, not a security boundary
	"encoding/hex"
	"strings"
	"time"
)

const (
	// IdentityLength is the width of a project id. Stored ids depend on it.
	IdentityLength = 12

	MissingToken   = "n/a"
	IdentityLayout = "2006-01-02 15:04:05"
)

// IdentityHash derives the project id from name, submission date and holder:
// the first 12 hex chars of md5("name|date|holder"), absent parts rendered as "n/a".
func IdentityHash(name *string, date *time.Time, holder *string) string {
	parts := []string{MissingToken, MissingToken, MissingToken}
	if name != nil {
		parts[0] = *name
	}
	if date != nil {
		parts[1] = date.Format(IdentityLayout)
	}
	if holder != nil {
		parts[2] = *holder
	}

	digest := md5.Sum([]byte(strings.Join(parts, "|"))) //nolint:gosec
	return hex.EncodeToString(digest[:])[:IdentityLength]
}
