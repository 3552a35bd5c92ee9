package store

import "strings"

// KV key layout.
const (
	RevocationPrefix = "jwt:blacklist:"
	RefreshPrefix    = "refresh:"
)

// RevocationKey is the KV key of the revocation entry for jti.
func RevocationKey(jti string) string { return RevocationPrefix + jti }

// RefreshKey is the KV key of a refresh family. An empty familyID selects the
// single per-subject family.
func RefreshKey(subjectID, familyID string) string {
	if familyID == "" {
		return RefreshPrefix + subjectID
	}
	return RefreshPrefix + subjectID + ":" + familyID
}

// ValidSubjectID reports whether id can be embedded in refresh keys. The
// separator is banned so one subject's prefix never covers another's keys.
func ValidSubjectID(id string) bool {
	return id != "" && !strings.Contains(id, ":")
}

// RefreshSubjectPrefix matches every per-session family of subjectID, which
// must satisfy ValidSubjectID.
func RefreshSubjectPrefix(subjectID string) string {
	return RefreshPrefix + subjectID + ":"
}
