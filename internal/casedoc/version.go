package casedoc

import (
	"strings"

	"golang.org/x/mod/semver"
)

// canonicalVersion returns v in "vMAJOR.MINOR.PATCH" form, or "" when v is
// not a semantic version. The leading "v" is optional.
func canonicalVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	return semver.Canonical(v)
}

// ValidVersion reports whether v is a semantic version.
func ValidVersion(v string) bool {
	return canonicalVersion(v) != ""
}

// CompareVersions returns -1, 0 or +1 as a is older than, equal to or newer
// than b. Absent or invalid versions sort below every valid one and equal
// to each other.
func CompareVersions(a, b string) int {
	return semver.Compare(canonicalVersion(a), canonicalVersion(b))
}
