package catalog

import (
	"strings"

	"golang.org/x/mod/semver"
)

// NormalizeVersion trims whitespace and a leading v or V.
func NormalizeVersion(version string) string {
	version = strings.TrimSpace(version)
	if len(version) > 1 && (version[0] == 'v' || version[0] == 'V') {
		return version[1:]
	}
	return version
}

// CompareVersions orders two version strings. Valid semantic versions are
// compared semantically; anything else falls back to string comparison of the
// normalized values. "v1.2.0" and "1.2.0" compare equal.
func CompareVersions(a, b string) int {
	na, nb := NormalizeVersion(a), NormalizeVersion(b)
	sa, sb := "v"+na, "v"+nb
	if semver.IsValid(sa) && semver.IsValid(sb) {
		return semver.Compare(sa, sb)
	}
	return strings.Compare(na, nb)
}
