// Package versioning computes release versions from commit history.
package versioning

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// versionRegexp matches MAJOR.MINOR.PATCH with optional prerelease and build metadata.
// Numeric identifiers must not carry leading zeros.
var versionRegexp = regexp.MustCompile(
	`^(0|[1-9]\d*)\.(0|[1-9]\d*)\.(0|[1-9]\d*)` +
		`(?:-((?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*)(?:\.(?:0|[1-9]\d*|\d*[a-zA-Z-][0-9a-zA-Z-]*))*))?` +
		`(?:\+([0-9a-zA-Z-]+(?:\.[0-9a-zA-Z-]+)*))?$`,
)

// Version is a parsed semantic version.
type Version struct {
	Major      int
	Minor      int
	Patch      int
	Prerelease string
}

// ParseVersion parses a version string. A single leading "v" is accepted and dropped.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "v")

	m := versionRegexp.FindStringSubmatch(raw)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", apperrors.ErrInvalidVersion, s)
	}

	var nums [3]int
	for i := range nums {
		n, err := strconv.Atoi(m[i+1])
		if err != nil {
			return Version{}, fmt.Errorf("%w: %q: %w", apperrors.ErrInvalidVersion, s, err)
		}
		nums[i] = n
	}

	return Version{
		Major:      nums[0],
		Minor:      nums[1],
		Patch:      nums[2],
		Prerelease: m[4],
	}, nil
}

// String returns the version without any "v" prefix.
func (v Version) String() string {
	base := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		return base + "-" + v.Prerelease
	}
	return base
}

// Bump returns the next version for the given severity. Prerelease is always dropped.
func (v Version) Bump(s Severity) Version {
	switch s {
	case SeverityMajor:
		return Version{Major: v.Major + 1}
	case SeverityMinor:
		return Version{Major: v.Major, Minor: v.Minor + 1}
	default:
		return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
	}
}
