package versioning

import (
	"fmt"
	"strings"

	"github.com/fclairamb/releasekit/internal/apperrors"
)

// Severity orders version bumps: PATCH < MINOR < MAJOR.
type Severity int

const (
	// SeverityPatch is a backwards compatible fix.
	SeverityPatch Severity = iota
	// SeverityMinor is a backwards compatible feature.
	SeverityMinor
	// SeverityMajor is a breaking change.
	SeverityMajor
)

// String returns the bump name.
func (s Severity) String() string {
	switch s {
	case SeverityMajor:
		return "major"
	case SeverityMinor:
		return "minor"
	default:
		return "patch"
	}
}

// ParseBump parses "major", "minor" or "patch".
func ParseBump(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "major":
		return SeverityMajor, nil
	case "minor":
		return SeverityMinor, nil
	case "patch":
		return SeverityPatch, nil
	default:
		return SeverityPatch, fmt.Errorf("%w: %q", apperrors.ErrInvalidBump, s)
	}
}

// CommitSeverity returns the bump a single commit requires.
func CommitSeverity(c Commit) Severity {
	if c.Breaking {
		return SeverityMajor
	}
	switch c.Type {
	case "feat", "feature":
		return SeverityMinor
	default:
		return SeverityPatch
	}
}

// RequiredSeverity returns the highest severity across commits, PATCH when empty.
func RequiredSeverity(commits []Commit) Severity {
	required := SeverityPatch
	for i := range commits {
		required = max(required, CommitSeverity(commits[i]))
	}
	return required
}

// CalculateNewVersion resolves the next version.
// When bump is non-nil it must be at least the required severity, otherwise a
// *apperrors.VersionConflictError naming the offending commits is returned.
func CalculateNewVersion(current string, commits []Commit, bump *Severity) (string, error) {
	v, err := ParseVersion(current)
	if err != nil {
		return "", err
	}

	required := RequiredSeverity(commits)
	effective := required

	if bump != nil {
		if *bump < required {
			return "", newConflict(*bump, required, commits)
		}
		effective = *bump
	}

	return v.Bump(effective).String(), nil
}

func newConflict(bump, required Severity, commits []Commit) *apperrors.VersionConflictError {
	conflict := &apperrors.VersionConflictError{
		Requested: bump.String(),
		Required:  required.String(),
	}

	for i := range commits {
		c := &commits[i]
		if CommitSeverity(*c) <= bump {
			continue
		}
		label := c.Type
		if c.Breaking {
			label += "!"
		}
		conflict.Commits = append(conflict.Commits,
			fmt.Sprintf("%s %s: %s", c.ShortHash(), label, c.Description))
	}

	return conflict
}
