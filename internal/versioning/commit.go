package versioning

import (
	"regexp"
	"strings"
	"time"
)

const commitTypeOther = "other"

// headerRegexp matches a Conventional Commits header: type(scope)!: description.
var headerRegexp = regexp.MustCompile(`^([a-zA-Z]+)(?:\(([^()\r\n]*)\))?(!)?:\s*(.+)$`)

// Commit is a commit reduced to what versioning needs.
type Commit struct {
	Type        string
	Scope       string
	Description string
	Breaking    bool
	Hash        string
	Date        time.Time
}

// ShortHash returns the first 7 characters of the hash.
func (c Commit) ShortHash() string {
	const shortLen = 7
	if len(c.Hash) > shortLen {
		return c.Hash[:shortLen]
	}
	return c.Hash
}

// ParseCommitMessage turns a raw git message into a Commit.
// Messages that are not Conventional Commits get the "other" type.
func ParseCommitMessage(hash, message string, date time.Time) Commit {
	header, body, _ := strings.Cut(strings.TrimSpace(message), "\n")
	header = strings.TrimSpace(header)

	commit := Commit{
		Type:        commitTypeOther,
		Description: header,
		Hash:        hash,
		Date:        date,
	}

	if m := headerRegexp.FindStringSubmatch(header); m != nil {
		commit.Type = strings.ToLower(m[1])
		commit.Scope = m[2]
		commit.Breaking = m[3] == "!"
		commit.Description = strings.TrimSpace(m[4])
	}

	if hasBreakingFooter(body) {
		commit.Breaking = true
	}

	return commit
}

func hasBreakingFooter(body string) bool {
	for line := range strings.SplitSeq(body, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "BREAKING CHANGE:") || strings.HasPrefix(line, "BREAKING-CHANGE:") {
			return true
		}
	}
	return false
}
