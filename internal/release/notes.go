package release

import (
	"fmt"
	"strings"
	"time"

	"github.com/fclairamb/releasekit/internal/versioning"
)

type section struct {
	title string
	keep  func(versioning.Commit) bool
}

var sections = []section{
	{"Breaking Changes", func(c versioning.Commit) bool { return c.Breaking }},
	{"Features", func(c versioning.Commit) bool { return !c.Breaking && (c.Type == "feat" || c.Type == "feature") }},
	{"Bug Fixes", func(c versioning.Commit) bool { return !c.Breaking && c.Type == "fix" }},
	{"Performance", func(c versioning.Commit) bool { return !c.Breaking && c.Type == "perf" }},
}

// hiddenTypes never show up in notes unless breaking.
var hiddenTypes = map[string]bool{"chore": true, "ci": true, "test": true, "style": true, "build": true}

// Notes renders markdown release notes for version from commits.
func Notes(version string, date time.Time, commits []versioning.Commit) string {
	var b strings.Builder
	fmt.Fprintf(&b, "## %s (%s)\n", version, date.Format(time.DateOnly))

	used := make([]bool, len(commits))
	for _, s := range sections {
		writeSection(&b, s.title, commits, used, s.keep)
	}
	writeSection(&b, "Other Changes", commits, used, func(c versioning.Commit) bool {
		return !hiddenTypes[c.Type]
	})

	return b.String()
}

func writeSection(b *strings.Builder, title string, commits []versioning.Commit, used []bool, keep func(versioning.Commit) bool) {
	header := false
	for i, c := range commits {
		if used[i] || !keep(c) {
			continue
		}
		used[i] = true
		if !header {
			fmt.Fprintf(b, "\n### %s\n\n", title)
			header = true
		}
		b.WriteString("- ")
		if c.Scope != "" {
			fmt.Fprintf(b, "**%s:** ", c.Scope)
		}
		b.WriteString(c.Description)
		if h := c.ShortHash(); h != "" {
			fmt.Fprintf(b, " (%s)", h)
		}
		b.WriteString("\n")
	}
}
