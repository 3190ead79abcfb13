package fileupdate

import (
	"cmp"
	"fmt"
	"regexp"
	"slices"
	"strings"
)

// groupValue is the capture group replaced by a Pattern.
const groupValue = "value"

// span is a half-open byte range [start, end).
type span struct {
	start, end int
}

// Pattern locates a value inside file content.
// The regular expression must define a "value" group; only that group is replaced,
// so everything around it stays byte-identical.
type Pattern struct {
	re *regexp.Regexp
	// scope restricts matching to some regions of the content. Nil means everywhere.
	scope func(content string) []span
	// limit caps the number of replaced matches. Zero means all.
	limit int
}

// NewPattern compiles a pattern. expr must contain a (?P<value>...) group.
func NewPattern(expr string) (*Pattern, error) {
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile pattern: %w", err)
	}
	if re.SubexpIndex(groupValue) < 0 {
		return nil, fmt.Errorf("pattern %q has no %q group", expr, groupValue)
	}
	return &Pattern{re: re}, nil
}

// MustPattern is like NewPattern but panics on error. Used for built-in handlers.
func MustPattern(expr string) *Pattern {
	p, err := NewPattern(expr)
	if err != nil {
		panic(err)
	}
	return p
}

// First limits the pattern to its first match.
func (p *Pattern) First() *Pattern {
	cp := *p
	cp.limit = 1
	return &cp
}

// String returns the underlying expression.
func (p *Pattern) String() string {
	return p.re.String()
}

// locate returns the byte ranges of every value group to replace.
func (p *Pattern) locate(content string) []span {
	valueIdx := p.re.SubexpIndex(groupValue)

	regions := []span{{0, len(content)}}
	if p.scope != nil {
		regions = p.scope(content)
	}

	var found []span
	for _, region := range regions {
		sub := content[region.start:region.end]
		for _, m := range p.re.FindAllStringSubmatchIndex(sub, -1) {
			start, end := m[2*valueIdx], m[2*valueIdx+1]
			if start < 0 {
				continue
			}
			found = append(found, span{region.start + start, region.start + end})
			if p.limit > 0 && len(found) >= p.limit {
				return found
			}
		}
	}
	return found
}

// Apply replaces every located value with newValue and returns the new content and match count.
func (p *Pattern) Apply(content, newValue string) (string, int) {
	spans := p.locate(content)
	if len(spans) == 0 {
		return content, 0
	}

	var b strings.Builder
	b.Grow(len(content) + len(spans)*len(newValue))
	last := 0
	for _, s := range spans {
		b.WriteString(content[last:s.start])
		b.WriteString(newValue)
		last = s.end
	}
	b.WriteString(content[last:])
	return b.String(), len(spans)
}

// JSONField matches "key": "value" pairs at any depth.
func JSONField(key string) *Pattern {
	return MustPattern(`(?P<prefix>"` + regexp.QuoteMeta(key) + `"\s*:\s*")(?P<value>[^"\r\n]*)(?P<suffix>")`)
}

// TOMLField matches key = "value" inside the given [section] tables only.
func TOMLField(key string, sections ...string) *Pattern {
	p := MustPattern(`(?m)^(?P<prefix>[ \t]*` + regexp.QuoteMeta(key) + `[ \t]*=[ \t]*["'])(?P<value>[^"'\r\n]*)(?P<suffix>["'])`)
	p.scope = func(content string) []span {
		return tomlSections(content, sections)
	}
	return p
}

// YAMLField matches a top-level "key: value" mapping entry, quoted or not.
func YAMLField(key string) *Pattern {
	return MustPattern(`(?m)^(?P<prefix>` + regexp.QuoteMeta(key) + `:[ \t]*["']?)(?P<value>[^"'\s#]+)(?P<suffix>["']?)`)
}

// AssignField matches name = "value" assignments (Python keyword arguments, module attributes).
func AssignField(name string) *Pattern {
	return MustPattern(`(?P<prefix>\b` + regexp.QuoteMeta(name) + `\s*=\s*["'])(?P<value>[^"'\r\n]*)(?P<suffix>["'])`)
}

// GoConst matches a Go string constant or variable: Name = "value" or Name string = "value".
func GoConst(name string) *Pattern {
	return MustPattern(`(?P<prefix>\b` + regexp.QuoteMeta(name) + `(?:\s+string)?\s*=\s*")(?P<value>[^"\r\n]*)(?P<suffix>")`)
}

// GradleField matches version = "x" and version "x" in Gradle scripts.
func GradleField(name string) *Pattern {
	return MustPattern(`(?m)^(?P<prefix>[ \t]*` + regexp.QuoteMeta(name) + `[ \t]*=?[ \t]*["'])(?P<value>[^"'\r\n]*)(?P<suffix>["'])`)
}

// XMLElement matches <tag>value</tag>, skipping the content of any listed container elements.
// Only the first remaining match is replaced.
func XMLElement(tag string, skip ...string) *Pattern {
	p := MustPattern(`(?P<prefix><` + regexp.QuoteMeta(tag) + `>\s*)(?P<value>[^<\s]+)(?P<suffix>\s*</` + regexp.QuoteMeta(tag) + `>)`)
	p.limit = 1
	if len(skip) > 0 {
		p.scope = func(content string) []span {
			return excludeElements(content, skip)
		}
	}
	return p
}

// PlainVersion matches a bare version at the start of a file, keeping an optional "v".
func PlainVersion() *Pattern {
	p := MustPattern(`\A(?P<prefix>\s*v?)(?P<value>\d+\.\d+\.\d+[0-9A-Za-z.+-]*)`)
	p.limit = 1
	return p
}

var tomlHeader = regexp.MustCompile(`(?m)^[ \t]*\[\[?([^\]\r\n]+)\]\]?[ \t]*(?:#.*)?$`)

// tomlSections returns the byte ranges of the body of each wanted table.
func tomlSections(content string, sections []string) []span {
	wanted := make(map[string]bool, len(sections))
	for _, s := range sections {
		wanted[s] = true
	}

	headers := tomlHeader.FindAllStringSubmatchIndex(content, -1)
	var regions []span
	for i, h := range headers {
		name := strings.TrimSpace(content[h[2]:h[3]])
		if !wanted[name] {
			continue
		}
		end := len(content)
		if i+1 < len(headers) {
			end = headers[i+1][0]
		}
		regions = append(regions, span{h[1], end})
	}
	return regions
}

// excludeElements returns the content ranges outside of the named elements.
func excludeElements(content string, names []string) []span {
	var blocked []span
	for _, name := range names {
		open := "<" + name
		closing := "</" + name + ">"
		offset := 0
		for {
			idx := indexTag(content[offset:], open)
			if idx < 0 {
				break
			}
			start := offset + idx
			endIdx := strings.Index(content[start:], closing)
			if endIdx < 0 {
				blocked = append(blocked, span{start, len(content)})
				break
			}
			end := start + endIdx + len(closing)
			blocked = append(blocked, span{start, end})
			offset = end
		}
	}

	return invertSpans(blocked, len(content))
}

// indexTag finds "<name" followed by '>' or whitespace so that <version> does not match <versions>.
func indexTag(s, open string) int {
	offset := 0
	for {
		idx := strings.Index(s[offset:], open)
		if idx < 0 {
			return -1
		}
		pos := offset + idx
		next := pos + len(open)
		if next < len(s) && (s[next] == '>' || s[next] == ' ' || s[next] == '\t' || s[next] == '\n' || s[next] == '\r') {
			return pos
		}
		offset = next
	}
}

func invertSpans(blocked []span, total int) []span {
	slices.SortFunc(blocked, func(a, b span) int {
		return cmp.Compare(a.start, b.start)
	})

	var free []span
	cursor := 0
	for _, b := range blocked {
		if b.start > cursor {
			free = append(free, span{cursor, b.start})
		}
		cursor = max(cursor, b.end)
	}
	if cursor < total {
		free = append(free, span{cursor, total})
	}
	return free
}
