package fileupdate

import (
	"context"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
)

// Match is one changed line as seen by an operator before the update.
type Match struct {
	Line   int // 1-based line number in the original content
	Before string
	After  string
}

// PreviewChanges runs the same transformation as UpdateFile and reports the changed lines.
// The file is never written.
func (e *Engine) PreviewChanges(ctx context.Context, path, key, newValue string) ([]Match, error) {
	if _, err := e.store.Resolve(path); err != nil {
		return nil, err
	}

	data, err := e.store.Read(ctx, path)
	if err != nil {
		return nil, err
	}

	res := e.UpdateContent(path, string(data), key, newValue, nil)
	if res.Err != nil {
		return nil, res.Err
	}

	return diffLines(string(data), res.Content), nil
}

// diffLines pairs changed lines between two versions of a file.
func diffLines(before, after string) []Match {
	a := strings.Split(before, "\n")
	b := strings.Split(after, "\n")

	var matches []Match
	for _, op := range difflib.NewMatcher(a, b).GetOpCodes() {
		if op.Tag == 'e' {
			continue
		}
		n := max(op.I2-op.I1, op.J2-op.J1)
		for k := range n {
			m := Match{Line: op.I1 + k + 1}
			if op.I1+k < op.I2 {
				m.Before = a[op.I1+k]
			}
			if op.J1+k < op.J2 {
				m.After = b[op.J1+k]
			}
			matches = append(matches, m)
		}
	}
	return matches
}

// UnifiedDiff renders a unified diff between two versions of path.
func UnifiedDiff(path, before, after string) (string, error) {
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(before),
		B:        difflib.SplitLines(after),
		FromFile: "a/" + path,
		ToFile:   "b/" + path,
		Context:  3,
	})
}
