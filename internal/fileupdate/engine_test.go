package fileupdate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/store"
)

const testPackageJSON = `{
  "name": "demo",
  "version": "1.0.0",
  "dependencies": {
    "left-pad": "^1.3.0"
  }
}
`

func newTestEngine(t *testing.T) (*Engine, string) {
	t.Helper()

	tmpDir := t.TempDir()
	st, err := store.NewLocalStore(tmpDir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return NewEngine(st), tmpDir
}

func writeTestFile(t *testing.T, dir, name, content string) {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func TestEngine_UpdateFileDoesNotWrite(t *testing.T) {
	t.Parallel()
	engine, dir := newTestEngine(t)
	ctx := context.Background()
	writeTestFile(t, dir, "package.json", testPackageJSON)

	res := engine.UpdateFile(ctx, "package.json", KeyVersion, "1.1.0", nil)
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if !strings.Contains(res.Content, `"version": "1.1.0"`) {
		t.Errorf("expected new version in content, got:\n%s", res.Content)
	}
	if !res.Validated || !res.Valid() {
		t.Errorf("expected validated and valid content, got %+v", res)
	}

	onDisk, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(onDisk) != testPackageJSON {
		t.Error("UpdateFile must not modify the file")
	}

	if err := engine.WriteFile(ctx, "package.json", res.Content); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	onDisk, _ = os.ReadFile(filepath.Join(dir, "package.json"))
	if string(onDisk) != res.Content {
		t.Error("WriteFile did not persist content")
	}
}

func TestEngine_Idempotent(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	first := engine.UpdateContent("package.json", testPackageJSON, KeyVersion, "2.0.0", nil)
	if !first.Success {
		t.Fatalf("first update failed: %v", first.Err)
	}
	second := engine.UpdateContent("package.json", first.Content, KeyVersion, "2.0.0", nil)
	if !second.Success {
		t.Fatalf("second update failed: %v", second.Err)
	}
	if first.Content != second.Content {
		t.Errorf("update is not idempotent:\n%s\nvs\n%s", first.Content, second.Content)
	}
}

func TestEngine_NamedFailures(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	res := engine.UpdateContent("package.json", testPackageJSON, "buildNumber", "7", nil)
	if res.Success || !errors.Is(res.Err, apperrors.ErrNoPatternDefined) {
		t.Errorf("expected ErrNoPatternDefined, got %+v", res)
	}

	res = engine.UpdateContent("package.json", `{"name": "demo"}`, KeyVersion, "1.0.0", nil)
	if res.Success || !errors.Is(res.Err, apperrors.ErrNoMatchesFound) {
		t.Errorf("expected ErrNoMatchesFound, got %+v", res)
	}

	var patternErr *apperrors.PatternError
	if !errors.As(res.Err, &patternErr) || patternErr.Key != KeyVersion {
		t.Errorf("expected *PatternError naming the key, got %v", res.Err)
	}

	res = engine.UpdateContent("notes.md", "# Notes", KeyVersion, "1.0.0", nil)
	if !errors.Is(res.Err, apperrors.ErrNoHandler) {
		t.Errorf("expected ErrNoHandler, got %v", res.Err)
	}
}

func TestEngine_CustomFuncUsedVerbatim(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	custom := func(_, newValue string) (string, error) {
		return "# Changelog\n\n## " + newValue + "\n", nil
	}

	res := engine.UpdateContent("CHANGELOG.md", "# Changelog\n", KeyVersion, "3.0.0", custom)
	if !res.Success {
		t.Fatalf("expected success, got %v", res.Err)
	}
	if res.Content != "# Changelog\n\n## 3.0.0\n" {
		t.Errorf("unexpected content %q", res.Content)
	}
	if res.Validated {
		t.Error("no validator should run without a handler")
	}
}

func TestEngine_ValidationDoesNotBlockSuccess(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)

	broken := func(content, _ string) (string, error) {
		return content + "}", nil
	}

	res := engine.UpdateContent("package.json", testPackageJSON, KeyVersion, "1.0.1", broken)
	if !res.Success {
		t.Fatalf("expected success despite invalid JSON, got %v", res.Err)
	}
	if !res.Validated || res.Valid() {
		t.Errorf("expected validation failure to be reported, got %+v", res)
	}
}

func TestEngine_RejectsTraversalEverywhere(t *testing.T) {
	t.Parallel()
	engine, _ := newTestEngine(t)
	ctx := context.Background()
	evil := "../../etc/passwd"

	if res := engine.UpdateFile(ctx, evil, KeyVersion, "1.0.0", nil); !errors.Is(res.Err, apperrors.ErrPathTraversal) {
		t.Errorf("UpdateFile: expected ErrPathTraversal, got %v", res.Err)
	}
	if res := engine.UpdateContent(evil, "1.0.0", KeyVersion, "1.0.1", nil); !errors.Is(res.Err, apperrors.ErrPathTraversal) {
		t.Errorf("UpdateContent: expected ErrPathTraversal, got %v", res.Err)
	}
	if _, err := engine.PreviewChanges(ctx, evil, KeyVersion, "1.0.0"); !errors.Is(err, apperrors.ErrPathTraversal) {
		t.Errorf("PreviewChanges: expected ErrPathTraversal, got %v", err)
	}
	if err := engine.WriteFile(ctx, evil, "x"); !errors.Is(err, apperrors.ErrPathTraversal) {
		t.Errorf("WriteFile: expected ErrPathTraversal, got %v", err)
	}
}

func TestEngine_PreviewChanges(t *testing.T) {
	t.Parallel()
	engine, dir := newTestEngine(t)
	ctx := context.Background()
	writeTestFile(t, dir, "package.json", testPackageJSON)

	matches, err := engine.PreviewChanges(ctx, "package.json", KeyVersion, "1.2.0")
	if err != nil {
		t.Fatalf("PreviewChanges failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d: %+v", len(matches), matches)
	}
	want := Match{Line: 3, Before: `  "version": "1.0.0",`, After: `  "version": "1.2.0",`}
	if matches[0] != want {
		t.Errorf("got %+v, want %+v", matches[0], want)
	}

	onDisk, _ := os.ReadFile(filepath.Join(dir, "package.json"))
	if string(onDisk) != testPackageJSON {
		t.Error("PreviewChanges must not modify the file")
	}
}

func TestRegistry_RegisterOverrides(t *testing.T) {
	t.Parallel()
	registry := NewRegistry()

	registry.Register(&Handler{
		Name:     "custom-json",
		Detect:   baseIs("package.json"),
		Patterns: map[string]*Pattern{"name": JSONField("name")},
	})

	h, ok := registry.HandlerFor("sub/package.json")
	if !ok || h.Name != "custom-json" {
		t.Errorf("expected custom handler to win, got %v", h)
	}
	if _, ok := registry.HandlerFor("README.md"); ok {
		t.Error("expected no handler for README.md")
	}
}

func TestUnifiedDiff(t *testing.T) {
	t.Parallel()

	diff, err := UnifiedDiff("VERSION", "1.0.0\n", "1.1.0\n")
	if err != nil {
		t.Fatalf("UnifiedDiff failed: %v", err)
	}
	if !strings.Contains(diff, "-1.0.0") || !strings.Contains(diff, "+1.1.0") {
		t.Errorf("unexpected diff:\n%s", diff)
	}
}
