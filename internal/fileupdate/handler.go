// Package fileupdate rewrites version strings across project files.
//
// A Registry maps files to Handlers. A Handler knows how to detect its files,
// which Pattern to apply for each key and how to validate the result. The
// Engine computes new content without touching the disk; writing is a separate
// explicit step so callers can snapshot and track it first.
package fileupdate

import (
	"path/filepath"
	"strings"
)

// KeyVersion is the key every built-in handler defines.
const KeyVersion = "version"

// CustomFunc computes new content from the current content and the new value.
// Its output is used verbatim.
type CustomFunc func(content, newValue string) (string, error)

// Handler describes how to update one kind of file.
type Handler struct {
	Name     string
	Detect   func(path string) bool
	Patterns map[string]*Pattern
	// Replace, when set, takes over substitution for every key.
	Replace func(content, key, newValue string) (string, int, error)
	// Validate checks the updated content. A failure is reported, not enforced.
	Validate func(content string) error
}

// Pattern returns the pattern registered for key.
func (h *Handler) Pattern(key string) (*Pattern, bool) {
	p, ok := h.Patterns[key]
	return p, ok
}

// baseIs matches a path by base name, case-insensitively.
func baseIs(names ...string) func(string) bool {
	return func(path string) bool {
		base := strings.ToLower(filepath.Base(path))
		for _, n := range names {
			if base == n {
				return true
			}
		}
		return false
	}
}

// extIs matches a path by extension, case-insensitively.
func extIs(exts ...string) func(string) bool {
	return func(path string) bool {
		ext := strings.ToLower(filepath.Ext(path))
		for _, e := range exts {
			if ext == e {
				return true
			}
		}
		return false
	}
}

// pomSkip lists the pom.xml elements whose <version> children are not the project's.
var pomSkip = []string{
	"parent", "dependencies", "dependencyManagement", "build", "plugins",
	"pluginManagement", "profiles", "reporting", "extensions",
}

// DefaultHandlers returns the built-in handlers, most specific first.
func DefaultHandlers() []*Handler {
	return []*Handler{
		{
			Name:     "package-lock.json",
			Detect:   baseIs("package-lock.json", "npm-shrinkwrap.json"),
			Patterns: map[string]*Pattern{KeyVersion: JSONField("version")},
			Replace:  replacePackageLock,
			Validate: ValidateJSON,
		},
		{
			Name:   "package.json",
			Detect: baseIs("package.json", "composer.json", "manifest.json", "deno.json"),
			Patterns: map[string]*Pattern{
				KeyVersion: JSONField("version").First(),
			},
			Validate: ValidateJSON,
		},
		{
			Name:     "Cargo.toml",
			Detect:   baseIs("cargo.toml"),
			Patterns: map[string]*Pattern{KeyVersion: TOMLField("version", "package", "workspace.package")},
			Validate: ValidateTOML,
		},
		{
			Name:     "pyproject.toml",
			Detect:   baseIs("pyproject.toml"),
			Patterns: map[string]*Pattern{KeyVersion: TOMLField("version", "project", "tool.poetry")},
			Validate: ValidateTOML,
		},
		{
			Name:     "setup.py",
			Detect:   baseIs("setup.py"),
			Patterns: map[string]*Pattern{KeyVersion: AssignField("version").First()},
		},
		{
			Name:     "setup.cfg",
			Detect:   baseIs("setup.cfg"),
			Patterns: map[string]*Pattern{KeyVersion: MustPattern(`(?m)^(?P<prefix>version[ \t]*=[ \t]*)(?P<value>[^\s#;]+)`).First()},
		},
		{
			Name:     "python module",
			Detect:   baseIs("__init__.py", "_version.py", "__version__.py", "version.py"),
			Patterns: map[string]*Pattern{KeyVersion: AssignField("__version__")},
		},
		{
			Name:   "Chart.yaml",
			Detect: baseIs("chart.yaml"),
			Patterns: map[string]*Pattern{
				KeyVersion:   YAMLField("version"),
				"appVersion": YAMLField("appVersion"),
			},
			Validate: ValidateYAML,
		},
		{
			Name:     "pubspec.yaml",
			Detect:   baseIs("pubspec.yaml"),
			Patterns: map[string]*Pattern{KeyVersion: YAMLField("version")},
			Validate: ValidateYAML,
		},
		{
			Name:     "pom.xml",
			Detect:   baseIs("pom.xml"),
			Patterns: map[string]*Pattern{KeyVersion: XMLElement("version", pomSkip...)},
			Validate: ValidateXML,
		},
		{
			Name:   ".csproj",
			Detect: extIs(".csproj", ".fsproj", ".vbproj"),
			Patterns: map[string]*Pattern{
				KeyVersion:        XMLElement("Version"),
				"assemblyVersion": XMLElement("AssemblyVersion"),
				"fileVersion":     XMLElement("FileVersion"),
			},
			Validate: ValidateXML,
		},
		{
			Name:     "build.gradle",
			Detect:   baseIs("build.gradle", "build.gradle.kts"),
			Patterns: map[string]*Pattern{KeyVersion: GradleField("version").First()},
		},
		{
			Name:     "gradle.properties",
			Detect:   baseIs("gradle.properties"),
			Patterns: map[string]*Pattern{KeyVersion: MustPattern(`(?m)^(?P<prefix>version[ \t]*=[ \t]*)(?P<value>\S+)`).First()},
		},
		{
			Name:     "version.go",
			Detect:   baseIs("version.go"),
			Patterns: map[string]*Pattern{KeyVersion: GoConst("Version")},
		},
		{
			Name:     "VERSION",
			Detect:   baseIs("version", "version.txt"),
			Patterns: map[string]*Pattern{KeyVersion: PlainVersion()},
		},
	}
}

// replacePackageLock updates the top-level version and the root package entry,
// leaving dependency versions alone.
func replacePackageLock(content, key, newValue string) (string, int, error) {
	if key != KeyVersion {
		return content, 0, nil
	}

	field := JSONField("version")
	updated, top := field.First().Apply(content, newValue)

	rootIdx := strings.Index(updated, `"": {`)
	if rootIdx < 0 {
		return updated, top, nil
	}
	head, tail := updated[:rootIdx], updated[rootIdx:]
	tail, root := field.First().Apply(tail, newValue)

	return head + tail, top + root, nil
}
