package fileupdate

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fclairamb/releasekit/internal/apperrors"
	"github.com/fclairamb/releasekit/internal/store"
)

// Result is the outcome of computing an update. Computing never writes.
type Result struct {
	Path    string
	Handler string
	Success bool
	Content string
	Err     error
	Matches int
	// Validated is true when a validator ran on Content.
	Validated bool
	// ValidationErr is set when the validator rejected Content. Success is not affected.
	ValidationErr error
}

// Valid reports whether the updated content passed validation (or was not validated).
func (r *Result) Valid() bool {
	return r.ValidationErr == nil
}

// Engine applies handlers to files of a workspace store.
type Engine struct {
	store    store.Store
	registry *Registry
	logger   *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithRegistry sets a custom handler registry.
func WithRegistry(r *Registry) EngineOption {
	return func(e *Engine) {
		e.registry = r
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// NewEngine creates an engine reading from and writing to st.
func NewEngine(st store.Store, opts ...EngineOption) *Engine {
	engine := &Engine{
		store:    st,
		registry: NewRegistry(),
		logger:   slog.Default(),
	}

	for _, opt := range opts {
		opt(engine)
	}

	return engine
}

// Registry returns the handler registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// UpdateContent computes the new content of path for key without touching the file.
func (e *Engine) UpdateContent(path, content, key, newValue string, custom CustomFunc) Result {
	res := Result{Path: path}

	if _, err := e.store.Resolve(path); err != nil {
		res.Err = err
		return res
	}

	handler, hasHandler := e.registry.HandlerFor(path)
	if hasHandler {
		res.Handler = handler.Name
	}

	switch {
	case custom != nil:
		updated, err := custom(content, newValue)
		if err != nil {
			res.Err = fmt.Errorf("custom update %s: %w", path, err)
			return res
		}
		res.Content = updated
		res.Matches = 1

	case !hasHandler:
		res.Err = fmt.Errorf("%w: %s", apperrors.ErrNoHandler, path)
		return res

	case handler.Replace != nil:
		updated, n, err := handler.Replace(content, key, newValue)
		if err != nil {
			res.Err = fmt.Errorf("replace %s: %w", path, err)
			return res
		}
		if n == 0 {
			res.Err = &apperrors.PatternError{Path: path, Key: key, Err: apperrors.ErrNoMatchesFound}
			return res
		}
		res.Content, res.Matches = updated, n

	default:
		pattern, ok := handler.Pattern(key)
		if !ok {
			res.Err = &apperrors.PatternError{Path: path, Key: key, Err: apperrors.ErrNoPatternDefined}
			return res
		}
		updated, n := pattern.Apply(content, newValue)
		if n == 0 {
			res.Err = &apperrors.PatternError{Path: path, Key: key, Err: apperrors.ErrNoMatchesFound}
			return res
		}
		res.Content, res.Matches = updated, n
	}

	res.Success = true

	if hasHandler && handler.Validate != nil {
		res.Validated = true
		res.ValidationErr = handler.Validate(res.Content)
		if res.ValidationErr != nil {
			e.logger.Warn("updated content failed validation",
				"path", path, "handler", handler.Name, "error", res.ValidationErr)
		}
	}

	return res
}

// UpdateFile reads path and computes its updated content. Nothing is written.
func (e *Engine) UpdateFile(ctx context.Context, path, key, newValue string, custom CustomFunc) Result {
	if _, err := e.store.Resolve(path); err != nil {
		return Result{Path: path, Err: err}
	}

	data, err := e.store.Read(ctx, path)
	if err != nil {
		return Result{Path: path, Err: err}
	}

	res := e.UpdateContent(path, string(data), key, newValue, custom)
	e.logger.DebugContext(ctx, "computed file update",
		"path", path, "key", key, "success", res.Success, "matches", res.Matches)
	return res
}

// WriteFile persists content computed by UpdateFile.
func (e *Engine) WriteFile(ctx context.Context, path, content string) error {
	if err := e.store.Write(ctx, path, []byte(content)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	e.logger.InfoContext(ctx, "updated file", "path", path)
	return nil
}
