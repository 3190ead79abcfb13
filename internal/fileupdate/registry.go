package fileupdate

import (
	"sync"
)

// Registry maps file paths to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers []*Handler
}

// NewRegistry creates a registry holding the built-in handlers.
func NewRegistry() *Registry {
	return &Registry{handlers: DefaultHandlers()}
}

// NewEmptyRegistry creates a registry with no handlers.
func NewEmptyRegistry() *Registry {
	return &Registry{}
}

// Register adds a handler. Later registrations win over earlier ones.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers = append([]*Handler{h}, r.handlers...)
}

// HandlerFor returns the first handler whose detector accepts path.
func (r *Registry) HandlerFor(path string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.handlers {
		if h.Detect != nil && h.Detect(path) {
			return h, true
		}
	}
	return nil, false
}

// Names lists registered handler names in lookup order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for _, h := range r.handlers {
		names = append(names, h.Name)
	}
	return names
}
