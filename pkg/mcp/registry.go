package mcp

import "sync"

// registry is a keyed handler store with a tag index. Registration
// replaces any previous entry with the same key.
type registry[H any] struct {
	mu    sync.RWMutex
	items map[string]H
	order []string
	tags  map[string]map[string]struct{}
}

func newRegistry[H any]() *registry[H] {
	return &registry[H]{
		items: map[string]H{},
		tags:  map[string]map[string]struct{}{},
	}
}

// Register stores a handler under key with optional tags.
func (r *registry[H]) Register(key string, handler H, tags ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; !exists {
		r.order = append(r.order, key)
	}
	r.items[key] = handler
	for _, tag := range tags {
		set, ok := r.tags[tag]
		if !ok {
			set = map[string]struct{}{}
			r.tags[tag] = set
		}
		set[key] = struct{}{}
	}
}

// Deregister removes a handler and its tag entries.
func (r *registry[H]) Deregister(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.items[key]; !exists {
		return
	}
	delete(r.items, key)
	for i, k := range r.order {
		if k == key {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	for tag, set := range r.tags {
		delete(set, key)
		if len(set) == 0 {
			delete(r.tags, tag)
		}
	}
}

// Get returns the handler for key.
func (r *registry[H]) Get(key string) (H, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.items[key]
	return h, ok
}

// Keys returns keys in registration order.
func (r *registry[H]) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// All returns handlers in registration order.
func (r *registry[H]) All() []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]H, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key])
	}
	return out
}

// ByTag returns handlers carrying the tag, in registration order.
func (r *registry[H]) ByTag(tag string) []H {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set, ok := r.tags[tag]
	if !ok {
		return nil
	}
	out := make([]H, 0, len(set))
	for _, key := range r.order {
		if _, tagged := set[key]; tagged {
			out = append(out, r.items[key])
		}
	}
	return out
}

// Len reports the number of registered handlers.
func (r *registry[H]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}

// Clear empties the registry and its tag index.
func (r *registry[H]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = map[string]H{}
	r.order = nil
	r.tags = map[string]map[string]struct{}{}
}
