package vkbackend

import (
	"sync"

	"vkframe/gfx"
)

// table maps the opaque handles given to the renderer to Vulkan objects. The
// same object always gets the same handle while it is registered, so objects
// which are enumerated again, like swapchain images, keep their identity.
type table[T comparable] struct {
	mu      sync.Mutex
	kind    gfx.ObjectKind
	raw     func(T) uint64
	next    gfx.Handle
	objects map[gfx.Handle]T
	handles map[T]gfx.Handle

	names map[gfx.Handle]string
	byRaw map[uint64]gfx.Handle
}

// newTable returns an empty table. raw returns the value Vulkan itself uses for
// the object, which is what validation messages refer to.
func newTable[T comparable](kind gfx.ObjectKind, raw func(T) uint64) *table[T] {
	return &table[T]{
		kind:    kind,
		raw:     raw,
		objects: make(map[gfx.Handle]T),
		handles: make(map[T]gfx.Handle),
		names:   make(map[gfx.Handle]string),
		byRaw:   make(map[uint64]gfx.Handle),
	}
}

// put registers obj and returns its handle.
func (t *table[T]) put(obj T) gfx.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()

	if h, ok := t.handles[obj]; ok {
		return h
	}

	t.next++
	t.objects[t.next] = obj
	t.handles[obj] = t.next
	t.byRaw[t.raw(obj)] = t.next
	return t.next
}

// get returns the object behind h. The null handle and unknown handles yield
// the zero value, which Vulkan treats as VK_NULL_HANDLE.
func (t *table[T]) get(h gfx.Handle) T {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.objects[h]
}

// remove forgets h and returns the object it referred to.
func (t *table[T]) remove(h gfx.Handle) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	obj, ok := t.objects[h]
	if !ok {
		return obj, false
	}
	delete(t.objects, h)
	delete(t.handles, obj)
	delete(t.names, h)
	delete(t.byRaw, t.raw(obj))
	return obj, true
}

func (t *table[T]) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.objects)
}

// setName attaches a debug name to h. It returns false for unknown handles.
func (t *table[T]) setName(h gfx.Handle, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.objects[h]; !ok {
		return false
	}
	t.names[h] = name
	return true
}

// nameOf returns the kind and debug name of the object whose Vulkan value is
// raw.
func (t *table[T]) nameOf(raw uint64) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	h, ok := t.byRaw[raw]
	if !ok {
		return "", false
	}
	name, ok := t.names[h]
	if !ok {
		return "", false
	}
	return t.kind.String() + " " + name, true
}
