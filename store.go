// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package framegraph

import (
	"slices"
	"sync"

	"github.com/gogpu/wgpu/hal"
)

// Store maps resource names to typed GPU resources and owns their lifetime.
//
// Images and buffers live in separate namespaces, so an image and a buffer
// may share a name. Within the buffer namespace a name holds one payload
// type: asking for a BufferResource[T] stored as a different payload, or
// overwriting it with one, returns ErrResourceTypeMismatch instead of
// reinterpreting memory.
//
// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	device  hal.Device // used to release replaced or removed resources; may be nil
	images  map[string]*ImageResource
	buffers map[string]resource
	order   []storeKey // registration order across both kinds
}

type storeKey struct {
	kind Kind
	name string
}

// NewStore creates an empty store. device may be nil, in which case
// releasing resources only drops the references.
func NewStore(device hal.Device) *Store {
	return &Store{
		device:  device,
		images:  make(map[string]*ImageResource),
		buffers: make(map[string]resource),
	}
}

// AddImageResource inserts r under name, overwriting an existing image of
// the same name. A buffer of the same name is left alone. r.Name is set to
// name.
func (s *Store) AddImageResource(name string, r *ImageResource) error {
	if r == nil {
		return &ResourceError{Name: name, Op: "add", Err: ErrInvalidResource}
	}
	return s.add(name, r)
}

// GetImageResource returns the image registered under name.
func (s *Store) GetImageResource(name string) (*ImageResource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	img, ok := s.images[name]
	if !ok {
		return nil, &ResourceError{Name: name, Op: "get", Err: ErrResourceNotFound}
	}
	return img, nil
}

// AddBufferResource inserts r under name. An existing buffer with the same
// payload type is overwritten; a buffer with another payload is a
// ErrResourceTypeMismatch. Images of the same name are left alone.
func AddBufferResource[T Payload](s *Store, name string, r *BufferResource[T]) error {
	if r == nil {
		return &ResourceError{Name: name, Op: "add", Err: ErrInvalidResource}
	}
	return s.add(name, r)
}

// GetBufferResource returns the buffer registered under name, checking that
// it holds payload T.
func GetBufferResource[T Payload](s *Store, name string) (*BufferResource[T], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.buffers[name]
	if !ok {
		return nil, &ResourceError{Name: name, Op: "get", Err: ErrResourceNotFound}
	}
	buf, ok := e.(*BufferResource[T])
	if !ok {
		want := "buffer[" + payloadName[T]() + "]"
		return nil, &ResourceError{Name: name, Op: "get", Want: want, Have: e.typeName(), Err: ErrResourceTypeMismatch}
	}
	return buf, nil
}

func (s *Store) add(name string, r resource) error {
	if name == "" {
		return &ResourceError{Name: name, Op: "add", Err: ErrInvalidResource}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := storeKey{kind: r.kind(), name: name}
	if old, ok := s.get(key); ok {
		if old.typeName() != r.typeName() {
			return &ResourceError{Name: name, Op: "add", Want: old.typeName(), Have: r.typeName(), Err: ErrResourceTypeMismatch}
		}
		if old != r {
			Logger().Warn("framegraph: overwriting resource",
				"resource", name, "type", r.typeName(), "old_parent", old.info().Parent, "new_parent", r.info().Parent)
			old.release(s.device)
		}
		s.order = slices.DeleteFunc(s.order, func(k storeKey) bool { return k == key })
	}
	r.info().Name = name
	if img, ok := r.(*ImageResource); ok {
		s.images[name] = img
	} else {
		s.buffers[name] = r
	}
	s.order = append(s.order, key)

	Logger().Debug("framegraph: resource registered", "resource", name, "type", r.typeName(), "parent", r.info().Parent)
	return nil
}

// get looks up key. The caller holds s.mu.
func (s *Store) get(key storeKey) (resource, bool) {
	if key.kind == KindImage {
		img, ok := s.images[key.name]
		return img, ok
	}
	e, ok := s.buffers[key.name]
	return e, ok
}

// named returns every resource registered under name, image first.
func (s *Store) named(name string) []resource {
	var out []resource
	if img, ok := s.images[name]; ok {
		out = append(out, img)
	}
	if buf, ok := s.buffers[name]; ok {
		out = append(out, buf)
	}
	return out
}

// Has reports whether a resource of any kind is registered under name.
func (s *Store) Has(name string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.named(name)) > 0
}

// Describe returns a summary of the named resource. When an image and a
// buffer share the name, the image is described.
func (s *Store) Describe(name string) (ResourceDesc, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.named(name)
	if len(all) == 0 {
		return ResourceDesc{}, false
	}
	return describe(all[0]), true
}

// DescribeAll summarises every resource registered under name.
func (s *Store) DescribeAll(name string) []ResourceDesc {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []ResourceDesc
	for _, e := range s.named(name) {
		out = append(out, describe(e))
	}
	return out
}

func describe(e resource) ResourceDesc {
	info := e.info()
	return ResourceDesc{
		Name:     info.Name,
		Parent:   info.Parent,
		Kind:     e.kind(),
		Type:     e.typeName(),
		Prepared: info.Prepared,
	}
}

// ready reports whether anything is registered under name and whether all
// of it is prepared.
func (s *Store) ready(name string) (found, prepared bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.named(name)
	for _, e := range all {
		if !e.info().Prepared {
			return true, false
		}
	}
	return len(all) > 0, len(all) > 0
}

// MarkPrepared sets the prepared flag of every resource named name.
func (s *Store) MarkPrepared(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.named(name)
	if len(all) == 0 {
		return &ResourceError{Name: name, Op: "prepare", Err: ErrResourceNotFound}
	}
	for _, e := range all {
		e.info().Prepared = true
	}
	return nil
}

// markPrepared sets r's prepared flag under the store lock.
func (s *Store) markPrepared(r resource) {
	s.mu.Lock()
	r.info().Prepared = true
	s.mu.Unlock()
}

// Names returns resource names in registration order. A name shared by an
// image and a buffer appears once per resource.
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	for i, k := range s.order {
		names[i] = k.name
	}
	return names
}

// Len returns the number of registered resources.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.images) + len(s.buffers)
}

// Remove releases the GPU objects of every resource named name and drops
// them from the store.
func (s *Store) Remove(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := s.named(name)
	if len(all) == 0 {
		return &ResourceError{Name: name, Op: "remove", Err: ErrResourceNotFound}
	}
	for _, e := range all {
		e.release(s.device)
	}
	delete(s.images, name)
	delete(s.buffers, name)
	s.order = slices.DeleteFunc(s.order, func(k storeKey) bool { return k.name == name })
	return nil
}

// Release destroys every resource in reverse registration order and empties
// the store.
func (s *Store) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(s.order) - 1; i >= 0; i-- {
		if e, ok := s.get(s.order[i]); ok {
			e.release(s.device)
		}
	}
	s.images = make(map[string]*ImageResource)
	s.buffers = make(map[string]resource)
	s.order = nil
}
