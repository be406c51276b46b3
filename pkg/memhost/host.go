// Package memhost is an in-memory ssar.Host. It models a loaded scene of
// instances alongside persisted assets, counts batches and refreshes, and can
// inject write failures. The CLI and the tests drive the engine through it.
package memhost

import (
	"context"
	"fmt"
	"slices"
	"strconv"
	"sync"

	"github.com/zeebo/xxh3"

	ssar "github.com/goliatone/go-ssar"
	"github.com/goliatone/go-ssar/layering"
)

// Object describes one host object.
type Object struct {
	// GUID is the persisted identity. Persistent objects without one get a
	// hash of their path.
	GUID       string
	Kind       string
	Name       string
	Path       string
	Persistent bool
	Inactive   bool
	Attributes map[string]any
}

type object struct {
	Object
	id string
}

// Host implements ssar.Host.
type Host struct {
	mu          sync.Mutex
	objects     map[string]*object
	order       []string
	byGUID      map[string]string
	nextID      int
	unloaded    bool
	batchDepth  int
	batches     int
	writes      int
	refreshes   map[string]int
	writeErrs   map[string]error
	refreshErrs map[string]error
}

// New returns an empty host with a loaded scene.
func New() *Host {
	return &Host{
		objects:     make(map[string]*object),
		byGUID:      make(map[string]string),
		refreshes:   make(map[string]int),
		writeErrs:   make(map[string]error),
		refreshErrs: make(map[string]error),
	}
}

// Add registers obj and returns its reference. Durable identity is assigned
// to persistent objects and to objects with an explicit GUID.
func (h *Host) Add(obj Object) ssar.ObjectRef {
	h.mu.Lock()
	defer h.mu.Unlock()
	if obj.GUID == "" && obj.Persistent {
		obj.GUID = PathGUID(obj.Path)
	}
	obj.Attributes = layering.Clone(obj.Attributes)
	if obj.Attributes == nil {
		obj.Attributes = map[string]any{}
	}
	h.nextID++
	o := &object{Object: obj, id: strconv.Itoa(h.nextID)}
	h.objects[o.id] = o
	h.order = append(h.order, o.id)
	if obj.GUID != "" {
		h.byGUID[obj.GUID] = o.id
	}
	return h.ref(o)
}

// PathGUID derives a stable identifier from an asset path.
func PathGUID(path string) string {
	sum := xxh3.Hash128([]byte(path)).Bytes()
	return fmt.Sprintf("%x", sum[:])
}

// Remove deletes the object behind key. Its key stops resolving.
func (h *Host) Remove(key ssar.Key) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(key)
	if !ok {
		return false
	}
	delete(h.objects, o.id)
	if o.GUID != "" {
		delete(h.byGUID, o.GUID)
	}
	h.order = slices.DeleteFunc(h.order, func(id string) bool { return id == o.id })
	return true
}

// Reload reassigns every instance id, as a restart would. Durable keys keep
// resolving; volatile keys from before the reload do not.
func (h *Host) Reload() {
	h.mu.Lock()
	defer h.mu.Unlock()
	objects := make(map[string]*object, len(h.objects))
	order := make([]string, 0, len(h.order))
	for _, id := range h.order {
		o := h.objects[id]
		h.nextID++
		o.id = "r" + strconv.Itoa(h.nextID)
		objects[o.id] = o
		order = append(order, o.id)
		if o.GUID != "" {
			h.byGUID[o.GUID] = o.id
		}
	}
	h.objects = objects
	h.order = order
}

// UnloadScene makes Enumerate fail with ssar.ErrInvalidScope.
func (h *Host) UnloadScene() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloaded = true
}

// LoadScene undoes UnloadScene.
func (h *Host) LoadScene() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unloaded = false
}

// FailWrites makes every write of attribute on the object at path fail with
// err. A nil err clears the injection.
func (h *Host) FailWrites(path, attribute string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.writeErrs, path+"\x00"+attribute)
		return
	}
	h.writeErrs[path+"\x00"+attribute] = err
}

// FailRefresh makes refreshing the object at path fail with err.
func (h *Host) FailRefresh(path string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err == nil {
		delete(h.refreshErrs, path)
		return
	}
	h.refreshErrs[path] = err
}

// Value reads attribute of the object at path, for assertions.
func (h *Host) Value(path, attribute string) (any, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		o := h.objects[id]
		if o.Path == path {
			v, ok := o.Attributes[attribute]
			return layering.Clone(v), ok
		}
	}
	return nil, false
}

// Set writes attribute on the object at path outside any batch, the way a
// user edit would.
func (h *Host) Set(path, attribute string, value any) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		o := h.objects[id]
		if o.Path == path {
			o.Attributes[attribute] = layering.Clone(value)
			return true
		}
	}
	return false
}

// Ref returns the current reference of the object at path.
func (h *Host) Ref(path string) (ssar.ObjectRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.order {
		if o := h.objects[id]; o.Path == path {
			return h.ref(o), true
		}
	}
	return ssar.ObjectRef{}, false
}

// Batches reports how many batches were opened.
func (h *Host) Batches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batches
}

// OpenBatches reports batches begun but not ended.
func (h *Host) OpenBatches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.batchDepth
}

// Writes reports successful attribute writes.
func (h *Host) Writes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.writes
}

// Refreshes reports how often the object at path was refreshed.
func (h *Host) Refreshes(path string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refreshes[path]
}

// Enumerate implements ssar.Enumerator.
func (h *Host) Enumerate(ctx context.Context, kinds []string, includeInactive bool) ([]ssar.ObjectRef, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.unloaded {
		return nil, ssar.ErrInvalidScope
	}
	var out []ssar.ObjectRef
	for _, id := range h.order {
		o := h.objects[id]
		if len(kinds) > 0 && !slices.Contains(kinds, o.Kind) {
			continue
		}
		if o.Inactive && !includeInactive {
			continue
		}
		out = append(out, h.ref(o))
	}
	return out, nil
}

// HasAttribute implements ssar.Attributes.
func (h *Host) HasAttribute(ref ssar.ObjectRef, name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok {
		return false
	}
	_, has := o.Attributes[name]
	return has
}

// GetAttribute implements ssar.Attributes.
func (h *Host) GetAttribute(ref ssar.ObjectRef, name string) (any, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok {
		return nil, fmt.Errorf("memhost: %s: %w", ref.Key, ssar.ErrResolutionFailure)
	}
	v, has := o.Attributes[name]
	if !has {
		return nil, fmt.Errorf("memhost: %s has no attribute %q", o.Path, name)
	}
	return layering.Clone(v), nil
}

// SetAttribute implements ssar.Attributes.
func (h *Host) SetAttribute(ref ssar.ObjectRef, name string, value any) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok {
		return fmt.Errorf("memhost: %s: %w", ref.Key, ssar.ErrResolutionFailure)
	}
	if err := h.writeErrs[o.Path+"\x00"+name]; err != nil {
		return err
	}
	if _, has := o.Attributes[name]; !has {
		return fmt.Errorf("memhost: %s has no attribute %q", o.Path, name)
	}
	o.Attributes[name] = layering.Clone(value)
	h.writes++
	return nil
}

// Resolve implements ssar.Resolver.
func (h *Host) Resolve(key ssar.Key) (ssar.ObjectRef, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(key)
	if !ok {
		return ssar.ObjectRef{}, false
	}
	return h.ref(o), true
}

// DurableKey implements ssar.Resolver.
func (h *Host) DurableKey(ref ssar.ObjectRef) (ssar.Key, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok || o.GUID == "" {
		return ssar.Key{}, false
	}
	return ssar.DurableKey(o.GUID), true
}

// VolatileKey implements ssar.Resolver.
func (h *Host) VolatileKey(ref ssar.ObjectRef) (ssar.Key, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok {
		return ssar.Key{}, false
	}
	return ssar.VolatileKey(o.id), true
}

// BeginBatch implements ssar.BatchEditor.
func (h *Host) BeginBatch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.batchDepth++
	h.batches++
}

// EndBatch implements ssar.BatchEditor.
func (h *Host) EndBatch() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.batchDepth > 0 {
		h.batchDepth--
	}
}

// Refresh implements ssar.BatchEditor.
func (h *Host) Refresh(_ context.Context, ref ssar.ObjectRef) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	o, ok := h.lookup(ref.Key)
	if !ok {
		return fmt.Errorf("memhost: refresh %s: %w", ref.Key, ssar.ErrResolutionFailure)
	}
	if err := h.refreshErrs[o.Path]; err != nil {
		return err
	}
	h.refreshes[o.Path]++
	return nil
}

func (h *Host) lookup(key ssar.Key) (*object, bool) {
	switch key.Identity {
	case ssar.IdentityVolatile:
		o, ok := h.objects[key.ID]
		return o, ok
	case ssar.IdentityDurable:
		id, ok := h.byGUID[key.ID]
		if !ok {
			return nil, false
		}
		o, ok := h.objects[id]
		return o, ok
	default:
		return nil, false
	}
}

func (h *Host) ref(o *object) ssar.ObjectRef {
	return ssar.ObjectRef{
		Key:         ssar.VolatileKey(o.id),
		Kind:        o.Kind,
		Name:        o.Name,
		Path:        o.Path,
		Persistent:  o.Persistent,
		InLiveScope: !o.Persistent && !h.unloaded,
	}
}

var _ ssar.Host = (*Host)(nil)
