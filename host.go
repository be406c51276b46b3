package ssar

import (
	"context"
	"fmt"
)

// Identity tells which lookup space a Key belongs to.
type Identity int

const (
	// IdentityVolatile keys are runtime instance ids, valid for one session.
	IdentityVolatile Identity = iota + 1
	// IdentityDurable keys survive restarts (persisted GUID or content path).
	IdentityDurable
)

func (i Identity) String() string {
	switch i {
	case IdentityVolatile:
		return "volatile"
	case IdentityDurable:
		return "durable"
	default:
		return "unknown"
	}
}

// Key is an opaque, stable reference to a host object.
type Key struct {
	Identity Identity
	ID       string
}

// VolatileKey builds an instance-id key.
func VolatileKey(id string) Key { return Key{Identity: IdentityVolatile, ID: id} }

// DurableKey builds a persisted-identity key.
func DurableKey(id string) Key { return Key{Identity: IdentityDurable, ID: id} }

// IsZero reports whether k carries no identifier.
func (k Key) IsZero() bool { return k.ID == "" }

func (k Key) String() string {
	switch k.Identity {
	case IdentityVolatile:
		return "v:" + k.ID
	case IdentityDurable:
		return "d:" + k.ID
	default:
		return "?:" + k.ID
	}
}

// ObjectRef describes a host object as seen at enumeration time. It is a view,
// not a handle: resolve the Key again before every use.
type ObjectRef struct {
	Key         Key
	Kind        string
	Name        string
	Path        string
	Persistent  bool
	InLiveScope bool
}

// Scope selects the objects a plan operates on.
//
// With an empty Via, the scope is every live object whose Kind is listed in
// Kinds. With Via set, the scanner starts from live objects of the From kinds,
// follows each reference attribute in Via in turn, and keeps the distinct
// resolved targets whose Kind is listed in Kinds.
type Scope struct {
	Name            string
	Kinds           []string
	From            []string
	Via             []string
	IncludeInactive bool
}

func (s Scope) reachable() bool { return len(s.Via) > 0 }

func (s Scope) label() string {
	if s.Name != "" {
		return s.Name
	}
	if s.reachable() {
		return fmt.Sprintf("%v->%v", s.From, s.Via)
	}
	return fmt.Sprintf("%v", s.Kinds)
}

// Enumerator lists host objects.
type Enumerator interface {
	// Enumerate returns the objects of the requested kinds. Implementations may
	// return persisted assets alongside scene instances; the scanner filters on
	// scope membership. ErrInvalidScope signals that no live scope exists.
	Enumerate(ctx context.Context, kinds []string, includeInactive bool) ([]ObjectRef, error)
}

// Attributes reads and writes named attributes.
type Attributes interface {
	HasAttribute(ref ObjectRef, name string) bool
	GetAttribute(ref ObjectRef, name string) (any, error)
	SetAttribute(ref ObjectRef, name string, value any) error
}

// Resolver maps keys to objects in both identity spaces.
type Resolver interface {
	Resolve(key Key) (ObjectRef, bool)
	DurableKey(ref ObjectRef) (Key, bool)
	VolatileKey(ref ObjectRef) (Key, bool)
}

// BatchEditor groups mutations so the host can defer expensive refresh work.
type BatchEditor interface {
	BeginBatch()
	EndBatch()
	Refresh(ctx context.Context, ref ObjectRef) error
}

// Host bundles every capability the engine needs from the host environment.
type Host interface {
	Enumerator
	Attributes
	Resolver
	BatchEditor
}

// Prompt is the question handed to a Confirmer.
type Prompt struct {
	// Operation is apply, restore or clear.
	Operation string
	Title     string
	Message   string
	Count     int
}

// Confirmer is the host confirmation dialog primitive.
type Confirmer interface {
	Confirm(ctx context.Context, prompt Prompt) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(ctx context.Context, prompt Prompt) (bool, error)

// Confirm implements Confirmer.
func (fn ConfirmFunc) Confirm(ctx context.Context, prompt Prompt) (bool, error) {
	if fn == nil {
		return true, nil
	}
	return fn(ctx, prompt)
}
