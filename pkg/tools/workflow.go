package tools

import (
	"context"
	"errors"
	"fmt"
	"slices"

	ssar "github.com/goliatone/go-ssar"
)

// WorkflowPolicy holds the shader constants the pack tool depends on.
type WorkflowPolicy struct {
	Separate      int
	Packed        int
	PackedKeyword string
	SkipPacked    bool
}

// DefaultWorkflowPolicy matches the stock material setup.
func DefaultWorkflowPolicy() WorkflowPolicy {
	return WorkflowPolicy{Separate: 0, Packed: 1, PackedKeyword: "_WORKFLOW_PACKED_ON", SkipPacked: true}
}

// Baker combines a material's separate maps into one packed texture and
// returns the value to store in its packed map slot.
type Baker interface {
	Bake(ctx context.Context, host ssar.Host, material ssar.ObjectRef) (any, error)
}

// BakerFunc adapts a function to Baker.
type BakerFunc func(ctx context.Context, host ssar.Host, material ssar.ObjectRef) (any, error)

// Bake implements Baker.
func (fn BakerFunc) Bake(ctx context.Context, host ssar.Host, material ssar.ObjectRef) (any, error) {
	return fn(ctx, host, material)
}

// ErrNoBaker is returned when a pack is applied without a baker.
var ErrNoBaker = errors.New("tools: pack workflow needs a baker")

// PackWorkflow switches scene materials to the packed workflow. With
// SkipPacked, only materials on the separate workflow are considered, and
// those that enable the packed keyword or hold a packed map are left alone. Only the workflow flag is backed up;
// baked textures stay assigned after a restore.
func PackWorkflow(policy WorkflowPolicy, baker Baker) (ssar.Plan, error) {
	if policy.Packed == policy.Separate {
		return ssar.Plan{}, fmt.Errorf("tools: packed and separate workflow values must differ")
	}
	return ssar.Plan{
		Name: NamePackWorkflow,
		Scope: ssar.Scope{
			Name:  "scene materials",
			From:  []string{KindMeshRenderer, KindSkinnedMeshRenderer},
			Via:   []string{AttrMaterials},
			Kinds: []string{KindMaterial},
		},
		Attribute: AttrWorkflow,
		Target:    policy.Packed,
		Identity:  ssar.IdentityDurable,
		Inputs:    []string{AttrPackedMap, AttrKeywords},
		Predicate: packPredicate(policy),
		Write:     packWriter(baker),
	}, nil
}

func packPredicate(policy WorkflowPolicy) ssar.Predicate {
	return ssar.PredicateFunc(func(_ context.Context, in ssar.PredicateInput) (bool, error) {
		if ssar.ValuesEqual(in.Current, policy.Packed) {
			return false, nil
		}
		if !policy.SkipPacked {
			return true, nil
		}
		if !ssar.ValuesEqual(in.Current, policy.Separate) {
			return false, nil
		}
		if hasKeyword(in.Inputs[AttrKeywords], policy.PackedKeyword) || isSet(in.Inputs[AttrPackedMap]) {
			return false, nil
		}
		return true, nil
	})
}

func packWriter(baker Baker) ssar.WriteFunc {
	return func(ctx context.Context, host ssar.Host, ref ssar.ObjectRef, attribute string, value any) error {
		if baker == nil {
			return ErrNoBaker
		}
		packed, err := baker.Bake(ctx, host, ref)
		if err != nil {
			return fmt.Errorf("bake %s: %w", ref.Path, err)
		}
		if host.HasAttribute(ref, AttrPackedMap) {
			if err := host.SetAttribute(ref, AttrPackedMap, packed); err != nil {
				return err
			}
		}
		return host.SetAttribute(ref, attribute, value)
	}
}

func hasKeyword(value any, keyword string) bool {
	if keyword == "" {
		return false
	}
	switch typed := value.(type) {
	case []string:
		return slices.Contains(typed, keyword)
	case []any:
		for _, item := range typed {
			if s, ok := item.(string); ok && s == keyword {
				return true
			}
		}
	case string:
		return typed == keyword
	}
	return false
}

func isSet(value any) bool {
	switch typed := value.(type) {
	case nil:
		return false
	case string:
		return typed != ""
	case []any:
		return len(typed) > 0
	case ssar.Key:
		return !typed.IsZero()
	default:
		return true
	}
}
