package tools

import (
	"context"
	"fmt"

	ssar "github.com/goliatone/go-ssar"
)

// LODPolicy decides what happens to groups that lack the requested level.
type LODPolicy string

const (
	// LODDisableAll disables every renderer of such a group.
	LODDisableAll LODPolicy = "disable_all"
	// LODKeepLast keeps the group's lowest detail level visible.
	LODKeepLast LODPolicy = "keep_last"
)

// LODOverride forces one LOD level on across the live scene. Every LOD group
// is disabled so it stops switching, and each renderer of a group is enabled
// only when it belongs to level. Renderers outside LOD groups are left alone.
// Inactive objects are included. The edit is session scoped.
func LODOverride(level int, policy LODPolicy) (ssar.Plan, error) {
	if level < 0 {
		return ssar.Plan{}, fmt.Errorf("tools: lod level %d must not be negative", level)
	}
	switch policy {
	case "":
		policy = LODDisableAll
	case LODDisableAll, LODKeepLast:
	default:
		return ssar.Plan{}, fmt.Errorf("tools: unknown lod policy %q", policy)
	}
	return ssar.Plan{
		Name: NameLODOverride,
		Scope: ssar.Scope{
			Name:            "scene lod groups",
			Kinds:           []string{KindLODGroup, KindMeshRenderer, KindSkinnedMeshRenderer},
			IncludeInactive: true,
		},
		Attribute: AttrEnabled,
		Target:    level,
		Identity:  ssar.IdentityVolatile,
		Inputs:    []string{AttrLODIndex, AttrLODGroup},
		Propose:   proposeLOD(level, policy),
	}, nil
}

func proposeLOD(level int, policy LODPolicy) ssar.ProposeFunc {
	return func(_ context.Context, in ssar.ProposeInput) (any, error) {
		if in.Object.Kind == KindLODGroup {
			return false, nil
		}
		index, ok := toInt(in.Inputs[AttrLODIndex])
		groups := ssar.ReferenceKeys(in.Inputs[AttrLODGroup])
		if !ok || len(groups) == 0 {
			return nil, ssar.ErrNotApplicable
		}
		raw, ok := in.Read(groups[0], AttrLODCount)
		if !ok {
			return nil, ssar.ErrNotApplicable
		}
		count, ok := toInt(raw)
		if !ok {
			return nil, ssar.ErrNotApplicable
		}
		switch {
		case level < count:
			return index == level, nil
		case policy == LODKeepLast:
			return index == count-1, nil
		default:
			return false, nil
		}
	}
}

// LODGroupsEnabled switches every LOD group in the live scene on or off.
// Renderers keep their own state. The edit is session scoped.
func LODGroupsEnabled(enabled bool) ssar.Plan {
	return ssar.Plan{
		Name: NameLODGroupsEnabled,
		Scope: ssar.Scope{
			Name:            "scene lod groups",
			Kinds:           []string{KindLODGroup},
			IncludeInactive: true,
		},
		Attribute: AttrEnabled,
		Target:    enabled,
		Identity:  ssar.IdentityVolatile,
	}
}
