// Package tools defines the batch edit plans the engine ships with: texture
// and normal map size caps, mesh import settings, lightmap scale, scene LOD
// switches and material workflow packing.
package tools

import (
	"context"
	"fmt"
	"slices"

	ssar "github.com/goliatone/go-ssar"
)

// Host object kinds.
const (
	KindMeshRenderer        = "MeshRenderer"
	KindSkinnedMeshRenderer = "SkinnedMeshRenderer"
	KindMeshFilter          = "MeshFilter"
	KindMaterial            = "Material"
	KindTexture             = "Texture"
	KindModel               = "Model"
	KindLODGroup            = "LODGroup"
)

// Attribute names.
const (
	AttrMaterials        = "materials"
	AttrTextures         = "textures"
	AttrMesh             = "mesh"
	AttrMaxTextureSize   = "max_texture_size"
	AttrTextureType      = "texture_type"
	AttrPlatformMaxSizes = "platform_max_texture_sizes"
	AttrMeshCompression  = "mesh_compression"
	AttrSecondaryUV      = "generate_secondary_uv"
	AttrLightmapScale    = "scale_in_lightmap"
	AttrEnabled          = "enabled"
	AttrLODGroup         = "lod_group"
	AttrLODIndex         = "lod_index"
	AttrLODCount         = "lod_count"
	AttrWorkflow         = "primary_workflow"
	AttrPackedMap        = "packed_map"
	AttrKeywords         = "keywords"
)

// Tool names.
const (
	NameTextureMaxSize    = "texture-max-size"
	NameNormalMapMaxSize  = "normal-map-size"
	NameNormalMapPlatform = "normal-map-platform-size"
	NameMeshCompression   = "mesh-compression"
	NameSecondaryUV       = "secondary-uv"
	NameLightmapScale     = "lightmap-scale"
	NameLODOverride       = "lod-override"
	NameLODGroupsEnabled  = "lod-groups-enabled"
	NamePackWorkflow      = "pack-workflow"
)

// TextureSizes are the accepted max size targets.
var TextureSizes = []int{512, 1024, 2048, 4096}

// CompressionLevels are the accepted mesh compression targets.
var CompressionLevels = []string{"Off", "Low", "Medium", "High"}

// NormalMapType is the texture_type value of normal maps.
const NormalMapType = "normal"

func rendererTextures() ssar.Scope {
	return ssar.Scope{
		Name:  "scene textures",
		From:  []string{KindMeshRenderer, KindSkinnedMeshRenderer},
		Via:   []string{AttrMaterials, AttrTextures},
		Kinds: []string{KindTexture},
	}
}

func sceneModels() ssar.Scope {
	return ssar.Scope{
		Name:  "scene models",
		From:  []string{KindMeshFilter, KindSkinnedMeshRenderer},
		Via:   []string{AttrMesh},
		Kinds: []string{KindModel},
	}
}

// TextureMaxSize caps the max import size of every texture used by a scene
// renderer. With includeEqual the predicate also matches textures already at
// target; they are reported but never rewritten.
func TextureMaxSize(target int, includeEqual bool) (ssar.Plan, error) {
	if !slices.Contains(TextureSizes, target) {
		return ssar.Plan{}, fmt.Errorf("tools: texture size %d must be one of %v", target, TextureSizes)
	}
	predicate := ssar.GreaterThan()
	if includeEqual {
		predicate = ssar.AtLeast()
	}
	return ssar.Plan{
		Name:      NameTextureMaxSize,
		Scope:     rendererTextures(),
		Attribute: AttrMaxTextureSize,
		Target:    target,
		Identity:  ssar.IdentityDurable,
		Predicate: predicate,
	}, nil
}

// NormalMapMaxSize caps normal maps only. Smaller maps are never upscaled.
func NormalMapMaxSize(target int) (ssar.Plan, error) {
	if !slices.Contains(TextureSizes, target) {
		return ssar.Plan{}, fmt.Errorf("tools: texture size %d must be one of %v", target, TextureSizes)
	}
	isNormal := ssar.PredicateFunc(func(_ context.Context, in ssar.PredicateInput) (bool, error) {
		return in.Inputs[AttrTextureType] == NormalMapType, nil
	})
	return ssar.Plan{
		Name:      NameNormalMapMaxSize,
		Scope:     rendererTextures(),
		Attribute: AttrMaxTextureSize,
		Target:    target,
		Identity:  ssar.IdentityDurable,
		Requires:  []string{AttrTextureType},
		Predicate: ssar.All(isNormal, ssar.GreaterThan()),
	}, nil
}

// NormalMapPlatformSizes lowers every per platform max size override of a
// normal map that sits above target. Overrides at or below target are kept.
func NormalMapPlatformSizes(target int) (ssar.Plan, error) {
	if !slices.Contains(TextureSizes, target) {
		return ssar.Plan{}, fmt.Errorf("tools: texture size %d must be one of %v", target, TextureSizes)
	}
	isNormal := ssar.PredicateFunc(func(_ context.Context, in ssar.PredicateInput) (bool, error) {
		return in.Inputs[AttrTextureType] == NormalMapType, nil
	})
	return ssar.Plan{
		Name:      NameNormalMapPlatform,
		Scope:     rendererTextures(),
		Attribute: AttrPlatformMaxSizes,
		Target:    target,
		Identity:  ssar.IdentityDurable,
		Requires:  []string{AttrTextureType},
		Propose:   proposePlatformSizes(target),
		Predicate: ssar.All(isNormal, ssar.PredicateFunc(func(_ context.Context, in ssar.PredicateInput) (bool, error) {
			return overridesAbove(in.Current, target), nil
		})),
	}, nil
}

func proposePlatformSizes(target int) ssar.ProposeFunc {
	return func(_ context.Context, in ssar.ProposeInput) (any, error) {
		overrides, ok := in.Current.(map[string]any)
		if !ok || len(overrides) == 0 {
			return nil, ssar.ErrNotApplicable
		}
		out := make(map[string]any, len(overrides))
		for platform, size := range overrides {
			if cmp, ok := ssar.CompareNumbers(size, target); ok && cmp > 0 {
				out[platform] = int64(target)
				continue
			}
			out[platform] = ssar.NormalizeValue(size)
		}
		return out, nil
	}
}

func overridesAbove(current any, target int) bool {
	overrides, _ := current.(map[string]any)
	for _, size := range overrides {
		if cmp, ok := ssar.CompareNumbers(size, target); ok && cmp > 0 {
			return true
		}
	}
	return false
}

// MeshCompression sets the import compression of every model referenced by
// the scene.
func MeshCompression(level string) (ssar.Plan, error) {
	if !slices.Contains(CompressionLevels, level) {
		return ssar.Plan{}, fmt.Errorf("tools: mesh compression %q must be one of %v", level, CompressionLevels)
	}
	return ssar.Plan{
		Name:      NameMeshCompression,
		Scope:     sceneModels(),
		Attribute: AttrMeshCompression,
		Target:    level,
		Identity:  ssar.IdentityDurable,
	}, nil
}

// SecondaryUV turns on lightmap UV generation for every scene model.
func SecondaryUV() ssar.Plan {
	return ssar.Plan{
		Name:      NameSecondaryUV,
		Scope:     sceneModels(),
		Attribute: AttrSecondaryUV,
		Target:    true,
		Identity:  ssar.IdentityDurable,
	}
}

// LightmapScale sets the lightmap scale of every live mesh renderer. The
// change is session scoped and reverted from the in-memory baseline.
func LightmapScale(scale float64) (ssar.Plan, error) {
	if scale <= 0 {
		return ssar.Plan{}, fmt.Errorf("tools: lightmap scale %v must be positive", scale)
	}
	return ssar.Plan{
		Name:      NameLightmapScale,
		Scope:     ssar.Scope{Name: "scene mesh renderers", Kinds: []string{KindMeshRenderer}},
		Attribute: AttrLightmapScale,
		Target:    scale,
		Identity:  ssar.IdentityVolatile,
	}, nil
}
