package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	ssar "github.com/goliatone/go-ssar"
	"github.com/goliatone/go-ssar/pkg/config"
	"github.com/goliatone/go-ssar/pkg/memhost"
)

func durableKey(t *testing.T, h *memhost.Host, ref ssar.ObjectRef) ssar.Key {
	t.Helper()
	key, ok := h.DurableKey(ref)
	if !ok {
		t.Fatalf("%s has no durable key", ref.Path)
	}
	return key
}

// textureScene builds five renderers, each using one material with two
// 2048 textures.
func textureScene(t *testing.T) *memhost.Host {
	t.Helper()
	h := memhost.New()
	for i := 0; i < 5; i++ {
		var textures []any
		for j := 0; j < 2; j++ {
			tex := h.Add(memhost.Object{
				Kind:       KindTexture,
				Path:       fmt.Sprintf("Assets/Tex/t%d_%d.png", i, j),
				Persistent: true,
				Attributes: map[string]any{AttrMaxTextureSize: 2048, AttrTextureType: "default"},
			})
			textures = append(textures, durableKey(t, h, tex))
		}
		mat := h.Add(memhost.Object{
			Kind:       KindMaterial,
			Path:       fmt.Sprintf("Assets/Mat/m%d.mat", i),
			Persistent: true,
			Attributes: map[string]any{AttrTextures: textures, AttrWorkflow: 0},
		})
		h.Add(memhost.Object{
			Kind:       KindMeshRenderer,
			Path:       fmt.Sprintf("Scene/r%d", i),
			Attributes: map[string]any{AttrMaterials: []any{durableKey(t, h, mat)}, AttrLightmapScale: 1.0},
		})
	}
	return h
}

func newEngine(t *testing.T, h *memhost.Host) *ssar.Engine {
	t.Helper()
	engine, err := ssar.New(h)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return engine
}

func TestTextureMaxSizeScenario(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	engine := newEngine(t, h)
	plan, err := TextureMaxSize(1024, false)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Candidates) != 10 || scan.ChangeCount() != 10 {
		t.Fatalf("expected 10 candidates all changing, got %d/%d", scan.ChangeCount(), len(scan.Candidates))
	}

	report, err := engine.Apply(ctx, plan, scan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Changed != 10 || report.Failed != 0 {
		t.Fatalf("unexpected apply report %+v", report)
	}
	if v, _ := h.Value("Assets/Tex/t3_1.png", AttrMaxTextureSize); !ssar.ValuesEqual(v, 1024) {
		t.Fatalf("expected 1024 after apply, got %v", v)
	}
	backups, err := engine.Backups(ctx, plan)
	if err != nil || len(backups) != 10 {
		t.Fatalf("expected 10 backups, got %d (%v)", len(backups), err)
	}

	rescan, _ := engine.Scan(ctx, plan)
	if rescan.ChangeCount() != 0 {
		t.Fatalf("expected nothing left to change, got %d", rescan.ChangeCount())
	}

	restored, err := engine.Restore(ctx, plan)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.Restored != 10 || restored.Missing != 0 {
		t.Fatalf("unexpected restore report %+v", restored)
	}
	for i := 0; i < 5; i++ {
		for j := 0; j < 2; j++ {
			path := fmt.Sprintf("Assets/Tex/t%d_%d.png", i, j)
			if v, _ := h.Value(path, AttrMaxTextureSize); !ssar.ValuesEqual(v, 2048) {
				t.Fatalf("%s: expected 2048 after restore, got %v", path, v)
			}
		}
	}
}

func TestTextureMaxSizeIncludeEqualReportsButSkips(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Assets/Tex/t0_0.png", AttrMaxTextureSize, 1024)
	h.Set("Assets/Tex/t0_1.png", AttrMaxTextureSize, 512)
	engine := newEngine(t, h)

	plan, _ := TextureMaxSize(1024, true)
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scan.ChangeCount() != 8 {
		t.Fatalf("expected 8 changes, got %d", scan.ChangeCount())
	}
	for _, c := range scan.Candidates {
		if c.Path == "Assets/Tex/t0_1.png" && c.WillChange {
			t.Fatalf("smaller texture must never be upscaled")
		}
	}
}

func TestTextureMaxSizeRejectsOddSize(t *testing.T) {
	if _, err := TextureMaxSize(1000, false); err == nil {
		t.Fatalf("expected invalid size error")
	}
}

func TestNormalMapMaxSizeOnlyTouchesNormalMaps(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Assets/Tex/t1_0.png", AttrTextureType, NormalMapType)
	h.Set("Assets/Tex/t2_0.png", AttrTextureType, NormalMapType)
	h.Set("Assets/Tex/t2_0.png", AttrMaxTextureSize, 512)
	engine := newEngine(t, h)

	plan, _ := NormalMapMaxSize(1024)
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	changes := scan.Changes()
	if len(changes) != 1 || changes[0].Path != "Assets/Tex/t1_0.png" {
		t.Fatalf("expected only the large normal map, got %+v", changes)
	}
}

func TestNormalMapPlatformSizes(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Assets/Tex/t1_0.png", AttrTextureType, NormalMapType)
	h.Set("Assets/Tex/t1_0.png", AttrPlatformMaxSizes, map[string]any{"Android": 2048, "iOS": 512})
	h.Set("Assets/Tex/t2_0.png", AttrTextureType, NormalMapType)
	h.Set("Assets/Tex/t2_0.png", AttrPlatformMaxSizes, map[string]any{"Android": 1024})
	h.Set("Assets/Tex/t3_0.png", AttrPlatformMaxSizes, map[string]any{"Android": 4096})
	engine := newEngine(t, h)

	plan, err := NormalMapPlatformSizes(1024)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Candidates) != 3 {
		t.Fatalf("expected the three textures with overrides, got %d", len(scan.Candidates))
	}
	changes := scan.Changes()
	if len(changes) != 1 || changes[0].Path != "Assets/Tex/t1_0.png" {
		t.Fatalf("expected only t1_0 to change, got %+v", changes)
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	overrides := func(path string) map[string]any {
		v, _ := h.Value(path, AttrPlatformMaxSizes)
		m, ok := v.(map[string]any)
		if !ok {
			t.Fatalf("%s: expected override map, got %T", path, v)
		}
		return m
	}
	got := overrides("Assets/Tex/t1_0.png")
	if !ssar.ValuesEqual(got["Android"], 1024) || !ssar.ValuesEqual(got["iOS"], 512) {
		t.Fatalf("expected Android lowered and iOS kept, got %v", got)
	}
	if !ssar.ValuesEqual(overrides("Assets/Tex/t3_0.png")["Android"], 4096) {
		t.Fatalf("non normal map must keep its override")
	}
	if v, _ := h.Value("Assets/Tex/t1_0.png", AttrMaxTextureSize); !ssar.ValuesEqual(v, 2048) {
		t.Fatalf("default max size must be untouched, got %v", v)
	}

	if _, err := engine.Restore(ctx, plan); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := overrides("Assets/Tex/t1_0.png"); !ssar.ValuesEqual(got["Android"], 2048) {
		t.Fatalf("expected Android 2048 after restore, got %v", got)
	}
	if _, err := NormalMapPlatformSizes(300); err == nil {
		t.Fatalf("expected invalid size to fail")
	}
}

func TestLightmapScaleSkipsPrefabRenderers(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Add(memhost.Object{
		Kind:       KindMeshRenderer,
		Path:       "Assets/Prefabs/crate.prefab/Renderer",
		Persistent: true,
		Attributes: map[string]any{AttrLightmapScale: 1.0},
	})
	engine := newEngine(t, h)

	plan, _ := LightmapScale(0.5)
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, c := range scan.Candidates {
		if c.Path == "Assets/Prefabs/crate.prefab/Renderer" {
			t.Fatalf("prefab renderer must not be a candidate")
		}
	}
	if scan.ChangeCount() != 5 {
		t.Fatalf("expected the 5 scene renderers, got %d", scan.ChangeCount())
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, _ := h.Value("Assets/Prefabs/crate.prefab/Renderer", AttrLightmapScale); !ssar.ValuesEqual(v, 1.0) {
		t.Fatalf("prefab renderer was written: %v", v)
	}
}

func TestLightmapScaleSessionRevert(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Scene/r4", AttrLightmapScale, 0.5)
	engine := newEngine(t, h)

	plan, _ := LightmapScale(0.5)
	scan, _ := engine.Scan(ctx, plan)
	if scan.ChangeCount() != 4 {
		t.Fatalf("expected 4 changes, got %d", scan.ChangeCount())
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if _, err := engine.Revert(ctx, plan); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if v, _ := h.Value("Scene/r0", AttrLightmapScale); !ssar.ValuesEqual(v, 1.0) {
		t.Fatalf("expected 1.0 after revert, got %v", v)
	}
	if v, _ := h.Value("Scene/r4", AttrLightmapScale); !ssar.ValuesEqual(v, 0.5) {
		t.Fatalf("expected untouched 0.5, got %v", v)
	}
	if _, err := LightmapScale(0); err == nil {
		t.Fatalf("expected non-positive scale to fail")
	}
}

// lodScene builds two groups: g0 with three levels and g1 with one.
func lodScene(t *testing.T) *memhost.Host {
	t.Helper()
	h := memhost.New()
	groups := []struct {
		path   string
		levels int
	}{{"Scene/g0", 3}, {"Scene/g1", 1}}
	for _, g := range groups {
		group := h.Add(memhost.Object{
			Kind:       KindLODGroup,
			Path:       g.path,
			Attributes: map[string]any{AttrEnabled: true, AttrLODCount: g.levels},
		})
		groupKey, _ := h.VolatileKey(group)
		for i := 0; i < g.levels; i++ {
			h.Add(memhost.Object{
				Kind:     KindMeshRenderer,
				Path:     fmt.Sprintf("%s/lod%d", g.path, i),
				Inactive: i == 2,
				Attributes: map[string]any{
					AttrEnabled:   true,
					AttrLODIndex:  i,
					AttrLODGroup:  groupKey,
					AttrMaterials: []any{},
				},
			})
		}
	}
	h.Add(memhost.Object{Kind: KindMeshRenderer, Path: "Scene/plain", Attributes: map[string]any{AttrEnabled: true}})
	return h
}

func enabled(t *testing.T, h *memhost.Host, path string) bool {
	t.Helper()
	v, ok := h.Value(path, AttrEnabled)
	if !ok {
		t.Fatalf("%s has no enabled attribute", path)
	}
	return v.(bool)
}

func TestLODOverrideScenario(t *testing.T) {
	ctx := context.Background()
	h := lodScene(t)
	engine := newEngine(t, h)
	plan, err := LODOverride(1, LODDisableAll)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}

	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scan.NotApplicable != 1 {
		t.Fatalf("expected the plain renderer to be not applicable, got %d", scan.NotApplicable)
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}

	want := map[string]bool{
		"Scene/g0":      false,
		"Scene/g0/lod0": false,
		"Scene/g0/lod1": true,
		"Scene/g0/lod2": false,
		"Scene/g1":      false,
		"Scene/g1/lod0": false,
		"Scene/plain":   true,
	}
	for path, expect := range want {
		if got := enabled(t, h, path); got != expect {
			t.Fatalf("%s: expected enabled=%v after apply, got %v", path, expect, got)
		}
	}

	for round := 0; round < 2; round++ {
		report, err := engine.Revert(ctx, plan)
		if err != nil {
			t.Fatalf("revert %d: %v", round, err)
		}
		if round == 1 && report.Restored != 0 {
			t.Fatalf("second revert should find nothing to write, got %+v", report)
		}
		for path := range want {
			if !enabled(t, h, path) {
				t.Fatalf("revert %d: %s should be enabled again", round, path)
			}
		}
	}
	if engine.State(plan) != ssar.StateBaselineCaptured {
		t.Fatalf("baseline must survive revert")
	}
}

func TestLODOverrideSkipsPrefabs(t *testing.T) {
	ctx := context.Background()
	h := lodScene(t)
	group := h.Add(memhost.Object{
		Kind:       KindLODGroup,
		Path:       "Assets/Prefabs/tree.prefab",
		Persistent: true,
		Attributes: map[string]any{AttrEnabled: true, AttrLODCount: 2},
	})
	groupKey, _ := h.DurableKey(group)
	for i := 0; i < 2; i++ {
		h.Add(memhost.Object{
			Kind:       KindMeshRenderer,
			Path:       fmt.Sprintf("Assets/Prefabs/tree.prefab/lod%d", i),
			Persistent: true,
			Attributes: map[string]any{AttrEnabled: true, AttrLODIndex: i, AttrLODGroup: groupKey},
		})
	}
	engine := newEngine(t, h)

	for _, plan := range []ssar.Plan{mustPlan(LODOverride(1, LODDisableAll)), LODGroupsEnabled(false)} {
		scan, err := engine.Scan(ctx, plan)
		if err != nil {
			t.Fatalf("%s scan: %v", plan.Name, err)
		}
		for _, c := range scan.Candidates {
			if strings.HasPrefix(c.Path, "Assets/Prefabs/") {
				t.Fatalf("%s: prefab object %s must not be a candidate", plan.Name, c.Path)
			}
		}
		if _, err := engine.Apply(ctx, plan, scan); err != nil {
			t.Fatalf("%s apply: %v", plan.Name, err)
		}
	}
	for _, path := range []string{"Assets/Prefabs/tree.prefab", "Assets/Prefabs/tree.prefab/lod0", "Assets/Prefabs/tree.prefab/lod1"} {
		if !enabled(t, h, path) {
			t.Fatalf("%s was written", path)
		}
	}
}

func TestLODGroupsEnabled(t *testing.T) {
	ctx := context.Background()
	h := lodScene(t)
	engine := newEngine(t, h)

	plan := LODGroupsEnabled(false)
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if len(scan.Candidates) != 2 || scan.ChangeCount() != 2 {
		t.Fatalf("expected both groups and nothing else, got %d/%d", scan.ChangeCount(), len(scan.Candidates))
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if enabled(t, h, "Scene/g0") || enabled(t, h, "Scene/g1") {
		t.Fatalf("groups should be disabled")
	}
	if !enabled(t, h, "Scene/g0/lod0") || !enabled(t, h, "Scene/g0/lod2") {
		t.Fatalf("renderers must keep their state")
	}
	if _, err := engine.Revert(ctx, plan); err != nil {
		t.Fatalf("revert: %v", err)
	}
	if !enabled(t, h, "Scene/g0") || !enabled(t, h, "Scene/g1") {
		t.Fatalf("groups should be enabled after revert")
	}
}

func mustPlan(plan ssar.Plan, err error) ssar.Plan {
	if err != nil {
		panic(err)
	}
	return plan
}

func TestLODOverrideKeepLast(t *testing.T) {
	ctx := context.Background()
	h := lodScene(t)
	engine := newEngine(t, h)
	plan, _ := LODOverride(2, LODKeepLast)
	scan, _ := engine.Scan(ctx, plan)
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !enabled(t, h, "Scene/g1/lod0") {
		t.Fatalf("keep_last should leave the only level of g1 visible")
	}
	if !enabled(t, h, "Scene/g0/lod2") || enabled(t, h, "Scene/g0/lod0") {
		t.Fatalf("g0 should show only lod2")
	}
}

func TestPackWorkflow(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Assets/Mat/m0.mat", AttrWorkflow, 1)
	h.Set("Assets/Mat/m1.mat", AttrKeywords, []any{"_WORKFLOW_PACKED_ON"})
	h.Set("Assets/Mat/m2.mat", AttrPackedMap, "")
	engine := newEngine(t, h)

	baked := 0
	baker := BakerFunc(func(_ context.Context, _ ssar.Host, material ssar.ObjectRef) (any, error) {
		baked++
		return material.Path + "_Packed.png", nil
	})
	plan, err := PackWorkflow(DefaultWorkflowPolicy(), baker)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	scan, _ := engine.Scan(ctx, plan)
	if scan.ChangeCount() != 3 {
		t.Fatalf("expected m2, m3 and m4 to change, got %d", scan.ChangeCount())
	}
	report, err := engine.Apply(ctx, plan, scan)
	if err != nil || report.Changed != 3 || baked != 3 {
		t.Fatalf("unexpected apply: report=%+v baked=%d err=%v", report, baked, err)
	}
	if v, _ := h.Value("Assets/Mat/m2.mat", AttrPackedMap); v != "Assets/Mat/m2.mat_Packed.png" {
		t.Fatalf("expected packed map assigned, got %v", v)
	}

	noBaker, _ := PackWorkflow(DefaultWorkflowPolicy(), nil)
	if _, err := engine.Restore(ctx, plan); err != nil {
		t.Fatalf("restore: %v", err)
	}
	h.Set("Assets/Mat/m3.mat", AttrWorkflow, 0)
	scan, _ = engine.Scan(ctx, noBaker)
	report, err = engine.Apply(ctx, noBaker, scan)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if report.Failed == 0 || !errors.Is(report.Failures[0], ErrNoBaker) {
		t.Fatalf("expected ErrNoBaker failures, got %+v", report)
	}
}

func TestPackWorkflowSkipsUnknownWorkflowValues(t *testing.T) {
	ctx := context.Background()
	h := textureScene(t)
	h.Set("Assets/Mat/m0.mat", AttrWorkflow, 2)
	engine := newEngine(t, h)
	baker := BakerFunc(func(context.Context, ssar.Host, ssar.ObjectRef) (any, error) { return "packed.png", nil })

	plan, _ := PackWorkflow(DefaultWorkflowPolicy(), baker)
	scan, err := engine.Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	for _, c := range scan.Candidates {
		if c.Path == "Assets/Mat/m0.mat" && c.WillChange {
			t.Fatalf("material on workflow 2 must be skipped")
		}
	}
	if scan.ChangeCount() != 4 {
		t.Fatalf("expected 4 separate materials to change, got %d", scan.ChangeCount())
	}
	if _, err := engine.Apply(ctx, plan, scan); err != nil {
		t.Fatalf("apply: %v", err)
	}
	if v, _ := h.Value("Assets/Mat/m0.mat", AttrWorkflow); !ssar.ValuesEqual(v, 2) {
		t.Fatalf("expected workflow 2 untouched, got %v", v)
	}

	policy := DefaultWorkflowPolicy()
	policy.SkipPacked = false
	h.Set("Assets/Mat/m1.mat", AttrKeywords, []any{policy.PackedKeyword})
	all, _ := PackWorkflow(policy, baker)
	scan, _ = engine.Scan(ctx, all)
	if scan.ChangeCount() != 1 {
		t.Fatalf("without skipping only m0 is left to change, got %d", scan.ChangeCount())
	}
}

func TestRegistryBuildsConfiguredTools(t *testing.T) {
	ctx := context.Background()
	cfg, err := config.Parse("inline", []byte(`
tools:
  texture-max-size:
    target: 512
    filter: 'path != "Assets/Tex/t0_0.png"'
`))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	registry, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if len(registry.Names()) != 9 {
		t.Fatalf("expected 9 tools, got %v", registry.Names())
	}
	for _, name := range registry.Names() {
		if _, err := registry.Plan(name); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
	}
	if _, err := registry.Plan("nope"); err == nil {
		t.Fatalf("expected unknown tool error")
	}

	plan, _ := registry.Plan(NameTextureMaxSize)
	h := textureScene(t)
	scan, err := newEngine(t, h).Scan(ctx, plan)
	if err != nil {
		t.Fatalf("scan: %v", err)
	}
	if scan.ChangeCount() != 9 {
		t.Fatalf("expected filter to exclude one texture, got %d changes", scan.ChangeCount())
	}
	for _, c := range scan.Changes() {
		if !ssar.ValuesEqual(c.Proposed, 512) {
			t.Fatalf("expected 512 proposals, got %v", c.Proposed)
		}
	}
}

func TestRegistryRejectsBadFilter(t *testing.T) {
	cfg := config.Defaults()
	cfg.Tools[NameSecondaryUV] = config.ToolConfig{Filter: "path ==="}
	registry, err := NewRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if _, err := registry.Plan(NameSecondaryUV); err == nil {
		t.Fatalf("expected filter compile error")
	}
}
