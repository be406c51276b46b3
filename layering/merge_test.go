package layering

import (
	"reflect"
	"testing"
	"time"
)

type logSettings struct {
	Level  string
	Format string
}

type settings struct {
	Engine     string
	Target     int
	SkipPacked *bool
	Log        logSettings
	Sizes      []int
	Tools      map[string]toolSettings
	Attributes map[string]any
}

type toolSettings struct {
	Target       int
	IncludeEqual *bool
	Filter       string
}

func boolPtr(v bool) *bool { return &v }

func TestMergeLayersFallsBackForZeroFields(t *testing.T) {
	defaults := settings{
		Engine:     "expr",
		Target:     1024,
		SkipPacked: boolPtr(true),
		Log:        logSettings{Level: "info", Format: "text"},
		Sizes:      []int{512, 1024, 2048, 4096},
		Tools: map[string]toolSettings{
			"texture-max-size": {Target: 1024, IncludeEqual: boolPtr(false)},
		},
	}
	file := settings{
		Engine:     "cel",
		SkipPacked: boolPtr(false),
		Log:        logSettings{Level: "debug"},
		Tools: map[string]toolSettings{
			"texture-max-size": {Filter: "kind == 'Texture'"},
			"normal-map-size":  {Target: 512},
		},
	}

	got := MergeLayers(file, defaults)

	if got.Engine != "cel" || got.Target != 1024 {
		t.Fatalf("unexpected scalars: %+v", got)
	}
	if got.SkipPacked == nil || *got.SkipPacked {
		t.Fatalf("explicit false pointer must win, got %v", got.SkipPacked)
	}
	if got.Log != (logSettings{Level: "debug", Format: "text"}) {
		t.Fatalf("unexpected log settings: %+v", got.Log)
	}
	if !reflect.DeepEqual(got.Sizes, defaults.Sizes) {
		t.Fatalf("nil slice should fall back, got %v", got.Sizes)
	}
	tex := got.Tools["texture-max-size"]
	if tex.Target != 1024 || tex.Filter != "kind == 'Texture'" || tex.IncludeEqual == nil || *tex.IncludeEqual {
		t.Fatalf("unexpected merged tool settings: %+v", tex)
	}
	if got.Tools["normal-map-size"].Target != 512 {
		t.Fatalf("tool only present in strong layer lost: %+v", got.Tools)
	}
}

func TestMergeLayersDoesNotAliasInputs(t *testing.T) {
	defaults := settings{Sizes: []int{512}, Tools: map[string]toolSettings{"a": {Target: 1}}}
	got := MergeLayers(settings{}, defaults)
	got.Sizes[0] = 9
	got.Tools["b"] = toolSettings{}
	if defaults.Sizes[0] != 512 || len(defaults.Tools) != 1 {
		t.Fatalf("merge result shares state with input: %+v", defaults)
	}
}

func TestMergeLayersZeroInput(t *testing.T) {
	type sample struct {
		Value int
	}
	var zero sample
	if got := MergeLayers[sample](); got != zero {
		t.Fatalf("expected MergeLayers() to return zero value, got %+v", got)
	}
}

func TestCloneDeepCopiesAttributeValues(t *testing.T) {
	original := map[string]any{
		"materials": []any{"m1", "m2"},
		"nested":    map[string]any{"size": int64(2048)},
	}
	cloned := Clone(original)
	cloned["materials"].([]any)[0] = "changed"
	cloned["nested"].(map[string]any)["size"] = int64(1)

	if original["materials"].([]any)[0] != "m1" {
		t.Fatalf("slice inside map was aliased")
	}
	if original["nested"].(map[string]any)["size"] != int64(2048) {
		t.Fatalf("nested map was aliased")
	}
}

func TestCloneKeepsOpaqueStructs(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	if got := Clone(now); !got.Equal(now) {
		t.Fatalf("time value lost in clone: %v", got)
	}
	var nilValue any
	if got := Clone(nilValue); got != nil {
		t.Fatalf("expected nil clone, got %v", got)
	}
}

func TestMergeLayersMergesNestedRawMaps(t *testing.T) {
	strong := map[string]any{"log": map[string]any{"level": "debug"}}
	weak := map[string]any{
		"log":    map[string]any{"level": "info", "format": "text"},
		"backup": map[string]any{"driver": "badger"},
	}

	merged := MergeLayers(strong, weak)
	log := merged["log"].(map[string]any)
	if log["level"] != "debug" || log["format"] != "text" {
		t.Fatalf("expected nested merge, got %+v", log)
	}
	if merged["backup"].(map[string]any)["driver"] != "badger" {
		t.Fatalf("expected weak-only key kept, got %+v", merged["backup"])
	}
	if weak["log"].(map[string]any)["level"] != "info" {
		t.Fatalf("weak layer was mutated")
	}
}
