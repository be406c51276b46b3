package config

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestNewStackOrdersAndValidates(t *testing.T) {
	stack, err := NewStack(
		Layer{Source: Source{Name: "defaults", Priority: PriorityDefaults}},
		Layer{Source: Source{Name: "flags", Priority: PriorityFlags}},
		Layer{Source: Source{Name: "file", Priority: PriorityFile}},
	)
	if err != nil {
		t.Fatalf("stack: %v", err)
	}
	sources := stack.Sources()
	if len(sources) != 3 || sources[0].Name != "flags" || sources[2].Name != "defaults" {
		t.Fatalf("expected strongest first, got %+v", sources)
	}

	cases := []struct {
		name   string
		layers []Layer
		want   error
	}{
		{"missing name", []Layer{{Source: Source{Priority: 1}}}, ErrSourceNameRequired},
		{"duplicate", []Layer{{Source: Source{Name: "a", Priority: 1}}, {Source: Source{Name: "a", Priority: 2}}}, ErrDuplicateSource},
		{"same priority", []Layer{{Source: Source{Name: "a", Priority: 1}}, {Source: Source{Name: "b", Priority: 1}}}, ErrPriorityOrder},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewStack(tc.layers...); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestParseStackTracesProvenance(t *testing.T) {
	doc := `
log:
  level: debug
tools:
  texture-max-size:
    target: 512
`
	cfg, stack, err := ParseStack("ssar.yaml", []byte(doc), map[string]any{
		"log": map[string]any{"level": "warn"},
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Log.Level != "warn" {
		t.Fatalf("expected flag override, got %q", cfg.Log.Level)
	}

	trace := stack.Trace("log.level")
	if len(trace.Layers) != 3 {
		t.Fatalf("expected three sources, got %+v", trace.Layers)
	}
	winner, ok := trace.Winner()
	if !ok || winner.Source.Name != "flags" || winner.Value != "warn" {
		t.Fatalf("unexpected winner %+v", winner)
	}
	if !trace.Layers[1].Found || trace.Layers[1].Value != "debug" || trace.Layers[1].Source.Label != "ssar.yaml" {
		t.Fatalf("expected file layer to hold debug, got %+v", trace.Layers[1])
	}

	target := stack.Trace("tools.texture-max-size.target")
	if winner, _ := target.Winner(); winner.Source.Name != "file" {
		t.Fatalf("expected file to win tool target, got %+v", winner)
	}
	if winner, _ := stack.Trace("backup.driver").Winner(); winner.Source.Name != "defaults" || winner.Value != DriverBadger {
		t.Fatalf("expected default backup driver, got %+v", winner)
	}
	if _, ok := stack.Trace("nope.missing").Winner(); ok {
		t.Fatalf("expected unknown path to be unset")
	}

	effective := stack.Effective()
	log := effective["log"].(map[string]any)
	if log["level"] != "warn" || log["format"] != "text" {
		t.Fatalf("unexpected effective log section %+v", log)
	}
}

func TestParseStackSkipsEmptyLayers(t *testing.T) {
	_, stack, err := ParseStack("", nil, nil)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sources := stack.Sources(); len(sources) != 1 || sources[0].Name != "defaults" {
		t.Fatalf("expected defaults only, got %+v", sources)
	}
}

func TestParseStackRejectsUnknownOverride(t *testing.T) {
	if _, _, err := ParseStack("", nil, map[string]any{"bogus": true}); err == nil {
		t.Fatalf("expected unknown override key to fail")
	}
}

func TestTraceToJSON(t *testing.T) {
	trace := Trace{Path: "log.level", Layers: []Provenance{{Source: Source{Name: "file", Priority: PriorityFile}, Value: "debug", Found: true}}}
	data, err := trace.ToJSON()
	if err != nil {
		t.Fatalf("json: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["path"] != "log.level" || len(decoded["layers"].([]any)) != 1 {
		t.Fatalf("unexpected payload %s", data)
	}
}
