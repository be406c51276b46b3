package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/goliatone/go-ssar/layering"
)

// Recommended priorities for the built-in sources. Higher numbers win.
const (
	PriorityDefaults = 100
	PriorityFile     = 200
	PriorityFlags    = 300
)

// Source names a settings origin and its precedence.
type Source struct {
	Name     string `json:"name"`
	Label    string `json:"label,omitempty"`
	Priority int    `json:"priority"`
}

// Layer pairs a source with the raw settings it provided.
type Layer struct {
	Source Source
	Values map[string]any
}

var (
	// ErrSourceNameRequired indicates a layer without a source name.
	ErrSourceNameRequired = errors.New("config: source name must be provided")
	// ErrDuplicateSource indicates two layers share a source name.
	ErrDuplicateSource = errors.New("config: source names must be unique")
	// ErrPriorityOrder indicates two layers share a priority.
	ErrPriorityOrder = errors.New("config: source priorities must be strictly ordered")
)

// Stack holds the layers that produced a Config, strongest first.
type Stack struct {
	layers []Layer
}

// NewStack validates the layers and orders them strongest first. Values are
// deep copied.
func NewStack(layers ...Layer) (*Stack, error) {
	seen := make(map[string]struct{}, len(layers))
	copied := make([]Layer, len(layers))
	for i, layer := range layers {
		if layer.Source.Name == "" {
			return nil, ErrSourceNameRequired
		}
		if _, ok := seen[layer.Source.Name]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, layer.Source.Name)
		}
		seen[layer.Source.Name] = struct{}{}
		copied[i] = Layer{Source: layer.Source, Values: layering.Clone(layer.Values)}
	}

	sort.Slice(copied, func(i, j int) bool {
		if copied[i].Source.Priority == copied[j].Source.Priority {
			return copied[i].Source.Name < copied[j].Source.Name
		}
		return copied[i].Source.Priority > copied[j].Source.Priority
	})
	for i := 1; i < len(copied); i++ {
		if copied[i-1].Source.Priority <= copied[i].Source.Priority {
			return nil, fmt.Errorf("%w: %d", ErrPriorityOrder, copied[i].Source.Priority)
		}
	}
	return &Stack{layers: copied}, nil
}

// Sources returns the layer sources, strongest first.
func (s *Stack) Sources() []Source {
	if s == nil {
		return nil
	}
	out := make([]Source, len(s.layers))
	for i, layer := range s.layers {
		out[i] = layer.Source
	}
	return out
}

// Effective merges the raw layers, strongest first.
func (s *Stack) Effective() map[string]any {
	if s == nil || len(s.layers) == 0 {
		return map[string]any{}
	}
	values := make([]map[string]any, len(s.layers))
	for i, layer := range s.layers {
		values[i] = layer.Values
	}
	return layering.MergeLayers(values...)
}

// Trace reports, for a dotted path such as "tools.texture-max-size.target",
// which sources set it and with what value. The first found entry is the
// effective one.
func (s *Stack) Trace(path string) Trace {
	trace := Trace{Path: path}
	if s == nil {
		return trace
	}
	segments := splitPath(path)
	for _, layer := range s.layers {
		value, found := lookup(layer.Values, segments)
		p := Provenance{Source: layer.Source, Found: found}
		if found {
			p.Value = layering.Clone(value)
		}
		trace.Layers = append(trace.Layers, p)
	}
	return trace
}

// Trace is the provenance of one settings path across sources.
type Trace struct {
	Path   string       `json:"path"`
	Layers []Provenance `json:"layers"`
}

// Provenance details what one source holds at a traced path.
type Provenance struct {
	Source Source `json:"source"`
	Value  any    `json:"value,omitempty"`
	Found  bool   `json:"found"`
}

// Winner returns the strongest source that set the path.
func (t Trace) Winner() (Provenance, bool) {
	for _, p := range t.Layers {
		if p.Found {
			return p, true
		}
	}
	return Provenance{}, false
}

// ToJSON serialises the trace.
func (t Trace) ToJSON() ([]byte, error) {
	type alias Trace
	return json.Marshal(alias(t))
}

func splitPath(path string) []string {
	var out []string
	for _, segment := range strings.Split(path, ".") {
		if segment = strings.TrimSpace(segment); segment != "" {
			out = append(out, segment)
		}
	}
	return out
}

func lookup(values map[string]any, segments []string) (any, bool) {
	if len(segments) == 0 {
		return nil, false
	}
	var current any = values
	for _, segment := range segments {
		m, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = m[segment]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// toMap turns a typed settings value into its raw map form.
func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
