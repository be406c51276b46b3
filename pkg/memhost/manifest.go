package memhost

import (
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	ssar "github.com/goliatone/go-ssar"
)

// Manifest is the YAML form of a host: a flat list of objects whose
// references are written as target paths.
type Manifest struct {
	Objects []ManifestObject `yaml:"objects"`
}

// ManifestObject is one object of a Manifest.
type ManifestObject struct {
	Path       string              `yaml:"path"`
	Kind       string              `yaml:"kind"`
	Name       string              `yaml:"name,omitempty"`
	GUID       string              `yaml:"guid,omitempty"`
	Persistent bool                `yaml:"persistent,omitempty"`
	Inactive   bool                `yaml:"inactive,omitempty"`
	Attributes map[string]any      `yaml:"attributes,omitempty"`
	Refs       map[string][]string `yaml:"refs,omitempty"`
}

// LoadFile reads a YAML manifest from path.
func LoadFile(path string) (*Host, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("memhost: open manifest: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load builds a host from a YAML manifest.
func Load(r io.Reader) (*Host, error) {
	var m Manifest
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil && err != io.EOF {
		return nil, fmt.Errorf("memhost: decode manifest: %w", err)
	}
	return FromManifest(m)
}

// FromManifest builds a host from m. Every ref must name a path declared in
// the same manifest.
func FromManifest(m Manifest) (*Host, error) {
	h := New()
	refs := make(map[string]ssar.ObjectRef, len(m.Objects))
	for _, obj := range m.Objects {
		if obj.Path == "" || obj.Kind == "" {
			return nil, fmt.Errorf("memhost: manifest object needs path and kind: %+v", obj)
		}
		if _, dup := refs[obj.Path]; dup {
			return nil, fmt.Errorf("memhost: duplicate path %q", obj.Path)
		}
		name := obj.Name
		if name == "" {
			name = obj.Path
		}
		refs[obj.Path] = h.Add(Object{
			GUID:       obj.GUID,
			Kind:       obj.Kind,
			Name:       name,
			Path:       obj.Path,
			Persistent: obj.Persistent,
			Inactive:   obj.Inactive,
			Attributes: obj.Attributes,
		})
	}
	for _, obj := range m.Objects {
		for attribute, targets := range obj.Refs {
			keys := make([]any, 0, len(targets))
			for _, target := range targets {
				ref, ok := refs[target]
				if !ok {
					return nil, fmt.Errorf("memhost: %s.%s references unknown path %q", obj.Path, attribute, target)
				}
				key := ref.Key
				if durable, ok := h.DurableKey(ref); ok {
					key = durable
				}
				keys = append(keys, key)
			}
			h.Set(obj.Path, attribute, keys)
		}
	}
	return h, nil
}

// Manifest captures the current state. Reference attributes are written back
// as target paths.
func (h *Host) Manifest() Manifest {
	h.mu.Lock()
	defer h.mu.Unlock()
	paths := make(map[ssar.Key]string, len(h.objects)*2)
	for _, o := range h.objects {
		paths[ssar.VolatileKey(o.id)] = o.Path
		if o.GUID != "" {
			paths[ssar.DurableKey(o.GUID)] = o.Path
		}
	}

	var m Manifest
	for _, id := range h.order {
		o := h.objects[id]
		out := ManifestObject{
			Path:       o.Path,
			Kind:       o.Kind,
			Persistent: o.Persistent,
			Inactive:   o.Inactive,
		}
		if o.Name != o.Path {
			out.Name = o.Name
		}
		if o.GUID != "" && (!o.Persistent || o.GUID != PathGUID(o.Path)) {
			out.GUID = o.GUID
		}
		names := make([]string, 0, len(o.Attributes))
		for name := range o.Attributes {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			value := o.Attributes[name]
			if targets, ok := refPaths(value, paths); ok {
				if out.Refs == nil {
					out.Refs = map[string][]string{}
				}
				out.Refs[name] = targets
				continue
			}
			if out.Attributes == nil {
				out.Attributes = map[string]any{}
			}
			out.Attributes[name] = value
		}
		m.Objects = append(m.Objects, out)
	}
	return m
}

// Save writes the manifest as YAML.
func (h *Host) Save(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(h.Manifest()); err != nil {
		return fmt.Errorf("memhost: encode manifest: %w", err)
	}
	return enc.Close()
}

// SaveFile writes the manifest to path.
func (h *Host) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("memhost: create manifest: %w", err)
	}
	if err := h.Save(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func refPaths(value any, paths map[ssar.Key]string) ([]string, bool) {
	var keys []ssar.Key
	switch typed := value.(type) {
	case ssar.Key:
		keys = []ssar.Key{typed}
	case []ssar.Key:
		keys = typed
	case []any:
		if len(typed) == 0 {
			return nil, false
		}
		for _, item := range typed {
			key, ok := item.(ssar.Key)
			if !ok {
				return nil, false
			}
			keys = append(keys, key)
		}
	default:
		return nil, false
	}
	out := make([]string, 0, len(keys))
	for _, key := range keys {
		if path, ok := paths[key]; ok {
			out = append(out, path)
		}
	}
	return out, true
}
