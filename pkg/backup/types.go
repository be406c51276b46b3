// Package backup persists the original values of durably identified
// attributes so a batch edit can be restored after the process exits.
//
// A Store keeps at most one Entry per (namespace, GUID, attribute). The first
// write wins: PutIfAbsent never replaces an existing entry, so repeated edits
// keep the value that was present before the very first edit. Namespaces
// separate tools that back up the same attribute.
package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"
)

// ErrInvalidRef is returned for an empty namespace, GUID or attribute.
var ErrInvalidRef = errors.New("backup: invalid reference")

// Entry is the durable record of an attribute's original value.
type Entry struct {
	GUID      string    `json:"guid"`
	Attribute string    `json:"attribute"`
	Path      string    `json:"path,omitempty"`
	Original  any       `json:"original"`
	CreatedAt time.Time `json:"created_at"`
}

// Ref addresses one entry.
type Ref struct {
	Namespace string
	GUID      string
	Attribute string
}

// Identifier returns the canonical storage key for the reference. GUID and
// attribute are path escaped, so GUIDs that are asset paths stay unambiguous
// under the namespace prefix.
func (r Ref) Identifier() (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}
	return NamespacePrefix(r.Namespace) + url.PathEscape(r.GUID) + "/" + url.PathEscape(r.Attribute), nil
}

// Validate checks every component is present.
func (r Ref) Validate() error {
	if err := validateNamespace(r.Namespace); err != nil {
		return err
	}
	if strings.TrimSpace(r.GUID) == "" {
		return fmt.Errorf("%w: guid is required", ErrInvalidRef)
	}
	if strings.TrimSpace(r.Attribute) == "" {
		return fmt.Errorf("%w: attribute is required", ErrInvalidRef)
	}
	return nil
}

// NamespacePrefix returns the key prefix shared by every entry of namespace.
func NamespacePrefix(namespace string) string {
	return "ssar/backup/" + url.PathEscape(namespace) + "/"
}

// Store persists backup entries.
type Store interface {
	// PutIfAbsent stores entry unless one already exists for the same
	// namespace, GUID and attribute. It reports whether entry was stored.
	PutIfAbsent(ctx context.Context, namespace string, entry Entry) (bool, error)
	Get(ctx context.Context, namespace, guid, attribute string) (Entry, bool, error)
	// List returns the namespace entries sorted by GUID then attribute.
	List(ctx context.Context, namespace string) ([]Entry, error)
	Delete(ctx context.Context, namespace, guid, attribute string) error
	// Clear removes every entry of namespace and returns how many were removed.
	Clear(ctx context.Context, namespace string) (int, error)
	Close() error
}

func refFor(namespace string, entry Entry) Ref {
	return Ref{Namespace: namespace, GUID: entry.GUID, Attribute: entry.Attribute}
}

func validateNamespace(namespace string) error {
	if strings.TrimSpace(namespace) == "" {
		return fmt.Errorf("%w: namespace is required", ErrInvalidRef)
	}
	return nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].GUID != entries[j].GUID {
			return entries[i].GUID < entries[j].GUID
		}
		return entries[i].Attribute < entries[j].Attribute
	})
}

func encodeEntry(entry Entry) ([]byte, error) {
	raw, err := json.Marshal(entry)
	if err != nil {
		return nil, fmt.Errorf("backup: encode %s/%s: %w", entry.GUID, entry.Attribute, err)
	}
	return raw, nil
}

func decodeEntry(raw []byte) (Entry, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var entry Entry
	if err := dec.Decode(&entry); err != nil {
		return Entry{}, fmt.Errorf("backup: decode entry: %w", err)
	}
	entry.Original = decodeValue(entry.Original)
	return entry, nil
}

func decodeOriginal(raw []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var value any
	if err := dec.Decode(&value); err != nil {
		return nil, fmt.Errorf("backup: decode original: %w", err)
	}
	return decodeValue(value), nil
}

// decodeValue turns json.Number into int64 or float64 so integer attributes
// come back as integers.
func decodeValue(value any) any {
	switch typed := value.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		if f, err := typed.Float64(); err == nil {
			return f
		}
		return typed.String()
	case []any:
		for i := range typed {
			typed[i] = decodeValue(typed[i])
		}
		return typed
	case map[string]any:
		for key := range typed {
			typed[key] = decodeValue(typed[key])
		}
		return typed
	default:
		return value
	}
}
