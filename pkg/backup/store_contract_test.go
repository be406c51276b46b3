package backup_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/goliatone/go-ssar/pkg/backup"
)

type storeFactory struct {
	name string
	open func(t *testing.T) backup.Store
}

func storeFactories() []storeFactory {
	return []storeFactory{
		{name: "memory", open: func(t *testing.T) backup.Store {
			return backup.NewMemoryStore()
		}},
		{name: "badger", open: func(t *testing.T) backup.Store {
			store, err := backup.OpenBadger(backup.BadgerConfig{InMemory: true})
			if err != nil {
				t.Fatalf("open badger: %v", err)
			}
			return store
		}},
		{name: "sqlite", open: func(t *testing.T) backup.Store {
			store, err := backup.OpenSQLite(filepath.Join(t.TempDir(), "backup.db"))
			if err != nil {
				t.Fatalf("open sqlite: %v", err)
			}
			return store
		}},
	}
}

func forEachStore(t *testing.T, fn func(t *testing.T, store backup.Store)) {
	t.Helper()
	for _, factory := range storeFactories() {
		t.Run(factory.name, func(t *testing.T) {
			store := factory.open(t)
			t.Cleanup(func() { _ = store.Close() })
			fn(t, store)
		})
	}
}

var createdAt = time.Date(2026, 10, 19, 9, 30, 0, 0, time.UTC)

func entry(guid, attribute string, original any) backup.Entry {
	return backup.Entry{GUID: guid, Attribute: attribute, Path: "Assets/" + guid + ".png", Original: original, CreatedAt: createdAt}
}

func TestStorePutIfAbsentFirstWriteWins(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		stored, err := store.PutIfAbsent(ctx, "texture-max-size", entry("g1", "max_texture_size", int64(2048)))
		if err != nil || !stored {
			t.Fatalf("first put: stored=%t err=%v", stored, err)
		}
		stored, err = store.PutIfAbsent(ctx, "texture-max-size", entry("g1", "max_texture_size", int64(1024)))
		if err != nil {
			t.Fatalf("second put: %v", err)
		}
		if stored {
			t.Fatalf("second put must not replace the original")
		}

		got, ok, err := store.Get(ctx, "texture-max-size", "g1", "max_texture_size")
		if err != nil || !ok {
			t.Fatalf("get: ok=%t err=%v", ok, err)
		}
		if got.Original != int64(2048) {
			t.Fatalf("expected original 2048 (int64), got %#v", got.Original)
		}
		if got.Path != "Assets/g1.png" || !got.CreatedAt.Equal(createdAt) {
			t.Fatalf("unexpected entry metadata: %+v", got)
		}
	})
}

func TestStoreRoundTripsValueKinds(t *testing.T) {
	cases := []struct {
		name  string
		value any
	}{
		{name: "int", value: int64(4096)},
		{name: "float", value: 0.5},
		{name: "bool", value: true},
		{name: "string", value: "Medium"},
	}
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		for _, tc := range cases {
			if _, err := store.PutIfAbsent(ctx, "kinds", entry("g-"+tc.name, "value", tc.value)); err != nil {
				t.Fatalf("put %s: %v", tc.name, err)
			}
			got, ok, err := store.Get(ctx, "kinds", "g-"+tc.name, "value")
			if err != nil || !ok {
				t.Fatalf("get %s: ok=%t err=%v", tc.name, ok, err)
			}
			if got.Original != tc.value {
				t.Fatalf("%s: expected %#v, got %#v", tc.name, tc.value, got.Original)
			}
		}
	})
}

func TestStoreGetMissing(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		_, ok, err := store.Get(context.Background(), "texture-max-size", "nope", "max_texture_size")
		if err != nil || ok {
			t.Fatalf("expected missing entry, ok=%t err=%v", ok, err)
		}
	})
}

func TestStoreListSortedAndNamespaced(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		for _, e := range []backup.Entry{
			entry("g3", "max_texture_size", int64(2048)),
			entry("g1", "max_texture_size", int64(4096)),
			entry("g2", "b", int64(1)),
			entry("g2", "a", int64(2)),
		} {
			if _, err := store.PutIfAbsent(ctx, "texture-max-size", e); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		if _, err := store.PutIfAbsent(ctx, "normal-map-size", entry("g1", "max_texture_size", int64(512))); err != nil {
			t.Fatalf("put other namespace: %v", err)
		}

		got, err := store.List(ctx, "texture-max-size")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		want := [][2]string{{"g1", "max_texture_size"}, {"g2", "a"}, {"g2", "b"}, {"g3", "max_texture_size"}}
		if len(got) != len(want) {
			t.Fatalf("expected %d entries, got %d: %+v", len(want), len(got), got)
		}
		for i, w := range want {
			if got[i].GUID != w[0] || got[i].Attribute != w[1] {
				t.Fatalf("entry %d: expected %v, got %s/%s", i, w, got[i].GUID, got[i].Attribute)
			}
		}

		other, err := store.List(ctx, "normal-map-size")
		if err != nil || len(other) != 1 || other[0].Original != int64(512) {
			t.Fatalf("namespaces must be isolated: %+v err=%v", other, err)
		}
	})
}

func TestStoreDeleteAndClear(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		for _, guid := range []string{"g1", "g2", "g3"} {
			if _, err := store.PutIfAbsent(ctx, "mesh-compression", entry(guid, "mesh_compression", "Off")); err != nil {
				t.Fatalf("put: %v", err)
			}
		}
		if _, err := store.PutIfAbsent(ctx, "secondary-uv", entry("g1", "generate_secondary_uv", false)); err != nil {
			t.Fatalf("put: %v", err)
		}

		if err := store.Delete(ctx, "mesh-compression", "g2", "mesh_compression"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, _ := store.Get(ctx, "mesh-compression", "g2", "mesh_compression"); ok {
			t.Fatalf("deleted entry still present")
		}
		stored, err := store.PutIfAbsent(ctx, "mesh-compression", entry("g2", "mesh_compression", "High"))
		if err != nil || !stored {
			t.Fatalf("put after delete should store: stored=%t err=%v", stored, err)
		}

		n, err := store.Clear(ctx, "mesh-compression")
		if err != nil {
			t.Fatalf("clear: %v", err)
		}
		if n != 3 {
			t.Fatalf("expected 3 cleared, got %d", n)
		}
		left, err := store.List(ctx, "mesh-compression")
		if err != nil || len(left) != 0 {
			t.Fatalf("expected empty namespace, got %+v err=%v", left, err)
		}
		kept, err := store.List(ctx, "secondary-uv")
		if err != nil || len(kept) != 1 {
			t.Fatalf("clear must not touch other namespaces: %+v err=%v", kept, err)
		}
	})
}

func TestStoreRejectsInvalidRefs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		if _, err := store.PutIfAbsent(ctx, "", entry("g1", "a", 1)); !errors.Is(err, backup.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef for empty namespace, got %v", err)
		}
		if _, err := store.PutIfAbsent(ctx, "ns", entry(" ", "a", 1)); !errors.Is(err, backup.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef for blank guid, got %v", err)
		}
		if _, err := store.PutIfAbsent(ctx, "ns", entry("g1", "", 1)); !errors.Is(err, backup.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef for empty attribute, got %v", err)
		}
		if _, err := store.List(ctx, " "); !errors.Is(err, backup.ErrInvalidRef) {
			t.Fatalf("expected ErrInvalidRef for blank namespace, got %v", err)
		}
	})
}

func TestStoreAcceptsPathShapedGUIDs(t *testing.T) {
	forEachStore(t, func(t *testing.T, store backup.Store) {
		ctx := context.Background()
		for _, e := range []backup.Entry{
			entry("Assets/Tex/a.png", "max_texture_size", int64(2048)),
			entry("Assets/Tex/a.png/b", "max_texture_size", int64(4096)),
			entry("Assets/Tex", "max_texture_size", int64(512)),
		} {
			stored, err := store.PutIfAbsent(ctx, "texture-max-size", e)
			if err != nil || !stored {
				t.Fatalf("put %s: stored=%t err=%v", e.GUID, stored, err)
			}
		}
		if _, err := store.PutIfAbsent(ctx, "ns/sub", entry("Assets/Tex/a.png", "max_texture_size", int64(1))); err != nil {
			t.Fatalf("put nested namespace: %v", err)
		}

		got, ok, err := store.Get(ctx, "texture-max-size", "Assets/Tex/a.png", "max_texture_size")
		if err != nil || !ok || got.Original != int64(2048) {
			t.Fatalf("get path guid: %+v ok=%t err=%v", got, ok, err)
		}
		entries, err := store.List(ctx, "texture-max-size")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if len(entries) != 3 || entries[0].GUID != "Assets/Tex" || entries[1].GUID != "Assets/Tex/a.png" {
			t.Fatalf("unexpected entries %+v", entries)
		}
		if err := store.Delete(ctx, "texture-max-size", "Assets/Tex/a.png", "max_texture_size"); err != nil {
			t.Fatalf("delete: %v", err)
		}
		if _, ok, _ := store.Get(ctx, "texture-max-size", "Assets/Tex/a.png/b", "max_texture_size"); !ok {
			t.Fatalf("delete removed a sibling entry")
		}
		n, err := store.Clear(ctx, "texture-max-size")
		if err != nil || n != 2 {
			t.Fatalf("clear: n=%d err=%v", n, err)
		}
		if other, _ := store.List(ctx, "ns/sub"); len(other) != 1 {
			t.Fatalf("clear leaked into another namespace: %+v", other)
		}
	})
}

func TestPersistentStoresSurviveReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	reopen := map[string]func() (backup.Store, error){
		"badger": func() (backup.Store, error) {
			return backup.OpenBadger(backup.BadgerConfig{Path: filepath.Join(dir, "badger")})
		},
		"sqlite": func() (backup.Store, error) {
			return backup.OpenSQLite(filepath.Join(dir, "sqlite", "backup.db"), backup.WithMkdirAll())
		},
	}
	for name, open := range reopen {
		t.Run(name, func(t *testing.T) {
			store, err := open()
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if _, err := store.PutIfAbsent(ctx, "texture-max-size", entry("g1", "max_texture_size", int64(2048))); err != nil {
				t.Fatalf("put: %v", err)
			}
			if err := store.Close(); err != nil {
				t.Fatalf("close: %v", err)
			}

			store, err = open()
			if err != nil {
				t.Fatalf("reopen: %v", err)
			}
			defer store.Close()
			got, ok, err := store.Get(ctx, "texture-max-size", "g1", "max_texture_size")
			if err != nil || !ok || got.Original != int64(2048) {
				t.Fatalf("entry lost across reopen: %+v ok=%t err=%v", got, ok, err)
			}
		})
	}
}

func TestRefIdentifier(t *testing.T) {
	id, err := backup.Ref{Namespace: "texture-max-size", GUID: "abc", Attribute: "max_texture_size"}.Identifier()
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	if id != "ssar/backup/texture-max-size/abc/max_texture_size" {
		t.Fatalf("unexpected identifier %q", id)
	}
	id, err = backup.Ref{Namespace: "texture-max-size", GUID: "Assets/Tex/a.png", Attribute: "max_texture_size"}.Identifier()
	if err != nil {
		t.Fatalf("identifier: %v", err)
	}
	if id != "ssar/backup/texture-max-size/Assets%2FTex%2Fa.png/max_texture_size" {
		t.Fatalf("unexpected escaped identifier %q", id)
	}
}
