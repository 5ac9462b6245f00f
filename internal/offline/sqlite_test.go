package offline

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
)

func TestSQLiteStorageRoundTrip(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	bucket, err := storage.Open(ctx, "summa-cache-v1")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}

	key := Key(http.MethodGet, "/api/invoices?category=Lebensmittel")
	want := &Entry{
		Status: http.StatusOK,
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`[{"id":7}]`),
	}
	if err := bucket.Put(ctx, key, want); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, ok, err := bucket.Match(ctx, key)
	if err != nil || !ok {
		t.Fatalf("Match() = %v, %v; want hit", ok, err)
	}
	if got.Status != want.Status || string(got.Body) != string(want.Body) {
		t.Errorf("Match() = %d %s, want %d %s", got.Status, got.Body, want.Status, want.Body)
	}
	if ct := got.Header.Get("Content-Type"); ct != "application/json" {
		t.Errorf("header round trip lost content type: %q", ct)
	}

	// Overwriting the same key keeps the newer payload (last write wins).
	newer := want.Clone()
	newer.Body = []byte(`[{"id":8}]`)
	if err := bucket.Put(ctx, key, newer); err != nil {
		t.Fatalf("Put() overwrite error = %v", err)
	}
	got, _, _ = bucket.Match(ctx, key)
	if string(got.Body) != `[{"id":8}]` {
		t.Errorf("overwrite body = %s, want newer payload", got.Body)
	}
}

func TestSQLiteStorageDeleteAndNames(t *testing.T) {
	storage, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStorage() error = %v", err)
	}
	defer storage.Close()

	ctx := context.Background()
	for _, name := range []string{"summa-cache-v0", "summa-cache-v1"} {
		bucket, _ := storage.Open(ctx, name)
		if err := bucket.Put(ctx, Key(http.MethodGet, "/"), &Entry{Status: 200, Header: http.Header{}}); err != nil {
			t.Fatalf("Put() error = %v", err)
		}
	}

	names, err := storage.Names(ctx)
	if err != nil || len(names) != 2 {
		t.Fatalf("Names() = %v, %v; want two buckets", names, err)
	}

	existed, err := storage.Delete(ctx, "summa-cache-v0")
	if err != nil || !existed {
		t.Fatalf("Delete() = %v, %v; want existed", existed, err)
	}
	names, _ = storage.Names(ctx)
	if len(names) != 1 || names[0] != "summa-cache-v1" {
		t.Errorf("Names() after delete = %v, want only summa-cache-v1", names)
	}

	existed, err = storage.Delete(ctx, "summa-cache-v0")
	if err != nil || existed {
		t.Errorf("Delete() twice = %v, %v; want not existed", existed, err)
	}
}
