package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), MemoryPath, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGet(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)

	id, err := s.Put(ctx, BucketObjects, "answer", "org.taffy.core.maths.Number", []byte{1, 2, 3})
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	rec, err := s.Get(ctx, BucketObjects, "answer")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if rec.ID != id {
		t.Errorf("id = %v, want %v", rec.ID, id)
	}
	if rec.Class != "org.taffy.core.maths.Number" || string(rec.Data) != "\x01\x02\x03" {
		t.Errorf("got %q %v", rec.Class, rec.Data)
	}

	// replacing keeps one record with a new id
	id2, err := s.Put(ctx, BucketObjects, "answer", "org.taffy.core.String", []byte("x"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if id2 == id {
		t.Error("replacement kept the old id")
	}
	keys, err := s.Keys(ctx, BucketObjects)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 1 || keys[0] != "answer" {
		t.Errorf("keys = %v", keys)
	}
}

func TestBucketsAreSeparate(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	for _, k := range []string{"b", "a", "c"} {
		if _, err := s.Put(ctx, BucketGlobals, k, "C", []byte(k)); err != nil {
			t.Fatal(err)
		}
	}
	keys, err := s.Keys(ctx, BucketGlobals)
	if err != nil {
		t.Fatal(err)
	}
	if got := len(keys); got != 3 || keys[0] != "a" || keys[2] != "c" {
		t.Errorf("keys = %v", keys)
	}
	if keys, _ := s.Keys(ctx, BucketObjects); len(keys) != 0 {
		t.Errorf("objects bucket = %v", keys)
	}
	if _, err := s.Get(ctx, BucketObjects, "a"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get from other bucket: %v", err)
	}
}

func TestChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	if _, err := s.Put(ctx, BucketObjects, "k", "C", []byte("good")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET data = ? WHERE key = ?`, []byte("evil"), "k"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, BucketObjects, "k"); !errors.Is(err, ErrChecksum) {
		t.Fatalf("Get = %v, want ErrChecksum", err)
	}
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	s := openTest(t)
	s.Put(ctx, BucketObjects, "k", "C", []byte("v"))

	tests := []struct {
		key  string
		want bool
	}{
		{"k", true},
		{"k", false},
		{"missing", false},
	}
	for _, tt := range tests {
		got, err := s.Delete(ctx, BucketObjects, tt.key)
		if err != nil {
			t.Fatalf("Delete(%q): %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Delete(%q) = %v, want %v", tt.key, got, tt.want)
		}
	}
}

func TestReopenFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "taffy.db")
	s, err := Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Put(ctx, BucketGlobals, "x", "C", []byte("persisted")); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, BucketGlobals, "x"); !errors.Is(err, ErrClosed) {
		t.Errorf("Get after Close = %v", err)
	}

	s, err = Open(ctx, path, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	rec, err := s.Get(ctx, BucketGlobals, "x")
	if err != nil {
		t.Fatal(err)
	}
	if string(rec.Data) != "persisted" {
		t.Errorf("data = %q", rec.Data)
	}
}
