package kv

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

func backends(t *testing.T) map[string]Backend {
	t.Helper()

	sqlite, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "kv.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite backend: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	mr := miniredis.RunT(t)
	redisBackend, err := NewRedisBackend("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("Failed to open redis backend: %v", err)
	}
	t.Cleanup(func() { redisBackend.Close() })

	return map[string]Backend{
		"memory": NewMemoryBackend(),
		"sqlite": sqlite,
		"redis":  redisBackend,
	}
}

func TestBackendGetSetDelete(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			if _, ok, err := b.Get(ctx, "ns:missing"); err != nil || ok {
				t.Fatalf("Expected missing key, got ok=%v err=%v", ok, err)
			}

			if err := b.Set(ctx, "ns:a", []byte("hello")); err != nil {
				t.Fatalf("Set failed: %v", err)
			}
			val, ok, err := b.Get(ctx, "ns:a")
			if err != nil || !ok {
				t.Fatalf("Get failed: ok=%v err=%v", ok, err)
			}
			if string(val) != "hello" {
				t.Errorf("Expected hello, got %q", val)
			}

			if err := b.Set(ctx, "ns:a", []byte("replaced")); err != nil {
				t.Fatalf("Overwrite failed: %v", err)
			}
			val, _, _ = b.Get(ctx, "ns:a")
			if string(val) != "replaced" {
				t.Errorf("Expected replaced, got %q", val)
			}

			if err := b.Delete(ctx, "ns:a"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, ok, _ := b.Get(ctx, "ns:a"); ok {
				t.Error("Expected key to be deleted")
			}
			if err := b.Delete(ctx, "ns:a"); err != nil {
				t.Errorf("Deleting a missing key should not fail: %v", err)
			}
		})
	}
}

func TestBackendEstimateUsage(t *testing.T) {
	ctx := context.Background()

	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			b.Set(ctx, "ns:one", []byte("12345"))
			b.Set(ctx, "ns:two", []byte("123"))
			b.Set(ctx, "other:three", []byte("1234567890"))

			used, err := b.EstimateUsage(ctx, "ns:")
			if err != nil {
				t.Fatalf("EstimateUsage failed: %v", err)
			}

			want := int64(len("ns:one") + 5 + len("ns:two") + 3)
			if used != want {
				t.Errorf("Expected %d bytes, got %d", want, used)
			}

			empty, err := b.EstimateUsage(ctx, "none:")
			if err != nil {
				t.Fatalf("EstimateUsage failed: %v", err)
			}
			if empty != 0 {
				t.Errorf("Expected 0 bytes for empty namespace, got %d", empty)
			}
		})
	}
}

func TestGlobEscape(t *testing.T) {
	if got := globEscape("a*b?[c]"); got != `a\*b\?\[c\]` {
		t.Errorf("Unexpected escape result %q", got)
	}
}

func TestMemoryBackendCopiesValues(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryBackend()

	value := []byte("abc")
	m.Set(ctx, "k", value)
	value[0] = 'z'

	got, _, _ := m.Get(ctx, "k")
	if string(got) != "abc" {
		t.Errorf("Stored value was aliased: %q", got)
	}

	got[1] = 'z'
	again, _, _ := m.Get(ctx, "k")
	if string(again) != "abc" {
		t.Errorf("Returned value was aliased: %q", again)
	}

	if keys := m.Keys(""); len(keys) != 1 || keys[0] != "k" {
		t.Errorf("Unexpected keys %v", keys)
	}
}
