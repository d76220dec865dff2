package cpcache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGetMiss(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if _, ok, err := c.Get(ctx, "proj-1"); err != nil || ok {
		t.Fatalf("expected miss on empty cache, got ok=%v err=%v", ok, err)
	}

	if err := c.Set(ctx, "proj-1", `{"status":"READY"}`, time.Minute); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, ok, err := c.Get(ctx, "proj-1")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if val != `{"status":"READY"}` {
		t.Fatalf("val = %q", val)
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestMemoryCacheExpires(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	if err := c.Set(ctx, "proj-1", "v", time.Millisecond); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok, _ := c.Get(ctx, "proj-1"); ok {
		t.Fatal("expected entry to have expired")
	}
}

func TestMemoryCacheDelete(t *testing.T) {
	c := NewMemory()
	ctx := context.Background()

	c.Set(ctx, "proj-1", "v", time.Minute)
	if err := c.Delete(ctx, "proj-1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok, _ := c.Get(ctx, "proj-1"); ok {
		t.Fatal("expected deleted entry to miss")
	}
}
