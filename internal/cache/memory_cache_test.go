package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryCacheSetGet(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	if err := c.SetJSON(ctx, "k1", payload{Name: "term", Count: 3}, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got payload
	hit, err := c.GetJSON(ctx, "k1", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if !hit {
		t.Fatal("expected cache hit")
	}
	if got.Name != "term" || got.Count != 3 {
		t.Errorf("unexpected value: %+v", got)
	}
}

func TestMemoryCacheMiss(t *testing.T) {
	c := NewMemoryCache()

	var got string
	hit, err := c.GetJSON(context.Background(), "absent", &got)
	if err != nil {
		t.Fatalf("GetJSON failed: %v", err)
	}
	if hit {
		t.Error("expected miss for absent key")
	}
}

func TestMemoryCacheExpiry(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	if err := c.SetJSON(ctx, "k", "v", 5*time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	var got string
	if hit, _ := c.GetJSON(ctx, "k", &got); !hit {
		t.Fatal("expected hit before expiry")
	}

	c.now = func() time.Time { return base.Add(6 * time.Minute) }
	if hit, _ := c.GetJSON(ctx, "k", &got); hit {
		t.Error("expected miss after TTL elapsed")
	}
}

func TestMemoryCacheDel(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	_ = c.SetJSON(ctx, "a", 1, time.Minute)
	_ = c.SetJSON(ctx, "b", 2, time.Minute)

	if err := c.Del(ctx, "a", "b"); err != nil {
		t.Fatalf("Del failed: %v", err)
	}

	var got int
	if hit, _ := c.GetJSON(ctx, "a", &got); hit {
		t.Error("expected key a deleted")
	}
}

func TestMemoryCacheSweep(t *testing.T) {
	c := NewMemoryCache()
	ctx := context.Background()

	base := time.Now()
	c.now = func() time.Time { return base }

	_ = c.SetJSON(ctx, "stale", 1, time.Second)
	_ = c.SetJSON(ctx, "fresh", 2, time.Hour)

	c.now = func() time.Time { return base.Add(time.Minute) }
	if removed := c.Sweep(); removed != 1 {
		t.Errorf("Sweep removed %d entries, want 1", removed)
	}

	var got int
	if hit, _ := c.GetJSON(ctx, "fresh", &got); !hit {
		t.Error("fresh entry should survive sweep")
	}
}
