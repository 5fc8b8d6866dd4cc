package cache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	// Empty addr skips redis entirely; the in-process store carries the
	// same semantics, which is exactly what these tests pin down.
	c := New(context.Background(), "", "", 0, zap.NewNop())
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestGetOrCompute_HitSkipsCompute(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) ([]string, error) {
		calls++
		return []string{"a", "b"}, nil
	}

	first, err := GetOrCompute(ctx, c, Key("rankings", "gainers", 7, 10), time.Minute, compute)
	if err != nil {
		t.Fatalf("first call: %v", err)
	}
	second, err := GetOrCompute(ctx, c, Key("rankings", "gainers", 7, 10), time.Minute, compute)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}

	if calls != 1 {
		t.Fatalf("compute calls=%d want=1", calls)
	}
	if len(first) != len(second) || first[0] != second[0] || first[1] != second[1] {
		t.Fatalf("hit result %v differs from computed %v", second, first)
	}
}

func TestGetOrCompute_ExpiryRecomputes(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	if _, err := GetOrCompute(ctx, c, "metric:x", 10*time.Millisecond, compute); err != nil {
		t.Fatalf("first call: %v", err)
	}
	time.Sleep(20 * time.Millisecond)
	v, err := GetOrCompute(ctx, c, "metric:x", 10*time.Millisecond, compute)
	if err != nil {
		t.Fatalf("second call: %v", err)
	}
	if calls != 2 || v != 2 {
		t.Fatalf("calls=%d v=%d want recompute after expiry", calls, v)
	}
}

func TestGetOrCompute_DistinctKeys(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	calls := 0
	compute := func(ctx context.Context) (int, error) {
		calls++
		return calls, nil
	}

	a, _ := GetOrCompute(ctx, c, Key("volatility", 7), time.Minute, compute)
	b, _ := GetOrCompute(ctx, c, Key("volatility", 30), time.Minute, compute)
	if a == b {
		t.Fatalf("distinct keys returned same value %d", a)
	}
	if calls != 2 {
		t.Fatalf("calls=%d want=2", calls)
	}
}

func TestKeyDeterministic(t *testing.T) {
	a := Key("overview", 24, "h")
	b := Key("overview", 24, "h")
	if a != b {
		t.Fatalf("key not deterministic: %q vs %q", a, b)
	}
	if a != "overview:24:h" {
		t.Fatalf("key=%q want overview:24:h", a)
	}
}

func TestMemoryStoreSweep(t *testing.T) {
	m := newMemoryStore()
	now := time.Now()
	m.set("k1", []byte("v"), 10*time.Millisecond, now)
	m.set("k2", []byte("v"), time.Hour, now)

	m.sweep(now.Add(time.Minute))
	if m.len() != 1 {
		t.Fatalf("len=%d want=1 after sweep", m.len())
	}
	if _, ok := m.get("k2", now.Add(time.Minute)); !ok {
		t.Fatalf("k2 should survive sweep")
	}
}
