package cache

import (
	"strings"
	"testing"
	"time"

	"github.com/yxzhu/wubiq/internal/model"
	"github.com/yxzhu/wubiq/internal/query"
)

func testConfig(t *testing.T) model.CacheConfig {
	t.Helper()
	return model.CacheConfig{
		Enabled: true,
		Dir:     t.TempDir(),
		TTL:     time.Hour,
	}
}

func TestKeyStableAndVersioned(t *testing.T) {
	k1 := Key("学")
	k2 := Key("学")
	if k1 != k2 {
		t.Fatal("key must be deterministic")
	}
	if !strings.HasPrefix(k1, "wubiq:v1:") {
		t.Fatalf("key missing version prefix: %q", k1)
	}
	if Key("习") == k1 {
		t.Fatal("different characters must not collide")
	}
}

func TestDecompositionsRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	c := NewDecompositions(cfg)

	dec := &query.Decomposition{
		Char:   "学",
		Wubi86: "IPBF",
		Components: map[string][]string{
			"IPBF": {"http://www.wangma.com.cn/zgm/a6.bmp"},
		},
	}
	if err := c.Put("学", dec); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, ok := c.Get("学")
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Wubi86 != "IPBF" || got.Char != "学" {
		t.Fatalf("unexpected payload: %+v", got)
	}
	if len(got.Components["IPBF"]) != 1 {
		t.Fatalf("components lost in round trip: %+v", got.Components)
	}

	if _, ok := c.Get("习"); ok {
		t.Fatal("unexpected hit for uncached character")
	}
}

func TestDecompositionsSurviveRestart(t *testing.T) {
	cfg := testConfig(t)

	first := NewDecompositions(cfg)
	if err := first.Put("学", &query.Decomposition{Char: "学", Wubi86: "IPBF"}); err != nil {
		t.Fatalf("put: %v", err)
	}

	// Fresh instance over the same directory: memory tier is cold, the
	// disk tier must serve and promote.
	second := NewDecompositions(cfg)
	got, ok := second.Get("学")
	if !ok {
		t.Fatal("expected disk hit after restart")
	}
	if got.Wubi86 != "IPBF" {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestDecompositionsForgetAndClear(t *testing.T) {
	cfg := testConfig(t)
	c := NewDecompositions(cfg)

	for _, char := range []string{"学", "习"} {
		if err := c.Put(char, &query.Decomposition{Char: char, Wubi86: "X"}); err != nil {
			t.Fatalf("put %s: %v", char, err)
		}
	}

	if err := c.Forget("学"); err != nil {
		t.Fatalf("forget: %v", err)
	}
	if _, ok := c.Get("学"); ok {
		t.Fatal("forgotten entry still present")
	}
	if _, ok := c.Get("习"); !ok {
		t.Fatal("forget must not touch other entries")
	}
	if err := c.Forget("马"); err != nil {
		t.Fatalf("forget of an uncached character should be a no-op, got %v", err)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, ok := c.Get("习"); ok {
		t.Fatal("cleared entry still present")
	}
}

func TestDiskEntryExpires(t *testing.T) {
	d := NewDisk(t.TempDir(), time.Hour)
	if err := d.Set("k", []byte("v"), time.Millisecond); err != nil {
		t.Fatalf("set: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, ok := d.Get("k"); ok {
		t.Fatal("expired entry should miss")
	}
}
