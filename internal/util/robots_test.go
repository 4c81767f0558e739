package util

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestRobotsCheckerHonorsRules(t *testing.T) {
	var hits int32
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, "User-agent: *\nDisallow: /private/\nCrawl-delay: 2\n")
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	rc := NewRobotsChecker("wubiq/0.3", time.Second)
	ctx := context.Background()

	allowed, delay, err := rc.CanFetch(ctx, srv.URL+"/include/v.asp")
	if err != nil {
		t.Fatalf("can fetch: %v", err)
	}
	if !allowed {
		t.Fatal("captcha path should be allowed")
	}
	if delay != 2*time.Second {
		t.Fatalf("expected 2s crawl delay, got %v", delay)
	}

	allowed, _, err = rc.CanFetch(ctx, srv.URL+"/private/x")
	if err != nil {
		t.Fatalf("can fetch: %v", err)
	}
	if allowed {
		t.Fatal("disallowed path should be blocked")
	}

	// Second check for the same host must come from cache.
	if n := atomic.LoadInt32(&hits); n != 1 {
		t.Fatalf("expected 1 robots.txt fetch, got %d", n)
	}
}

func TestRobotsCheckerAllowsWhenUnreachable(t *testing.T) {
	rc := NewRobotsChecker("wubiq/0.3", 100*time.Millisecond)
	allowed, _, err := rc.CanFetch(context.Background(), "http://127.0.0.1:1/anything")
	if err != nil {
		t.Fatalf("can fetch: %v", err)
	}
	if !allowed {
		t.Fatal("unreachable robots.txt should default to allow")
	}
}
