package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/config"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestRelayDispatchesOncePerPayload(t *testing.T) {
	var mu sync.Mutex
	upstreamHits := 0
	var events []publishers.Event

	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		mu.Lock()
		upstreamHits++
		mu.Unlock()
		_, _ = w.Write([]byte(`{"token":"xyz"}`))
	}))
	defer upstream.Close()

	sink := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var evt publishers.Event
		if err := json.NewDecoder(r.Body).Decode(&evt); err != nil {
			t.Errorf("decode event: %v", err)
		}
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer sink.Close()

	dir := t.TempDir()
	cfg := &config.Config{
		CallsFile: writeFile(t, dir, "calls.yaml", `
calls:
  - id: login
    url: `+upstream.URL+`/login
    body:
      user: a
      pass: b
`),
		PublishersFile: writeFile(t, dir, "publishers.yaml", `
publishers:
  - id: sink
    type: http
    http:
      url: `+sink.URL+`
`),
		DispatchInterval:       20 * time.Millisecond,
		HTTPTimeout:            2 * time.Second,
		StorageType:            "bbolt",
		BBoltPath:              filepath.Join(dir, "deliveries.db"),
		StorageTTL:             time.Hour,
		StorageCleanupInterval: time.Hour,
	}

	relay, err := NewRelay(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("NewRelay: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	if err := relay.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if upstreamHits != 1 {
		t.Fatalf("expected a single upstream call across passes, got %d", upstreamHits)
	}
	if len(events) != 1 || !events[0].Success || events[0].CallID != "login" {
		t.Fatalf("unexpected events %+v", events)
	}
	if string(events[0].Result) != `{"token":"xyz"}` {
		t.Fatalf("unexpected result %s", events[0].Result)
	}
}

func TestNewRelayValidatesInputs(t *testing.T) {
	if _, err := NewRelay(context.Background(), nil, nil); err == nil {
		t.Fatalf("expected error for nil config")
	}

	dir := t.TempDir()
	cfg := &config.Config{
		CallsFile:      writeFile(t, dir, "calls.yaml", "calls:\n  - id: c\n    url: https://example.com\n"),
		PublishersFile: writeFile(t, dir, "publishers.yaml", "publishers:\n  - id: p\n    type: http\n    enabled: false\n    http:\n      url: https://example.com\n"),
	}
	if _, err := NewRelay(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error when all publishers are disabled")
	}
}
