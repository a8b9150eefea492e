package publishers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samvad-hq/samvad-relay/pkg/jsonhttp"
)

func TestHTTPPublisherSuccess(t *testing.T) {
	var received Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if got := r.Header.Get("X-Test"); got != "1" {
			t.Errorf("missing header, got %s", got)
		}
		if got := r.Header.Get("Content-Type"); got != jsonhttp.ContentTypeJSON {
			t.Errorf("unexpected content type %s", got)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pub, err := newHTTPPublisher(context.Background(), PublisherConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{
			URL:            srv.URL,
			Method:         http.MethodPost,
			Headers:        map[string]string{"X-Test": "1"},
			TimeoutSeconds: 2,
		},
	}, nil)
	if err != nil {
		t.Fatalf("newHTTPPublisher: %v", err)
	}

	evt := NewEvent("login", "Login", "https://auth.example/login", "result")
	evt.Success = true
	evt.Result = json.RawMessage(`{"token":"xyz"}`)
	if err := pub.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if received.CallID != "login" || string(received.Result) != `{"token":"xyz"}` {
		t.Fatalf("server received unexpected event %+v", received)
	}
}

func TestHTTPPublisherErrorOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadRequest)
	}))
	defer srv.Close()

	pub, err := newHTTPPublisher(context.Background(), PublisherConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{
			URL:            srv.URL,
			TimeoutSeconds: 1,
		},
	}, nil)
	if err != nil {
		t.Fatalf("newHTTPPublisher: %v", err)
	}

	err = pub.Publish(context.Background(), Event{})
	var reqErr *jsonhttp.HTTPRequestFailedError
	if !errors.As(err, &reqErr) {
		t.Fatalf("expected HTTPRequestFailedError, got %v", err)
	}
	if reqErr.StatusCode != http.StatusBadRequest {
		t.Fatalf("unexpected status %d", reqErr.StatusCode)
	}
}

func TestHTTPPublisherRejectsNonPostMethod(t *testing.T) {
	_, err := newHTTPPublisher(context.Background(), PublisherConfig{
		ID:   "hook",
		Type: TypeHTTP,
		HTTP: &HTTPPublisherConfig{URL: "https://example.com", Method: http.MethodPut},
	}, nil)
	if err == nil {
		t.Fatalf("expected error for PUT method")
	}
}
