package publishers

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/jsonhttp"
)

// httpPublisher posts events as JSON to a webhook.
type httpPublisher struct {
	id      string
	url     string
	headers map[string]string
	client  httpclient.Client
	typ     string
	log     Logger
}

func newHTTPPublisher(_ context.Context, cfg PublisherConfig, log Logger) (Publisher, error) {
	if cfg.HTTP == nil {
		return nil, fmt.Errorf("publisher %q missing http configuration", cfg.ID)
	}
	if cfg.HTTP.Method != "" && cfg.HTTP.Method != http.MethodPost {
		return nil, fmt.Errorf("publisher %q: http method %q not supported (only POST)", cfg.ID, cfg.HTTP.Method)
	}

	return &httpPublisher{
		id:      cfg.ID,
		typ:     TypeHTTP,
		url:     cfg.HTTP.URL,
		headers: cfg.HTTP.Headers,
		client:  httpclient.NewRestyClient(time.Duration(cfg.HTTP.TimeoutSeconds) * time.Second),
		log:     ensureLogger(log),
	}, nil
}

func (h *httpPublisher) ID() string   { return h.id }
func (h *httpPublisher) Type() string { return h.typ }

// Publish posts the event; non-2xx answers surface as *jsonhttp.HTTPRequestFailedError.
func (h *httpPublisher) Publish(ctx context.Context, evt Event) error {
	if _, err := jsonhttp.PostJSON(ctx, h.client, h.url, evt, jsonhttp.WithHeaders(h.headers)); err != nil {
		h.log.ErrorObj("http publisher send failed", "publisher_http_error", map[string]any{
			"publisher_id": h.id,
			"call_id":      evt.CallID,
			"error":        err.Error(),
		})
		return fmt.Errorf("http publish: %w", err)
	}
	h.log.DebugObj("http publisher delivered event", "publisher_http_delivery", map[string]any{
		"publisher_id": h.id,
		"call_id":      evt.CallID,
	})
	return nil
}
