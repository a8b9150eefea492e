package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/pkg/calls"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/jsonhttp"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
)

// Service posts configured calls and publishes their outcomes.
type Service struct {
	client    httpclient.Client
	publisher EventPublisher
	store     Deduper
	log       logger.Logger
}

// NewService wires a dispatcher. publisher and store may be nil.
func NewService(client httpclient.Client, publisher EventPublisher, log logger.Logger, store Deduper) *Service {
	if log == nil {
		log = &logger.NopLogger{}
	}
	return &Service{
		client:    client,
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// Run executes one dispatch pass over cfgs.
func (s *Service) Run(ctx context.Context, cfgs []calls.Call) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("dispatcher service is not initialized")
	}
	if len(cfgs) == 0 {
		return fmt.Errorf("no calls configured for dispatch")
	}

	if errs := s.runAll(ctx, cfgs); len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func (s *Service) runAll(ctx context.Context, cfgs []calls.Call) []error {
	errs := make([]error, 0, len(cfgs))

	for i, call := range cfgs {
		if ctx.Err() != nil {
			break
		}
		if err := s.process(ctx, call); err != nil {
			errs = append(errs, err)
			s.log.ErrorObj("call dispatch failed", "call_error", map[string]any{
				"call_id": call.ID,
				"error":   err.Error(),
			})
		}
		if i < len(cfgs)-1 {
			if !wait(ctx, call.RequestDelay()) {
				break
			}
		}
	}

	return errs
}

// process dispatches call unless its payload was already delivered, then
// publishes the outcome.
func (s *Service) process(ctx context.Context, call calls.Call) error {
	digest := call.Digest()
	if s.store != nil {
		seen, err := s.store.SeenDelivery(digest)
		if err != nil {
			s.log.WarnObj("delivery lookup failed; dispatching anyway", "dedupe_error", map[string]any{
				"call_id": call.ID,
				"error":   err.Error(),
			})
		} else if seen {
			s.log.DebugObj("call already delivered", "call_skip", map[string]any{
				"call_id": call.ID,
				"digest":  digest,
			})
			return nil
		}
	}

	evt, callErr := s.Dispatch(ctx, call)

	delivered, pubErr := s.publish(ctx, evt)
	if pubErr != nil {
		pubErr = fmt.Errorf("publish outcome of call %s: %w", call.ID, pubErr)
	}

	if callErr == nil && (pubErr == nil || delivered > 0) && s.store != nil {
		if err := s.store.MarkDelivery(digest); err != nil {
			s.log.WarnObj("mark delivery failed", "dedupe_error", map[string]any{
				"call_id": call.ID,
				"error":   err.Error(),
			})
		}
	}

	if callErr != nil {
		return errors.Join(fmt.Errorf("call %s: %w", call.ID, callErr), pubErr)
	}
	return pubErr
}

func (s *Service) publish(ctx context.Context, evt publishers.Event) (int, error) {
	if s.publisher == nil {
		return 0, nil
	}
	return s.publisher.Publish(ctx, evt)
}

// Dispatch posts call through the helper matching its mode. The returned
// event describes the outcome whether or not the call failed.
func (s *Service) Dispatch(ctx context.Context, call calls.Call) (publishers.Event, error) {
	evt := publishers.NewEvent(call.ID, call.Name, call.URL, call.Mode)
	opts := []jsonhttp.Option{jsonhttp.WithHeaders(call.Headers)}
	start := time.Now()

	var err error
	switch call.Mode {
	case calls.ModePost:
		_, err = jsonhttp.PostJSON(ctx, s.client, call.URL, call.Body, opts...)
	case calls.ModeResult:
		var out *json.RawMessage
		out, err = jsonhttp.PostJSONForResult[json.RawMessage](ctx, s.client, call.URL, call.Body, opts...)
		if out != nil {
			evt.Result = *out
		}
	case calls.ModeRequired:
		var out json.RawMessage
		out, err = jsonhttp.PostJSONRequired[json.RawMessage](ctx, s.client, call.URL, call.Body, opts...)
		evt.Result = out
	default:
		err = fmt.Errorf("unsupported mode %q", call.Mode)
	}

	if err != nil {
		evt.Error = describeError(err)
		if code, ok := jsonhttp.StatusCodeOf(err); ok {
			evt.StatusCode = code
		}
		return evt, err
	}

	evt.Success = true
	s.log.InfoObj("call dispatched", "call_result", map[string]any{
		"call_id":    call.ID,
		"mode":       call.Mode,
		"has_result": len(evt.Result) > 0,
		"elapsed_ms": time.Since(start).Milliseconds(),
	})
	return evt, nil
}

// wait pauses for d and reports false if ctx ended first.
func wait(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
