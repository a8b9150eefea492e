// Package jsonhttp posts JSON documents through an httpclient.Client and
// decodes JSON answers.
//
// All helpers check the response status with EnsureSuccess and surface
// failures as errors; nothing is retried or logged here.
package jsonhttp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strings"

	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
)

const ContentTypeJSON = "application/json"

// Option tweaks a single request.
type Option func(*requestOptions)

type requestOptions struct {
	headers map[string]string
}

// WithHeader sets one request header.
func WithHeader(key, value string) Option {
	return func(o *requestOptions) {
		o.headers[key] = value
	}
}

// WithHeaders copies headers onto the request.
func WithHeaders(headers map[string]string) Option {
	return func(o *requestOptions) {
		maps.Copy(o.headers, headers)
	}
}

// EnsureSuccess returns an *HTTPRequestFailedError when resp carries a
// non-2xx status. The body is only read on failure.
func EnsureSuccess(resp httpclient.Response) error {
	if resp.IsSuccess() {
		return nil
	}
	return &HTTPRequestFailedError{
		StatusCode: resp.StatusCode(),
		Body:       string(resp.Body()),
	}
}

// PostJSON posts body as JSON to url. The boolean is always true when err is nil.
func PostJSON[Req any](ctx context.Context, client httpclient.Client, url string, body Req, opts ...Option) (bool, error) {
	resp, err := send(ctx, client, url, body, opts)
	if err != nil {
		return false, err
	}
	if err := EnsureSuccess(resp); err != nil {
		return false, err
	}
	return true, nil
}

// PostJSONForResult posts body as JSON and decodes the answer into a Resp.
// An empty body or a JSON null yields a nil result and no error.
func PostJSONForResult[Resp, Req any](ctx context.Context, client httpclient.Client, url string, body Req, opts ...Option) (*Resp, error) {
	resp, err := send(ctx, client, url, body, opts)
	if err != nil {
		return nil, err
	}
	if err := EnsureSuccess(resp); err != nil {
		return nil, err
	}
	return decode[Resp](resp.Body())
}

// PostJSONRequired behaves like PostJSONForResult but reports ErrEmptyResponse
// instead of returning a nil result.
func PostJSONRequired[Resp, Req any](ctx context.Context, client httpclient.Client, url string, body Req, opts ...Option) (Resp, error) {
	var zero Resp
	out, err := PostJSONForResult[Resp](ctx, client, url, body, opts...)
	if err != nil {
		return zero, err
	}
	if out == nil {
		return zero, ErrEmptyResponse
	}
	return *out, nil
}

func send[Req any](ctx context.Context, client httpclient.Client, url string, body Req, opts []Option) (httpclient.Response, error) {
	if client == nil {
		return nil, fmt.Errorf("http client is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	o := requestOptions{headers: make(map[string]string, len(opts)+1)}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	for k := range o.headers {
		if strings.EqualFold(k, "Content-Type") {
			delete(o.headers, k)
		}
	}
	o.headers["Content-Type"] = ContentTypeJSON

	resp, err := client.Post(ctx, url, payload, o.headers)
	if err != nil {
		return nil, fmt.Errorf("post %s: %w", url, err)
	}
	if resp == nil {
		return nil, fmt.Errorf("post %s: transport returned no response", url)
	}
	return resp, nil
}

// decode unmarshals raw into a fresh *Resp. A pointer target leaves the
// result nil for a JSON null.
func decode[Resp any](raw []byte) (*Resp, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, nil
	}
	var out *Resp
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out, nil
}
