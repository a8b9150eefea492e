package httpclient

import (
	"context"
	"time"

	"github.com/go-resty/resty/v2"
)

// RestyClient adapts resty.Client to the httpclient.Client interface.
type RestyClient struct {
	client *resty.Client
}

// NewRestyClient creates a new RestyClient with the specified timeout.
func NewRestyClient(timeout time.Duration) *RestyClient {
	return &RestyClient{client: newRestyBaseClient(timeout)}
}

// WrapResty adapts an already configured resty.Client.
func WrapResty(c *resty.Client) *RestyClient {
	if c == nil {
		c = resty.New()
	}
	return &RestyClient{client: c}
}

// newRestyBaseClient creates a new resty.Client with the specified timeout.
func newRestyBaseClient(timeout time.Duration) *resty.Client {
	c := resty.New()
	if timeout > 0 {
		c.SetTimeout(timeout)
	}
	return c
}

// Get performs an HTTP GET request with the specified context, URL, and headers.
func (r *RestyClient) Get(ctx context.Context, url string, headers map[string]string) (Response, error) {
	resp, err := r.request(ctx, headers).Get(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

// Post sends body verbatim as the request payload of an HTTP POST.
func (r *RestyClient) Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error) {
	req := r.request(ctx, headers)
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Post(url)
	if err != nil {
		return nil, err
	}
	return &restyResponseAdapter{resp: resp}, nil
}

func (r *RestyClient) request(ctx context.Context, headers map[string]string) *resty.Request {
	if ctx == nil {
		ctx = context.Background()
	}
	req := r.client.R().SetContext(ctx)
	if len(headers) > 0 {
		req.SetHeaders(headers)
	}
	return req
}

// restyResponseAdapter adapts resty.Response to the httpclient.Response interface.
type restyResponseAdapter struct {
	resp *resty.Response
}

func (r *restyResponseAdapter) Body() []byte    { return r.resp.Body() }
func (r *restyResponseAdapter) StatusCode() int { return r.resp.StatusCode() }
func (r *restyResponseAdapter) Status() string  { return r.resp.Status() }
func (r *restyResponseAdapter) IsSuccess() bool { return r.resp.IsSuccess() }
