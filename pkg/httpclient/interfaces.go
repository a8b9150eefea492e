package httpclient

import "context"

// Response is a minimal HTTP response contract. Bodies are buffered by the
// transport, so reading Body never blocks.
type Response interface {
	Body() []byte
	StatusCode() int
	Status() string
	IsSuccess() bool
}

// Client abstracts HTTP calls so callers can inject mocks or different transports.
type Client interface {
	Get(ctx context.Context, url string, headers map[string]string) (Response, error)
	Post(ctx context.Context, url string, body []byte, headers map[string]string) (Response, error)
}
