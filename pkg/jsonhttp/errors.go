package jsonhttp

import (
	"errors"
	"fmt"
)

// ErrEmptyResponse is returned by PostJSONRequired when the server answered
// with an empty body or a JSON null.
var ErrEmptyResponse = errors.New("No response from server.") //nolint:staticcheck // message is part of the public contract

// HTTPRequestFailedError reports a non-2xx response together with the text
// the server sent back.
type HTTPRequestFailedError struct {
	StatusCode int
	Body       string
}

func (e *HTTPRequestFailedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("request failed with status code %d. response content: %s", e.StatusCode, e.Body)
}

// StatusCodeOf returns the status code carried by err, if any.
func StatusCodeOf(err error) (int, bool) {
	var reqErr *HTTPRequestFailedError
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode, true
	}
	return 0, false
}
