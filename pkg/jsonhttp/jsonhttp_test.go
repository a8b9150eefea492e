package jsonhttp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/stretchr/testify/require"
)

type stubResponse struct {
	status    int
	body      string
	bodyReads int
}

func (s *stubResponse) Body() []byte {
	s.bodyReads++
	return []byte(s.body)
}
func (s *stubResponse) StatusCode() int { return s.status }
func (s *stubResponse) Status() string  { return http.StatusText(s.status) }
func (s *stubResponse) IsSuccess() bool { return s.status >= 200 && s.status < 300 }

type stubClient struct {
	resp    *stubResponse
	err     error
	url     string
	body    []byte
	headers map[string]string
	posts   int
}

func (c *stubClient) Get(context.Context, string, map[string]string) (httpclient.Response, error) {
	return nil, errors.New("unexpected GET")
}

func (c *stubClient) Post(_ context.Context, url string, body []byte, headers map[string]string) (httpclient.Response, error) {
	c.posts++
	c.url = url
	c.body = body
	c.headers = headers
	if c.err != nil {
		return nil, c.err
	}
	return c.resp, nil
}

type credentials struct {
	User string `json:"user"`
	Pass string `json:"pass"`
}

type token struct {
	Token string `json:"token"`
}

type unencodable struct {
	Ch chan int
}

func TestEnsureSuccessLeavesBodyUntouched(t *testing.T) {
	for _, status := range []int{200, 201, 204, 299} {
		resp := &stubResponse{status: status, body: "ignored"}
		require.NoError(t, EnsureSuccess(resp))
		require.NoError(t, EnsureSuccess(resp))
		require.Zero(t, resp.bodyReads, "status %d", status)
	}
}

func TestEnsureSuccessReportsStatusAndBody(t *testing.T) {
	resp := &stubResponse{status: http.StatusBadGateway, body: "upstream down"}
	err := EnsureSuccess(resp)

	var reqErr *HTTPRequestFailedError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusBadGateway, reqErr.StatusCode)
	require.Equal(t, "upstream down", reqErr.Body)
	require.Contains(t, err.Error(), "502")
	require.Contains(t, err.Error(), "upstream down")
	require.Equal(t, 1, resp.bodyReads)
}

func TestPostJSONSendsSerializedBody(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusNoContent}}
	req := credentials{User: "a", Pass: "b"}

	ok, err := PostJSON(context.Background(), client, "https://api.example/login", req, WithHeader("X-Request-Id", "r1"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, 1, client.posts)
	require.Equal(t, "https://api.example/login", client.url)
	require.Equal(t, ContentTypeJSON, client.headers["Content-Type"])
	require.Equal(t, "r1", client.headers["X-Request-Id"])

	var sent credentials
	require.NoError(t, json.Unmarshal(client.body, &sent))
	require.Equal(t, req, sent)
	require.Zero(t, client.resp.bodyReads)
}

func TestPostJSONContentTypeCannotBeOverridden(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK}}
	_, err := PostJSON(context.Background(), client, "/x", 1, WithHeaders(map[string]string{"Content-Type": "text/plain"}))
	require.NoError(t, err)
	require.Equal(t, ContentTypeJSON, client.headers["Content-Type"])
}

func TestPostJSONLowerCaseContentTypeCannotBeOverridden(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK}}
	_, err := PostJSON(context.Background(), client, "/x", 1, WithHeader("content-type", "text/plain"))
	require.NoError(t, err)
	require.Len(t, client.headers, 1)
	require.Equal(t, ContentTypeJSON, client.headers["Content-Type"])
}

func TestContentTypeOverResty(t *testing.T) {
	var mu sync.Mutex
	seen := make(map[string]int)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		seen[r.Header.Get("Content-Type")]++
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := httpclient.NewRestyClient(5 * time.Second)
	for i := 0; i < 50; i++ {
		ok, err := PostJSON(context.Background(), client, srv.URL, i,
			WithHeader("content-type", "text/plain"),
			WithHeader("CONTENT-TYPE", "application/xml"))
		require.NoError(t, err)
		require.True(t, ok)
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, map[string]int{ContentTypeJSON: 50}, seen)
}

func TestAllVariantsFailOnErrorStatus(t *testing.T) {
	ctx := context.Background()
	calls := map[string]func(httpclient.Client) error{
		"post": func(c httpclient.Client) error {
			ok, err := PostJSON(ctx, c, "/login", credentials{})
			require.False(t, ok)
			return err
		},
		"result": func(c httpclient.Client) error {
			out, err := PostJSONForResult[token](ctx, c, "/login", credentials{})
			require.Nil(t, out)
			return err
		},
		"required": func(c httpclient.Client) error {
			_, err := PostJSONRequired[token](ctx, c, "/login", credentials{})
			return err
		},
	}

	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			resp := &stubResponse{status: http.StatusUnauthorized, body: "invalid credentials"}
			err := call(&stubClient{resp: resp})

			var reqErr *HTTPRequestFailedError
			require.ErrorAs(t, err, &reqErr)
			require.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
			require.Contains(t, err.Error(), "invalid credentials")
			require.Equal(t, 1, resp.bodyReads)

			code, ok := StatusCodeOf(err)
			require.True(t, ok)
			require.Equal(t, http.StatusUnauthorized, code)
		})
	}
}

func TestPostJSONForResultDecodesValue(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK, body: `{"token":"xyz"}`}}

	out, err := PostJSONForResult[token](context.Background(), client, "/login", credentials{User: "a", Pass: "b"})
	require.NoError(t, err)
	require.NotNil(t, out)
	require.Equal(t, token{Token: "xyz"}, *out)
	require.Equal(t, 1, client.resp.bodyReads)
}

func TestPostJSONRequiredDecodesValue(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK, body: `{"token":"xyz"}`}}

	out, err := PostJSONRequired[token](context.Background(), client, "/login", credentials{User: "a", Pass: "b"})
	require.NoError(t, err)
	require.Equal(t, token{Token: "xyz"}, out)
}

func TestNullAndEmptyBodies(t *testing.T) {
	for _, body := range []string{"", "   \n", "null", " null "} {
		client := &stubClient{resp: &stubResponse{status: http.StatusOK, body: body}}
		out, err := PostJSONForResult[token](context.Background(), client, "/x", credentials{})
		require.NoError(t, err, "body %q", body)
		require.Nil(t, out, "body %q", body)

		client = &stubClient{resp: &stubResponse{status: http.StatusOK, body: body}}
		_, err = PostJSONRequired[token](context.Background(), client, "/x", credentials{})
		require.ErrorIs(t, err, ErrEmptyResponse, "body %q", body)
		require.EqualError(t, err, "No response from server.")
	}
}

func TestScalarResultsAreNotTreatedAsAbsent(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK, body: "0"}}
	out, err := PostJSONRequired[int](context.Background(), client, "/count", struct{}{})
	require.NoError(t, err)
	require.Equal(t, 0, out)

	client = &stubClient{resp: &stubResponse{status: http.StatusOK, body: `{"a":[1,2]}`}}
	anyOut, err := PostJSONForResult[any](context.Background(), client, "/any", struct{}{})
	require.NoError(t, err)
	require.NotNil(t, anyOut)
	require.Equal(t, map[string]any{"a": []any{float64(1), float64(2)}}, *anyOut)
}

func TestMalformedJSONPropagatesDecoderError(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK, body: `{"token":`}}
	_, err := PostJSONForResult[token](context.Background(), client, "/login", credentials{})
	require.Error(t, err)

	var syntaxErr *json.SyntaxError
	require.ErrorAs(t, err, &syntaxErr)

	var typeErr *json.UnmarshalTypeError

	client = &stubClient{resp: &stubResponse{status: http.StatusOK, body: `{"token":5}`}}
	_, err = PostJSONRequired[token](context.Background(), client, "/login", credentials{})
	require.ErrorAs(t, err, &typeErr)
}

func TestMarshalErrorSkipsTransport(t *testing.T) {
	client := &stubClient{resp: &stubResponse{status: http.StatusOK}}
	ok, err := PostJSON(context.Background(), client, "/x", unencodable{Ch: make(chan int)})
	require.Error(t, err)
	require.False(t, ok)
	require.Zero(t, client.posts)
}

func TestTransportErrorIsWrapped(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := PostJSON(context.Background(), &stubClient{err: boom}, "/x", 1)
	require.ErrorIs(t, err, boom)

	_, err = PostJSON[int](context.Background(), nil, "/x", 1)
	require.Error(t, err)
}

func TestLoginRoundTripAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)
		require.Equal(t, ContentTypeJSON, r.Header.Get("Content-Type"))

		var in credentials
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		if in.User != "a" || in.Pass != "b" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte("invalid credentials"))
			return
		}
		w.Header().Set("Content-Type", ContentTypeJSON)
		_, _ = w.Write([]byte(`{"token":"xyz"}`))
	}))
	defer srv.Close()

	client := httpclient.NewRestyClient(2 * time.Second)
	ctx := context.Background()

	out, err := PostJSONForResult[token](ctx, client, srv.URL+"/login", credentials{User: "a", Pass: "b"})
	require.NoError(t, err)
	require.Equal(t, &token{Token: "xyz"}, out)

	_, err = PostJSONRequired[token](ctx, client, srv.URL+"/login", credentials{User: "a", Pass: "wrong"})
	var reqErr *HTTPRequestFailedError
	require.ErrorAs(t, err, &reqErr)
	require.Equal(t, http.StatusUnauthorized, reqErr.StatusCode)
	require.Equal(t, "invalid credentials", reqErr.Body)
}
