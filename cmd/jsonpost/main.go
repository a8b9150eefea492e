// Command jsonpost posts a JSON document to a URL and prints the decoded answer.
//
//	jsonpost --url https://auth.example/login --data '{"user":"a","pass":"b"}'
//	jsonpost --url https://svc.example/ping --mode post
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/samvad-hq/samvad-relay/pkg/calls"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/jsonhttp"
	"github.com/spf13/pflag"
)

type options struct {
	url      string
	data     string
	dataFile string
	mode     string
	headers  []string
	timeout  time.Duration
}

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "jsonpost: %v\n", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	var opts options
	fs := pflag.NewFlagSet("jsonpost", pflag.ContinueOnError)
	fs.StringVarP(&opts.url, "url", "u", "", "target URL")
	fs.StringVarP(&opts.data, "data", "d", "", "inline JSON request body")
	fs.StringVarP(&opts.dataFile, "data-file", "f", "", "file holding the JSON request body (- for stdin)")
	fs.StringVarP(&opts.mode, "mode", "m", calls.ModeResult, "post, result or required")
	fs.StringArrayVarP(&opts.headers, "header", "H", nil, "extra request header as key=value (repeatable)")
	fs.DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	opts.mode = strings.ToLower(strings.TrimSpace(opts.mode))
	if strings.TrimSpace(opts.url) == "" {
		return options{}, errors.New("--url is required")
	}
	if opts.data != "" && opts.dataFile != "" {
		return options{}, errors.New("--data and --data-file are mutually exclusive")
	}
	switch opts.mode {
	case calls.ModePost, calls.ModeResult, calls.ModeRequired:
	default:
		return options{}, fmt.Errorf("unsupported --mode %q", opts.mode)
	}
	return opts, nil
}

func parseHeaders(raw []string) (map[string]string, error) {
	headers := make(map[string]string, len(raw))
	for _, h := range raw {
		key, val, ok := strings.Cut(h, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --header %q (expected key=value)", h)
		}
		headers[key] = strings.TrimSpace(val)
	}
	return headers, nil
}

func readBody(opts options, stdin io.Reader) (json.RawMessage, error) {
	var raw []byte
	switch {
	case opts.data != "":
		raw = []byte(opts.data)
	case opts.dataFile == "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = b
	case opts.dataFile != "":
		b, err := os.ReadFile(opts.dataFile)
		if err != nil {
			return nil, fmt.Errorf("read data file: %w", err)
		}
		raw = b
	default:
		raw = []byte("{}")
	}
	if !json.Valid(raw) {
		return nil, errors.New("request body is not valid JSON")
	}
	return json.RawMessage(raw), nil
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	opts, err := parseFlags(args)
	if err != nil {
		return err
	}
	headers, err := parseHeaders(opts.headers)
	if err != nil {
		return err
	}
	body, err := readBody(opts, stdin)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	client := httpclient.NewRestyClient(opts.timeout)
	return post(ctx, client, opts, body, headers, stdout)
}

func post(ctx context.Context, client httpclient.Client, opts options, body json.RawMessage, headers map[string]string, stdout io.Writer) error {
	withHeaders := jsonhttp.WithHeaders(headers)

	var out any
	switch opts.mode {
	case calls.ModePost:
		ok, err := jsonhttp.PostJSON(ctx, client, opts.url, body, withHeaders)
		if err != nil {
			return err
		}
		out = ok
	case calls.ModeResult:
		res, err := jsonhttp.PostJSONForResult[json.RawMessage](ctx, client, opts.url, body, withHeaders)
		if err != nil {
			return err
		}
		if res != nil {
			out = *res
		}
	case calls.ModeRequired:
		res, err := jsonhttp.PostJSONRequired[json.RawMessage](ctx, client, opts.url, body, withHeaders)
		if err != nil {
			return err
		}
		out = res
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
