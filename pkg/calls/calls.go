// Package calls contains the registry of JSON POST calls (YAML/JSON) the relay dispatches.
package calls

import (
	"crypto/sha1" //nolint:gosec // non-cryptographic digest
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// ModePost only checks the status of the response.
	ModePost = "post"
	// ModeResult decodes the answer and accepts an empty one.
	ModeResult = "result"
	// ModeRequired decodes the answer and fails on an empty one.
	ModeRequired = "required"

	defaultRequestDelayMs = 250
)

// Call describes one upstream endpoint and the document posted to it.
type Call struct {
	ID             string            `json:"id" yaml:"id"`
	Name           string            `json:"name" yaml:"name"`
	URL            string            `json:"url" yaml:"url"`
	Mode           string            `json:"mode" yaml:"mode"`
	Body           any               `json:"body" yaml:"body"`
	Headers        map[string]string `json:"headers" yaml:"headers"`
	RequestDelayMs int               `json:"request_delay_ms" yaml:"request_delay_ms"`
	Enabled        *bool             `json:"enabled" yaml:"enabled"`
}

type configFile struct {
	Calls []Call `json:"calls" yaml:"calls"`
}

// Registry holds the calls loaded from a config file.
type Registry struct {
	mu    sync.RWMutex
	calls []Call
	idx   map[string]Call
}

// NewRegistry validates calls and builds a registry from them.
func NewRegistry(calls []Call) (*Registry, error) {
	reg := &Registry{
		calls: make([]Call, len(calls)),
		idx:   make(map[string]Call, len(calls)),
	}
	for i := range calls {
		c := sanitizeCall(calls[i])
		if err := validateCall(c); err != nil {
			return nil, fmt.Errorf("calls[%d]: %w", i, err)
		}
		if _, exists := reg.idx[c.ID]; exists {
			return nil, fmt.Errorf("duplicate call id %q", c.ID)
		}
		reg.calls[i] = c
		reg.idx[c.ID] = c
	}
	return reg, nil
}

// LoadRegistry loads the call registry from a YAML/JSON file.
func LoadRegistry(path string) (*Registry, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("calls file path is empty")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open calls file: %w", err)
	}
	defer file.Close()

	raw, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("read calls file: %w", err)
	}

	cf, err := parseCalls(raw, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	if len(cf.Calls) == 0 {
		return nil, errors.New("calls file contains no calls entries")
	}
	return NewRegistry(cf.Calls)
}

func parseCalls(data []byte, ext string) (configFile, error) {
	ext = strings.ToLower(strings.TrimSpace(ext))

	decoders := []struct {
		name string
		ext  string
		fn   unmarshalFn
	}{
		{name: "yaml", ext: ".yaml", fn: yaml.Unmarshal},
		{name: "yaml", ext: ".yml", fn: yaml.Unmarshal},
		{name: "json", ext: ".json", fn: json.Unmarshal},
	}

	for _, d := range decoders {
		if ext != "" && ext != d.ext {
			continue
		}
		if cf, err := unmarshalCalls(d.name, data, d.fn); err == nil {
			return cf, nil
		}
	}

	return configFile{}, errors.New("calls file format not recognized (expected YAML or JSON)")
}

type unmarshalFn func([]byte, any) error

func unmarshalCalls(name string, data []byte, fn unmarshalFn) (configFile, error) {
	var cf configFile
	if err := fn(data, &cf); err != nil {
		return configFile{}, fmt.Errorf("decode %s calls: %w", name, err)
	}
	return cf, nil
}

func sanitizeCall(c Call) Call {
	c.ID = strings.TrimSpace(c.ID)
	c.Name = strings.TrimSpace(c.Name)
	c.URL = strings.TrimSpace(c.URL)
	c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	if c.Mode == "" {
		c.Mode = ModeResult
	}
	if c.Name == "" {
		c.Name = c.ID
	}
	if c.RequestDelayMs <= 0 {
		c.RequestDelayMs = defaultRequestDelayMs
	}
	if c.Enabled == nil {
		def := true
		c.Enabled = &def
	}
	c.Headers = sanitizeHeaders(c.Headers)
	c.Body = normalizeBody(c.Body)
	return c
}

// normalizeBody turns YAML's map[any]any style values into JSON-encodable ones.
func normalizeBody(v any) any {
	switch t := v.(type) {
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalizeBody(val)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeBody(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeBody(val)
		}
		return out
	default:
		return v
	}
}

func sanitizeHeaders(headers map[string]string) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func validateCall(c Call) error {
	if c.ID == "" {
		return errors.New("id is required")
	}
	if c.URL == "" {
		return fmt.Errorf("url is required for call %q", c.ID)
	}
	switch c.Mode {
	case ModePost, ModeResult, ModeRequired:
	default:
		return fmt.Errorf("unsupported mode %q for call %q", c.Mode, c.ID)
	}
	if _, err := json.Marshal(c.Body); err != nil {
		return fmt.Errorf("body of call %q is not JSON encodable: %w", c.ID, err)
	}
	return nil
}

// ByID returns the call with the given id.
func (r *Registry) ByID(id string) (Call, bool) {
	if r == nil {
		return Call{}, false
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return Call{}, false
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.idx[id]
	return c, ok
}

// All returns every configured call.
func (r *Registry) All() []Call {
	if r == nil {
		return nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Call, len(r.calls))
	copy(out, r.calls)
	return out
}

// Enabled returns calls that are enabled.
func (r *Registry) Enabled() []Call {
	all := r.All()
	if len(all) == 0 {
		return nil
	}
	out := make([]Call, 0, len(all))
	for _, c := range all {
		if c.EnabledValue() {
			out = append(out, c)
		}
	}
	return out
}

// EnabledValue returns enabled flag defaulting to true.
func (c Call) EnabledValue() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// RequestDelay returns the pause taken after dispatching the call.
func (c Call) RequestDelay() time.Duration {
	if c.RequestDelayMs <= 0 {
		return time.Duration(defaultRequestDelayMs) * time.Millisecond
	}
	return time.Duration(c.RequestDelayMs) * time.Millisecond
}

// Digest identifies the payload of a call. encoding/json sorts map keys, so
// equal bodies hash equally.
func (c Call) Digest() string {
	body, err := json.Marshal(c.Body)
	if err != nil {
		body = []byte(fmt.Sprintf("%v", c.Body))
	}
	h := sha1.New() //nolint:gosec // non-cryptographic digest
	h.Write([]byte(c.ID))
	h.Write([]byte{0})
	h.Write([]byte(c.URL))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
