// Package storage provides local DB/cache abstraction.
package storage

import (
	"fmt"
	"strings"
	"time"
)

// Store tracks digests of delivered call payloads.
type Store interface {
	Close() error
	SeenDelivery(digest string) (bool, error)
	MarkDelivery(digest string) error
	Len() (int, error)
}

// Options controls retention characteristics for concrete store implementations.
type Options struct {
	DeliveryTTL     time.Duration
	CleanupInterval time.Duration
}

const (
	defaultDeliveryTTL     = 24 * time.Hour
	defaultCleanupInterval = 12 * time.Hour
)

// NewStore creates the configured storage backend.
func NewStore(typ, path string, opts Options) (Store, error) {
	typ = strings.TrimSpace(strings.ToLower(typ))
	opts = normalizeOptions(opts)

	switch typ {
	case "", "none", "disabled":
		return noopStore{}, nil
	case "bbolt":
		if strings.TrimSpace(path) == "" {
			return nil, fmt.Errorf("bbolt storage requires a path")
		}
		return openBolt(path, opts)
	default:
		return nil, fmt.Errorf("unsupported storage type %q", typ)
	}
}

func normalizeOptions(opts Options) Options {
	if opts.DeliveryTTL <= 0 {
		opts.DeliveryTTL = defaultDeliveryTTL
	}
	if opts.CleanupInterval <= 0 {
		opts.CleanupInterval = defaultCleanupInterval
	}
	return opts
}

type noopStore struct{}

func (noopStore) Close() error                      { return nil }
func (noopStore) SeenDelivery(string) (bool, error) { return false, nil }
func (noopStore) MarkDelivery(string) error         { return nil }
func (noopStore) Len() (int, error)                 { return 0, nil }
