package app

import (
	"context"
	"fmt"
	"time"

	"github.com/samvad-hq/samvad-relay/internal/config"
	"github.com/samvad-hq/samvad-relay/internal/dispatcher"
	"github.com/samvad-hq/samvad-relay/internal/logger"
	"github.com/samvad-hq/samvad-relay/internal/storage"
	"github.com/samvad-hq/samvad-relay/pkg/calls"
	"github.com/samvad-hq/samvad-relay/pkg/httpclient"
	"github.com/samvad-hq/samvad-relay/pkg/publishers"
)

// Relay represents the relay runtime. It manages the dispatch loop,
// coordinating between the call registry, the dispatcher service, and
// publishers. It also handles storage initialization and cleanup.
type Relay struct {
	cfg              *config.Config
	callReg          *calls.Registry
	fanout           *publishers.Fanout
	dispatchService  *dispatcher.Service
	dispatchInterval time.Duration
	log              logger.Logger
	store            storage.Store
}

// NewRelay builds a relay runtime from config files.
func NewRelay(ctx context.Context, cfg *config.Config, log logger.Logger) (*Relay, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = &logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	callReg, err := calls.LoadRegistry(cfg.CallsFile)
	if err != nil {
		return nil, fmt.Errorf("load calls registry: %w", err)
	}
	callList := callReg.Enabled()
	callIDs := make([]string, 0, len(callList))
	for _, c := range callList {
		callIDs = append(callIDs, c.ID)
	}
	log.InfoObj("calls registry loaded", "calls_meta", map[string]any{
		"count": len(callIDs),
		"ids":   callIDs,
	})

	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabledPublishers := publisherReg.Enabled()
	if len(enabledPublishers) == 0 {
		return nil, fmt.Errorf("no publishers configured")
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabledPublishers, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}
	fanout := publishers.NewFanout(pubClients)
	publisherSummaries := make([]map[string]string, 0, len(enabledPublishers))
	for _, pubCfg := range enabledPublishers {
		publisherSummaries = append(publisherSummaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(publisherSummaries),
		"publishers": publisherSummaries,
	})

	storeOpts := storage.Options{
		DeliveryTTL:     cfg.StorageTTL,
		CleanupInterval: cfg.StorageCleanupInterval,
	}
	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath, storeOpts)
	if err != nil {
		_ = fanout.Close()
		return nil, fmt.Errorf("init storage: %w", err)
	}
	stored, _ := store.Len()
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type":                     cfg.StorageType,
		"path":                     cfg.BBoltPath,
		"delivery_ttl_seconds":     int(cfg.StorageTTL.Seconds()),
		"cleanup_interval_seconds": int(cfg.StorageCleanupInterval.Seconds()),
		"stored_deliveries":        stored,
	})

	client := httpclient.NewRestyClient(cfg.HTTPTimeout)
	dispatchService := dispatcher.NewService(client, fanout, log, store)

	return &Relay{
		cfg:              cfg,
		callReg:          callReg,
		fanout:           fanout,
		dispatchService:  dispatchService,
		dispatchInterval: cfg.DispatchInterval,
		log:              log,
		store:            store,
	}, nil
}

// Run starts the dispatch loop until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	if r == nil || r.dispatchService == nil {
		return fmt.Errorf("relay is not initialized")
	}
	defer r.close()

	callList := r.callReg.Enabled()
	if len(callList) == 0 {
		r.log.WarnObj("no enabled calls configured; relay idle", "calls_file", r.cfg.CallsFile)
		<-ctx.Done()
		return ctx.Err()
	}

	r.log.InfoObj("relay loop starting", "relay_state", map[string]any{
		"calls_count":       len(callList),
		"publishers_count":  r.fanout.Size(),
		"dispatch_interval": r.dispatchInterval.String(),
	})

	if err := r.runOnce(ctx, callList); err != nil {
		r.log.ErrorObj("initial dispatch failed", "error", err)
	}

	ticker := time.NewTicker(r.dispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.log.InfoObj("relay loop exiting", "reason", ctx.Err())
			return nil
		case <-ticker.C:
			if err := r.runOnce(ctx, callList); err != nil {
				r.log.ErrorObj("scheduled dispatch failed", "error", err)
			}
		}
	}
}

// runOnce performs a single dispatch pass across all calls.
func (r *Relay) runOnce(ctx context.Context, callList []calls.Call) error {
	start := time.Now()
	r.log.InfoObj("dispatch started", "dispatch_meta", map[string]any{
		"calls_count": len(callList),
		"started_at":  start.UTC(),
	})
	if err := r.dispatchService.Run(ctx, callList); err != nil {
		return err
	}
	r.log.InfoObj("dispatch completed", "dispatch_meta", map[string]any{
		"calls_count": len(callList),
		"elapsed_ms":  time.Since(start).Milliseconds(),
	})
	return nil
}

// close releases the storage backend and publisher clients, logging any errors encountered.
func (r *Relay) close() {
	if r == nil {
		return
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.log.ErrorObj("storage close failed", "error", err)
		}
	}
	if err := r.fanout.Close(); err != nil {
		r.log.ErrorObj("publisher close failed", "error", err)
	}
}
