package dataset

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"github.com/openvoices/insights-backend/internal/platform/logger"
	"github.com/openvoices/insights-backend/internal/taxonomy"
)

// ErrUnknownCampaign rejects lookups for campaigns never registered.
var ErrUnknownCampaign = errors.New("dataset: unknown campaign")

// Cache owns the current dataset of every registered campaign. Readers get
// lock-free snapshots through an atomic pointer; the reload path is the only
// writer and replaces a snapshot wholesale, so a query in flight keeps the
// dataset it started with.
type Cache struct {
	log     *logger.Logger
	loader  *Loader
	mu      sync.RWMutex
	entries map[string]*entry
	group   singleflight.Group
	loading atomic.Int32
}

type entry struct {
	source  Source
	tax     *taxonomy.Taxonomy
	current atomic.Pointer[Dataset]
}

func NewCache(log *logger.Logger, loader *Loader) *Cache {
	return &Cache{
		log:     log.With("service", "DatasetCache"),
		loader:  loader,
		entries: make(map[string]*entry),
	}
}

// Register makes a campaign known to the cache. The dataset itself is
// loaded lazily on first access.
func (c *Cache) Register(campaignCode string, src Source, tax *taxonomy.Taxonomy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := &entry{source: src, tax: tax}
	c.entries[campaignCode] = e
}

// Campaigns returns the registered campaign codes in stable order.
func (c *Cache) Campaigns() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	codes := make([]string, 0, len(c.entries))
	for code := range c.entries {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// Loading reports whether any load or reload is currently in flight.
func (c *Cache) Loading() bool {
	return c.loading.Load() > 0
}

func (c *Cache) entryFor(campaignCode string) (*entry, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[campaignCode]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCampaign, campaignCode)
	}
	return e, nil
}

// Get returns the campaign's current dataset, loading it on first access.
func (c *Cache) Get(ctx context.Context, campaignCode string) (*Dataset, error) {
	e, err := c.entryFor(campaignCode)
	if err != nil {
		return nil, err
	}
	if ds := e.current.Load(); ds != nil {
		return ds, nil
	}
	return c.Reload(ctx, campaignCode)
}

// Reload re-fetches the campaign source and atomically swaps the snapshot.
// Concurrent reload requests for the same campaign join the in-flight fetch
// instead of issuing a duplicate. A failed reload keeps the previous
// dataset in place; the error is returned and logged, never fatal to the
// serving path.
func (c *Cache) Reload(ctx context.Context, campaignCode string) (*Dataset, error) {
	e, err := c.entryFor(campaignCode)
	if err != nil {
		return nil, err
	}

	result, err, _ := c.group.Do(campaignCode, func() (interface{}, error) {
		c.loading.Add(1)
		defer c.loading.Add(-1)

		// A reload joined by many requests must survive any single
		// requester going away.
		loadCtx := context.WithoutCancel(ctx)
		ds, err := c.loader.Load(loadCtx, campaignCode, e.source, e.tax)
		if err != nil {
			return nil, err
		}
		e.current.Store(ds)
		return ds, nil
	})
	if err != nil {
		if stale := e.current.Load(); stale != nil {
			c.log.Error("Reload failed, serving previous dataset",
				"campaign", campaignCode, "error", err)
		} else {
			c.log.Error("Load failed and no previous dataset exists",
				"campaign", campaignCode, "error", err)
		}
		return nil, err
	}
	return result.(*Dataset), nil
}

// Evict removes a campaign's dataset from memory. Used when a campaign's
// configuration changes; the next Get reloads from source.
func (c *Cache) Evict(campaignCode string) {
	c.mu.RLock()
	e, ok := c.entries[campaignCode]
	c.mu.RUnlock()
	if !ok {
		return
	}
	e.current.Store(nil)
	c.log.Info("Evicted campaign dataset", "campaign", campaignCode)
}
