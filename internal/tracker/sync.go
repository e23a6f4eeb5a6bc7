package tracker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"ct-go/internal/model"
)

// SyncResult describes the outcome of one SyncAll call.
type SyncResult struct {
	Synced     bool // false when the cache was fresh and the pass was skipped
	Families   int
	Characters int
	Variants   int
	SyncedAt   time.Time
}

// SyncOrchestrator coordinates catalog fetches into browse cache rebuilds.
// A pass is all-or-nothing: any transport error aborts it and leaves the
// previously committed cache untouched. Concurrent calls collapse into one
// in-flight pass; late callers observe its result instead of issuing
// duplicate network traffic. Failed passes are not retried automatically —
// retry is a distinct, explicit invocation.
type SyncOrchestrator struct {
	catalog   CatalogClient
	cache     BrowseCache
	staleness time.Duration
	logger    Logger
	clock     Clock

	group singleflight.Group

	mu       sync.Mutex
	lastRes  SyncResult
	lastErr  error
	observed bool
}

// NewSyncOrchestrator creates a SyncOrchestrator. staleness is how old the
// cache may be before a non-forced SyncAll actually fetches.
func NewSyncOrchestrator(catalog CatalogClient, cache BrowseCache, staleness time.Duration, logger Logger, clock Clock) *SyncOrchestrator {
	return &SyncOrchestrator{
		catalog:   catalog,
		cache:     cache,
		staleness: staleness,
		logger:    logger,
		clock:     clock,
	}
}

// SyncAll refreshes the browse cache from the remote catalog. When force is
// false and the cache is younger than the staleness interval, the pass is
// skipped and the result reports Synced=false.
//
// Cancellation is governed by the context of the caller that initiated the
// in-flight pass; callers that joined it cannot cancel it. A cancelled pass
// leaves the cache in its last-committed state.
func (o *SyncOrchestrator) SyncAll(ctx context.Context, force bool) (SyncResult, error) {
	v, err, _ := o.group.Do("sync-all", func() (any, error) {
		return o.syncOnce(ctx, force)
	})

	res, _ := v.(SyncResult)

	o.mu.Lock()
	o.lastRes = res
	o.lastErr = err
	o.observed = true
	o.mu.Unlock()

	return res, err
}

// LastOutcome returns the result and error of the most recent completed
// SyncAll. ok reports whether any pass has completed yet.
func (o *SyncOrchestrator) LastOutcome() (res SyncResult, ok bool, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastRes, o.observed, o.lastErr
}

func (o *SyncOrchestrator) syncOnce(ctx context.Context, force bool) (SyncResult, error) {
	if !force {
		last, err := o.cache.LastSyncAt(ctx)
		if err != nil {
			return SyncResult{}, fmt.Errorf("reading last sync time: %w", err)
		}
		if !last.IsZero() && o.clock.Now().Sub(last) < o.staleness {
			o.logger.Debug("catalog cache is fresh, skipping sync", "last_sync", last)
			return SyncResult{Synced: false, SyncedAt: last}, nil
		}
	}

	snap, err := o.fetchSnapshot(ctx)
	if err != nil {
		o.logger.Warn("catalog sync aborted, cache left untouched", "error", err)
		return SyncResult{}, err
	}

	syncedAt := o.clock.Now()
	if err := o.cache.ReplaceAll(ctx, *snap, syncedAt); err != nil {
		return SyncResult{}, fmt.Errorf("rebuilding browse cache: %w", err)
	}

	res := SyncResult{
		Synced:     true,
		Families:   len(snap.Families),
		Characters: len(snap.Characters),
		Variants:   len(snap.Variants),
		SyncedAt:   syncedAt,
	}
	o.logger.Info("catalog sync complete",
		"families", res.Families, "characters", res.Characters, "variants", res.Variants)
	return res, nil
}

// fetchSnapshot pulls the full family → character → variant listing set.
// Any error mid-fetch aborts the whole pass.
func (o *SyncOrchestrator) fetchSnapshot(ctx context.Context) (*model.CatalogSnapshot, error) {
	families, err := o.catalog.ListFamilies(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetching families: %w", err)
	}

	var snap model.CatalogSnapshot
	snap.Families = families

	for _, f := range families {
		characters, err := o.catalog.ListCharacters(ctx, f.UUID)
		if err != nil {
			return nil, fmt.Errorf("fetching characters for family %s: %w", f.UUID, err)
		}
		snap.Characters = append(snap.Characters, characters...)

		for _, c := range characters {
			variants, err := o.catalog.ListVariants(ctx, c.UUID)
			if err != nil {
				return nil, fmt.Errorf("fetching variants for character %s: %w", c.UUID, err)
			}
			snap.Variants = append(snap.Variants, variants...)
		}
	}

	return &snap, nil
}
