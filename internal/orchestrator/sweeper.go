package orchestrator

import (
	"context"
	"sort"
	"time"

	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/store"
)

// sweepLoop is the retention sweeper: on every tick it evicts stale
// validation verdicts, migrates old terminal scans to history, trims
// history to capacity and persists a snapshot.
func (o *Orchestrator) sweepLoop(ctx context.Context) {
	defer close(o.sweepDone)

	ticker := time.NewTicker(o.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.sweepOnce(ctx)
		}
	}
}

// sweepOnce runs one sweep pass. Exposed to tests through the _test
// files in this package.
func (o *Orchestrator) sweepOnce(ctx context.Context) {
	if o.validator != nil {
		if evicted := o.validator.EvictOlderThan(o.cfg.ValidationMaxAge); evicted > 0 {
			o.logger.Debug("evicted stale validation verdicts",
				logging.Field{Key: "count", Value: evicted})
		}
	}

	cutoff := time.Now().Add(-o.cfg.RetentionWindow)

	o.mu.Lock()
	var migrate []string
	for id, sc := range o.scans {
		if sc.Status.IsTerminal() && sc.LastUpdated.Before(cutoff) {
			migrate = append(migrate, id)
		}
	}
	o.mu.Unlock()

	for _, id := range migrate {
		o.removeScan(id, true)
	}

	o.mu.Lock()
	trimmed := o.trimHistoryLocked()
	o.mu.Unlock()

	if len(migrate) > 0 || trimmed > 0 {
		o.logger.Info("retention sweep",
			logging.Field{Key: "migrated", Value: len(migrate)},
			logging.Field{Key: "evicted", Value: trimmed})
	}

	if o.store != nil {
		if err := o.persist(ctx); err != nil {
			o.logger.Warn("persisting snapshot", logging.Field{Key: "error", Value: err.Error()})
		}
	}
}

// trimHistoryLocked evicts oldest-created entries beyond capacity.
// Caller holds o.mu.
func (o *Orchestrator) trimHistoryLocked() int {
	capacity := o.cfg.HistoryCapacity
	if capacity <= 0 || len(o.history) <= capacity {
		return 0
	}
	sort.Slice(o.history, func(i, j int) bool {
		return o.history[i].CreatedAt.Before(o.history[j].CreatedAt)
	})
	evicted := len(o.history) - capacity
	o.history = append(o.history[:0], o.history[evicted:]...)
	return evicted
}

// persist saves the bounded state snapshot.
func (o *Orchestrator) persist(ctx context.Context) error {
	o.mu.Lock()
	snap := &store.Snapshot{
		SavedAt:     time.Now(),
		Active:      make([]*model.Scan, 0, len(o.scans)),
		History:     make([]*model.Scan, 0, len(o.history)),
		Preferences: o.prefs,
	}
	for _, sc := range o.scans {
		snap.Active = append(snap.Active, sc.Clone())
	}
	for _, sc := range o.history {
		snap.History = append(snap.History, sc.Clone())
	}
	o.mu.Unlock()

	return o.store.Save(ctx, snap)
}
