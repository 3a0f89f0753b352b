// Package orchestrator owns the collection of in-flight and historical
// scans, drives each through its lifecycle, polls for remote updates,
// and maintains aggregate statistics with bounded retention.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
	"github.com/Kelll31/aptscan/internal/store"
	"github.com/Kelll31/aptscan/internal/validator"
)

// ErrScanNotFound is returned for operations on unknown scan IDs.
var ErrScanNotFound = errors.New("scan not found")

// Orchestrator is the single mutation point for scan state. One
// instance per client session; all other components only read.
type Orchestrator struct {
	cfg       *Config
	client    *client.Client
	validator *validator.Validator
	store     *store.Store // nil disables persistence
	logger    logging.Logger

	mu          sync.Mutex
	scans       map[string]*model.Scan
	history     []*model.Scan
	pollCancels map[string]context.CancelFunc
	prefs       store.Preferences

	bus *eventBus

	runCtx    context.Context
	runCancel context.CancelFunc
	sweepDone chan struct{}
	started   bool
}

// New wires the orchestrator. st may be nil to run without
// persistence. Call Start to restore state and arm the sweeper, Close
// to tear everything down.
func New(cfg *Config, c *client.Client, v *validator.Validator, st *store.Store, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("orchestrator")
	}
	return &Orchestrator{
		cfg:         cfg,
		client:      c,
		validator:   v,
		store:       st,
		logger:      logger.With(logging.Field{Key: "component", Value: "orchestrator"}),
		scans:       make(map[string]*model.Scan),
		history:     make([]*model.Scan, 0),
		pollCancels: make(map[string]context.CancelFunc),
		bus:         newEventBus(),
	}
}

// Start restores the persisted snapshot (if any), re-arms poll timers
// for scans that were active, and starts the retention sweeper.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	if o.started {
		o.mu.Unlock()
		return nil
	}
	o.runCtx, o.runCancel = context.WithCancel(ctx)
	o.started = true
	o.mu.Unlock()

	if o.store != nil {
		snap, err := o.store.Load(ctx)
		switch {
		case errors.Is(err, store.ErrNoSnapshot):
			// first run
		case err != nil:
			o.logger.Warn("restoring state failed, starting empty",
				logging.Field{Key: "error", Value: err.Error()})
		default:
			o.restore(snap)
		}
	}

	o.sweepDone = make(chan struct{})
	go o.sweepLoop(o.runCtx)
	return nil
}

func (o *Orchestrator) restore(snap *store.Snapshot) {
	o.mu.Lock()
	o.prefs = snap.Preferences
	o.history = append(o.history[:0], snap.History...)
	var reArm []string
	for _, sc := range snap.Active {
		if sc == nil || sc.ID == "" {
			continue
		}
		o.scans[sc.ID] = sc
		if sc.Status.IsActive() {
			reArm = append(reArm, sc.ID)
		}
	}
	o.mu.Unlock()

	for _, id := range reArm {
		o.armPoll(id)
	}
	o.logger.Info("restored state snapshot",
		logging.Field{Key: "active", Value: len(snap.Active)},
		logging.Field{Key: "history", Value: len(snap.History)},
		logging.Field{Key: "repolled", Value: len(reArm)})
}

// Close disarms every timer, cancels in-flight requests, persists a
// final snapshot and closes subscriptions.
func (o *Orchestrator) Close() error {
	o.mu.Lock()
	if !o.started {
		o.mu.Unlock()
		return nil
	}
	o.started = false
	cancel := o.runCancel
	done := o.sweepDone
	for id, c := range o.pollCancels {
		c()
		delete(o.pollCancels, id)
	}
	o.mu.Unlock()

	cancel()
	if done != nil {
		<-done
	}
	if o.client != nil {
		o.client.CancelAll()
	}
	if o.store != nil {
		ctx, cancelSave := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancelSave()
		if err := o.persist(ctx); err != nil {
			o.logger.Warn("persisting final snapshot", logging.Field{Key: "error", Value: err.Error()})
		}
	}
	o.bus.closeAll()
	return nil
}

// Subscribe registers an observer of scan-change events. The returned
// cancel func must be called when done.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.bus.subscribe(16)
}

// CreateRequest carries the inputs of Create.
type CreateRequest struct {
	Target    string
	Type      string
	Profile   string
	Overrides model.ScanSettings
	Options   model.ScanOptions
	Tags      []string
	Metadata  map[string]string
	CreatedBy string
}

// Create produces a new idle scan from a profile plus overrides and
// registers it in the active collection.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*model.Scan, error) {
	target := strings.TrimSpace(req.Target)
	if target == "" {
		return nil, &model.ValidationError{Field: "target", Message: "must not be empty"}
	}

	profileName := req.Profile
	if profileName == "" {
		o.mu.Lock()
		profileName = o.prefs.DefaultProfile
		o.mu.Unlock()
	}
	if profileName == "" {
		profileName = "balanced"
	}
	profile, ok := o.cfg.Profiles[profileName]
	if !ok {
		return nil, &model.ValidationError{Field: "profile", Message: fmt.Sprintf("unknown profile %q", profileName)}
	}

	var metadata map[string]string
	if req.Metadata != nil {
		metadata = make(map[string]string, len(req.Metadata))
		for k, v := range req.Metadata {
			metadata[k] = v
		}
	}

	now := time.Now()
	scan := &model.Scan{
		ID:          uuid.New().String(),
		Target:      target,
		Type:        req.Type,
		Profile:     profileName,
		Tags:        append([]string(nil), req.Tags...),
		Metadata:    metadata,
		CreatedBy:   req.CreatedBy,
		Status:      model.StatusIdle,
		CreatedAt:   now,
		LastUpdated: now,
		Settings:    model.MergeSettings(profile.Settings, req.Overrides),
		Options:     req.Options,
	}

	o.mu.Lock()
	o.scans[scan.ID] = scan
	cp := scan.Clone()
	o.mu.Unlock()

	o.logger.Info("created scan",
		logging.Field{Key: "scan_id", Value: scan.ID},
		logging.Field{Key: "target", Value: target},
		logging.Field{Key: "profile", Value: profileName})
	o.bus.publish(Event{Type: EventCreated, Scan: cp})
	return cp, nil
}

// Start drives an idle scan through starting (and validating, when
// requested) into running, then arms its poll timer. Any failure moves
// the scan to failed with a diagnostic and is re-raised to the caller.
func (o *Orchestrator) StartScan(ctx context.Context, id string) error {
	if err := o.transition(id, "start", model.StatusStarting, model.StatusIdle); err != nil {
		return err
	}

	sc, err := o.Get(id)
	if err != nil {
		return err
	}

	if sc.Options.ValidateTarget {
		if err := o.transition(id, "validate", model.StatusValidating, model.StatusStarting); err != nil {
			return err
		}
		verdict, err := o.validator.Validate(ctx, sc.Target, false)
		if err != nil {
			o.failScan(id, "validation", err)
			return err
		}
		if !verdict.Valid {
			if !sc.Options.Force {
				vErr := &model.ValidationError{Field: "target", Message: verdict.Message}
				o.failScan(id, "validation", vErr)
				return vErr
			}
			o.appendWarning(id, "validation", verdict.Message)
		}
	}

	resp, err := o.client.Post(ctx, "/scan/start", model.StartScanRequest{
		ScanID:   sc.ID,
		Target:   sc.Target,
		Type:     sc.Type,
		Profile:  sc.Profile,
		Settings: sc.Settings,
	})
	if err != nil {
		o.failScan(id, "start", err)
		return err
	}
	var started model.StartScanResponse
	if err := resp.JSON(&started); err != nil {
		o.failScan(id, "start", err)
		return err
	}

	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	// Re-check: a teardown racing this start must win.
	if scan.Status != model.StatusStarting && scan.Status != model.StatusValidating {
		status := scan.Status
		o.mu.Unlock()
		return &model.PreconditionError{Op: "start", ScanID: id, Status: status}
	}
	scan.Status = model.StatusRunning
	scan.StartedAt = &now
	scan.LastUpdated = now
	if started.EstimatedDuration > 0 {
		est := now.Add(time.Duration(started.EstimatedDuration) * time.Second)
		scan.EstimatedEnd = &est
	}
	cp := scan.Clone()
	o.mu.Unlock()

	o.armPoll(id)
	o.logger.Info("scan running",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "remote_id", Value: started.ScanID})
	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	return nil
}

// Pause suspends a running scan. The remote call goes first; local
// state flips only on success.
func (o *Orchestrator) Pause(ctx context.Context, id string) error {
	if err := o.requireStatus(id, "pause", model.StatusRunning); err != nil {
		return err
	}
	if _, err := o.client.Post(ctx, "/scan/pause/"+id, nil); err != nil {
		o.recordError(id, "pause", err)
		return err
	}
	return o.transition(id, "pause", model.StatusPaused, model.StatusRunning)
}

// Resume continues a paused scan.
func (o *Orchestrator) Resume(ctx context.Context, id string) error {
	if err := o.requireStatus(id, "resume", model.StatusPaused); err != nil {
		return err
	}
	if _, err := o.client.Post(ctx, "/scan/resume/"+id, nil); err != nil {
		o.recordError(id, "resume", err)
		return err
	}
	return o.transition(id, "resume", model.StatusRunning, model.StatusPaused)
}

// Stop cancels a running or paused scan. The scan sits in stopping
// while the remote call is in flight; on remote failure it rolls back
// to its prior state so the caller can retry.
func (o *Orchestrator) Stop(ctx context.Context, id string) error {
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return errNotFound(id)
	}
	prior := scan.Status
	if prior != model.StatusRunning && prior != model.StatusPaused {
		o.mu.Unlock()
		return &model.PreconditionError{Op: "stop", ScanID: id, Status: prior}
	}
	scan.Status = model.StatusStopping
	scan.LastUpdated = time.Now()
	cp := scan.Clone()
	o.mu.Unlock()
	o.bus.publish(Event{Type: EventUpdated, Scan: cp})

	if _, err := o.client.Post(ctx, "/scan/stop/"+id, nil); err != nil {
		o.recordError(id, "stop", err)
		o.mu.Lock()
		if scan, ok := o.scans[id]; ok && scan.Status == model.StatusStopping {
			scan.Status = prior // the stop never reached the service
			scan.LastUpdated = time.Now()
		}
		o.mu.Unlock()
		return err
	}

	o.disarmPoll(id)

	now := time.Now()
	o.mu.Lock()
	scan, ok = o.scans[id]
	var done *model.Scan
	if ok && scan.Status == model.StatusStopping {
		scan.Status = model.StatusCancelled
		scan.CompletedAt = &now
		if scan.StartedAt != nil {
			scan.Duration = now.Sub(*scan.StartedAt)
		}
		scan.LastUpdated = now
		done = scan.Clone()
	}
	o.mu.Unlock()

	if done != nil {
		o.logger.Info("scan cancelled", logging.Field{Key: "scan_id", Value: id})
		o.bus.publish(Event{Type: EventUpdated, Scan: done})
	}
	return nil
}

// Delete stops an active scan, deletes it remotely and moves the local
// record to history.
func (o *Orchestrator) Delete(ctx context.Context, id string) error {
	sc, err := o.Get(id)
	if err != nil {
		return err
	}
	if sc.Status.IsActive() {
		if err := o.Stop(ctx, id); err != nil {
			return err
		}
	}
	if _, err := o.client.Delete(ctx, "/scan/"+id); err != nil {
		o.recordError(id, "delete", err)
		return err
	}
	o.removeScan(id, true)
	return nil
}

// Get returns a deep clone of one scan (active or historical).
func (o *Orchestrator) Get(id string) (*model.Scan, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if sc, ok := o.scans[id]; ok {
		return sc.Clone(), nil
	}
	for _, sc := range o.history {
		if sc.ID == id {
			return sc.Clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrScanNotFound, id)
}

// List returns clones of the active collection, optionally filtered by
// status.
func (o *Orchestrator) List(statuses ...model.ScanStatus) []*model.Scan {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]*model.Scan, 0, len(o.scans))
	for _, sc := range o.scans {
		if len(statuses) > 0 && !statusIn(sc.Status, statuses) {
			continue
		}
		out = append(out, sc.Clone())
	}
	return out
}

// History returns clones of up to limit historical scans, most recent
// first. limit <= 0 returns everything.
func (o *Orchestrator) History(limit int) []*model.Scan {
	o.mu.Lock()
	defer o.mu.Unlock()
	n := len(o.history)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*model.Scan, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, o.history[i].Clone())
	}
	return out
}

// Preferences returns the current session defaults.
func (o *Orchestrator) Preferences() store.Preferences {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.prefs
}

// SetPreferences replaces the session defaults; they persist with the
// next snapshot.
func (o *Orchestrator) SetPreferences(p store.Preferences) {
	o.mu.Lock()
	o.prefs = p
	o.mu.Unlock()
}

// --- internal helpers ---

// requireStatus verifies the scan is in one of the legal source states
// without mutating anything.
func (o *Orchestrator) requireStatus(id, op string, legal ...model.ScanStatus) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	scan, ok := o.scans[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	if !statusIn(scan.Status, legal) {
		return &model.PreconditionError{Op: op, ScanID: id, Status: scan.Status}
	}
	return nil
}

// transition applies to when the scan is currently in one of from;
// otherwise it fails with a PreconditionError and changes nothing.
func (o *Orchestrator) transition(id, op string, to model.ScanStatus, from ...model.ScanStatus) error {
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrScanNotFound, id)
	}
	if !statusIn(scan.Status, from) || !scan.Status.CanTransitionTo(to) {
		status := scan.Status
		o.mu.Unlock()
		return &model.PreconditionError{Op: op, ScanID: id, Status: status}
	}
	scan.Status = to
	scan.LastUpdated = time.Now()
	cp := scan.Clone()
	o.mu.Unlock()

	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	return nil
}

// failScan moves the scan to failed with a diagnostic error attached.
func (o *Orchestrator) failScan(id, diagType string, cause error) {
	o.disarmPoll(id)

	now := time.Now()
	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	scan.Errors = append(scan.Errors, model.Diagnostic{
		Type:      diagType,
		Message:   cause.Error(),
		Impact:    "fatal",
		Timestamp: now,
	})
	if scan.Status.CanTransitionTo(model.StatusFailed) {
		scan.Status = model.StatusFailed
		scan.CompletedAt = &now
		if scan.StartedAt != nil {
			scan.Duration = now.Sub(*scan.StartedAt)
		}
	}
	scan.LastUpdated = now
	cp := scan.Clone()
	o.mu.Unlock()

	o.logger.Warn("scan failed",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "type", Value: diagType},
		logging.Field{Key: "error", Value: cause.Error()})
	o.bus.publish(Event{Type: EventUpdated, Scan: cp})
}

// recordError appends a non-fatal diagnostic without changing status.
func (o *Orchestrator) recordError(id, diagType string, cause error) {
	o.mu.Lock()
	scan, ok := o.scans[id]
	if ok {
		scan.Errors = append(scan.Errors, model.Diagnostic{
			Type:      diagType,
			Message:   cause.Error(),
			Impact:    "recoverable",
			Timestamp: time.Now(),
		})
	}
	o.mu.Unlock()
}

func (o *Orchestrator) appendWarning(id, diagType, msg string) {
	o.mu.Lock()
	scan, ok := o.scans[id]
	var cp *model.Scan
	if ok {
		scan.Warnings = append(scan.Warnings, model.Diagnostic{
			Type:      diagType,
			Message:   msg,
			Impact:    "advisory",
			Timestamp: time.Now(),
		})
		cp = scan.Clone()
	}
	o.mu.Unlock()
	if cp != nil {
		o.bus.publish(Event{Type: EventUpdated, Scan: cp})
	}
}

// removeScan drops a scan from the active collection, optionally
// keeping it in history.
func (o *Orchestrator) removeScan(id string, keepHistory bool) {
	o.disarmPoll(id)

	o.mu.Lock()
	scan, ok := o.scans[id]
	if !ok {
		o.mu.Unlock()
		return
	}
	delete(o.scans, id)
	if keepHistory {
		o.history = append(o.history, scan)
		o.trimHistoryLocked()
	}
	cp := scan.Clone()
	o.mu.Unlock()

	o.logger.Info("removed scan",
		logging.Field{Key: "scan_id", Value: id},
		logging.Field{Key: "to_history", Value: keepHistory})
	o.bus.publish(Event{Type: EventRemoved, Scan: cp})
}

func errNotFound(id string) error {
	return fmt.Errorf("%w: %s", ErrScanNotFound, id)
}

func statusIn(s model.ScanStatus, set []model.ScanStatus) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
