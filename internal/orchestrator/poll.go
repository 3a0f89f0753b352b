package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// armPoll starts the periodic status refresh for one scan. Arming an
// already-armed scan is a no-op.
func (o *Orchestrator) armPoll(id string) {
	o.mu.Lock()
	if _, exists := o.pollCancels[id]; exists {
		o.mu.Unlock()
		return
	}
	parent := o.runCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	o.pollCancels[id] = cancel
	o.mu.Unlock()

	go o.pollLoop(ctx, id)
}

// disarmPoll stops the poll timer for one scan if armed.
func (o *Orchestrator) disarmPoll(id string) {
	o.mu.Lock()
	cancel, ok := o.pollCancels[id]
	if ok {
		delete(o.pollCancels, id)
	}
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

// pollArmed reports whether the scan currently has a poll timer.
func (o *Orchestrator) pollArmed(id string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pollCancels[id]
	return ok
}

// pollLoop re-pulls remote status until the scan reaches a terminal
// state or vanishes. A failed tick doubles the delay; a sustained
// chain of failures disarms the timer entirely so a dead backend does
// not generate an unbounded retry storm.
func (o *Orchestrator) pollLoop(ctx context.Context, id string) {
	delay := o.cfg.PollInterval
	failures := 0

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		o.mu.Lock()
		scan, exists := o.scans[id]
		var status model.ScanStatus
		if exists {
			status = scan.Status
		}
		o.mu.Unlock()

		if !exists || status.IsTerminal() {
			o.disarmPoll(id)
			return
		}
		if status == model.StatusPaused {
			// Timer stays armed, cadence pauses.
			timer.Reset(o.cfg.PollInterval)
			continue
		}

		err := o.pollOnce(ctx, id)
		switch {
		case err == nil:
			failures = 0
			delay = o.cfg.PollInterval
		case errors.Is(err, context.Canceled):
			return
		case isNotFound(err):
			o.logger.Warn("scan vanished remotely, removing locally",
				logging.Field{Key: "scan_id", Value: id})
			o.removeScan(id, true)
			return
		default:
			failures++
			delay *= 2
			o.logger.Warn("poll tick failed",
				logging.Field{Key: "scan_id", Value: id},
				logging.Field{Key: "failures", Value: failures},
				logging.Field{Key: "error", Value: err.Error()})
			if failures >= o.cfg.MaxPollFailures {
				o.logger.Error("disarming poll timer after sustained failures",
					logging.Field{Key: "scan_id", Value: id},
					logging.Field{Key: "failures", Value: failures})
				o.recordError(id, "poll", err)
				o.disarmPoll(id)
				return
			}
		}

		timer.Reset(delay)
	}
}

// pollOnce fetches and applies one remote status snapshot.
func (o *Orchestrator) pollOnce(ctx context.Context, id string) error {
	// The poll loop owns its own backoff; one attempt per tick.
	resp, err := o.client.Request(ctx, "/scan/"+id+"/status", client.RequestOptions{
		NoCache:     true,
		Timeout:     o.cfg.PollInterval,
		MaxAttempts: 1,
	})
	if err != nil {
		return err
	}
	var wire model.ScanStatusResponse
	if err := resp.JSON(&wire); err != nil {
		return err
	}
	o.applyStatusResponse(id, wire)
	return nil
}

func isNotFound(err error) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
