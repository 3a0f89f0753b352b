// Package validator is a thin cached layer over the request client that
// answers "is this scan target worth sending to the engine".
package validator

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/Kelll31/aptscan/internal/client"
	"github.com/Kelll31/aptscan/internal/logging"
	"github.com/Kelll31/aptscan/internal/model"
)

// DefaultTTL is how long a verdict stays authoritative.
const DefaultTTL = 5 * time.Minute

// Verdict is a cached validation result for one target.
type Verdict struct {
	model.ValidateTargetResponse
	Target      string    `json:"target"`
	ValidatedAt time.Time `json:"validated_at"`
}

// Validator validates scan targets and caches verdicts. Failure
// verdicts are cached too (with zero confidence) so repeated invalid
// input does not repeatedly hit the network.
type Validator struct {
	client *client.Client
	logger logging.Logger
	ttl    time.Duration

	mu    sync.Mutex
	cache map[string]*Verdict
}

// New creates a Validator. ttl <= 0 selects DefaultTTL.
func New(c *client.Client, ttl time.Duration, logger logging.Logger) *Validator {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = logging.NewStdoutLogger("validator")
	}
	return &Validator{
		client: c,
		logger: logger.With(logging.Field{Key: "component", Value: "validator"}),
		ttl:    ttl,
		cache:  make(map[string]*Verdict),
	}
}

// Validate returns the verdict for target. A cached verdict younger
// than the TTL is authoritative unless force is set.
func (v *Validator) Validate(ctx context.Context, target string, force bool) (*Verdict, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, &model.ValidationError{Field: "target", Message: "must not be empty"}
	}
	key := strings.ToLower(target)

	if !force {
		v.mu.Lock()
		cached, ok := v.cache[key]
		v.mu.Unlock()
		if ok && time.Since(cached.ValidatedAt) < v.ttl {
			cp := *cached
			return &cp, nil
		}
	}

	resp, err := v.client.Post(ctx, "/scan/validate-target", model.ValidateTargetRequest{Target: target})
	if err != nil {
		return nil, err
	}

	var wire model.ValidateTargetResponse
	if err := resp.JSON(&wire); err != nil {
		return nil, err
	}
	if !wire.Valid {
		wire.Confidence = 0
	}

	verdict := &Verdict{
		ValidateTargetResponse: wire,
		Target:                 target,
		ValidatedAt:            time.Now(),
	}

	v.mu.Lock()
	v.cache[key] = verdict
	v.mu.Unlock()

	v.logger.Debug("validated target",
		logging.Field{Key: "target", Value: target},
		logging.Field{Key: "valid", Value: wire.Valid})

	cp := *verdict
	return &cp, nil
}

// EvictOlderThan drops verdicts validated before now-age and reports
// how many were removed. The retention sweeper calls this.
func (v *Validator) EvictOlderThan(age time.Duration) int {
	cutoff := time.Now().Add(-age)
	v.mu.Lock()
	defer v.mu.Unlock()
	removed := 0
	for k, verdict := range v.cache {
		if verdict.ValidatedAt.Before(cutoff) {
			delete(v.cache, k)
			removed++
		}
	}
	return removed
}

// CacheSize reports the number of cached verdicts.
func (v *Validator) CacheSize() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.cache)
}
