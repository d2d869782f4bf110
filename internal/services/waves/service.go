// Package waves implements the operator-driven wave progression
// engines: bulk promotion of pending members to the next wave and bulk
// removal of never-assigned fallback signups. Both are gated by a
// typed-back confirmation phrase before any data is touched.
package waves

import (
	"context"
	"errors"
	"strconv"

	"github.com/launchwave/launchwave/internal/audit"
	"github.com/launchwave/launchwave/internal/domain/signup"
	"github.com/launchwave/launchwave/internal/metrics"
	"github.com/launchwave/launchwave/internal/storage"
	"github.com/launchwave/launchwave/pkg/logger"
)

var (
	// ErrConfirmationMismatch is returned when the typed confirmation
	// phrase does not exactly match the configured one.
	ErrConfirmationMismatch = errors.New("confirmation phrase mismatch")

	// ErrInvalidLimit is returned for batch limits outside the
	// configured range.
	ErrInvalidLimit = errors.New("limit out of range")

	// ErrInvalidWave is returned for non-positive wave numbers.
	ErrInvalidWave = errors.New("wave number must be positive")

	// ErrRateLimited is returned when the rate-limit collaborator
	// blocks a bulk removal.
	ErrRateLimited = errors.New("bulk removal rate limited")
)

// RateLimiter is the external collaborator consulted before bulk
// removal executes. The engine only honors its signal.
type RateLimiter interface {
	Allow() bool
}

// Options carries the batch limits and confirmation phrases.
type Options struct {
	PromoteLimitMax int
	RemoveLimitMax  int
	PromotePhrase   string
	RemovePhrase    string
}

// Service is the wave progression engine.
type Service struct {
	store   storage.WaveStore
	sink    audit.Sink
	limiter RateLimiter
	opts    Options
	log     *logger.Logger
}

// New constructs a waves service. A nil limiter disables the removal
// rate limit.
func New(store storage.WaveStore, sink audit.Sink, limiter RateLimiter, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("waves")
	}
	if opts.PromoteLimitMax <= 0 {
		opts.PromoteLimitMax = 500
	}
	if opts.RemoveLimitMax <= 0 {
		opts.RemoveLimitMax = 100
	}
	return &Service{store: store, sink: sink, limiter: limiter, opts: opts, log: log}
}

// Promote moves up to limit pending signups from fromWave to the next
// wave, earliest first, flipping them to active. Retrying after a
// partial external failure only ever acts on signups still pending in
// fromWave, so no member is promoted twice. Returns how many moved;
// fewer candidates than limit is not an error.
func (s *Service) Promote(ctx context.Context, actor string, fromWave, limit int, phrase string) (int, error) {
	if phrase != s.opts.PromotePhrase {
		return 0, ErrConfirmationMismatch
	}
	if fromWave < 1 {
		return 0, ErrInvalidWave
	}
	if limit < 1 || limit > s.opts.PromoteLimitMax {
		return 0, ErrInvalidLimit
	}

	pending, err := s.store.ListPendingByWave(ctx, fromWave, limit)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	ids := make([]string, len(pending))
	for i, row := range pending {
		ids[i] = row.ID
	}

	toWave := fromWave + 1
	moved, err := s.store.TransitionWave(ctx, ids, fromWave, toWave)
	if err != nil {
		return 0, err
	}

	s.appendAudit(ctx, actor, "wave.promote", map[string]string{
		"from_wave":  strconv.Itoa(fromWave),
		"to_wave":    strconv.Itoa(toWave),
		"batch_size": strconv.Itoa(moved),
	})
	metrics.RecordPromoted(moved)

	s.log.WithField("from_wave", fromWave).
		WithField("to_wave", toWave).
		WithField("promoted", moved).
		WithField("actor", actor).
		Info("wave promotion executed")

	return moved, nil
}

// RemoveFallback deletes up to limit signups that were never admitted
// to any pool or wave, earliest first. One audit entry per batch.
func (s *Service) RemoveFallback(ctx context.Context, actor string, limit int, phrase string) (int, error) {
	if s.limiter != nil && !s.limiter.Allow() {
		return 0, ErrRateLimited
	}
	if phrase != s.opts.RemovePhrase {
		return 0, ErrConfirmationMismatch
	}
	if limit < 1 || limit > s.opts.RemoveLimitMax {
		return 0, ErrInvalidLimit
	}

	deleted, err := s.store.DeleteUnassigned(ctx, limit)
	if err != nil {
		return 0, err
	}

	s.appendAudit(ctx, actor, "fallback.remove", map[string]string{
		"batch_size": strconv.Itoa(deleted),
	})
	metrics.RecordRemoved(deleted)

	s.log.WithField("deleted", deleted).
		WithField("actor", actor).
		Info("fallback removal executed")

	return deleted, nil
}

// Status summarizes one wave. Read-only, no side effects.
func (s *Service) Status(ctx context.Context, wave int) (signup.WaveStatus, error) {
	if wave < 1 {
		return signup.WaveStatus{}, ErrInvalidWave
	}
	return s.store.GetWaveStatus(ctx, wave)
}

func (s *Service) appendAudit(ctx context.Context, actor, action string, metadata map[string]string) {
	if s.sink == nil {
		return
	}
	entry := audit.Entry{Actor: actor, Action: action, Target: "signups", Metadata: metadata}
	if err := s.sink.Append(ctx, entry); err != nil {
		s.log.WithError(err).Warn("audit append failed")
	}
}
