// Package admission decides, under the fixed pool caps, whether a new
// signup is admitted into a capacity pool or staged into wave 1 as
// fallback.
package admission

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/launchwave/launchwave/internal/audit"
	"github.com/launchwave/launchwave/internal/domain/signup"
	"github.com/launchwave/launchwave/internal/metrics"
	"github.com/launchwave/launchwave/internal/storage"
	"github.com/launchwave/launchwave/pkg/logger"
)

// ErrInvalidEmail is returned for malformed identities, before any
// counter is touched.
var ErrInvalidEmail = errors.New("invalid email")

// Admission outcomes.
const (
	StatusAdmitted = "admitted"
	StatusFallback = "fallback"
)

// FallbackWave is the wave new fallback signups are staged into.
const FallbackWave = 1

// Result summarizes one admission decision.
type Result struct {
	Signup        signup.Signup     `json:"signup"`
	Status        string            `json:"status"` // admitted or fallback
	Wave          int               `json:"wave,omitempty"`
	PoolBadges    []signup.PoolName `json:"pool_badges"`
	TesterGranted bool              `json:"tester_granted"`
}

// Store is the persistence surface the controller needs.
type Store interface {
	storage.CapacityStore
	storage.SignupStore
}

// Service is the admission controller.
type Service struct {
	store Store
	sink  audit.Sink
	log   *logger.Logger
}

// New constructs an admission service.
func New(store Store, sink audit.Sink, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("admission")
	}
	return &Service{store: store, sink: sink, log: log}
}

// Admit processes one signup request. The founding pool reservation and
// the independent tester reservation commit atomically with the signup
// row; a denied reservation routes to fallback (never an error). A
// tester denial silently clears the stored flag and is surfaced only
// through Result.TesterGranted - kept as-is pending product review.
func (s *Service) Admit(ctx context.Context, email string, isCreator, wantsTester bool) (Result, error) {
	email = signup.NormalizeEmail(email)
	if err := signup.ValidateEmail(email); err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrInvalidEmail, err)
	}

	// Friendly pre-check; the unique constraint inside ReserveAndCreate
	// remains the authority under concurrency.
	if _, err := s.store.GetSignupByEmail(ctx, email); err == nil {
		return Result{}, storage.ErrDuplicateSignup
	} else if !errors.Is(err, storage.ErrNotFound) {
		return Result{}, err
	}

	founding := signup.FoundingPoolFor(isCreator)
	tester := signup.TesterPoolFor(isCreator)

	wanted := []signup.PoolName{founding}
	if wantsTester {
		wanted = append(wanted, tester)
	}

	created, err := s.store.ReserveAndCreate(ctx, wanted, func(granted map[signup.PoolName]bool) signup.Signup {
		row := signup.Signup{
			Email:           email,
			IsCreator:       isCreator,
			TesterRequested: wantsTester,
		}
		if granted[founding] {
			// Pool members are active immediately, not wave-gated.
			row.Pool = founding
			row.Status = signup.StatusActive
		} else {
			row.Wave = FallbackWave
			row.Status = signup.StatusPending
		}
		if wantsTester && granted[tester] {
			row.TesterGranted = true
			row.TesterPool = tester
		}
		return row
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Signup:        created,
		Status:        StatusAdmitted,
		Wave:          created.Wave,
		PoolBadges:    created.Badges(),
		TesterGranted: created.TesterGranted,
	}
	if created.Pool == "" {
		result.Status = StatusFallback
	}

	s.appendAudit(ctx, created)

	metrics.RecordAdmission(result.Status)
	if wantsTester && !created.TesterGranted {
		metrics.RecordTesterDenied()
	}

	s.log.WithField("email", email).
		WithField("status", result.Status).
		WithField("pool", string(created.Pool)).
		WithField("tester_granted", created.TesterGranted).
		Info("signup processed")

	return result, nil
}

// GetByEmail looks up a signup by its normalized email.
func (s *Service) GetByEmail(ctx context.Context, email string) (signup.Signup, error) {
	return s.store.GetSignupByEmail(ctx, signup.NormalizeEmail(email))
}

// Pools reports current pool occupancy.
func (s *Service) Pools(ctx context.Context) ([]storage.PoolStatus, error) {
	return s.store.ListPools(ctx)
}

func (s *Service) appendAudit(ctx context.Context, created signup.Signup) {
	if s.sink == nil {
		return
	}
	action := "signup.fallback"
	if created.Pool != "" {
		action = "signup.admitted"
	}
	entry := audit.Entry{
		Actor:  created.Email,
		Action: action,
		Target: created.ID,
		Metadata: map[string]string{
			"pool":             string(created.Pool),
			"tester_pool":      string(created.TesterPool),
			"wave":             strconv.Itoa(created.Wave),
			"tester_requested": strconv.FormatBool(created.TesterRequested),
			"tester_granted":   strconv.FormatBool(created.TesterGranted),
		},
	}
	// Best-effort: audit failures never fail the admission.
	if err := s.sink.Append(ctx, entry); err != nil {
		s.log.WithError(err).Warn("audit append failed")
	}
}
