// Package storage declares the persistence contracts for the admission
// core. The capacity check-and-increment and the signup insert commit
// as one unit; see CapacityStore.
package storage

import (
	"context"
	"errors"

	"github.com/launchwave/launchwave/internal/domain/signup"
)

// ErrNotFound is returned when a record does not exist.
var ErrNotFound = errors.New("record not found")

// ErrDuplicateSignup is returned when a signup already exists for the
// normalized email. A second signup is rejected, never merged.
var ErrDuplicateSignup = errors.New("signup already exists for this email")

// BuildFunc finalizes the signup row once the reservation outcomes are
// known. It runs inside the same transaction that committed the
// reservations; granted reports, per requested pool, whether a slot
// was secured.
type BuildFunc func(granted map[signup.PoolName]bool) signup.Signup

// CapacityStore performs the one critical section of the system:
// conditionally incrementing pool occupancy counters and persisting
// the resulting signup as a single atomic step. A denied reservation
// is a normal negative result, not an error; either the signup is
// committed with every granted slot counted, or nothing is.
type CapacityStore interface {
	ReserveAndCreate(ctx context.Context, wanted []signup.PoolName, build BuildFunc) (signup.Signup, error)
	ListPools(ctx context.Context) ([]PoolStatus, error)
}

// PoolStatus reports a pool's cap and current occupancy.
type PoolStatus struct {
	Name      signup.PoolName `json:"name"`
	Cap       int             `json:"cap"`
	Occupancy int             `json:"occupancy"`
}

// SignupStore persists signup records.
type SignupStore interface {
	CreateSignup(ctx context.Context, s signup.Signup) (signup.Signup, error)
	GetSignup(ctx context.Context, id string) (signup.Signup, error)
	GetSignupByEmail(ctx context.Context, email string) (signup.Signup, error)
}

// WaveStore queries and mutates wave membership. TransitionWave and
// DeleteUnassigned apply their whole batch or nothing, and their
// predicates exclude rows that have already moved, so retries never
// double-count.
type WaveStore interface {
	// ListPendingByWave returns up to limit pending signups in the
	// given wave, earliest created first.
	ListPendingByWave(ctx context.Context, wave, limit int) ([]signup.Signup, error)

	// TransitionWave moves the ids still in (fromWave, pending) to
	// toWave with status active, stamping PromotedAt. Returns how many
	// rows actually moved.
	TransitionWave(ctx context.Context, ids []string, fromWave, toWave int) (int, error)

	// DeleteUnassigned removes up to limit signups that hold no wave
	// assignment and no pool or tester badge, earliest created first.
	// Returns the number of rows deleted.
	DeleteUnassigned(ctx context.Context, limit int) (int, error)

	// GetWaveStatus summarizes one wave. Read-only.
	GetWaveStatus(ctx context.Context, wave int) (signup.WaveStatus, error)
}
