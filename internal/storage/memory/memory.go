// Package memory provides an in-memory implementation of the storage
// interfaces. It is safe for concurrent use and is primarily intended
// for tests and local development. Every mutation runs under one lock,
// which gives the reserve-and-create path its required atomicity.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/launchwave/launchwave/internal/domain/signup"
	"github.com/launchwave/launchwave/internal/storage"
)

// Store is the in-memory store.
type Store struct {
	mu        sync.Mutex
	nextID    int64
	caps      map[signup.PoolName]int
	poolOrder []signup.PoolName
	occupancy map[signup.PoolName]int
	signups   map[string]signup.Signup
	byEmail   map[string]string
}

var _ storage.CapacityStore = (*Store)(nil)
var _ storage.SignupStore = (*Store)(nil)
var _ storage.WaveStore = (*Store)(nil)

// New creates an empty store with the default pool table.
func New() *Store {
	return NewWithPools(signup.DefaultPools())
}

// NewWithPools creates an empty store with a custom pool table.
func NewWithPools(pools []signup.Pool) *Store {
	s := &Store{
		nextID:    1,
		caps:      make(map[signup.PoolName]int, len(pools)),
		occupancy: make(map[signup.PoolName]int, len(pools)),
		signups:   make(map[string]signup.Signup),
		byEmail:   make(map[string]string),
	}
	for _, p := range pools {
		s.caps[p.Name] = p.Cap
		s.poolOrder = append(s.poolOrder, p.Name)
	}
	return s
}

func (s *Store) nextIDLocked() string {
	id := s.nextID
	s.nextID++
	return fmt.Sprintf("%d", id)
}

// CapacityStore implementation ------------------------------------------------

func (s *Store) ReserveAndCreate(_ context.Context, wanted []signup.PoolName, build storage.BuildFunc) (signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	granted := make(map[signup.PoolName]bool, len(wanted))
	for _, name := range wanted {
		limit, ok := s.caps[name]
		if !ok {
			return signup.Signup{}, fmt.Errorf("unknown pool %q", name)
		}
		granted[name] = s.occupancy[name] < limit
	}

	row := build(granted)
	if _, exists := s.byEmail[row.Email]; exists {
		// Nothing has been committed yet; the grants simply lapse.
		return signup.Signup{}, storage.ErrDuplicateSignup
	}

	for name, ok := range granted {
		if ok {
			s.occupancy[name]++
		}
	}
	return s.insertLocked(row), nil
}

func (s *Store) ListPools(_ context.Context) ([]storage.PoolStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]storage.PoolStatus, 0, len(s.poolOrder))
	for _, name := range s.poolOrder {
		out = append(out, storage.PoolStatus{
			Name:      name,
			Cap:       s.caps[name],
			Occupancy: s.occupancy[name],
		})
	}
	return out, nil
}

// SignupStore implementation --------------------------------------------------

func (s *Store) CreateSignup(_ context.Context, row signup.Signup) (signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[row.Email]; exists {
		return signup.Signup{}, storage.ErrDuplicateSignup
	}
	return s.insertLocked(row), nil
}

func (s *Store) GetSignup(_ context.Context, id string) (signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.signups[id]
	if !ok {
		return signup.Signup{}, storage.ErrNotFound
	}
	return row, nil
}

func (s *Store) GetSignupByEmail(_ context.Context, email string) (signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.byEmail[email]
	if !ok {
		return signup.Signup{}, storage.ErrNotFound
	}
	return s.signups[id], nil
}

// WaveStore implementation ----------------------------------------------------

func (s *Store) ListPendingByWave(_ context.Context, wave, limit int) ([]signup.Signup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []signup.Signup
	for _, row := range s.signups {
		if row.Wave == wave && row.Status == signup.StatusPending {
			out = append(out, row)
		}
	}
	sortByCreation(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) TransitionWave(_ context.Context, ids []string, fromWave, toWave int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	moved := 0
	for _, id := range ids {
		row, ok := s.signups[id]
		if !ok || row.Wave != fromWave || row.Status != signup.StatusPending {
			continue // already transitioned or gone; never double-counted
		}
		row.Wave = toWave
		row.Status = signup.StatusActive
		row.PromotedAt = now
		row.UpdatedAt = now
		s.signups[id] = row
		moved++
	}
	return moved, nil
}

func (s *Store) DeleteUnassigned(_ context.Context, limit int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var candidates []signup.Signup
	for _, row := range s.signups {
		if row.Wave == 0 && row.Pool == "" && row.TesterPool == "" {
			candidates = append(candidates, row)
		}
	}
	sortByCreation(candidates)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	for _, row := range candidates {
		delete(s.byEmail, row.Email)
		delete(s.signups, row.ID)
	}
	return len(candidates), nil
}

func (s *Store) GetWaveStatus(_ context.Context, wave int) (signup.WaveStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := signup.WaveStatus{Wave: wave}
	for _, row := range s.signups {
		if row.Wave != wave {
			continue
		}
		status.TotalUsers++
		switch row.Status {
		case signup.StatusActive:
			status.ActiveUsers++
		case signup.StatusPending:
			status.PendingUsers++
		}
		if row.PromotedAt.After(status.LastPromotedAt) {
			status.LastPromotedAt = row.PromotedAt
		}
	}
	return status, nil
}

// Helpers ----------------------------------------------------------------------

func (s *Store) insertLocked(row signup.Signup) signup.Signup {
	if row.ID == "" {
		row.ID = s.nextIDLocked()
	}
	now := time.Now().UTC()
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	row.UpdatedAt = now
	if row.Status == "" {
		row.Status = signup.StatusPending
	}
	s.signups[row.ID] = row
	s.byEmail[row.Email] = row.ID
	return row
}

func sortByCreation(rows []signup.Signup) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].ID < rows[j].ID
		}
		return rows[i].CreatedAt.Before(rows[j].CreatedAt)
	})
}
