// Package signup defines the admission domain model: signups, the
// fixed capacity pools they compete for, and the waves that stage
// activation for everyone who did not fit a pool.
package signup

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// PoolName identifies one of the fixed capacity pools.
type PoolName string

const (
	PoolFoundingMember  PoolName = "founding_member"
	PoolFoundingCreator PoolName = "founding_creator"
	PoolTester          PoolName = "tester"
	PoolTesterCreator   PoolName = "tester_creator"
)

// Pool is a fixed-capacity named bucket of permanently badged members.
// Occupancy is tracked by the store, never on this struct.
type Pool struct {
	Name PoolName `json:"name" yaml:"name"`
	Cap  int      `json:"cap" yaml:"cap"`
}

// Default pool capacities.
const (
	DefaultFoundingMemberCap  = 50
	DefaultFoundingCreatorCap = 20
	DefaultTesterCap          = 20
	DefaultTesterCreatorCap   = 10
)

// DefaultPools returns the fixed pool table. All cap enforcement is
// driven off this single table so every pool is handled identically.
func DefaultPools() []Pool {
	return []Pool{
		{Name: PoolFoundingMember, Cap: DefaultFoundingMemberCap},
		{Name: PoolFoundingCreator, Cap: DefaultFoundingCreatorCap},
		{Name: PoolTester, Cap: DefaultTesterCap},
		{Name: PoolTesterCreator, Cap: DefaultTesterCreatorCap},
	}
}

// FoundingPoolFor selects the founding pool for a signup.
func FoundingPoolFor(isCreator bool) PoolName {
	if isCreator {
		return PoolFoundingCreator
	}
	return PoolFoundingMember
}

// TesterPoolFor selects the tester pool for a signup.
func TesterPoolFor(isCreator bool) PoolName {
	if isCreator {
		return PoolTesterCreator
	}
	return PoolTester
}

// Status is the lifecycle state of a signup.
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// Signup is one admitted or waiting identity. Email is the unique key.
// Wave 0 means no wave assignment (either admitted straight into a
// pool, or a raw fallback row that has not been staged yet). Pool
// badges, once granted, are never revoked.
type Signup struct {
	ID              string    `json:"id"`
	Email           string    `json:"email"`
	IsCreator       bool      `json:"is_creator"`
	TesterRequested bool      `json:"tester_requested"`
	TesterGranted   bool      `json:"tester_granted"`
	Pool            PoolName  `json:"pool,omitempty"`        // founding badge
	TesterPool      PoolName  `json:"tester_pool,omitempty"` // tester badge
	Wave            int       `json:"wave,omitempty"`
	Status          Status    `json:"status"`
	PromotedAt      time.Time `json:"promoted_at,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Badges lists the pool badges granted to the signup.
func (s Signup) Badges() []PoolName {
	var badges []PoolName
	if s.Pool != "" {
		badges = append(badges, s.Pool)
	}
	if s.TesterPool != "" {
		badges = append(badges, s.TesterPool)
	}
	return badges
}

// WaveStatus is a read-only summary of one wave.
type WaveStatus struct {
	Wave           int       `json:"wave"`
	TotalUsers     int64     `json:"total_users"`
	ActiveUsers    int64     `json:"active_users"`
	PendingUsers   int64     `json:"pending_users"`
	LastPromotedAt time.Time `json:"last_promoted_at,omitempty"`
}

// NormalizeEmail canonicalizes an email into the stable comparison key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidateEmail checks the normalized address is a plain, well-formed
// email. Runs before any counter is touched.
func ValidateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email is required")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil {
		return fmt.Errorf("invalid email %q: %w", email, err)
	}
	// Reject display-name forms like "Bob <bob@example.com>"; the key
	// must be the bare address.
	if addr.Address != email {
		return fmt.Errorf("invalid email %q: must be a bare address", email)
	}
	return nil
}
