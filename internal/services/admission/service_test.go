package admission

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/launchwave/launchwave/internal/audit"
	"github.com/launchwave/launchwave/internal/domain/signup"
	"github.com/launchwave/launchwave/internal/storage"
	"github.com/launchwave/launchwave/internal/storage/memory"
)

func newTestService(pools []signup.Pool) (*Service, *memory.Store, *audit.MemorySink) {
	store := memory.NewWithPools(pools)
	sink := audit.NewMemorySink(100)
	return New(store, sink, nil), store, sink
}

func occupancyOf(t *testing.T, store *memory.Store, name signup.PoolName) int {
	t.Helper()
	pools, err := store.ListPools(context.Background())
	if err != nil {
		t.Fatalf("list pools: %v", err)
	}
	for _, p := range pools {
		if p.Name == name {
			return p.Occupancy
		}
	}
	t.Fatalf("pool %q not found", name)
	return 0
}

func TestAdmitGrantsFoundingPool(t *testing.T) {
	svc, store, sink := newTestService(signup.DefaultPools())

	result, err := svc.Admit(context.Background(), "alice@example.com", false, false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Status != StatusAdmitted {
		t.Fatalf("expected admitted, got %q", result.Status)
	}
	if result.Signup.Pool != signup.PoolFoundingMember {
		t.Fatalf("expected founding_member badge, got %q", result.Signup.Pool)
	}
	if result.Signup.Status != signup.StatusActive {
		t.Fatalf("pool members must be active, got %q", result.Signup.Status)
	}
	if result.Signup.Wave != 0 {
		t.Fatalf("pool members must not be wave-gated, got wave %d", result.Signup.Wave)
	}
	if got := occupancyOf(t, store, signup.PoolFoundingMember); got != 1 {
		t.Fatalf("expected occupancy 1, got %d", got)
	}

	entries := sink.List(0)
	if len(entries) != 1 || entries[0].Action != "signup.admitted" {
		t.Fatalf("expected one signup.admitted audit entry, got %+v", entries)
	}
}

func TestAdmitCreatorRoutesToCreatorPool(t *testing.T) {
	svc, store, _ := newTestService(signup.DefaultPools())

	result, err := svc.Admit(context.Background(), "carol@example.com", true, true)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Signup.Pool != signup.PoolFoundingCreator {
		t.Fatalf("expected founding_creator badge, got %q", result.Signup.Pool)
	}
	if !result.TesterGranted || result.Signup.TesterPool != signup.PoolTesterCreator {
		t.Fatalf("expected tester_creator badge, got %+v", result.Signup)
	}
	if got := occupancyOf(t, store, signup.PoolTesterCreator); got != 1 {
		t.Fatalf("expected tester_creator occupancy 1, got %d", got)
	}
}

func TestAdmitFallsBackWhenPoolFull(t *testing.T) {
	pools := []signup.Pool{
		{Name: signup.PoolFoundingMember, Cap: 1},
		{Name: signup.PoolFoundingCreator, Cap: 1},
		{Name: signup.PoolTester, Cap: 1},
		{Name: signup.PoolTesterCreator, Cap: 1},
	}
	svc, store, sink := newTestService(pools)

	if _, err := svc.Admit(context.Background(), "first@example.com", false, false); err != nil {
		t.Fatalf("admit first: %v", err)
	}
	result, err := svc.Admit(context.Background(), "second@example.com", false, false)
	if err != nil {
		t.Fatalf("capacity exhaustion must not be an error: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback, got %q", result.Status)
	}
	if result.Signup.Pool != "" {
		t.Fatalf("fallback must not carry a pool badge, got %q", result.Signup.Pool)
	}
	if result.Wave != FallbackWave || result.Signup.Status != signup.StatusPending {
		t.Fatalf("fallback must be pending in wave %d, got %+v", FallbackWave, result.Signup)
	}
	if got := occupancyOf(t, store, signup.PoolFoundingMember); got != 1 {
		t.Fatalf("occupancy must stay at cap, got %d", got)
	}

	entries := sink.List(0)
	if len(entries) != 2 || entries[1].Action != "signup.fallback" {
		t.Fatalf("expected signup.fallback audit entry, got %+v", entries)
	}
}

func TestAdmitTesterIndependentOfFoundingDenial(t *testing.T) {
	pools := []signup.Pool{
		{Name: signup.PoolFoundingMember, Cap: 0},
		{Name: signup.PoolFoundingCreator, Cap: 1},
		{Name: signup.PoolTester, Cap: 5},
		{Name: signup.PoolTesterCreator, Cap: 1},
	}
	svc, _, _ := newTestService(pools)

	result, err := svc.Admit(context.Background(), "tester@example.com", false, true)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Status != StatusFallback {
		t.Fatalf("expected fallback, got %q", result.Status)
	}
	if !result.TesterGranted || result.Signup.TesterPool != signup.PoolTester {
		t.Fatalf("tester grant must not depend on the founding pool, got %+v", result.Signup)
	}
}

func TestAdmitDropsTesterSilentlyWhenPoolFull(t *testing.T) {
	pools := []signup.Pool{
		{Name: signup.PoolFoundingMember, Cap: 5},
		{Name: signup.PoolFoundingCreator, Cap: 5},
		{Name: signup.PoolTester, Cap: 0},
		{Name: signup.PoolTesterCreator, Cap: 0},
	}
	svc, _, _ := newTestService(pools)

	result, err := svc.Admit(context.Background(), "wants-tester@example.com", false, true)
	if err != nil {
		t.Fatalf("tester denial must not be an error: %v", err)
	}
	if result.TesterGranted {
		t.Fatal("tester must be denied when the tester pool is full")
	}
	if !result.Signup.TesterRequested {
		t.Fatal("the original request flag must be retained")
	}
	if result.Signup.TesterPool != "" {
		t.Fatalf("no tester badge expected, got %q", result.Signup.TesterPool)
	}
	if result.Status != StatusAdmitted {
		t.Fatalf("founding admission must be unaffected, got %q", result.Status)
	}
}

func TestAdmitRejectsInvalidEmail(t *testing.T) {
	svc, store, sink := newTestService(signup.DefaultPools())

	for _, email := range []string{"", "not-an-email", "two words@example.com", "Name <x@example.com>"} {
		if _, err := svc.Admit(context.Background(), email, false, true); !errors.Is(err, ErrInvalidEmail) {
			t.Fatalf("email %q: expected ErrInvalidEmail, got %v", email, err)
		}
	}
	if got := occupancyOf(t, store, signup.PoolFoundingMember); got != 0 {
		t.Fatalf("rejected signups must not consume capacity, got occupancy %d", got)
	}
	if entries := sink.List(0); len(entries) != 0 {
		t.Fatalf("rejected signups must not be audited, got %+v", entries)
	}
}

func TestAdmitRejectsDuplicateEmail(t *testing.T) {
	svc, store, _ := newTestService(signup.DefaultPools())

	if _, err := svc.Admit(context.Background(), "dup@example.com", false, false); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	if _, err := svc.Admit(context.Background(), "dup@example.com", true, true); !errors.Is(err, storage.ErrDuplicateSignup) {
		t.Fatalf("expected ErrDuplicateSignup, got %v", err)
	}
	// Case and whitespace variants are the same identity.
	if _, err := svc.Admit(context.Background(), "  DUP@Example.COM ", false, false); !errors.Is(err, storage.ErrDuplicateSignup) {
		t.Fatalf("expected ErrDuplicateSignup for normalized variant, got %v", err)
	}
	if got := occupancyOf(t, store, signup.PoolFoundingMember); got != 1 {
		t.Fatalf("duplicates must not consume capacity, got occupancy %d", got)
	}
}

func TestAdmitNormalizesEmail(t *testing.T) {
	svc, _, _ := newTestService(signup.DefaultPools())

	result, err := svc.Admit(context.Background(), "  Mixed.Case@Example.COM ", false, false)
	if err != nil {
		t.Fatalf("admit: %v", err)
	}
	if result.Signup.Email != "mixed.case@example.com" {
		t.Fatalf("expected normalized email, got %q", result.Signup.Email)
	}
	if _, err := svc.GetByEmail(context.Background(), "MIXED.CASE@example.com"); err != nil {
		t.Fatalf("lookup by variant must resolve: %v", err)
	}
}

func TestAdmitConcurrentNeverExceedsCap(t *testing.T) {
	const slots = 5
	const attempts = 40

	pools := []signup.Pool{
		{Name: signup.PoolFoundingMember, Cap: slots},
		{Name: signup.PoolFoundingCreator, Cap: 1},
		{Name: signup.PoolTester, Cap: 1},
		{Name: signup.PoolTesterCreator, Cap: 1},
	}
	svc, store, _ := newTestService(pools)

	var wg sync.WaitGroup
	results := make([]Result, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := svc.Admit(context.Background(), fmt.Sprintf("user%d@example.com", i), false, false)
			if err != nil {
				t.Errorf("admit %d: %v", i, err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	admitted := 0
	for _, r := range results {
		if r.Status == StatusAdmitted {
			admitted++
		}
	}
	if admitted != slots {
		t.Fatalf("expected exactly %d admissions, got %d", slots, admitted)
	}
	if got := occupancyOf(t, store, signup.PoolFoundingMember); got != slots {
		t.Fatalf("occupancy must equal cap, got %d", got)
	}
}

func TestAdmitConcurrentDuplicatesAdmitOnce(t *testing.T) {
	svc, _, _ := newTestService(signup.DefaultPools())

	const attempts = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Admit(context.Background(), "race@example.com", false, false)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			if !errors.Is(err, storage.ErrDuplicateSignup) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if succeeded != 1 {
		t.Fatalf("expected exactly one successful admission, got %d", succeeded)
	}
}
