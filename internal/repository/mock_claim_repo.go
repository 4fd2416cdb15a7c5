package repository

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// MockClaimRepository is a hand-written, in-memory implementation of
// ClaimRepository used in unit tests. The mutex plays the role of the unique
// index: check-and-insert happens under one lock, so concurrent Inserts of
// the same key yield exactly one success.
type MockClaimRepository struct {
	mu     sync.Mutex
	claims map[domain.ClaimKey]domain.Claim

	// Optional error overrides, set in tests to simulate failure paths.
	InsertErr       error
	FindExistingErr error
	InsertManyErr   error
	DeleteErr       error
	ListErr         error

	// Call counters let tests assert batch behaviour (one query per batch).
	FindExistingCalls int
	InsertManyCalls   int
}

func NewMockClaimRepository() *MockClaimRepository {
	return &MockClaimRepository{claims: make(map[domain.ClaimKey]domain.Claim)}
}

// Seed inserts claims directly, bypassing error overrides.
func (m *MockClaimRepository) Seed(keys ...domain.ClaimKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.claims[k] = domain.Claim{ID: uuid.New().String(), ClaimKey: k, CreatedAt: time.Now().UTC()}
	}
}

// Has reports whether a claim exists for key.
func (m *MockClaimRepository) Has(key domain.ClaimKey) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.claims[key]
	return ok
}

// Len returns the number of live claims.
func (m *MockClaimRepository) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.claims)
}

func (m *MockClaimRepository) Insert(_ context.Context, key domain.ClaimKey) (bool, error) {
	if m.InsertErr != nil {
		return false, m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.claims[key]; ok {
		return false, nil
	}
	m.claims[key] = domain.Claim{ID: uuid.New().String(), ClaimKey: key, CreatedAt: time.Now().UTC()}
	return true, nil
}

func (m *MockClaimRepository) FindExisting(_ context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FindExistingCalls++
	if m.FindExistingErr != nil {
		return nil, m.FindExistingErr
	}
	var existing []domain.ClaimKey
	for _, k := range keys {
		if _, ok := m.claims[k]; ok {
			existing = append(existing, k)
		}
	}
	return existing, nil
}

func (m *MockClaimRepository) InsertMany(_ context.Context, keys []domain.ClaimKey) ([]domain.ClaimKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.InsertManyCalls++
	if m.InsertManyErr != nil {
		return nil, m.InsertManyErr
	}
	var inserted []domain.ClaimKey
	for _, k := range keys {
		if _, ok := m.claims[k]; ok {
			continue
		}
		m.claims[k] = domain.Claim{ID: uuid.New().String(), ClaimKey: k, CreatedAt: time.Now().UTC()}
		inserted = append(inserted, k)
	}
	return inserted, nil
}

func (m *MockClaimRepository) Delete(_ context.Context, key domain.ClaimKey) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.claims, key)
	return nil
}

func (m *MockClaimRepository) ListByKind(_ context.Context, ct domain.ConditionType, kind domain.EventKind) ([]domain.Claim, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.Claim
	for k, c := range m.claims {
		if k.ConditionType == ct && k.EventKind == kind {
			result = append(result, c)
		}
	}
	return result, nil
}
