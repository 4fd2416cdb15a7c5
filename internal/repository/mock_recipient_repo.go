package repository

import (
	"context"
	"sync"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// MockRecipientRepository is an in-memory RecipientRepository for tests.
type MockRecipientRepository struct {
	mu            sync.Mutex
	recipients    map[string]domain.Recipient
	subscriptions map[string]domain.PushSubscription

	GetRecipientErr error
	// GetRecipientCalls counts preference loads; dispatch must load once.
	GetRecipientCalls int
}

func NewMockRecipientRepository() *MockRecipientRepository {
	return &MockRecipientRepository{
		recipients:    make(map[string]domain.Recipient),
		subscriptions: make(map[string]domain.PushSubscription),
	}
}

func (m *MockRecipientRepository) PutRecipient(r domain.Recipient) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients[r.ID] = r
}

func (m *MockRecipientRepository) PutSubscription(s domain.PushSubscription) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subscriptions[s.ID] = s
}

// HasSubscription reports whether a subscription is still stored.
func (m *MockRecipientRepository) HasSubscription(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.subscriptions[id]
	return ok
}

func (m *MockRecipientRepository) GetRecipient(_ context.Context, userID string) (*domain.Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetRecipientCalls++
	if m.GetRecipientErr != nil {
		return nil, m.GetRecipientErr
	}
	r, ok := m.recipients[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	clone := r
	return &clone, nil
}

func (m *MockRecipientRepository) PushSubscriptions(_ context.Context, userID string) ([]domain.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var subs []domain.PushSubscription
	for _, s := range m.subscriptions {
		if s.UserID == userID {
			subs = append(subs, s)
		}
	}
	return subs, nil
}

func (m *MockRecipientRepository) DeletePushSubscription(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subscriptions, id)
	return nil
}
