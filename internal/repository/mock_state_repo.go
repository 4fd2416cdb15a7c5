package repository

import (
	"context"
	"sync"
	"time"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// MockMessage is one chat message row in MockStateRepository.
type MockMessage struct {
	ConversationID string
	SenderID       string
	Read           bool
	CreatedAt      time.Time
}

// MockBooking is one booking row in MockStateRepository.
type MockBooking struct {
	domain.Booking
	Status           string
	ApprovalDeadline *time.Time
	RenterReviewed   bool
	OwnerReviewed    bool
}

// MockStateRepository is an in-memory StateRepository and BookingExpirer.
// Its queries follow the same filters as the pgx implementation so the
// detectors can be exercised end to end without a database.
type MockStateRepository struct {
	mu sync.Mutex

	Messages      []MockMessage
	Conversation  map[string]domain.Conversation
	ReviewerIDs   []string
	Listings      []domain.PendingListing
	Verifications []domain.PendingVerification
	Bookings      []MockBooking

	// Error overrides.
	UnreadGroupsErr    error
	StillUnreadErr     error
	ReviewersErr       error
	PendingListingsErr error
	BookingsErr        error
	ExpireErr          error

	// Call counters for asserting batch (one query) behaviour.
	ConversationsCalls int
	StillUnreadCalls   int
}

func NewMockStateRepository() *MockStateRepository {
	return &MockStateRepository{Conversation: make(map[string]domain.Conversation)}
}

// MarkRead marks every message in a conversation not sent by readerID as read.
func (m *MockStateRepository) MarkRead(conversationID, readerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.Messages {
		msg := &m.Messages[i]
		if msg.ConversationID == conversationID && msg.SenderID != readerID {
			msg.Read = true
		}
	}
}

// AddMessage appends an unread message.
func (m *MockStateRepository) AddMessage(conversationID, senderID string, createdAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Messages = append(m.Messages, MockMessage{
		ConversationID: conversationID,
		SenderID:       senderID,
		CreatedAt:      createdAt,
	})
}

func (m *MockStateRepository) UnreadGroups(_ context.Context, olderThan time.Time) ([]domain.UnreadGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnreadGroupsErr != nil {
		return nil, m.UnreadGroupsErr
	}

	type groupKey struct{ conv, sender string }
	counts := make(map[groupKey]int)
	var order []groupKey
	for _, msg := range m.Messages {
		if msg.Read || msg.CreatedAt.After(olderThan) {
			continue
		}
		k := groupKey{msg.ConversationID, msg.SenderID}
		if _, seen := counts[k]; !seen {
			order = append(order, k)
		}
		counts[k]++
	}

	groups := make([]domain.UnreadGroup, 0, len(order))
	for _, k := range order {
		groups = append(groups, domain.UnreadGroup{ConversationID: k.conv, SenderID: k.sender, Count: counts[k]})
	}
	return groups, nil
}

func (m *MockStateRepository) Conversations(_ context.Context, ids []string) (map[string]domain.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ConversationsCalls++
	result := make(map[string]domain.Conversation, len(ids))
	for _, id := range ids {
		if c, ok := m.Conversation[id]; ok {
			result[id] = c
		}
	}
	return result, nil
}

func (m *MockStateRepository) StillUnread(_ context.Context, pairs []domain.ChatPair) (map[domain.ChatPair]bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StillUnreadCalls++
	if m.StillUnreadErr != nil {
		return nil, m.StillUnreadErr
	}
	result := make(map[domain.ChatPair]bool)
	for _, p := range pairs {
		for _, msg := range m.Messages {
			if msg.ConversationID == p.ConversationID && msg.SenderID != p.RecipientID && !msg.Read {
				result[p] = true
				break
			}
		}
	}
	return result, nil
}

func (m *MockStateRepository) Reviewers(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ReviewersErr != nil {
		return nil, m.ReviewersErr
	}
	return append([]string(nil), m.ReviewerIDs...), nil
}

func (m *MockStateRepository) PendingListings(_ context.Context, olderThan time.Time) ([]domain.PendingListing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.PendingListingsErr != nil {
		return nil, m.PendingListingsErr
	}
	var result []domain.PendingListing
	for _, l := range m.Listings {
		if !l.CreatedAt.After(olderThan) {
			result = append(result, l)
		}
	}
	return result, nil
}

func (m *MockStateRepository) PendingVerifications(_ context.Context, olderThan time.Time) ([]domain.PendingVerification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result []domain.PendingVerification
	for _, v := range m.Verifications {
		if !v.SubmittedAt.After(olderThan) {
			result = append(result, v)
		}
	}
	return result, nil
}

func (m *MockStateRepository) ActiveBookingsEndingBetween(_ context.Context, from, to time.Time) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BookingsErr != nil {
		return nil, m.BookingsErr
	}
	var result []domain.Booking
	for _, b := range m.Bookings {
		if b.Status == "active" && !b.EndDate.Before(from) && !b.EndDate.After(to) {
			result = append(result, b.Booking)
		}
	}
	return result, nil
}

func (m *MockStateRepository) CompletedBookingsBefore(_ context.Context, cutoff time.Time) ([]domain.CompletedBooking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.BookingsErr != nil {
		return nil, m.BookingsErr
	}
	var result []domain.CompletedBooking
	for _, b := range m.Bookings {
		if b.Status != "completed" || b.CompletedAt == nil || b.CompletedAt.After(cutoff) {
			continue
		}
		if b.RenterReviewed && b.OwnerReviewed {
			continue
		}
		result = append(result, domain.CompletedBooking{
			Booking:         b.Booking,
			HasRenterReview: b.RenterReviewed,
			HasOwnerReview:  b.OwnerReviewed,
		})
	}
	return result, nil
}

func (m *MockStateRepository) ExpirePendingApprovals(_ context.Context, now time.Time, _ string) ([]domain.Booking, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ExpireErr != nil {
		return nil, m.ExpireErr
	}
	var expired []domain.Booking
	for i := range m.Bookings {
		b := &m.Bookings[i]
		if b.Status == "pending_approval" && b.ApprovalDeadline != nil && !b.ApprovalDeadline.After(now) {
			b.Status = "cancelled"
			expired = append(expired, b.Booking)
		}
	}
	return expired, nil
}
