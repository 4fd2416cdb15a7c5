package aggregator_test

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/aggregator"
	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

var now = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return now }

type sent struct {
	RecipientID string
	Event       domain.Event
}

// recordingNotifier captures every dispatch.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []sent
}

func (n *recordingNotifier) Dispatch(_ context.Context, recipientID string, ev domain.Event) domain.DispatchResult {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sent{RecipientID: recipientID, Event: ev})
	return domain.DispatchResult{domain.ChannelEmail: true}
}

func (n *recordingNotifier) Sent() []sent {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := append([]sent(nil), n.sent...)
	sort.Slice(out, func(i, j int) bool { return out[i].RecipientID < out[j].RecipientID })
	return out
}

func (n *recordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = nil
}

type fixture struct {
	claimRepo *repository.MockClaimRepository
	store     *claims.Store
	state     *repository.MockStateRepository
	notifier  *recordingNotifier
}

func newFixture() *fixture {
	repo := repository.NewMockClaimRepository()
	return &fixture{
		claimRepo: repo,
		store:     claims.NewStore(repo, claims.Hooks{}),
		state:     repository.NewMockStateRepository(),
		notifier:  &recordingNotifier{},
	}
}

func (f *fixture) chat() *aggregator.ChatBacklog {
	return aggregator.NewChatBacklog(f.store, f.state, f.notifier, 30*time.Minute, fixedClock, zap.NewNop())
}

func (f *fixture) moderation() *aggregator.Moderation {
	return aggregator.NewModeration(f.store, f.state, f.notifier, 30*time.Minute, fixedClock, zap.NewNop())
}

// --- chat backlog -----------------------------------------------------------

func seedConversation(f *fixture) {
	f.state.Conversation["booking-1"] = domain.Conversation{
		ID: "booking-1", RenterID: "renter-1", OwnerID: "owner-1", ItemTitle: "Drill",
	}
}

// One 31-minute-old unread message from the renter notifies the owner once.
func TestChatBacklog_SingleUnreadMessage(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	f.state.AddMessage("booking-1", "renter-1", now.Add(-31*time.Minute))

	n, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.claimRepo.Has(domain.ChatBacklogKey("owner-1", "booking-1")))

	got := f.notifier.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, "owner-1", got[0].RecipientID)
	assert.Equal(t, domain.EventChatUnread, got[0].Event.Kind)
	assert.Equal(t, 1, got[0].Event.Data["unreadCount"])
	assert.Equal(t, "booking-1", got[0].Event.Data["conversationId"])
	assert.Equal(t, "Drill", got[0].Event.Data["itemTitle"])

	f.notifier.Reset()
	n, err = f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notifier.Sent())
	assert.Equal(t, 1, f.claimRepo.Len())
}

func TestChatBacklog_FreshMessagesAreIgnored(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	f.state.AddMessage("booking-1", "renter-1", now.Add(-29*time.Minute))

	n, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, f.notifier.Sent())
}

func TestChatBacklog_ReopenAfterResolve(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	f.state.AddMessage("booking-1", "renter-1", now.Add(-40*time.Minute))
	key := domain.ChatBacklogKey("owner-1", "booking-1")

	_, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	require.True(t, f.claimRepo.Has(key))

	// Owner reads everything: the next pass retracts the claim.
	f.state.MarkRead("booking-1", "owner-1")
	n, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, f.claimRepo.Has(key))

	// A new backlog accumulates for the same pair and notifies again.
	f.notifier.Reset()
	f.state.AddMessage("booking-1", "renter-1", now.Add(-35*time.Minute))
	n, err = f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.True(t, f.claimRepo.Has(key))
	require.Len(t, f.notifier.Sent(), 1)
}

func TestChatBacklog_CleanupKeepsUnresolvedClaims(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	// Recent unread message: not old enough to detect, but still unread.
	f.state.AddMessage("booking-1", "renter-1", now.Add(-time.Minute))
	key := domain.ChatBacklogKey("owner-1", "booking-1")
	f.claimRepo.Seed(key)

	_, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.True(t, f.claimRepo.Has(key))
}

func TestChatBacklog_BothSidesAreIndependent(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	f.state.AddMessage("booking-1", "renter-1", now.Add(-time.Hour))
	f.state.AddMessage("booking-1", "renter-1", now.Add(-50*time.Minute))
	f.state.AddMessage("booking-1", "owner-1", now.Add(-45*time.Minute))

	n, err := f.chat().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.notifier.Sent()
	require.Len(t, got, 2)
	assert.Equal(t, "owner-1", got[0].RecipientID)
	assert.Equal(t, 2, got[0].Event.Data["unreadCount"])
	assert.Equal(t, "renter-1", got[1].RecipientID)
	assert.Equal(t, 1, got[1].Event.Data["unreadCount"])
	assert.Equal(t, 1, f.state.ConversationsCalls, "conversations are loaded in one batch")
}

func TestChatBacklog_CleanupFailureStillDetects(t *testing.T) {
	f := newFixture()
	seedConversation(f)
	f.claimRepo.Seed(domain.ChatBacklogKey("renter-1", "booking-1"))
	f.state.StillUnreadErr = errors.New("replica lag")
	f.state.AddMessage("booking-1", "renter-1", now.Add(-time.Hour))

	n, err := f.chat().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "replica lag")
	assert.Equal(t, 1, n)
}

// --- moderation -------------------------------------------------------------

// One stale pending listing and two reviewers: two claims, two dispatches.
func TestModeration_PendingListingTwoReviewers(t *testing.T) {
	f := newFixture()
	f.state.ReviewerIDs = []string{"admin-1", "mod-1"}
	f.state.Listings = []domain.PendingListing{{ID: "item-1", Title: "Tent", CreatedAt: now.Add(-31 * time.Minute)}}

	n, err := f.moderation().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.claimRepo.Len())

	got := f.notifier.Sent()
	require.Len(t, got, 2)
	assert.Equal(t, "admin-1", got[0].RecipientID)
	assert.Equal(t, "mod-1", got[1].RecipientID)
	assert.Equal(t, "Tent", got[0].Event.Data["itemTitle"])
}

func TestModeration_PreseededClaimSkipsThatReviewer(t *testing.T) {
	f := newFixture()
	f.state.ReviewerIDs = []string{"admin-1", "mod-1"}
	f.state.Listings = []domain.PendingListing{{ID: "item-1", Title: "Tent", CreatedAt: now.Add(-31 * time.Minute)}}
	f.claimRepo.Seed(domain.ClaimKey{
		ConditionType: domain.ConditionListing,
		InstanceID:    "item-1",
		EventKind:     domain.EventModerationPendingItem,
		RecipientID:   "admin-1",
	})

	n, err := f.moderation().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got := f.notifier.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, "mod-1", got[0].RecipientID)
}

func TestModeration_FanOutCompleteness(t *testing.T) {
	const k, m = 7, 5
	f := newFixture()
	for i := range m {
		f.state.ReviewerIDs = append(f.state.ReviewerIDs, fmt.Sprintf("reviewer-%d", i))
	}
	for i := range k {
		f.state.Listings = append(f.state.Listings, domain.PendingListing{
			ID: fmt.Sprintf("item-%d", i), Title: "x", CreatedAt: now.Add(-time.Hour),
		})
	}

	n, err := f.moderation().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, k*m, n)
	assert.Equal(t, k*m, f.claimRepo.Len())
	assert.Len(t, f.notifier.Sent(), k*m)
	// The whole cross product is diffed against existing claims in one lookup.
	assert.Equal(t, 1, f.claimRepo.FindExistingCalls)
	assert.Equal(t, 1, f.claimRepo.InsertManyCalls)
}

func TestModeration_VerificationsAndPassIndependence(t *testing.T) {
	f := newFixture()
	f.state.ReviewerIDs = []string{"admin-1"}
	f.state.PendingListingsErr = errors.New("items table locked")
	f.state.Verifications = []domain.PendingVerification{{UserID: "user-9", Name: "Sam", SubmittedAt: now.Add(-2 * time.Hour)}}

	n, err := f.moderation().Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "items table locked")
	assert.Equal(t, 1, n, "verification pass still ran")

	got := f.notifier.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventModerationPendingUser, got[0].Event.Kind)
	assert.Equal(t, "Sam", got[0].Event.Data["userName"])
	assert.True(t, f.claimRepo.Has(domain.ClaimKey{
		ConditionType: domain.ConditionVerification,
		InstanceID:    "user-9",
		EventKind:     domain.ClaimVerificationReminder,
		RecipientID:   "admin-1",
	}))
}

func TestModeration_NoReviewers(t *testing.T) {
	f := newFixture()
	f.state.Listings = []domain.PendingListing{{ID: "item-1", CreatedAt: now.Add(-time.Hour)}}

	n, err := f.moderation().Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.claimRepo.FindExistingCalls)
}

// --- return reminders -------------------------------------------------------

func TestTomorrow_CalendarDayBounds(t *testing.T) {
	loc := time.FixedZone("MSK", 3*60*60)
	// 22:30 UTC is already the next calendar day in MSK.
	from, to := aggregator.Tomorrow(time.Date(2026, 3, 10, 22, 30, 0, 0, time.UTC), loc)

	assert.Equal(t, time.Date(2026, 3, 12, 0, 0, 0, 0, loc), from)
	assert.Equal(t, time.Date(2026, 3, 12, 23, 59, 59, 999999999, loc), to)
}

// An active booking ending tomorrow notifies renter and owner separately.
func TestReturnReminders_RenterAndOwner(t *testing.T) {
	f := newFixture()
	f.state.Bookings = []repository.MockBooking{
		{Status: "active", Booking: domain.Booking{
			ID: "b-1", RenterID: "renter-1", RenterName: "Alex", OwnerID: "owner-1",
			ItemTitle: "Kayak", EndDate: time.Date(2026, 3, 11, 23, 59, 59, 999000000, time.UTC),
		}},
		{Status: "active", Booking: domain.Booking{
			ID: "b-2", RenterID: "renter-2", OwnerID: "owner-2",
			EndDate: time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC), // day after tomorrow
		}},
		{Status: "completed", Booking: domain.Booking{
			ID: "b-3", RenterID: "renter-3", OwnerID: "owner-3",
			EndDate: time.Date(2026, 3, 11, 10, 0, 0, 0, time.UTC),
		}},
	}
	a := aggregator.NewReturnReminders(f.store, f.state, f.notifier, time.UTC, fixedClock, zap.NewNop())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got := f.notifier.Sent()
	require.Len(t, got, 2)
	assert.Equal(t, "owner-1", got[0].RecipientID)
	assert.Equal(t, true, got[0].Event.Data["isOwner"])
	assert.Equal(t, "Alex", got[0].Event.Data["renterName"])
	assert.Equal(t, "renter-1", got[1].RecipientID)
	assert.Equal(t, false, got[1].Event.Data["isOwner"])
	assert.NotContains(t, got[1].Event.Data, "renterName")

	f.notifier.Reset()
	n, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReturnReminders_OneSidePreclaimed(t *testing.T) {
	f := newFixture()
	f.state.Bookings = []repository.MockBooking{{Status: "active", Booking: domain.Booking{
		ID: "b-1", RenterID: "renter-1", OwnerID: "owner-1", EndDate: now.Add(24 * time.Hour),
	}}}
	f.claimRepo.Seed(domain.ClaimKey{
		ConditionType: domain.ConditionBooking, InstanceID: "b-1",
		EventKind: domain.EventRentalReturnReminder, RecipientID: "renter-1",
	})
	a := aggregator.NewReturnReminders(f.store, f.state, f.notifier, time.UTC, fixedClock, zap.NewNop())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, f.notifier.Sent(), 1)
	assert.Equal(t, "owner-1", f.notifier.Sent()[0].RecipientID)
}

// --- review reminders -------------------------------------------------------

func TestReviewReminders_MissingSidesOnly(t *testing.T) {
	f := newFixture()
	old := now.Add(-25 * time.Hour)
	recent := now.Add(-23 * time.Hour)
	f.state.Bookings = []repository.MockBooking{
		{Status: "completed", RenterReviewed: true, Booking: domain.Booking{
			ID: "b-1", RenterID: "renter-1", OwnerID: "owner-1", ItemTitle: "Tent", CompletedAt: &old,
		}},
		{Status: "completed", Booking: domain.Booking{
			ID: "b-2", RenterID: "renter-2", OwnerID: "owner-2", CompletedAt: &old,
		}},
		{Status: "completed", Booking: domain.Booking{
			ID: "b-3", RenterID: "renter-3", OwnerID: "owner-3", CompletedAt: &recent,
		}},
		{Status: "completed", RenterReviewed: true, OwnerReviewed: true, Booking: domain.Booking{
			ID: "b-4", RenterID: "renter-4", OwnerID: "owner-4", CompletedAt: &old,
		}},
	}
	a := aggregator.NewReviewReminders(f.store, f.state, f.notifier, 24*time.Hour, fixedClock, zap.NewNop())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got := f.notifier.Sent()
	require.Len(t, got, 3)
	assert.Equal(t, "owner-1", got[0].RecipientID)
	assert.Equal(t, aggregator.ReviewByOwner, got[0].Event.Data["reviewType"])
	assert.Equal(t, "owner-2", got[1].RecipientID)
	assert.Equal(t, "renter-2", got[2].RecipientID)
	assert.Equal(t, aggregator.ReviewByRenter, got[2].Event.Data["reviewType"])

	n, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReviewReminders_LoadErrorReturned(t *testing.T) {
	f := newFixture()
	f.state.BookingsErr = errors.New("timeout")
	a := aggregator.NewReviewReminders(f.store, f.state, f.notifier, 24*time.Hour, fixedClock, zap.NewNop())

	_, err := a.Run(context.Background())
	assert.ErrorIs(t, err, f.state.BookingsErr)
}

// --- approval expiry --------------------------------------------------------

func TestApprovalExpiry_CancelsAndNotifiesRenter(t *testing.T) {
	f := newFixture()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	f.state.Bookings = []repository.MockBooking{
		{Status: "pending_approval", ApprovalDeadline: &past, Booking: domain.Booking{ID: "b-1", RenterID: "renter-1", ItemTitle: "Tent"}},
		{Status: "pending_approval", ApprovalDeadline: &future, Booking: domain.Booking{ID: "b-2", RenterID: "renter-2"}},
	}
	a := aggregator.NewApprovalExpiry(f.store, f.state, f.notifier, fixedClock, zap.NewNop())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "cancelled", f.state.Bookings[0].Status)
	assert.Equal(t, "pending_approval", f.state.Bookings[1].Status)

	got := f.notifier.Sent()
	require.Len(t, got, 1)
	assert.Equal(t, "renter-1", got[0].RecipientID)
	assert.Equal(t, domain.EventBookingRejected, got[0].Event.Kind)
	assert.True(t, f.claimRepo.Has(domain.ClaimKey{
		ConditionType: domain.ConditionBooking,
		InstanceID:    "b-1",
		EventKind:     domain.EventBookingRejected,
		RecipientID:   "renter-1",
	}), "the rejection notice is claimed before it is sent")

	n, err = a.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "a cancelled booking is never expired twice")
}

func TestApprovalExpiry_ExistingClaimSuppressesNotice(t *testing.T) {
	f := newFixture()
	past := now.Add(-time.Minute)
	f.state.Bookings = []repository.MockBooking{
		{Status: "pending_approval", ApprovalDeadline: &past, Booking: domain.Booking{ID: "b-1", RenterID: "renter-1"}},
	}
	f.claimRepo.Seed(domain.ClaimKey{
		ConditionType: domain.ConditionBooking,
		InstanceID:    "b-1",
		EventKind:     domain.EventBookingRejected,
		RecipientID:   "renter-1",
	})

	n, err := aggregator.NewApprovalExpiry(f.store, f.state, f.notifier, fixedClock, zap.NewNop()).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, "cancelled", f.state.Bookings[0].Status)
	assert.Empty(t, f.notifier.Sent())
}

// --- failure isolation ------------------------------------------------------

type panickyNotifier struct{ recordingNotifier }

func (p *panickyNotifier) Dispatch(ctx context.Context, recipientID string, ev domain.Event) domain.DispatchResult {
	if recipientID == "admin-1" {
		panic("boom")
	}
	return p.recordingNotifier.Dispatch(ctx, recipientID, ev)
}

func TestFanOut_PanicInOneDispatchKeepsClaimsAndOthers(t *testing.T) {
	f := newFixture()
	f.state.ReviewerIDs = []string{"admin-1", "mod-1"}
	f.state.Listings = []domain.PendingListing{{ID: "item-1", CreatedAt: now.Add(-time.Hour)}}
	notifier := &panickyNotifier{}
	a := aggregator.NewModeration(f.store, f.state, notifier, 30*time.Minute, fixedClock, zap.NewNop())

	n, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, f.claimRepo.Len(), "a failed dispatch never undoes its claim")
	require.Len(t, notifier.Sent(), 1)
	assert.Equal(t, "mod-1", notifier.Sent()[0].RecipientID)
}
