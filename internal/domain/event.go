package domain

// EventKind names a logical notification.
type EventKind string

// Kinds emitted by the detectors and the auto-expiry stage.
const (
	EventChatUnread            EventKind = "chat_unread"
	EventModerationPendingItem EventKind = "moderation_pending_item"
	EventModerationPendingUser EventKind = "moderation_pending_user"
	EventRentalReturnReminder  EventKind = "rental_return_reminder"
	EventReviewReminder        EventKind = "review_reminder"
	EventBookingRejected       EventKind = "booking_rejected"
)

// ClaimVerificationReminder is the ledger kind for verification reminders.
// The reminder is rendered as EventModerationPendingUser, but existing
// ledgers record its claims under this name.
const ClaimVerificationReminder EventKind = "verification_pending_reminder"

// Transactional kinds sent by the marketplace itself. The renderer knows how
// to format them so every caller shares one dispatcher.
const (
	EventItemApproved         EventKind = "item_approved"
	EventItemRejected         EventKind = "item_rejected"
	EventVerificationApproved EventKind = "verification_approved"
	EventVerificationRejected EventKind = "verification_rejected"
	EventBookingNew           EventKind = "booking_new"
	EventBookingConfirmed     EventKind = "booking_confirmed"
	EventBookingCancelled     EventKind = "booking_cancelled"
	EventBookingCompleted     EventKind = "booking_completed"
	EventReviewReceived       EventKind = "review_received"
)

// Event is built at dispatch time and handed to the renderer and channel
// adapters. It is never persisted.
type Event struct {
	Kind EventKind      `json:"kind"`
	Data map[string]any `json:"data"`
}

// Channel is a delivery channel.
type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelTelegram Channel = "telegram"
	ChannelVK       Channel = "vk"
	ChannelPush     Channel = "push"
)

// AllChannels lists channels in a stable order.
var AllChannels = []Channel{ChannelEmail, ChannelTelegram, ChannelVK, ChannelPush}

// PushCategory groups event kinds for the per-category push toggles.
type PushCategory string

const (
	PushBookings   PushCategory = "bookings"
	PushChat       PushCategory = "chat"
	PushModeration PushCategory = "moderation"
	PushReviews    PushCategory = "reviews"
	PushReminders  PushCategory = "reminders"
)

// Content is the channel-specific rendering of an Event.
type Content struct {
	Subject string
	Text    string
	HTML    string
	URL     string
	Tag     string
}

// DispatchResult reports per-channel success for one dispatch. Channels that
// were not eligible are reported as false.
type DispatchResult map[Channel]bool

// Any reports whether at least one channel succeeded.
func (r DispatchResult) Any() bool {
	for _, ok := range r {
		if ok {
			return true
		}
	}
	return false
}
