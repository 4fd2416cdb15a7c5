package dispatch

import (
	"strings"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// CategoryFor maps an event kind to the push category whose toggle gates it.
// Unknown kinds fall into bookings.
func CategoryFor(kind domain.EventKind) domain.PushCategory {
	switch kind {
	case domain.EventChatUnread:
		return domain.PushChat
	case domain.EventRentalReturnReminder:
		return domain.PushReminders
	case domain.EventModerationPendingItem, domain.EventModerationPendingUser,
		domain.EventItemApproved, domain.EventItemRejected,
		domain.EventVerificationApproved, domain.EventVerificationRejected:
		return domain.PushModeration
	}
	if strings.HasPrefix(string(kind), "review_") {
		return domain.PushReviews
	}
	return domain.PushBookings
}

// Identity returns the address a channel delivers to, or "" when the
// recipient has not linked that channel. Push has no single identity; its
// subscriptions are loaded separately.
func Identity(r *domain.Recipient, ch domain.Channel) string {
	switch ch {
	case domain.ChannelEmail:
		return r.Email
	case domain.ChannelTelegram:
		return r.TelegramChatID
	case domain.ChannelVK:
		return r.VKID
	}
	return ""
}

// EligibleChannels returns the channels that may carry kind to r, in
// domain.AllChannels order. A channel is eligible when its toggle is on and
// its identity is present; push instead requires the event's category toggle.
func EligibleChannels(r *domain.Recipient, kind domain.EventKind) []domain.Channel {
	var out []domain.Channel
	if r.NotifyEmail && r.Email != "" {
		out = append(out, domain.ChannelEmail)
	}
	if r.NotifyTelegram && r.TelegramChatID != "" {
		out = append(out, domain.ChannelTelegram)
	}
	if r.NotifyVK && r.VKID != "" {
		out = append(out, domain.ChannelVK)
	}
	if r.NotifyPush && r.PushCategoryEnabled(CategoryFor(kind)) {
		out = append(out, domain.ChannelPush)
	}
	return out
}
