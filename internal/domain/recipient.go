package domain

// Recipient carries a user's channel toggles and identities, loaded in one
// query at dispatch time.
type Recipient struct {
	ID string

	Email          string
	TelegramChatID string
	VKID           string

	NotifyEmail    bool
	NotifyTelegram bool
	NotifyVK       bool
	NotifyPush     bool

	PushBookings   bool
	PushChat       bool
	PushModeration bool
	PushReviews    bool
	PushReminders  bool
}

// PushCategoryEnabled reports whether the user accepts push for a category.
func (r *Recipient) PushCategoryEnabled(c PushCategory) bool {
	switch c {
	case PushBookings:
		return r.PushBookings
	case PushChat:
		return r.PushChat
	case PushModeration:
		return r.PushModeration
	case PushReviews:
		return r.PushReviews
	case PushReminders:
		return r.PushReminders
	}
	return false
}

// PushSubscription is one browser/device registration. A user may have many.
type PushSubscription struct {
	ID       string `json:"id"`
	UserID   string `json:"user_id"`
	Endpoint string `json:"endpoint"`
	P256dh   string `json:"p256dh"`
	Auth     string `json:"auth"`
}
