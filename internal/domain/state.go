package domain

import "time"

// Read models over upstream marketplace tables. The engine never writes
// these except through the auto-expiry stage.

// UnreadGroup is the count of unread messages one sender left in one
// conversation.
type UnreadGroup struct {
	ConversationID string
	SenderID       string
	Count          int
}

// Conversation is a chat thread between a renter and a listing owner. In
// the marketplace every booking carries its own conversation.
type Conversation struct {
	ID        string
	RenterID  string
	OwnerID   string
	ItemTitle string
}

// CounterParty returns the participant who is not senderID, or "" when
// senderID is not a participant.
func (c Conversation) CounterParty(senderID string) string {
	switch senderID {
	case c.RenterID:
		return c.OwnerID
	case c.OwnerID:
		return c.RenterID
	}
	return ""
}

// ChatPair identifies a (recipient, conversation) backlog.
type ChatPair struct {
	RecipientID    string
	ConversationID string
}

type PendingListing struct {
	ID        string
	Title     string
	CreatedAt time.Time
}

type PendingVerification struct {
	UserID      string
	Name        string
	SubmittedAt time.Time
}

// Booking is the slice of a booking the reminders need.
type Booking struct {
	ID          string
	RenterID    string
	RenterName  string
	OwnerID     string
	ItemTitle   string
	EndDate     time.Time
	CompletedAt *time.Time
}

// CompletedBooking adds review presence, discriminated by author role.
type CompletedBooking struct {
	Booking
	HasRenterReview bool
	HasOwnerReview  bool
}
