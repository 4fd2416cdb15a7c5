package domain

import (
	"strings"
	"time"
)

// ConditionType identifies which kind of domain condition a claim belongs to.
type ConditionType string

const (
	ConditionChatBacklog  ConditionType = "message_batch"
	ConditionListing      ConditionType = "item"
	ConditionVerification ConditionType = "user"
	ConditionBooking      ConditionType = "booking"
)

// ClaimKey is the 4-tuple the claim ledger is unique on.
//
// Presence of a row with this key means the recipient has already been
// notified for this exact condition instance and event kind.
type ClaimKey struct {
	ConditionType ConditionType `json:"condition_type"`
	InstanceID    string        `json:"instance_id"`
	EventKind     EventKind     `json:"event_kind"`
	RecipientID   string        `json:"recipient_id"`
}

// Claim is one row of the idempotency ledger.
type Claim struct {
	ID string `json:"id"`
	ClaimKey
	CreatedAt time.Time `json:"created_at"`
}

// ChatBacklogInstance builds the composite instance id used by chat-backlog
// claims. The same conversation can owe a notification to either
// participant independently, so the recipient is part of the instance.
func ChatBacklogInstance(recipientID, conversationID string) string {
	return recipientID + ":" + conversationID
}

// ParseChatBacklogInstance splits a chat-backlog instance id back into its
// recipient and conversation parts.
func ParseChatBacklogInstance(instanceID string) (recipientID, conversationID string, err error) {
	recipientID, conversationID, ok := strings.Cut(instanceID, ":")
	if !ok || recipientID == "" || conversationID == "" {
		return "", "", ErrMalformedInstanceID
	}
	return recipientID, conversationID, nil
}

// ChatBacklogKey returns the claim key for a (recipient, conversation) backlog.
func ChatBacklogKey(recipientID, conversationID string) ClaimKey {
	return ClaimKey{
		ConditionType: ConditionChatBacklog,
		InstanceID:    ChatBacklogInstance(recipientID, conversationID),
		EventKind:     EventChatUnread,
		RecipientID:   recipientID,
	}
}
