package aggregator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/notifyhub/rental-notifier/internal/claims"
	"github.com/notifyhub/rental-notifier/internal/domain"
	"github.com/notifyhub/rental-notifier/internal/repository"
)

// ChatBacklog notifies a conversation participant about messages from the
// other side that have stayed unread longer than the backlog age.
//
// It is the only detector whose claims are retractable: once the backlog is
// read, cleanup deletes the claim so a later backlog in the same
// conversation can notify again.
type ChatBacklog struct {
	claims   *claims.Store
	state    repository.StateRepository
	notifier Notifier
	age      time.Duration
	now      Clock
	logger   *zap.Logger
}

func NewChatBacklog(
	store *claims.Store,
	state repository.StateRepository,
	notifier Notifier,
	age time.Duration,
	now Clock,
	logger *zap.Logger,
) *ChatBacklog {
	return &ChatBacklog{
		claims: store, state: state, notifier: notifier,
		age: age, now: now, logger: logger.With(zap.String("aggregator", "chat_backlog")),
	}
}

// Run cleans up stale claims, then detects and notifies new backlogs. It
// returns the number of newly claimed backlogs. A cleanup failure is
// reported but does not stop detection.
func (a *ChatBacklog) Run(ctx context.Context) (int, error) {
	now := a.now()

	cleanupErr := a.cleanup(ctx)
	if cleanupErr != nil {
		a.logger.Error("cleanup failed", zap.Error(cleanupErr))
	}

	n, err := a.detect(ctx, now)
	return n, errors.Join(cleanupErr, err)
}

// cleanup retracts every live claim whose (recipient, conversation) pair no
// longer has an unread message from someone other than the recipient.
func (a *ChatBacklog) cleanup(ctx context.Context) error {
	live, err := a.claims.Live(ctx, domain.ConditionChatBacklog, domain.EventChatUnread)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if len(live) == 0 {
		return nil
	}

	pairs := make([]domain.ChatPair, 0, len(live))
	byPair := make(map[domain.ChatPair]domain.ClaimKey, len(live))
	for _, c := range live {
		recipientID, conversationID, err := domain.ParseChatBacklogInstance(c.InstanceID)
		if err != nil {
			a.logger.Warn("skipping malformed claim", zap.String("instance_id", c.InstanceID))
			continue
		}
		p := domain.ChatPair{RecipientID: recipientID, ConversationID: conversationID}
		pairs = append(pairs, p)
		byPair[p] = c.ClaimKey
	}

	unread, err := a.state.StillUnread(ctx, pairs)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}

	var errs []error
	retracted := 0
	for _, p := range pairs {
		if unread[p] {
			continue
		}
		if err := a.claims.Retract(ctx, byPair[p]); err != nil {
			errs = append(errs, err)
			continue
		}
		retracted++
	}
	if retracted > 0 {
		a.logger.Info("retracted resolved backlogs", zap.Int("count", retracted))
	}
	if len(errs) > 0 {
		return fmt.Errorf("cleanup: %w", errors.Join(errs...))
	}
	return nil
}

func (a *ChatBacklog) detect(ctx context.Context, now time.Time) (int, error) {
	groups, err := a.state.UnreadGroups(ctx, now.Add(-a.age))
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}
	if len(groups) == 0 {
		return 0, nil
	}

	ids := make([]string, 0, len(groups))
	seen := make(map[string]struct{}, len(groups))
	for _, g := range groups {
		if _, ok := seen[g.ConversationID]; !ok {
			seen[g.ConversationID] = struct{}{}
			ids = append(ids, g.ConversationID)
		}
	}
	convs, err := a.state.Conversations(ctx, ids)
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}

	keys := make([]domain.ClaimKey, 0, len(groups))
	pending := make(map[domain.ClaimKey]notification, len(groups))
	for _, g := range groups {
		conv, ok := convs[g.ConversationID]
		if !ok {
			continue
		}
		recipientID := conv.CounterParty(g.SenderID)
		if recipientID == "" {
			continue
		}
		key := domain.ChatBacklogKey(recipientID, conv.ID)
		if _, dup := pending[key]; dup {
			continue
		}
		keys = append(keys, key)
		pending[key] = notification{recipientID: recipientID, event: domain.Event{
			Kind: domain.EventChatUnread,
			Data: map[string]any{
				"conversationId": conv.ID,
				"itemTitle":      conv.ItemTitle,
				"unreadCount":    g.Count,
			},
		}}
	}

	claimed, err := a.claims.ClaimBatch(ctx, keys)
	if err != nil {
		return 0, fmt.Errorf("detect: %w", err)
	}

	batch := make([]notification, 0, len(claimed))
	for _, k := range claimed {
		batch = append(batch, pending[k])
	}
	fanOut(ctx, a.notifier, a.logger, batch)

	if len(claimed) > 0 {
		a.logger.Info("notified chat backlogs", zap.Int("count", len(claimed)))
	}
	return len(claimed), nil
}
