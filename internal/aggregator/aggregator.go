// Package aggregator holds the detectors that scan domain state for
// unresolved conditions, claim them and hand new matches to the dispatcher.
//
// Every detector follows the same shape: read "now" once, collect the full
// candidate set, subtract what is already claimed in one batch, and dispatch
// only the slots this run newly claimed. A failed dispatch never undoes its
// claim.
package aggregator

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/notifyhub/rental-notifier/internal/domain"
)

// Notifier delivers one event to one recipient. *dispatch.Dispatcher
// satisfies it.
type Notifier interface {
	Dispatch(ctx context.Context, recipientID string, ev domain.Event) domain.DispatchResult
}

// Clock returns the current time. Tests inject a fixed one.
type Clock func() time.Time

// fanOutLimit caps concurrent Dispatch calls per run.
const fanOutLimit = 8

type notification struct {
	recipientID string
	event       domain.Event
}

// fanOut dispatches every notification and waits for all of them. Each call
// is isolated: a panic in one is logged and does not affect the rest.
func fanOut(ctx context.Context, n Notifier, logger *zap.Logger, batch []notification) {
	var g errgroup.Group
	g.SetLimit(fanOutLimit)
	for _, item := range batch {
		g.Go(func() error {
			defer func() {
				if p := recover(); p != nil {
					logger.Error("dispatch panicked",
						zap.String("recipient_id", item.recipientID),
						zap.String("event", string(item.event.Kind)),
						zap.Any("panic", p))
				}
			}()
			n.Dispatch(ctx, item.recipientID, item.event)
			return nil
		})
	}
	_ = g.Wait()
}
