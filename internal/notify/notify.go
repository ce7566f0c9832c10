// Package notify delivers order events after they are committed.
package notify

import (
	"context"

	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/commerce-engine/internal/domain/order"
)

var (
	_ order.Notifier = Logger{}
	_ order.Notifier = Fanout(nil)
)

// Logger writes order events to the context logger.
type Logger struct{}

// OrderPlaced logs a new order.
func (Logger) OrderPlaced(ctx context.Context, o *order.Order) error {
	zctx.From(ctx).Info("Order placed",
		zap.String("order.number", o.Number),
		zap.String("order.user", o.UserID),
		zap.Int("order.items", len(o.Items)),
		zap.String("order.total", o.Total.StringFixed(2)),
	)
	return nil
}

// StatusChanged logs a status transition.
func (Logger) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	zctx.From(ctx).Info("Order status changed",
		zap.String("order.number", o.Number),
		zap.String("order.from", string(from)),
		zap.String("order.to", string(o.Status)),
	)
	return nil
}

// Fanout sends every event to each notifier in turn. All notifiers are
// tried; the first error is returned.
type Fanout []order.Notifier

// OrderPlaced implements order.Notifier.
func (f Fanout) OrderPlaced(ctx context.Context, o *order.Order) error {
	var first error
	for _, n := range f {
		if err := n.OrderPlaced(ctx, o); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// StatusChanged implements order.Notifier.
func (f Fanout) StatusChanged(ctx context.Context, o *order.Order, from order.Status) error {
	var first error
	for _, n := range f {
		if err := n.StatusChanged(ctx, o, from); err != nil && first == nil {
			first = err
		}
	}
	return first
}
