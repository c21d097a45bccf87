package notifications

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Channel delivers messages for the audiences it accepts.
type Channel interface {
	Name() string
	Accepts(audience enums.NotificationAudience) bool
	Deliver(ctx context.Context, msg Message) error
}

// Dispatcher fans order status changes out to every channel. Delivery is best
// effort: failures are logged and never reach the caller.
type Dispatcher struct {
	channels []Channel
	logg     *logger.Logger
}

func NewDispatcher(logg *logger.Logger, channels ...Channel) (*Dispatcher, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	active := make([]Channel, 0, len(channels))
	for _, ch := range channels {
		if ch != nil {
			active = append(active, ch)
		}
	}
	return &Dispatcher{channels: active, logg: logg}, nil
}

// OrderStatusChanged notifies the customer, and staff where relevant, that
// order moved from the given status. from is empty for a new order.
func (d *Dispatcher) OrderStatusChanged(ctx context.Context, order *models.Order, from enums.OrderStatus) {
	if order == nil {
		return
	}
	ctx = d.logg.WithOrderID(ctx, order.ID.String())
	for _, msg := range buildMessages(order, from) {
		for _, ch := range d.channels {
			if !ch.Accepts(msg.Audience) {
				continue
			}
			d.deliver(ctx, ch, msg)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, msg Message) {
	defer func() {
		if r := recover(); r != nil {
			d.logg.Error(ctx, fmt.Sprintf("notification channel %s panicked", ch.Name()), fmt.Errorf("%v", r))
		}
	}()
	if err := ch.Deliver(ctx, msg); err != nil {
		logCtx := d.logg.WithFields(ctx, map[string]any{
			"channel":  ch.Name(),
			"audience": string(msg.Audience),
			"status":   string(msg.Status),
		})
		d.logg.Warn(logCtx, fmt.Sprintf("notification delivery failed: %v", err))
	}
}
