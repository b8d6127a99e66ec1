package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"processhub_backend/internal/email"
	"processhub_backend/internal/events"
	"processhub_backend/platform/logger"
)

// MagicLinkDelivery moves sign-in links from the event bus to the user's
// inbox. With a queue it enqueues a task for the worker; without one it sends
// inline.
type MagicLinkDelivery struct {
	queue  MagicLinkEnqueuer
	sender email.Sender
	log    *logger.Logger
	now    func() time.Time
}

func NewMagicLinkDelivery(queue MagicLinkEnqueuer, sender email.Sender, log *logger.Logger) *MagicLinkDelivery {
	return &MagicLinkDelivery{queue: queue, sender: sender, log: log, now: time.Now}
}

// RegisterHandlers subscribes the delivery to MagicLinkRequested.
func (d *MagicLinkDelivery) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.MagicLinkRequested{}.EventName(), d)
}

func (d *MagicLinkDelivery) Handle(ctx context.Context, event events.Event) error {
	e, ok := event.(events.MagicLinkRequested)
	if !ok {
		return fmt.Errorf("unexpected event %T", event)
	}

	payload := MagicLinkDeliveryPayload{
		Email:     e.Email,
		SignInURL: e.SignInURL,
		ExpiresAt: e.ExpiresAt,
	}

	if d.queue != nil {
		err := d.queue.EnqueueMagicLinkDelivery(ctx, payload)
		if err == nil {
			return nil
		}
		d.log.Warn("magic link enqueue failed, sending inline",
			slog.String("email_fp", logger.EmailFingerprint(e.Email)),
			slog.String("error", err.Error()),
		)
	}
	return d.send(ctx, payload)
}

func (d *MagicLinkDelivery) send(ctx context.Context, payload MagicLinkDeliveryPayload) error {
	minutes := payload.ExpiresInMinutes(d.now())
	if minutes == 0 {
		d.log.Info("magic link expired before delivery", slog.String("email_fp", logger.EmailFingerprint(payload.Email)))
		return nil
	}
	if err := d.sender.SendMagicLinkEmail(ctx, payload.Email, payload.SignInURL, minutes); err != nil {
		return fmt.Errorf("send magic link: %w", err)
	}
	return nil
}

var _ events.Handler = (*MagicLinkDelivery)(nil)
