package auth

import (
	"context"
	"log/slog"

	"processhub_backend/internal/events"
	"processhub_backend/platform/logger"
)

// Audit writes the session lifecycle to the log from the event bus, so the
// request path never waits on it.
type Audit struct {
	log *logger.Logger
}

var _ events.Subscriber = (*Audit)(nil)

func NewAudit(log *logger.Logger) *Audit {
	if log == nil {
		log = logger.Nop()
	}
	return &Audit{log: log}
}

func (a *Audit) RegisterHandlers(bus events.Bus) {
	bus.Subscribe(events.SessionStarted{}.EventName(), events.Typed(a.sessionStarted))
	bus.Subscribe(events.OrganizationSwitched{}.EventName(), events.Typed(a.organizationSwitched))
	bus.Subscribe(events.RefreshTokenReuseDetected{}.EventName(), events.Typed(a.refreshTokenReused))
}

func (a *Audit) sessionStarted(ctx context.Context, e events.SessionStarted) error {
	a.log.WithContext(ctx).Info("session_started",
		slog.String("event_id", e.EventID().String()),
		slog.String("user_id", e.UserID.String()),
		slog.String("organization_id", e.OrganizationID.String()),
	)
	return nil
}

func (a *Audit) organizationSwitched(ctx context.Context, e events.OrganizationSwitched) error {
	a.log.WithContext(ctx).Info("organization_switched",
		slog.String("event_id", e.EventID().String()),
		slog.String("user_id", e.UserID.String()),
		slog.String("from_organization_id", e.FromID.String()),
		slog.String("to_organization_id", e.ToID.String()),
	)
	return nil
}

// A reused refresh token means the secret was copied. The family is already
// revoked by the time this runs.
func (a *Audit) refreshTokenReused(ctx context.Context, e events.RefreshTokenReuseDetected) error {
	a.log.WithContext(ctx).SecurityEvent("refresh_token_reuse", e.UserID.String(),
		"family "+e.FamilyID.String()+" in organization "+e.OrganizationID.String()+" revoked")
	return nil
}
