// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"

	"processhub_backend/platform/events"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	Subscriber  = events.Subscriber
)

var (
	NewBaseEvent = events.NewBaseEvent
	Register     = events.Register
)

// Typed adapts fn to a Handler for a single event type.
func Typed[E Event](fn func(ctx context.Context, event E) error) Handler {
	return events.Typed(fn)
}

// MagicLinkRequested is published when a known, active user asks for a
// sign-in link. SignInURL embeds the raw token because delivery is the only
// place the secret leaves the process.
type MagicLinkRequested struct {
	BaseEvent
	UserID    uuid.UUID `json:"userId"`
	Email     string    `json:"email"`
	SignInURL string    `json:"signInUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (e MagicLinkRequested) EventName() string { return "auth.magic_link.requested" }

// RefreshTokenReuseDetected is published when an already rotated refresh
// token is presented again and its family has been revoked.
type RefreshTokenReuseDetected struct {
	BaseEvent
	UserID         uuid.UUID `json:"userId"`
	OrganizationID uuid.UUID `json:"organizationId"`
	FamilyID       uuid.UUID `json:"familyId"`
}

func (e RefreshTokenReuseDetected) EventName() string { return "auth.refresh_token.reuse_detected" }

// SessionStarted is published after a successful magic-link verification.
type SessionStarted struct {
	BaseEvent
	UserID         uuid.UUID `json:"userId"`
	OrganizationID uuid.UUID `json:"organizationId"`
}

func (e SessionStarted) EventName() string { return "auth.session.started" }

// OrganizationSwitched is published when a user moves a session to another
// organization they belong to.
type OrganizationSwitched struct {
	BaseEvent
	UserID uuid.UUID `json:"userId"`
	FromID uuid.UUID `json:"fromOrganizationId"`
	ToID   uuid.UUID `json:"toOrganizationId"`
}

func (e OrganizationSwitched) EventName() string { return "auth.organization.switched" }
