package scheduler

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const TaskMagicLinkDelivery = "auth.magic_link.deliver"

// MagicLinkDeliveryPayload carries the sign-in URL, which embeds the raw
// token. Payloads live in Redis only until the link expires.
type MagicLinkDeliveryPayload struct {
	Email     string    `json:"email"`
	SignInURL string    `json:"signInUrl"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ExpiresInMinutes is the lifetime left at now, rounded up.
func (p MagicLinkDeliveryPayload) ExpiresInMinutes(now time.Time) int {
	remaining := p.ExpiresAt.Sub(now)
	if remaining <= 0 {
		return 0
	}
	return int((remaining + time.Minute - 1) / time.Minute)
}

func NewMagicLinkDeliveryTask(payload MagicLinkDeliveryPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMagicLinkDelivery, data), nil
}

func ParseMagicLinkDeliveryPayload(task *asynq.Task) (MagicLinkDeliveryPayload, error) {
	var payload MagicLinkDeliveryPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MagicLinkDeliveryPayload{}, err
	}
	return payload, nil
}
