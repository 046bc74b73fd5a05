package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/older-wiser/apiserver/internal/events"
	"github.com/older-wiser/apiserver/types"
)

// Lifecycle event subjects published to the broker.
const (
	EventUserRegistered  = "users.registered"
	EventActivityCreated = "activities.created"
	EventActivityUpdated = "activities.updated"
	EventActivityDeleted = "activities.deleted"
)

// EventPublisher emits lifecycle events. Publishing is best-effort: a
// broker failure is logged and never surfaced to the request that
// triggered it. A nil publisher is a no-op, so services can be wired
// without a broker.
type EventPublisher struct {
	pub    events.Publisher
	logger *slog.Logger
}

func NewEventPublisher(pub events.Publisher, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{pub: pub, logger: logger}
}

func (p *EventPublisher) Publish(ctx context.Context, subject string, payload map[string]string) {
	if p == nil || p.pub == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Error("marshal event payload", "subject", subject, "error", err)
		return
	}
	if _, err := p.pub.Publish(ctx, subject, data, nil); err != nil {
		p.logger.Error("publish event", "subject", subject, "error", err)
	}
}

func userEvent(user types.User) map[string]string {
	return map[string]string{
		"userId": strconv.FormatInt(user.ID, 10),
		"email":  user.Email,
	}
}

func activityEvent(activity types.Activity) map[string]string {
	payload := map[string]string{
		"activityId":    strconv.FormatInt(activity.ID, 10),
		"title":         activity.Title,
		"category":      activity.Category,
		"isUserCreated": strconv.FormatBool(activity.IsUserCreated),
	}
	if activity.IsUserCreated {
		payload["createdBy"] = strconv.FormatInt(activity.CreatedBy, 10)
	}
	return payload
}
