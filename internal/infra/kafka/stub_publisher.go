package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishRoleCreated logs authz.role.created events.
func (p *StubPublisher) PublishRoleCreated(_ context.Context, event domain.RoleCreatedEvent) error {
	payload := map[string]any{
		"role_id":    event.RoleID,
		"role_code":  event.RoleCode,
		"actor":      event.Actor,
		"created_at": event.CreatedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeRoleCreated, "", event.CreatedAt, payload)
	return nil
}

// PublishRoleUpdated logs authz.role.updated events.
func (p *StubPublisher) PublishRoleUpdated(_ context.Context, event domain.RoleUpdatedEvent) error {
	payload := map[string]any{
		"role_id":    event.RoleID,
		"role_code":  event.RoleCode,
		"revision":   event.Revision,
		"actor":      event.Actor,
		"updated_at": event.UpdatedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeRoleUpdated, "", event.UpdatedAt, payload)
	return nil
}

// PublishRoleDeleted logs authz.role.deleted events.
func (p *StubPublisher) PublishRoleDeleted(_ context.Context, event domain.RoleDeletedEvent) error {
	payload := map[string]any{
		"role_id":    event.RoleID,
		"role_code":  event.RoleCode,
		"actor":      event.Actor,
		"deleted_at": event.DeletedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeRoleDeleted, "", event.DeletedAt, payload)
	return nil
}

// PublishSubjectAccessChanged logs authz.subject.access.changed events.
func (p *StubPublisher) PublishSubjectAccessChanged(_ context.Context, event domain.SubjectAccessChangedEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"change":     event.Change,
		"actor":      event.Actor,
		"changed_at": event.ChangedAt,
		"metadata":   event.Metadata,
	}
	p.logEvent(EventTypeSubjectAccessChanged, event.UserID, event.ChangedAt, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
