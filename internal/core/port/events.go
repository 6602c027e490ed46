package port

import (
	"context"

	"github.com/arklim/social-platform-authz/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishRoleCreated(ctx context.Context, event domain.RoleCreatedEvent) error
	PublishRoleUpdated(ctx context.Context, event domain.RoleUpdatedEvent) error
	PublishRoleDeleted(ctx context.Context, event domain.RoleDeletedEvent) error
	PublishSubjectAccessChanged(ctx context.Context, event domain.SubjectAccessChangedEvent) error
}
