package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/port"
)

// SubjectAccessConsumer drops cached effective permissions when access-change
// events are observed. Role update and delete events fan out to every subject
// currently holding the role.
type SubjectAccessConsumer struct {
	cache  port.EffectivePermissionCache
	users  port.UserAccessRepository
	logger *zap.Logger
}

// NewSubjectAccessConsumer constructs a consumer that invalidates the
// effective permission cache. The users repository is optional; without it
// role-level events are ignored.
func NewSubjectAccessConsumer(cache port.EffectivePermissionCache, users port.UserAccessRepository, logger *zap.Logger) *SubjectAccessConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubjectAccessConsumer{cache: cache, users: users, logger: logger}
}

type subjectAccessMessage struct {
	EventType string `json:"event_type"`
	UserID    string `json:"user_id"`
	Payload   struct {
		UserID   string `json:"user_id"`
		RoleCode string `json:"role_code"`
		Change   string `json:"change"`
	} `json:"payload"`
}

// HandleMessage decodes a Kafka message and invalidates affected cache entries.
func (c *SubjectAccessConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	var event subjectAccessMessage
	if err := json.Unmarshal(msg.Value, &event); err != nil {
		return fmt.Errorf("decode subject access event: %w", err)
	}

	switch event.EventType {
	case EventTypeSubjectAccessChanged:
		userID := event.UserID
		if userID == "" {
			userID = event.Payload.UserID
		}
		return c.invalidateSubject(ctx, userID)
	case EventTypeRoleUpdated, EventTypeRoleDeleted:
		return c.invalidateRoleHolders(ctx, event.Payload.RoleCode)
	default:
		// Creation grants nothing until assigned; nothing cached can change.
		return nil
	}
}

func (c *SubjectAccessConsumer) invalidateSubject(ctx context.Context, userID string) error {
	if c.cache == nil || userID == "" {
		return nil
	}

	if err := c.cache.Delete(ctx, userID); err != nil {
		c.logger.Warn("failed to drop cached effective permissions", zap.String("user_id", userID), zap.Error(err))
		return fmt.Errorf("drop effective permissions: %w", err)
	}

	return nil
}

func (c *SubjectAccessConsumer) invalidateRoleHolders(ctx context.Context, roleCode string) error {
	if c.cache == nil || c.users == nil || roleCode == "" {
		return nil
	}

	assignments, err := c.users.ListAssignmentsByRoleCode(ctx, roleCode)
	if err != nil {
		return fmt.Errorf("list role holders: %w", err)
	}

	seen := make(map[string]struct{}, len(assignments))
	for _, assignment := range assignments {
		if _, ok := seen[assignment.UserID]; ok {
			continue
		}
		seen[assignment.UserID] = struct{}{}
		if err := c.invalidateSubject(ctx, assignment.UserID); err != nil {
			return err
		}
	}

	return nil
}
