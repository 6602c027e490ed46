package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/arklim/social-platform-authz/internal/core/domain"
	"github.com/arklim/social-platform-authz/internal/core/port"
	"github.com/arklim/social-platform-authz/internal/infra/config"
)

const schemaVersion = "1.0"

// Event types published to the bus. Topic names derive from these via the
// configured topic prefix.
const (
	EventTypeRoleCreated          = "authz.role.created"
	EventTypeRoleUpdated          = "authz.role.updated"
	EventTypeRoleDeleted          = "authz.role.deleted"
	EventTypeSubjectAccessChanged = "authz.subject.access.changed"
)

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishRoleCreated publishes authz.role.created events.
func (p *EventPublisher) PublishRoleCreated(ctx context.Context, event domain.RoleCreatedEvent) error {
	payload := struct {
		RoleID    string         `json:"role_id"`
		RoleCode  string         `json:"role_code"`
		Actor     string         `json:"actor"`
		CreatedAt time.Time      `json:"created_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:    event.RoleID,
		RoleCode:  event.RoleCode,
		Actor:     event.Actor,
		CreatedAt: event.CreatedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeRoleCreated, "", event.CreatedAt, payload)
}

// PublishRoleUpdated publishes authz.role.updated events. Emitted for both
// scope-template replacement and metadata updates.
func (p *EventPublisher) PublishRoleUpdated(ctx context.Context, event domain.RoleUpdatedEvent) error {
	payload := struct {
		RoleID    string         `json:"role_id"`
		RoleCode  string         `json:"role_code"`
		Revision  int64          `json:"revision"`
		Actor     string         `json:"actor"`
		UpdatedAt time.Time      `json:"updated_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:    event.RoleID,
		RoleCode:  event.RoleCode,
		Revision:  event.Revision,
		Actor:     event.Actor,
		UpdatedAt: event.UpdatedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeRoleUpdated, "", event.UpdatedAt, payload)
}

// PublishRoleDeleted publishes authz.role.deleted events.
func (p *EventPublisher) PublishRoleDeleted(ctx context.Context, event domain.RoleDeletedEvent) error {
	payload := struct {
		RoleID    string         `json:"role_id"`
		RoleCode  string         `json:"role_code"`
		Actor     string         `json:"actor"`
		DeletedAt time.Time      `json:"deleted_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		RoleID:    event.RoleID,
		RoleCode:  event.RoleCode,
		Actor:     event.Actor,
		DeletedAt: event.DeletedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeRoleDeleted, "", event.DeletedAt, payload)
}

// PublishSubjectAccessChanged publishes authz.subject.access.changed events.
// Consumers drop any cached effective permissions for the subject.
func (p *EventPublisher) PublishSubjectAccessChanged(ctx context.Context, event domain.SubjectAccessChangedEvent) error {
	payload := struct {
		UserID    string         `json:"user_id"`
		Change    string         `json:"change"`
		Actor     string         `json:"actor"`
		ChangedAt time.Time      `json:"changed_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		UserID:    event.UserID,
		Change:    event.Change,
		Actor:     event.Actor,
		ChangedAt: event.ChangedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, EventTypeSubjectAccessChanged, event.UserID, event.ChangedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
