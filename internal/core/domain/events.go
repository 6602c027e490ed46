package domain

import "time"

// RoleCreatedEvent represents the payload for authz.role.created messages.
type RoleCreatedEvent struct {
	EventID   string
	RoleID    string
	RoleCode  string
	Actor     string
	CreatedAt time.Time
	Metadata  map[string]any
}

// RoleUpdatedEvent represents the payload for authz.role.updated messages.
// Emitted for both scope-template replacement and metadata updates.
type RoleUpdatedEvent struct {
	EventID   string
	RoleID    string
	RoleCode  string
	Revision  int64
	Actor     string
	UpdatedAt time.Time
	Metadata  map[string]any
}

// RoleDeletedEvent represents the payload for authz.role.deleted messages.
type RoleDeletedEvent struct {
	EventID   string
	RoleID    string
	RoleCode  string
	Actor     string
	DeletedAt time.Time
	Metadata  map[string]any
}

// SubjectAccessChangedEvent represents the payload for
// authz.subject.access.changed messages. Consumers drop any cached effective
// permissions for the subject.
type SubjectAccessChangedEvent struct {
	EventID   string
	UserID    string
	Change    string
	Actor     string
	ChangedAt time.Time
	Metadata  map[string]any
}
