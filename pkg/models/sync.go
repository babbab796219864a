package models

import (
	"time"

	json "github.com/goccy/go-json"
)

// ChangeOperation is the kind of mutation queued in the outbox.
type ChangeOperation string

const (
	OpCreate ChangeOperation = "create"
	OpUpdate ChangeOperation = "update"
	OpDelete ChangeOperation = "delete"
)

// LocalChange is an outbox entry: a locally-made mutation not yet confirmed
// applied to the hosted system. Entries are consumed exactly once by the
// conflict detector and retired after a successful push.
type LocalChange struct {
	ID         string          `json:"id"`
	EntityType string          `json:"entityType"`
	EntityID   string          `json:"entityId"`
	Operation  ChangeOperation `json:"operation"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	CreatedAt  time.Time       `json:"createdAt"`
}

// HostedEntity is a snapshot of remote state for one entity. Absence of an
// entity ID in the snapshot map means the entity does not exist (or was
// deleted) on the hosted side.
type HostedEntity struct {
	UpdatedAt time.Time       `json:"updatedAt"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Conflict reports one local change that cannot be safely pushed.
// HostedVersion is nil when the entity was deleted on the hosted side.
// Conflicts are derived, never persisted independently.
type Conflict struct {
	OutboxID      string        `json:"outboxId"`
	EntityID      string        `json:"entityId"`
	EntityType    string        `json:"entityType"`
	LocalChange   LocalChange   `json:"localChange"`
	HostedVersion *HostedEntity `json:"hostedVersion"`
	Reason        string        `json:"reason"`
}

// CloneManifest records one sandbox clone: which canonical files were copied
// and how every original ID was remapped. Created at clone time, read at
// promote/diff time, deleted at teardown.
type CloneManifest struct {
	SandboxID   string            `json:"sandboxId"`
	ClonedAt    time.Time         `json:"clonedAt"`
	ClonedFiles []string          `json:"clonedFiles"`
	IDMappings  map[string]string `json:"idMappings"`
}
