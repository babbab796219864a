// Package core defines the interfaces every source adapter implements and
// the contracts between adapters and the export pipeline.
package core

import (
	"context"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// VerifyResult reports the outcome of a connection check. Verification never
// returns a Go error: failures resolve with Success=false and a
// human-readable Error, so setup flows can render them directly.
type VerifyResult struct {
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Counts  map[string]int `json:"counts,omitempty"`
}

// RecordSink receives canonical records as an adapter produces them. The
// export pipeline implements this to append each record to its JSONL file
// immediately, so partial runs leave a valid truncated dataset.
type RecordSink interface {
	WriteTicket(ticket *models.Ticket) error
	WriteMessage(message *models.Message) error
	WriteCustomer(customer *models.Customer) error
	WriteOrganization(org *models.Organization) error
	WriteKBArticle(article *models.KBArticle) error
	WriteRule(rule *models.Rule) error

	// Warn records a non-fatal problem (e.g. a failed thread hydration)
	Warn(category, message string)
}

// Source is the interface all source adapters implement. Export methods pull
// pages from the external API, normalize them, and push canonical records
// into the sink. ExportTickets hydrates each ticket's message thread before
// moving to the next ticket, so file line order is deterministic.
type Source interface {
	// Metadata
	Name() string
	Version() string

	// Lifecycle
	Initialize(ctx context.Context, cfg *config.BaseConfig) error
	Close(ctx context.Context) error

	// Verify checks connectivity and credentials
	Verify(ctx context.Context) *VerifyResult

	// Export surface
	ExportTickets(ctx context.Context, sink RecordSink) (int, int, error) // tickets, messages
	ExportCustomers(ctx context.Context, sink RecordSink) (int, error)
	ExportOrganizations(ctx context.Context, sink RecordSink) (int, error)
	ExportKBArticles(ctx context.Context, sink RecordSink) (int, error)
	ExportRules(ctx context.Context, sink RecordSink) (int, error)

	// Capabilities
	SupportsKBArticles() bool
	SupportsRules() bool

	// CursorState returns resumable pagination state for the manifest
	CursorState() map[string]string
}

// TicketUpdate carries the mutable fields of a hosted ticket update. Nil
// pointers mean "unchanged".
type TicketUpdate struct {
	Status   *models.TicketStatus
	Priority *models.TicketPriority
	Assignee *string
	Tags     []string
}

// Mutator is the outbound mutation surface for sources that support pushing
// local changes back to the hosted system. Adapters reproduce each source's
// exact wire contract: some update via one combined PUT, others via separate
// sub-resource calls; replies and notes go to one flagged endpoint or two
// distinct ones depending on the source.
type Mutator interface {
	CreateTicket(ctx context.Context, ticket *models.Ticket) (externalID string, err error)
	UpdateTicket(ctx context.Context, externalID string, update TicketUpdate) error
	AddReply(ctx context.Context, externalID, author, body string) error
	AddNote(ctx context.Context, externalID, author, body string) error
	DeleteTicket(ctx context.Context, externalID string) error
}
