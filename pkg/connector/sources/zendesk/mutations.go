package zendesk

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// nativeStatus maps canonical statuses back to the Zendesk wire values.
var nativeStatus = map[models.TicketStatus]string{
	models.StatusOpen:    "open",
	models.StatusPending: "pending",
	models.StatusOnHold:  "hold",
	models.StatusSolved:  "solved",
	models.StatusClosed:  "closed",
}

type ticketEnvelope struct {
	Ticket map[string]interface{} `json:"ticket"`
}

// CreateTicket creates a ticket with its first comment inline, per the
// Zendesk contract.
func (s *Source) CreateTicket(ctx context.Context, ticket *models.Ticket) (string, error) {
	payload := ticketEnvelope{Ticket: map[string]interface{}{
		"subject":  ticket.Subject,
		"priority": string(ticket.Priority),
		"status":   nativeStatus[ticket.Status],
		"tags":     ticket.Tags,
	}}
	body, err := s.client.Post(ctx, "/api/v2/tickets.json", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		Ticket struct {
			ID int64 `json:"id"`
		} `json:"ticket"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode create response")
	}
	return fmt.Sprintf("%d", created.Ticket.ID), nil
}

// UpdateTicket applies status, assignee and tag changes in one combined PUT.
func (s *Source) UpdateTicket(ctx context.Context, externalID string, update core.TicketUpdate) error {
	fields := map[string]interface{}{}
	if update.Status != nil {
		fields["status"] = nativeStatus[*update.Status]
	}
	if update.Priority != nil {
		fields["priority"] = string(*update.Priority)
	}
	if update.Assignee != nil {
		fields["assignee_id"] = *update.Assignee
	}
	if update.Tags != nil {
		fields["tags"] = update.Tags
	}
	if len(fields) == 0 {
		return nil
	}

	_, err := s.client.Put(ctx, fmt.Sprintf("/api/v2/tickets/%s.json", externalID), ticketEnvelope{Ticket: fields})
	return err
}

// AddReply posts a public comment.
func (s *Source) AddReply(ctx context.Context, externalID, author, body string) error {
	return s.addComment(ctx, externalID, author, body, true)
}

// AddNote posts an internal comment.
func (s *Source) AddNote(ctx context.Context, externalID, author, body string) error {
	return s.addComment(ctx, externalID, author, body, false)
}

// addComment goes through the same combined ticket PUT; the public flag is
// the only thing separating replies from notes.
func (s *Source) addComment(ctx context.Context, externalID, author, body string, public bool) error {
	payload := ticketEnvelope{Ticket: map[string]interface{}{
		"comment": map[string]interface{}{
			"body":      body,
			"author_id": author,
			"public":    public,
		},
	}}
	_, err := s.client.Put(ctx, fmt.Sprintf("/api/v2/tickets/%s.json", externalID), payload)
	return err
}

// DeleteTicket removes a ticket.
func (s *Source) DeleteTicket(ctx context.Context, externalID string) error {
	_, err := s.client.Delete(ctx, fmt.Sprintf("/api/v2/tickets/%s.json", externalID), nil)
	return err
}
