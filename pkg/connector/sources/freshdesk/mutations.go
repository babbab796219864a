package freshdesk

import (
	"context"
	"fmt"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// CreateTicket creates a ticket. The first message travels as the ticket
// description; Freshdesk has no inline comment object on create.
func (s *Source) CreateTicket(ctx context.Context, ticket *models.Ticket) (string, error) {
	payload := map[string]interface{}{
		"subject":  ticket.Subject,
		"status":   nativeStatus[ticket.Status],
		"priority": nativePriority[ticket.Priority],
		"tags":     ticket.Tags,
	}
	body, err := s.client.Post(ctx, "/api/v2/tickets", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		ID int64 `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode create response")
	}
	return fmt.Sprintf("%d", created.ID), nil
}

// UpdateTicket applies status, priority and tag changes in one PUT.
// Assignee changes map to responder_id on the same call.
func (s *Source) UpdateTicket(ctx context.Context, externalID string, update core.TicketUpdate) error {
	fields := map[string]interface{}{}
	if update.Status != nil {
		fields["status"] = nativeStatus[*update.Status]
	}
	if update.Priority != nil {
		fields["priority"] = nativePriority[*update.Priority]
	}
	if update.Assignee != nil {
		fields["responder_id"] = *update.Assignee
	}
	if update.Tags != nil {
		fields["tags"] = update.Tags
	}
	if len(fields) == 0 {
		return nil
	}

	_, err := s.client.Put(ctx, "/api/v2/tickets/"+externalID, fields)
	return err
}

// AddReply posts to the reply endpoint, which sends mail to the requester.
func (s *Source) AddReply(ctx context.Context, externalID, author, body string) error {
	payload := map[string]interface{}{
		"body":    body,
		"user_id": author,
	}
	_, err := s.client.Post(ctx, fmt.Sprintf("/api/v2/tickets/%s/reply", externalID), payload)
	return err
}

// AddNote posts to the notes endpoint with private set, which does not.
func (s *Source) AddNote(ctx context.Context, externalID, author, body string) error {
	payload := map[string]interface{}{
		"body":    body,
		"user_id": author,
		"private": true,
	}
	_, err := s.client.Post(ctx, fmt.Sprintf("/api/v2/tickets/%s/notes", externalID), payload)
	return err
}

// DeleteTicket moves a ticket to trash.
func (s *Source) DeleteTicket(ctx context.Context, externalID string) error {
	_, err := s.client.Delete(ctx, "/api/v2/tickets/"+externalID, nil)
	return err
}
