package intercom

import (
	"context"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/clients"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// nativeState maps canonical statuses to conversation state changes. Both
// pending and on_hold come back as snoozed; solved and closed both close.
var nativeState = map[models.TicketStatus]string{
	models.StatusOpen:    "open",
	models.StatusPending: "snoozed",
	models.StatusOnHold:  "snoozed",
	models.StatusSolved:  "close",
	models.StatusClosed:  "close",
}

// CreateTicket starts a conversation on behalf of the requester.
func (s *Source) CreateTicket(ctx context.Context, ticket *models.Ticket) (string, error) {
	payload := map[string]interface{}{
		"from": map[string]interface{}{
			"type": "user",
			"id":   ticket.Requester,
		},
		"body": ticket.Subject,
	}
	body, err := s.client.Post(ctx, "/conversations", payload)
	if err != nil {
		return "", err
	}

	var created struct {
		ConversationID string `json:"conversation_id"`
		ID             string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeData, "failed to decode create response")
	}
	if created.ConversationID != "" {
		return created.ConversationID, nil
	}
	return created.ID, nil
}

// UpdateTicket has no combined endpoint: state changes go through
// conversation parts, assignment through an assignment part, tags through
// the tags sub-resource, and priority through a plain conversation PUT.
// Each changed field is its own call.
func (s *Source) UpdateTicket(ctx context.Context, externalID string, update core.TicketUpdate) error {
	if update.Status != nil {
		payload := map[string]interface{}{
			"message_type": nativeState[*update.Status],
			"type":         "admin",
		}
		if _, err := s.client.Post(ctx, "/conversations/"+externalID+"/parts", payload); err != nil {
			return err
		}
	}

	if update.Assignee != nil {
		payload := map[string]interface{}{
			"message_type": "assignment",
			"type":         "admin",
			"admin_id":     *update.Assignee,
		}
		if _, err := s.client.Post(ctx, "/conversations/"+externalID+"/parts", payload); err != nil {
			return err
		}
	}

	if update.Priority != nil {
		native := "not_priority"
		if *update.Priority == models.PriorityHigh || *update.Priority == models.PriorityUrgent {
			native = "priority"
		}
		payload := map[string]interface{}{"priority": native}
		if _, err := s.client.Put(ctx, "/conversations/"+externalID, payload); err != nil {
			return err
		}
	}

	for _, tag := range update.Tags {
		payload := map[string]interface{}{"name": tag}
		if _, err := s.client.Post(ctx, "/conversations/"+externalID+"/tags", payload); err != nil {
			return err
		}
	}

	return nil
}

// AddReply posts an admin comment visible to the contact.
func (s *Source) AddReply(ctx context.Context, externalID, author, body string) error {
	return s.addPart(ctx, externalID, author, body, "comment")
}

// AddNote posts an internal note.
func (s *Source) AddNote(ctx context.Context, externalID, author, body string) error {
	return s.addPart(ctx, externalID, author, body, "note")
}

func (s *Source) addPart(ctx context.Context, externalID, author, body, messageType string) error {
	payload := map[string]interface{}{
		"message_type": messageType,
		"type":         "admin",
		"admin_id":     author,
		"body":         body,
	}
	_, err := s.client.Post(ctx, "/conversations/"+externalID+"/reply", payload)
	return err
}

// DeleteTicket removes a conversation. This call alone requires pinning a
// newer API version via header.
func (s *Source) DeleteTicket(ctx context.Context, externalID string) error {
	_, err := s.client.Delete(ctx, "/conversations/"+externalID, &clients.RequestOptions{
		Headers: map[string]string{"Intercom-Version": deleteAPIVersion},
	})
	return err
}
