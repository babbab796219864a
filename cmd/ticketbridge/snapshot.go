package main

import (
	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/models"
)

// snapshotSink collects ticket metadata in memory for conflict detection.
// Only tickets matter: the outbox mutates tickets and their threads, and a
// thread always hangs off a ticket.
type snapshotSink struct {
	entities map[string]models.HostedEntity
}

func newSnapshotSink() *snapshotSink {
	return &snapshotSink{entities: map[string]models.HostedEntity{}}
}

func (s *snapshotSink) WriteTicket(ticket *models.Ticket) error {
	data, err := json.Marshal(ticket)
	if err != nil {
		return err
	}
	s.entities[ticket.ID] = models.HostedEntity{
		UpdatedAt: ticket.UpdatedAt,
		Data:      data,
	}
	return nil
}

func (s *snapshotSink) WriteMessage(*models.Message) error           { return nil }
func (s *snapshotSink) WriteCustomer(*models.Customer) error         { return nil }
func (s *snapshotSink) WriteOrganization(*models.Organization) error { return nil }
func (s *snapshotSink) WriteKBArticle(*models.KBArticle) error       { return nil }
func (s *snapshotSink) WriteRule(*models.Rule) error                 { return nil }
func (s *snapshotSink) Warn(string, string)                          {}
