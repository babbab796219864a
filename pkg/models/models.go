// Package models defines the canonical record set produced by every source
// adapter. Canonical records are source-agnostic: downstream consumers only
// ever see these shapes, never a source's native schema.
package models

import (
	"fmt"
	"time"
)

// TicketStatus is the canonical ticket status enum.
type TicketStatus string

const (
	StatusOpen    TicketStatus = "open"
	StatusPending TicketStatus = "pending"
	StatusOnHold  TicketStatus = "on_hold"
	StatusSolved  TicketStatus = "solved"
	StatusClosed  TicketStatus = "closed"
)

// TicketPriority is the canonical ticket priority enum.
type TicketPriority string

const (
	PriorityUrgent TicketPriority = "urgent"
	PriorityHigh   TicketPriority = "high"
	PriorityNormal TicketPriority = "normal"
	PriorityLow    TicketPriority = "low"
)

// MessageType distinguishes customer-visible replies from internal notes.
type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeReply   MessageType = "reply"
	MessageTypeNote    MessageType = "note"
)

// CanonicalID builds the globally unique, deterministic canonical ID for an
// entity: "<source>-<externalID>".
func CanonicalID(source, externalID string) string {
	return fmt.Sprintf("%s-%s", source, externalID)
}

// Ticket is the canonical support ticket.
type Ticket struct {
	ID           string                 `json:"id"`
	ExternalID   string                 `json:"externalId"`
	Source       string                 `json:"source"`
	Subject      string                 `json:"subject"`
	Status       TicketStatus           `json:"status"`
	Priority     TicketPriority         `json:"priority"`
	Assignee     string                 `json:"assignee,omitempty"`
	Requester    string                 `json:"requester"`
	Tags         []string               `json:"tags"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	CustomFields map[string]interface{} `json:"customFields,omitempty"`
}

// Message is one entry in a ticket's conversation thread. TicketID references
// a Ticket written earlier in the same export run.
type Message struct {
	ID        string      `json:"id"`
	TicketID  string      `json:"ticketId"`
	Author    string      `json:"author"`
	Body      string      `json:"body"`
	Type      MessageType `json:"type"`
	CreatedAt time.Time   `json:"createdAt"`
}

// Customer is the canonical end-user record.
type Customer struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	OrgID      string `json:"orgId,omitempty"`
}

// Organization is the canonical company/organization record.
type Organization struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	Domain     string `json:"domain,omitempty"`
}

// KBArticle is a canonical knowledge-base article.
type KBArticle struct {
	ID           string   `json:"id"`
	ExternalID   string   `json:"externalId"`
	Source       string   `json:"source"`
	Title        string   `json:"title"`
	Body         string   `json:"body"`
	CategoryPath []string `json:"categoryPath"`
}

// Rule is a canonical automation/business rule (triggers, automations).
type Rule struct {
	ID         string `json:"id"`
	ExternalID string `json:"externalId"`
	Source     string `json:"source"`
	Name       string `json:"name"`
	Active     bool   `json:"active"`
	Definition string `json:"definition,omitempty"`
}

// ManifestCounts holds per-type record counts for one export run.
type ManifestCounts struct {
	Tickets       int `json:"tickets"`
	Messages      int `json:"messages"`
	Customers     int `json:"customers"`
	Organizations int `json:"organizations"`
	KBArticles    int `json:"kbArticles"`
	Rules         int `json:"rules"`
}

// ExportManifest summarizes one export run. CursorState carries resumable
// pagination cursors for sources that support them.
type ExportManifest struct {
	Source      string            `json:"source"`
	ExportedAt  time.Time         `json:"exportedAt"`
	Counts      ManifestCounts    `json:"counts"`
	Warnings    []string          `json:"warnings,omitempty"`
	CursorState map[string]string `json:"cursorState,omitempty"`
}
