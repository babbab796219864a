// Package zendesk implements the Zendesk source adapter: cursor-based
// pagination, basic auth with the email/token form, combined PUT ticket
// updates, and a public flag distinguishing replies from internal notes.
package zendesk

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/clients"
	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/base"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/metrics"
	"github.com/discordwell/ticketbridge/pkg/models"
)

const sourceName = "zendesk"

// statusTable is the full Zendesk status surface. Unknown values fall back
// to open.
var statusTable = models.StatusTable{
	Entries: map[string]models.TicketStatus{
		"new":     models.StatusOpen,
		"open":    models.StatusOpen,
		"pending": models.StatusPending,
		"hold":    models.StatusOnHold,
		"solved":  models.StatusSolved,
		"closed":  models.StatusClosed,
	},
	Default: models.StatusOpen,
}

var priorityTable = models.PriorityTable{
	Entries: map[string]models.TicketPriority{
		"urgent": models.PriorityUrgent,
		"high":   models.PriorityHigh,
		"normal": models.PriorityNormal,
		"low":    models.PriorityLow,
	},
	Default: models.PriorityNormal,
}

// ticketPayload is the Zendesk ticket wire shape.
type ticketPayload struct {
	ID          int64                  `json:"id"`
	Subject     string                 `json:"subject"`
	Status      string                 `json:"status"`
	Priority    string                 `json:"priority"`
	AssigneeID  *int64                 `json:"assignee_id"`
	RequesterID int64                  `json:"requester_id"`
	Tags        []string               `json:"tags"`
	CreatedAt   apiTime                `json:"created_at"`
	UpdatedAt   apiTime                `json:"updated_at"`
	Fields      []customFieldPayload   `json:"custom_fields"`
	Via         map[string]interface{} `json:"via,omitempty"`
}

type customFieldPayload struct {
	ID    int64       `json:"id"`
	Value interface{} `json:"value"`
}

type commentPayload struct {
	ID        int64   `json:"id"`
	AuthorID  int64   `json:"author_id"`
	Body      string  `json:"body"`
	Public    bool    `json:"public"`
	CreatedAt apiTime `json:"created_at"`
}

type userPayload struct {
	ID             int64   `json:"id"`
	Name           string  `json:"name"`
	Email          string  `json:"email"`
	Phone          string  `json:"phone"`
	Role           string  `json:"role"`
	OrganizationID *int64  `json:"organization_id"`
	CreatedAt      apiTime `json:"created_at"`
}

type organizationPayload struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Domains []string `json:"domain_names"`
}

type articlePayload struct {
	ID        int64  `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	SectionID int64  `json:"section_id"`
}

type triggerPayload struct {
	ID     int64  `json:"id"`
	Title  string `json:"title"`
	Active bool   `json:"active"`
}

// Source is the Zendesk source adapter.
type Source struct {
	*base.BaseAdapter

	client     *clients.Client
	subdomain  string
	pageSize   int
	hydrate    bool
	lastCursor string
}

// New creates a Zendesk source adapter.
func New(cfg *config.BaseConfig) (core.Source, error) {
	s := &Source{
		BaseAdapter: base.NewBaseAdapter(sourceName, "1.0.0"),
	}
	if cfg != nil {
		if err := s.Initialize(context.Background(), cfg); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Initialize validates credentials and builds the connector client.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseAdapter.Initialize(ctx, cfg); err != nil {
		return err
	}

	subdomain, err := cfg.Credential("subdomain")
	if err != nil {
		return err
	}
	email, err := cfg.Credential("email")
	if err != nil {
		return err
	}
	apiToken, err := cfg.Credential("api_token")
	if err != nil {
		return err
	}

	s.subdomain = subdomain
	s.pageSize = cfg.Performance.PageSize
	s.hydrate = cfg.Performance.HydrateMessages

	// base_url override for self-hosted proxies and tests
	baseURL := fmt.Sprintf("https://%s.zendesk.com", subdomain)
	if custom, err := cfg.Credential("base_url"); err == nil {
		baseURL = custom
	}

	s.client = clients.NewClient(clients.ClientConfig{
		Name:    sourceName,
		BaseURL: baseURL,
		Auth: &clients.BasicAuth{
			Username: email + "/token",
			Password: apiToken,
		},
		Retry: clients.RetryPolicy{
			RateLimitDefault:    cfg.Reliability.RateLimitDefault,
			MaxRateLimitRetries: cfg.Reliability.MaxRateLimitRetries,
		},
		RateLimitPerSec: cfg.Reliability.RateLimitPerSec,
		RequestTimeout:  cfg.Timeouts.Request,
		ConnectTimeout:  cfg.Timeouts.Connection,
		IdleTimeout:     cfg.Timeouts.Idle,
	}, s.GetLogger())

	s.GetLogger().Info("zendesk source initialized",
		zap.String("subdomain", subdomain),
		zap.Int("page_size", s.pageSize))
	return nil
}

// Verify checks connectivity and returns ticket counts. Failures resolve
// with Success=false, never an error.
func (s *Source) Verify(ctx context.Context) *core.VerifyResult {
	body, err := s.client.Get(ctx, "/api/v2/tickets/count.json")
	if err != nil {
		s.UpdateHealth(false, map[string]interface{}{"error": err.Error()})
		return &core.VerifyResult{Success: false, Error: err.Error()}
	}

	var envelope struct {
		Count struct {
			Value int `json:"value"`
		} `json:"count"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return &core.VerifyResult{Success: false, Error: "unexpected count response shape"}
	}

	s.UpdateHealth(true, map[string]interface{}{"tickets": envelope.Count.Value})
	return &core.VerifyResult{
		Success: true,
		Counts:  map[string]int{"tickets": envelope.Count.Value},
	}
}

// fetch builds a FetchFunc for one API path, recording the last cursor seen
// so exports are resumable.
func (s *Source) fetch(path string) clients.FetchFunc {
	return func(ctx context.Context, params url.Values) (json.RawMessage, error) {
		if err := s.RateLimit(ctx); err != nil {
			return nil, err
		}
		if cursor := params.Get("page[after]"); cursor != "" {
			s.lastCursor = cursor
		}
		target := path
		if query := params.Encode(); query != "" {
			target = target + "?" + query
		}
		var body json.RawMessage
		err := s.ExecuteWithRetry(ctx, func() error {
			var reqErr error
			body, reqErr = s.client.Get(ctx, target)
			return reqErr
		})
		return body, err
	}
}

func (s *Source) cursorPager(path, dataKey string) clients.PageIterator {
	return clients.NewCursorPager(clients.CursorConfig{
		Fetch:         s.fetch(path),
		DataKey:       dataKey,
		CursorParam:   "page[after]",
		NextCursorKey: "meta.after_cursor",
		HasMoreKey:    "meta.has_more",
		PageSize:      s.pageSize,
		SizeParam:     "page[size]",
	})
}

// ExportTickets exports all tickets, hydrating each ticket's comment thread
// before moving to the next. A failed thread fetch is non-fatal: the ticket
// is kept and the export continues.
func (s *Source) ExportTickets(ctx context.Context, sink core.RecordSink) (int, int, error) {
	tickets := 0
	messages := 0

	pager := s.cursorPager("/api/v2/tickets.json", "tickets")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload ticketPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode ticket")
		}

		ticket := s.toCanonicalTicket(&payload)
		if err := sink.WriteTicket(ticket); err != nil {
			return err
		}
		tickets++

		if !s.hydrate {
			return nil
		}

		written, err := s.exportComments(ctx, payload.ID, ticket.ID, sink)
		if err != nil {
			s.GetLogger().Warn("comment hydration failed",
				zap.Int64("ticket_id", payload.ID),
				zap.Error(err))
			metrics.HydrationFailures.WithLabelValues(sourceName, "comments").Inc()
			sink.Warn("comments", fmt.Sprintf("ticket %d: %v", payload.ID, err))
			return nil
		}
		messages += written
		return nil
	})
	if err != nil {
		return tickets, messages, err
	}
	return tickets, messages, nil
}

func (s *Source) exportComments(ctx context.Context, externalID int64, canonicalTicketID string, sink core.RecordSink) (int, error) {
	written := 0
	pager := s.cursorPager(fmt.Sprintf("/api/v2/tickets/%d/comments.json", externalID), "comments")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload commentPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode comment")
		}

		msgType := models.MessageTypeReply
		if !payload.Public {
			msgType = models.MessageTypeNote
		}

		message := &models.Message{
			ID:        models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			TicketID:  canonicalTicketID,
			Author:    strconv.FormatInt(payload.AuthorID, 10),
			Body:      payload.Body,
			Type:      msgType,
			CreatedAt: payload.CreatedAt.Time,
		}
		if err := sink.WriteMessage(message); err != nil {
			return err
		}
		written++
		return nil
	})
	return written, err
}

// ExportCustomers exports end users. Agents carry the "agent" role and are
// skipped; they are not part of the canonical customer set.
func (s *Source) ExportCustomers(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.cursorPager("/api/v2/users.json", "users")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload userPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode user")
		}
		if payload.Role != "end-user" {
			return nil
		}

		customer := &models.Customer{
			ID:         models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			ExternalID: strconv.FormatInt(payload.ID, 10),
			Source:     sourceName,
			Name:       payload.Name,
			Email:      payload.Email,
			Phone:      payload.Phone,
		}
		if payload.OrganizationID != nil {
			customer.OrgID = models.CanonicalID(sourceName, strconv.FormatInt(*payload.OrganizationID, 10))
		}
		if err := sink.WriteCustomer(customer); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportOrganizations exports organizations.
func (s *Source) ExportOrganizations(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.cursorPager("/api/v2/organizations.json", "organizations")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload organizationPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode organization")
		}

		org := &models.Organization{
			ID:         models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			ExternalID: strconv.FormatInt(payload.ID, 10),
			Source:     sourceName,
			Name:       payload.Name,
		}
		if len(payload.Domains) > 0 {
			org.Domain = payload.Domains[0]
		}
		if err := sink.WriteOrganization(org); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportKBArticles exports Help Center articles.
func (s *Source) ExportKBArticles(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.cursorPager("/api/v2/help_center/articles.json", "articles")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload articlePayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode article")
		}

		article := &models.KBArticle{
			ID:           models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			ExternalID:   strconv.FormatInt(payload.ID, 10),
			Source:       sourceName,
			Title:        payload.Title,
			Body:         payload.Body,
			CategoryPath: []string{strconv.FormatInt(payload.SectionID, 10)},
		}
		if err := sink.WriteKBArticle(article); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportRules exports triggers as canonical rules.
func (s *Source) ExportRules(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.cursorPager("/api/v2/triggers.json", "triggers")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload triggerPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode trigger")
		}

		rule := &models.Rule{
			ID:         models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			ExternalID: strconv.FormatInt(payload.ID, 10),
			Source:     sourceName,
			Name:       payload.Title,
			Active:     payload.Active,
			Definition: string(item),
		}
		if err := sink.WriteRule(rule); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// SupportsKBArticles reports Help Center availability.
func (s *Source) SupportsKBArticles() bool { return true }

// SupportsRules reports trigger export availability.
func (s *Source) SupportsRules() bool { return true }

// CursorState returns the last pagination cursor for resumable exports.
func (s *Source) CursorState() map[string]string {
	if s.lastCursor == "" {
		return nil
	}
	return map[string]string{"after_cursor": s.lastCursor}
}

func (s *Source) toCanonicalTicket(payload *ticketPayload) *models.Ticket {
	externalID := strconv.FormatInt(payload.ID, 10)

	ticket := &models.Ticket{
		ID:         models.CanonicalID(sourceName, externalID),
		ExternalID: externalID,
		Source:     sourceName,
		Subject:    payload.Subject,
		Status:     statusTable.Map(payload.Status),
		Priority:   priorityTable.Map(payload.Priority),
		Requester:  strconv.FormatInt(payload.RequesterID, 10),
		Tags:       payload.Tags,
		CreatedAt:  payload.CreatedAt.Time,
		UpdatedAt:  payload.UpdatedAt.Time,
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if payload.AssigneeID != nil {
		ticket.Assignee = strconv.FormatInt(*payload.AssigneeID, 10)
	}
	if len(payload.Fields) > 0 {
		ticket.CustomFields = make(map[string]interface{}, len(payload.Fields))
		for _, field := range payload.Fields {
			ticket.CustomFields[strconv.FormatInt(field.ID, 10)] = field.Value
		}
	}
	return ticket
}
