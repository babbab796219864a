// Package freshdesk implements the Freshdesk source adapter: page-number
// offset pagination over bare-array responses, basic auth with the API key
// as username, numeric status/priority codes, and distinct reply and note
// endpoints.
package freshdesk

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

const sourceName = "freshdesk"

// Freshdesk encodes status and priority as integers on the wire.
var statusTable = models.StatusTable{
	Entries: map[string]models.TicketStatus{
		"2": models.StatusOpen,
		"3": models.StatusPending,
		"4": models.StatusSolved,
		"5": models.StatusClosed,
		"6": models.StatusOnHold, // waiting on customer
		"7": models.StatusOnHold, // waiting on third party
	},
	Default: models.StatusOpen,
}

var priorityTable = models.PriorityTable{
	Entries: map[string]models.TicketPriority{
		"1": models.PriorityLow,
		"2": models.PriorityNormal,
		"3": models.PriorityHigh,
		"4": models.PriorityUrgent,
	},
	Default: models.PriorityNormal,
}

var nativeStatus = map[models.TicketStatus]int{
	models.StatusOpen:    2,
	models.StatusPending: 3,
	models.StatusSolved:  4,
	models.StatusClosed:  5,
	models.StatusOnHold:  6,
}

var nativePriority = map[models.TicketPriority]int{
	models.PriorityLow:    1,
	models.PriorityNormal: 2,
	models.PriorityHigh:   3,
	models.PriorityUrgent: 4,
}

type ticketPayload struct {
	ID           int64                  `json:"id"`
	Subject      string                 `json:"subject"`
	Status       int                    `json:"status"`
	Priority     int                    `json:"priority"`
	ResponderID  *int64                 `json:"responder_id"`
	RequesterID  int64                  `json:"requester_id"`
	Tags         []string               `json:"tags"`
	CreatedAt    apiTime                `json:"created_at"`
	UpdatedAt    apiTime                `json:"updated_at"`
	CustomFields map[string]interface{} `json:"custom_fields"`
}

type conversationPayload struct {
	ID        int64   `json:"id"`
	UserID    int64   `json:"user_id"`
	BodyText  string  `json:"body_text"`
	Private   bool    `json:"private"`
	Incoming  bool    `json:"incoming"`
	CreatedAt apiTime `json:"created_at"`
}

type contactPayload struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	CompanyID *int64 `json:"company_id"`
}

type companyPayload struct {
	ID      int64    `json:"id"`
	Name    string   `json:"name"`
	Domains []string `json:"domains"`
}

// Source is the Freshdesk source adapter.
type Source struct {
	*base.BaseAdapter

	client   *clients.Client
	domain   string
	pageSize int
	hydrate  bool
}

// New creates a Freshdesk source adapter.
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

// Initialize validates credentials and builds the connector client. The
// Freshdesk API key goes in the basic-auth username slot with a literal
// "X" password.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseAdapter.Initialize(ctx, cfg); err != nil {
		return err
	}

	domain, err := cfg.Credential("domain")
	if err != nil {
		return err
	}
	apiKey, err := cfg.Credential("api_key")
	if err != nil {
		return err
	}

	s.domain = domain
	s.pageSize = cfg.Performance.PageSize
	s.hydrate = cfg.Performance.HydrateMessages

	// base_url override for self-hosted proxies and tests
	baseURL := fmt.Sprintf("https://%s.freshdesk.com", domain)
	if custom, err := cfg.Credential("base_url"); err == nil {
		baseURL = custom
	}

	s.client = clients.NewClient(clients.ClientConfig{
		Name:    sourceName,
		BaseURL: baseURL,
		Auth: &clients.BasicAuth{
			Username: apiKey,
			Password: "X",
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

	s.GetLogger().Info("freshdesk source initialized",
		zap.String("domain", domain),
		zap.Int("page_size", s.pageSize))
	return nil
}

// Verify checks connectivity by fetching a single-ticket page.
func (s *Source) Verify(ctx context.Context) *core.VerifyResult {
	body, err := s.client.Get(ctx, "/api/v2/tickets?per_page=1")
	if err != nil {
		s.UpdateHealth(false, map[string]interface{}{"error": err.Error()})
		return &core.VerifyResult{Success: false, Error: err.Error()}
	}

	var page []json.RawMessage
	if err := json.Unmarshal(body, &page); err != nil {
		return &core.VerifyResult{Success: false, Error: "unexpected ticket list response shape"}
	}

	s.UpdateHealth(true, nil)
	return &core.VerifyResult{Success: true}
}

func (s *Source) fetch(path string) clients.FetchFunc {
	return func(ctx context.Context, params url.Values) (json.RawMessage, error) {
		if err := s.RateLimit(ctx); err != nil {
			return nil, err
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

// offsetPager builds a page-number iterator. Freshdesk responses are bare
// arrays with no envelope, so termination is the short page.
func (s *Source) offsetPager(path string) clients.PageIterator {
	return clients.NewOffsetPager(clients.OffsetConfig{
		Fetch:     s.fetch(path),
		PageParam: "page",
		SizeParam: "per_page",
		PageSize:  s.pageSize,
	})
}

// ExportTickets exports all tickets, hydrating each conversation thread. A
// failed thread fetch is non-fatal.
func (s *Source) ExportTickets(ctx context.Context, sink core.RecordSink) (int, int, error) {
	tickets := 0
	messages := 0

	pager := s.offsetPager("/api/v2/tickets")
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

		written, err := s.exportConversations(ctx, payload.ID, ticket.ID, sink)
		if err != nil {
			s.GetLogger().Warn("conversation hydration failed",
				zap.Int64("ticket_id", payload.ID),
				zap.Error(err))
			metrics.HydrationFailures.WithLabelValues(sourceName, "conversations").Inc()
			sink.Warn("conversations", fmt.Sprintf("ticket %d: %v", payload.ID, err))
			return nil
		}
		messages += written
		return nil
	})
	return tickets, messages, err
}

func (s *Source) exportConversations(ctx context.Context, externalID int64, canonicalTicketID string, sink core.RecordSink) (int, error) {
	written := 0
	pager := s.offsetPager(fmt.Sprintf("/api/v2/tickets/%d/conversations", externalID))
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload conversationPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode conversation")
		}

		msgType := models.MessageTypeReply
		if payload.Private {
			msgType = models.MessageTypeNote
		} else if payload.Incoming {
			msgType = models.MessageTypeMessage
		}

		message := &models.Message{
			ID:        models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			TicketID:  canonicalTicketID,
			Author:    strconv.FormatInt(payload.UserID, 10),
			Body:      payload.BodyText,
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

// ExportCustomers exports contacts.
func (s *Source) ExportCustomers(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.offsetPager("/api/v2/contacts")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload contactPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode contact")
		}

		customer := &models.Customer{
			ID:         models.CanonicalID(sourceName, strconv.FormatInt(payload.ID, 10)),
			ExternalID: strconv.FormatInt(payload.ID, 10),
			Source:     sourceName,
			Name:       payload.Name,
			Email:      payload.Email,
			Phone:      payload.Phone,
		}
		if payload.CompanyID != nil {
			customer.OrgID = models.CanonicalID(sourceName, strconv.FormatInt(*payload.CompanyID, 10))
		}
		if err := sink.WriteCustomer(customer); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportOrganizations exports companies.
func (s *Source) ExportOrganizations(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.offsetPager("/api/v2/companies")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload companyPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode company")
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

// ExportKBArticles is unsupported: the solutions API requires category and
// folder traversal this adapter does not implement.
func (s *Source) ExportKBArticles(_ context.Context, _ core.RecordSink) (int, error) {
	return 0, errors.New(errors.ErrorTypeCapability, "freshdesk adapter does not export knowledge base articles")
}

// ExportRules is unsupported.
func (s *Source) ExportRules(_ context.Context, _ core.RecordSink) (int, error) {
	return 0, errors.New(errors.ErrorTypeCapability, "freshdesk adapter does not export automation rules")
}

func (s *Source) SupportsKBArticles() bool { return false }

func (s *Source) SupportsRules() bool { return false }

// CursorState returns nil: page-number pagination has no resumable cursor.
func (s *Source) CursorState() map[string]string { return nil }

func (s *Source) toCanonicalTicket(payload *ticketPayload) *models.Ticket {
	externalID := strconv.FormatInt(payload.ID, 10)

	ticket := &models.Ticket{
		ID:           models.CanonicalID(sourceName, externalID),
		ExternalID:   externalID,
		Source:       sourceName,
		Subject:      payload.Subject,
		Status:       statusTable.Map(strconv.Itoa(payload.Status)),
		Priority:     priorityTable.Map(strconv.Itoa(payload.Priority)),
		Requester:    strconv.FormatInt(payload.RequesterID, 10),
		Tags:         payload.Tags,
		CreatedAt:    payload.CreatedAt.Time,
		UpdatedAt:    payload.UpdatedAt.Time,
		CustomFields: payload.CustomFields,
	}
	if ticket.Tags == nil {
		ticket.Tags = []string{}
	}
	if payload.ResponderID != nil {
		ticket.Assignee = strconv.FormatInt(*payload.ResponderID, 10)
	}
	return ticket
}
