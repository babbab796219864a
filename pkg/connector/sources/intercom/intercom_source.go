// Package intercom implements the Intercom source adapter: scroll-based
// pagination, OAuth bearer tokens with transparent refresh, a fixed
// pre-request delay instead of reactive backoff, and mutations spread over
// separate sub-resource calls.
package intercom

import (
	"context"
	"fmt"
	"net/url"
	"time"

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

const (
	sourceName      = "intercom"
	defaultTokenURL = "https://api.intercom.io/auth/eagle/token"

	// deleteAPIVersion pins the API version on conversation deletes only;
	// the default version rejects them.
	deleteAPIVersion = "2.11"

	// requestSpacing is Intercom's mandated minimum gap between requests.
	requestSpacing = 2500 * time.Millisecond
)

var statusTable = models.StatusTable{
	Entries: map[string]models.TicketStatus{
		"open":    models.StatusOpen,
		"snoozed": models.StatusPending,
		"closed":  models.StatusSolved,
	},
	Default: models.StatusOpen,
}

var priorityTable = models.PriorityTable{
	Entries: map[string]models.TicketPriority{
		"priority":     models.PriorityHigh,
		"not_priority": models.PriorityNormal,
	},
	Default: models.PriorityNormal,
}

type conversationPayload struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	State           string    `json:"state"`
	Priority        string    `json:"priority"`
	AdminAssigneeID *int64    `json:"admin_assignee_id"`
	CreatedAt       epochTime `json:"created_at"`
	UpdatedAt       epochTime `json:"updated_at"`
	Source          struct {
		Author struct {
			ID string `json:"id"`
		} `json:"author"`
	} `json:"source"`
	Tags struct {
		Tags []struct {
			Name string `json:"name"`
		} `json:"tags"`
	} `json:"tags"`
}

type conversationDetail struct {
	Parts struct {
		Parts []partPayload `json:"conversation_parts"`
	} `json:"conversation_parts"`
}

type partPayload struct {
	ID       string `json:"id"`
	PartType string `json:"part_type"`
	Body     string `json:"body"`
	Author   struct {
		ID string `json:"id"`
	} `json:"author"`
	CreatedAt epochTime `json:"created_at"`
}

type contactPayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Companies struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	} `json:"companies"`
}

type companyPayload struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Website string `json:"website"`
}

type articlePayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	ParentID *int64 `json:"parent_id"`
}

// Source is the Intercom source adapter.
type Source struct {
	*base.BaseAdapter

	client  *clients.Client
	hydrate bool
}

// New creates an Intercom source adapter.
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
// token cache lives on the auth provider, so one adapter instance refreshes
// without disturbing others.
func (s *Source) Initialize(ctx context.Context, cfg *config.BaseConfig) error {
	if err := s.BaseAdapter.Initialize(ctx, cfg); err != nil {
		return err
	}

	clientID, err := cfg.Credential("client_id")
	if err != nil {
		return err
	}
	clientSecret, err := cfg.Credential("client_secret")
	if err != nil {
		return err
	}
	tokenURL, err := cfg.Credential("token_url")
	if err != nil {
		tokenURL = defaultTokenURL
	}

	s.hydrate = cfg.Performance.HydrateMessages

	auth := clients.NewOAuthProvider(clients.OAuthConfig{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
	}, s.GetLogger())

	// base_url override for regional hosts and tests
	baseURL := "https://api.intercom.io"
	if custom, err := cfg.Credential("base_url"); err == nil {
		baseURL = custom
	}

	spacing := cfg.Reliability.PreRequestDelay
	if spacing <= 0 {
		spacing = requestSpacing
	}

	s.client = clients.NewClient(clients.ClientConfig{
		Name:    sourceName,
		BaseURL: baseURL,
		Auth:    auth,
		Retry: clients.RetryPolicy{
			RateLimitDefault:    cfg.Reliability.RateLimitDefault,
			MaxRateLimitRetries: cfg.Reliability.MaxRateLimitRetries,
			PreRequestDelay:     spacing,
		},
		RateLimitPerSec: cfg.Reliability.RateLimitPerSec,
		RequestTimeout:  cfg.Timeouts.Request,
		ConnectTimeout:  cfg.Timeouts.Connection,
		IdleTimeout:     cfg.Timeouts.Idle,
	}, s.GetLogger())

	s.GetLogger().Info("intercom source initialized",
		zap.Duration("request_spacing", spacing))
	return nil
}

// Verify checks connectivity by fetching the workspace identity.
func (s *Source) Verify(ctx context.Context) *core.VerifyResult {
	body, err := s.client.Get(ctx, "/me")
	if err != nil {
		s.UpdateHealth(false, map[string]interface{}{"error": err.Error()})
		return &core.VerifyResult{Success: false, Error: err.Error()}
	}

	var identity struct {
		App struct {
			IDCode string `json:"id_code"`
		} `json:"app"`
	}
	if err := json.Unmarshal(body, &identity); err != nil {
		return &core.VerifyResult{Success: false, Error: "unexpected identity response shape"}
	}

	s.UpdateHealth(true, map[string]interface{}{"workspace": identity.App.IDCode})
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

func (s *Source) scrollPager(path, dataKey string) clients.PageIterator {
	return clients.NewScrollPager(clients.ScrollConfig{
		Fetch:       s.fetch(path),
		DataKey:     dataKey,
		ScrollParam: "scroll_param",
	})
}

// ExportTickets exports all conversations, hydrating each part thread via
// the conversation detail endpoint. A failed detail fetch is non-fatal.
func (s *Source) ExportTickets(ctx context.Context, sink core.RecordSink) (int, int, error) {
	tickets := 0
	messages := 0

	pager := s.scrollPager("/conversations/scroll", "conversations")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload conversationPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode conversation")
		}

		ticket := s.toCanonicalTicket(&payload)
		if err := sink.WriteTicket(ticket); err != nil {
			return err
		}
		tickets++

		if !s.hydrate {
			return nil
		}

		written, err := s.exportParts(ctx, payload.ID, ticket.ID, sink)
		if err != nil {
			s.GetLogger().Warn("part hydration failed",
				zap.String("conversation_id", payload.ID),
				zap.Error(err))
			metrics.HydrationFailures.WithLabelValues(sourceName, "conversation_parts").Inc()
			sink.Warn("conversation_parts", fmt.Sprintf("conversation %s: %v", payload.ID, err))
			return nil
		}
		messages += written
		return nil
	})
	return tickets, messages, err
}

func (s *Source) exportParts(ctx context.Context, externalID, canonicalTicketID string, sink core.RecordSink) (int, error) {
	if err := s.RateLimit(ctx); err != nil {
		return 0, err
	}
	var body json.RawMessage
	err := s.ExecuteWithRetry(ctx, func() error {
		var fetchErr error
		body, fetchErr = s.client.Get(ctx, "/conversations/"+externalID)
		return fetchErr
	})
	if err != nil {
		return 0, err
	}

	var detail conversationDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeData, "failed to decode conversation detail")
	}

	written := 0
	for _, part := range detail.Parts.Parts {
		if part.Body == "" {
			continue
		}

		msgType := models.MessageTypeReply
		if part.PartType == "note" {
			msgType = models.MessageTypeNote
		}

		message := &models.Message{
			ID:        models.CanonicalID(sourceName, part.ID),
			TicketID:  canonicalTicketID,
			Author:    part.Author.ID,
			Body:      part.Body,
			Type:      msgType,
			CreatedAt: part.CreatedAt.Time,
		}
		if err := sink.WriteMessage(message); err != nil {
			return written, err
		}
		written++
	}
	return written, nil
}

// ExportCustomers exports contacts.
func (s *Source) ExportCustomers(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.scrollPager("/contacts/scroll", "data")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload contactPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode contact")
		}

		customer := &models.Customer{
			ID:         models.CanonicalID(sourceName, payload.ID),
			ExternalID: payload.ID,
			Source:     sourceName,
			Name:       payload.Name,
			Email:      payload.Email,
			Phone:      payload.Phone,
		}
		if len(payload.Companies.Data) > 0 {
			customer.OrgID = models.CanonicalID(sourceName, payload.Companies.Data[0].ID)
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
	pager := s.scrollPager("/companies/scroll", "data")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload companyPayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode company")
		}

		org := &models.Organization{
			ID:         models.CanonicalID(sourceName, payload.ID),
			ExternalID: payload.ID,
			Source:     sourceName,
			Name:       payload.Name,
			Domain:     payload.Website,
		}
		if err := sink.WriteOrganization(org); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportKBArticles exports help center articles.
func (s *Source) ExportKBArticles(ctx context.Context, sink core.RecordSink) (int, error) {
	count := 0
	pager := s.scrollPager("/articles/scroll", "data")
	err := clients.Each(ctx, pager, func(item json.RawMessage) error {
		var payload articlePayload
		if err := json.Unmarshal(item, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "failed to decode article")
		}

		article := &models.KBArticle{
			ID:           models.CanonicalID(sourceName, payload.ID),
			ExternalID:   payload.ID,
			Source:       sourceName,
			Title:        payload.Title,
			Body:         payload.Body,
			CategoryPath: []string{},
		}
		if payload.ParentID != nil {
			article.CategoryPath = []string{fmt.Sprintf("%d", *payload.ParentID)}
		}
		if err := sink.WriteKBArticle(article); err != nil {
			return err
		}
		count++
		return nil
	})
	return count, err
}

// ExportRules is unsupported: Intercom exposes no automation rule listing.
func (s *Source) ExportRules(_ context.Context, _ core.RecordSink) (int, error) {
	return 0, errors.New(errors.ErrorTypeCapability, "intercom adapter does not export automation rules")
}

func (s *Source) SupportsKBArticles() bool { return true }

func (s *Source) SupportsRules() bool { return false }

// CursorState returns nil: scroll handles expire server-side within minutes
// and are not resumable across runs.
func (s *Source) CursorState() map[string]string { return nil }

func (s *Source) toCanonicalTicket(payload *conversationPayload) *models.Ticket {
	ticket := &models.Ticket{
		ID:         models.CanonicalID(sourceName, payload.ID),
		ExternalID: payload.ID,
		Source:     sourceName,
		Subject:    payload.Title,
		Status:     statusTable.Map(payload.State),
		Priority:   priorityTable.Map(payload.Priority),
		Requester:  payload.Source.Author.ID,
		Tags:       []string{},
		CreatedAt:  payload.CreatedAt.Time,
		UpdatedAt:  payload.UpdatedAt.Time,
	}
	if payload.AdminAssigneeID != nil {
		ticket.Assignee = fmt.Sprintf("%d", *payload.AdminAssigneeID)
	}
	for _, tag := range payload.Tags.Tags {
		ticket.Tags = append(ticket.Tags, tag.Name)
	}
	return ticket
}
