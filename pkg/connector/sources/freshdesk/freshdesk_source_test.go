package freshdesk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/models"
)

type memorySink struct {
	tickets   []*models.Ticket
	messages  []*models.Message
	customers []*models.Customer
	warnings  []string
}

func (s *memorySink) WriteTicket(t *models.Ticket) error { s.tickets = append(s.tickets, t); return nil }
func (s *memorySink) WriteMessage(m *models.Message) error {
	s.messages = append(s.messages, m)
	return nil
}
func (s *memorySink) WriteCustomer(c *models.Customer) error {
	s.customers = append(s.customers, c)
	return nil
}
func (s *memorySink) WriteOrganization(*models.Organization) error { return nil }
func (s *memorySink) WriteKBArticle(*models.KBArticle) error       { return nil }
func (s *memorySink) WriteRule(*models.Rule) error                 { return nil }
func (s *memorySink) Warn(category, message string) {
	s.warnings = append(s.warnings, category+": "+message)
}

func testConfig(baseURL string) *config.BaseConfig {
	cfg := config.NewBaseConfig("test-freshdesk", "freshdesk")
	cfg.Performance.PageSize = 2
	cfg.Security.Credentials = map[string]string{
		"domain":   "acme",
		"api_key":  "fdkey",
		"base_url": baseURL,
	}
	return cfg
}

func newTestSource(t *testing.T, baseURL string) *Source {
	t.Helper()
	source, err := New(testConfig(baseURL))
	require.NoError(t, err)
	return source.(*Source)
}

func TestExportTickets_OffsetPaginationStopsOnShortPage(t *testing.T) {
	var pagesServed int32
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tickets", func(w http.ResponseWriter, r *http.Request) {
		// api key rides in the basic auth username with a literal X password
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "fdkey", user)
		assert.Equal(t, "X", pass)

		atomic.AddInt32(&pagesServed, 1)
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[
				{"id":10,"subject":"numeric codes","status":2,"priority":4,"requester_id":70,
				 "created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"},
				{"id":11,"subject":"waiting on customer","status":6,"priority":1,"requester_id":71,
				 "created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"}]`)
		case "2":
			fmt.Fprint(w, `[
				{"id":12,"subject":"odd status code","status":99,"priority":99,"requester_id":72,
				 "created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"}]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	})
	for _, id := range []int{10, 11, 12} {
		mux.HandleFunc(fmt.Sprintf("/api/v2/tickets/%d/conversations", id), func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `[]`)
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	sink := &memorySink{}

	tickets, _, err := source.ExportTickets(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 3, tickets)
	// the short second page terminates pagination, no third ticket page
	assert.EqualValues(t, 2, atomic.LoadInt32(&pagesServed))

	assert.Equal(t, models.StatusOpen, sink.tickets[0].Status)
	assert.Equal(t, models.PriorityUrgent, sink.tickets[0].Priority)
	assert.Equal(t, models.StatusOnHold, sink.tickets[1].Status)
	assert.Equal(t, models.PriorityLow, sink.tickets[1].Priority)
	// unknown numeric codes resolve to defaults
	assert.Equal(t, models.StatusOpen, sink.tickets[2].Status)
	assert.Equal(t, models.PriorityNormal, sink.tickets[2].Priority)
	assert.Equal(t, "freshdesk-10", sink.tickets[0].ID)
}

func TestExportTickets_ConversationTypes(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tickets", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `[{"id":10,"subject":"t","status":2,"priority":2,"requester_id":70,
				"created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	mux.HandleFunc("/api/v2/tickets/10/conversations", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `[
				{"id":1,"user_id":70,"body_text":"from the customer","private":false,"incoming":true,
				 "created_at":"2026-08-01T10:01:00Z"},
				{"id":2,"user_id":42,"body_text":"agent answer","private":false,"incoming":false,
				 "created_at":"2026-08-01T10:02:00Z"},
				{"id":3,"user_id":42,"body_text":"internal","private":true,"incoming":false,
				 "created_at":"2026-08-01T10:03:00Z"}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	sink := &memorySink{}

	_, messages, err := source.ExportTickets(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 3, messages)
	assert.Equal(t, models.MessageTypeMessage, sink.messages[0].Type)
	assert.Equal(t, models.MessageTypeReply, sink.messages[1].Type)
	assert.Equal(t, models.MessageTypeNote, sink.messages[2].Type)
	assert.Equal(t, "freshdesk-10", sink.messages[0].TicketID)
}

func TestExportCustomers_OrgReference(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/contacts", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "1" {
			fmt.Fprint(w, `[{"id":500,"name":"Ada","email":"ada@acme.test","company_id":900}]`)
			return
		}
		fmt.Fprint(w, `[]`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	sink := &memorySink{}

	count, err := source.ExportCustomers(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, "freshdesk-500", sink.customers[0].ID)
	assert.Equal(t, "freshdesk-900", sink.customers[0].OrgID)
}

func TestUnsupportedCategoriesReturnCapabilityErrors(t *testing.T) {
	source := newTestSource(t, "http://unused.test")

	assert.False(t, source.SupportsKBArticles())
	assert.False(t, source.SupportsRules())

	_, err := source.ExportKBArticles(context.Background(), &memorySink{})
	assert.Error(t, err)
	_, err = source.ExportRules(context.Background(), &memorySink{})
	assert.Error(t, err)
}

func TestMutations_SeparateReplyAndNoteEndpoints(t *testing.T) {
	type call struct {
		method, path string
		payload      map[string]interface{}
	}
	var calls []call
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		_ = json.Unmarshal(body, &payload)
		calls = append(calls, call{r.Method, r.URL.Path, payload})
		fmt.Fprint(w, `{"id":77}`)
	}))
	defer server.Close()

	source := newTestSource(t, server.URL)

	require.NoError(t, source.AddReply(context.Background(), "77", "42", "answer"))
	require.NoError(t, source.AddNote(context.Background(), "77", "42", "memo"))

	status := models.StatusSolved
	priority := models.PriorityHigh
	require.NoError(t, source.UpdateTicket(context.Background(), "77", core.TicketUpdate{
		Status:   &status,
		Priority: &priority,
	}))

	require.Len(t, calls, 3)
	assert.Equal(t, "/api/v2/tickets/77/reply", calls[0].path)
	assert.Equal(t, http.MethodPost, calls[0].method)
	_, replyPrivate := calls[0].payload["private"]
	assert.False(t, replyPrivate)

	assert.Equal(t, "/api/v2/tickets/77/notes", calls[1].path)
	assert.Equal(t, true, calls[1].payload["private"])

	assert.Equal(t, "/api/v2/tickets/77", calls[2].path)
	assert.Equal(t, http.MethodPut, calls[2].method)
	assert.EqualValues(t, 4, calls[2].payload["status"])
	assert.EqualValues(t, 3, calls[2].payload["priority"])
}
