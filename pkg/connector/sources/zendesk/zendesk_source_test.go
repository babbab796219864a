package zendesk

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// memorySink collects records for assertions.
type memorySink struct {
	tickets  []*models.Ticket
	messages []*models.Message
	warnings []string
}

func (s *memorySink) WriteTicket(t *models.Ticket) error            { s.tickets = append(s.tickets, t); return nil }
func (s *memorySink) WriteMessage(m *models.Message) error          { s.messages = append(s.messages, m); return nil }
func (s *memorySink) WriteCustomer(*models.Customer) error          { return nil }
func (s *memorySink) WriteOrganization(*models.Organization) error  { return nil }
func (s *memorySink) WriteKBArticle(*models.KBArticle) error        { return nil }
func (s *memorySink) WriteRule(*models.Rule) error                  { return nil }
func (s *memorySink) Warn(category, message string) {
	s.warnings = append(s.warnings, category+": "+message)
}

func testConfig(baseURL string) *config.BaseConfig {
	cfg := config.NewBaseConfig("test-zendesk", "zendesk")
	cfg.Performance.PageSize = 2
	cfg.Security.Credentials = map[string]string{
		"subdomain": "acme",
		"email":     "agent@acme.test",
		"api_token": "tok",
		"base_url":  baseURL,
	}
	return cfg
}

func newTestSource(t *testing.T, baseURL string) *Source {
	t.Helper()
	source, err := New(testConfig(baseURL))
	require.NoError(t, err)
	return source.(*Source)
}

func TestExportTickets_CursorPaginationAndHydration(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tickets.json", func(w http.ResponseWriter, r *http.Request) {
		// basic auth uses the email/token form
		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, "agent@acme.test/token", user)
		assert.Equal(t, "tok", pass)

		if r.URL.Query().Get("page[after]") == "" {
			fmt.Fprint(w, `{"tickets":[
				{"id":1,"subject":"printer on fire","status":"open","priority":"urgent","requester_id":7,"tags":["hw"],
				 "created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-02T10:00:00Z"},
				{"id":2,"subject":"slow wifi","status":"hold","priority":"mystery","requester_id":8,
				 "created_at":"2026-08-01T11:00:00Z","updated_at":"2026-08-01T11:00:00Z"}],
				"meta":{"has_more":true,"after_cursor":"cur2"}}`)
			return
		}
		fmt.Fprint(w, `{"tickets":[
			{"id":3,"subject":"password reset","status":"solved","priority":"low","requester_id":9,
			 "created_at":"2026-08-03T09:00:00Z","updated_at":"2026-08-03T09:30:00Z"}],
			"meta":{"has_more":false,"after_cursor":null}}`)
	})
	for _, id := range []int{1, 2, 3} {
		id := id
		mux.HandleFunc(fmt.Sprintf("/api/v2/tickets/%d/comments.json", id), func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprintf(w, `{"comments":[
				{"id":%d00,"author_id":7,"body":"customer visible","public":true,"created_at":"2026-08-01T10:05:00Z"},
				{"id":%d01,"author_id":42,"body":"internal","public":false,"created_at":"2026-08-01T10:06:00Z"}],
				"meta":{"has_more":false}}`, id, id)
		})
	}
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	sink := &memorySink{}

	tickets, messages, err := source.ExportTickets(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 3, tickets)
	assert.Equal(t, 6, messages)
	require.Len(t, sink.tickets, 3)

	first := sink.tickets[0]
	assert.Equal(t, "zendesk-1", first.ID)
	assert.Equal(t, "1", first.ExternalID)
	assert.Equal(t, models.StatusOpen, first.Status)
	assert.Equal(t, models.PriorityUrgent, first.Priority)
	assert.Equal(t, "7", first.Requester)
	assert.Equal(t, []string{"hw"}, first.Tags)

	// unknown native values fall back to defaults
	second := sink.tickets[1]
	assert.Equal(t, models.StatusOnHold, second.Status)
	assert.Equal(t, models.PriorityNormal, second.Priority)

	// the public flag separates replies from notes
	require.Len(t, sink.messages, 6)
	assert.Equal(t, models.MessageTypeReply, sink.messages[0].Type)
	assert.Equal(t, models.MessageTypeNote, sink.messages[1].Type)
	assert.Equal(t, "zendesk-1", sink.messages[0].TicketID)

	// the last cursor seen is exposed for the manifest
	assert.Equal(t, map[string]string{"after_cursor": "cur2"}, source.CursorState())
}

func TestExportTickets_HydrationFailureIsNonFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tickets.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"tickets":[
			{"id":1,"subject":"ok","status":"open","priority":"normal","requester_id":7,
			 "created_at":"2026-08-01T10:00:00Z","updated_at":"2026-08-01T10:00:00Z"}],
			"meta":{"has_more":false}}`)
	})
	mux.HandleFunc("/api/v2/tickets/1/comments.json", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":"comments are broken today"}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	sink := &memorySink{}

	tickets, messages, err := source.ExportTickets(context.Background(), sink)
	require.NoError(t, err)
	assert.Equal(t, 1, tickets)
	assert.Equal(t, 0, messages)
	require.Len(t, sink.warnings, 1)
	assert.Contains(t, sink.warnings[0], "comments")
}

func TestVerify(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/tickets/count.json", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"count":{"value":1234}}`)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	source := newTestSource(t, server.URL)
	result := source.Verify(context.Background())
	require.True(t, result.Success)
	assert.Equal(t, 1234, result.Counts["tickets"])
}

func TestVerify_FailureResolvesWithoutError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"error":"Couldn't authenticate you"}`)
	}))
	defer server.Close()

	source := newTestSource(t, server.URL)
	result := source.Verify(context.Background())
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Error)
}

func TestUpdateTicket_CombinedPut(t *testing.T) {
	var captured map[string]interface{}
	var method, path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		method = r.Method
		path = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &captured))
		fmt.Fprint(w, `{"ticket":{"id":5}}`)
	}))
	defer server.Close()

	source := newTestSource(t, server.URL)

	status := models.StatusOnHold
	tags := []string{"vip"}
	err := source.UpdateTicket(context.Background(), "5", core.TicketUpdate{
		Status: &status,
		Tags:   tags,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, method)
	assert.Equal(t, "/api/v2/tickets/5.json", path)
	ticket := captured["ticket"].(map[string]interface{})
	assert.Equal(t, "hold", ticket["status"])
	assert.Equal(t, []interface{}{"vip"}, ticket["tags"])
	_, hasAssignee := ticket["assignee_id"]
	assert.False(t, hasAssignee)
}

func TestAddReplyAndNote_PublicFlag(t *testing.T) {
	var bodies []map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var payload map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &payload))
		bodies = append(bodies, payload)
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	source := newTestSource(t, server.URL)
	require.NoError(t, source.AddReply(context.Background(), "5", "42", "public answer"))
	require.NoError(t, source.AddNote(context.Background(), "5", "42", "private note"))

	require.Len(t, bodies, 2)
	reply := bodies[0]["ticket"].(map[string]interface{})["comment"].(map[string]interface{})
	note := bodies[1]["ticket"].(map[string]interface{})["comment"].(map[string]interface{})
	assert.Equal(t, true, reply["public"])
	assert.Equal(t, false, note["public"])
}

func TestCreateTicket_ReturnsExternalID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		fmt.Fprint(w, `{"ticket":{"id":9001}}`)
	}))
	defer server.Close()

	source := newTestSource(t, server.URL)
	id, err := source.CreateTicket(context.Background(), &models.Ticket{
		Subject:  "new issue",
		Status:   models.StatusOpen,
		Priority: models.PriorityNormal,
	})
	require.NoError(t, err)
	assert.Equal(t, "9001", id)
}
