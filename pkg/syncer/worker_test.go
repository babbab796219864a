package syncer

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// recordingMutator captures mutation calls in order.
type recordingMutator struct {
	calls []string
}

func (m *recordingMutator) CreateTicket(_ context.Context, ticket *models.Ticket) (string, error) {
	m.calls = append(m.calls, "create:"+ticket.Subject)
	return "999", nil
}

func (m *recordingMutator) UpdateTicket(_ context.Context, externalID string, _ core.TicketUpdate) error {
	m.calls = append(m.calls, "update:"+externalID)
	return nil
}

func (m *recordingMutator) AddReply(_ context.Context, externalID, _, body string) error {
	m.calls = append(m.calls, "reply:"+externalID+":"+body)
	return nil
}

func (m *recordingMutator) AddNote(_ context.Context, externalID, _, body string) error {
	m.calls = append(m.calls, "note:"+externalID+":"+body)
	return nil
}

func (m *recordingMutator) DeleteTicket(_ context.Context, externalID string) error {
	m.calls = append(m.calls, "delete:"+externalID)
	return nil
}

func staticFetcher(hosted map[string]models.HostedEntity) HostedFetcher {
	return func(context.Context) (map[string]models.HostedEntity, error) {
		return hosted, nil
	}
}

func newTestWorker(t *testing.T, outbox *Outbox, mutator core.Mutator, hosted map[string]models.HostedEntity) *Worker {
	t.Helper()
	worker, err := NewWorker(WorkerConfig{
		Outbox:   outbox,
		Fetch:    staticFetcher(hosted),
		Mutator:  mutator,
		Interval: time.Hour,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)
	return worker
}

func TestRunCycle_PushesCleanAndReportsConflicts(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)

	now := time.Now().UTC()
	clean, err := outbox.Enqueue("ticket", "zendesk-1", models.OpUpdate, json.RawMessage(`{"status":"solved"}`))
	require.NoError(t, err)
	conflicted, err := outbox.Enqueue("ticket", "zendesk-2", models.OpUpdate, json.RawMessage(`{"status":"open"}`))
	require.NoError(t, err)

	hosted := map[string]models.HostedEntity{
		"zendesk-1": {UpdatedAt: now.Add(-time.Hour)},
		"zendesk-2": {UpdatedAt: now.Add(time.Hour)}, // hosted copy is newer
	}

	mutator := &recordingMutator{}
	worker := newTestWorker(t, outbox, mutator, hosted)

	result, err := worker.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, result.Pending)
	assert.Equal(t, 1, result.Pushed)
	require.Len(t, result.Conflicts, 1)
	assert.Equal(t, conflicted.ID, result.Conflicts[0].OutboxID)
	assert.Equal(t, []string{"update:1"}, mutator.calls)

	// pushed change is retired, conflicted one stays queued
	pending, err := outbox.Pending()
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, conflicted.ID, pending[0].ID)
	assert.NotEqual(t, clean.ID, pending[0].ID)
}

func TestRunCycle_EmptyOutboxSkipsFetch(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)

	worker, err := NewWorker(WorkerConfig{
		Outbox: outbox,
		Fetch: func(context.Context) (map[string]models.HostedEntity, error) {
			t.Fatal("fetch must not run for an empty outbox")
			return nil, nil
		},
		Mutator:  &recordingMutator{},
		Interval: time.Hour,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	result, err := worker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Pending)
	assert.Equal(t, 0, result.Pushed)
}

func TestRunCycle_MessageCreatesRouteByType(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)

	_, err = outbox.Enqueue("message", "zendesk-m1", models.OpCreate,
		json.RawMessage(`{"ticketId":"zendesk-7","author":"42","body":"hello","type":"reply"}`))
	require.NoError(t, err)
	_, err = outbox.Enqueue("message", "zendesk-m2", models.OpCreate,
		json.RawMessage(`{"ticketId":"zendesk-7","author":"42","body":"internal","type":"note"}`))
	require.NoError(t, err)

	mutator := &recordingMutator{}
	worker := newTestWorker(t, outbox, mutator, map[string]models.HostedEntity{})

	result, err := worker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pushed)
	assert.Equal(t, []string{"reply:7:hello", "note:7:internal"}, mutator.calls)
}

func TestRunCycle_TicketCreateAndDelete(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)

	_, err = outbox.Enqueue("ticket", "zendesk-new", models.OpCreate,
		json.RawMessage(`{"subject":"fresh ticket"}`))
	require.NoError(t, err)
	_, err = outbox.Enqueue("ticket", "zendesk-9", models.OpDelete, nil)
	require.NoError(t, err)

	mutator := &recordingMutator{}
	hosted := map[string]models.HostedEntity{
		"zendesk-9": {UpdatedAt: time.Now().Add(-time.Hour)},
	}
	worker := newTestWorker(t, outbox, mutator, hosted)

	result, err := worker.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Pushed)
	assert.Equal(t, []string{"create:fresh ticket", "delete:9"}, mutator.calls)
}

func TestWorker_StartAndStop(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)

	cycles := make(chan struct{}, 8)
	worker, err := NewWorker(WorkerConfig{
		Outbox:   outbox,
		Fetch:    staticFetcher(nil),
		Mutator:  &recordingMutator{},
		Interval: time.Hour,
		Logger:   zap.NewNop(),
		OnCycle:  func(*CycleResult) { cycles <- struct{}{} },
	})
	require.NoError(t, err)

	worker.Start(context.Background())

	// the immediate first cycle fires before any tick
	select {
	case <-cycles:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle did not run")
	}

	// Stop returns cleanly and is safe to call twice
	worker.Stop()
	worker.Stop()
}

func TestWorker_CycleErrorReportedAndSchedulingContinues(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)
	_, err = outbox.Enqueue("ticket", "zendesk-1", models.OpUpdate, json.RawMessage(`{"status":"solved"}`))
	require.NoError(t, err)

	errs := make(chan error, 8)
	worker, err := NewWorker(WorkerConfig{
		Outbox: outbox,
		Fetch: func(context.Context) (map[string]models.HostedEntity, error) {
			return nil, errors.New(errors.ErrorTypeConnection, "hosted unreachable")
		},
		Mutator:  &recordingMutator{},
		Interval: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
		OnError: func(err error) {
			select {
			case errs <- err:
			default:
			}
		},
	})
	require.NoError(t, err)

	worker.Start(context.Background())

	// two reported errors prove the first failure did not stop the schedule
	for i := 0; i < 2; i++ {
		select {
		case cycleErr := <-errs:
			assert.Contains(t, cycleErr.Error(), "hosted snapshot")
		case <-time.After(5 * time.Second):
			t.Fatalf("cycle error %d was never reported", i+1)
		}
	}

	worker.Stop()
}

func TestWorker_TickSkippedWhileCycleInFlight(t *testing.T) {
	outbox, err := NewOutbox(t.TempDir())
	require.NoError(t, err)
	_, err = outbox.Enqueue("ticket", "zendesk-1", models.OpUpdate, json.RawMessage(`{"status":"solved"}`))
	require.NoError(t, err)

	entered := make(chan struct{})
	release := make(chan struct{})
	var fetches int32
	worker, err := NewWorker(WorkerConfig{
		Outbox: outbox,
		Fetch: func(context.Context) (map[string]models.HostedEntity, error) {
			if atomic.AddInt32(&fetches, 1) == 1 {
				close(entered)
				<-release
			}
			// hosted copy stays newer so the change is never pushed
			return map[string]models.HostedEntity{
				"zendesk-1": {UpdatedAt: time.Now().Add(time.Hour)},
			}, nil
		},
		Mutator:  &recordingMutator{},
		Interval: 10 * time.Millisecond,
		Logger:   zap.NewNop(),
	})
	require.NoError(t, err)

	worker.Start(context.Background())
	select {
	case <-entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first cycle never started")
	}

	// several intervals pass while the first cycle is stuck in its fetch;
	// every one of those ticks must be skipped, not piled up
	time.Sleep(60 * time.Millisecond)
	assert.EqualValues(t, 1, atomic.LoadInt32(&fetches))

	close(release)
	worker.Stop()
}

func TestExternalID(t *testing.T) {
	assert.Equal(t, "123", externalID("zendesk-123"))
	assert.Equal(t, "abc-def", externalID("intercom-abc-def"))
	assert.Equal(t, "raw", externalID("raw"))
}
