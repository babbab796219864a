package syncer

import (
	"context"
	"strings"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/metrics"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// HostedFetcher returns the current hosted snapshot for every entity the
// outbox may reference.
type HostedFetcher func(ctx context.Context) (map[string]models.HostedEntity, error)

// CycleResult summarizes one sync cycle.
type CycleResult struct {
	CycleID   string
	StartedAt time.Time
	Duration  time.Duration
	Pending   int
	Pushed    int
	Conflicts []models.Conflict
}

// WorkerConfig configures a sync Worker.
type WorkerConfig struct {
	Outbox   *Outbox
	Fetch    HostedFetcher
	Mutator  core.Mutator
	Interval time.Duration
	Logger   *zap.Logger

	// OnCycle runs after every completed cycle
	OnCycle func(*CycleResult)
	// OnError runs when a cycle fails
	OnError func(error)
}

// Worker runs sync cycles at a fixed interval. A cycle drains the outbox,
// detects conflicts against hosted state, pushes the clean changes, and
// retires what was pushed. Cycles never overlap: a tick arriving while a
// cycle is still running is skipped. Stop halts scheduling but lets an
// in-flight cycle finish.
type Worker struct {
	cfg    WorkerConfig
	logger *zap.Logger

	mu      sync.Mutex
	running bool

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewWorker creates a sync worker.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Outbox == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sync worker requires an outbox")
	}
	if cfg.Fetch == nil {
		return nil, errors.New(errors.ErrorTypeConfig, "sync worker requires a hosted fetcher")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		cfg:    cfg,
		logger: logger.With(zap.String("component", "sync_worker")),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}, nil
}

// Start begins the schedule: one cycle immediately, then one per interval.
// It returns once the loop goroutine is running.
func (w *Worker) Start(ctx context.Context) {
	go func() {
		defer close(w.doneCh)

		w.tick(ctx)

		ticker := time.NewTicker(w.cfg.Interval)
		defer ticker.Stop()

		for {
			select {
			case <-w.stopCh:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.tick(ctx)
			}
		}
	}()
}

// Stop halts scheduling and waits for any in-flight cycle to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() { close(w.stopCh) })
	<-w.doneCh
}

func (w *Worker) tick(ctx context.Context) {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Warn("previous cycle still running, skipping tick")
		metrics.SyncCycles.WithLabelValues("skipped").Inc()
		return
	}
	w.running = true
	w.mu.Unlock()

	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	result, err := w.RunCycle(ctx)
	if err != nil {
		metrics.SyncCycles.WithLabelValues("error").Inc()
		w.logger.Error("sync cycle failed", zap.Error(err))
		if w.cfg.OnError != nil {
			w.cfg.OnError(err)
		}
		return
	}

	metrics.SyncCycles.WithLabelValues("success").Inc()
	if w.cfg.OnCycle != nil {
		w.cfg.OnCycle(result)
	}
}

// RunCycle executes a single synchronization cycle.
func (w *Worker) RunCycle(ctx context.Context) (*CycleResult, error) {
	result := &CycleResult{
		CycleID:   uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}
	logger := w.logger.With(zap.String("cycle_id", result.CycleID))

	changes, err := w.cfg.Outbox.Pending()
	if err != nil {
		return nil, err
	}
	result.Pending = len(changes)
	if len(changes) == 0 {
		result.Duration = time.Since(result.StartedAt)
		logger.Debug("outbox empty, nothing to sync")
		return result, nil
	}

	hosted, err := w.cfg.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConnection, "failed to fetch hosted snapshot")
	}

	result.Conflicts = DetectConflicts(changes, hosted)
	clean, conflicted := PartitionChanges(changes, result.Conflicts)

	var pushed []string
	for _, change := range clean {
		if err := w.push(ctx, change); err != nil {
			// retire what already landed before surfacing the error
			if retireErr := w.cfg.Outbox.Retire(pushed); retireErr != nil {
				logger.Error("failed to retire pushed changes", zap.Error(retireErr))
			}
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to push change "+change.ID)
		}
		pushed = append(pushed, change.ID)
	}

	if err := w.cfg.Outbox.Retire(pushed); err != nil {
		return nil, err
	}

	result.Pushed = len(pushed)
	result.Duration = time.Since(result.StartedAt)
	logger.Info("sync cycle complete",
		zap.Int("pending", result.Pending),
		zap.Int("pushed", result.Pushed),
		zap.Int("conflicted", len(conflicted)),
		zap.Duration("elapsed", result.Duration))
	return result, nil
}

// ticketUpdatePayload is the outbox payload shape for ticket updates.
type ticketUpdatePayload struct {
	Status   *models.TicketStatus   `json:"status,omitempty"`
	Priority *models.TicketPriority `json:"priority,omitempty"`
	Assignee *string                `json:"assignee,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
}

// messagePayload is the outbox payload shape for new replies and notes.
type messagePayload struct {
	TicketID string             `json:"ticketId"`
	Author   string             `json:"author"`
	Body     string             `json:"body"`
	Type     models.MessageType `json:"type"`
}

func (w *Worker) push(ctx context.Context, change models.LocalChange) error {
	if w.cfg.Mutator == nil {
		return errors.New(errors.ErrorTypeCapability, "source does not support outbound mutations")
	}

	switch change.EntityType {
	case "ticket":
		return w.pushTicket(ctx, change)
	case "message":
		return w.pushMessage(ctx, change)
	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown outbox entity type %q", change.EntityType)
	}
}

func (w *Worker) pushTicket(ctx context.Context, change models.LocalChange) error {
	switch change.Operation {
	case models.OpCreate:
		var ticket models.Ticket
		if err := json.Unmarshal(change.Payload, &ticket); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "invalid ticket create payload")
		}
		_, err := w.cfg.Mutator.CreateTicket(ctx, &ticket)
		return err

	case models.OpUpdate:
		var payload ticketUpdatePayload
		if err := json.Unmarshal(change.Payload, &payload); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "invalid ticket update payload")
		}
		return w.cfg.Mutator.UpdateTicket(ctx, externalID(change.EntityID), core.TicketUpdate{
			Status:   payload.Status,
			Priority: payload.Priority,
			Assignee: payload.Assignee,
			Tags:     payload.Tags,
		})

	case models.OpDelete:
		return w.cfg.Mutator.DeleteTicket(ctx, externalID(change.EntityID))

	default:
		return errors.Newf(errors.ErrorTypeValidation, "unknown outbox operation %q", change.Operation)
	}
}

func (w *Worker) pushMessage(ctx context.Context, change models.LocalChange) error {
	if change.Operation != models.OpCreate {
		return errors.Newf(errors.ErrorTypeValidation, "messages only support create, got %q", change.Operation)
	}

	var payload messagePayload
	if err := json.Unmarshal(change.Payload, &payload); err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "invalid message payload")
	}

	ticketID := externalID(payload.TicketID)
	if payload.Type == models.MessageTypeNote {
		return w.cfg.Mutator.AddNote(ctx, ticketID, payload.Author, payload.Body)
	}
	return w.cfg.Mutator.AddReply(ctx, ticketID, payload.Author, payload.Body)
}

// externalID strips the source prefix from a canonical ID. Source names
// never contain hyphens, so the first hyphen is the separator.
func externalID(canonicalID string) string {
	if _, rest, ok := strings.Cut(canonicalID, "-"); ok {
		return rest
	}
	return canonicalID
}
