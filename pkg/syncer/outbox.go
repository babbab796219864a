package syncer

import (
	"os"
	"path/filepath"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/export"
	"github.com/discordwell/ticketbridge/pkg/models"
)

const outboxFile = "outbox.jsonl"

// Outbox is a JSONL-backed queue of local changes awaiting push. Entries
// are appended on enqueue and the file is compacted on retire, so a crash
// never loses a pending change.
type Outbox struct {
	mu   sync.Mutex
	path string
}

// NewOutbox opens (or creates) the outbox under dir.
func NewOutbox(dir string) (*Outbox, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create outbox directory")
	}
	return &Outbox{path: filepath.Join(dir, outboxFile)}, nil
}

// Enqueue records a local change and returns its outbox ID.
func (o *Outbox) Enqueue(entityType, entityID string, op models.ChangeOperation, payload json.RawMessage) (*models.LocalChange, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	change := &models.LocalChange{
		ID:         uuid.NewString(),
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    payload,
		CreatedAt:  time.Now().UTC(),
	}

	w, err := export.NewJSONLWriter(o.path)
	if err != nil {
		return nil, err
	}
	defer w.Close()
	if err := w.Write(change); err != nil {
		return nil, err
	}
	return change, nil
}

// Pending returns all queued changes in enqueue order. Malformed lines are
// skipped.
func (o *Outbox) Pending() ([]models.LocalChange, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.readAll()
}

func (o *Outbox) readAll() ([]models.LocalChange, error) {
	if _, err := os.Stat(o.path); os.IsNotExist(err) {
		return nil, nil
	}

	var changes []models.LocalChange
	_, err := export.ReadJSONL(o.path, func(line json.RawMessage) error {
		var change models.LocalChange
		if err := json.Unmarshal(line, &change); err != nil {
			return nil
		}
		changes = append(changes, change)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return changes, nil
}

// Retire removes the given outbox IDs, rewriting the file with the
// remaining entries in their original order.
func (o *Outbox) Retire(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	changes, err := o.readAll()
	if err != nil {
		return err
	}

	retired := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		retired[id] = struct{}{}
	}

	tmp := o.path + ".tmp"
	os.Remove(tmp)
	w, err := export.NewJSONLWriter(tmp)
	if err != nil {
		return err
	}
	for _, change := range changes {
		if _, ok := retired[change.ID]; ok {
			continue
		}
		if err := w.Write(change); err != nil {
			w.Close()
			os.Remove(tmp)
			return err
		}
	}
	if err := w.Close(); err != nil {
		os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, o.path); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to compact outbox")
	}
	return nil
}
