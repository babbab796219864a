// Package sandbox clones exported canonical datasets into isolated sandbox
// directories with fresh identities, so experiments never touch the
// originals.
package sandbox

import (
	"os"
	"path/filepath"
	"regexp"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/export"
	"github.com/discordwell/ticketbridge/pkg/models"
)

const manifestFile = "clone_manifest.json"

var sandboxIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// CloneOptions controls what a clone includes.
type CloneOptions struct {
	// IncludeRules copies automation rules into the sandbox
	IncludeRules bool
}

// Manager clones exported datasets into sandboxes under root/sandboxes/.
type Manager struct {
	root   string
	logger *zap.Logger
}

// NewManager creates a sandbox manager rooted at root.
func NewManager(root string, logger *zap.Logger) *Manager {
	return &Manager{
		root:   root,
		logger: logger.With(zap.String("component", "sandbox")),
	}
}

// sandboxDir validates the sandbox ID and resolves its directory. IDs are
// restricted to a single path element of safe characters so a crafted ID
// can never escape the sandbox root.
func (m *Manager) sandboxDir(sandboxID string) (string, error) {
	if sandboxID == "" {
		return "", errors.New(errors.ErrorTypeValidation, "sandbox ID must not be empty")
	}
	if !sandboxIDPattern.MatchString(sandboxID) {
		return "", errors.Newf(errors.ErrorTypeValidation, "invalid sandbox ID %q: only letters, digits, underscore and hyphen are allowed", sandboxID)
	}
	return filepath.Join(m.root, "sandboxes", sandboxID), nil
}

// Clone copies one source's export directory into a new sandbox. Every
// record gets a fresh UUID identity, and references between records
// (message to ticket, customer to organization) are rewritten to the new
// IDs so the clone is internally consistent.
func (m *Manager) Clone(sourceDir, sandboxID string, opts CloneOptions) (*models.CloneManifest, error) {
	dir, err := m.sandboxDir(sandboxID)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(dir); err == nil {
		return nil, errors.Newf(errors.ErrorTypeConflict, "sandbox %q already exists", sandboxID)
	}

	ds, err := export.LoadDataset(sourceDir)
	if err != nil {
		return nil, err
	}

	mappings := map[string]string{}
	remap := func(oldID string) string {
		if oldID == "" {
			return ""
		}
		if newID, ok := mappings[oldID]; ok {
			return newID
		}
		newID := uuid.NewString()
		mappings[oldID] = newID
		return newID
	}

	// Assign fresh identities before rewriting references, so a reference
	// to a record that appears later in its file still resolves.
	for i := range ds.Tickets {
		ds.Tickets[i].ID = remap(ds.Tickets[i].ID)
	}
	for i := range ds.Organizations {
		ds.Organizations[i].ID = remap(ds.Organizations[i].ID)
	}
	for i := range ds.Messages {
		ds.Messages[i].ID = remap(ds.Messages[i].ID)
		ds.Messages[i].TicketID = remap(ds.Messages[i].TicketID)
	}
	for i := range ds.Customers {
		ds.Customers[i].ID = remap(ds.Customers[i].ID)
		ds.Customers[i].OrgID = remap(ds.Customers[i].OrgID)
	}
	for i := range ds.KBArticles {
		ds.KBArticles[i].ID = remap(ds.KBArticles[i].ID)
	}
	if opts.IncludeRules {
		for i := range ds.Rules {
			ds.Rules[i].ID = remap(ds.Rules[i].ID)
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create sandbox directory")
	}

	var cloned []string
	writeFile := func(file string, count int, write func(w *export.JSONLWriter) error) error {
		if count == 0 {
			return nil
		}
		w, err := export.NewJSONLWriter(filepath.Join(dir, file))
		if err != nil {
			return err
		}
		if err := write(w); err != nil {
			w.Close()
			return err
		}
		if err := w.Close(); err != nil {
			return err
		}
		cloned = append(cloned, file)
		return nil
	}

	err = writeFile(export.TicketsFile, len(ds.Tickets), func(w *export.JSONLWriter) error {
		for i := range ds.Tickets {
			if err := w.Write(&ds.Tickets[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err == nil {
		err = writeFile(export.MessagesFile, len(ds.Messages), func(w *export.JSONLWriter) error {
			for i := range ds.Messages {
				if err := w.Write(&ds.Messages[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil {
		err = writeFile(export.CustomersFile, len(ds.Customers), func(w *export.JSONLWriter) error {
			for i := range ds.Customers {
				if err := w.Write(&ds.Customers[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil {
		err = writeFile(export.OrganizationsFile, len(ds.Organizations), func(w *export.JSONLWriter) error {
			for i := range ds.Organizations {
				if err := w.Write(&ds.Organizations[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil {
		err = writeFile(export.KBArticlesFile, len(ds.KBArticles), func(w *export.JSONLWriter) error {
			for i := range ds.KBArticles {
				if err := w.Write(&ds.KBArticles[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err == nil && opts.IncludeRules {
		err = writeFile(export.RulesFile, len(ds.Rules), func(w *export.JSONLWriter) error {
			for i := range ds.Rules {
				if err := w.Write(&ds.Rules[i]); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	manifest := &models.CloneManifest{
		SandboxID:   sandboxID,
		ClonedAt:    time.Now().UTC(),
		ClonedFiles: cloned,
		IDMappings:  mappings,
	}
	if err := m.writeManifest(dir, manifest); err != nil {
		os.RemoveAll(dir)
		return nil, err
	}

	m.logger.Info("sandbox cloned",
		zap.String("sandbox_id", sandboxID),
		zap.Int("files", len(cloned)),
		zap.Int("remapped_ids", len(mappings)))
	return manifest, nil
}

func (m *Manager) writeManifest(dir string, manifest *models.CloneManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode clone manifest")
	}
	path := filepath.Join(dir, manifestFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write clone manifest")
	}
	return nil
}

// Manifest reads a sandbox's clone manifest.
func (m *Manager) Manifest(sandboxID string) (*models.CloneManifest, error) {
	dir, err := m.sandboxDir(sandboxID)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "sandbox manifest not found")
	}
	var manifest models.CloneManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode clone manifest")
	}
	return &manifest, nil
}

// Teardown removes a sandbox and everything in it. Tearing down a sandbox
// that does not exist is not an error.
func (m *Manager) Teardown(sandboxID string) error {
	dir, err := m.sandboxDir(sandboxID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to remove sandbox")
	}
	m.logger.Info("sandbox removed", zap.String("sandbox_id", sandboxID))
	return nil
}

// List returns existing sandbox IDs.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.root, "sandboxes"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to list sandboxes")
	}
	var ids []string
	for _, entry := range entries {
		if entry.IsDir() {
			ids = append(ids, entry.Name())
		}
	}
	return ids, nil
}
