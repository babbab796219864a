package export

import (
	"os"
	"path/filepath"

	json "github.com/goccy/go-json"

	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// Dataset is a fully loaded export directory.
type Dataset struct {
	Manifest      *models.ExportManifest
	Tickets       []models.Ticket
	Messages      []models.Message
	Customers     []models.Customer
	Organizations []models.Organization
	KBArticles    []models.KBArticle
	Rules         []models.Rule

	// SkippedLines counts malformed JSONL lines ignored while loading
	SkippedLines int
}

// LoadManifest reads a source directory's manifest.
func LoadManifest(dir string) (*models.ExportManifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeNotFound, "failed to read manifest")
	}
	var manifest models.ExportManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decode manifest")
	}
	return &manifest, nil
}

// LoadDataset reads every entity file present in a source export directory.
// Missing entity files are fine; a missing manifest is not.
func LoadDataset(dir string) (*Dataset, error) {
	manifest, err := LoadManifest(dir)
	if err != nil {
		return nil, err
	}
	ds, err := LoadDatasetFiles(dir)
	if err != nil {
		return nil, err
	}
	ds.Manifest = manifest
	return ds, nil
}

// LoadDatasetFiles reads the entity files of a directory without requiring
// a manifest. Sandbox clones carry a clone manifest instead of an export
// manifest, so their records load through this path.
func LoadDatasetFiles(dir string) (*Dataset, error) {
	ds := &Dataset{}

	loaders := []struct {
		file string
		fn   func(json.RawMessage) error
	}{
		{TicketsFile, func(line json.RawMessage) error {
			var v models.Ticket
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.Tickets = append(ds.Tickets, v)
			return nil
		}},
		{MessagesFile, func(line json.RawMessage) error {
			var v models.Message
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.Messages = append(ds.Messages, v)
			return nil
		}},
		{CustomersFile, func(line json.RawMessage) error {
			var v models.Customer
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.Customers = append(ds.Customers, v)
			return nil
		}},
		{OrganizationsFile, func(line json.RawMessage) error {
			var v models.Organization
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.Organizations = append(ds.Organizations, v)
			return nil
		}},
		{KBArticlesFile, func(line json.RawMessage) error {
			var v models.KBArticle
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.KBArticles = append(ds.KBArticles, v)
			return nil
		}},
		{RulesFile, func(line json.RawMessage) error {
			var v models.Rule
			if err := json.Unmarshal(line, &v); err != nil {
				ds.SkippedLines++
				return nil
			}
			ds.Rules = append(ds.Rules, v)
			return nil
		}},
	}

	for _, loader := range loaders {
		path := filepath.Join(dir, loader.file)
		if _, err := os.Stat(path); os.IsNotExist(err) {
			continue
		}
		skipped, err := ReadJSONL(path, loader.fn)
		ds.SkippedLines += skipped
		if err != nil {
			return nil, err
		}
	}
	return ds, nil
}
