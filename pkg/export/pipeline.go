package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/metrics"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// Entity file names inside a source's export directory.
const (
	TicketsFile       = "tickets.jsonl"
	MessagesFile      = "messages.jsonl"
	CustomersFile     = "customers.jsonl"
	OrganizationsFile = "organizations.jsonl"
	KBArticlesFile    = "kb_articles.jsonl"
	RulesFile         = "rules.jsonl"
	ManifestFile      = "manifest.json"
)

// Pipeline runs a full export for one source: tickets with their message
// threads first, then customers, organizations, knowledge-base articles and
// rules, finishing with a manifest. Optional categories degrade to warnings
// when the source cannot serve them; ticket export failure aborts the run.
type Pipeline struct {
	source core.Source
	outDir string
	logger *zap.Logger
}

// NewPipeline creates an export pipeline writing under outDir/<source>/.
func NewPipeline(source core.Source, outDir string, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		source: source,
		outDir: filepath.Join(outDir, source.Name()),
		logger: logger.With(zap.String("source", source.Name())),
	}
}

// OutputDir returns the per-source export directory.
func (p *Pipeline) OutputDir() string {
	return p.outDir
}

// Run executes the export and writes the manifest. The manifest is written
// even when the run fails partway, so whatever records landed remain
// described and usable.
func (p *Pipeline) Run(ctx context.Context) (*models.ExportManifest, error) {
	timer := metrics.NewTimer()

	sink, err := newFileSink(p.outDir)
	if err != nil {
		return nil, err
	}

	runErr := p.runCategories(ctx, sink)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}

	manifest := &models.ExportManifest{
		Source:      p.source.Name(),
		ExportedAt:  time.Now().UTC(),
		Counts:      sink.counts,
		Warnings:    sink.warnings,
		CursorState: p.source.CursorState(),
	}
	if err := p.writeManifest(manifest); err != nil && runErr == nil {
		runErr = err
	}

	elapsed := timer.ObserveExport(p.source.Name())
	p.logger.Info("export finished",
		zap.Duration("elapsed", elapsed),
		zap.Int("tickets", manifest.Counts.Tickets),
		zap.Int("messages", manifest.Counts.Messages),
		zap.Int("warnings", len(manifest.Warnings)),
		zap.Error(runErr))

	return manifest, runErr
}

func (p *Pipeline) runCategories(ctx context.Context, sink *fileSink) error {
	tickets, messages, err := p.source.ExportTickets(ctx, sink)
	sink.counts.Tickets = tickets
	sink.counts.Messages = messages
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "ticket export failed")
	}
	metrics.RecordsExported.WithLabelValues(p.source.Name(), "tickets").Add(float64(tickets))
	metrics.RecordsExported.WithLabelValues(p.source.Name(), "messages").Add(float64(messages))

	type category struct {
		name      string
		supported bool
		optional  bool
		run       func(context.Context, core.RecordSink) (int, error)
		count     *int
	}
	categories := []category{
		{"customers", true, false, p.source.ExportCustomers, &sink.counts.Customers},
		{"organizations", true, false, p.source.ExportOrganizations, &sink.counts.Organizations},
		{"kb_articles", p.source.SupportsKBArticles(), true, p.source.ExportKBArticles, &sink.counts.KBArticles},
		{"rules", p.source.SupportsRules(), true, p.source.ExportRules, &sink.counts.Rules},
	}

	for _, cat := range categories {
		if !cat.supported {
			p.logger.Debug("category not supported, skipping", zap.String("category", cat.name))
			continue
		}

		count, err := cat.run(ctx, sink)
		*cat.count = count
		if err != nil {
			if ctx.Err() != nil {
				return err
			}
			// only optional categories degrade to a warning; customers and
			// organizations are required and fail the run like tickets do
			if cat.optional && errors.IsOptionalCategorySkip(err) {
				p.logger.Warn("optional category skipped",
					zap.String("category", cat.name),
					zap.Error(err))
				sink.Warn(cat.name, err.Error())
				continue
			}
			return errors.Wrap(err, errors.ErrorTypeInternal, fmt.Sprintf("%s export failed", cat.name))
		}
		metrics.RecordsExported.WithLabelValues(p.source.Name(), cat.name).Add(float64(count))
	}
	return nil
}

func (p *Pipeline) writeManifest(manifest *models.ExportManifest) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode manifest")
	}
	path := filepath.Join(p.outDir, ManifestFile)
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "failed to write manifest")
	}
	return nil
}

// fileSink implements core.RecordSink over lazily opened JSONL writers.
type fileSink struct {
	dir      string
	writers  map[string]*JSONLWriter
	counts   models.ManifestCounts
	warnings []string
}

func newFileSink(dir string) (*fileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to create export directory")
	}
	// writers append per record, so stale files from an earlier run into
	// the same directory must go first
	entityFiles := []string{
		TicketsFile, MessagesFile, CustomersFile,
		OrganizationsFile, KBArticlesFile, RulesFile,
	}
	for _, name := range entityFiles {
		if err := os.Remove(filepath.Join(dir, name)); err != nil && !os.IsNotExist(err) {
			return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to truncate export file")
		}
	}
	return &fileSink{
		dir:     dir,
		writers: map[string]*JSONLWriter{},
	}, nil
}

func (s *fileSink) writer(file string) (*JSONLWriter, error) {
	if w, ok := s.writers[file]; ok {
		return w, nil
	}
	w, err := NewJSONLWriter(filepath.Join(s.dir, file))
	if err != nil {
		return nil, err
	}
	s.writers[file] = w
	return w, nil
}

func (s *fileSink) write(file string, record interface{}) error {
	w, err := s.writer(file)
	if err != nil {
		return err
	}
	return w.Write(record)
}

func (s *fileSink) WriteTicket(ticket *models.Ticket) error {
	return s.write(TicketsFile, ticket)
}

func (s *fileSink) WriteMessage(message *models.Message) error {
	return s.write(MessagesFile, message)
}

func (s *fileSink) WriteCustomer(customer *models.Customer) error {
	return s.write(CustomersFile, customer)
}

func (s *fileSink) WriteOrganization(org *models.Organization) error {
	return s.write(OrganizationsFile, org)
}

func (s *fileSink) WriteKBArticle(article *models.KBArticle) error {
	return s.write(KBArticlesFile, article)
}

func (s *fileSink) WriteRule(rule *models.Rule) error {
	return s.write(RulesFile, rule)
}

func (s *fileSink) Warn(category, message string) {
	s.warnings = append(s.warnings, fmt.Sprintf("%s: %s", category, message))
}

func (s *fileSink) Close() error {
	var firstErr error
	for _, w := range s.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
