package export

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/discordwell/ticketbridge/pkg/config"
	"github.com/discordwell/ticketbridge/pkg/connector/core"
	"github.com/discordwell/ticketbridge/pkg/errors"
	"github.com/discordwell/ticketbridge/pkg/models"
)

// fakeSource feeds canned records into the pipeline.
type fakeSource struct {
	name         string
	ticketsErr   error
	customersErr error
	rulesErr     error
	supportsKB   bool
	cursorState  map[string]string
}

func (s *fakeSource) Name() string    { return s.name }
func (s *fakeSource) Version() string { return "test" }

func (s *fakeSource) Initialize(context.Context, *config.BaseConfig) error { return nil }
func (s *fakeSource) Close(context.Context) error                          { return nil }

func (s *fakeSource) Verify(context.Context) *core.VerifyResult {
	return &core.VerifyResult{Success: true}
}

func (s *fakeSource) ExportTickets(_ context.Context, sink core.RecordSink) (int, int, error) {
	if s.ticketsErr != nil {
		return 0, 0, s.ticketsErr
	}
	for _, id := range []string{"t1", "t2"} {
		if err := sink.WriteTicket(&models.Ticket{ID: s.name + "-" + id, Source: s.name}); err != nil {
			return 0, 0, err
		}
	}
	if err := sink.WriteMessage(&models.Message{ID: s.name + "-m1", TicketID: s.name + "-t1"}); err != nil {
		return 2, 0, err
	}
	return 2, 1, nil
}

func (s *fakeSource) ExportCustomers(_ context.Context, sink core.RecordSink) (int, error) {
	if s.customersErr != nil {
		return 0, s.customersErr
	}
	if err := sink.WriteCustomer(&models.Customer{ID: s.name + "-c1"}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *fakeSource) ExportOrganizations(_ context.Context, sink core.RecordSink) (int, error) {
	if err := sink.WriteOrganization(&models.Organization{ID: s.name + "-o1"}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *fakeSource) ExportKBArticles(_ context.Context, sink core.RecordSink) (int, error) {
	if err := sink.WriteKBArticle(&models.KBArticle{ID: s.name + "-a1", CategoryPath: []string{}}); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *fakeSource) ExportRules(_ context.Context, _ core.RecordSink) (int, error) {
	if s.rulesErr != nil {
		return 0, s.rulesErr
	}
	return 0, nil
}

func (s *fakeSource) SupportsKBArticles() bool       { return s.supportsKB }
func (s *fakeSource) SupportsRules() bool            { return true }
func (s *fakeSource) CursorState() map[string]string { return s.cursorState }

func TestPipeline_FullRun(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		name:        "stub",
		supportsKB:  true,
		cursorState: map[string]string{"after_cursor": "xyz"},
	}

	pipeline := NewPipeline(source, dir, zap.NewNop())
	manifest, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "stub", manifest.Source)
	assert.Equal(t, 2, manifest.Counts.Tickets)
	assert.Equal(t, 1, manifest.Counts.Messages)
	assert.Equal(t, 1, manifest.Counts.Customers)
	assert.Equal(t, 1, manifest.Counts.Organizations)
	assert.Equal(t, 1, manifest.Counts.KBArticles)
	assert.Equal(t, 0, manifest.Counts.Rules)
	assert.Empty(t, manifest.Warnings)
	assert.Equal(t, "xyz", manifest.CursorState["after_cursor"])

	sourceDir := filepath.Join(dir, "stub")
	for _, file := range []string{TicketsFile, MessagesFile, CustomersFile, OrganizationsFile, KBArticlesFile, ManifestFile} {
		_, err := os.Stat(filepath.Join(sourceDir, file))
		assert.NoError(t, err, file)
	}

	// manifest on disk matches the returned one
	loaded, err := LoadManifest(sourceDir)
	require.NoError(t, err)
	assert.Equal(t, manifest.Counts, loaded.Counts)
}

func TestPipeline_OptionalCategoryDowngradesToWarning(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		name:     "stub",
		rulesErr: errors.New(errors.ErrorTypeCapability, "rules endpoint not available"),
	}

	pipeline := NewPipeline(source, dir, zap.NewNop())
	manifest, err := pipeline.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, manifest.Warnings, 1)
	assert.Contains(t, manifest.Warnings[0], "rules")
}

func TestPipeline_RequiredCategoryFailurePropagates(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		name:         "stub",
		customersErr: errors.New(errors.ErrorTypeServer, "customers endpoint exploded"),
	}

	pipeline := NewPipeline(source, dir, zap.NewNop())
	manifest, err := pipeline.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "customers export failed")

	// a required category never degrades to a warning
	require.NotNil(t, manifest)
	assert.Empty(t, manifest.Warnings)
}

func TestPipeline_TicketFailureAborts(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{
		name:       "stub",
		ticketsErr: errors.New(errors.ErrorTypeConnection, "connection reset"),
	}

	pipeline := NewPipeline(source, dir, zap.NewNop())
	manifest, err := pipeline.Run(context.Background())
	require.Error(t, err)

	// the manifest is still written so partial output stays described
	require.NotNil(t, manifest)
	_, statErr := os.Stat(filepath.Join(dir, "stub", ManifestFile))
	assert.NoError(t, statErr)
}

func TestLoadDataset(t *testing.T) {
	dir := t.TempDir()
	source := &fakeSource{name: "stub", supportsKB: true}

	pipeline := NewPipeline(source, dir, zap.NewNop())
	_, err := pipeline.Run(context.Background())
	require.NoError(t, err)

	ds, err := LoadDataset(filepath.Join(dir, "stub"))
	require.NoError(t, err)
	assert.Len(t, ds.Tickets, 2)
	assert.Len(t, ds.Messages, 1)
	assert.Len(t, ds.Customers, 1)
	assert.Len(t, ds.Organizations, 1)
	assert.Len(t, ds.KBArticles, 1)
	assert.Empty(t, ds.Rules)
	assert.Zero(t, ds.SkippedLines)
}
