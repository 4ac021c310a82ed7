package wizard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/feniks/backend/internal/analysis"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/storage"
	"github.com/feniks/backend/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// gatedAnalyzer returns the file content as FIO once gate is closed.
type gatedAnalyzer struct {
	gate chan struct{}
}

func (a gatedAnalyzer) Analyze(ctx context.Context, _ string, content []byte) (models.RecordFields, error) {
	if a.gate != nil {
		select {
		case <-a.gate:
		case <-ctx.Done():
			return models.RecordFields{}, ctx.Err()
		}
	}
	if string(content) == "bad" {
		return models.RecordFields{}, errors.New("unreadable")
	}
	return models.RecordFields{FIO: string(content)}, nil
}

type fakeGenerator struct {
	err     error
	panics  bool
	form    models.MeetingForm
	records []models.AnalyzedRecord
}

func (g *fakeGenerator) Generate(_ context.Context, form models.MeetingForm, records []models.AnalyzedRecord) (*generator.Document, error) {
	g.form, g.records = form, records
	if g.panics {
		panic("makeslice: len out of range")
	}
	if g.err != nil {
		return nil, g.err
	}
	return &generator.Document{Name: "out.docx", Content: []byte("docx"), Protocols: len(records)}, nil
}

type fixture struct {
	m     *Manager
	files *storage.LocalStore
	gen   *fakeGenerator
}

func newFixture(t *testing.T, gate chan struct{}, opts Options) *fixture {
	t.Helper()
	files, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	orch := analysis.NewOrchestrator(gatedAnalyzer{gate: gate}, files, analysis.Options{}, logger)
	gen := &fakeGenerator{}
	m := NewManager(files, orch, gen, opts, logger)
	t.Cleanup(m.Close)
	return &fixture{m: m, files: files, gen: gen}
}

func uploads(contents ...string) []Upload {
	out := make([]Upload, len(contents))
	for i, c := range contents {
		out[i] = Upload{Name: fmt.Sprintf("doc%d.docx", i+1), Data: []byte(c)}
	}
	return out
}

func waitIdle(t *testing.T, m *Manager, id string) models.Session {
	t.Helper()
	var s models.Session
	require.Eventually(t, func() bool {
		var err error
		s, err = m.Get(id)
		return err == nil && !s.Analyzing
	}, 5*time.Second, 10*time.Millisecond)
	return s
}

func TestManager_CreateAndDispatch(t *testing.T) {
	f := newFixture(t, nil, Options{})

	s, err := f.m.Create()
	require.NoError(t, err)
	assert.Equal(t, models.StepWelcome, s.Step)
	assert.NotEmpty(t, s.ID)

	s, err = f.m.Dispatch(s.ID, StepContinue{})
	require.NoError(t, err)
	assert.Equal(t, models.StepForm, s.Step)

	got, err := f.m.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, s, got)

	_, err = f.m.Get("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.m.Dispatch("missing", StepBack{})
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.False(t, f.m.Touch("missing"))
	assert.True(t, f.m.Touch(s.ID))
}

func TestManager_AnalysisKeepsInputOrder(t *testing.T) {
	f := newFixture(t, nil, Options{})
	s, _ := f.m.Create()

	s, err := f.m.ReplaceFiles(s.ID, uploads("one", "bad", "three"))
	require.NoError(t, err)
	require.Len(t, s.Files, 3)

	_, err = f.m.StartAnalysis(s.ID)
	require.NoError(t, err)

	s = waitIdle(t, f.m, s.ID)
	require.Len(t, s.Records, 3)
	assert.Equal(t, "doc1.docx", s.Records[0].FileName)
	assert.Equal(t, "one", s.Records[0].FIO)
	assert.Equal(t, models.NewFailedRecord("doc2.docx", ""), s.Records[1])
	assert.Equal(t, "three", s.Records[2].FIO)
	assert.Equal(t, 3, s.Processed)
}

func TestManager_ReplaceFilesClearsRecords(t *testing.T) {
	f := newFixture(t, nil, Options{})
	s, _ := f.m.Create()

	s, _ = f.m.ReplaceFiles(s.ID, uploads("one"))
	oldFile := s.Files[0].ID
	_, err := f.m.StartAnalysis(s.ID)
	require.NoError(t, err)
	s = waitIdle(t, f.m, s.ID)
	require.Len(t, s.Records, 1)

	s, err = f.m.ReplaceFiles(s.ID, uploads("two", "three"))
	require.NoError(t, err)
	assert.Empty(t, s.Records)
	assert.Len(t, s.Files, 2)

	_, err = f.files.ReadFile(oldFile)
	assert.ErrorIs(t, err, storage.ErrNotFound, "previous blobs are removed")
}

func TestManager_BusyAndStaleResults(t *testing.T) {
	gate := make(chan struct{})
	f := newFixture(t, gate, Options{})
	s, _ := f.m.Create()
	s, _ = f.m.ReplaceFiles(s.ID, uploads("old"))

	s, err := f.m.StartAnalysis(s.ID)
	require.NoError(t, err)
	assert.True(t, s.Analyzing)

	_, err = f.m.StartAnalysis(s.ID)
	assert.ErrorIs(t, err, ErrBusy)
	_, err = f.m.Generate(context.Background(), s.ID)
	assert.ErrorIs(t, err, ErrBusy)

	// Replace the files while the first batch is still running.
	s, err = f.m.ReplaceFiles(s.ID, uploads("new"))
	require.NoError(t, err)
	assert.False(t, s.Analyzing)

	close(gate)
	f.m.Close()

	s, err = f.m.Get(s.ID)
	require.NoError(t, err)
	assert.Empty(t, s.Records, "results for the old file set are discarded")
	assert.Equal(t, 2, s.FileSetVersion)
}

func TestManager_Generate(t *testing.T) {
	f := newFixture(t, nil, Options{})
	s, _ := f.m.Create()
	s, _ = f.m.Dispatch(s.ID, FormFieldSet{Patch: models.FormPatch{ProtocolCount: strPtr("2")}})
	s, _ = f.m.ReplaceFiles(s.ID, uploads("one"))
	_, _ = f.m.StartAnalysis(s.ID)
	waitIdle(t, f.m, s.ID)

	doc, err := f.m.Generate(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, "out.docx", doc.Name)
	assert.Equal(t, "2", f.gen.form.ProtocolCount)
	require.Len(t, f.gen.records, 1)

	s, _ = f.m.Get(s.ID)
	assert.False(t, s.Generating)
	assert.Empty(t, s.LastError)

	f.gen.err = fmt.Errorf("fetch template: %w", generator.ErrTemplateNotFound)
	_, err = f.m.Generate(context.Background(), s.ID)
	assert.ErrorIs(t, err, generator.ErrTemplateNotFound)
	s, _ = f.m.Get(s.ID)
	assert.False(t, s.Generating)
	assert.Contains(t, s.LastError, "template not found")

	_, err = f.m.Generate(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestManager_GeneratePanicReleasesSession(t *testing.T) {
	f := newFixture(t, nil, Options{})
	s, _ := f.m.Create()
	s, _ = f.m.ReplaceFiles(s.ID, uploads("one"))

	f.gen.panics = true
	doc, err := f.m.Generate(context.Background(), s.ID)
	assert.Nil(t, doc)
	require.ErrorIs(t, err, ErrGenerationPanic)

	s, err = f.m.Get(s.ID)
	require.NoError(t, err)
	assert.False(t, s.Generating)
	assert.False(t, s.Busy())
	assert.Contains(t, s.LastError, "generation aborted")

	// The session stays usable.
	f.gen.panics = false
	_, err = f.m.StartAnalysis(s.ID)
	require.NoError(t, err)
	waitIdle(t, f.m, s.ID)
	_, err = f.m.Generate(context.Background(), s.ID)
	require.NoError(t, err)
	require.NoError(t, f.m.Delete(s.ID))
}

func TestManager_CleanupOldSessions(t *testing.T) {
	f := newFixture(t, nil, Options{MaxAge: time.Hour, KeepAliveWindow: time.Minute})

	stale, _ := f.m.Create()
	stale, _ = f.m.ReplaceFiles(stale.ID, uploads("x"))
	fresh, _ := f.m.Create()
	busy, _ := f.m.Create()

	f.m.mu.Lock()
	f.m.sessions[stale.ID].lastAccessed = time.Now().Add(-2 * time.Hour)
	f.m.sessions[busy.ID].lastAccessed = time.Now().Add(-2 * time.Hour)
	f.m.sessions[busy.ID].session.Generating = true
	f.m.mu.Unlock()

	assert.Equal(t, 1, f.m.CleanupOldSessions())

	_, err := f.m.Get(stale.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = f.files.ReadFile(stale.Files[0].ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = f.m.Get(fresh.ID)
	assert.NoError(t, err)
	_, err = f.m.Get(busy.ID)
	assert.NoError(t, err)
}

func TestManager_EvictsAtLimit(t *testing.T) {
	f := newFixture(t, nil, Options{MaxSessions: 2})

	first, _ := f.m.Create()
	second, _ := f.m.Create()
	f.m.mu.Lock()
	f.m.sessions[first.ID].lastAccessed = time.Now().Add(-time.Minute)
	f.m.mu.Unlock()

	_, err := f.m.Create()
	require.NoError(t, err)
	assert.Equal(t, 2, f.m.Len())
	_, err = f.m.Get(first.ID)
	assert.ErrorIs(t, err, ErrSessionNotFound, "least recently used session is evicted")
	_, err = f.m.Get(second.ID)
	assert.NoError(t, err)

	// Busy sessions are never evicted.
	f.m.mu.Lock()
	for _, st := range f.m.sessions {
		st.session.Analyzing = true
	}
	f.m.mu.Unlock()
	_, err = f.m.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestManager_SnapshotRestore(t *testing.T) {
	dir := t.TempDir()
	snaps, err := NewSnapshotStore(dir)
	require.NoError(t, err)

	f := newFixture(t, nil, Options{Snapshots: snaps})
	s, _ := f.m.Create()
	s, _ = f.m.Dispatch(s.ID, FormFieldSet{Patch: models.FormPatch{MeetingNumber: strPtr("9")}})
	s, _ = f.m.ReplaceFiles(s.ID, uploads("one"))
	_, _ = f.m.StartAnalysis(s.ID)
	s = waitIdle(t, f.m, s.ID)

	restored := NewManager(f.files, nil, nil, Options{Snapshots: snaps}, zaptest.NewLogger(t))
	defer restored.Close()
	n, err := restored.Restore()
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := restored.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, "9", got.Form.MeetingNumber)
	require.Len(t, got.Records, 1)
	assert.Equal(t, "one", got.Records[0].FIO)
	assert.True(t, s.UpdatedAt.Equal(got.UpdatedAt))

	// Unreadable snapshots are skipped.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "junk.msgpack"), []byte{0xc1}, 0644))
	_, skipped, err := snaps.LoadAll()
	require.NoError(t, err)
	assert.Equal(t, []string{"junk.msgpack"}, skipped)

	require.NoError(t, f.m.Delete(s.ID))
	sessions, _, err := snaps.LoadAll()
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestManager_ReplaceFilesStoreFailure(t *testing.T) {
	store := testutil.NewMockStorage()
	logger := zaptest.NewLogger(t)
	orch := analysis.NewOrchestrator(&testutil.MockAnalyzer{}, store, analysis.Options{}, logger)
	m := NewManager(store, orch, &fakeGenerator{}, Options{}, logger)
	defer m.Close()

	s, _ := m.Create()
	s, err := m.ReplaceFiles(s.ID, uploads("one"))
	require.NoError(t, err)
	kept := s.Files[0].ID

	store.FailSaves(1)
	_, err = m.ReplaceFiles(s.ID, uploads("two", "three"))
	require.ErrorIs(t, err, testutil.ErrInjected)

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	require.Len(t, got.Files, 1)
	assert.Equal(t, kept, got.Files[0].ID, "failed replacement keeps the previous file set")
	assert.Equal(t, 1, got.FileSetVersion)
	assert.Equal(t, 1, store.GetFileCount(), "partially stored uploads are removed")
	assert.NotContains(t, store.Deleted(), kept)
}
