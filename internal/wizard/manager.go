package wizard

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feniks/backend/internal/analysis"
	"github.com/feniks/backend/internal/generator"
	"github.com/feniks/backend/internal/logging"
	"github.com/feniks/backend/internal/models"
	"github.com/feniks/backend/internal/storage"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs.
	ErrSessionNotFound = errors.New("session not found")
	// ErrBusy is returned when a background operation already owns the session.
	ErrBusy = errors.New("session is busy")
	// ErrTooManySessions is returned when the cap is reached and nothing can be evicted.
	ErrTooManySessions = errors.New("too many active sessions")
	// ErrGenerationPanic wraps a recovered generator panic.
	ErrGenerationPanic = errors.New("generation aborted")
)

// Defaults for Options.
const (
	DefaultMaxSessions     = 200
	DefaultMaxAge          = 2 * time.Hour
	DefaultKeepAliveWindow = 5 * time.Minute
)

// BatchAnalyzer is implemented by analysis.Orchestrator.
type BatchAnalyzer interface {
	AnalyzeAll(ctx context.Context, files []models.FileInfo, progress analysis.ProgressFunc) []models.AnalyzedRecord
}

// DocumentGenerator is implemented by generator.Generator.
type DocumentGenerator interface {
	Generate(ctx context.Context, form models.MeetingForm, records []models.AnalyzedRecord) (*generator.Document, error)
}

// Upload is one file of a replacement file set.
type Upload struct {
	Name string
	Data []byte
}

// Options tune a Manager.
type Options struct {
	MaxSessions     int
	MaxAge          time.Duration
	KeepAliveWindow time.Duration
	// Snapshots persists every committed state when set.
	Snapshots *SnapshotStore
}

type sessionState struct {
	session      models.Session
	lastAccessed time.Time
}

// Manager owns all wizard sessions. Every state change goes through Reduce
// under the manager lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState

	files     storage.Store
	analyzer  BatchAnalyzer
	generator DocumentGenerator
	opts      Options
	logger    *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates a session manager.
func NewManager(files storage.Store, analyzer BatchAnalyzer, gen DocumentGenerator, opts Options, logger *zap.Logger) *Manager {
	if opts.MaxSessions <= 0 {
		opts.MaxSessions = DefaultMaxSessions
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.KeepAliveWindow <= 0 {
		opts.KeepAliveWindow = DefaultKeepAliveWindow
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		sessions:  make(map[string]*sessionState),
		files:     files,
		analyzer:  analyzer,
		generator: gen,
		opts:      opts,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Restore loads persisted sessions. Operations that were running when the
// process stopped are marked as not running.
func (m *Manager) Restore() (int, error) {
	if m.opts.Snapshots == nil {
		return 0, nil
	}
	sessions, skipped, err := m.opts.Snapshots.LoadAll()
	if err != nil {
		return 0, fmt.Errorf("load sessions: %w", err)
	}
	for _, name := range skipped {
		m.logger.Warn("skipping unreadable session snapshot", zap.String("file", name))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	for _, s := range sessions {
		s.Analyzing = false
		s.Generating = false
		m.sessions[s.ID] = &sessionState{session: s, lastAccessed: now}
	}
	return len(sessions), nil
}

// Close stops background analysis and waits for it to finish.
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

// Create starts a new session at the welcome step.
func (m *Manager) Create() (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.sessions) >= m.opts.MaxSessions {
		m.evictLocked(len(m.sessions) - m.opts.MaxSessions + 1)
		if len(m.sessions) >= m.opts.MaxSessions {
			return models.Session{}, ErrTooManySessions
		}
	}

	now := time.Now()
	s := NewSession(uuid.New().String())
	s.CreatedAt = now
	s.UpdatedAt = now
	m.sessions[s.ID] = &sessionState{session: s, lastAccessed: now}
	m.persistLocked(s)

	m.logger.Info("session created", zap.String("session", logging.ShortID(s.ID)))
	return s, nil
}

// Get returns a copy of the session state.
func (m *Manager) Get(id string) (models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	st, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return st.session, nil
}

// Touch records activity so the session is not reaped.
func (m *Manager) Touch(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return false
	}
	st.lastAccessed = time.Now()
	return true
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Dispatch applies a to the session and returns the new state.
func (m *Manager) Dispatch(id string, a Action) (models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	st, ok := m.sessions[id]
	if !ok {
		return models.Session{}, ErrSessionNotFound
	}
	return m.commitLocked(st, a), nil
}

func (m *Manager) commitLocked(st *sessionState, a Action) models.Session {
	next := Reduce(st.session, a)
	now := time.Now()
	next.UpdatedAt = now
	st.session = next
	st.lastAccessed = now
	if _, progress := a.(AnalysisProgress); !progress {
		m.persistLocked(next)
	}
	return next
}

func (m *Manager) persistLocked(s models.Session) {
	if m.opts.Snapshots == nil {
		return
	}
	if err := m.opts.Snapshots.Save(s); err != nil {
		m.logger.Warn("session snapshot failed", zap.String("session", logging.ShortID(s.ID)), zap.Error(err))
	}
}

// ReplaceFiles stores uploads as the session's new file set. Previous
// analysis results are cleared and the old blobs removed.
func (m *Manager) ReplaceFiles(id string, uploads []Upload) (models.Session, error) {
	if _, err := m.Get(id); err != nil {
		return models.Session{}, err
	}

	infos := make([]models.FileInfo, 0, len(uploads))
	for _, u := range uploads {
		info, err := m.files.SaveBytes(u.Name, u.Data)
		if err != nil {
			m.deleteBlobs(infos)
			return models.Session{}, fmt.Errorf("store %s: %w", u.Name, err)
		}
		infos = append(infos, *info)
	}

	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		m.deleteBlobs(infos)
		return models.Session{}, ErrSessionNotFound
	}
	previous := st.session.Files
	s := m.commitLocked(st, FilesReplaced{Files: infos})
	m.mu.Unlock()

	m.deleteBlobs(previous)
	m.logger.Info("files replaced",
		zap.String("session", logging.ShortID(id)),
		zap.Int("files", len(infos)),
		zap.Int("version", s.FileSetVersion))
	return s, nil
}

func (m *Manager) deleteBlobs(files []models.FileInfo) {
	for _, f := range files {
		if err := m.files.Delete(f.ID); err != nil {
			m.logger.Warn("failed to delete upload", zap.String("file", f.ID), zap.Error(err))
		}
	}
}

// StartAnalysis analyzes the current file set in the background. The
// result is committed only if the file set is unchanged when it arrives.
func (m *Manager) StartAnalysis(id string) (models.Session, error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return models.Session{}, ErrSessionNotFound
	}
	if st.session.Busy() {
		m.mu.Unlock()
		return models.Session{}, ErrBusy
	}
	version := st.session.FileSetVersion
	files := append([]models.FileInfo(nil), st.session.Files...)
	s := m.commitLocked(st, AnalysisStarted{Version: version})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.runAnalysis(id, version, files)
	return s, nil
}

func (m *Manager) runAnalysis(id string, version int, files []models.FileInfo) {
	defer m.wg.Done()

	log := m.logger.With(zap.String("session", logging.ShortID(id)), zap.Int("version", version))
	start := time.Now()

	records := []models.AnalyzedRecord{}
	func() {
		defer func() {
			if r := recover(); r != nil {
				log.Error("analysis panicked", zap.Any("panic", r))
				records = make([]models.AnalyzedRecord, len(files))
				for i, f := range files {
					records[i] = models.NewFailedRecord(f.Name, models.AnalysisFailed)
				}
			}
		}()
		records = m.analyzer.AnalyzeAll(m.ctx, files, func(processed, total int) {
			m.Dispatch(id, AnalysisProgress{Version: version, Processed: processed})
		})
	}()

	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return
	}
	stale := st.session.FileSetVersion != version
	if !stale {
		m.commitLocked(st, AnalysisCompleted{Version: version, Records: records})
	}
	m.mu.Unlock()

	if stale {
		log.Info("discarding analysis of a replaced file set")
		return
	}
	failed := 0
	for _, r := range records {
		if r.Failed() {
			failed++
		}
	}
	log.Info("analysis complete",
		zap.Int("files", len(records)),
		zap.Int("failed", failed),
		zap.Duration("took", time.Since(start)))
}

// Generate renders the protocol document for the session. The session is
// released even when the generator panics.
func (m *Manager) Generate(ctx context.Context, id string) (doc *generator.Document, err error) {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	if st.session.Busy() {
		m.mu.Unlock()
		return nil, ErrBusy
	}
	s := m.commitLocked(st, GenerationStarted{})
	m.mu.Unlock()

	log := m.logger.With(zap.String("session", logging.ShortID(id)))
	defer func() {
		if r := recover(); r != nil {
			log.Error("generation panicked", zap.Any("panic", r))
			doc, err = nil, fmt.Errorf("%w: %v", ErrGenerationPanic, r)
		}
		msg := ""
		if err != nil {
			msg = err.Error()
			log.Warn("generation failed", zap.Error(err))
		}
		m.Dispatch(id, GenerationCompleted{Err: msg})
	}()

	return m.generator.Generate(ctx, s.Form, s.Records)
}

// Delete removes a session with its uploads and snapshot.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	st, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrSessionNotFound
	}
	if st.session.Busy() {
		m.mu.Unlock()
		return ErrBusy
	}
	delete(m.sessions, id)
	m.mu.Unlock()

	m.removeResources(st.session)
	return nil
}

func (m *Manager) removeResources(s models.Session) {
	m.deleteBlobs(s.Files)
	if m.opts.Snapshots != nil {
		if err := m.opts.Snapshots.Delete(s.ID); err != nil {
			m.logger.Warn("failed to delete session snapshot", zap.String("session", logging.ShortID(s.ID)), zap.Error(err))
		}
	}
}

// evictLocked drops up to n idle sessions, least recently used first.
func (m *Manager) evictLocked(n int) {
	var idle []*sessionState
	for _, st := range m.sessions {
		if !st.session.Busy() {
			idle = append(idle, st)
		}
	}
	sort.Slice(idle, func(i, j int) bool {
		return idle[i].lastAccessed.Before(idle[j].lastAccessed)
	})

	for i := 0; i < n && i < len(idle); i++ {
		s := idle[i].session
		delete(m.sessions, s.ID)
		m.removeResources(s)
		m.logger.Info("evicted session to stay under the limit", zap.String("session", logging.ShortID(s.ID)))
	}
}

// CleanupOldSessions removes sessions idle for longer than MaxAge. Busy
// sessions and sessions touched within KeepAliveWindow are kept.
func (m *Manager) CleanupOldSessions() int {
	m.mu.Lock()
	now := time.Now()
	cutoff := now.Add(-m.opts.MaxAge)
	keepAliveCutoff := now.Add(-m.opts.KeepAliveWindow)

	var removed []models.Session
	for id, st := range m.sessions {
		if st.session.Busy() {
			continue
		}
		if st.lastAccessed.After(keepAliveCutoff) {
			continue
		}
		if st.lastAccessed.Before(cutoff) {
			delete(m.sessions, id)
			removed = append(removed, st.session)
			m.logger.Info("cleaned up aged session",
				zap.String("session", logging.ShortID(id)),
				zap.Duration("idle", now.Sub(st.lastAccessed).Round(time.Second)))
		}
	}
	m.mu.Unlock()

	for _, s := range removed {
		m.removeResources(s)
	}
	return len(removed)
}
