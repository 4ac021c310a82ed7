// Package admin is the template administration workflow used by feniksctl.
// It keeps a cached template list that is re-fetched after every change.
package admin

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/feniks/backend/internal/models"
)

// DefaultTemplateName is the name offered for new templates.
const DefaultTemplateName = models.DefaultTemplateName

var (
	ErrNoFile    = errors.New("no template file selected")
	ErrCancelled = errors.New("cancelled")
	ErrUnknown   = errors.New("template not in list")
)

// TemplateClient is implemented by client.Client.
type TemplateClient interface {
	ListTemplates(ctx context.Context) ([]models.Template, error)
	CreateTemplate(ctx context.Context, name string, content []byte) (*models.Template, error)
	UpdateTemplate(ctx context.Context, id string, name *string, content []byte) (*models.Template, error)
	DeleteTemplate(ctx context.Context, id string) error
	ActivateTemplate(ctx context.Context, id string) error
}

// ConfirmFunc asks the user before a destructive action.
type ConfirmFunc func(t models.Template) bool

// PendingFile is a template file chosen but not yet uploaded.
type PendingFile struct {
	Name string
	Data []byte
}

// Manager holds the admin view state.
type Manager struct {
	client TemplateClient

	mu        sync.Mutex
	templates []models.Template
	editingID string
	name      string
	pending   *PendingFile
}

func NewManager(client TemplateClient) *Manager {
	return &Manager{client: client, name: DefaultTemplateName}
}

// Refresh replaces the cache with the server's list. On error the cache is left as is.
func (m *Manager) Refresh(ctx context.Context) error {
	list, err := m.client.ListTemplates(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.templates = list
	m.mu.Unlock()
	return nil
}

// Templates returns a copy of the cached list.
func (m *Manager) Templates() []models.Template {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Template(nil), m.templates...)
}

func (m *Manager) Stats() models.TemplateStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return models.ComputeTemplateStats(m.templates)
}

func (m *Manager) SetName(name string) {
	m.mu.Lock()
	m.name = name
	m.mu.Unlock()
}

func (m *Manager) Name() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.name
}

// SelectFile sets the file to upload on the next Submit.
func (m *Manager) SelectFile(name string, data []byte) {
	m.mu.Lock()
	m.pending = &PendingFile{Name: name, Data: data}
	m.mu.Unlock()
}

func (m *Manager) ClearFile() {
	m.mu.Lock()
	m.pending = nil
	m.mu.Unlock()
}

func (m *Manager) Pending() *PendingFile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending
}

// StartEdit puts the template id in edit mode. Any previous edit is
// abandoned, the name is taken from the template and the pending file cleared.
func (m *Manager) StartEdit(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.templates {
		if t.ID == id {
			m.editingID = id
			m.name = t.Name
			m.pending = nil
			return nil
		}
	}
	return fmt.Errorf("%s: %w", id, ErrUnknown)
}

// CancelEdit leaves edit mode and resets the form.
func (m *Manager) CancelEdit() {
	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
}

// Editing returns the ID of the template in edit mode, if any.
func (m *Manager) Editing() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.editingID, m.editingID != ""
}

func (m *Manager) resetLocked() {
	m.editingID = ""
	m.name = DefaultTemplateName
	m.pending = nil
}

// Submit creates a template from the form, or updates the one in edit mode.
// Updating without a pending file keeps the stored binary. The form is
// reset only on success.
func (m *Manager) Submit(ctx context.Context) (*models.Template, error) {
	m.mu.Lock()
	editingID, name, pending := m.editingID, m.name, m.pending
	m.mu.Unlock()

	var (
		t   *models.Template
		err error
	)
	if editingID != "" {
		var content []byte
		if pending != nil {
			content = pending.Data
		}
		t, err = m.client.UpdateTemplate(ctx, editingID, &name, content)
	} else {
		if pending == nil {
			return nil, ErrNoFile
		}
		t, err = m.client.CreateTemplate(ctx, name, pending.Data)
	}
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.resetLocked()
	m.mu.Unlock()
	return t, m.refreshAfter(ctx, "submit")
}

// Create uploads a new template and refreshes the cache.
func (m *Manager) Create(ctx context.Context, name string, content []byte) (*models.Template, error) {
	if len(content) == 0 {
		return nil, ErrNoFile
	}
	t, err := m.client.CreateTemplate(ctx, name, content)
	if err != nil {
		return nil, err
	}
	return t, m.refreshAfter(ctx, "create")
}

// Update changes a template and refreshes the cache. Nil name or content
// leaves that part unchanged.
func (m *Manager) Update(ctx context.Context, id string, name *string, content []byte) (*models.Template, error) {
	t, err := m.client.UpdateTemplate(ctx, id, name, content)
	if err != nil {
		return nil, err
	}
	return t, m.refreshAfter(ctx, "update")
}

// Delete removes a template after confirm approves it. A nil confirm is
// treated as approval. Deleting the template in edit mode ends the edit.
func (m *Manager) Delete(ctx context.Context, id string, confirm ConfirmFunc) error {
	if confirm != nil {
		t := models.Template{ID: id}
		for _, cached := range m.Templates() {
			if cached.ID == id {
				t = cached
				break
			}
		}
		if !confirm(t) {
			return ErrCancelled
		}
	}

	if err := m.client.DeleteTemplate(ctx, id); err != nil {
		return err
	}

	m.mu.Lock()
	if m.editingID == id {
		m.resetLocked()
	}
	m.mu.Unlock()
	return m.refreshAfter(ctx, "delete")
}

// Activate selects the template used for generation and refreshes the cache.
func (m *Manager) Activate(ctx context.Context, id string) error {
	if err := m.client.ActivateTemplate(ctx, id); err != nil {
		return err
	}
	return m.refreshAfter(ctx, "activate")
}

func (m *Manager) refreshAfter(ctx context.Context, op string) error {
	if err := m.Refresh(ctx); err != nil {
		return fmt.Errorf("refresh after %s: %w", op, err)
	}
	return nil
}
