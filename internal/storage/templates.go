package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/feniks/backend/internal/models"
)

// ErrNotFound is returned when a file or template does not exist.
var ErrNotFound = errors.New("not found")

// TemplateStore persists DOCX templates.
type TemplateStore interface {
	// List returns templates newest first, without content.
	List(ctx context.Context) ([]models.Template, error)
	Get(ctx context.Context, id string) (*models.Template, error)
	Content(ctx context.Context, id string) ([]byte, error)
	Create(ctx context.Context, name string, content []byte) (*models.Template, error)
	// Update changes the name when name is non-nil and the binary when
	// content is non-nil. Omitted values are preserved.
	Update(ctx context.Context, id string, name *string, content []byte) (*models.Template, error)
	Delete(ctx context.Context, id string) error
	// Activate marks id as the template used for generation.
	Activate(ctx context.Context, id string) error
	// Active returns the activated template, or the newest when none is.
	Active(ctx context.Context) (*models.Template, []byte, error)
	Close() error
}

// Supported template store drivers.
const (
	DriverDuckDB = "duckdb"
	DriverSQLite = "sqlite"
)

// OpenTemplateStore opens the store selected by driver at path.
func OpenTemplateStore(driver, path string) (TemplateStore, error) {
	switch driver {
	case DriverDuckDB, "":
		return NewDuckTemplateStore(path)
	case DriverSQLite:
		return NewSQLiteTemplateStore(path)
	default:
		return nil, fmt.Errorf("unknown template driver %q", driver)
	}
}

const templatesSchema = `
CREATE TABLE IF NOT EXISTS templates (
	id         VARCHAR PRIMARY KEY,
	name       VARCHAR NOT NULL,
	content    BLOB NOT NULL,
	file_size  BIGINT NOT NULL,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	active     BOOLEAN NOT NULL DEFAULT FALSE
)`

const templateColumns = `id, name, file_size, created_at, updated_at, active`

// sqlTemplateStore implements TemplateStore over database/sql. The DDL and
// queries are shared by the DuckDB and SQLite drivers.
type sqlTemplateStore struct {
	db *sql.DB

	// Timestamps are unix nanoseconds, kept strictly increasing so that
	// "newest" is never ambiguous.
	clockMu sync.Mutex
	last    int64
}

func newSQLTemplateStore(db *sql.DB) (*sqlTemplateStore, error) {
	if _, err := db.Exec(templatesSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create templates table: %w", err)
	}
	s := &sqlTemplateStore{db: db}
	if err := db.QueryRow(`SELECT COALESCE(MAX(updated_at), 0) FROM templates`).Scan(&s.last); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to read template clock: %w", err)
	}
	return s, nil
}

func (s *sqlTemplateStore) now() int64 {
	s.clockMu.Lock()
	defer s.clockMu.Unlock()
	ts := time.Now().UnixNano()
	if ts <= s.last {
		ts = s.last + 1
	}
	s.last = ts
	return ts
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTemplate(row rowScanner) (models.Template, error) {
	var (
		t                models.Template
		created, updated int64
	)
	if err := row.Scan(&t.ID, &t.Name, &t.FileSize, &created, &updated, &t.Active); err != nil {
		return t, err
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	return t, nil
}

func (s *sqlTemplateStore) List(ctx context.Context) ([]models.Template, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+templateColumns+` FROM templates ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	defer rows.Close()

	list := []models.Template{}
	anyActive := false
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan template: %w", err)
		}
		anyActive = anyActive || t.Active
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list templates: %w", err)
	}
	if !anyActive && len(list) > 0 {
		list[0].Active = true
	}
	return list, nil
}

func (s *sqlTemplateStore) Get(ctx context.Context, id string) (*models.Template, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+templateColumns+` FROM templates WHERE id = ?`, id)
	t, err := scanTemplate(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get template: %w", err)
	}
	return &t, nil
}

func (s *sqlTemplateStore) Content(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := s.db.QueryRowContext(ctx, `SELECT content FROM templates WHERE id = ?`, id).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read template content: %w", err)
	}
	return content, nil
}

func (s *sqlTemplateStore) Create(ctx context.Context, name string, content []byte) (*models.Template, error) {
	id := uuid.New().String()
	ts := s.now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO templates (id, name, content, file_size, created_at, updated_at, active) VALUES (?, ?, ?, ?, ?, ?, FALSE)`,
		id, name, content, int64(len(content)), ts, ts)
	if err != nil {
		return nil, fmt.Errorf("create template: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *sqlTemplateStore) Update(ctx context.Context, id string, name *string, content []byte) (*models.Template, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	newName := current.Name
	if name != nil {
		newName = *name
	}

	ts := s.now()
	if content != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE templates SET name = ?, content = ?, file_size = ?, updated_at = ? WHERE id = ?`,
			newName, content, int64(len(content)), ts, id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE templates SET name = ?, updated_at = ? WHERE id = ?`,
			newName, ts, id)
	}
	if err != nil {
		return nil, fmt.Errorf("update template: %w", err)
	}
	return s.Get(ctx, id)
}

func (s *sqlTemplateStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM templates WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete template: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("template %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *sqlTemplateStore) Activate(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `UPDATE templates SET active = FALSE WHERE active = TRUE`); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE templates SET active = TRUE WHERE id = ?`, id); err != nil {
		return fmt.Errorf("activate template: %w", err)
	}
	return tx.Commit()
}

func (s *sqlTemplateStore) Active(ctx context.Context) (*models.Template, []byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+templateColumns+`, content FROM templates ORDER BY active DESC, created_at DESC LIMIT 1`)

	var (
		t                models.Template
		created, updated int64
		content          []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.FileSize, &created, &updated, &t.Active, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil, fmt.Errorf("active template: %w", ErrNotFound)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("active template: %w", err)
	}
	t.CreatedAt = time.Unix(0, created).UTC()
	t.UpdatedAt = time.Unix(0, updated).UTC()
	t.Active = true
	return &t, content, nil
}

func (s *sqlTemplateStore) Close() error {
	return s.db.Close()
}
