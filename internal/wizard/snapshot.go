package wizard

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/feniks/backend/internal/models"
)

const snapshotExt = ".msgpack"

// SnapshotStore persists sessions as one MessagePack file each.
type SnapshotStore struct {
	dir string
}

// NewSnapshotStore creates the snapshot directory if needed.
func NewSnapshotStore(dir string) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating sessions directory: %w", err)
	}
	return &SnapshotStore{dir: dir}, nil
}

func (s *SnapshotStore) path(id string) string {
	return filepath.Join(s.dir, id+snapshotExt)
}

// Save writes the session atomically.
func (s *SnapshotStore) Save(sess models.Session) error {
	data, err := msgpack.Marshal(&sess)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	tmp := s.path(sess.ID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := os.Rename(tmp, s.path(sess.ID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Delete removes a snapshot. A missing snapshot is not an error.
func (s *SnapshotStore) Delete(id string) error {
	if err := os.Remove(s.path(id)); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// LoadAll decodes every snapshot in the directory. Unreadable files are
// returned in skipped rather than failing the whole load.
func (s *SnapshotStore) LoadAll() (sessions []models.Session, skipped []string, err error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), snapshotExt) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, e.Name()))
		if err != nil {
			skipped = append(skipped, e.Name())
			continue
		}
		var sess models.Session
		if err := msgpack.Unmarshal(data, &sess); err != nil || sess.ID == "" {
			skipped = append(skipped, e.Name())
			continue
		}
		sessions = append(sessions, sess)
	}
	return sessions, skipped, nil
}
