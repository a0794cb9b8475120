package settings

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"devscope/internal/models"
)

// SavedSession is a session descriptor persisted across daemon restarts so a
// user can resume tracked projects without re-entering them.
type SavedSession struct {
	ID          string    `json:"id"`
	ProjectName string    `json:"project_name"`
	RepoPath    string    `json:"repo_path"`
	Goal        string    `json:"goal"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the local state database: identity and saved sessions. It lives
// under the user's home directory and is never synced anywhere.
type Store struct {
	db *sql.DB
}

// DefaultPath returns ~/.devscope/devscope.db.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot resolve home directory: %w", err)
	}
	return filepath.Join(home, ".devscope", "devscope.db"), nil
}

// Open creates or opens the settings database and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open settings database: %w", err)
	}
	// modernc sqlite is single-writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS identity (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		user_id TEXT NOT NULL DEFAULT '',
		display_name TEXT NOT NULL DEFAULT '',
		org_id TEXT NOT NULL DEFAULT ''
	);
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		project_name TEXT NOT NULL,
		repo_path TEXT NOT NULL DEFAULT '',
		goal TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply settings schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveIdentity upserts the single identity row.
func (s *Store) SaveIdentity(identity models.Identity) error {
	_, err := s.db.Exec(`
		INSERT INTO identity (id, user_id, display_name, org_id) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id,
			display_name = excluded.display_name, org_id = excluded.org_id`,
		identity.UserID, identity.DisplayName, identity.OrgID)
	if err != nil {
		return fmt.Errorf("failed to save identity: %w", err)
	}
	return nil
}

// LoadIdentity returns the stored identity, or a zero value when none was
// ever saved.
func (s *Store) LoadIdentity() (models.Identity, error) {
	var identity models.Identity
	err := s.db.QueryRow(`SELECT user_id, display_name, org_id FROM identity WHERE id = 1`).
		Scan(&identity.UserID, &identity.DisplayName, &identity.OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Identity{}, nil
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("failed to load identity: %w", err)
	}
	return identity, nil
}

// SaveSession persists a session descriptor.
func (s *Store) SaveSession(session SavedSession) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO sessions (id, project_name, repo_path, goal, created_at) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET project_name = excluded.project_name,
			repo_path = excluded.repo_path, goal = excluded.goal`,
		session.ID, session.ProjectName, session.RepoPath, session.Goal, session.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// DeleteSession removes a saved session. Unknown ids are not an error.
func (s *Store) DeleteSession(id string) error {
	if _, err := s.db.Exec(`DELETE FROM sessions WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// ListSessions returns all saved sessions, newest first.
func (s *Store) ListSessions() ([]SavedSession, error) {
	rows, err := s.db.Query(`SELECT id, project_name, repo_path, goal, created_at FROM sessions ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var out []SavedSession
	for rows.Next() {
		var session SavedSession
		if err := rows.Scan(&session.ID, &session.ProjectName, &session.RepoPath, &session.Goal, &session.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}
		out = append(out, session)
	}
	return out, rows.Err()
}
