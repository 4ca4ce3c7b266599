package notes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound indicates the requested note does not exist.
var ErrNotFound = errors.New("note not found")

// Store manages note persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the note database and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("ensure store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) applyMigrations(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS notes (
	id TEXT PRIMARY KEY,
	content TEXT NOT NULL,
	kind TEXT NOT NULL,
	done INTEGER NOT NULL DEFAULT 0,
	tracking INTEGER NOT NULL DEFAULT 0,
	reminder_at TEXT,
	illustration_prompt TEXT NOT NULL DEFAULT '',
	illustration_path TEXT NOT NULL DEFAULT '',
	audio_clip_path TEXT NOT NULL DEFAULT '',
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_notes_created_at ON notes(created_at);
`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Create inserts a new note.
func (s *Store) Create(ctx context.Context, n *Note) error {
	var reminder sql.NullString
	if n.ReminderAt != nil {
		reminder = sql.NullString{String: n.ReminderAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
INSERT INTO notes (id, content, kind, done, tracking, reminder_at,
	illustration_prompt, illustration_path, audio_clip_path, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.Content, string(n.Kind), boolToInt(n.Done), boolToInt(n.Tracking),
		reminder, n.IllustrationPrompt, n.IllustrationPath, n.AudioClipPath,
		n.CreatedAt.Format(time.RFC3339Nano), n.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert note: %w", err)
	}
	return nil
}

// Get retrieves a note by ID.
func (s *Store) Get(ctx context.Context, id string) (*Note, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT id, content, kind, done, tracking, reminder_at,
	illustration_prompt, illustration_path, audio_clip_path, created_at, updated_at
FROM notes WHERE id = ?`, id)

	note, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("query note: %w", err)
	}
	return note, nil
}

// Update applies a sparse update to a stored note and returns the
// updated note. Fields absent from the update keep their stored values.
func (s *Store) Update(ctx context.Context, id string, u Update) (*Note, error) {
	note, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := note.Apply(u); err != nil {
		return nil, err
	}

	var reminder sql.NullString
	if note.ReminderAt != nil {
		reminder = sql.NullString{String: note.ReminderAt.Format(time.RFC3339Nano), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `
UPDATE notes SET content = ?, kind = ?, done = ?, tracking = ?, reminder_at = ?,
	illustration_prompt = ?, illustration_path = ?, audio_clip_path = ?, updated_at = ?
WHERE id = ?`,
		note.Content, string(note.Kind), boolToInt(note.Done), boolToInt(note.Tracking),
		reminder, note.IllustrationPrompt, note.IllustrationPath, note.AudioClipPath,
		note.UpdatedAt.Format(time.RFC3339Nano), id)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	return note, nil
}

// Delete removes a note by ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// List returns all notes in reverse chronological order.
func (s *Store) List(ctx context.Context) ([]*Note, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, content, kind, done, tracking, reminder_at,
	illustration_prompt, illustration_path, audio_clip_path, created_at, updated_at
FROM notes ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var result []*Note
	for rows.Next() {
		note, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		result = append(result, note)
	}
	return result, rows.Err()
}

// TimelineEntry is one calendar day of notes, newest day first. The
// voice session sends a snapshot of recent entries as conversation
// context when connecting.
type TimelineEntry struct {
	Day   string
	Notes []*Note
}

// Timeline groups the most recent notes by calendar day, newest first,
// covering at most dayLimit days.
func (s *Store) Timeline(ctx context.Context, dayLimit int) ([]TimelineEntry, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	var entries []TimelineEntry
	for _, n := range all {
		day := n.Day()
		if len(entries) == 0 || entries[len(entries)-1].Day != day {
			if dayLimit > 0 && len(entries) == dayLimit {
				break
			}
			entries = append(entries, TimelineEntry{Day: day})
		}
		last := &entries[len(entries)-1]
		last.Notes = append(last.Notes, n)
	}
	return entries, nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanNote(row scanner) (*Note, error) {
	var (
		n         Note
		kind      string
		done      int
		tracking  int
		reminder  sql.NullString
		createdAt string
		updatedAt string
	)

	err := row.Scan(&n.ID, &n.Content, &kind, &done, &tracking, &reminder,
		&n.IllustrationPrompt, &n.IllustrationPath, &n.AudioClipPath, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	n.Kind = Kind(kind)
	n.Done = done != 0
	n.Tracking = tracking != 0

	if n.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if reminder.Valid {
		t, err := time.Parse(time.RFC3339Nano, reminder.String)
		if err != nil {
			return nil, fmt.Errorf("parse reminder_at: %w", err)
		}
		n.ReminderAt = &t
	}

	return &n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
