// Package notestore persists captured voice notes in SQLite. It owns no
// scheduling logic: autosave flushing and retention purging are driven by
// tasks the app registers with the scheduler.
package notestore

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	logx "voxnote/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

var ErrNotFound = errors.New("note not found")

type Config struct {
	Path        string
	BusyTimeout time.Duration
}

// Note is one captured voice note. Transcript is filled in asynchronously
// once the transcription call succeeds.
type Note struct {
	ID         string
	Title      string
	Body       string
	Transcript string
	Created    time.Time
	Updated    time.Time
}

// stagedNote pairs a pending note with a revision number. Stage bumps the
// revision on every call so Flush can tell whether an entry was replaced
// while its write was in flight.
type stagedNote struct {
	note Note
	rev  uint64
}

type Store struct {
	db  *sql.DB
	log logx.Logger

	// staged holds notes waiting for the autosave flush, keyed by ID.
	mu     sync.Mutex
	staged map[string]stagedNote
}

func Open(cfg Config, log logx.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("notestore path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	s := &Store{db: db, log: log, staged: map[string]stagedNote{}}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Put upserts a note. An empty ID gets a fresh UUID; the assigned ID is
// returned.
func (s *Store) Put(ctx context.Context, n Note) (string, error) {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now()
	if n.Created.IsZero() {
		n.Created = now
	}
	n.Updated = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notes(id, title, body, transcript, created_at, updated_at)
		 VALUES(?,?,?,?,?,?)
		 ON CONFLICT(id) DO UPDATE SET
		   title=excluded.title, body=excluded.body,
		   transcript=excluded.transcript, updated_at=excluded.updated_at`,
		n.ID, n.Title, n.Body, n.Transcript,
		n.Created.Format(time.RFC3339Nano), n.Updated.Format(time.RFC3339Nano),
	)
	if err != nil {
		return "", fmt.Errorf("put note: %w", err)
	}
	return n.ID, nil
}

func (s *Store) Get(ctx context.Context, id string) (Note, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, title, body, transcript, created_at, updated_at FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Note{}, ErrNotFound
	}
	if err != nil {
		return Note{}, fmt.Errorf("get note: %w", err)
	}
	return n, nil
}

// List returns up to limit notes, most recently updated first. limit <= 0
// means no cap.
func (s *Store) List(ctx context.Context, limit int) ([]Note, error) {
	q := `SELECT id, title, body, transcript, created_at, updated_at
	      FROM notes ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	defer rows.Close()

	var out []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, fmt.Errorf("scan note: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete note: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Stage buffers a note for the next autosave flush. Re-staging the same ID
// replaces the pending version.
func (s *Store) Stage(n Note) string {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	s.mu.Lock()
	s.staged[n.ID] = stagedNote{note: n, rev: s.staged[n.ID].rev + 1}
	s.mu.Unlock()
	return n.ID
}

// Pending reports how many staged notes await a flush.
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.staged)
}

// Flush writes all staged notes. A note that fails to write stays staged
// for the next pass; the first error is returned after attempting the rest.
// A note re-staged while its write is in flight also stays staged: only the
// revision that was actually persisted is cleared.
func (s *Store) Flush(ctx context.Context) (int, error) {
	s.mu.Lock()
	batch := make([]stagedNote, 0, len(s.staged))
	for _, sn := range s.staged {
		batch = append(batch, sn)
	}
	s.mu.Unlock()

	var firstErr error
	written := 0
	for _, sn := range batch {
		if _, err := s.Put(ctx, sn.note); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		written++
		s.mu.Lock()
		if cur, ok := s.staged[sn.note.ID]; ok && cur.rev == sn.rev {
			delete(s.staged, sn.note.ID)
		}
		s.mu.Unlock()
	}
	if written > 0 {
		s.log.Debug("autosave flushed", logx.Int("notes", written))
	}
	return written, firstErr
}

// PurgeOlderThan deletes notes not updated in the given number of days and
// returns how many were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, days int) (int, error) {
	if days < 1 {
		days = 1
	}
	cutoff := time.Now().AddDate(0, 0, -days).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM notes WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notes: %w", err)
	}
	n, _ := res.RowsAffected()
	if n > 0 {
		s.log.Info("retention purge removed notes", logx.Int64("count", n))
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(r rowScanner) (Note, error) {
	var n Note
	var created, updated string
	if err := r.Scan(&n.ID, &n.Title, &n.Body, &n.Transcript, &created, &updated); err != nil {
		return Note{}, err
	}
	n.Created, _ = time.Parse(time.RFC3339Nano, created)
	n.Updated, _ = time.Parse(time.RFC3339Nano, updated)
	return n, nil
}
