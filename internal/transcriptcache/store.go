package transcriptcache

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"subtitler/internal/subtitles"
)

//go:embed schema.sql
var schemaSQL string

// schemaVersion is bumped whenever the table layout changes. A mismatched
// database must be cleared with `subtitler cache clear` or deleted.
const schemaVersion = 1

// ErrSchemaMismatch indicates the cache database was written by a different schema version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// Key identifies one transcription unit: a time range of a specific version
// of a source file, transcribed with a given model and language hint.
type Key struct {
	SourcePath string
	Size       int64
	ModTime    int64
	OffsetMS   int64
	DurationMS int64
	Model      string
	Language   string
}

// Entry is a cached transcription.
type Entry struct {
	Segments  []subtitles.Segment
	ModelUsed string
	CreatedAt time.Time
}

// Stats summarizes cache contents.
type Stats struct {
	Path    string
	Entries int64
	Sources int64
	Bytes   int64
	Oldest  time.Time
	Newest  time.Time
}

// Store persists transcripts in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// KeyFor stats source and builds the cache key for the given part range.
func KeyFor(source string, offsetSeconds, durationSeconds float64, model, language string) (Key, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return Key{}, fmt.Errorf("resolve source path: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return Key{}, fmt.Errorf("stat source: %w", err)
	}
	return Key{
		SourcePath: abs,
		Size:       info.Size(),
		ModTime:    info.ModTime().UnixNano(),
		OffsetMS:   int64(math.Round(offsetSeconds * 1000)),
		DurationMS: int64(math.Round(durationSeconds * 1000)),
		Model:      strings.ToLower(strings.TrimSpace(model)),
		Language:   strings.ToLower(strings.TrimSpace(language)),
	}, nil
}

// Open initializes or connects to the cache database.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("cache path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure cache dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}

	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *Store) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

// Get returns the cached entry for key. The boolean is false on a miss.
func (s *Store) Get(ctx context.Context, key Key) (Entry, bool, error) {
	var (
		modelUsed    string
		segmentsJSON string
		createdAt    string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT model_used, segments_json, created_at FROM transcripts
         WHERE source_path = ? AND source_size = ? AND source_mtime = ?
           AND offset_ms = ? AND duration_ms = ? AND model = ? AND language = ?`,
		key.SourcePath, key.Size, key.ModTime, key.OffsetMS, key.DurationMS, key.Model, key.Language,
	).Scan(&modelUsed, &segmentsJSON, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get transcript: %w", err)
	}
	var segments []subtitles.Segment
	if err := json.Unmarshal([]byte(segmentsJSON), &segments); err != nil {
		return Entry{}, false, fmt.Errorf("decode cached segments: %w", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, createdAt)
	return Entry{Segments: segments, ModelUsed: modelUsed, CreatedAt: created}, true, nil
}

// Put stores segments for key, replacing any previous entry.
func (s *Store) Put(ctx context.Context, key Key, segments []subtitles.Segment, modelUsed string) error {
	if segments == nil {
		segments = []subtitles.Segment{}
	}
	encoded, err := json.Marshal(segments)
	if err != nil {
		return fmt.Errorf("encode segments: %w", err)
	}
	if modelUsed == "" {
		modelUsed = key.Model
	}
	return s.execWithRetry(ctx,
		`INSERT OR REPLACE INTO transcripts (
            source_path, source_size, source_mtime, offset_ms, duration_ms,
            model, language, model_used, segments_json, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		key.SourcePath, key.Size, key.ModTime, key.OffsetMS, key.DurationMS,
		key.Model, key.Language, modelUsed, string(encoded),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
}

// Stats reports entry counts and the on-disk size of the database.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Path: s.path}
	var oldest, newest sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COUNT(DISTINCT source_path), MIN(created_at), MAX(created_at) FROM transcripts`,
	).Scan(&stats.Entries, &stats.Sources, &oldest, &newest)
	if err != nil {
		return stats, fmt.Errorf("cache stats: %w", err)
	}
	if oldest.Valid {
		stats.Oldest, _ = time.Parse(time.RFC3339Nano, oldest.String)
	}
	if newest.Valid {
		stats.Newest, _ = time.Parse(time.RFC3339Nano, newest.String)
	}
	if info, err := os.Stat(s.path); err == nil {
		stats.Bytes = info.Size()
	}
	return stats, nil
}

// Clear removes every cached transcript and returns how many were removed.
func (s *Store) Clear(ctx context.Context) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, "DELETE FROM transcripts")
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("clear cache: %w", err)
	}
	return removed, nil
}

func (s *Store) execWithRetry(ctx context.Context, query string, args ...any) error {
	err := retryOnBusy(ctx, func() error {
		_, err := s.db.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return fmt.Errorf("cache write: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}
