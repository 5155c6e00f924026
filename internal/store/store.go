package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"galleria/internal/media"
)

// ErrNotFound is returned by Get when no record exists for a path.
var ErrNotFound = errors.New("media record not found")

// MediaRecord is one indexed media file. Path is the identity key; a path is
// ingested once and never updated afterwards.
type MediaRecord struct {
	ID           int64          `json:"id"`
	Path         string         `json:"path"`
	Filename     string         `json:"filename"`
	Extension    string         `json:"extension"`
	FileType     media.FileType `json:"file_type"`
	FileSize     int64          `json:"file_size"`
	ModifiedAt   time.Time      `json:"modified_at"`
	DiscoveredAt time.Time      `json:"discovered_at"`
}

// TypeStats aggregates the library by file type.
type TypeStats struct {
	FileType   media.FileType `json:"file_type"`
	Count      int64          `json:"count"`
	TotalBytes int64          `json:"total_bytes"`
}

// Store persists MediaRecords in SQLite. The *sql.DB handle is owned by the
// caller and is safe for concurrent use from the scan goroutine and from
// on-demand lookups (single writer connection, WAL).
type Store struct {
	db *sql.DB
}

// New wraps an opened, migrated database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Upsert inserts the record if its path is absent. A second call with an
// already-present path is a silent no-op — never an error, never an update.
// Returns true when a new row was inserted.
func (s *Store) Upsert(ctx context.Context, rec MediaRecord) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO media_files
			(path, filename, extension, file_type, file_size, modified_at, discovered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Path, rec.Filename, rec.Extension, string(rec.FileType),
		rec.FileSize, rec.ModifiedAt.Unix(), rec.DiscoveredAt.Unix())
	if err != nil {
		return false, fmt.Errorf("upsert %q: %w", rec.Path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("upsert %q: rows affected: %w", rec.Path, err)
	}
	return n > 0, nil
}

// LoadAll returns every record ordered by discovery time (stable display
// order), oldest first.
func (s *Store) LoadAll(ctx context.Context) ([]MediaRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, path, filename, extension, file_type, file_size, modified_at, discovered_at
		FROM media_files
		ORDER BY discovered_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("load all: %w", err)
	}
	defer rows.Close()

	var recs []MediaRecord
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("load all: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Get returns the record for path, or ErrNotFound.
func (s *Store) Get(ctx context.Context, path string) (MediaRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, extension, file_type, file_size, modified_at, discovered_at
		FROM media_files WHERE path = ?`, path)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaRecord{}, ErrNotFound
	}
	if err != nil {
		return MediaRecord{}, fmt.Errorf("get %q: %w", path, err)
	}
	return rec, nil
}

// GetByID returns the record with the given row ID, or ErrNotFound.
func (s *Store) GetByID(ctx context.Context, id int64) (MediaRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, path, filename, extension, file_type, file_size, modified_at, discovered_at
		FROM media_files WHERE id = ?`, id)
	rec, err := scanRecord(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return MediaRecord{}, ErrNotFound
	}
	if err != nil {
		return MediaRecord{}, fmt.Errorf("get id %d: %w", id, err)
	}
	return rec, nil
}

// Count returns the number of indexed records.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM media_files`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}

// Stats returns per-type counts and byte totals.
func (s *Store) Stats(ctx context.Context) ([]TypeStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT file_type, COUNT(*), COALESCE(SUM(file_size), 0)
		FROM media_files
		GROUP BY file_type
		ORDER BY file_type`)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer rows.Close()

	var stats []TypeStats
	for rows.Next() {
		var st TypeStats
		var ft string
		if err := rows.Scan(&ft, &st.Count, &st.TotalBytes); err != nil {
			return nil, fmt.Errorf("stats: %w", err)
		}
		st.FileType = media.FileType(ft)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// Folders returns the sorted distinct parent directories of all records.
func (s *Store) Folders(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM media_files`)
	if err != nil {
		return nil, fmt.Errorf("folders: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]bool)
	var folders []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("folders: %w", err)
		}
		dir := filepath.Dir(p)
		if !seen[dir] {
			seen[dir] = true
			folders = append(folders, dir)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Strings(folders)
	return folders, nil
}

// RemoveFolder deletes every record whose path lives under dir (recursively)
// and returns the number of rows removed.
func (s *Store) RemoveFolder(ctx context.Context, dir string) (int64, error) {
	prefix := strings.TrimSuffix(dir, string(filepath.Separator)) + string(filepath.Separator)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM media_files WHERE path LIKE ? ESCAPE '\'`,
		escapeLike(prefix)+"%")
	if err != nil {
		return 0, fmt.Errorf("remove folder %q: %w", dir, err)
	}
	return res.RowsAffected()
}

// escapeLike escapes SQL LIKE metacharacters in a literal prefix.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `%`, `\%`)
	s = strings.ReplaceAll(s, `_`, `\_`)
	return s
}

// scanRecord reads one media_files row through the given Scan function.
func scanRecord(scan func(dest ...any) error) (MediaRecord, error) {
	var rec MediaRecord
	var ft string
	var modifiedAt, discoveredAt int64
	if err := scan(&rec.ID, &rec.Path, &rec.Filename, &rec.Extension,
		&ft, &rec.FileSize, &modifiedAt, &discoveredAt); err != nil {
		return MediaRecord{}, err
	}
	rec.FileType = media.FileType(ft)
	rec.ModifiedAt = time.Unix(modifiedAt, 0)
	rec.DiscoveredAt = time.Unix(discoveredAt, 0)
	return rec, nil
}
