package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
)

// CacheEntryRepository persists the media cache index.
//
// Pin counts are runtime state and are never written; restored entries always start unpinned.
type CacheEntryRepository struct {
	db *sql.DB
}

// NewCacheEntryRepository creates a new CacheEntryRepository with the given database connection
func NewCacheEntryRepository(db *sql.DB) *CacheEntryRepository {
	return &CacheEntryRepository{db: db}
}

// Upsert inserts entry or replaces the row with the same key.
func (r *CacheEntryRepository) Upsert(entry models.CacheEntry) error {
	if entry.Key == "" || entry.Filename == "" {
		return fmt.Errorf("validation failed: key and filename are required")
	}

	query := `
		INSERT INTO cache_entries (key, filename, size_bytes, sequence, created_at, last_accessed)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			filename = excluded.filename,
			size_bytes = excluded.size_bytes,
			sequence = excluded.sequence,
			created_at = excluded.created_at,
			last_accessed = excluded.last_accessed
	`

	_, err := r.db.Exec(query,
		entry.Key,
		entry.Filename,
		entry.Size,
		entry.Sequence,
		entry.CreatedAt.UTC(),
		entry.LastAccess.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert cache entry: %w", err)
	}

	return nil
}

// Get retrieves a single entry by key.
func (r *CacheEntryRepository) Get(key string) (models.CacheEntry, error) {
	query := `
		SELECT key, filename, size_bytes, sequence, created_at, last_accessed
		FROM cache_entries
		WHERE key = ?
	`

	entry, err := r.scan(r.db.QueryRow(query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return models.CacheEntry{}, fmt.Errorf("%w: cache entry %s", ErrNotFound, key)
	}
	return entry, err
}

// Touch records a read of key at the given time.
func (r *CacheEntryRepository) Touch(key string, at time.Time) error {
	result, err := r.db.Exec("UPDATE cache_entries SET last_accessed = ? WHERE key = ?", at.UTC(), key)
	if err != nil {
		return fmt.Errorf("failed to touch cache entry: %w", err)
	}
	return affectedOne(result, "cache entry", key)
}

// Delete removes the row for key.
func (r *CacheEntryRepository) Delete(key string) error {
	result, err := r.db.Exec("DELETE FROM cache_entries WHERE key = ?", key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	return affectedOne(result, "cache entry", key)
}

// DeleteAll empties the index.
func (r *CacheEntryRepository) DeleteAll() error {
	if _, err := r.db.Exec("DELETE FROM cache_entries"); err != nil {
		return fmt.Errorf("failed to clear cache entries: %w", err)
	}
	return nil
}

// List returns every entry, least recently accessed first.
func (r *CacheEntryRepository) List() ([]models.CacheEntry, error) {
	query := `
		SELECT key, filename, size_bytes, sequence, created_at, last_accessed
		FROM cache_entries
		ORDER BY last_accessed ASC, sequence ASC
	`

	rows, err := r.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query cache entries: %w", err)
	}
	defer rows.Close()

	var entries []models.CacheEntry
	for rows.Next() {
		entry, err := r.scan(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return entries, nil
}

// TotalSize returns the sum of all indexed entry sizes.
func (r *CacheEntryRepository) TotalSize() (int64, error) {
	var total sql.NullInt64
	if err := r.db.QueryRow("SELECT SUM(size_bytes) FROM cache_entries").Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum cache entries: %w", err)
	}
	return total.Int64, nil
}

func (r *CacheEntryRepository) scan(row scanner) (models.CacheEntry, error) {
	var entry models.CacheEntry

	err := row.Scan(&entry.Key, &entry.Filename, &entry.Size, &entry.Sequence, &entry.CreatedAt, &entry.LastAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return entry, err
	}
	if err != nil {
		return entry, fmt.Errorf("failed to scan cache entry: %w", err)
	}

	return entry, nil
}
