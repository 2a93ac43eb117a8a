package cache

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

const incomingDir = ".incoming"

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// partialPattern matches leftovers of interrupted yt-dlp runs: .part and .ytdl
// files plus fragment pieces such as "abc.webm.part-Frag3".
var partialPattern = regexp.MustCompile(`\.(part|ytdl)$|\.part-Frag\d+`)

// ValidKey reports whether key can name a cache entry.
func ValidKey(key string) bool {
	return keyPattern.MatchString(key)
}

// Index persists entry metadata. Pin counts are never persisted.
type Index interface {
	List() ([]models.CacheEntry, error)
	Upsert(entry models.CacheEntry) error
	Touch(key string, at time.Time) error
	Delete(key string) error
	DeleteAll() error
}

// Options configures [Open].
type Options struct {
	Dir     string
	MaxSize int64
	// Index is optional; without it entries are re-derived from the directory listing.
	Index   Index
	Logger  *log.Logger
	OnEvict func(entry models.CacheEntry)
	Now     func() time.Time
}

// Store is a bounded, keyed store of media files with LRU eviction.
type Store struct {
	mu      sync.Mutex
	dir     string
	maxSize int64
	size    int64
	seq     int64
	entries map[string]*models.CacheEntry

	index   Index
	logger  *log.Logger
	onEvict func(entry models.CacheEntry)
	now     func() time.Time
}

// Open creates the cache directory if needed and restores its entries.
//
// Index rows whose files are gone are dropped, files nobody indexed are deleted, and stale partial
// downloads are cleaned up. If the restored set exceeds the budget it is trimmed immediately.
func Open(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("%w: cache directory is required", shared.ErrInvalidConfig)
	}
	if opts.MaxSize <= 0 {
		return nil, fmt.Errorf("%w: cache max size must be positive", shared.ErrInvalidConfig)
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	s := &Store{
		dir:     opts.Dir,
		maxSize: opts.MaxSize,
		entries: make(map[string]*models.CacheEntry),
		index:   opts.Index,
		logger:  shared.WithLogger(opts.Logger, "component", "cache"),
		onEvict: opts.OnEvict,
		now:     opts.Now,
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := os.RemoveAll(s.IncomingDir()); err != nil {
		return nil, fmt.Errorf("failed to clear incoming directory: %w", err)
	}
	if err := os.MkdirAll(s.IncomingDir(), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create incoming directory: %w", err)
	}

	if err := s.restore(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.evictUntilUnderBudgetLocked()
	s.mu.Unlock()

	s.logger.Info("cache opened", "dir", s.dir, "entries", len(s.entries), "size", shared.HumanBytes(s.size), "max", shared.HumanBytes(s.maxSize))
	return s, nil
}

// Dir returns the cache directory.
func (s *Store) Dir() string { return s.dir }

// IncomingDir is where in-progress downloads are written before [Store.Admit].
func (s *Store) IncomingDir() string { return filepath.Join(s.dir, incomingDir) }

// restore loads entries from the index (or the directory listing) and removes orphans.
func (s *Store) restore() error {
	files, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read cache directory: %w", err)
	}

	onDisk := make(map[string]os.FileInfo, len(files))
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		onDisk[f.Name()] = info
	}

	if s.index != nil {
		rows, err := s.index.List()
		if err != nil {
			return fmt.Errorf("failed to load cache index: %w", err)
		}
		for _, row := range rows {
			info, ok := onDisk[row.Filename]
			if !ok || !ValidKey(row.Key) {
				s.logger.Warn("dropping index row without file", "key", row.Key, "filename", row.Filename)
				if err := s.index.Delete(row.Key); err != nil {
					s.logger.Warn("failed to drop index row", "key", row.Key, "err", err)
				}
				continue
			}
			entry := row
			entry.Size = info.Size()
			entry.Pins = 0
			s.entries[entry.Key] = &entry
			s.size += entry.Size
			s.seq = max(s.seq, entry.Sequence)
			delete(onDisk, row.Filename)
		}
	} else {
		s.deriveFromListing(onDisk)
	}

	for name := range onDisk {
		reason := "orphan"
		if IsPartial(name) {
			reason = "partial download"
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err != nil {
			s.logger.Warn("failed to remove stray file", "file", name, "err", err)
			continue
		}
		s.logger.Info("removed stray file", "file", name, "reason", reason)
	}

	return nil
}

// deriveFromListing adopts complete media files found on disk, consuming them from onDisk.
func (s *Store) deriveFromListing(onDisk map[string]os.FileInfo) {
	names := make([]string, 0, len(onDisk))
	for name := range onDisk {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return onDisk[names[i]].ModTime().Before(onDisk[names[j]].ModTime())
	})

	for _, name := range names {
		if IsPartial(name) {
			continue
		}
		key := strings.TrimSuffix(name, filepath.Ext(name))
		if !ValidKey(key) || s.entries[key] != nil {
			continue
		}
		info := onDisk[name]
		s.seq++
		s.entries[key] = &models.CacheEntry{
			Key:        key,
			Filename:   name,
			Size:       info.Size(),
			CreatedAt:  info.ModTime(),
			LastAccess: info.ModTime(),
			Sequence:   s.seq,
		}
		s.size += info.Size()
		delete(onDisk, name)
	}
}

// IsPartial reports whether name is an incomplete download rather than playable media.
func IsPartial(name string) bool {
	return partialPattern.MatchString(name)
}

// Get returns the entry for key and records the access.
//
// An entry whose file has vanished is dropped and reported as a miss.
func (s *Store) Get(key string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookupLocked(key)
	if !ok {
		return models.CacheEntry{}, false
	}
	s.touchLocked(e)
	return *e, true
}

// Peek returns the entry for key without touching its access time.
func (s *Store) Peek(key string) (models.CacheEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return models.CacheEntry{}, false
	}
	return *e, true
}

func (s *Store) lookupLocked(key string) (*models.CacheEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return nil, false
	}
	if e.Pins == 0 {
		if _, err := os.Stat(s.path(e)); errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("cached file missing, dropping entry", "key", key)
			s.dropLocked(e)
			return nil, false
		}
	}
	return e, true
}

func (s *Store) touchLocked(e *models.CacheEntry) {
	e.LastAccess = s.now()
	if s.index != nil {
		if err := s.index.Touch(e.Key, e.LastAccess); err != nil {
			s.logger.Warn("failed to persist access time", "key", e.Key, "err", err)
		}
	}
}

// Pin increments the pin count of key, protecting it from eviction.
func (s *Store) Pin(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookupLocked(key)
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNotCached, key)
	}
	e.Pins++
	s.touchLocked(e)
	return nil
}

// Unpin decrements the pin count of key.
//
// Unpinning an entry that is not pinned means a pin leaked somewhere and panics. Releasing the last
// pin while the store is over budget evicts immediately.
func (s *Store) Unpin(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok || e.Pins == 0 {
		panic(fmt.Sprintf("cache: unpin of unpinned entry %q", key))
	}
	e.Pins--
	if e.Pins == 0 && s.size > s.maxSize {
		s.evictUntilUnderBudgetLocked()
	}
}

// Handle is a pinned reference to a cached file. Release must be called exactly once; further
// calls are no-ops.
type Handle struct {
	Entry models.CacheEntry
	Path  string

	store *Store
	once  sync.Once
}

// Open opens the pinned file for reading.
func (h *Handle) Open() (*os.File, error) {
	return os.Open(h.Path)
}

// Release drops the pin taken by [Store.Acquire].
func (h *Handle) Release() {
	h.once.Do(func() { h.store.Unpin(h.Entry.Key) })
}

// Acquire pins key and returns a handle to its file, or [shared.ErrNotCached] on a miss.
func (s *Store) Acquire(key string) (*Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookupLocked(key)
	if !ok {
		return nil, fmt.Errorf("%w: %s", shared.ErrNotCached, key)
	}
	e.Pins++
	s.touchLocked(e)
	return &Handle{Entry: *e, Path: s.path(e), store: s}, nil
}

// Put stores the contents of r under key.
func (s *Store) Put(key string, r io.Reader) (models.CacheEntry, error) {
	if !ValidKey(key) {
		return models.CacheEntry{}, fmt.Errorf("%w: %q", shared.ErrInvalidKey, key)
	}

	tmp, err := os.CreateTemp(s.IncomingDir(), uuid.NewString()+"-*")
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return models.CacheEntry{}, fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return models.CacheEntry{}, fmt.Errorf("failed to close temp file: %w", err)
	}

	return s.admit(key, tmp.Name(), "")
}

// Admit moves the completed file at src into the cache under key, keeping its extension.
//
// The budget is enforced before the file is committed: unpinned entries are evicted oldest first.
// If the file alone exceeds the budget it is rejected with [shared.ErrCapacityUnavailable]; if
// pinned entries prevent making room it is rejected with [shared.ErrBusy]. A rejected src is
// deleted.
func (s *Store) Admit(key, src string) (models.CacheEntry, error) {
	if !ValidKey(key) {
		os.Remove(src)
		return models.CacheEntry{}, fmt.Errorf("%w: %q", shared.ErrInvalidKey, key)
	}
	return s.admit(key, src, filepath.Ext(src))
}

func (s *Store) admit(key, src, ext string) (models.CacheEntry, error) {
	info, err := os.Stat(src)
	if err != nil {
		return models.CacheEntry{}, fmt.Errorf("failed to stat download: %w", err)
	}
	size := info.Size()

	s.mu.Lock()
	defer s.mu.Unlock()

	reject := func(err error) (models.CacheEntry, error) {
		os.Remove(src)
		return models.CacheEntry{}, err
	}

	if size > s.maxSize {
		return reject(fmt.Errorf("%w: %s is %s, budget is %s", shared.ErrCapacityUnavailable, key, shared.HumanBytes(size), shared.HumanBytes(s.maxSize)))
	}

	existing := s.entries[key]
	base := s.size
	if existing != nil {
		if existing.Pins > 0 {
			return reject(fmt.Errorf("%w: %s is being read", shared.ErrBusy, key))
		}
		base -= existing.Size
	}

	var victims []*models.CacheEntry
	if base+size > s.maxSize {
		for _, e := range s.lruLocked() {
			if e.Key == key || e.Pins > 0 {
				continue
			}
			victims = append(victims, e)
			base -= e.Size
			if base+size <= s.maxSize {
				break
			}
		}
		if base+size > s.maxSize {
			return reject(fmt.Errorf("%w: pinned entries hold %s of %s", shared.ErrBusy, shared.HumanBytes(s.pinnedBytesLocked()), shared.HumanBytes(s.maxSize)))
		}
	}

	for _, v := range victims {
		s.evictLocked(v)
	}

	filename := key + ext
	dst := filepath.Join(s.dir, filename)
	if err := os.Rename(src, dst); err != nil {
		return reject(fmt.Errorf("failed to move download into cache: %w", err))
	}

	if existing != nil {
		if existing.Filename != filename {
			os.Remove(s.path(existing))
		}
		s.size -= existing.Size
		delete(s.entries, key)
	}

	now := s.now()
	s.seq++
	e := &models.CacheEntry{
		Key:        key,
		Filename:   filename,
		Size:       size,
		CreatedAt:  now,
		LastAccess: now,
		Sequence:   s.seq,
	}
	s.entries[key] = e
	s.size += size

	if s.index != nil {
		if err := s.index.Upsert(*e); err != nil {
			s.logger.Warn("failed to persist cache entry", "key", key, "err", err)
		}
	}

	s.logger.Debug("admitted", "key", key, "size", shared.HumanBytes(size), "evicted", len(victims), "total", shared.HumanBytes(s.size))
	return *e, nil
}

// EvictUntilUnderBudget evicts unpinned entries in LRU order until the store fits its budget.
// It returns the number of entries evicted.
func (s *Store) EvictUntilUnderBudget() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evictUntilUnderBudgetLocked()
}

func (s *Store) evictUntilUnderBudgetLocked() int {
	if s.size <= s.maxSize {
		return 0
	}
	evicted := 0
	for _, e := range s.lruLocked() {
		if s.size <= s.maxSize {
			break
		}
		if e.Pins > 0 {
			continue
		}
		s.evictLocked(e)
		evicted++
	}
	if s.size > s.maxSize {
		s.logger.Warn("over budget until pinned entries are released", "size", shared.HumanBytes(s.size), "max", shared.HumanBytes(s.maxSize))
	}
	return evicted
}

// lruLocked returns entries by ascending last access, ties broken by insertion order.
func (s *Store) lruLocked() []*models.CacheEntry {
	out := make([]*models.CacheEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastAccess.Equal(out[j].LastAccess) {
			return out[i].LastAccess.Before(out[j].LastAccess)
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out
}

func (s *Store) pinnedBytesLocked() int64 {
	var n int64
	for _, e := range s.entries {
		if e.Pins > 0 {
			n += e.Size
		}
	}
	return n
}

// evictLocked removes e from disk and memory. Evicting a pinned entry is a pin accounting bug.
func (s *Store) evictLocked(e *models.CacheEntry) {
	if e.Pins > 0 {
		panic(fmt.Sprintf("cache: evicting pinned entry %q (%d pins)", e.Key, e.Pins))
	}
	s.dropLocked(e)
	s.logger.Info("evicted", "key", e.Key, "size", shared.HumanBytes(e.Size), "last_accessed", e.LastAccess)
	if s.onEvict != nil {
		s.onEvict(*e)
	}
}

func (s *Store) dropLocked(e *models.CacheEntry) {
	if err := os.Remove(s.path(e)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("failed to remove cached file", "key", e.Key, "err", err)
	}
	delete(s.entries, e.Key)
	s.size -= e.Size
	if s.index != nil {
		if err := s.index.Delete(e.Key); err != nil {
			s.logger.Warn("failed to drop index row", "key", e.Key, "err", err)
		}
	}
}

// Remove deletes a single entry. Pinned entries are rejected with [shared.ErrBusy].
func (s *Store) Remove(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("%w: %s", shared.ErrNotCached, key)
	}
	if e.Pins > 0 {
		return fmt.Errorf("%w: %s is being read", shared.ErrBusy, key)
	}
	s.dropLocked(e)
	return nil
}

// ClearAll deletes every entry. It fails with [shared.ErrBusy] while any entry is pinned and then
// deletes nothing.
func (s *Store) ClearAll() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.entries {
		if e.Pins > 0 {
			return 0, fmt.Errorf("%w: %s is being read", shared.ErrBusy, e.Key)
		}
	}

	n := len(s.entries)
	for _, e := range s.entries {
		if err := os.Remove(s.path(e)); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove cached file", "key", e.Key, "err", err)
		}
	}
	s.entries = make(map[string]*models.CacheEntry)
	s.size = 0
	if s.index != nil {
		if err := s.index.DeleteAll(); err != nil {
			return n, fmt.Errorf("failed to clear cache index: %w", err)
		}
	}

	s.logger.Info("cache cleared", "entries", n)
	return n, nil
}

// EvictOlderThan removes unpinned entries not accessed within age.
func (s *Store) EvictOlderThan(age time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-age)
	n := 0
	for _, e := range s.lruLocked() {
		if !e.LastAccess.Before(cutoff) {
			break
		}
		if e.Pins > 0 {
			continue
		}
		s.evictLocked(e)
		n++
	}
	return n
}

// SetMaxSize changes the budget. The new value must lie within the admin range
// (see [shared.ValidateCacheSizeBytes]); shrinking evicts immediately.
func (s *Store) SetMaxSize(bytes int64) error {
	if err := shared.ValidateCacheSizeBytes(bytes); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.maxSize
	s.maxSize = bytes
	evicted := s.evictUntilUnderBudgetLocked()
	s.logger.Info("cache budget changed", "old", shared.HumanBytes(old), "new", shared.HumanBytes(bytes), "evicted", evicted)
	return nil
}

// MaxSize returns the current budget in bytes.
func (s *Store) MaxSize() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.maxSize
}

// Stats returns aggregate usage. It has no side effects.
func (s *Store) Stats() models.CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := models.CacheStats{
		Size:      s.size,
		MaxSize:   s.maxSize,
		Count:     len(s.entries),
		Available: max(s.maxSize-s.size, 0),
	}
	if s.maxSize > 0 {
		stats.UsagePercent = float64(s.size) / float64(s.maxSize) * 100
	}
	return stats
}

// Entries returns a snapshot of every entry, least recently used first.
func (s *Store) Entries() []models.CacheEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	lru := s.lruLocked()
	out := make([]models.CacheEntry, len(lru))
	for i, e := range lru {
		out[i] = *e
	}
	return out
}

func (s *Store) path(e *models.CacheEntry) string {
	return filepath.Join(s.dir, e.Filename)
}
