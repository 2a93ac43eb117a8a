package cache

import (
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/repositories"
	"github.com/desertthunder/tapedeck/internal/shared"
)

const mb = 1 << 20

// clock advances one second per reading so every access has a distinct time.
type clock struct{ t time.Time }

func (c *clock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newClock() *clock {
	return &clock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

type evictions struct{ keys []string }

func (e *evictions) record(entry models.CacheEntry) { e.keys = append(e.keys, entry.Key) }

func openStore(t *testing.T, maxSize int64, opts ...func(*Options)) (*Store, *evictions) {
	t.Helper()

	ev := &evictions{}
	o := Options{
		Dir:     t.TempDir(),
		MaxSize: maxSize,
		Logger:  shared.NewLogger(os.Stderr),
		OnEvict: ev.record,
		Now:     newClock().now,
	}
	for _, fn := range opts {
		fn(&o)
	}

	s, err := Open(o)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	return s, ev
}

// sparse creates a file of the given size in the store's incoming directory without allocating blocks.
func sparse(t *testing.T, s *Store, name string, size int64) string {
	t.Helper()

	path := filepath.Join(s.IncomingDir(), name)
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", name, err)
	}
	defer f.Close()
	if err := f.Truncate(size); err != nil {
		t.Fatalf("failed to size %s: %v", name, err)
	}
	return path
}

func admit(t *testing.T, s *Store, key string, size int64) models.CacheEntry {
	t.Helper()

	entry, err := s.Admit(key, sparse(t, s, key+".webm", size))
	if err != nil {
		t.Fatalf("failed to admit %s: %v", key, err)
	}
	return entry
}

func TestStoreAdmission(t *testing.T) {
	t.Run("fourth 400MB entry in a 1GB budget evicts exactly the least recently accessed", func(t *testing.T) {
		s, ev := openStore(t, 1<<30)

		admit(t, s, "aaaaaaaaaaa", 400*mb)
		admit(t, s, "bbbbbbbbbbb", 400*mb)
		admit(t, s, "ccccccccccc", 400*mb)

		if st := s.Stats(); st.Size > st.MaxSize {
			t.Fatalf("aggregate %d exceeds budget %d", st.Size, st.MaxSize)
		}

		for _, key := range []string{"bbbbbbbbbbb", "ccccccccccc"} {
			if _, ok := s.Get(key); !ok {
				t.Fatalf("expected %s to be cached", key)
			}
		}

		before := len(ev.keys)
		admit(t, s, "ddddddddddd", 400*mb)

		evicted := ev.keys[before:]
		if len(evicted) != 1 || evicted[0] != "bbbbbbbbbbb" {
			t.Errorf("expected exactly bbbbbbbbbbb evicted, got %v", evicted)
		}
		if st := s.Stats(); st.Size > 1<<30 {
			t.Errorf("aggregate %d exceeds 1GB", st.Size)
		}
	})

	t.Run("eviction follows ascending last access", func(t *testing.T) {
		s, ev := openStore(t, 300)

		admit(t, s, "one", 100)
		admit(t, s, "two", 100)
		admit(t, s, "three", 100)

		s.Get("one")
		s.Get("three")
		s.Get("two")

		admit(t, s, "big", 300)

		want := []string{"one", "three", "two"}
		if strings.Join(ev.keys, ",") != strings.Join(want, ",") {
			t.Errorf("expected eviction order %v, got %v", want, ev.keys)
		}
	})

	t.Run("ties broken by insertion order", func(t *testing.T) {
		fixed := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
		s, ev := openStore(t, 200, func(o *Options) { o.Now = func() time.Time { return fixed } })

		admit(t, s, "first", 100)
		admit(t, s, "second", 100)
		admit(t, s, "third", 100)

		if len(ev.keys) != 1 || ev.keys[0] != "first" {
			t.Errorf("expected first to be evicted, got %v", ev.keys)
		}
	})

	t.Run("item larger than the budget is rejected", func(t *testing.T) {
		s, _ := openStore(t, 100)
		admit(t, s, "small", 50)

		src := sparse(t, s, "huge.webm", 101)
		_, err := s.Admit("huge", src)
		if !errors.Is(err, shared.ErrCapacityUnavailable) {
			t.Fatalf("expected ErrCapacityUnavailable, got %v", err)
		}
		if _, err := os.Stat(src); !errors.Is(err, os.ErrNotExist) {
			t.Error("rejected download should be deleted")
		}
		if _, ok := s.Peek("small"); !ok {
			t.Error("rejection must not evict anything")
		}
	})

	t.Run("replacing a key keeps one entry", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		admit(t, s, "same", 100)
		admit(t, s, "same", 250)

		st := s.Stats()
		if st.Count != 1 || st.Size != 250 {
			t.Errorf("expected one entry of 250 bytes, got %d entries totalling %d", st.Count, st.Size)
		}
	})

	t.Run("invalid key", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		if _, err := s.Admit("../escape", sparse(t, s, "x.webm", 1)); !errors.Is(err, shared.ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
		if _, err := s.Put("bad key", strings.NewReader("x")); !errors.Is(err, shared.ErrInvalidKey) {
			t.Errorf("expected ErrInvalidKey, got %v", err)
		}
	})

	t.Run("Put writes readable bytes", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		entry, err := s.Put("hello", strings.NewReader("hello world"))
		if err != nil {
			t.Fatalf("failed to put: %v", err)
		}
		if entry.Size != 11 {
			t.Errorf("expected size 11, got %d", entry.Size)
		}

		h, err := s.Acquire("hello")
		if err != nil {
			t.Fatalf("failed to acquire: %v", err)
		}
		defer h.Release()

		data, err := os.ReadFile(h.Path)
		if err != nil {
			t.Fatalf("failed to read cached file: %v", err)
		}
		if string(data) != "hello world" {
			t.Errorf("unexpected contents %q", data)
		}
	})
}

func TestStorePins(t *testing.T) {
	t.Run("pinned entries are never evicted", func(t *testing.T) {
		s, ev := openStore(t, 200)
		admit(t, s, "pinned", 100)
		admit(t, s, "loose", 100)

		h, err := s.Acquire("pinned")
		if err != nil {
			t.Fatalf("failed to acquire: %v", err)
		}

		admit(t, s, "new", 100)
		if len(ev.keys) != 1 || ev.keys[0] != "loose" {
			t.Fatalf("expected loose evicted, got %v", ev.keys)
		}

		_, err = s.Admit("other", sparse(t, s, "other.webm", 150))
		if !errors.Is(err, shared.ErrBusy) {
			t.Fatalf("expected ErrBusy while pins block admission, got %v", err)
		}
		if _, ok := s.Peek("pinned"); !ok {
			t.Fatal("pinned entry must survive")
		}

		h.Release()
		h.Release()

		admit(t, s, "other", 150)
		if _, ok := s.Peek("pinned"); ok {
			t.Error("unpinned entry should be evictable on the next admission")
		}
		if st := s.Stats(); st.Size > st.MaxSize {
			t.Errorf("aggregate %d exceeds budget %d", st.Size, st.MaxSize)
		}
	})

	t.Run("unpinning an unpinned entry panics", func(t *testing.T) {
		s, _ := openStore(t, 200)
		admit(t, s, "k", 10)

		defer func() {
			if recover() == nil {
				t.Error("expected panic on unbalanced unpin")
			}
		}()
		s.Unpin("k")
	})

	t.Run("evicting a pinned entry panics", func(t *testing.T) {
		s, _ := openStore(t, 200)
		admit(t, s, "k", 10)
		if err := s.Pin("k"); err != nil {
			t.Fatalf("failed to pin: %v", err)
		}

		defer func() {
			if recover() == nil {
				t.Error("expected panic when evicting a pinned entry")
			}
		}()
		s.mu.Lock()
		defer s.mu.Unlock()
		s.evictLocked(s.entries["k"])
	})

	t.Run("remove and clear reject pinned entries", func(t *testing.T) {
		s, _ := openStore(t, 200)
		admit(t, s, "a", 10)
		admit(t, s, "b", 10)

		h, err := s.Acquire("a")
		if err != nil {
			t.Fatalf("failed to acquire: %v", err)
		}

		if err := s.Remove("a"); !errors.Is(err, shared.ErrBusy) {
			t.Errorf("expected ErrBusy from Remove, got %v", err)
		}
		if _, err := s.ClearAll(); !errors.Is(err, shared.ErrBusy) {
			t.Errorf("expected ErrBusy from ClearAll, got %v", err)
		}
		if s.Stats().Count != 2 {
			t.Error("a rejected clear must not delete anything")
		}

		h.Release()

		n, err := s.ClearAll()
		if err != nil {
			t.Fatalf("failed to clear: %v", err)
		}
		if n != 2 || s.Stats().Size != 0 {
			t.Errorf("expected 2 entries cleared and empty store, got n=%d stats=%+v", n, s.Stats())
		}
	})

	t.Run("acquire on a miss", func(t *testing.T) {
		s, _ := openStore(t, 200)
		if _, err := s.Acquire("nothing"); !errors.Is(err, shared.ErrNotCached) {
			t.Errorf("expected ErrNotCached, got %v", err)
		}
	})
}

func TestStoreBudget(t *testing.T) {
	t.Run("SetMaxSize validates range", func(t *testing.T) {
		s, _ := openStore(t, 1<<30)
		for _, gb := range []float64{0.05, 101} {
			if err := s.SetMaxSize(shared.GBToBytes(gb)); !errors.Is(err, shared.ErrOutOfRange) {
				t.Errorf("SetMaxSize(%v GB) = %v, want ErrOutOfRange", gb, err)
			}
		}
	})

	t.Run("SetMaxSize accepts the exact bounds", func(t *testing.T) {
		s, _ := openStore(t, 1<<30)
		for _, gb := range []float64{shared.MinCacheSizeGB, shared.MaxCacheSizeGB} {
			if err := s.SetMaxSize(shared.GBToBytes(gb)); err != nil {
				t.Errorf("SetMaxSize(%v GB) unexpected error: %v", gb, err)
			}
			if s.MaxSize() != shared.GBToBytes(gb) {
				t.Errorf("expected budget %d, got %d", shared.GBToBytes(gb), s.MaxSize())
			}
		}
	})

	t.Run("shrinking evicts immediately", func(t *testing.T) {
		s, ev := openStore(t, 1<<30)
		admit(t, s, "a", 300*mb)
		admit(t, s, "b", 300*mb)
		admit(t, s, "c", 300*mb)

		if err := s.SetMaxSize(shared.GBToBytes(0.5)); err != nil {
			t.Fatalf("failed to shrink: %v", err)
		}

		if strings.Join(ev.keys, ",") != "a,b" {
			t.Errorf("expected a,b evicted, got %v", ev.keys)
		}
		if st := s.Stats(); st.Size > st.MaxSize {
			t.Errorf("aggregate %d exceeds budget %d", st.Size, st.MaxSize)
		}
	})

	t.Run("shrink below pinned usage resolves on unpin", func(t *testing.T) {
		s, _ := openStore(t, 1<<30)
		admit(t, s, "a", 300*mb)
		h, err := s.Acquire("a")
		if err != nil {
			t.Fatalf("failed to acquire: %v", err)
		}

		if err := s.SetMaxSize(shared.GBToBytes(0.2)); err != nil {
			t.Fatalf("failed to shrink: %v", err)
		}
		if s.Stats().Count != 1 {
			t.Fatal("pinned entry must survive the shrink")
		}

		h.Release()
		if s.Stats().Count != 0 {
			t.Error("releasing the last pin should evict the over-budget entry")
		}
	})

	t.Run("aggregate never exceeds budget under random admissions", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		rng := rand.New(rand.NewSource(7))

		var handles []*Handle
		for i := range 200 {
			key := string(rune('a'+rng.Intn(20))) + "key"
			size := int64(rng.Intn(400) + 1)
			_, err := s.Admit(key, sparse(t, s, key+".webm", size))
			if err != nil && !errors.Is(err, shared.ErrBusy) {
				t.Fatalf("step %d: unexpected error %v", i, err)
			}

			if rng.Intn(5) == 0 {
				if h, err := s.Acquire(key); err == nil {
					handles = append(handles, h)
				}
			}
			if len(handles) > 0 && rng.Intn(3) == 0 {
				handles[0].Release()
				handles = handles[1:]
			}

			if st := s.Stats(); st.Size > st.MaxSize {
				t.Fatalf("step %d: aggregate %d exceeds budget %d", i, st.Size, st.MaxSize)
			}
		}
		for _, h := range handles {
			h.Release()
		}
	})

	t.Run("Stats is a pure read", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		admit(t, s, "a", 250)
		before := s.Entries()[0].LastAccess

		st := s.Stats()
		if st.Count != 1 || st.Size != 250 || st.Available != 750 || st.UsagePercent != 25 {
			t.Errorf("unexpected stats %+v", st)
		}
		if !s.Entries()[0].LastAccess.Equal(before) {
			t.Error("Stats must not touch entries")
		}
	})

	t.Run("EvictOlderThan", func(t *testing.T) {
		c := newClock()
		s, _ := openStore(t, 1000, func(o *Options) { o.Now = c.now })
		admit(t, s, "old", 10)
		c.t = c.t.Add(48 * time.Hour)
		admit(t, s, "fresh", 10)

		if n := s.EvictOlderThan(24 * time.Hour); n != 1 {
			t.Errorf("expected 1 eviction, got %d", n)
		}
		if _, ok := s.Peek("fresh"); !ok {
			t.Error("fresh entry should survive")
		}
	})
}

func TestStoreRestore(t *testing.T) {
	t.Run("restores from index and removes strays", func(t *testing.T) {
		db, err := shared.NewDatabase(":memory:")
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()
		if err := shared.RunMigrations(db); err != nil {
			t.Fatalf("failed to migrate: %v", err)
		}
		index := repositories.NewCacheEntryRepository(db)
		dir := t.TempDir()

		s, _ := openStore(t, 1000, func(o *Options) { o.Dir = dir; o.Index = index })
		admit(t, s, "keep", 100)
		admit(t, s, "gone", 100)

		if err := os.Remove(filepath.Join(dir, "gone.webm")); err != nil {
			t.Fatalf("failed to remove file: %v", err)
		}
		for _, stray := range []string{"orphan.webm", "abc.webm.part", "abc.f251.ytdl", "abc.webm.part-Frag3", "abc.webm.part-Frag4.part"} {
			if err := os.WriteFile(filepath.Join(dir, stray), []byte("x"), 0o644); err != nil {
				t.Fatalf("failed to write stray: %v", err)
			}
		}

		reopened, _ := openStore(t, 1000, func(o *Options) { o.Dir = dir; o.Index = index })

		entries := reopened.Entries()
		if len(entries) != 1 || entries[0].Key != "keep" {
			t.Fatalf("expected only keep restored, got %+v", entries)
		}

		files, err := os.ReadDir(dir)
		if err != nil {
			t.Fatalf("failed to list dir: %v", err)
		}
		for _, f := range files {
			if !f.IsDir() && f.Name() != "keep.webm" {
				t.Errorf("stray file %s survived", f.Name())
			}
		}

		rows, err := index.List()
		if err != nil {
			t.Fatalf("failed to list index: %v", err)
		}
		if len(rows) != 1 {
			t.Errorf("expected stale index row dropped, got %d rows", len(rows))
		}
	})

	t.Run("derives entries from the directory without an index", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "dQw4w9WgXcQ.opus"), []byte("audio"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}
		if err := os.WriteFile(filepath.Join(dir, "dQw4w9WgXcQ.opus.part"), []byte("au"), 0o644); err != nil {
			t.Fatalf("failed to write file: %v", err)
		}

		s, _ := openStore(t, 1000, func(o *Options) { o.Dir = dir })

		entry, ok := s.Get("dQw4w9WgXcQ")
		if !ok {
			t.Fatal("expected entry derived from listing")
		}
		if entry.Size != 5 || entry.Filename != "dQw4w9WgXcQ.opus" {
			t.Errorf("unexpected entry %+v", entry)
		}
		if _, err := os.Stat(filepath.Join(dir, "dQw4w9WgXcQ.opus.part")); !errors.Is(err, os.ErrNotExist) {
			t.Error("partial download should be removed")
		}
	})

	t.Run("ids containing Frag are not mistaken for fragments", func(t *testing.T) {
		dir := t.TempDir()
		for _, name := range []string{"xFragment01.webm", "xFragment01.webm.part-Frag7"} {
			if err := os.WriteFile(filepath.Join(dir, name), []byte("audio"), 0o644); err != nil {
				t.Fatalf("failed to write %s: %v", name, err)
			}
		}

		s, _ := openStore(t, 1000, func(o *Options) { o.Dir = dir })

		if _, ok := s.Get("xFragment01"); !ok {
			t.Fatal("expected xFragment01 to be adopted")
		}
		if _, err := os.Stat(filepath.Join(dir, "xFragment01.webm.part-Frag7")); !errors.Is(err, os.ErrNotExist) {
			t.Error("fragment leftover should be removed")
		}
	})

	t.Run("Get drops entries whose file vanished", func(t *testing.T) {
		s, _ := openStore(t, 1000)
		admit(t, s, "k", 10)
		if err := os.Remove(filepath.Join(s.Dir(), "k.webm")); err != nil {
			t.Fatalf("failed to remove file: %v", err)
		}

		if _, ok := s.Get("k"); ok {
			t.Error("expected miss for vanished file")
		}
		if st := s.Stats(); st.Count != 0 || st.Size != 0 {
			t.Errorf("expected empty store, got %+v", st)
		}
	})
}
