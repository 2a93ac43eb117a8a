package fetcher

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/desertthunder/tapedeck/internal/cache"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

const (
	DefaultMaxParallel = 3
	DefaultMaxAttempts = 3
	DefaultTimeout     = 300 * time.Second
	DefaultFailureTTL  = time.Minute
	// DefaultBusyTTL is how long a download rejected by a full, pinned cache is reported before
	// the next request tries again.
	DefaultBusyTTL = 5 * time.Second
	maxBackoff     = 30 * time.Second
	// defaultDownloadTime seeds ETA estimates before any download has finished.
	defaultDownloadTime = 15 * time.Second
)

// Cache is the part of the cache store the fetcher writes into.
type Cache interface {
	Peek(key string) (models.CacheEntry, bool)
	Admit(key, src string) (models.CacheEntry, error)
	IncomingDir() string
}

// Options configures a [Fetcher]. Zero values select the defaults.
type Options struct {
	MaxParallel   int
	MaxAttempts   int
	Timeout       time.Duration
	FailureTTL    time.Duration
	BusyTTL       time.Duration
	RatePerSecond float64
	// Backoff returns the wait before retry n (1-based). Defaults to min(2^n, 30) seconds.
	Backoff func(attempt int) time.Duration
	Logger  *log.Logger
	// OnFinish observes every finished job.
	OnFinish func(job models.DownloadJob)
}

// ExponentialBackoff waits 2^attempt seconds, capped at 30s.
func ExponentialBackoff(attempt int) time.Duration {
	d := time.Duration(1<<min(attempt, 5)) * time.Second
	return min(d, maxBackoff)
}

type job struct {
	id         string
	key        string
	ref        RemoteStream
	state      models.JobState
	waiters    int
	attempts   int
	startedAt  time.Time
	finishedAt time.Time
	done       chan struct{}
	entry      models.CacheEntry
	err        error
}

func (j *job) snapshot() models.DownloadJob {
	out := models.DownloadJob{
		ID:         j.id,
		Key:        j.key,
		State:      j.state,
		Waiters:    j.waiters,
		Attempts:   j.attempts,
		Size:       j.entry.Size,
		StartedAt:  j.startedAt,
		FinishedAt: j.finishedAt,
	}
	if j.err != nil {
		out.Error = j.err.Error()
	}
	return out
}

// Fetcher downloads remote streams into a [Cache], collapsing concurrent requests per key.
type Fetcher struct {
	extractor Extractor
	cache     Cache
	opts      Options
	logger    *log.Logger

	// sem has MaxParallelLimit slots; reserved of them are held back so that the remainder
	// matches opts.MaxParallel.
	sem      *semaphore.Weighted
	resizeMu sync.Mutex
	reserved int64
	limiter  *rate.Limiter
	resolves singleflight.Group

	mu         sync.Mutex
	jobs       map[string]*job
	successful int
	failed     int
	busyTime   time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Fetcher. Background downloads run until [Fetcher.Close].
func New(extractor Extractor, store Cache, opts Options) *Fetcher {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = DefaultMaxParallel
	}
	opts.MaxParallel = min(opts.MaxParallel, shared.MaxParallelLimit)
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.FailureTTL <= 0 {
		opts.FailureTTL = DefaultFailureTTL
	}
	if opts.BusyTTL <= 0 {
		opts.BusyTTL = DefaultBusyTTL
	}
	if opts.Backoff == nil {
		opts.Backoff = ExponentialBackoff
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}

	limit := rate.Inf
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f := &Fetcher{
		extractor: extractor,
		cache:     store,
		opts:      opts,
		logger:    shared.WithLogger(opts.Logger, "component", "fetcher"),
		sem:       semaphore.NewWeighted(shared.MaxParallelLimit),
		reserved:  int64(shared.MaxParallelLimit - opts.MaxParallel),
		limiter:   rate.NewLimiter(limit, 1),
		jobs:      make(map[string]*job),
		ctx:       ctx,
		cancel:    cancel,
	}
	f.sem.TryAcquire(f.reserved)
	return f
}

// SetMaxParallel changes how many downloads may run at once. Raising the limit starts queued
// jobs right away; lowering it takes effect as running downloads finish.
func (f *Fetcher) SetMaxParallel(n int) error {
	if err := shared.ValidateMaxParallel(n); err != nil {
		return err
	}

	f.mu.Lock()
	if err := f.ctx.Err(); err != nil {
		f.mu.Unlock()
		return fmt.Errorf("fetcher closed: %w", err)
	}
	old := f.opts.MaxParallel
	f.opts.MaxParallel = n
	f.wg.Add(1)
	f.mu.Unlock()

	f.logger.Info("download parallelism changed", "old", old, "new", n)

	go func() {
		defer f.wg.Done()
		f.resize()
	}()
	return nil
}

// resize moves slots between the reserve and the pool until they match the latest limit.
func (f *Fetcher) resize() {
	f.resizeMu.Lock()
	defer f.resizeMu.Unlock()

	f.mu.Lock()
	want := int64(shared.MaxParallelLimit - f.opts.MaxParallel)
	f.mu.Unlock()

	switch {
	case want < f.reserved:
		f.sem.Release(f.reserved - want)
	case want > f.reserved:
		if err := f.sem.Acquire(f.ctx, want-f.reserved); err != nil {
			return
		}
	}
	f.reserved = want
}

// Resolve expands locator into its streams. Identical concurrent calls share one extractor run.
func (f *Fetcher) Resolve(ctx context.Context, locator string, collection bool) ([]RemoteStream, error) {
	normalized, err := Normalize(locator, collection)
	if err != nil {
		return nil, err
	}

	ch := f.resolves.DoChan(normalized, func() (any, error) {
		if err := f.limiter.Wait(f.ctx); err != nil {
			return nil, err
		}
		rctx, cancel := context.WithTimeout(f.ctx, f.opts.Timeout)
		defer cancel()
		return f.extractor.Resolve(rctx, normalized)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, sourceError(res.Err)
		}
		streams, _ := res.Val.([]RemoteStream)
		if !collection && len(streams) > 1 {
			streams = streams[:1]
		}
		out := make([]RemoteStream, len(streams))
		copy(out, streams)
		return out, nil
	}
}

// Download returns the cache entry for key, downloading ref if needed.
//
// Callers requesting a key that is already downloading wait for that job. Cancelling ctx only
// stops this caller from waiting.
func (f *Fetcher) Download(ctx context.Context, key string, ref RemoteStream) (models.CacheEntry, error) {
	if entry, ok := f.cache.Peek(key); ok {
		return entry, nil
	}

	j, err := f.attach(key, ref, true)
	if err != nil {
		return models.CacheEntry{}, err
	}
	defer f.detach(j)

	select {
	case <-j.done:
		return j.entry, j.err
	case <-ctx.Done():
		return models.CacheEntry{}, ctx.Err()
	}
}

// Enqueue starts a background download for key unless one is running, cached or recently failed.
func (f *Fetcher) Enqueue(key string, ref RemoteStream) (models.DownloadJob, error) {
	if entry, ok := f.cache.Peek(key); ok {
		return models.DownloadJob{Key: key, State: models.JobDone, Size: entry.Size}, nil
	}

	j, err := f.attach(key, ref, false)
	if err != nil {
		return models.DownloadJob{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	return j.snapshot(), nil
}

func (f *Fetcher) attach(key string, ref RemoteStream, wait bool) (*job, error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	if ref.URL == "" {
		ref.URL = RefForKey(key)
	}
	if ref.Key == "" {
		ref.Key = key
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ctx.Err(); err != nil {
		return nil, fmt.Errorf("fetcher closed: %w", err)
	}

	j, ok := f.jobs[key]
	// a job that finished after the caller's cache miss still answers for the key
	if ok && j.state == models.JobDone {
		if _, cached := f.cache.Peek(key); cached {
			if wait {
				j.waiters++
			}
			return j, nil
		}
	}
	if ok && f.expiredLocked(j) {
		delete(f.jobs, key)
		ok = false
	}
	if !ok {
		j = &job{
			id:        uuid.NewString(),
			key:       key,
			ref:       ref,
			state:     models.JobPending,
			startedAt: time.Now(),
			done:      make(chan struct{}),
		}
		f.jobs[key] = j
		f.wg.Add(1)
		go f.run(j)
	}
	if wait {
		j.waiters++
	}
	return j, nil
}

func (f *Fetcher) detach(j *job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j.waiters--
}

// expiredLocked reports whether a finished job no longer represents the key.
func (f *Fetcher) expiredLocked(j *job) bool {
	switch j.state {
	case models.JobDone:
		return true
	case models.JobFailed:
		ttl := f.opts.FailureTTL
		if errors.Is(j.err, shared.ErrBusy) {
			ttl = f.opts.BusyTTL
		}
		return time.Since(j.finishedAt) > ttl
	default:
		return false
	}
}

func (f *Fetcher) run(j *job) {
	defer f.wg.Done()

	if err := f.sem.Acquire(f.ctx, 1); err != nil {
		f.finish(j, models.CacheEntry{}, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err))
		return
	}
	defer f.sem.Release(1)

	f.mu.Lock()
	j.state = models.JobRunning
	j.startedAt = time.Now()
	f.mu.Unlock()

	logger := f.logger.With("key", j.key, "job", j.id)
	logger.Info("download started")

	entry, err := f.attempt(j, logger)
	f.finish(j, entry, err)
}

// attempt runs the extractor until it succeeds, fails permanently, or runs out of attempts.
func (f *Fetcher) attempt(j *job, logger *log.Logger) (models.CacheEntry, error) {
	dir := filepath.Join(f.cache.IncomingDir(), j.id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return models.CacheEntry{}, fmt.Errorf("failed to create download directory: %w", err)
	}
	defer os.RemoveAll(dir)

	var lastErr error
	for attempt := 1; attempt <= f.opts.MaxAttempts; attempt++ {
		f.mu.Lock()
		j.attempts = attempt
		f.mu.Unlock()

		if err := f.limiter.Wait(f.ctx); err != nil {
			return models.CacheEntry{}, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}

		ctx, cancel := context.WithTimeout(f.ctx, f.opts.Timeout)
		path, err := f.extractor.Download(ctx, j.ref, dir)
		cancel()

		if err == nil {
			return f.cache.Admit(j.key, path)
		}

		lastErr = sourceError(err)
		if errors.Is(lastErr, shared.ErrSourceRestricted) {
			return models.CacheEntry{}, lastErr
		}

		logger.Warn("download attempt failed", "attempt", attempt, "of", f.opts.MaxAttempts, "err", err)
		if attempt == f.opts.MaxAttempts {
			break
		}

		if err := sleepWithContext(f.ctx, f.opts.Backoff(attempt)); err != nil {
			return models.CacheEntry{}, fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
		}
		os.RemoveAll(dir)
		os.MkdirAll(dir, 0o755)
	}

	return models.CacheEntry{}, fmt.Errorf("failed after %d attempts: %w", f.opts.MaxAttempts, lastErr)
}

func (f *Fetcher) finish(j *job, entry models.CacheEntry, err error) {
	f.mu.Lock()
	j.finishedAt = time.Now()
	j.entry = entry
	j.err = err
	if err != nil {
		j.state = models.JobFailed
		f.failed++
	} else {
		j.state = models.JobDone
		f.successful++
		f.busyTime += j.finishedAt.Sub(j.startedAt)
	}
	snap := j.snapshot()
	close(j.done)
	f.mu.Unlock()

	if err != nil {
		f.logger.Error("download failed", "key", j.key, "job", j.id, "attempts", snap.Attempts, "err", err)
	} else {
		f.logger.Info("download finished", "key", j.key, "job", j.id, "size", shared.HumanBytes(entry.Size), "took", snap.FinishedAt.Sub(snap.StartedAt).Round(time.Millisecond))
	}

	if f.opts.OnFinish != nil {
		f.opts.OnFinish(snap)
	}
}

// Status returns the job for key, if one is active or failed recently.
func (f *Fetcher) Status(key string) (models.DownloadJob, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.jobs[key]
	if !ok || f.expiredLocked(j) {
		return models.DownloadJob{}, false
	}
	return j.snapshot(), true
}

// Failure returns the error of a recently failed job for key, or nil.
func (f *Fetcher) Failure(key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.jobs[key]
	if !ok || j.state != models.JobFailed || f.expiredLocked(j) {
		return nil
	}
	return j.err
}

// Forget drops a failed job so the next request retries immediately.
func (f *Fetcher) Forget(key string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if j, ok := f.jobs[key]; ok && j.state.Terminal() {
		delete(f.jobs, key)
	}
}

// ETA estimates the remaining time of the job for key from the mean duration of past downloads.
func (f *Fetcher) ETA(key string) (time.Duration, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	j, ok := f.jobs[key]
	if !ok || j.state.Terminal() {
		return 0, false
	}

	typical := defaultDownloadTime
	if f.successful > 0 {
		typical = f.busyTime / time.Duration(f.successful)
	}
	if j.state == models.JobPending {
		return typical, true
	}
	return max(typical-time.Since(j.startedAt), 0), true
}

// SizeEstimate returns the upstream size hint of the job for key.
func (f *Fetcher) SizeEstimate(key string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()

	if j, ok := f.jobs[key]; ok {
		return j.ref.SizeEstimate
	}
	return 0
}

// Stats summarizes download activity.
func (f *Fetcher) Stats() models.DownloadStats {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := models.DownloadStats{
		Successful:  f.successful,
		Failed:      f.failed,
		Total:       f.successful + f.failed,
		MaxParallel: f.opts.MaxParallel,
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Successful) / float64(stats.Total) * 100
	}
	for _, j := range f.jobs {
		switch j.state {
		case models.JobRunning:
			stats.Active++
		case models.JobPending:
			stats.Queued++
		}
	}
	return stats
}

// Close cancels running downloads and waits for their goroutines to exit.
func (f *Fetcher) Close() {
	f.cancel()
	f.wg.Wait()
}

func validKey(key string) error {
	if !cache.ValidKey(key) {
		return fmt.Errorf("%w: %q", shared.ErrInvalidKey, key)
	}
	return nil
}

// sourceError makes sure extractor failures carry a source sentinel.
func sourceError(err error) error {
	if errors.Is(err, shared.ErrSourceRestricted) || errors.Is(err, shared.ErrSourceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", shared.ErrSourceUnavailable, err)
}

func sleepWithContext(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
