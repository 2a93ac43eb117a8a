// package tasks implements multi-download operations over the fetcher.
package tasks

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// Lookahead is how many tracks after the current one are requested before the rest.
const Lookahead = 2

// DefaultWorkers bounds concurrent prefetch requests when none is configured.
const DefaultWorkers = 3

// Downloader fetches one key into the cache, joining any download already in flight.
type Downloader interface {
	Download(ctx context.Context, key string, ref fetcher.RemoteStream) (models.CacheEntry, error)
}

// Resolver expands a locator into its streams.
type Resolver interface {
	Resolve(ctx context.Context, locator string, collection bool) ([]fetcher.RemoteStream, error)
}

// PrefetchResult summarizes a prefetch run.
type PrefetchResult struct {
	Total      int
	Successful int
	Failed     int
	Errors     map[string]error // keyed by stream key
}

// Prefetcher warms the cache for the tracks of a playlist.
type Prefetcher struct {
	downloader Downloader
	workers    int
	logger     *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPrefetcher creates a prefetcher with at most workers concurrent requests.
func NewPrefetcher(d Downloader, workers int, logger *log.Logger) *Prefetcher {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = log.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Prefetcher{
		downloader: d,
		workers:    workers,
		logger:     shared.WithLogger(logger, "component", "prefetch"),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// PriorityOrder returns streams with current and the [Lookahead] tracks after it first (wrapping at
// the end of the list), followed by the remaining tracks in playlist order. Duplicate keys are
// dropped.
func PriorityOrder(streams []fetcher.RemoteStream, current int) []fetcher.RemoteStream {
	n := len(streams)
	if n == 0 {
		return nil
	}
	if current < 0 || current >= n {
		current = 0
	}

	ordered := make([]fetcher.RemoteStream, 0, n)
	seen := make(map[string]bool, n)
	add := func(s fetcher.RemoteStream) {
		if s.Key == "" || seen[s.Key] {
			return
		}
		seen[s.Key] = true
		ordered = append(ordered, s)
	}

	for i := 0; i <= Lookahead && i < n; i++ {
		add(streams[(current+i)%n])
	}
	for _, s := range streams {
		add(s)
	}
	return ordered
}

// Run downloads streams in priority order and waits for all of them.
//
// Individual failures are collected in the result; only cancellation of ctx is returned as an error.
func (p *Prefetcher) Run(ctx context.Context, progress chan<- ProgressUpdate, streams []fetcher.RemoteStream, current int) (*PrefetchResult, error) {
	ordered := PriorityOrder(streams, current)
	result := &PrefetchResult{Total: len(ordered), Errors: make(map[string]error)}

	sendProgress(progress, prefetchStartUpdate(len(ordered)))

	var (
		mu   sync.Mutex
		step atomic.Int32
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)

	for _, stream := range ordered {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := p.downloader.Download(gctx, stream.Key, stream)
			n := int(step.Add(1))

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Failed++
				result.Errors[stream.Key] = err
				p.logger.Warn("prefetch failed", "key", stream.Key, "err", err)
				sendProgress(progress, prefetchFailedUpdate(n, len(ordered), stream, err))
				return nil
			}
			result.Successful++
			sendProgress(progress, prefetchDoneUpdate(n, len(ordered), stream))
			return nil
		})
	}

	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// Start runs a prefetch in the background. It returns the number of streams queued.
func (p *Prefetcher) Start(streams []fetcher.RemoteStream, current int) int {
	if p.ctx.Err() != nil {
		return 0
	}

	queued := len(PriorityOrder(streams, current))
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		result, err := p.Run(p.ctx, nil, streams, current)
		if err != nil {
			return
		}
		p.logger.Debug("prefetch finished", "total", result.Total, "ok", result.Successful, "failed", result.Failed)
	}()
	return queued
}

// Close cancels background prefetches and waits for them to stop.
func (p *Prefetcher) Close() {
	p.cancel()
	p.wg.Wait()
}

// ResolveAndPrefetch resolves locator and, when prefetch is set, downloads every stream.
func ResolveAndPrefetch(
	ctx context.Context,
	progress chan<- ProgressUpdate,
	r Resolver,
	p *Prefetcher,
	locator string,
	collection bool,
	prefetch bool,
) ([]fetcher.RemoteStream, *PrefetchResult, error) {
	sendProgress(progress, resolvingUpdate(locator))

	streams, err := r.Resolve(ctx, locator, collection)
	if err != nil {
		return nil, nil, err
	}
	sendProgress(progress, resolvedUpdate(len(streams)))

	if !prefetch || p == nil {
		return streams, nil, nil
	}

	result, err := p.Run(ctx, progress, streams, 0)
	return streams, result, err
}
