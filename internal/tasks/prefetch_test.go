package tasks

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/tapedeck/internal/fetcher"
	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

type mockDownloader struct {
	mu      sync.Mutex
	order   []string
	fail    map[string]error
	block   chan struct{}
	started chan string
}

func (m *mockDownloader) Download(ctx context.Context, key string, ref fetcher.RemoteStream) (models.CacheEntry, error) {
	if m.started != nil {
		m.started <- key
	}
	if m.block != nil {
		select {
		case <-m.block:
		case <-ctx.Done():
			return models.CacheEntry{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.order = append(m.order, key)
	if err := m.fail[key]; err != nil {
		return models.CacheEntry{}, err
	}
	return models.CacheEntry{Key: key}, nil
}

type mockResolver struct {
	streams []fetcher.RemoteStream
	err     error
}

func (m *mockResolver) Resolve(ctx context.Context, locator string, collection bool) ([]fetcher.RemoteStream, error) {
	return m.streams, m.err
}

func streamsFor(keys ...string) []fetcher.RemoteStream {
	out := make([]fetcher.RemoteStream, len(keys))
	for i, k := range keys {
		out[i] = fetcher.RemoteStream{Key: k, Position: i + 1}
	}
	return out
}

func keysOf(streams []fetcher.RemoteStream) []string {
	out := make([]string, len(streams))
	for i, s := range streams {
		out[i] = s.Key
	}
	return out
}

func quietLogger() *log.Logger {
	return shared.NewLogger(io.Discard)
}

func TestPriorityOrder(t *testing.T) {
	tests := []struct {
		name    string
		keys    []string
		current int
		want    []string
	}{
		{"first track", []string{"a", "b", "c", "d", "e"}, 0, []string{"a", "b", "c", "d", "e"}},
		{"middle track", []string{"a", "b", "c", "d", "e"}, 2, []string{"c", "d", "e", "a", "b"}},
		{"wraps at the end", []string{"a", "b", "c", "d", "e"}, 4, []string{"e", "a", "b", "c", "d"}},
		{"shorter than lookahead", []string{"a", "b"}, 1, []string{"b", "a"}},
		{"out of range current", []string{"a", "b", "c"}, 9, []string{"a", "b", "c"}},
		{"duplicates dropped", []string{"a", "b", "a", "c"}, 0, []string{"a", "b", "c"}},
		{"empty", nil, 0, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keysOf(PriorityOrder(streamsFor(tt.keys...), tt.current))
			if len(got) != len(tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("expected %v, got %v", tt.want, got)
					break
				}
			}
		})
	}
}

func TestPrefetcher(t *testing.T) {
	t.Run("Run", func(t *testing.T) {
		t.Run("Single Worker Follows Priority Order", func(t *testing.T) {
			d := &mockDownloader{}
			p := NewPrefetcher(d, 1, quietLogger())
			defer p.Close()

			result, err := p.Run(context.Background(), nil, streamsFor("a", "b", "c", "d", "e"), 3)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Successful != 5 || result.Failed != 0 {
				t.Errorf("expected 5 successful, got %+v", result)
			}

			want := []string{"d", "e", "a", "b", "c"}
			for i, k := range want {
				if d.order[i] != k {
					t.Fatalf("expected order %v, got %v", want, d.order)
				}
			}
		})

		t.Run("Failures Are Collected", func(t *testing.T) {
			boom := errors.New("boom")
			d := &mockDownloader{fail: map[string]error{"b": boom}}
			p := NewPrefetcher(d, 2, quietLogger())
			defer p.Close()

			result, err := p.Run(context.Background(), nil, streamsFor("a", "b", "c"), 0)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Failed != 1 || result.Successful != 2 {
				t.Errorf("expected 2 ok / 1 failed, got %+v", result)
			}
			if !errors.Is(result.Errors["b"], boom) {
				t.Errorf("expected error for b, got %v", result.Errors)
			}
		})

		t.Run("Progress Updates", func(t *testing.T) {
			d := &mockDownloader{}
			p := NewPrefetcher(d, 1, quietLogger())
			defer p.Close()

			progress := make(chan ProgressUpdate, 10)
			if _, err := p.Run(context.Background(), progress, streamsFor("a", "b"), 0); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			close(progress)

			var updates []ProgressUpdate
			for u := range progress {
				updates = append(updates, u)
			}
			if len(updates) != 3 {
				t.Fatalf("expected 3 updates, got %d", len(updates))
			}
			if updates[0].Phase != Prefetch || updates[0].Total != 2 {
				t.Errorf("unexpected first update: %+v", updates[0])
			}
			if updates[2].Step != 2 {
				t.Errorf("expected final step 2, got %d", updates[2].Step)
			}
		})

		t.Run("Cancelled Context", func(t *testing.T) {
			d := &mockDownloader{block: make(chan struct{})}
			p := NewPrefetcher(d, 2, quietLogger())
			defer p.Close()

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			_, err := p.Run(ctx, nil, streamsFor("a", "b", "c"), 0)
			if !errors.Is(err, context.Canceled) {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		})
	})

	t.Run("Start And Close", func(t *testing.T) {
		d := &mockDownloader{block: make(chan struct{}), started: make(chan string, 3)}
		p := NewPrefetcher(d, 1, quietLogger())

		if n := p.Start(streamsFor("a", "b", "c"), 1); n != 3 {
			t.Errorf("expected 3 queued, got %d", n)
		}
		if first := <-d.started; first != "b" {
			t.Errorf("expected current track first, got %s", first)
		}

		p.Close()
		if n := p.Start(streamsFor("a"), 0); n != 0 {
			t.Errorf("expected nothing queued after close, got %d", n)
		}
	})
}

func TestResolveAndPrefetch(t *testing.T) {
	t.Run("Resolve Only", func(t *testing.T) {
		r := &mockResolver{streams: streamsFor("a", "b")}
		d := &mockDownloader{}
		p := NewPrefetcher(d, 1, quietLogger())
		defer p.Close()

		streams, result, err := ResolveAndPrefetch(context.Background(), nil, r, p, "PLx", true, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(streams) != 2 || result != nil {
			t.Errorf("expected 2 streams and no prefetch, got %d / %+v", len(streams), result)
		}
		if len(d.order) != 0 {
			t.Errorf("expected no downloads, got %v", d.order)
		}
	})

	t.Run("With Prefetch", func(t *testing.T) {
		r := &mockResolver{streams: streamsFor("a", "b")}
		d := &mockDownloader{}
		p := NewPrefetcher(d, 1, quietLogger())
		defer p.Close()

		_, result, err := ResolveAndPrefetch(context.Background(), nil, r, p, "PLx", true, true)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Successful != 2 {
			t.Errorf("expected 2 downloads, got %+v", result)
		}
	})

	t.Run("Resolve Error", func(t *testing.T) {
		r := &mockResolver{err: shared.ErrInvalidLocator}
		_, _, err := ResolveAndPrefetch(context.Background(), nil, r, nil, "nope", false, true)
		if !errors.Is(err, shared.ErrInvalidLocator) {
			t.Errorf("expected ErrInvalidLocator, got %v", err)
		}
	})
}
