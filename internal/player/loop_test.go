package player

import (
	"context"
	"testing"
	"time"
)

func TestLoop(t *testing.T) {
	t.Run("Flush Runs In Order", func(t *testing.T) {
		loop := NewLoop()
		var got []int
		loop.Post(func() { got = append(got, 1) })
		loop.Post(func() {
			got = append(got, 2)
			loop.Post(func() { got = append(got, 3) })
		})

		if n := loop.Flush(); n != 3 {
			t.Errorf("expected 3 callbacks, got %d", n)
		}
		if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
			t.Errorf("unexpected order %v", got)
		}
	})

	t.Run("Closed Loop Rejects Posts", func(t *testing.T) {
		loop := NewLoop()
		ran := false
		loop.Post(func() { ran = true })
		loop.Close()

		if loop.Post(func() {}) {
			t.Error("expected post to be rejected")
		}
		loop.Flush()
		if ran {
			t.Error("expected queued callback dropped")
		}
	})

	t.Run("Run And Call", func(t *testing.T) {
		loop := NewLoop()
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- loop.Run(ctx) }()

		value := 0
		if err := loop.Call(ctx, func() { value = 42 }); err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if value != 42 {
			t.Errorf("expected 42, got %d", value)
		}

		cancel()
		select {
		case err := <-done:
			if err != context.Canceled {
				t.Errorf("expected context.Canceled, got %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("loop did not stop")
		}

		if err := loop.Call(context.Background(), func() {}); err == nil {
			t.Error("expected call on a stopped loop to fail")
		}
	})
}
