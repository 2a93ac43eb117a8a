package tasks

import (
	"fmt"

	"github.com/desertthunder/tapedeck/internal/fetcher"
)

// ProgressUpdate represents a progress event during a long-running operation.
//
// Used to send real-time updates to the CLI or UI layer for display.
type ProgressUpdate struct {
	Phase   Phase  // Operation phase
	Step    int    // Current step number within phase
	Total   int    // Total steps in this phase
	Message string // Human-readable message for display
	Data    any    // Optional phase-specific data for advanced UIs
}

// Operation phase enumeration
type Phase int

const (
	Resolve Phase = iota
	Prefetch
)

func (p Phase) String() string {
	switch p {
	case Resolve:
		return "resolve"
	case Prefetch:
		return "prefetch"
	default:
		return ""
	}
}

// sendProgress sends a progress update through the channel without blocking.
func sendProgress(progress chan<- ProgressUpdate, update ProgressUpdate) {
	if progress == nil {
		return
	}
	select {
	case progress <- update:
	default:
	}
}

func resolvingUpdate(locator string) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    0,
		Total:   1,
		Message: fmt.Sprintf("Resolving %s...", locator),
	}
}

func resolvedUpdate(count int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Resolve,
		Step:    1,
		Total:   1,
		Message: fmt.Sprintf("Found %d track(s)", count),
	}
}

func prefetchStartUpdate(total int) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prefetch,
		Step:    0,
		Total:   total,
		Message: fmt.Sprintf("Prefetching %d track(s)...", total),
	}
}

func prefetchDoneUpdate(step, total int, stream fetcher.RemoteStream) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prefetch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✓ %s", step, total, label(stream)),
		Data:    stream,
	}
}

func prefetchFailedUpdate(step, total int, stream fetcher.RemoteStream, err error) ProgressUpdate {
	return ProgressUpdate{
		Phase:   Prefetch,
		Step:    step,
		Total:   total,
		Message: fmt.Sprintf("[%d/%d] ✗ %s: %v", step, total, label(stream), err),
		Data:    stream,
	}
}

func label(s fetcher.RemoteStream) string {
	if s.Title != "" {
		return s.Title
	}
	return s.Key
}
