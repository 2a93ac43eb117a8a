// package shared defines shared helpers
package shared

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

const (
	bytesPerGB = 1024 * 1024 * 1024
	bytesPerMB = 1024 * 1024

	// MinCacheSizeGB and MaxCacheSizeGB bound the admin-settable cache budget (inclusive).
	MinCacheSizeGB = 0.1
	MaxCacheSizeGB = 100.0

	// MaxParallelLimit caps concurrent downloads.
	MaxParallelLimit = 10
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// WithLogger creates a child [log.Logger] with the specified key-value pairs added to all log entries.
func WithLogger(l *log.Logger, kv ...any) *log.Logger {
	return l.With(kv...)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// ParseLogLevel converts a config string ("debug", "info", ...) to a [log.Level], defaulting to info.
func ParseLogLevel(s string) log.Level {
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return log.InfoLevel
	}
	return lvl
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}

// GBToBytes converts a size in (binary) gigabytes to bytes, rounded to the nearest byte.
func GBToBytes(gb float64) int64 {
	return int64(math.Round(gb * bytesPerGB))
}

// BytesToGB converts bytes to (binary) gigabytes.
func BytesToGB(b int64) float64 {
	return float64(b) / bytesPerGB
}

// BytesToMB converts bytes to (binary) megabytes.
func BytesToMB(b int64) float64 {
	return float64(b) / bytesPerMB
}

// ValidateCacheSizeGB checks that gb lies within [MinCacheSizeGB, MaxCacheSizeGB].
func ValidateCacheSizeGB(gb float64) error {
	if gb < MinCacheSizeGB || gb > MaxCacheSizeGB {
		return fmt.Errorf("%w: cache size %.2f GB must be between %.1f and %.0f GB", ErrOutOfRange, gb, MinCacheSizeGB, MaxCacheSizeGB)
	}
	return nil
}

// ValidateCacheSizeBytes checks a byte budget against the same inclusive range as
// [ValidateCacheSizeGB], comparing in bytes so the bounds survive conversion.
func ValidateCacheSizeBytes(b int64) error {
	if b < GBToBytes(MinCacheSizeGB) || b > GBToBytes(MaxCacheSizeGB) {
		return fmt.Errorf("%w: cache size %s must be between %.1f and %.0f GB", ErrOutOfRange, HumanBytes(b), MinCacheSizeGB, MaxCacheSizeGB)
	}
	return nil
}

// ValidateMaxParallel checks a download concurrency limit against [1, MaxParallelLimit].
func ValidateMaxParallel(n int) error {
	if n < 1 || n > MaxParallelLimit {
		return fmt.Errorf("%w: max parallel downloads %d must be between 1 and %d", ErrOutOfRange, n, MaxParallelLimit)
	}
	return nil
}

// HumanBytes formats a byte count for CLI and log output.
func HumanBytes(b int64) string {
	switch {
	case b >= bytesPerGB:
		return fmt.Sprintf("%.2f GB", BytesToGB(b))
	case b >= bytesPerMB:
		return fmt.Sprintf("%.2f MB", BytesToMB(b))
	case b >= 1024:
		return fmt.Sprintf("%.2f KB", float64(b)/1024)
	default:
		return fmt.Sprintf("%d B", b)
	}
}
