// package formatter renders cache, download and playlist data as CSV, Markdown, JSON and plain text
package formatter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/desertthunder/tapedeck/internal/models"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// FormatDuration renders seconds as m:ss, or h:mm:ss past the hour. Unknown durations render as "--:--".
func FormatDuration(seconds float64) string {
	if seconds <= 0 {
		return "--:--"
	}
	total := int(seconds)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

// ToJSON renders v as indented JSON with a trailing newline.
func ToJSON(v any) ([]byte, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// ToCompactJSON renders v on a single line with a trailing newline.
func ToCompactJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal JSON: %w", err)
	}
	return append(data, '\n'), nil
}

// EntriesToCSV converts cache entries to CSV with columns: Key, Filename, Size, Created, LastAccess, Pins
func EntriesToCSV(entries []models.CacheEntry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)

	headers := []string{"Key", "Filename", "Size", "Created", "LastAccess", "Pins"}
	if err := writer.Write(headers); err != nil {
		return nil, fmt.Errorf("failed to write CSV headers: %w", err)
	}

	for _, e := range entries {
		record := []string{
			e.Key,
			e.Filename,
			strconv.FormatInt(e.Size, 10),
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.LastAccess.UTC().Format(time.RFC3339),
			strconv.Itoa(e.Pins),
		}
		if err := writer.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write CSV record: %w", err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, fmt.Errorf("CSV writer error: %w", err)
	}

	return buf.Bytes(), nil
}

// EntriesToTable renders cache entries as a bordered terminal table, least recently used first.
func EntriesToTable(entries []models.CacheEntry, now time.Time) string {
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		pinned := ""
		if e.Pinned() {
			pinned = strconv.Itoa(e.Pins)
		}
		rows = append(rows, []string{e.Key, shared.HumanBytes(e.Size), Age(now, e.LastAccess), pinned})
	}

	return table.New().
		Border(lipgloss.NormalBorder()).
		Headers("KEY", "SIZE", "LAST ACCESS", "PINS").
		Rows(rows...).
		String()
}

// Age renders how long before now t was, at the coarsest useful unit.
func Age(now, t time.Time) string {
	d := now.Sub(t)
	switch {
	case t.IsZero():
		return "never"
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

// ReportToText renders cache and download statistics for the terminal.
func ReportToText(report models.CacheReport) []byte {
	var buf bytes.Buffer
	c, d := report.Cache, report.Downloads

	fmt.Fprintf(&buf, "Cache\n")
	fmt.Fprintf(&buf, "  Size:      %s / %s (%.1f%%)\n", shared.HumanBytes(c.Size), shared.HumanBytes(c.MaxSize), c.UsagePercent)
	fmt.Fprintf(&buf, "  Entries:   %d\n", c.Count)
	fmt.Fprintf(&buf, "  Available: %s\n", shared.HumanBytes(c.Available))
	fmt.Fprintf(&buf, "\nDownloads\n")
	fmt.Fprintf(&buf, "  Total:     %d (%d ok, %d failed, %.0f%% success)\n", d.Total, d.Successful, d.Failed, d.SuccessRate)
	fmt.Fprintf(&buf, "  Active:    %d of %d\n", d.Active, d.MaxParallel)
	fmt.Fprintf(&buf, "  Queued:    %d\n", d.Queued)

	return buf.Bytes()
}

// TracksToText lists resolved tracks with their duration and locator.
func TracksToText(result *models.ResolveResult) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "%s (%s): %d tracks", result.Locator, result.Kind, len(result.Tracks))
	if result.Prefetched > 0 {
		fmt.Fprintf(&buf, ", %d queued for download", result.Prefetched)
	}
	buf.WriteString("\n\n")

	for _, t := range result.Tracks {
		fmt.Fprintf(&buf, "%2d. %s [%s] %s\n", t.Position, t.Title, FormatDuration(t.Duration), t.Locator())
	}

	return buf.Bytes()
}

// PlaylistToMarkdown converts catalog items to Markdown with a link per available platform.
func PlaylistToMarkdown(title string, items []models.PlaylistItem) []byte {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "# %s\n\n", title)
	fmt.Fprintf(&buf, "**Releases**: %d\n\n", len(items))

	for i, item := range items {
		fmt.Fprintf(&buf, "%d. %s", i+1, item.Label())
		if item.ReleaseType != "" {
			fmt.Fprintf(&buf, " (%s)", item.ReleaseType)
		}
		for _, p := range models.Platforms {
			embed, ok := item.Embed(p)
			if !ok {
				continue
			}
			link := embed.SourceURL
			if link == "" {
				link = embed.Locator
			}
			fmt.Fprintf(&buf, " [%s](%s)", p, link)
		}
		buf.WriteString("\n")
	}

	return buf.Bytes()
}

// PlaylistToText lists catalog items with the platforms each can be played on.
func PlaylistToText(items []models.PlaylistItem) []byte {
	var buf bytes.Buffer

	for i, item := range items {
		var platforms []string
		for _, p := range models.Platforms {
			if _, ok := item.Embed(p); ok {
				platforms = append(platforms, p.String())
			}
		}
		fmt.Fprintf(&buf, "%d. %s %v\n", i+1, item.Label(), platforms)
	}

	return buf.Bytes()
}

// WriteFile writes rendered output to path, or to stdout when path is empty or "-".
func WriteFile(path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
