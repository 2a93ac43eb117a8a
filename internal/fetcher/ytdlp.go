package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lrstanley/go-ytdlp"

	"github.com/desertthunder/tapedeck/internal/cache"
	"github.com/desertthunder/tapedeck/internal/shared"
)

// AudioFormat prefers compact audio-only formats and falls back to the best muxed stream.
const AudioFormat = "bestaudio[ext=opus]/bestaudio[ext=m4a]/bestaudio[ext=webm]/bestaudio/best"

// audioExtensions are the container extensions a finished download may carry.
var audioExtensions = []string{".webm", ".m4a", ".mp4", ".opus", ".ogg"}

// restrictedMarkers are yt-dlp error fragments meaning upstream denied access rather than failed.
var restrictedMarkers = []string{
	"private video",
	"sign in to confirm",
	"age-restricted",
	"members-only",
	"not available in your country",
	"http error 403",
	"video unavailable. this video is not available",
}

// YTDLP is an [Extractor] backed by the yt-dlp executable.
type YTDLP struct {
	executable string
}

// NewYTDLP creates an extractor. An empty executable uses yt-dlp from PATH.
func NewYTDLP(executable string) *YTDLP {
	return &YTDLP{executable: executable}
}

func (y *YTDLP) command() *ytdlp.Command {
	cmd := ytdlp.New().NoProgress().NoWarnings()
	if y.executable != "" {
		cmd = cmd.SetExecutable(y.executable)
	}
	return cmd
}

// ytdlpInfo is the subset of --dump-single-json output we read.
type ytdlpInfo struct {
	ID             string      `json:"id"`
	Type           string      `json:"_type"`
	Title          string      `json:"title"`
	Duration       float64     `json:"duration"`
	URL            string      `json:"url"`
	WebpageURL     string      `json:"webpage_url"`
	Filesize       int64       `json:"filesize"`
	FilesizeApprox int64       `json:"filesize_approx"`
	Entries        []ytdlpInfo `json:"entries"`
}

func (i ytdlpInfo) stream(position int) RemoteStream {
	size := i.Filesize
	if size == 0 {
		size = i.FilesizeApprox
	}
	return RemoteStream{
		Key:          i.ID,
		URL:          RefForKey(i.ID),
		Title:        i.Title,
		Duration:     i.Duration,
		Position:     position,
		SizeEstimate: size,
	}
}

// Resolve runs yt-dlp in flat-playlist mode and returns one stream per entry.
func (y *YTDLP) Resolve(ctx context.Context, locator string) ([]RemoteStream, error) {
	result, err := y.command().
		DumpSingleJSON().
		FlatPlaylist().
		Run(ctx, locator)
	if err != nil {
		return nil, classify(result, err)
	}

	var info ytdlpInfo
	if err := json.Unmarshal([]byte(result.Stdout), &info); err != nil {
		return nil, fmt.Errorf("%w: failed to parse yt-dlp output: %v", shared.ErrSourceUnavailable, err)
	}

	return streamsFromInfo(info)
}

func streamsFromInfo(info ytdlpInfo) ([]RemoteStream, error) {
	if info.Type != "playlist" {
		if info.ID == "" {
			return nil, fmt.Errorf("%w: yt-dlp returned no video id", shared.ErrSourceUnavailable)
		}
		return []RemoteStream{info.stream(1)}, nil
	}

	streams := make([]RemoteStream, 0, len(info.Entries))
	for _, entry := range info.Entries {
		// deleted and private playlist entries come back without an id or with a placeholder title
		if entry.ID == "" || entry.Title == "[Deleted video]" || entry.Title == "[Private video]" {
			continue
		}
		streams = append(streams, entry.stream(len(streams)+1))
	}
	if len(streams) == 0 {
		return nil, fmt.Errorf("%w: playlist %s has no playable entries", shared.ErrSourceUnavailable, info.ID)
	}
	return streams, nil
}

// Download fetches the audio of stream into destDir.
func (y *YTDLP) Download(ctx context.Context, stream RemoteStream, destDir string) (string, error) {
	result, err := y.command().
		Format(AudioFormat).
		NoPlaylist().
		Output(filepath.Join(destDir, "%(id)s.%(ext)s")).
		Run(ctx, stream.URL)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: download of %s interrupted: %v", shared.ErrSourceUnavailable, stream.Key, ctxErr)
		}
		return "", classify(result, err)
	}

	return findDownloaded(destDir, stream.Key)
}

// findDownloaded locates the finished file for key, ignoring partial fragments.
func findDownloaded(dir, key string) (string, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read download directory: %v", shared.ErrSourceUnavailable, err)
	}

	for _, ext := range audioExtensions {
		for _, f := range files {
			name := f.Name()
			if f.IsDir() || !strings.HasPrefix(name, key) || cache.IsPartial(name) {
				continue
			}
			if filepath.Ext(name) == ext {
				return filepath.Join(dir, name), nil
			}
		}
	}

	return "", fmt.Errorf("%w: yt-dlp finished without producing audio for %s", shared.ErrSourceUnavailable, key)
}

// classify maps a failed yt-dlp run onto the source error taxonomy.
func classify(result *ytdlp.Result, err error) error {
	detail := err.Error()
	if result != nil && result.Stderr != "" {
		detail = lastLine(result.Stderr)
	}

	lower := strings.ToLower(detail)
	for _, marker := range restrictedMarkers {
		if strings.Contains(lower, marker) {
			return fmt.Errorf("%w: %s", shared.ErrSourceRestricted, detail)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: timed out", shared.ErrSourceUnavailable)
	}
	return fmt.Errorf("%w: %s", shared.ErrSourceUnavailable, detail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return s
}

// Install downloads a managed yt-dlp binary when none is available and returns its path.
func Install(ctx context.Context) (string, error) {
	resolved, err := ytdlp.Install(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to install yt-dlp: %w", err)
	}
	return resolved.Executable, nil
}
