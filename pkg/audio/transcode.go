package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
)

// ErrTranscode wraps every failure reported by a [Transcoder].
var ErrTranscode = errors.New("audio: transcode failed")

// Transcoder converts an audio container on disk into a canonical WAV file
// (16 kHz, mono, 16-bit PCM).
//
// Implementations must be safe for concurrent use. They must not leave dst
// behind in a partially written state that looks valid; callers remove dst on
// failure regardless.
type Transcoder interface {
	Transcode(ctx context.Context, src, dst string) error
}

// TranscoderFunc adapts a plain function to the [Transcoder] interface.
type TranscoderFunc func(ctx context.Context, src, dst string) error

// Transcode calls f(ctx, src, dst).
func (f TranscoderFunc) Transcode(ctx context.Context, src, dst string) error {
	return f(ctx, src, dst)
}

// ─── ffmpeg ──────────────────────────────────────────────────────────────────

// FFmpeg transcodes any container ffmpeg understands (webm, mp3, m4a, ogg,
// flac, …) by running the ffmpeg binary.
type FFmpeg struct {
	path    string
	logger  *slog.Logger
	checkMu sync.Mutex
	checked bool
}

// FFmpegOption configures an [FFmpeg] transcoder.
type FFmpegOption func(*FFmpeg)

// WithFFmpegPath overrides the binary name or path. Defaults to "ffmpeg"
// resolved through $PATH.
func WithFFmpegPath(path string) FFmpegOption {
	return func(f *FFmpeg) {
		if path != "" {
			f.path = path
		}
	}
}

// WithFFmpegLogger sets the logger used for diagnostic output.
func WithFFmpegLogger(l *slog.Logger) FFmpegOption {
	return func(f *FFmpeg) { f.logger = l }
}

// NewFFmpeg returns an ffmpeg-backed transcoder. The binary is not looked up
// until the first call to Transcode or Check.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{path: "ffmpeg", logger: slog.Default()}
	for _, o := range opts {
		o(f)
	}
	return f
}

var _ Transcoder = (*FFmpeg)(nil)

// Check verifies that the configured ffmpeg binary can be found.
func (f *FFmpeg) Check(context.Context) error {
	f.checkMu.Lock()
	defer f.checkMu.Unlock()
	if f.checked {
		return nil
	}
	if _, err := exec.LookPath(f.path); err != nil {
		return fmt.Errorf("%w: ffmpeg not available: %w", ErrTranscode, err)
	}
	f.checked = true
	return nil
}

// Transcode runs ffmpeg to convert src into a canonical WAV at dst.
func (f *FFmpeg) Transcode(ctx context.Context, src, dst string) error {
	args := []string{
		"-nostdin", "-hide_banner", "-loglevel", "error", "-y",
		"-i", src,
		"-vn",
		"-ac", strconv.Itoa(CanonicalChannels),
		"-ar", strconv.Itoa(CanonicalSampleRate),
		"-sample_fmt", "s16",
		"-f", "wav",
		dst,
	}
	cmd := exec.CommandContext(ctx, f.path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		f.logger.Debug("ffmpeg failed", "src", filepath.Base(src), "err", err, "stderr", msg)
		if msg != "" {
			return fmt.Errorf("%w: ffmpeg: %s: %w", ErrTranscode, msg, err)
		}
		return fmt.Errorf("%w: ffmpeg: %w", ErrTranscode, err)
	}
	return nil
}

// ─── routing ─────────────────────────────────────────────────────────────────

// Router dispatches to a transcoder chosen by the source file's extension,
// falling back to a default for unknown extensions.
type Router struct {
	byExt    map[string]Transcoder
	fallback Transcoder
}

var _ Transcoder = (*Router)(nil)

// NewRouter returns a Router that uses fallback for any extension without a
// dedicated route. fallback may be nil, in which case unknown extensions fail.
func NewRouter(fallback Transcoder) *Router {
	return &Router{byExt: make(map[string]Transcoder), fallback: fallback}
}

// Handle routes files with the given extensions (".ogg", "opus", …,
// case-insensitive, leading dot optional) to t.
func (r *Router) Handle(t Transcoder, exts ...string) {
	for _, e := range exts {
		r.byExt[normExt(e)] = t
	}
}

// Transcode implements [Transcoder].
func (r *Router) Transcode(ctx context.Context, src, dst string) error {
	if t, ok := r.byExt[normExt(filepath.Ext(src))]; ok {
		return t.Transcode(ctx, src, dst)
	}
	if r.fallback == nil {
		return fmt.Errorf("%w: no transcoder for %q", ErrTranscode, filepath.Ext(src))
	}
	return r.fallback.Transcode(ctx, src, dst)
}

func normExt(e string) string {
	return strings.ToLower(strings.TrimPrefix(e, "."))
}
