// Package speech turns an uploaded recording into a transcript.
//
// The [Normalizer] stores the upload in a private temporary directory,
// transcodes anything that is not already WAV into 16 kHz mono PCM, and hands
// the result to an STT provider. Recognition outcomes are folded into three
// cases: a transcript, an empty transcript for unintelligible speech, or an
// [*AudioError] whose Kind tells an infrastructure fault from bad input.
package speech

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// Kind classifies an [AudioError].
type Kind int

const (
	// IOFailure covers every local failure: temp files, reading, decoding
	// and transcoding. Usually the upload itself is at fault.
	IOFailure Kind = iota + 1

	// RecognitionBackendFailure means the STT service could not be reached
	// or failed while processing a well-formed recording.
	RecognitionBackendFailure
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case IOFailure:
		return "io failure"
	case RecognitionBackendFailure:
		return "recognition backend failure"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// AudioError is returned by [Normalizer.Normalize] for every failure.
type AudioError struct {
	Kind Kind
	// Op names the step that failed ("write upload", "transcode", ...).
	Op  string
	Err error
}

// Error implements error.
func (e *AudioError) Error() string {
	return fmt.Sprintf("speech: %s (%s): %v", e.Op, e.Kind, e.Err)
}

// Unwrap returns the underlying cause.
func (e *AudioError) Unwrap() error { return e.Err }

// Is reports whether target is an *AudioError of the same Kind. A target
// with a zero Kind matches any AudioError.
func (e *AudioError) Is(target error) bool {
	t, ok := target.(*AudioError)
	if !ok {
		return false
	}
	return t.Kind == 0 || t.Kind == e.Kind
}

// ErrEmptyUpload is wrapped in an IOFailure when the upload has no bytes.
var ErrEmptyUpload = errors.New("speech: empty upload")

const (
	routeDirect     = "direct"
	routeTranscoded = "transcoded"
	canonicalExt    = ".wav"
)

// Upload is one recording to transcribe.
type Upload struct {
	Data []byte
	// Filename is the client-declared name. Only its extension is used.
	Filename string
	// Language overrides the normalizer's default recognition language.
	Language string
	// Keywords are recognition hints, e.g. the target word of a
	// pronunciation exercise.
	Keywords []string
}

// Normalizer converts uploads to transcripts. It holds no per-call state and
// is safe for concurrent use.
type Normalizer struct {
	recognizer stt.Provider
	transcoder audio.Transcoder
	tempDir    string
	language   string
	logger     *slog.Logger
	metrics    *observe.Metrics
}

// Option configures a [Normalizer].
type Option func(*Normalizer)

// WithTempDir sets the parent directory for per-call scratch directories.
// Defaults to [os.TempDir].
func WithTempDir(dir string) Option {
	return func(n *Normalizer) { n.tempDir = dir }
}

// WithLanguage sets the default recognition language.
func WithLanguage(lang string) Option {
	return func(n *Normalizer) { n.language = lang }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(n *Normalizer) { n.logger = l }
}

// WithMetrics enables metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(n *Normalizer) { n.metrics = m }
}

// New returns a Normalizer that recognises speech with recognizer and
// converts non-WAV uploads with transcoder.
func New(recognizer stt.Provider, transcoder audio.Transcoder, opts ...Option) *Normalizer {
	n := &Normalizer{
		recognizer: recognizer,
		transcoder: transcoder,
		logger:     slog.Default(),
	}
	for _, o := range opts {
		o(n)
	}
	return n
}

// Normalize transcribes audio, an upload named filename. Unintelligible
// speech yields "" and a nil error.
func (n *Normalizer) Normalize(ctx context.Context, data []byte, filename string) (string, error) {
	return n.Transcribe(ctx, Upload{Data: data, Filename: filename})
}

// Transcribe is Normalize with recognition hints.
func (n *Normalizer) Transcribe(ctx context.Context, up Upload) (text string, err error) {
	ext := uploadExt(up.Filename)
	route := routeDirect
	if ext != canonicalExt {
		route = routeTranscoded
	}

	ctx, span := observe.StartSpan(ctx, "speech.normalize")
	defer func() {
		observe.EndSpan(span, err)
		n.record(ctx, route, text, err)
	}()

	if len(up.Data) == 0 {
		return "", &AudioError{Kind: IOFailure, Op: "read upload", Err: ErrEmptyUpload}
	}

	dir, err := os.MkdirTemp(n.tempDir, "lingualoop-audio-*")
	if err != nil {
		return "", &AudioError{Kind: IOFailure, Op: "create temp dir", Err: err}
	}
	defer func() {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			n.logger.Warn("speech: failed to remove temp dir", "dir", dir, "err", rmErr)
		}
	}()

	src := filepath.Join(dir, "upload"+ext)
	if err := os.WriteFile(src, up.Data, 0o600); err != nil {
		return "", &AudioError{Kind: IOFailure, Op: "write upload", Err: err}
	}

	wavPath := src
	if route == routeTranscoded {
		wavPath = filepath.Join(dir, "canonical"+canonicalExt)
		start := time.Now()
		err := n.transcoder.Transcode(ctx, src, wavPath)
		if n.metrics != nil {
			n.metrics.TranscodeDuration.Record(ctx, time.Since(start).Seconds())
		}
		if err != nil {
			return "", &AudioError{Kind: IOFailure, Op: "transcode", Err: err}
		}
	}

	wav, err := os.ReadFile(wavPath)
	if err != nil {
		return "", &AudioError{Kind: IOFailure, Op: "read canonical audio", Err: err}
	}

	lang := up.Language
	if lang == "" {
		lang = n.language
	}

	start := time.Now()
	tr, err := n.recognizer.Recognize(ctx, stt.Request{Audio: wav, Language: lang, Keywords: up.Keywords})
	if n.metrics != nil {
		n.metrics.STTDuration.Record(ctx, time.Since(start).Seconds())
	}
	switch {
	case err == nil:
		return strings.TrimSpace(tr.Text), nil
	case ctx.Err() != nil:
		// The caller gave up; that is not a property of the recording.
		return "", fmt.Errorf("speech: recognize: %w", ctx.Err())
	case errors.Is(err, stt.ErrUnintelligible):
		observe.Logger(ctx).Debug("speech: unintelligible recording", "err", err)
		return "", nil
	case errors.Is(err, stt.ErrBackend):
		return "", &AudioError{Kind: RecognitionBackendFailure, Op: "recognize", Err: err}
	default:
		return "", &AudioError{Kind: IOFailure, Op: "recognize", Err: err}
	}
}

func (n *Normalizer) record(ctx context.Context, route, text string, err error) {
	if n.metrics == nil {
		return
	}
	outcome := "ok"
	var ae *AudioError
	switch {
	case errors.As(err, &ae) && ae.Kind == RecognitionBackendFailure:
		outcome = "backend_failure"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		outcome = "canceled"
	case err != nil:
		outcome = "io_failure"
	case text == "":
		outcome = "unintelligible"
	}
	n.metrics.RecordNormalization(ctx, route, outcome)
}

// uploadExt returns the lower-cased extension of the client filename, or ""
// when it is missing or contains anything but letters and digits.
func uploadExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(filename)))
	if len(ext) < 2 || len(ext) > 8 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}
