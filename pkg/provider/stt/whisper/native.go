// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeProvider implements stt.Provider using whisper.cpp Go bindings
// (CGO). The model is loaded once at startup and shared across calls; each
// call gets its own inference context.
//
// Keyword hints are not forwarded.
type NativeProvider struct {
	model            whisperlib.Model
	language         string
	silenceThreshold float64
	logger           *slog.Logger
}

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// WithNativeSilenceThreshold sets the RMS energy below which a recording is
// rejected as unintelligible without running inference. Defaults to 300.
func WithNativeSilenceThreshold(rms float64) NativeOption {
	return func(p *NativeProvider) { p.silenceThreshold = rms }
}

// WithNativeLogger sets the logger used for non-fatal diagnostics.
func WithNativeLogger(l *slog.Logger) NativeOption {
	return func(p *NativeProvider) { p.logger = l }
}

// NewNative creates a NativeProvider that loads the whisper.cpp model from
// the given file path. The caller must call Close when the provider is no
// longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	model, err := whisperlib.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("whisper: load model %q: %w", modelPath, err)
	}

	p := &NativeProvider{
		model:            model,
		language:         defaultLanguage,
		silenceThreshold: defaultRMSThreshold,
		logger:           slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model. Must be called when the provider is no
// longer needed.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Recognize runs in-process inference on req.Audio. Inference cannot be
// interrupted once started, so ctx is only checked beforehand.
func (p *NativeProvider) Recognize(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, fmt.Errorf("whisper: %w", err)
	}
	pcm, dur, err := canonicalPCM(req.Audio, p.silenceThreshold)
	if err != nil {
		return stt.Transcript{}, err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(audio.PCMToFloat32(pcm), lang)
	if err != nil {
		return stt.Transcript{}, err
	}
	text = cleanText(text)
	if text == "" {
		return stt.Transcript{}, fmt.Errorf("whisper: %w: empty transcript", stt.ErrUnintelligible)
	}
	return stt.Transcript{Text: text, Duration: dur}, nil
}

// infer runs whisper.cpp inference using a fresh context and returns the
// concatenated segment text.
func (p *NativeProvider) infer(samples []float32, lang string) (string, error) {
	// Each context is NOT thread-safe, but the model can be shared across
	// goroutines.
	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("%w: whisper: create context: %w", stt.ErrBackend, err)
	}

	if err := wctx.SetLanguage(lang); err != nil {
		p.logger.Warn("whisper: failed to set language, using default", "language", lang, "error", err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("%w: whisper: process audio: %w", stt.ErrBackend, err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("%w: whisper: read segment: %w", stt.ErrBackend, err)
		}
		if text := strings.TrimSpace(segment.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, " "), nil
}
