// Package whisper provides whisper.cpp-backed STT providers.
//
// [Provider] connects to a running whisper-server binary, which exposes a REST
// API at POST /inference. [NativeProvider] links whisper.cpp in-process
// through its CGO bindings and avoids the HTTP hop entirely.
//
// Both providers reject near-silent recordings before inference and treat an
// empty or annotation-only transcript ("[BLANK_AUDIO]") as
// stt.ErrUnintelligible.
//
// Usage:
//
//	p, err := whisper.New("http://localhost:8080",
//	    whisper.WithLanguage("en"),
//	)
//	tr, err := p.Recognize(ctx, stt.Request{Audio: wav})
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

const (
	defaultLanguage = "en"
	defaultTimeout  = 30 * time.Second

	// maxResponseBytes caps the inference response body.
	maxResponseBytes = 1 << 20
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithModel sets the model identifier forwarded to the whisper.cpp server
// (e.g., "base.en", "small"). When empty the server uses whichever model it
// was started with. This is the default.
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code sent to the whisper.cpp server
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithLanguage(lang string) Option {
	return func(p *Provider) {
		p.language = lang
	}
}

// WithSilenceThreshold sets the RMS energy below which a recording is
// rejected as unintelligible without contacting the server. Defaults to 300.
func WithSilenceThreshold(rms float64) Option {
	return func(p *Provider) {
		p.silenceThreshold = rms
	}
}

// WithHTTPClient replaces the HTTP client. The default client has a 30 s
// timeout.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements stt.Provider backed by a whisper.cpp HTTP server.
type Provider struct {
	serverURL        string
	model            string
	language         string
	silenceThreshold float64
	httpClient       *http.Client
}

// New creates a new Provider that connects to the whisper.cpp HTTP server at
// serverURL (e.g., "http://localhost:8080"). serverURL must be non-empty.
// Functional options may be provided to override defaults.
func New(serverURL string, opts ...Option) (*Provider, error) {
	if serverURL == "" {
		return nil, errors.New("whisper: serverURL must not be empty")
	}
	p := &Provider{
		serverURL:        serverURL,
		language:         defaultLanguage,
		silenceThreshold: defaultRMSThreshold,
		httpClient:       &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Recognize converts req.Audio to 16 kHz mono, posts it to the /inference
// endpoint as multipart/form-data, and returns the cleaned transcript.
func (p *Provider) Recognize(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	pcm, dur, err := canonicalPCM(req.Audio, p.silenceThreshold)
	if err != nil {
		return stt.Transcript{}, err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	text, err := p.infer(ctx, audio.EncodeWAV(pcm, audio.CanonicalSampleRate, audio.CanonicalChannels), lang, keywordPrompt(req.Keywords))
	if err != nil {
		return stt.Transcript{}, err
	}
	text = cleanText(text)
	if text == "" {
		return stt.Transcript{}, fmt.Errorf("whisper: %w: empty transcript", stt.ErrUnintelligible)
	}
	return stt.Transcript{Text: text, Duration: dur}, nil
}

// infer POSTs wav to the whisper.cpp /inference endpoint. Every failure is
// wrapped with stt.ErrBackend except a context error from ctx itself.
func (p *Provider) infer(ctx context.Context, wav []byte, lang, prompt string) (string, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	// Primary audio field.
	fw, err := mw.CreateFormFile("file", "audio.wav")
	if err != nil {
		return "", fmt.Errorf("whisper: create form file: %w", err)
	}
	if _, err := fw.Write(wav); err != nil {
		return "", fmt.Errorf("whisper: write wav data: %w", err)
	}

	// Optional hint fields.
	fields := [][2]string{
		{"language", lang},
		{"model", p.model},
		{"prompt", prompt},
		{"response_format", "json"},
	}
	for _, f := range fields {
		if f[1] == "" {
			continue
		}
		if err := mw.WriteField(f[0], f[1]); err != nil {
			return "", fmt.Errorf("whisper: write %s field: %w", f[0], err)
		}
	}

	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("whisper: close multipart writer: %w", err)
	}

	endpoint := p.serverURL + "/inference"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, &body)
	if err != nil {
		return "", fmt.Errorf("whisper: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := p.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("whisper: http request: %w", ctx.Err())
		}
		return "", fmt.Errorf("%w: whisper: http request: %w", stt.ErrBackend, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("%w: whisper: read response body: %w", stt.ErrBackend, err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: whisper: server returned HTTP %d: %s", stt.ErrBackend, resp.StatusCode, bytes.TrimSpace(data))
	}

	var result struct {
		Text  string `json:"text"`
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &result); err != nil {
		return "", fmt.Errorf("%w: whisper: parse JSON response: %w", stt.ErrBackend, err)
	}
	if result.Error != "" {
		return "", fmt.Errorf("%w: whisper: %s", stt.ErrBackend, result.Error)
	}
	return result.Text, nil
}
