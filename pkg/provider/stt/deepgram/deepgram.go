// Package deepgram provides a Deepgram-backed STT provider using the Deepgram
// streaming WebSocket API. It implements the stt.Provider interface.
//
// A recording is streamed to Deepgram in fixed-size binary frames while the
// final results are collected concurrently; a CloseStream message asks the
// service to flush and hang up once the whole recording has been sent.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

const (
	deepgramEndpoint = "wss://api.deepgram.com/v1/listen"
	defaultModel     = "nova-3"
	defaultLanguage  = "en"

	// chunkBytes is 250 ms of canonical PCM per binary frame.
	chunkBytes = audio.CanonicalSampleRate * 2 / 4
)

// Compile-time assertion that Provider implements stt.Provider.
var _ stt.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model to use (e.g., "nova-3", "base").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithLanguage sets the BCP-47 language code for recognition (e.g., "en", "de-DE").
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithEndpoint overrides the WebSocket endpoint. Intended for tests and
// self-hosted deployments.
func WithEndpoint(endpoint string) Option {
	return func(p *Provider) {
		p.endpoint = endpoint
	}
}

// Provider implements stt.Provider backed by the Deepgram streaming API.
type Provider struct {
	apiKey   string
	model    string
	language string
	endpoint string
}

// New creates a new Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:   apiKey,
		model:    defaultModel,
		language: defaultLanguage,
		endpoint: deepgramEndpoint,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Recognize streams req.Audio to Deepgram as 16 kHz mono linear16 and joins
// every final result into one transcript.
func (p *Provider) Recognize(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	w, err := audio.DecodeWAV(req.Audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: decode audio: %w", err)
	}
	pcm := w.Canonical()
	if len(pcm) < 2 {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w: empty recording", stt.ErrUnintelligible)
	}

	wsURL, err := p.buildURL(req)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("deepgram: build URL: %w", err)
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+p.apiKey)

	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: headers,
	})
	if err != nil {
		return stt.Transcript{}, p.backendErr(ctx, "dial", err)
	}
	defer conn.CloseNow()

	var results []stt.Transcript
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		for off := 0; off < len(pcm); off += chunkBytes {
			end := min(off+chunkBytes, len(pcm))
			if err := conn.Write(gctx, websocket.MessageBinary, pcm[off:end]); err != nil {
				return fmt.Errorf("write audio: %w", err)
			}
		}
		if err := conn.Write(gctx, websocket.MessageText, []byte(`{"type":"CloseStream"}`)); err != nil {
			return fmt.Errorf("close stream: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		for {
			_, msg, err := conn.Read(gctx)
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return nil
			}
			if err != nil {
				return fmt.Errorf("read: %w", err)
			}
			if isMetadata(msg) {
				// Metadata is the last message Deepgram sends for a stream.
				return nil
			}
			if t, ok := parseDeepgramResponse(msg); ok && t.final && t.Text != "" {
				results = append(results, t.Transcript)
			}
		}
	})
	if err := g.Wait(); err != nil {
		return stt.Transcript{}, p.backendErr(ctx, "stream", err)
	}
	_ = conn.Close(websocket.StatusNormalClosure, "recognition complete")

	tr := merge(results)
	tr.Duration = time.Duration(w.Duration() * float64(time.Second))
	if strings.TrimSpace(tr.Text) == "" {
		return stt.Transcript{}, fmt.Errorf("deepgram: %w: no speech detected", stt.ErrUnintelligible)
	}
	return tr, nil
}

// backendErr wraps err with stt.ErrBackend unless the caller's context ended.
func (p *Provider) backendErr(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("deepgram: %s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%w: deepgram: %s: %w", stt.ErrBackend, op, err)
}

// buildURL constructs the Deepgram streaming endpoint URL for the given request.
func (p *Provider) buildURL(req stt.Request) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("interim_results", "false")
	q.Set("encoding", "linear16")
	q.Set("sample_rate", strconv.Itoa(audio.CanonicalSampleRate))
	q.Set("channels", strconv.Itoa(audio.CanonicalChannels))

	// Nova-3 replaced keyword boosting with key term prompting.
	param := "keywords"
	if strings.HasPrefix(p.model, "nova-3") {
		param = "keyterm"
	}
	for _, kw := range req.Keywords {
		if kw = strings.TrimSpace(kw); kw != "" {
			q.Add(param, kw)
		}
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// merge joins final results in arrival order. Confidence is the mean of the
// per-result confidences.
func merge(results []stt.Transcript) stt.Transcript {
	var (
		out   stt.Transcript
		texts []string
		conf  float64
	)
	for _, r := range results {
		texts = append(texts, strings.TrimSpace(r.Text))
		out.Words = append(out.Words, r.Words...)
		conf += r.Confidence
	}
	out.Text = strings.Join(texts, " ")
	if len(results) > 0 {
		out.Confidence = conf / float64(len(results))
	}
	return out
}

// ---- wire format ----

// deepgramResponse is the JSON structure returned by Deepgram for a Results event.
type deepgramResponse struct {
	Type    string `json:"type"`
	IsFinal bool   `json:"is_final"`
	Channel struct {
		Alternatives []struct {
			Transcript string  `json:"transcript"`
			Confidence float64 `json:"confidence"`
			Words      []struct {
				Word       string  `json:"word"`
				Start      float64 `json:"start"`
				End        float64 `json:"end"`
				Confidence float64 `json:"confidence"`
			} `json:"words"`
		} `json:"alternatives"`
	} `json:"channel"`
}

// result is a parsed Results event.
type result struct {
	stt.Transcript
	final bool
}

func isMetadata(data []byte) bool {
	var m struct {
		Type string `json:"type"`
	}
	return json.Unmarshal(data, &m) == nil && m.Type == "Metadata"
}

// parseDeepgramResponse parses a raw Deepgram WebSocket message.
// Returns (result, true) on success, or (zero, false) if the message should be ignored.
func parseDeepgramResponse(data []byte) (result, bool) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return result{}, false
	}
	if resp.Type != "Results" {
		return result{}, false
	}
	if len(resp.Channel.Alternatives) == 0 {
		return result{}, false
	}

	alt := resp.Channel.Alternatives[0]
	words := make([]stt.WordDetail, 0, len(alt.Words))
	for _, w := range alt.Words {
		words = append(words, stt.WordDetail{
			Word:       w.Word,
			Start:      time.Duration(w.Start * float64(time.Second)),
			End:        time.Duration(w.End * float64(time.Second)),
			Confidence: w.Confidence,
		})
	}

	return result{
		Transcript: stt.Transcript{
			Text:       alt.Transcript,
			Confidence: alt.Confidence,
			Words:      words,
		},
		final: resp.IsFinal,
	}, true
}
