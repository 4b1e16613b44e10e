package speech_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/speech"
	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
	"github.com/lingualoop/lingualoop/pkg/provider/stt/mock"
)

var testWAV = audio.EncodeWAV(make([]byte, 3200), 16000, 1)

// copyTranscoder pretends to convert by writing testWAV to dst and recording
// the source path it was asked to read.
type copyTranscoder struct {
	mu   sync.Mutex
	srcs []string
	err  error
}

func (c *copyTranscoder) Transcode(_ context.Context, src, dst string) error {
	c.mu.Lock()
	c.srcs = append(c.srcs, src)
	err := c.err
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if _, statErr := os.Stat(src); statErr != nil {
		return statErr
	}
	return os.WriteFile(dst, testWAV, 0o600)
}

func (c *copyTranscoder) calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.srcs)
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("temp dir not cleaned up: %v", names)
	}
}

func TestNormalize_WAVGoesDirect(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeResult: stt.Transcript{Text: " umbrella "}}
	tc := &copyTranscoder{}
	n := speech.New(rec, tc, speech.WithTempDir(tmp), speech.WithLanguage("en"))

	text, err := n.Normalize(context.Background(), testWAV, "Answer.WAV")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if text != "umbrella" {
		t.Errorf("text = %q; want %q", text, "umbrella")
	}
	if tc.calls() != 0 {
		t.Error("WAV upload must not be transcoded")
	}
	if rec.CallCount() != 1 {
		t.Fatalf("Recognize calls = %d; want 1", rec.CallCount())
	}
	got := rec.RecognizeCalls[0].Req
	if string(got.Audio) != string(testWAV) {
		t.Error("recognizer did not receive the uploaded WAV bytes")
	}
	if got.Language != "en" {
		t.Errorf("language = %q; want en", got.Language)
	}
	assertEmptyDir(t, tmp)
}

func TestNormalize_OtherFormatsAreTranscoded(t *testing.T) {
	t.Parallel()
	for _, name := range []string{"answer.webm", "answer.OGG", "voice.m4a", "noext", ""} {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			tmp := t.TempDir()
			rec := &mock.Provider{RecognizeResult: stt.Transcript{Text: "hello"}}
			tc := &copyTranscoder{}
			n := speech.New(rec, tc, speech.WithTempDir(tmp))

			text, err := n.Normalize(context.Background(), []byte("container bytes"), name)
			if err != nil {
				t.Fatalf("Normalize: %v", err)
			}
			if text != "hello" {
				t.Errorf("text = %q; want hello", text)
			}
			if tc.calls() != 1 {
				t.Fatalf("transcode calls = %d; want 1", tc.calls())
			}
			if string(rec.RecognizeCalls[0].Req.Audio) != string(testWAV) {
				t.Error("recognizer did not receive the transcoded WAV")
			}
			if ext := filepath.Ext(tc.srcs[0]); ext != strings.ToLower(filepath.Ext(name)) {
				t.Errorf("source extension = %q; want %q", ext, strings.ToLower(filepath.Ext(name)))
			}
			assertEmptyDir(t, tmp)
		})
	}
}

func TestTranscribe_PassesHints(t *testing.T) {
	t.Parallel()
	rec := &mock.Provider{RecognizeResult: stt.Transcript{Text: "rain"}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(t.TempDir()), speech.WithLanguage("en"))

	_, err := n.Transcribe(context.Background(), speech.Upload{
		Data:     testWAV,
		Filename: "a.wav",
		Language: "es",
		Keywords: []string{"rain"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	req := rec.RecognizeCalls[0].Req
	if req.Language != "es" {
		t.Errorf("language = %q; want es", req.Language)
	}
	if len(req.Keywords) != 1 || req.Keywords[0] != "rain" {
		t.Errorf("keywords = %v; want [rain]", req.Keywords)
	}
}

func TestNormalize_UnintelligibleIsEmptyTranscript(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeErr: fmt.Errorf("whisper: %w", stt.ErrUnintelligible)}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(tmp))

	text, err := n.Normalize(context.Background(), testWAV, "a.wav")
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q; want empty", text)
	}
	assertEmptyDir(t, tmp)
}

func TestNormalize_ErrorKinds(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name     string
		data     []byte
		filename string
		recErr   error
		tcErr    error
		wantKind speech.Kind
		wantOp   string
	}{
		{
			name:     "backend failure",
			data:     testWAV,
			filename: "a.wav",
			recErr:   fmt.Errorf("%w: whisper: post: connection refused", stt.ErrBackend),
			wantKind: speech.RecognitionBackendFailure,
			wantOp:   "recognize",
		},
		{
			name:     "malformed wav",
			data:     testWAV,
			filename: "a.wav",
			recErr:   fmt.Errorf("whisper: decode audio: %w", audio.ErrInvalidWAV),
			wantKind: speech.IOFailure,
			wantOp:   "recognize",
		},
		{
			name:     "transcode failure",
			data:     []byte("junk"),
			filename: "a.webm",
			tcErr:    fmt.Errorf("%w: ffmpeg exited 1", audio.ErrTranscode),
			wantKind: speech.IOFailure,
			wantOp:   "transcode",
		},
		{
			name:     "empty upload",
			data:     nil,
			filename: "a.wav",
			wantKind: speech.IOFailure,
			wantOp:   "read upload",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tmp := t.TempDir()
			rec := &mock.Provider{RecognizeErr: tt.recErr, RecognizeResult: stt.Transcript{Text: "x"}}
			n := speech.New(rec, &copyTranscoder{err: tt.tcErr}, speech.WithTempDir(tmp))

			_, err := n.Normalize(context.Background(), tt.data, tt.filename)
			var ae *speech.AudioError
			if !errors.As(err, &ae) {
				t.Fatalf("err = %v; want *AudioError", err)
			}
			if ae.Kind != tt.wantKind {
				t.Errorf("kind = %v; want %v", ae.Kind, tt.wantKind)
			}
			if ae.Op != tt.wantOp {
				t.Errorf("op = %q; want %q", ae.Op, tt.wantOp)
			}
			if !errors.Is(err, &speech.AudioError{Kind: tt.wantKind}) {
				t.Error("errors.Is does not match by kind")
			}
			if tt.recErr != nil && !errors.Is(err, tt.recErr) {
				t.Error("cause is not unwrappable")
			}
			assertEmptyDir(t, tmp)
		})
	}
}

func TestNormalize_CleansUpOnPanic(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeFunc: func(context.Context, stt.Request) (stt.Transcript, error) {
		panic("recognizer exploded")
	}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(tmp))

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = n.Normalize(context.Background(), testWAV, "a.wav")
	}()
	assertEmptyDir(t, tmp)
}

func TestNormalize_CanceledContext(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeFunc: func(ctx context.Context, _ stt.Request) (stt.Transcript, error) {
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(tmp))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := n.Normalize(ctx, testWAV, "a.wav")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v; want context.Canceled", err)
	}
	var ae *speech.AudioError
	if errors.As(err, &ae) {
		t.Errorf("caller cancellation reported as %v audio error", ae.Kind)
	}
	assertEmptyDir(t, tmp)
}

func TestNormalize_DeadlineIsNotAnAudioError(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeFunc: func(ctx context.Context, _ stt.Request) (stt.Transcript, error) {
		<-ctx.Done()
		return stt.Transcript{}, ctx.Err()
	}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(tmp))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := n.Normalize(ctx, testWAV, "a.wav")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v; want context.DeadlineExceeded", err)
	}
	var ae *speech.AudioError
	if errors.As(err, &ae) {
		t.Errorf("deadline reported as %v audio error", ae.Kind)
	}
	assertEmptyDir(t, tmp)
}

func TestNormalize_ConcurrentCallsAreIsolated(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	rec := &mock.Provider{RecognizeFunc: func(_ context.Context, req stt.Request) (stt.Transcript, error) {
		return stt.Transcript{Text: fmt.Sprintf("%d bytes", len(req.Audio))}, nil
	}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(tmp))

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			data := audio.EncodeWAV(make([]byte, 2*(i+1)), 16000, 1)
			text, err := n.Normalize(context.Background(), data, "a.wav")
			if err != nil {
				errs <- err
				return
			}
			if want := fmt.Sprintf("%d bytes", len(data)); text != want {
				errs <- fmt.Errorf("text = %q; want %q", text, want)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
	assertEmptyDir(t, tmp)
}

func TestNormalize_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	rec := &mock.Provider{RecognizeResult: stt.Transcript{Text: "hi"}}
	n := speech.New(rec, &copyTranscoder{}, speech.WithTempDir(t.TempDir()), speech.WithMetrics(m))
	ctx := context.Background()
	if _, err := n.Normalize(ctx, testWAV, "a.wav"); err != nil {
		t.Fatal(err)
	}
	if _, err := n.Normalize(ctx, []byte("webm"), "a.webm"); err != nil {
		t.Fatal(err)
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	counts := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "lingualoop.audio.normalizations" {
				continue
			}
			for _, dp := range met.Data.(metricdata.Sum[int64]).DataPoints {
				route, _ := dp.Attributes.Value("route")
				counts[route.AsString()] += dp.Value
			}
		}
	}
	if counts["direct"] != 1 || counts["transcoded"] != 1 {
		t.Errorf("normalizations by route = %v; want direct=1 transcoded=1", counts)
	}
}
