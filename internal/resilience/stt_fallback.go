package resilience

import (
	"context"
	"errors"
	"fmt"

	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] with automatic failover across multiple
// STT backends. Each backend has its own circuit breaker.
//
// Only backend failures fail over. A recording without speech
// ([stt.ErrUnintelligible]), malformed audio ([audio.ErrInvalidWAV]) and
// caller cancellation are returned from the first backend that reports them.
// When every backend fails, the error wraps [stt.ErrBackend].
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback creates an [STTFallback] with primary as the preferred backend.
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	if cfg.Terminal == nil {
		cfg.Terminal = isTerminalSTTErr
	}
	return &STTFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// Healthy reports whether any backend's circuit is not open.
func (f *STTFallback) Healthy() bool { return f.group.Healthy() }

// AddFallback registers an additional STT provider as a fallback.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// Recognize transcribes req with the first healthy provider.
func (f *STTFallback) Recognize(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	tr, err := ExecuteWithResult(f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Recognize(ctx, req)
	})
	if errors.Is(err, ErrAllFailed) && !errors.Is(err, stt.ErrBackend) {
		err = fmt.Errorf("%w: %w", stt.ErrBackend, err)
	}
	return tr, err
}

func isTerminalSTTErr(err error) bool {
	return errors.Is(err, stt.ErrUnintelligible) ||
		errors.Is(err, audio.ErrInvalidWAV) ||
		isContextErr(err)
}
