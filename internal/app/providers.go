package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lingualoop/lingualoop/internal/config"
	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/resilience"
	"github.com/lingualoop/lingualoop/pkg/audio"
	"github.com/lingualoop/lingualoop/pkg/audio/opus"
	"github.com/lingualoop/lingualoop/pkg/provider/llm"
	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured.
type Providers struct {
	// LLM backs the AI evaluator. Label is used in metrics.
	LLM      llm.Provider
	LLMLabel string

	STT        stt.Provider
	Transcoder audio.Transcoder
}

// BuildProviders instantiates every provider named in cfg through reg.
// LLM and STT lists are wrapped in a failover group with one circuit breaker
// per backend; breaker transitions are recorded on m when it is non-nil.
func BuildProviders(cfg *config.Config, reg *config.Registry, m *observe.Metrics) (*Providers, error) {
	ps := &Providers{}
	cbCfg := breakerConfig(cfg.Resilience, m)

	if entries := cfg.Providers.LLM; len(entries) > 0 {
		var group *resilience.LLMFallback
		for i, entry := range entries {
			p, err := reg.CreateLLM(entry)
			if err != nil {
				return nil, fmt.Errorf("app: create llm provider %q: %w", entry.Label(), err)
			}
			if i == 0 {
				group = resilience.NewLLMFallback(p, entry.Label(), resilience.FallbackConfig{CircuitBreaker: cbCfg})
			} else {
				group.AddFallback(entry.Label(), p)
			}
			slog.Info("provider created", "kind", "llm", "name", entry.Label(), "primary", i == 0)
		}
		ps.LLM = group
		ps.LLMLabel = entries[0].Label()
	}

	if entries := cfg.Providers.STT; len(entries) > 0 {
		var group *resilience.STTFallback
		for i, entry := range entries {
			p, err := reg.CreateSTT(entry)
			if err != nil {
				return nil, fmt.Errorf("app: create stt provider %q: %w", entry.Label(), err)
			}
			if i == 0 {
				group = resilience.NewSTTFallback(p, entry.Label(), resilience.FallbackConfig{CircuitBreaker: cbCfg})
			} else {
				group.AddFallback(entry.Label(), p)
			}
			slog.Info("provider created", "kind", "stt", "name", entry.Label(), "primary", i == 0)
		}
		ps.STT = group
	}

	t, err := buildTranscoder(cfg.Providers.Transcoder, reg)
	if err != nil {
		return nil, err
	}
	ps.Transcoder = t
	return ps, nil
}

// buildTranscoder routes .opus uploads to the in-process decoder and
// everything else to the configured transcoder. With no transcoder
// configured, WAV and Ogg/Opus are the only accepted formats.
func buildTranscoder(entry config.ProviderEntry, reg *config.Registry) (audio.Transcoder, error) {
	var fallback audio.Transcoder
	if entry.Name != "" {
		t, err := reg.CreateTranscoder(entry)
		if err != nil {
			return nil, fmt.Errorf("app: create transcoder %q: %w", entry.Name, err)
		}
		fallback = t
		slog.Info("provider created", "kind", "transcoder", "name", entry.Name)
	}
	return routeTranscoder(fallback), nil
}

func routeTranscoder(fallback audio.Transcoder) *audio.Router {
	r := audio.NewRouter(fallback)
	r.Handle(opus.Decoder{}, ".opus")
	if fallback == nil {
		r.Handle(opus.Decoder{}, ".ogg", ".oga")
	}
	return r
}

func breakerConfig(rc config.ResilienceConfig, m *observe.Metrics) resilience.CircuitBreakerConfig {
	cb := resilience.CircuitBreakerConfig{
		MaxFailures:  rc.MaxFailures,
		ResetTimeout: rc.ResetTimeout,
		HalfOpenMax:  rc.HalfOpenMax,
	}
	if m != nil {
		cb.OnStateChange = func(name string, to resilience.State) {
			m.RecordBreakerTransition(context.Background(), name, to.String())
		}
	}
	cb.OnStateChange = logTransitions(cb.OnStateChange)
	return cb
}

func logTransitions(next func(string, resilience.State)) func(string, resilience.State) {
	return func(name string, to resilience.State) {
		slog.Warn("circuit breaker state changed", "backend", name, "state", to.String())
		if next != nil {
			next(name, to)
		}
	}
}
