// Package app wires the LinguaLoop subsystems into a running application.
//
// The App struct owns the full lifecycle: New creates and connects the
// exercise store, the speech normalizer, the AI evaluator and the grader;
// Reload applies hot-reloadable config changes; Shutdown tears everything
// down in order.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/lingualoop/lingualoop/internal/config"
	"github.com/lingualoop/lingualoop/internal/evaluator"
	"github.com/lingualoop/lingualoop/internal/exercise"
	"github.com/lingualoop/lingualoop/internal/exercise/postgres"
	"github.com/lingualoop/lingualoop/internal/grading"
	"github.com/lingualoop/lingualoop/internal/health"
	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/speech"
)

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logger    *slog.Logger

	store    exercise.Store
	speech   *speech.Normalizer
	grader   *grading.Grader
	checkers []health.Checker

	// closers are called in order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New.
type Option func(*App)

// WithStore injects an exercise store instead of opening one from config.
func WithStore(s exercise.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics enables metric recording in every subsystem.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(a *App) { a.logger = l }
}

// healthReporter is implemented by failover groups.
type healthReporter interface {
	Healthy() bool
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App. providers usually comes from [BuildProviders]; a nil
// value is treated as "nothing configured".
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(a)
	}

	// ── 1. Exercise store ───────────────────────────────────────────────
	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init exercise store: %w", err)
	}

	// ── 2. Speech normalizer ────────────────────────────────────────────
	a.initSpeech()

	// ── 3. Grader ───────────────────────────────────────────────────────
	a.initGrader()

	// ── 4. Readiness checks ─────────────────────────────────────────────
	a.initChecks()

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	ex := a.cfg.Exercises
	switch {
	case ex.PostgresDSN != "":
		s, err := postgres.Open(ctx, ex.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = s
		a.closers = append(a.closers, func() error {
			s.Close()
			return nil
		})
		a.logger.Info("exercise store connected", "kind", "postgres")
	case ex.File != "":
		s, err := exercise.LoadFile(ex.File)
		if err != nil {
			return err
		}
		a.store = s
		a.logger.Info("exercise store loaded", "kind", "file", "path", ex.File, "exercises", s.Len())
	default:
		a.logger.Warn("no exercise store configured")
	}
	return nil
}

func (a *App) initSpeech() {
	if a.providers.STT == nil {
		return
	}
	t := a.providers.Transcoder
	if t == nil {
		t = routeTranscoder(nil)
	}
	a.speech = speech.New(a.providers.STT, t,
		speech.WithTempDir(a.cfg.Server.TempDir),
		speech.WithLanguage(a.language()),
		speech.WithLogger(a.logger),
		speech.WithMetrics(a.metrics),
	)
}

func (a *App) initGrader() {
	pass, floor := a.cfg.Grading.Thresholds()
	opts := []grading.Option{
		grading.WithThresholds(grading.Thresholds{Pass: pass, Floor: floor}),
		grading.WithAITimeout(a.cfg.Grading.AITimeout),
		grading.WithMetrics(a.metrics),
	}
	if a.store != nil {
		opts = append(opts, grading.WithStore(a.store))
	}
	if a.speech != nil {
		opts = append(opts, grading.WithTranscriber(a.speech))
	}
	if a.providers.LLM != nil {
		evOpts := []evaluator.Option{evaluator.WithMetrics(a.metrics)}
		if a.providers.LLMLabel != "" {
			evOpts = append(evOpts, evaluator.WithName(a.providers.LLMLabel))
		}
		if t := a.cfg.Grading.Temperature; t != nil {
			evOpts = append(evOpts, evaluator.WithTemperature(*t))
		}
		if n := a.cfg.Grading.MaxTokens; n > 0 {
			evOpts = append(evOpts, evaluator.WithMaxTokens(n))
		}
		opts = append(opts, grading.WithEvaluator(evaluator.New(a.providers.LLM, evOpts...)))
	}
	a.grader = grading.New(opts...)
}

func (a *App) initChecks() {
	if a.store != nil {
		a.checkers = append(a.checkers, health.Ping("exercises", a.store))
	}
	if h, ok := a.providers.LLM.(healthReporter); ok {
		a.checkers = append(a.checkers, health.Available("llm", h.Healthy))
	}
	if h, ok := a.providers.STT.(healthReporter); ok {
		a.checkers = append(a.checkers, health.Available("stt", h.Healthy))
	}
}

func (a *App) language() string {
	if a.cfg.Grading.Language != "" {
		return a.cfg.Grading.Language
	}
	return "en"
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Grader returns the grader.
func (a *App) Grader() *grading.Grader { return a.grader }

// Store returns the exercise store, or nil when none is configured.
func (a *App) Store() exercise.Store { return a.store }

// Checkers returns the readiness checks for the configured subsystems.
func (a *App) Checkers() []health.Checker { return a.checkers }

// ─── Reload ──────────────────────────────────────────────────────────────────

// Reload applies the hot-reloadable part of a config change. Sections that
// need a restart are logged and otherwise ignored.
func (a *App) Reload(d config.ConfigDiff) {
	if d.ThresholdsChanged {
		a.grader.SetThresholds(grading.Thresholds{Pass: d.NewPass, Floor: d.NewFloor})
		a.logger.Info("grading thresholds reloaded", "pass", d.NewPass, "floor", d.NewFloor)
	}
	if len(d.RestartRequired) > 0 {
		a.logger.Warn("config sections changed that need a restart", "sections", d.RestartRequired)
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems in order. It respects the context
// deadline: if ctx expires before all closers finish, remaining closers are
// skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		a.logger.Info("shutting down", "closers", len(a.closers))
		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				a.logger.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				a.logger.Warn("closer error", "index", i, "err", err)
			}
		}
		a.logger.Info("shutdown complete")
	})
	return shutdownErr
}
