package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/lingualoop/lingualoop/internal/api"
	"github.com/lingualoop/lingualoop/internal/health"
	"github.com/lingualoop/lingualoop/internal/observe"
)

const shutdownTimeout = 15 * time.Second

func runServe(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the configuration file")
	listen := fs.String("listen", "", "listen address; overrides server.listen_addr")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// ── Observability ─────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceVersion: version,
		Registry:       promReg,
	})
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}

	rt, err := setup(ctx, *configPath, stderr, metrics)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rt.app.Shutdown(sctx); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	stopWatch, err := rt.watch(*configPath)
	if err != nil {
		return err
	}
	defer stopWatch()

	// ── HTTP ──────────────────────────────────────────────────────────────────
	mux := http.NewServeMux()
	api.New(rt.app.Grader(), api.WithMaxUploadBytes(rt.cfg.Server.MaxUploadBytes)).Register(mux)
	health.New(rt.app.Checkers()).Register(mux)
	mux.Handle("GET /metrics", observe.MetricsHandler(promReg))

	addr := rt.cfg.Server.ListenAddr
	if *listen != "" {
		addr = *listen
	}
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(metrics)(mux),
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          slog.NewLogLogger(slog.Default().Handler(), slog.LevelWarn),
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := rt.cfg.Server.TLS; tls != nil {
			err = srv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	printStartupSummary(stderr, rt, addr)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("listen on %s: %w", addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	slog.Info("goodbye")
	return nil
}

// printStartupSummary writes a short human-readable overview of the wiring.
func printStartupSummary(w io.Writer, rt *env, addr string) {
	cfg := rt.cfg
	pass, floor := cfg.Grading.Thresholds()

	names := func(n int, label func(int) string) string {
		if n == 0 {
			return "(none)"
		}
		s := label(0)
		for i := 1; i < n; i++ {
			s += " → " + label(i)
		}
		return s
	}
	llmChain := names(len(cfg.Providers.LLM), func(i int) string { return cfg.Providers.LLM[i].Label() })
	sttChain := names(len(cfg.Providers.STT), func(i int) string { return cfg.Providers.STT[i].Label() })

	store := "(none)"
	switch {
	case cfg.Exercises.PostgresDSN != "":
		store = "postgres"
	case cfg.Exercises.File != "":
		store = cfg.Exercises.File
	}
	transcoder := cfg.Providers.Transcoder.Name
	if transcoder == "" {
		transcoder = "(built-in wav/opus)"
	}
	scheme := "http"
	if cfg.Server.TLS != nil {
		scheme = "https"
	}

	fmt.Fprintln(w, "╔══════════════════════════════════════╗")
	fmt.Fprintln(w, "║          LinguaLoop scoring          ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════╝")
	fmt.Fprintf(w, "  Version    : %s\n", version)
	fmt.Fprintf(w, "  Listen     : %s://%s\n", scheme, addr)
	fmt.Fprintf(w, "  LLM        : %s\n", llmChain)
	fmt.Fprintf(w, "  STT        : %s\n", sttChain)
	fmt.Fprintf(w, "  Transcoder : %s\n", transcoder)
	fmt.Fprintf(w, "  Exercises  : %s\n", store)
	fmt.Fprintf(w, "  Thresholds : pass %d, floor %d\n", pass, floor)
	fmt.Fprintln(w, "  Press Ctrl+C to stop.")
}
