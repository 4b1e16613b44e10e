// Command lingualoop scores language-learner responses.
//
// Usage:
//
//	lingualoop serve -config config.yaml
//	lingualoop mcp   -config config.yaml
//	lingualoop batch -config config.yaml -in answers.jsonl -workers 8
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/lingualoop/lingualoop/internal/app"
	"github.com/lingualoop/lingualoop/internal/config"
	"github.com/lingualoop/lingualoop/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

const usage = `usage: lingualoop <command> [flags]

commands:
  serve   run the HTTP API
  mcp     run the MCP tool server on stdio
  batch   grade a JSONL file and print JSONL results in input order
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var err error
	switch args[0] {
	case "serve":
		err = runServe(ctx, args[1:], stderr)
	case "mcp":
		err = runMCP(ctx, args[1:], stderr)
	case "batch":
		err = runBatch(ctx, args[1:], stdin, stdout, stderr)
	case "help", "-h", "-help", "--help":
		fmt.Fprint(stdout, usage)
		return 0
	default:
		fmt.Fprintf(stderr, "lingualoop: unknown command %q\n\n%s", args[0], usage)
		return 2
	}

	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return 0
	case errors.Is(err, flag.ErrHelp):
		return 0
	default:
		fmt.Fprintf(stderr, "lingualoop: %v\n", err)
		return 1
	}
}

// ── Shared setup ──────────────────────────────────────────────────────────────

// env is the state every command builds from the config file.
type env struct {
	cfg   *config.Config
	level *slog.LevelVar
	app   *app.App
}

// setup loads the config, installs the default logger and wires the app.
// m may be nil.
func setup(ctx context.Context, configPath string, stderr io.Writer, m *observe.Metrics) (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config file %q not found; copy configs/example.yaml to get started", configPath)
		}
		return nil, err
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level})))

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := app.BuildProviders(cfg, reg, m)
	if err != nil {
		return nil, err
	}
	opts := []app.Option{app.WithLogger(slog.Default())}
	if m != nil {
		opts = append(opts, app.WithMetrics(m))
	}
	application, err := app.New(ctx, cfg, providers, opts...)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, level: level, app: application}, nil
}

// watch hot-reloads the log level and grading thresholds until the returned
// stop function is called.
func (rt *env) watch(configPath string) (stop func(), err error) {
	w, err := config.NewWatcher(configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			rt.level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level reloaded", "level", d.NewLogLevel)
		}
		rt.app.Reload(d)
	})
	if err != nil {
		return nil, err
	}
	return w.Stop, nil
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
