package main

import (
	"context"
	"flag"
	"io"
	"log/slog"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"

	"github.com/lingualoop/lingualoop/internal/mcp"
	"github.com/lingualoop/lingualoop/internal/observe"
)

// runMCP serves the scoring tools over stdio. stdout carries the protocol,
// so every log line goes to stderr.
func runMCP(ctx context.Context, args []string, stderr io.Writer) error {
	fs := flag.NewFlagSet("mcp", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		return err
	}
	rt, err := setup(ctx, *configPath, stderr, metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.app.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	stopWatch, err := rt.watch(*configPath)
	if err != nil {
		return err
	}
	defer stopWatch()

	srv := mcp.NewServer(rt.app.Grader(), mcp.WithMetrics(metrics), mcp.WithVersion(version))
	slog.Info("mcp server listening on stdio")
	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}
