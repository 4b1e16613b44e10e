package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lingualoop/lingualoop/internal/api"
	"github.com/lingualoop/lingualoop/internal/grading"
)

// maxBatchLine bounds one JSONL input line.
const maxBatchLine = 1 << 20

// batchItem is one input line: the HTTP request body plus the mode that
// the HTTP API takes from the URL path.
type batchItem struct {
	ID        string `json:"id,omitempty"`
	Mode      string `json:"mode"`
	AudioFile string `json:"audio_file,omitempty"`
	api.EvaluateRequest
}

// batchResult is one output line. Exactly one of Outcome and Error is set.
type batchResult struct {
	Line    int              `json:"line"`
	ID      string           `json:"id,omitempty"`
	Outcome *grading.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
	Code    string           `json:"code,omitempty"`
}

func runBatch(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("batch", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "config.yaml", "path to the configuration file")
	inPath := fs.String("in", "-", "JSONL input file; - reads stdin")
	workers := fs.Int("workers", runtime.GOMAXPROCS(0), "number of concurrent evaluations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	in, baseDir := stdin, "."
	if *inPath != "-" {
		f, err := os.Open(*inPath)
		if err != nil {
			return err
		}
		defer f.Close()
		in, baseDir = f, filepath.Dir(*inPath)
	}

	rt, err := setup(ctx, *configPath, stderr, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err := rt.app.Shutdown(context.Background()); err != nil {
			slog.Warn("shutdown error", "err", err)
		}
	}()

	start := time.Now()
	total, failed, err := gradeBatch(ctx, rt.app.Grader(), in, stdout, *workers, baseDir)
	if err != nil {
		return err
	}
	slog.Info("batch finished", "items", total, "failed", failed, "elapsed", time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%d of %d items failed", failed, total)
	}
	return nil
}

// gradeBatch evaluates every JSONL line of in with up to workers concurrent
// evaluations and writes one result line per input line to out, in input
// order. Blank lines are skipped. Per-item failures are reported in the
// output; only read and write failures abort the batch. audio_file paths
// are resolved against baseDir.
func gradeBatch(ctx context.Context, g api.Grader, in io.Reader, out io.Writer, workers int, baseDir string) (total, failed int, err error) {
	type line struct {
		num  int
		data []byte
	}
	var lines []line
	sc := bufio.NewScanner(in)
	sc.Buffer(make([]byte, 0, 64*1024), maxBatchLine)
	for n := 1; sc.Scan(); n++ {
		data := bytes.TrimSpace(sc.Bytes())
		if len(data) == 0 {
			continue
		}
		lines = append(lines, line{num: n, data: bytes.Clone(data)})
	}
	if err := sc.Err(); err != nil {
		return 0, 0, fmt.Errorf("batch: read input: %w", err)
	}

	results := make([]batchResult, len(lines))
	eg := new(errgroup.Group)
	eg.SetLimit(max(workers, 1))
	for i, l := range lines {
		eg.Go(func() error {
			results[i] = gradeLine(ctx, g, l.num, l.data, baseDir)
			return nil
		})
	}
	_ = eg.Wait()

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
		if err := enc.Encode(r); err != nil {
			return len(results), failed, fmt.Errorf("batch: write output: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return len(results), failed, fmt.Errorf("batch: write output: %w", err)
	}
	return len(results), failed, nil
}

func gradeLine(ctx context.Context, g api.Grader, num int, data []byte, baseDir string) batchResult {
	res := batchResult{Line: num}
	fail := func(code string, err error) batchResult {
		res.Error, res.Code = err.Error(), code
		return res
	}

	var item batchItem
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&item); err != nil {
		return fail("bad_body", fmt.Errorf("decode line: %w", err))
	}
	res.ID = item.ID

	mode, err := grading.ParseMode(item.Mode)
	if err != nil {
		return fail("unknown_mode", err)
	}
	req := item.ToGrading(mode)
	if item.AudioFile != "" {
		path := item.AudioFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		req.Audio, err = os.ReadFile(path)
		if err != nil {
			return fail("audio_unreadable", err)
		}
		req.Filename = filepath.Base(path)
	}

	outcome, err := g.Evaluate(ctx, req)
	if err != nil {
		slog.DebugContext(ctx, "batch item failed", "line", num, "id", item.ID, "err", err)
		return fail(api.ErrorCode(err), err)
	}
	res.Outcome = outcome
	return res
}
