package main

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lingualoop/lingualoop/internal/grading"
)

// graderFunc adapts a function to the api.Grader interface.
type graderFunc func(ctx context.Context, req grading.Request) (*grading.Outcome, error)

func (f graderFunc) Evaluate(ctx context.Context, req grading.Request) (*grading.Outcome, error) {
	return f(ctx, req)
}

func readResults(t *testing.T, s string) []batchResult {
	t.Helper()
	var out []batchResult
	sc := bufio.NewScanner(strings.NewReader(s))
	for sc.Scan() {
		var r batchResult
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("decode output line %q: %v", sc.Text(), err)
		}
		out = append(out, r)
	}
	return out
}

func TestGradeBatch_LocalScoring(t *testing.T) {
	t.Parallel()

	input := strings.Join([]string{
		`{"id": "a", "mode": "word", "target": "rice", "recognized": "lice"}`,
		``,
		`{"id": "b", "mode": "bogus"}`,
		`not json`,
		`{"id": "c", "mode": "word", "recognized": "cat"}`,
		`{"id": "d", "mode": "WORD", "target": "cat", "answer": "cat"}`,
	}, "\n")

	var out strings.Builder
	total, failed, err := gradeBatch(context.Background(), grading.New(), strings.NewReader(input), &out, 3, ".")
	if err != nil {
		t.Fatalf("gradeBatch: %v", err)
	}
	if total != 5 || failed != 3 {
		t.Errorf("total/failed = %d/%d, want 5/3", total, failed)
	}

	res := readResults(t, out.String())
	if len(res) != 5 {
		t.Fatalf("got %d result lines, want 5", len(res))
	}

	wantLines := []int{1, 3, 4, 5, 6}
	for i, r := range res {
		if r.Line != wantLines[i] {
			t.Errorf("result %d: line = %d, want %d", i, r.Line, wantLines[i])
		}
	}

	if res[0].Outcome == nil || res[0].Outcome.Score.Overall != 75 {
		t.Errorf("item a: outcome = %+v, want score 75", res[0].Outcome)
	}
	if res[1].Code != "unknown_mode" || res[1].ID != "b" {
		t.Errorf("item b: code/id = %q/%q", res[1].Code, res[1].ID)
	}
	if res[2].Code != "bad_body" || res[2].Outcome != nil {
		t.Errorf("bad line: %+v", res[2])
	}
	if res[3].Code != "invalid_request" {
		t.Errorf("item c: code = %q, want invalid_request", res[3].Code)
	}
	if res[4].Outcome == nil || res[4].Outcome.Score.Overall != 100 || res[4].Outcome.Verdict != grading.Correct {
		t.Errorf("item d: outcome = %+v, want a correct 100", res[4].Outcome)
	}
}

// TestGradeBatch_PreservesOrder makes early lines finish last.
func TestGradeBatch_PreservesOrder(t *testing.T) {
	t.Parallel()

	const n = 8
	var (
		mu      sync.Mutex
		running int
		peak    int
	)
	g := graderFunc(func(ctx context.Context, req grading.Request) (*grading.Outcome, error) {
		mu.Lock()
		running++
		peak = max(peak, running)
		mu.Unlock()
		defer func() {
			mu.Lock()
			running--
			mu.Unlock()
		}()

		delay := time.Duration(len(req.Target)) * time.Millisecond
		time.Sleep(delay)
		return &grading.Outcome{Mode: req.Mode, Transcript: req.Target}, nil
	})

	var in strings.Builder
	for i := range n {
		target := strings.Repeat("x", (n-i)*5)
		in.WriteString(`{"mode": "word", "target": "` + target + `"}` + "\n")
	}

	var out strings.Builder
	_, failed, err := gradeBatch(context.Background(), g, strings.NewReader(in.String()), &out, 4, ".")
	if err != nil || failed != 0 {
		t.Fatalf("gradeBatch: failed=%d err=%v", failed, err)
	}

	res := readResults(t, out.String())
	if len(res) != n {
		t.Fatalf("got %d results, want %d", len(res), n)
	}
	for i, r := range res {
		if r.Line != i+1 {
			t.Errorf("result %d has line %d", i, r.Line)
		}
		if want := (n - i) * 5; r.Outcome == nil || len(r.Outcome.Transcript) != want {
			t.Errorf("result %d: outcome out of order", i)
		}
	}
	if peak > 4 {
		t.Errorf("peak concurrency = %d, want <= 4", peak)
	}
}

func TestGradeBatch_AudioFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "take1.wav"), []byte("RIFF"), 0o600); err != nil {
		t.Fatal(err)
	}

	var got grading.Request
	g := graderFunc(func(_ context.Context, req grading.Request) (*grading.Outcome, error) {
		got = req
		return &grading.Outcome{Mode: req.Mode}, nil
	})

	input := `{"mode": "speaking", "audio_file": "take1.wav", "question": "Describe your day"}` + "\n" +
		`{"mode": "speaking", "audio_file": "missing.wav"}` + "\n"

	var out strings.Builder
	total, failed, err := gradeBatch(context.Background(), g, strings.NewReader(input), &out, 1, dir)
	if err != nil {
		t.Fatalf("gradeBatch: %v", err)
	}
	if total != 2 || failed != 1 {
		t.Errorf("total/failed = %d/%d, want 2/1", total, failed)
	}
	if string(got.Audio) != "RIFF" || got.Filename != "take1.wav" || got.Question != "Describe your day" {
		t.Errorf("request = %+v", got)
	}
	res := readResults(t, out.String())
	if len(res) != 2 || res[1].Code != "audio_unreadable" {
		t.Errorf("results = %+v", res)
	}
}

func TestGradeBatch_Empty(t *testing.T) {
	t.Parallel()

	var out strings.Builder
	total, failed, err := gradeBatch(context.Background(), grading.New(), strings.NewReader("\n\n"), &out, 2, ".")
	if err != nil || total != 0 || failed != 0 {
		t.Errorf("total=%d failed=%d err=%v", total, failed, err)
	}
	if out.Len() != 0 {
		t.Errorf("output = %q, want empty", out.String())
	}
}
