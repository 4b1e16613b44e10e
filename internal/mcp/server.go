// Package mcp exposes the scorer as a Model Context Protocol tool server.
//
// Three tools are exported by [NewServer]:
//   - "similarity"   compares two strings and reports the mistake spans.
//   - "score_word"   grades a recognized word against its target.
//   - "score_answer" grades a sentence, listening or speaking answer.
//
// Results are JSON text content. Grading failures are reported as tool
// errors (IsError) rather than protocol errors, so an agent sees the reason.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel/metric"

	"github.com/lingualoop/lingualoop/internal/grading"
	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/similarity"
)

// Tool names.
const (
	ToolSimilarity  = "similarity"
	ToolScoreWord   = "score_word"
	ToolScoreAnswer = "score_answer"
)

// Grader evaluates one learner response.
type Grader interface {
	Evaluate(ctx context.Context, req grading.Request) (*grading.Outcome, error)
}

var _ Grader = (*grading.Grader)(nil)

// similarityArgs is the input of the "similarity" tool.
type similarityArgs struct {
	Target     string `json:"target" jsonschema:"the expected text"`
	Recognized string `json:"recognized" jsonschema:"the text to compare against the target"`
}

// similarityResult is the output of the "similarity" tool.
type similarityResult struct {
	Score    int               `json:"score"`
	Ratio    float64           `json:"ratio"`
	Mistakes []similarity.Span `json:"mistakes"`
}

// scoreWordArgs is the input of the "score_word" tool.
type scoreWordArgs struct {
	Target     string `json:"target" jsonschema:"the word the learner was asked to pronounce"`
	Recognized string `json:"recognized" jsonschema:"what the speech recognizer heard"`
}

// scoreAnswerArgs is the input of the "score_answer" tool.
type scoreAnswerArgs struct {
	Mode       string   `json:"mode" jsonschema:"one of sentence, listening or speaking"`
	Answer     string   `json:"answer" jsonschema:"the learner's answer or speaking transcript"`
	Question   string   `json:"question,omitempty" jsonschema:"the question that was asked"`
	Keywords   []string `json:"keywords,omitempty" jsonschema:"points a good answer mentions"`
	ExerciseID string   `json:"exercise_id,omitempty" jsonschema:"stored exercise id, used with question_id"`
	QuestionID string   `json:"question_id,omitempty" jsonschema:"stored question id, used with exercise_id"`
}

// Option configures the server built by [NewServer].
type Option func(*server)

// WithMetrics records one tool call metric per invocation.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *server) { s.metrics = m }
}

// WithVersion sets the implementation version advertised to clients.
func WithVersion(v string) Option {
	return func(s *server) { s.version = v }
}

type server struct {
	grader  Grader
	metrics *observe.Metrics
	version string
}

// NewServer returns an MCP server exposing the scoring tools. Run it with
// a transport, e.g. srv.Run(ctx, &mcpsdk.StdioTransport{}).
func NewServer(g Grader, opts ...Option) *mcpsdk.Server {
	s := &server{grader: g, version: "dev"}
	for _, o := range opts {
		o(s)
	}

	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: "lingualoop", Version: s.version}, nil)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolSimilarity,
		Description: "Character similarity (0-100) between a target and a recognized string, with the spans that differ.",
	}, s.similarity)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolScoreWord,
		Description: "Grade the pronunciation of a single word from the speech recognizer's output.",
	}, s.scoreWord)
	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        ToolScoreAnswer,
		Description: "Grade a sentence, listening or speaking answer. Listening answers need keywords or a stored question.",
	}, s.scoreAnswer)
	return srv
}

func (s *server) similarity(ctx context.Context, _ *mcpsdk.CallToolRequest, args similarityArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	res := similarityResult{
		Score:    similarity.Score(args.Target, args.Recognized),
		Ratio:    similarity.Ratio(args.Target, args.Recognized),
		Mistakes: similarity.Localize(similarity.Align(args.Target, args.Recognized)),
	}
	if res.Mistakes == nil {
		res.Mistakes = []similarity.Span{}
	}
	return s.reply(ctx, ToolSimilarity, start, res, nil)
}

func (s *server) scoreWord(ctx context.Context, _ *mcpsdk.CallToolRequest, args scoreWordArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	out, err := s.grader.Evaluate(ctx, grading.Request{
		Mode:   grading.ModeWord,
		Target: args.Target,
		Answer: args.Recognized,
	})
	return s.reply(ctx, ToolScoreWord, start, out, err)
}

func (s *server) scoreAnswer(ctx context.Context, _ *mcpsdk.CallToolRequest, args scoreAnswerArgs) (*mcpsdk.CallToolResult, any, error) {
	start := time.Now()
	mode, err := grading.ParseMode(args.Mode)
	if err == nil && mode == grading.ModeWord {
		err = fmt.Errorf("%w: use %s for word answers", grading.ErrInvalidRequest, ToolScoreWord)
	}
	if err != nil {
		return s.reply(ctx, ToolScoreAnswer, start, nil, err)
	}
	out, err := s.grader.Evaluate(ctx, grading.Request{
		Mode:       mode,
		Answer:     args.Answer,
		Question:   args.Question,
		Keywords:   args.Keywords,
		ExerciseID: args.ExerciseID,
		QuestionID: args.QuestionID,
	})
	return s.reply(ctx, ToolScoreAnswer, start, out, err)
}

// reply encodes v as text content, or err as a tool error.
func (s *server) reply(ctx context.Context, tool string, start time.Time, v any, err error) (*mcpsdk.CallToolResult, any, error) {
	var data []byte
	if err == nil {
		data, err = json.Marshal(v)
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	if s.metrics != nil {
		s.metrics.ToolExecutionDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(observe.Attr("tool", tool)))
		s.metrics.RecordToolCall(ctx, tool, status)
	}
	if err != nil {
		observe.Logger(ctx).Debug("mcp: tool call failed", "tool", tool, "err", err)
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: err.Error()}},
		}, nil, nil
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
