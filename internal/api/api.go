// Package api exposes the grader over HTTP.
//
// Each mode has its own endpoint, POST /v1/evaluate/{mode}. A request body is
// either a JSON object or a multipart form whose "audio" part carries a
// spoken answer; the remaining form fields mirror the JSON keys. The
// response is the JSON encoding of a [grading.Outcome].
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/lingualoop/lingualoop/internal/exercise"
	"github.com/lingualoop/lingualoop/internal/grading"
	"github.com/lingualoop/lingualoop/internal/observe"
	"github.com/lingualoop/lingualoop/internal/speech"
)

// DefaultMaxUploadBytes caps a request body when no limit is configured.
const DefaultMaxUploadBytes = 10 << 20

// Grader evaluates one learner response.
type Grader interface {
	Evaluate(ctx context.Context, req grading.Request) (*grading.Outcome, error)
}

var _ Grader = (*grading.Grader)(nil)

// EvaluateRequest is the JSON body of an evaluation call. Answer, Recognized
// and Transcript are synonyms; the first non-empty one is used.
type EvaluateRequest struct {
	Target     string   `json:"target,omitempty"`
	Answer     string   `json:"answer,omitempty"`
	Recognized string   `json:"recognized,omitempty"`
	Transcript string   `json:"transcript,omitempty"`
	Question   string   `json:"question,omitempty"`
	Keywords   []string `json:"keywords,omitempty"`
	ExerciseID string   `json:"exercise_id,omitempty"`
	QuestionID string   `json:"question_id,omitempty"`
	Language   string   `json:"language,omitempty"`
}

// ToGrading converts r into a grading request for mode.
func (r EvaluateRequest) ToGrading(mode grading.Mode) grading.Request {
	answer := r.Answer
	for _, alt := range []string{r.Recognized, r.Transcript} {
		if answer == "" {
			answer = alt
		}
	}
	return grading.Request{
		Mode:       mode,
		Target:     r.Target,
		Answer:     answer,
		Language:   r.Language,
		Question:   r.Question,
		Keywords:   r.Keywords,
		ExerciseID: r.ExerciseID,
		QuestionID: r.QuestionID,
	}
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// Option configures a [Server].
type Option func(*Server)

// WithMaxUploadBytes caps the request body size. Default: [DefaultMaxUploadBytes].
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxBytes = n
		}
	}
}

// Server serves the evaluation endpoints.
type Server struct {
	grader   Grader
	maxBytes int64
}

// New returns a Server backed by g.
func New(g Grader, opts ...Option) *Server {
	s := &Server{grader: g, maxBytes: DefaultMaxUploadBytes}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register mounts the evaluation endpoints on mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /v1/evaluate/{mode}", s.handleEvaluate)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	mode, err := grading.ParseMode(r.PathValue("mode"))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown_mode", err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	req, err := s.decode(r, mode)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "bad_body", err)
		return
	}

	out, err := s.grader.Evaluate(r.Context(), req)
	if err != nil {
		status, code := classify(err)
		if status >= http.StatusInternalServerError {
			observe.Logger(r.Context()).Warn("api: evaluation failed", "mode", mode, "err", err)
		}
		writeError(w, status, code, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) decode(r *http.Request, mode grading.Mode) (grading.Request, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return decodeMultipart(r, mode, s.maxBytes)
	}

	var body EvaluateRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		return grading.Request{}, fmt.Errorf("api: decode json: %w", err)
	}
	return body.ToGrading(mode), nil
}

func decodeMultipart(r *http.Request, mode grading.Mode, maxBytes int64) (grading.Request, error) {
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		return grading.Request{}, fmt.Errorf("api: parse multipart: %w", err)
	}
	body := EvaluateRequest{
		Target:     r.FormValue("target"),
		Answer:     r.FormValue("answer"),
		Recognized: r.FormValue("recognized"),
		Transcript: r.FormValue("transcript"),
		Question:   r.FormValue("question"),
		ExerciseID: r.FormValue("exercise_id"),
		QuestionID: r.FormValue("question_id"),
		Language:   r.FormValue("language"),
	}
	for _, v := range r.MultipartForm.Value["keywords"] {
		for _, kw := range strings.Split(v, ",") {
			if kw = strings.TrimSpace(kw); kw != "" {
				body.Keywords = append(body.Keywords, kw)
			}
		}
	}
	req := body.ToGrading(mode)

	f, hdr, err := r.FormFile("audio")
	switch {
	case errors.Is(err, http.ErrMissingFile):
		return req, nil
	case err != nil:
		return grading.Request{}, fmt.Errorf("api: read audio part: %w", err)
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return grading.Request{}, fmt.Errorf("api: read audio part: %w", err)
	}
	req.Audio = data
	req.Filename = hdr.Filename
	return req, nil
}

// ErrorCode returns the machine-readable code the API reports for err.
func ErrorCode(err error) string {
	_, code := classify(err)
	return code
}

// classify maps an evaluation error to an HTTP status and a stable code.
func classify(err error) (int, string) {
	var (
		audioErr *speech.AudioError
		evalErr  *grading.EvaluationError
	)
	switch {
	case errors.Is(err, exercise.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, grading.ErrNoTranscriber):
		return http.StatusServiceUnavailable, "speech_unavailable"
	case errors.Is(err, grading.ErrInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.As(err, &audioErr):
		if audioErr.Kind == speech.RecognitionBackendFailure {
			return http.StatusBadGateway, "recognition_failed"
		}
		return http.StatusUnprocessableEntity, "audio_unprocessable"
	case errors.As(err, &evalErr):
		return http.StatusBadGateway, "evaluation_failed"
	case errors.Is(err, context.Canceled):
		return 499, "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("api: failed to write response", "err", err)
	}
}
