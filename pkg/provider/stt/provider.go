// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (a local whisper.cpp server,
// the whisper.cpp CGO bindings, or Deepgram) and exposes a single batch call:
// one canonical WAV recording in, one transcript out. Learner answers are
// short, complete recordings, so there is no streaming session.
//
// Providers report their two expected failure modes through sentinel errors
// so callers can tell them apart with errors.Is:
//
//   - [ErrUnintelligible]: the backend worked but heard no usable speech.
//   - [ErrBackend]: the backend could not be reached or failed to process
//     the request.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
)

// ErrUnintelligible is returned when the audio was processed successfully but
// contained no recognisable speech (silence, noise, or an empty transcript).
var ErrUnintelligible = errors.New("stt: speech could not be understood")

// ErrBackend is returned when the recognition service is unreachable,
// rejects the request, or returns a response that cannot be decoded.
var ErrBackend = errors.New("stt: recognition backend failed")

// Request describes a single recognition call.
type Request struct {
	// Audio is a complete RIFF/WAV file holding 16-bit PCM. Providers convert
	// to the sample rate and channel layout they need.
	Audio []byte

	// Language is the BCP-47 language tag for recognition (e.g., "en", "de").
	// An empty string selects the provider's configured default.
	Language string

	// Keywords are vocabulary hints that raise recognition probability for
	// expected words, such as the target word of a pronunciation exercise.
	// Providers without hinting support ignore them.
	Keywords []string
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// Recognize transcribes req.Audio. It returns ErrUnintelligible (possibly
	// wrapped) when no speech was recognised and an error wrapping ErrBackend
	// for service failures. Other errors indicate malformed input.
	Recognize(ctx context.Context, req Request) (Transcript, error)
}
