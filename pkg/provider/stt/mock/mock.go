// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that the caller sends the expected audio and
// recognition hints, and to script transcripts or failures.
//
// Example:
//
//	p := &mock.Provider{RecognizeResult: stt.Transcript{Text: "hello"}}
//	tr, _ := p.Recognize(ctx, stt.Request{Audio: wav})
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/lingualoop/lingualoop/pkg/provider/stt"
)

// RecognizeCall records a single invocation of Provider.Recognize.
type RecognizeCall struct {
	// Ctx is the context passed to Recognize.
	Ctx context.Context
	// Req is a copy of the Request passed to Recognize.
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// RecognizeResult is returned by Recognize when RecognizeErr is nil.
	RecognizeResult stt.Transcript

	// RecognizeErr, if non-nil, is returned as the error from Recognize.
	RecognizeErr error

	// RecognizeFunc, if set, replaces the scripted result entirely.
	RecognizeFunc func(ctx context.Context, req stt.Request) (stt.Transcript, error)

	// RecognizeCalls records every call to Recognize.
	RecognizeCalls []RecognizeCall
}

// Recognize records the call and returns RecognizeResult, RecognizeErr.
func (p *Provider) Recognize(ctx context.Context, req stt.Request) (stt.Transcript, error) {
	p.mu.Lock()
	req.Audio = slices.Clone(req.Audio)
	req.Keywords = slices.Clone(req.Keywords)
	p.RecognizeCalls = append(p.RecognizeCalls, RecognizeCall{Ctx: ctx, Req: req})
	fn := p.RecognizeFunc
	res, err := p.RecognizeResult, p.RecognizeErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	if err != nil {
		return stt.Transcript{}, err
	}
	return res, nil
}

// CallCount returns the number of Recognize calls. Thread-safe.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.RecognizeCalls)
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RecognizeCalls = nil
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
