// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider in unit tests to feed controlled transcription results to the
// orchestrator and to verify which calls it makes, without any live vendor
// connection. All configuration fields should be set before first use;
// mutating them during concurrent calls is the caller's responsibility.
package mock

import (
	"context"
	"sync"

	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/transcript"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	AudioPath string
	Opts      stt.TranscribeOptions
}

// SegmentCall records a single invocation of TranscribeSegment.
type SegmentCall struct {
	AudioPath string
	StartMs   int64
	EndMs     int64
	Language  string
}

// Provider is a mock implementation of stt.Provider. Zero values for the
// response fields cause methods to return nil results and nil errors.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock" when empty.
	ProviderName string

	// TranscribeResult and TranscribeErr are returned by Transcribe.
	TranscribeResult *transcript.Result
	TranscribeErr    error

	// SegmentResult and SegmentErr are returned by TranscribeSegment.
	// SegmentResults, when non-nil, overrides SegmentResult per call in
	// order, falling back to SegmentResult once exhausted.
	SegmentResult  *transcript.Result
	SegmentResults []*transcript.Result
	SegmentErr     error

	// TranscribeCalls and SegmentCalls record every invocation in order.
	TranscribeCalls []TranscribeCall
	SegmentCalls    []SegmentCall
}

var _ stt.Provider = (*Provider)(nil)

// Name implements stt.Provider.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe records the call and returns the configured result.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts stt.TranscribeOptions) (*transcript.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{AudioPath: audioPath, Opts: opts})
	return p.TranscribeResult, p.TranscribeErr
}

// TranscribeSegment records the call and returns the configured result.
func (p *Provider) TranscribeSegment(ctx context.Context, audioPath string, startMs, endMs int64, language string) (*transcript.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	call := SegmentCall{AudioPath: audioPath, StartMs: startMs, EndMs: endMs, Language: language}
	idx := len(p.SegmentCalls)
	p.SegmentCalls = append(p.SegmentCalls, call)

	if p.SegmentErr != nil {
		return nil, p.SegmentErr
	}
	if idx < len(p.SegmentResults) {
		return p.SegmentResults[idx], nil
	}
	return p.SegmentResult, nil
}

// Reset clears all recorded calls.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
	p.SegmentCalls = nil
}
