// Package stt defines the Provider interface for batch Speech-to-Text
// backends.
//
// A provider wraps one vendor API (Deepgram, AssemblyAI, OpenAI Whisper) and
// normalises its output to the shared transcript data model: word timestamps
// in milliseconds on the original audio axis and confidences in [0.0, 1.0].
// Vendors that expose only segment log-probabilities derive word confidence
// through a monotone transform inside the adapter; the scores are comparable
// in rank but not calibrated across vendors.
//
// Implementations must be safe for concurrent use: the orchestrator calls
// TranscribeSegment on all providers in parallel for each uncertain segment.
package stt

import (
	"context"
	"errors"
	"fmt"

	"github.com/novahealth/nova/pkg/transcript"
)

// ErrEmptyResponse indicates the vendor returned a response with no usable
// transcription alternatives.
var ErrEmptyResponse = errors.New("stt: empty provider response")

// TranscribeOptions carries recognition hints for a whole-file pass.
type TranscribeOptions struct {
	// Language is the ISO language code. Empty lets the vendor auto-detect
	// where supported; adapters otherwise default to "en".
	Language string

	// Diarize enables speaker labelling where the vendor supports it.
	Diarize bool

	// VocabularyBoost lists domain terms to bias recognition toward. Each
	// adapter maps the list onto its vendor-native mechanism (keyword list,
	// word boost, or prompt priming).
	VocabularyBoost []string
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Name returns the stable provider key used in candidate maps and
	// decision logs (e.g. "deepgram").
	Name() string

	// Transcribe transcribes the whole file at audioPath. Network, quota,
	// and parse failures surface as errors; the orchestrator treats a
	// whole-file failure as fatal for the run.
	Transcribe(ctx context.Context, audioPath string, opts TranscribeOptions) (*transcript.Result, error)

	// TranscribeSegment transcribes [startMs, endMs] of audioPath. Word
	// timestamps in the returned result are re-anchored to the original
	// audio axis. Failures are tolerated per segment: the provider simply
	// goes missing from that segment's candidate map.
	TranscribeSegment(ctx context.Context, audioPath string, startMs, endMs int64, language string) (*transcript.Result, error)
}

// SegmentExtractor is the slice of pkg/audio.Extractor the adapters need.
// It is an interface so adapter tests can stub extraction without ffmpeg.
type SegmentExtractor interface {
	ExtractSegment(ctx context.Context, audioPath string, startMs, endMs int64) (path string, release func(), err error)
}

// TranscribeSlice extracts [startMs, endMs] of audioPath through ex,
// transcribes the artifact with fn, and re-anchors the returned word
// timestamps by startMs. The temp artifact is released on every exit path.
//
// All three vendor adapters implement TranscribeSegment in terms of this
// helper; only the whole-file call differs per vendor.
func TranscribeSlice(
	ctx context.Context,
	ex SegmentExtractor,
	audioPath string,
	startMs, endMs int64,
	fn func(ctx context.Context, segmentPath string) (*transcript.Result, error),
) (*transcript.Result, error) {
	segmentPath, release, err := ex.ExtractSegment(ctx, audioPath, startMs, endMs)
	if err != nil {
		return nil, fmt.Errorf("stt: extract segment [%d, %d]: %w", startMs, endMs, err)
	}
	defer release()

	res, err := fn(ctx, segmentPath)
	if err != nil {
		return nil, err
	}

	res.Words = transcript.ShiftWords(res.Words, startMs)
	return res, nil
}
