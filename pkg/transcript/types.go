// Package transcript defines the shared data model for word-timed
// transcription results and the segment/decision types exchanged between the
// confidence analyzer, the STT providers, the LLM judge, and the orchestrator.
//
// All timestamps are integer milliseconds measured from the start of the
// original audio file. Confidence values are normalised to [0.0, 1.0] by the
// provider adapters; nothing in this package re-scales them.
package transcript

import (
	"encoding/json"
	"strings"
)

// Word is a single transcribed token with timing and confidence metadata.
type Word struct {
	// Text is the token text. Never empty, never contains whitespace.
	Text string `json:"text"`

	// StartMs and EndMs bound the token on the original audio axis.
	// StartMs <= EndMs always holds.
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	// Confidence is the provider-reported (or derived) score in [0.0, 1.0].
	Confidence float64 `json:"confidence"`

	// Speaker is an opaque diarization label. Empty when diarization is off
	// or the provider does not report speakers.
	Speaker string `json:"speaker,omitempty"`
}

// DurationMs returns the word duration in milliseconds.
func (w Word) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// Result is a complete transcription of one audio artifact by one model.
type Result struct {
	// FullText is the single-space join of the word texts.
	FullText string `json:"full_text"`

	// Words is ordered by start time. For consecutive words w[i], w[i+1],
	// w[i].EndMs <= w[i+1].StartMs holds (monotonicity).
	Words []Word `json:"words"`

	// OverallConfidence is the arithmetic mean of word confidences, or 0
	// when Words is empty.
	OverallConfidence float64 `json:"overall_confidence"`

	// DurationMs is the total audio duration. Always >= the last word's EndMs.
	DurationMs int64 `json:"duration_ms"`

	// Language is the detected or requested language code.
	Language string `json:"language"`

	// ModelName identifies the producing model (e.g. "deepgram-nova-3").
	ModelName string `json:"model_name"`

	// Raw optionally carries the unparsed provider response for debugging.
	Raw json.RawMessage `json:"raw_response,omitempty"`
}

// WordCount returns the number of words in the result.
func (r *Result) WordCount() int {
	return len(r.Words)
}

// WordsInRange returns the words fully contained in [startMs, endMs].
func (r *Result) WordsInRange(startMs, endMs int64) []Word {
	var out []Word
	for _, w := range r.Words {
		if w.StartMs >= startMs && w.EndMs <= endMs {
			out = append(out, w)
		}
	}
	return out
}

// TextInRange returns the single-space join of the words fully contained in
// [startMs, endMs].
func (r *Result) TextInRange(startMs, endMs int64) string {
	return JoinWords(r.WordsInRange(startMs, endMs))
}

// ContextBefore returns the text of up to maxWords words ending at or before
// positionMs, closest words last.
func (r *Result) ContextBefore(positionMs int64, maxWords int) string {
	var before []Word
	for _, w := range r.Words {
		if w.EndMs <= positionMs {
			before = append(before, w)
		}
	}
	if len(before) > maxWords {
		before = before[len(before)-maxWords:]
	}
	return JoinWords(before)
}

// ContextAfter returns the text of up to maxWords words starting at or after
// positionMs.
func (r *Result) ContextAfter(positionMs int64, maxWords int) string {
	var after []Word
	for _, w := range r.Words {
		if w.StartMs >= positionMs {
			after = append(after, w)
		}
		if len(after) == maxWords {
			break
		}
	}
	return JoinWords(after)
}

// JoinWords concatenates word texts separated by single spaces.
func JoinWords(words []Word) string {
	var sb strings.Builder
	for i, w := range words {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(w.Text)
	}
	return sb.String()
}

// MeanConfidence returns the arithmetic mean of the word confidences, or 0
// for an empty slice.
func MeanConfidence(words []Word) float64 {
	if len(words) == 0 {
		return 0
	}
	var sum float64
	for _, w := range words {
		sum += w.Confidence
	}
	return sum / float64(len(words))
}

// ShiftWords returns a copy of words with every timestamp offset by deltaMs.
// Provider adapters use it to re-anchor segment-local timestamps to the
// original audio axis.
func ShiftWords(words []Word, deltaMs int64) []Word {
	out := make([]Word, len(words))
	for i, w := range words {
		w.StartMs += deltaMs
		w.EndMs += deltaMs
		out[i] = w
	}
	return out
}
