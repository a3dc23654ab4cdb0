// Package analyzer scans a primary transcription for runs of low-confidence
// words and groups them into uncertain segments for re-transcription.
//
// Grouping is strictly threshold-driven: a word participates in a segment iff
// its confidence is below the configured threshold. Segments shorter than the
// minimum duration are discarded as noise, near-adjacent segments are merged
// so one audio slice covers them, and over-long segments are split along word
// boundaries so each slice stays within what re-transcription providers
// handle well.
package analyzer

import (
	"github.com/novahealth/nova/pkg/transcript"
)

// Defaults for Config fields left at their zero value.
const (
	DefaultConfidenceThreshold  = 0.75
	DefaultMinSegmentDurationMs = 500
	DefaultMaxSegmentDurationMs = 10000
	DefaultContextWindowWords   = 50
	DefaultMergeGapThresholdMs  = 1000
)

// Config controls segment identification. The zero value is usable; every
// zero field is replaced by its default.
type Config struct {
	// ConfidenceThreshold is the exclusive lower bound for trusted words.
	// Words with confidence strictly below it are flagged.
	ConfidenceThreshold float64

	// MinSegmentDurationMs discards flagged runs shorter than this.
	MinSegmentDurationMs int64

	// MaxSegmentDurationMs splits flagged runs longer than this.
	MaxSegmentDurationMs int64

	// ContextWindowWords is how many trusted words to capture before and
	// after each segment for the judge's context.
	ContextWindowWords int

	// MergeGapThresholdMs merges segments whose gap is at most this.
	MergeGapThresholdMs int64
}

// withDefaults returns cfg with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.ConfidenceThreshold == 0 {
		c.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if c.MinSegmentDurationMs == 0 {
		c.MinSegmentDurationMs = DefaultMinSegmentDurationMs
	}
	if c.MaxSegmentDurationMs == 0 {
		c.MaxSegmentDurationMs = DefaultMaxSegmentDurationMs
	}
	if c.ContextWindowWords == 0 {
		c.ContextWindowWords = DefaultContextWindowWords
	}
	if c.MergeGapThresholdMs == 0 {
		c.MergeGapThresholdMs = DefaultMergeGapThresholdMs
	}
	return c
}

// Analyzer identifies uncertain segments in transcription results. Safe for
// concurrent use; it holds no mutable state.
type Analyzer struct {
	cfg Config
}

// New creates an Analyzer from cfg, applying defaults for zero fields.
func New(cfg Config) *Analyzer {
	return &Analyzer{cfg: cfg.withDefaults()}
}

// Threshold reports the effective confidence threshold.
func (a *Analyzer) Threshold() float64 { return a.cfg.ConfidenceThreshold }

// IdentifyUncertainSegments scans res for consecutive words below the
// confidence threshold and returns the resulting segments ordered by start
// time. The returned segments never overlap.
func (a *Analyzer) IdentifyUncertainSegments(res *transcript.Result) []transcript.UncertainSegment {
	var segments []transcript.UncertainSegment
	var run []transcript.Word

	flush := func() {
		if seg, ok := a.buildSegment(run, res); ok {
			segments = append(segments, seg)
		}
		run = nil
	}

	for _, w := range res.Words {
		if w.Confidence < a.cfg.ConfidenceThreshold {
			run = append(run, w)
			continue
		}
		flush()
	}
	flush()

	segments = a.mergeAdjacent(segments)
	return a.splitLong(segments)
}

// buildSegment materialises a run of flagged words into a segment, or reports
// false when the run is empty or below the minimum duration.
func (a *Analyzer) buildSegment(run []transcript.Word, res *transcript.Result) (transcript.UncertainSegment, bool) {
	if len(run) == 0 {
		return transcript.UncertainSegment{}, false
	}

	startMs := run[0].StartMs
	endMs := run[len(run)-1].EndMs
	if endMs-startMs < a.cfg.MinSegmentDurationMs {
		return transcript.UncertainSegment{}, false
	}

	words := make([]transcript.Word, len(run))
	copy(words, run)

	return transcript.UncertainSegment{
		StartMs:           startMs,
		EndMs:             endMs,
		OriginalWords:     words,
		AverageConfidence: transcript.MeanConfidence(words),
		ContextBefore:     res.ContextBefore(startMs, a.cfg.ContextWindowWords),
		ContextAfter:      res.ContextAfter(endMs, a.cfg.ContextWindowWords),
	}, true
}

// mergeAdjacent collapses segments separated by at most the merge gap. The
// merged segment spans both, keeps the earlier segment's leading context and
// the later segment's trailing context, and carries the word-count-weighted
// average confidence.
func (a *Analyzer) mergeAdjacent(segments []transcript.UncertainSegment) []transcript.UncertainSegment {
	if len(segments) == 0 {
		return nil
	}

	merged := []transcript.UncertainSegment{segments[0]}
	for _, seg := range segments[1:] {
		last := &merged[len(merged)-1]
		if seg.StartMs-last.EndMs > a.cfg.MergeGapThresholdMs {
			merged = append(merged, seg)
			continue
		}

		nLast := len(last.OriginalWords)
		nSeg := len(seg.OriginalWords)
		weighted := (last.AverageConfidence*float64(nLast) + seg.AverageConfidence*float64(nSeg)) / float64(nLast+nSeg)

		last.EndMs = seg.EndMs
		last.OriginalWords = append(last.OriginalWords, seg.OriginalWords...)
		last.AverageConfidence = weighted
		last.ContextAfter = seg.ContextAfter
	}
	return merged
}

// splitLong splits segments exceeding the maximum duration into chunks along
// word boundaries. Each chunk inherits the parent segment's contexts.
func (a *Analyzer) splitLong(segments []transcript.UncertainSegment) []transcript.UncertainSegment {
	var result []transcript.UncertainSegment

	for _, seg := range segments {
		if seg.EndMs-seg.StartMs <= a.cfg.MaxSegmentDurationMs {
			result = append(result, seg)
			continue
		}

		var chunk []transcript.Word
		chunkStartMs := seg.OriginalWords[0].StartMs

		emit := func(endMs int64) {
			words := make([]transcript.Word, len(chunk))
			copy(words, chunk)
			result = append(result, transcript.UncertainSegment{
				StartMs:           chunkStartMs,
				EndMs:             endMs,
				OriginalWords:     words,
				AverageConfidence: transcript.MeanConfidence(words),
				ContextBefore:     seg.ContextBefore,
				ContextAfter:      seg.ContextAfter,
			})
		}

		for _, w := range seg.OriginalWords {
			chunk = append(chunk, w)
			if w.EndMs-chunkStartMs >= a.cfg.MaxSegmentDurationMs {
				emit(w.EndMs)
				chunk = nil
				chunkStartMs = w.EndMs
			}
		}
		if len(chunk) > 0 {
			emit(chunk[len(chunk)-1].EndMs)
		}
	}
	return result
}

// Statistics summarises the confidence distribution of a transcription.
type Statistics struct {
	TotalWords              int     `json:"total_words"`
	LowConfidenceWords      int     `json:"low_confidence_words"`
	LowConfidencePercentage float64 `json:"low_confidence_percentage"`
	AverageConfidence       float64 `json:"average_confidence"`
	MinConfidence           float64 `json:"min_confidence"`
	MaxConfidence           float64 `json:"max_confidence"`
	ConfidenceThreshold     float64 `json:"confidence_threshold"`
}

// GetStatistics computes confidence distribution diagnostics for res. An
// empty transcription yields all-zero statistics apart from the threshold.
func (a *Analyzer) GetStatistics(res *transcript.Result) Statistics {
	stats := Statistics{ConfidenceThreshold: a.cfg.ConfidenceThreshold}
	if len(res.Words) == 0 {
		return stats
	}

	stats.TotalWords = len(res.Words)
	stats.MinConfidence = res.Words[0].Confidence
	stats.MaxConfidence = res.Words[0].Confidence

	var sum float64
	for _, w := range res.Words {
		sum += w.Confidence
		if w.Confidence < a.cfg.ConfidenceThreshold {
			stats.LowConfidenceWords++
		}
		if w.Confidence < stats.MinConfidence {
			stats.MinConfidence = w.Confidence
		}
		if w.Confidence > stats.MaxConfidence {
			stats.MaxConfidence = w.Confidence
		}
	}
	stats.AverageConfidence = sum / float64(stats.TotalWords)
	stats.LowConfidencePercentage = float64(stats.LowConfidenceWords) / float64(stats.TotalWords) * 100
	return stats
}
