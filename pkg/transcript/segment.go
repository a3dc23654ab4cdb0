package transcript

// SourceSynthesized is the sentinel chosen-source value recorded when the
// judge produced its own text instead of selecting a candidate.
const SourceSynthesized = "synthesized"

// UncertainSegment is a contiguous low-confidence time interval flagged by
// the confidence analyzer for re-transcription.
type UncertainSegment struct {
	// StartMs and EndMs bound the interval; StartMs < EndMs.
	StartMs int64 `json:"start_ms"`
	EndMs   int64 `json:"end_ms"`

	// OriginalWords are the contiguous low-confidence words from the primary
	// result that lie in [StartMs, EndMs].
	OriginalWords []Word `json:"original_words"`

	// AverageConfidence is the mean confidence of OriginalWords.
	AverageConfidence float64 `json:"average_confidence"`

	// ContextBefore and ContextAfter carry up to the configured number of
	// surrounding words from the primary transcript, joined with spaces.
	// They are advisory context for the judge, not part of the segment.
	ContextBefore string `json:"context_before"`
	ContextAfter  string `json:"context_after"`
}

// DurationMs returns the segment duration in milliseconds.
func (s UncertainSegment) DurationMs() int64 {
	return s.EndMs - s.StartMs
}

// OriginalText returns the single-space join of the original word texts.
func (s UncertainSegment) OriginalText() string {
	return JoinWords(s.OriginalWords)
}

// Candidate is one provider's proposal for an uncertain segment.
type Candidate struct {
	// SourceName is the provider key (e.g. "deepgram").
	SourceName string `json:"source_name"`

	// Text is the candidate transcription for the segment.
	Text string `json:"text"`

	// Confidence is the provider's overall confidence for the candidate.
	Confidence float64 `json:"confidence"`

	// Words holds word-level detail, re-anchored to the original audio axis.
	Words []Word `json:"words"`
}

// Decision is the judge's ruling over one uncertain segment.
type Decision struct {
	// Segment is the uncertain segment being resolved.
	Segment UncertainSegment `json:"segment"`

	// Candidates maps provider name to the candidate it produced. Providers
	// that failed for this segment are absent.
	Candidates map[string]Candidate `json:"candidates"`

	// ChosenSource is a provider name or SourceSynthesized.
	ChosenSource string `json:"chosen_source"`

	// FinalText is the text the judge endorsed.
	FinalText string `json:"final_text"`

	// Reasoning is the judge's free-form explanation.
	Reasoning string `json:"reasoning"`

	// ConfidenceBoost is the confidence assigned to every word of the
	// accepted region, in [0.0, 1.0].
	ConfidenceBoost float64 `json:"confidence_boost"`

	// WasSynthesized reports whether ChosenSource == SourceSynthesized.
	WasSynthesized bool `json:"was_synthesized"`

	// SynthesisJustification explains why every candidate was rejected.
	// Present iff WasSynthesized.
	SynthesisJustification string `json:"synthesis_justification,omitempty"`
}

// CandidateTexts returns just the text of each candidate, keyed by source.
func (d Decision) CandidateTexts() map[string]string {
	out := make(map[string]string, len(d.Candidates))
	for name, c := range d.Candidates {
		out[name] = c.Text
	}
	return out
}
