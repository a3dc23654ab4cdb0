package orchestrator

import (
	"fmt"
	"strings"

	"github.com/novahealth/nova/pkg/transcript"
)

// mergeDecisions rebuilds the transcript from the primary result and the
// ordered decision log.
//
// The walk is a single pass over the primary words with one pointer into the
// decisions. A primary word that falls inside the next pending decision's
// segment switches the walk into replace mode: the segment's replacement
// words are emitted once, every primary word covered by the segment is
// consumed, and the decision pointer advances. Words outside any segment are
// copied verbatim. The pass is deterministic, so merging the same inputs
// twice yields identical output.
func mergeDecisions(primary *transcript.Result, decisions []*transcript.Decision) (*transcript.Result, error) {
	if len(decisions) == 0 {
		return primary, nil
	}
	for _, d := range decisions {
		if d.Segment.EndMs > primary.DurationMs {
			return nil, fmt.Errorf("decision segment [%dms-%dms] exceeds primary duration %dms",
				d.Segment.StartMs, d.Segment.EndMs, primary.DurationMs)
		}
	}

	merged := make([]transcript.Word, 0, len(primary.Words))
	decisionIdx := 0
	i := 0

	for i < len(primary.Words) {
		word := primary.Words[i]

		if decisionIdx < len(decisions) {
			d := decisions[decisionIdx]
			seg := d.Segment

			if word.StartMs >= seg.StartMs && word.EndMs <= seg.EndMs {
				merged = append(merged, replacementWords(d)...)

				// Consume every primary word covered by the segment.
				for i < len(primary.Words) && primary.Words[i].EndMs <= seg.EndMs {
					i++
				}
				decisionIdx++
				continue
			}
		}

		merged = append(merged, word)
		i++
	}

	overall := transcript.MeanConfidence(merged)
	if len(merged) == 0 {
		overall = primary.OverallConfidence
	}

	return &transcript.Result{
		FullText:          transcript.JoinWords(merged),
		Words:             merged,
		OverallConfidence: overall,
		DurationMs:        primary.DurationMs,
		Language:          primary.Language,
		ModelName:         MergedModelName,
	}, nil
}

// replacementWords produces the word list that stands in for a decision's
// segment in the merged transcript.
func replacementWords(d *transcript.Decision) []transcript.Word {
	if d.WasSynthesized {
		return synthesizeWords(d.FinalText, d.Segment.StartMs, d.Segment.EndMs, d.ConfidenceBoost)
	}

	if cand, ok := d.Candidates[d.ChosenSource]; ok {
		words := make([]transcript.Word, len(cand.Words))
		for i, cw := range cand.Words {
			words[i] = transcript.Word{
				Text:       cw.Text,
				StartMs:    cw.StartMs,
				EndMs:      cw.EndMs,
				Confidence: d.ConfidenceBoost,
				Speaker:    cw.Speaker,
			}
		}
		return words
	}

	// Chosen source has no candidate (provider failed): keep the original
	// words at the boosted confidence.
	words := make([]transcript.Word, len(d.Segment.OriginalWords))
	for i, ow := range d.Segment.OriginalWords {
		words[i] = transcript.Word{
			Text:       ow.Text,
			StartMs:    ow.StartMs,
			EndMs:      ow.EndMs,
			Confidence: d.ConfidenceBoost,
			Speaker:    ow.Speaker,
		}
	}
	return words
}

// synthesizeWords splits text on whitespace and distributes the segment
// duration evenly across the tokens. Synthesized words carry no speaker; the
// judge invented the text, so no alignment exists to attribute it.
func synthesizeWords(text string, startMs, endMs int64, confidence float64) []transcript.Word {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return nil
	}

	span := endMs - startMs
	words := make([]transcript.Word, len(tokens))
	for i, tok := range tokens {
		ws := startMs + span*int64(i)/int64(len(tokens))
		we := startMs + span*int64(i+1)/int64(len(tokens))
		words[i] = transcript.Word{
			Text:       tok,
			StartMs:    ws,
			EndMs:      we,
			Confidence: confidence,
		}
	}
	return words
}
