// Package timeline produces visualization data for a finished job: typed
// markers over the audio axis plus word-level timestamps annotated with
// uncertainty and arbitration metadata.
package timeline

import (
	"fmt"
	"sort"

	"github.com/novahealth/nova/internal/clinical"
	"github.com/novahealth/nova/pkg/transcript"
)

// MarkerType classifies a timeline marker.
type MarkerType string

const (
	// MarkerResolved covers a region the judge arbitrated.
	MarkerResolved MarkerType = "resolved"

	// MarkerActionItem covers a sentence carrying a follow-up task.
	MarkerActionItem MarkerType = "action_item"

	// MarkerNumericValue covers a vital, lab, or dosage mention.
	MarkerNumericValue MarkerType = "numeric_value"
)

// Estimated marker spans for point-in-time events. Action items cover
// roughly a spoken sentence, numeric values a short phrase.
const (
	actionItemSpanMs   = 5000
	numericValueSpanMs = 2000
)

// Marker is one highlighted interval on the playback timeline.
type Marker struct {
	StartMs int64      `json:"start_ms"`
	EndMs   int64      `json:"end_ms"`
	Type    MarkerType `json:"type"`
	Label   string     `json:"label"`

	// Data carries type-specific detail for the frontend tooltip.
	Data map[string]any `json:"data"`
}

// WordStamp is one word prepared for karaoke-style highlighting.
type WordStamp struct {
	Text       string  `json:"text"`
	StartMs    int64   `json:"start_ms"`
	EndMs      int64   `json:"end_ms"`
	Confidence float64 `json:"confidence"`
	Speaker    string  `json:"speaker,omitempty"`

	// Uncertain marks words still below the confidence threshold after
	// merging. Words inside a resolved region are never uncertain.
	Uncertain bool `json:"uncertain"`

	// Resolved marks words replaced by the arbitration pipeline.
	Resolved bool `json:"resolved"`

	// Source is the chosen provider for resolved words, empty otherwise.
	Source string `json:"source,omitempty"`
}

// Timeline is the complete visualization payload for one job.
type Timeline struct {
	DurationMs int64       `json:"duration_ms"`
	Markers    []Marker    `json:"markers"`
	Words      []WordStamp `json:"words"`
}

// Summary counts markers by type.
type Summary struct {
	TotalMarkers    int     `json:"total_markers"`
	ActionItems     int     `json:"action_items"`
	NumericValues   int     `json:"numeric_values"`
	Resolved        int     `json:"resolved"`
	DurationSeconds float64 `json:"duration_seconds"`
}

// Generator builds timelines. ConfidenceThreshold controls which merged
// words are still flagged as uncertain.
type Generator struct {
	ConfidenceThreshold float64
}

// NewGenerator creates a Generator with the given confidence threshold.
func NewGenerator(threshold float64) *Generator {
	return &Generator{ConfidenceThreshold: threshold}
}

// Generate assembles the timeline for a merged transcript, its judge
// decisions, and the extracted clinical data. Markers are sorted by start
// time.
func (g *Generator) Generate(res *transcript.Result, decisions []*transcript.Decision, ex clinical.Extraction) Timeline {
	markers := make([]Marker, 0, len(decisions)+len(ex.ActionItems)+len(ex.NumericValues))

	for _, d := range decisions {
		markers = append(markers, Marker{
			StartMs: d.Segment.StartMs,
			EndMs:   d.Segment.EndMs,
			Type:    MarkerResolved,
			Label:   "Resolved: " + d.ChosenSource,
			Data: map[string]any{
				"chosen_source":       d.ChosenSource,
				"reasoning":           d.Reasoning,
				"original_confidence": d.Segment.AverageConfidence,
				"new_confidence":      d.ConfidenceBoost,
				"was_synthesized":     d.WasSynthesized,
			},
		})
	}

	for _, a := range ex.ActionItems {
		markers = append(markers, Marker{
			StartMs: a.TimestampMs,
			EndMs:   a.TimestampMs + actionItemSpanMs,
			Type:    MarkerActionItem,
			Label:   fmt.Sprintf("%s: %s", a.Category, truncate(a.Text, 30)),
			Data: map[string]any{
				"text":     a.Text,
				"category": string(a.Category),
				"priority": string(a.Priority),
				"keywords": a.Keywords,
			},
		})
	}

	for _, n := range ex.NumericValues {
		markers = append(markers, Marker{
			StartMs: n.TimestampMs,
			EndMs:   n.TimestampMs + numericValueSpanMs,
			Type:    MarkerNumericValue,
			Label:   fmt.Sprintf("%s: %s%s", n.Label, n.Value, n.Unit),
			Data: map[string]any{
				"value":    n.Value,
				"unit":     n.Unit,
				"category": string(n.Category),
				"label":    n.Label,
				"raw_text": n.RawText,
			},
		})
	}

	sort.SliceStable(markers, func(i, j int) bool {
		return markers[i].StartMs < markers[j].StartMs
	})

	return Timeline{
		DurationMs: res.DurationMs,
		Markers:    markers,
		Words:      g.wordStamps(res, decisions),
	}
}

// Summarize counts the markers of a generated timeline by type.
func Summarize(tl Timeline) Summary {
	s := Summary{
		TotalMarkers:    len(tl.Markers),
		DurationSeconds: float64(tl.DurationMs) / 1000,
	}
	for _, m := range tl.Markers {
		switch m.Type {
		case MarkerActionItem:
			s.ActionItems++
		case MarkerNumericValue:
			s.NumericValues++
		case MarkerResolved:
			s.Resolved++
		}
	}
	return s
}

// wordStamps annotates every merged word with its arbitration status.
func (g *Generator) wordStamps(res *transcript.Result, decisions []*transcript.Decision) []WordStamp {
	stamps := make([]WordStamp, 0, len(res.Words))
	for _, w := range res.Words {
		stamp := WordStamp{
			Text:       w.Text,
			StartMs:    w.StartMs,
			EndMs:      w.EndMs,
			Confidence: w.Confidence,
			Speaker:    w.Speaker,
		}

		for _, d := range decisions {
			if w.StartMs >= d.Segment.StartMs && w.EndMs <= d.Segment.EndMs {
				stamp.Resolved = true
				stamp.Source = d.ChosenSource
				break
			}
		}
		stamp.Uncertain = w.Confidence < g.ConfidenceThreshold && !stamp.Resolved

		stamps = append(stamps, stamp)
	}
	return stamps
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
