// Package clinical extracts structured clinical data from merged
// transcripts: action items, numeric values (vitals, labs, dosages),
// recognized medical terminology, and important phrases.
//
// Extraction is pattern based. It is a convenience layer over the final
// transcript, not a medical-coding system.
package clinical

// ActionCategory classifies an action item.
type ActionCategory string

const (
	CategoryPrescription ActionCategory = "prescription"
	CategoryFollowUp     ActionCategory = "follow_up"
	CategoryReferral     ActionCategory = "referral"
	CategoryTest         ActionCategory = "test"
)

// Priority is the urgency of an action item.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NumericCategory classifies an extracted numeric value.
type NumericCategory string

const (
	NumericVital       NumericCategory = "vital"
	NumericLab         NumericCategory = "lab"
	NumericMeasurement NumericCategory = "measurement"
	NumericDosage      NumericCategory = "dosage"
)

// ActionItem is a follow-up task mentioned during the encounter.
type ActionItem struct {
	// Text is the full sentence containing the action.
	Text string `json:"text"`

	Category ActionCategory `json:"category"`
	Priority Priority       `json:"priority"`

	// TimestampMs locates the sentence on the audio axis.
	TimestampMs int64 `json:"timestamp_ms"`

	// Keywords are the matched trigger words.
	Keywords []string `json:"keywords"`
}

// NumericValue is a measured or prescribed quantity found in the transcript.
type NumericValue struct {
	// Value is the matched number, e.g. "120/80" or "98.6".
	Value string `json:"value"`

	// Unit is the unit of measure, empty when unknown.
	Unit string `json:"unit,omitempty"`

	Category NumericCategory `json:"category"`

	// Label is a human-readable name, e.g. "Blood Pressure".
	Label string `json:"label"`

	TimestampMs int64 `json:"timestamp_ms"`

	// RawText is the matched substring of the transcript.
	RawText string `json:"raw_text"`
}

// Extraction is the complete clinical extraction for one transcript.
type Extraction struct {
	ActionItems      []ActionItem   `json:"action_items"`
	NumericValues    []NumericValue `json:"numeric_values"`
	ImportantPhrases []string       `json:"important_phrases"`
	MedicalTerms     []string       `json:"medical_terms"`
}
