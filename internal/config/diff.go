package config

import "slices"

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; credential or
// network changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// TuningChanged is true if any orchestrator analysis knob changed.
	// Running jobs keep their parameters; new jobs pick up the new values.
	TuningChanged bool

	// VocabularyChanged is true if the vocabulary boost list changed.
	VocabularyChanged bool
}

// Any reports whether the diff carries at least one change.
func (d ConfigDiff) Any() bool {
	return d.LogLevelChanged || d.TuningChanged || d.VocabularyChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	oo, no := old.Orchestrator, new.Orchestrator
	if oo.ConfidenceThreshold != no.ConfidenceThreshold ||
		oo.MinSegmentMs != no.MinSegmentMs ||
		oo.MaxSegmentMs != no.MaxSegmentMs ||
		oo.ContextWindowWords != no.ContextWindowWords ||
		oo.MergeGapMs != no.MergeGapMs ||
		oo.SegmentPaddingMs != no.SegmentPaddingMs {
		d.TuningChanged = true
	}

	if !slices.Equal(oo.Vocabulary, no.Vocabulary) {
		d.VocabularyChanged = true
	}

	return d
}
