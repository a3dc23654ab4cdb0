package config_test

import (
	"testing"

	"github.com/novahealth/nova/internal/config"
)

func baseConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	return cfg
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()

	if d := config.Diff(old, new); d.Any() {
		t.Errorf("identical configs must produce an empty diff, got %+v", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("log level change not detected")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("new log level = %q, want debug", d.NewLogLevel)
	}
	if d.TuningChanged || d.VocabularyChanged {
		t.Error("unrelated change flags set")
	}
}

func TestDiff_Tuning(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Orchestrator.ConfidenceThreshold = 0.85

	d := config.Diff(old, new)
	if !d.TuningChanged {
		t.Error("tuning change not detected")
	}
	if d.LogLevelChanged {
		t.Error("log level flagged without change")
	}
}

func TestDiff_Vocabulary(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Orchestrator.Vocabulary = []string{"metformin"}

	d := config.Diff(old, new)
	if !d.VocabularyChanged {
		t.Error("vocabulary change not detected")
	}
	if !d.Any() {
		t.Error("Any() must report the change")
	}
}

func TestDiff_CredentialChangeIgnored(t *testing.T) {
	t.Parallel()
	old, new := baseConfig(), baseConfig()
	new.Providers.Deepgram.APIKey = "rotated"

	// Credential changes require a restart and are not hot-reloadable.
	if d := config.Diff(old, new); d.Any() {
		t.Errorf("credential change must not appear in the diff, got %+v", d)
	}
}
