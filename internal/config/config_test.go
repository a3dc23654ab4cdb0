package config_test

import (
	"strings"
	"testing"

	"github.com/novahealth/nova/internal/config"
)

func TestLoadFromReader_FullConfig(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_addr: ":9090"
  log_level: debug
  upload_dir: /var/lib/nova/uploads
  max_upload_mb: 250
providers:
  deepgram:
    api_key: dg-key
    model: nova-2-medical
  assemblyai:
    api_key: aai-key
  whisper:
    api_key: sk-whisper
  judge:
    backend: openai
    api_key: sk-judge
    model: gpt-4o
database:
  dsn: "postgres://localhost/nova?sslmode=disable"
orchestrator:
  primary_provider: deepgram
  confidence_threshold: 0.8
  min_segment_ms: 600
  max_segment_ms: 12000
  context_window_words: 40
  merge_gap_ms: 800
  segment_padding_ms: 150
  language: de
  vocabulary: [metoprolol, lisinopril]
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != ":9090" {
		t.Errorf("listen_addr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogDebug {
		t.Errorf("log_level = %q", cfg.Server.LogLevel)
	}
	if cfg.Server.MaxUploadMB != 250 {
		t.Errorf("max_upload_mb = %d", cfg.Server.MaxUploadMB)
	}
	if cfg.Providers.Deepgram.Model != "nova-2-medical" {
		t.Errorf("deepgram model = %q", cfg.Providers.Deepgram.Model)
	}
	if cfg.Providers.Judge.Backend != config.JudgeBackendOpenAI {
		t.Errorf("judge backend = %q", cfg.Providers.Judge.Backend)
	}
	if cfg.Database.DSN == "" {
		t.Error("database dsn not parsed")
	}

	o := cfg.Orchestrator
	if o.ConfidenceThreshold != 0.8 || o.MinSegmentMs != 600 || o.MaxSegmentMs != 12000 {
		t.Errorf("orchestrator tuning not parsed: %+v", o)
	}
	if o.Language != "de" {
		t.Errorf("language = %q", o.Language)
	}
	if len(o.Vocabulary) != 2 {
		t.Errorf("vocabulary = %v", o.Vocabulary)
	}
}

func TestLoadFromReader_DefaultsApplied(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader("providers:\n  deepgram:\n    api_key: x\n"))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}

	if cfg.Server.ListenAddr != config.DefaultListenAddr {
		t.Errorf("listen_addr = %q, want default", cfg.Server.ListenAddr)
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want info", cfg.Server.LogLevel)
	}
	if cfg.Providers.Judge.Backend != config.JudgeBackendOpenAI {
		t.Errorf("judge backend = %q, want openai", cfg.Providers.Judge.Backend)
	}
	if cfg.Providers.Judge.Model != config.DefaultJudgeModel {
		t.Errorf("judge model = %q, want default", cfg.Providers.Judge.Model)
	}

	o := cfg.Orchestrator
	if o.PrimaryProvider != "deepgram" {
		t.Errorf("primary_provider = %q, want deepgram", o.PrimaryProvider)
	}
	if o.ConfidenceThreshold != 0.75 {
		t.Errorf("confidence_threshold = %f, want 0.75", o.ConfidenceThreshold)
	}
	if o.MinSegmentMs != 500 || o.MaxSegmentMs != 10000 {
		t.Errorf("segment bounds = %d/%d, want 500/10000", o.MinSegmentMs, o.MaxSegmentMs)
	}
	if o.ContextWindowWords != 50 || o.MergeGapMs != 1000 || o.SegmentPaddingMs != 100 {
		t.Errorf("tuning defaults wrong: %+v", o)
	}
	if o.Language != "en" {
		t.Errorf("language = %q, want en", o.Language)
	}
}

func TestLoadFromReader_EnvExpansion(t *testing.T) {
	t.Setenv("NOVA_TEST_DG_KEY", "dg-secret")

	yaml := `
providers:
  deepgram:
    api_key: ${NOVA_TEST_DG_KEY}
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Providers.Deepgram.APIKey != "dg-secret" {
		t.Errorf("api_key = %q, want expanded env value", cfg.Providers.Deepgram.APIKey)
	}
}

func TestLoadFromReader_UnknownFieldRejected(t *testing.T) {
	t.Parallel()
	yaml := `
server:
  listen_adr: ":8080"
`
	if _, err := config.LoadFromReader(strings.NewReader(yaml)); err == nil {
		t.Fatal("misspelled field must be rejected")
	}
}
