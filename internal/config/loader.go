package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"gopkg.in/yaml.v3"
)

// Defaults applied by [ApplyDefaults] to zero-valued fields.
const (
	DefaultListenAddr          = ":8080"
	DefaultMaxUploadMB         = 100
	DefaultUploadDirName       = "nova-uploads"
	DefaultPrimaryProvider     = "deepgram"
	DefaultConfidenceThreshold = 0.75
	DefaultMinSegmentMs        = 500
	DefaultMaxSegmentMs        = 10000
	DefaultContextWindowWords  = 50
	DefaultMergeGapMs          = 1000
	DefaultSegmentPaddingMs    = 100
	DefaultLanguage            = "en"
	DefaultJudgeModel          = "gpt-4o"
)

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, expands ${ENV_VAR} references
// against the process environment, applies defaults, and validates the
// result. Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("config: read: %w", err)
	}
	expanded := os.Expand(string(raw), func(key string) string {
		return os.Getenv(key)
	})

	cfg := &Config{}
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}

	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyDefaults fills zero-valued fields with their documented defaults.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = DefaultMaxUploadMB
	}
	if cfg.Server.UploadDir == "" {
		cfg.Server.UploadDir = filepath.Join(os.TempDir(), DefaultUploadDirName)
	}

	if cfg.Providers.Judge.Backend == "" {
		cfg.Providers.Judge.Backend = JudgeBackendOpenAI
	}
	if cfg.Providers.Judge.Model == "" {
		cfg.Providers.Judge.Model = DefaultJudgeModel
	}

	o := &cfg.Orchestrator
	if o.PrimaryProvider == "" {
		o.PrimaryProvider = DefaultPrimaryProvider
	}
	if o.ConfidenceThreshold == 0 {
		o.ConfidenceThreshold = DefaultConfidenceThreshold
	}
	if o.MinSegmentMs == 0 {
		o.MinSegmentMs = DefaultMinSegmentMs
	}
	if o.MaxSegmentMs == 0 {
		o.MaxSegmentMs = DefaultMaxSegmentMs
	}
	if o.ContextWindowWords == 0 {
		o.ContextWindowWords = DefaultContextWindowWords
	}
	if o.MergeGapMs == 0 {
		o.MergeGapMs = DefaultMergeGapMs
	}
	if o.SegmentPaddingMs == 0 {
		o.SegmentPaddingMs = DefaultSegmentPaddingMs
	}
	if o.Language == "" {
		o.Language = DefaultLanguage
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.MaxUploadMB < 0 {
		errs = append(errs, fmt.Errorf("server.max_upload_mb %d must be positive", cfg.Server.MaxUploadMB))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Judge
	if !cfg.Providers.Judge.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("providers.judge.backend %q is invalid; valid values: openai, anyllm", cfg.Providers.Judge.Backend))
	}
	if cfg.Providers.Judge.Backend == JudgeBackendAnyLLM && cfg.Providers.Judge.Provider == "" {
		errs = append(errs, errors.New("providers.judge.provider is required when backend is anyllm"))
	}

	// Orchestrator
	o := cfg.Orchestrator
	if !slices.Contains(KnownSTTProviders, o.PrimaryProvider) {
		errs = append(errs, fmt.Errorf("orchestrator.primary_provider %q is unknown; valid values: %v", o.PrimaryProvider, KnownSTTProviders))
	}
	if o.ConfidenceThreshold < 0 || o.ConfidenceThreshold > 1 {
		errs = append(errs, fmt.Errorf("orchestrator.confidence_threshold %.2f is out of range [0, 1]", o.ConfidenceThreshold))
	}
	if o.MinSegmentMs < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.min_segment_ms %d must be positive", o.MinSegmentMs))
	}
	if o.MaxSegmentMs < o.MinSegmentMs {
		errs = append(errs, fmt.Errorf("orchestrator.max_segment_ms %d must be at least min_segment_ms %d", o.MaxSegmentMs, o.MinSegmentMs))
	}
	if o.ContextWindowWords < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.context_window_words %d must be positive", o.ContextWindowWords))
	}
	if o.MergeGapMs < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.merge_gap_ms %d must be positive", o.MergeGapMs))
	}
	if o.SegmentPaddingMs < 0 {
		errs = append(errs, fmt.Errorf("orchestrator.segment_padding_ms %d must be positive", o.SegmentPaddingMs))
	}

	// Credential availability warnings. The service still starts so that
	// health and metrics endpoints come up, but jobs will fail.
	if cfg.Providers.Deepgram.APIKey == "" && o.PrimaryProvider == "deepgram" {
		slog.Warn("providers.deepgram.api_key is empty; the primary pass will fail")
	}
	if cfg.Providers.Judge.APIKey == "" {
		slog.Warn("providers.judge.api_key is empty; arbitration will fall back to highest-confidence selection")
	}
	if cfg.Database.DSN == "" {
		slog.Warn("database.dsn is empty; job records are kept in memory and lost on restart")
	}

	return errors.Join(errs...)
}
