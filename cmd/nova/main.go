// Command nova runs the multi-model medical transcription server.
//
// It loads a YAML config, wires the configured STT providers and LLM judge
// into the orchestration pipeline, and serves the HTTP API until SIGINT or
// SIGTERM. The config file is watched for changes; log level, analysis
// tuning, and the vocabulary boost list apply without a restart.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/novahealth/nova/internal/analyzer"
	"github.com/novahealth/nova/internal/api"
	"github.com/novahealth/nova/internal/config"
	"github.com/novahealth/nova/internal/health"
	"github.com/novahealth/nova/internal/jobstore"
	"github.com/novahealth/nova/internal/judge"
	"github.com/novahealth/nova/internal/observe"
	"github.com/novahealth/nova/internal/orchestrator"
	"github.com/novahealth/nova/pkg/audio"
	"github.com/novahealth/nova/pkg/provider/llm"
	"github.com/novahealth/nova/pkg/provider/llm/anyllm"
	openaillm "github.com/novahealth/nova/pkg/provider/llm/openai"
	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/provider/stt/assemblyai"
	"github.com/novahealth/nova/pkg/provider/stt/deepgram"
	"github.com/novahealth/nova/pkg/provider/stt/whisper"
	"github.com/novahealth/nova/pkg/transcript"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	envFile := flag.String("env", ".env", "path to an optional dotenv file with API keys")
	flag.Parse()

	// Load the dotenv file before the config so ${VAR} expansion sees it.
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "nova: load env file %q: %v\n", *envFile, err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "nova: %v\n", err)
		return 1
	}

	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "nova"})
	if err != nil {
		slog.Error("init telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(flushCtx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()

	pipe, err := newPipeline(cfg)
	if err != nil {
		slog.Error("build pipeline", "err", err)
		return 1
	}

	checkers := []health.Checker{{
		Name: "ffmpeg",
		Check: func(context.Context) error {
			_, err := exec.LookPath("ffmpeg")
			return err
		},
	}}

	var store jobstore.Store
	if dsn := cfg.Database.DSN; dsn != "" {
		pgStore, pool, err := jobstore.Connect(ctx, dsn)
		if err != nil {
			slog.Error("connect job store", "err", err)
			return 1
		}
		defer pool.Close()
		store = pgStore
		checkers = append(checkers, health.PingChecker("database", pool))
		slog.Info("job store ready", "backend", "postgres")
	} else {
		store = jobstore.NewMemoryStore()
		slog.Warn("no database configured, jobs are kept in memory and lost on restart")
	}

	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.TuningChanged || d.VocabularyChanged {
			if err := pipe.rebuild(new); err != nil {
				slog.Error("config reload failed, keeping previous pipeline", "err", err)
				return
			}
			slog.Info("pipeline settings reloaded",
				"tuning_changed", d.TuningChanged, "vocabulary_changed", d.VocabularyChanged)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg, pipe.providerNames())

	srv := api.New(cfg.Server, cfg.Orchestrator, store, pipe,
		api.WithLogger(logger),
		api.WithHealth(health.New(checkers...)),
	)

	if err := srv.Run(ctx); err != nil {
		slog.Error("server error", "err", err)
		return 1
	}
	slog.Info("shutdown complete")
	return 0
}

// pipeline is the api.Processor handed to the server. Config reloads swap
// the orchestrator atomically; jobs already running keep the settings they
// started with.
type pipeline struct {
	cur atomic.Pointer[pipelineState]
}

type pipelineState struct {
	orch       *orchestrator.Orchestrator
	vocabulary []string
	providers  []string
}

func newPipeline(cfg *config.Config) (*pipeline, error) {
	p := &pipeline{}
	if err := p.rebuild(cfg); err != nil {
		return nil, err
	}
	return p, nil
}

// rebuild constructs a fresh orchestrator from cfg and publishes it.
// On error the previous state stays active.
func (p *pipeline) rebuild(cfg *config.Config) error {
	o := cfg.Orchestrator

	extractor := audio.NewExtractor(audio.WithPadding(o.SegmentPaddingMs))
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, extractor)

	var providers []stt.Provider
	var names []string
	for _, name := range config.KnownSTTProviders {
		entry := sttEntry(cfg, name)
		if entry.APIKey == "" {
			if name == o.PrimaryProvider {
				return fmt.Errorf("primary provider %q has no API key configured", name)
			}
			slog.Warn("stt provider not configured, skipping", "provider", name)
			continue
		}
		prov, err := reg.CreateSTT(name, entry)
		if err != nil {
			return fmt.Errorf("create stt provider %q: %w", name, err)
		}
		providers = append(providers, prov)
		names = append(names, name)
	}

	judgeLLM, err := reg.CreateJudge(cfg.Providers.Judge)
	if err != nil {
		return fmt.Errorf("create judge backend: %w", err)
	}

	// The judge lists the primary source first; order carries into its
	// prompt and the deterministic fallback.
	sources := make([]string, 0, len(names))
	sources = append(sources, o.PrimaryProvider)
	for _, name := range names {
		if name != o.PrimaryProvider {
			sources = append(sources, name)
		}
	}
	j, err := judge.New(judgeLLM, sources)
	if err != nil {
		return fmt.Errorf("create judge: %w", err)
	}

	a := analyzer.New(analyzer.Config{
		ConfidenceThreshold:  o.ConfidenceThreshold,
		MinSegmentDurationMs: o.MinSegmentMs,
		MaxSegmentDurationMs: o.MaxSegmentMs,
		ContextWindowWords:   o.ContextWindowWords,
		MergeGapThresholdMs:  o.MergeGapMs,
	})

	orch, err := orchestrator.New(providers, o.PrimaryProvider, a, j,
		orchestrator.WithLanguage(o.Language),
	)
	if err != nil {
		return fmt.Errorf("create orchestrator: %w", err)
	}

	p.cur.Store(&pipelineState{orch: orch, vocabulary: o.Vocabulary, providers: names})
	return nil
}

// ProcessAudio runs one job against the current pipeline state. The
// reloaded vocabulary wins over the one captured at server start.
func (p *pipeline) ProcessAudio(ctx context.Context, audioPath string, vocabulary []string) (*transcript.Result, []*transcript.Decision, error) {
	st := p.cur.Load()
	if len(st.vocabulary) > 0 {
		vocabulary = st.vocabulary
	}
	return st.orch.ProcessAudio(ctx, audioPath, vocabulary)
}

func (p *pipeline) providerNames() []string {
	return p.cur.Load().providers
}

// registerBuiltinProviders wires the compiled-in provider SDKs into the
// registry. The shared extractor keeps segment padding consistent across
// providers.
func registerBuiltinProviders(reg *config.Registry, extractor *audio.Extractor) {
	reg.RegisterSTT(deepgram.ProviderName, func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []deepgram.Option{deepgram.WithExtractor(extractor)}
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithBaseURL(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT(assemblyai.ProviderName, func(entry config.ProviderEntry) (stt.Provider, error) {
		opts := []assemblyai.Option{assemblyai.WithExtractor(extractor)}
		if entry.BaseURL != "" {
			opts = append(opts, assemblyai.WithBaseURL(entry.BaseURL))
		}
		return assemblyai.New(entry.APIKey, opts...)
	})

	reg.RegisterSTT(whisper.ProviderName, func(entry config.ProviderEntry) (stt.Provider, error) {
		return whisper.New(entry.APIKey, whisper.WithExtractor(extractor))
	})

	reg.RegisterJudge(config.JudgeBackendOpenAI, func(jc config.JudgeConfig) (llm.Provider, error) {
		var opts []openaillm.Option
		if jc.BaseURL != "" {
			opts = append(opts, openaillm.WithBaseURL(jc.BaseURL))
		}
		return openaillm.New(jc.APIKey, jc.Model, opts...)
	})

	reg.RegisterJudge(config.JudgeBackendAnyLLM, func(jc config.JudgeConfig) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if jc.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(jc.APIKey))
		}
		if jc.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(jc.BaseURL))
		}
		return anyllm.New(jc.Provider, jc.Model, opts...)
	})
}

// sttEntry returns the config block for the named STT provider.
func sttEntry(cfg *config.Config, name string) config.ProviderEntry {
	switch name {
	case deepgram.ProviderName:
		return cfg.Providers.Deepgram
	case assemblyai.ProviderName:
		return cfg.Providers.AssemblyAI
	case whisper.ProviderName:
		return cfg.Providers.Whisper
	default:
		return config.ProviderEntry{}
	}
}

func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func printStartupSummary(cfg *config.Config, providers []string) {
	judgeModel := cfg.Providers.Judge.Model
	if cfg.Providers.Judge.Backend == config.JudgeBackendAnyLLM {
		judgeModel = cfg.Providers.Judge.Provider + "/" + judgeModel
	}
	backend := "memory"
	if cfg.Database.DSN != "" {
		backend = "postgres"
	}

	slog.Info("nova starting",
		"listen_addr", cfg.Server.ListenAddr,
		"tls", cfg.Server.TLS != nil,
		"primary", cfg.Orchestrator.PrimaryProvider,
		"providers", providers,
		"judge", judgeModel,
		"job_store", backend,
		"confidence_threshold", cfg.Orchestrator.ConfidenceThreshold,
	)
}
