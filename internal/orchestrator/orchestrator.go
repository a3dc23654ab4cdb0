// Package orchestrator coordinates the multi-model transcription pipeline.
//
// One run transcribes the whole file with the primary provider, flags
// low-confidence regions, re-transcribes each region with every configured
// provider in parallel, lets the judge arbitrate per region, and merges the
// rulings back into a single transcript with a decision log.
//
// Detection is cheap and local; arbitration is expensive and LLM-bound.
// Keeping them separate bounds cost to the uncertain fraction of the audio,
// and the single-pass merge keeps the final timeline monotonic.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/novahealth/nova/internal/analyzer"
	"github.com/novahealth/nova/internal/judge"
	"github.com/novahealth/nova/internal/observe"
	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/transcript"
)

// MergedModelName marks transcripts assembled from multiple providers.
const MergedModelName = "orchestrated"

// DefaultVocabulary is the clinical term list passed to providers when the
// caller supplies none.
var DefaultVocabulary = []string{
	"hypertension", "diabetes", "cholesterol", "hemoglobin",
	"prescription", "medication", "diagnosis", "symptoms",
	"blood pressure", "heart rate", "temperature", "oxygen",
	"milligrams", "milliliters", "units", "dosage",
}

// Option is a functional option for Orchestrator.
type Option func(*Orchestrator)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithMetrics replaces the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLanguage sets the transcription language hint. Default "en".
func WithLanguage(lang string) Option {
	return func(o *Orchestrator) {
		o.language = lang
	}
}

// WithDiarization toggles speaker labels on the primary pass. Default on.
func WithDiarization(enabled bool) Option {
	return func(o *Orchestrator) {
		o.diarize = enabled
	}
}

// Orchestrator runs the full pipeline for one audio file per ProcessAudio
// call. Safe for concurrent use; runs share no mutable state.
type Orchestrator struct {
	providers map[string]stt.Provider
	order     []string
	primary   string

	analyzer *analyzer.Analyzer
	judge    judge.Judge

	language string
	diarize  bool

	log     *slog.Logger
	metrics *observe.Metrics
}

// New creates an Orchestrator. providers must be non-empty and contain
// primary; every provider name must be unique.
func New(providers []stt.Provider, primary string, a *analyzer.Analyzer, j judge.Judge, opts ...Option) (*Orchestrator, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("orchestrator: at least one provider is required")
	}
	if a == nil {
		return nil, fmt.Errorf("orchestrator: analyzer must not be nil")
	}
	if j == nil {
		return nil, fmt.Errorf("orchestrator: judge must not be nil")
	}

	byName := make(map[string]stt.Provider, len(providers))
	order := make([]string, 0, len(providers))
	for _, p := range providers {
		name := p.Name()
		if _, dup := byName[name]; dup {
			return nil, fmt.Errorf("orchestrator: duplicate provider %q", name)
		}
		byName[name] = p
		order = append(order, name)
	}
	if _, ok := byName[primary]; !ok {
		return nil, fmt.Errorf("orchestrator: primary provider %q not configured", primary)
	}

	o := &Orchestrator{
		providers: byName,
		order:     order,
		primary:   primary,
		analyzer:  a,
		judge:     j,
		language:  "en",
		diarize:   true,
		log:       slog.Default(),
		metrics:   observe.DefaultMetrics(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// ProcessAudio transcribes audioPath end to end and returns the final
// transcript together with the decision log, ordered by segment start.
//
// A failed primary pass fails the whole run. Per-segment provider failures
// only remove that provider's candidate; the judge still rules on the rest.
func (o *Orchestrator) ProcessAudio(ctx context.Context, audioPath string, vocabulary []string) (*transcript.Result, []*transcript.Decision, error) {
	runStart := time.Now()
	defer func() {
		o.metrics.OrchestrationDuration.Record(ctx, time.Since(runStart).Seconds())
	}()

	if _, err := os.Stat(audioPath); err != nil {
		return nil, nil, fmt.Errorf("orchestrator: audio file: %w", err)
	}
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}

	primary, err := o.primaryPass(ctx, audioPath, vocabulary)
	if err != nil {
		return nil, nil, err
	}

	segments := o.analyzer.IdentifyUncertainSegments(primary)
	o.metrics.UncertainSegments.Add(ctx, int64(len(segments)))
	o.log.Info("confidence analysis complete",
		"audio_path", audioPath,
		"words", len(primary.Words),
		"uncertain_segments", len(segments))

	if len(segments) == 0 {
		return primary, nil, nil
	}

	decisions := make([]*transcript.Decision, 0, len(segments))
	for i, seg := range segments {
		decision, err := o.arbitrateSegment(ctx, audioPath, seg)
		if err != nil {
			return nil, nil, fmt.Errorf("orchestrator: segment %d/%d [%dms-%dms]: %w",
				i+1, len(segments), seg.StartMs, seg.EndMs, err)
		}
		decisions = append(decisions, decision)
	}

	final, err := mergeDecisions(primary, decisions)
	if err != nil {
		return nil, nil, fmt.Errorf("orchestrator: merge: %w", err)
	}
	return final, decisions, nil
}

// primaryPass runs the full-file transcription on the primary provider.
func (o *Orchestrator) primaryPass(ctx context.Context, audioPath string, vocabulary []string) (*transcript.Result, error) {
	start := time.Now()
	res, err := o.providers[o.primary].Transcribe(ctx, audioPath, stt.TranscribeOptions{
		Language:        o.language,
		Diarize:         o.diarize,
		VocabularyBoost: vocabulary,
	})
	o.metrics.PrimaryPassDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		o.metrics.RecordProviderError(ctx, o.primary, "whole")
		o.metrics.RecordProviderRequest(ctx, o.primary, "whole", "error")
		return nil, fmt.Errorf("orchestrator: primary transcription (%s): %w", o.primary, err)
	}
	o.metrics.RecordProviderRequest(ctx, o.primary, "whole", "ok")
	if len(res.Words) == 0 {
		return nil, fmt.Errorf("orchestrator: primary transcription (%s): %w", o.primary, stt.ErrEmptyResponse)
	}
	return res, nil
}

// arbitrateSegment fans the segment out to every provider, then asks the
// judge to rule over the surviving candidates.
func (o *Orchestrator) arbitrateSegment(ctx context.Context, audioPath string, seg transcript.UncertainSegment) (*transcript.Decision, error) {
	segStart := time.Now()
	defer func() {
		o.metrics.SegmentDuration.Record(ctx, time.Since(segStart).Seconds())
	}()

	candidates := o.collectCandidates(ctx, audioPath, seg)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	judgeStart := time.Now()
	decision, err := o.judge.Evaluate(ctx, seg, candidates)
	o.metrics.JudgeDuration.Record(ctx, time.Since(judgeStart).Seconds())
	if err != nil {
		return nil, fmt.Errorf("judge: %w", err)
	}

	o.metrics.RecordDecision(ctx, decisionOutcome(decision))
	o.log.Info("segment arbitrated",
		"segment_start_ms", seg.StartMs,
		"segment_end_ms", seg.EndMs,
		"candidates", len(candidates),
		"chosen_source", decision.ChosenSource,
		"confidence_boost", decision.ConfidenceBoost)
	return decision, nil
}

// collectCandidates re-transcribes the segment on all providers in parallel.
// Provider failures are tolerated: the failed provider is simply absent from
// the returned map. Only context cancellation aborts the fan-out.
func (o *Orchestrator) collectCandidates(ctx context.Context, audioPath string, seg transcript.UncertainSegment) map[string]transcript.Candidate {
	var mu sync.Mutex
	candidates := make(map[string]transcript.Candidate, len(o.order))

	g, ctx := errgroup.WithContext(ctx)
	for _, name := range o.order {
		provider := o.providers[name]
		g.Go(func() error {
			res, err := provider.TranscribeSegment(ctx, audioPath, seg.StartMs, seg.EndMs, o.language)
			if err == nil && res == nil {
				err = stt.ErrEmptyResponse
			}
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				o.metrics.RecordProviderError(ctx, name, "segment")
				o.metrics.RecordProviderRequest(ctx, name, "segment", "error")
				o.log.Warn("segment transcription failed",
					"provider", name,
					"segment_start_ms", seg.StartMs,
					"segment_end_ms", seg.EndMs,
					"error", err)
				return nil
			}
			o.metrics.RecordProviderRequest(ctx, name, "segment", "ok")

			mu.Lock()
			candidates[name] = transcript.Candidate{
				SourceName: name,
				Text:       res.FullText,
				Confidence: res.OverallConfidence,
				Words:      res.Words,
			}
			mu.Unlock()
			return nil
		})
	}
	// The only error goroutines return is context cancellation, which the
	// caller re-checks.
	_ = g.Wait()
	return candidates
}

// decisionOutcome maps a decision to its metrics attribute value.
func decisionOutcome(d *transcript.Decision) string {
	switch {
	case d.WasSynthesized:
		return "synthesized"
	case d.Reasoning == judge.FallbackReasoning:
		return "fallback"
	default:
		return "selected"
	}
}
