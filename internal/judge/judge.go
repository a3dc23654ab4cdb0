// Package judge arbitrates between competing transcription candidates for an
// uncertain segment.
//
// The LLM-backed judge is strongly biased toward selecting one of the
// provided candidates; synthesizing new text is a last resort that must be
// justified. The bias lives entirely in the system directive, so swapping the
// arbitration policy means swapping the judge, not the orchestrator.
//
// Every judge failure degrades to a deterministic fallback that picks the
// highest-confidence candidate, so arbitration always yields a decision.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/novahealth/nova/pkg/provider/llm"
	"github.com/novahealth/nova/pkg/transcript"
)

// Judge decides the best transcription for one uncertain segment.
//
// Implementations must return a decision for every input, including an empty
// candidate map; only context cancellation may surface as an error.
type Judge interface {
	Evaluate(ctx context.Context, segment transcript.UncertainSegment, candidates map[string]transcript.Candidate) (*transcript.Decision, error)
}

const systemPrompt = `You are an expert medical transcription reviewer. Your task is to evaluate multiple transcription candidates for an audio segment where the primary transcription model had low confidence.

CRITICAL INSTRUCTION: You must STRONGLY PREFER selecting one of the provided transcriptions over creating your own. Your primary job is to CHOOSE, not to CREATE.

You will be given:
1. Context BEFORE the uncertain segment (preceding words in the conversation)
2. Context AFTER the uncertain segment (following words in the conversation)
3. Multiple transcription candidates from different speech-to-text models
4. Confidence scores from each model

DECISION PRIORITY (follow this order strictly):
1. FIRST: Check if any transcription makes clear sense in context -> SELECT IT
2. SECOND: If multiple make sense, choose the one with highest confidence -> SELECT IT
3. THIRD: If transcriptions differ slightly but are similar, select the most complete one -> SELECT IT
4. FOURTH: If transcriptions differ significantly, use context to determine which fits -> SELECT IT
5. LAST RESORT ONLY: If ALL transcriptions are clearly wrong, nonsensical, or completely contradict the context in ways that cannot be explained -> SYNTHESIZE your own

When synthesizing (ONLY as last resort), you must:
- Base it on the phonetic similarities between candidates
- Ensure it fits the medical/clinical context perfectly
- Provide detailed justification for why ALL candidates were rejected

Your response must be valid JSON with this exact structure:
{
    "chosen_source": "<one of the candidate source names>" | "synthesized",
    "final_text": "the selected or synthesized text",
    "reasoning": "Brief explanation of your decision",
    "confidence_boost": 0.85,
    "synthesis_justification": "Only if synthesized - why ALL candidates were wrong"
}`

const (
	judgeTemperature = 0.1
	judgeMaxTokens   = 500

	// defaultBoost applies when the model omits confidence_boost.
	defaultBoost = 0.8
)

// FallbackReasoning marks decisions produced without the model.
const FallbackReasoning = "automatic fallback: highest confidence selected"

// Option is a functional option for LLMJudge.
type Option func(*LLMJudge)

// WithLogger replaces the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(j *LLMJudge) {
		j.log = l
	}
}

// LLMJudge implements Judge on top of an llm.Provider.
type LLMJudge struct {
	provider llm.Provider

	// sources are the configured provider names, listed in the prompt so the
	// model sees which candidates are missing. First entry is the primary.
	sources []string

	log *slog.Logger
}

var _ Judge = (*LLMJudge)(nil)

// New creates an LLMJudge. sources must be non-empty; its first entry is the
// primary provider, used to coerce unrecognised chosen_source values.
func New(provider llm.Provider, sources []string, opts ...Option) (*LLMJudge, error) {
	if provider == nil {
		return nil, fmt.Errorf("judge: provider must not be nil")
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("judge: at least one source name is required")
	}
	j := &LLMJudge{
		provider: provider,
		sources:  sources,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(j)
	}
	return j, nil
}

// Evaluate implements Judge. On any model or parsing failure the
// deterministic fallback produces the decision instead.
func (j *LLMJudge) Evaluate(ctx context.Context, segment transcript.UncertainSegment, candidates map[string]transcript.Candidate) (*transcript.Decision, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := j.provider.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: j.buildPrompt(segment, candidates)},
		},
		Temperature:  judgeTemperature,
		MaxTokens:    judgeMaxTokens,
		JSONResponse: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		j.log.Warn("judge completion failed, using fallback",
			"error", err,
			"segment_start_ms", segment.StartMs,
			"segment_end_ms", segment.EndMs)
		return j.decide(fallbackResponse(segment, candidates), segment, candidates), nil
	}

	parsed, ok := parseResponse(resp.Content)
	if !ok {
		j.log.Warn("judge response unparseable, using fallback",
			"segment_start_ms", segment.StartMs,
			"segment_end_ms", segment.EndMs)
		parsed = fallbackResponse(segment, candidates)
	}
	return j.decide(parsed, segment, candidates), nil
}

// buildPrompt renders the user prompt: surrounding context, then one block
// per configured source with its candidate text and confidence. Sources with
// no candidate are marked as errored so the model knows they are unavailable
// rather than silent.
func (j *LLMJudge) buildPrompt(segment transcript.UncertainSegment, candidates map[string]transcript.Candidate) string {
	var b strings.Builder

	fmt.Fprintf(&b, "CONTEXT BEFORE (preceding words):\n%q\n\n", segment.ContextBefore)
	fmt.Fprintf(&b, "UNCERTAIN SEGMENT (timestamps: %dms - %dms):\n[This is where the transcription is uncertain]\n\n",
		segment.StartMs, segment.EndMs)
	fmt.Fprintf(&b, "CONTEXT AFTER (following words):\n%q\n\n", segment.ContextAfter)

	b.WriteString("TRANSCRIPTION CANDIDATES:\n")
	for i, name := range j.sources {
		cand, ok := candidates[name]
		if !ok {
			fmt.Fprintf(&b, "\n%d. %s (confidence: N/A):\n\"Error - no transcription\"\n", i+1, strings.ToUpper(name))
			continue
		}
		fmt.Fprintf(&b, "\n%d. %s (confidence: %.2f):\n%q\n", i+1, strings.ToUpper(name), cand.Confidence, cand.Text)
	}

	if score, ok := agreement(candidates); ok {
		fmt.Fprintf(&b, "\nCANDIDATE AGREEMENT (0 = disjoint, 1 = identical): %.2f\n", score)
	}

	b.WriteString("\nBased on the context and candidates above, determine the best transcription.\n")
	b.WriteString("Remember: STRONGLY prefer selecting an existing transcription over synthesizing.\n\n")
	b.WriteString("Respond with valid JSON only.\n")
	return b.String()
}

// judgeResponse is the wire shape of the model's JSON reply.
type judgeResponse struct {
	ChosenSource           string   `json:"chosen_source"`
	FinalText              string   `json:"final_text"`
	Reasoning              string   `json:"reasoning"`
	ConfidenceBoost        *float64 `json:"confidence_boost"`
	SynthesisJustification string   `json:"synthesis_justification"`
}

// parseResponse decodes the model output as JSON, falling back to the first
// JSON-object substring when the model wrapped the object in prose or fences.
func parseResponse(content string) (judgeResponse, bool) {
	var resp judgeResponse
	if err := json.Unmarshal([]byte(content), &resp); err == nil {
		return resp, true
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(content[start:end+1]), &resp); err == nil {
			return resp, true
		}
	}
	return judgeResponse{}, false
}

// fallbackResponse deterministically selects the highest-confidence
// candidate. With no candidates at all, it keeps the segment's original words
// under the primary source name with a minimal boost.
func fallbackResponse(segment transcript.UncertainSegment, candidates map[string]transcript.Candidate) judgeResponse {
	bestSource := ""
	bestConfidence := 0.0
	bestText := segment.OriginalText()

	for _, name := range sortedNames(candidates) {
		cand := candidates[name]
		if cand.Confidence > bestConfidence {
			bestSource = name
			bestConfidence = cand.Confidence
			bestText = cand.Text
		}
	}

	boost := bestConfidence + 0.1
	if boost > 1.0 {
		boost = 1.0
	}
	return judgeResponse{
		ChosenSource:    bestSource,
		FinalText:       bestText,
		Reasoning:       FallbackReasoning,
		ConfidenceBoost: &boost,
	}
}

// decide validates a parsed response and materialises the decision.
func (j *LLMJudge) decide(resp judgeResponse, segment transcript.UncertainSegment, candidates map[string]transcript.Candidate) *transcript.Decision {
	chosen := strings.ToLower(strings.TrimSpace(resp.ChosenSource))
	if !j.validSource(chosen) {
		chosen = j.sources[0]
	}

	finalText := resp.FinalText
	if finalText == "" {
		finalText = segment.OriginalText()
	}
	reasoning := resp.Reasoning
	if reasoning == "" {
		reasoning = "Automatic selection"
	}

	boost := defaultBoost
	if resp.ConfidenceBoost != nil {
		boost = *resp.ConfidenceBoost
	}
	if boost < 0 {
		boost = 0
	} else if boost > 1 {
		boost = 1
	}

	synthesized := chosen == transcript.SourceSynthesized
	justification := resp.SynthesisJustification
	if synthesized && justification == "" {
		justification = reasoning
	}
	if !synthesized {
		justification = ""
	}

	decisionCandidates := make(map[string]transcript.Candidate, len(candidates))
	for name, cand := range candidates {
		decisionCandidates[name] = cand
	}

	return &transcript.Decision{
		Segment:                segment,
		Candidates:             decisionCandidates,
		ChosenSource:           chosen,
		FinalText:              finalText,
		Reasoning:              reasoning,
		ConfidenceBoost:        boost,
		WasSynthesized:         synthesized,
		SynthesisJustification: justification,
	}
}

// validSource reports whether name is a configured source or the synthesis
// sentinel.
func (j *LLMJudge) validSource(name string) bool {
	if name == transcript.SourceSynthesized {
		return true
	}
	for _, s := range j.sources {
		if s == name {
			return true
		}
	}
	return false
}

// sortedNames returns candidate names in lexical order so fallback selection
// ties break deterministically.
func sortedNames(candidates map[string]transcript.Candidate) []string {
	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
