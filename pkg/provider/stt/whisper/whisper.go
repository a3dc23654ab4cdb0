// Package whisper provides an OpenAI Whisper-backed STT provider using the
// audio transcription API with verbose JSON output and word-level timestamp
// granularity. It implements the stt.Provider interface.
//
// Whisper does not expose word-level confidence. The adapter derives it from
// the enclosing segment's avg_logprob through a logistic transform with its
// inflection near the mid-range, so the scores rank correctly against other
// providers even though they are not calibrated.
package whisper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/novahealth/nova/pkg/audio"
	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/transcript"
)

// ProviderName is the stable key this adapter reports via Name.
const ProviderName = "whisper"

const (
	modelName = "whisper-1"

	// fallbackLogprob stands in when a word falls outside every reported
	// segment; it maps to the mid-range of the confidence scale.
	fallbackLogprob = -0.5
)

// transcriptionClient is the slice of the go-openai client this adapter
// uses, extracted for testability.
type transcriptionClient interface {
	CreateTranscription(ctx context.Context, req openai.AudioRequest) (openai.AudioResponse, error)
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithClient replaces the underlying OpenAI client, for tests.
func WithClient(c transcriptionClient) Option {
	return func(p *Provider) {
		p.client = c
	}
}

// WithExtractor replaces the segment extractor used by TranscribeSegment.
func WithExtractor(ex stt.SegmentExtractor) Option {
	return func(p *Provider) {
		p.extractor = ex
	}
}

// Provider implements stt.Provider backed by the OpenAI Whisper API.
type Provider struct {
	client    transcriptionClient
	extractor stt.SegmentExtractor
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Whisper Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("whisper: apiKey must not be empty")
	}
	p := &Provider{
		client:    openai.NewClient(apiKey),
		extractor: audio.NewExtractor(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return ProviderName }

// Transcribe implements stt.Provider. Whisper has no keyword-list mechanism;
// vocabulary boosting is mapped onto the prompt, which primes the decoder
// with the listed terms. Diarization is not supported and is ignored.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts stt.TranscribeOptions) (*transcript.Result, error) {
	req := openai.AudioRequest{
		Model:    modelName,
		FilePath: audioPath,
		Format:   openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
			openai.TranscriptionTimestampGranularitySegment,
		},
	}
	if opts.Language != "" && opts.Language != "auto" {
		req.Language = opts.Language
	}
	if len(opts.VocabularyBoost) > 0 {
		req.Prompt = "Medical terms: " + strings.Join(opts.VocabularyBoost, ", ") + "."
	}

	resp, err := p.client.CreateTranscription(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("whisper: transcription: %w", err)
	}

	return parseResponse(&resp), nil
}

// TranscribeSegment implements stt.Provider.
func (p *Provider) TranscribeSegment(ctx context.Context, audioPath string, startMs, endMs int64, language string) (*transcript.Result, error) {
	return stt.TranscribeSlice(ctx, p.extractor, audioPath, startMs, endMs,
		func(ctx context.Context, segmentPath string) (*transcript.Result, error) {
			return p.Transcribe(ctx, segmentPath, stt.TranscribeOptions{Language: language})
		})
}

// parseResponse converts a verbose JSON transcription into a
// transcript.Result, deriving word confidence from segment logprobs.
func parseResponse(resp *openai.AudioResponse) *transcript.Result {
	var words []transcript.Word

	if len(resp.Words) > 0 {
		words = make([]transcript.Word, 0, len(resp.Words))
		for _, w := range resp.Words {
			text := strings.TrimSpace(w.Word)
			if text == "" {
				continue
			}
			startMs := int64(w.Start * 1000)
			endMs := int64(w.End * 1000)
			words = append(words, transcript.Word{
				Text:       text,
				StartMs:    startMs,
				EndMs:      endMs,
				Confidence: logprobToConfidence(segmentLogprob(resp, startMs, endMs)),
			})
		}
	} else {
		// No word granularity: synthesise words from segment text with
		// evenly distributed timings.
		for _, seg := range resp.Segments {
			tokens := strings.Fields(seg.Text)
			if len(tokens) == 0 {
				continue
			}
			conf := logprobToConfidence(seg.AvgLogprob)
			segStart := seg.Start
			wordDur := (seg.End - seg.Start) / float64(len(tokens))
			for i, tok := range tokens {
				start := segStart + float64(i)*wordDur
				words = append(words, transcript.Word{
					Text:       tok,
					StartMs:    int64(start * 1000),
					EndMs:      int64((start + wordDur) * 1000),
					Confidence: conf,
				})
			}
		}
	}

	durationMs := int64(resp.Duration * 1000)
	if len(words) > 0 && words[len(words)-1].EndMs > durationMs {
		durationMs = words[len(words)-1].EndMs
	}

	lang := resp.Language
	if lang == "" {
		lang = "en"
	}

	return &transcript.Result{
		FullText:          strings.TrimSpace(resp.Text),
		Words:             words,
		OverallConfidence: transcript.MeanConfidence(words),
		DurationMs:        durationMs,
		Language:          lang,
		ModelName:         modelName,
	}
}

// segmentLogprob finds the avg_logprob of the segment containing the word,
// falling back to a mid-range default when no segment matches.
func segmentLogprob(resp *openai.AudioResponse, startMs, endMs int64) float64 {
	for _, seg := range resp.Segments {
		segStart := int64(seg.Start * 1000)
		segEnd := int64(seg.End * 1000)
		if startMs >= segStart && endMs <= segEnd {
			return seg.AvgLogprob
		}
	}
	return fallbackLogprob
}

// logprobToConfidence maps avg_logprob (typically [-1, 0]) to [0, 1] through
// a logistic curve with its inflection at -0.5, so mid-range logprobs land
// near 0.5 and clean segments approach the confident end of the scale.
func logprobToConfidence(avgLogprob float64) float64 {
	conf := 1.0 / (1.0 + math.Exp(-2*(avgLogprob+0.5)))
	return math.Min(math.Max(conf, 0.0), 1.0)
}
