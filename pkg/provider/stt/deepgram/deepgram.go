// Package deepgram provides a Deepgram-backed STT provider using the
// prerecorded (batch) REST API. It implements the stt.Provider interface.
//
// Deepgram reports genuine word-level confidence scores, which makes it the
// default primary provider for the orchestration pipeline.
package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/novahealth/nova/pkg/audio"
	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/transcript"
)

const (
	defaultEndpoint = "https://api.deepgram.com/v1/listen"
	defaultModel    = "nova-3"
	defaultLanguage = "en"
	defaultTimeout  = 5 * time.Minute
)

// ProviderName is the stable key this adapter reports via Name.
const ProviderName = "deepgram"

// contentTypes maps audio file extensions to MIME types for the upload body.
var contentTypes = map[string]string{
	".mp3": "audio/mp3",
	".wav": "audio/wav",
	".m4a": "audio/mp4",
	".ogg": "audio/ogg",
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the Deepgram model (e.g. "nova-3", "nova-2").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API endpoint, for tests and proxies.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.endpoint = u
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// WithExtractor replaces the segment extractor used by TranscribeSegment.
func WithExtractor(ex stt.SegmentExtractor) Option {
	return func(p *Provider) {
		p.extractor = ex
	}
}

// Provider implements stt.Provider backed by the Deepgram batch API.
type Provider struct {
	apiKey     string
	model      string
	endpoint   string
	httpClient *http.Client
	extractor  stt.SegmentExtractor
}

var _ stt.Provider = (*Provider)(nil)

// New creates a Deepgram Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		model:      defaultModel,
		endpoint:   defaultEndpoint,
		httpClient: &http.Client{Timeout: defaultTimeout},
		extractor:  audio.NewExtractor(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return ProviderName }

// Transcribe implements stt.Provider using the prerecorded endpoint.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts stt.TranscribeOptions) (*transcript.Result, error) {
	reqURL, err := p.buildURL(opts)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build URL: %w", err)
	}

	f, err := os.Open(audioPath)
	if err != nil {
		return nil, fmt.Errorf("deepgram: open audio: %w", err)
	}
	defer f.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, f)
	if err != nil {
		return nil, fmt.Errorf("deepgram: build request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", contentTypeFor(audioPath))

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("deepgram: request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("deepgram: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("deepgram: status %d: %s", resp.StatusCode, body)
	}

	return parseResponse(body, p.model)
}

// TranscribeSegment implements stt.Provider. Diarization is disabled for
// segment passes; short slices confuse speaker attribution.
func (p *Provider) TranscribeSegment(ctx context.Context, audioPath string, startMs, endMs int64, language string) (*transcript.Result, error) {
	return stt.TranscribeSlice(ctx, p.extractor, audioPath, startMs, endMs,
		func(ctx context.Context, segmentPath string) (*transcript.Result, error) {
			return p.Transcribe(ctx, segmentPath, stt.TranscribeOptions{Language: language})
		})
}

// buildURL constructs the listen endpoint URL with recognition parameters.
func (p *Provider) buildURL(opts stt.TranscribeOptions) (string, error) {
	u, err := url.Parse(p.endpoint)
	if err != nil {
		return "", err
	}

	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}

	q := u.Query()
	q.Set("model", p.model)
	q.Set("language", lang)
	q.Set("punctuate", "true")
	q.Set("smart_format", "true")
	q.Set("utterances", "true")
	q.Set("diarize", strconv.FormatBool(opts.Diarize))
	for _, term := range opts.VocabularyBoost {
		q.Add("keywords", term)
	}

	u.RawQuery = q.Encode()
	return u.String(), nil
}

// listenResponse is the subset of the Deepgram prerecorded response we read.
type listenResponse struct {
	Metadata struct {
		Duration float64 `json:"duration"`
		Language string  `json:"language"`
	} `json:"metadata"`
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
				Words      []struct {
					Word       string  `json:"word"`
					Start      float64 `json:"start"`
					End        float64 `json:"end"`
					Confidence float64 `json:"confidence"`
					Speaker    *int    `json:"speaker,omitempty"`
				} `json:"words"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// parseResponse converts a Deepgram JSON body into a transcript.Result.
func parseResponse(body []byte, model string) (*transcript.Result, error) {
	var resp listenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("deepgram: decode response: %w", err)
	}
	if len(resp.Results.Channels) == 0 || len(resp.Results.Channels[0].Alternatives) == 0 {
		return nil, stt.ErrEmptyResponse
	}

	alt := resp.Results.Channels[0].Alternatives[0]
	words := make([]transcript.Word, 0, len(alt.Words))
	for _, w := range alt.Words {
		word := transcript.Word{
			Text:       w.Word,
			StartMs:    int64(w.Start * 1000),
			EndMs:      int64(w.End * 1000),
			Confidence: w.Confidence,
		}
		if w.Speaker != nil {
			word.Speaker = strconv.Itoa(*w.Speaker)
		}
		words = append(words, word)
	}

	lang := resp.Metadata.Language
	if lang == "" {
		lang = defaultLanguage
	}

	return &transcript.Result{
		FullText:          alt.Transcript,
		Words:             words,
		OverallConfidence: alt.Confidence,
		DurationMs:        int64(resp.Metadata.Duration * 1000),
		Language:          lang,
		ModelName:         "deepgram-" + model,
		Raw:               json.RawMessage(body),
	}, nil
}

// contentTypeFor maps the file extension to an upload MIME type, defaulting
// to MP3 for unknown extensions.
func contentTypeFor(path string) string {
	if ct, ok := contentTypes[filepath.Ext(path)]; ok {
		return ct
	}
	return "audio/mp3"
}
