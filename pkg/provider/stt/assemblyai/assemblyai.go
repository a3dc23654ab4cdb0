// Package assemblyai provides an AssemblyAI-backed STT provider using the
// async transcript REST API: upload the audio, submit a transcript job, then
// poll until it completes. It implements the stt.Provider interface.
package assemblyai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/novahealth/nova/pkg/audio"
	"github.com/novahealth/nova/pkg/provider/stt"
	"github.com/novahealth/nova/pkg/transcript"
)

const (
	defaultBaseURL      = "https://api.assemblyai.com/v2"
	defaultPollInterval = 500 * time.Millisecond
	defaultTimeout      = 30 * time.Second
	defaultLanguage     = "en"

	// uploadTimeout bounds the audio upload POST. The body is the whole
	// recording, which can run to tens of megabytes.
	uploadTimeout = 5 * time.Minute
)

// ProviderName is the stable key this adapter reports via Name.
const ProviderName = "assemblyai"

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL, for tests and proxies.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithHTTPClient replaces the default HTTP clients, including the
// long-timeout one used for uploads.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
		p.uploadClient = c
	}
}

// WithPollInterval sets the delay between transcript status polls.
func WithPollInterval(d time.Duration) Option {
	return func(p *Provider) {
		p.pollInterval = d
	}
}

// WithExtractor replaces the segment extractor used by TranscribeSegment.
func WithExtractor(ex stt.SegmentExtractor) Option {
	return func(p *Provider) {
		p.extractor = ex
	}
}

// Provider implements stt.Provider backed by the AssemblyAI async API.
type Provider struct {
	apiKey       string
	baseURL      string
	httpClient   *http.Client
	uploadClient *http.Client
	pollInterval time.Duration
	extractor    stt.SegmentExtractor
}

var _ stt.Provider = (*Provider)(nil)

// New creates an AssemblyAI Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("assemblyai: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:       apiKey,
		baseURL:      defaultBaseURL,
		httpClient:   &http.Client{Timeout: defaultTimeout},
		uploadClient: &http.Client{Timeout: uploadTimeout},
		pollInterval: defaultPollInterval,
		extractor:    audio.NewExtractor(),
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Name implements stt.Provider.
func (p *Provider) Name() string { return ProviderName }

// Transcribe implements stt.Provider: upload, submit, poll to completion.
func (p *Provider) Transcribe(ctx context.Context, audioPath string, opts stt.TranscribeOptions) (*transcript.Result, error) {
	data, err := os.ReadFile(audioPath)
	if err != nil {
		return nil, fmt.Errorf("assemblyai: read audio: %w", err)
	}

	uploadURL, err := p.upload(ctx, data)
	if err != nil {
		return nil, err
	}

	id, err := p.submit(ctx, uploadURL, opts)
	if err != nil {
		return nil, err
	}

	return p.poll(ctx, id)
}

// TranscribeSegment implements stt.Provider.
func (p *Provider) TranscribeSegment(ctx context.Context, audioPath string, startMs, endMs int64, language string) (*transcript.Result, error) {
	return stt.TranscribeSlice(ctx, p.extractor, audioPath, startMs, endMs,
		func(ctx context.Context, segmentPath string) (*transcript.Result, error) {
			return p.Transcribe(ctx, segmentPath, stt.TranscribeOptions{Language: language})
		})
}

// upload sends the raw audio bytes and returns the temporary upload URL.
func (p *Provider) upload(ctx context.Context, data []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/upload", bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("assemblyai: build upload request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)

	var out struct {
		UploadURL string `json:"upload_url"`
	}
	if err := p.do(p.uploadClient, req, &out); err != nil {
		return "", fmt.Errorf("assemblyai: upload: %w", err)
	}
	if out.UploadURL == "" {
		return "", errors.New("assemblyai: upload returned no URL")
	}
	return out.UploadURL, nil
}

// submit creates a transcript job for the uploaded audio and returns its ID.
func (p *Provider) submit(ctx context.Context, uploadURL string, opts stt.TranscribeOptions) (string, error) {
	lang := opts.Language
	if lang == "" {
		lang = defaultLanguage
	}

	payload := map[string]any{
		"audio_url":      uploadURL,
		"language_code":  lang,
		"punctuate":      true,
		"format_text":    true,
		"speaker_labels": opts.Diarize,
	}
	if len(opts.VocabularyBoost) > 0 {
		payload["word_boost"] = opts.VocabularyBoost
		payload["boost_param"] = "high"
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("assemblyai: marshal submit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/transcript", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("assemblyai: build submit request: %w", err)
	}
	req.Header.Set("Authorization", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		ID    string `json:"id"`
		Error string `json:"error"`
	}
	if err := p.do(p.httpClient, req, &out); err != nil {
		return "", fmt.Errorf("assemblyai: submit: %w", err)
	}
	if out.ID == "" {
		return "", fmt.Errorf("assemblyai: submit rejected: %s", out.Error)
	}
	return out.ID, nil
}

// transcriptResponse is the subset of the transcript resource we read.
type transcriptResponse struct {
	ID            string  `json:"id"`
	Status        string  `json:"status"`
	Error         string  `json:"error"`
	Text          string  `json:"text"`
	LanguageCode  string  `json:"language_code"`
	AudioDuration float64 `json:"audio_duration"`
	Words         []struct {
		Text       string  `json:"text"`
		Start      int64   `json:"start"`
		End        int64   `json:"end"`
		Confidence float64 `json:"confidence"`
		Speaker    *string `json:"speaker"`
	} `json:"words"`
}

// poll fetches the transcript resource until it reaches a terminal status.
func (p *Provider) poll(ctx context.Context, id string) (*transcript.Result, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(p.pollInterval):
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/transcript/"+id, nil)
		if err != nil {
			return nil, fmt.Errorf("assemblyai: build poll request: %w", err)
		}
		req.Header.Set("Authorization", p.apiKey)

		var tr transcriptResponse
		if err := p.do(p.httpClient, req, &tr); err != nil {
			return nil, fmt.Errorf("assemblyai: poll: %w", err)
		}

		switch tr.Status {
		case "completed":
			return parseTranscript(&tr), nil
		case "error":
			return nil, fmt.Errorf("assemblyai: transcription failed: %s", tr.Error)
		}
	}
}

// do executes req on c and decodes a JSON response into out.
func (p *Provider) do(c *http.Client, req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}
	return json.Unmarshal(body, out)
}

// parseTranscript converts a completed transcript into a transcript.Result.
// AssemblyAI reports word timestamps directly in milliseconds.
func parseTranscript(tr *transcriptResponse) *transcript.Result {
	words := make([]transcript.Word, 0, len(tr.Words))
	for _, w := range tr.Words {
		word := transcript.Word{
			Text:       w.Text,
			StartMs:    w.Start,
			EndMs:      w.End,
			Confidence: w.Confidence,
		}
		if w.Speaker != nil {
			word.Speaker = *w.Speaker
		}
		words = append(words, word)
	}

	durationMs := int64(tr.AudioDuration * 1000)
	if len(words) > 0 && words[len(words)-1].EndMs > durationMs {
		durationMs = words[len(words)-1].EndMs
	}

	lang := tr.LanguageCode
	if lang == "" {
		lang = defaultLanguage
	}

	raw, _ := json.Marshal(map[string]string{"id": tr.ID, "status": tr.Status})
	return &transcript.Result{
		FullText:          tr.Text,
		Words:             words,
		OverallConfidence: transcript.MeanConfidence(words),
		DurationMs:        durationMs,
		Language:          lang,
		ModelName:         "assemblyai-universal",
		Raw:               raw,
	}
}
