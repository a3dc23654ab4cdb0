package whisper

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"

	"github.com/novahealth/nova/pkg/provider/stt"
)

// fakeClient records the request and returns a canned response.
type fakeClient struct {
	gotReq openai.AudioRequest
	resp   openai.AudioResponse
	err    error
}

func (f *fakeClient) CreateTranscription(_ context.Context, req openai.AudioRequest) (openai.AudioResponse, error) {
	f.gotReq = req
	return f.resp, f.err
}

// audioResponse unmarshals a JSON fixture into the SDK response type; the
// SDK declares Words and Segments as anonymous structs, so literals are not
// an option.
func audioResponse(t *testing.T, raw string) openai.AudioResponse {
	t.Helper()
	var resp openai.AudioResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal fixture: %v", err)
	}
	return resp
}

const wordLevelFixture = `{
	"text": "patient denies chest pain",
	"language": "english",
	"duration": 2.0,
	"words": [
		{"word": " patient", "start": 0.0, "end": 0.4},
		{"word": "denies", "start": 0.4, "end": 0.8},
		{"word": "chest", "start": 0.8, "end": 1.2},
		{"word": "pain", "start": 1.2, "end": 1.6}
	],
	"segments": [
		{"id": 0, "start": 0.0, "end": 1.0, "text": "patient denies", "avg_logprob": -0.1},
		{"id": 1, "start": 1.0, "end": 2.0, "text": "chest pain", "avg_logprob": -1.2}
	]
}`

func TestTranscribe_WordGranularity(t *testing.T) {
	fc := &fakeClient{resp: audioResponse(t, wordLevelFixture)}
	p, err := New("key", WithClient(fc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), "visit.wav", stt.TranscribeOptions{Language: "en"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if fc.gotReq.Model != "whisper-1" {
		t.Errorf("model = %q", fc.gotReq.Model)
	}
	if fc.gotReq.Language != "en" {
		t.Errorf("language = %q", fc.gotReq.Language)
	}
	if fc.gotReq.Format != openai.AudioResponseFormatVerboseJSON {
		t.Errorf("format = %q", fc.gotReq.Format)
	}

	if res.FullText != "patient denies chest pain" {
		t.Errorf("full text = %q", res.FullText)
	}
	if len(res.Words) != 4 {
		t.Fatalf("words = %d, want 4", len(res.Words))
	}
	// Leading space from the API is stripped.
	if res.Words[0].Text != "patient" {
		t.Errorf("word = %q", res.Words[0].Text)
	}
	if res.Words[1].StartMs != 400 || res.Words[1].EndMs != 800 {
		t.Errorf("timing = [%d,%d]", res.Words[1].StartMs, res.Words[1].EndMs)
	}

	// Words in the clean segment score above those in the noisy one.
	if res.Words[0].Confidence <= res.Words[3].Confidence {
		t.Errorf("confidence ordering: clean %f <= noisy %f",
			res.Words[0].Confidence, res.Words[3].Confidence)
	}
}

func TestTranscribe_VocabularyPrompt(t *testing.T) {
	fc := &fakeClient{resp: audioResponse(t, wordLevelFixture)}
	p, err := New("key", WithClient(fc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = p.Transcribe(context.Background(), "visit.wav", stt.TranscribeOptions{
		VocabularyBoost: []string{"metformin", "lisinopril"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if !strings.Contains(fc.gotReq.Prompt, "metformin") || !strings.Contains(fc.gotReq.Prompt, "lisinopril") {
		t.Errorf("prompt = %q, want vocabulary terms", fc.gotReq.Prompt)
	}
}

func TestTranscribe_AutoLanguageOmitted(t *testing.T) {
	fc := &fakeClient{resp: audioResponse(t, wordLevelFixture)}
	p, err := New("key", WithClient(fc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), "visit.wav", stt.TranscribeOptions{Language: "auto"}); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if fc.gotReq.Language != "" {
		t.Errorf("language = %q, want empty for auto", fc.gotReq.Language)
	}
}

func TestTranscribe_ClientError(t *testing.T) {
	fc := &fakeClient{err: errors.New("rate limited")}
	p, err := New("key", WithClient(fc))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), "visit.wav", stt.TranscribeOptions{}); err == nil {
		t.Error("expected error from client")
	}
}

func TestParseResponse_SegmentFallback(t *testing.T) {
	resp := audioResponse(t, `{
		"text": "follow up in two weeks",
		"duration": 2.0,
		"segments": [
			{"id": 0, "start": 0.0, "end": 2.0, "text": "follow up in two weeks", "avg_logprob": -0.2}
		]
	}`)

	res := parseResponse(&resp)

	if len(res.Words) != 5 {
		t.Fatalf("synthesised words = %d, want 5", len(res.Words))
	}
	// Even distribution over the segment: 400ms per word.
	if res.Words[0].StartMs != 0 || res.Words[0].EndMs != 400 {
		t.Errorf("first word timing = [%d,%d]", res.Words[0].StartMs, res.Words[0].EndMs)
	}
	if res.Words[4].EndMs != 2000 {
		t.Errorf("last word ends at %d, want 2000", res.Words[4].EndMs)
	}
	// All words share the segment confidence.
	for i := 1; i < len(res.Words); i++ {
		if res.Words[i].Confidence != res.Words[0].Confidence {
			t.Errorf("word %d confidence differs: %f vs %f", i, res.Words[i].Confidence, res.Words[0].Confidence)
		}
	}
}

func TestParseResponse_DurationExtendedToLastWord(t *testing.T) {
	resp := audioResponse(t, `{
		"text": "pain",
		"duration": 1.0,
		"words": [{"word": "pain", "start": 0.9, "end": 1.4}]
	}`)

	res := parseResponse(&resp)
	if res.DurationMs != 1400 {
		t.Errorf("duration = %d, want 1400", res.DurationMs)
	}
}

func TestLogprobToConfidence(t *testing.T) {
	// Monotonic: better logprobs produce higher confidence.
	low := logprobToConfidence(-2.0)
	mid := logprobToConfidence(-0.5)
	high := logprobToConfidence(-0.05)

	if !(low < mid && mid < high) {
		t.Errorf("not monotonic: %f %f %f", low, mid, high)
	}
	// Inflection sits at the mid-range default.
	if mid != 0.5 {
		t.Errorf("midpoint = %f, want 0.5", mid)
	}
	for _, lp := range []float64{-10, -1, -0.5, 0, 5} {
		c := logprobToConfidence(lp)
		if c < 0 || c > 1 {
			t.Errorf("confidence out of range for %f: %f", lp, c)
		}
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}
