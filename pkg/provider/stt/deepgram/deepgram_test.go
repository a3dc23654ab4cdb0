package deepgram

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	"github.com/novahealth/nova/pkg/provider/stt"
)

// ---- URL / query-param tests ----

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "en", q.Get("language"))
	assertEqual(t, "punctuate", "true", q.Get("punctuate"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	assertEqual(t, "diarize", "false", q.Get("diarize"))
}

func TestBuildURL_CustomModelAndLanguage(t *testing.T) {
	p, err := New("key", WithModel("nova-2"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.TranscribeOptions{Language: "de", Diarize: true})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "language", "de", q.Get("language"))
	assertEqual(t, "diarize", "true", q.Get("diarize"))
}

func TestBuildURL_VocabularyBoost(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	rawURL, err := p.buildURL(stt.TranscribeOptions{
		VocabularyBoost: []string{"metformin", "lisinopril"},
	})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}

	u, _ := url.Parse(rawURL)
	kws := u.Query()["keywords"]
	if len(kws) != 2 {
		t.Fatalf("expected 2 keywords, got %d: %v", len(kws), kws)
	}
	found := map[string]bool{}
	for _, kw := range kws {
		found[kw] = true
	}
	if !found["metformin"] || !found["lisinopril"] {
		t.Errorf("keywords = %v", kws)
	}
}

// ---- response parsing tests ----

const sampleListenResponse = `{
	"metadata": {"duration": 2.5, "language": "en"},
	"results": {"channels": [{"alternatives": [{
		"transcript": "patient denies chest pain",
		"confidence": 0.91,
		"words": [
			{"word": "patient", "start": 0.0, "end": 0.4, "confidence": 0.95},
			{"word": "denies", "start": 0.4, "end": 0.8, "confidence": 0.9},
			{"word": "chest", "start": 0.8, "end": 1.2, "confidence": 0.88, "speaker": 0},
			{"word": "pain", "start": 1.2, "end": 1.6, "confidence": 0.91, "speaker": 1}
		]
	}]}]}
}`

func TestParseResponse(t *testing.T) {
	res, err := parseResponse([]byte(sampleListenResponse), "nova-3")
	if err != nil {
		t.Fatalf("parseResponse: %v", err)
	}

	assertEqual(t, "full text", "patient denies chest pain", res.FullText)
	assertEqual(t, "model name", "deepgram-nova-3", res.ModelName)
	assertEqual(t, "language", "en", res.Language)
	if res.OverallConfidence != 0.91 {
		t.Errorf("overall confidence = %f", res.OverallConfidence)
	}
	if res.DurationMs != 2500 {
		t.Errorf("duration = %d, want 2500", res.DurationMs)
	}
	if len(res.Words) != 4 {
		t.Fatalf("words = %d, want 4", len(res.Words))
	}

	w := res.Words[1]
	if w.Text != "denies" || w.StartMs != 400 || w.EndMs != 800 || w.Confidence != 0.9 {
		t.Errorf("word = %+v", w)
	}
	if res.Words[0].Speaker != "" {
		t.Errorf("speaker without diarization = %q", res.Words[0].Speaker)
	}
	assertEqual(t, "speaker 0", "0", res.Words[2].Speaker)
	assertEqual(t, "speaker 1", "1", res.Words[3].Speaker)
}

func TestParseResponse_EmptyChannels(t *testing.T) {
	_, err := parseResponse([]byte(`{"results": {"channels": []}}`), "nova-3")
	if !errors.Is(err, stt.ErrEmptyResponse) {
		t.Errorf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestParseResponse_MalformedJSON(t *testing.T) {
	if _, err := parseResponse([]byte("not json"), "nova-3"); err == nil {
		t.Error("expected decode error")
	}
}

// ---- end-to-end against a fake server ----

func TestTranscribe(t *testing.T) {
	var gotAuth, gotContentType string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		w.Write([]byte(sampleListenResponse))
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "visit.wav")
	if err := os.WriteFile(audioPath, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := New("secret-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res, err := p.Transcribe(context.Background(), audioPath, stt.TranscribeOptions{})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	assertEqual(t, "auth header", "Token secret-key", gotAuth)
	assertEqual(t, "content type", "audio/wav", gotContentType)
	if res.WordCount() != 4 {
		t.Errorf("words = %d, want 4", res.WordCount())
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	audioPath := filepath.Join(t.TempDir(), "visit.mp3")
	if err := os.WriteFile(audioPath, []byte("ID3"), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := New("bad-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := p.Transcribe(context.Background(), audioPath, stt.TranscribeOptions{}); err == nil {
		t.Error("expected error for 401 response")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestContentTypeFor(t *testing.T) {
	assertEqual(t, "wav", "audio/wav", contentTypeFor("a/b.wav"))
	assertEqual(t, "m4a", "audio/mp4", contentTypeFor("rec.m4a"))
	assertEqual(t, "unknown", "audio/mp3", contentTypeFor("rec.flac"))
}

func assertEqual(t *testing.T, name, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s = %q, want %q", name, got, want)
	}
}
