package assemblyai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/novahealth/nova/pkg/provider/stt"
)

// fakeAPI emulates the upload/submit/poll flow of the async API.
type fakeAPI struct {
	t *testing.T

	// pollsUntilDone is how many "processing" polls precede completion.
	pollsUntilDone int32
	finalStatus    string

	gotSubmit map[string]any
}

func (f *fakeAPI) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "test-key" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"upload_url": "https://cdn.test/upload/abc"})
	})

	mux.HandleFunc("POST /transcript", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.gotSubmit); err != nil {
			f.t.Errorf("decode submit payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "tr_123", "status": "queued"})
	})

	mux.HandleFunc("GET /transcript/{id}", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&f.pollsUntilDone, -1) >= 0 {
			json.NewEncoder(w).Encode(map[string]string{"id": "tr_123", "status": "processing"})
			return
		}
		if f.finalStatus == "error" {
			json.NewEncoder(w).Encode(map[string]string{"id": "tr_123", "status": "error", "error": "audio too short"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"id":             "tr_123",
			"status":         "completed",
			"text":           "patient denies chest pain",
			"language_code":  "en",
			"audio_duration": 2.0,
			"words": []map[string]any{
				{"text": "patient", "start": 0, "end": 400, "confidence": 0.95, "speaker": "A"},
				{"text": "denies", "start": 400, "end": 800, "confidence": 0.9, "speaker": "A"},
				{"text": "chest", "start": 800, "end": 1200, "confidence": 0.88, "speaker": "B"},
				{"text": "pain", "start": 1200, "end": 1600, "confidence": 0.91, "speaker": "B"},
			},
		})
	})

	return mux
}

func newTestProvider(t *testing.T, f *fakeAPI) *Provider {
	t.Helper()
	srv := httptest.NewServer(f.handler())
	t.Cleanup(srv.Close)

	p, err := New("test-key",
		WithBaseURL(srv.URL),
		WithPollInterval(time.Millisecond),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func writeAudio(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "visit.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTranscribe(t *testing.T) {
	f := &fakeAPI{t: t, pollsUntilDone: 2}
	p := newTestProvider(t, f)

	res, err := p.Transcribe(context.Background(), writeAudio(t), stt.TranscribeOptions{
		Language:        "en",
		Diarize:         true,
		VocabularyBoost: []string{"metformin"},
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}

	if res.FullText != "patient denies chest pain" {
		t.Errorf("full text = %q", res.FullText)
	}
	if len(res.Words) != 4 {
		t.Fatalf("words = %d, want 4", len(res.Words))
	}
	if res.Words[2].StartMs != 800 || res.Words[2].EndMs != 1200 {
		t.Errorf("timing = [%d,%d]", res.Words[2].StartMs, res.Words[2].EndMs)
	}
	if res.Words[0].Speaker != "A" || res.Words[3].Speaker != "B" {
		t.Errorf("speakers = %q %q", res.Words[0].Speaker, res.Words[3].Speaker)
	}
	if res.DurationMs != 2000 {
		t.Errorf("duration = %d, want 2000", res.DurationMs)
	}

	// Submit payload carries the recognition options.
	if f.gotSubmit["speaker_labels"] != true {
		t.Errorf("speaker_labels = %v", f.gotSubmit["speaker_labels"])
	}
	if f.gotSubmit["language_code"] != "en" {
		t.Errorf("language_code = %v", f.gotSubmit["language_code"])
	}
	if f.gotSubmit["boost_param"] != "high" {
		t.Errorf("boost_param = %v", f.gotSubmit["boost_param"])
	}
	boost, ok := f.gotSubmit["word_boost"].([]any)
	if !ok || len(boost) != 1 || boost[0] != "metformin" {
		t.Errorf("word_boost = %v", f.gotSubmit["word_boost"])
	}
}

func TestTranscribe_TranscriptionError(t *testing.T) {
	f := &fakeAPI{t: t, finalStatus: "error"}
	p := newTestProvider(t, f)

	_, err := p.Transcribe(context.Background(), writeAudio(t), stt.TranscribeOptions{})
	if err == nil {
		t.Fatal("expected error for failed transcription")
	}
}

func TestTranscribe_ContextCancelledWhilePolling(t *testing.T) {
	f := &fakeAPI{t: t, pollsUntilDone: 1 << 30}
	p := newTestProvider(t, f)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Transcribe(ctx, writeAudio(t), stt.TranscribeOptions{})
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestTranscribe_MissingFile(t *testing.T) {
	f := &fakeAPI{t: t}
	p := newTestProvider(t, f)

	if _, err := p.Transcribe(context.Background(), "/does/not/exist.wav", stt.TranscribeOptions{}); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNew_UploadClientGetsLongTimeout(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Whole-recording uploads must not share the short API timeout.
	if p.uploadClient.Timeout != uploadTimeout {
		t.Errorf("upload timeout = %v, want %v", p.uploadClient.Timeout, uploadTimeout)
	}
	if p.httpClient.Timeout != defaultTimeout {
		t.Errorf("api timeout = %v, want %v", p.httpClient.Timeout, defaultTimeout)
	}
	if p.uploadClient == p.httpClient {
		t.Error("upload client must be distinct from the api client")
	}
}

func TestWithHTTPClient_ReplacesBothClients(t *testing.T) {
	custom := &http.Client{Timeout: 42 * time.Second}
	p, err := New("test-key", WithHTTPClient(custom))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.httpClient != custom || p.uploadClient != custom {
		t.Error("WithHTTPClient must replace both clients")
	}
}

func TestParseTranscript_EmptyWords(t *testing.T) {
	res := parseTranscript(&transcriptResponse{
		ID:            "tr_9",
		Status:        "completed",
		Text:          "",
		AudioDuration: 1.5,
	})

	if res.WordCount() != 0 {
		t.Errorf("words = %d, want 0", res.WordCount())
	}
	if res.OverallConfidence != 0 {
		t.Errorf("confidence = %f, want 0", res.OverallConfidence)
	}
	if res.DurationMs != 1500 {
		t.Errorf("duration = %d", res.DurationMs)
	}
	if res.Language != "en" {
		t.Errorf("language = %q, want default en", res.Language)
	}
}
