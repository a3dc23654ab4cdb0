package audio

import (
	"context"
	"testing"
	"time"
)

func TestParseDuration(t *testing.T) {
	out := `Input #0, wav, from 'visit.wav':
  Duration: 00:12:34.56, start: 0.000000, bitrate: 256 kb/s
...
size=N/A time=00:12:34.56 bitrate=N/A speed= 500x`

	d, err := parseDuration(out)
	if err != nil {
		t.Fatalf("parseDuration: %v", err)
	}
	want := 12*time.Minute + 34*time.Second + 560*time.Millisecond
	if d != want {
		t.Errorf("duration = %v, want %v", d, want)
	}
}

func TestParseDuration_Hours(t *testing.T) {
	d, err := parseDuration("  Duration: 01:02:03.004, start: 0")
	if err != nil {
		t.Fatalf("parseDuration: %v", err)
	}
	want := time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond
	if d != want {
		t.Errorf("duration = %v, want %v", d, want)
	}
}

func TestParseDuration_Missing(t *testing.T) {
	if _, err := parseDuration("no duration line here"); err == nil {
		t.Error("expected error for output without duration")
	}
}

func TestFormatTime(t *testing.T) {
	cases := []struct {
		ms   int64
		want string
	}{
		{0, "00:00:00.000"},
		{1500, "00:00:01.500"},
		{65250, "00:01:05.250"},
		{3_600_000, "01:00:00.000"},
		{3_725_125, "01:02:05.125"},
	}
	for _, c := range cases {
		if got := formatTime(c.ms); got != c.want {
			t.Errorf("formatTime(%d) = %q, want %q", c.ms, got, c.want)
		}
	}
}

func TestExtractSegment_InvalidBounds(t *testing.T) {
	e := NewExtractor()

	if _, _, err := e.ExtractSegment(context.Background(), "a.wav", -1, 100); err == nil {
		t.Error("expected error for negative start")
	}
	if _, _, err := e.ExtractSegment(context.Background(), "a.wav", 500, 500); err == nil {
		t.Error("expected error for empty segment")
	}
	if _, _, err := e.ExtractSegment(context.Background(), "a.wav", 800, 500); err == nil {
		t.Error("expected error for inverted segment")
	}
}

func TestNewExtractor_Options(t *testing.T) {
	e := NewExtractor(WithFFmpegPath("/opt/ffmpeg/bin/ffmpeg"), WithPadding(250))
	if e.ffmpegPath != "/opt/ffmpeg/bin/ffmpeg" {
		t.Errorf("ffmpeg path = %q", e.ffmpegPath)
	}
	if e.paddingMs != 250 {
		t.Errorf("padding = %d", e.paddingMs)
	}

	if d := NewExtractor(); d.paddingMs != DefaultPaddingMs {
		t.Errorf("default padding = %d", d.paddingMs)
	}
}
