// Package audio provides ffmpeg-backed helpers for probing and slicing audio
// files. Segment slices are written as short-lived MP3 artifacts that every
// STT vendor accepts; the caller owns the artifact and must release it.
package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"time"
)

// DefaultPaddingMs is the slack added on each side of an extracted segment.
// Vendors degrade near slice edges; the padding does not shift returned
// timestamps, which the provider adapters re-anchor to the original axis.
const DefaultPaddingMs = 100

// ErrFFmpegFailed indicates that the ffmpeg process exited with an error.
var ErrFFmpegFailed = errors.New("audio: ffmpeg failed")

// Extractor slices audio files with ffmpeg. The zero value is not usable;
// construct with NewExtractor.
type Extractor struct {
	ffmpegPath string
	paddingMs  int64
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithFFmpegPath overrides the ffmpeg binary location. Default: "ffmpeg"
// resolved through PATH.
func WithFFmpegPath(path string) Option {
	return func(e *Extractor) {
		e.ffmpegPath = path
	}
}

// WithPadding sets the per-side segment padding in milliseconds.
func WithPadding(paddingMs int64) Option {
	return func(e *Extractor) {
		e.paddingMs = paddingMs
	}
}

// NewExtractor returns an Extractor with default padding.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{
		ffmpegPath: "ffmpeg",
		paddingMs:  DefaultPaddingMs,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// ExtractSegment writes [startMs-padding, endMs+padding] of audioPath to a
// temporary MP3 file and returns its path together with a release function.
// The caller must invoke release on every exit path, including provider
// failures, to avoid accumulating temp artifacts in long-running services.
func (e *Extractor) ExtractSegment(ctx context.Context, audioPath string, startMs, endMs int64) (path string, release func(), err error) {
	if startMs < 0 || endMs <= startMs {
		return "", nil, fmt.Errorf("audio: invalid segment [%d, %d]", startMs, endMs)
	}

	paddedStart := startMs - e.paddingMs
	if paddedStart < 0 {
		paddedStart = 0
	}
	paddedEnd := endMs + e.paddingMs
	if dur, derr := e.Duration(ctx, audioPath); derr == nil && paddedEnd > dur {
		paddedEnd = dur
	}

	tmp, err := os.CreateTemp("", "nova-segment-*.mp3")
	if err != nil {
		return "", nil, fmt.Errorf("audio: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	tmp.Close()

	cleanup := func() { _ = os.Remove(tmpPath) }

	args := []string{
		"-y",
		"-hide_banner",
		"-i", audioPath,
		"-ss", formatTime(paddedStart),
		"-to", formatTime(paddedEnd),
		"-codec:a", "libmp3lame",
		"-q:a", "2",
		tmpPath,
	}
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("%w: extract [%d, %d] from %s: %v\noutput: %s",
			ErrFFmpegFailed, startMs, endMs, audioPath, err, out)
	}

	return tmpPath, cleanup, nil
}

// Duration returns the duration of audioPath in milliseconds. It decodes to
// the null muxer rather than calling ffprobe, which may not be installed
// alongside ffmpeg.
func (e *Extractor) Duration(ctx context.Context, audioPath string) (int64, error) {
	args := []string{
		"-hide_banner",
		"-i", audioPath,
		"-f", "null", "-",
	}
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("%w: probe %s: %v", ErrFFmpegFailed, audioPath, err)
	}

	d, err := parseDuration(string(out))
	if err != nil {
		return 0, fmt.Errorf("audio: probe %s: %w", audioPath, err)
	}
	return d.Milliseconds(), nil
}

var durationRe = regexp.MustCompile(`Duration:\s*(\d+):(\d+):(\d+)\.(\d+)`)

// parseDuration extracts the "Duration: HH:MM:SS.cc" line from ffmpeg output.
func parseDuration(output string) (time.Duration, error) {
	m := durationRe.FindStringSubmatch(output)
	if m == nil {
		return 0, errors.New("no duration in ffmpeg output")
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])

	frac := m[4]
	for len(frac) < 3 {
		frac += "0"
	}
	ms, _ := strconv.Atoi(frac[:3])

	return time.Duration(h)*time.Hour +
		time.Duration(min)*time.Minute +
		time.Duration(s)*time.Second +
		time.Duration(ms)*time.Millisecond, nil
}

// formatTime renders a millisecond offset as an ffmpeg -ss/-to argument.
func formatTime(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := d.Seconds() - float64(h*3600+m*60)
	return fmt.Sprintf("%02d:%02d:%06.3f", h, m, s)
}
