package audio

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"
)

const (
	transcodeTimeout = 15 * time.Second

	// ffmpeg's atempo filter only accepts this range.
	minTempo = 0.5
	maxTempo = 2.0

	// Sanity limit on decoded output.
	maxPCMSize = 20 * 1024 * 1024
)

// Transcode converts a compressed audio payload (MP3, OGG, WAV, whatever the
// TTS backend returns) to s16le mono PCM at the player's sample rate using
// ffmpeg, applying the playback rate with the atempo filter so pitch is
// preserved. Rates outside ffmpeg's supported range are clamped.
func Transcode(ctx context.Context, data []byte, rate float64) ([]byte, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no audio data to transcode")
	}

	in, err := os.CreateTemp("", "parley-*.audio")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	defer os.Remove(in.Name())

	if _, err := in.Write(data); err != nil {
		in.Close()
		return nil, fmt.Errorf("failed to write temp audio file: %w", err)
	}
	in.Close()

	args := []string{
		"-i", in.Name(),
		"-f", "s16le",
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", fmt.Sprintf("%d", Channels),
	}
	if rate > 0 && (rate < 0.999 || rate > 1.001) {
		tempo := rate
		if tempo < minTempo {
			tempo = minTempo
		} else if tempo > maxTempo {
			tempo = maxTempo
		}
		args = append(args, "-filter:a", fmt.Sprintf("atempo=%.2f", tempo))
	}
	args = append(args, "-")

	ctx, cancel := context.WithTimeout(ctx, transcodeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg transcode timeout: %w", ctx.Err())
		}
		return nil, fmt.Errorf("ffmpeg failed: %w, stderr: %s", err, stderr.String())
	}

	pcm := stdout.Bytes()
	if len(pcm) == 0 {
		return nil, fmt.Errorf("ffmpeg produced no PCM output, stderr: %s", stderr.String())
	}
	if len(pcm) > maxPCMSize {
		return nil, fmt.Errorf("decoded PCM too large: %d bytes (max %d)", len(pcm), maxPCMSize)
	}

	log.Debug("transcoded audio", "in_bytes", len(data), "out_bytes", len(pcm), "rate", rate)
	return pcm, nil
}

// ValidateTranscoder checks that ffmpeg is available on PATH. Called once at
// startup so a missing binary fails fast instead of on the first reply.
func ValidateTranscoder() error {
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("ffmpeg not found in PATH (required for audio playback): %w", err)
	}
	return nil
}
