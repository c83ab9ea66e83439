package transcoder

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds configuration for the FFmpeg-backed encoder.
type Config struct {
	// FFmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg"
	// (assumes it's in PATH).
	FFmpegPath string

	// VideoCodec is the video codec to use. Default: libx264.
	VideoCodec string

	// VideoPreset controls the encoding speed/quality tradeoff.
	VideoPreset string

	// AudioCodec is the audio codec to use. Default: aac.
	AudioCodec string
}

func DefaultConfig() Config {
	return Config{
		FFmpegPath:  "ffmpeg",
		VideoCodec:  "libx264",
		VideoPreset: "fast",
		AudioCodec:  "aac",
	}
}

// Encoder runs ffmpeg subprocesses for one ladder rung at a time.
type Encoder struct {
	cfg Config
}

func NewEncoder(cfg Config) *Encoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	return &Encoder{cfg: cfg}
}

// encode runs the first rung phase: scale to targetHeight and write an
// MP4 with faststart enabled, reporting progress against totalDurationSec.
func (e *Encoder) encode(ctx context.Context, inputPath, outputPath string, targetHeight int, totalDurationSec float64, onPercent func(int)) error {
	if err := validateInput(inputPath); err != nil {
		return err
	}

	scaleFilter := fmt.Sprintf("scale=-2:%d", targetHeight)
	args := []string{
		"-y",
		"-i", inputPath,
		"-vf", scaleFilter,
		"-c:v", e.cfg.VideoCodec,
		"-preset", e.cfg.VideoPreset,
		"-c:a", e.cfg.AudioCodec,
		"-movflags", "+faststart",
		"-progress", "pipe:1",
		"-nostats",
		outputPath,
	}

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("transcoder: stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("transcoder: start encode: %w", err)
	}

	go watchProgress(stdout, totalDurationSec, onPercent)

	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("transcoder: encode cancelled: %w", ctx.Err())
		}
		return fmt.Errorf("transcoder: encode: %w", err)
	}
	return nil
}

// segment runs the second rung phase: cut the encoded MP4 into an HLS
// variant playlist with integer-only segment durations.
func (e *Encoder) segment(ctx context.Context, inputPath, outputDir, label, baseName string, segmentDurationSec int) (playlistPath string, err error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return "", fmt.Errorf("transcoder: create hls dir: %w", err)
	}

	playlistName := fmt.Sprintf("%s_%s.m3u8", label, baseName)
	playlistPath = filepath.Join(outputDir, playlistName)
	segmentPattern := filepath.Join(outputDir, fmt.Sprintf("%s_%s_%%03d.ts", label, baseName))

	args := []string{
		"-y",
		"-i", inputPath,
		"-c", "copy",
		"-f", "hls",
		"-hls_time", strconv.Itoa(segmentDurationSec),
		"-hls_list_size", "0",
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", segmentPattern,
		playlistPath,
	}

	cmd := exec.CommandContext(ctx, e.cfg.FFmpegPath, args...)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("transcoder: segment cancelled: %w", ctx.Err())
		}
		return "", fmt.Errorf("transcoder: segment: %w", err)
	}
	return playlistPath, nil
}

// watchProgress parses ffmpeg's "-progress pipe:1" key=value stream and
// reports a rounded-down percentage as out_time advances.
func watchProgress(r io.Reader, totalDurationSec float64, onPercent func(int)) {
	if onPercent == nil || totalDurationSec <= 0 {
		io.Copy(io.Discard, r)
		return
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "out_time_ms=") {
			continue
		}
		microseconds, err := strconv.ParseInt(strings.TrimPrefix(line, "out_time_ms="), 10, 64)
		if err != nil {
			continue
		}
		seconds := float64(microseconds) / 1_000_000
		pct := int(seconds / totalDurationSec * 100)
		if pct > 100 {
			pct = 100
		}
		if pct < 0 {
			pct = 0
		}
		onPercent(pct)
	}
}

func validateInput(inputPath string) error {
	info, err := os.Stat(inputPath)
	if err != nil {
		return fmt.Errorf("transcoder: input file does not exist: %s", inputPath)
	}
	if info.IsDir() {
		return fmt.Errorf("transcoder: input path is a directory: %s", inputPath)
	}
	return nil
}
