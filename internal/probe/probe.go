// Package probe extracts duration, resolution, bitrate, and codecs from a
// reassembled source file via an external probing utility.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/filmdist/ingest/internal/domain/repository"
)

// Result is what the pipeline needs to size the transcode ladder and
// populate a VideoArtifact.
type Result struct {
	DurationSec float64
	Width       int
	Height      int
	BitrateBps  int64
	VideoCodec  string
	AudioCodec  string
	SizeBytes   int64
}

// Prober wraps an ffprobe binary.
type Prober struct {
	ffprobePath string
}

func New(ffprobePath string) *Prober {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Prober{ffprobePath: ffprobePath}
}

type ffprobeStream struct {
	CodecType string `json:"codec_type"`
	CodecName string `json:"codec_name"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
}

type ffprobeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
	Size     string `json:"size"`
}

type ffprobeOutput struct {
	Streams []ffprobeStream `json:"streams"`
	Format  ffprobeFormat   `json:"format"`
}

// Probe runs ffprobe against path and parses its JSON output. Fails with
// repository.ErrUnreadableMedia if the input cannot be decoded.
func (p *Prober) Probe(ctx context.Context, path string) (Result, error) {
	if _, err := os.Stat(path); err != nil {
		return Result{}, fmt.Errorf("probe: stat %s: %w", path, repository.ErrUnreadableMedia)
	}

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return Result{}, fmt.Errorf("probe: %s: %w", repository.ErrUnreadableMedia, err)
	}

	return parseProbeOutput(out)
}

// parseProbeOutput decodes ffprobe's JSON report into a Result. Split out
// from Probe so the parsing logic can be tested without invoking ffprobe.
func parseProbeOutput(raw []byte) (Result, error) {
	var parsed ffprobeOutput
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return Result{}, fmt.Errorf("probe: parse output: %w: %w", repository.ErrUnreadableMedia, err)
	}

	result := Result{}
	for _, s := range parsed.Streams {
		switch s.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = s.CodecName
				result.Width = s.Width
				result.Height = s.Height
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
			}
		}
	}

	if result.Width == 0 || result.Height == 0 {
		return Result{}, repository.ErrUnreadableMedia
	}

	result.DurationSec = parseFloat(parsed.Format.Duration)
	result.BitrateBps = parseInt(parsed.Format.BitRate)
	result.SizeBytes = parseInt(parsed.Format.Size)

	return result, nil
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func parseInt(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}
