package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tendant/simple-media/pkg/simplemedia"
	"github.com/tendant/simple-media/pkg/simplemedia/objectkey"
	"github.com/tendant/simple-media/pkg/simplemedia/transcode"
)

// ErrNoVideoStreams is returned when a probed file carries no video
var ErrNoVideoStreams = errors.New("ffmpeg: no video streams")

const (
	defaultSegmentSeconds = 6
	maxDiagnosticBytes    = 4 << 10
)

// Config configures the ffmpeg binaries and HLS output
type Config struct {
	FFmpegPath     string
	FFprobePath    string
	SegmentSeconds int
	Preset         Preset
}

// Transcoder implements transcode.Transcoder by shelling out to ffmpeg and ffprobe
type Transcoder struct {
	config Config
	logger *slog.Logger
}

var _ transcode.Transcoder = (*Transcoder)(nil)

// New creates a transcoder. Empty binary paths resolve through $PATH.
func New(cfg Config, logger *slog.Logger) *Transcoder {
	if cfg.FFmpegPath == "" {
		cfg.FFmpegPath = "ffmpeg"
	}
	if cfg.FFprobePath == "" {
		cfg.FFprobePath = "ffprobe"
	}
	if cfg.SegmentSeconds <= 0 {
		cfg.SegmentSeconds = defaultSegmentSeconds
	}
	if cfg.Preset.VideoCodec == "" && cfg.Preset.AudioCodec == "" && len(cfg.Preset.ExtraArgs) == 0 {
		cfg.Preset = DefaultPreset
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transcoder{config: cfg, logger: logger}
}

// Probe runs ffprobe against a local file
func (t *Transcoder) Probe(ctx context.Context, path string) (*transcode.ProbeResult, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("%w: empty probe path", simplemedia.ErrInvalidRequest)
	}
	cmd := exec.CommandContext(ctx, t.config.FFprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, &simplemedia.ConversionError{Diagnostic: trimDiagnostic(stderr.String()), Err: fmt.Errorf("ffprobe: %w", err)}
	}
	return parseProbeOutput(stdout.Bytes())
}

// Convert segments inputPath into an HLS playlist inside outputDir
func (t *Transcoder) Convert(ctx context.Context, inputPath, outputDir string) error {
	args := t.convertArgs(inputPath, outputDir)
	t.logger.DebugContext(ctx, "running ffmpeg", "args", strings.Join(args, " "))

	cmd := exec.CommandContext(ctx, t.config.FFmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return &simplemedia.ConversionError{Diagnostic: trimDiagnostic(stderr.String()), Err: fmt.Errorf("ffmpeg: %w", err)}
	}
	return nil
}

func (t *Transcoder) convertArgs(inputPath, outputDir string) []string {
	args := []string{"-hide_banner", "-nostdin", "-y", "-i", inputPath}
	args = append(args, t.config.Preset.Args()...)
	args = append(args,
		"-f", "hls",
		"-hls_time", strconv.Itoa(t.config.SegmentSeconds),
		"-hls_playlist_type", "vod",
		"-hls_segment_filename", filepath.Join(outputDir, "segment_%05d.ts"),
		filepath.Join(outputDir, objectkey.PlaylistName),
	)
	return args
}

type probeOutput struct {
	Streams []struct {
		CodecType    string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func parseProbeOutput(data []byte) (*transcode.ProbeResult, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &transcode.ProbeResult{}
	hasVideo := false
	for _, s := range out.Streams {
		switch s.CodecType {
		case "video":
			if !hasVideo {
				result.VideoCodec = s.CodecName
				result.Width = s.Width
				result.Height = s.Height
				hasVideo = true
			}
		case "audio":
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
			}
		}
	}
	if !hasVideo {
		return nil, ErrNoVideoStreams
	}
	if out.Format.Duration != "" {
		d, err := strconv.ParseFloat(out.Format.Duration, 64)
		if err != nil {
			return nil, fmt.Errorf("parse duration %q: %w", out.Format.Duration, err)
		}
		result.DurationSeconds = d
	}
	return result, nil
}

func trimDiagnostic(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxDiagnosticBytes {
		s = s[len(s)-maxDiagnosticBytes:]
		for len(s) > 0 && !utf8.RuneStart(s[0]) {
			s = s[1:]
		}
	}
	return s
}
