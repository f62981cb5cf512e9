package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"math"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Static errors for media operations.
var (
	// ErrFrameCapture is returned when no frame could be captured at the requested time.
	ErrFrameCapture = errors.New("media: frame capture failed")
	// ErrInvalidTimestamp is returned for negative or NaN timestamps.
	ErrInvalidTimestamp = errors.New("media: timestamp must be a non-negative number")
	// ErrNoVideoStream is returned when the probed file carries no video stream.
	ErrNoVideoStream = errors.New("media: no video stream found")
	// ErrInvalidDuration is returned when the probed duration is missing or not positive.
	ErrInvalidDuration = errors.New("media: invalid duration: must be positive")
	// ErrFFprobeExecution is returned when ffprobe command fails.
	ErrFFprobeExecution = errors.New("ffprobe execution failed")
)

// defaultFrameRate is assumed when ffprobe reports no usable frame rate.
const defaultFrameRate = 25.0

// FFmpegSampler implements Prober and Sampler using the ffmpeg and ffprobe CLIs.
type FFmpegSampler struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFmpegSampler creates a new FFmpegSampler.
// Empty paths default to the binaries found via PATH.
func NewFFmpegSampler(ffmpegPath, ffprobePath string) *FFmpegSampler {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFmpegSampler{ffmpegPath: ffmpegPath, ffprobePath: ffprobePath}
}

// probeOutput mirrors the parts of `ffprobe -print_format json` we read.
type probeOutput struct {
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
	Streams []struct {
		CodecType string `json:"codec_type"`
		CodecName    string `json:"codec_name"`
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		Duration     string `json:"duration"`
		AvgFrameRate string `json:"avg_frame_rate"`
		RFrameRate   string `json:"r_frame_rate"`
	} `json:"streams"`
}

// Probe returns the duration and native dimensions of the first video stream.
func (p *FFmpegSampler) Probe(ctx context.Context, path string) (Video, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
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
		if ctx.Err() != nil {
			return Video{}, fmt.Errorf("ffprobe cancelled: %w", ctx.Err())
		}
		return Video{}, fmt.Errorf("%w: %w, stderr: %s", ErrFFprobeExecution, err, stderr.String())
	}

	var out probeOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return Video{}, fmt.Errorf("parse ffprobe output: %w", err)
	}

	video := Video{Path: path, Name: filepath.Base(path)}
	found := false
	for _, s := range out.Streams {
		if s.CodecType != "video" {
			continue
		}
		video.Width = s.Width
		video.Height = s.Height
		video.Codec = s.CodecName
		video.FrameRate = parseRate(s.AvgFrameRate)
		if video.FrameRate <= 0 {
			video.FrameRate = parseRate(s.RFrameRate)
		}
		video.Duration = parseSeconds(out.Format.Duration)
		if video.Duration <= 0 {
			video.Duration = parseSeconds(s.Duration)
		}
		found = true
		break
	}
	if !found || video.Width <= 0 || video.Height <= 0 {
		return Video{}, fmt.Errorf("%w: %s", ErrNoVideoStream, path)
	}
	if video.Duration <= 0 {
		return Video{}, fmt.Errorf("%w: %s", ErrInvalidDuration, path)
	}

	return video, nil
}

// ExtractFrame seeks to at and captures exactly one frame as a lossless PNG data URL.
// The frame keeps the coded dimensions of the stream (no scaling, no autorotation).
// Timestamps in the last frame interval, up to and including the duration, show the last frame.
func (p *FFmpegSampler) ExtractFrame(ctx context.Context, video Video, at float64) (string, error) {
	if math.IsNaN(at) || at < 0 {
		return "", fmt.Errorf("%w: got %v", ErrInvalidTimestamp, at)
	}
	if video.Duration > 0 && at > video.Duration {
		return "", fmt.Errorf("%w at %.3fs: past the end of a %.3fs video", ErrFrameCapture, at, video.Duration)
	}

	args := []string{
		"-v", "error",
		"-noautorotate",
		"-ss", strconv.FormatFloat(seekPosition(video, at), 'f', 6, 64), // Input seek: decode lands on the first frame at or after it
		"-i", video.Path,
		"-frames:v", "1", // One still
		"-an",              // Ignore audio
		"-f", "image2pipe", // Write to stdout
		"-c:v", "png",
		"-",
	}

	data, err := p.runFFmpeg(ctx, args)
	if err != nil {
		return "", fmt.Errorf("%w at %.3fs: %w", ErrFrameCapture, at, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w at %.3fs: no decodable frame", ErrFrameCapture, at)
	}

	if err := checkFrame(data, video); err != nil {
		return "", fmt.Errorf("%w at %.3fs: %w", ErrFrameCapture, at, err)
	}

	return EncodeDataURL(MIMETypePNG, data), nil
}

// seekPosition maps at onto a timestamp that still has a frame to decode.
// An input seek at or past the last frame's pts decodes nothing, so anything
// later than one and a half frame intervals before the end goes there instead:
// the first frame at or after that point is the last one.
func seekPosition(video Video, at float64) float64 {
	if video.Duration <= 0 {
		return at
	}
	rate := video.FrameRate
	if rate <= 0 {
		rate = defaultFrameRate
	}
	if last := video.Duration - 1.5/rate; at > last {
		return math.Max(0, last)
	}
	return at
}

// checkFrame verifies that data is a PNG with the video's native dimensions.
func checkFrame(data []byte, video Video) error {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	if format != "png" {
		return fmt.Errorf("unexpected %s frame", format)
	}
	if video.Width > 0 && video.Height > 0 && (cfg.Width != video.Width || cfg.Height != video.Height) {
		return fmt.Errorf("got %dx%d frame, want %dx%d", cfg.Width, cfg.Height, video.Width, video.Height)
	}
	return nil
}

// runFFmpeg executes ffmpeg and returns stdout. Failures carry the stderr output.
func (p *FFmpegSampler) runFFmpeg(ctx context.Context, args []string) ([]byte, error) {
	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffmpegPath, args...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
		}
		return nil, &FFmpegError{
			Args:   args,
			Stderr: stderr.String(),
			Err:    err,
		}
	}

	return stdout.Bytes(), nil
}

// FFmpegError represents an error from running ffmpeg, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}

// parseRate parses an ffprobe rational such as "30000/1001". Unknown rates ("0/0") yield 0.
func parseRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	if !ok {
		return parseSeconds(s)
	}
	n, d := parseSeconds(num), parseSeconds(den)
	if n <= 0 || d <= 0 {
		return 0
	}
	return n / d
}

func parseSeconds(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Compile-time checks that FFmpegSampler implements Prober and Sampler.
var (
	_ Prober  = (*FFmpegSampler)(nil)
	_ Sampler = (*FFmpegSampler)(nil)
)
