package video

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

// FFmpegOpener opens videos through the ffmpeg/ffprobe binaries.
type FFmpegOpener struct{}

func NewFFmpegOpener() *FFmpegOpener {
	return &FFmpegOpener{}
}

// CheckInstallation verifies that ffmpeg and ffprobe are on PATH.
func CheckInstallation() error {
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if err := exec.Command(bin, "-version").Run(); err != nil {
			return fmt.Errorf("%s is not installed or not in PATH: %w", bin, err)
		}
	}
	return nil
}

func (o *FFmpegOpener) Open(ctx context.Context, path string) (Access, error) {
	props, err := probe(ctx, path)
	if err != nil {
		return nil, err
	}
	return &ffmpegAccess{path: path, props: props}, nil
}

// ffmpegAccess reads single frames by seeking with ffmpeg. The cursor is a
// frame index; ReadFrame decodes the frame at the cursor and advances it.
type ffmpegAccess struct {
	path  string
	props Properties
	pos   int

	mu     sync.Mutex
	closed bool
}

func (a *ffmpegAccess) Properties() Properties {
	return a.props
}

func (a *ffmpegAccess) Seek(frameIndex int) error {
	if a.isClosed() {
		return ErrClosed
	}
	if frameIndex < 0 {
		return fmt.Errorf("invalid frame index %d", frameIndex)
	}
	a.pos = frameIndex
	return nil
}

func (a *ffmpegAccess) ReadFrame(ctx context.Context) ([]byte, error) {
	if a.isClosed() {
		return nil, ErrClosed
	}
	if a.props.TotalFrames > 0 && a.pos >= a.props.TotalFrames {
		return nil, io.EOF
	}

	var offset float64
	if a.props.FPS > 0 {
		offset = float64(a.pos) / a.props.FPS
	}

	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-v", "error",
		"-ss", strconv.FormatFloat(offset, 'f', 6, 64),
		"-i", a.path,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"pipe:1",
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg read frame %d: %w", a.pos, err)
	}
	if len(output) == 0 {
		return nil, io.EOF
	}

	a.pos++
	return output, nil
}

func (a *ffmpegAccess) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *ffmpegAccess) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type probeOutput struct {
	Streams []struct {
		Width      int    `json:"width"`
		Height     int    `json:"height"`
		RFrameRate string `json:"r_frame_rate"`
		NBFrames   string `json:"nb_frames"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

func probe(ctx context.Context, path string) (Properties, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height,r_frame_rate,nb_frames",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return Properties{}, fmt.Errorf("ffprobe %s: %w", path, err)
	}
	return parseProbeOutput(output)
}

func parseProbeOutput(raw []byte) (Properties, error) {
	var out probeOutput
	if err := json.Unmarshal(raw, &out); err != nil {
		return Properties{}, fmt.Errorf("parse ffprobe output: %w", err)
	}
	if len(out.Streams) == 0 {
		return Properties{}, fmt.Errorf("no video stream found")
	}

	stream := out.Streams[0]
	fps := parseRate(stream.RFrameRate)

	totalFrames, err := strconv.Atoi(stream.NBFrames)
	if err != nil || totalFrames < 0 {
		// Some containers omit nb_frames; estimate from the format duration.
		if containerDur, derr := strconv.ParseFloat(strings.TrimSpace(out.Format.Duration), 64); derr == nil {
			totalFrames = int(containerDur * fps)
		} else {
			totalFrames = 0
		}
	}

	props := Properties{
		FPS:         fps,
		TotalFrames: totalFrames,
		Width:       stream.Width,
		Height:      stream.Height,
	}
	if fps > 0 {
		props.Duration = float64(totalFrames) / fps
	}
	return props, nil
}

// parseRate parses ffprobe's fractional rates ("30000/1001", "25/1").
func parseRate(rate string) float64 {
	num, den, found := strings.Cut(rate, "/")
	if !found {
		f, _ := strconv.ParseFloat(rate, 64)
		return f
	}
	n, err1 := strconv.ParseFloat(num, 64)
	d, err2 := strconv.ParseFloat(den, 64)
	if err1 != nil || err2 != nil || d == 0 {
		return 0
	}
	return n / d
}
