package video

import (
	"context"
	"errors"
)

// ErrClosed is returned by any cursor operation on a closed handle.
var ErrClosed = errors.New("video handle is closed")

// Properties is an immutable snapshot of a video's characteristics, taken
// once when the handle is opened.
type Properties struct {
	FPS         float64
	TotalFrames int
	Width       int
	Height      int
	Duration    float64 // seconds, TotalFrames / FPS
}

// FrameIndex converts a timestamp in seconds to a frame index.
func (p Properties) FrameIndex(timestamp float64) int {
	return int(timestamp * p.FPS)
}

// Access is a single-owner decode handle over one video resource. Seek and
// ReadFrame advance a shared stateful cursor and are not safe for concurrent
// use; callers serialize on their own lock.
type Access interface {
	Properties() Properties
	Seek(frameIndex int) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}

// Opener opens a video file and returns a positioned decode handle.
type Opener interface {
	Open(ctx context.Context, path string) (Access, error)
}
