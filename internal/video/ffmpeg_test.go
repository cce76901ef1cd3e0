package video

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseProbeOutput(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"width": 1920, "height": 1080, "r_frame_rate": "30/1", "nb_frames": "300"}
		],
		"format": {"duration": "10.000000"}
	}`)

	props, err := parseProbeOutput(raw)
	require.NoError(t, err)

	assert.Equal(t, 30.0, props.FPS)
	assert.Equal(t, 300, props.TotalFrames)
	assert.Equal(t, 1920, props.Width)
	assert.Equal(t, 1080, props.Height)
	assert.Equal(t, 10.0, props.Duration)
}

func TestParseProbeOutputMissingFrameCount(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"width": 640, "height": 480, "r_frame_rate": "25/1", "nb_frames": "N/A"}
		],
		"format": {"duration": "4.0"}
	}`)

	props, err := parseProbeOutput(raw)
	require.NoError(t, err)

	assert.Equal(t, 25.0, props.FPS)
	assert.Equal(t, 100, props.TotalFrames)
	assert.Equal(t, 4.0, props.Duration)
}

func TestParseProbeOutputNoStreams(t *testing.T) {
	_, err := parseProbeOutput([]byte(`{"streams": [], "format": {}}`))
	assert.Error(t, err)
}

func TestParseRate(t *testing.T) {
	assert.Equal(t, 30.0, parseRate("30/1"))
	assert.InDelta(t, 29.97, parseRate("30000/1001"), 0.001)
	assert.Equal(t, 24.0, parseRate("24"))
	assert.Equal(t, 0.0, parseRate("0/0"))
	assert.Equal(t, 0.0, parseRate("garbage"))
}

func TestPropertiesFrameIndex(t *testing.T) {
	props := Properties{FPS: 30, TotalFrames: 300, Duration: 10}

	assert.Equal(t, 150, props.FrameIndex(5.0))
	assert.Equal(t, 0, props.FrameIndex(0))
	assert.Equal(t, 330, props.FrameIndex(11.0))
}

func TestClosedHandleRejectsCursorOps(t *testing.T) {
	a := &ffmpegAccess{path: "x.mp4", props: Properties{FPS: 30, TotalFrames: 10}}
	require.NoError(t, a.Close())

	assert.ErrorIs(t, a.Seek(0), ErrClosed)
	_, err := a.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
}

func TestDurationZeroWhenRateUnknown(t *testing.T) {
	raw := []byte(`{
		"streams": [
			{"width": 320, "height": 240, "r_frame_rate": "0/0", "nb_frames": "50"}
		],
		"format": {"duration": "2.0"}
	}`)

	props, err := parseProbeOutput(raw)
	require.NoError(t, err)
	assert.Equal(t, 0.0, props.FPS)
	assert.Equal(t, 0.0, props.Duration)
}
