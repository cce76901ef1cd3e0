package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClassifier struct {
	calls  int
	result Result
	err    error
}

func (c *countingClassifier) Classify(ctx context.Context, frame []byte) (Result, error) {
	c.calls++
	if c.err != nil {
		return Result{}, c.err
	}
	return c.result, nil
}

func testJPEG(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, nil))
	return buf.Bytes()
}

func TestCachedClassifierHitsOnIdenticalFrames(t *testing.T) {
	upstream := &countingClassifier{result: Result{Label: "normal", Score: 0.9}}
	cached := NewCachedClassifier(upstream, 8)

	frame := testJPEG(t, color.RGBA{R: 200, A: 255})

	for i := 0; i < 5; i++ {
		result, err := cached.Classify(context.Background(), frame)
		require.NoError(t, err)
		assert.Equal(t, "normal", result.Label)
	}

	assert.Equal(t, 1, upstream.calls)
}

func TestCachedClassifierErrorsAreNotCached(t *testing.T) {
	upstream := &countingClassifier{err: errors.New("model down")}
	cached := NewCachedClassifier(upstream, 8)

	frame := testJPEG(t, color.RGBA{G: 120, A: 255})

	_, err := cached.Classify(context.Background(), frame)
	assert.Error(t, err)

	upstream.err = nil
	upstream.result = Result{Label: "nsfw", Score: 0.8}

	result, err := cached.Classify(context.Background(), frame)
	require.NoError(t, err)
	assert.Equal(t, "nsfw", result.Label)
	assert.Equal(t, 2, upstream.calls)
}

func TestCachedClassifierPassesThroughUndecodableFrames(t *testing.T) {
	upstream := &countingClassifier{result: Result{Label: "normal", Score: 0.5}}
	cached := NewCachedClassifier(upstream, 8)

	garbage := []byte("not a jpeg")

	_, err := cached.Classify(context.Background(), garbage)
	require.NoError(t, err)
	_, err = cached.Classify(context.Background(), garbage)
	require.NoError(t, err)

	assert.Equal(t, 2, upstream.calls)
}
