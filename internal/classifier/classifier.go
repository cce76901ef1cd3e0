package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// Result is one classification outcome for a single frame.
type Result struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Classifier labels a single JPEG-encoded frame.
type Classifier interface {
	Classify(ctx context.Context, frame []byte) (Result, error)
}

// HTTPClassifier forwards frames to a model-serving endpoint that accepts a
// multipart image upload and answers with a ranked label list.
type HTTPClassifier struct {
	url    string
	client *http.Client
}

func NewHTTPClassifier(url string, timeout time.Duration) *HTTPClassifier {
	return &HTTPClassifier{
		url: url,
		client: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, frame []byte) (Result, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("image", "frame.jpeg")
	if err != nil {
		return Result{}, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(frame); err != nil {
		return Result{}, fmt.Errorf("write frame data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return Result{}, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, body)
	if err != nil {
		return Result{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("classifier returned status %d: %s", resp.StatusCode, string(data))
	}

	// The model API answers with labels ranked by score; the top entry wins.
	var results []Result
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return Result{}, fmt.Errorf("decode classifier response: %w", err)
	}
	if len(results) == 0 {
		return Result{}, fmt.Errorf("classifier returned no results")
	}
	return results[0], nil
}

// Probe verifies the classifier endpoint is reachable and answering by
// classifying a synthetic solid-color image.
func (c *HTTPClassifier) Probe(ctx context.Context) error {
	img := image.NewRGBA(image.Rect(0, 0, 224, 224))
	for y := 0; y < 224; y++ {
		for x := 0; x < 224; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 75}); err != nil {
		return fmt.Errorf("encode probe image: %w", err)
	}

	if _, err := c.Classify(ctx, buf.Bytes()); err != nil {
		return fmt.Errorf("classifier probe: %w", err)
	}
	return nil
}
