package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ObjectStore downloads a video object into a local file.
type ObjectStore interface {
	DownloadVideo(ctx context.Context, objectKey string, destPath string) error
}

// Fetcher provisions video files for sessions from remote sources: plain
// HTTP(S) URLs or object-storage keys.
type Fetcher struct {
	tmpDir  string
	maxSize int64
	client  *http.Client
	storage ObjectStore // nil when object storage is disabled
	log     *zap.Logger
}

func NewFetcher(tmpDir string, maxSize int64, timeout time.Duration, storage ObjectStore, log *zap.Logger) *Fetcher {
	return &Fetcher{
		tmpDir:  tmpDir,
		maxSize: maxSize,
		client:  &http.Client{Timeout: timeout},
		storage: storage,
		log:     log,
	}
}

// FetchURL downloads a video over HTTP into the temp directory and returns
// the local path. The partial file is removed on any failure.
func (f *Fetcher) FetchURL(ctx context.Context, rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return "", fmt.Errorf("invalid video url: %s", rawURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("create fetch request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch video: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch video: unexpected status %d", resp.StatusCode)
	}

	destPath := f.tempPath(videoExt(parsed.Path))
	dest, err := os.Create(destPath)
	if err != nil {
		return "", fmt.Errorf("create video file: %w", err)
	}

	written, err := io.Copy(dest, io.LimitReader(resp.Body, f.maxSize+1))
	closeErr := dest.Close()
	if err != nil || closeErr != nil {
		os.Remove(destPath)
		if err == nil {
			err = closeErr
		}
		return "", fmt.Errorf("save video: %w", err)
	}
	if written > f.maxSize {
		os.Remove(destPath)
		return "", fmt.Errorf("video exceeds maximum size of %d bytes", f.maxSize)
	}

	f.log.Info("video fetched",
		zap.String("url", rawURL),
		zap.String("path", destPath),
		zap.Int64("bytes", written),
	)
	return destPath, nil
}

// FetchObject downloads a video from object storage and returns the local
// path.
func (f *Fetcher) FetchObject(ctx context.Context, objectKey string) (string, error) {
	if f.storage == nil {
		return "", fmt.Errorf("object storage is not configured")
	}

	destPath := f.tempPath(videoExt(objectKey))
	if err := f.storage.DownloadVideo(ctx, objectKey, destPath); err != nil {
		os.Remove(destPath)
		return "", fmt.Errorf("download object %s: %w", objectKey, err)
	}

	f.log.Info("video fetched from object storage",
		zap.String("object_key", objectKey),
		zap.String("path", destPath),
	)
	return destPath, nil
}

func (f *Fetcher) tempPath(ext string) string {
	return filepath.Join(f.tmpDir, fmt.Sprintf("input_%s%s", uuid.New().String(), ext))
}

var supportedExtensions = map[string]bool{
	".mp4": true, ".avi": true, ".mov": true, ".webm": true, ".mkv": true,
}

// videoExt keeps a recognized video extension and falls back to .mp4.
func videoExt(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if supportedExtensions[ext] {
		return ext
	}
	return ".mp4"
}
