package service

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/config"
)

// TempCleanup sweeps the temp directory for video files that no live
// session references. Crashed sessions or rejected uploads can leave
// input files behind; the sweeper reclaims them once they age past the
// cleanup window.
type TempCleanup struct {
	tmpDir string
	config *config.Config
	svc    *SessionService
	log    *zap.Logger
}

func NewTempCleanup(tmpDir string, cfg *config.Config, svc *SessionService, log *zap.Logger) *TempCleanup {
	return &TempCleanup{
		tmpDir: tmpDir,
		config: cfg,
		svc:    svc,
		log:    log,
	}
}

// Start runs the periodic sweep until the context is cancelled.
func (tc *TempCleanup) Start(ctx context.Context) {
	ticker := time.NewTicker(tc.config.CleanupInterval)
	defer ticker.Stop()

	tc.log.Info("temp cleanup started",
		zap.String("dir", tc.tmpDir),
		zap.Duration("window", tc.config.CleanupWindow),
	)

	for {
		select {
		case <-ctx.Done():
			tc.log.Info("temp cleanup stopped", zap.String("dir", tc.tmpDir))
			return
		case <-ticker.C:
			tc.sweepOrphans()
		}
	}
}

func (tc *TempCleanup) sweepOrphans() {
	cutoff := time.Now().Add(-tc.config.CleanupWindow)
	live := tc.svc.LivePaths()
	deleted := 0

	files, err := filepath.Glob(filepath.Join(tc.tmpDir, "input_*"))
	if err != nil {
		tc.log.Error("failed to read temp directory", zap.Error(err))
		return
	}

	for _, file := range files {
		if live[file] {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(file); err != nil {
				tc.log.Warn("failed to delete orphaned video",
					zap.String("file", file), zap.Error(err))
			} else {
				deleted++
			}
		}
	}

	if deleted > 0 {
		tc.log.Info("cleaned up orphaned videos",
			zap.Int("count", deleted), zap.String("dir", tc.tmpDir))
	}
}

// CleanupAll removes every orphaned video regardless of age. Backs the
// admin cleanup endpoint; returns the paths it deleted.
func (tc *TempCleanup) CleanupAll() ([]string, error) {
	live := tc.svc.LivePaths()

	files, err := filepath.Glob(filepath.Join(tc.tmpDir, "input_*"))
	if err != nil {
		return nil, err
	}

	removed := make([]string, 0, len(files))
	for _, file := range files {
		if live[file] {
			continue
		}
		if err := os.Remove(file); err != nil {
			tc.log.Warn("failed to delete orphaned video",
				zap.String("file", file), zap.Error(err))
			continue
		}
		removed = append(removed, file)
	}

	tc.log.Info("manual cleanup finished", zap.Int("count", len(removed)))
	return removed, nil
}
