package service

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeAgedFile(t *testing.T, dir, name string, age time.Duration) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	old := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, old, old))
	return path
}

func TestSweepRemovesOnlyAgedOrphans(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})

	cfg := testConfig()
	cfg.CleanupWindow = time.Hour
	tc := NewTempCleanup(dir, cfg, svc, zap.NewNop())

	orphanOld := writeAgedFile(t, dir, "input_old.mp4", 2*time.Hour)
	orphanNew := writeAgedFile(t, dir, "input_new.mp4", time.Minute)
	liveOld := writeAgedFile(t, dir, "input_live.mp4", 2*time.Hour)
	svc.Create(liveOld)

	tc.sweepOrphans()

	_, err := os.Stat(orphanOld)
	assert.True(t, os.IsNotExist(err), "aged orphan must be removed")
	_, err = os.Stat(orphanNew)
	assert.NoError(t, err, "recent orphan stays until it ages out")
	_, err = os.Stat(liveOld)
	assert.NoError(t, err, "files of live sessions are never touched")
}

func TestCleanupAllIgnoresAge(t *testing.T) {
	dir := t.TempDir()
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})
	tc := NewTempCleanup(dir, testConfig(), svc, zap.NewNop())

	fresh := writeAgedFile(t, dir, "input_fresh.mp4", 0)
	live := writeAgedFile(t, dir, "input_live.mp4", 0)
	svc.Create(live)

	removed, err := tc.CleanupAll()
	require.NoError(t, err)
	assert.Equal(t, []string{fresh}, removed)

	_, err = os.Stat(live)
	assert.NoError(t, err)
}
