package service

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gw-dg/palanam-latency/internal/models"
)

func writeTempVideo(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "input_test.mp4")
	require.NoError(t, os.WriteFile(path, []byte("not a real video"), 0o644))
	return path
}

func TestCreateAndGet(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})

	session := svc.Create("/tmp/input_a.mp4")
	require.NotEmpty(t, session.ID)
	assert.Equal(t, models.StatusReady, session.Status)

	got, ok := svc.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, session.ID, got.ID)

	path, err := svc.VideoPath(session.ID)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/input_a.mp4", path)

	_, err = svc.VideoPath("missing")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAttachSnapshotsProperties(t *testing.T) {
	access := newStubAccess()
	svc := newTestService(t, &stubOpener{access: access}, &stubClassifier{})
	session := svc.Create("/tmp/input_a.mp4")

	require.NoError(t, svc.Attach(context.Background(), session.ID, "/tmp/input_a.mp4"))

	got, ok := svc.Get(session.ID)
	require.True(t, ok)
	assert.Equal(t, 30.0, got.Props.FPS)
	assert.Equal(t, 300, got.Props.TotalFrames)
	assert.Equal(t, 10.0, got.Props.Duration)

	// The read-back check must leave the cursor on frame 0.
	ops := access.operations()
	require.NotEmpty(t, ops)
	assert.Equal(t, "seek:0", ops[len(ops)-1])
}

func TestAttachIdempotent(t *testing.T) {
	opener := &stubOpener{access: newStubAccess()}
	svc := newTestService(t, opener, &stubClassifier{})
	session := svc.Create("/tmp/input_a.mp4")

	require.NoError(t, svc.Attach(context.Background(), session.ID, "/tmp/input_a.mp4"))
	require.NoError(t, svc.Attach(context.Background(), session.ID, "/tmp/input_a.mp4"))

	assert.Equal(t, 1, opener.openCount())
}

func TestAttachUnreadableVideo(t *testing.T) {
	opener := &stubOpener{err: errors.New("moov atom not found")}
	svc := newTestService(t, opener, &stubClassifier{})
	session := svc.Create("/tmp/input_bad.mp4")

	err := svc.Attach(context.Background(), session.ID, "/tmp/input_bad.mp4")
	assert.ErrorIs(t, err, ErrVideoUnreadable)
}

func TestAttachEmptyVideo(t *testing.T) {
	access := newStubAccess()
	access.readErr = io.EOF
	svc := newTestService(t, &stubOpener{access: access}, &stubClassifier{})
	session := svc.Create("/tmp/input_empty.mp4")

	err := svc.Attach(context.Background(), session.ID, "/tmp/input_empty.mp4")
	assert.ErrorIs(t, err, ErrEmptyVideo)
	assert.True(t, access.isClosed(), "rejected handle must be closed")
}

func TestAttachUnknownSession(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})
	err := svc.Attach(context.Background(), "missing", "/tmp/input_a.mp4")
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestBindConnectionRejectsSecond(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})
	session := svc.Create("/tmp/input_a.mp4")

	first := &stubConn{}
	second := &stubConn{}
	require.NoError(t, svc.BindConnection(session.ID, first))

	err := svc.BindConnection(session.ID, second)
	assert.ErrorIs(t, err, ErrConnectionBound)

	// The established connection stays bound.
	got, _ := svc.Get(session.ID)
	assert.Same(t, models.EventSender(first), got.Conn)
}

func TestRemoveReleasesEverything(t *testing.T) {
	access := newStubAccess()
	svc := newTestService(t, &stubOpener{access: access}, &stubClassifier{})

	videoPath := writeTempVideo(t)
	session := svc.Create(videoPath)
	require.NoError(t, svc.Attach(context.Background(), session.ID, videoPath))
	conn := &stubConn{}
	require.NoError(t, svc.BindConnection(session.ID, conn))

	svc.Remove(session.ID)

	assert.True(t, access.isClosed())
	_, err := os.Stat(videoPath)
	assert.True(t, os.IsNotExist(err), "backing file must be deleted")
	assert.Equal(t, 1, conn.closeCount())
	_, ok := svc.Get(session.ID)
	assert.False(t, ok)
	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestRemoveIdempotent(t *testing.T) {
	access := newStubAccess()
	svc := newTestService(t, &stubOpener{access: access}, &stubClassifier{})

	session := svc.Create(writeTempVideo(t))
	require.NoError(t, svc.Attach(context.Background(), session.ID, session.VideoPath))
	conn := &stubConn{}
	require.NoError(t, svc.BindConnection(session.ID, conn))

	svc.Remove(session.ID)
	svc.Remove(session.ID)
	svc.Remove("missing")

	assert.Equal(t, 1, conn.closeCount())
}

func TestRemoveWaitsForScanAck(t *testing.T) {
	access := newStubAccess()
	svc := newTestService(t, &stubOpener{access: access}, &stubClassifier{result: okResult()})

	session := svc.Create(writeTempVideo(t))
	require.NoError(t, svc.Attach(context.Background(), session.ID, session.VideoPath))
	require.NoError(t, svc.BindConnection(session.ID, &stubConn{}))
	svc.StartScan(session.ID)

	// Give the coordinator a few ticks before tearing down mid-flight.
	time.Sleep(10 * time.Millisecond)
	svc.Remove(session.ID)

	assert.Equal(t, 0, access.operationsAfterClose(),
		"no cursor operation may follow teardown's close")
}

func TestStartScanAtMostOnce(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{result: okResult()})

	session := svc.Create(writeTempVideo(t))
	require.NoError(t, svc.Attach(context.Background(), session.ID, session.VideoPath))
	require.NoError(t, svc.BindConnection(session.ID, &stubConn{}))

	svc.StartScan(session.ID)
	got, _ := svc.Get(session.ID)
	first := got.ScanDone
	require.NotNil(t, first)

	svc.StartScan(session.ID)
	got, _ = svc.Get(session.ID)
	assert.Equal(t, first, got.ScanDone, "repeat StartScan must not replace the task")

	svc.Remove(session.ID)
}

func TestShutdownRemovesAllSessions(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})

	svc.Create(writeTempVideo(t))
	svc.Create(writeTempVideo(t))
	svc.Create(writeTempVideo(t))
	require.Equal(t, 3, svc.ActiveSessions())

	svc.Shutdown()
	assert.Equal(t, 0, svc.ActiveSessions())
}

func TestLivePaths(t *testing.T) {
	svc := newTestService(t, &stubOpener{access: newStubAccess()}, &stubClassifier{})

	a := svc.Create("/tmp/input_a.mp4")
	svc.Create("/tmp/input_b.mp4")

	paths := svc.LivePaths()
	assert.True(t, paths["/tmp/input_a.mp4"])
	assert.True(t, paths["/tmp/input_b.mp4"])

	svc.Remove(a.ID)
	paths = svc.LivePaths()
	assert.False(t, paths["/tmp/input_a.mp4"])
}
