package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/classifier"
	"github.com/gw-dg/palanam-latency/internal/config"
	"github.com/gw-dg/palanam-latency/internal/models"
	"github.com/gw-dg/palanam-latency/internal/video"
)

// stubAccess is an instrumented decode handle. It records every cursor
// operation in order and fails any operation issued after Close, which lets
// tests prove teardown never races the cursor.
type stubAccess struct {
	mu            sync.Mutex
	props         video.Properties
	frame         []byte
	seekErr       error
	readErr       error
	closed        bool
	ops           []string
	opsAfterClose int
}

func newStubAccess() *stubAccess {
	return &stubAccess{
		props: video.Properties{
			FPS:         30,
			TotalFrames: 300,
			Width:       640,
			Height:      480,
			Duration:    10,
		},
		frame: []byte{0xff, 0xd8, 0xff, 0xdb},
	}
}

func (a *stubAccess) Properties() video.Properties { return a.props }

func (a *stubAccess) Seek(frameIndex int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.opsAfterClose++
		return video.ErrClosed
	}
	if a.seekErr != nil {
		return a.seekErr
	}
	a.ops = append(a.ops, fmt.Sprintf("seek:%d", frameIndex))
	return nil
}

func (a *stubAccess) ReadFrame(ctx context.Context) ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		a.opsAfterClose++
		return nil, video.ErrClosed
	}
	if a.readErr != nil {
		return nil, a.readErr
	}
	a.ops = append(a.ops, "read")
	return a.frame, nil
}

func (a *stubAccess) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closed = true
	return nil
}

func (a *stubAccess) operations() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ops...)
}

func (a *stubAccess) operationsAfterClose() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.opsAfterClose
}

func (a *stubAccess) isClosed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

type stubOpener struct {
	mu     sync.Mutex
	access video.Access
	err    error
	opens  int
}

func (o *stubOpener) Open(ctx context.Context, path string) (video.Access, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.opens++
	if o.err != nil {
		return nil, o.err
	}
	return o.access, nil
}

func (o *stubOpener) openCount() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.opens
}

type stubClassifier struct {
	mu     sync.Mutex
	result classifier.Result
	err    error
	calls  int
}

func (c *stubClassifier) Classify(ctx context.Context, frame []byte) (classifier.Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	if c.err != nil {
		return classifier.Result{}, c.err
	}
	return c.result, nil
}

func (c *stubClassifier) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// stubConn records every event pushed to the client.
type stubConn struct {
	mu      sync.Mutex
	events  []interface{}
	sendErr error
	closes  int
}

func (c *stubConn) Send(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.events = append(c.events, v)
	return nil
}

func (c *stubConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes++
	return nil
}

func (c *stubConn) sent() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]interface{}(nil), c.events...)
}

func (c *stubConn) closeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

type stubPublisher struct {
	mu         sync.Mutex
	detections []models.Detection
}

func (p *stubPublisher) PublishDetection(ctx context.Context, d models.Detection) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.detections = append(p.detections, d)
	return nil
}

func (p *stubPublisher) published() []models.Detection {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]models.Detection(nil), p.detections...)
}

func okResult() classifier.Result {
	return classifier.Result{Label: "normal", Score: 0.98}
}

func testConfig() *config.Config {
	return &config.Config{
		BenignLabel:      "normal",
		ScanStepSeconds:  0.5,
		ScanTickInterval: time.Millisecond,
		IdleTimeout:      30 * time.Second,
	}
}

func newTestService(t *testing.T, opener video.Opener, cls classifier.Classifier) *SessionService {
	t.Helper()
	return NewSessionService(testConfig(), opener, cls, nil, nil, zap.NewNop())
}
