package models

import (
	"context"
	"sync"
	"time"

	"github.com/gw-dg/palanam-latency/internal/video"
)

// EventSender pushes outbound events to the session's client connection.
// Delivery is fire-and-forget; a send failure means the connection is gone.
type EventSender interface {
	Send(v interface{}) error
	Close() error
}

// Session is the single record owning every per-session resource. Each
// resource field has at most one live value and is released exactly once
// during teardown.
type Session struct {
	ID        string
	VideoPath string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time

	Props video.Properties
	Video video.Access
	Conn  EventSender

	// Ambient scan task handles: CancelScan requests cooperative stop,
	// ScanDone is closed by the coordinator when it has fully exited.
	CancelScan context.CancelFunc
	ScanDone   chan struct{}

	// CursorMu serializes seek/read pairs against the decode cursor. Closing
	// the video handle takes the same lock, so no cursor call can observe a
	// handle mid-close.
	CursorMu sync.Mutex
}

// Session statuses
const (
	StatusReady     = "ready"
	StatusStreaming = "streaming"
	StatusClosing   = "closing"
)

// Detection is one classification outcome. It is forwarded to the client
// immediately and optionally persisted for audit; nothing in the streaming
// path retains it.
type Detection struct {
	SessionID  string
	Timestamp  float64
	FrameIndex int
	Label      string
	Confidence float64
	Flagged    bool
}
