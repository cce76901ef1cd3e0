package service

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/classifier"
	"github.com/gw-dg/palanam-latency/internal/config"
	"github.com/gw-dg/palanam-latency/internal/metrics"
	"github.com/gw-dg/palanam-latency/internal/models"
	"github.com/gw-dg/palanam-latency/internal/video"
)

// SessionStore persists session rows and detections for audit. A nil store
// disables persistence; writes are best-effort and never block streaming.
type SessionStore interface {
	CreateSession(ctx context.Context, session *models.Session) error
	UpdateSessionStatus(ctx context.Context, id, status string) error
	DeleteSession(ctx context.Context, id string) error
	InsertDetection(ctx context.Context, d models.Detection) error
}

// DetectionPublisher forwards flagged detections to downstream consumers.
type DetectionPublisher interface {
	PublishDetection(ctx context.Context, d models.Detection) error
}

// SessionService is the authoritative registry of live sessions. It owns
// session creation, video attachment, connection binding, the ambient scan
// task, and exactly-once teardown of every per-session resource.
type SessionService struct {
	sessions map[string]*models.Session
	mu       sync.RWMutex

	config     *config.Config
	opener     video.Opener
	classifier classifier.Classifier // nil when the model failed to load
	store      SessionStore
	publisher  DetectionPublisher
	log        *zap.Logger
}

func NewSessionService(
	cfg *config.Config,
	opener video.Opener,
	cls classifier.Classifier,
	store SessionStore,
	publisher DetectionPublisher,
	log *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions:   make(map[string]*models.Session),
		config:     cfg,
		opener:     opener,
		classifier: cls,
		store:      store,
		publisher:  publisher,
		log:        log,
	}
}

// Create registers a new session for a provisioned video file. It allocates
// the identifier and records the path; no other resource is acquired yet.
func (s *SessionService) Create(videoPath string) *models.Session {
	session := &models.Session{
		ID:        uuid.New().String(),
		VideoPath: videoPath,
		Status:    models.StatusReady,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	metrics.ActiveSessions.Inc()
	s.persist(func(ctx context.Context) error {
		return s.store.CreateSession(ctx, session)
	})

	s.log.Info("session created",
		zap.String("session_id", session.ID),
		zap.String("video_path", videoPath),
	)
	return session
}

// Get returns the live session record for an id.
func (s *SessionService) Get(id string) (*models.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

// VideoPath locates the backing video file recorded for a session.
func (s *SessionService) VideoPath(id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok || session.Status == models.StatusClosing {
		return "", ErrSessionNotFound
	}
	return session.VideoPath, nil
}

// Attach opens the video for a session, verifies at least one frame can be
// read back, snapshots the derived properties, and leaves the decode cursor
// on frame 0. A session that is already attached keeps its existing handle.
func (s *SessionService) Attach(ctx context.Context, id, videoPath string) error {
	s.mu.RLock()
	session, ok := s.sessions[id]
	if !ok || session.Status == models.StatusClosing {
		s.mu.RUnlock()
		return ErrSessionNotFound
	}
	attached := session.Video != nil
	s.mu.RUnlock()

	if attached {
		return nil
	}

	access, err := s.opener.Open(ctx, videoPath)
	if err != nil {
		return errors.Join(ErrVideoUnreadable, err)
	}

	// First-frame read-back check: a container that opens but yields no
	// frames is rejected before any resource is recorded on the session.
	if err := access.Seek(0); err != nil {
		access.Close()
		return errors.Join(ErrVideoUnreadable, err)
	}
	frame, err := access.ReadFrame(ctx)
	if err != nil || len(frame) == 0 {
		access.Close()
		if err != nil && !errors.Is(err, io.EOF) {
			return errors.Join(ErrVideoUnreadable, err)
		}
		return ErrEmptyVideo
	}
	if err := access.Seek(0); err != nil {
		access.Close()
		return errors.Join(ErrVideoUnreadable, err)
	}

	session.CursorMu.Lock()
	s.mu.Lock()
	if cur, ok := s.sessions[id]; !ok || cur.Status == models.StatusClosing {
		s.mu.Unlock()
		session.CursorMu.Unlock()
		access.Close()
		return ErrSessionNotFound
	}
	if session.Video != nil {
		// Lost the race to another attach; keep the first handle.
		s.mu.Unlock()
		session.CursorMu.Unlock()
		access.Close()
		return nil
	}
	session.Video = access
	session.Props = access.Properties()
	session.VideoPath = videoPath
	session.UpdatedAt = time.Now()
	s.mu.Unlock()
	session.CursorMu.Unlock()

	s.log.Info("video attached",
		zap.String("session_id", id),
		zap.Float64("fps", session.Props.FPS),
		zap.Int("total_frames", session.Props.TotalFrames),
		zap.Float64("duration", session.Props.Duration),
	)
	return nil
}

// BindConnection records the single active connection for a session. A
// second bind attempt is rejected; the caller logs and drops the newcomer.
func (s *SessionService) BindConnection(id string, conn models.EventSender) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[id]
	if !ok || session.Status == models.StatusClosing {
		return ErrSessionNotFound
	}
	if session.Conn != nil {
		return ErrConnectionBound
	}
	session.Conn = conn
	session.UpdatedAt = time.Now()
	return nil
}

// StartScan launches the ambient scan coordinator for an attached session.
// At most one coordinator ever runs per session; repeat calls are no-ops.
func (s *SessionService) StartScan(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok || session.Status == models.StatusClosing || session.ScanDone != nil {
		s.mu.Unlock()
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	session.CancelScan = cancel
	session.ScanDone = done
	session.Status = models.StatusStreaming
	session.UpdatedAt = time.Now()
	s.mu.Unlock()

	s.persist(func(pctx context.Context) error {
		return s.store.UpdateSessionStatus(pctx, id, models.StatusStreaming)
	})

	go s.runScan(ctx, session, done)
}

// Remove tears a session down: cancel the scan task and wait for its
// acknowledgement, close the video handle, delete the backing file, drop
// the connection, erase the entry. Idempotent; each step tolerates the
// failure of the previous ones.
func (s *SessionService) Remove(id string) {
	s.mu.Lock()
	session, ok := s.sessions[id]
	if !ok || session.Status == models.StatusClosing {
		s.mu.Unlock()
		return
	}
	session.Status = models.StatusClosing
	cancel, done := session.CancelScan, session.ScanDone
	s.mu.Unlock()

	// The coordinator must acknowledge cancellation before the handle it
	// may be using can be closed.
	if cancel != nil {
		cancel()
		<-done
	}

	session.CursorMu.Lock()
	if session.Video != nil {
		if err := session.Video.Close(); err != nil {
			s.log.Warn("failed to close video handle",
				zap.String("session_id", id), zap.Error(err))
		}
		s.mu.Lock()
		session.Video = nil
		s.mu.Unlock()
	}
	session.CursorMu.Unlock()

	if session.VideoPath != "" {
		if err := os.Remove(session.VideoPath); err != nil && !os.IsNotExist(err) {
			s.log.Warn("failed to delete video file",
				zap.String("session_id", id),
				zap.String("video_path", session.VideoPath),
				zap.Error(err),
			)
		}
	}

	s.mu.Lock()
	conn := session.Conn
	session.Conn = nil
	delete(s.sessions, id)
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}

	metrics.ActiveSessions.Dec()
	metrics.SessionsTornDown.Inc()
	s.persist(func(ctx context.Context) error {
		return s.store.DeleteSession(ctx, id)
	})

	s.log.Info("session removed", zap.String("session_id", id))
}

// Shutdown removes every live session. Called once at process exit.
func (s *SessionService) Shutdown() {
	s.mu.RLock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	for _, id := range ids {
		s.Remove(id)
	}
}

// ActiveSessions reports the number of live registry entries.
func (s *SessionService) ActiveSessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// LivePaths returns the backing file paths of all live sessions.
func (s *SessionService) LivePaths() map[string]bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make(map[string]bool, len(s.sessions))
	for _, session := range s.sessions {
		if session.VideoPath != "" {
			paths[session.VideoPath] = true
		}
	}
	return paths
}

// connectionBound reports whether the session still has a live connection.
func (s *SessionService) connectionBound(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	return ok && session.Status != models.StatusClosing && session.Conn != nil
}

// emitTo delivers an event to the session's connection if one is bound.
// Delivery failures are ignored here; the connection layer owns teardown.
func (s *SessionService) emitTo(id string, event interface{}) {
	s.mu.RLock()
	session, ok := s.sessions[id]
	var conn models.EventSender
	if ok {
		conn = session.Conn
	}
	s.mu.RUnlock()

	if conn != nil {
		_ = conn.Send(event)
	}
}

// persist runs a best-effort store write with its own deadline.
func (s *SessionService) persist(fn func(ctx context.Context) error) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := fn(ctx); err != nil {
		s.log.Warn("session store write failed", zap.Error(err))
	}
}
