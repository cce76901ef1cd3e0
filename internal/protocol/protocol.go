package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/config"
	"github.com/gw-dg/palanam-latency/internal/dto"
	"github.com/gw-dg/palanam-latency/internal/models"
	"github.com/gw-dg/palanam-latency/internal/service"
)

// SessionController is the slice of the session service the connection
// protocol drives.
type SessionController interface {
	BindConnection(id string, conn models.EventSender) error
	VideoPath(id string) (string, error)
	Attach(ctx context.Context, id, videoPath string) error
	Get(id string) (*models.Session, bool)
	StartScan(id string)
	ProcessFrame(ctx context.Context, id string, timestamp float64) error
	Remove(id string)
}

// Handler runs the session protocol over any bidirectional transport: greet,
// bind, attach the video, start the ambient scan, then serve client messages
// until the connection or the session ends. The transport only has to
// deliver inbound payloads on a channel and implement models.EventSender for
// the outbound direction.
type Handler struct {
	svc    SessionController
	config *config.Config
	log    *zap.Logger
}

func NewHandler(svc SessionController, cfg *config.Config, log *zap.Logger) *Handler {
	return &Handler{svc: svc, config: cfg, log: log}
}

// Run drives one connection to completion. It returns when the client
// disconnects, the context is cancelled, or session setup fails; in every
// case except a rejected duplicate connection it tears the session down.
func (h *Handler) Run(ctx context.Context, sessionID string, conn models.EventSender, inbound <-chan []byte) {
	log := h.log.With(zap.String("session_id", sessionID))

	if err := h.svc.BindConnection(sessionID, conn); err != nil {
		if errors.Is(err, service.ErrConnectionBound) {
			// A connection is already serving this session. The newcomer is
			// dropped without disturbing the established one.
			log.Warn("rejecting duplicate connection")
			conn.Close()
			return
		}
		log.Warn("failed to bind connection", zap.Error(err))
		_ = conn.Send(dto.NewError("session not found"))
		conn.Close()
		return
	}

	// From here the connection owns the session: any exit path tears it down.
	defer h.svc.Remove(sessionID)

	if err := conn.Send(dto.NewConnectionEstablished(sessionID)); err != nil {
		log.Warn("failed to greet client", zap.Error(err))
		return
	}

	if err := h.setup(ctx, sessionID, conn, log); err != nil {
		return
	}

	h.svc.StartScan(sessionID)
	h.serve(ctx, sessionID, conn, inbound, log)
}

// setup locates the video, attaches it, and announces its properties.
func (h *Handler) setup(ctx context.Context, sessionID string, conn models.EventSender, log *zap.Logger) error {
	videoPath, err := h.svc.VideoPath(sessionID)
	if err != nil {
		_ = conn.Send(dto.NewError("session not found"))
		return err
	}
	if _, err := os.Stat(videoPath); err != nil {
		log.Warn("video file missing", zap.String("video_path", videoPath), zap.Error(err))
		_ = conn.Send(dto.NewError("video file not found"))
		return err
	}

	if err := h.svc.Attach(ctx, sessionID, videoPath); err != nil {
		log.Warn("failed to attach video", zap.Error(err))
		switch {
		case errors.Is(err, service.ErrEmptyVideo):
			_ = conn.Send(dto.NewError("video contains no readable frames"))
		case errors.Is(err, service.ErrVideoUnreadable):
			_ = conn.Send(dto.NewError("failed to open video"))
		default:
			_ = conn.Send(dto.NewError("failed to prepare video"))
		}
		return err
	}

	session, ok := h.svc.Get(sessionID)
	if !ok {
		return service.ErrSessionNotFound
	}
	props := session.Props
	if err := conn.Send(dto.NewVideoInfo(props.FPS, props.Duration, props.TotalFrames, props.Width, props.Height)); err != nil {
		log.Warn("failed to send video info", zap.Error(err))
		return err
	}
	return nil
}

// serve is the receive loop: it dispatches client messages and keeps the
// connection alive with pings while the client is idle.
func (h *Handler) serve(ctx context.Context, sessionID string, conn models.EventSender, inbound <-chan []byte, log *zap.Logger) {
	idle := h.config.IdleTimeout
	if idle <= 0 {
		idle = 30 * time.Second
	}

	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-inbound:
			if !ok {
				log.Info("client disconnected")
				return
			}
			h.dispatch(ctx, sessionID, payload, log)
		case <-time.After(idle):
			if err := conn.Send(dto.NewPing()); err != nil {
				log.Info("keepalive failed, dropping connection", zap.Error(err))
				return
			}
		}
	}
}

// dispatch handles a single inbound payload. Malformed or unknown messages
// are logged and dropped; they never end the connection.
func (h *Handler) dispatch(ctx context.Context, sessionID string, payload []byte, log *zap.Logger) {
	var msg dto.InboundMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		log.Warn("malformed client message", zap.Error(err))
		return
	}

	switch msg.Type {
	case dto.MessageProcessFrame:
		// On-demand requests run concurrently with the ambient scan; both
		// funnel into the same serialized classification primitive.
		go func() {
			if err := h.svc.ProcessFrame(ctx, sessionID, msg.Timestamp); err != nil {
				log.Debug("on-demand classification failed",
					zap.Float64("timestamp", msg.Timestamp), zap.Error(err))
			}
		}()
	case dto.MessageConnect:
		log.Debug("client handshake message")
	default:
		log.Debug("ignoring unknown message type", zap.String("type", msg.Type))
	}
}
