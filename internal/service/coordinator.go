package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/dto"
	"github.com/gw-dg/palanam-latency/internal/models"
	"github.com/gw-dg/palanam-latency/internal/video"
)

// runScan is the ambient scan coordinator: it advances a virtual playback
// clock from 0 and classifies the frame nearest the clock on each tick,
// without waiting for client requests. The loop observes cancellation at
// every tick boundary; closing done is its acknowledgement, after which it
// issues no further decode calls.
func (s *SessionService) runScan(ctx context.Context, session *models.Session, done chan struct{}) {
	defer close(done)

	props := session.Props
	step := s.config.ScanStepSeconds
	if step <= 0 {
		step = 0.5
	}
	interval := s.config.ScanTickInterval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}

	log := s.log.With(zap.String("session_id", session.ID))
	log.Info("ambient scan started",
		zap.Float64("duration", props.Duration),
		zap.Float64("step", step),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	position := 0.0
	for {
		select {
		case <-ctx.Done():
			log.Debug("ambient scan cancelled", zap.Float64("position", position))
			return
		case <-ticker.C:
		}

		if position >= props.Duration {
			log.Info("ambient scan reached end of video")
			return
		}
		if !s.connectionBound(session.ID) {
			log.Debug("ambient scan stopping, connection unbound")
			return
		}

		if err := s.ProcessFrame(ctx, session.ID, position); err != nil {
			switch {
			case errors.Is(err, video.ErrClosed),
				errors.Is(err, ErrSessionNotFound),
				errors.Is(err, ErrVideoNotInitialized),
				errors.Is(err, ErrConnectionLost):
				// The session is being torn down or the client is gone;
				// the connection layer owns cleanup. Stop quietly.
				return
			case errors.Is(err, ErrClassifierUnavailable):
				s.emitTo(session.ID, dto.NewError("classifier unavailable"))
				log.Warn("ambient scan stopping, classifier unavailable")
				return
			default:
				// Transient; move on to the next tick.
				log.Warn("ambient scan tick failed",
					zap.Float64("position", position), zap.Error(err))
			}
		}

		position += step
	}
}
