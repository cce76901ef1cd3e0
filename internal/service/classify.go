package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/dto"
	"github.com/gw-dg/palanam-latency/internal/metrics"
	"github.com/gw-dg/palanam-latency/internal/models"
	"github.com/gw-dg/palanam-latency/internal/video"
)

var tracer = otel.Tracer("palanam-latency/service")

// ProcessFrame classifies the frame nearest a timestamp and pushes the
// result to the session's connection. It is the single classification
// primitive shared by the ambient scan loop and on-demand client requests;
// concurrent calls for one session serialize on the decode cursor lock.
//
// A timestamp past the end of the video is a no-op. Single-frame read or
// classification failures are reported to the client as non-fatal error
// events and return nil; only conditions that invalidate the whole session
// (missing session, closed handle, lost connection) surface as errors.
func (s *SessionService) ProcessFrame(ctx context.Context, sessionID string, timestamp float64) error {
	ctx, span := tracer.Start(ctx, "process_frame")
	defer span.End()
	span.SetAttributes(
		attribute.String("session_id", sessionID),
		attribute.Float64("timestamp", timestamp),
	)

	s.mu.RLock()
	session, ok := s.sessions[sessionID]
	if !ok || session.Status == models.StatusClosing {
		s.mu.RUnlock()
		return ErrSessionNotFound
	}
	vid := session.Video
	props := session.Props
	conn := session.Conn
	s.mu.RUnlock()

	if vid == nil {
		return ErrVideoNotInitialized
	}
	if s.classifier == nil {
		return ErrClassifierUnavailable
	}

	frameIndex := props.FrameIndex(timestamp)
	if frameIndex >= props.TotalFrames {
		// Past end-of-video: defined as nothing to do, not an error.
		return nil
	}

	start := time.Now()

	session.CursorMu.Lock()
	// Teardown marks the session closing before it closes the handle, and
	// closes the handle under this same lock; a late call backs off here
	// instead of touching a dying cursor.
	s.mu.RLock()
	closing := session.Status == models.StatusClosing
	s.mu.RUnlock()
	if closing {
		session.CursorMu.Unlock()
		return ErrSessionNotFound
	}

	frame, err := s.decodeFrame(ctx, session, frameIndex)
	if err != nil {
		session.CursorMu.Unlock()
		if errors.Is(err, video.ErrClosed) {
			return err
		}
		metrics.ClassificationErrors.Inc()
		s.log.Warn("frame read failed",
			zap.String("session_id", sessionID),
			zap.Int("frame_index", frameIndex),
			zap.Error(err),
		)
		if conn != nil {
			_ = conn.Send(dto.NewError(fmt.Sprintf("failed to read frame %d", frameIndex)))
		}
		return nil
	}

	result, err := s.classifier.Classify(ctx, frame)
	session.CursorMu.Unlock()
	if err != nil {
		metrics.ClassificationErrors.Inc()
		s.log.Warn("classification failed",
			zap.String("session_id", sessionID),
			zap.Int("frame_index", frameIndex),
			zap.Error(err),
		)
		if conn != nil {
			_ = conn.Send(dto.NewError(fmt.Sprintf("failed to classify frame %d", frameIndex)))
		}
		return nil
	}

	flagged := !strings.EqualFold(result.Label, s.config.BenignLabel)
	metrics.FramesClassified.WithLabelValues(strconv.FormatBool(flagged)).Inc()
	metrics.ClassificationDuration.Observe(time.Since(start).Seconds())

	if conn != nil {
		event := dto.NewClassification(timestamp, frameIndex, result.Label, result.Score, flagged)
		if err := conn.Send(event); err != nil {
			return ErrConnectionLost
		}
	}

	detection := models.Detection{
		SessionID:  sessionID,
		Timestamp:  timestamp,
		FrameIndex: frameIndex,
		Label:      result.Label,
		Confidence: result.Score,
		Flagged:    flagged,
	}
	s.persist(func(pctx context.Context) error {
		return s.store.InsertDetection(pctx, detection)
	})
	if flagged && s.publisher != nil {
		if err := s.publisher.PublishDetection(ctx, detection); err != nil {
			s.log.Warn("failed to publish flagged detection",
				zap.String("session_id", sessionID), zap.Error(err))
		}
	}

	return nil
}

// decodeFrame runs the seek/read pair. Callers hold the cursor lock.
func (s *SessionService) decodeFrame(ctx context.Context, session *models.Session, frameIndex int) ([]byte, error) {
	if err := session.Video.Seek(frameIndex); err != nil {
		return nil, err
	}
	return session.Video.ReadFrame(ctx)
}
