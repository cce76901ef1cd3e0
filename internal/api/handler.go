package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/config"
	"github.com/gw-dg/palanam-latency/internal/dto"
	"github.com/gw-dg/palanam-latency/internal/protocol"
	"github.com/gw-dg/palanam-latency/internal/service"
	webrtchandler "github.com/gw-dg/palanam-latency/internal/webrtc"
)

const version = "1.0.0"

type Handler struct {
	sessionService *service.SessionService
	fetcher        *service.Fetcher
	cleanup        *service.TempCleanup
	protocol       *protocol.Handler
	webrtcHandler  *webrtchandler.StreamHandler
	config         *config.Config
	classifierUp   bool
	log            *zap.Logger
}

func NewHandler(
	sessionService *service.SessionService,
	fetcher *service.Fetcher,
	cleanup *service.TempCleanup,
	proto *protocol.Handler,
	webrtcHandler *webrtchandler.StreamHandler,
	cfg *config.Config,
	classifierUp bool,
	log *zap.Logger,
) *Handler {
	return &Handler{
		sessionService: sessionService,
		fetcher:        fetcher,
		cleanup:        cleanup,
		protocol:       proto,
		webrtcHandler:  webrtcHandler,
		config:         cfg,
		classifierUp:   classifierUp,
		log:            log,
	}
}

func (handler *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	classifierStatus := "available"
	if !handler.classifierUp {
		classifierStatus = "unavailable"
	}
	response := dto.HealthResponse{
		Status:     "healthy",
		Classifier: classifierStatus,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Version:    version,
	}
	handler.respondJSON(w, http.StatusOK, response)
}

// UploadVideo accepts a multipart video upload, stores it in the temp
// directory, and creates a session for it. Streaming begins when the client
// opens the session's connection.
func (handler *Handler) UploadVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, handler.config.MaxUploadSize)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse form: %v", err))
		return
	}

	file, header, err := r.FormFile("video")
	if err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to get video file: %v", err))
		return
	}
	defer file.Close()

	if !isValidVideoType(header.Filename) {
		handler.respondError(w, http.StatusBadRequest, "Invalid file type. Only MP4/AVI/MOV/WEBM/MKV videos are allowed")
		return
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	videoPath := filepath.Join(handler.config.TmpDir, fmt.Sprintf("input_%s%s", uuid.New().String(), ext))

	destFile, err := os.Create(videoPath)
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to create file: %v", err))
		return
	}

	_, err = io.Copy(destFile, file)
	closeErr := destFile.Close()
	if err != nil || closeErr != nil {
		os.Remove(videoPath)
		handler.respondError(w, http.StatusInternalServerError, "Failed to save video")
		return
	}

	session := handler.sessionService.Create(videoPath)
	handler.log.Info("video uploaded",
		zap.String("session_id", session.ID),
		zap.String("filename", header.Filename),
	)

	handler.respondJSON(w, http.StatusCreated, dto.UploadVideoResponse{
		Message:   "Video uploaded successfully",
		SessionID: session.ID,
		Status:    session.Status,
	})
}

// FetchVideo acquires a video from a URL or an object-storage key and
// creates a session for it.
func (handler *Handler) FetchVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req dto.FetchVideoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse request: %v", err))
		return
	}

	var videoPath string
	var err error
	switch {
	case req.URL != "":
		videoPath, err = handler.fetcher.FetchURL(r.Context(), req.URL)
	case req.ObjectKey != "":
		videoPath, err = handler.fetcher.FetchObject(r.Context(), req.ObjectKey)
	default:
		handler.respondError(w, http.StatusBadRequest, "Either url or object_key is required")
		return
	}
	if err != nil {
		handler.respondError(w, http.StatusBadGateway, fmt.Sprintf("Failed to fetch video: %v", err))
		return
	}

	session := handler.sessionService.Create(videoPath)
	handler.respondJSON(w, http.StatusCreated, dto.UploadVideoResponse{
		Message:   "Video fetched successfully",
		SessionID: session.ID,
		Status:    session.Status,
	})
}

// GetSession reports the live state of a session.
func (handler *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := handler.extractSessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	session, ok := handler.sessionService.Get(sessionID)
	if !ok {
		handler.respondError(w, http.StatusNotFound, fmt.Sprintf("Session not found: %s", sessionID))
		return
	}

	handler.respondJSON(w, http.StatusOK, dto.SessionResponse{
		SessionID: session.ID,
		Status:    session.Status,
		CreatedAt: session.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: session.UpdatedAt.UTC().Format(time.RFC3339),
	})
}

// DeleteSession tears a session down on client request.
func (handler *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionID := handler.extractSessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "Session ID is required")
		return
	}

	handler.sessionService.Remove(sessionID)
	handler.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "Session removed",
		"session_id": sessionID,
	})
}

// CleanupTempFiles removes every orphaned temp video immediately.
func (handler *Handler) CleanupTempFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete && r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	files, err := handler.cleanup.CleanupAll()
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Cleanup failed: %v", err))
		return
	}

	handler.respondJSON(w, http.StatusOK, dto.CleanupResponse{
		Message: fmt.Sprintf("Removed %d orphaned files", len(files)),
		Files:   files,
	})
}

// WebRTC signaling endpoints

func (handler *Handler) StartWebRTCStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var offer struct {
		SessionID string `json:"session_id"`
		SDP       string `json:"sdp"`
		Type      string `json:"type"`
	}
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse offer: %v", err))
		return
	}
	if offer.SessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}
	if offer.SDP == "" {
		handler.respondError(w, http.StatusBadRequest, "sdp is required")
		return
	}

	answerSDP, err := handler.webrtcHandler.HandleOffer(offer.SessionID, offer.SDP)
	if err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to handle offer: %v", err))
		return
	}

	handler.respondJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": offer.SessionID,
		"sdp":        answerSDP,
		"type":       "answer",
	})
}

func (handler *Handler) HandleICECandidate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	var req struct {
		SessionID string                  `json:"session_id"`
		Candidate webrtc.ICECandidateInit `json:"candidate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handler.respondError(w, http.StatusBadRequest, fmt.Sprintf("Failed to parse candidate: %v", err))
		return
	}
	if req.SessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := handler.webrtcHandler.HandleICECandidate(req.SessionID, req.Candidate); err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to add ICE candidate: %v", err))
		return
	}

	handler.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "ICE candidate added successfully",
		"session_id": req.SessionID,
	})
}

func (handler *Handler) CloseWebRTCStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		handler.respondError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}

	sessionID := handler.extractSessionIDFromPath(r.URL.Path)
	if sessionID == "" {
		handler.respondError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := handler.webrtcHandler.CloseSession(sessionID); err != nil {
		handler.respondError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to close session: %v", err))
		return
	}

	handler.respondJSON(w, http.StatusOK, map[string]interface{}{
		"message":    "WebRTC session closed successfully",
		"session_id": sessionID,
	})
}

func (handler *Handler) GetWebRTCStats(w http.ResponseWriter, r *http.Request) {
	handler.respondJSON(w, http.StatusOK, handler.webrtcHandler.GetSessionStats())
}

// Helper methods for responses

func (handler *Handler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (handler *Handler) respondError(w http.ResponseWriter, status int, message string) {
	handler.respondJSON(w, status, dto.ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}

// extractSessionIDFromPath extracts the session ID from URL paths like
// /api/v1/sessions/{session_id}/stream.
func (handler *Handler) extractSessionIDFromPath(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if part == "sessions" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

// isValidVideoType checks if the file has a supported video extension.
func isValidVideoType(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mp4", ".avi", ".mov", ".webm", ".mkv":
		return true
	}
	return false
}
