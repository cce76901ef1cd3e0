package api

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

func SetupRoutes(sessionHandler *Handler, log *zap.Logger) http.Handler {
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("/api/v1/health", sessionHandler.HealthCheck)

	// Video acquisition
	mux.HandleFunc("/api/v1/videos", sessionHandler.UploadVideo)
	mux.HandleFunc("/api/v1/videos/fetch", sessionHandler.FetchVideo)

	// Session endpoints: state, teardown, and the streaming connection
	mux.HandleFunc("/api/v1/sessions/", func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/stream"):
			sessionHandler.StreamSession(w, r)
		case r.Method == http.MethodDelete:
			sessionHandler.DeleteSession(w, r)
		default:
			sessionHandler.GetSession(w, r)
		}
	})

	// WebRTC signaling (low-latency alternative to the WebSocket stream)
	mux.HandleFunc("/api/v1/webrtc/offer", sessionHandler.StartWebRTCStream)
	mux.HandleFunc("/api/v1/webrtc/candidate", sessionHandler.HandleICECandidate)
	mux.HandleFunc("/api/v1/webrtc/stats", sessionHandler.GetWebRTCStats)
	mux.HandleFunc("/api/v1/webrtc/sessions/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/close") {
			sessionHandler.CloseWebRTCStream(w, r)
		} else {
			http.NotFound(w, r)
		}
	})

	// Admin
	mux.HandleFunc("/api/v1/admin/cleanup", sessionHandler.CleanupTempFiles)

	// Apply middleware
	handler := LoggingMiddleware(log)(mux)
	handler = RecoveryMiddleware(log)(handler)
	handler = CORSMiddleware(handler)

	return handler
}
