package dto

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

// HealthResponse represents health check response
type HealthResponse struct {
	Status     string `json:"status"`
	Classifier string `json:"classifier"`
	Timestamp  string `json:"timestamp"`
	Version    string `json:"version"`
}

// UploadVideoResponse represents response after a video becomes available
type UploadVideoResponse struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
}

// SessionResponse reports the live state of a session
type SessionResponse struct {
	SessionID string `json:"session_id"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// FetchVideoRequest asks the server to acquire a video by URL or object key
type FetchVideoRequest struct {
	URL       string `json:"url,omitempty"`
	ObjectKey string `json:"object_key,omitempty"`
}

// CleanupResponse reports the temp files removed by the admin cleanup
type CleanupResponse struct {
	Message string   `json:"message"`
	Files   []string `json:"files"`
}
