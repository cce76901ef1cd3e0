package dto

// Inbound message types
const (
	MessageProcessFrame = "process_frame"
	MessageConnect      = "connect"
)

// Outbound event types
const (
	EventConnectionEstablished = "connection_established"
	EventVideoInfo             = "video_info"
	EventClassification        = "classification"
	EventError                 = "error"
	EventPing                  = "ping"
)

// InboundMessage is the envelope for client messages. Unknown fields are
// ignored; unknown types are dropped without closing the connection.
type InboundMessage struct {
	Type      string  `json:"type"`
	Timestamp float64 `json:"timestamp"`
}

type ConnectionEstablishedEvent struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
}

type VideoInfoEvent struct {
	Type        string  `json:"type"`
	FPS         float64 `json:"fps"`
	Duration    float64 `json:"duration"`
	TotalFrames int     `json:"totalFrames"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
}

type ClassificationEvent struct {
	Type       string  `json:"type"`
	Timestamp  float64 `json:"timestamp"`
	Frame      int     `json:"frame"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	IsNSFW     bool    `json:"is_nsfw"`
}

type ErrorEvent struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type PingEvent struct {
	Type string `json:"type"`
}

func NewConnectionEstablished(sessionID string) ConnectionEstablishedEvent {
	return ConnectionEstablishedEvent{Type: EventConnectionEstablished, SessionID: sessionID}
}

func NewVideoInfo(fps, duration float64, totalFrames, width, height int) VideoInfoEvent {
	return VideoInfoEvent{
		Type:        EventVideoInfo,
		FPS:         fps,
		Duration:    duration,
		TotalFrames: totalFrames,
		Width:       width,
		Height:      height,
	}
}

func NewClassification(timestamp float64, frame int, label string, confidence float64, isNSFW bool) ClassificationEvent {
	return ClassificationEvent{
		Type:       EventClassification,
		Timestamp:  timestamp,
		Frame:      frame,
		Label:      label,
		Confidence: confidence,
		IsNSFW:     isNSFW,
	}
}

func NewError(message string) ErrorEvent {
	return ErrorEvent{Type: EventError, Message: message}
}

func NewPing() PingEvent {
	return PingEvent{Type: EventPing}
}
