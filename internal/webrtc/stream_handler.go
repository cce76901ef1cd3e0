package webrtc

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/gw-dg/palanam-latency/internal/protocol"
)

// StreamHandler serves the session protocol over WebRTC data channels, as a
// lower-latency alternative to the WebSocket transport. The server opens an
// "events" channel for outbound events; the client opens a "control" channel
// for its messages. Both feed the same protocol handler the WebSocket path
// uses.
type StreamHandler struct {
	protocol        *protocol.Handler
	peerConnections sync.Map // map[sessionID]*webrtc.PeerConnection
	api             *webrtc.API
	config          webrtc.Configuration
	log             *zap.Logger
}

func NewStreamHandler(proto *protocol.Handler, log *zap.Logger) *StreamHandler {
	config := webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{
			{
				URLs: []string{"stun:stun.l.google.com:19302"},
			},
		},
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		log.Warn("failed to register default codecs", zap.Error(err))
	}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine))

	return &StreamHandler{
		protocol: proto,
		api:      api,
		config:   config,
		log:      log,
	}
}

// channelConn adapts the outbound data channel to the event sender the
// protocol expects. Closing it closes the whole peer connection.
type channelConn struct {
	channel *webrtc.DataChannel
	pc      *webrtc.PeerConnection
	once    sync.Once
}

func (c *channelConn) Send(v interface{}) error {
	if c.channel.ReadyState() != webrtc.DataChannelStateOpen {
		return fmt.Errorf("events channel not open (state: %s)", c.channel.ReadyState())
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	return c.channel.SendText(string(data))
}

func (c *channelConn) Close() error {
	var err error
	c.once.Do(func() {
		err = c.pc.Close()
	})
	return err
}

// HandleOffer processes a WebRTC offer for a session and returns the answer
// SDP. The session protocol starts as soon as the events channel opens.
func (h *StreamHandler) HandleOffer(sessionID string, sdp string) (string, error) {
	peerConnection, err := h.api.NewPeerConnection(h.config)
	if err != nil {
		return "", fmt.Errorf("create peer connection: %w", err)
	}
	h.peerConnections.Store(sessionID, peerConnection)

	log := h.log.With(zap.String("session_id", sessionID))

	peerConnection.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		log.Info("peer connection state changed", zap.String("state", state.String()))

		if state == webrtc.PeerConnectionStateFailed ||
			state == webrtc.PeerConnectionStateClosed ||
			state == webrtc.PeerConnectionStateDisconnected {
			h.teardown(sessionID)
		}
	})
	peerConnection.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		log.Debug("ice connection state changed", zap.String("state", state.String()))
	})

	inbound := make(chan []byte, 16)
	var closeInbound sync.Once
	done := make(chan struct{})

	eventsChannel, err := peerConnection.CreateDataChannel("events", nil)
	if err != nil {
		peerConnection.Close()
		h.peerConnections.Delete(sessionID)
		return "", fmt.Errorf("create events channel: %w", err)
	}

	conn := &channelConn{channel: eventsChannel, pc: peerConnection}
	eventsChannel.OnOpen(func() {
		log.Info("events channel open, starting session protocol")
		go func() {
			defer close(done)
			h.protocol.Run(context.Background(), sessionID, conn, inbound)
			conn.Close()
		}()
	})

	peerConnection.OnDataChannel(func(dataChannel *webrtc.DataChannel) {
		if dataChannel.Label() != "control" {
			log.Debug("ignoring data channel", zap.String("label", dataChannel.Label()))
			return
		}

		dataChannel.OnMessage(func(msg webrtc.DataChannelMessage) {
			select {
			case inbound <- msg.Data:
			case <-done:
			}
		})
		dataChannel.OnClose(func() {
			closeInbound.Do(func() { close(inbound) })
		})
	})

	offer := webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  sdp,
	}
	if err := peerConnection.SetRemoteDescription(offer); err != nil {
		peerConnection.Close()
		h.peerConnections.Delete(sessionID)
		return "", fmt.Errorf("set remote description: %w", err)
	}

	answer, err := peerConnection.CreateAnswer(nil)
	if err != nil {
		peerConnection.Close()
		h.peerConnections.Delete(sessionID)
		return "", fmt.Errorf("create answer: %w", err)
	}
	if err := peerConnection.SetLocalDescription(answer); err != nil {
		peerConnection.Close()
		h.peerConnections.Delete(sessionID)
		return "", fmt.Errorf("set local description: %w", err)
	}

	return answer.SDP, nil
}

// HandleICECandidate adds a trickled ICE candidate to the peer connection.
func (h *StreamHandler) HandleICECandidate(sessionID string, candidate webrtc.ICECandidateInit) error {
	val, ok := h.peerConnections.Load(sessionID)
	if !ok {
		return fmt.Errorf("peer connection not found for session: %s", sessionID)
	}

	peerConnection := val.(*webrtc.PeerConnection)
	if err := peerConnection.AddICECandidate(candidate); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}
	return nil
}

// CloseSession closes the WebRTC connection for a session.
func (h *StreamHandler) CloseSession(sessionID string) error {
	if _, ok := h.peerConnections.Load(sessionID); !ok {
		return fmt.Errorf("peer connection not found for session: %s", sessionID)
	}
	h.teardown(sessionID)
	return nil
}

func (h *StreamHandler) teardown(sessionID string) {
	val, ok := h.peerConnections.LoadAndDelete(sessionID)
	if !ok {
		return
	}
	peerConnection := val.(*webrtc.PeerConnection)
	if err := peerConnection.Close(); err != nil {
		h.log.Warn("error closing peer connection",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	h.log.Info("webrtc transport closed", zap.String("session_id", sessionID))
}

// GetSessionStats reports connection state for all active WebRTC transports.
func (h *StreamHandler) GetSessionStats() map[string]interface{} {
	stats := make(map[string]interface{})
	active := 0

	h.peerConnections.Range(func(key, value interface{}) bool {
		active++
		sessionID := key.(string)
		peerConnection := value.(*webrtc.PeerConnection)

		stats[sessionID] = map[string]interface{}{
			"connection_state": peerConnection.ConnectionState().String(),
			"ice_state":        peerConnection.ICEConnectionState().String(),
		}
		return true
	})

	stats["total_active_sessions"] = active
	return stats
}
