package stream

// Peer Audio Transport (compute side)
//
// The capture device opens a bidirectional websocket channel at /mic_audio
// and streams raw little-endian 16-bit PCM in binary frames with no extra
// application framing. Control messages (start/stop requests, vibration
// payloads back to the peer) travel as JSON text frames on the same channel
// or via the lightweight /start_listening and /stop_listening endpoints.
//
// Exactly one audio session is supported per device pair: a second channel
// open while one is active is refused. Read-side errors are classified as
// peer-disconnect (expected, clean stop) or generic I/O failure (logged,
// clean stop); neither terminates the process. Cancelling the owning task
// closes the channel and releases the session on every exit path.

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"soundsense/models"
	"soundsense/utils"

	"github.com/gorilla/websocket"
	"github.com/mdobak/go-xerrors"
)

// Well-known channel paths shared with the capture device.
const (
	PathMicAudio       = "/mic_audio"
	PathStartListening = "/start_listening"
	PathStopListening  = "/stop_listening"
)

// Close reasons surfaced to feed observers.
const (
	ReasonPeerDisconnected = "peer disconnected"
	ReasonStreamError      = "stream error"
	ReasonStopped          = "stopped"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // paired devices on a private link
	},
}

// AudioSession is the compute-side consumer of one audio channel.
type AudioSession interface {
	Begin()
	ProcessChunk(chunk []byte)
	End(reason string)
}

// controlMessage is the JSON frame exchanged on the channel's text side.
type controlMessage struct {
	Type    string                   `json:"type"`
	Payload *models.VibrationPayload `json:"payload,omitempty"`
}

// Manager owns the single active audio channel and its session task.
type Manager struct {
	newSession func() AudioSession
	logger     *slog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex
	cancel  context.CancelFunc
	active  bool
}

// NewManager builds a transport manager. newSession is invoked once per
// accepted channel so every session starts with fresh classifier state.
func NewManager(newSession func() AudioSession) *Manager {
	return &Manager{
		newSession: newSession,
		logger:     utils.GetLogger(),
	}
}

// SetSessionFactory replaces the session factory. Call before serving; the
// dispatcher that sessions feed needs the manager for vibration routing, so
// the two are wired in turn.
func (m *Manager) SetSessionFactory(newSession func() AudioSession) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.newSession = newSession
}

// Active reports whether an audio session is currently running.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// HandleMicAudio accepts the peer's audio channel and runs the session read
// loop until the channel closes, errors, or the session is cancelled.
func (m *Manager) HandleMicAudio(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.Error("audio channel upgrade failed", slog.Any("error", xerrors.New(err)))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())

	m.mu.Lock()
	if m.active {
		m.mu.Unlock()
		cancel()
		m.logger.Warn("refusing second audio channel while one is active",
			slog.String("remote", conn.RemoteAddr().String()))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "audio session already active"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	m.active = true
	m.conn = conn
	m.cancel = cancel
	m.mu.Unlock()

	m.logger.Info("audio channel opened", slog.String("remote", conn.RemoteAddr().String()))

	session := m.newSession()
	if session == nil {
		m.logger.Error("session factory produced no session; closing audio channel")
		m.mu.Lock()
		m.conn = nil
		m.cancel = nil
		m.active = false
		m.mu.Unlock()
		cancel()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session unavailable"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	session.Begin()

	// Unblock the read loop when the owning task is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	reason := m.readLoop(ctx, conn, session)
	session.End(reason)

	m.mu.Lock()
	m.conn = nil
	m.cancel = nil
	m.active = false
	m.mu.Unlock()

	cancel()
	conn.Close()
	m.logger.Info("audio channel closed", slog.String("reason", reason))
}

// readLoop consumes frames until the channel ends and returns the close
// reason. Binary frames carry audio; text frames carry peer control JSON.
func (m *Manager) readLoop(ctx context.Context, conn *websocket.Conn, session AudioSession) string {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ReasonStopped
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) ||
				errors.Is(err, net.ErrClosed) {
				return ReasonPeerDisconnected
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				// abnormal closure still means the peer went away
				m.logger.Info("audio channel closed by peer", slog.Any("error", err))
				return ReasonPeerDisconnected
			}
			m.logger.Error("audio channel read failed", slog.Any("error", xerrors.New(err)))
			return ReasonStreamError
		}

		switch msgType {
		case websocket.BinaryMessage:
			session.ProcessChunk(data)
		case websocket.TextMessage:
			m.handlePeerMessage(data)
		}
	}
}

func (m *Manager) handlePeerMessage(data []byte) {
	var msg controlMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.logger.Warn("ignoring malformed peer control message", slog.Any("error", err))
		return
	}

	switch msg.Type {
	case "stop_listening":
		m.Stop()
	default:
		m.logger.Debug("unhandled peer control message", slog.String("type", msg.Type))
	}
}

// RouteVibration forwards a haptic payload to the capture device over the
// open channel.
func (m *Manager) RouteVibration(payload models.VibrationPayload) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return errors.New("no audio channel open")
	}

	return m.writeControl(conn, controlMessage{Type: "vibrate", Payload: &payload})
}

// RequestStart asks the capture device to begin streaming.
func (m *Manager) RequestStart() error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return errors.New("capture device is not connected")
	}

	return m.writeControl(conn, controlMessage{Type: "start_listening"})
}

// Stop cancels the active session task, closing the channel and releasing
// capture resources on the peer.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func (m *Manager) writeControl(conn *websocket.Conn, msg controlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	return conn.WriteMessage(websocket.TextMessage, data)
}

// HandleStartListening is the lightweight control endpoint that relays a
// start request to the connected peer.
func (m *Manager) HandleStartListening(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if err := m.RequestStart(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// HandleStopListening is the lightweight control endpoint that ends the
// active audio session.
func (m *Manager) HandleStopListening(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	m.Stop()
	w.WriteHeader(http.StatusAccepted)
}
