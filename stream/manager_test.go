package stream

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"soundsense/models"

	"github.com/gorilla/websocket"
)

type stubSession struct {
	mu     sync.Mutex
	began  bool
	chunks [][]byte
	ended  chan string
}

func newStubSession() *stubSession {
	return &stubSession{ended: make(chan string, 1)}
}

func (s *stubSession) Begin() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.began = true
}

func (s *stubSession) ProcessChunk(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	s.chunks = append(s.chunks, buf)
}

func (s *stubSession) End(reason string) {
	s.ended <- reason
}

func (s *stubSession) chunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.chunks)
}

func newTestServer(t *testing.T, session *stubSession) (*Manager, *httptest.Server) {
	t.Helper()
	manager := NewManager(func() AudioSession { return session })
	mux := http.NewServeMux()
	mux.HandleFunc(PathMicAudio, manager.HandleMicAudio)
	mux.HandleFunc(PathStartListening, manager.HandleStartListening)
	mux.HandleFunc(PathStopListening, manager.HandleStopListening)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return manager, server
}

func dialAudio(t *testing.T, server *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + PathMicAudio
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", url, err)
	}
	return conn
}

func waitFor(t *testing.T, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestAudioChannelRoutesBinaryFrames(t *testing.T) {
	session := newStubSession()
	_, server := newTestServer(t, session)

	conn := dialAudio(t, server)
	defer conn.Close()

	if err := conn.WriteMessage(websocket.BinaryMessage, []byte{1, 2, 3, 4}); err != nil {
		t.Fatalf("write: %v", err)
	}
	waitFor(t, func() bool { return session.chunkCount() == 1 })

	// Clean close surfaces a peer-disconnect reason.
	conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	conn.Close()

	select {
	case reason := <-session.ended:
		if reason != ReasonPeerDisconnected {
			t.Fatalf("expected %q, got %q", ReasonPeerDisconnected, reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never ended")
	}
}

func TestSecondAudioChannelIsRefused(t *testing.T) {
	session := newStubSession()
	manager, server := newTestServer(t, session)

	first := dialAudio(t, server)
	defer first.Close()
	waitFor(t, manager.Active)

	second := dialAudio(t, server)
	defer second.Close()

	// The refused channel is closed by the server almost immediately.
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := second.ReadMessage(); err == nil {
		t.Fatal("expected the second channel to be closed")
	}

	if !manager.Active() {
		t.Fatal("first session should still be active")
	}
}

func TestStopEndpointCancelsSession(t *testing.T) {
	session := newStubSession()
	_, server := newTestServer(t, session)

	conn := dialAudio(t, server)
	defer conn.Close()

	resp, err := http.Post(server.URL+PathStopListening, "application/json", nil)
	if err != nil {
		t.Fatalf("stop request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("stop returned %d", resp.StatusCode)
	}

	select {
	case reason := <-session.ended:
		if reason != ReasonStopped {
			t.Fatalf("expected %q, got %q", ReasonStopped, reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("session never ended after stop")
	}
}

func TestRouteVibrationReachesPeer(t *testing.T) {
	session := newStubSession()
	manager, server := newTestServer(t, session)

	conn := dialAudio(t, server)
	defer conn.Close()
	waitFor(t, manager.Active)

	payload := models.VibrationPayload{Pattern: []int64{0, 500, 100, 500}}
	if err := manager.RouteVibration(payload); err != nil {
		t.Fatalf("RouteVibration: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("peer read: %v", err)
	}
	if msgType != websocket.TextMessage {
		t.Fatalf("expected text frame, got %d", msgType)
	}

	var msg struct {
		Type    string                   `json:"type"`
		Payload *models.VibrationPayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "vibrate" || msg.Payload == nil || len(msg.Payload.Pattern) != 4 {
		t.Fatalf("unexpected control message %s", data)
	}
}

func TestRouteVibrationWithoutChannelFails(t *testing.T) {
	manager := NewManager(func() AudioSession { return newStubSession() })
	if err := manager.RouteVibration(models.VibrationPayload{Pattern: []int64{0, 100}}); err == nil {
		t.Fatal("expected error with no open channel")
	}
}

func TestNilSessionClosesChannel(t *testing.T) {
	manager := NewManager(func() AudioSession { return nil })
	mux := http.NewServeMux()
	mux.HandleFunc(PathMicAudio, manager.HandleMicAudio)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	conn, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(server.URL, "http")+PathMicAudio, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected channel to be closed when no session is available")
	}
	waitFor(t, func() bool { return !manager.Active() })
}

func TestStartEndpointRequiresConnectedPeer(t *testing.T) {
	session := newStubSession()
	_, server := newTestServer(t, session)

	resp, err := http.Post(server.URL+PathStartListening, "application/json", nil)
	if err != nil {
		t.Fatalf("start request: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409 with no peer, got %d", resp.StatusCode)
	}
}
