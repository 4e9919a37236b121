package bridge

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/ruvelro/maca-engine/internal/events"
)

type sinkCall struct {
	kind, tabID, a, b string
}

// recordingSink implements both GridSink and QueueControl, pushing every call
// onto a channel so tests can wait for them.
type recordingSink struct {
	calls chan sinkCall
}

func newRecordingSink() *recordingSink {
	return &recordingSink{calls: make(chan sinkCall, 16)}
}

func (r *recordingSink) HandleSnapshot(tabID, pageURL, html string) {
	r.calls <- sinkCall{kind: "snapshot", tabID: tabID, a: pageURL, b: html}
}
func (r *recordingSink) HandleUploadSignal(tabID string) {
	r.calls <- sinkCall{kind: "upload", tabID: tabID}
}
func (r *recordingSink) HandleSelection(tabID, attachmentID string) {
	r.calls <- sinkCall{kind: "selection", tabID: tabID, a: attachmentID}
}
func (r *recordingSink) Pause(tabID string)  { r.calls <- sinkCall{kind: "pause", tabID: tabID} }
func (r *recordingSink) Resume(tabID string) { r.calls <- sinkCall{kind: "resume", tabID: tabID} }
func (r *recordingSink) Cancel(tabID string) { r.calls <- sinkCall{kind: "cancel", tabID: tabID} }
func (r *recordingSink) RemoveTab(tabID string) {
	r.calls <- sinkCall{kind: "remove", tabID: tabID}
}

func (r *recordingSink) wait(t *testing.T, kind string) sinkCall {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case c := <-r.calls:
			if c.kind == kind {
				return c
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %q call", kind)
		}
	}
}

func startTestServer(t *testing.T, token string) (*Server, *recordingSink, *events.Broker) {
	t.Helper()
	sink := newRecordingSink()
	broker := events.NewBroker()
	s := New(Config{ListenAddr: "127.0.0.1:0", Token: token, Timeout: 2 * time.Second}, sink, sink, broker)
	require.NoError(t, s.Start())
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	return s, sink, broker
}

func dial(t *testing.T, s *Server, hello map[string]interface{}) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr()+"/ws", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(hello))
	return conn
}

func readWelcome(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var welcome welcomeMessage
	require.NoError(t, conn.ReadJSON(&welcome))
	require.Equal(t, "welcome", welcome.Type)
	require.Equal(t, protocolVersion, welcome.Version)
}

func TestServer_HandshakeAndDispatch(t *testing.T) {
	s, sink, _ := startTestServer(t, "s3cret")

	conn := dial(t, s, map[string]interface{}{
		"type": "hello", "token": "s3cret", "tab": "t1", "page": "https://site/wp-admin/upload.php",
	})
	defer conn.Close()
	readWelcome(t, conn)
	require.True(t, s.Connected("t1"))

	require.NoError(t, conn.WriteJSON(map[string]string{
		"type": "grid.snapshot", "html": "<ul></ul>", "page": "https://site/wp-admin/upload.php",
	}))
	call := sink.wait(t, "snapshot")
	require.Equal(t, "t1", call.tabID)
	require.Equal(t, "<ul></ul>", call.b)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "upload.signal"}))
	sink.wait(t, "upload")

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "selection", "attachmentId": "42"}))
	require.Equal(t, "42", sink.wait(t, "selection").a)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "MACA_PAUSE"}))
	sink.wait(t, "pause")
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "MACA_CANCEL"}))
	sink.wait(t, "cancel")

	// Unknown frame types are ignored, the connection survives.
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "future.thing"}))
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "upload.signal"}))
	sink.wait(t, "upload")
}

func TestServer_RejectsBadHello(t *testing.T) {
	s, _, _ := startTestServer(t, "s3cret")

	// Wrong token: the server drops the connection without a welcome.
	conn := dial(t, s, map[string]interface{}{"type": "hello", "token": "nope", "tab": "t1"})
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var msg json.RawMessage
	require.Error(t, conn.ReadJSON(&msg))
	require.False(t, s.Connected("t1"))

	// Missing tab id is equally fatal.
	conn2 := dial(t, s, map[string]interface{}{"type": "hello", "token": "s3cret"})
	defer conn2.Close()
	require.NoError(t, conn2.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.Error(t, conn2.ReadJSON(&msg))
}

func TestServer_DisconnectPurgesTab(t *testing.T) {
	s, sink, broker := startTestServer(t, "")
	closed := broker.Subscribe(events.TabClosedEvent)

	conn := dial(t, s, map[string]interface{}{"type": "hello", "tab": "t1"})
	readWelcome(t, conn)

	require.NoError(t, conn.Close())

	// RemoveTab fires for both the grid sink and the queue control.
	sink.wait(t, "remove")
	sink.wait(t, "remove")

	select {
	case ev := <-closed:
		require.Equal(t, "t1", ev.Payload.(events.TabPayload).TabID)
	case <-time.After(3 * time.Second):
		t.Fatal("no tab.closed event after disconnect")
	}
	require.False(t, s.Connected("t1"))
}

func TestServer_ProgressFanOut(t *testing.T) {
	s, _, broker := startTestServer(t, "")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	conn := dial(t, s, map[string]interface{}{"type": "hello", "tab": "t1"})
	defer conn.Close()
	readWelcome(t, conn)

	// Give Run's subscription a beat to attach before publishing.
	time.Sleep(50 * time.Millisecond)
	broker.PublishProgress(events.Progress{Phase: events.PhaseDoneItem, TabID: "t1", AttachmentID: "7", Queued: 3, Done: 1})
	// Progress for another tab must not reach this connection.
	broker.PublishProgress(events.Progress{Phase: events.PhaseQueued, TabID: "t2"})
	broker.PublishProgress(events.Progress{Phase: events.PhaseDoneAll, TabID: "t1", Queued: 3, Done: 3})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var msg struct {
		Type    string          `json:"type"`
		Payload events.Progress `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, "progress", msg.Type)
	require.Equal(t, events.PhaseDoneItem, msg.Payload.Phase)
	require.Equal(t, "7", msg.Payload.AttachmentID)

	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, events.PhaseDoneAll, msg.Payload.Phase)
}

func TestServer_Call(t *testing.T) {
	s, _, _ := startTestServer(t, "")

	conn := dial(t, s, map[string]interface{}{"type": "hello", "tab": "t1"})
	defer conn.Close()
	readWelcome(t, conn)

	// The page script side: answer the first rpc request that arrives.
	go func() {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"result":  map[string]bool{"alt": true, "title": false, "leyenda": false},
		})
	}()

	raw, err := s.Call(context.Background(), "t1", "dom.applyFields", map[string]string{"attachmentId": "42"})
	require.NoError(t, err)

	var res struct {
		Alt bool `json:"alt"`
	}
	require.NoError(t, json.Unmarshal(raw, &res))
	require.True(t, res.Alt)
}

func TestServer_CallErrors(t *testing.T) {
	s, _, _ := startTestServer(t, "")

	_, err := s.Call(context.Background(), "ghost", "dom.applyFields", nil)
	require.ErrorIs(t, err, errTabNotConnected)

	conn := dial(t, s, map[string]interface{}{"type": "hello", "tab": "t1"})
	defer conn.Close()
	readWelcome(t, conn)

	// The page script reports an rpc error.
	go func() {
		var req rpcRequest
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		_ = conn.WriteJSON(map[string]interface{}{
			"jsonrpc": "2.0",
			"id":      req.ID,
			"error":   map[string]interface{}{"code": -32601, "message": "unknown method"},
		})
	}()
	_, err = s.Call(context.Background(), "t1", "dom.bogus", nil)
	require.ErrorContains(t, err, "unknown method")

	// Nobody answers: the call times out instead of hanging forever.
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	_, err = s.Call(ctx, "t1", "dom.applyFields", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServer_RefusesNonLoopback(t *testing.T) {
	sink := newRecordingSink()
	s := New(Config{ListenAddr: "0.0.0.0:17621"}, sink, sink, events.NewBroker())
	require.ErrorContains(t, s.Start(), "loopback")
}

func TestRPCIDToString(t *testing.T) {
	require.Equal(t, "7", rpcIDToString("7"))
	require.Equal(t, "7", rpcIDToString(float64(7)))
	require.Equal(t, "7.5", rpcIDToString(float64(7.5)))
	require.Equal(t, "7", rpcIDToString(json.Number("7")))
	require.Equal(t, "", rpcIDToString(nil))
}
