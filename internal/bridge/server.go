// Package bridge hosts the loopback WebSocket endpoint the browser extension
// connects to.
//
// # Overview
//
// Each admin tab opens one connection. Inbound, the page script streams grid
// snapshots, upload signals, selection events, and pause/resume/cancel
// commands; outbound, the server fans queue progress out to the tab's overlay
// and issues JSON-RPC requests (field application) into the page.
//
// A disconnect is treated as the tab closing: all per-tab pipeline state is
// purged. Progress delivery is best-effort: a tab with no live connection
// simply misses events, it never stalls the queue.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ruvelro/maca-engine/internal/csync"
	"github.com/ruvelro/maca-engine/internal/events"
)

var errTabNotConnected = errors.New("bridge: tab is not connected")

// GridSink receives the page script's observations. Implemented by the
// attachment observer.
type GridSink interface {
	HandleSnapshot(tabID, pageURL, html string)
	HandleUploadSignal(tabID string)
	HandleSelection(tabID, attachmentID string)
	RemoveTab(tabID string)
}

// QueueControl receives user commands. Implemented by the queue coordinator.
type QueueControl interface {
	Pause(tabID string)
	Resume(tabID string)
	Cancel(tabID string)
	RemoveTab(tabID string)
}

// Config configures the bridge endpoint.
type Config struct {
	ListenAddr string
	Token      string
	Timeout    time.Duration
}

func (c Config) withDefaults() Config {
	out := c
	out.ListenAddr = strings.TrimSpace(out.ListenAddr)
	out.Token = strings.TrimSpace(out.Token)
	if out.ListenAddr == "" {
		out.ListenAddr = "127.0.0.1:17621"
	}
	if out.Timeout <= 0 {
		out.Timeout = 15 * time.Second
	}
	return out
}

// Server accepts extension connections and routes traffic between the page
// scripts and the pipeline.
type Server struct {
	cfg     Config
	grid    GridSink
	control QueueControl
	broker  *events.Broker

	mu      sync.Mutex
	ln      net.Listener
	httpSrv *http.Server
	addr    string

	conns *csync.Map[string, *tabConn]
}

// tabConn is one live extension connection.
type tabConn struct {
	tabID string
	conn  *websocket.Conn

	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[string]chan callResult
	nextID    atomic.Uint64
}

// New creates a bridge server.
func New(cfg Config, grid GridSink, control QueueControl, broker *events.Broker) *Server {
	return &Server{
		cfg:     cfg.withDefaults(),
		grid:    grid,
		control: control,
		broker:  broker,
		conns:   csync.NewMap[string, *tabConn](),
	}
}

// Addr returns the bound address once Start succeeded.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Connected reports whether a tab currently has a live connection.
func (s *Server) Connected(tabID string) bool {
	return s.conns.Has(tabID)
}

// Start binds the endpoint. The listen address must be loopback; this bridge
// carries page content and credentials and is never meant to leave the host.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.ln != nil {
		s.mu.Unlock()
		return nil
	}
	cfg := s.cfg
	s.mu.Unlock()

	host, _, err := net.SplitHostPort(cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("invalid bridge_listen_addr %q: %w", cfg.ListenAddr, err)
	}
	if host != "localhost" {
		ip := net.ParseIP(host)
		if ip == nil || !ip.IsLoopback() {
			return fmt.Errorf("bridge_listen_addr must bind to loopback, got %q", cfg.ListenAddr)
		}
	}

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %q: %w", cfg.ListenAddr, err)
	}
	addr := ln.Addr().String()

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)

	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	s.mu.Lock()
	s.ln = ln
	s.httpSrv = httpSrv
	s.addr = addr
	s.mu.Unlock()

	go func() {
		_ = httpSrv.Serve(ln)
	}()

	return nil
}

// Run fans queue progress out to the owning tab until the context ends.
func (s *Server) Run(ctx context.Context) {
	sub := s.broker.Subscribe(events.ProgressEvent)
	defer s.broker.Unsubscribe(sub, events.ProgressEvent)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			p, ok := ev.Payload.(events.Progress)
			if !ok {
				continue
			}
			tc, ok := s.conns.Get(p.TabID)
			if !ok {
				continue
			}
			// Best-effort: an overlay that went away mid-write is fine.
			_ = tc.writeJSON(progressMessage{Type: "progress", Payload: p})
		}
	}
}

// Close shuts the endpoint down and drops all connections.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpSrv
	s.httpSrv = nil
	s.ln = nil
	s.addr = ""
	s.mu.Unlock()

	for _, tc := range s.conns.Values() {
		_ = tc.conn.Close()
	}
	s.conns.Clear()

	if srv == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return srv.Shutdown(ctx)
}

// Call issues a JSON-RPC request into the page script of a tab and waits for
// its response.
func (s *Server) Call(ctx context.Context, tabID, method string, params interface{}) (json.RawMessage, error) {
	method = strings.TrimSpace(method)
	if method == "" {
		return nil, errors.New("method is required")
	}

	tc, ok := s.conns.Get(tabID)
	if !ok {
		return nil, errTabNotConnected
	}

	id := fmt.Sprintf("%d", tc.nextID.Add(1))
	ch := make(chan callResult, 1)

	tc.pendingMu.Lock()
	tc.pending[id] = ch
	tc.pendingMu.Unlock()

	req := rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params}
	if err := tc.writeJSON(req); err != nil {
		tc.pendingMu.Lock()
		delete(tc.pending, id)
		tc.pendingMu.Unlock()
		return nil, err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	select {
	case <-callCtx.Done():
		tc.pendingMu.Lock()
		delete(tc.pending, id)
		tc.pendingMu.Unlock()
		return nil, callCtx.Err()
	case res := <-ch:
		return res.Result, res.Err
	}
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(*http.Request) bool { return true },
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	if err := s.accept(conn); err != nil {
		_ = conn.Close()
	}
}

// accept performs the hello/welcome handshake and registers the tab.
func (s *Server) accept(conn *websocket.Conn) error {
	_ = conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		return err
	}

	var hello inboundMessage
	if err := json.Unmarshal(data, &hello); err != nil {
		return fmt.Errorf("parse hello: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(hello.Type), typeHello) {
		return fmt.Errorf("expected hello, got %q", hello.Type)
	}
	if s.cfg.Token != "" && hello.Token != s.cfg.Token {
		return errors.New("unauthorized")
	}
	tabID := strings.TrimSpace(hello.Tab)
	if tabID == "" {
		return errors.New("hello is missing the tab id")
	}

	_ = conn.SetReadDeadline(time.Time{})

	tc := &tabConn{
		tabID:   tabID,
		conn:    conn,
		pending: make(map[string]chan callResult),
	}
	if err := tc.writeJSON(welcomeMessage{Type: "welcome", Version: protocolVersion}); err != nil {
		return err
	}

	// A reconnect for the same tab replaces the old connection.
	if old, ok := s.conns.Get(tabID); ok {
		old.failAllPending(errTabNotConnected)
		_ = old.conn.Close()
	}
	s.conns.Set(tabID, tc)

	s.broker.Publish(events.Event{
		Type:    events.TabConnectedEvent,
		Payload: events.TabPayload{TabID: tabID, PageURL: hello.Page},
	})

	go s.readLoop(tc)
	return nil
}

func (s *Server) readLoop(tc *tabConn) {
	for {
		_, data, err := tc.conn.ReadMessage()
		if err != nil {
			break
		}
		s.dispatch(tc, data)
	}

	// Disconnect means the tab is gone: purge every piece of per-tab state.
	if current, ok := s.conns.Get(tc.tabID); ok && current == tc {
		s.conns.Delete(tc.tabID)
		tc.failAllPending(errTabNotConnected)
		s.grid.RemoveTab(tc.tabID)
		s.control.RemoveTab(tc.tabID)
		s.broker.Publish(events.Event{
			Type:    events.TabClosedEvent,
			Payload: events.TabPayload{TabID: tc.tabID},
		})
	}
	_ = tc.conn.Close()
}

// dispatch routes one inbound frame. Unknown types are ignored for forward
// compatibility.
func (s *Server) dispatch(tc *tabConn, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return
	}

	if msg.JSONRPC == "2.0" && msg.Type == "" {
		s.handleRPCResponse(tc, msg)
		return
	}

	switch msg.Type {
	case typeGridSnapshot:
		s.grid.HandleSnapshot(tc.tabID, msg.Page, msg.HTML)
	case typeUploadSignal:
		s.grid.HandleUploadSignal(tc.tabID)
	case typeSelection:
		if msg.AttachmentID != "" {
			s.grid.HandleSelection(tc.tabID, msg.AttachmentID)
		}
	case cmdPause:
		s.control.Pause(tc.tabID)
	case cmdResume:
		s.control.Resume(tc.tabID)
	case cmdCancel:
		s.control.Cancel(tc.tabID)
	}
}

func (s *Server) handleRPCResponse(tc *tabConn, msg inboundMessage) {
	id := rpcIDToString(msg.ID)
	if id == "" {
		return
	}

	var out callResult
	out.Result = msg.Result
	if msg.Error != nil {
		out.Err = fmt.Errorf("rpc error %d: %s", msg.Error.Code, msg.Error.Message)
	}

	tc.pendingMu.Lock()
	ch := tc.pending[id]
	delete(tc.pending, id)
	tc.pendingMu.Unlock()
	if ch == nil {
		return
	}
	ch <- out
}

func (tc *tabConn) writeJSON(v interface{}) error {
	tc.writeMu.Lock()
	defer tc.writeMu.Unlock()
	return tc.conn.WriteJSON(v)
}

func (tc *tabConn) failAllPending(err error) {
	tc.pendingMu.Lock()
	defer tc.pendingMu.Unlock()
	for id, ch := range tc.pending {
		delete(tc.pending, id)
		if ch == nil {
			continue
		}
		ch <- callResult{Err: err}
	}
}

func rpcIDToString(id interface{}) string {
	switch v := id.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return fmt.Sprintf("%d", int64(v))
		}
		return fmt.Sprintf("%v", v)
	case json.Number:
		return v.String()
	default:
		return ""
	}
}
