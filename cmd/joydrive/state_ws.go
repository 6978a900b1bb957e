package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"joydrive/internal/control"
	"joydrive/internal/input"
)

// ============================================================================
// State WebSocket: hub + per-client pumps + broadcaster
// ============================================================================
//
// The Hub tracks connected clients. Each client has its own write pump so a
// slow reader never stalls the others; a client whose send buffer fills is
// disconnected. RunBroadcaster turns daemon broadcasts into JSON frames.
//
// Frames are JSON text messages with an envelope: {type, ts, data}.
// On connect a client first gets "state_init" with the latest snapshot.
//
// ============================================================================

const (
	wsTypeStateInit          = "state_init"
	wsTypeControlState       = "control_state"
	wsTypeDeviceConnected    = "device_connected"
	wsTypeDeviceDisconnected = "device_disconnected"
	wsTypeEraseRecords       = "erase_records"
	wsTypeEmergencyStop      = "emergency_stop"
	wsTypeModeChanged        = "mode_changed"
)

// wsControlStateData is the `data` payload for "state_init" and "control_state".
type wsControlStateData struct {
	Session   string         `json:"session,omitempty"`
	Device    string         `json:"device,omitempty"`
	Connected bool           `json:"connected"`
	State     control.State  `json:"state"`
	Output    control.Output `json:"output"`
	Latest    input.Latest   `json:"latest"`
}

type wsDeviceConnectedData struct {
	Session string `json:"session"`
	Device  string `json:"device"`
	Index   int    `json:"index"`
	Axes    int    `json:"axes"`
	Buttons int    `json:"buttons"`
	Hats    int    `json:"hats"`
}

type wsDeviceDisconnectedData struct {
	Session string `json:"session"`
	Device  string `json:"device"`
	Reason  string `json:"reason"`
}

type wsEraseRecordsData struct {
	Count int `json:"count"`
}

type wsModeChangedData struct {
	Mode control.Mode `json:"mode"`
}

// wsOutboundEvent is a pre-typed, externally-consumable state event.
type wsOutboundEvent struct {
	Type string
	Data any
	At   time.Time // zero means now
}

// envelope is the wire format envelope for WS messages.
type envelope struct {
	Type string     `json:"type"`
	Ts   *time.Time `json:"ts,omitempty"`
	Data any        `json:"data,omitempty"`
}

func controlStateData(s Snapshot) wsControlStateData {
	return wsControlStateData{
		Session:   s.Session,
		Device:    s.Device,
		Connected: s.Connected,
		State:     s.State,
		Output:    s.Output,
		Latest:    s.Latest,
	}
}

func marshalEnvelope(ev wsOutboundEvent) ([]byte, error) {
	ts := ev.At
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return json.Marshal(envelope{Type: ev.Type, Ts: &ts, Data: ev.Data})
}

// ============================================================================
// Hub
// ============================================================================

// Hub fans serialized frames out to every connected state viewer. Only Run
// touches registration and delivery; ClientCount may be called from anywhere.
type Hub struct {
	logger  *slog.Logger
	metrics *metrics

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	mu      sync.Mutex
	clients map[*Client]struct{}

	sendBuf int
}

type HubConfig struct {
	// SendBuf is the per-viewer frame queue. Zero means 32.
	SendBuf int

	// BroadcastBuf is the queue in front of Run. Zero means 128.
	BroadcastBuf int
}

// NewHub returns a hub that does nothing until Run is started. m may be nil.
func NewHub(logger *slog.Logger, m *metrics, cfg HubConfig) *Hub {
	if cfg.SendBuf <= 0 {
		cfg.SendBuf = 32
	}
	if cfg.BroadcastBuf <= 0 {
		cfg.BroadcastBuf = 128
	}
	return &Hub{
		logger:     logger,
		metrics:    m,
		broadcast:  make(chan []byte, cfg.BroadcastBuf),
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		clients:    make(map[*Client]struct{}),
		sendBuf:    cfg.SendBuf,
	}
}

// Run delivers frames until ctx ends and then drops every viewer.
func (h *Hub) Run(ctx context.Context) {
	h.logger.Info("state hub running")
	defer h.logger.Info("state hub stopped")

	for {
		select {
		case <-ctx.Done():
			h.dropAll()
			return

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = struct{}{}
			n := len(h.clients)
			h.mu.Unlock()
			h.observeClients(n)
			h.logger.Info("state viewer joined", "remote_addr", c.remoteAddr, "viewers", n)

		case c := <-h.unregister:
			h.drop(c, "gone")

		case msg := <-h.broadcast:
			h.deliver(msg)
		}
	}
}

// deliver queues msg for every viewer. A viewer whose queue is full has
// fallen behind the control loop and is dropped.
func (h *Hub) deliver(msg []byte) {
	var behind []*Client

	h.mu.Lock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			behind = append(behind, c)
		}
	}
	h.mu.Unlock()

	for _, c := range behind {
		h.drop(c, "behind")
	}
}

// ClientCount returns the number of connected viewers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) observeClients(n int) {
	if h.metrics != nil {
		h.metrics.wsClients.Set(float64(n))
	}
}

// drop forgets c and ends its writePump. Only the call that removes c from
// the map closes its queue.
func (h *Hub) drop(c *Client, reason string) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()
	if !ok {
		return
	}

	c.shutdown()
	h.observeClients(n)
	h.logger.Info("state viewer left", "remote_addr", c.remoteAddr, "reason", reason, "viewers", n)
}

func (h *Hub) dropAll() {
	h.mu.Lock()
	all := h.clients
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	for c := range all {
		c.shutdown()
	}
	h.observeClients(0)
}

// BroadcastBytes hands a frame to Run without blocking the caller.
func (h *Hub) BroadcastBytes(msg []byte) {
	select {
	case h.broadcast <- msg:
	default:
		h.logger.Warn("state hub queue full, frame dropped", "bytes", len(msg))
	}
}

// ============================================================================
// Client
// ============================================================================

// Client is one websocket viewer. The hub owns send and closes it exactly
// once, through shutdown.
type Client struct {
	hub *Hub

	conn *websocket.Conn
	send chan []byte

	remoteAddr string
	logger     *slog.Logger
}

func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string, logger *slog.Logger) *Client {
	n := 32
	if hub != nil && hub.sendBuf > 0 {
		n = hub.sendBuf
	}
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, n),
		remoteAddr: remoteAddr,
		logger:     logger,
	}
}

func (c *Client) shutdown() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
	close(c.send)
}

const (
	writeWait  = 5 * time.Second
	pongWait   = 30 * time.Second
	pingPeriod = 20 * time.Second
)

// wsControlStateCoalesceWindow bounds how often control_state frames go out.
// Within a window only the latest snapshot is sent.
const wsControlStateCoalesceWindow = 50 * time.Millisecond

func closeStatus(err error) (code int, text string, ok bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, "", false
}

func (c *Client) logExit(pump string, err error) {
	if errors.Is(err, websocket.ErrCloseSent) {
		return
	}
	if code, text, ok := closeStatus(err); ok {
		c.logger.Info("state viewer closed", "pump", pump, "remote_addr", c.remoteAddr, "code", code, "reason", text)
		return
	}
	c.logger.Info("state viewer pump ended", "pump", pump, "remote_addr", c.remoteAddr, "error", err)
}

// writePump is the only writer on conn. It sends queued frames, pings every
// pingPeriod, and says goodbye when the hub closes send.
func (c *Client) writePump(ctx context.Context) {
	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	write := func(kind int, data []byte) error {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		return c.conn.WriteMessage(kind, data)
	}

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-c.send:
			if !ok {
				_ = write(websocket.CloseMessage, []byte{})
				return
			}
			if err := write(websocket.TextMessage, msg); err != nil {
				c.logExit("write", err)
				return
			}

		case <-ping.C:
			if err := write(websocket.PingMessage, nil); err != nil {
				c.logExit("write", err)
				return
			}
		}
	}
}

// readPump exists to process pongs and notice the peer going away. Viewers
// have nothing to say; text they send is ignored.
func (c *Client) readPump(ctx context.Context) {
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for ctx.Err() == nil {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			c.logExit("read", err)
			if c.hub != nil {
				c.hub.unregister <- c
			}
			return
		}
	}
}

// ============================================================================
// HTTP handler
// ============================================================================

type StateServer struct {
	logger *slog.Logger
	hub    *Hub
	store  *snapshotStore
}

func NewStateServer(logger *slog.Logger, hub *Hub, store *snapshotStore) *StateServer {
	return &StateServer{logger: logger, hub: hub, store: store}
}

func (s *StateServer) Register(mux *http.ServeMux, path string) {
	if mux == nil {
		return
	}
	mux.HandleFunc(path, s.handleStateWS)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleStateWS upgrades and registers a client, then queues state_init.
func (s *StateServer) handleStateWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("ws upgrade failed", "error", err)
		return
	}

	client := NewClient(s.hub, conn, r.RemoteAddr, s.logger)

	// Queue state_init before registering so it is the first frame out.
	if msg, ok := s.initMessage(); ok {
		client.send <- msg
	}
	s.hub.register <- client

	// The pumps outlive the request; net/http cancels r.Context() as soon as
	// this handler returns.
	go client.writePump(context.Background())
	go client.readPump(context.Background())
}

func (s *StateServer) initMessage() ([]byte, bool) {
	if s.store == nil {
		return nil, false
	}
	snap, ok := s.store.Load()
	if !ok {
		return nil, false
	}
	msg, err := marshalEnvelope(wsOutboundEvent{
		Type: wsTypeStateInit,
		Data: controlStateData(snap),
		At:   snap.At,
	})
	if err != nil {
		s.logger.Warn("ws state_init marshal failed", "error", err)
		return nil, false
	}
	return msg, true
}

// ============================================================================
// Broadcaster
// ============================================================================

// RunBroadcaster converts daemon broadcasts to frames and hands them to the
// hub. control_state is rate-limited: the latest pending snapshot is flushed
// once per window while updates keep arriving. Any other broadcast flushes
// the pending snapshot first so ordering is preserved.
func RunBroadcaster(ctx context.Context, hub *Hub, src <-chan StateBroadcast, logger *slog.Logger) {
	if hub == nil || src == nil {
		return
	}

	var pending *wsOutboundEvent
	var timer *time.Timer
	var timerC <-chan time.Time

	send := func(ev wsOutboundEvent) {
		msg, err := marshalEnvelope(ev)
		if err != nil {
			logger.Warn("ws broadcaster marshal failed", "error", err, "type", ev.Type)
			return
		}
		if hub.metrics != nil {
			hub.metrics.wsBroadcasts.WithLabelValues(ev.Type).Inc()
		}
		hub.BroadcastBytes(msg)
	}

	flushPending := func() {
		if pending == nil {
			return
		}
		send(*pending)
		pending = nil
	}

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = nil
		timerC = nil
	}

	for {
		select {
		case <-ctx.Done():
			flushPending()
			stopTimer()
			return

		case <-timerC:
			flushPending()
			stopTimer()

		case b, ok := <-src:
			if !ok {
				flushPending()
				stopTimer()
				logger.Info("ws broadcaster stopping (source ended)")
				return
			}

			ev, ok := convertBroadcast(b)
			if !ok {
				continue
			}

			if ev.Type == wsTypeControlState {
				pending = &ev
				if timer == nil {
					timer = time.NewTimer(wsControlStateCoalesceWindow)
					timerC = timer.C
				}
				continue
			}

			flushPending()
			stopTimer()
			send(ev)
		}
	}
}

func convertBroadcast(b StateBroadcast) (wsOutboundEvent, bool) {
	switch ev := b.(type) {
	case BroadcastControlState:
		return wsOutboundEvent{
			Type: wsTypeControlState,
			Data: controlStateData(ev.Snapshot),
			At:   ev.Snapshot.At,
		}, true

	case BroadcastDeviceConnected:
		return wsOutboundEvent{
			Type: wsTypeDeviceConnected,
			Data: wsDeviceConnectedData{
				Session: ev.Session,
				Device:  ev.Device,
				Index:   ev.Index,
				Axes:    ev.Axes,
				Buttons: ev.Buttons,
				Hats:    ev.Hats,
			},
			At: ev.At,
		}, true

	case BroadcastDeviceDisconnected:
		return wsOutboundEvent{
			Type: wsTypeDeviceDisconnected,
			Data: wsDeviceDisconnectedData{Session: ev.Session, Device: ev.Device, Reason: ev.Reason},
			At:   ev.At,
		}, true

	case BroadcastEraseRecords:
		return wsOutboundEvent{
			Type: wsTypeEraseRecords,
			Data: wsEraseRecordsData{Count: ev.Count},
			At:   ev.At,
		}, true

	case BroadcastEmergencyStop:
		return wsOutboundEvent{Type: wsTypeEmergencyStop, At: ev.At}, true

	case BroadcastModeChanged:
		return wsOutboundEvent{
			Type: wsTypeModeChanged,
			Data: wsModeChangedData{Mode: ev.Mode},
			At:   ev.At,
		}, true

	default:
		return wsOutboundEvent{}, false
	}
}
