// Pointdeck planning poker
//
// Participants join a shared room, the host starts a voting round, each
// participant plays one card from a fixed Fibonacci-like scale (plus an
// "uncertain" and a "break requested" symbol), and once everyone has
// voted (or the host ends the round) the aggregate result is broadcast
// to the whole room.
//
// Features:
// - One WebSocket per client at /poker/ws carrying all commands
// - Explicit create-then-join: a room is created empty, the first
//   member to join it becomes host (clients cannot self-declare host)
// - Host reassignment to the earliest-joined member on disconnect
// - Auto-completion when every current member has voted, including
//   when a non-voter disconnects mid-round
// - Random 8-char room IDs via crypto/rand, with server-side collision check
// - Rooms deleted as soon as their last member leaves
// - Idle rooms reaped after a configurable timeout
// - In-browser QR share link per room, backed by go-qrcode

package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"
)

// Messages coming from clients
type ClientMessage struct {
	Type     string `json:"type"`               // "create_room", "join_room", "start_round", "end_round", "vote"
	RoomID   string `json:"roomId,omitempty"`   // all but create_room
	Username string `json:"username,omitempty"` // join_room
	Value    string `json:"value,omitempty"`    // vote
}

// Acknowledgement for create_room
type RoomCreatedMessage struct {
	Type   string `json:"type"` // "room_created"
	RoomID string `json:"roomId"`
}

// Acknowledgement for join_room, success or failure
type JoinResultMessage struct {
	Type    string         `json:"type"` // "join_result"
	Success bool           `json:"success"`
	Error   string         `json:"error,omitempty"`
	Members []Member       `json:"members,omitempty"`
	IsHost  bool           `json:"isHost"`
	Round   *RoundSnapshot `json:"round,omitempty"`
}

// Acknowledgement for start_round, end_round and vote
type AckMessage struct {
	Type string `json:"type"` // "ack"
	Op   string `json:"op"`
}

// Sent to the initiating client only when a command is rejected.
type ErrorMessage struct {
	Type    string `json:"type"` // "error"
	Op      string `json:"op"`
	Code    string `json:"code"`    // "room_not_found", "not_host", "invalid_vote", "bad_request"
	Message string `json:"message"` // user-facing text
}

type Client struct {
	conn   *websocket.Conn
	send   chan any
	connID string

	mu     sync.Mutex
	room   *Room
	closed bool

	leaveOnce sync.Once
}

// closeSend is safe to call more than once; eviction, disconnect and
// the room reaper can all race to tear a client down.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

func (c *Client) trySend(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	select {
	case c.send <- msg:
	default:
	}
}

func (c *Client) boundRoom() *Room {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.room
}

func (c *Client) bindRoom(r *Room) {
	c.mu.Lock()
	c.room = r
	c.mu.Unlock()
}

// disconnect leaves whatever room the connection was bound to, exactly
// once, even under concurrent or repeated disconnect signals.
func (c *Client) disconnect() {
	c.leaveOnce.Do(func() {
		c.mu.Lock()
		room := c.room
		c.room = nil
		c.mu.Unlock()

		if room != nil {
			room.Leave(c)
		}
		c.closeSend()
	})
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// newConnectionID mints the transient per-connection identity.
func newConnectionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		log.Println("rand.Read error:", err)
		return ""
	}
	return hex.EncodeToString(buf)
}

func serveWSForRegistry(cfg *Config, reg *Registry) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		connID := newConnectionID()
		if connID == "" {
			http.Error(w, "unable to assign connection id", http.StatusInternalServerError)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &Client{
			conn:   conn,
			send:   make(chan any, 8),
			connID: connID,
		}

		logf(cfg, "GAMES: Connection %s from %s", connID, realIP(r))

		go client.writePump()
		client.readPump(cfg, reg)
	}
}

func (c *Client) readPump(cfg *Config, reg *Registry) {
	defer func() {
		c.disconnect()
		_ = c.conn.Close()
	}()

	for {
		var msg ClientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			return
		}

		c.handleMessage(cfg, reg, msg)
	}
}

func (c *Client) writePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

func (c *Client) handleMessage(cfg *Config, reg *Registry, msg ClientMessage) {
	switch msg.Type {
	case "create_room":
		room := reg.CreateRoom()
		logf(cfg, "GAMES: Created room %s", room.id)
		c.trySend(RoomCreatedMessage{
			Type:   "room_created",
			RoomID: room.id,
		})

	case "join_room":
		c.handleJoin(cfg, reg, msg)

	case "start_round":
		room, ok := reg.Get(msg.RoomID)
		if !ok {
			c.sendError(msg.Type, ErrRoomNotFound)
			return
		}
		c.ackOrError(msg.Type, room.StartRound(c))

	case "end_round":
		room, ok := reg.Get(msg.RoomID)
		if !ok {
			c.sendError(msg.Type, ErrRoomNotFound)
			return
		}
		c.ackOrError(msg.Type, room.EndRound(c))

	case "vote":
		room, ok := reg.Get(msg.RoomID)
		if !ok {
			c.sendError(msg.Type, ErrRoomNotFound)
			return
		}
		c.ackOrError(msg.Type, room.SubmitVote(c, msg.Value))

	default:
		c.trySend(ErrorMessage{
			Type:    "error",
			Op:      msg.Type,
			Code:    "bad_request",
			Message: "unknown message type",
		})
	}
}

func (c *Client) handleJoin(cfg *Config, reg *Registry, msg ClientMessage) {
	if msg.RoomID == "" || msg.Username == "" {
		c.trySend(JoinResultMessage{
			Type:  "join_result",
			Error: "a room id and username are required",
		})
		return
	}

	room, ok := reg.Get(msg.RoomID)
	if !ok {
		c.trySend(JoinResultMessage{
			Type:  "join_result",
			Error: "Room not found",
		})
		return
	}

	// A connection is bound to at most one room; switching rooms
	// leaves the old one first.
	if prev := c.boundRoom(); prev != nil && prev != room {
		prev.Leave(c)
	}

	result := room.Join(cfg, c, msg.Username)
	c.bindRoom(room)

	c.trySend(JoinResultMessage{
		Type:    "join_result",
		Success: true,
		Members: result.Members,
		IsHost:  result.IsHost,
		Round:   result.Round,
	})
}

func (c *Client) ackOrError(op string, err error) {
	if err != nil {
		c.sendError(op, err)
		return
	}
	c.trySend(AckMessage{Type: "ack", Op: op})
}

func (c *Client) sendError(op string, err error) {
	code := "internal"
	switch {
	case errors.Is(err, ErrRoomNotFound):
		code = "room_not_found"
	case errors.Is(err, ErrNotHost):
		code = "not_host"
	case errors.Is(err, ErrInvalidVote):
		code = "invalid_vote"
	}

	c.trySend(ErrorMessage{
		Type:    "error",
		Op:      op,
		Code:    code,
		Message: err.Error(),
	})
}

// serveRoomPage is the share target for a room URL: a minimal landing
// page naming the room. The actual table UI is an external client
// consuming the websocket protocol.
func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := ps.ByName("roomid")
		if roomID == "" {
			http.Error(w, "missing room id", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("pointdeck", "Room "+roomID)))
	}
}

// QR handler: generates a PNG QR code for the current room URL using go-qrcode.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("roomid")
	if roomID == "" {
		http.Error(w, "missing room id", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /.../room/:roomid/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// registerPokerGame sets up routes so that:
//   - $path                    → landing page
//   - $path/ws                 → WebSocket carrying the whole protocol
//   - $path/room/:roomid       → share landing page for one room
//   - $path/room/:roomid/qr    → PNG QR code for that room URL
func registerPokerGame(cfg *Config, path string, mux *httprouter.Router) {
	reg := newRegistry(cfg.sessionTimeout)

	mux.GET(cfg.prefix+path, serveGamePage(cfg))

	mux.GET(cfg.prefix+path+"/ws", serveWSForRegistry(cfg, reg))

	mux.GET(cfg.prefix+path+"/room/:roomid", serveRoomPage(cfg))

	mux.GET(cfg.prefix+path+"/room/:roomid/qr", qrHandler)
}

func serveGamePage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(newPage("pointdeck", "Planning poker")))
	}
}
