package main

import (
	"bytes"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"spaceshooter/game"
)

const (
	writeWait         = 10 * time.Second
	pongWait          = 60 * time.Second
	pingPeriod        = (pongWait * 9) / 10
	maxMessageSize    = 4096
	sendBufSize       = 256
	maxMessagesPerSec = 200 // inputs arrive once per client physics tick
	maxNameLen        = 16
)

// Client represents a WebSocket connection
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	send       chan []byte
	remoteAddr string
	msgCount   int
	msgResetAt time.Time

	mu        sync.Mutex
	match     *game.Match
	matchName string
	playerID  string
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
	}
}

// ReadPump reads messages from the WebSocket connection
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		msgType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("ws error: %v", err)
			}
			break
		}

		// Rate limiting
		now := time.Now()
		if now.After(c.msgResetAt) {
			c.msgCount = 0
			c.msgResetAt = now.Add(time.Second)
		}
		c.msgCount++
		if c.msgCount > maxMessagesPerSec {
			log.Printf("rate limit exceeded for %s, disconnecting", c.remoteAddr)
			c.hub.stats.Track(EvtRateLimited, c.currentMatchName())
			break
		}

		if msgType != websocket.TextMessage {
			continue
		}
		message = bytes.TrimSpace(message)
		if len(message) > 0 && message[0] == '{' {
			c.handleControl(message)
		} else {
			c.handleCommand(string(message))
		}
	}
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			// Check for binary marker (0xFF prefix from SendBinary)
			var err error
			if len(message) > 0 && message[0] == 0xFF {
				err = c.conn.WriteMessage(websocket.BinaryMessage, message[1:])
			} else {
				err = c.conn.WriteMessage(websocket.TextMessage, message)
			}
			if err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Send delivers a match event. Snapshots go out as msgpack binary frames,
// everything else as JSON text.
func (c *Client) Send(env game.Envelope) {
	if env.T == game.EvServerUpdate {
		if snap, ok := env.Data.(game.Snapshot); ok {
			data, err := msgpack.Marshal(game.SnapshotFrame{T: env.T, Data: snap})
			if err != nil {
				log.Printf("msgpack error: %v", err)
				return
			}
			c.SendBinary(data)
			c.hub.stats.Track(EvtSnapshot, c.currentMatchName())
			return
		}
	}
	c.SendJSON(env)
	c.hub.stats.Track(EvtEventSent, c.currentMatchName())
}

// SendJSON sends a JSON message to the client
func (c *Client) SendJSON(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("marshal error: %v", err)
		return
	}
	c.SendRaw(data)
}

// SendRaw sends pre-marshaled bytes as a text message to the client
func (c *Client) SendRaw(data []byte) {
	defer func() { recover() }()
	select {
	case c.send <- data:
	default:
		// Client too slow, drop message
	}
}

// SendBinary sends pre-marshaled bytes as a binary WebSocket message
// Prefixes with 0xFF marker byte so WritePump can distinguish from text
func (c *Client) SendBinary(data []byte) {
	defer func() { recover() }()
	msg := make([]byte, len(data)+1)
	msg[0] = 0xFF // binary marker
	copy(msg[1:], data)
	select {
	case c.send <- msg:
	default:
	}
}

// handleControl routes JSON control messages
func (c *Client) handleControl(raw []byte) {
	var env game.InEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}

	switch env.T {
	case MsgGameRequest:
		c.handleGameRequest(env.Data)
	case MsgPlayerReady:
		c.handleReady()
	case MsgLeaveGame:
		c.leaveMatch()
	}
}

func (c *Client) handleGameRequest(data json.RawMessage) {
	var req GameRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.SendJSON(game.Envelope{T: MsgConnectionFail, Data: FailMsg{Reason: "malformed request"}})
		return
	}
	req.PlayerName = strings.TrimSpace(req.PlayerName)
	if req.PlayerName == "" {
		req.PlayerName = "Pilot"
	}
	if len(req.PlayerName) > maxNameLen {
		req.PlayerName = req.PlayerName[:maxNameLen]
	}
	req.PlayerColor &= 0xffffff

	c.leaveMatch()
	m, info, err := c.hub.registry.Join(req, c.remoteAddr, c)
	if err != nil {
		c.hub.stats.Track(EvtJoinRejected, req.MatchName)
		c.SendJSON(game.Envelope{T: MsgConnectionFail, Data: FailMsg{Reason: err.Error()}})
		return
	}

	c.mu.Lock()
	c.match, c.matchName, c.playerID = m, req.MatchName, info.ID
	c.mu.Unlock()
	c.hub.stats.Track(EvtPlayerJoin, req.MatchName)
	c.SendJSON(game.Envelope{T: MsgConnectionSuccess, Data: ConnectionSuccess{ID: info.ID, Match: req.MatchName}})
}

func (c *Client) handleReady() {
	m, id := c.current()
	if m == nil {
		c.SendJSON(game.Envelope{T: MsgReadyFail, Data: FailMsg{Reason: "not in a match"}})
		return
	}
	if err := m.Ready(id); err != nil && err != game.ErrAlreadyReady {
		c.SendJSON(game.Envelope{T: MsgReadyFail, Data: FailMsg{Reason: err.Error()}})
	}
}

// handleCommand forwards a compact game command. Malformed commands are
// dropped by the match.
func (c *Client) handleCommand(cmd string) {
	m, id := c.current()
	if m == nil {
		return
	}
	m.HandleMessage(id, cmd)
}

func (c *Client) leaveMatch() {
	c.mu.Lock()
	m, id, name := c.match, c.playerID, c.matchName
	c.match, c.playerID, c.matchName = nil, "", ""
	c.mu.Unlock()
	if m == nil {
		return
	}
	if err := m.Leave(id); err == nil {
		c.hub.stats.Track(EvtPlayerLeave, name)
	}
}

func (c *Client) current() (*game.Match, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.match, c.playerID
}

func (c *Client) currentMatchName() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.matchName
}
