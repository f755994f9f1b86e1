package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4096
	sendBufferSize = 256
)

// outFrame is a client -> gateway control frame, the outbound analogue of
// the teacher's session.controlMessage.
type outFrame struct {
	Action      string `json:"action"`
	GuildID     string `json:"guild_id,omitempty"`
	Text        string `json:"text,omitempty"`
	Name        string `json:"name,omitempty"`
	Description string `json:"description,omitempty"`
}

// inFrame is a gateway -> client event frame.
type inFrame struct {
	Type       string            `json:"type"`
	Reason     string            `json:"reason,omitempty"`
	Guilds     []string          `json:"guilds,omitempty"`
	Command    string            `json:"command,omitempty"`
	Args       map[string]string `json:"args,omitempty"`
	GuildID    string            `json:"guild_id,omitempty"`
	RetryAfter float64           `json:"retry_after,omitempty"`
}

var _ Gateway = (*WSGateway)(nil)

// WSGateway is a websocket-backed Gateway implementation, adapted from the
// teacher's session.Client/Handler read-write pump pair but dialing out to
// a remote endpoint instead of accepting inbound upgrades.
type WSGateway struct {
	url   string
	token string

	mu   sync.RWMutex
	conn *websocket.Conn

	guildsMu sync.RWMutex
	guilds   []string

	handlerMu sync.RWMutex
	handler   CommandHandler

	sendCh chan []byte
	done   chan struct{}
	closeOnce sync.Once

	connected chan error // signals the outcome of Connect's handshake

	acksMu sync.Mutex
	acks   []chan error // FIFO of pending set_nickname/set_presence acks
}

// NewWSGateway creates a gateway client pointed at url, authenticating
// with token.
func NewWSGateway(url, token string) *WSGateway {
	return &WSGateway{
		url:    url,
		token:  token,
		sendCh: make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// Connect dials the gateway and starts the read/write pumps. It blocks
// until either the gateway confirms the session or rejects it with
// disallowed intents.
func (g *WSGateway) Connect(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+g.token)

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, g.url, header)
	if err != nil {
		return fmt.Errorf("gateway dial: %w", err)
	}

	g.mu.Lock()
	g.conn = conn
	g.mu.Unlock()

	g.connected = make(chan error, 1)
	go g.writePump()
	go g.readPump()

	select {
	case err := <-g.connected:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(10 * time.Second):
		return fmt.Errorf("gateway connect: handshake timeout")
	}
}

func (g *WSGateway) readPump() {
	defer g.Close()

	conn := g.safeConn()
	if conn == nil {
		return
	}
	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	handshakeDone := false
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !handshakeDone {
				g.signalConnect(fmt.Errorf("gateway read: %w", err))
			}
			return
		}

		var frame inFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			log.Printf("gateway: invalid frame: %v", err)
			continue
		}

		switch frame.Type {
		case "ready":
			g.setGuilds(frame.Guilds)
			handshakeDone = true
			g.signalConnect(nil)
		case "disallowed_intents":
			handshakeDone = true
			g.signalConnect(&DisallowedGatewayIntentsError{Reason: frame.Reason})
			return
		case "guild_list":
			g.setGuilds(frame.Guilds)
		case "command_invocation":
			g.dispatchCommand(frame)
		case "ack":
			g.resolveAck(nil)
		case "rate_limited":
			retryAfter := time.Duration(frame.RetryAfter * float64(time.Second))
			g.resolveAck(&RateLimitedError{RetryAfter: retryAfter})
		default:
			log.Printf("gateway: unknown frame type %q", frame.Type)
		}
	}
}

func (g *WSGateway) dispatchCommand(frame inFrame) {
	g.handlerMu.RLock()
	handler := g.handler
	g.handlerMu.RUnlock()
	if handler == nil {
		return
	}
	reply := handler(context.Background(), CommandInvocation{
		Name:    frame.Command,
		Args:    frame.Args,
		GuildID: frame.GuildID,
	})
	payload, err := json.Marshal(struct {
		Action    string `json:"action"`
		GuildID   string `json:"guild_id"`
		Text      string `json:"text"`
		Ephemeral bool   `json:"ephemeral"`
	}{Action: "command_reply", GuildID: frame.GuildID, Text: reply.Text, Ephemeral: reply.Ephemeral})
	if err != nil {
		log.Printf("gateway: encode command reply: %v", err)
		return
	}
	g.enqueue(payload)
}

func (g *WSGateway) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		g.Close()
	}()

	for {
		select {
		case data, ok := <-g.sendCh:
			if !ok {
				return
			}
			conn := g.safeConn()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			conn := g.safeConn()
			if conn == nil {
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-g.done:
			return
		}
	}
}

func (g *WSGateway) signalConnect(err error) {
	select {
	case g.connected <- err:
	default:
	}
}

func (g *WSGateway) safeConn() *websocket.Conn {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.conn
}

func (g *WSGateway) setGuilds(guilds []string) {
	g.guildsMu.Lock()
	defer g.guildsMu.Unlock()
	g.guilds = guilds
}

func (g *WSGateway) enqueue(data []byte) {
	select {
	case g.sendCh <- data:
	default:
		log.Printf("gateway: send buffer full, dropping frame")
	}
}

func (g *WSGateway) enqueueAck() chan error {
	ack := make(chan error, 1)
	g.acksMu.Lock()
	g.acks = append(g.acks, ack)
	g.acksMu.Unlock()
	return ack
}

func (g *WSGateway) resolveAck(err error) {
	g.acksMu.Lock()
	if len(g.acks) == 0 {
		g.acksMu.Unlock()
		return
	}
	ack := g.acks[0]
	g.acks = g.acks[1:]
	g.acksMu.Unlock()

	select {
	case ack <- err:
	default:
	}
}

// sendAcked sends frame and waits for the gateway's ack or rate_limited
// response, surfacing a *RateLimitedError on the latter so callers can
// apply spec §4.5's backoff discipline.
func (g *WSGateway) sendAcked(ctx context.Context, frame outFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode gateway frame: %w", err)
	}
	ack := g.enqueueAck()

	select {
	case g.sendCh <- data:
	case <-g.done:
		return fmt.Errorf("gateway closed")
	}

	select {
	case err := <-ack:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
		return fmt.Errorf("gateway closed")
	}
}

// SetNickname implements Gateway.
func (g *WSGateway) SetNickname(ctx context.Context, guildID, name string) error {
	return g.sendAcked(ctx, outFrame{Action: "set_nickname", GuildID: guildID, Name: name})
}

// SetPresence implements Gateway.
func (g *WSGateway) SetPresence(ctx context.Context, text string) error {
	return g.sendAcked(ctx, outFrame{Action: "set_presence", Text: text})
}

// RegisterCommand implements Gateway.
func (g *WSGateway) RegisterCommand(ctx context.Context, spec CommandSpec) error {
	return g.sendAcked(ctx, outFrame{Action: "register_command", Name: spec.Name, Description: spec.Description})
}

// OnCommand implements Gateway.
func (g *WSGateway) OnCommand(handler CommandHandler) {
	g.handlerMu.Lock()
	defer g.handlerMu.Unlock()
	g.handler = handler
}

// Guilds implements Gateway.
func (g *WSGateway) Guilds() []string {
	g.guildsMu.RLock()
	defer g.guildsMu.RUnlock()
	out := make([]string, len(g.guilds))
	copy(out, g.guilds)
	return out
}

// Close implements Gateway.
func (g *WSGateway) Close() error {
	var err error
	g.closeOnce.Do(func() {
		close(g.done)
		conn := g.safeConn()
		if conn != nil {
			err = conn.Close()
		}
	})
	return err
}
