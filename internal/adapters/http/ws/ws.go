// Package ws bridges the game view's WebSocket messages to the service.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/okian/skyscraper/internal/domain/shape"
	"github.com/okian/skyscraper/internal/domain/types"
	"github.com/okian/skyscraper/pkg/logger"
	"github.com/okian/skyscraper/pkg/metrics"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBuffer     = 16
)

// Message types exchanged with the view.
const (
	TypeInitialData = "initialData"
	TypeUserData    = "userData"
	TypeUserScore   = "userScore"
	TypeLeaderboard = "leaderboard"
	TypeError       = "error"
)

// ErrUnknownType is returned for messages the bridge does not handle.
var ErrUnknownType = errors.New("unknown message type")

// ErrMissingScore is returned when a score message carries no score.
var ErrMissingScore = fmt.Errorf("%w: score is required", types.ErrInvalidInput)

// Dependencies are the service operations the bridge forwards to.
type Dependencies interface {
	RequestInitialInventory(ctx context.Context, sessionID string) (shape.Inventory, error)
	IsHighScore(ctx context.Context, score float64) (bool, error)
	RecordScore(ctx context.Context, player string, score float64) (bool, error)
	RequestLeaderboard(ctx context.Context, n int) ([]types.Entry, error)
	ResolvePlayer(ctx context.Context, player string) (string, error)
}

// Message is one frame from the view.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Reply is one frame to the view. Type mirrors the request.
type Reply struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type scoreData struct {
	Score *float64 `json:"score"`
}

type userData struct {
	Username  string `json:"username"`
	HighScore bool   `json:"highScore"`
}

type userScore struct {
	Accepted bool `json:"accepted"`
}

type member struct {
	Member string  `json:"member"`
	Score  float64 `json:"score"`
}

type leaderboard struct {
	Leaderboard []member `json:"leaderboard"`
}

type errorData struct {
	Message string `json:"message"`
}

// Option applies a configuration option to the Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithCheckOrigin overrides the origin check. By default every origin is
// accepted.
func WithCheckOrigin(fn func(*http.Request) bool) Option {
	return func(h *Handler) {
		if fn != nil {
			h.upgrader.CheckOrigin = fn
		}
	}
}

// Handler upgrades GET /ws?session=<id>&player=<name> and serves the view.
type Handler struct {
	deps     Dependencies
	log      logger.Logger
	upgrader websocket.Upgrader
}

// NewHandler creates a bridge over deps.
func NewHandler(deps Dependencies, opts ...Option) *Handler {
	h := &Handler{
		deps: deps,
		log:  logger.Nop(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServeHTTP resolves the player, upgrades the connection and runs the read
// loop until the peer goes away.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()
	player, err := h.deps.ResolvePlayer(ctx, q.Get("player"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(ctx, "websocket upgrade failed", logger.Error(err))
		return
	}
	metrics.AddWSConnections(1)
	defer metrics.AddWSConnections(-1)

	c := &client{
		h:       h,
		conn:    conn,
		send:    make(chan Reply, sendBuffer),
		session: q.Get("session"),
		player:  player,
	}
	h.log.Debug(ctx, "websocket connected",
		logger.String("session_id", c.session),
		logger.String("player", player),
	)
	go c.writeLoop()
	c.readLoop(ctx)
}

type client struct {
	h       *Handler
	conn    *websocket.Conn
	send    chan Reply
	session string
	player  string
}

func (c *client) readLoop(ctx context.Context) {
	defer func() {
		close(c.send)
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.h.log.Warn(ctx, "websocket closed unexpectedly", logger.Error(err))
			}
			return
		}
		c.send <- c.h.handle(ctx, c, msg)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// handle answers one message. Failures become error replies and the
// connection stays open.
func (h *Handler) handle(ctx context.Context, c *client, msg Message) Reply {
	label := msg.Type
	switch label {
	case TypeInitialData, TypeUserData, TypeUserScore, TypeLeaderboard:
	default:
		label = "unknown"
	}
	metrics.RecordWSMessage(label)

	data, err := h.dispatch(ctx, c, msg)
	if err != nil {
		metrics.RecordErrorByComponent("ws", label)
		h.log.Warn(ctx, "websocket message failed",
			logger.String("type", msg.Type),
			logger.String("session_id", c.session),
			logger.Error(err),
		)
		return Reply{Type: TypeError, Data: errorData{Message: err.Error()}}
	}
	return Reply{Type: msg.Type, Data: data}
}

func (h *Handler) dispatch(ctx context.Context, c *client, msg Message) (any, error) {
	switch msg.Type {
	case TypeInitialData:
		return h.deps.RequestInitialInventory(ctx, c.session)
	case TypeUserData:
		score, err := parseScore(msg.Data)
		if err != nil {
			return nil, err
		}
		high, err := h.deps.IsHighScore(ctx, score)
		if err != nil {
			return nil, err
		}
		return userData{Username: c.player, HighScore: high}, nil
	case TypeUserScore:
		score, err := parseScore(msg.Data)
		if err != nil {
			return nil, err
		}
		accepted, err := h.deps.RecordScore(ctx, c.player, score)
		if err != nil {
			return nil, err
		}
		return userScore{Accepted: accepted}, nil
	case TypeLeaderboard:
		entries, err := h.deps.RequestLeaderboard(ctx, 0)
		if err != nil {
			return nil, err
		}
		out := leaderboard{Leaderboard: make([]member, 0, len(entries))}
		for _, e := range entries {
			out.Leaderboard = append(out.Leaderboard, member{Member: e.Player, Score: e.Score})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msg.Type)
	}
}

func parseScore(raw json.RawMessage) (float64, error) {
	var d scoreData
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &d); err != nil {
			return 0, fmt.Errorf("%w: %v", types.ErrInvalidInput, err)
		}
	}
	if d.Score == nil {
		return 0, ErrMissingScore
	}
	return *d.Score, nil
}
