// Package transport connects a game.PlayerIO to real clients.
package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/magefree/tcg-server-go/internal/game"
	"github.com/magefree/tcg-server-go/internal/game/rules"
	"go.uber.org/zap"
)

// Message types of the websocket envelope.
const (
	TypeNotify   = "notify"
	TypeRPC      = "rpc"
	TypeResponse = "response"
	TypeGiveUp   = "giveUp"
	TypeError    = "error"
)

// ErrClosed is returned by RPC once the connection is gone.
var ErrClosed = errors.New("connection closed")

// Envelope is the JSON frame exchanged with a client. Responses carry the id
// of the rpc they answer.
type Envelope struct {
	Type    string          `json:"type"`
	ID      string          `json:"id,omitempty"`
	Method  game.Method     `json:"method,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// WebsocketOptions tune a WebsocketIO. Zero values use the defaults.
type WebsocketOptions struct {
	// RPCTimeout bounds how long a client may think. Zero means no limit
	// beyond the rpc context.
	RPCTimeout     time.Duration
	WriteWait      time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	SendBuffer     int
	// OnGiveUp runs when the client sends a giveUp frame.
	OnGiveUp func()
}

func (o WebsocketOptions) withDefaults() WebsocketOptions {
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.PongWait <= 0 {
		o.PongWait = 60 * time.Second
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = o.PongWait * 9 / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 64 * 1024
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = 256
	}
	return o
}

// WebsocketIO is one side of a match played over a websocket connection.
type WebsocketIO struct {
	conn   *websocket.Conn
	who    rules.Who
	opts   WebsocketOptions
	logger *zap.Logger

	send      chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu       sync.Mutex
	pending  map[string]chan Envelope
	giveUpMu sync.Mutex
	onGiveUp func()
}

var _ game.PlayerIO = (*WebsocketIO)(nil)

// NewWebsocketIO starts the read and write pumps of conn. The connection is
// owned by the returned value until Close.
func NewWebsocketIO(conn *websocket.Conn, who rules.Who, opts WebsocketOptions, logger *zap.Logger) *WebsocketIO {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()
	w := &WebsocketIO{
		conn:     conn,
		who:      who,
		opts:     opts,
		logger:   logger.With(zap.Stringer("who", who)),
		send:     make(chan []byte, opts.SendBuffer),
		closed:   make(chan struct{}),
		pending:  make(map[string]chan Envelope),
		onGiveUp: opts.OnGiveUp,
	}
	go w.writePump()
	go w.readPump()
	return w
}

// SetOnGiveUp replaces the giveUp callback.
func (w *WebsocketIO) SetOnGiveUp(fn func()) {
	w.giveUpMu.Lock()
	w.onGiveUp = fn
	w.giveUpMu.Unlock()
}

// Done is closed once the connection is gone.
func (w *WebsocketIO) Done() <-chan struct{} {
	return w.closed
}

// Close shuts the connection down after flushing queued frames. Pending
// rpcs fail with ErrClosed.
func (w *WebsocketIO) Close() {
	w.closeOnce.Do(func() {
		close(w.closed)
	})
}

// Notify queues a notification. A client that cannot keep up is
// disconnected.
func (w *WebsocketIO) Notify(n game.Notification) {
	payload, err := json.Marshal(n)
	if err != nil {
		w.logger.Error("failed to marshal notification", zap.Error(err))
		return
	}
	if err := w.enqueue(Envelope{Type: TypeNotify, Payload: payload}); err != nil && !errors.Is(err, ErrClosed) {
		w.logger.Warn("dropping slow client", zap.Error(err))
		w.Close()
	}
}

// RPC sends req and waits for the matching response.
func (w *WebsocketIO) RPC(ctx context.Context, req game.Request) (game.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return game.Response{}, fmt.Errorf("marshal request: %w", err)
	}
	if w.opts.RPCTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.RPCTimeout)
		defer cancel()
	}

	id := uuid.New().String()
	reply := make(chan Envelope, 1)
	w.mu.Lock()
	w.pending[id] = reply
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		delete(w.pending, id)
		w.mu.Unlock()
	}()

	if err := w.enqueue(Envelope{Type: TypeRPC, ID: id, Method: req.Method, Payload: payload}); err != nil {
		return game.Response{}, err
	}

	select {
	case env := <-reply:
		if env.Error != "" {
			return game.Response{}, fmt.Errorf("client error: %s", env.Error)
		}
		var resp game.Response
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return game.Response{}, fmt.Errorf("decode response: %w", err)
		}
		return resp, nil
	case <-ctx.Done():
		return game.Response{}, fmt.Errorf("rpc %s: %w", req.Method, ctx.Err())
	case <-w.closed:
		return game.Response{}, ErrClosed
	}
}

func (w *WebsocketIO) enqueue(env Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case <-w.closed:
		return ErrClosed
	default:
	}
	select {
	case w.send <- data:
		return nil
	case <-w.closed:
		return ErrClosed
	default:
		return errors.New("send buffer full")
	}
}

func (w *WebsocketIO) readPump() {
	defer w.Close()

	w.conn.SetReadLimit(w.opts.MaxMessageSize)
	w.conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	w.conn.SetPongHandler(func(string) error {
		return w.conn.SetReadDeadline(time.Now().Add(w.opts.PongWait))
	})

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				w.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			w.logger.Debug("invalid frame", zap.Error(err))
			w.reportError("invalid message")
			continue
		}
		w.handle(env)
	}
}

func (w *WebsocketIO) handle(env Envelope) {
	switch env.Type {
	case TypeResponse:
		w.mu.Lock()
		reply, ok := w.pending[env.ID]
		w.mu.Unlock()
		if !ok {
			w.logger.Debug("response to unknown rpc", zap.String("rpc_id", env.ID))
			w.reportError("unknown rpc id")
			return
		}
		select {
		case reply <- env:
		default:
		}
	case TypeGiveUp:
		w.giveUpMu.Lock()
		fn := w.onGiveUp
		w.giveUpMu.Unlock()
		if fn != nil {
			fn()
		}
	default:
		w.reportError("unknown message type: " + env.Type)
	}
}

// SendError queues an error frame for the client.
func (w *WebsocketIO) SendError(msg string) {
	w.reportError(msg)
}

func (w *WebsocketIO) reportError(msg string) {
	if err := w.enqueue(Envelope{Type: TypeError, Error: msg}); err != nil {
		w.logger.Debug("failed to report error", zap.Error(err))
	}
}

func (w *WebsocketIO) writePump() {
	ticker := time.NewTicker(w.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		w.Close()
		w.conn.Close()
	}()

	for {
		select {
		case message := <-w.send:
			w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
			if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-w.closed:
			w.conn.SetWriteDeadline(time.Now().Add(w.opts.WriteWait))
			for {
				select {
				case message := <-w.send:
					if err := w.conn.WriteMessage(websocket.TextMessage, message); err != nil {
						return
					}
					continue
				default:
				}
				break
			}
			w.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}
