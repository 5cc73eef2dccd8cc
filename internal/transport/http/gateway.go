package httpx

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/bcrosbie/agentforge/internal/broadcast"
	"github.com/bcrosbie/agentforge/internal/domain"
	"github.com/bcrosbie/agentforge/internal/service"
)

const (
	FrameJoinSession = "join_session"
	FrameRequestDemo = "request_agent_demo"
	FrameDemoCreated = "demo_agent_created"
	FrameDemoError   = "demo_error"
	FrameError       = "error"
)

const (
	clientSendBuffer   = 64
	clientWriteTimeout = 5 * time.Second
)

// Frame is the JSON envelope for every websocket message in both directions.
// Outbound events use the event type as the frame type.
type Frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
}

type joinPayload struct {
	SessionID string `json:"session_id"`
}

type wsClient struct {
	id     uint64
	conn   *websocket.Conn
	sendCh chan Frame
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	sub *broadcast.Subscription
}

func (c *wsClient) stop() {
	c.once.Do(func() { close(c.done) })
}

type Gateway struct {
	engine  *service.EngineService
	logger  *slog.Logger
	clients sync.Map
	nextID  atomic.Uint64
}

func NewGateway(engine *service.EngineService, logger *slog.Logger) *Gateway {
	return &Gateway{engine: engine, logger: logger}
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		g.logger.Warn("websocket accept failed", "error", err)
		return
	}

	client := &wsClient{
		id:     g.nextID.Add(1),
		conn:   conn,
		sendCh: make(chan Frame, clientSendBuffer),
		done:   make(chan struct{}),
	}
	g.clients.Store(client.id, client)
	g.logger.Info("websocket client connected", "conn_id", client.id)

	go g.writeLoop(client)
	if sessionID := r.URL.Query().Get("session_id"); sessionID != "" {
		g.join(client, sessionID)
	}

	g.readLoop(r.Context(), client)

	client.mu.Lock()
	g.engine.Unsubscribe(client.sub)
	client.sub = nil
	client.mu.Unlock()
	client.stop()
	g.clients.Delete(client.id)
	_ = conn.Close(websocket.StatusNormalClosure, "")
	g.logger.Info("websocket client disconnected", "conn_id", client.id)
}

func (g *Gateway) Close() {
	g.clients.Range(func(key, value any) bool {
		client := value.(*wsClient)
		client.stop()
		_ = client.conn.Close(websocket.StatusGoingAway, "server shutting down")
		g.clients.Delete(key)
		return true
	})
}

func (g *Gateway) readLoop(ctx context.Context, client *wsClient) {
	for {
		select {
		case <-client.done:
			return
		default:
		}

		var frame Frame
		if err := wsjson.Read(ctx, client.conn, &frame); err != nil {
			return
		}

		switch frame.Type {
		case FrameJoinSession:
			var payload joinPayload
			_ = json.Unmarshal(frame.Payload, &payload)
			g.join(client, payload.SessionID)
		case FrameRequestDemo:
			g.requestDemo(client, frame.Payload)
		default:
			g.send(client, Frame{Type: FrameError, Error: "unknown frame type " + frame.Type})
		}
	}
}

func (g *Gateway) writeLoop(client *wsClient) {
	for {
		select {
		case <-client.done:
			return
		case frame := <-client.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), clientWriteTimeout)
			err := wsjson.Write(ctx, client.conn, frame)
			cancel()
			if err != nil {
				client.stop()
				return
			}
		}
	}
}

func (g *Gateway) join(client *wsClient, sessionID string) {
	sub := g.engine.Subscribe(sessionID)

	client.mu.Lock()
	previous := client.sub
	client.sub = sub
	client.mu.Unlock()
	g.engine.Unsubscribe(previous)

	go g.pump(client, sub)
}

func (g *Gateway) pump(client *wsClient, sub *broadcast.Subscription) {
	for event := range sub.Events() {
		payload, err := json.Marshal(event)
		if err != nil {
			g.logger.Warn("websocket event encode failed", "event", string(event.Type), "error", err)
			continue
		}
		g.send(client, Frame{Type: string(event.Type), Payload: payload})
	}
}

func (g *Gateway) requestDemo(client *wsClient, raw json.RawMessage) {
	var request service.DemoRequest
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &request); err != nil {
			g.send(client, Frame{Type: FrameDemoError, Error: "demo request payload is invalid"})
			return
		}
	}
	agent, err := g.engine.StartDemo(request)
	if err != nil {
		message := err.Error()
		if appErr, ok := domain.AsAppError(err); ok {
			message = appErr.Message
		}
		g.send(client, Frame{Type: FrameDemoError, Error: message})
		return
	}
	payload, err := json.Marshal(agent)
	if err != nil {
		g.send(client, Frame{Type: FrameDemoError, Error: "failed to encode agent"})
		return
	}
	g.send(client, Frame{Type: FrameDemoCreated, Payload: payload})
}

// send never blocks; frames for a slow client are dropped.
func (g *Gateway) send(client *wsClient, frame Frame) {
	select {
	case <-client.done:
	case client.sendCh <- frame:
	default:
		g.logger.Warn("websocket frame dropped for slow client", "conn_id", client.id, "type", frame.Type)
	}
}
