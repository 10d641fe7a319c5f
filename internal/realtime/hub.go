// Package realtime implements the guarantor-progress push layer: a
// connection registry, loan rooms, liveness probing and event fan-out over
// websockets.
package realtime

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/coopvest/coopvest"
	"github.com/coopvest/coopvest/internal/domain"
)

// IdentityVerifier resolves a session token to a user ID. Owned by the auth
// subsystem; the hub only consumes it.
type IdentityVerifier interface {
	VerifyIdentity(ctx context.Context, token string) (string, error)
}

// ProgressSource answers the initial snapshot sent on subscribe.
type ProgressSource interface {
	GetProgress(ctx context.Context, loanID string) (domain.LoanProgress, error)
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Hub owns the realtime state. Its lifecycle belongs to the server
// bootstrap; constructing several independent hubs is fine, there is no
// process-wide state.
type Hub struct {
	registry   *Registry
	rooms      *Rooms
	monitor    *Monitor
	dispatcher *Dispatcher
	verifier   IdentityVerifier
	progress   ProgressSource
}

func NewHub(verifier IdentityVerifier, progress ProgressSource, probeInterval time.Duration) *Hub {
	registry := NewRegistry()
	rooms := NewRooms()
	h := &Hub{
		registry:   registry,
		rooms:      rooms,
		dispatcher: NewDispatcher(registry, rooms),
		verifier:   verifier,
		progress:   progress,
	}
	h.monitor = NewMonitor(registry, probeInterval, h.evicted)
	return h
}

func (h *Hub) Start() error {
	return h.monitor.Start()
}

func (h *Hub) Stop() {
	h.monitor.Stop()
	for _, c := range h.registry.all() {
		c.close()
		h.registry.Remove(c.ID())
	}
}

func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// NotifyUser delivers a notification frame to every connection the user
// currently owns, independent of room subscriptions. Returns the number of
// connections that accepted it.
func (h *Hub) NotifyUser(userID string, notification any) int {
	return h.registry.DeliverToUser(userID, coopvest.NewNotificationFrame(notification))
}

// HubStats is the shape returned by the ws-stats endpoint.
type HubStats struct {
	Connections        int `json:"connections"`
	AuthenticatedUsers int `json:"authenticatedUsers"`
	ActiveLoanRooms    int `json:"activeLoanRooms"`
}

func (h *Hub) Stats() HubStats {
	conns, users := h.registry.Stats()
	return HubStats{
		Connections:        conns,
		AuthenticatedUsers: users,
		ActiveLoanRooms:    h.rooms.Count(),
	}
}

// Serve upgrades the request and runs the connection until it closes. One
// goroutine reads inbound frames here; a second one drains the outbound
// queue.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request) error {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error(
			"Failed to upgrade WebSocket",
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return err
	}

	conn := newConn(ws)
	h.registry.Register(conn)
	ws.SetPongHandler(func(string) error {
		conn.markAlive()
		return nil
	})
	go conn.writeLoop()

	defer func() {
		conn.close()
		h.registry.Remove(conn.ID())
	}()

	_ = conn.enqueue(coopvest.NewConnectedFrame(conn.ID()))

	ctx := r.Context()
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if closeErr, ok := err.(*websocket.CloseError); ok {
				if closeErr.Code != websocket.CloseNormalClosure && closeErr.Code != websocket.CloseGoingAway {
					slog.DebugContext(
						ctx, "WebSocket closed",
						slog.String("error", closeErr.Error()),
						slog.String("module", "socket"),
					)
				}
			} else {
				select {
				case <-conn.closed():
				default:
					slog.ErrorContext(
						ctx, "Error reading message",
						slog.String("error", err.Error()),
						slog.String("module", "socket"),
					)
				}
			}
			return nil
		}
		h.handleFrame(ctx, conn, data)
	}
}

// handleFrame validates and dispatches one inbound message. Protocol errors
// are answered on the same connection and never close it.
func (h *Hub) handleFrame(ctx context.Context, conn *Conn, data []byte) {
	frame, err := decodeFrame(data)
	if err != nil {
		_ = conn.enqueue(coopvest.NewErrorFrame(err.Error()))
		return
	}

	switch f := frame.(type) {
	case authenticateFrame:
		userID, err := h.verifier.VerifyIdentity(ctx, f.Token)
		if err != nil {
			// The connection stays open but unauthenticated.
			_ = conn.enqueue(coopvest.NewErrorFrame("authentication failed"))
			return
		}
		h.registry.Authenticate(conn.ID(), userID)
		_ = conn.enqueue(coopvest.NewAuthenticatedFrame(userID))

	case subscribeFrame:
		userID := conn.UserID()
		if userID == "" {
			_ = conn.enqueue(coopvest.NewErrorFrame(domain.ErrUnauthenticated.Error()))
			return
		}
		h.rooms.Subscribe(f.LoanID, userID)
		conn.trackSubscription(f.LoanID)
		_ = conn.enqueue(coopvest.NewSubscribedFrame(f.LoanID))
		h.sendSnapshot(ctx, conn, f.LoanID)

	case unsubscribeFrame:
		userID := conn.UserID()
		if userID == "" {
			_ = conn.enqueue(coopvest.NewErrorFrame(domain.ErrUnauthenticated.Error()))
			return
		}
		h.rooms.Unsubscribe(f.LoanID, userID)
		conn.dropSubscription(f.LoanID)
		_ = conn.enqueue(coopvest.NewUnsubscribedFrame(f.LoanID))

	case pingFrame:
		conn.markAlive()
		_ = conn.enqueue(coopvest.NewPongFrame(time.Now()))
	}
}

// sendSnapshot answers a fresh subscription with the current progress, sent
// to the requesting connection only.
func (h *Hub) sendSnapshot(ctx context.Context, conn *Conn, loanID string) {
	if h.progress == nil {
		return
	}
	p, err := h.progress.GetProgress(ctx, loanID)
	if err != nil {
		slog.DebugContext(
			ctx, "no progress snapshot available",
			slog.String("loanId", loanID),
			slog.String("error", err.Error()),
			slog.String("module", "socket"),
		)
		return
	}
	frame := coopvest.NewLoanProgressFrame(loanID, coopvest.DeriveProgress(p.Found, p.Required), p.Guarantors)
	_ = conn.enqueue(frame)
}

func (h *Hub) evicted(c *Conn) {
	h.registry.Remove(c.ID())
}

// LocalSink delivers events straight to the in-process dispatcher,
// satisfying the usecase broadcaster port for single-node deployments.
type LocalSink struct {
	Dispatcher *Dispatcher
}

func (s LocalSink) BroadcastProgress(ctx context.Context, loanID string, found, required int, guarantors []coopvest.Guarantor) error {
	s.Dispatcher.BroadcastProgress(loanID, found, required, guarantors)
	return nil
}

func (s LocalSink) NotifyGuarantorAction(ctx context.Context, loanID string, action coopvest.GuarantorAction) error {
	s.Dispatcher.NotifyGuarantorAction(loanID, action)
	return nil
}
