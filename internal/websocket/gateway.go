// Package websocket streams namespace snapshots to connected clients.
package websocket

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/vikasavnish/botbridge/internal/apperr"
	"github.com/vikasavnish/botbridge/internal/config"
	"github.com/vikasavnish/botbridge/internal/keyspace"
	"github.com/vikasavnish/botbridge/internal/metrics"
	"github.com/vikasavnish/botbridge/internal/models"
	"github.com/vikasavnish/botbridge/internal/services"
	"github.com/vikasavnish/botbridge/internal/store"
)

const (
	writeWait      = 10 * time.Second
	readWait       = 10 * time.Second
	clearWait      = 2 * time.Second
	maxMessageSize = 4096
)

// Rejection reasons sent with the policy-violation close frame.
const (
	reasonMissingParams = "token and accountNumber required"
	reasonInvalidToken  = "invalid or expired token"
	reasonInvalidAcct   = "invalid account for this user"
	reasonBackend       = "account lookup failed"
)

// Gateway upgrades authenticated clients and pushes a full snapshot of their
// namespace on every tick and on every change notification.
type Gateway struct {
	store      *store.Store
	snapshots  services.SnapshotService
	verifier   services.TokenVerifier
	accounts   services.AccountDirectory
	sessions   *store.SessionRegistry
	interval   time.Duration
	sessionTTL time.Duration
	upgrader   websocket.Upgrader
	logger     *zap.Logger
}

// NewGateway creates the streaming endpoint.
func NewGateway(
	st *store.Store,
	snapshots services.SnapshotService,
	verifier services.TokenVerifier,
	accounts services.AccountDirectory,
	sessions *store.SessionRegistry,
	cfg config.GatewayConfig,
	logger *zap.Logger,
) *Gateway {
	return &Gateway{
		store:      st,
		snapshots:  snapshots,
		verifier:   verifier,
		accounts:   accounts,
		sessions:   sessions,
		interval:   cfg.TickInterval,
		sessionTTL: cfg.SessionTTL,
		upgrader: websocket.Upgrader{
			// Allow all origins for WebSocket connections
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: logger.Named("gateway"),
	}
}

// HandleWebSocket upgrades the connection, authenticates it and streams until
// the peer goes away.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Debug("upgrade failed", zap.Error(err))
		return
	}

	ns, reason := g.authenticate(r)
	if reason != "" {
		metrics.HandshakeRejections.WithLabelValues(reason).Inc()
		g.logger.Info("handshake rejected", zap.String("reason", reason), zap.String("remote", r.RemoteAddr))
		reject(conn, reason)
		return
	}

	g.stream(conn, ns)
}

// authenticate returns the namespace of the connection, or the reason it is
// refused.
func (g *Gateway) authenticate(r *http.Request) (keyspace.Namespace, string) {
	q := r.URL.Query()
	token, account := q.Get("token"), q.Get("accountNumber")
	if token == "" || account == "" {
		return keyspace.Namespace{}, reasonMissingParams
	}

	userID, err := g.verifier.Verify(r.Context(), token)
	if err != nil {
		return keyspace.Namespace{}, reasonInvalidToken
	}

	ns, err := services.ResolveNamespace(r.Context(), g.accounts, userID, account)
	switch {
	case err == nil:
		return ns, ""
	case apperr.IsKind(err, apperr.KindForbidden), apperr.IsKind(err, apperr.KindValidation):
		return keyspace.Namespace{}, reasonInvalidAcct
	default:
		g.logger.Warn("account lookup failed", zap.Uint("user_id", userID), zap.String("account", account), zap.Error(err))
		return keyspace.Namespace{}, reasonBackend
	}
}

func reject(conn *websocket.Conn, reason string) {
	msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
	conn.Close()
}

func (g *Gateway) stream(conn *websocket.Conn, ns keyspace.Namespace) {
	session := uuid.NewString()
	log := g.logger.With(zap.Uint("user_id", ns.UserID), zap.String("account", ns.Account), zap.String("session", session))

	// ctx ends the stream loop when the socket closes. Snapshot reads run on
	// their own context and are discarded once ctx is done.
	ctx, cancel := context.WithCancel(context.Background())

	metrics.GatewayConnections.Inc()
	defer func() {
		cancel()
		clearCtx, clearCancel := context.WithTimeout(context.Background(), clearWait)
		if err := g.sessions.Clear(clearCtx, ns, session); err != nil {
			log.Debug("clear session failed", zap.Error(err))
		}
		clearCancel()
		metrics.GatewayConnections.Dec()
		conn.Close()
		log.Info("stream closed")
	}()

	if err := g.write(conn, models.ConnectedMessage{
		Type:          models.MessageConnected,
		UserID:        ns.UserID,
		AccountNumber: ns.Account,
	}); err != nil {
		return
	}
	log.Info("stream opened")

	go g.readPump(conn, cancel)

	pubsub := g.store.Subscribe(ctx, ns.Events())
	defer pubsub.Close()
	events := pubsub.Channel()

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
				continue
			}
		}
		if err := g.push(ctx, conn, ns, session); err != nil {
			log.Debug("push failed", zap.Error(err))
			return
		}
	}
}

// readPump discards client messages and cancels the stream once the peer
// closes or errors.
func (g *Gateway) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(maxMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// push sends one snapshot. Only write failures are returned; read failures
// become error messages and an unavailable store skips the cycle. Reads are
// not tied to stream, so a close mid-read lets them finish before the result
// is dropped.
func (g *Gateway) push(stream context.Context, conn *websocket.Conn, ns keyspace.Namespace, session string) error {
	if !g.store.Ready() {
		metrics.SnapshotPushes.WithLabelValues("skipped").Inc()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), readWait)
	defer cancel()

	if err := g.sessions.Mark(ctx, ns, session, g.sessionTTL); err != nil {
		g.logger.Debug("mark session failed", zap.String("ns", ns.String()), zap.Error(err))
	}

	snap, err := g.snapshots.Snapshot(ctx, ns)
	if stream.Err() != nil {
		metrics.SnapshotPushes.WithLabelValues("discarded").Inc()
		return nil
	}
	if err != nil {
		if apperr.IsKind(err, apperr.KindUnavailable) {
			metrics.SnapshotPushes.WithLabelValues("skipped").Inc()
			return nil
		}
		metrics.SnapshotPushes.WithLabelValues("error").Inc()
		g.logger.Warn("snapshot failed", zap.String("ns", ns.String()), zap.Error(err))
		return g.write(conn, models.ErrorMessage{Type: models.MessageError, Message: apperr.PublicMessage(err)})
	}

	metrics.SnapshotPushes.WithLabelValues("update").Inc()
	return g.write(conn, models.UpdateMessage{
		Type:      models.MessageUpdate,
		Data:      snap,
		Timestamp: time.Now().UnixMilli(),
	})
}

func (g *Gateway) write(conn *websocket.Conn, msg interface{}) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}
