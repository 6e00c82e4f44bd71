package ws

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"chat-gateway/internal/auth"
	"chat-gateway/internal/middleware"
	"chat-gateway/internal/observability"
	"chat-gateway/internal/session"
)

// Handler accepts websocket connections for one session profile.
type Handler struct {
	profile  *session.Profile
	deps     session.Deps
	log      *zap.Logger
	upgrader websocket.Upgrader
}

// NewHandler constructs a Handler.
func NewHandler(profile *session.Profile, deps session.Deps, log *zap.Logger) *Handler {
	return &Handler{
		profile: profile,
		deps:    deps,
		log:     log.With(zap.String("protocol", profile.Protocol)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle runs the handshake and then serves the connection until it closes.
func (h *Handler) Handle(c *gin.Context) {
	kind := h.profile.Protocol
	ctx, span := otel.Tracer("chat-gateway/ws").Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer))
	c.Request = c.Request.WithContext(ctx)

	identity := middleware.IdentityFromContext(c)
	span.SetAttributes(attribute.Int("chat.user_id", identity.ID), attribute.String("chat.protocol", kind))

	protocol, ok := h.profile.Accept(ctx, identity, auth.OfferedProtocols(c.Request))
	if !ok {
		span.SetAttributes(attribute.Bool("chat.accepted", false))
		span.End()
		observability.IncWSEvent(kind, "ws_rejected")
		h.log.Debug("handshake rejected", zap.Int("user_id", identity.ID))
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, http.Header{"Sec-Websocket-Protocol": {protocol}})
	if err != nil {
		span.RecordError(err)
		span.End()
		h.log.Debug("upgrade failed", zap.Error(err))
		return
	}
	traceID := span.SpanContext().TraceID().String()
	span.End()

	info := ConnInfo{
		ConnID:      uuid.NewString(),
		Kind:        kind,
		UserID:      identity.ID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}
	log := h.log.With(zap.String("conn_id", info.ConnID), zap.Int("user_id", identity.ID))
	client := newClient(conn, info, log)

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	sess := session.New(client, identity, h.profile, h.deps, info.RequestID)
	if err := sess.Open(connCtx); err != nil {
		log.Error("session open failed", zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""), time.Now().Add(writeWait))
		conn.Close()
		return
	}

	observability.IncWSActive(kind)
	h.emit(connCtx, info, "ws_connect", "")
	log.Info("connected")

	go client.writePump()
	err = client.readPump(func(raw []byte) {
		sess.Handle(connCtx, raw)
	})

	sess.Close()
	client.stopWriting()
	observability.DecWSActive(kind)

	reason := err.Error()
	if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		h.emit(connCtx, info, "ws_error", reason)
		log.Warn("connection error", zap.Error(err))
	}
	h.emit(connCtx, info, "ws_disconnect", reason)
	log.Info("disconnected", zap.Duration("duration", time.Since(info.ConnectedAt)))
}

func (h *Handler) emit(ctx context.Context, info ConnInfo, event, reason string) {
	observability.IncWSEvent(info.Kind, event)
	if err := observability.PublishEvent(ctx, observability.WSRoutingKey, info.event(event, reason), info.headers()); err != nil {
		h.log.Debug("publish ws event failed", zap.String("event", event), zap.Error(err))
	}
}
