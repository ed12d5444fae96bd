package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"birthday-chat-service/internal/apperrors"
	"birthday-chat-service/internal/auth"
	"birthday-chat-service/internal/models"
	"birthday-chat-service/internal/observability"
	"birthday-chat-service/internal/presence"
)

// Handler owns the websocket endpoint: authenticates the handshake, registers
// the connection with the presence registry, and pumps inbound events into
// the router until the connection closes.
type Handler struct {
	hub      *Hub
	router   *Router
	presence *presence.Registry
	verifier auth.TokenVerifier
}

// NewHandler constructs the websocket handler.
func NewHandler(hub *Hub, router *Router, registry *presence.Registry, verifier auth.TokenVerifier) *Handler {
	return &Handler{hub: hub, router: router, presence: registry, verifier: verifier}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection after validating the bearer token. A missing
// or invalid token refuses the connection before any event handling.
func (h *Handler) Handle(c *gin.Context) {
	ctx, span := observability.Tracer().Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := bearerToken(c)
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
		return
	}
	userID, err := h.verifier.ValidateToken(ctx, token)
	if err != nil {
		c.JSON(apperrors.HTTPStatus(err), gin.H{"error": "invalid token"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}
	client := NewClient(conn, info)

	h.presence.Connect(userID, client)
	// Initial sync before any presence deltas reach this connection.
	_ = client.Send(models.ServerEvent{
		Event: models.EventUsersOnline,
		Data:  models.UsersOnlinePayload{UserIDs: h.presence.ListOnline()},
	})
	observability.SetOnlineUsers(len(h.presence.ListOnline()))
	observability.IncWSActive("chat")
	observability.IncWSEvent("chat", "ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.chat", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   connEventPayload(info, "ws_connect", 0, ""),
	}, observability.BuildHeaders(info.RequestID, info.TraceID))

	go h.readLoop(client)
}

func (h *Handler) readLoop(client *Client) {
	info := client.Info()
	var closeReason string
	defer func() {
		// Memberships and presence go together; in-flight mutations already
		// dispatched keep running and broadcast normally.
		h.hub.DropClient(client)
		h.presence.Disconnect(client.UserID(), client)
		observability.SetOnlineUsers(len(h.presence.ListOnline()))
		observability.DecWSActive("chat")
		observability.IncWSEvent("chat", "ws_disconnect")
		_ = observability.PublishEvent(context.Background(), "ws_events.chat", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   connEventPayload(info, "ws_disconnect", time.Since(info.ConnectedAt).Milliseconds(), closeReason),
		}, observability.BuildHeaders(info.RequestID, info.TraceID))
		client.Close()
	}()

	for {
		_, raw, err := client.conn.ReadMessage()
		if err != nil {
			closeReason = err.Error()
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				observability.IncWSEvent("chat", "ws_error")
			}
			return
		}

		var env models.Envelope
		if err := json.Unmarshal(raw, &env); err != nil || env.Event == "" {
			client.SendError(string(apperrors.CodeValidation), "malformed event frame")
			continue
		}
		h.router.Dispatch(context.Background(), client, env)
	}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return parts[1]
		}
		return ""
	}
	return c.Query("token")
}

func connEventPayload(info ConnInfo, event string, durationMS int64, reason string) map[string]interface{} {
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"kind":        "chat",
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
