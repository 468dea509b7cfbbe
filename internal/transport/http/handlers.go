package http

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dkeye/Campus/internal/app/orch"
	"github.com/dkeye/Campus/internal/core"
	"github.com/dkeye/Campus/internal/domain"
	"github.com/dkeye/Campus/internal/store"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

type MessageResponse struct {
	ID        string    `json:"id"`
	RoomID    string    `json:"roomId"`
	UserID    string    `json:"userId"`
	Message   any       `json:"message"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

type HistoryResponse struct {
	RoomID   string            `json:"roomId"`
	Messages []MessageResponse `json:"messages"`
}

type Handlers struct {
	Orch *orch.Orchestrator
	Auth core.AuthGateway
}

func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"connections": h.Orch.Registry.Len(),
		"players":     h.Orch.Presence.Len(),
		"chatRooms":   h.Orch.Chat.RoomCount(),
		"voiceRooms":  h.Orch.Voice.RoomCount(),
	})
}

// RequireIdentity verifies the bearer token and stores the identity on the context.
func (h *Handlers) RequireIdentity() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		ident, err := h.Auth.Verify(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("identity", ident)
		c.Next()
	}
}

// History serves a room's stored messages to users currently joined to that room.
func (h *Handlers) History(c *gin.Context) {
	roomID := c.Param("roomId")
	ident, _ := c.MustGet("identity").(domain.Identity)
	if !h.Orch.Chat.HasUser(domain.RoomID(roomID), ident.UserID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not a member of this room"})
		return
	}
	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	msgs, err := h.Orch.History(c.Request.Context(), domain.RoomID(roomID), limit)
	if err != nil {
		log.Error().Err(err).Str("module", "transport.http").Str("room", roomID).Msg("load history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}

	resp := HistoryResponse{RoomID: roomID, Messages: make([]MessageResponse, 0, len(msgs))}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, toResponse(m))
	}
	c.JSON(http.StatusOK, resp)
}

func toResponse(m *store.Message) MessageResponse {
	return MessageResponse{
		ID:        m.ID,
		RoomID:    m.RoomID,
		UserID:    m.UserID,
		Message:   m.Body,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
}

func bearerToken(c *gin.Context) string {
	raw := strings.TrimSpace(c.GetHeader("Authorization"))
	if raw == "" {
		return strings.TrimSpace(c.Query("token"))
	}
	if strings.HasPrefix(strings.ToLower(raw), "bearer ") {
		return strings.TrimSpace(raw[7:])
	}
	return raw
}
