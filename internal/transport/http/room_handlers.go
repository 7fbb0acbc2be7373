package http

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/pubsubcore/internal/core"
	"github.com/vovakirdan/pubsubcore/internal/proto"
)

// RoomHandlers exposes room state and server-side publishing over REST.
type RoomHandlers struct {
	router *core.Router
	log    *zerolog.Logger
}

// NewRoomHandlers creates a new room handlers instance.
func NewRoomHandlers(router *core.Router, logger *zerolog.Logger) *RoomHandlers {
	return &RoomHandlers{
		router: router,
		log:    logger,
	}
}

// ErrorResponse represents an error response body.
type ErrorResponse struct {
	Error string `json:"error"`
}

// PublishRequest is the body of a server-side room publish.
type PublishRequest struct {
	Data json.RawMessage `json:"data" binding:"required"`
}

// DeliveryResponse reports how many sessions accepted a message.
type DeliveryResponse struct {
	Delivered int `json:"delivered"`
}

// ListRooms lists rooms that currently have members.
// GET /api/rooms
func (h *RoomHandlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, h.router.Directory().Rooms())
}

// ListUsers lists the display names present in a room.
// GET /api/rooms/:room/users
func (h *RoomHandlers) ListUsers(c *gin.Context) {
	room := c.Param("room")
	c.JSON(http.StatusOK, proto.UserList{
		Users: h.router.Directory().NamesIn(room),
		Room:  room,
	})
}

// Publish broadcasts a payload to a room's members as a room message.
// POST /api/rooms/:room/messages
func (h *RoomHandlers) Publish(c *gin.Context) {
	room := c.Param("room")

	var req PublishRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Str("room", room).Msg("invalid publish request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sent := h.router.BroadcastRoom(room, proto.RoomMessage{Room: room, Data: req.Data})
	h.log.Info().Str("room", room).Int("delivered", sent).Msg("room publish")
	c.JSON(http.StatusAccepted, DeliveryResponse{Delivered: sent})
}

// Broadcast sends a JSON object to every connected session.
// POST /api/broadcast
func (h *RoomHandlers) Broadcast(c *gin.Context) {
	var payload map[string]json.RawMessage
	if err := c.ShouldBindJSON(&payload); err != nil || len(payload) == 0 {
		h.log.Debug().Err(err).Msg("invalid broadcast request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	sent := h.router.BroadcastAll(payload)
	h.log.Info().Int("delivered", sent).Msg("broadcast")
	c.JSON(http.StatusAccepted, DeliveryResponse{Delivered: sent})
}
