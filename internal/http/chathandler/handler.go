package chathandler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"workspacechat/internal/services/chat"
	"workspacechat/internal/ws"
)

// Handler exposes one chat scope's history and room state over REST.
type Handler struct {
	svc  chat.IChatService
	hub  *ws.Hub
	base string
}

// New mounts the scope under base, e.g. "/projects".
func New(svc chat.IChatService, hub *ws.Hub, base string) *Handler {
	return &Handler{svc: svc, hub: hub, base: base}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET(h.base+"/:id/messages", h.history)
	r.GET(h.base+"/:id/members", h.members)
}

// @Summary		Recent chat messages
// @Description	Returns up to 50 of the most recent messages of a room, oldest first, with freshly signed attachment URLs.
// @Tags			Chat
// @Param			id		path		string	true	"Project or conversation ID"	default(p1)
// @Param			limit	query		int		false	"Max results (1‑50)"			minimum(1)	maximum(50)	default(50)
// @Success		200		{array}		chat.Message
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/projects/{id}/messages [get]
// @Router			/conversations/{id}/messages [get]
func (h *Handler) history(ginCtx *gin.Context) {
	var q HistoryQuery
	if err := ginCtx.ShouldBindQuery(&q); err != nil {
		ginCtx.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.LoadRecent(ginCtx.Request.Context(), ginCtx.Param("id"), q.Limit)
	if err != nil {
		ginCtx.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	ginCtx.JSON(http.StatusOK, out)
}

// @Summary		Live room members
// @Description	Number of connections currently joined to the room on this instance.
// @Tags			Chat
// @Param			id	path		string	true	"Project or conversation ID"	default(p1)
// @Success		200	{object}	MembersResponse
// @Router			/projects/{id}/members [get]
// @Router			/conversations/{id}/members [get]
func (h *Handler) members(ginCtx *gin.Context) {
	roomID := ginCtx.Param("id")
	ginCtx.JSON(http.StatusOK, MembersResponse{RoomID: roomID, Members: h.hub.Members(roomID)})
}
