package roomhandler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"codecollab/internal/protocol"
	"codecollab/internal/rooms"
	"codecollab/internal/services/executor"
)

type Handler struct {
	registry *rooms.Registry
	execSvc  executor.IExecutionService
}

func New(registry *rooms.Registry, execSvc executor.IExecutionService) *Handler {
	return &Handler{registry: registry, execSvc: execSvc}
}

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/rooms", h.list)
	r.GET("/rooms/:id", h.info)
	r.POST("/rooms/:id/run", h.run)
}

// @Summary		List rooms
// @Description	Returns every live room with its member count and language.
// @Tags			Rooms
// @Success		200	{array}	RoomSummary
// @Router			/rooms [get]
func (h *Handler) list(c *gin.Context) {
	snaps := h.registry.List()
	out := make([]RoomSummary, 0, len(snaps))
	for _, s := range snaps {
		out = append(out, RoomSummary{
			ID:       s.RoomID,
			Members:  len(s.Members),
			Language: s.Language,
		})
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Get room details
// @Description	Returns the room's members, language and current buffer.
// @Tags			Rooms
// @Param			id	path		string	true	"Room ID"	default(r1)
// @Success		200	{object}	RoomDetail
// @Failure		404	{object}	ErrorResponse
// @Router			/rooms/{id} [get]
func (h *Handler) info(c *gin.Context) {
	snap, ok := h.registry.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "room not found"})
		return
	}
	c.JSON(http.StatusOK, RoomDetail{
		ID:       snap.RoomID,
		Users:    snap.Members,
		Language: snap.Language,
		Code:     snap.Document,
	})
}

// @Summary		Run code in a room
// @Description	Executes the posted source on the external runner and broadcasts
// @Description	the output to every member of the room, same as a compileCode
// @Description	frame over the WebSocket.
// @Tags			Rooms
// @Param			id		path	string	true	"Room ID"	default(r1)
// @Param			body	body	RunBody	true	"Source payload"
// @Success		200	{object}	RunResponse
// @Failure		400	{object}	ErrorResponse
// @Router			/rooms/{id}/run [post]
func (h *Handler) run(ginCtx *gin.Context) {
	var body RunBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}
	roomID := ginCtx.Param("id")

	res, err := h.execSvc.Execute(ginCtx.Request.Context(), body.Language, body.Version, body.Code)
	if err != nil {
		zap.L().Warn("rooms.run", zap.String("room", roomID), zap.Error(err))
		res = executor.FallbackResult(err)
	}

	h.registry.BroadcastAll(roomID, protocol.CodeResponse(res.Output))
	ginCtx.JSON(http.StatusOK, RunResponse{Output: res.Output})
}
