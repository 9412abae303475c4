package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/service/notification"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

type Handler struct {
	svc *notification.Service
}

func NewHandler(svc *notification.Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.DELETE("/:id", h.Dismiss)
	}
}

type listQuery struct {
	Limit int `form:"limit" binding:"gte=0"`
}

func (h *Handler) List(c *gin.Context) {
	var q listQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid limit", err))
		return
	}
	httputil.RespondWithSuccess(c, http.StatusOK, h.svc.List(q.Limit))
}

func (h *Handler) Dismiss(c *gin.Context) {
	h.svc.Dismiss(c.Param("id"))
	c.Status(http.StatusNoContent)
}
