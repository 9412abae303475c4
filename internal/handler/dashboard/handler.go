package dashboard

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

// RecentScans is how many scans the dashboard lists.
const RecentScans = 5

type Handler struct {
	records patient.Store
}

func NewHandler(records patient.Store) *Handler {
	return &Handler{records: records}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/dashboard", h.Summary)
}

func (h *Handler) Summary(c *gin.Context) {
	identity := middleware.Identity(c)
	httputil.RespondWithSuccess(c, http.StatusOK,
		h.records.DoctorSummary(c.Request.Context(), identity.ID, RecentScans))
}
