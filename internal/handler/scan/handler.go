package scan

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/internal/service/screening"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

const (
	MsgScanNotFound = "Scan result not found. The ID may be invalid."

	formPatientID = "patientId"
	formImage     = "image"
)

type Handler struct {
	records  patient.Store
	workflow *screening.Workflow
}

func NewHandler(records patient.Store, workflow *screening.Workflow) *Handler {
	return &Handler{records: records, workflow: workflow}
}

// RegisterRoutes wires the read routes on authed and uploads on doctors.
func (h *Handler) RegisterRoutes(authed, doctors *gin.RouterGroup) {
	authed.GET("/scans/:id", h.GetScanResult)
	doctors.POST("/scans", h.Upload)
}

// RegisterPublicRoutes wires routes that need no session.
func (h *Handler) RegisterPublicRoutes(r *gin.RouterGroup) {
	r.GET("/stages", h.ListStages)
}

// Upload expects a multipart form with patientId and image fields.
func (h *Handler) Upload(c *gin.Context) {
	patientID := c.PostForm(formPatientID)

	var (
		result *model.ScanResult
		err    error
	)
	file, _, ferr := c.Request.FormFile(formImage)
	if ferr != nil {
		result, err = h.workflow.Analyze(c.Request.Context(), middleware.Identity(c), patientID, nil)
	} else {
		defer file.Close()
		result, err = h.workflow.Analyze(c.Request.Context(), middleware.Identity(c), patientID, file)
	}
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	httputil.RespondWithSuccess(c, http.StatusCreated, result)
}

func (h *Handler) GetScanResult(c *gin.Context) {
	ctx := c.Request.Context()
	result, ok := h.records.GetScanResult(ctx, c.Param("id"))
	if !ok {
		httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrNotFound, Message: MsgScanNotFound})
		return
	}

	detail := model.ScanDetail{ScanResult: result}
	if p, ok := h.records.GetPatient(ctx, result.PatientID); ok {
		detail.Patient = p
	}
	detail.Stage, _ = model.StageInfo(result.Stage)

	httputil.RespondWithSuccess(c, http.StatusOK, detail)
}

func (h *Handler) ListStages(c *gin.Context) {
	httputil.RespondWithSuccess(c, http.StatusOK, model.Stages())
}
