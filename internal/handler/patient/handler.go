package patient

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/retina-api/internal/middleware"
	"github.com/jwalitptl/retina-api/internal/model"
	"github.com/jwalitptl/retina-api/internal/service/patient"
	"github.com/jwalitptl/retina-api/pkg/errors"
	"github.com/jwalitptl/retina-api/pkg/httputil"
)

// MsgPatientNotFound is shown for unknown ids and for patients that belong
// to another doctor.
const MsgPatientNotFound = "Patient not found"

type Handler struct {
	service patient.Store
}

func NewHandler(service patient.Store) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes expects r to be gated to doctors.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("", h.CreatePatient)
		patients.GET("", h.ListPatients)
		patients.GET("/:id", h.GetPatient)
		patients.DELETE("/:id", h.DeletePatient)
		patients.GET("/:id/scans", h.ListScanResults)
	}
}

type createPatientResponse struct {
	ID      string         `json:"id"`
	Patient *model.Patient `json:"patient"`
}

func (h *Handler) CreatePatient(c *gin.Context) {
	var req model.PatientInput
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid patient", err))
		return
	}
	req.Doctor = middleware.Identity(c).ID

	id, err := h.service.AddPatient(c.Request.Context(), req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	p, _ := h.service.GetPatient(c.Request.Context(), id)
	httputil.RespondWithSuccess(c, http.StatusCreated, createPatientResponse{ID: id, Patient: p})
}

func (h *Handler) ListPatients(c *gin.Context) {
	var filter model.PatientFilter
	if err := c.ShouldBindQuery(&filter); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid filter", err))
		return
	}
	filter.Doctor = middleware.Identity(c).ID

	httputil.RespondWithSuccess(c, http.StatusOK, h.service.ListPatients(c.Request.Context(), filter))
}

func (h *Handler) GetPatient(c *gin.Context) {
	p, ok := h.owned(c)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	httputil.RespondWithSuccess(c, http.StatusOK, model.PatientDetail{
		Patient:      p,
		ScanResults:  h.service.GetPatientScanResults(ctx, p.ID),
		Distribution: h.service.StageDistribution(ctx, p.ID),
	})
}

func (h *Handler) DeletePatient(c *gin.Context) {
	p, ok := h.owned(c)
	if !ok {
		return
	}

	if err := h.service.RemovePatient(c.Request.Context(), p.ID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) ListScanResults(c *gin.Context) {
	p, ok := h.owned(c)
	if !ok {
		return
	}

	httputil.RespondWithSuccess(c, http.StatusOK, h.service.GetPatientScanResults(c.Request.Context(), p.ID))
}

// owned looks up the :id patient and writes a 404 unless it belongs to
// the signed-in doctor.
func (h *Handler) owned(c *gin.Context) (*model.Patient, bool) {
	p, ok := h.service.GetPatient(c.Request.Context(), c.Param("id"))
	if !ok || p.Doctor != middleware.Identity(c).ID {
		httputil.RespondWithError(c, &errors.AppError{Code: errors.ErrNotFound, Message: MsgPatientNotFound})
		return nil, false
	}
	return p, true
}
