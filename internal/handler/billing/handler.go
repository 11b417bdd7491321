package billing

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/clinic-records/internal/model"
	"github.com/jwalitptl/clinic-records/internal/service/billing"
	apperrors "github.com/jwalitptl/clinic-records/pkg/errors"
	"github.com/jwalitptl/clinic-records/pkg/httputil"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type Handler struct {
	service *billing.Service
}

func NewHandler(service *billing.Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes mounts the billing routes. guardDelete runs before
// DELETE /billing/:id.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, guardDelete ...gin.HandlerFunc) {
	patients := r.Group("/patients/:id/billing")
	{
		patients.POST("", h.CreateRecord)
		patients.GET("", h.ListRecords)
		patients.GET("/summary", h.Summary)
		patients.GET("/export", h.Export)
	}

	records := r.Group("/billing")
	{
		records.GET("/:id", h.GetRecord)
		records.PUT("/:id", h.UpdateRecord)
		records.POST("/:id/payments", h.RecordPayment)
		records.POST("/:id/mark-paid", h.MarkPaid)
		records.POST("/:id/mark-unpaid", h.MarkUnpaid)
		records.DELETE("/:id", append(guardDelete, h.DeleteRecord)...)
	}
}

func (h *Handler) CreateRecord(c *gin.Context) {
	patientID, ok := parseID(c, "patient")
	if !ok {
		return
	}

	var req model.CreateBillingRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	rec, err := h.service.CreateRecord(c.Request.Context(), patientID, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusCreated, rec)
}

func (h *Handler) ListRecords(c *gin.Context) {
	patientID, ok := parseID(c, "patient")
	if !ok {
		return
	}

	records, err := h.service.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	if records == nil {
		records = []*model.BillingRecord{}
	}
	httputil.RespondWithJSON(c, http.StatusOK, records)
}

func (h *Handler) Summary(c *gin.Context) {
	patientID, ok := parseID(c, "patient")
	if !ok {
		return
	}

	summary, err := h.service.Summary(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, summary)
}

func (h *Handler) Export(c *gin.Context) {
	patientID, ok := parseID(c, "patient")
	if !ok {
		return
	}

	records, err := h.service.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := billing.WriteStatement(&buf, patientID, records); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="statement-%s.xlsx"`, patientID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (h *Handler) GetRecord(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	rec, err := h.service.GetRecord(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, rec)
}

func (h *Handler) UpdateRecord(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	var req model.UpdateBillingRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	rec, err := h.service.UpdateRecord(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, rec)
}

func (h *Handler) RecordPayment(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	var req model.PaymentRequest
	if err := httputil.BindJSON(c, &req); err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	result, err := h.service.RecordPayment(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, result)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	// body is optional
	var req model.SettleRequest
	if c.Request.ContentLength > 0 {
		if err := httputil.BindJSON(c, &req); err != nil {
			httputil.RespondWithError(c, err)
			return
		}
	}

	rec, err := h.service.MarkPaid(c.Request.Context(), id, &req)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, rec)
}

func (h *Handler) MarkUnpaid(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	rec, err := h.service.MarkUnpaid(c.Request.Context(), id)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithJSON(c, http.StatusOK, rec)
}

func (h *Handler) DeleteRecord(c *gin.Context) {
	id, ok := parseID(c, "billing record")
	if !ok {
		return
	}

	if err := h.service.DeleteRecord(c.Request.Context(), id); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "billing record deleted")
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.RespondWithError(c, apperrors.BadRequest("invalid "+what+" id", err))
		return uuid.Nil, false
	}
	return id, true
}
