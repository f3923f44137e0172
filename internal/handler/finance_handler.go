package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/campuskit/sis-api/internal/models"
	"github.com/campuskit/sis-api/internal/service"
	appErrors "github.com/campuskit/sis-api/pkg/errors"
	"github.com/campuskit/sis-api/pkg/response"
)

// FinanceHandler exposes finance record endpoints.
type FinanceHandler struct {
	finance *service.FinanceService
}

// NewFinanceHandler constructs FinanceHandler.
func NewFinanceHandler(finance *service.FinanceService) *FinanceHandler {
	return &FinanceHandler{finance: finance}
}

// List godoc
// @Summary List finance records
// @Tags Finance
// @Produce json
// @Param studentId query string false "Filter by student"
// @Param semesterId query string false "Filter by semester"
// @Param status query string false "Filter by status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /finance [get]
func (h *FinanceHandler) List(c *gin.Context) {
	var filter models.FinanceFilter
	filter.StudentID = c.Query("studentId")
	filter.SemesterID = c.Query("semesterId")
	filter.Status = models.FinanceStatus(strings.ToLower(c.Query("status")))
	filter.TransactionType = c.Query("type")
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}

	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent {
		filter.StudentID = claims.StudentID
	}

	records, pagination, err := h.finance.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get finance record by ID
// @Tags Finance
// @Produce json
// @Param id path string true "Finance record ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /finance/{id} [get]
func (h *FinanceHandler) Get(c *gin.Context) {
	record, err := h.finance.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	if claims := claimsFromContext(c); claims != nil && claims.Role == models.RoleStudent && record.StudentID != claims.StudentID {
		response.Error(c, appErrors.ErrForbidden)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Create finance record
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.CreateFinanceRecordRequest true "Finance payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /finance [post]
func (h *FinanceHandler) Create(c *gin.Context) {
	var req service.CreateFinanceRecordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.finance.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// UpdateStatus godoc
// @Summary Update finance record status
// @Description Settling a pending record lifts the enrollment hold
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Finance record ID"
// @Param payload body service.UpdateFinanceStatusRequest true "Status payload"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /finance/{id}/status [put]
func (h *FinanceHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateFinanceStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.finance.UpdateStatus(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete finance record
// @Tags Finance
// @Produce json
// @Param id path string true "Finance record ID"
// @Success 204 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /finance/{id} [delete]
func (h *FinanceHandler) Delete(c *gin.Context) {
	if err := h.finance.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
