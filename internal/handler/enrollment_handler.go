package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gymflow-api/internal/models"
	"github.com/noah-isme/gymflow-api/internal/service"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
	"github.com/noah-isme/gymflow-api/pkg/response"
)

// EnrollmentHandler exposes seat reservation endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	classes     *service.ClassService
}

// NewEnrollmentHandler constructs EnrollmentHandler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, classes *service.ClassService) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, classes: classes}
}

// Reserve godoc
// @Summary Reserve a seat in a class
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /classes/{id}/reservations [post]
func (h *EnrollmentHandler) Reserve(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	enrollment, err := h.enrollments.Reserve(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	h.classes.InvalidateListings(c.Request.Context())
	response.Created(c, enrollment)
}

// Release godoc
// @Summary Release a reserved seat
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /enrollments/{id} [delete]
func (h *EnrollmentHandler) Release(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	isStaff := claims.Role == models.RoleAdmin || claims.Role == models.RoleStaff
	enrollment, err := h.enrollments.Release(c.Request.Context(), c.Param("id"), claims.UserID, isStaff)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.classes.InvalidateListings(c.Request.Context())
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// Get godoc
// @Summary Get enrollment detail
// @Tags Enrollments
// @Produce json
// @Param id path string true "Enrollment ID"
// @Success 200 {object} response.Envelope
// @Router /enrollments/{id} [get]
func (h *EnrollmentHandler) Get(c *gin.Context) {
	enrollment, err := h.enrollments.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollment, nil)
}

// ListByClass godoc
// @Summary List enrollments for a class
// @Tags Enrollments
// @Produce json
// @Param id path string true "Class ID"
// @Param status query string false "Filter by enrollment status"
// @Success 200 {object} response.Envelope
// @Router /classes/{id}/enrollments [get]
func (h *EnrollmentHandler) ListByClass(c *gin.Context) {
	status := models.EnrollmentStatus(strings.ToUpper(c.Query("status")))
	enrollments, err := h.enrollments.ListByClass(c.Request.Context(), c.Param("id"), status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, nil)
}
