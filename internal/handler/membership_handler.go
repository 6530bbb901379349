package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/gymflow-api/internal/service"
	appErrors "github.com/noah-isme/gymflow-api/pkg/errors"
	"github.com/noah-isme/gymflow-api/pkg/response"
)

// MembershipHandler exposes membership endpoints.
type MembershipHandler struct {
	memberships *service.MembershipService
}

// NewMembershipHandler constructs MembershipHandler.
func NewMembershipHandler(memberships *service.MembershipService) *MembershipHandler {
	return &MembershipHandler{memberships: memberships}
}

// Open godoc
// @Summary Open a membership pending payment
// @Tags Memberships
// @Accept json
// @Produce json
// @Param payload body service.OpenMembershipRequest true "Membership payload"
// @Success 201 {object} response.Envelope
// @Router /memberships [post]
func (h *MembershipHandler) Open(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.OpenMembershipRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	membership, err := h.memberships.Open(c.Request.Context(), claims.UserID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, membership)
}

// Get godoc
// @Summary Get membership detail
// @Tags Memberships
// @Produce json
// @Param id path string true "Membership ID"
// @Success 200 {object} response.Envelope
// @Router /memberships/{id} [get]
func (h *MembershipHandler) Get(c *gin.Context) {
	membership, err := h.memberships.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, membership, nil)
}

// ListMine godoc
// @Summary List the caller's memberships
// @Tags Memberships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /memberships [get]
func (h *MembershipHandler) ListMine(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	memberships, err := h.memberships.ListByMember(c.Request.Context(), claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, memberships, nil)
}

// ExpireLapsed godoc
// @Summary Expire memberships past their end date
// @Tags Memberships
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /memberships/expire-lapsed [post]
func (h *MembershipHandler) ExpireLapsed(c *gin.Context) {
	expired, err := h.memberships.ExpireLapsed(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"expired": expired}, nil)
}
