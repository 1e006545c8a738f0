package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/dto"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/services"
)

// FamilyHandler serves families, invites and memberships.
type FamilyHandler struct {
	familyService *services.FamilyService
}

// NewFamilyHandler creates a new FamilyHandler.
func NewFamilyHandler(familyService *services.FamilyService) *FamilyHandler {
	return &FamilyHandler{
		familyService: familyService,
	}
}

// CreateFamily creates a family with the caller as its founding admin
func (h *FamilyHandler) CreateFamily(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type CreateFamilyRequest struct {
		Name string `json:"name" binding:"required"`
	}

	var req CreateFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	overview, err := h.familyService.CreateFamily(c.Request.Context(), userID, req.Name)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToFamilyOverviewDTO(*overview))
}

// GetFamily returns the caller's family
func (h *FamilyHandler) GetFamily(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	overview, err := h.familyService.GetFamily(c.Request.Context(), userID)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToFamilyOverviewDTO(*overview))
}

// JoinFamily redeems an invite code. The membership starts PENDING.
func (h *FamilyHandler) JoinFamily(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type JoinFamilyRequest struct {
		InviteCode string `json:"invite_code" binding:"required"`
	}

	var req JoinFamilyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	member, err := h.familyService.RedeemInvite(c.Request.Context(), userID, req.InviteCode)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToMembershipDTO(*member))
}

// CreateInvite replaces the family's active invite
func (h *FamilyHandler) CreateInvite(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type CreateInviteRequest struct {
		MaxUses        int `json:"max_uses"`
		ExpiresInHours int `json:"expires_in_hours"`
	}

	var req CreateInviteRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			apierrors.BadRequest(c, "Invalid request body")
			return
		}
	}

	invite, err := h.familyService.CreateInvite(c.Request.Context(), userID, services.CreateInviteInput{
		MaxUses: req.MaxUses,
		TTL:     time.Duration(req.ExpiresInHours) * time.Hour,
	})
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToInviteDTO(*invite))
}

// ApproveMember approves or rejects a PENDING membership
func (h *FamilyHandler) ApproveMember(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type ApproveMemberRequest struct {
		Approved *bool `json:"approved" binding:"required"`
	}

	var req ApproveMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	member, err := h.familyService.ApproveMembership(c.Request.Context(), userID, middleware.ParamID(c, "user_id"), *req.Approved)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToMembershipDTO(*member))
}

// RemoveMember removes an ACTIVE member from the family
func (h *FamilyHandler) RemoveMember(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.familyService.RemoveMember(c.Request.Context(), userID, middleware.ParamID(c, "user_id")); err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Member removed successfully",
	})
}
