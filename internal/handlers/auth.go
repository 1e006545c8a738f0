package handlers

import (
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/dto"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/services"
)

// AuthHandler serves the caller's own profile and session.
type AuthHandler struct {
	userService *services.UserService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(userService *services.UserService) *AuthHandler {
	return &AuthHandler{
		userService: userService,
	}
}

// GetCurrentUser returns the authenticated user and their membership.
func (h *AuthHandler) GetCurrentUser(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	profile, err := h.userService.GetProfile(userID)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProfileDTO(*profile))
}

// SetWallet sets the address the caller's rewards are paid to.
func (h *AuthHandler) SetWallet(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type SetWalletRequest struct {
		WalletAddress string `json:"wallet_address" binding:"required"`
	}

	var req SetWalletRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	if _, err := h.userService.SetWallet(userID, req.WalletAddress); err != nil {
		apierrors.Respond(c, err)
		return
	}

	profile, err := h.userService.GetProfile(userID)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToProfileDTO(*profile))
}

// Logout removes the authentication session.
func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	if err := session.Save(); err != nil {
		apierrors.InternalError(c, "Failed to logout")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Logged out successfully",
	})
}
