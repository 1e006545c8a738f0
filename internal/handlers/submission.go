package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/dto"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/services"
)

// SubmissionHandler serves task submissions and parents' decisions.
type SubmissionHandler struct {
	submissionService *services.SubmissionService
}

// NewSubmissionHandler creates a new SubmissionHandler.
func NewSubmissionHandler(submissionService *services.SubmissionService) *SubmissionHandler {
	return &SubmissionHandler{
		submissionService: submissionService,
	}
}

// Submit records proof that the caller finished a task
func (h *SubmissionHandler) Submit(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type SubmitRequest struct {
		Proofs []string `json:"proofs" binding:"required"`
		Notes  string   `json:"notes"`
	}

	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	submission, err := h.submissionService.Submit(c.Request.Context(), userID, middleware.ParamID(c, "id"), services.SubmitInput{
		Proofs: req.Proofs,
		Notes:  req.Notes,
	})
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToSubmissionDTO(*submission))
}

// Decide approves or rejects a submission. An approval answers with the
// settlement outcome; a failed payout is reported there, not as an error.
func (h *SubmissionHandler) Decide(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type DecideRequest struct {
		Decision models.ApprovalDecision `json:"decision" binding:"required"`
		Rating   *int                    `json:"rating"`
		Comments string                  `json:"comments"`
	}

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	result, err := h.submissionService.Decide(c.Request.Context(), userID, middleware.ParamID(c, "id"), services.DecideInput{
		Decision: req.Decision,
		Rating:   req.Rating,
		Comments: req.Comments,
	})
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToDecisionDTO(*result))
}
