package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/dto"
	apierrors "github.com/yukikurage/chore-reward-api/internal/errors"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/services"
	"github.com/yukikurage/chore-reward-api/internal/utils"
)

type TaskHandler struct {
	taskService       *services.TaskService
	settlementService *services.SettlementService
	suggestionService *services.SuggestionService
}

func NewTaskHandler(taskService *services.TaskService, settlementService *services.SettlementService, suggestionService *services.SuggestionService) *TaskHandler {
	return &TaskHandler{
		taskService:       taskService,
		settlementService: settlementService,
		suggestionService: suggestionService,
	}
}

// ListTasks returns the tasks of the caller's family, newest first.
// Filters: status, assigned_to_me.
func (h *TaskHandler) ListTasks(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	input := services.ListTasksInput{UserID: userID}

	if raw := c.Query("status"); raw != "" {
		status := models.TaskStatus(raw)
		if !status.Valid() {
			apierrors.BadRequest(c, "Invalid status")
			return
		}
		input.Status = &status
	}
	if raw := c.Query("assigned_to_me"); raw != "" {
		assignedToMe, err := strconv.ParseBool(raw)
		if err != nil {
			apierrors.BadRequest(c, "Invalid assigned_to_me")
			return
		}
		input.AssignedToMe = assignedToMe
	}

	// Get pagination parameters
	params := utils.GetPaginationParams(c)
	input.Page = params.Page
	input.PageSize = params.Limit

	tasks, total, err := h.taskService.ListTasks(input)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskListResponse(tasks, params.Page, params.Limit, total))
}

// GetTask returns a task with its submissions, decisions and transactions
func (h *TaskHandler) GetTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	detail, err := h.taskService.GetTask(userID, middleware.ParamID(c, "id"))
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDetailDTO(*detail))
}

// CreateTask creates a new task in the caller's family
func (h *TaskHandler) CreateTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type CreateTaskRequest struct {
		Title        string                `json:"title" binding:"required"`
		Description  string                `json:"description"`
		Category     models.TaskCategory   `json:"category"`
		Difficulty   models.TaskDifficulty `json:"difficulty"`
		RewardAmount int64                 `json:"reward_amount" binding:"required"`
		Priority     *int                  `json:"priority"`
		DueDate      *time.Time            `json:"due_date"`
		AssignedToID *uint64               `json:"assigned_to_id"`
	}

	var req CreateTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.CreateTask(c.Request.Context(), userID, services.CreateTaskInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Difficulty:   req.Difficulty,
		RewardAmount: req.RewardAmount,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		AssignedToID: req.AssignedToID,
	})
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.ToTaskDTO(*task))
}

// UpdateTask updates an existing task. Only the fields present in the body
// change; "due_date": null clears the due date.
func (h *TaskHandler) UpdateTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type UpdateTaskRequest struct {
		Title        *string                `json:"title"`
		Description  *string                `json:"description"`
		Category     *models.TaskCategory   `json:"category"`
		Difficulty   *models.TaskDifficulty `json:"difficulty"`
		RewardAmount *int64                 `json:"reward_amount"`
		Priority     *int                   `json:"priority"`
		DueDate      *time.Time             `json:"due_date"`
		Status       *models.TaskStatus     `json:"status"`
	}

	body, err := c.GetRawData()
	if err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	// Parse raw JSON to detect which fields were sent
	var rawReq map[string]json.RawMessage
	var req UpdateTaskRequest
	if err := json.Unmarshal(body, &rawReq); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}
	if err := json.Unmarshal(body, &req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	input := services.UpdateTaskInput{
		Title:        req.Title,
		Description:  req.Description,
		Category:     req.Category,
		Difficulty:   req.Difficulty,
		RewardAmount: req.RewardAmount,
		Priority:     req.Priority,
		DueDate:      req.DueDate,
		Status:       req.Status,
	}
	if raw, ok := rawReq["due_date"]; ok && string(raw) == "null" {
		input.ClearDueDate = true
	}

	task, err := h.taskService.UpdateTask(c.Request.Context(), userID, middleware.ParamID(c, "id"), input)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// DeleteTask deletes a task that was never submitted
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	if err := h.taskService.DeleteTask(userID, middleware.ParamID(c, "id")); err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Task deleted successfully",
	})
}

// AssignTask assigns the task to a child of the family
func (h *TaskHandler) AssignTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type AssignTaskRequest struct {
		UserID uint64 `json:"user_id" binding:"required"`
	}

	var req AssignTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	task, err := h.taskService.AssignTask(c.Request.Context(), userID, middleware.ParamID(c, "id"), req.UserID)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTaskDTO(*task))
}

// SettleTask retries the reward payout for the task's latest approved submission
func (h *TaskHandler) SettleTask(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	txn, err := h.settlementService.SettleLatest(c.Request.Context(), userID, middleware.ParamID(c, "id"))
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ToTransactionDTO(*txn))
}

// SuggestTasks proposes chores from free text using AI
func (h *TaskHandler) SuggestTasks(c *gin.Context) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		apierrors.Unauthorized(c, "Not authenticated")
		return
	}

	type SuggestTasksRequest struct {
		Text string `json:"text" binding:"required"`
	}

	var req SuggestTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		apierrors.BadRequest(c, "Invalid request body")
		return
	}

	suggestions, err := h.suggestionService.Suggest(c.Request.Context(), userID, req.Text)
	if err != nil {
		apierrors.Respond(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tasks": suggestions,
	})
}
