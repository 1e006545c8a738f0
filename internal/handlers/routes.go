package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/yukikurage/chore-reward-api/internal/middleware"
)

// Routes bundles the handlers and the middleware the API routes need.
type Routes struct {
	Auth       *AuthHandler
	Family     *FamilyHandler
	Task       *TaskHandler
	Submission *SubmissionHandler

	RequireAuth gin.HandlerFunc
	// JoinLimit guards invite redemption; nil disables it.
	JoinLimit gin.HandlerFunc
}

// Register mounts the API under api.
func (r Routes) Register(api *gin.RouterGroup) {
	idParam := middleware.RequireIDParam("id")
	memberID := middleware.RequireIDParam("user_id")
	parent := middleware.RequireParent()

	join := []gin.HandlerFunc{r.Family.JoinFamily}
	if r.JoinLimit != nil {
		join = append([]gin.HandlerFunc{r.JoinLimit}, join...)
	}

	api.POST("/auth/logout", r.Auth.Logout)

	// Routes below require an identity
	authed := api.Group("", r.RequireAuth)
	{
		authed.GET("/me", r.Auth.GetCurrentUser)
		authed.PUT("/me/wallet", r.Auth.SetWallet)

		families := authed.Group("/families")
		families.POST("", parent, r.Family.CreateFamily)
		families.GET("/current", r.Family.GetFamily)
		families.POST("/join", join...)
		families.POST("/invites", parent, r.Family.CreateInvite)
		families.POST("/members/:user_id/approve", parent, memberID, r.Family.ApproveMember)
		families.DELETE("/members/:user_id", parent, memberID, r.Family.RemoveMember)

		tasks := authed.Group("/tasks")
		tasks.GET("", r.Task.ListTasks)
		tasks.POST("", parent, r.Task.CreateTask)
		tasks.POST("/suggest", parent, r.Task.SuggestTasks)
		tasks.GET("/:id", idParam, r.Task.GetTask)
		tasks.PATCH("/:id", idParam, r.Task.UpdateTask)
		tasks.DELETE("/:id", parent, idParam, r.Task.DeleteTask)
		tasks.POST("/:id/assign", parent, idParam, r.Task.AssignTask)
		tasks.POST("/:id/submissions", idParam, r.Submission.Submit)
		tasks.POST("/:id/settlement", parent, idParam, r.Task.SettleTask)

		authed.POST("/submissions/:id/decision", parent, idParam, r.Submission.Decide)
	}
}
