package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/testutil"
)

type TaskServiceTestSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
	h   household
}

func (s *TaskServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
	s.h = s.env.newHousehold(s.T(), "Suzuki")
}

func (s *TaskServiceTestSuite) draftTask() *models.Task {
	task, err := s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{
		Title:        "Walk the dog",
		Category:     models.CategoryPetCare,
		RewardAmount: 50,
	})
	s.Require().NoError(err)
	return task
}

func (s *TaskServiceTestSuite) TestCreateTask_StatusFollowsAssignee() {
	draft := s.draftTask()
	s.Equal(models.TaskStatusDraft, draft.Status)
	s.Equal(3, draft.Priority)
	s.Equal(models.DifficultyMedium, draft.Difficulty)
	s.Empty(s.env.notifier.ofType(notify.TaskAssigned))

	assigned := s.env.assignedTask(s.T(), s.h, 100)
	s.Equal(models.TaskStatusAssigned, assigned.Status)
	s.Require().NotNil(assigned.AssignedTo)
	s.Equal(s.h.child.ID, assigned.AssignedTo.ID)
	s.Equal(s.h.parent.ID, assigned.Creator.ID)

	sent := s.env.notifier.ofType(notify.TaskAssigned)
	s.Require().Len(sent, 1)
	s.Equal(s.h.child.ID, sent[0].UserID)
}

func (s *TaskServiceTestSuite) TestCreateTask_Validation() {
	_, err := s.env.taskSvc.CreateTask(s.ctx, s.h.child.ID, CreateTaskInput{Title: "x", RewardAmount: 1})
	s.ErrorIs(err, ErrParentRequired)

	_, err = s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{Title: "x", RewardAmount: 0})
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{Title: "x", RewardAmount: 1, Category: "GARDENING"})
	s.ErrorIs(err, ErrInvalidInput)

	high := 9
	_, err = s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{Title: "x", RewardAmount: 1, Priority: &high})
	s.ErrorIs(err, ErrInvalidInput)

	past := time.Now().Add(-time.Hour)
	_, err = s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{Title: "x", RewardAmount: 1, DueDate: &past})
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *TaskServiceTestSuite) TestCreateTask_InvalidAssignee() {
	other := s.env.newHousehold(s.T(), "Other")

	for _, assignee := range []uint64{s.h.parent.ID, other.child.ID, 9999} {
		id := assignee
		_, err := s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{
			Title:        "Homework",
			RewardAmount: 10,
			AssignedToID: &id,
		})
		s.ErrorIs(err, ErrInvalidAssignee)
	}

	pendingChild := testutil.CreateUser(s.T(), s.env.db, "pending-kid", models.RoleChild)
	testutil.AddMember(s.T(), s.env.db, s.h.family, pendingChild, models.MembershipPending)
	_, err := s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{
		Title:        "Homework",
		RewardAmount: 10,
		AssignedToID: &pendingChild.ID,
	})
	s.ErrorIs(err, ErrInvalidAssignee)
}

func (s *TaskServiceTestSuite) TestCreateTask_NotificationFailureDoesNotFail() {
	s.env.notifier.err = errors.New("queue full")

	task := s.env.assignedTask(s.T(), s.h, 100)

	s.Equal(models.TaskStatusAssigned, task.Status)
	var warned bool
	for _, entry := range s.env.logs.AllEntries() {
		if entry.Level == logrus.WarnLevel && entry.Message == "notification enqueue failed" {
			warned = true
		}
	}
	s.True(warned)
}

func (s *TaskServiceTestSuite) TestAssignTask() {
	draft := s.draftTask()

	assigned, err := s.env.taskSvc.AssignTask(s.ctx, s.h.parent.ID, draft.ID, s.h.child.ID)
	s.Require().NoError(err)
	s.Equal(models.TaskStatusAssigned, assigned.Status)
	s.Len(s.env.notifier.ofType(notify.TaskAssigned), 1)

	sibling := testutil.CreateUser(s.T(), s.env.db, "sibling", models.RoleChild)
	testutil.AddMember(s.T(), s.env.db, s.h.family, sibling, models.MembershipActive)

	reassigned, err := s.env.taskSvc.AssignTask(s.ctx, s.h.parent.ID, draft.ID, sibling.ID)
	s.Require().NoError(err)
	s.Equal(models.TaskStatusAssigned, reassigned.Status)
	s.Equal(sibling.ID, *reassigned.AssignedToID)

	sent := s.env.notifier.ofType(notify.TaskAssigned)
	s.Require().Len(sent, 2)
	s.Equal(sibling.ID, sent[1].UserID)

	_, err = s.env.taskSvc.AssignTask(s.ctx, s.h.child.ID, draft.ID, s.h.child.ID)
	s.ErrorIs(err, ErrParentRequired)
}

func (s *TaskServiceTestSuite) TestAssignTask_OnlyFromDraftOrAssigned() {
	task := s.env.assignedTask(s.T(), s.h, 100)
	s.env.submit(s.T(), s.h, task)

	_, err := s.env.taskSvc.AssignTask(s.ctx, s.h.parent.ID, task.ID, s.h.child.ID)
	s.ErrorIs(err, ErrInvalidTransition)
}

func (s *TaskServiceTestSuite) TestUpdateTask_ChildMayOnlyStart() {
	task := s.env.assignedTask(s.T(), s.h, 100)

	approved := models.TaskStatusApproved
	_, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.child.ID, task.ID, UpdateTaskInput{Status: &approved})
	s.ErrorIs(err, ErrForbiddenTransition)
	s.Equal(models.TaskStatusAssigned, s.env.taskStatus(s.T(), task.ID))

	title := "Something easier"
	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.child.ID, task.ID, UpdateTaskInput{Title: &title})
	s.ErrorIs(err, ErrForbidden)

	inProgress := models.TaskStatusInProgress
	started, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.child.ID, task.ID, UpdateTaskInput{Status: &inProgress})
	s.Require().NoError(err)
	s.Equal(models.TaskStatusInProgress, started.Status)

	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.child.ID, task.ID, UpdateTaskInput{Status: &inProgress})
	s.ErrorIs(err, ErrForbiddenTransition)
}

func (s *TaskServiceTestSuite) TestUpdateTask_ChildCannotStartOthersTask() {
	sibling := testutil.CreateUser(s.T(), s.env.db, "sibling", models.RoleChild)
	testutil.AddMember(s.T(), s.env.db, s.h.family, sibling, models.MembershipActive)
	task := s.env.assignedTask(s.T(), s.h, 100)

	inProgress := models.TaskStatusInProgress
	_, err := s.env.taskSvc.UpdateTask(s.ctx, sibling.ID, task.ID, UpdateTaskInput{Status: &inProgress})
	s.ErrorIs(err, ErrForbiddenTransition)
}

func (s *TaskServiceTestSuite) TestUpdateTask_ParentEdits() {
	task := s.env.assignedTask(s.T(), s.h, 100)

	completed := models.TaskStatusCompleted
	_, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, task.ID, UpdateTaskInput{Status: &completed})
	s.ErrorIs(err, ErrForbiddenTransition)

	same := models.TaskStatusAssigned
	title := "Scrub the bathtub"
	reward := int64(150)
	due := time.Now().Add(48 * time.Hour)
	updated, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, task.ID, UpdateTaskInput{
		Status:       &same,
		Title:        &title,
		RewardAmount: &reward,
		DueDate:      &due,
	})
	s.Require().NoError(err)
	s.Equal(title, updated.Title)
	s.Equal(int64(150), updated.RewardAmount)
	s.Require().NotNil(updated.DueDate)

	cleared, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, task.ID, UpdateTaskInput{ClearDueDate: true})
	s.Require().NoError(err)
	s.Nil(cleared.DueDate)
}

func (s *TaskServiceTestSuite) TestUpdateTask_RewardLockedAfterSubmission() {
	task := s.env.assignedTask(s.T(), s.h, 100)
	s.env.submit(s.T(), s.h, task)

	reward := int64(500)
	_, err := s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, task.ID, UpdateTaskInput{RewardAmount: &reward})
	s.ErrorIs(err, ErrRewardLocked)

	unchanged := int64(100)
	description := "Use the blue sponge"
	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, task.ID, UpdateTaskInput{RewardAmount: &unchanged, Description: &description})
	s.NoError(err)
}

func (s *TaskServiceTestSuite) TestDeleteTask() {
	draft := s.draftTask()
	s.Require().NoError(s.env.taskSvc.DeleteTask(s.h.parent.ID, draft.ID))
	_, err := s.env.taskSvc.GetTask(s.h.parent.ID, draft.ID)
	s.ErrorIs(err, ErrTaskNotFound)

	submitted := s.env.assignedTask(s.T(), s.h, 100)
	s.env.submit(s.T(), s.h, submitted)
	s.ErrorIs(s.env.taskSvc.DeleteTask(s.h.parent.ID, submitted.ID), ErrTaskHasSubmissions)

	started := s.env.assignedTask(s.T(), s.h, 100)
	inProgress := models.TaskStatusInProgress
	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.child.ID, started.ID, UpdateTaskInput{Status: &inProgress})
	s.Require().NoError(err)
	s.ErrorIs(s.env.taskSvc.DeleteTask(s.h.parent.ID, started.ID), ErrInvalidTransition)

	s.ErrorIs(s.env.taskSvc.DeleteTask(s.h.child.ID, started.ID), ErrParentRequired)
}

func (s *TaskServiceTestSuite) TestExpireOverdue() {
	overdue := s.env.assignedTask(s.T(), s.h, 100)
	owed := s.env.assignedTask(s.T(), s.h, 100)
	sub := s.env.submit(s.T(), s.h, owed)
	s.env.approveWithoutSettling(s.T(), s.h, owed, sub)
	future := s.env.assignedTask(s.T(), s.h, 100)

	past := time.Now().Add(-time.Hour)
	later := time.Now().Add(time.Hour)
	s.Require().NoError(s.env.db.Model(&models.Task{}).Where("id IN ?", []uint64{overdue.ID, owed.ID}).Update("due_date", past).Error)
	s.Require().NoError(s.env.db.Model(&models.Task{}).Where("id = ?", future.ID).Update("due_date", later).Error)

	n, err := s.env.taskSvc.ExpireOverdue(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Equal(int64(1), n)

	n, err = s.env.taskSvc.ExpireOverdue(s.ctx, time.Now())
	s.Require().NoError(err)
	s.Zero(n)

	s.Equal(models.TaskStatusExpired, s.env.taskStatus(s.T(), overdue.ID))
	s.Equal(models.TaskStatusApproved, s.env.taskStatus(s.T(), owed.ID))
	s.Equal(models.TaskStatusAssigned, s.env.taskStatus(s.T(), future.ID))

	_, err = s.env.submissionSvc.Submit(s.ctx, s.h.child.ID, overdue.ID, SubmitInput{Proofs: []string{"late.jpg"}})
	s.ErrorIs(err, ErrInvalidTransition)

	title := "Too late"
	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, overdue.ID, UpdateTaskInput{Title: &title})
	s.ErrorIs(err, ErrInvalidTransition)
	_, err = s.env.taskSvc.UpdateTask(s.ctx, s.h.parent.ID, owed.ID, UpdateTaskInput{Title: &title})
	s.ErrorIs(err, ErrInvalidTransition)
}

func (s *TaskServiceTestSuite) TestGetAndListTasks_ScopedToFamily() {
	mine := s.env.assignedTask(s.T(), s.h, 100)
	s.draftTask()
	other := s.env.newHousehold(s.T(), "Other")
	theirs := s.env.assignedTask(s.T(), other, 10)

	_, err := s.env.taskSvc.GetTask(s.h.parent.ID, theirs.ID)
	s.ErrorIs(err, ErrTaskNotFound)

	detail, err := s.env.taskSvc.GetTask(s.h.child.ID, mine.ID)
	s.Require().NoError(err)
	s.Equal(mine.ID, detail.Task.ID)
	s.Empty(detail.Submissions)

	all, total, err := s.env.taskSvc.ListTasks(ListTasksInput{UserID: s.h.parent.ID, Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Equal(int64(2), total)
	s.Len(all, 2)

	assigned, total, err := s.env.taskSvc.ListTasks(ListTasksInput{UserID: s.h.child.ID, AssignedToMe: true, Page: 1, PageSize: 20})
	s.Require().NoError(err)
	s.Equal(int64(1), total)
	s.Equal(mine.ID, assigned[0].ID)

	loner := testutil.CreateUser(s.T(), s.env.db, "loner", models.RoleParent)
	_, _, err = s.env.taskSvc.ListTasks(ListTasksInput{UserID: loner.ID})
	s.ErrorIs(err, ErrNotFamilyMember)
}

func TestTaskServiceTestSuite(t *testing.T) {
	suite.Run(t, new(TaskServiceTestSuite))
}
