package services

import "github.com/yukikurage/chore-reward-api/internal/models"

// Trigger names what caused a task status change. Each edge of the task
// state machine is bound to exactly one trigger.
type Trigger string

const (
	TriggerAssign Trigger = "assign"
	TriggerStart  Trigger = "start"
	TriggerSubmit Trigger = "submit"
	TriggerDecide Trigger = "decide"
	TriggerSettle Trigger = "settle"
	TriggerExpiry Trigger = "expiry"
)

type edge struct {
	from models.TaskStatus
	to   models.TaskStatus
}

var taskEdges = map[edge]Trigger{
	{models.TaskStatusDraft, models.TaskStatusAssigned}:    TriggerAssign,
	{models.TaskStatusAssigned, models.TaskStatusAssigned}: TriggerAssign,

	{models.TaskStatusAssigned, models.TaskStatusInProgress}: TriggerStart,

	{models.TaskStatusAssigned, models.TaskStatusSubmitted}:   TriggerSubmit,
	{models.TaskStatusInProgress, models.TaskStatusSubmitted}: TriggerSubmit,
	{models.TaskStatusRejected, models.TaskStatusSubmitted}:   TriggerSubmit,
	{models.TaskStatusSubmitted, models.TaskStatusSubmitted}:  TriggerSubmit,

	{models.TaskStatusSubmitted, models.TaskStatusApproved}: TriggerDecide,
	{models.TaskStatusSubmitted, models.TaskStatusRejected}: TriggerDecide,

	{models.TaskStatusApproved, models.TaskStatusCompleted}: TriggerSettle,

	{models.TaskStatusDraft, models.TaskStatusExpired}:      TriggerExpiry,
	{models.TaskStatusAssigned, models.TaskStatusExpired}:   TriggerExpiry,
	{models.TaskStatusInProgress, models.TaskStatusExpired}: TriggerExpiry,
	{models.TaskStatusSubmitted, models.TaskStatusExpired}:  TriggerExpiry,
	{models.TaskStatusRejected, models.TaskStatusExpired}:   TriggerExpiry,
}

// CanTransition reports whether trigger may move a task from one status to another.
func CanTransition(from, to models.TaskStatus, trigger Trigger) bool {
	t, ok := taskEdges[edge{from, to}]
	return ok && t == trigger
}

// SourcesFor lists the statuses from which trigger can reach to.
func SourcesFor(to models.TaskStatus, trigger Trigger) []models.TaskStatus {
	var out []models.TaskStatus
	for e, t := range taskEdges {
		if e.to == to && t == trigger {
			out = append(out, e.from)
		}
	}
	return out
}

// expirableStatuses are swept to EXPIRED once overdue. APPROVED is left
// alone because a reward is owed.
var expirableStatuses = SourcesFor(models.TaskStatusExpired, TriggerExpiry)
