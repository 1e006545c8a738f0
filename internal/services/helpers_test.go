package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"
	"github.com/yukikurage/chore-reward-api/internal/ledger"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/repository"
	"github.com/yukikurage/chore-reward-api/internal/testutil"
	"gorm.io/gorm"
)

type fakeLedger struct {
	mu       sync.Mutex
	calls    int
	requests []ledger.TransferRequest
	err      error
	delay    time.Duration
}

func (f *fakeLedger) Transfer(ctx context.Context, req ledger.TransferRequest) (*ledger.TransferResult, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, fmt.Errorf("%w: %v", ledger.ErrTransferFailed, f.err)
	}
	return &ledger.TransferResult{TxHash: fmt.Sprintf("0xhash%d", f.calls), Status: "CONFIRMED"}, nil
}

func (f *fakeLedger) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeLedger) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notification
	err  error
}

func (f *fakeNotifier) Enqueue(_ context.Context, n notify.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, n)
	return nil
}

func (f *fakeNotifier) ofType(kind notify.Type) []notify.Notification {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.Notification
	for _, n := range f.sent {
		if n.Type == kind {
			out = append(out, n)
		}
	}
	return out
}

// testEnv wires every service against one in-memory database.
type testEnv struct {
	db       *gorm.DB
	users    repository.UserRepository
	families repository.FamilyRepository
	tasks    repository.TaskRepository
	txns     repository.TransactionRepository

	ledger   *fakeLedger
	notifier *fakeNotifier
	logs     *test.Hook
	log      logrus.FieldLogger

	familySvc     *FamilyService
	taskSvc       *TaskService
	submissionSvc *SubmissionService
	settlementSvc *SettlementService
	userSvc       *UserService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.NewDB(t)
	logger, hook := test.NewNullLogger()
	e := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		families: repository.NewFamilyRepository(db),
		tasks:    repository.NewTaskRepository(db),
		txns:     repository.NewTransactionRepository(db),
		ledger:   &fakeLedger{},
		notifier: &fakeNotifier{},
		logs:     hook,
		log:      logger,
	}

	e.familySvc = NewFamilyService(e.families, e.users, e.notifier, logger, InviteDefaults{})
	e.taskSvc = NewTaskService(e.tasks, e.families, e.txns, e.notifier, logger)
	e.settlementSvc = e.newSettlementService()
	e.submissionSvc = NewSubmissionService(e.tasks, e.families, e.settlementSvc, e.notifier, logger)
	e.userSvc = NewUserService(e.users, e.families)
	return e
}

func (e *testEnv) newSettlementService() *SettlementService {
	return NewSettlementService(e.tasks, e.families, e.txns, e.users, e.ledger, e.notifier, e.log, time.Second)
}

// household is a family with one ACTIVE parent and one ACTIVE child.
type household struct {
	parent *models.User
	child  *models.User
	family *models.Family
}

func (e *testEnv) newHousehold(t *testing.T, name string) household {
	t.Helper()
	parent := testutil.CreateUser(t, e.db, name+"-parent", models.RoleParent)
	child := testutil.CreateUser(t, e.db, name+"-child", models.RoleChild)
	family := testutil.CreateFamily(t, e.db, name, parent)
	testutil.AddMember(t, e.db, family, child, models.MembershipActive)
	return household{parent: parent, child: child, family: family}
}

func (e *testEnv) assignedTask(t *testing.T, h household, reward int64) *models.Task {
	t.Helper()
	task, err := e.taskSvc.CreateTask(context.Background(), h.parent.ID, CreateTaskInput{
		Title:        "Clean the bathroom",
		Category:     models.CategoryCleaning,
		Difficulty:   models.DifficultyMedium,
		RewardAmount: reward,
		AssignedToID: &h.child.ID,
	})
	require.NoError(t, err)
	return task
}

func (e *testEnv) submit(t *testing.T, h household, task *models.Task) *models.TaskSubmission {
	t.Helper()
	sub, err := e.submissionSvc.Submit(context.Background(), h.child.ID, task.ID, SubmitInput{
		Proofs: []string{"https://photos.example/bathroom.jpg"},
	})
	require.NoError(t, err)
	return sub
}

// approveWithoutSettling records an APPROVED decision directly so settlement
// can be driven separately.
func (e *testEnv) approveWithoutSettling(t *testing.T, h household, task *models.Task, sub *models.TaskSubmission) {
	t.Helper()
	require.NoError(t, e.tasks.RecordDecision(&models.TaskApproval{
		SubmissionID: sub.ID,
		TaskID:       task.ID,
		ApproverID:   h.parent.ID,
		Decision:     models.DecisionApproved,
		DecidedAt:    time.Now(),
	}, models.TaskStatusApproved, models.TaskStatusSubmitted))
}

func (e *testEnv) taskStatus(t *testing.T, taskID uint64) models.TaskStatus {
	t.Helper()
	task, err := e.tasks.FindByID(taskID)
	require.NoError(t, err)
	return task.Status
}

func (e *testEnv) countTransactions(t *testing.T, taskID uint64) int64 {
	t.Helper()
	var n int64
	require.NoError(t, e.db.Model(&models.Transaction{}).Where("task_id = ?", taskID).Count(&n).Error)
	return n
}

var errLedgerDown = errors.New("ledger unavailable")
