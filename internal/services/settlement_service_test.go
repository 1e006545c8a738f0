package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
)

type SettlementServiceTestSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
	h   household
}

func (s *SettlementServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
	s.h = s.env.newHousehold(s.T(), "Sato")
}

func (s *SettlementServiceTestSuite) approvedTask(reward int64) (*models.Task, *models.TaskSubmission) {
	task := s.env.assignedTask(s.T(), s.h, reward)
	sub := s.env.submit(s.T(), s.h, task)
	s.env.approveWithoutSettling(s.T(), s.h, task, sub)
	return task, sub
}

// recordReward inserts the reward row a settler writes before calling the
// ledger, as if that settler stopped right after.
func (s *SettlementServiceTestSuite) recordReward(task *models.Task, sub *models.TaskSubmission, status models.TransactionStatus) *models.Transaction {
	taskID, subID := task.ID, sub.ID
	txn := &models.Transaction{
		UserID:       s.h.child.ID,
		TaskID:       &taskID,
		SubmissionID: &subID,
		Type:         models.TransactionTaskReward,
		Amount:       "120",
		Status:       status,
		Reference:    uuid.NewString(),
		ToAddress:    s.h.child.WalletAddress,
		Attempts:     1,
	}
	s.Require().NoError(s.env.txns.Create(txn))
	return txn
}

func (s *SettlementServiceTestSuite) TestStalledPendingIsTakenOverByRetry() {
	task, sub := s.approvedTask(120)
	txn := s.recordReward(task, sub, models.TransactionPending)

	inFlight, err := s.env.settlementSvc.SettleLatest(s.ctx, s.h.parent.ID, task.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionPending, inFlight.Status)
	confirmed, err := s.env.settlementSvc.RetryFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(confirmed)
	s.Zero(s.env.ledger.callCount())

	s.Require().NoError(s.env.db.Model(&models.Transaction{}).
		Where("id = ?", txn.ID).
		UpdateColumn("updated_at", time.Now().Add(-time.Hour)).Error)

	confirmed, err = s.env.settlementSvc.RetryFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, confirmed)

	stored, err := s.env.txns.FindByID(txn.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionConfirmed, stored.Status)
	s.Equal(2, stored.Attempts)
	s.Equal(txn.Reference, stored.Reference)
	s.Require().Equal(1, s.env.ledger.callCount())
	s.Equal(txn.Reference, s.env.ledger.requests[0].Reference)
	s.Equal(int64(1), s.env.countTransactions(s.T(), task.ID))
	s.Equal(models.TaskStatusCompleted, s.env.taskStatus(s.T(), task.ID))
	s.Len(s.env.notifier.ofType(notify.RewardSent), 1)
}

func (s *SettlementServiceTestSuite) TestCancelledSettlementIsReattempted() {
	task, sub := s.approvedTask(120)
	txn := s.recordReward(task, sub, models.TransactionCancelled)

	settled, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.Require().NoError(err)
	s.Equal(txn.ID, settled.ID)
	s.Equal(models.TransactionConfirmed, settled.Status)
	s.Equal(2, settled.Attempts)
	s.Equal(1, s.env.ledger.callCount())
	s.Equal(int64(1), s.env.countTransactions(s.T(), task.ID))
	s.Equal(models.TaskStatusCompleted, s.env.taskStatus(s.T(), task.ID))
}

func (s *SettlementServiceTestSuite) TestConcurrentSettleCallsLedgerOnce() {
	task, sub := s.approvedTask(300)
	s.env.ledger.delay = 50 * time.Millisecond

	services := []*SettlementService{s.env.settlementSvc, s.env.newSettlementService(), s.env.newSettlementService()}
	const callers = 9
	results := make([]*models.Transaction, callers)
	errs := make([]error, callers)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = services[i%len(services)].Settle(s.ctx, task.ID, sub.ID)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		s.Require().NoError(errs[i])
		s.Require().NotNil(results[i])
		s.Equal(results[0].ID, results[i].ID)
	}
	s.Equal(1, s.env.ledger.callCount())
	s.Equal(int64(1), s.env.countTransactions(s.T(), task.ID))
	s.Len(s.env.notifier.ofType(notify.RewardSent), 1)

	txn, err := s.env.txns.FindBySettlementKey(task.ID, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionConfirmed, txn.Status)
	s.Equal(models.TaskStatusCompleted, s.env.taskStatus(s.T(), task.ID))
}

func (s *SettlementServiceTestSuite) TestConfirmedSettlementIsReturnedUnchanged() {
	task, sub := s.approvedTask(100)

	first, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.Require().NoError(err)

	again, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.Require().NoError(err)
	s.Equal(first.ID, again.ID)
	s.Equal(first.TxHash, again.TxHash)
	s.Equal(models.TransactionConfirmed, again.Status)
	s.Equal(1, s.env.ledger.callCount())
}

func (s *SettlementServiceTestSuite) TestMissingWalletFailsWithoutCallingLedger() {
	s.Require().NoError(s.env.db.Model(&models.User{}).Where("id = ?", s.h.child.ID).Update("wallet_address", "").Error)
	task, sub := s.approvedTask(100)

	txn, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.ErrorIs(err, ErrTransferFailed)
	s.Require().NotNil(txn)
	s.Equal(models.TransactionFailed, txn.Status)
	s.Contains(txn.FailureReason, "wallet")
	s.Zero(s.env.ledger.callCount())

	_, err = s.env.userSvc.SetWallet(s.h.child.ID, "0xkid-wallet")
	s.Require().NoError(err)

	confirmed, err := s.env.settlementSvc.RetryFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Equal(1, confirmed)
	s.Require().Equal(1, s.env.ledger.callCount())
	s.Equal("0xkid-wallet", s.env.ledger.requests[0].ToAddress)

	stored, err := s.env.txns.FindBySettlementKey(task.ID, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionConfirmed, stored.Status)
	s.Equal("0xkid-wallet", stored.ToAddress)
	s.Equal(2, stored.Attempts)

	confirmed, err = s.env.settlementSvc.RetryFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(confirmed)
}

func (s *SettlementServiceTestSuite) TestRetryFailedLeavesStillFailingRows() {
	task, sub := s.approvedTask(100)
	s.env.ledger.fail(errLedgerDown)

	_, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.ErrorIs(err, ErrTransferFailed)

	confirmed, err := s.env.settlementSvc.RetryFailed(s.ctx, 10)
	s.Require().NoError(err)
	s.Zero(confirmed)
	s.Equal(2, s.env.ledger.callCount())

	stored, err := s.env.txns.FindBySettlementKey(task.ID, sub.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionFailed, stored.Status)
	s.Equal(2, stored.Attempts)
}

func (s *SettlementServiceTestSuite) TestSettleRequiresApproval() {
	task := s.env.assignedTask(s.T(), s.h, 100)
	sub := s.env.submit(s.T(), s.h, task)

	_, err := s.env.settlementSvc.Settle(s.ctx, task.ID, sub.ID)
	s.ErrorIs(err, ErrNotApproved)

	_, err = s.env.settlementSvc.Settle(s.ctx, task.ID, 9999)
	s.ErrorIs(err, ErrSubmissionNotFound)

	_, err = s.env.settlementSvc.Settle(s.ctx, 9999, sub.ID)
	s.ErrorIs(err, ErrTaskNotFound)

	s.Zero(s.env.ledger.callCount())
	s.Zero(s.env.countTransactions(s.T(), task.ID))
}

func (s *SettlementServiceTestSuite) TestSettleLatest() {
	task, _ := s.approvedTask(100)

	_, err := s.env.settlementSvc.SettleLatest(s.ctx, s.h.child.ID, task.ID)
	s.ErrorIs(err, ErrParentRequired)

	other := s.env.newHousehold(s.T(), "Other")
	_, err = s.env.settlementSvc.SettleLatest(s.ctx, other.parent.ID, task.ID)
	s.ErrorIs(err, ErrTaskNotFound)

	txn, err := s.env.settlementSvc.SettleLatest(s.ctx, s.h.parent.ID, task.ID)
	s.Require().NoError(err)
	s.Equal(models.TransactionConfirmed, txn.Status)

	draft, err := s.env.taskSvc.CreateTask(s.ctx, s.h.parent.ID, CreateTaskInput{Title: "Fold laundry", RewardAmount: 20})
	s.Require().NoError(err)
	_, err = s.env.settlementSvc.SettleLatest(s.ctx, s.h.parent.ID, draft.ID)
	s.ErrorIs(err, ErrNotApproved)
}

func TestSettlementServiceTestSuite(t *testing.T) {
	suite.Run(t, new(SettlementServiceTestSuite))
}
