package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"github.com/yukikurage/chore-reward-api/internal/notify"
	"github.com/yukikurage/chore-reward-api/internal/testutil"
)

type FamilyServiceTestSuite struct {
	suite.Suite
	env *testEnv
	ctx context.Context
}

func (s *FamilyServiceTestSuite) SetupTest() {
	s.env = newTestEnv(s.T())
	s.ctx = context.Background()
}

func (s *FamilyServiceTestSuite) newUser(name string, role models.UserRole) *models.User {
	return testutil.CreateUser(s.T(), s.env.db, name, role)
}

func (s *FamilyServiceTestSuite) TestInviteRedeemApprove() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)

	overview, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Yamada")
	s.Require().NoError(err)
	s.Equal(models.MembershipActive, overview.Membership.Status)
	s.True(overview.Membership.IsAdmin)
	s.Equal(5, overview.Invite.MaxUses)
	s.Equal(overview.Family.InviteCode, overview.Invite.Code)

	member, err := s.env.familySvc.RedeemInvite(s.ctx, child.ID, overview.Invite.Code)
	s.Require().NoError(err)
	s.Equal(models.MembershipPending, member.Status)
	s.Equal(overview.Family.ID, member.FamilyID)

	requested := s.env.notifier.ofType(notify.MembershipRequested)
	s.Require().Len(requested, 1)
	s.Equal(parent.ID, requested[0].UserID)

	approved, err := s.env.familySvc.ApproveMembership(s.ctx, parent.ID, child.ID, true)
	s.Require().NoError(err)
	s.Equal(models.MembershipActive, approved.Status)
	s.NotNil(approved.JoinedAt)
	s.Len(s.env.notifier.ofType(notify.MembershipApproved), 1)

	invite, err := s.env.families.FindActiveInvite(overview.Family.ID)
	s.Require().NoError(err)
	s.Equal(1, invite.UsedCount)

	user, err := s.env.users.FindByID(child.ID)
	s.Require().NoError(err)
	s.Require().NotNil(user.FamilyID)
	s.Equal(overview.Family.ID, *user.FamilyID)
}

func (s *FamilyServiceTestSuite) TestCreateFamily_Guards() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)

	_, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "  ")
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.env.familySvc.CreateFamily(s.ctx, child.ID, "Kids Only")
	s.ErrorIs(err, ErrParentRequired)

	_, err = s.env.familySvc.CreateFamily(s.ctx, parent.ID, "First")
	s.Require().NoError(err)
	_, err = s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Second")
	s.ErrorIs(err, ErrAlreadyInFamily)
}

func (s *FamilyServiceTestSuite) TestRedeemInvite_ExhaustedCreatesNoMembership() {
	parent := s.newUser("parent", models.RoleParent)
	first := s.newUser("first", models.RoleChild)
	second := s.newUser("second", models.RoleChild)

	_, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Ito")
	s.Require().NoError(err)
	invite, err := s.env.familySvc.CreateInvite(s.ctx, parent.ID, CreateInviteInput{MaxUses: 1})
	s.Require().NoError(err)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, first.ID, invite.Code)
	s.Require().NoError(err)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, second.ID, invite.Code)
	s.ErrorIs(err, ErrInvalidOrExpiredInvite)

	_, err = s.env.families.FindLiveMembership(second.ID)
	s.Error(err)

	stored, err := s.env.families.FindActiveInvite(invite.FamilyID)
	s.Require().NoError(err)
	s.Equal(1, stored.UsedCount)
}

func (s *FamilyServiceTestSuite) TestRedeemInvite_ConcurrentLastSlot() {
	parent := s.newUser("parent", models.RoleParent)
	_, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Kato")
	s.Require().NoError(err)
	invite, err := s.env.familySvc.CreateInvite(s.ctx, parent.ID, CreateInviteInput{MaxUses: 1})
	s.Require().NoError(err)

	const redeemers = 6
	users := make([]*models.User, redeemers)
	for i := range users {
		users[i] = s.newUser("racer-"+string(rune('a'+i)), models.RoleChild)
	}

	var wg sync.WaitGroup
	results := make([]error, redeemers)
	for i := range users {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = s.env.familySvc.RedeemInvite(s.ctx, users[i].ID, invite.Code)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			s.ErrorIs(err, ErrInvalidOrExpiredInvite)
		}
	}
	s.Equal(1, succeeded)

	pending, err := s.env.families.ListMembers(invite.FamilyID, models.MembershipPending)
	s.Require().NoError(err)
	s.Len(pending, 1)

	stored, err := s.env.families.FindActiveInvite(invite.FamilyID)
	s.Require().NoError(err)
	s.Equal(1, stored.UsedCount)
}

func (s *FamilyServiceTestSuite) TestRedeemInvite_ExpiredAndUnknown() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Mori")
	s.Require().NoError(err)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, "ZZZZZZZZ")
	s.ErrorIs(err, ErrInvalidOrExpiredInvite)

	s.Require().NoError(s.env.db.Model(&models.InviteCode{}).
		Where("id = ?", overview.Invite.ID).
		Update("expires_at", time.Now().Add(-time.Minute)).Error)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, overview.Invite.Code)
	s.ErrorIs(err, ErrInvalidOrExpiredInvite)
}

func (s *FamilyServiceTestSuite) TestRedeemInvite_AcceptsLowercaseWithDashes() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Abe")
	s.Require().NoError(err)

	code := overview.Invite.Code
	typed := string(code[:4]) + "-" + string(code[4:])
	lower := []byte(typed)
	for i, ch := range lower {
		if ch >= 'A' && ch <= 'Z' {
			lower[i] = ch + ('a' - 'A')
		}
	}

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, string(lower))
	s.NoError(err)
}

func (s *FamilyServiceTestSuite) TestRedeemInvite_AlreadyInFamily() {
	h := s.env.newHousehold(s.T(), "Ota")
	other := s.newUser("other-parent", models.RoleParent)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, other.ID, "Other")
	s.Require().NoError(err)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, h.child.ID, overview.Invite.Code)
	s.ErrorIs(err, ErrAlreadyInFamily)

	stored, err := s.env.families.FindActiveInvite(overview.Family.ID)
	s.Require().NoError(err)
	s.Zero(stored.UsedCount)
}

func (s *FamilyServiceTestSuite) TestCreateInvite_RotatesActiveInvite() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Sasaki")
	s.Require().NoError(err)

	fresh, err := s.env.familySvc.CreateInvite(s.ctx, parent.ID, CreateInviteInput{MaxUses: 2, TTL: time.Hour})
	s.Require().NoError(err)
	s.NotEqual(overview.Invite.Code, fresh.Code)

	family, err := s.env.families.FindByID(overview.Family.ID)
	s.Require().NoError(err)
	s.Equal(fresh.Code, family.InviteCode)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, overview.Invite.Code)
	s.ErrorIs(err, ErrInvalidOrExpiredInvite)

	_, err = s.env.familySvc.CreateInvite(s.ctx, parent.ID, CreateInviteInput{MaxUses: 500})
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.env.familySvc.CreateInvite(s.ctx, child.ID, CreateInviteInput{})
	s.ErrorIs(err, ErrNotFamilyMember)
}

func (s *FamilyServiceTestSuite) TestApproveMembership_RejectReleasesLiveKey() {
	parent := s.newUser("parent", models.RoleParent)
	child := s.newUser("child", models.RoleChild)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, parent.ID, "Goto")
	s.Require().NoError(err)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, overview.Invite.Code)
	s.Require().NoError(err)

	rejected, err := s.env.familySvc.ApproveMembership(s.ctx, parent.ID, child.ID, false)
	s.Require().NoError(err)
	s.Equal(models.MembershipRemoved, rejected.Status)
	s.Len(s.env.notifier.ofType(notify.MembershipRejected), 1)

	_, err = s.env.familySvc.ApproveMembership(s.ctx, parent.ID, child.ID, true)
	s.ErrorIs(err, ErrInvalidTransition)

	_, err = s.env.familySvc.RedeemInvite(s.ctx, child.ID, overview.Invite.Code)
	s.NoError(err)
}

func (s *FamilyServiceTestSuite) TestApproveMembership_RequiresActiveParentOfSameFamily() {
	h := s.env.newHousehold(s.T(), "Ueda")
	outsider := s.newUser("outsider", models.RoleParent)
	applicant := s.newUser("applicant", models.RoleChild)
	overview, err := s.env.familySvc.CreateFamily(s.ctx, outsider.ID, "Elsewhere")
	s.Require().NoError(err)
	_, err = s.env.familySvc.RedeemInvite(s.ctx, applicant.ID, overview.Invite.Code)
	s.Require().NoError(err)

	_, err = s.env.familySvc.ApproveMembership(s.ctx, h.parent.ID, applicant.ID, true)
	s.ErrorIs(err, ErrMemberNotFound)

	_, err = s.env.familySvc.ApproveMembership(s.ctx, h.child.ID, h.child.ID, true)
	s.ErrorIs(err, ErrParentRequired)
}

func (s *FamilyServiceTestSuite) TestRemoveMember() {
	h := s.env.newHousehold(s.T(), "Endo")

	s.ErrorIs(s.env.familySvc.RemoveMember(s.ctx, h.parent.ID, h.parent.ID), ErrCannotRemoveYourself)
	s.ErrorIs(s.env.familySvc.RemoveMember(s.ctx, h.child.ID, h.parent.ID), ErrParentRequired)

	s.Require().NoError(s.env.familySvc.RemoveMember(s.ctx, h.parent.ID, h.child.ID))

	user, err := s.env.users.FindByID(h.child.ID)
	s.Require().NoError(err)
	s.Nil(user.FamilyID)

	s.ErrorIs(s.env.familySvc.RemoveMember(s.ctx, h.parent.ID, h.child.ID), ErrInvalidTransition)
}

func (s *FamilyServiceTestSuite) TestGetFamily_VisibilityByMembership() {
	h := s.env.newHousehold(s.T(), "Kondo")
	applicant := s.newUser("applicant", models.RoleChild)
	invite, err := s.env.familySvc.CreateInvite(s.ctx, h.parent.ID, CreateInviteInput{})
	s.Require().NoError(err)
	_, err = s.env.familySvc.RedeemInvite(s.ctx, applicant.ID, invite.Code)
	s.Require().NoError(err)

	pending, err := s.env.familySvc.GetFamily(s.ctx, applicant.ID)
	s.Require().NoError(err)
	s.Equal(h.family.ID, pending.Family.ID)
	s.Empty(pending.Members)
	s.Nil(pending.Invite)

	child, err := s.env.familySvc.GetFamily(s.ctx, h.child.ID)
	s.Require().NoError(err)
	s.Len(child.Members, 3)
	s.Nil(child.Invite)

	parent, err := s.env.familySvc.GetFamily(s.ctx, h.parent.ID)
	s.Require().NoError(err)
	s.Require().NotNil(parent.Invite)
	s.Equal(invite.Code, parent.Invite.Code)

	loner := s.newUser("loner", models.RoleParent)
	_, err = s.env.familySvc.GetFamily(s.ctx, loner.ID)
	s.ErrorIs(err, ErrFamilyNotFound)
}

func TestFamilyServiceTestSuite(t *testing.T) {
	suite.Run(t, new(FamilyServiceTestSuite))
}
