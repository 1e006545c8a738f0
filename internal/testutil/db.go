// Package testutil holds fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/yukikurage/chore-reward-api/internal/database"
	"github.com/yukikurage/chore-reward-api/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbCounter atomic.Uint64

// NewDB opens a fresh in-memory SQLite database with all tables migrated.
// The pool is pinned to one connection so goroutines in concurrency tests
// share the same database and serialize like a single-writer store.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:chore_test_%d?mode=memory&cache=shared", dbCounter.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), database.GormConfig(logger.Silent))
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, db.AutoMigrate(database.Models()...))
	require.NoError(t, database.AddIndexes(db))

	t.Cleanup(func() {
		sqlDB.Close()
	})

	return db
}

// CreateUser inserts an active user with the given role.
func CreateUser(t *testing.T, db *gorm.DB, name string, role models.UserRole) *models.User {
	t.Helper()

	user := &models.User{
		LineUserID:    "line-" + name,
		DisplayName:   name,
		Role:          role,
		WalletAddress: "wallet-" + name,
		IsActive:      true,
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateFamily inserts a family founded by parent with an ACTIVE admin
// membership for the founder.
func CreateFamily(t *testing.T, db *gorm.DB, name string, parent *models.User) *models.Family {
	t.Helper()

	family := &models.Family{
		Name:       name,
		InviteCode: fmt.Sprintf("F%07d", dbCounter.Add(1)),
		CreatorID:  parent.ID,
	}
	require.NoError(t, db.Create(family).Error)
	AddMember(t, db, family, parent, models.MembershipActive)

	return family
}

// AddMember inserts a membership row for user in family with the given status.
func AddMember(t *testing.T, db *gorm.DB, family *models.Family, user *models.User, status models.MembershipStatus) *models.FamilyMembership {
	t.Helper()

	now := time.Now()
	member := &models.FamilyMembership{
		FamilyID: family.ID,
		UserID:   user.ID,
		Role:     user.Role,
		Status:   status,
		IsAdmin:  user.ID == family.CreatorID,
	}
	if member.Live() {
		userID := user.ID
		member.ActiveUserID = &userID
	}
	if status == models.MembershipActive {
		member.JoinedAt = &now
		user.FamilyID = &family.ID
		require.NoError(t, db.Model(user).Update("family_id", family.ID).Error)
	}
	require.NoError(t, db.Create(member).Error)
	return member
}
