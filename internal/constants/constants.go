package constants

import "time"

// Context keys
const (
	ContextKeyUserID   = "user_id"
	ContextKeyIdentity = "identity"
	ContextKeyTask     = "task"
)

// Pagination
const (
	MinPageSize     = 1
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// Invite codes
const (
	InviteCodeAlphabet    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	InviteCodeLength      = 8
	InviteCodeMaxAttempts = 5
	DefaultInviteMaxUses  = 5
	MaxInviteUses         = 50
	DefaultInviteTTL      = 7 * 24 * time.Hour
	MaxInviteTTL          = 30 * 24 * time.Hour
)

// Tasks
const (
	MinTaskPriority     = 1
	MaxTaskPriority     = 5
	DefaultTaskPriority = 3
	MinRating           = 1
	MaxRating           = 5
	MaxProofsPerSubmit  = 10
	MaxSuggestedTasks   = 10
	MaxTitleLength      = 255
)

// Users
const (
	MaxDisplayNameLength   = 255
	MaxWalletAddressLength = 128
)

// Settlement
const (
	DefaultLedgerTimeout  = 15 * time.Second
	SettlementRetryBatch  = 50
	SettlementStaleMargin = time.Minute
)
