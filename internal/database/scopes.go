package database

import (
	"gorm.io/gorm"

	"github.com/yukikurage/chore-reward-api/internal/utils"
)

// Paginate applies a page window to a query.
func Paginate(params utils.PaginationParams) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Offset(params.Offset).Limit(params.Limit)
	}
}

// NewestFirst orders by column descending with id as the tie-break, so rows
// recorded in the same instant still have a stable "latest".
func NewestFirst(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column + " DESC").Order(idColumn(column) + " DESC")
	}
}

// OldestFirst is the chronological counterpart of NewestFirst.
func OldestFirst(column string) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Order(column + " ASC").Order(idColumn(column) + " ASC")
	}
}

// idColumn qualifies id with the table prefix of column, if any.
func idColumn(column string) string {
	for i := len(column) - 1; i >= 0; i-- {
		if column[i] == '.' {
			return column[:i+1] + "id"
		}
	}
	return "id"
}
