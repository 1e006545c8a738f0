package database

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AddIndexes adds the composite indexes used by task history and listing
// queries. Uniqueness constraints live on the models themselves.
func AddIndexes(db *gorm.DB) error {
	indexes := []struct {
		table   string
		name    string
		columns string
	}{
		// Task listing: family scope, newest first
		{"tasks", "idx_tasks_family_created", "family_id, created_at"},
		// Expiry sweep
		{"tasks", "idx_tasks_status_due_date", "status, due_date"},

		// Latest submission per task
		{"task_submissions", "idx_task_submissions_task_time", "task_id, submitted_at"},

		// Authoritative decision per submission
		{"task_approvals", "idx_task_approvals_submission_time", "submission_id, decided_at"},

		// Membership lookups by family
		{"family_memberships", "idx_family_memberships_family_status", "family_id, status"},
	}

	migrator := db.Migrator()
	for _, idx := range indexes {
		if migrator.HasIndex(idx.table, idx.name) {
			logrus.WithField("index", idx.name).Debug("Index already exists, skipping")
			continue
		}

		sql := fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns)
		if err := db.Exec(sql).Error; err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}

		logrus.WithFields(logrus.Fields{
			"index": idx.name,
			"table": idx.table,
		}).Info("Created index")
	}

	return nil
}
