package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIDColumn(t *testing.T) {
	assert.Equal(t, "id", idColumn("submitted_at"))
	assert.Equal(t, "tasks.id", idColumn("tasks.created_at"))
}
