package run

import (
	"testing"

	"github.com/hairizuan-noorazman/desktop-agent/logger"
	"github.com/hairizuan-noorazman/desktop-agent/testutil"
	"gorm.io/gorm"
)

// setupTestStore creates a test database and run store for testing.
func setupTestStore(t *testing.T) (*gorm.DB, *SQLStore) {
	db := testutil.SetupTestDB(t)
	testutil.AutoMigrate(t, db, &Run{}, &Turn{})

	log := logger.NewTestLogger()
	store := NewSQLStore(db, log)

	return db, store
}
