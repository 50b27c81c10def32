package tutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func IsIntegrationTest() bool {
	testType := os.Getenv("SWAPD_TEST")
	return strings.ToLower(testType) == "integration"
}

// OpenTestDB opens a throwaway sqlite database under the test's temp dir
// and runs the given migrations. Tests that need a real database call this
// behind an IsIntegrationTest gate.
func OpenTestDB(t *testing.T, models ...interface{}) *gorm.DB {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "swapd-test.db")
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(models...))

	return db
}
