package database

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrationsAreOrderedAndUnique(t *testing.T) {
	seen := map[int]bool{}
	for _, m := range Migrations {
		assert.False(t, seen[m.Version], "duplicate version %d", m.Version)
		seen[m.Version] = true
		assert.NotEmpty(t, m.Up)
		assert.NotEmpty(t, m.Down)
	}
	sorted := sortedMigrations()
	for i := 1; i < len(sorted); i++ {
		assert.Less(t, sorted[i-1].Version, sorted[i].Version)
	}
}

func TestRunMigrationsAppliesOnlyPending(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	sorted := sortedMigrations()
	last := sorted[len(sorted)-1]

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(last.Version - 1))
	mock.ExpectBegin()
	mock.ExpectExec("notify_row_change").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO schema_migrations").WithArgs(last.Version).WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, RunMigrations(db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackLast(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(4))
	mock.ExpectBegin()
	mock.ExpectExec("DROP TABLE IF EXISTS videos").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM schema_migrations").WithArgs(4).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	version, err := RollbackLast(db)
	require.NoError(t, err)
	assert.Equal(t, 4, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackLastNothingApplied(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT COALESCE").WillReturnRows(sqlmock.NewRows([]string{"v"}).AddRow(0))

	version, err := RollbackLast(db)
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
