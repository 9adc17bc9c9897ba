package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/budgetdb/internal/exhibit"
)

func openTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func countRows(t *testing.T, s *SQLiteStorage, table string) int {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func tableExists(t *testing.T, s *SQLiteStorage, name string) bool {
	t.Helper()
	var n int
	require.NoError(t, s.db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = ?", name).Scan(&n))
	return n > 0
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	first, err := Migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(AllMigrations), first)
	assert.GreaterOrEqual(t, first, 1)

	second, err := Migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, second)

	version, err := CurrentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), version)

	assert.Equal(t, len(exhibit.Types), countRows(t, s, "exhibit_types"))
	assert.Equal(t, len(exhibit.Organizations), countRows(t, s, "services_agencies"))
	assert.Equal(t, len(exhibit.BudgetCycles), countRows(t, s, "budget_cycles"))
	assert.Equal(t, len(AllMigrations), countRows(t, s, "schema_version"))

	for _, table := range []string{"budget_lines", "pdf_pages", "ingested_files", "budget_lines_fts",
		"pdf_pages_fts", "build_progress", "processed_files", "fy_columns", "budget_line_amounts",
		"pdf_extraction_issues", "data_sources", "budget_lines_wide"} {
		assert.True(t, tableExists(t, s, table), table)
	}
}

func TestCurrentVersion_MissingTable(t *testing.T) {
	s := openTestDB(t)
	version, err := CurrentVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestCurrentVersion_EmptyTable(t *testing.T) {
	s := openTestDB(t)
	_, err := s.db.Exec(schemaVersionSQL)
	require.NoError(t, err)

	version, err := CurrentVersion(context.Background(), s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func TestMigrate_CorruptVersionTable(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := s.db.Exec("CREATE TABLE schema_version (version TEXT, description TEXT, applied_at TIMESTAMP)")
	require.NoError(t, err)
	_, err = s.db.Exec("INSERT INTO schema_version (version, description) VALUES ('garbage', 'corrupt')")
	require.NoError(t, err)

	version, err := CurrentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, 0, version)

	applied, err := Migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(AllMigrations), applied)

	// re-applying over an existing schema must not duplicate seeds
	_, err = Migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, len(exhibit.Types), countRows(t, s, "exhibit_types"))
	assert.Equal(t, len(exhibit.BudgetCycles), countRows(t, s, "budget_cycles"))
}

func TestMigrate_FailureRollsBack(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	orig := AllMigrations
	t.Cleanup(func() { AllMigrations = orig })
	AllMigrations = append(append([]Migration{}, orig...), Migration{
		Version:     LatestVersion() + 1,
		Description: "broken",
		Up:          "CREATE TABLE half_done (id INTEGER); CREATE TABLE broken (;",
	})

	applied, err := Migrate(ctx, s.db)
	require.Error(t, err)
	assert.Equal(t, len(orig), applied)

	version, err := CurrentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, orig[len(orig)-1].Version, version)
	assert.False(t, tableExists(t, s, "half_done"))
}

func TestRollback(t *testing.T) {
	s := openTestDB(t)
	ctx := context.Background()

	_, err := Migrate(ctx, s.db)
	require.NoError(t, err)

	rolled, err := Rollback(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion(), rolled)

	version, err := CurrentVersion(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, LatestVersion()-1, version)
	assert.False(t, tableExists(t, s, "fy_columns"))

	applied, err := Migrate(ctx, s.db)
	require.NoError(t, err)
	assert.Equal(t, 1, applied)
	assert.True(t, tableExists(t, s, "fy_columns"))
}

func TestRollback_Empty(t *testing.T) {
	s := openTestDB(t)
	_, err := Rollback(context.Background(), s.db)
	assert.Error(t, err)
}
