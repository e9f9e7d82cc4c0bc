package plans

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sokonet/sokonet-hotspot/internal/db"
)

func newTestCatalog(t *testing.T) (*Catalog, *db.DB) {
	t.Helper()

	database, err := db.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	return NewCatalog(database, zaptest.NewLogger(t)), database
}

func TestSeedIsIdempotent(t *testing.T) {
	catalog, _ := newTestCatalog(t)

	require.NoError(t, catalog.Seed())
	require.NoError(t, catalog.Seed())

	active, err := catalog.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 3)
}

func TestSeedSkipsExistingCatalog(t *testing.T) {
	catalog, database := newTestCatalog(t)

	_, err := database.CreatePlan(&db.Plan{
		Name: "Custom", DurationMinutes: 30, Price: 20, IsActive: true,
	})
	require.NoError(t, err)

	require.NoError(t, catalog.Seed())

	active, err := catalog.ListActive()
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Custom", active[0].Name)
}

func TestGetActive(t *testing.T) {
	catalog, database := newTestCatalog(t)
	require.NoError(t, catalog.Seed())

	plan, err := catalog.GetActive(1)
	require.NoError(t, err)
	require.Equal(t, "1 Hour", plan.Name)
	require.Equal(t, time.Hour, plan.Duration())

	_, err = catalog.GetActive(999)
	require.ErrorIs(t, err, ErrPlanNotFound)

	id, err := database.CreatePlan(&db.Plan{
		Name: "Retired", DurationMinutes: 10, Price: 5, IsActive: false,
	})
	require.NoError(t, err)

	_, err = catalog.GetActive(id)
	require.ErrorIs(t, err, ErrPlanNotFound)
}
