// Package plans provides the read-only plan catalog.
package plans

import (
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/sokonet/sokonet-hotspot/internal/db"
)

// ErrPlanNotFound is returned when a plan is missing or inactive.
var ErrPlanNotFound = errors.New("plan not found or inactive")

// Catalog looks up purchasable plans.
type Catalog struct {
	db     *db.DB
	logger *zap.Logger
}

// NewCatalog creates a plan catalog backed by the database.
func NewCatalog(database *db.DB, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{db: database, logger: logger}
}

// GetActive returns the plan if it exists and is active.
func (c *Catalog) GetActive(id int64) (*db.Plan, error) {
	plan, err := c.db.GetPlan(id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlanNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load plan %d: %w", id, err)
	}
	if !plan.IsActive {
		return nil, ErrPlanNotFound
	}
	return plan, nil
}

// ListActive returns all purchasable plans.
func (c *Catalog) ListActive() ([]*db.Plan, error) {
	return c.db.ListActivePlans()
}

// Seed inserts a default catalog when the plans table is empty.
func (c *Catalog) Seed() error {
	count, err := c.db.CountPlans()
	if err != nil {
		return fmt.Errorf("failed to count plans: %w", err)
	}
	if count > 0 {
		return nil
	}

	defaults := []*db.Plan{
		{Name: "1 Hour", DurationMinutes: 60, Price: 50, IsActive: true},
		{Name: "3 Hours", DurationMinutes: 180, Price: 100, IsActive: true},
		{Name: "24 Hours", DurationMinutes: 1440, Price: 300, IsActive: true},
	}
	for _, p := range defaults {
		if _, err := c.db.CreatePlan(p); err != nil {
			return fmt.Errorf("failed to seed plan %q: %w", p.Name, err)
		}
	}

	c.logger.Info("seeded default plan catalog", zap.Int("plans", len(defaults)))
	return nil
}
