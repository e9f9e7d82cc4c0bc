package db

// CreatePlan inserts a plan and returns its id.
func (db *DB) CreatePlan(p *Plan) (int64, error) {
	res, err := db.conn.Exec(`
		INSERT INTO plans (name, duration_minutes, price, is_active)
		VALUES (?, ?, ?, ?)
	`, p.Name, p.DurationMinutes, p.Price, p.IsActive)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetPlan retrieves a plan by id.
func (db *DB) GetPlan(id int64) (*Plan, error) {
	row := db.conn.QueryRow(`
		SELECT id, name, duration_minutes, price, is_active FROM plans WHERE id = ?
	`, id)

	p := &Plan{}
	if err := row.Scan(&p.ID, &p.Name, &p.DurationMinutes, &p.Price, &p.IsActive); err != nil {
		return nil, err
	}
	return p, nil
}

// ListActivePlans returns all active plans, cheapest first.
func (db *DB) ListActivePlans() ([]*Plan, error) {
	rows, err := db.conn.Query(`
		SELECT id, name, duration_minutes, price, is_active
		FROM plans WHERE is_active = 1 ORDER BY price ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var plans []*Plan
	for rows.Next() {
		p := &Plan{}
		if err := rows.Scan(&p.ID, &p.Name, &p.DurationMinutes, &p.Price, &p.IsActive); err != nil {
			return nil, err
		}
		plans = append(plans, p)
	}
	return plans, rows.Err()
}

// CountPlans returns the number of plans in the catalog.
func (db *DB) CountPlans() (int, error) {
	var n int
	err := db.conn.QueryRow(`SELECT COUNT(*) FROM plans`).Scan(&n)
	return n, err
}
