package reporting

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository runs the read-only aggregate queries behind the reports.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CountFoodstuffs returns the number of tracked foodstuffs.
func (r *Repository) CountFoodstuffs(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM foodstuffs`).Scan(&count)
	return count, err
}

// InventoryValue returns the sum of quantity times average cost.
func (r *Repository) InventoryValue(ctx context.Context) (float64, error) {
	var value float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(current_quantity * average_cost_price), 0) FROM foodstuffs`).Scan(&value)
	return value, err
}

// CountRequisitionsByStatus counts requisitions in one status.
func (r *Repository) CountRequisitionsByStatus(ctx context.Context, status string) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions WHERE status=$1`, status).Scan(&count)
	return count, err
}

// CountBatchesOn counts cooked-food batches prepared on the given day.
func (r *Repository) CountBatchesOn(ctx context.Context, day time.Time) (int64, error) {
	start := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())
	end := start.Add(24 * time.Hour)
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cooked_food_batches WHERE preparation_date >= $1 AND preparation_date < $2`, start, end).Scan(&count)
	return count, err
}

// CountActiveCookedFoods counts active master-list names.
func (r *Repository) CountActiveCookedFoods(ctx context.Context) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cooked_food_names WHERE active = true`).Scan(&count)
	return count, err
}

// ActivitySummary aggregates ledger entries of one action type per foodstuff
// inside the window.
func (r *Repository) ActivitySummary(ctx context.Context, action string, w Window) ([]ActivitySummaryRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT f.id, f.name, f.unit,
  COALESCE(SUM(ABS(a.quantity_changed)), 0),
  COALESCE(SUM(a.total_cost), 0),
  COUNT(a.id)
FROM foodstuff_activities a
JOIN foodstuffs f ON f.id = a.foodstuff_id
WHERE a.action_type = $1
  AND a.created_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
GROUP BY f.id, f.name, f.unit
ORDER BY f.name ASC`, action, nullTime(w.From), nullTime(w.To))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summary := []ActivitySummaryRow{}
	for rows.Next() {
		var row ActivitySummaryRow
		if err := rows.Scan(&row.FoodstuffID, &row.Name, &row.Unit, &row.TotalQuantity, &row.TotalCost, &row.Entries); err != nil {
			return nil, err
		}
		summary = append(summary, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return summary, nil
}

// StockLevels returns every foodstuff with its ledger value.
func (r *Repository) StockLevels(ctx context.Context) ([]StockLevelRow, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, unit, current_quantity, average_cost_price, current_quantity * average_cost_price
FROM foodstuffs ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	levels := []StockLevelRow{}
	for rows.Next() {
		var row StockLevelRow
		if err := rows.Scan(&row.FoodstuffID, &row.Name, &row.Unit, &row.CurrentQuantity, &row.AverageCostPrice, &row.Value); err != nil {
			return nil, err
		}
		levels = append(levels, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return levels, nil
}

// ActionTotal sums absolute moved quantity for one action type in the window.
func (r *Repository) ActionTotal(ctx context.Context, action string, w Window) (float64, error) {
	var total float64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(SUM(ABS(quantity_changed)), 0)
FROM foodstuff_activities
WHERE action_type = $1
  AND created_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')`,
		action, nullTime(w.From), nullTime(w.To)).Scan(&total)
	return total, err
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
