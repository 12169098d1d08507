package foodstuff

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists the stock ledger in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type txRepository struct {
	tx pgx.Tx
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("foodstuff repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

const foodstuffColumns = `id, name, unit, current_quantity, average_cost_price, store_type, last_update_date, created_at`

func scanFoodstuff(row pgx.Row) (Foodstuff, error) {
	var f Foodstuff
	err := row.Scan(&f.ID, &f.Name, &f.Unit, &f.CurrentQuantity, &f.AverageCostPrice, &f.StoreType, &f.LastUpdateDate, &f.CreatedAt)
	return f, err
}

// GetFoodstuff returns one foodstuff by id.
func (r *Repository) GetFoodstuff(ctx context.Context, id int64) (Foodstuff, error) {
	f, err := scanFoodstuff(r.pool.QueryRow(ctx, `SELECT `+foodstuffColumns+` FROM foodstuffs WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Foodstuff{}, ErrNotFound
		}
		return Foodstuff{}, err
	}
	return f, nil
}

// FindByName looks up a foodstuff by case-folded name within a store scope.
func (r *Repository) FindByName(ctx context.Context, foldedName, storeType string) (Foodstuff, error) {
	f, err := scanFoodstuff(r.pool.QueryRow(ctx, `SELECT `+foodstuffColumns+` FROM foodstuffs WHERE LOWER(name)=$1 AND store_type=$2`, foldedName, storeType))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Foodstuff{}, ErrNotFound
		}
		return Foodstuff{}, err
	}
	return f, nil
}

// ListFoodstuffs returns a page of foodstuffs plus the total matching count.
func (r *Repository) ListFoodstuffs(ctx context.Context, filter Filter) ([]Foodstuff, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM foodstuffs
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%') AND ($2 = '' OR store_type = $2)`, filter.Query, filter.StoreType).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+foodstuffColumns+` FROM foodstuffs
WHERE ($1 = '' OR name ILIKE '%' || $1 || '%') AND ($2 = '' OR store_type = $2)
ORDER BY name ASC
LIMIT $3 OFFSET $4`, filter.Query, filter.StoreType, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	items := []Foodstuff{}
	for rows.Next() {
		var f Foodstuff
		if err := rows.Scan(&f.ID, &f.Name, &f.Unit, &f.CurrentQuantity, &f.AverageCostPrice, &f.StoreType, &f.LastUpdateDate, &f.CreatedAt); err != nil {
			return nil, 0, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListActivities returns ledger entries matching the filter.
func (r *Repository) ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, foodstuff_id, action_type, quantity_changed, unit_cost, total_cost, reason, done_by, cooked_food_name_id, requisition_id, created_at
FROM foodstuff_activities
WHERE ($1 = 0 OR foodstuff_id = $1)
  AND ($2 = '' OR action_type = $2)
  AND created_at BETWEEN COALESCE($3, '-infinity') AND COALESCE($4, 'infinity')
ORDER BY created_at DESC, id DESC
LIMIT $5 OFFSET $6`, filter.FoodstuffID, string(filter.Action), nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectActivities(rows)
}

// CountActivities counts ledger entries referencing the foodstuff.
func (r *Repository) CountActivities(ctx context.Context, foodstuffID int64) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM foodstuff_activities WHERE foodstuff_id=$1`, foodstuffID).Scan(&count)
	return count, err
}

// ListAtOrBelow returns foodstuffs with quantity at or below the threshold.
func (r *Repository) ListAtOrBelow(ctx context.Context, threshold float64) ([]Foodstuff, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+foodstuffColumns+` FROM foodstuffs WHERE current_quantity <= $1 ORDER BY current_quantity ASC, name ASC`, threshold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Foodstuff{}
	for rows.Next() {
		var f Foodstuff
		if err := rows.Scan(&f.ID, &f.Name, &f.Unit, &f.CurrentQuantity, &f.AverageCostPrice, &f.StoreType, &f.LastUpdateDate, &f.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *txRepository) GetFoodstuffForUpdate(ctx context.Context, id int64) (Foodstuff, error) {
	f, err := scanFoodstuff(r.tx.QueryRow(ctx, `SELECT `+foodstuffColumns+` FROM foodstuffs WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Foodstuff{}, ErrNotFound
		}
		return Foodstuff{}, err
	}
	return f, nil
}

func (r *txRepository) InsertFoodstuff(ctx context.Context, f Foodstuff) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO foodstuffs (name, unit, current_quantity, average_cost_price, store_type, last_update_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`, f.Name, f.Unit, f.CurrentQuantity, f.AverageCostPrice, f.StoreType, f.LastUpdateDate, f.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) UpdateStock(ctx context.Context, id int64, quantity, avgCost float64, at time.Time) error {
	tag, err := r.tx.Exec(ctx, `UPDATE foodstuffs SET current_quantity=$2, average_cost_price=$3, last_update_date=$4 WHERE id=$1`, id, quantity, avgCost, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) InsertActivity(ctx context.Context, a Activity) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO foodstuff_activities (foodstuff_id, action_type, quantity_changed, unit_cost, total_cost, reason, done_by, cooked_food_name_id, requisition_id, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10) RETURNING id`,
		a.FoodstuffID, string(a.ActionType), a.QuantityChanged, a.UnitCost, a.TotalCost, a.Reason, nullInt(a.DoneBy), nullInt(a.CookedFoodNameID), nullInt(a.RequisitionID), a.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) DeleteFoodstuff(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM foodstuffs WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func collectActivities(rows pgx.Rows) ([]Activity, error) {
	activities := []Activity{}
	for rows.Next() {
		var a Activity
		var doneBy, cookedFood, requisition *int64
		var actionType string
		if err := rows.Scan(&a.ID, &a.FoodstuffID, &actionType, &a.QuantityChanged, &a.UnitCost, &a.TotalCost, &a.Reason, &doneBy, &cookedFood, &requisition, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ActionType = ActionType(actionType)
		a.DoneBy = derefInt(doneBy)
		a.CookedFoodNameID = derefInt(cookedFood)
		a.RequisitionID = derefInt(requisition)
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return activities, nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func derefInt(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
