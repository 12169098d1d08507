package requisition

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists requisitions and their items in PostgreSQL.
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
		return errors.New("requisition repository not initialised")
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

const headerColumns = `id, number, cooked_food_name_id, requested_by, approved_by, status, priority, required_date, rejection_reason, approved_at, fulfilled_at, created_at`

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanHeader(row pgx.Row) (Requisition, error) {
	var r Requisition
	var approvedBy *int64
	var status, priority string
	var rejectionReason *string
	err := row.Scan(&r.ID, &r.Number, &r.CookedFoodNameID, &r.RequestedBy, &approvedBy, &status, &priority,
		&r.RequiredDate, &rejectionReason, &r.ApprovedAt, &r.FulfilledAt, &r.CreatedAt)
	if err != nil {
		return Requisition{}, err
	}
	r.Status = Status(status)
	r.Priority = Priority(priority)
	if approvedBy != nil {
		r.ApprovedBy = *approvedBy
	}
	if rejectionReason != nil {
		r.RejectionReason = *rejectionReason
	}
	return r, nil
}

func loadItems(ctx context.Context, q querier, requisitionID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, requisition_id, foodstuff_id, requested_quantity, approved_quantity, fulfilled_quantity, unit, notes
FROM requisition_items WHERE requisition_id=$1 ORDER BY id ASC`, requisitionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.RequisitionID, &item.FoodstuffID, &item.RequestedQuantity,
			&item.ApprovedQuantity, &item.FulfilledQuantity, &item.Unit, &item.Notes); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

func get(ctx context.Context, q querier, id int64, forUpdate bool) (Requisition, error) {
	query := `SELECT ` + headerColumns + ` FROM requisitions WHERE id=$1`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	r, err := scanHeader(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Requisition{}, ErrNotFound
		}
		return Requisition{}, err
	}
	items, err := loadItems(ctx, q, id)
	if err != nil {
		return Requisition{}, err
	}
	r.Items = items
	return r, nil
}

// Get returns one requisition with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Requisition, error) {
	return get(ctx, r.pool, id, false)
}

// List returns a page of requisitions with items plus the total count.
func (r *Repository) List(ctx context.Context, filter Filter) ([]Requisition, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM requisitions
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR cooked_food_name_id = $2)`,
		string(filter.Status), filter.CookedFoodNameID).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+headerColumns+` FROM requisitions
WHERE ($1 = '' OR status = $1) AND ($2 = 0 OR cooked_food_name_id = $2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, string(filter.Status), filter.CookedFoodNameID, limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	requisitions := []Requisition{}
	for rows.Next() {
		req, err := scanHeader(rows)
		if err != nil {
			return nil, 0, err
		}
		requisitions = append(requisitions, req)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	for i := range requisitions {
		items, err := loadItems(ctx, r.pool, requisitions[i].ID)
		if err != nil {
			return nil, 0, err
		}
		requisitions[i].Items = items
	}
	return requisitions, total, nil
}

// ListOverdue returns pending or approved requisitions whose required date
// has passed.
func (r *Repository) ListOverdue(ctx context.Context, asOf time.Time) ([]Requisition, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+headerColumns+` FROM requisitions
WHERE status IN ('pending', 'approved') AND required_date IS NOT NULL AND required_date < $1
ORDER BY required_date ASC`, asOf)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	overdue := []Requisition{}
	for rows.Next() {
		req, err := scanHeader(rows)
		if err != nil {
			return nil, err
		}
		overdue = append(overdue, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return overdue, nil
}

func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Requisition, error) {
	return get(ctx, r.tx, id, true)
}

func (r *txRepository) Insert(ctx context.Context, req Requisition) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO requisitions (number, cooked_food_name_id, requested_by, status, priority, required_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		req.Number, req.CookedFoodNameID, req.RequestedBy, string(req.Status), string(req.Priority), nullTime(req.RequiredDate), req.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	if err := insertItems(ctx, r.tx, id, req.Items); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *txRepository) UpdateHeader(ctx context.Context, req Requisition) error {
	tag, err := r.tx.Exec(ctx, `UPDATE requisitions
SET cooked_food_name_id=$2, approved_by=$3, status=$4, priority=$5, required_date=$6, rejection_reason=$7, approved_at=$8, fulfilled_at=$9
WHERE id=$1`,
		req.ID, req.CookedFoodNameID, nullInt(req.ApprovedBy), string(req.Status), string(req.Priority),
		nullTime(req.RequiredDate), nullString(req.RejectionReason), req.ApprovedAt, req.FulfilledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) ReplaceItems(ctx context.Context, requisitionID int64, items []Item) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM requisition_items WHERE requisition_id=$1`, requisitionID); err != nil {
		return err
	}
	return insertItems(ctx, r.tx, requisitionID, items)
}

func (r *txRepository) UpdateItemQuantities(ctx context.Context, itemID int64, approved *float64, fulfilled float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE requisition_items SET approved_quantity=$2, fulfilled_quantity=$3 WHERE id=$1`,
		itemID, approved, fulfilled)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) Delete(ctx context.Context, id int64) error {
	if _, err := r.tx.Exec(ctx, `DELETE FROM requisition_items WHERE requisition_id=$1`, id); err != nil {
		return err
	}
	tag, err := r.tx.Exec(ctx, `DELETE FROM requisitions WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertItems(ctx context.Context, tx pgx.Tx, requisitionID int64, items []Item) error {
	for _, item := range items {
		_, err := tx.Exec(ctx, `INSERT INTO requisition_items (requisition_id, foodstuff_id, requested_quantity, approved_quantity, fulfilled_quantity, unit, notes)
VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			requisitionID, item.FoodstuffID, item.RequestedQuantity, item.ApprovedQuantity, item.FulfilledQuantity, item.Unit, item.Notes)
		if err != nil {
			return err
		}
	}
	return nil
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
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
