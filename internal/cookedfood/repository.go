package cookedfood

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists cooked-food names and batches in PostgreSQL.
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
		return errors.New("cookedfood repository not initialised")
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

const batchColumns = `id, cooked_food_name_id, prepared_quantity_kg, sold_quantity_kg, leftover_quantity_kg, preparation_date, prepared_by, created_at`

func scanBatch(row pgx.Row) (Batch, error) {
	var b Batch
	err := row.Scan(&b.ID, &b.CookedFoodNameID, &b.PreparedQuantityKg, &b.SoldQuantityKg, &b.LeftoverQuantityKg, &b.PreparationDate, &b.PreparedBy, &b.CreatedAt)
	return b, err
}

// GetName returns one master-list entry by id.
func (r *Repository) GetName(ctx context.Context, id int64) (Name, error) {
	var n Name
	err := r.pool.QueryRow(ctx, `SELECT id, name, active, created_at FROM cooked_food_names WHERE id=$1`, id).
		Scan(&n.ID, &n.Name, &n.Active, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Name{}, ErrNotFound
		}
		return Name{}, err
	}
	return n, nil
}

// FindNameByName looks up a master-list entry by case-folded name.
func (r *Repository) FindNameByName(ctx context.Context, foldedName string) (Name, error) {
	var n Name
	err := r.pool.QueryRow(ctx, `SELECT id, name, active, created_at FROM cooked_food_names WHERE LOWER(name)=$1`, foldedName).
		Scan(&n.ID, &n.Name, &n.Active, &n.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Name{}, ErrNotFound
		}
		return Name{}, err
	}
	return n, nil
}

// ListNames returns the master list ordered by name.
func (r *Repository) ListNames(ctx context.Context, activeOnly bool) ([]Name, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, name, active, created_at FROM cooked_food_names
WHERE ($1 = false OR active = true)
ORDER BY name ASC`, activeOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	names := []Name{}
	for rows.Next() {
		var n Name
		if err := rows.Scan(&n.ID, &n.Name, &n.Active, &n.CreatedAt); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return names, nil
}

// GetBatch returns one batch by id.
func (r *Repository) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.pool.QueryRow(ctx, `SELECT `+batchColumns+` FROM cooked_food_batches WHERE id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

// ListBatches returns a page of batches plus the total matching count.
func (r *Repository) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cooked_food_batches
WHERE ($1 = 0 OR cooked_food_name_id = $1)
  AND preparation_date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')`,
		filter.CookedFoodNameID, nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT `+batchColumns+` FROM cooked_food_batches
WHERE ($1 = 0 OR cooked_food_name_id = $1)
  AND preparation_date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY preparation_date DESC, id DESC
LIMIT $4 OFFSET $5`, filter.CookedFoodNameID, nullTime(filter.From), nullTime(filter.To), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	batches := []Batch{}
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.CookedFoodNameID, &b.PreparedQuantityKg, &b.SoldQuantityKg, &b.LeftoverQuantityKg, &b.PreparationDate, &b.PreparedBy, &b.CreatedAt); err != nil {
			return nil, 0, err
		}
		batches = append(batches, b)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return batches, total, nil
}

func (r *txRepository) InsertName(ctx context.Context, n Name) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cooked_food_names (name, active, created_at) VALUES ($1,$2,$3) RETURNING id`,
		n.Name, n.Active, n.CreatedAt).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateName
		}
		return 0, err
	}
	return id, nil
}

func (r *txRepository) UpdateNameActive(ctx context.Context, id int64, active bool) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cooked_food_names SET active=$2 WHERE id=$1`, id, active)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	b, err := scanBatch(r.tx.QueryRow(ctx, `SELECT `+batchColumns+` FROM cooked_food_batches WHERE id=$1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrNotFound
		}
		return Batch{}, err
	}
	return b, nil
}

func (r *txRepository) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO cooked_food_batches (cooked_food_name_id, prepared_quantity_kg, sold_quantity_kg, leftover_quantity_kg, preparation_date, prepared_by, created_at)
VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		b.CookedFoodNameID, b.PreparedQuantityKg, b.SoldQuantityKg, b.LeftoverQuantityKg, b.PreparationDate, b.PreparedBy, b.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) UpdateBatchQuantities(ctx context.Context, id int64, sold, leftover float64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE cooked_food_batches SET sold_quantity_kg=$2, leftover_quantity_kg=$3 WHERE id=$1`, id, sold, leftover)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *txRepository) DeleteBatch(ctx context.Context, id int64) error {
	tag, err := r.tx.Exec(ctx, `DELETE FROM cooked_food_batches WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
