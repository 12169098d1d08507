package cookedfood

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
)

type memoryRepo struct {
	names   map[int64]Name
	batches map[int64]Batch
	nextID  int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{names: make(map[int64]Name), batches: make(map[int64]Batch)}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetName(ctx context.Context, id int64) (Name, error) {
	n, ok := r.names[id]
	if !ok {
		return Name{}, ErrNotFound
	}
	return n, nil
}

func (r *memoryRepo) FindNameByName(ctx context.Context, foldedName string) (Name, error) {
	for _, n := range r.names {
		if foodstuff.FoldName(n.Name) == foldedName {
			return n, nil
		}
	}
	return Name{}, ErrNotFound
}

func (r *memoryRepo) ListNames(ctx context.Context, activeOnly bool) ([]Name, error) {
	out := []Name{}
	for _, n := range r.names {
		if activeOnly && !n.Active {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (r *memoryRepo) GetBatch(ctx context.Context, id int64) (Batch, error) {
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return b, nil
}

func (r *memoryRepo) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, int, error) {
	out := []Batch{}
	for _, b := range r.batches {
		if filter.CookedFoodNameID != 0 && b.CookedFoodNameID != filter.CookedFoodNameID {
			continue
		}
		out = append(out, b)
	}
	return out, len(out), nil
}

func (tx *memoryTx) InsertName(ctx context.Context, n Name) (int64, error) {
	tx.repo.nextID++
	n.ID = tx.repo.nextID
	tx.repo.names[n.ID] = n
	return n.ID, nil
}

func (tx *memoryTx) UpdateNameActive(ctx context.Context, id int64, active bool) error {
	n, ok := tx.repo.names[id]
	if !ok {
		return ErrNotFound
	}
	n.Active = active
	tx.repo.names[id] = n
	return nil
}

func (tx *memoryTx) GetBatchForUpdate(ctx context.Context, id int64) (Batch, error) {
	return tx.repo.GetBatch(ctx, id)
}

func (tx *memoryTx) InsertBatch(ctx context.Context, b Batch) (int64, error) {
	tx.repo.nextID++
	b.ID = tx.repo.nextID
	tx.repo.batches[b.ID] = b
	return b.ID, nil
}

func (tx *memoryTx) UpdateBatchQuantities(ctx context.Context, id int64, sold, leftover float64) error {
	b, ok := tx.repo.batches[id]
	if !ok {
		return ErrNotFound
	}
	b.SoldQuantityKg = sold
	b.LeftoverQuantityKg = leftover
	tx.repo.batches[id] = b
	return nil
}

func (tx *memoryTx) DeleteBatch(ctx context.Context, id int64) error {
	if _, ok := tx.repo.batches[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.batches, id)
	return nil
}

func ptr(v float64) *float64 { return &v }

func TestPrepareInitialisesQuantities(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	name, err := svc.CreateName(ctx, "Jollof Rice", 1)
	require.NoError(t, err)
	require.True(t, name.Active)

	batch, err := svc.Prepare(ctx, PrepareInput{CookedFoodNameID: name.ID, PreparedQuantityKg: 25, PreparedBy: 1})
	require.NoError(t, err)
	require.InDelta(t, 25, batch.PreparedQuantityKg, 1e-9)
	require.Zero(t, batch.SoldQuantityKg)
	require.InDelta(t, 25, batch.LeftoverQuantityKg, 1e-9)
}

func TestPrepareRejectsInactiveName(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	name, err := svc.CreateName(ctx, "Beans Porridge", 1)
	require.NoError(t, err)
	require.NoError(t, svc.SetNameActive(ctx, name.ID, false, 1))

	_, err = svc.Prepare(ctx, PrepareInput{CookedFoodNameID: name.ID, PreparedQuantityKg: 10})
	require.ErrorIs(t, err, ErrValidation)

	active, err := svc.NameActive(ctx, name.ID)
	require.NoError(t, err)
	require.False(t, active)
}

func TestRecordSaleOrLeftoverBounds(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	name, err := svc.CreateName(ctx, "Fried Rice", 1)
	require.NoError(t, err)
	batch, err := svc.Prepare(ctx, PrepareInput{CookedFoodNameID: name.ID, PreparedQuantityKg: 20})
	require.NoError(t, err)

	// Supplied sold, previous leftover still counts against prepared.
	_, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{SoldQuantityKg: ptr(5)})
	require.ErrorIs(t, err, ErrQuantityExceeded)

	updated, err := svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{SoldQuantityKg: ptr(5), LeftoverQuantityKg: ptr(12)})
	require.NoError(t, err)
	require.InDelta(t, 5, updated.SoldQuantityKg, 1e-9)
	require.InDelta(t, 12, updated.LeftoverQuantityKg, 1e-9)

	// Equality with prepared is accepted.
	updated, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{SoldQuantityKg: ptr(8)})
	require.NoError(t, err)
	require.InDelta(t, 8, updated.SoldQuantityKg, 1e-9)
	require.InDelta(t, 12, updated.LeftoverQuantityKg, 1e-9)

	_, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{LeftoverQuantityKg: ptr(13)})
	require.ErrorIs(t, err, ErrQuantityExceeded)

	_, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{SoldQuantityKg: ptr(-1)})
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{})
	require.ErrorIs(t, err, ErrValidation)
}

func TestCreateNameRejectsDuplicates(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	_, err := svc.CreateName(ctx, "Egusi Soup", 1)
	require.NoError(t, err)
	_, err = svc.CreateName(ctx, "EGUSI soup", 1)
	require.ErrorIs(t, err, ErrDuplicateName)
}

func TestNameActiveForUnknownName(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)

	active, err := svc.NameActive(context.Background(), 99)
	require.NoError(t, err)
	require.False(t, active)
}

func TestDeleteBatchIsUnconditional(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil)
	ctx := context.Background()

	name, err := svc.CreateName(ctx, "Moi Moi", 1)
	require.NoError(t, err)
	batch, err := svc.Prepare(ctx, PrepareInput{CookedFoodNameID: name.ID, PreparedQuantityKg: 6})
	require.NoError(t, err)
	_, err = svc.RecordSaleOrLeftover(ctx, batch.ID, QuantityInput{SoldQuantityKg: ptr(6), LeftoverQuantityKg: ptr(0)})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteBatch(ctx, batch.ID, 1))
	_, err = svc.GetBatch(ctx, batch.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
