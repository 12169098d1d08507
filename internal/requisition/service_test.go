package requisition

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/shared"
)

type memoryRepo struct {
	requisitions map[int64]Requisition
	nextID       int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{requisitions: make(map[int64]Requisition)}
}

func cloneRequisition(r Requisition) Requisition {
	out := r
	out.Items = append([]Item(nil), r.Items...)
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Requisition, error) {
	req, ok := r.requisitions[id]
	if !ok {
		return Requisition{}, ErrNotFound
	}
	return cloneRequisition(req), nil
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]Requisition, int, error) {
	out := []Requisition{}
	for _, req := range r.requisitions {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		out = append(out, cloneRequisition(req))
	}
	return out, len(out), nil
}

func (tx *memoryTx) GetForUpdate(ctx context.Context, id int64) (Requisition, error) {
	return tx.repo.Get(ctx, id)
}

func (tx *memoryTx) Insert(ctx context.Context, req Requisition) (int64, error) {
	tx.repo.nextID++
	req.ID = tx.repo.nextID
	for i := range req.Items {
		tx.repo.nextID++
		req.Items[i].ID = tx.repo.nextID
		req.Items[i].RequisitionID = req.ID
	}
	tx.repo.requisitions[req.ID] = req
	return req.ID, nil
}

func (tx *memoryTx) UpdateHeader(ctx context.Context, req Requisition) error {
	stored, ok := tx.repo.requisitions[req.ID]
	if !ok {
		return ErrNotFound
	}
	req.Items = stored.Items
	tx.repo.requisitions[req.ID] = req
	return nil
}

func (tx *memoryTx) ReplaceItems(ctx context.Context, requisitionID int64, items []Item) error {
	stored, ok := tx.repo.requisitions[requisitionID]
	if !ok {
		return ErrNotFound
	}
	stored.Items = nil
	for _, item := range items {
		tx.repo.nextID++
		item.ID = tx.repo.nextID
		item.RequisitionID = requisitionID
		stored.Items = append(stored.Items, item)
	}
	tx.repo.requisitions[requisitionID] = stored
	return nil
}

func (tx *memoryTx) UpdateItemQuantities(ctx context.Context, itemID int64, approved *float64, fulfilled float64) error {
	for id, req := range tx.repo.requisitions {
		for i := range req.Items {
			if req.Items[i].ID == itemID {
				req.Items[i].ApprovedQuantity = approved
				req.Items[i].FulfilledQuantity = fulfilled
				tx.repo.requisitions[id] = req
				return nil
			}
		}
	}
	return ErrNotFound
}

func (tx *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := tx.repo.requisitions[id]; !ok {
		return ErrNotFound
	}
	delete(tx.repo.requisitions, id)
	return nil
}

type stubCookedNames struct {
	active map[int64]bool
}

func (s *stubCookedNames) NameActive(ctx context.Context, id int64) (bool, error) {
	return s.active[id], nil
}

type stubFoodstuffs struct {
	items map[int64]foodstuff.Foodstuff
}

func (s *stubFoodstuffs) Get(ctx context.Context, id int64) (foodstuff.Foodstuff, error) {
	f, ok := s.items[id]
	if !ok {
		return foodstuff.Foodstuff{}, foodstuff.ErrNotFound
	}
	return f, nil
}

// stubLedger applies a batch all-or-nothing against an in-memory stock map,
// mirroring the single-transaction semantics of the real ledger.
type stubLedger struct {
	stock  map[int64]float64
	posted []foodstuff.ActivityInput
}

func (s *stubLedger) AddActivities(ctx context.Context, inputs []foodstuff.ActivityInput) ([]foodstuff.Activity, error) {
	next := make(map[int64]float64, len(s.stock))
	for id, qty := range s.stock {
		next[id] = qty
	}
	for _, in := range inputs {
		after := next[in.FoodstuffID] + in.QuantityChanged
		if after < 0 {
			return nil, fmt.Errorf("%w: foodstuff %d", foodstuff.ErrInsufficientStock, in.FoodstuffID)
		}
		next[in.FoodstuffID] = after
	}
	s.stock = next
	s.posted = append(s.posted, inputs...)
	activities := make([]foodstuff.Activity, len(inputs))
	return activities, nil
}

type stubSequences struct {
	counters map[string]int64
}

func (s *stubSequences) Next(ctx context.Context, scope string) (int64, error) {
	if s.counters == nil {
		s.counters = make(map[string]int64)
	}
	s.counters[scope]++
	return s.counters[scope], nil
}

type stubIdempotency struct {
	keys map[string]bool
}

func (s *stubIdempotency) CheckAndInsert(ctx context.Context, key, module string) error {
	if s.keys == nil {
		s.keys = make(map[string]bool)
	}
	if s.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[key] = true
	return nil
}

func (s *stubIdempotency) Delete(ctx context.Context, key string) error {
	delete(s.keys, key)
	return nil
}

type fixture struct {
	svc    *Service
	repo   *memoryRepo
	ledger *stubLedger
	idem   *stubIdempotency
}

func newFixture(stock map[int64]float64) *fixture {
	repo := newMemoryRepo()
	foods := map[int64]foodstuff.Foodstuff{}
	for id, qty := range stock {
		foods[id] = foodstuff.Foodstuff{ID: id, Name: fmt.Sprintf("food-%d", id), Unit: "kg", CurrentQuantity: qty}
	}
	ledger := &stubLedger{stock: stock}
	idem := &stubIdempotency{}
	svc := NewService(repo,
		&stubCookedNames{active: map[int64]bool{7: true}},
		&stubFoodstuffs{items: foods},
		ledger,
		&stubSequences{},
		idem,
		nil, nil)
	return &fixture{svc: svc, repo: repo, ledger: ledger, idem: idem}
}

func (f *fixture) create(t *testing.T, items ...ItemInput) Requisition {
	t.Helper()
	req, err := f.svc.Create(context.Background(), CreateInput{
		CookedFoodNameID: 7,
		RequestedBy:      1,
		Priority:         PriorityNormal,
		RequiredDate:     time.Now().Add(48 * time.Hour),
		Items:            items,
	})
	require.NoError(t, err)
	return req
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	f := newFixture(map[int64]float64{1: 100})

	first := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 5})
	second := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 3})

	year := time.Now().UTC().Year()
	require.Equal(t, fmt.Sprintf("REQ-%d-0001", year), first.Number)
	require.Equal(t, fmt.Sprintf("REQ-%d-0002", year), second.Number)
	require.Equal(t, StatusPending, first.Status)
	require.Equal(t, "kg", first.Items[0].Unit)
	require.Nil(t, first.Items[0].ApprovedQuantity)
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{CookedFoodNameID: 7, RequestedBy: 1})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{CookedFoodNameID: 7, RequestedBy: 1, Items: []ItemInput{{FoodstuffID: 99, RequestedQuantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{CookedFoodNameID: 99, RequestedBy: 1, Items: []ItemInput{{FoodstuffID: 1, RequestedQuantity: 1}}})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.Create(ctx, CreateInput{CookedFoodNameID: 7, RequestedBy: 1, Items: []ItemInput{
		{FoodstuffID: 1, RequestedQuantity: 1},
		{FoodstuffID: 1, RequestedQuantity: 2},
	}})
	require.ErrorIs(t, err, ErrValidation)
}

func TestApproveDefaultsMissingQuantities(t *testing.T) {
	f := newFixture(map[int64]float64{1: 100, 2: 100})
	ctx := context.Background()

	req := f.create(t,
		ItemInput{FoodstuffID: 1, RequestedQuantity: 10},
		ItemInput{FoodstuffID: 2, RequestedQuantity: 8},
	)

	approved, err := f.svc.Approve(ctx, req.ID, ApproveInput{
		ActorID:    2,
		Quantities: map[int64]float64{req.Items[1].ID: 6},
	})
	require.NoError(t, err)
	require.Equal(t, StatusApproved, approved.Status)
	require.Equal(t, int64(2), approved.ApprovedBy)
	require.NotNil(t, approved.ApprovedAt)
	require.InDelta(t, 10, *approved.Items[0].ApprovedQuantity, 1e-9)
	require.InDelta(t, 6, *approved.Items[1].ApprovedQuantity, 1e-9)

	_, err = f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRejectOnlyPending(t *testing.T) {
	f := newFixture(map[int64]float64{1: 100})
	ctx := context.Background()

	req := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 5})

	_, err := f.svc.Reject(ctx, req.ID, 2, "")
	require.ErrorIs(t, err, ErrValidation)

	rejected, err := f.svc.Reject(ctx, req.ID, 2, "not needed this week")
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, "not needed this week", rejected.RejectionReason)
	require.Equal(t, int64(2), rejected.ApprovedBy)
	require.NotNil(t, rejected.ApprovedAt)

	_, err = f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.ErrorIs(t, err, ErrInvalidTransition)
	_, err = f.svc.Reject(ctx, req.ID, 2, "again")
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFulfillDecrementsStock(t *testing.T) {
	f := newFixture(map[int64]float64{1: 50, 2: 30})
	ctx := context.Background()

	req := f.create(t,
		ItemInput{FoodstuffID: 1, RequestedQuantity: 10},
		ItemInput{FoodstuffID: 2, RequestedQuantity: 8},
	)
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{
		ActorID:    2,
		Quantities: map[int64]float64{req.Items[1].ID: 6},
	})
	require.NoError(t, err)

	fulfilled, err := f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
	require.NotNil(t, fulfilled.FulfilledAt)
	require.InDelta(t, 10, fulfilled.Items[0].FulfilledQuantity, 1e-9)
	require.InDelta(t, 6, fulfilled.Items[1].FulfilledQuantity, 1e-9)
	require.InDelta(t, 40, f.ledger.stock[1], 1e-9)
	require.InDelta(t, 24, f.ledger.stock[2], 1e-9)

	require.Len(t, f.ledger.posted, 2)
	for _, posted := range f.ledger.posted {
		require.Equal(t, foodstuff.ActionUsage, posted.Action)
		require.Equal(t, req.ID, posted.RequisitionID)
		require.Equal(t, int64(7), posted.CookedFoodNameID)
	}

	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestFulfillHonorsQuantityOverrides(t *testing.T) {
	f := newFixture(map[int64]float64{1: 50, 2: 30})
	ctx := context.Background()

	req := f.create(t,
		ItemInput{FoodstuffID: 1, RequestedQuantity: 10},
		ItemInput{FoodstuffID: 2, RequestedQuantity: 8},
	)
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)

	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{
		ActorID:    3,
		Quantities: map[int64]float64{req.Items[0].ID: -1},
	})
	require.ErrorIs(t, err, ErrValidation)

	// Only the first item is adjusted, the second ships at its approved
	// quantity.
	fulfilled, err := f.svc.Fulfill(ctx, req.ID, FulfillInput{
		ActorID:    3,
		Quantities: map[int64]float64{req.Items[0].ID: 7},
	})
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
	require.InDelta(t, 7, fulfilled.Items[0].FulfilledQuantity, 1e-9)
	require.InDelta(t, 8, fulfilled.Items[1].FulfilledQuantity, 1e-9)
	require.InDelta(t, 43, f.ledger.stock[1], 1e-9)
	require.InDelta(t, 22, f.ledger.stock[2], 1e-9)
}

func TestFulfillInsufficientStockKeepsApproved(t *testing.T) {
	f := newFixture(map[int64]float64{1: 10})
	ctx := context.Background()

	req := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 20})
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)

	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.ErrorIs(t, err, foodstuff.ErrInsufficientStock)

	current, err := f.svc.Get(ctx, req.ID)
	require.NoError(t, err)
	require.Equal(t, StatusApproved, current.Status)
	require.InDelta(t, 10, f.ledger.stock[1], 1e-9)
	require.Zero(t, current.Items[0].FulfilledQuantity)

	// The idempotency key is released, so fulfillment can be retried once
	// stock arrives.
	f.ledger.stock[1] = 25
	fulfilled, err := f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusFulfilled, fulfilled.Status)
	require.InDelta(t, 5, f.ledger.stock[1], 1e-9)
}

func TestFulfillPartialFailureRollsBackWholeBatch(t *testing.T) {
	f := newFixture(map[int64]float64{1: 50, 2: 3})
	ctx := context.Background()

	req := f.create(t,
		ItemInput{FoodstuffID: 1, RequestedQuantity: 10},
		ItemInput{FoodstuffID: 2, RequestedQuantity: 8},
	)
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)

	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.ErrorIs(t, err, foodstuff.ErrInsufficientStock)
	require.InDelta(t, 50, f.ledger.stock[1], 1e-9)
	require.InDelta(t, 3, f.ledger.stock[2], 1e-9)
}

func TestFulfillGuardedByIdempotencyKey(t *testing.T) {
	f := newFixture(map[int64]float64{1: 50})
	ctx := context.Background()

	req := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 10})
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)

	key := fmt.Sprintf("REQ-FULFILL:%s", req.Number)
	require.NoError(t, f.idem.CheckAndInsert(ctx, key, Module))

	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
	require.InDelta(t, 50, f.ledger.stock[1], 1e-9)
}

func TestUpdateOnlyPending(t *testing.T) {
	f := newFixture(map[int64]float64{1: 100, 2: 100})
	ctx := context.Background()

	req := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 5})

	updated, err := f.svc.Update(ctx, req.ID, UpdateInput{
		CookedFoodNameID: 7,
		Priority:         PriorityHigh,
		Items:            []ItemInput{{FoodstuffID: 2, RequestedQuantity: 4}},
		ActorID:          1,
	})
	require.NoError(t, err)
	require.Equal(t, PriorityHigh, updated.Priority)
	require.Len(t, updated.Items, 1)
	require.Equal(t, int64(2), updated.Items[0].FoodstuffID)

	_, err = f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)
	_, err = f.svc.Update(ctx, req.ID, UpdateInput{
		CookedFoodNameID: 7,
		Items:            []ItemInput{{FoodstuffID: 1, RequestedQuantity: 1}},
	})
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestDeleteFulfilledForbidden(t *testing.T) {
	f := newFixture(map[int64]float64{1: 50})
	ctx := context.Background()

	req := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 10})
	_, err := f.svc.Approve(ctx, req.ID, ApproveInput{ActorID: 2})
	require.NoError(t, err)
	_, err = f.svc.Fulfill(ctx, req.ID, FulfillInput{ActorID: 3})
	require.NoError(t, err)

	require.ErrorIs(t, f.svc.Delete(ctx, req.ID, 1), ErrCannotDelete)

	pending := f.create(t, ItemInput{FoodstuffID: 1, RequestedQuantity: 2})
	require.NoError(t, f.svc.Delete(ctx, pending.ID, 1))
	_, err = f.svc.Get(ctx, pending.ID)
	require.ErrorIs(t, err, ErrNotFound)
}
