package reporting

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
)

type fakeReadModel struct {
	foodstuffs   int64
	value        float64
	pending      int64
	batches      int64
	activeNames  int64
	usageTotal   float64
	wastageTotal float64
	summaryCalls atomic.Int64
	levelCalls   atomic.Int64
}

func (f *fakeReadModel) CountFoodstuffs(ctx context.Context) (int64, error) { return f.foodstuffs, nil }
func (f *fakeReadModel) InventoryValue(ctx context.Context) (float64, error) {
	return f.value, nil
}
func (f *fakeReadModel) CountRequisitionsByStatus(ctx context.Context, status string) (int64, error) {
	return f.pending, nil
}
func (f *fakeReadModel) CountBatchesOn(ctx context.Context, day time.Time) (int64, error) {
	return f.batches, nil
}
func (f *fakeReadModel) CountActiveCookedFoods(ctx context.Context) (int64, error) {
	return f.activeNames, nil
}
func (f *fakeReadModel) ActivitySummary(ctx context.Context, action string, w Window) ([]ActivitySummaryRow, error) {
	f.summaryCalls.Add(1)
	return []ActivitySummaryRow{{FoodstuffID: 1, Name: "Rice", Unit: "kg", TotalQuantity: 50, TotalCost: 100, Entries: 1}}, nil
}
func (f *fakeReadModel) StockLevels(ctx context.Context) ([]StockLevelRow, error) {
	f.levelCalls.Add(1)
	return []StockLevelRow{{FoodstuffID: 1, Name: "Rice", Unit: "kg", CurrentQuantity: 100, AverageCostPrice: 4, Value: 400}}, nil
}
func (f *fakeReadModel) ActionTotal(ctx context.Context, action string, w Window) (float64, error) {
	if action == string(foodstuff.ActionWastage) {
		return f.wastageTotal, nil
	}
	return f.usageTotal, nil
}

type fakeAlerts struct{}

func (fakeAlerts) StockAlerts(ctx context.Context) ([]foodstuff.StockAlert, error) {
	return []foodstuff.StockAlert{{FoodstuffID: 2, Name: "Milk", Level: foodstuff.AlertCritical}}, nil
}

func newCacheForTest(t *testing.T) *Cache {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewCache(client, time.Minute)
}

func TestDashboardAssemblesCounters(t *testing.T) {
	repo := &fakeReadModel{foodstuffs: 12, value: 3456.5, pending: 3, batches: 2, activeNames: 9}
	svc := NewService(repo, fakeAlerts{}, newCacheForTest(t))

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), d.FoodstuffCount)
	require.InDelta(t, 3456.5, d.InventoryValue, 1e-9)
	require.Equal(t, int64(3), d.PendingRequisitions)
	require.Equal(t, int64(2), d.TodayBatches)
	require.Equal(t, int64(9), d.ActiveCookedFoods)
}

func TestReportsAreCachedUntilBump(t *testing.T) {
	repo := &fakeReadModel{}
	svc := NewService(repo, fakeAlerts{}, newCacheForTest(t))
	ctx := context.Background()

	_, err := svc.StockLevels(ctx)
	require.NoError(t, err)
	_, err = svc.StockLevels(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.levelCalls.Load())

	require.NoError(t, svc.Invalidate(ctx))

	_, err = svc.StockLevels(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.levelCalls.Load())
}

func TestWindowedReportsKeyedByRange(t *testing.T) {
	repo := &fakeReadModel{}
	svc := NewService(repo, fakeAlerts{}, newCacheForTest(t))
	ctx := context.Background()

	from := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	w1 := Window{From: from, To: from.Add(7 * 24 * time.Hour)}
	w2 := Window{From: from, To: from.Add(14 * 24 * time.Hour)}

	_, err := svc.Purchases(ctx, w1)
	require.NoError(t, err)
	_, err = svc.Purchases(ctx, w1)
	require.NoError(t, err)
	require.Equal(t, int64(1), repo.summaryCalls.Load())

	_, err = svc.Purchases(ctx, w2)
	require.NoError(t, err)
	require.Equal(t, int64(2), repo.summaryCalls.Load())
}

func TestUsageVsWastageZeroDenominator(t *testing.T) {
	repo := &fakeReadModel{}
	svc := NewService(repo, fakeAlerts{}, newCacheForTest(t))

	report, err := svc.UsageVsWastage(context.Background(), Window{})
	require.NoError(t, err)
	require.Zero(t, report.WastageRatio)
}

func TestUsageVsWastageRatio(t *testing.T) {
	repo := &fakeReadModel{usageTotal: 30, wastageTotal: 10}
	svc := NewService(repo, fakeAlerts{}, newCacheForTest(t))

	report, err := svc.UsageVsWastage(context.Background(), Window{})
	require.NoError(t, err)
	require.InDelta(t, 0.25, report.WastageRatio, 1e-9)
	require.InDelta(t, 30, report.UsageQuantity, 1e-9)
	require.InDelta(t, 10, report.WastageQuantity, 1e-9)
}

func TestReportsWorkWithoutCache(t *testing.T) {
	repo := &fakeReadModel{foodstuffs: 1}
	svc := NewService(repo, fakeAlerts{}, nil)

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(1), d.FoodstuffCount)

	alerts, err := svc.StockAlerts(context.Background())
	require.NoError(t, err)
	require.Len(t, alerts, 1)
}
