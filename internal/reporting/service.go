package reporting

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
)

// ReadModelPort abstracts the aggregate queries for service.
type ReadModelPort interface {
	CountFoodstuffs(ctx context.Context) (int64, error)
	InventoryValue(ctx context.Context) (float64, error)
	CountRequisitionsByStatus(ctx context.Context, status string) (int64, error)
	CountBatchesOn(ctx context.Context, day time.Time) (int64, error)
	CountActiveCookedFoods(ctx context.Context) (int64, error)
	ActivitySummary(ctx context.Context, action string, w Window) ([]ActivitySummaryRow, error)
	StockLevels(ctx context.Context) ([]StockLevelRow, error)
	ActionTotal(ctx context.Context, action string, w Window) (float64, error)
}

// StockAlertsPort delegates alert semantics to the stock ledger.
type StockAlertsPort interface {
	StockAlerts(ctx context.Context) ([]foodstuff.StockAlert, error)
}

// Service assembles the read model, caching assembled reports in Redis.
type Service struct {
	repo   ReadModelPort
	alerts StockAlertsPort
	cache  *Cache
}

// NewService builds Service. Cache may be nil, reports are then always
// computed from the database.
func NewService(repo ReadModelPort, alerts StockAlertsPort, cache *Cache) *Service {
	return &Service{repo: repo, alerts: alerts, cache: cache}
}

// Dashboard assembles the landing-page counters, fanning the independent
// queries out concurrently.
func (s *Service) Dashboard(ctx context.Context) (Dashboard, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "dashboard")
	if err != nil {
		return Dashboard{}, err
	}
	var dashboard Dashboard
	err = s.cache.FetchJSON(ctx, key, &dashboard, func(ctx context.Context) (interface{}, error) {
		var d Dashboard
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			d.FoodstuffCount, err = s.repo.CountFoodstuffs(ctx)
			return err
		})
		g.Go(func() (err error) {
			d.InventoryValue, err = s.repo.InventoryValue(ctx)
			return err
		})
		g.Go(func() (err error) {
			d.PendingRequisitions, err = s.repo.CountRequisitionsByStatus(ctx, "pending")
			return err
		})
		g.Go(func() (err error) {
			d.TodayBatches, err = s.repo.CountBatchesOn(ctx, time.Now().UTC())
			return err
		})
		g.Go(func() (err error) {
			d.ActiveCookedFoods, err = s.repo.CountActiveCookedFoods(ctx)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		return d, nil
	})
	return dashboard, err
}

// StockAlerts returns the ledger's current alert list. Alerts are never
// cached, stale alerts are worse than the extra query.
func (s *Service) StockAlerts(ctx context.Context) ([]foodstuff.StockAlert, error) {
	return s.alerts.StockAlerts(ctx)
}

// Purchases summarises purchase activity per foodstuff in the window.
func (s *Service) Purchases(ctx context.Context, w Window) ([]ActivitySummaryRow, error) {
	return s.activityReport(ctx, "purchases", string(foodstuff.ActionPurchase), w)
}

// Usage summarises usage activity per foodstuff in the window.
func (s *Service) Usage(ctx context.Context, w Window) ([]ActivitySummaryRow, error) {
	return s.activityReport(ctx, "usage", string(foodstuff.ActionUsage), w)
}

// Wastage summarises wastage activity per foodstuff in the window.
func (s *Service) Wastage(ctx context.Context, w Window) ([]ActivitySummaryRow, error) {
	return s.activityReport(ctx, "wastage", string(foodstuff.ActionWastage), w)
}

func (s *Service) activityReport(ctx context.Context, name, action string, w Window) ([]ActivitySummaryRow, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", name, windowToken(w))
	if err != nil {
		return nil, err
	}
	var rows []ActivitySummaryRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.repo.ActivitySummary(ctx, action, w)
	})
	return rows, err
}

// StockLevels returns every foodstuff with its current ledger value.
func (s *Service) StockLevels(ctx context.Context) ([]StockLevelRow, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "stock_levels")
	if err != nil {
		return nil, err
	}
	var rows []StockLevelRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (interface{}, error) {
		return s.repo.StockLevels(ctx)
	})
	return rows, err
}

// UsageVsWastage compares consumed against wasted quantities in the window.
// An empty window yields a zero ratio rather than a division error.
func (s *Service) UsageVsWastage(ctx context.Context, w Window) (UsageWastage, error) {
	key, err := s.cache.BuildKey(ctx, "reporting", "usage_vs_wastage", windowToken(w))
	if err != nil {
		return UsageWastage{}, err
	}
	var report UsageWastage
	err = s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (interface{}, error) {
		var usage, wastage float64
		g, ctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			usage, err = s.repo.ActionTotal(ctx, string(foodstuff.ActionUsage), w)
			return err
		})
		g.Go(func() (err error) {
			wastage, err = s.repo.ActionTotal(ctx, string(foodstuff.ActionWastage), w)
			return err
		})
		if err := g.Wait(); err != nil {
			return nil, err
		}
		out := UsageWastage{UsageQuantity: usage, WastageQuantity: wastage}
		if total := usage + wastage; total > 0 {
			out.WastageRatio = wastage / total
		}
		return out, nil
	})
	return report, err
}

// Invalidate bumps the cache version after a write elsewhere.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
