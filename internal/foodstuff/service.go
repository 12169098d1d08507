package foodstuff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/text/cases"

	"github.com/campus-ops/campus-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetFoodstuff(ctx context.Context, id int64) (Foodstuff, error)
	FindByName(ctx context.Context, foldedName, storeType string) (Foodstuff, error)
	ListFoodstuffs(ctx context.Context, filter Filter) ([]Foodstuff, int, error)
	ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error)
	CountActivities(ctx context.Context, foodstuffID int64) (int64, error)
	ListAtOrBelow(ctx context.Context, threshold float64) ([]Foodstuff, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetFoodstuffForUpdate(ctx context.Context, id int64) (Foodstuff, error)
	InsertFoodstuff(ctx context.Context, f Foodstuff) (int64, error)
	UpdateStock(ctx context.Context, id int64, quantity, avgCost float64, at time.Time) error
	InsertActivity(ctx context.Context, a Activity) (int64, error)
	DeleteFoodstuff(ctx context.Context, id int64) error
}

// CookedFoodPort validates cooked-food name references on usage activities.
type CookedFoodPort interface {
	NameActive(ctx context.Context, id int64) (bool, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// DefaultLowStockThreshold applies when configuration leaves it unset.
const DefaultLowStockThreshold = 10

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	LowStockThreshold float64
}

// Service owns the stock ledger mutation rules.
type Service struct {
	repo       RepositoryPort
	cookedFood CookedFoodPort
	audit      AuditPort
	threshold  float64
}

// NewService builds Service.
func NewService(repo RepositoryPort, cookedFood CookedFoodPort, audit AuditPort, cfg ServiceConfig) *Service {
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = DefaultLowStockThreshold
	}
	return &Service{repo: repo, cookedFood: cookedFood, audit: audit, threshold: threshold}
}

var nameFolder = cases.Fold()

// FoldName normalises a foodstuff name for case-insensitive comparison.
func FoldName(name string) string {
	return nameFolder.String(name)
}

// Create registers a new foodstuff with zero average cost.
func (s *Service) Create(ctx context.Context, input CreateInput) (Foodstuff, error) {
	if input.Name == "" || input.Unit == "" {
		return Foodstuff{}, fmt.Errorf("%w: name and unit required", ErrValidation)
	}
	if input.InitialQuantity < 0 {
		return Foodstuff{}, fmt.Errorf("%w: initial quantity must be >= 0", ErrValidation)
	}
	if _, err := s.repo.FindByName(ctx, FoldName(input.Name), input.StoreType); err == nil {
		return Foodstuff{}, ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return Foodstuff{}, err
	}
	now := time.Now().UTC()
	created := Foodstuff{
		Name:            input.Name,
		Unit:            input.Unit,
		CurrentQuantity: input.InitialQuantity,
		StoreType:       input.StoreType,
		LastUpdateDate:  now,
		CreatedAt:       now,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertFoodstuff(ctx, created)
		if err != nil {
			return err
		}
		created.ID = id
		return nil
	})
	if err != nil {
		return Foodstuff{}, err
	}
	s.recordAudit(ctx, input.ActorID, "FOODSTUFF_CREATE", created.ID, map[string]any{"name": created.Name, "store_type": created.StoreType})
	return created, nil
}

// Get returns one foodstuff by id.
func (s *Service) Get(ctx context.Context, id int64) (Foodstuff, error) {
	return s.repo.GetFoodstuff(ctx, id)
}

// List returns foodstuffs matching the filter plus the unfiltered total.
func (s *Service) List(ctx context.Context, filter Filter) ([]Foodstuff, int, error) {
	return s.repo.ListFoodstuffs(ctx, filter)
}

// AddActivity posts a single ledger entry and returns the updated foodstuff
// together with the created activity.
func (s *Service) AddActivity(ctx context.Context, input ActivityInput) (Foodstuff, Activity, error) {
	activities, updated, err := s.post(ctx, []ActivityInput{input})
	if err != nil {
		return Foodstuff{}, Activity{}, err
	}
	return updated[input.FoodstuffID], activities[0], nil
}

// AddActivities posts several ledger entries in one transaction. Either every
// entry applies or none does; a failed stock check on any entry rolls back
// the whole batch.
func (s *Service) AddActivities(ctx context.Context, inputs []ActivityInput) ([]Activity, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one activity required", ErrValidation)
	}
	activities, _, err := s.post(ctx, inputs)
	return activities, err
}

func (s *Service) post(ctx context.Context, inputs []ActivityInput) ([]Activity, map[int64]Foodstuff, error) {
	for _, input := range inputs {
		if err := s.validateActivity(ctx, input); err != nil {
			return nil, nil, err
		}
	}
	now := time.Now().UTC()
	activities := make([]Activity, 0, len(inputs))
	updated := make(map[int64]Foodstuff, len(inputs))
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		for _, input := range inputs {
			f, err := tx.GetFoodstuffForUpdate(ctx, input.FoodstuffID)
			if err != nil {
				return err
			}
			newQty := f.CurrentQuantity + input.QuantityChanged
			if newQty < -1e-9 {
				return fmt.Errorf("%w: foodstuff %d has %.3f %s, change %.3f", ErrInsufficientStock, f.ID, f.CurrentQuantity, f.Unit, input.QuantityChanged)
			}
			if newQty < 0 {
				newQty = 0
			}
			newAvg := f.AverageCostPrice
			if input.Action == ActionPurchase && input.QuantityChanged > 0 && newQty > 0 {
				newAvg = (f.CurrentQuantity*f.AverageCostPrice + input.TotalCost) / newQty
			}
			activity := Activity{
				FoodstuffID:      f.ID,
				ActionType:       input.Action,
				QuantityChanged:  input.QuantityChanged,
				UnitCost:         input.UnitCost,
				TotalCost:        input.TotalCost,
				Reason:           input.Reason,
				DoneBy:           input.ActorID,
				CookedFoodNameID: input.CookedFoodNameID,
				RequisitionID:    input.RequisitionID,
				CreatedAt:        now,
			}
			id, err := tx.InsertActivity(ctx, activity)
			if err != nil {
				return err
			}
			activity.ID = id
			if err := tx.UpdateStock(ctx, f.ID, newQty, newAvg, now); err != nil {
				return err
			}
			f.CurrentQuantity = newQty
			f.AverageCostPrice = newAvg
			f.LastUpdateDate = now
			updated[f.ID] = f
			activities = append(activities, activity)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	for _, activity := range activities {
		s.recordAudit(ctx, activity.DoneBy, fmt.Sprintf("FOODSTUFF_%s", activity.ActionType), activity.FoodstuffID, map[string]any{
			"quantity_changed": activity.QuantityChanged,
			"reason":           activity.Reason,
		})
	}
	return activities, updated, nil
}

func (s *Service) validateActivity(ctx context.Context, input ActivityInput) error {
	if input.FoodstuffID == 0 {
		return fmt.Errorf("%w: foodstuff required", ErrValidation)
	}
	if !input.Action.Valid() {
		return fmt.Errorf("%w: unknown action type %q", ErrValidation, input.Action)
	}
	if input.QuantityChanged == 0 {
		return fmt.Errorf("%w: quantity change must be non zero", ErrValidation)
	}
	if input.Reason == "" {
		return fmt.Errorf("%w: reason required", ErrValidation)
	}
	switch input.Action {
	case ActionPurchase:
		if input.UnitCost <= 0 || input.TotalCost <= 0 {
			return fmt.Errorf("%w: purchase requires unit cost and total cost", ErrValidation)
		}
	case ActionUsage:
		if input.CookedFoodNameID == 0 {
			return fmt.Errorf("%w: usage requires a cooked food name", ErrValidation)
		}
		if s.cookedFood != nil {
			active, err := s.cookedFood.NameActive(ctx, input.CookedFoodNameID)
			if err != nil {
				return err
			}
			if !active {
				return fmt.Errorf("%w: cooked food name %d is not active", ErrValidation, input.CookedFoodNameID)
			}
		}
	}
	return nil
}

// ListActivities lists ledger entries matching the filter.
func (s *Service) ListActivities(ctx context.Context, filter ActivityFilter) ([]Activity, error) {
	return s.repo.ListActivities(ctx, filter)
}

// Delete removes a foodstuff that has no ledger history.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	count, err := s.repo.CountActivities(ctx, id)
	if err != nil {
		return err
	}
	if count > 0 {
		return ErrHasHistory
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteFoodstuff(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "FOODSTUFF_DELETE", id, nil)
	return nil
}

// StockAlerts flags every foodstuff at or below the low-stock threshold.
func (s *Service) StockAlerts(ctx context.Context) ([]StockAlert, error) {
	low, err := s.repo.ListAtOrBelow(ctx, s.threshold)
	if err != nil {
		return nil, err
	}
	alerts := make([]StockAlert, 0, len(low))
	for _, f := range low {
		level := AlertLow
		if f.CurrentQuantity <= 0 {
			level = AlertCritical
		}
		alerts = append(alerts, StockAlert{
			FoodstuffID:     f.ID,
			Name:            f.Name,
			Unit:            f.Unit,
			CurrentQuantity: f.CurrentQuantity,
			Threshold:       s.threshold,
			Level:           level,
		})
	}
	return alerts, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "foodstuff",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
