package cookedfood

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/shared"
)

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetName(ctx context.Context, id int64) (Name, error)
	FindNameByName(ctx context.Context, foldedName string) (Name, error)
	ListNames(ctx context.Context, activeOnly bool) ([]Name, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	InsertName(ctx context.Context, n Name) (int64, error)
	UpdateNameActive(ctx context.Context, id int64, active bool) error
	GetBatchForUpdate(ctx context.Context, id int64) (Batch, error)
	InsertBatch(ctx context.Context, b Batch) (int64, error)
	UpdateBatchQuantities(ctx context.Context, id int64, sold, leftover float64) error
	DeleteBatch(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the cooked-food name master list and batch tracking rules.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// CreateName registers a dish on the master list.
func (s *Service) CreateName(ctx context.Context, name string, actorID int64) (Name, error) {
	if name == "" {
		return Name{}, fmt.Errorf("%w: name required", ErrValidation)
	}
	if _, err := s.repo.FindNameByName(ctx, foodstuff.FoldName(name)); err == nil {
		return Name{}, ErrDuplicateName
	} else if !errors.Is(err, ErrNotFound) {
		return Name{}, err
	}
	created := Name{Name: name, Active: true, CreatedAt: time.Now().UTC()}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertName(ctx, created)
		if err != nil {
			return err
		}
		created.ID = id
		return nil
	})
	if err != nil {
		return Name{}, err
	}
	s.recordAudit(ctx, actorID, "COOKEDFOOD_NAME_CREATE", created.ID, map[string]any{"name": created.Name})
	return created, nil
}

// ListNames returns the master list, optionally restricted to active names.
func (s *Service) ListNames(ctx context.Context, activeOnly bool) ([]Name, error) {
	return s.repo.ListNames(ctx, activeOnly)
}

// SetNameActive toggles whether a name may be referenced by new activity.
func (s *Service) SetNameActive(ctx context.Context, id int64, active bool, actorID int64) error {
	if _, err := s.repo.GetName(ctx, id); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.UpdateNameActive(ctx, id, active)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "COOKEDFOOD_NAME_TOGGLE", id, map[string]any{"active": active})
	return nil
}

// NameActive reports whether the name exists and is active. It satisfies the
// validation port the stock ledger uses for usage activities.
func (s *Service) NameActive(ctx context.Context, id int64) (bool, error) {
	n, err := s.repo.GetName(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return n.Active, nil
}

// Prepare records a new batch. Leftover starts equal to prepared and sold
// starts at zero.
func (s *Service) Prepare(ctx context.Context, input PrepareInput) (Batch, error) {
	if input.PreparedQuantityKg <= 0 {
		return Batch{}, fmt.Errorf("%w: prepared quantity must be > 0", ErrValidation)
	}
	name, err := s.repo.GetName(ctx, input.CookedFoodNameID)
	if err != nil {
		return Batch{}, err
	}
	if !name.Active {
		return Batch{}, fmt.Errorf("%w: cooked food name %d is not active", ErrValidation, name.ID)
	}
	date := input.PreparationDate
	if date.IsZero() {
		date = time.Now().UTC()
	}
	created := Batch{
		CookedFoodNameID:   input.CookedFoodNameID,
		PreparedQuantityKg: input.PreparedQuantityKg,
		SoldQuantityKg:     0,
		LeftoverQuantityKg: input.PreparedQuantityKg,
		PreparationDate:    date,
		PreparedBy:         input.PreparedBy,
		CreatedAt:          time.Now().UTC(),
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBatch(ctx, created)
		if err != nil {
			return err
		}
		created.ID = id
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, input.PreparedBy, "COOKEDFOOD_PREPARE", created.ID, map[string]any{
		"cooked_food_name_id": created.CookedFoodNameID,
		"prepared_kg":         created.PreparedQuantityKg,
	})
	return created, nil
}

// RecordSaleOrLeftover updates the sold/leftover quantities of a batch. A nil
// field keeps the previous value; the sum may equal but never exceed the
// prepared quantity.
func (s *Service) RecordSaleOrLeftover(ctx context.Context, batchID int64, input QuantityInput) (Batch, error) {
	if input.SoldQuantityKg == nil && input.LeftoverQuantityKg == nil {
		return Batch{}, fmt.Errorf("%w: nothing to update", ErrValidation)
	}
	var updated Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		b, err := tx.GetBatchForUpdate(ctx, batchID)
		if err != nil {
			return err
		}
		sold := b.SoldQuantityKg
		if input.SoldQuantityKg != nil {
			sold = *input.SoldQuantityKg
		}
		leftover := b.LeftoverQuantityKg
		if input.LeftoverQuantityKg != nil {
			leftover = *input.LeftoverQuantityKg
		}
		if sold < 0 || leftover < 0 {
			return fmt.Errorf("%w: quantities must be >= 0", ErrValidation)
		}
		if sold+leftover > b.PreparedQuantityKg+1e-9 {
			return fmt.Errorf("%w: %.3f sold + %.3f leftover > %.3f prepared", ErrQuantityExceeded, sold, leftover, b.PreparedQuantityKg)
		}
		if err := tx.UpdateBatchQuantities(ctx, batchID, sold, leftover); err != nil {
			return err
		}
		b.SoldQuantityKg = sold
		b.LeftoverQuantityKg = leftover
		updated = b
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	s.recordAudit(ctx, input.ActorID, "COOKEDFOOD_QUANTITIES", batchID, map[string]any{
		"sold_kg":     updated.SoldQuantityKg,
		"leftover_kg": updated.LeftoverQuantityKg,
	})
	return updated, nil
}

// GetBatch returns one batch by id.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches returns batches matching the filter plus the total count.
func (s *Service) ListBatches(ctx context.Context, filter BatchFilter) ([]Batch, int, error) {
	return s.repo.ListBatches(ctx, filter)
}

// DeleteBatch removes a batch. Batches carry no downstream references so the
// delete is unconditional.
func (s *Service) DeleteBatch(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.DeleteBatch(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "COOKEDFOOD_BATCH_DELETE", id, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "cookedfood",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
