package requisition

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campus-ops/campus-ops/internal/foodstuff"
	"github.com/campus-ops/campus-ops/internal/shared"
)

// Module is the approval/idempotency scope name for requisitions.
const Module = "requisition"

// RepositoryPort abstracts repository usage for service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Requisition, error)
	List(ctx context.Context, filter Filter) ([]Requisition, int, error)
}

// TxRepository exposes transactional operations used by service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Requisition, error)
	Insert(ctx context.Context, r Requisition) (int64, error)
	UpdateHeader(ctx context.Context, r Requisition) error
	ReplaceItems(ctx context.Context, requisitionID int64, items []Item) error
	UpdateItemQuantities(ctx context.Context, itemID int64, approved *float64, fulfilled float64) error
	Delete(ctx context.Context, id int64) error
}

// CookedFoodPort validates the cooked-food name a requisition targets.
type CookedFoodPort interface {
	NameActive(ctx context.Context, id int64) (bool, error)
}

// FoodstuffPort validates requested foodstuffs and supplies their units.
type FoodstuffPort interface {
	Get(ctx context.Context, id int64) (foodstuff.Foodstuff, error)
}

// StockLedgerPort posts fulfillment usage entries. AddActivities applies the
// whole batch in one transaction or not at all.
type StockLedgerPort interface {
	AddActivities(ctx context.Context, inputs []foodstuff.ActivityInput) ([]foodstuff.Activity, error)
}

// SequencePort allocates requisition numbers.
type SequencePort interface {
	Next(ctx context.Context, scope string) (int64, error)
}

// IdempotencyPort guards fulfillment against double processing.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// ApprovalPort records the approval trail.
type ApprovalPort interface {
	Record(ctx context.Context, log shared.ApprovalLog) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the requisition workflow rules.
type Service struct {
	repo        RepositoryPort
	cookedFood  CookedFoodPort
	foodstuffs  FoodstuffPort
	ledger      StockLedgerPort
	sequences   SequencePort
	idempotency IdempotencyPort
	approvals   ApprovalPort
	audit       AuditPort
	now         func() time.Time
}

// NewService builds Service.
func NewService(repo RepositoryPort, cookedFood CookedFoodPort, foodstuffs FoodstuffPort, ledger StockLedgerPort, sequences SequencePort, idempotency IdempotencyPort, approvals ApprovalPort, audit AuditPort) *Service {
	return &Service{
		repo:        repo,
		cookedFood:  cookedFood,
		foodstuffs:  foodstuffs,
		ledger:      ledger,
		sequences:   sequences,
		idempotency: idempotency,
		approvals:   approvals,
		audit:       audit,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Create registers a pending requisition and allocates its number from the
// per-year sequence.
func (s *Service) Create(ctx context.Context, input CreateInput) (Requisition, error) {
	items, err := s.buildItems(ctx, input.Items)
	if err != nil {
		return Requisition{}, err
	}
	if err := s.validateTarget(ctx, input.CookedFoodNameID); err != nil {
		return Requisition{}, err
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityNormal
	}
	if !priority.Valid() {
		return Requisition{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, priority)
	}
	now := s.now()
	year := now.Year()
	seq, err := s.sequences.Next(ctx, fmt.Sprintf("REQ-%d", year))
	if err != nil {
		return Requisition{}, err
	}
	created := Requisition{
		Number:           fmt.Sprintf("REQ-%d-%04d", year, seq),
		CookedFoodNameID: input.CookedFoodNameID,
		RequestedBy:      input.RequestedBy,
		Status:           StatusPending,
		Priority:         priority,
		RequiredDate:     input.RequiredDate,
		Items:            items,
		CreatedAt:        now,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, created)
		if err != nil {
			return err
		}
		created.ID = id
		return nil
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, created.ID, input.RequestedBy, shared.ApprovalSubmit, "")
	s.recordAudit(ctx, input.RequestedBy, "REQUISITION_CREATE", created.ID, map[string]any{"number": created.Number})
	return s.repo.Get(ctx, created.ID)
}

// Approve moves a pending requisition to approved. Items without an override
// in input.Quantities keep their requested quantity.
func (s *Service) Approve(ctx context.Context, id int64, input ApproveInput) (Requisition, error) {
	for itemID, qty := range input.Quantities {
		if qty <= 0 {
			return Requisition{}, fmt.Errorf("%w: approved quantity for item %d must be > 0", ErrValidation, itemID)
		}
	}
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return fmt.Errorf("%w: cannot approve a %s requisition", ErrInvalidTransition, r.Status)
		}
		for _, item := range r.Items {
			approved := item.RequestedQuantity
			if qty, ok := input.Quantities[item.ID]; ok {
				approved = qty
			}
			if err := tx.UpdateItemQuantities(ctx, item.ID, &approved, item.FulfilledQuantity); err != nil {
				return err
			}
		}
		r.Status = StatusApproved
		r.ApprovedBy = input.ActorID
		r.ApprovedAt = &now
		return tx.UpdateHeader(ctx, r)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, id, input.ActorID, shared.ApprovalApprove, input.Note)
	s.recordAudit(ctx, input.ActorID, "REQUISITION_APPROVE", id, nil)
	return s.repo.Get(ctx, id)
}

// Reject moves a pending requisition to rejected. A reason is mandatory and
// the deciding actor lands in the same approval fields Approve uses.
func (s *Service) Reject(ctx context.Context, id int64, actorID int64, reason string) (Requisition, error) {
	if reason == "" {
		return Requisition{}, fmt.Errorf("%w: rejection reason required", ErrValidation)
	}
	now := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return fmt.Errorf("%w: cannot reject a %s requisition", ErrInvalidTransition, r.Status)
		}
		r.Status = StatusRejected
		r.RejectionReason = reason
		r.ApprovedBy = actorID
		r.ApprovedAt = &now
		return tx.UpdateHeader(ctx, r)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, id, actorID, shared.ApprovalReject, reason)
	s.recordAudit(ctx, actorID, "REQUISITION_REJECT", id, map[string]any{"reason": reason})
	return s.repo.Get(ctx, id)
}

// Fulfill decrements stock for every approved item in one ledger transaction,
// then marks the requisition fulfilled. Items without an override in
// input.Quantities are issued at their approved quantity. Any item failing
// the stock check rolls back the whole batch and the requisition stays
// approved.
func (s *Service) Fulfill(ctx context.Context, id int64, input FulfillInput) (Requisition, error) {
	for itemID, qty := range input.Quantities {
		if qty <= 0 {
			return Requisition{}, fmt.Errorf("%w: fulfilled quantity for item %d must be > 0", ErrValidation, itemID)
		}
	}
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return Requisition{}, err
	}
	if r.Status != StatusApproved {
		return Requisition{}, fmt.Errorf("%w: cannot fulfill a %s requisition", ErrInvalidTransition, r.Status)
	}
	key := fmt.Sprintf("REQ-FULFILL:%s", r.Number)
	if err := s.idempotency.CheckAndInsert(ctx, key, Module); err != nil {
		return Requisition{}, err
	}
	quantities := make(map[int64]float64, len(r.Items))
	inputs := make([]foodstuff.ActivityInput, 0, len(r.Items))
	for _, item := range r.Items {
		qty := item.RequestedQuantity
		if item.ApprovedQuantity != nil {
			qty = *item.ApprovedQuantity
		}
		if override, ok := input.Quantities[item.ID]; ok {
			qty = override
		}
		quantities[item.ID] = qty
		inputs = append(inputs, foodstuff.ActivityInput{
			FoodstuffID:      item.FoodstuffID,
			Action:           foodstuff.ActionUsage,
			QuantityChanged:  -qty,
			Reason:           fmt.Sprintf("requisition %s", r.Number),
			ActorID:          input.ActorID,
			CookedFoodNameID: r.CookedFoodNameID,
			RequisitionID:    r.ID,
		})
	}
	if _, err := s.ledger.AddActivities(ctx, inputs); err != nil {
		_ = s.idempotency.Delete(ctx, key)
		return Requisition{}, err
	}
	now := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		for _, item := range current.Items {
			if err := tx.UpdateItemQuantities(ctx, item.ID, item.ApprovedQuantity, quantities[item.ID]); err != nil {
				return err
			}
		}
		current.Status = StatusFulfilled
		current.FulfilledAt = &now
		return tx.UpdateHeader(ctx, current)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordApproval(ctx, id, input.ActorID, shared.ApprovalFulfill, "")
	s.recordAudit(ctx, input.ActorID, "REQUISITION_FULFILL", id, map[string]any{"number": r.Number})
	return s.repo.Get(ctx, id)
}

// Update replaces the editable fields of a pending requisition.
func (s *Service) Update(ctx context.Context, id int64, input UpdateInput) (Requisition, error) {
	items, err := s.buildItems(ctx, input.Items)
	if err != nil {
		return Requisition{}, err
	}
	if err := s.validateTarget(ctx, input.CookedFoodNameID); err != nil {
		return Requisition{}, err
	}
	if input.Priority != "" && !input.Priority.Valid() {
		return Requisition{}, fmt.Errorf("%w: unknown priority %q", ErrValidation, input.Priority)
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status != StatusPending {
			return fmt.Errorf("%w: only pending requisitions can be edited", ErrInvalidTransition)
		}
		r.CookedFoodNameID = input.CookedFoodNameID
		if input.Priority != "" {
			r.Priority = input.Priority
		}
		if !input.RequiredDate.IsZero() {
			r.RequiredDate = input.RequiredDate
		}
		if err := tx.ReplaceItems(ctx, id, items); err != nil {
			return err
		}
		return tx.UpdateHeader(ctx, r)
	})
	if err != nil {
		return Requisition{}, err
	}
	s.recordAudit(ctx, input.ActorID, "REQUISITION_UPDATE", id, nil)
	return s.repo.Get(ctx, id)
}

// Delete removes a requisition unless it has been fulfilled.
func (s *Service) Delete(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		r, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if r.Status == StatusFulfilled {
			return ErrCannotDelete
		}
		return tx.Delete(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "REQUISITION_DELETE", id, nil)
	return nil
}

// Get returns one requisition with items.
func (s *Service) Get(ctx context.Context, id int64) (Requisition, error) {
	return s.repo.Get(ctx, id)
}

// List returns requisitions matching the filter plus the total count.
func (s *Service) List(ctx context.Context, filter Filter) ([]Requisition, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, 0, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) buildItems(ctx context.Context, inputs []ItemInput) ([]Item, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: at least one item required", ErrValidation)
	}
	items := make([]Item, 0, len(inputs))
	seen := make(map[int64]bool, len(inputs))
	for _, in := range inputs {
		if in.RequestedQuantity <= 0 {
			return nil, fmt.Errorf("%w: requested quantity must be > 0", ErrValidation)
		}
		if seen[in.FoodstuffID] {
			return nil, fmt.Errorf("%w: duplicate foodstuff %d", ErrValidation, in.FoodstuffID)
		}
		seen[in.FoodstuffID] = true
		f, err := s.foodstuffs.Get(ctx, in.FoodstuffID)
		if err != nil {
			if errors.Is(err, foodstuff.ErrNotFound) {
				return nil, fmt.Errorf("%w: foodstuff %d does not exist", ErrValidation, in.FoodstuffID)
			}
			return nil, err
		}
		items = append(items, Item{
			FoodstuffID:       in.FoodstuffID,
			RequestedQuantity: in.RequestedQuantity,
			Unit:              f.Unit,
			Notes:             in.Notes,
		})
	}
	return items, nil
}

func (s *Service) validateTarget(ctx context.Context, cookedFoodNameID int64) error {
	if cookedFoodNameID == 0 {
		return fmt.Errorf("%w: cooked food name required", ErrValidation)
	}
	active, err := s.cookedFood.NameActive(ctx, cookedFoodNameID)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: cooked food name %d is not active", ErrValidation, cookedFoodNameID)
	}
	return nil
}

func (s *Service) recordApproval(ctx context.Context, id int64, actorID int64, action shared.ApprovalAction, note string) {
	if s.approvals == nil {
		return
	}
	_ = s.approvals.Record(ctx, shared.ApprovalLog{
		Module:  Module,
		RefID:   shared.ApprovalRef(Module, id),
		ActorID: actorID,
		Action:  action,
		Note:    note,
	})
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   Module,
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
