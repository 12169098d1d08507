package requisition

import (
	"errors"
	"time"
)

// Status enumerates requisition workflow states. Values are stored verbatim
// and shared with the reporting layer, do not rename.
type Status string

const (
	// StatusPending is the initial state of every requisition.
	StatusPending Status = "pending"
	// StatusApproved means an approver accepted the requisition.
	StatusApproved Status = "approved"
	// StatusRejected is terminal, with a mandatory reason.
	StatusRejected Status = "rejected"
	// StatusFulfilled is terminal, stock has been decremented.
	StatusFulfilled Status = "fulfilled"
)

// Valid reports whether the status is one of the known values.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusApproved, StatusRejected, StatusFulfilled:
		return true
	}
	return false
}

// Priority ranks how urgently the kitchen needs the stock.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Valid reports whether the priority is one of the known values.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// Item is one requested foodstuff line. ApprovedQuantity stays nil until an
// approver sets it; FulfilledQuantity is written when stock is decremented.
type Item struct {
	ID                int64
	RequisitionID     int64
	FoodstuffID       int64
	RequestedQuantity float64
	ApprovedQuantity  *float64
	FulfilledQuantity float64
	Unit              string
	Notes             string
}

// Requisition is a kitchen stock request moving through
// pending → approved → fulfilled, or pending → rejected.
type Requisition struct {
	ID               int64
	Number           string
	CookedFoodNameID int64
	RequestedBy      int64
	ApprovedBy       int64
	Status           Status
	Priority         Priority
	RequiredDate     time.Time
	Items            []Item
	RejectionReason  string
	ApprovedAt       *time.Time
	FulfilledAt      *time.Time
	CreatedAt        time.Time
}

// ItemInput describes one requested line.
type ItemInput struct {
	FoodstuffID       int64
	RequestedQuantity float64
	Notes             string
}

// CreateInput describes a new requisition.
type CreateInput struct {
	CookedFoodNameID int64
	RequestedBy      int64
	Priority         Priority
	RequiredDate     time.Time
	Items            []ItemInput
}

// UpdateInput describes changes to a pending requisition.
type UpdateInput struct {
	CookedFoodNameID int64
	Priority         Priority
	RequiredDate     time.Time
	Items            []ItemInput
	ActorID          int64
}

// ApproveInput carries approver overrides. Quantities maps item id to the
// approved quantity; items absent from the map default to their requested
// quantity.
type ApproveInput struct {
	ActorID    int64
	Quantities map[int64]float64
	Note       string
}

// FulfillInput carries storekeeper overrides. Quantities maps item id to the
// quantity actually issued; items absent from the map default to their
// approved quantity.
type FulfillInput struct {
	ActorID    int64
	Quantities map[int64]float64
}

// Filter narrows requisition listings.
type Filter struct {
	Status           Status
	CookedFoodNameID int64
	Limit            int
	Offset           int
}

var (
	// ErrNotFound indicates the requisition does not exist.
	ErrNotFound = errors.New("requisition: not found")
	// ErrValidation indicates invalid input for the requested action.
	ErrValidation = errors.New("requisition: invalid input")
	// ErrInvalidTransition indicates the operation is not allowed in the current status.
	ErrInvalidTransition = errors.New("requisition: invalid status transition")
	// ErrCannotDelete prevents deleting a fulfilled requisition.
	ErrCannotDelete = errors.New("requisition: fulfilled requisitions cannot be deleted")
)
