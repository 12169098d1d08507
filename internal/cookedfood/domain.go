package cookedfood

import (
	"errors"
	"time"
)

// Name is a master-list entry for a dish. Usage ledger entries and
// requisitions reference names, batches record actual production.
type Name struct {
	ID        int64
	Name      string
	Active    bool
	CreatedAt time.Time
}

// Batch records one production run. PreparedQuantityKg is immutable after
// creation; sold and leftover are updated as the day progresses and their
// sum never exceeds the prepared quantity.
type Batch struct {
	ID                 int64
	CookedFoodNameID   int64
	PreparedQuantityKg float64
	SoldQuantityKg     float64
	LeftoverQuantityKg float64
	PreparationDate    time.Time
	PreparedBy         int64
	CreatedAt          time.Time
}

// PrepareInput describes a new batch.
type PrepareInput struct {
	CookedFoodNameID   int64
	PreparedQuantityKg float64
	PreparationDate    time.Time
	PreparedBy         int64
}

// QuantityInput carries the sold/leftover update for a batch. A nil field
// keeps the previously recorded value.
type QuantityInput struct {
	SoldQuantityKg     *float64
	LeftoverQuantityKg *float64
	ActorID            int64
}

// BatchFilter narrows batch listings.
type BatchFilter struct {
	CookedFoodNameID int64
	From             time.Time
	To               time.Time
	Limit            int
	Offset           int
}

var (
	// ErrNotFound indicates the name or batch does not exist.
	ErrNotFound = errors.New("cookedfood: not found")
	// ErrDuplicateName indicates a case-insensitive name collision.
	ErrDuplicateName = errors.New("cookedfood: name already exists")
	// ErrQuantityExceeded indicates sold + leftover would exceed prepared.
	ErrQuantityExceeded = errors.New("cookedfood: sold plus leftover exceeds prepared quantity")
	// ErrValidation indicates invalid input for the requested action.
	ErrValidation = errors.New("cookedfood: invalid input")
)
