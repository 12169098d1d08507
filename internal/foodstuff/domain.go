package foodstuff

import (
	"errors"
	"time"
)

// ActionType enumerates supported ledger activities. Values are stored
// verbatim and shared with the reporting layer, do not rename.
type ActionType string

const (
	// ActionPurchase increases stock and carries cost information.
	ActionPurchase ActionType = "purchase"
	// ActionUsage decreases stock for preparing a dish.
	ActionUsage ActionType = "usage"
	// ActionWastage decreases stock for spoilage or loss.
	ActionWastage ActionType = "wastage"
	// ActionCorrection fixes the counted quantity in either direction.
	ActionCorrection ActionType = "correction"
)

// Valid reports whether the action type is one of the known values.
func (a ActionType) Valid() bool {
	switch a {
	case ActionPurchase, ActionUsage, ActionWastage, ActionCorrection:
		return true
	}
	return false
}

// Foodstuff is a raw-material stock keeping unit tracked by quantity and
// moving-average unit cost.
type Foodstuff struct {
	ID               int64
	Name             string
	Unit             string
	CurrentQuantity  float64
	AverageCostPrice float64
	StoreType        string
	LastUpdateDate   time.Time
	CreatedAt        time.Time
}

// Activity is one immutable ledger entry. CurrentQuantity of the owning
// foodstuff always equals the running sum of QuantityChanged over its
// accepted activities.
type Activity struct {
	ID               int64
	FoodstuffID      int64
	ActionType       ActionType
	QuantityChanged  float64
	UnitCost         float64
	TotalCost        float64
	Reason           string
	DoneBy           int64
	CookedFoodNameID int64
	RequisitionID    int64
	CreatedAt        time.Time
}

// CreateInput describes a new foodstuff.
type CreateInput struct {
	Name            string
	Unit            string
	InitialQuantity float64
	StoreType       string
	ActorID         int64
}

// ActivityInput describes a requested ledger mutation. UnitCost and
// TotalCost are required for purchases, CookedFoodNameID for usage.
type ActivityInput struct {
	FoodstuffID      int64
	Action           ActionType
	QuantityChanged  float64
	Reason           string
	ActorID          int64
	UnitCost         float64
	TotalCost        float64
	CookedFoodNameID int64
	RequisitionID    int64
}

// Filter narrows foodstuff listings.
type Filter struct {
	Query     string
	StoreType string
	Limit     int
	Offset    int
}

// ActivityFilter narrows ledger listings.
type ActivityFilter struct {
	FoodstuffID int64
	Action      ActionType
	From        time.Time
	To          time.Time
	Limit       int
	Offset      int
}

// AlertLevel classifies stock alerts.
type AlertLevel string

const (
	// AlertCritical means the foodstuff is fully depleted.
	AlertCritical AlertLevel = "critical"
	// AlertLow means the quantity is at or below the configured threshold.
	AlertLow AlertLevel = "low"
)

// StockAlert flags a foodstuff at or below the low-stock threshold.
type StockAlert struct {
	FoodstuffID     int64
	Name            string
	Unit            string
	CurrentQuantity float64
	Threshold       float64
	Level           AlertLevel
}

var (
	// ErrNotFound indicates the foodstuff does not exist.
	ErrNotFound = errors.New("foodstuff: not found")
	// ErrDuplicateName indicates a case-insensitive name collision within the store scope.
	ErrDuplicateName = errors.New("foodstuff: name already exists in store")
	// ErrInsufficientStock triggered when an activity would drive quantity negative.
	ErrInsufficientStock = errors.New("foodstuff: insufficient stock")
	// ErrHasHistory prevents deleting a foodstuff that ledger entries reference.
	ErrHasHistory = errors.New("foodstuff: activity history exists")
	// ErrValidation indicates invalid input for the requested action.
	ErrValidation = errors.New("foodstuff: invalid input")
)
