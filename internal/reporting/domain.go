package reporting

import "time"

// Dashboard aggregates the landing-page counters.
type Dashboard struct {
	FoodstuffCount      int64   `json:"foodstuff_count"`
	InventoryValue      float64 `json:"inventory_value"`
	PendingRequisitions int64   `json:"pending_requisitions"`
	TodayBatches        int64   `json:"today_batches"`
	ActiveCookedFoods   int64   `json:"active_cooked_foods"`
}

// Window bounds a time-filtered report. A zero bound is open.
type Window struct {
	From time.Time
	To   time.Time
}

// ActivitySummaryRow aggregates ledger entries of one action type per
// foodstuff inside a window.
type ActivitySummaryRow struct {
	FoodstuffID   int64   `json:"foodstuff_id"`
	Name          string  `json:"name"`
	Unit          string  `json:"unit"`
	TotalQuantity float64 `json:"total_quantity"`
	TotalCost     float64 `json:"total_cost"`
	Entries       int64   `json:"entries"`
}

// StockLevelRow is the current state of one foodstuff with its ledger value.
type StockLevelRow struct {
	FoodstuffID      int64   `json:"foodstuff_id"`
	Name             string  `json:"name"`
	Unit             string  `json:"unit"`
	CurrentQuantity  float64 `json:"current_quantity"`
	AverageCostPrice float64 `json:"average_cost_price"`
	Value            float64 `json:"value"`
}

// UsageWastage compares consumed against wasted quantities in a window.
// WastageRatio is wastage over usage plus wastage, zero when nothing moved.
type UsageWastage struct {
	UsageQuantity   float64 `json:"usage_quantity"`
	WastageQuantity float64 `json:"wastage_quantity"`
	WastageRatio    float64 `json:"wastage_ratio"`
}
