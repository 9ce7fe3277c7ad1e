package alert

import "time"

// Settings is a shop's effective alert configuration.
type Settings struct {
	LowStockThreshold int
	ExpiryWarningDays int
	ExpiryAlerts      bool
	LowStockAlerts    bool
}

// DefaultSettings applies when a shop has no override row (or the row
// cannot be read).
var DefaultSettings = Settings{
	LowStockThreshold: 5,
	ExpiryWarningDays: 7,
	ExpiryAlerts:      true,
	LowStockAlerts:    true,
}

// ExpiredItem is an inventory item whose expiry date is today or earlier.
type ExpiredItem struct {
	Name        string
	DaysExpired int // 0 means expired today
}

// NearExpiryItem is an item expiring within the warning window.
type NearExpiryItem struct {
	Name            string
	DaysUntilExpiry int // >= 1
	ExpiryDate      time.Time
}

// LowStockItem is an item at or below the low-stock threshold.
type LowStockItem struct {
	Name     string
	Quantity int
}

// Classification is the per-run, per-shop risk breakdown. It is transient:
// re-derived from the current snapshot on every run, never persisted.
//
// Membership in LowStock is independent of the expiry categories; one item
// may appear in both.
type Classification struct {
	Expired    []ExpiredItem
	NearExpiry []NearExpiryItem
	LowStock   []LowStockItem
}

func (c Classification) Empty() bool {
	return len(c.Expired) == 0 && len(c.NearExpiry) == 0 && len(c.LowStock) == 0
}

// RunStats is the terminal result of one scheduled run.
type RunStats struct {
	Shops        int // shops processed (including skipped ones)
	ShopsAlerted int // shops with at least one successful delivery
	ShopsFailed  int // shops aborted by an unexpected processing error
	AlertsSent   int // total successful deliveries across all shops
}
