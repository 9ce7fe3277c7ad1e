package storage

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

// Config configures storage.
type Config struct {
	Path        string
	BusyTimeout time.Duration // 0 means default
}

// Shop is one tenant shop. Owned by the management app; read-only here.
type Shop struct {
	ID   string
	Name string
}

// SettingsRecord is a shop's stored alert-settings override row.
// Nil fields mean "not overridden"; resolution against defaults happens in
// the alert package.
type SettingsRecord struct {
	ShopID            string
	LowStockThreshold *int
	ExpiryWarningDays *int
	ExpiryAlerts      *bool
	LowStockAlerts    *bool
}

// InventoryItem is one stock row of a shop's current snapshot.
//
// ExpiryDate is kept as the raw stored text ("" when absent): the classifier
// owns parsing so a malformed date degrades to a skipped expiry check instead
// of a failed read.
type InventoryItem struct {
	ID         string
	Name       string
	Quantity   int
	ExpiryDate string
}

// Subscriber is one registered notification endpoint of a shop.
type Subscriber struct {
	ID            int64
	ShopID        string
	ChatID        int64
	LastAlertSent *time.Time
	CreatedAt     time.Time
}
