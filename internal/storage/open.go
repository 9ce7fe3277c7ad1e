package storage

import (
	"context"
	"time"

	logx "shelfbot/pkg/logx"
)

// Store is the persistence API used by the pipeline and the command router.
//
// All reads take the shop id explicitly; there is no ambient "current shop"
// state anywhere.
type Store interface {
	ListShops(ctx context.Context) ([]Shop, error)
	GetShop(ctx context.Context, id string) (Shop, error)

	// GetSettings returns ErrNotFound when the shop has no override row.
	GetSettings(ctx context.Context, shopID string) (SettingsRecord, error)

	ListInventory(ctx context.Context, shopID string) ([]InventoryItem, error)

	ListSubscribers(ctx context.Context, shopID string) ([]Subscriber, error)
	ShopIDsForChat(ctx context.Context, chatID int64) ([]string, error)
	// AddSubscriber is idempotent per (shop, chat).
	AddSubscriber(ctx context.Context, shopID string, chatID int64) (Subscriber, error)
	RemoveSubscriberByChat(ctx context.Context, shopID string, chatID int64) error
	TouchSubscriber(ctx context.Context, id int64, at time.Time) error
	DeleteSubscriber(ctx context.Context, id int64) error

	Close() error
}

// Open initializes the sqlite-backed store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	return openSQLite(cfg, log)
}
