package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shelfbot/internal/storage"
	"shelfbot/internal/transport"
)

// fakeStore is an in-memory storage.Store with injectable failures.
type fakeStore struct {
	mu sync.Mutex

	shops       []storage.Shop
	settings    map[string]storage.SettingsRecord
	inventory   map[string][]storage.InventoryItem
	subscribers map[string][]storage.Subscriber

	shopsErr  error
	invErr    map[string]error
	subsErr   map[string]error
	panicShop string // ListInventory panics for this shop id

	touched map[int64]time.Time
	deleted map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		settings:    map[string]storage.SettingsRecord{},
		inventory:   map[string][]storage.InventoryItem{},
		subscribers: map[string][]storage.Subscriber{},
		invErr:      map[string]error{},
		subsErr:     map[string]error{},
		touched:     map[int64]time.Time{},
		deleted:     map[int64]bool{},
	}
}

func (f *fakeStore) ListShops(ctx context.Context) ([]storage.Shop, error) {
	if f.shopsErr != nil {
		return nil, f.shopsErr
	}
	return f.shops, nil
}

func (f *fakeStore) GetShop(ctx context.Context, id string) (storage.Shop, error) {
	for _, s := range f.shops {
		if s.ID == id {
			return s, nil
		}
	}
	return storage.Shop{}, storage.ErrNotFound
}

func (f *fakeStore) GetSettings(ctx context.Context, shopID string) (storage.SettingsRecord, error) {
	rec, ok := f.settings[shopID]
	if !ok {
		return storage.SettingsRecord{}, storage.ErrNotFound
	}
	return rec, nil
}

func (f *fakeStore) ListInventory(ctx context.Context, shopID string) ([]storage.InventoryItem, error) {
	if f.panicShop == shopID {
		panic("corrupt snapshot for " + shopID)
	}
	if err := f.invErr[shopID]; err != nil {
		return nil, err
	}
	return f.inventory[shopID], nil
}

func (f *fakeStore) ListSubscribers(ctx context.Context, shopID string) ([]storage.Subscriber, error) {
	if err := f.subsErr[shopID]; err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []storage.Subscriber
	for _, s := range f.subscribers[shopID] {
		if !f.deleted[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeStore) ShopIDsForChat(ctx context.Context, chatID int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for shopID, subs := range f.subscribers {
		for _, s := range subs {
			if s.ChatID == chatID && !f.deleted[s.ID] {
				out = append(out, shopID)
			}
		}
	}
	return out, nil
}

func (f *fakeStore) AddSubscriber(ctx context.Context, shopID string, chatID int64) (storage.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers[shopID] {
		if s.ChatID == chatID && !f.deleted[s.ID] {
			return s, nil
		}
	}
	sub := storage.Subscriber{
		ID:        int64(len(f.subscribers[shopID])*100 + 1),
		ShopID:    shopID,
		ChatID:    chatID,
		CreatedAt: time.Now(),
	}
	f.subscribers[shopID] = append(f.subscribers[shopID], sub)
	return sub, nil
}

func (f *fakeStore) RemoveSubscriberByChat(ctx context.Context, shopID string, chatID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.subscribers[shopID] {
		if s.ChatID == chatID && !f.deleted[s.ID] {
			f.deleted[s.ID] = true
			return nil
		}
	}
	return storage.ErrNotFound
}

func (f *fakeStore) TouchSubscriber(ctx context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id] = at
	return nil
}

func (f *fakeStore) DeleteSubscriber(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleted[id] {
		return storage.ErrNotFound
	}
	f.deleted[id] = true
	return nil
}

func (f *fakeStore) Close() error { return nil }

// fakeGateway records sends and fails configured chats.
type fakeGateway struct {
	mu   sync.Mutex
	sent []fakeSend

	failErr  map[int64]error // chatID -> error returned
	failPerm map[int64]bool  // chatID -> mark error permanent
}

type fakeSend struct {
	chatID int64
	text   string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{failErr: map[int64]error{}, failPerm: map[int64]bool{}}
}

func (g *fakeGateway) Send(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.SendResult, error) {
	if err := g.failErr[to.ChatID]; err != nil {
		return transport.SendResult{PermanentFailure: g.failPerm[to.ChatID]}, err
	}
	g.mu.Lock()
	g.sent = append(g.sent, fakeSend{chatID: to.ChatID, text: text})
	g.mu.Unlock()
	return transport.SendResult{MessageID: len(g.sent)}, nil
}

func (g *fakeGateway) sentTo(chatID int64) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, s := range g.sent {
		if s.chatID == chatID {
			n++
		}
	}
	return n
}

// istToday mirrors the pipeline's reference-day normalization for tests.
func istToday() time.Time {
	loc := time.FixedZone("IST", 5*3600+1800)
	return StartOfDay(time.Now(), loc)
}

// dateOffset renders today+days as a stored expiry date string.
func dateOffset(days int) string {
	return istToday().AddDate(0, 0, days).Format("2006-01-02")
}

var errBoom = fmt.Errorf("boom")
