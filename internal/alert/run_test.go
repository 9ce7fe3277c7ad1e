package alert

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"shelfbot/internal/storage"
	logx "shelfbot/pkg/logx"
)

func fastConfig() Config {
	return Config{
		SubscriberDelay: time.Microsecond,
		ShopDelay:       time.Microsecond,
		DashboardURL:    "https://shelfbot.example",
	}
}

func TestRunHappyPath(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.inventory["s1"] = []storage.InventoryItem{
		{Name: "Milk", Quantity: 2, ExpiryDate: dateOffset(1)},
	}
	st.subscribers["s1"] = testSubscribers("s1", 10, 20)
	gw := newFakeGateway()

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := RunStats{Shops: 1, ShopsAlerted: 1, AlertsSent: 2}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(gw.sent))
	}
	if !strings.Contains(gw.sent[0].text, "Milk") {
		t.Fatalf("digest missing item:\n%s", gw.sent[0].text)
	}
	// Same digest text to every subscriber of the shop.
	if gw.sent[0].text != gw.sent[1].text {
		t.Fatal("subscribers of one shop received different digests")
	}
}

func TestRunSkipsShopWithoutSubscribers(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.inventory["s1"] = []storage.InventoryItem{{Name: "Milk", Quantity: 0}}
	gw := newFakeGateway()

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := RunStats{Shops: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v (no failure, no alerts)", stats, want)
	}
	if len(gw.sent) != 0 {
		t.Fatal("no dispatch expected for a shop without subscribers")
	}
}

func TestRunSkipsWhenNothingToSend(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.inventory["s1"] = []storage.InventoryItem{
		{Name: "Salt", Quantity: 500, ExpiryDate: dateOffset(400)},
	}
	st.subscribers["s1"] = testSubscribers("s1", 10)
	gw := newFakeGateway()

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("healthy inventory must not alert, sent: %+v", gw.sent)
	}
	if stats.ShopsAlerted != 0 || stats.ShopsFailed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestRunListShopsFailureIsFatal(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shopsErr = errBoom
	p := NewPipeline(fastConfig(), st, newFakeGateway(), logx.Nop())

	if _, err := p.Run(context.Background()); !errors.Is(err, errBoom) {
		t.Fatalf("err = %v, want wrapped errBoom", err)
	}
}

func TestRunIsolatesShopFailures(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{
		{ID: "s1", Name: "Panics"},
		{ID: "s2", Name: "Read Error"},
		{ID: "s3", Name: "Healthy"},
	}
	st.panicShop = "s1"
	st.subscribers["s1"] = testSubscribers("s1", 10)
	st.invErr["s2"] = errBoom
	st.subscribers["s2"] = []storage.Subscriber{{ID: 50, ShopID: "s2", ChatID: 20}}
	st.inventory["s3"] = []storage.InventoryItem{{Name: "Milk", Quantity: 0}}
	st.subscribers["s3"] = []storage.Subscriber{{ID: 60, ShopID: "s3", ChatID: 30}}
	gw := newFakeGateway()

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	stats, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// The panicking shop is a failure; the transient read error is only a skip.
	want := RunStats{Shops: 3, ShopsAlerted: 1, ShopsFailed: 1, AlertsSent: 1}
	if stats != want {
		t.Fatalf("stats = %+v, want %+v", stats, want)
	}
	if gw.sentTo(30) != 1 {
		t.Fatal("healthy shop after failures did not alert")
	}
}

func TestRunRemovedSubscriberStaysGone(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.inventory["s1"] = []storage.InventoryItem{{Name: "Milk", Quantity: 0}}
	st.subscribers["s1"] = testSubscribers("s1", 10, 20)
	gw := newFakeGateway()
	gw.failErr[20] = &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	gw.failPerm[20] = true

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if !st.deleted[2] {
		t.Fatal("blocked subscriber not removed")
	}

	// Unblock the chat; without re-registration it must still get nothing.
	delete(gw.failErr, 20)
	if _, err := p.Run(context.Background()); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if gw.sentTo(20) != 0 {
		t.Fatal("removed subscriber received an alert without re-registration")
	}
	if gw.sentTo(10) != 2 {
		t.Fatalf("surviving subscriber sends = %d, want 2", gw.sentTo(10))
	}
}

func TestTestSend(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.subscribers["s1"] = testSubscribers("s1", 10, 20)
	gw := newFakeGateway()

	p := NewPipeline(fastConfig(), st, gw, logx.Nop())
	out, err := p.TestSend(context.Background(), "s1")
	if err != nil {
		t.Fatalf("TestSend: %v", err)
	}
	if out.Sent != 2 {
		t.Fatalf("outcome = %+v, want 2 sent", out)
	}
	if !strings.Contains(gw.sent[0].text, "Test alert") {
		t.Fatalf("unexpected test text: %q", gw.sent[0].text)
	}

	if _, err := p.TestSend(context.Background(), "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unknown shop", err)
	}
}

func TestSummaryCounts(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	st.shops = []storage.Shop{{ID: "s1", Name: "Main Street"}}
	st.inventory["s1"] = []storage.InventoryItem{
		{Name: "Milk", Quantity: 2, ExpiryDate: dateOffset(1)},
		{Name: "Old", Quantity: 100, ExpiryDate: dateOffset(-2)},
	}

	p := NewPipeline(fastConfig(), st, newFakeGateway(), logx.Nop())
	c, err := p.Summary(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if len(c.Expired) != 1 || len(c.NearExpiry) != 1 || len(c.LowStock) != 1 {
		t.Fatalf("summary = %+v", c)
	}
}
