package alert

import (
	"context"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"shelfbot/internal/storage"
	logx "shelfbot/pkg/logx"
)

func testSubscribers(shopID string, chatIDs ...int64) []storage.Subscriber {
	subs := make([]storage.Subscriber, 0, len(chatIDs))
	for i, id := range chatIDs {
		subs = append(subs, storage.Subscriber{ID: int64(i + 1), ShopID: shopID, ChatID: id})
	}
	return subs
}

func TestDispatchSuccessTouchesSubscriber(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	gw := newFakeGateway()
	d := NewDispatcher(st, gw, time.Microsecond, logx.Nop())
	stamp := time.Date(2026, 8, 29, 9, 0, 0, 0, time.UTC)
	d.now = func() time.Time { return stamp }

	out := d.Dispatch(context.Background(), testSubscribers("s1", 10, 20), "hello")
	if out.Sent != 2 || out.Failed != 0 || out.Removed != 0 {
		t.Fatalf("outcome = %+v, want 2 sent", out)
	}
	for _, id := range []int64{1, 2} {
		if got, ok := st.touched[id]; !ok || !got.Equal(stamp) {
			t.Fatalf("subscriber %d not stamped: %v", id, st.touched)
		}
	}
}

func TestDispatchPermanentFailureRemovesSubscriber(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	gw := newFakeGateway()
	gw.failErr[20] = &tele.Error{Code: 403, Description: "Forbidden: bot was blocked by the user"}
	gw.failPerm[20] = true

	d := NewDispatcher(st, gw, time.Microsecond, logx.Nop())
	out := d.Dispatch(context.Background(), testSubscribers("s1", 10, 20, 30), "hello")

	if out.Sent != 2 || out.Removed != 1 || out.Failed != 0 {
		t.Fatalf("outcome = %+v, want 2 sent / 1 removed", out)
	}
	if !st.deleted[2] {
		t.Fatal("blocked subscriber not deleted")
	}
	if _, ok := st.touched[2]; ok {
		t.Fatal("removed subscriber must not be stamped")
	}
	// Later subscribers still served.
	if gw.sentTo(30) != 1 {
		t.Fatal("delivery after removal skipped")
	}
}

func TestDispatchGenericFailureLeavesSubscriber(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	gw := newFakeGateway()
	gw.failErr[20] = errBoom // transient, not permanent

	d := NewDispatcher(st, gw, time.Microsecond, logx.Nop())
	out := d.Dispatch(context.Background(), testSubscribers("s1", 10, 20, 30), "hello")

	if out.Sent != 2 || out.Failed != 1 || out.Removed != 0 {
		t.Fatalf("outcome = %+v, want 2 sent / 1 failed", out)
	}
	if st.deleted[2] {
		t.Fatal("transient failure must not delete the subscriber")
	}
	if _, ok := st.touched[2]; ok {
		t.Fatal("failed delivery must not stamp last_alert_sent")
	}
	if gw.sentTo(30) != 1 {
		t.Fatal("dispatch did not continue past the failure")
	}
}

func TestDispatchEmptyList(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	gw := newFakeGateway()
	d := NewDispatcher(st, gw, time.Microsecond, logx.Nop())

	out := d.Dispatch(context.Background(), nil, "hello")
	if out != (DispatchOutcome{}) {
		t.Fatalf("outcome = %+v, want zero", out)
	}
	if len(gw.sent) != 0 {
		t.Fatal("no sends expected")
	}
}

func TestDispatchPacing(t *testing.T) {
	t.Parallel()
	st := newFakeStore()
	gw := newFakeGateway()
	pace := 30 * time.Millisecond
	d := NewDispatcher(st, gw, pace, logx.Nop())

	start := time.Now()
	d.Dispatch(context.Background(), testSubscribers("s1", 10, 20, 30), "hello")
	// Three sends -> at least two full inter-send intervals.
	if took := time.Since(start); took < 2*pace {
		t.Fatalf("dispatch too fast: %v < %v", took, 2*pace)
	}
}
