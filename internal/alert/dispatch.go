package alert

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"shelfbot/internal/storage"
	"shelfbot/internal/transport"
	logx "shelfbot/pkg/logx"
)

// SubscriberWriter is the bookkeeping surface the dispatcher mutates.
type SubscriberWriter interface {
	TouchSubscriber(ctx context.Context, id int64, at time.Time) error
	DeleteSubscriber(ctx context.Context, id int64) error
}

// DispatchOutcome summarizes one fan-out over a shop's subscribers.
type DispatchOutcome struct {
	Sent    int
	Failed  int
	Removed int
}

// Dispatcher delivers one composed message to each subscriber of a shop,
// sequentially and paced. Deliveries are never retried here; a failed
// subscriber is logged and the loop moves on.
type Dispatcher struct {
	subs SubscriberWriter
	gw   transport.Gateway
	log  logx.Logger

	// limiter enforces the minimum interval between consecutive gateway
	// calls, success or failure alike.
	limiter *rate.Limiter

	now func() time.Time
}

func NewDispatcher(subs SubscriberWriter, gw transport.Gateway, pace time.Duration, log logx.Logger) *Dispatcher {
	if pace <= 0 {
		pace = 100 * time.Millisecond
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{
		subs:    subs,
		gw:      gw,
		log:     log,
		limiter: rate.NewLimiter(rate.Every(pace), 1),
		now:     time.Now,
	}
}

// SetPace adjusts the inter-subscriber interval (live config reload).
func (d *Dispatcher) SetPace(pace time.Duration) {
	if pace > 0 {
		d.limiter.SetLimit(rate.Every(pace))
	}
}

// Dispatch sends text to every subscriber in order.
//
// Per subscriber, independently:
//   - success: last_alert_sent is stamped, Sent incremented
//   - permanent failure: the subscriber record is deleted
//   - any other failure: the record is left untouched
func (d *Dispatcher) Dispatch(ctx context.Context, subscribers []storage.Subscriber, text string) DispatchOutcome {
	var out DispatchOutcome
	opt := &transport.SendOptions{ParseMode: "HTML", DisablePreview: true}

	for _, sub := range subscribers {
		if err := d.limiter.Wait(ctx); err != nil {
			d.log.Warn("dispatch aborted", logx.String("shop", sub.ShopID), logx.Err(err))
			return out
		}

		res, err := d.gw.Send(ctx, transport.ChatTarget{ChatID: sub.ChatID}, text, opt)
		if err == nil {
			if terr := d.subs.TouchSubscriber(ctx, sub.ID, d.now()); terr != nil {
				d.log.Warn("last_alert_sent update failed",
					logx.Int64("subscriber", sub.ID), logx.Err(terr))
			}
			out.Sent++
			continue
		}

		if res.PermanentFailure {
			if derr := d.subs.DeleteSubscriber(ctx, sub.ID); derr != nil {
				d.log.Warn("subscriber removal failed",
					logx.Int64("subscriber", sub.ID), logx.Err(derr))
			} else {
				d.log.Info("subscriber removed (endpoint permanently unreachable)",
					logx.Int64("subscriber", sub.ID), logx.Int64("chat_id", sub.ChatID),
					logx.String("shop", sub.ShopID), logx.Err(err))
			}
			out.Removed++
			continue
		}

		d.log.Warn("delivery failed",
			logx.Int64("subscriber", sub.ID), logx.Int64("chat_id", sub.ChatID),
			logx.String("shop", sub.ShopID), logx.Err(err))
		out.Failed++
	}

	return out
}
