package alert

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"shelfbot/internal/storage"
	"shelfbot/internal/transport"
	logx "shelfbot/pkg/logx"
)

// Config tunes one pipeline instance. Zero fields fall back to the reference
// values: 100ms between subscribers, 1s between shops, IST reference day.
type Config struct {
	Defaults        Settings
	SubscriberDelay time.Duration
	ShopDelay       time.Duration
	Location        *time.Location
	DashboardURL    string
}

// Pipeline is the scheduled batch: it walks every shop sequentially,
// classifies its snapshot, composes a digest, and fans it out to the shop's
// subscribers. One shop at a time, one subscriber at a time.
type Pipeline struct {
	store      storage.Store
	dispatcher *Dispatcher
	log        logx.Logger

	mu  sync.Mutex
	cfg Config

	// shopLimiter spaces consecutive shops, independent of the
	// per-subscriber pacing inside Dispatch.
	shopLimiter *rate.Limiter

	now func() time.Time
}

func NewPipeline(cfg Config, store storage.Store, gw transport.Gateway, log logx.Logger) *Pipeline {
	cfg = withConfigDefaults(cfg)
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Pipeline{
		store:       store,
		dispatcher:  NewDispatcher(store, gw, cfg.SubscriberDelay, log.With(logx.String("comp", "dispatch"))),
		log:         log,
		cfg:         cfg,
		shopLimiter: rate.NewLimiter(rate.Every(cfg.ShopDelay), 1),
		now:         time.Now,
	}
}

func withConfigDefaults(cfg Config) Config {
	if cfg.Defaults == (Settings{}) {
		cfg.Defaults = DefaultSettings
	}
	if cfg.SubscriberDelay <= 0 {
		cfg.SubscriberDelay = 100 * time.Millisecond
	}
	if cfg.ShopDelay <= 0 {
		cfg.ShopDelay = time.Second
	}
	if cfg.Location == nil {
		if loc, err := time.LoadLocation("Asia/Kolkata"); err == nil {
			cfg.Location = loc
		} else {
			cfg.Location = time.FixedZone("IST", 5*3600+1800)
		}
	}
	return cfg
}

// Apply installs new tuning at runtime (config hot reload).
func (p *Pipeline) Apply(cfg Config) {
	cfg = withConfigDefaults(cfg)
	p.mu.Lock()
	p.cfg = cfg
	p.mu.Unlock()
	p.shopLimiter.SetLimit(rate.Every(cfg.ShopDelay))
	p.dispatcher.SetPace(cfg.SubscriberDelay)
}

func (p *Pipeline) config() Config {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cfg
}

// Run executes one full batch over every shop. Only a failure to list the
// shop directory is fatal; anything that goes wrong inside one shop is
// contained there and the walk continues. The run always drains to the end.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	cfg := p.config()
	today := StartOfDay(p.now(), cfg.Location)

	shops, err := p.store.ListShops(ctx)
	if err != nil {
		return RunStats{}, fmt.Errorf("list shops: %w", err)
	}

	var stats RunStats
	start := p.now()
	p.log.Info("alert run started", logx.Int("shops", len(shops)), logx.Time("reference_day", today))

	for _, shop := range shops {
		if err := p.shopLimiter.Wait(ctx); err != nil {
			// Context gone; report what completed so far.
			p.log.Warn("alert run interrupted", logx.Err(err))
			return stats, nil
		}

		stats.Shops++
		sent, err := p.processShop(ctx, shop, cfg, today)
		if err != nil {
			stats.ShopsFailed++
			p.log.Error("shop processing failed", logx.String("shop", shop.ID), logx.Err(err))
			continue
		}
		if sent > 0 {
			stats.ShopsAlerted++
			stats.AlertsSent += sent
		}
	}

	p.log.Info("alert run finished",
		logx.Int("shops", stats.Shops),
		logx.Int("shops_alerted", stats.ShopsAlerted),
		logx.Int("shops_failed", stats.ShopsFailed),
		logx.Int("alerts_sent", stats.AlertsSent),
		logx.Duration("took", p.now().Sub(start)))
	return stats, nil
}

// processShop handles exactly one shop. Read failures degrade to a logged
// skip; only a panic escapes as an error, so one misbehaving shop is marked
// failed without touching the rest of the run.
func (p *Pipeline) processShop(ctx context.Context, shop storage.Shop, cfg Config, today time.Time) (sent int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			p.log.Error("panic while processing shop",
				logx.String("shop", shop.ID), logx.Any("panic", r),
				logx.Stack(logx.StackTrace(3, 16)))
		}
	}()

	log := p.log.With(logx.String("shop", shop.ID))
	settings := ResolveSettings(ctx, p.store, shop.ID, cfg.Defaults, log)

	subscribers, err := p.store.ListSubscribers(ctx, shop.ID)
	if err != nil {
		log.Warn("subscribers read failed; skipping shop", logx.Err(err))
		return 0, nil
	}
	if len(subscribers) == 0 {
		log.Debug("no subscribers; skipping shop")
		return 0, nil
	}

	items, err := p.store.ListInventory(ctx, shop.ID)
	if err != nil {
		log.Warn("inventory read failed; skipping shop", logx.Err(err))
		return 0, nil
	}
	if len(items) == 0 {
		log.Debug("empty inventory; skipping shop")
		return 0, nil
	}

	classified := Classify(items, settings, today, log)
	text, ok := ComposeDigest(shop.Name, today, classified, cfg.DashboardURL)
	if !ok {
		log.Debug("nothing to send")
		return 0, nil
	}

	out := p.dispatcher.Dispatch(ctx, subscribers, text)
	log.Info("digest dispatched",
		logx.Int("sent", out.Sent), logx.Int("failed", out.Failed), logx.Int("removed", out.Removed),
		logx.Int("expired", len(classified.Expired)),
		logx.Int("near_expiry", len(classified.NearExpiry)),
		logx.Int("low_stock", len(classified.LowStock)))
	return out.Sent, nil
}

// TestSend delivers a short test message to every subscriber of one shop.
// It reuses only the dispatcher: no classification, no digest. Authorization
// is the caller's concern.
func (p *Pipeline) TestSend(ctx context.Context, shopID string) (DispatchOutcome, error) {
	shop, err := p.store.GetShop(ctx, shopID)
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("shop %s: %w", shopID, err)
	}
	subscribers, err := p.store.ListSubscribers(ctx, shopID)
	if err != nil {
		return DispatchOutcome{}, fmt.Errorf("subscribers for %s: %w", shopID, err)
	}
	text := fmt.Sprintf("✅ Test alert for <b>%s</b> — notifications are working.", esc(shop.Name))
	return p.dispatcher.Dispatch(ctx, subscribers, text), nil
}

// Summary classifies one shop on demand and returns the counts' source data.
// Used by the /status command; nothing is sent or mutated.
func (p *Pipeline) Summary(ctx context.Context, shopID string) (Classification, error) {
	cfg := p.config()
	shopLog := p.log.With(logx.String("shop", shopID))

	settings := ResolveSettings(ctx, p.store, shopID, cfg.Defaults, shopLog)
	items, err := p.store.ListInventory(ctx, shopID)
	if err != nil {
		return Classification{}, fmt.Errorf("inventory for %s: %w", shopID, err)
	}
	today := StartOfDay(p.now(), cfg.Location)
	return Classify(items, settings, today, shopLog), nil
}
