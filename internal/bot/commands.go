// Package bot routes inbound gateway commands: subscriber registration and
// the on-demand status/test queries. It deliberately reuses only the
// dispatcher side of the pipeline; the scheduled batch stays untouched.
package bot

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"shelfbot/internal/alert"
	"shelfbot/internal/storage"
	"shelfbot/internal/transport"
	logx "shelfbot/pkg/logx"
)

type Router struct {
	store    storage.Store
	pipeline *alert.Pipeline
	gw       transport.Gateway
	log      logx.Logger
}

func NewRouter(store storage.Store, pipeline *alert.Pipeline, gw transport.Gateway, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Router{store: store, pipeline: pipeline, gw: gw, log: log}
}

// Run consumes updates until ctx is cancelled or the channel closes.
func (r *Router) Run(ctx context.Context, updates <-chan transport.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case up, ok := <-updates:
			if !ok {
				return
			}
			if up.Message == nil {
				continue
			}
			r.handle(ctx, up.Message)
		}
	}
}

func (r *Router) handle(ctx context.Context, m *transport.Message) {
	cmd, arg := splitCommand(m.Text)
	if cmd == "" {
		return
	}

	var reply string
	switch cmd {
	case "/start", "/help":
		reply = helpText
	case "/subscribe":
		reply = r.subscribe(ctx, m.ChatID, arg)
	case "/unsubscribe":
		reply = r.unsubscribe(ctx, m.ChatID, arg)
	case "/test":
		reply = r.testSend(ctx, m.ChatID, arg)
	case "/status":
		reply = r.status(ctx, m.ChatID, arg)
	default:
		return
	}

	if reply == "" {
		return
	}
	_, err := r.gw.Send(ctx, transport.ChatTarget{ChatID: m.ChatID}, reply,
		&transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	if err != nil {
		r.log.Warn("command reply failed", logx.Int64("chat_id", m.ChatID), logx.String("cmd", cmd), logx.Err(err))
	}
}

const helpText = `🏪 <b>Shelfbot</b>

/subscribe &lt;shop-id&gt; — receive this shop's daily stock alerts here
/unsubscribe &lt;shop-id&gt; — stop receiving them
/status &lt;shop-id&gt; — current stock risk counts
/test &lt;shop-id&gt; — send a test alert to all of the shop's subscribers`

func (r *Router) subscribe(ctx context.Context, chatID int64, shopID string) string {
	if shopID == "" {
		return "Usage: /subscribe &lt;shop-id&gt;"
	}
	shop, err := r.store.GetShop(ctx, shopID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return "Unknown shop id."
		}
		r.log.Warn("subscribe failed", logx.String("shop", shopID), logx.Err(err))
		return "Something went wrong, try again later."
	}
	if _, err := r.store.AddSubscriber(ctx, shopID, chatID); err != nil {
		r.log.Warn("subscribe failed", logx.String("shop", shopID), logx.Err(err))
		return "Something went wrong, try again later."
	}
	r.log.Info("subscriber registered", logx.String("shop", shopID), logx.Int64("chat_id", chatID))
	return fmt.Sprintf("✅ Subscribed to alerts for <b>%s</b>.", esc(shop.Name))
}

func (r *Router) unsubscribe(ctx context.Context, chatID int64, shopID string) string {
	if shopID == "" {
		return "Usage: /unsubscribe &lt;shop-id&gt;"
	}
	err := r.store.RemoveSubscriberByChat(ctx, shopID, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return "This chat is not subscribed to that shop."
	}
	if err != nil {
		r.log.Warn("unsubscribe failed", logx.String("shop", shopID), logx.Err(err))
		return "Something went wrong, try again later."
	}
	r.log.Info("subscriber removed by request", logx.String("shop", shopID), logx.Int64("chat_id", chatID))
	return "✅ Unsubscribed."
}

// testSend fires the on-demand test delivery. The shop id doubles as the
// identity token: the requesting chat must itself be subscribed to that shop.
func (r *Router) testSend(ctx context.Context, chatID int64, shopID string) string {
	if shopID == "" {
		return "Usage: /test &lt;shop-id&gt;"
	}
	if !r.authorized(ctx, chatID, shopID) {
		return "Not authorized for that shop."
	}
	out, err := r.pipeline.TestSend(ctx, shopID)
	if err != nil {
		r.log.Warn("test send failed", logx.String("shop", shopID), logx.Err(err))
		return "Test send failed."
	}
	return fmt.Sprintf("Test alert sent to %d subscriber(s), %d failed.", out.Sent, out.Failed+out.Removed)
}

func (r *Router) status(ctx context.Context, chatID int64, shopID string) string {
	if shopID == "" {
		return "Usage: /status &lt;shop-id&gt;"
	}
	if !r.authorized(ctx, chatID, shopID) {
		return "Not authorized for that shop."
	}
	c, err := r.pipeline.Summary(ctx, shopID)
	if err != nil {
		r.log.Warn("status failed", logx.String("shop", shopID), logx.Err(err))
		return "Status unavailable."
	}
	return fmt.Sprintf("⛔️ Expired: %d\n⚠️ Expiring soon: %d\n📉 Low stock: %d",
		len(c.Expired), len(c.NearExpiry), len(c.LowStock))
}

// authorized reports whether chatID holds a subscription for shopID.
// The answer is the same for unknown shops and foreign shops, so probing
// does not reveal which shop ids exist.
func (r *Router) authorized(ctx context.Context, chatID int64, shopID string) bool {
	ids, err := r.store.ShopIDsForChat(ctx, chatID)
	if err != nil {
		r.log.Warn("authorization lookup failed", logx.Int64("chat_id", chatID), logx.Err(err))
		return false
	}
	for _, id := range ids {
		if id == shopID {
			return true
		}
	}
	return false
}

func splitCommand(text string) (cmd, arg string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	parts := strings.Fields(text)
	cmd = strings.ToLower(parts[0])
	// Strip "@botname" suffixes used in groups.
	if i := strings.IndexByte(cmd, '@'); i > 0 {
		cmd = cmd[:i]
	}
	if len(parts) > 1 {
		arg = parts[1]
	}
	return cmd, arg
}

// esc escapes user-controlled text for Telegram HTML parse mode.
func esc(s string) string { return html.EscapeString(s) }
