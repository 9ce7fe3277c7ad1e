package alert

import (
	"fmt"
	"html"
	"strings"
	"time"
)

// maxSectionEntries caps how many lines one category renders; anything past
// the cap collapses into a single "+N more" line.
const maxSectionEntries = 10

const digestDateFormat = "Mon, 02 Jan 2006"

// ComposeDigest renders one shop's alert digest as Telegram HTML.
//
// ok is false when there is nothing to send (all categories empty); callers
// must skip delivery entirely in that case. Output depends only on the
// arguments, so identical inputs render identical digests.
func ComposeDigest(shopName string, date time.Time, c Classification, dashboardURL string) (text string, ok bool) {
	if c.Empty() {
		return "", false
	}

	var b strings.Builder
	fmt.Fprintf(&b, "🏪 <b>%s</b> — Stock Alert\n", esc(shopName))
	fmt.Fprintf(&b, "📅 %s\n", date.Format(digestDateFormat))

	if len(c.Expired) > 0 {
		fmt.Fprintf(&b, "\n⛔️ <b>Expired</b> (%d)\n", len(c.Expired))
		for i, it := range c.Expired {
			if i == maxSectionEntries {
				break
			}
			b.WriteString("• " + esc(it.Name) + " — " + expiredWording(it.DaysExpired) + "\n")
		}
		writeOverflow(&b, len(c.Expired))
	}

	if len(c.NearExpiry) > 0 {
		fmt.Fprintf(&b, "\n⚠️ <b>Expiring soon</b> (%d)\n", len(c.NearExpiry))
		for i, it := range c.NearExpiry {
			if i == maxSectionEntries {
				break
			}
			fmt.Fprintf(&b, "• %s %s — %s (%s)\n",
				urgencyMarker(it.DaysUntilExpiry), esc(it.Name),
				nearExpiryWording(it.DaysUntilExpiry), it.ExpiryDate.Format("02 Jan"))
		}
		writeOverflow(&b, len(c.NearExpiry))
	}

	if len(c.LowStock) > 0 {
		fmt.Fprintf(&b, "\n📉 <b>Low stock</b> (%d)\n", len(c.LowStock))
		for i, it := range c.LowStock {
			if i == maxSectionEntries {
				break
			}
			b.WriteString("• " + esc(it.Name) + " — " + lowStockWording(it.Quantity) + "\n")
		}
		writeOverflow(&b, len(c.LowStock))
	}

	if dashboardURL != "" {
		b.WriteString("\nManage inventory: " + esc(dashboardURL) + "\n")
	}
	return b.String(), true
}

func writeOverflow(b *strings.Builder, total int) {
	if total > maxSectionEntries {
		fmt.Fprintf(b, "… and %d more\n", total-maxSectionEntries)
	}
}

func expiredWording(daysExpired int) string {
	if daysExpired == 0 {
		return "Expired today"
	}
	return fmt.Sprintf("Expired %d day(s) ago", daysExpired)
}

func nearExpiryWording(days int) string {
	if days == 1 {
		return "expires tomorrow"
	}
	return fmt.Sprintf("expires in %d days", days)
}

// urgencyMarker grades how soon the item expires: tomorrow, within three
// days, or merely inside the warning window.
func urgencyMarker(days int) string {
	switch {
	case days == 1:
		return "🔴"
	case days <= 3:
		return "🟠"
	default:
		return "🟡"
	}
}

func lowStockWording(qty int) string {
	if qty == 0 {
		return "Out of stock"
	}
	return fmt.Sprintf("Only %d left", qty)
}

// esc escapes text for Telegram HTML parse mode.
func esc(s string) string { return html.EscapeString(s) }
