package alert

import (
	"math"
	"sort"
	"time"

	"shelfbot/internal/storage"
	logx "shelfbot/pkg/logx"
)

// expiryDateFormats are accepted in order. The management app writes plain
// dates; RFC3339 shows up in imported data.
var expiryDateFormats = []string{"2006-01-02", time.RFC3339}

// StartOfDay normalizes t to midnight in loc. Classification uses one such
// reference point per run so every item sees the same "today".
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, loc)
}

// Classify buckets a shop's inventory snapshot into the three risk
// categories. It is a pure function of the snapshot, the settings, and the
// normalized reference day: no cached state, no persistence.
//
// A malformed expiry date skips that item's expiry check only; it never
// fails the run, and the item still qualifies for low-stock.
func Classify(items []storage.InventoryItem, s Settings, today time.Time, log logx.Logger) Classification {
	var c Classification

	for _, it := range items {
		if s.ExpiryAlerts && it.ExpiryDate != "" {
			exp, err := parseExpiryDate(it.ExpiryDate, today.Location())
			if err != nil {
				log.Warn("unparseable expiry date; skipping expiry check",
					logx.String("item", it.Name), logx.String("raw", it.ExpiryDate), logx.Err(err))
			} else {
				days := daysUntil(today, exp)
				switch {
				case days <= 0:
					c.Expired = append(c.Expired, ExpiredItem{Name: it.Name, DaysExpired: -days})
				case days <= s.ExpiryWarningDays:
					c.NearExpiry = append(c.NearExpiry, NearExpiryItem{Name: it.Name, DaysUntilExpiry: days, ExpiryDate: exp})
				}
			}
		}

		// Independent of the expiry outcome.
		if s.LowStockAlerts && it.Quantity <= s.LowStockThreshold {
			c.LowStock = append(c.LowStock, LowStockItem{Name: it.Name, Quantity: it.Quantity})
		}
	}

	// Stable sorts keep snapshot order among equals.
	sort.SliceStable(c.Expired, func(i, j int) bool {
		return c.Expired[i].DaysExpired > c.Expired[j].DaysExpired
	})
	sort.SliceStable(c.NearExpiry, func(i, j int) bool {
		return c.NearExpiry[i].DaysUntilExpiry < c.NearExpiry[j].DaysUntilExpiry
	})
	sort.SliceStable(c.LowStock, func(i, j int) bool {
		return c.LowStock[i].Quantity < c.LowStock[j].Quantity
	})

	return c
}

func parseExpiryDate(raw string, loc *time.Location) (time.Time, error) {
	var lastErr error
	for _, f := range expiryDateFormats {
		t, err := time.ParseInLocation(f, raw, loc)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

// daysUntil is ceil((exp - today) / 24h): an expiry later today counts as 0,
// tomorrow as 1.
func daysUntil(today, exp time.Time) int {
	return int(math.Ceil(exp.Sub(today).Hours() / 24))
}
