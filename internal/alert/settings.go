package alert

import (
	"context"
	"errors"

	"shelfbot/internal/storage"
	logx "shelfbot/pkg/logx"
)

// SettingsReader is the narrow store surface the resolver needs.
type SettingsReader interface {
	GetSettings(ctx context.Context, shopID string) (storage.SettingsRecord, error)
}

// ResolveSettings returns the shop's effective settings: base overridden
// field-by-field by whatever the stored row sets. A missing or unreadable row
// yields base unchanged; this never fails.
func ResolveSettings(ctx context.Context, st SettingsReader, shopID string, base Settings, log logx.Logger) Settings {
	rec, err := st.GetSettings(ctx, shopID)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			log.Warn("settings read failed; using defaults", logx.String("shop", shopID), logx.Err(err))
		}
		return base
	}
	return overlaySettings(base, rec)
}

// overlaySettings merges one stored override row onto base, field by field.
// Negative stored values are ignored rather than clamped.
func overlaySettings(base Settings, rec storage.SettingsRecord) Settings {
	out := base
	if rec.LowStockThreshold != nil && *rec.LowStockThreshold >= 0 {
		out.LowStockThreshold = *rec.LowStockThreshold
	}
	if rec.ExpiryWarningDays != nil && *rec.ExpiryWarningDays >= 0 {
		out.ExpiryWarningDays = *rec.ExpiryWarningDays
	}
	if rec.ExpiryAlerts != nil {
		out.ExpiryAlerts = *rec.ExpiryAlerts
	}
	if rec.LowStockAlerts != nil {
		out.LowStockAlerts = *rec.LowStockAlerts
	}
	return out
}
