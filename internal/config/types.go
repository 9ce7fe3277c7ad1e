package config

// Config is the on-disk configuration. Yaml and JSON are both accepted;
// unknown fields are rejected so typos fail loudly at startup.
//
// All durations are Go duration strings (e.g. "100ms", "10s").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`
	Schedule ScheduleConfig `json:"schedule"`
	Alerts   AlertsConfig   `json:"alerts"`
}

type TelegramConfig struct {
	Token       string `json:"token"`
	PollTimeout string `json:"poll_timeout,omitempty"` // default "10s"
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"` // default "INFO"
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// ScheduleConfig controls the daily trigger.
//
// Spec is a standard 5-field cron expression evaluated in Timezone.
// Defaults: "0 9 * * *" in Asia/Kolkata.
type ScheduleConfig struct {
	Spec     string `json:"spec,omitempty"`
	Timezone string `json:"timezone,omitempty"`
}

// AlertsConfig sets the shop-independent alert tuning. The threshold and
// window fields are the defaults a shop's stored settings override.
type AlertsConfig struct {
	LowStockThreshold *int  `json:"low_stock_threshold,omitempty"` // default 5
	ExpiryWarningDays *int  `json:"expiry_warning_days,omitempty"` // default 7
	ExpiryAlerts      *bool `json:"expiry_alerts,omitempty"`       // default true
	LowStockAlerts    *bool `json:"low_stock_alerts,omitempty"`    // default true

	// SubscriberDelay paces consecutive sends within one shop;
	// ShopDelay paces consecutive shops. Defaults: "100ms" and "1s".
	SubscriberDelay string `json:"subscriber_delay,omitempty"`
	ShopDelay       string `json:"shop_delay,omitempty"`

	// DashboardURL is rendered into every digest's footer.
	DashboardURL string `json:"dashboard_url,omitempty"`
}
