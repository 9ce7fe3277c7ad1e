package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestParseYAML(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
storage:
  path: /var/lib/shelfbot/shelfbot.db
schedule:
  spec: "0 9 * * *"
  timezone: Asia/Kolkata
alerts:
  low_stock_threshold: 3
  subscriber_delay: 250ms
`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Alerts.LowStockThreshold == nil || *cfg.Alerts.LowStockThreshold != 3 {
		t.Errorf("low_stock_threshold = %v, want 3", cfg.Alerts.LowStockThreshold)
	}
	if cfg.Alerts.ExpiryWarningDays != nil {
		t.Errorf("expiry_warning_days should be absent, got %v", *cfg.Alerts.ExpiryWarningDays)
	}
	if cfg.Alerts.SubscriberDelay != "250ms" {
		t.Errorf("subscriber_delay = %q", cfg.Alerts.SubscriberDelay)
	}
}

func TestParseJSON(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram":{"token":"t"},"storage":{"path":"x.db"},"logging":{"console":true}}`)
	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !cfg.Logging.Console {
		t.Error("logging.console should be true")
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	path := writeConfig(t, "config.yaml", `
telegram:
  token: t
  tokken: oops
`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram":{"token":"t"}} {"extra":1}`)
	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("expected error for trailing data")
	}
}

func TestLoadCommitGet(t *testing.T) {
	path := writeConfig(t, "config.json", `{"telegram":{"token":"t"}}`)
	m := NewManager(path)
	if m.Get() != nil {
		t.Fatal("Get before Load should be nil")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if m.Get() != cfg {
		t.Error("Get should return the committed config")
	}
}

func TestSubscribeUnsubscribe(t *testing.T) {
	m := NewManager("unused")
	ch := m.Subscribe(1)
	m.publish(&Config{})
	select {
	case got := <-ch:
		if got == nil {
			t.Fatal("published config is nil")
		}
	default:
		t.Fatal("subscriber did not receive config")
	}
	m.Unsubscribe(ch)
	if _, ok := <-ch; ok {
		t.Fatal("channel should be closed after Unsubscribe")
	}
}
