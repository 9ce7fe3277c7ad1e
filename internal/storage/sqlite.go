package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	logx "shelfbot/pkg/logx"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log}

	// Basic pragmas.
	if cfg.BusyTimeout > 0 {
		ms := cfg.BusyTimeout.Milliseconds()
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", ms))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) ListShops(ctx context.Context) ([]Shop, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM shops ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Shop
	for rows.Next() {
		var sh Shop
		if err := rows.Scan(&sh.ID, &sh.Name); err != nil {
			return nil, err
		}
		out = append(out, sh)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetShop(ctx context.Context, id string) (Shop, error) {
	var sh Shop
	err := s.db.QueryRowContext(ctx, `SELECT id, name FROM shops WHERE id = ?`, id).Scan(&sh.ID, &sh.Name)
	if errors.Is(err, sql.ErrNoRows) {
		return Shop{}, ErrNotFound
	}
	if err != nil {
		return Shop{}, err
	}
	return sh, nil
}

func (s *sqliteStore) GetSettings(ctx context.Context, shopID string) (SettingsRecord, error) {
	rec := SettingsRecord{ShopID: shopID}
	var (
		threshold, warnDays  sql.NullInt64
		expiryOn, lowStockOn sql.NullBool
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT low_stock_threshold, expiry_warning_days, expiry_alerts, low_stock_alerts
		 FROM alert_settings WHERE shop_id = ?`, shopID).
		Scan(&threshold, &warnDays, &expiryOn, &lowStockOn)
	if errors.Is(err, sql.ErrNoRows) {
		return SettingsRecord{}, ErrNotFound
	}
	if err != nil {
		return SettingsRecord{}, err
	}
	if threshold.Valid {
		v := int(threshold.Int64)
		rec.LowStockThreshold = &v
	}
	if warnDays.Valid {
		v := int(warnDays.Int64)
		rec.ExpiryWarningDays = &v
	}
	if expiryOn.Valid {
		v := expiryOn.Bool
		rec.ExpiryAlerts = &v
	}
	if lowStockOn.Valid {
		v := lowStockOn.Bool
		rec.LowStockAlerts = &v
	}
	return rec, nil
}

func (s *sqliteStore) ListInventory(ctx context.Context, shopID string) ([]InventoryItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, COALESCE(quantity, 0), COALESCE(expiry_date, '')
		 FROM inventory WHERE shop_id = ? ORDER BY rowid`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []InventoryItem
	for rows.Next() {
		var it InventoryItem
		if err := rows.Scan(&it.ID, &it.Name, &it.Quantity, &it.ExpiryDate); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListSubscribers(ctx context.Context, shopID string) ([]Subscriber, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, shop_id, chat_id, last_alert_sent, created_at
		 FROM subscribers WHERE shop_id = ? ORDER BY id`, shopID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Subscriber
	for rows.Next() {
		sub, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ShopIDsForChat(ctx context.Context, chatID int64) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shop_id FROM subscribers WHERE chat_id = ? ORDER BY shop_id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) AddSubscriber(ctx context.Context, shopID string, chatID int64) (Subscriber, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO subscribers(shop_id, chat_id, created_at) VALUES(?,?,?)
		 ON CONFLICT(shop_id, chat_id) DO NOTHING`,
		shopID, chatID, now.Format(time.RFC3339Nano))
	if err != nil {
		return Subscriber{}, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, shop_id, chat_id, last_alert_sent, created_at
		 FROM subscribers WHERE shop_id = ? AND chat_id = ?`, shopID, chatID)
	return scanSubscriber(row)
}

func (s *sqliteStore) RemoveSubscriberByChat(ctx context.Context, shopID string, chatID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscribers WHERE shop_id = ? AND chat_id = ?`, shopID, chatID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) TouchSubscriber(ctx context.Context, id int64, at time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE subscribers SET last_alert_sent = ? WHERE id = ?`,
		at.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *sqliteStore) DeleteSubscriber(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM subscribers WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscriber(row rowScanner) (Subscriber, error) {
	var (
		sub      Subscriber
		lastSent sql.NullString
		created  string
	)
	err := row.Scan(&sub.ID, &sub.ShopID, &sub.ChatID, &lastSent, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Subscriber{}, ErrNotFound
	}
	if err != nil {
		return Subscriber{}, err
	}
	if lastSent.Valid && strings.TrimSpace(lastSent.String) != "" {
		t, err := time.Parse(time.RFC3339Nano, lastSent.String)
		if err != nil {
			return Subscriber{}, fmt.Errorf("subscriber %d: bad last_alert_sent: %w", sub.ID, err)
		}
		sub.LastAlertSent = &t
	}
	if t, err := time.Parse(time.RFC3339Nano, created); err == nil {
		sub.CreatedAt = t
	}
	return sub, nil
}
