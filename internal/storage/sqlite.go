package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // SQLite driver registration.

	"notibot/internal/model"
	"notibot/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

// SQLite implements Storage backed by a SQLite database.
type SQLite struct {
	db  *sql.DB
	log *slog.Logger
	now func() time.Time
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string, log *slog.Logger) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=OFF"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("disable foreign keys: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, log: log, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// UpsertChat inserts the chat if absent, otherwise updates its active
// flag and refreshes last_updated. The single UPSERT statement keeps the
// operation atomic with respect to the primary-key check.
func (s *SQLite) UpsertChat(ctx context.Context, id string, active bool) error {
	now := s.now().Format(timeLayout)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, active, last_updated) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET active = excluded.active, last_updated = excluded.last_updated`,
		id, boolToInt(active), now,
	)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// ListActiveChats returns all chats currently marked active.
func (s *SQLite) ListActiveChats(ctx context.Context) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, active, last_updated FROM chats WHERE active = 1 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var chats []model.Chat
	for rows.Next() {
		var c model.Chat
		var active int
		var updated string
		if err := rows.Scan(&c.ID, &active, &updated); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.Active = active == 1
		c.LastUpdated, _ = time.Parse(timeLayout, updated)
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// UpsertSubscription inserts the subscription if no row matches its
// (chat_id, kind_id, detail) unique key, otherwise updates all mutable
// fields of the matching row in place. The surrogate ID of the resulting
// row is written back into sub.
func (s *SQLite) UpsertSubscription(ctx context.Context, sub *model.Subscription) error {
	if sub.LastUpdated.IsZero() {
		sub.LastUpdated = s.now()
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (chat_id, kind_id, active, last_updated, detail)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (chat_id, kind_id, detail) DO UPDATE
		    SET active = excluded.active, last_updated = excluded.last_updated
		 RETURNING id`,
		sub.ChatID, sub.Kind.Code(), boolToInt(sub.Active), sub.LastUpdated.UTC().Format(timeLayout), sub.Detail,
	).Scan(&sub.ID)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// ListActiveSubscriptions returns all active subscriptions of a chat,
// any kind.
func (s *SQLite) ListActiveSubscriptions(ctx context.Context, chatID string) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, kind_id, active, last_updated, detail
		 FROM subscriptions WHERE active = 1 AND chat_id = ? ORDER BY id`, chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return s.scanSubscriptions(rows)
}

// ListActiveSubscriptionsByKind returns a chat's active subscriptions of
// one kind. For multi-instance kinds this is one row per detail.
func (s *SQLite) ListActiveSubscriptionsByKind(ctx context.Context, chatID string, kind model.ServiceKind) ([]model.Subscription, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, kind_id, active, last_updated, detail
		 FROM subscriptions WHERE active = 1 AND chat_id = ? AND kind_id = ? ORDER BY id`,
		chatID, kind.Code(),
	)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions by kind: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return s.scanSubscriptions(rows)
}

// FindSubscription returns the first active subscription of the given
// kind, or ErrNotFound. Intended for single-instance kinds; the unique
// constraint guarantees at most one row when detail is empty.
func (s *SQLite) FindSubscription(ctx context.Context, chatID string, kind model.ServiceKind) (*model.Subscription, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, chat_id, kind_id, active, last_updated, detail
		 FROM subscriptions WHERE active = 1 AND chat_id = ? AND kind_id = ? ORDER BY id LIMIT 1`,
		chatID, kind.Code(),
	)
	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s for chat %s: %w", kind, chatID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return sub, nil
}

// DeleteSubscription removes the one row matching chat, kind and detail
// and reports how many rows were removed (0 or 1).
func (s *SQLite) DeleteSubscription(ctx context.Context, chatID string, kind model.ServiceKind, detail string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE chat_id = ? AND kind_id = ? AND detail = ?`,
		chatID, kind.Code(), detail,
	)
	if err != nil {
		return 0, fmt.Errorf("delete subscription: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

type scannable interface {
	Scan(dest ...any) error
}

func scanSubscription(row scannable) (*model.Subscription, error) {
	var sub model.Subscription
	var kindCode, active int
	var updated string
	if err := row.Scan(&sub.ID, &sub.ChatID, &kindCode, &active, &updated, &sub.Detail); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	kind, err := model.KindFromCode(kindCode)
	if err != nil {
		return nil, err
	}
	sub.Kind = kind
	sub.Active = active == 1
	sub.LastUpdated, _ = time.Parse(timeLayout, updated)
	return &sub, nil
}

// scanSubscriptions collects valid rows. Rows whose kind code is not a
// recognized ServiceKind are logged and skipped so one corrupt record
// cannot poison a whole reconciliation pass.
func (s *SQLite) scanSubscriptions(rows *sql.Rows) ([]model.Subscription, error) {
	var subs []model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if errors.Is(err, model.ErrUnknownKind) {
			s.log.Warn("skipping subscription row", "error", err)
			continue
		}
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}
