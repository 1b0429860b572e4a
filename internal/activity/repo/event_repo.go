package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-account/internal/activity/entity"
	"github.com/ovaphlow/pitchfork/service-account/pkg/database"
)

// Position is a keyset position in the (timestamp, id) ordering of events.
type Position struct {
	TimestampMillis int64
	ID              int64
}

// EventRepo is the append-only store for activity events.
type EventRepo struct {
	db *sqlx.DB
}

func NewEventRepo(db *sqlx.DB) *EventRepo { return &EventRepo{db: db} }

// EnsureTable creates the activity_events table and its indexes.
func (r *EventRepo) EnsureTable(ctx context.Context) error {
	return database.ExecAll(ctx, r.db,
		`CREATE TABLE IF NOT EXISTS activity_events (
  id BIGINT PRIMARY KEY,
  account_id BIGINT NOT NULL,
  action TEXT NOT NULL,
  details TEXT NOT NULL DEFAULT '',
  ip_address TEXT NOT NULL DEFAULT '',
  created_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_activity_events_account ON activity_events(account_id, created_at, id)`,
	)
}

type eventRow struct {
	ID        int64  `db:"id"`
	AccountID int64  `db:"account_id"`
	Action    string `db:"action"`
	Details   string `db:"details"`
	IPAddress string `db:"ip_address"`
	CreatedAt int64  `db:"created_at"`
}

func (row eventRow) toEntity() entity.Event {
	return entity.Event{
		ID:        row.ID,
		AccountID: row.AccountID,
		Action:    entity.Action(row.Action),
		Details:   row.Details,
		IPAddress: row.IPAddress,
		Timestamp: database.FromMillis(row.CreatedAt),
	}
}

// Insert writes one event. Events are never updated afterwards.
func (r *EventRepo) Insert(ctx context.Context, e entity.Event) error {
	const q = `INSERT INTO activity_events (id, account_id, action, details, ip_address, created_at)
		VALUES (:id, :account_id, :action, :details, :ip_address, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, eventRow{
		ID:        e.ID,
		AccountID: e.AccountID,
		Action:    string(e.Action),
		Details:   e.Details,
		IPAddress: e.IPAddress,
		CreatedAt: database.ToMillis(e.Timestamp),
	})
	return err
}

// ListByAccount returns up to limit events for an account in ascending
// (timestamp, id) order, strictly after the given position when non-nil.
func (r *EventRepo) ListByAccount(ctx context.Context, accountID int64, after *Position, limit int) ([]entity.Event, error) {
	q := `SELECT id, account_id, action, details, ip_address, created_at
	  FROM activity_events WHERE account_id = ?`
	args := []any{accountID}
	if after != nil {
		q += ` AND (created_at > ? OR (created_at = ? AND id > ?))`
		args = append(args, after.TimestampMillis, after.TimestampMillis, after.ID)
	}
	q += ` ORDER BY created_at ASC, id ASC LIMIT ?`
	args = append(args, limit)
	return r.list(ctx, q, args...)
}

// ListRecent returns an account's newest events, newest first.
func (r *EventRepo) ListRecent(ctx context.Context, accountID int64, limit int) ([]entity.Event, error) {
	const q = `SELECT id, account_id, action, details, ip_address, created_at
	  FROM activity_events WHERE account_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`
	return r.list(ctx, q, accountID, limit)
}

func (r *EventRepo) list(ctx context.Context, q string, args ...any) ([]entity.Event, error) {
	var rows []eventRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, err
	}
	out := make([]entity.Event, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toEntity())
	}
	return out, nil
}
