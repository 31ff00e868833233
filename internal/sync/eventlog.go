// Package syncx keeps the append-only attempt lifecycle log.
package syncx

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"
)

const (
	TypeAttemptStarted   = "AttemptStarted"
	TypeAttemptSubmitted = "AttemptSubmitted"
	TypeAttemptExpired   = "AttemptExpired"
)

type Event struct {
	Seq       int64
	SiteID    string
	Type      string
	Key       string // natural key: attempt id
	DataJSON  string
	CreatedAt int64
}

// Execer is satisfied by *sql.DB and *sql.Tx so events can be appended in
// the same transaction as the state change they describe.
type Execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Append writes one event. data is marshalled to JSON.
func Append(ctx context.Context, ex Execer, typ, key string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx,
		`INSERT INTO event_log (site_id, typ, event_key, data, created_at)
		 VALUES ($1,$2,$3,$4,$5)`,
		"local", typ, key, string(raw), time.Now().UnixMilli())
	return err
}

type EventRepo struct{ db *sql.DB }

func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

func (r *EventRepo) Append(ctx context.Context, typ, key string, data any) error {
	return Append(ctx, r.db, typ, key, data)
}

// ListByKey returns the events of one attempt in append order.
func (r *EventRepo) ListByKey(ctx context.Context, key string) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT seq, site_id, typ, event_key, data, created_at FROM event_log WHERE event_key=$1 ORDER BY seq`, key)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.Seq, &e.SiteID, &e.Type, &e.Key, &e.DataJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
