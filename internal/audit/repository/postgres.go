package repository

import (
	"context"
	"database/sql"

	"accountability-assistant/backend/internal/audit/domain"
)

const (
	insertAuthEvent = `INSERT INTO auth_events (id, flow_id, event_type, user_id, phone, detail, ip, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	listAuthEventsByUser = `SELECT id, flow_id, event_type, user_id, phone, detail, ip, created_at
FROM auth_events WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`
)

// PostgresRepository stores auth events in the auth_events table.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create persists e. The event must have ID set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.AuthEvent) error {
	_, err := r.db.ExecContext(ctx, insertAuthEvent,
		e.ID, e.FlowID, e.Type, nullString(e.UserID), nullString(e.Phone), nullString(e.Detail), e.IP, e.CreatedAt)
	return err
}

// ListByUser returns up to limit events for userID, newest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.AuthEvent, error) {
	rows, err := r.db.QueryContext(ctx, listAuthEventsByUser, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.AuthEvent
	for rows.Next() {
		var (
			e                  domain.AuthEvent
			uid, phone, detail sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.FlowID, &e.Type, &uid, &phone, &detail, &e.IP, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.UserID, e.Phone, e.Detail = uid.String, phone.String, detail.String
		out = append(out, &e)
	}
	return out, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
