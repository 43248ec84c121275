package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	id "dossier/pkg/domain"
	audit "dossier/pkg/platform/audit"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const table = "audit_entries"

var columns = []string{
	"id", "actor_id", "actor_name", "actor_role", "action", "category",
	"target_kind", "target_id", "details", "request_id", "created_at",
}

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Store implements audit.Store on PostgreSQL through database/sql.
// The schema lives in internal/platform/postgres/migrations.
type Store struct {
	db *sql.DB
}

// New creates a new PostgreSQL audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Append inserts one entry. Duplicate IDs are ignored so replays are safe.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return fmt.Errorf("marshal audit details: %w", err)
	}
	if entry.Details == nil {
		details = []byte("{}")
	}

	query, args, err := psql.Insert(table).
		Columns(columns...).
		Values(
			uuid.UUID(entry.ID),
			uuid.UUID(entry.ActorID),
			entry.ActorSnapshot.Name,
			string(entry.ActorSnapshot.Role),
			string(entry.Action),
			string(entry.Category),
			string(entry.TargetKind),
			entry.TargetID,
			details,
			entry.RequestID,
			entry.Timestamp,
		).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// List returns entries newest-first. seq breaks ties between entries written
// in the same instant.
func (s *Store) List(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	builder := psql.Select(columns...).From(table)
	if !filter.ActorID.IsNil() {
		builder = builder.Where(sq.Eq{"actor_id": uuid.UUID(filter.ActorID)})
	}
	if filter.Action != "" {
		builder = builder.Where(sq.Eq{"action": string(filter.Action)})
	}
	if filter.TargetKind != "" {
		builder = builder.Where(sq.Eq{"target_kind": string(filter.TargetKind)})
	}
	if filter.TargetID != "" {
		builder = builder.Where(sq.Eq{"target_id": filter.TargetID})
	}
	builder = builder.
		OrderBy("created_at DESC", "seq DESC").
		Limit(uint64(filter.EffectiveLimit()))

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry     audit.Entry
			entryID   uuid.UUID
			actorID   uuid.UUID
			actorRole string
			action    string
			category  string
			kind      string
			details   []byte
		)
		err := rows.Scan(
			&entryID,
			&actorID,
			&entry.ActorSnapshot.Name,
			&actorRole,
			&action,
			&category,
			&kind,
			&entry.TargetID,
			&details,
			&entry.RequestID,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}

		entry.ID = id.EntryID(entryID)
		entry.ActorID = id.UserID(actorID)
		entry.ActorSnapshot.Role = id.Role(actorRole)
		entry.Action = audit.Action(action)
		entry.Category = audit.EventCategory(category)
		entry.TargetKind = audit.TargetKind(kind)
		if len(details) > 0 {
			if err := json.Unmarshal(details, &entry.Details); err != nil {
				return nil, fmt.Errorf("decode audit details: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit entries: %w", err)
	}
	return entries, nil
}
