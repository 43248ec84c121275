package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Postgres stores each profile as a jsonb document next to its version. The
// version column is the compare-and-swap token for Save.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Create(ctx context.Context, profile *models.Profile) error {
	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO profiles (id, subject_id, document, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.UUID(profile.ID), uuid.UUID(profile.SubjectID), doc, profile.Version, profile.CreatedAt, profile.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert profile: %w", err)
	}
	return nil
}

func (s *Postgres) FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT document, version FROM profiles WHERE id = $1`, uuid.UUID(profileID))
	return scanProfile(row)
}

func (s *Postgres) FindBySubject(ctx context.Context, subjectID id.UserID) (*models.Profile, error) {
	row := s.pool.QueryRow(ctx, `SELECT document, version FROM profiles WHERE subject_id = $1`, uuid.UUID(subjectID))
	return scanProfile(row)
}

// List returns every profile, oldest first.
func (s *Postgres) List(ctx context.Context) ([]*models.Profile, error) {
	rows, err := s.pool.Query(ctx, `SELECT document, version FROM profiles ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	defer rows.Close()

	out := []*models.Profile{}
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate profiles: %w", err)
	}
	return out, nil
}

// Save updates the row only when its version equals expectedVersion.
func (s *Postgres) Save(ctx context.Context, profile *models.Profile, expectedVersion int64) error {
	doc, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		UPDATE profiles SET document = $1, version = $2, updated_at = $3
		WHERE id = $4 AND version = $5`,
		doc, profile.Version, profile.UpdatedAt, uuid.UUID(profile.ID), expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM profiles WHERE id = $1)`, uuid.UUID(profile.ID)).Scan(&exists); err != nil {
		return fmt.Errorf("check profile: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrConflict
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var (
		doc     []byte
		version int64
	)
	if err := row.Scan(&doc, &version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan profile: %w", err)
	}
	p, err := decodeProfile(doc)
	if err != nil {
		return nil, err
	}
	p.Version = version
	return p, nil
}
