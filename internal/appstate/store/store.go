// Package store persists the role selection in memory, Redis or PostgreSQL.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"dossier/internal/appstate"
	"dossier/pkg/platform/sentinel"
)

const (
	redisKey    = "dossier:session:selection"
	postgresKey = "session.selection"
)

type InMemory struct {
	mu  sync.RWMutex
	sel *appstate.Selection
}

func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) Load(_ context.Context) (*appstate.Selection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.sel == nil {
		return nil, sentinel.ErrNotFound
	}
	sel := *s.sel
	return &sel, nil
}

func (s *InMemory) Save(_ context.Context, sel appstate.Selection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sel = &sel
	return nil
}

// Redis keeps the selection as a JSON value under one key.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func (s *Redis) Load(ctx context.Context) (*appstate.Selection, error) {
	raw, err := s.client.Get(ctx, redisKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get selection: %w", err)
	}
	var sel appstate.Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return &sel, nil
}

func (s *Redis) Save(ctx context.Context, sel appstate.Selection) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	if err := s.client.Set(ctx, redisKey, raw, 0).Err(); err != nil {
		return fmt.Errorf("set selection: %w", err)
	}
	return nil
}

// Postgres keeps the selection as one row of the app_state table.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Load(ctx context.Context) (*appstate.Selection, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT value FROM app_state WHERE key = $1`, postgresKey).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("load selection: %w", err)
	}
	var sel appstate.Selection
	if err := json.Unmarshal(raw, &sel); err != nil {
		return nil, fmt.Errorf("decode selection: %w", err)
	}
	return &sel, nil
}

func (s *Postgres) Save(ctx context.Context, sel appstate.Selection) error {
	raw, err := json.Marshal(sel)
	if err != nil {
		return fmt.Errorf("encode selection: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO app_state (key, value, updated_at) VALUES ($1, $2, $3)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		postgresKey, raw, sel.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save selection: %w", err)
	}
	return nil
}
