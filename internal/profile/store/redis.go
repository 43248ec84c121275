package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"dossier/internal/profile/models"
	id "dossier/pkg/domain"
	"dossier/pkg/platform/sentinel"

	"github.com/redis/go-redis/v9"
)

const (
	profileKeyPrefix = "dossier:profile:"
	subjectKeyPrefix = "dossier:profile-subject:"
	profileIndexKey  = "dossier:profiles"
)

// Redis stores each profile as one JSON document. Save uses WATCH on the
// document key so a concurrent writer aborts the transaction.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func profileKey(profileID id.ProfileID) string { return profileKeyPrefix + profileID.String() }
func subjectKey(subjectID id.UserID) string    { return subjectKeyPrefix + subjectID.String() }

// Create claims the subject, writes the document and indexes it. A failure
// after the subject claim releases every key written so far, so a retry
// starts clean.
func (s *Redis) Create(ctx context.Context, profile *models.Profile) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}

	claimed, err := s.client.SetNX(ctx, subjectKey(profile.SubjectID), profile.ID.String(), 0).Result()
	if err != nil {
		return fmt.Errorf("claim subject: %w", err)
	}
	if !claimed {
		return sentinel.ErrConflict
	}

	created, err := s.client.SetNX(ctx, profileKey(profile.ID), data, 0).Result()
	if err != nil || !created {
		s.release(ctx, subjectKey(profile.SubjectID))
		if err != nil {
			return fmt.Errorf("create profile: %w", err)
		}
		return sentinel.ErrConflict
	}
	if err := s.client.SAdd(ctx, profileIndexKey, profile.ID.String()).Err(); err != nil {
		s.release(ctx, profileKey(profile.ID), subjectKey(profile.SubjectID))
		return fmt.Errorf("index profile: %w", err)
	}
	return nil
}

// release deletes keys left by a failed Create. It runs on a context that
// survives cancellation of the caller's.
func (s *Redis) release(ctx context.Context, keys ...string) {
	_ = s.client.Del(context.WithoutCancel(ctx), keys...).Err()
}

func (s *Redis) FindByID(ctx context.Context, profileID id.ProfileID) (*models.Profile, error) {
	raw, err := s.client.Get(ctx, profileKey(profileID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return decodeProfile(raw)
}

func (s *Redis) FindBySubject(ctx context.Context, subjectID id.UserID) (*models.Profile, error) {
	raw, err := s.client.Get(ctx, subjectKey(subjectID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get subject index: %w", err)
	}
	profileID, err := id.ParseProfileID(raw)
	if err != nil {
		return nil, fmt.Errorf("subject index holds %q: %w", raw, err)
	}
	return s.FindByID(ctx, profileID)
}

// List returns every profile, oldest first.
func (s *Redis) List(ctx context.Context) ([]*models.Profile, error) {
	ids, err := s.client.SMembers(ctx, profileIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list profile ids: %w", err)
	}
	if len(ids) == 0 {
		return []*models.Profile{}, nil
	}
	keys := make([]string, len(ids))
	for i, raw := range ids {
		keys[i] = profileKeyPrefix + raw
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load profiles: %w", err)
	}

	out := make([]*models.Profile, 0, len(values))
	for _, v := range values {
		str, ok := v.(string)
		if !ok {
			continue
		}
		p, err := decodeProfile([]byte(str))
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	sortProfiles(out)
	return out, nil
}

// Save writes profile when the stored version equals expectedVersion.
func (s *Redis) Save(ctx context.Context, profile *models.Profile, expectedVersion int64) error {
	data, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	key := profileKey(profile.ID)

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return sentinel.ErrNotFound
			}
			return fmt.Errorf("get profile: %w", err)
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode stored version: %w", err)
		}
		if stored.Version != expectedVersion {
			return sentinel.ErrConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return sentinel.ErrConflict
	}
	return err
}

func decodeProfile(raw []byte) (*models.Profile, error) {
	var p models.Profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("decode profile: %w", err)
	}
	return &p, nil
}
