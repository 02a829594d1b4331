package session

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"pollchat/internal/apperr"
)

const defaultRedisKey = "chat:sessions"

// Redis keeps the registry in a single hash so it survives process restarts.
type Redis struct {
	client *redis.Client
	key    string
}

func NewRedis(client *redis.Client, key string) *Redis {
	if key == "" {
		key = defaultRedisKey
	}
	return &Redis{client: client, key: key}
}

func (r *Redis) Add(ctx context.Context, s Session) error {
	if s.Since.IsZero() {
		s.Since = time.Now().UTC()
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	// HSETNX keeps the first login's entry
	if err := r.client.HSetNX(ctx, r.key, strconv.Itoa(s.UserID), payload).Err(); err != nil {
		return apperr.Store("session add", err)
	}
	return nil
}

func (r *Redis) Remove(ctx context.Context, userID int) (bool, error) {
	n, err := r.client.HDel(ctx, r.key, strconv.Itoa(userID)).Result()
	if err != nil {
		return false, apperr.Store("session remove", err)
	}
	return n > 0, nil
}

func (r *Redis) Find(ctx context.Context, userID int) (*Session, error) {
	raw, err := r.client.HGet(ctx, r.key, strconv.Itoa(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, apperr.Store("session find", err)
	}
	var s Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		return nil, apperr.Store("session decode", err)
	}
	return &s, nil
}

func (r *Redis) List(ctx context.Context) ([]Session, error) {
	all, err := r.client.HGetAll(ctx, r.key).Result()
	if err != nil {
		return nil, apperr.Store("session list", err)
	}
	out := make([]Session, 0, len(all))
	for _, raw := range all {
		var s Session
		if err := json.Unmarshal([]byte(raw), &s); err != nil {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Since.Equal(out[j].Since) {
			return out[i].UserID < out[j].UserID
		}
		return out[i].Since.Before(out[j].Since)
	})
	return out, nil
}
