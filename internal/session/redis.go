package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/samspacey/bsa-data/internal/models"
	"github.com/samspacey/bsa-data/pkg/utils"
	"github.com/sirupsen/logrus"
)

const redisKeyPrefix = "session:"

// maxTxRetries bounds optimistic-lock retries on concurrent turn commits.
const maxTxRetries = 5

// RedisStore is the shared Store for multi-process deployments. State is
// stored as JSON under session:<id> with a sliding TTL; SetIntent uses an
// optimistic transaction so concurrent commits never lose a turn.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *RedisStore {
	return &RedisStore{
		client: client,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

func redisKey(sessionID string) string {
	return redisKeyPrefix + sessionID
}

func (r *RedisStore) GetOrCreate(ctx context.Context, sessionID string) (*State, error) {
	if sessionID == "" {
		sessionID = utils.NewSessionID()
	}

	data, err := r.client.Get(ctx, redisKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		state := newState(sessionID, r.now())
		if err := r.persist(ctx, state); err != nil {
			return nil, err
		}
		return state, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session %s: %w", sessionID, err)
	}

	state := r.decode(sessionID, []byte(data))
	return state, nil
}

func (r *RedisStore) SetIntent(ctx context.Context, sessionID string, intent models.QueryIntent) error {
	key := redisKey(sessionID)

	commit := func(tx *redis.Tx) error {
		var state *State
		data, err := tx.Get(ctx, key).Result()
		switch {
		case errors.Is(err, redis.Nil):
			state = newState(sessionID, r.now())
		case err != nil:
			return fmt.Errorf("failed to load session %s: %w", sessionID, err)
		default:
			state = r.decode(sessionID, []byte(data))
		}

		state.LastIntent = &intent
		state.TurnCount++
		state.UpdatedAt = r.now()

		payload, err := json.Marshal(state)
		if err != nil {
			return fmt.Errorf("failed to encode session %s: %w", sessionID, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, r.ttl)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := r.client.Watch(ctx, commit, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("failed to commit session %s after %d attempts", sessionID, maxTxRetries)
}

func (r *RedisStore) Reset(ctx context.Context, sessionID string) error {
	if sessionID != "" {
		if err := r.client.Del(ctx, redisKey(sessionID)).Err(); err != nil {
			return fmt.Errorf("failed to reset session %s: %w", sessionID, err)
		}
		return nil
	}

	iter := r.client.Scan(ctx, 0, redisKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return fmt.Errorf("failed to delete %s: %w", iter.Val(), err)
		}
	}
	return iter.Err()
}

func (r *RedisStore) persist(ctx context.Context, state *State) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", state.SessionID, err)
	}
	if err := r.client.Set(ctx, redisKey(state.SessionID), payload, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session %s: %w", state.SessionID, err)
	}
	return nil
}

// decode falls back to a fresh state when the stored JSON is unreadable,
// so one corrupted entry cannot wedge a session forever.
func (r *RedisStore) decode(sessionID string, data []byte) *State {
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		r.logger.WithError(err).WithField("session_id", sessionID).Warn("Corrupted session state, starting fresh")
		return newState(sessionID, r.now())
	}
	return &state
}
