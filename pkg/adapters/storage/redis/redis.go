package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ansor-ai/ansor/pkg/ports"
)

// RunStore implements RunStore using Redis: one JSON value per turn run,
// with a shared TTL.
type RunStore struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewRunStore creates a new Redis run store.
func NewRunStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RunStore {
	return &RunStore{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists a turn run under its session/turn key.
func (s *RunStore) SaveRun(ctx context.Context, run *ports.TurnRun) error {
	if run == nil {
		return fmt.Errorf("run is nil")
	}
	key := getRunKey(run.SessionID, run.TurnID)

	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}
	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run: %w", err)
	}

	s.logger.Debug("run saved",
		zap.String("session_id", run.SessionID),
		zap.String("turn_id", run.TurnID))
	return nil
}

// GetRun retrieves one turn run.
func (s *RunStore) GetRun(ctx context.Context, sessionID, turnID string) (*ports.TurnRun, error) {
	key := getRunKey(sessionID, turnID)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, fmt.Errorf("run not found: %s/%s", sessionID, turnID)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}

	var run ports.TurnRun
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns scans a session's keys and returns its runs ordered by creation
// time.
func (s *RunStore) ListRuns(ctx context.Context, sessionID string) ([]*ports.TurnRun, error) {
	keys, err := s.scanKeys(ctx, getRunKey(sessionID, "*"))
	if err != nil {
		return nil, err
	}

	runs := make([]*ports.TurnRun, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}
		var run ports.TurnRun
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		runs = append(runs, &run)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.Before(runs[j].CreatedAt)
	})
	return runs, nil
}

// DeleteSession removes every run of a session.
func (s *RunStore) DeleteSession(ctx context.Context, sessionID string) error {
	keys, err := s.scanKeys(ctx, getRunKey(sessionID, "*"))
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete session runs: %w", err)
	}

	s.logger.Debug("session runs deleted",
		zap.String("session_id", sessionID),
		zap.Int("count", len(keys)))
	return nil
}

func (s *RunStore) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}
		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func getRunKey(sessionID, turnID string) string {
	return fmt.Sprintf("ansor:run:%s:%s", sessionID, turnID)
}
