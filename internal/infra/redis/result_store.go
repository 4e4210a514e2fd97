package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizroom-service/internal/domain"
)

// ResultStore persists final room outcomes in Redis. Records are write-once:
// SET NX guards against a room result being overwritten.
// Layout: SET room:{roomID}:result {json} EX ttl (0 ttl keeps it forever).
type ResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewResultStore(client *redis.Client, ttl time.Duration) *ResultStore {
	return &ResultStore{client: client, ttl: ttl}
}

func (s *ResultStore) RecordRoomResult(ctx context.Context, result domain.RoomResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal room result: %w", err)
	}
	ok, err := s.client.SetNX(ctx, s.key(result.RoomID), data, s.ttl).Result()
	if err != nil {
		return fmt.Errorf("record room result: %w", err)
	}
	if !ok {
		return domain.ErrResultExists
	}
	return nil
}

// Get fetches a recorded result.
func (s *ResultStore) Get(ctx context.Context, roomID string) (domain.RoomResult, error) {
	raw, err := s.client.Get(ctx, s.key(roomID)).Bytes()
	if err != nil {
		return domain.RoomResult{}, fmt.Errorf("load room result: %w", err)
	}
	var result domain.RoomResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.RoomResult{}, fmt.Errorf("unmarshal room result: %w", err)
	}
	return result, nil
}

func (s *ResultStore) key(roomID string) string {
	return "room:" + roomID + ":result"
}
