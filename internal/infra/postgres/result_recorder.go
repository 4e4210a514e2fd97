package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quizroom-service/internal/domain"
)

// ResultRecorder writes final room outcomes to Postgres, one JSONB row per
// room. The insert is write-once: a second attempt for the same room id is
// rejected by the primary key.
type ResultRecorder struct {
	pool *pgxpool.Pool
}

func NewResultRecorder(pool *pgxpool.Pool) *ResultRecorder {
	return &ResultRecorder{pool: pool}
}

func (r *ResultRecorder) RecordRoomResult(ctx context.Context, result domain.RoomResult) error {
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal room result: %w", err)
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO room_results (room_id, quiz_id, data) VALUES ($1, $2, $3::jsonb) ON CONFLICT (room_id) DO NOTHING`,
		result.RoomID, result.QuizID, data)
	if err != nil {
		return fmt.Errorf("record room result: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrResultExists
	}
	return nil
}

// LoadRoomResult fetches a recorded result.
func (r *ResultRecorder) LoadRoomResult(ctx context.Context, roomID string) (domain.RoomResult, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT data FROM room_results WHERE room_id=$1`, roomID).Scan(&raw)
	if err != nil {
		return domain.RoomResult{}, fmt.Errorf("load room result: %w", err)
	}
	var result domain.RoomResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return domain.RoomResult{}, fmt.Errorf("unmarshal room result: %w", err)
	}
	return result, nil
}
