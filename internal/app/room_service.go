package app

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizroom-service/internal/domain"
	"quizroom-service/internal/room"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ResultStore records the final outcome of a room, write-once.
type ResultStore interface {
	RecordRoomResult(ctx context.Context, result domain.RoomResult) error
}

// RoomOptions are the host-supplied knobs at room creation.
type RoomOptions struct {
	StartNow  bool       `json:"startNow"`
	AutoStart bool       `json:"autoStart"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Shuffle   bool       `json:"shuffle"`
}

// Tuning carries service-wide room defaults sourced from config.
type Tuning struct {
	DefaultQuestionMs int64
	IdleTimeout       time.Duration
	Scoring           room.ScoringPolicy
}

// RoomInfo is returned to the host after creation.
type RoomInfo struct {
	RoomID string `json:"roomId"`
	Code   string `json:"code"`
}

// RoomService contains the room orchestration use cases: it resolves quiz
// snapshots, drives the registry, and hands completed results to the store.
type RoomService struct {
	registry *room.Registry
	quizzes  QuizRepository
	results  ResultStore
	clock    clockwork.Clock
	tuning   Tuning
}

func NewRoomService(registry *room.Registry, quizzes QuizRepository, results ResultStore, clock clockwork.Clock, tuning Tuning) *RoomService {
	return &RoomService{
		registry: registry,
		quizzes:  quizzes,
		results:  results,
		clock:    clock,
		tuning:   tuning,
	}
}

// CreateRoom takes a read-only snapshot of the quiz and spins up a room
// machine for it.
func (s *RoomService) CreateRoom(ctx context.Context, quizID, hostID string, opts RoomOptions) (RoomInfo, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return RoomInfo{}, err
	}

	cfg := room.Config{
		StartNow:          opts.StartNow,
		AutoStart:         opts.AutoStart,
		Shuffle:           opts.Shuffle,
		DefaultQuestionMs: s.tuning.DefaultQuestionMs,
		IdleTimeout:       s.tuning.IdleTimeout,
		Scoring:           s.tuning.Scoring,
	}
	if opts.StartTime != nil {
		cfg.StartTime = *opts.StartTime
	} else if opts.AutoStart {
		cfg.StartTime = s.clock.Now()
	}

	machine, err := s.registry.Create(quiz, hostID, cfg, s.handleCompleted)
	if err != nil {
		return RoomInfo{}, err
	}
	return RoomInfo{RoomID: machine.ID(), Code: machine.Code()}, nil
}

// Resolve returns the live machine for an id or join code.
func (s *RoomService) Resolve(idOrCode string) (*room.Machine, error) {
	return s.registry.Resolve(idOrCode)
}

// Join binds a user's connection to a room, creating the participant record
// on first join and reattaching it on reconnect.
func (s *RoomService) Join(_ context.Context, idOrCode, userID, displayName, connID string) (string, bool, domain.RoomSnapshot, error) {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return "", false, domain.RoomSnapshot{}, err
	}
	return machine.Join(userID, displayName, connID)
}

// SubmitAnswer forwards a participant's answer into the room worker.
func (s *RoomService) SubmitAnswer(_ context.Context, idOrCode, participantID string, sub domain.AnswerSubmission) (domain.ScoredResult, error) {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return domain.ScoredResult{}, err
	}
	return machine.Submit(participantID, sub)
}

// StartRoom applies the host's start action.
func (s *RoomService) StartRoom(_ context.Context, idOrCode, actorUserID string) error {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return err
	}
	return machine.Start(actorUserID)
}

// NextQuestion advances the room on the host's behalf.
func (s *RoomService) NextQuestion(_ context.Context, idOrCode, actorUserID string) error {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return err
	}
	return machine.Next(actorUserID)
}

// EndRoom completes the room on the host's behalf.
func (s *RoomService) EndRoom(_ context.Context, idOrCode, actorUserID string) error {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return err
	}
	return machine.End(actorUserID)
}

// Heartbeat refreshes presence for a connection.
func (s *RoomService) Heartbeat(idOrCode, connID string) {
	if machine, err := s.registry.Resolve(idOrCode); err == nil {
		machine.Heartbeat(connID)
	}
}

// Detach reports a transport-level disconnect; room logic treats it as a
// presence loss, never as an error.
func (s *RoomService) Detach(idOrCode, connID string) {
	if machine, err := s.registry.Resolve(idOrCode); err == nil {
		machine.Detach(connID)
	}
}

// Subscribe registers a connection for room events with snapshot replay.
func (s *RoomService) Subscribe(_ context.Context, idOrCode, participantID string) (<-chan room.Event, func(), domain.RoomSnapshot, error) {
	machine, err := s.registry.Resolve(idOrCode)
	if err != nil {
		return nil, nil, domain.RoomSnapshot{}, err
	}
	return machine.Subscribe(participantID)
}

// handleCompleted persists the final result and retires the room. The id and
// code become reusable only after the store accepted the record.
func (s *RoomService) handleCompleted(result domain.RoomResult) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.results.RecordRoomResult(ctx, result); err != nil {
		log.Error().Err(err).Str("room_id", result.RoomID).Msg("failed to record room result")
	}
	s.registry.Destroy(result.RoomID)
}
