package domain

import "errors"

var (
	// ErrRoomNotFound is returned when an id or join code does not resolve to a live room.
	ErrRoomNotFound = errors.New("room not found")
	// ErrRoomNotActive is returned for actions that are only valid while a room is active.
	ErrRoomNotActive = errors.New("room is not active")
	// ErrDuplicateSubmission is returned when a participant already answered the current question.
	// The original scored result stands.
	ErrDuplicateSubmission = errors.New("duplicate submission")
	// ErrStaleAction marks an action referencing a question the room has already moved past.
	// Callers treat it as an acknowledged no-op, not a failure.
	ErrStaleAction = errors.New("stale action")
	// ErrUnauthorized is returned when a non-host attempts a host-only action.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in room")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrCodePoolExhausted indicates no free join code could be drawn.
	ErrCodePoolExhausted = errors.New("join code pool exhausted")
	// ErrResultExists guards the write-once room result record.
	ErrResultExists = errors.New("room result already recorded")
)
