package room

import (
	"time"

	"quizroom-service/internal/domain"
)

// EventType tags the outbound messages pushed through the broadcast channel.
type EventType string

const (
	EventRoomSnapshot     EventType = "roomSnapshot"
	EventQuestionRevealed EventType = "questionRevealed"
	EventAnswerAck        EventType = "answerAck"
	EventScoreboardUpdate EventType = "scoreboardUpdate"
	EventPresence         EventType = "participantPresence"
	EventRoomCompleted    EventType = "roomCompleted"
	EventError            EventType = "errorSignal"
)

// Event is a single room-state change fanned out to subscribers.
// To is empty for broadcasts; when set, only the subscription registered for
// that participant receives the event (answer acks).
type Event struct {
	Type    EventType `json:"type"`
	RoomID  string    `json:"roomId"`
	To      string    `json:"-"`
	Payload any       `json:"payload,omitempty"`
}

// QuestionRevealedPayload carries the public question and its deadline.
type QuestionRevealedPayload struct {
	Question domain.QuestionView `json:"question"`
	Deadline time.Time           `json:"deadline"`
}

// AnswerAckPayload is delivered only to the submitting participant.
type AnswerAckPayload struct {
	QuestionIndex   int    `json:"questionIndex"`
	Applied         bool   `json:"applied"`
	Correct         bool   `json:"correct"`
	Delta           int    `json:"delta"`
	CumulativeScore int    `json:"cumulativeScore"`
	Reason          string `json:"reason,omitempty"` // "duplicate" or "stale" when not applied
}

// PresencePayload reports a connect or disconnect for one participant.
type PresencePayload struct {
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	Connected     bool   `json:"connected"`
}

// CompletedPayload carries the final scoreboard.
type CompletedPayload struct {
	Scoreboard domain.Scoreboard `json:"scoreboard"`
	Reason     string            `json:"reason"` // "exhausted", "host", "idle", "fault"
}

// ErrorPayload surfaces recoverable failures to a caller.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Context string `json:"context,omitempty"`
}
