package domain

import "time"

// RoomStatus is the lifecycle state of a room. Transitions are monotonic:
// scheduled -> active -> completed.
type RoomStatus string

const (
	RoomScheduled RoomStatus = "scheduled"
	RoomActive    RoomStatus = "active"
	RoomCompleted RoomStatus = "completed"
)

// Option represents a possible answer for a question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question with exactly one correct option.
// Immutable once a room holding it has started.
type Question struct {
	ID          string   `json:"id"`
	Prompt      string   `json:"prompt"`
	Options     []Option `json:"options"`
	Points      int      `json:"points"`      // defaults to 1 if zero
	TimeLimitMs int64    `json:"timeLimitMs"` // 0 means the room default applies
	Difficulty  string   `json:"difficulty,omitempty"`
}

// Quiz is a collection of questions loaded from the content store.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// QuestionView is the participant-facing projection of a Question:
// same prompt and options, correct-answer marker stripped.
type QuestionView struct {
	ID      string       `json:"id"`
	Index   int          `json:"index"`
	Prompt  string       `json:"prompt"`
	Options []OptionView `json:"options"`
	Points  int          `json:"points"`
	LimitMs int64        `json:"limitMs"`
}

type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// PublicView strips the correct markers from a question.
func (q Question) PublicView(index int, limitMs int64) QuestionView {
	opts := make([]OptionView, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionView{ID: o.ID, Text: o.Text})
	}
	points := q.Points
	if points == 0 {
		points = 1
	}
	return QuestionView{
		ID:      q.ID,
		Index:   index,
		Prompt:  q.Prompt,
		Options: opts,
		Points:  points,
		LimitMs: limitMs,
	}
}

// Participant is a joined user bound to one room. The record survives
// connection churn; only ConnectionID changes on reconnect.
type Participant struct {
	ID           string
	UserID       string
	DisplayName  string
	ConnectionID string // empty while disconnected
	Score        int
	LastActive   time.Time
	Answers      []ScoredResult
}

// Answered reports whether the participant already submitted for the
// given question index.
func (p *Participant) Answered(questionIndex int) bool {
	for i := range p.Answers {
		if p.Answers[i].QuestionIndex == questionIndex {
			return true
		}
	}
	return false
}

// AnswerSubmission is the ephemeral scoring input from a client.
type AnswerSubmission struct {
	QuestionIndex int    `json:"questionIndex"`
	OptionID      string `json:"optionId"`
	ElapsedMs     int64  `json:"elapsedMs"`
}

// ScoredResult is the outcome of one accepted submission.
type ScoredResult struct {
	QuestionIndex int       `json:"questionIndex"`
	OptionID      string    `json:"optionId"`
	Correct       bool      `json:"correct"`
	Delta         int       `json:"delta"`
	TotalScore    int       `json:"totalScore"`
	SubmittedAt   time.Time `json:"submittedAt"`
}

// ScoreboardEntry is a snapshot-friendly view of a participant.
type ScoreboardEntry struct {
	ParticipantID string `json:"participantId"`
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	Score         int    `json:"score"`
	Connected     bool   `json:"connected"`
}

// Scoreboard captures the ordered roster for a room: score descending,
// ties broken by earliest last-active, then display name.
type Scoreboard struct {
	RoomID    string            `json:"roomId"`
	Entries   []ScoreboardEntry `json:"entries"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// RoomSnapshot is the authoritative state replayed to a connection on
// subscribe so a joining or reconnecting client is never missing context.
type RoomSnapshot struct {
	RoomID        string        `json:"roomId"`
	Code          string        `json:"code"`
	Status        RoomStatus    `json:"status"`
	QuestionIndex int           `json:"questionIndex"` // -1 before start
	QuestionCount int           `json:"questionCount"`
	Question      *QuestionView `json:"question,omitempty"`
	Deadline      *time.Time    `json:"deadline,omitempty"`
	ElapsedMs     int64         `json:"elapsedMs"` // time since current question was revealed
	Roster        Scoreboard    `json:"roster"`
}

// RoomResult is the write-once record handed to the result store when a
// room completes.
type RoomResult struct {
	RoomID     string                    `json:"roomId"`
	QuizID     string                    `json:"quizId"`
	Scoreboard Scoreboard                `json:"scoreboard"`
	History    map[string][]ScoredResult `json:"history"` // keyed by participant id
	StartedAt  time.Time                 `json:"startedAt"`
	EndedAt    time.Time                 `json:"endedAt"`
}
