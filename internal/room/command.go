package room

import (
	"quizroom-service/internal/domain"
)

// Every external trigger for a room (host action, participant action,
// presence change, timer firing) becomes a typed command processed in
// arrival order by the room worker. Replies are delivered on buffered
// channels so the worker never blocks on a caller.
type command interface{ isCommand() }

type joinCmd struct {
	userID      string
	displayName string
	connID      string
	reply       chan joinReply
}

type joinReply struct {
	participantID string
	isHost        bool
	snapshot      domain.RoomSnapshot
	err           error
}

type detachCmd struct {
	connID string
}

type heartbeatCmd struct {
	connID string
}

type startCmd struct {
	actorUserID string
	reply       chan error
}

type nextCmd struct {
	actorUserID string
	reply       chan error
}

type endCmd struct {
	actorUserID string
	reply       chan error
}

type submitCmd struct {
	participantID string
	submission    domain.AnswerSubmission
	reply         chan submitReply
}

type submitReply struct {
	result domain.ScoredResult
	err    error
}

type subscribeCmd struct {
	participantID string
	reply         chan subscribeReply
}

type subscribeReply struct {
	events   <-chan Event
	cancel   func()
	snapshot domain.RoomSnapshot
}

type snapshotCmd struct {
	reply chan domain.RoomSnapshot
}

// deadlineCmd fires when the current question's timer elapses. generation
// guards against a stale timer racing a just-applied advance.
type deadlineCmd struct {
	generation uint64
}

// autoStartCmd fires when a scheduled room's start time is reached.
type autoStartCmd struct{}

// idleCmd fires when the idle timer elapses; the worker re-checks actual
// activity before completing the room.
type idleCmd struct{}

func (joinCmd) isCommand()      {}
func (detachCmd) isCommand()    {}
func (heartbeatCmd) isCommand() {}
func (startCmd) isCommand()     {}
func (nextCmd) isCommand()      {}
func (endCmd) isCommand()       {}
func (submitCmd) isCommand()    {}
func (subscribeCmd) isCommand() {}
func (snapshotCmd) isCommand()  {}
func (deadlineCmd) isCommand()  {}
func (autoStartCmd) isCommand() {}
func (idleCmd) isCommand()      {}
