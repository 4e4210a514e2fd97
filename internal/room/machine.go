package room

import (
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizroom-service/internal/domain"
)

// Config carries the per-room tuning knobs.
type Config struct {
	// StartNow activates the room immediately at creation.
	StartNow bool
	// AutoStart arms a timer that activates the room once StartTime passes.
	AutoStart bool
	StartTime time.Time
	// Shuffle randomizes question order at activation.
	Shuffle bool
	// DefaultQuestionMs applies to questions that carry no time limit.
	DefaultQuestionMs int64
	// IdleTimeout completes a room with no host or participant activity.
	IdleTimeout time.Duration
	Scoring     ScoringPolicy
}

// Machine owns one room's lifecycle, question cursor, and roster. All state
// below the cmds channel is touched only by the worker goroutine; every
// trigger (action, timer, presence change) enters as a typed command and is
// applied in arrival order, so no two mutations of the same room race.
type Machine struct {
	id     string
	code   string
	hostID string
	quizID string

	cfg   Config
	clock clockwork.Clock

	cmds     chan command
	done     chan struct{}
	stopOnce sync.Once

	// onComplete hands the final result to the caller exactly once.
	onComplete func(domain.RoomResult)

	// worker-owned state
	status          domain.RoomStatus
	questions       []domain.Question
	questionIdx     int
	startTime       time.Time
	endTime         time.Time
	questionStarted time.Time
	deadline        time.Time
	generation      uint64
	lastActivity    time.Time
	participants    map[string]*domain.Participant
	byUser          map[string]string
	hostConn        string
	presence        *presenceTracker
	bcast           *broadcaster
	deadlineTimer   clockwork.Timer
	resultSent      bool
	rnd             *rand.Rand
}

func newMachine(id, code string, quiz domain.Quiz, hostID string, cfg Config, clock clockwork.Clock, onComplete func(domain.RoomResult)) *Machine {
	if cfg.DefaultQuestionMs <= 0 {
		cfg.DefaultQuestionMs = 30_000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 5 * time.Minute
	}

	questions := make([]domain.Question, len(quiz.Questions))
	copy(questions, quiz.Questions)

	now := clock.Now()
	m := &Machine{
		id:           id,
		code:         code,
		hostID:       hostID,
		quizID:       quiz.ID,
		cfg:          cfg,
		clock:        clock,
		cmds:         make(chan command, 64),
		done:         make(chan struct{}),
		onComplete:   onComplete,
		status:       domain.RoomScheduled,
		questions:    questions,
		questionIdx:  -1,
		lastActivity: now,
		participants: make(map[string]*domain.Participant),
		byUser:       make(map[string]string),
		presence:     newPresenceTracker(),
		bcast:        newBroadcaster(),
		rnd:          rand.New(rand.NewSource(now.UnixNano())),
	}

	if cfg.StartNow {
		// No subscribers yet and the worker has not started, so mutating
		// directly here is still single-threaded.
		m.start(now)
	} else if cfg.AutoStart {
		m.armAutoStart(now)
	}
	m.armIdleCheck()

	go m.run()
	return m
}

// ID returns the opaque room identifier.
func (m *Machine) ID() string { return m.id }

// Code returns the human-shareable join code.
func (m *Machine) Code() string { return m.code }

// HostID returns the user id of the room's host.
func (m *Machine) HostID() string { return m.hostID }

// QuizID returns the id of the quiz snapshot the room plays.
func (m *Machine) QuizID() string { return m.quizID }

func (m *Machine) run() {
	for {
		select {
		case cmd := <-m.cmds:
			m.apply(cmd)
		case <-m.done:
			m.stopDeadline()
			m.bcast.closeAll()
			return
		}
	}
}

// apply dispatches one command, recovering from panics so a corrupted room
// cannot take down its neighbours. A panicking room is completed defensively.
func (m *Machine) apply(cmd command) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Str("room_id", m.id).Interface("panic", r).Msg("room worker fault, completing defensively")
			m.complete("fault")
		}
	}()
	m.handle(cmd)
}

func (m *Machine) handle(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- m.handleJoin(c)
	case detachCmd:
		m.handleDetach(c.connID)
	case heartbeatCmd:
		m.handleHeartbeat(c.connID)
	case startCmd:
		c.reply <- m.handleStart(c.actorUserID)
	case nextCmd:
		c.reply <- m.handleNext(c.actorUserID)
	case endCmd:
		c.reply <- m.handleEnd(c.actorUserID)
	case submitCmd:
		c.reply <- m.handleSubmit(c)
	case subscribeCmd:
		events, cancel := m.bcast.subscribe(c.participantID)
		c.reply <- subscribeReply{events: events, cancel: cancel, snapshot: m.snapshot()}
	case snapshotCmd:
		c.reply <- m.snapshot()
	case deadlineCmd:
		if c.generation == m.generation && m.status == domain.RoomActive {
			log.Debug().Str("room_id", m.id).Int("question", m.questionIdx).Msg("question deadline fired")
			m.advance()
		}
	case autoStartCmd:
		if m.status == domain.RoomScheduled {
			log.Info().Str("room_id", m.id).Str("code", m.code).Msg("auto-start deadline reached")
			m.start(m.clock.Now())
		}
	case idleCmd:
		m.handleIdle()
	}
}

func (m *Machine) handleJoin(c joinCmd) joinReply {
	if m.status == domain.RoomCompleted {
		return joinReply{err: domain.ErrRoomNotActive}
	}

	now := m.clock.Now()
	m.lastActivity = now

	if c.userID == m.hostID {
		m.hostConn = c.connID
		return joinReply{isHost: true, snapshot: m.snapshot()}
	}

	var p *domain.Participant
	if pid, ok := m.byUser[c.userID]; ok {
		p = m.participants[pid]
		if c.displayName != "" {
			p.DisplayName = c.displayName
		}
	} else {
		p = &domain.Participant{
			ID:          uuid.NewString(),
			UserID:      c.userID,
			DisplayName: c.displayName,
			LastActive:  now,
		}
		m.participants[p.ID] = p
		m.byUser[c.userID] = p.ID
	}

	m.presence.attach(p, c.connID, now)
	m.bcast.publish(Event{
		Type:    EventPresence,
		RoomID:  m.id,
		Payload: PresencePayload{ParticipantID: p.ID, UserID: p.UserID, Connected: true},
	})
	m.publishScoreboard()

	return joinReply{participantID: p.ID, snapshot: m.snapshot()}
}

func (m *Machine) handleDetach(connID string) {
	if connID == m.hostConn {
		m.hostConn = ""
		log.Debug().Str("room_id", m.id).Msg("host disconnected, deadlines keep the room moving")
		return
	}
	pid, ok := m.presence.detach(connID)
	if !ok {
		return
	}
	p := m.participants[pid]
	p.ConnectionID = ""
	m.bcast.publish(Event{
		Type:    EventPresence,
		RoomID:  m.id,
		Payload: PresencePayload{ParticipantID: p.ID, UserID: p.UserID, Connected: false},
	})
}

func (m *Machine) handleHeartbeat(connID string) {
	now := m.clock.Now()
	if connID == m.hostConn {
		m.lastActivity = now
		return
	}
	if pid, ok := m.presence.lookup(connID); ok {
		m.participants[pid].LastActive = now
		m.lastActivity = now
	}
}

func (m *Machine) handleStart(actor string) error {
	if actor != m.hostID {
		return domain.ErrUnauthorized
	}
	m.lastActivity = m.clock.Now()
	switch m.status {
	case domain.RoomScheduled:
		m.start(m.clock.Now())
		return nil
	default:
		// Already started or completed: acknowledged, not applied.
		return nil
	}
}

func (m *Machine) handleNext(actor string) error {
	if actor != m.hostID {
		return domain.ErrUnauthorized
	}
	if m.status != domain.RoomActive {
		return domain.ErrRoomNotActive
	}
	m.lastActivity = m.clock.Now()
	m.advance()
	return nil
}

func (m *Machine) handleEnd(actor string) error {
	if actor != m.hostID {
		return domain.ErrUnauthorized
	}
	m.lastActivity = m.clock.Now()
	if m.status == domain.RoomCompleted {
		return nil
	}
	m.complete("host")
	return nil
}

func (m *Machine) handleSubmit(c submitCmd) submitReply {
	if m.status != domain.RoomActive {
		return submitReply{err: domain.ErrRoomNotActive}
	}
	p, ok := m.participants[c.participantID]
	if !ok {
		return submitReply{err: domain.ErrParticipantNotFound}
	}

	now := m.clock.Now()
	p.LastActive = now
	m.lastActivity = now

	if c.submission.QuestionIndex != m.questionIdx {
		m.ackSubmission(p.ID, c.submission.QuestionIndex, false, 0, p.Score, "stale")
		return submitReply{err: domain.ErrStaleAction}
	}
	if p.Answered(m.questionIdx) {
		m.ackSubmission(p.ID, m.questionIdx, false, 0, p.Score, "duplicate")
		return submitReply{err: domain.ErrDuplicateSubmission}
	}

	q := m.questions[m.questionIdx]
	elapsed := c.submission.ElapsedMs
	if elapsed < 0 {
		elapsed = 0
	}
	correct, delta := m.cfg.Scoring.Score(q, c.submission.OptionID, elapsed, m.questionLimitMs(q))

	p.Score += delta
	result := domain.ScoredResult{
		QuestionIndex: m.questionIdx,
		OptionID:      c.submission.OptionID,
		Correct:       correct,
		Delta:         delta,
		TotalScore:    p.Score,
		SubmittedAt:   now,
	}
	p.Answers = append(p.Answers, result)

	m.bcast.publish(Event{
		Type:   EventAnswerAck,
		RoomID: m.id,
		To:     p.ID,
		Payload: AnswerAckPayload{
			QuestionIndex:   result.QuestionIndex,
			Applied:         true,
			Correct:         correct,
			Delta:           delta,
			CumulativeScore: p.Score,
		},
	})
	m.publishScoreboard()

	if m.allConnectedAnswered() {
		log.Debug().Str("room_id", m.id).Int("question", m.questionIdx).Msg("all connected participants answered")
		m.advance()
	}
	return submitReply{result: result}
}

func (m *Machine) ackSubmission(pid string, idx int, applied bool, delta, total int, reason string) {
	m.bcast.publish(Event{
		Type:   EventAnswerAck,
		RoomID: m.id,
		To:     pid,
		Payload: AnswerAckPayload{
			QuestionIndex:   idx,
			Applied:         applied,
			Delta:           delta,
			CumulativeScore: total,
			Reason:          reason,
		},
	})
}

func (m *Machine) handleIdle() {
	if m.status == domain.RoomCompleted {
		return
	}
	now := m.clock.Now()
	idleFor := now.Sub(m.lastActivity)
	if idleFor >= m.cfg.IdleTimeout {
		log.Info().Str("room_id", m.id).Dur("idle_for", idleFor).Msg("room idle ceiling reached")
		m.complete("idle")
		return
	}
	m.armIdleAfter(m.cfg.IdleTimeout - idleFor)
}

// start applies scheduled -> active: question order fixed (shuffled when
// configured), cursor to the first question, deadline armed.
func (m *Machine) start(now time.Time) {
	if m.status != domain.RoomScheduled {
		return
	}
	m.status = domain.RoomActive
	if m.startTime.IsZero() {
		m.startTime = now
	}
	m.lastActivity = now
	if m.cfg.Shuffle {
		m.rnd.Shuffle(len(m.questions), func(i, j int) {
			m.questions[i], m.questions[j] = m.questions[j], m.questions[i]
		})
	}
	log.Info().Str("room_id", m.id).Str("code", m.code).Int("questions", len(m.questions)).Msg("room activated")
	m.advance()
}

// advance moves the cursor to the next question, or completes the room when
// questions are exhausted. Bumping the generation invalidates any in-flight
// deadline for the previous question.
func (m *Machine) advance() {
	m.generation++
	m.stopDeadline()

	m.questionIdx++
	if m.questionIdx >= len(m.questions) {
		m.complete("exhausted")
		return
	}

	q := m.questions[m.questionIdx]
	limitMs := m.questionLimitMs(q)
	now := m.clock.Now()
	m.questionStarted = now
	m.deadline = now.Add(time.Duration(limitMs) * time.Millisecond)
	m.armDeadline(time.Duration(limitMs)*time.Millisecond, m.generation)

	m.bcast.publish(Event{
		Type:   EventQuestionRevealed,
		RoomID: m.id,
		Payload: QuestionRevealedPayload{
			Question: q.PublicView(m.questionIdx, limitMs),
			Deadline: m.deadline,
		},
	})
}

// complete applies the terminal transition exactly once: end time recorded,
// timers cancelled, final scoreboard emitted, result handed off.
func (m *Machine) complete(reason string) {
	if m.status == domain.RoomCompleted {
		return
	}
	now := m.clock.Now()
	m.status = domain.RoomCompleted
	m.endTime = now
	m.generation++
	m.stopDeadline()

	sb := m.scoreboard()
	log.Info().Str("room_id", m.id).Str("reason", reason).Int("participants", len(sb.Entries)).Msg("room completed")
	m.bcast.publish(Event{
		Type:    EventRoomCompleted,
		RoomID:  m.id,
		Payload: CompletedPayload{Scoreboard: sb, Reason: reason},
	})

	if m.onComplete != nil && !m.resultSent {
		m.resultSent = true
		history := make(map[string][]domain.ScoredResult, len(m.participants))
		for pid, p := range m.participants {
			answers := make([]domain.ScoredResult, len(p.Answers))
			copy(answers, p.Answers)
			history[pid] = answers
		}
		result := domain.RoomResult{
			RoomID:     m.id,
			QuizID:     m.quizID,
			Scoreboard: sb,
			History:    history,
			StartedAt:  m.startTime,
			EndedAt:    m.endTime,
		}
		// Result handoff may hit slow storage; keep it off the worker.
		go m.onComplete(result)
	}
}

func (m *Machine) allConnectedAnswered() bool {
	connected := 0
	for _, p := range m.participants {
		if p.ConnectionID == "" {
			continue
		}
		connected++
		if !p.Answered(m.questionIdx) {
			return false
		}
	}
	return connected > 0
}

func (m *Machine) questionLimitMs(q domain.Question) int64 {
	if q.TimeLimitMs > 0 {
		return q.TimeLimitMs
	}
	return m.cfg.DefaultQuestionMs
}

func (m *Machine) publishScoreboard() {
	m.bcast.publish(Event{Type: EventScoreboardUpdate, RoomID: m.id, Payload: m.scoreboard()})
}

func (m *Machine) scoreboard() domain.Scoreboard {
	entries := make([]domain.ScoreboardEntry, 0, len(m.participants))
	for _, p := range m.participants {
		entries = append(entries, domain.ScoreboardEntry{
			ParticipantID: p.ID,
			UserID:        p.UserID,
			DisplayName:   p.DisplayName,
			Score:         p.Score,
			Connected:     p.ConnectionID != "",
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		pi := m.participants[entries[i].ParticipantID]
		pj := m.participants[entries[j].ParticipantID]
		if !pi.LastActive.Equal(pj.LastActive) {
			return pi.LastActive.Before(pj.LastActive)
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	return domain.Scoreboard{RoomID: m.id, Entries: entries, UpdatedAt: m.clock.Now()}
}

func (m *Machine) snapshot() domain.RoomSnapshot {
	snap := domain.RoomSnapshot{
		RoomID:        m.id,
		Code:          m.code,
		Status:        m.status,
		QuestionIndex: m.questionIdx,
		QuestionCount: len(m.questions),
		Roster:        m.scoreboard(),
	}
	if m.status == domain.RoomActive && m.questionIdx >= 0 && m.questionIdx < len(m.questions) {
		q := m.questions[m.questionIdx]
		view := q.PublicView(m.questionIdx, m.questionLimitMs(q))
		snap.Question = &view
		deadline := m.deadline
		snap.Deadline = &deadline
		snap.ElapsedMs = m.clock.Now().Sub(m.questionStarted).Milliseconds()
	}
	return snap
}

// armDeadline starts a one-shot timer that posts a deadline command back into
// the mailbox. The generation stamp makes a late fire a no-op.
func (m *Machine) armDeadline(d time.Duration, generation uint64) {
	timer := m.clock.NewTimer(d)
	m.deadlineTimer = timer
	go func() {
		select {
		case <-timer.Chan():
			select {
			case m.cmds <- deadlineCmd{generation: generation}:
			case <-m.done:
			}
		case <-m.done:
		}
	}()
}

func (m *Machine) armAutoStart(now time.Time) {
	d := m.cfg.StartTime.Sub(now)
	if d < 0 {
		d = 0
	}
	timer := m.clock.NewTimer(d)
	go func() {
		select {
		case <-timer.Chan():
			select {
			case m.cmds <- autoStartCmd{}:
			case <-m.done:
			}
		case <-m.done:
			stopAndDrainTimer(timer)
		}
	}()
}

func (m *Machine) armIdleCheck() {
	m.armIdleAfter(m.cfg.IdleTimeout)
}

func (m *Machine) armIdleAfter(d time.Duration) {
	timer := m.clock.NewTimer(d)
	go func() {
		select {
		case <-timer.Chan():
			select {
			case m.cmds <- idleCmd{}:
			case <-m.done:
			}
		case <-m.done:
			stopAndDrainTimer(timer)
		}
	}()
}

func (m *Machine) stopDeadline() {
	if m.deadlineTimer != nil {
		stopAndDrainTimer(m.deadlineTimer)
		m.deadlineTimer = nil
	}
}

// stopAndDrainTimer stops a timer and drains a pending fire so the waiting
// goroutine does not leak.
func stopAndDrainTimer(t clockwork.Timer) {
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

// Stop tears the worker down. Destroying a room does not publish further
// events; subscriber channels are closed.
func (m *Machine) Stop() {
	m.stopOnce.Do(func() { close(m.done) })
}

func (m *Machine) send(cmd command) bool {
	select {
	case m.cmds <- cmd:
		return true
	case <-m.done:
		return false
	}
}

// Join registers a participant (or reconnects one) and binds its connection.
// The host joins its own room as an observer; it never appears in the roster.
func (m *Machine) Join(userID, displayName, connID string) (string, bool, domain.RoomSnapshot, error) {
	reply := make(chan joinReply, 1)
	if !m.send(joinCmd{userID: userID, displayName: displayName, connID: connID, reply: reply}) {
		return "", false, domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	r := <-reply
	return r.participantID, r.isHost, r.snapshot, r.err
}

// Detach reports a transport-level disconnect for a connection.
func (m *Machine) Detach(connID string) {
	m.send(detachCmd{connID: connID})
}

// Heartbeat refreshes last-active for the connection's owner.
func (m *Machine) Heartbeat(connID string) {
	m.send(heartbeatCmd{connID: connID})
}

// Start applies the host's explicit start action.
func (m *Machine) Start(actorUserID string) error {
	reply := make(chan error, 1)
	if !m.send(startCmd{actorUserID: actorUserID, reply: reply}) {
		return domain.ErrRoomNotFound
	}
	return <-reply
}

// Next advances the question cursor on the host's behalf.
func (m *Machine) Next(actorUserID string) error {
	reply := make(chan error, 1)
	if !m.send(nextCmd{actorUserID: actorUserID, reply: reply}) {
		return domain.ErrRoomNotFound
	}
	return <-reply
}

// End completes the room on the host's behalf.
func (m *Machine) End(actorUserID string) error {
	reply := make(chan error, 1)
	if !m.send(endCmd{actorUserID: actorUserID, reply: reply}) {
		return domain.ErrRoomNotFound
	}
	return <-reply
}

// Submit scores one answer for the current question.
func (m *Machine) Submit(participantID string, sub domain.AnswerSubmission) (domain.ScoredResult, error) {
	reply := make(chan submitReply, 1)
	if !m.send(submitCmd{participantID: participantID, submission: sub, reply: reply}) {
		return domain.ScoredResult{}, domain.ErrRoomNotFound
	}
	r := <-reply
	return r.result, r.err
}

// Subscribe registers a connection for room events and replays the current
// snapshot so the caller is never missing context. participantID may be
// empty for host/observer subscriptions.
func (m *Machine) Subscribe(participantID string) (<-chan Event, func(), domain.RoomSnapshot, error) {
	reply := make(chan subscribeReply, 1)
	if !m.send(subscribeCmd{participantID: participantID, reply: reply}) {
		return nil, nil, domain.RoomSnapshot{}, domain.ErrRoomNotFound
	}
	r := <-reply
	return r.events, r.cancel, r.snapshot, nil
}

// Snapshot returns the authoritative room state.
func (m *Machine) Snapshot() domain.RoomSnapshot {
	reply := make(chan domain.RoomSnapshot, 1)
	if !m.send(snapshotCmd{reply: reply}) {
		return domain.RoomSnapshot{RoomID: m.id, Code: m.code, Status: domain.RoomCompleted, QuestionIndex: m.questionIdx}
	}
	return <-reply
}
