package room

import (
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"quizroom-service/internal/domain"
)

// codeAlphabet omits ambiguous characters (0/O, 1/I) so codes read cleanly.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

const codeLength = 6

// Registry is the process-wide table of live rooms, keyed both by opaque id
// and by join code. It creates and destroys machine instances; it holds no
// quiz logic itself.
type Registry struct {
	clock clockwork.Clock

	mu     sync.RWMutex
	byID   map[string]*Machine
	byCode map[string]*Machine
	rnd    *rand.Rand
}

func NewRegistry(clock clockwork.Clock) *Registry {
	return &Registry{
		clock:  clock,
		byID:   make(map[string]*Machine),
		byCode: make(map[string]*Machine),
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Create instantiates a room machine from a quiz snapshot. The join code is
// drawn under the registry lock so concurrent creates never collide.
func (r *Registry) Create(quiz domain.Quiz, hostID string, cfg Config, onComplete func(domain.RoomResult)) (*Machine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	code, err := r.drawCodeLocked()
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	machine := newMachine(id, code, quiz, hostID, cfg, r.clock, onComplete)
	r.byID[id] = machine
	r.byCode[code] = machine
	log.Info().Str("room_id", id).Str("code", code).Str("quiz_id", quiz.ID).Msg("room created")
	return machine, nil
}

// Resolve finds a live room by id or join code.
func (r *Registry) Resolve(idOrCode string) (*Machine, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if m, ok := r.byID[idOrCode]; ok {
		return m, nil
	}
	if m, ok := r.byCode[strings.ToUpper(idOrCode)]; ok {
		return m, nil
	}
	return nil, domain.ErrRoomNotFound
}

// Destroy removes a room and stops its worker. The code becomes reusable.
func (r *Registry) Destroy(roomID string) {
	r.mu.Lock()
	machine, ok := r.byID[roomID]
	if ok {
		delete(r.byID, roomID)
		delete(r.byCode, machine.Code())
	}
	r.mu.Unlock()
	if ok {
		machine.Stop()
		log.Info().Str("room_id", roomID).Msg("room destroyed")
	}
}

// Drain stops every live room; used on shutdown.
func (r *Registry) Drain() {
	r.mu.Lock()
	machines := make([]*Machine, 0, len(r.byID))
	for _, m := range r.byID {
		machines = append(machines, m)
	}
	r.byID = make(map[string]*Machine)
	r.byCode = make(map[string]*Machine)
	r.mu.Unlock()

	for _, m := range machines {
		m.Stop()
	}
}

// Len reports the number of live rooms.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

func (r *Registry) drawCodeLocked() (string, error) {
	for attempt := 0; attempt < 64; attempt++ {
		var b strings.Builder
		for i := 0; i < codeLength; i++ {
			b.WriteByte(codeAlphabet[r.rnd.Intn(len(codeAlphabet))])
		}
		code := b.String()
		if _, taken := r.byCode[code]; !taken {
			return code, nil
		}
	}
	return "", domain.ErrCodePoolExhausted
}
