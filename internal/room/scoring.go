package room

import (
	"math"

	"quizroom-service/internal/domain"
)

// ScoringPolicy controls how elapsed time shapes the awarded points.
// Score is a pure function of its inputs so duplicate submissions can be
// reconciled and tests are reproducible.
type ScoringPolicy struct {
	// FastAnswerMs is the window in which a correct answer earns full weight.
	FastAnswerMs int64
	// FloorFrac is the fraction of the weight a correct answer earns at the
	// very end of the time limit. Clamped to [0, 1].
	FloorFrac float64
}

// DefaultScoringPolicy mirrors the configuration defaults.
func DefaultScoringPolicy() ScoringPolicy {
	return ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5}
}

// Score evaluates a submission against a question. An incorrect option, an
// unknown option, or a submission past the limit on an incorrect pick earns
// (false, 0). A correct answer earns the full weight up to FastAnswerMs,
// decaying linearly to the floor as elapsed approaches limitMs.
func (p ScoringPolicy) Score(q domain.Question, optionID string, elapsedMs, limitMs int64) (bool, int) {
	var selected *domain.Option
	for i := range q.Options {
		if q.Options[i].ID == optionID {
			selected = &q.Options[i]
			break
		}
	}
	if selected == nil || !selected.Correct {
		return false, 0
	}

	weight := q.Points
	if weight == 0 {
		weight = 1
	}
	return true, p.decay(weight, elapsedMs, limitMs)
}

func (p ScoringPolicy) decay(weight int, elapsedMs, limitMs int64) int {
	frac := p.FloorFrac
	if frac < 0 {
		frac = 0
	}
	if frac > 1 {
		frac = 1
	}
	floor := int(math.Ceil(float64(weight) * frac))

	if elapsedMs <= p.FastAnswerMs || limitMs <= p.FastAnswerMs {
		return weight
	}
	if elapsedMs >= limitMs {
		return floor
	}

	span := float64(limitMs - p.FastAnswerMs)
	progress := float64(elapsedMs-p.FastAnswerMs) / span
	delta := float64(weight) - float64(weight-floor)*progress
	awarded := int(math.Round(delta))
	if awarded < floor {
		awarded = floor
	}
	if awarded > weight {
		awarded = weight
	}
	return awarded
}
