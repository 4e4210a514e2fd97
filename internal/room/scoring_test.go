package room

import (
	"testing"

	"quizroom-service/internal/domain"
)

func scoringQuestion(points int) domain.Question {
	return domain.Question{
		ID:     "q1",
		Prompt: "pick one",
		Options: []domain.Option{
			{ID: "o1", Text: "wrong", Correct: false},
			{ID: "o2", Text: "right", Correct: true},
		},
		Points: points,
	}
}

func TestScoreIncorrectYieldsZero(t *testing.T) {
	policy := ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5}
	q := scoringQuestion(100)

	correct, delta := policy.Score(q, "o1", 0, 10000)
	if correct || delta != 0 {
		t.Fatalf("expected (false, 0), got (%v, %d)", correct, delta)
	}

	correct, delta = policy.Score(q, "missing", 0, 10000)
	if correct || delta != 0 {
		t.Fatalf("expected (false, 0) for unknown option, got (%v, %d)", correct, delta)
	}
}

func TestScoreFastAnswerEarnsFullWeight(t *testing.T) {
	policy := ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5}
	q := scoringQuestion(100)

	for _, elapsed := range []int64{0, 1000, 2000} {
		correct, delta := policy.Score(q, "o2", elapsed, 10000)
		if !correct || delta != 100 {
			t.Fatalf("elapsed %dms: expected full 100 points, got (%v, %d)", elapsed, correct, delta)
		}
	}
}

func TestScoreDecaysLinearlyToFloor(t *testing.T) {
	policy := ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5}
	q := scoringQuestion(100)

	_, fast := policy.Score(q, "o2", 1000, 10000)
	_, slow := policy.Score(q, "o2", 8000, 10000)
	if fast != 100 {
		t.Fatalf("expected 100 at 1000ms, got %d", fast)
	}
	if slow < 50 || slow >= 100 {
		t.Fatalf("expected slow answer between floor and weight, got %d", slow)
	}
	if fast <= slow {
		t.Fatalf("faster answer must outscore slower one: fast=%d slow=%d", fast, slow)
	}

	// At the limit the floor holds; never below, never zero for a correct answer.
	_, atLimit := policy.Score(q, "o2", 10000, 10000)
	if atLimit != 50 {
		t.Fatalf("expected floor 50 at the limit, got %d", atLimit)
	}
	_, pastLimit := policy.Score(q, "o2", 25000, 10000)
	if pastLimit != 50 {
		t.Fatalf("expected floor 50 past the limit, got %d", pastLimit)
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	policy := ScoringPolicy{FastAnswerMs: 2000, FloorFrac: 0.5}
	q := scoringQuestion(100)

	_, first := policy.Score(q, "o2", 6500, 10000)
	for i := 0; i < 10; i++ {
		_, again := policy.Score(q, "o2", 6500, 10000)
		if again != first {
			t.Fatalf("scoring must be reproducible: %d vs %d", first, again)
		}
	}
}

func TestScoreDefaultsWeightToOne(t *testing.T) {
	policy := DefaultScoringPolicy()
	q := scoringQuestion(0)

	correct, delta := policy.Score(q, "o2", 0, 10000)
	if !correct || delta != 1 {
		t.Fatalf("expected weight to default to 1, got (%v, %d)", correct, delta)
	}
}
