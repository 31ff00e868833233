package grading

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Kind is the question variant. Values match exam.QuestionType.
type Kind string

const (
	MultipleChoice Kind = "multiple_choice"
	SingleChoice   Kind = "single_choice"
	ShortAnswer    Kind = "short_answer"
)

var ErrUnknownKind = errors.New("unknown question kind")

// Choice is one option of a choice question.
type Choice struct {
	ID      string
	Correct bool
}

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID        string
	Kind      Kind
	Weight    int
	Choices   []Choice
	Canonical string
}

// Response is the persisted answer for one question.
type Response struct {
	Selected []string
	Text     string
}

// Strategy scores one question variant. It returns the earned contribution,
// either the full weight or zero.
type Strategy interface {
	Score(q Q, r Response) float64
}

func strategyFor(k Kind) (Strategy, error) {
	switch k {
	case MultipleChoice:
		return multipleChoice{}, nil
	case SingleChoice:
		return singleChoice{}, nil
	case ShortAnswer:
		return shortAnswer{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownKind, k)
}

// Score returns the contribution of one response.
func Score(q Q, r Response) (float64, error) {
	s, err := strategyFor(q.Kind)
	if err != nil {
		return 0, err
	}
	return s.Score(q, r), nil
}

type Item struct {
	Question Q
	Response Response
}

// Result is the outcome of grading a whole attempt.
type Result struct {
	Earned        float64
	TotalWeight   float64
	Grade         float64 // 0-100, one decimal
	Contributions map[string]float64
}

// Grade scores every item and folds the contributions into a percentage with
// the sum of weights as denominator.
func Grade(items []Item) (Result, error) {
	res := Result{Contributions: make(map[string]float64, len(items))}
	for _, it := range items {
		c, err := Score(it.Question, it.Response)
		if err != nil {
			return Result{}, fmt.Errorf("question %s: %w", it.Question.ID, err)
		}
		res.Contributions[it.Question.ID] = c
		res.Earned += c
		res.TotalWeight += float64(it.Question.Weight)
	}
	if res.TotalWeight > 0 {
		res.Grade = Round1(100 * res.Earned / res.TotalWeight)
	}
	return res, nil
}

// Passed compares a grade against the passing threshold (inclusive).
func Passed(grade, passingScore float64) bool {
	return grade >= passingScore
}

func Round1(x float64) float64 {
	return math.Round(x*10) / 10
}

// --- Strategies ---

type multipleChoice struct{}

func (multipleChoice) Score(q Q, r Response) float64 {
	correct := make(map[string]struct{})
	for _, c := range q.Choices {
		if c.Correct {
			correct[c.ID] = struct{}{}
		}
	}
	if setEqual(correct, toSet(r.Selected)) {
		return float64(q.Weight)
	}
	return 0
}

type singleChoice struct{}

func (singleChoice) Score(q Q, r Response) float64 {
	if len(r.Selected) != 1 {
		return 0
	}
	for _, c := range q.Choices {
		if c.Correct && c.ID == r.Selected[0] {
			return float64(q.Weight)
		}
	}
	return 0
}

type shortAnswer struct{}

func (shortAnswer) Score(q Q, r Response) float64 {
	want := strings.TrimSpace(q.Canonical)
	if want == "" {
		return 0
	}
	if strings.EqualFold(strings.TrimSpace(r.Text), want) {
		return float64(q.Weight)
	}
	return 0
}

// helpers

func toSet(arr []string) map[string]struct{} {
	m := make(map[string]struct{}, len(arr))
	for _, s := range arr {
		m[s] = struct{}{}
	}
	return m
}

func setEqual(a, b map[string]struct{}) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}
