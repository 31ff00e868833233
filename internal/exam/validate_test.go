package exam

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCheckWindow(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	assert.NoError(t, CheckWindow(start, start, end))
	assert.NoError(t, CheckWindow(end, start, end))
	assert.ErrorIs(t, CheckWindow(start.Add(-time.Nanosecond), start, end), ErrExamNotYetOpen)
	assert.ErrorIs(t, CheckWindow(end.Add(time.Nanosecond), start, end), ErrExamEnded)
	assert.ErrorIs(t, CheckWindow(end.Add(time.Nanosecond), start, end), ErrOutsideExamWindow)

	// same instant in another zone
	tokyo := time.FixedZone("JST", 9*3600)
	assert.NoError(t, CheckWindow(start.Add(30*time.Minute).In(tokyo), start, end))
}

func TestValidateQuestion(t *testing.T) {
	tests := []struct {
		name string
		q    Question
		ok   bool
	}{
		{name: "single choice", q: Question{ID: "q", Text: "t", Type: QuestionSingleChoice, Weight: 1, Options: []Option{{ID: "a", IsCorrect: true}, {ID: "b"}}}, ok: true},
		{name: "single choice two correct", q: Question{ID: "q", Text: "t", Type: QuestionSingleChoice, Weight: 1, Options: []Option{{ID: "a", IsCorrect: true}, {ID: "b", IsCorrect: true}}}},
		{name: "multiple choice none correct", q: Question{ID: "q", Text: "t", Type: QuestionMultipleChoice, Weight: 1, Options: []Option{{ID: "a"}}}},
		{name: "duplicate option", q: Question{ID: "q", Text: "t", Type: QuestionMultipleChoice, Weight: 1, Options: []Option{{ID: "a", IsCorrect: true}, {ID: "a"}}}},
		{name: "short answer", q: Question{ID: "q", Text: "t", Type: QuestionShortAnswer, Weight: 2, CanonicalAnswer: "x"}, ok: true},
		{name: "short answer blank canonical", q: Question{ID: "q", Text: "t", Type: QuestionShortAnswer, Weight: 1, CanonicalAnswer: "  "}},
		{name: "zero weight", q: Question{ID: "q", Text: "t", Type: QuestionShortAnswer, CanonicalAnswer: "x"}},
		{name: "unknown type", q: Question{ID: "q", Text: "t", Type: "essay", Weight: 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ValidateQuestion(tc.q)
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrUnprocessableQuestion)
		})
	}
}

func TestValidateInstance(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	base := Instance{ID: "i", CollectionID: "c", Title: "t", StartAt: now.Add(time.Hour), EndAt: now.Add(2 * time.Hour), MaxAttempts: 1}
	assert.NoError(t, ValidateInstance(base, now))

	startNow := base
	startNow.StartAt = now
	assert.ErrorIs(t, ValidateInstance(startNow, now), ErrValidation)

	empty := base
	empty.EndAt = empty.StartAt
	assert.ErrorIs(t, ValidateInstance(empty, now), ErrValidation)

	noTitle := base
	noTitle.Title = ""
	assert.ErrorIs(t, ValidateInstance(noTitle, now), ErrValidation)
}
