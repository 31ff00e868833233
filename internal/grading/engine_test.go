package grading

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mcq(weight int, correct ...string) Q {
	all := []string{"A", "B", "C", "D"}
	q := Q{ID: "mc", Kind: MultipleChoice, Weight: weight}
	for _, id := range all {
		c := Choice{ID: id}
		for _, k := range correct {
			if k == id {
				c.Correct = true
			}
		}
		q.Choices = append(q.Choices, c)
	}
	return q
}

func TestMultipleChoiceExactSetOnly(t *testing.T) {
	q := mcq(3, "A", "C")
	tests := []struct {
		name     string
		selected []string
		want     float64
	}{
		{name: "exact", selected: []string{"A", "C"}, want: 3},
		{name: "exact reordered", selected: []string{"C", "A"}, want: 3},
		{name: "missing one", selected: []string{"A"}, want: 0},
		{name: "extra one", selected: []string{"A", "B", "C"}, want: 0},
		{name: "empty", selected: nil, want: 0},
		{name: "all wrong", selected: []string{"B", "D"}, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Score(q, Response{Selected: tc.selected})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestSingleChoice(t *testing.T) {
	q := Q{ID: "sc", Kind: SingleChoice, Weight: 2, Choices: []Choice{{ID: "A"}, {ID: "B", Correct: true}}}
	tests := []struct {
		name     string
		selected []string
		want     float64
	}{
		{name: "correct", selected: []string{"B"}, want: 2},
		{name: "wrong", selected: []string{"A"}, want: 0},
		{name: "two selected", selected: []string{"A", "B"}, want: 0},
		{name: "none", selected: nil, want: 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Score(q, Response{Selected: tc.selected})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestShortAnswerTrimmedCaseInsensitive(t *testing.T) {
	q := Q{ID: "sa", Kind: ShortAnswer, Weight: 1, Canonical: "Photosynthesis"}
	tests := []struct {
		text string
		want float64
	}{
		{"photosynthesis", 1},
		{"  PHOTOSYNTHESIS \n", 1},
		{"photo synthesis", 0},
		{"", 0},
	}
	for _, tc := range tests {
		got, err := Score(q, Response{Text: tc.text})
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "text %q", tc.text)
	}
}

func TestUnknownKind(t *testing.T) {
	_, err := Score(Q{ID: "x", Kind: "essay", Weight: 1}, Response{})
	assert.ErrorIs(t, err, ErrUnknownKind)

	_, err = Grade([]Item{{Question: Q{ID: "x", Kind: "essay", Weight: 1}}})
	assert.ErrorIs(t, err, ErrUnknownKind)
}

func TestGradeSevenOfTen(t *testing.T) {
	var items []Item
	// 7 correct single-choice questions of weight 1, one wrong of weight 3
	for i := 0; i < 7; i++ {
		items = append(items, Item{
			Question: Q{ID: string(rune('a' + i)), Kind: SingleChoice, Weight: 1, Choices: []Choice{{ID: "ok", Correct: true}, {ID: "no"}}},
			Response: Response{Selected: []string{"ok"}},
		})
	}
	items = append(items, Item{
		Question: Q{ID: "heavy", Kind: SingleChoice, Weight: 3, Choices: []Choice{{ID: "ok", Correct: true}, {ID: "no"}}},
		Response: Response{Selected: []string{"no"}},
	})

	res, err := Grade(items)
	require.NoError(t, err)
	assert.Equal(t, 7.0, res.Earned)
	assert.Equal(t, 10.0, res.TotalWeight)
	assert.Equal(t, 70.0, res.Grade)
	assert.Equal(t, 0.0, res.Contributions["heavy"])

	assert.True(t, Passed(res.Grade, 70))
	assert.False(t, Passed(res.Grade, 71))
}

func TestGradeRoundsToOneDecimal(t *testing.T) {
	items := []Item{
		{Question: Q{ID: "1", Kind: ShortAnswer, Weight: 1, Canonical: "x"}, Response: Response{Text: "x"}},
		{Question: Q{ID: "2", Kind: ShortAnswer, Weight: 1, Canonical: "x"}, Response: Response{Text: "y"}},
		{Question: Q{ID: "3", Kind: ShortAnswer, Weight: 1, Canonical: "x"}, Response: Response{Text: "z"}},
	}
	res, err := Grade(items)
	require.NoError(t, err)
	assert.Equal(t, 33.3, res.Grade)
}

func TestGradeEmpty(t *testing.T) {
	res, err := Grade(nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, res.Grade)
}
