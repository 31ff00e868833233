package shuffle_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/shuffle"
)

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("q%02d", i)
	}
	return out
}

func TestQuestionsDisabledKeepsOrder(t *testing.T) {
	s := shuffle.NewSeeded(1)
	in := ids(20)
	for i := 0; i < 5; i++ {
		assert.Equal(t, in, s.Questions(in, false))
	}
}

func TestQuestionsIsBijection(t *testing.T) {
	s := shuffle.NewSeeded(42)
	in := ids(30)
	for i := 0; i < 50; i++ {
		out := s.Questions(in, true)
		require.Len(t, out, len(in))
		assert.ElementsMatch(t, in, out)
	}
}

func TestQuestionsDoesNotMutateInput(t *testing.T) {
	s := shuffle.NewSeeded(7)
	in := ids(10)
	orig := append([]string(nil), in...)
	_ = s.Questions(in, true)
	assert.Equal(t, orig, in)
}

func TestQuestionsSeededIsReproducible(t *testing.T) {
	in := ids(15)
	a := shuffle.NewSeeded(99).Questions(in, true)
	b := shuffle.NewSeeded(99).Questions(in, true)
	assert.Equal(t, a, b)
}

func TestQuestionsRoughlyUniform(t *testing.T) {
	s := shuffle.NewSeeded(2024)
	in := []string{"a", "b", "c"}
	counts := map[string]int{}
	const rounds = 6000
	for i := 0; i < rounds; i++ {
		counts[s.Questions(in, true)[0]]++
	}
	for _, id := range in {
		assert.InDelta(t, rounds/3, counts[id], rounds/10, "first position of %s", id)
	}
}

func TestOptionsMapping(t *testing.T) {
	s := shuffle.NewSeeded(3)
	opts := []string{"A", "B", "C", "D"}

	identity := s.Options(opts, false)
	assert.Equal(t, map[string]int{"A": 0, "B": 1, "C": 2, "D": 3}, identity)
	assert.Equal(t, opts, shuffle.Ordered(identity))

	m := s.Options(opts, true)
	require.Len(t, m, 4)
	seen := map[int]bool{}
	for _, idx := range m {
		assert.False(t, seen[idx])
		seen[idx] = true
		assert.GreaterOrEqual(t, idx, 0)
		assert.Less(t, idx, 4)
	}
	assert.ElementsMatch(t, opts, shuffle.Ordered(m))
}

func TestEmptyInput(t *testing.T) {
	s := shuffle.New()
	assert.Empty(t, s.Questions(nil, true))
	assert.Empty(t, s.Options(nil, true))
}
