// Package shuffle produces the question and option orders captured into an
// attempt when it starts. Callers persist the result; nothing here is meant
// to be re-run for an existing attempt.
package shuffle

import (
	"math/rand/v2"
	"sort"
	"sync"
	"time"
)

type Shuffler struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func New() *Shuffler {
	now := uint64(time.Now().UnixNano())
	return &Shuffler{rng: rand.New(rand.NewPCG(now, now>>17|1))}
}

// NewSeeded returns a Shuffler with a reproducible sequence.
func NewSeeded(seed uint64) *Shuffler {
	return &Shuffler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// Questions returns a copy of ids, uniformly permuted when enabled.
func (s *Shuffler) Questions(ids []string, enabled bool) []string {
	out := make([]string, len(ids))
	copy(out, ids)
	if enabled {
		s.permute(out)
	}
	return out
}

// Options maps each option id to its display index. Identity order when disabled.
func (s *Shuffler) Options(optionIDs []string, enabled bool) map[string]int {
	order := s.Questions(optionIDs, enabled)
	m := make(map[string]int, len(order))
	for i, id := range order {
		m[id] = i
	}
	return m
}

// Ordered turns an option_id -> display_index mapping back into display order.
func Ordered(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return m[out[i]] < m[out[j]] })
	return out
}

// permute is a Fisher-Yates shuffle in place.
func (s *Shuffler) permute(xs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(xs) - 1; i > 0; i-- {
		j := s.rng.IntN(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}
