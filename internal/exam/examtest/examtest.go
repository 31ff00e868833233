// Package examtest holds fixtures shared by the storage-backed tests.
package examtest

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/db"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// OpenDB opens a fresh file-backed sqlite database with the production schema.
func OpenDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "exams.db") + "?mode=rwc&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	dbh, err := db.Open(context.Background(), db.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = dbh.Close() })
	return dbh
}

// Clock is a settable time source.
type Clock struct {
	mu sync.Mutex
	t  time.Time
}

func NewClock(t time.Time) *Clock { return &Clock{t: t} }

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

// Questions returns four weight-1 questions: single choice (b), multiple
// choice (A,C), short answer (Paris), single choice (x).
func Questions() []exam.Question {
	return []exam.Question{
		{ID: "q1", Text: "Pick b", Type: exam.QuestionSingleChoice, Weight: 1, Options: []exam.Option{
			{ID: "a", Text: "a"}, {ID: "b", Text: "b", IsCorrect: true}, {ID: "c", Text: "c"},
		}},
		{ID: "q2", Text: "Pick A and C", Type: exam.QuestionMultipleChoice, Weight: 1, Options: []exam.Option{
			{ID: "A", Text: "A", IsCorrect: true}, {ID: "B", Text: "B"}, {ID: "C", Text: "C", IsCorrect: true}, {ID: "D", Text: "D"},
		}},
		{ID: "q3", Text: "Capital of France", Type: exam.QuestionShortAnswer, Weight: 1, CanonicalAnswer: "Paris"},
		{ID: "q4", Text: "Pick x", Type: exam.QuestionSingleChoice, Weight: 1, Options: []exam.Option{
			{ID: "x", Text: "x", IsCorrect: true}, {ID: "y", Text: "y"},
		}},
	}
}

// CorrectAnswers answers every question of Questions correctly.
func CorrectAnswers() map[string]exam.Answer {
	paris := " paris "
	return map[string]exam.Answer{
		"q1": {SelectedOptionIDs: []string{"b"}},
		"q2": {SelectedOptionIDs: []string{"C", "A"}},
		"q3": {Text: &paris},
		"q4": {SelectedOptionIDs: []string{"x"}},
	}
}

// InstanceSpec describes an instance to seed relative to a start time.
type InstanceSpec struct {
	ID           string
	Start        time.Time
	Duration     time.Duration
	MaxAttempts  int
	PassingScore float64
	Shuffle      bool
	AllowReview  bool
}

// Seed stores the collection "c1" owned by "teacher-1", creates the instance
// and assigns the given students. The clock is left one hour before Start.
func Seed(t *testing.T, svc *exam.Service, clock *Clock, spec InstanceSpec, students ...string) []exam.StudentExam {
	t.Helper()
	ctx := context.Background()
	clock.Set(spec.Start.Add(-time.Hour))

	err := svc.PutCollection(ctx, "teacher-1", exam.Collection{ID: "c1", Title: "Basics", Status: exam.CollectionPublished}, Questions())
	require.NoError(t, err)

	dur := spec.Duration
	if dur == 0 {
		dur = 2 * time.Hour
	}
	_, err = svc.CreateInstance(ctx, "teacher-1", exam.Instance{
		ID:               spec.ID,
		CollectionID:     "c1",
		Title:            "Instance " + spec.ID,
		StartAt:          spec.Start,
		EndAt:            spec.Start.Add(dur),
		MaxAttempts:      spec.MaxAttempts,
		PassingScore:     spec.PassingScore,
		ShuffleQuestions: spec.Shuffle,
		AllowReview:      spec.AllowReview,
	})
	require.NoError(t, err)

	ses, err := svc.AssignStudents(ctx, "teacher-1", spec.ID, students)
	require.NoError(t, err)
	return ses
}
