package exam

import (
	"context"
	"time"
)

// Store is the persistence port of the attempt engine. Every method that
// changes attempt structure or status is a single transaction.
type Store interface {
	PutCollection(ctx context.Context, c Collection, qs []Question) error
	GetCollection(ctx context.Context, id string) (Collection, error)
	// CollectionQuestions returns the questions of a collection in position
	// order, with correctness fields populated.
	CollectionQuestions(ctx context.Context, collectionID string) ([]Question, error)

	CreateInstance(ctx context.Context, in Instance) error
	GetInstance(ctx context.Context, id string) (Instance, error)

	// AssignStudents creates missing StudentExams and returns one per student.
	AssignStudents(ctx context.Context, instanceID string, studentIDs []string) ([]StudentExam, error)
	GetStudentExam(ctx context.Context, id string) (StudentExam, error)
	ListStudentExamsByStudent(ctx context.Context, studentID string) ([]StudentExam, error)
	ListStudentExamsByInstance(ctx context.Context, instanceID string) ([]StudentExam, error)

	// BeginAttempt moves the StudentExam to in_progress, bumps attempts_taken
	// and inserts the attempt with all of its responses. It fails with
	// ErrAlreadyStarted when the StudentExam is no longer startable.
	BeginAttempt(ctx context.Context, studentExamID string, maxAttempts int, a Attempt, rs []Response) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, studentExamID string) ([]Attempt, error)
	GetResponses(ctx context.Context, attemptID string) ([]Response, error)

	// SaveAnswer and ToggleFlag report false when the attempt is no longer
	// in progress or the response does not exist.
	SaveAnswer(ctx context.Context, attemptID, questionID string, selected []string, text string, at time.Time) (bool, error)
	ToggleFlag(ctx context.Context, attemptID, questionID string) (bool, error)

	// FinalizeAttempt reports false when another caller already finalized the attempt.
	FinalizeAttempt(ctx context.Context, f Finalization) (bool, error)
}

// Finalization is the set of writes that close an attempt.
type Finalization struct {
	StudentExamID string
	AttemptID     string
	SubmittedAt   time.Time
	Grade         float64
	Passed        bool
	Scores        map[string]float64 // question id -> contribution
	Event         string             // event_log type
}
