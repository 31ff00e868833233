package exam_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/exam/examtest"
)

func seedStore(t *testing.T) (*exam.SQLStore, exam.StudentExam) {
	t.Helper()
	ctx := context.Background()
	s := exam.NewSQLStore(examtest.OpenDB(t))
	require.NoError(t, s.PutCollection(ctx, exam.Collection{ID: "c1", Title: "Basics", OwnerID: "t1", Status: exam.CollectionPublished}, examtest.Questions()))
	require.NoError(t, s.CreateInstance(ctx, exam.Instance{
		ID: "i1", CollectionID: "c1", Title: "Quiz", StartAt: T0, EndAt: T0.Add(time.Hour),
		MaxAttempts: 1, PassingScore: 50, CreatedBy: "t1",
		Notifications: exam.NotificationSettings{ReminderMinutesBefore: []int{60, 10}},
	}))
	ses, err := s.AssignStudents(ctx, "i1", []string{"s1"})
	require.NoError(t, err)
	return s, ses[0]
}

func newAttempt(se exam.StudentExam, id string) (exam.Attempt, []exam.Response) {
	a := exam.Attempt{ID: id, StudentExamID: se.ID, Status: exam.StatusInProgress, QuestionOrder: []string{"q4", "q1"}, StartedAt: T0}
	rs := []exam.Response{
		{ID: id + "-r4", AttemptID: id, QuestionID: "q4", OptionOrder: []string{"y", "x"}},
		{ID: id + "-r1", AttemptID: id, QuestionID: "q1", OptionOrder: []string{"c", "a", "b"}},
	}
	return a, rs
}

func TestSQLStoreRoundTripsInstance(t *testing.T) {
	s, _ := seedStore(t)
	in, err := s.GetInstance(context.Background(), "i1")
	require.NoError(t, err)
	assert.True(t, T0.Equal(in.StartAt))
	assert.Equal(t, []int{60, 10}, in.Notifications.ReminderMinutesBefore)
	assert.Equal(t, 50.0, in.PassingScore)

	_, err = s.GetInstance(context.Background(), "nope")
	assert.ErrorIs(t, err, exam.ErrNotFound)
}

func TestSQLStoreBeginAttemptIsConditional(t *testing.T) {
	ctx := context.Background()
	s, se := seedStore(t)

	a, rs := newAttempt(se, "a1")
	require.NoError(t, s.BeginAttempt(ctx, se.ID, 1, a, rs))

	b, brs := newAttempt(se, "a2")
	err := s.BeginAttempt(ctx, se.ID, 1, b, brs)
	assert.ErrorIs(t, err, exam.ErrAlreadyStarted)

	_, err = s.GetAttempt(ctx, "a2")
	assert.ErrorIs(t, err, exam.ErrNotFound)

	got, err := s.GetAttempt(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"q4", "q1"}, got.QuestionOrder)
	assert.Nil(t, got.Grade)

	stored, err := s.GetResponses(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, []string{"c", "a", "b"}, stored[0].OptionOrder)
	assert.Empty(t, stored[0].SelectedOptionIDs)
}

func TestSQLStoreWritesStopAfterFinalize(t *testing.T) {
	ctx := context.Background()
	s, se := seedStore(t)
	a, rs := newAttempt(se, "a1")
	require.NoError(t, s.BeginAttempt(ctx, se.ID, 1, a, rs))

	ok, err := s.SaveAnswer(ctx, "a1", "q1", []string{"b"}, "", T0.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ToggleFlag(ctx, "a1", "q9")
	require.NoError(t, err)
	assert.False(t, ok)

	fin := exam.Finalization{StudentExamID: se.ID, AttemptID: "a1", SubmittedAt: T0.Add(2 * time.Minute),
		Grade: 50, Passed: true, Scores: map[string]float64{"q1": 1}}
	ok, err = s.FinalizeAttempt(ctx, fin)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.FinalizeAttempt(ctx, fin)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.SaveAnswer(ctx, "a1", "q1", []string{"a"}, "", T0.Add(3*time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.ToggleFlag(ctx, "a1", "q1")
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := s.GetStudentExam(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusGraded, got.Status)
	att, err := s.GetAttempt(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, att.Passed)
	assert.True(t, *att.Passed)
	assert.Equal(t, exam.StatusSubmitted, att.Status)

	stored, err := s.GetResponses(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, stored[0].SelectedOptionIDs)
	assert.Equal(t, 1.0, stored[0].Score)
}

func TestSQLStoreBeginAttemptRollsBackOnResponseFailure(t *testing.T) {
	ctx := context.Background()
	s, se := seedStore(t)

	a, rs := newAttempt(se, "a1")
	rs[1].QuestionID = rs[0].QuestionID
	err := s.BeginAttempt(ctx, se.ID, 1, a, rs)
	require.Error(t, err)
	assert.NotErrorIs(t, err, exam.ErrAlreadyStarted)

	_, err = s.GetAttempt(ctx, "a1")
	assert.ErrorIs(t, err, exam.ErrNotFound)
	got, err := s.GetStudentExam(ctx, se.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.StatusNotStarted, got.Status)
	assert.Zero(t, got.AttemptsTaken)
	assert.Empty(t, got.CurrentAttemptID)

	// the student exam is still startable
	b, brs := newAttempt(se, "a2")
	require.NoError(t, s.BeginAttempt(ctx, se.ID, 1, b, brs))
}

func TestSQLStoreRejectsCorruptNotifications(t *testing.T) {
	ctx := context.Background()
	dbh := examtest.OpenDB(t)
	s := exam.NewSQLStore(dbh)
	require.NoError(t, s.PutCollection(ctx, exam.Collection{ID: "c1", Title: "Basics", OwnerID: "t1", Status: exam.CollectionPublished}, examtest.Questions()))
	require.NoError(t, s.CreateInstance(ctx, exam.Instance{
		ID: "i1", CollectionID: "c1", Title: "Quiz", StartAt: T0, EndAt: T0.Add(time.Hour), MaxAttempts: 1, CreatedBy: "t1",
	}))
	_, err := dbh.ExecContext(ctx, `UPDATE exam_instances SET notifications_json='{not json' WHERE id='i1'`)
	require.NoError(t, err)

	_, err = s.GetInstance(ctx, "i1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "notifications")
}
