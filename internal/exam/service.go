package exam

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/logger"
	"github.com/mind-engage/mindengage-exams/internal/notify"
	"github.com/mind-engage/mindengage-exams/internal/shuffle"
	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

// Service runs the attempt lifecycle: start, answer, flag, reload, submit.
// It holds no per-attempt state; everything lives in the Store.
type Service struct {
	store    Store
	log      *logger.Logger
	shuffler *shuffle.Shuffler
	notifier notify.Dispatcher
	now      func() time.Time
}

type ServiceOption func(*Service)

func WithClock(now func() time.Time) ServiceOption    { return func(s *Service) { s.now = now } }
func WithShuffler(sh *shuffle.Shuffler) ServiceOption { return func(s *Service) { s.shuffler = sh } }
func WithNotifier(d notify.Dispatcher) ServiceOption  { return func(s *Service) { s.notifier = d } }

func NewService(store Store, log *logger.Logger, opts ...ServiceOption) *Service {
	s := &Service{
		store:    store,
		log:      log.With("service", "exam"),
		shuffler: shuffle.New(),
		notifier: notify.LogDispatcher{Log: log},
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ---- student operations ----

// StartExam opens a new attempt with a fixed question and option order and
// returns the sanitized questions in that order.
func (s *Service) StartExam(ctx context.Context, studentID, studentExamID string) ([]SanitizedQuestion, error) {
	se, err := s.ownedStudentExam(ctx, studentID, studentExamID)
	if err != nil {
		return nil, err
	}
	inst, err := s.store.GetInstance(ctx, se.InstanceID)
	if err != nil {
		return nil, err
	}
	if err := startable(se, inst); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if err := CheckWindow(now, inst.StartAt, inst.EndAt); err != nil {
		return nil, err
	}

	qs, err := s.store.CollectionQuestions(ctx, inst.CollectionID)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, fmt.Errorf("%w: collection %s has no questions", ErrUnprocessableQuestion, inst.CollectionID)
	}
	byID := make(map[string]Question, len(qs))
	ids := make([]string, 0, len(qs))
	for _, q := range qs {
		if err := ValidateQuestion(q); err != nil {
			return nil, err
		}
		byID[q.ID] = q
		ids = append(ids, q.ID)
	}

	attempt := Attempt{
		ID:            uuid.NewString(),
		StudentExamID: se.ID,
		Status:        StatusInProgress,
		QuestionOrder: s.shuffler.Questions(ids, inst.ShuffleQuestions),
		StartedAt:     now,
	}
	responses := make([]Response, 0, len(attempt.QuestionOrder))
	out := make([]SanitizedQuestion, 0, len(attempt.QuestionOrder))
	for _, id := range attempt.QuestionOrder {
		q := byID[id]
		optOrder := shuffle.Ordered(s.shuffler.Options(optionIDs(q), inst.ShuffleQuestions))
		responses = append(responses, Response{
			ID:          uuid.NewString(),
			AttemptID:   attempt.ID,
			QuestionID:  id,
			OptionOrder: optOrder,
		})
		out = append(out, sanitize(q, optOrder))
	}

	if err := s.store.BeginAttempt(ctx, se.ID, inst.MaxAttempts, attempt, responses); err != nil {
		if errors.Is(err, ErrAlreadyStarted) {
			return nil, s.classifyStartConflict(ctx, se.ID, inst)
		}
		return nil, err
	}
	s.log.Info("attempt started", "student_exam_id", se.ID, "attempt_id", attempt.ID,
		"questions", len(out), "shuffled", inst.ShuffleQuestions)
	return out, nil
}

// SaveAnswer overwrites the stored answer of one question. Replaying the same
// answer leaves the same state.
func (s *Service) SaveAnswer(ctx context.Context, studentID, studentExamID, questionID string, answer Answer) error {
	se, inst, att, err := s.activeAttempt(ctx, studentID, studentExamID)
	if err != nil {
		return err
	}
	if err := s.expireIfClosed(ctx, se, inst, att); err != nil {
		return err
	}
	if !contains(att.QuestionOrder, questionID) {
		return fmt.Errorf("%w: question %s in attempt %s", ErrNotFound, questionID, att.ID)
	}
	q, err := s.question(ctx, inst.CollectionID, questionID)
	if err != nil {
		return err
	}
	if err := ValidateAnswer(q, answer); err != nil {
		return err
	}
	var text string
	if answer.Text != nil {
		text = *answer.Text
	}
	ok, err := s.store.SaveAnswer(ctx, att.ID, questionID, answer.SelectedOptionIDs, text, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: attempt %s is no longer active", ErrForbidden, att.ID)
	}
	return nil
}

// ToggleFlag flips the flag of one question.
func (s *Service) ToggleFlag(ctx context.Context, studentID, studentExamID, questionID string) error {
	se, inst, att, err := s.activeAttempt(ctx, studentID, studentExamID)
	if err != nil {
		return err
	}
	if err := s.expireIfClosed(ctx, se, inst, att); err != nil {
		return err
	}
	if !contains(att.QuestionOrder, questionID) {
		return fmt.Errorf("%w: question %s in attempt %s", ErrNotFound, questionID, att.ID)
	}
	ok, err := s.store.ToggleFlag(ctx, att.ID, questionID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: attempt %s is no longer active", ErrForbidden, att.ID)
	}
	return nil
}

// ReloadExam rebuilds the student's current view from the stored orders and answers.
func (s *Service) ReloadExam(ctx context.Context, studentID, studentExamID string) ([]QuestionWithResponse, error) {
	_, inst, att, err := s.activeAttempt(ctx, studentID, studentExamID)
	if err != nil {
		return nil, err
	}
	byID, err := s.questionIndex(ctx, inst.CollectionID)
	if err != nil {
		return nil, err
	}
	rs, err := s.store.GetResponses(ctx, att.ID)
	if err != nil {
		return nil, err
	}
	respByQ := indexResponses(rs)

	out := make([]QuestionWithResponse, 0, len(att.QuestionOrder))
	for _, id := range att.QuestionOrder {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: question %s missing from collection", ErrUnprocessableQuestion, id)
		}
		r, ok := respByQ[id]
		if !ok {
			return nil, fmt.Errorf("%w: response for question %s", ErrNotFound, id)
		}
		out = append(out, QuestionWithResponse{
			SanitizedQuestion: sanitize(q, r.OptionOrder),
			SelectedOptionIDs: inDisplayOrder(r.SelectedOptionIDs, r.OptionOrder),
			AnswerText:        r.Text,
			Flagged:           r.Flagged,
		})
	}
	return out, nil
}

// SubmitExam grades the active attempt. Resubmitting returns the stored result.
func (s *Service) SubmitExam(ctx context.Context, studentID, studentExamID string) (AttemptSummary, error) {
	se, err := s.ownedStudentExam(ctx, studentID, studentExamID)
	if err != nil {
		return AttemptSummary{}, err
	}
	inst, err := s.store.GetInstance(ctx, se.InstanceID)
	if err != nil {
		return AttemptSummary{}, err
	}
	if se.CurrentAttemptID == "" {
		return AttemptSummary{}, fmt.Errorf("%w: no active attempt for student exam %s", ErrForbidden, se.ID)
	}
	att, err := s.store.GetAttempt(ctx, se.CurrentAttemptID)
	if err != nil {
		return AttemptSummary{}, err
	}
	if att.Status != StatusInProgress {
		return summarize(se, inst, att), nil
	}
	return s.finalize(ctx, se, inst, att, syncx.TypeAttemptSubmitted)
}

// GetReview returns the graded attempt with correct answers when the instance allows review.
func (s *Service) GetReview(ctx context.Context, studentID, studentExamID string) (Review, error) {
	se, err := s.ownedStudentExam(ctx, studentID, studentExamID)
	if err != nil {
		return Review{}, err
	}
	inst, err := s.store.GetInstance(ctx, se.InstanceID)
	if err != nil {
		return Review{}, err
	}
	if !inst.AllowReview {
		return Review{}, fmt.Errorf("%w: instance %s does not allow review", ErrReviewUnavailable, inst.ID)
	}
	if se.Status != StatusGraded || se.CurrentAttemptID == "" {
		return Review{}, fmt.Errorf("%w: student exam %s is not graded", ErrReviewUnavailable, se.ID)
	}
	att, err := s.store.GetAttempt(ctx, se.CurrentAttemptID)
	if err != nil {
		return Review{}, err
	}
	byID, err := s.questionIndex(ctx, inst.CollectionID)
	if err != nil {
		return Review{}, err
	}
	rs, err := s.store.GetResponses(ctx, att.ID)
	if err != nil {
		return Review{}, err
	}
	respByQ := indexResponses(rs)

	rev := Review{Summary: summarize(se, inst, att), Items: make([]ReviewItem, 0, len(att.QuestionOrder))}
	for _, id := range att.QuestionOrder {
		q, ok := byID[id]
		if !ok {
			return Review{}, fmt.Errorf("%w: question %s missing from collection", ErrUnprocessableQuestion, id)
		}
		r := respByQ[id]
		rev.Items = append(rev.Items, ReviewItem{
			Question:          reorder(q, r.OptionOrder),
			SelectedOptionIDs: inDisplayOrder(r.SelectedOptionIDs, r.OptionOrder),
			AnswerText:        r.Text,
			Flagged:           r.Flagged,
			Score:             r.Score,
			Correct:           r.Score > 0,
		})
	}
	return rev, nil
}

// ListStudentExams returns a student's assignments.
func (s *Service) ListStudentExams(ctx context.Context, studentID string) ([]StudentExamView, error) {
	ses, err := s.store.ListStudentExamsByStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	out := make([]StudentExamView, 0, len(ses))
	for _, se := range ses {
		inst, err := s.store.GetInstance(ctx, se.InstanceID)
		if err != nil {
			return nil, err
		}
		out = append(out, StudentExamView{
			StudentExam: se,
			Title:       inst.Title,
			StartAt:     inst.StartAt,
			EndAt:       inst.EndAt,
			MaxAttempts: inst.MaxAttempts,
		})
	}
	return out, nil
}

// ---- teacher-side setup ----

// PutCollection stores a collection after checking every question. An
// omitted status keeps the stored one.
func (s *Service) PutCollection(ctx context.Context, ownerID string, c Collection, qs []Question) error {
	existing, err := s.store.GetCollection(ctx, c.ID)
	switch {
	case errors.Is(err, ErrNotFound):
		existing.Status = CollectionDraft
	case err != nil:
		return err
	case existing.OwnerID != ownerID:
		return fmt.Errorf("%w: collection %s belongs to another teacher", ErrForbidden, c.ID)
	}
	c.OwnerID = ownerID
	if c.Status == "" {
		c.Status = existing.Status
	}
	if err := ValidateCollection(c, qs); err != nil {
		return err
	}
	for i := range qs {
		qs[i].CollectionID = c.ID
	}
	return s.store.PutCollection(ctx, c, qs)
}

// CreateInstance schedules a sitting. Times are normalized to UTC.
func (s *Service) CreateInstance(ctx context.Context, teacherID string, in Instance) (Instance, error) {
	now := s.now().UTC()
	in.StartAt, in.EndAt = in.StartAt.UTC(), in.EndAt.UTC()
	in.CreatedBy, in.CreatedAt = teacherID, now
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	if err := ValidateInstance(in, now); err != nil {
		return Instance{}, err
	}
	c, err := s.store.GetCollection(ctx, in.CollectionID)
	if err != nil {
		return Instance{}, err
	}
	if c.OwnerID != teacherID && c.Status != CollectionPublished {
		return Instance{}, fmt.Errorf("%w: collection %s is not published", ErrForbidden, c.ID)
	}
	if err := s.store.CreateInstance(ctx, in); err != nil {
		return Instance{}, err
	}
	s.log.Info("exam instance created", "instance_id", in.ID, "collection_id", in.CollectionID)
	return in, nil
}

// AssignStudents binds students to an instance. Reassigning is a no-op.
func (s *Service) AssignStudents(ctx context.Context, teacherID, instanceID string, studentIDs []string) ([]StudentExam, error) {
	inst, err := s.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if inst.CreatedBy != teacherID {
		return nil, fmt.Errorf("%w: instance %s belongs to another teacher", ErrForbidden, instanceID)
	}
	if len(studentIDs) == 0 {
		return nil, fmt.Errorf("%w: no students given", ErrValidation)
	}
	existing, err := s.store.ListStudentExamsByInstance(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	known := make(map[string]struct{}, len(existing))
	for _, se := range existing {
		known[se.StudentID] = struct{}{}
	}
	ses, err := s.store.AssignStudents(ctx, instanceID, studentIDs)
	if err != nil {
		return nil, err
	}
	for _, se := range ses {
		if _, ok := known[se.StudentID]; !ok {
			s.announce(inst, se)
		}
	}
	return ses, nil
}

// announce queues the assignment notice and the reminders of a new assignment.
func (s *Service) announce(inst Instance, se StudentExam) {
	payload := func(extra ...any) map[string]any {
		m := map[string]any{
			"student_id":      se.StudentID,
			"student_exam_id": se.ID,
			"exam_title":      inst.Title,
			"start_at":        inst.StartAt,
			"end_at":          inst.EndAt,
		}
		for i := 0; i+1 < len(extra); i += 2 {
			m[extra[i].(string)] = extra[i+1]
		}
		return m
	}
	if inst.Notifications.NotifyOnAssign {
		notify.Fire(s.notifier, s.log, notify.EventExamAssigned, payload(), nil)
	}
	now := s.now()
	for _, mins := range inst.Notifications.ReminderMinutesBefore {
		eta := inst.StartAt.Add(-time.Duration(mins) * time.Minute)
		if mins <= 0 || !eta.After(now) {
			continue
		}
		notify.FireAt(s.notifier, s.log, notify.EventExamReminder, payload("minutes_before", mins), &eta, nil)
	}
}

// ---- internals ----

func (s *Service) ownedStudentExam(ctx context.Context, studentID, studentExamID string) (StudentExam, error) {
	se, err := s.store.GetStudentExam(ctx, studentExamID)
	if err != nil {
		return StudentExam{}, err
	}
	if se.StudentID != studentID {
		return StudentExam{}, fmt.Errorf("%w: student exam %s", ErrForbidden, studentExamID)
	}
	return se, nil
}

func (s *Service) activeAttempt(ctx context.Context, studentID, studentExamID string) (StudentExam, Instance, Attempt, error) {
	se, err := s.ownedStudentExam(ctx, studentID, studentExamID)
	if err != nil {
		return StudentExam{}, Instance{}, Attempt{}, err
	}
	if se.Status != StatusInProgress || se.CurrentAttemptID == "" {
		return StudentExam{}, Instance{}, Attempt{}, fmt.Errorf("%w: no active attempt for student exam %s", ErrForbidden, se.ID)
	}
	att, err := s.store.GetAttempt(ctx, se.CurrentAttemptID)
	if err != nil {
		return StudentExam{}, Instance{}, Attempt{}, err
	}
	if att.Status != StatusInProgress || att.StudentExamID != se.ID {
		return StudentExam{}, Instance{}, Attempt{}, fmt.Errorf("%w: no active attempt for student exam %s", ErrForbidden, se.ID)
	}
	inst, err := s.store.GetInstance(ctx, se.InstanceID)
	if err != nil {
		return StudentExam{}, Instance{}, Attempt{}, err
	}
	return se, inst, att, nil
}

// expireIfClosed submits a stale attempt with whatever was saved and then
// reports ErrExamEnded.
func (s *Service) expireIfClosed(ctx context.Context, se StudentExam, inst Instance, att Attempt) error {
	err := CheckWindow(s.now(), inst.StartAt, inst.EndAt)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExamEnded) {
		if _, ferr := s.finalize(ctx, se, inst, att, syncx.TypeAttemptExpired); ferr != nil {
			return ferr
		}
		s.log.Info("attempt expired on touch", "student_exam_id", se.ID, "attempt_id", att.ID)
	}
	return err
}

func (s *Service) finalize(ctx context.Context, se StudentExam, inst Instance, att Attempt, event string) (AttemptSummary, error) {
	byID, err := s.questionIndex(ctx, inst.CollectionID)
	if err != nil {
		return AttemptSummary{}, err
	}
	rs, err := s.store.GetResponses(ctx, att.ID)
	if err != nil {
		return AttemptSummary{}, err
	}
	respByQ := indexResponses(rs)

	items := make([]grading.Item, 0, len(att.QuestionOrder))
	for _, id := range att.QuestionOrder {
		q, ok := byID[id]
		if !ok {
			return AttemptSummary{}, fmt.Errorf("%w: question %s missing from collection", ErrUnprocessableQuestion, id)
		}
		if err := ValidateQuestion(q); err != nil {
			return AttemptSummary{}, err
		}
		r := respByQ[id]
		items = append(items, grading.Item{
			Question: toGradingQ(q),
			Response: grading.Response{Selected: r.SelectedOptionIDs, Text: r.Text},
		})
	}
	res, err := grading.Grade(items)
	if err != nil {
		return AttemptSummary{}, fmt.Errorf("%w: %v", ErrUnprocessableQuestion, err)
	}
	passed := grading.Passed(res.Grade, inst.PassingScore)
	submittedAt := s.now().UTC()

	ok, err := s.store.FinalizeAttempt(ctx, Finalization{
		StudentExamID: se.ID,
		AttemptID:     att.ID,
		SubmittedAt:   submittedAt,
		Grade:         res.Grade,
		Passed:        passed,
		Scores:        res.Contributions,
		Event:         event,
	})
	if err != nil {
		return AttemptSummary{}, err
	}
	if !ok {
		// Lost a race with another submit; report what that one stored.
		stored, err := s.store.GetAttempt(ctx, att.ID)
		if err != nil {
			return AttemptSummary{}, err
		}
		se.Status = StatusGraded
		return summarize(se, inst, stored), nil
	}

	att.Status, att.SubmittedAt, att.Grade, att.Passed = StatusSubmitted, &submittedAt, &res.Grade, &passed
	se.Status = StatusGraded
	summary := summarize(se, inst, att)
	s.log.Info("attempt graded", "student_exam_id", se.ID, "attempt_id", att.ID,
		"grade", res.Grade, "passed", passed, "event", event)

	notify.Fire(s.notifier, s.log, notify.EventExamSubmitted, map[string]any{
		"student_id":      se.StudentID,
		"student_exam_id": se.ID,
		"attempt_id":      att.ID,
		"exam_title":      inst.Title,
		"grade":           res.Grade,
		"pass_fail":       summary.PassFail,
		"expired":         event == syncx.TypeAttemptExpired,
	}, nil)
	return summary, nil
}

// classifyStartConflict explains why the conditional start matched no row.
func (s *Service) classifyStartConflict(ctx context.Context, studentExamID string, inst Instance) error {
	se, err := s.store.GetStudentExam(ctx, studentExamID)
	if err != nil {
		return err
	}
	if se.Status != StatusInProgress && se.AttemptsTaken >= inst.MaxAttempts {
		return fmt.Errorf("%w: %d of %d used", ErrMaxAttemptsReached, se.AttemptsTaken, inst.MaxAttempts)
	}
	return fmt.Errorf("%w: student exam %s", ErrAlreadyStarted, studentExamID)
}

func (s *Service) question(ctx context.Context, collectionID, questionID string) (Question, error) {
	byID, err := s.questionIndex(ctx, collectionID)
	if err != nil {
		return Question{}, err
	}
	q, ok := byID[questionID]
	if !ok {
		return Question{}, fmt.Errorf("%w: question %s", ErrNotFound, questionID)
	}
	return q, nil
}

func (s *Service) questionIndex(ctx context.Context, collectionID string) (map[string]Question, error) {
	qs, err := s.store.CollectionQuestions(ctx, collectionID)
	if err != nil {
		return nil, err
	}
	m := make(map[string]Question, len(qs))
	for _, q := range qs {
		m[q.ID] = q
	}
	return m, nil
}

// startable checks status before attempts so a concurrent loser sees AlreadyStarted.
func startable(se StudentExam, inst Instance) error {
	switch se.Status {
	case StatusInProgress, StatusSubmitted:
		return fmt.Errorf("%w: student exam %s", ErrAlreadyStarted, se.ID)
	}
	if se.AttemptsTaken >= inst.MaxAttempts {
		return fmt.Errorf("%w: %d of %d used", ErrMaxAttemptsReached, se.AttemptsTaken, inst.MaxAttempts)
	}
	return nil
}

func summarize(se StudentExam, inst Instance, att Attempt) AttemptSummary {
	sum := AttemptSummary{
		StudentExamID:   se.ID,
		AttemptID:       att.ID,
		Status:          att.Status,
		StartedAt:       att.StartedAt,
		SubmittedAt:     att.SubmittedAt,
		Grade:           att.Grade,
		ReviewAvailable: inst.AllowReview && att.Status == StatusSubmitted,
	}
	if att.Passed != nil {
		sum.PassFail = Fail
		if *att.Passed {
			sum.PassFail = Pass
		}
	}
	return sum
}

func sanitize(q Question, optionOrder []string) SanitizedQuestion {
	sq := SanitizedQuestion{ID: q.ID, Text: q.Text, Type: q.Type, Weight: q.Weight}
	for _, o := range reorder(q, optionOrder).Options {
		sq.Options = append(sq.Options, SanitizedOption{ID: o.ID, Text: o.Text})
	}
	return sq
}

// reorder returns q with its options in the stored display order. Options
// unknown to the stored order keep their authoring position at the end.
func reorder(q Question, optionOrder []string) Question {
	if len(optionOrder) == 0 {
		return q
	}
	byID := make(map[string]Option, len(q.Options))
	for _, o := range q.Options {
		byID[o.ID] = o
	}
	opts := make([]Option, 0, len(q.Options))
	used := make(map[string]struct{}, len(optionOrder))
	for _, id := range optionOrder {
		if o, ok := byID[id]; ok {
			opts = append(opts, o)
			used[id] = struct{}{}
		}
	}
	for _, o := range q.Options {
		if _, ok := used[o.ID]; !ok {
			opts = append(opts, o)
		}
	}
	q.Options = opts
	return q
}

func inDisplayOrder(selected, optionOrder []string) []string {
	out := make([]string, 0, len(selected))
	picked := make(map[string]struct{}, len(selected))
	for _, id := range selected {
		picked[id] = struct{}{}
	}
	for _, id := range optionOrder {
		if _, ok := picked[id]; ok {
			out = append(out, id)
			delete(picked, id)
		}
	}
	for _, id := range selected {
		if _, ok := picked[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

func toGradingQ(q Question) grading.Q {
	gq := grading.Q{ID: q.ID, Kind: grading.Kind(q.Type), Weight: q.Weight, Canonical: q.CanonicalAnswer}
	for _, o := range q.Options {
		gq.Choices = append(gq.Choices, grading.Choice{ID: o.ID, Correct: o.IsCorrect})
	}
	return gq
}

func optionIDs(q Question) []string {
	out := make([]string, 0, len(q.Options))
	for _, o := range q.Options {
		out = append(out, o.ID)
	}
	return out
}

func indexResponses(rs []Response) map[string]Response {
	m := make(map[string]Response, len(rs))
	for _, r := range rs {
		m[r.QuestionID] = r
	}
	return m
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
