package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	syncx "github.com/mind-engage/mindengage-exams/internal/sync"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ---- collections ----

// PutCollection upserts a collection and its questions. Question ids may not
// move between collections. Once a collection has left draft or backs an
// instance its questions are frozen: resending them unchanged is accepted,
// anything else fails with ErrCollectionLocked.
func (s *SQLStore) PutCollection(ctx context.Context, c Collection, qs []Question) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	locked, err := collectionLocked(ctx, tx, c.ID)
	if err != nil {
		return err
	}
	if locked && c.Status == CollectionDraft {
		return fmt.Errorf("%w: collection %s cannot return to draft", ErrCollectionLocked, c.ID)
	}
	var stored map[string]Question
	if locked {
		current, err := collectionQuestions(ctx, tx, c.ID)
		if err != nil {
			return err
		}
		stored = make(map[string]Question, len(current))
		for _, q := range current {
			stored[q.ID] = q
		}
	}

	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = tx.ExecContext(ctx, `INSERT INTO collections (id,title,owner_id,status,created_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, status=EXCLUDED.status`,
		c.ID, c.Title, c.OwnerID, string(c.Status), created.UnixMilli())
	if err != nil {
		return err
	}
	for i, q := range qs {
		if q.Position == 0 {
			q.Position = i + 1
		}
		var owner string
		err := tx.QueryRowContext(ctx, `SELECT collection_id FROM questions WHERE id=$1`, q.ID).Scan(&owner)
		switch {
		case errors.Is(err, sql.ErrNoRows):
		case err != nil:
			return err
		case owner != c.ID:
			return fmt.Errorf("%w: question %s belongs to another collection", ErrForbidden, q.ID)
		}
		if locked {
			if prev, ok := stored[q.ID]; !ok || !sameQuestion(prev, q) {
				return fmt.Errorf("%w: collection %s, question %s", ErrCollectionLocked, c.ID, q.ID)
			}
			continue
		}
		oj, err := json.Marshal(q.Options)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO questions (id,collection_id,position,type,text,options_json,canonical_answer,weight)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
			ON CONFLICT (id) DO UPDATE SET position=EXCLUDED.position, type=EXCLUDED.type, text=EXCLUDED.text,
				options_json=EXCLUDED.options_json, canonical_answer=EXCLUDED.canonical_answer, weight=EXCLUDED.weight
			WHERE questions.collection_id = EXCLUDED.collection_id`,
			q.ID, c.ID, q.Position, string(q.Type), q.Text, string(oj), q.CanonicalAnswer, q.Weight)
		if err != nil {
			return fmt.Errorf("question %s: %w", q.ID, err)
		}
	}
	return tx.Commit()
}

// collectionLocked reports whether an existing collection is past draft or
// referenced by an exam instance.
func collectionLocked(ctx context.Context, qr querier, id string) (bool, error) {
	var status string
	err := qr.QueryRowContext(ctx, `SELECT status FROM collections WHERE id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if CollectionStatus(status) != CollectionDraft {
		return true, nil
	}
	var n int
	if err := qr.QueryRowContext(ctx, `SELECT COUNT(*) FROM exam_instances WHERE collection_id=$1`, id).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func sameQuestion(a, b Question) bool {
	return a.Type == b.Type && a.Text == b.Text && a.CanonicalAnswer == b.CanonicalAnswer &&
		a.Weight == b.Weight && a.Position == b.Position && slices.Equal(a.Options, b.Options)
}

func (s *SQLStore) GetCollection(ctx context.Context, id string) (Collection, error) {
	var c Collection
	var created int64
	err := s.db.QueryRowContext(ctx, `SELECT id,title,owner_id,status,created_at FROM collections WHERE id=$1`, id).
		Scan(&c.ID, &c.Title, &c.OwnerID, &c.Status, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Collection{}, fmt.Errorf("%w: collection %s", ErrNotFound, id)
	}
	if err != nil {
		return Collection{}, err
	}
	c.CreatedAt = fromMillis(created)
	return c, nil
}

func (s *SQLStore) CollectionQuestions(ctx context.Context, collectionID string) ([]Question, error) {
	return collectionQuestions(ctx, s.db, collectionID)
}

func collectionQuestions(ctx context.Context, qr querier, collectionID string) ([]Question, error) {
	rows, err := qr.QueryContext(ctx, `SELECT id,collection_id,position,type,text,options_json,canonical_answer,weight
		FROM questions WHERE collection_id=$1 ORDER BY position, id`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Question
	for rows.Next() {
		var q Question
		var oj string
		if err := rows.Scan(&q.ID, &q.CollectionID, &q.Position, &q.Type, &q.Text, &oj, &q.CanonicalAnswer, &q.Weight); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(oj), &q.Options); err != nil {
			return nil, fmt.Errorf("%w: question %s options: %v", ErrUnprocessableQuestion, q.ID, err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

// ---- instances ----

func (s *SQLStore) CreateInstance(ctx context.Context, in Instance) error {
	nj, err := json.Marshal(in.Notifications)
	if err != nil {
		return err
	}
	created := in.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exam_instances
		(id,collection_id,title,start_at,end_at,max_attempts,passing_score,shuffle_questions,allow_review,notifications_json,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		in.ID, in.CollectionID, in.Title, in.StartAt.UnixMilli(), in.EndAt.UnixMilli(), in.MaxAttempts, in.PassingScore,
		boolInt(in.ShuffleQuestions), boolInt(in.AllowReview), string(nj), in.CreatedBy, created.UnixMilli())
	return err
}

func (s *SQLStore) GetInstance(ctx context.Context, id string) (Instance, error) {
	var in Instance
	var start, end, created int64
	var shuffle, review int64
	var nj string
	err := s.db.QueryRowContext(ctx, `SELECT id,collection_id,title,start_at,end_at,max_attempts,passing_score,
		shuffle_questions,allow_review,notifications_json,created_by,created_at FROM exam_instances WHERE id=$1`, id).
		Scan(&in.ID, &in.CollectionID, &in.Title, &start, &end, &in.MaxAttempts, &in.PassingScore,
			&shuffle, &review, &nj, &in.CreatedBy, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return Instance{}, fmt.Errorf("%w: exam instance %s", ErrNotFound, id)
	}
	if err != nil {
		return Instance{}, err
	}
	in.StartAt, in.EndAt, in.CreatedAt = fromMillis(start), fromMillis(end), fromMillis(created)
	in.ShuffleQuestions, in.AllowReview = shuffle != 0, review != 0
	if err := json.Unmarshal([]byte(nj), &in.Notifications); err != nil {
		return Instance{}, fmt.Errorf("exam instance %s notifications: %w", id, err)
	}
	return in, nil
}

// ---- student exams ----

const studentExamCols = `id,instance_id,student_id,status,attempts_taken,current_attempt_id`

func (s *SQLStore) AssignStudents(ctx context.Context, instanceID string, studentIDs []string) ([]StudentExam, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	out := make([]StudentExam, 0, len(studentIDs))
	for _, sid := range studentIDs {
		_, err := tx.ExecContext(ctx, `INSERT INTO student_exams (`+studentExamCols+`)
			VALUES ($1,$2,$3,$4,0,'')
			ON CONFLICT (instance_id, student_id) DO NOTHING`,
			uuid.NewString(), instanceID, sid, string(StatusNotStarted))
		if err != nil {
			return nil, err
		}
		se, err := scanStudentExam(tx.QueryRowContext(ctx,
			`SELECT `+studentExamCols+` FROM student_exams WHERE instance_id=$1 AND student_id=$2`, instanceID, sid))
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, tx.Commit()
}

func (s *SQLStore) GetStudentExam(ctx context.Context, id string) (StudentExam, error) {
	se, err := scanStudentExam(s.db.QueryRowContext(ctx, `SELECT `+studentExamCols+` FROM student_exams WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return StudentExam{}, fmt.Errorf("%w: student exam %s", ErrNotFound, id)
	}
	return se, err
}

func (s *SQLStore) ListStudentExamsByStudent(ctx context.Context, studentID string) ([]StudentExam, error) {
	return s.listStudentExams(ctx, `SELECT `+studentExamCols+` FROM student_exams WHERE student_id=$1 ORDER BY id`, studentID)
}

func (s *SQLStore) ListStudentExamsByInstance(ctx context.Context, instanceID string) ([]StudentExam, error) {
	return s.listStudentExams(ctx, `SELECT `+studentExamCols+` FROM student_exams WHERE instance_id=$1 ORDER BY student_id`, instanceID)
}

func (s *SQLStore) listStudentExams(ctx context.Context, query string, arg string) ([]StudentExam, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StudentExam
	for rows.Next() {
		se, err := scanStudentExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, se)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStudentExam(row scanner) (StudentExam, error) {
	var se StudentExam
	err := row.Scan(&se.ID, &se.InstanceID, &se.StudentID, &se.Status, &se.AttemptsTaken, &se.CurrentAttemptID)
	return se, err
}

// ---- attempts ----

func (s *SQLStore) BeginAttempt(ctx context.Context, studentExamID string, maxAttempts int, a Attempt, rs []Response) error {
	order, err := json.Marshal(a.QuestionOrder)
	if err != nil {
		return err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	// Conditional transition: only one concurrent start can match.
	res, err := tx.ExecContext(ctx, `UPDATE student_exams
		SET status=$1, attempts_taken=attempts_taken+1, current_attempt_id=$2
		WHERE id=$3 AND status IN ($4,$5) AND attempts_taken < $6`,
		string(StatusInProgress), a.ID, studentExamID, string(StatusNotStarted), string(StatusGraded), maxAttempts)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err != nil {
		return err
	} else if n == 0 {
		return fmt.Errorf("%w: student exam %s", ErrAlreadyStarted, studentExamID)
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO student_attempts (id,student_exam_id,status,question_order_json,started_at)
		VALUES ($1,$2,$3,$4,$5)`,
		a.ID, studentExamID, string(StatusInProgress), string(order), a.StartedAt.UnixMilli())
	if err != nil {
		return err
	}
	for _, r := range rs {
		sel, _ := json.Marshal(nonNil(r.SelectedOptionIDs))
		oo, _ := json.Marshal(nonNil(r.OptionOrder))
		_, err = tx.ExecContext(ctx, `INSERT INTO student_responses
			(id,attempt_id,question_id,selected_json,text_answer,option_order_json,flagged,score)
			VALUES ($1,$2,$3,$4,$5,$6,0,0)`,
			r.ID, a.ID, r.QuestionID, string(sel), r.Text, string(oo))
		if err != nil {
			return fmt.Errorf("response %s: %w", r.QuestionID, err)
		}
	}
	if err := syncx.Append(ctx, tx, syncx.TypeAttemptStarted, a.ID, map[string]any{
		"student_exam_id": studentExamID,
		"questions":       len(a.QuestionOrder),
	}); err != nil {
		return err
	}
	return tx.Commit()
}

const attemptCols = `id,student_exam_id,status,question_order_json,started_at,submitted_at,grade,passed`

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptCols+` FROM student_attempts WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Attempt{}, fmt.Errorf("%w: attempt %s", ErrNotFound, id)
	}
	return a, err
}

func (s *SQLStore) ListAttempts(ctx context.Context, studentExamID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptCols+` FROM student_attempts
		WHERE student_exam_id=$1 ORDER BY started_at, id`, studentExamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAttempt(row scanner) (Attempt, error) {
	var a Attempt
	var order string
	var started int64
	var submitted sql.NullInt64
	var grade sql.NullFloat64
	var passed sql.NullInt64
	if err := row.Scan(&a.ID, &a.StudentExamID, &a.Status, &order, &started, &submitted, &grade, &passed); err != nil {
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(order), &a.QuestionOrder); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s question order: %w", a.ID, err)
	}
	a.StartedAt = fromMillis(started)
	if submitted.Valid {
		t := fromMillis(submitted.Int64)
		a.SubmittedAt = &t
	}
	if grade.Valid {
		g := grade.Float64
		a.Grade = &g
	}
	if passed.Valid {
		p := passed.Int64 != 0
		a.Passed = &p
	}
	return a, nil
}

func (s *SQLStore) GetResponses(ctx context.Context, attemptID string) ([]Response, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,attempt_id,question_id,selected_json,text_answer,option_order_json,flagged,score,updated_at
		FROM student_responses WHERE attempt_id=$1 ORDER BY question_id`, attemptID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Response
	for rows.Next() {
		var r Response
		var sel, oo string
		var flagged int64
		var updated sql.NullInt64
		if err := rows.Scan(&r.ID, &r.AttemptID, &r.QuestionID, &sel, &r.Text, &oo, &flagged, &r.Score, &updated); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sel), &r.SelectedOptionIDs); err != nil {
			return nil, fmt.Errorf("response %s selection: %w", r.ID, err)
		}
		if err := json.Unmarshal([]byte(oo), &r.OptionOrder); err != nil {
			return nil, fmt.Errorf("response %s option order: %w", r.ID, err)
		}
		r.Flagged = flagged != 0
		if updated.Valid {
			t := fromMillis(updated.Int64)
			r.UpdatedAt = &t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) SaveAnswer(ctx context.Context, attemptID, questionID string, selected []string, text string, at time.Time) (bool, error) {
	sel, err := json.Marshal(nonNil(selected))
	if err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE student_responses SET selected_json=$1, text_answer=$2, updated_at=$3
		WHERE attempt_id=$4 AND question_id=$5
		AND EXISTS (SELECT 1 FROM student_attempts WHERE id=$6 AND status=$7)`,
		string(sel), text, at.UnixMilli(), attemptID, questionID, attemptID, string(StatusInProgress))
	return affected(res, err)
}

func (s *SQLStore) ToggleFlag(ctx context.Context, attemptID, questionID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE student_responses SET flagged = CASE WHEN flagged = 0 THEN 1 ELSE 0 END
		WHERE attempt_id=$1 AND question_id=$2
		AND EXISTS (SELECT 1 FROM student_attempts WHERE id=$3 AND status=$4)`,
		attemptID, questionID, attemptID, string(StatusInProgress))
	return affected(res, err)
}

func (s *SQLStore) FinalizeAttempt(ctx context.Context, f Finalization) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE student_attempts SET status=$1, submitted_at=$2, grade=$3, passed=$4
		WHERE id=$5 AND status=$6`,
		string(StatusSubmitted), f.SubmittedAt.UnixMilli(), f.Grade, boolInt(f.Passed), f.AttemptID, string(StatusInProgress))
	if ok, err := affected(res, err); err != nil || !ok {
		return false, err
	}
	for qid, score := range f.Scores {
		if _, err := tx.ExecContext(ctx, `UPDATE student_responses SET score=$1 WHERE attempt_id=$2 AND question_id=$3`,
			score, f.AttemptID, qid); err != nil {
			return false, err
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE student_exams SET status=$1 WHERE id=$2 AND current_attempt_id=$3`,
		string(StatusGraded), f.StudentExamID, f.AttemptID); err != nil {
		return false, err
	}
	event := f.Event
	if event == "" {
		event = syncx.TypeAttemptSubmitted
	}
	if err := syncx.Append(ctx, tx, event, f.AttemptID, map[string]any{
		"student_exam_id": f.StudentExamID,
		"grade":           f.Grade,
		"passed":          f.Passed,
	}); err != nil {
		return false, err
	}
	return true, tx.Commit()
}

// helpers

func affected(res sql.Result, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nonNil(xs []string) []string {
	if xs == nil {
		return []string{}
	}
	return xs
}
