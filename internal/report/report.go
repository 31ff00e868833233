// Package report aggregates graded attempts of one exam instance into
// statistics, a score histogram and a per-day timeline.
package report

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/grading"
	"github.com/mind-engage/mindengage-exams/internal/logger"
)

// Source is the read side the aggregator needs. *exam.SQLStore satisfies it.
type Source interface {
	GetInstance(ctx context.Context, id string) (exam.Instance, error)
	ListStudentExamsByInstance(ctx context.Context, instanceID string) ([]exam.StudentExam, error)
	ListAttempts(ctx context.Context, studentExamID string) ([]exam.Attempt, error)
}

// Filters narrow the attempts a report covers. Nil bounds default to the
// instance start and the current time; both bounds are inclusive.
type Filters struct {
	From            *time.Time
	To              *time.Time
	StudentIDs      []string
	LastAttemptOnly bool
}

// Viewer is who asks for the report. Only the instance creator or an admin may read it.
type Viewer struct {
	ID    string
	Admin bool
}

type Statistics struct {
	Mean   *float64 `json:"mean"`
	Median *float64 `json:"median"`
	Max    *float64 `json:"max"`
	Min    *float64 `json:"min"`
}

type Bin struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

type Point struct {
	Date      string  `json:"date"`
	MeanGrade float64 `json:"mean_grade"`
	Attempts  int     `json:"attempts"`
}

// Row is one graded attempt as the computation sees it.
type Row struct {
	StudentID   string
	Grade       float64
	SubmittedAt time.Time
}

type Result struct {
	InstanceID    string     `json:"instance_id"`
	Title         string     `json:"title"`
	PassingScore  float64    `json:"passing_score"`
	From          time.Time  `json:"from"`
	To            time.Time  `json:"to"`
	TotalStudents int        `json:"total_students"`
	TotalAttempts int        `json:"total_attempts"`
	Statistics    Statistics `json:"statistics"`
	PassRate      *float64   `json:"pass_rate"`
	Histogram     []Bin      `json:"histogram"`
	Timeline      []Point    `json:"timeline"`
}

const binCount = 10

type Aggregator struct {
	src   Source
	log   *logger.Logger
	limit int
	now   func() time.Time
}

func NewAggregator(src Source, log *logger.Logger, concurrency int) *Aggregator {
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Aggregator{src: src, log: log.With("service", "report"), limit: concurrency, now: time.Now}
}

// WithClock replaces the time source used for the default upper bound.
func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// GetReport collects the graded attempts of an instance that match f and
// computes the report over them.
func (a *Aggregator) GetReport(ctx context.Context, v Viewer, instanceID string, f Filters) (Result, error) {
	inst, err := a.src.GetInstance(ctx, instanceID)
	if err != nil {
		return Result{}, err
	}
	if !v.Admin && inst.CreatedBy != v.ID {
		return Result{}, fmt.Errorf("%w: instance %s belongs to another teacher", exam.ErrForbidden, instanceID)
	}

	from, to := inst.StartAt, a.now().UTC()
	if f.From != nil {
		from = f.From.UTC()
	}
	if f.To != nil {
		to = f.To.UTC()
	}
	if to.Before(from) {
		if f.From != nil && f.To != nil {
			return Result{}, fmt.Errorf("%w: report range ends before it starts", exam.ErrValidation)
		}
		// a defaulted bound on an instance that has not opened yet
		to = from
	}

	ses, err := a.src.ListStudentExamsByInstance(ctx, instanceID)
	if err != nil {
		return Result{}, err
	}
	ses = filterStudents(ses, f.StudentIDs)

	var (
		mu   sync.Mutex
		rows []Row
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.limit)
	for _, se := range ses {
		se := se
		g.Go(func() error {
			attempts, err := a.src.ListAttempts(gctx, se.ID)
			if err != nil {
				return fmt.Errorf("student exam %s: %w", se.ID, err)
			}
			picked := selectAttempts(se.StudentID, attempts, from, to, f.LastAttemptOnly)
			if len(picked) == 0 {
				return nil
			}
			mu.Lock()
			rows = append(rows, picked...)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	res := Compute(rows, inst.PassingScore)
	res.InstanceID, res.Title, res.PassingScore = inst.ID, inst.Title, inst.PassingScore
	res.From, res.To = from, to
	a.log.Debug("report computed", "instance_id", instanceID, "student_exams", len(ses), "attempts", res.TotalAttempts)
	return res, nil
}

func filterStudents(ses []exam.StudentExam, ids []string) []exam.StudentExam {
	if len(ids) == 0 {
		return ses
	}
	want := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		want[id] = struct{}{}
	}
	out := ses[:0:0]
	for _, se := range ses {
		if _, ok := want[se.StudentID]; ok {
			out = append(out, se)
		}
	}
	return out
}

// selectAttempts keeps graded attempts submitted inside [from, to], or only
// the latest of them when lastOnly is set.
func selectAttempts(studentID string, attempts []exam.Attempt, from, to time.Time, lastOnly bool) []Row {
	var out []Row
	for _, at := range attempts {
		if at.Grade == nil || at.SubmittedAt == nil {
			continue
		}
		ts := at.SubmittedAt.UTC()
		if ts.Before(from) || ts.After(to) {
			continue
		}
		out = append(out, Row{StudentID: studentID, Grade: *at.Grade, SubmittedAt: ts})
	}
	if lastOnly && len(out) > 1 {
		last := out[0]
		for _, r := range out[1:] {
			if r.SubmittedAt.After(last.SubmittedAt) {
				last = r
			}
		}
		out = []Row{last}
	}
	return out
}

// Compute builds the statistics, histogram and timeline of rows. Without rows
// every statistic is nil and both series are empty.
func Compute(rows []Row, passingScore float64) Result {
	res := Result{Histogram: []Bin{}, Timeline: []Point{}}
	if len(rows) == 0 {
		return res
	}

	students := make(map[string]struct{}, len(rows))
	grades := make([]float64, 0, len(rows))
	sum, passed := 0.0, 0
	for _, r := range rows {
		students[r.StudentID] = struct{}{}
		grades = append(grades, r.Grade)
		sum += r.Grade
		if grading.Passed(r.Grade, passingScore) {
			passed++
		}
	}
	sort.Float64s(grades)
	n := len(grades)

	res.TotalStudents = len(students)
	res.TotalAttempts = n
	res.Statistics = Statistics{
		Mean:   ptr(grading.Round1(sum / float64(n))),
		Median: ptr(grading.Round1(median(grades))),
		Max:    ptr(grades[n-1]),
		Min:    ptr(grades[0]),
	}
	res.PassRate = ptr(grading.Round1(float64(passed) / float64(n) * 100))
	res.Histogram = histogram(grades)
	res.Timeline = timeline(rows)
	return res
}

func median(sorted []float64) float64 {
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

// histogram counts grades into ten bins of ten points; 100 falls in the last one.
func histogram(grades []float64) []Bin {
	bins := make([]Bin, binCount)
	for i := range bins {
		lo := i * 10
		bins[i].Label = fmt.Sprintf("%d-%d", lo, lo+9)
	}
	bins[binCount-1].Label = "90-100"
	for _, g := range grades {
		bins[binIndex(g)].Count++
	}
	return bins
}

func binIndex(g float64) int {
	i := int(g / 10)
	switch {
	case i < 0:
		return 0
	case i >= binCount:
		return binCount - 1
	}
	return i
}

func timeline(rows []Row) []Point {
	type acc struct {
		sum float64
		n   int
	}
	days := map[string]*acc{}
	for _, r := range rows {
		d := r.SubmittedAt.UTC().Format(time.DateOnly)
		a, ok := days[d]
		if !ok {
			a = &acc{}
			days[d] = a
		}
		a.sum += r.Grade
		a.n++
	}
	out := make([]Point, 0, len(days))
	for d, a := range days {
		out = append(out, Point{Date: d, MeanGrade: grading.Round1(a.sum / float64(a.n)), Attempts: a.n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

func ptr(f float64) *float64 { return &f }
