package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
)

// GET /me/exams
func ListMyExamsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := d.TZ.Location(r)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		views, err := d.Exams.ListStudentExams(r.Context(), auth.SubjectFromContext(r.Context()))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		for i := range views {
			views[i].StartAt = views[i].StartAt.In(loc)
			views[i].EndAt = views[i].EndAt.In(loc)
		}
		respondJSON(w, http.StatusOK, map[string]any{"exams": views, "timezone": loc.String()})
	}
}

// POST /student-exams/{studentExamID}/start
func StartExamHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := d.Exams.StartExam(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "studentExamID"))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"questions": qs})
	}
}

// PUT /student-exams/{studentExamID}/answers/{questionID}
func SaveAnswerHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var ans exam.Answer
		if err := json.NewDecoder(r.Body).Decode(&ans); err != nil {
			badRequest(w, "bad json")
			return
		}
		err := d.Exams.SaveAnswer(r.Context(), auth.SubjectFromContext(r.Context()),
			chi.URLParam(r, "studentExamID"), chi.URLParam(r, "questionID"), ans)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /student-exams/{studentExamID}/flags/{questionID}
func ToggleFlagHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := d.Exams.ToggleFlag(r.Context(), auth.SubjectFromContext(r.Context()),
			chi.URLParam(r, "studentExamID"), chi.URLParam(r, "questionID"))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// GET /student-exams/{studentExamID}/attempt
func ReloadExamHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qs, err := d.Exams.ReloadExam(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "studentExamID"))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"questions": qs})
	}
}

// POST /student-exams/{studentExamID}/submit
func SubmitExamHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := d.TZ.Location(r)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		sum, err := d.Exams.SubmitExam(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "studentExamID"))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		respondJSON(w, http.StatusOK, localSummary(sum, loc))
	}
}

// GET /student-exams/{studentExamID}/review
func ReviewHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := d.TZ.Location(r)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		rev, err := d.Exams.GetReview(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "studentExamID"))
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		rev.Summary = localSummary(rev.Summary, loc)
		respondJSON(w, http.StatusOK, rev)
	}
}

func localSummary(s exam.AttemptSummary, loc *time.Location) exam.AttemptSummary {
	s.StartedAt = s.StartedAt.In(loc)
	if s.SubmittedAt != nil {
		t := s.SubmittedAt.In(loc)
		s.SubmittedAt = &t
	}
	return s
}
