package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	auth "github.com/mind-engage/mindengage-exams/internal/auth/middleware"
	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/rbac"
	"github.com/mind-engage/mindengage-exams/internal/report"
)

var validate = validator.New()

type collectionRequest struct {
	exam.Collection
	Questions []exam.Question `json:"questions"`
}

type assignRequest struct {
	StudentIDs []string `json:"student_ids" validate:"required,min=1,max=1000,dive,required,max=128"`
}

// POST /collections
func PutCollectionHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req collectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := d.Exams.PutCollection(r.Context(), auth.SubjectFromContext(r.Context()), req.Collection, req.Questions); err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"id": req.ID, "questions": len(req.Questions)})
	}
}

// POST /instances
func CreateInstanceHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := d.TZ.Location(r)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		var in exam.Instance
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			badRequest(w, "bad json")
			return
		}
		created, err := d.Exams.CreateInstance(r.Context(), auth.SubjectFromContext(r.Context()), in)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		created.StartAt, created.EndAt = created.StartAt.In(loc), created.EndAt.In(loc)
		respondJSON(w, http.StatusCreated, created)
	}
}

// POST /instances/{instanceID}/students
func AssignStudentsHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req assignRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			badRequest(w, "bad json")
			return
		}
		if err := validate.Struct(req); err != nil {
			writeError(w, r, d.Log, fmt.Errorf("%w: %v", exam.ErrValidation, err))
			return
		}
		ses, err := d.Exams.AssignStudents(r.Context(), auth.SubjectFromContext(r.Context()), chi.URLParam(r, "instanceID"), req.StudentIDs)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"student_exams": ses})
	}
}

// GET /instances/{instanceID}/report?from&to&students=a,b&last_attempt_only=true
func ReportHandler(d Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		loc, err := d.TZ.Location(r)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		f, err := reportFilters(r, loc)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		viewer := report.Viewer{
			ID:    auth.SubjectFromContext(r.Context()),
			Admin: rbac.Unrestricted(r.Context()),
		}
		res, err := d.Reports.GetReport(r.Context(), viewer, chi.URLParam(r, "instanceID"), f)
		if err != nil {
			writeError(w, r, d.Log, err)
			return
		}
		res.From, res.To = res.From.In(loc), res.To.In(loc)
		respondJSON(w, http.StatusOK, res)
	}
}

func reportFilters(r *http.Request, loc *time.Location) (report.Filters, error) {
	q := r.URL.Query()
	var f report.Filters
	var err error
	if f.From, err = parseBound(q.Get("from"), loc, false); err != nil {
		return f, err
	}
	if f.To, err = parseBound(q.Get("to"), loc, true); err != nil {
		return f, err
	}
	for _, id := range strings.Split(q.Get("students"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			f.StudentIDs = append(f.StudentIDs, id)
		}
	}
	if v := q.Get("last_attempt_only"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("%w: last_attempt_only must be a boolean", exam.ErrValidation)
		}
		f.LastAttemptOnly = b
	}
	return f, nil
}
