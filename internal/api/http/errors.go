package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mind-engage/mindengage-exams/internal/exam"
	"github.com/mind-engage/mindengage-exams/internal/logger"
)

type apiError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorEnvelope struct {
	Error apiError `json:"error"`
}

// toAPIError maps domain errors to a status and a stable code. Order matters:
// the window refinements wrap ErrOutsideExamWindow.
func toAPIError(err error) apiError {
	e := apiError{Message: err.Error()}
	switch {
	case errors.Is(err, exam.ErrNotFound):
		e.Status, e.Code = http.StatusNotFound, "not_found"
	case errors.Is(err, exam.ErrReviewUnavailable):
		e.Status, e.Code = http.StatusForbidden, "review_unavailable"
	case errors.Is(err, exam.ErrForbidden):
		e.Status, e.Code = http.StatusForbidden, "forbidden"
	case errors.Is(err, exam.ErrAlreadyStarted):
		e.Status, e.Code = http.StatusConflict, "already_started"
	case errors.Is(err, exam.ErrCollectionLocked):
		e.Status, e.Code = http.StatusConflict, "collection_locked"
	case errors.Is(err, exam.ErrMaxAttemptsReached):
		e.Status, e.Code = http.StatusConflict, "max_attempts_reached"
	case errors.Is(err, exam.ErrExamNotYetOpen):
		e.Status, e.Code = http.StatusUnprocessableEntity, "exam_not_open"
	case errors.Is(err, exam.ErrExamEnded):
		e.Status, e.Code = http.StatusUnprocessableEntity, "exam_ended"
	case errors.Is(err, exam.ErrOutsideExamWindow):
		e.Status, e.Code = http.StatusUnprocessableEntity, "outside_exam_window"
	case errors.Is(err, exam.ErrValidation):
		e.Status, e.Code = http.StatusBadRequest, "validation_error"
	case errors.Is(err, exam.ErrUnprocessableQuestion):
		e.Status, e.Code = http.StatusUnprocessableEntity, "unprocessable_question"
	default:
		e.Status, e.Code, e.Message = http.StatusInternalServerError, "internal", "internal error"
	}
	return e
}

func writeError(w http.ResponseWriter, r *http.Request, log *logger.Logger, err error) {
	e := toAPIError(err)
	if e.Status >= http.StatusInternalServerError {
		log.Error("request failed", "method", r.Method, "path", r.URL.Path, "request_id", requestID(r), "error", err)
	}
	respondJSON(w, e.Status, errorEnvelope{Error: e})
}

func badRequest(w http.ResponseWriter, msg string) {
	respondJSON(w, http.StatusBadRequest, errorEnvelope{Error: apiError{Code: "bad_request", Message: msg}})
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
