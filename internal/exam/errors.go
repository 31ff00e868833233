package exam

import (
	"errors"
	"fmt"
)

// Domain errors. All are terminal; callers wrap them with fmt.Errorf("%w: ...")
// and the HTTP layer maps them with errors.Is.
var (
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrAlreadyStarted        = errors.New("exam already started")
	ErrMaxAttemptsReached    = errors.New("maximum attempts reached")
	ErrOutsideExamWindow     = errors.New("outside exam window")
	ErrExamNotYetOpen        = fmt.Errorf("%w: exam not yet open", ErrOutsideExamWindow)
	ErrExamEnded             = fmt.Errorf("%w: exam ended", ErrOutsideExamWindow)
	ErrUnprocessableQuestion = errors.New("unprocessable question")
	ErrValidation            = errors.New("validation error")
	ErrReviewUnavailable     = errors.New("review not available")
	ErrCollectionLocked      = errors.New("collection locked")
)
