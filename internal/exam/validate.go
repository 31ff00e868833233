package exam

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateQuestion checks the authoring invariants a question must satisfy
// before the engine will deliver or score it.
func ValidateQuestion(q Question) error {
	if err := validate.Struct(q); err != nil {
		return fmt.Errorf("%w: question %s: %v", ErrUnprocessableQuestion, q.ID, err)
	}
	seen := make(map[string]struct{}, len(q.Options))
	correct := 0
	for _, o := range q.Options {
		if _, dup := seen[o.ID]; dup {
			return fmt.Errorf("%w: question %s: duplicate option %s", ErrUnprocessableQuestion, q.ID, o.ID)
		}
		seen[o.ID] = struct{}{}
		if o.IsCorrect {
			correct++
		}
	}
	switch q.Type {
	case QuestionMultipleChoice:
		if len(q.Options) == 0 || correct == 0 {
			return fmt.Errorf("%w: question %s: needs at least one correct option", ErrUnprocessableQuestion, q.ID)
		}
	case QuestionSingleChoice:
		if len(q.Options) == 0 || correct != 1 {
			return fmt.Errorf("%w: question %s: needs exactly one correct option", ErrUnprocessableQuestion, q.ID)
		}
	case QuestionShortAnswer:
		if strings.TrimSpace(q.CanonicalAnswer) == "" {
			return fmt.Errorf("%w: question %s: missing canonical answer", ErrUnprocessableQuestion, q.ID)
		}
	default:
		return fmt.Errorf("%w: question %s: unknown type %q", ErrUnprocessableQuestion, q.ID, q.Type)
	}
	return nil
}

// ValidateAnswer checks a save payload against the question it targets.
func ValidateAnswer(q Question, a Answer) error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if q.Type == QuestionShortAnswer {
		if len(a.SelectedOptionIDs) > 0 {
			return fmt.Errorf("%w: short answer question %s takes text", ErrValidation, q.ID)
		}
		return nil
	}
	if a.Text != nil && *a.Text != "" {
		return fmt.Errorf("%w: choice question %s takes option ids", ErrValidation, q.ID)
	}
	if q.Type == QuestionSingleChoice && len(a.SelectedOptionIDs) > 1 {
		return fmt.Errorf("%w: question %s accepts a single option", ErrValidation, q.ID)
	}
	known := make(map[string]struct{}, len(q.Options))
	for _, o := range q.Options {
		known[o.ID] = struct{}{}
	}
	picked := make(map[string]struct{}, len(a.SelectedOptionIDs))
	for _, id := range a.SelectedOptionIDs {
		if _, ok := known[id]; !ok {
			return fmt.Errorf("%w: option %s does not belong to question %s", ErrValidation, id, q.ID)
		}
		if _, dup := picked[id]; dup {
			return fmt.Errorf("%w: option %s selected twice", ErrValidation, id)
		}
		picked[id] = struct{}{}
	}
	return nil
}

// ValidateCollection checks the collection header and every question in it.
func ValidateCollection(c Collection, qs []Question) error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: collection: %v", ErrValidation, err)
	}
	ids := make(map[string]struct{}, len(qs))
	for _, q := range qs {
		if _, dup := ids[q.ID]; dup {
			return fmt.Errorf("%w: duplicate question %s", ErrValidation, q.ID)
		}
		ids[q.ID] = struct{}{}
		if err := ValidateQuestion(q); err != nil {
			return err
		}
	}
	return nil
}

// ValidateInstance enforces end > start > now along with the field bounds.
func ValidateInstance(in Instance, now time.Time) error {
	if err := validate.Struct(in); err != nil {
		return fmt.Errorf("%w: instance: %v", ErrValidation, err)
	}
	if in.StartAt.IsZero() || in.EndAt.IsZero() {
		return fmt.Errorf("%w: instance start and end are required", ErrValidation)
	}
	if !in.StartAt.After(now) {
		return fmt.Errorf("%w: instance must start in the future", ErrValidation)
	}
	if !in.EndAt.After(in.StartAt) {
		return fmt.Errorf("%w: instance must end after it starts", ErrValidation)
	}
	return nil
}
