package exam

import "time"

// QuestionType is the closed set of question variants the engine can score.
type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "multiple_choice"
	QuestionSingleChoice   QuestionType = "single_choice"
	QuestionShortAnswer    QuestionType = "short_answer"
)

func (t QuestionType) IsChoice() bool {
	return t == QuestionMultipleChoice || t == QuestionSingleChoice
}

type CollectionStatus string

const (
	CollectionDraft     CollectionStatus = "draft"
	CollectionPublished CollectionStatus = "published"
	CollectionArchived  CollectionStatus = "archived"
)

// Status is shared by StudentExam (all four values) and Attempt (in_progress|submitted).
type Status string

const (
	StatusNotStarted Status = "not_started"
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusGraded     Status = "graded"
)

type Option struct {
	ID        string `json:"id" validate:"required,max=128"`
	Text      string `json:"text"`
	IsCorrect bool   `json:"is_correct"`
}

type Question struct {
	ID              string       `json:"id" validate:"required,max=128"`
	CollectionID    string       `json:"collection_id,omitempty"`
	Text            string       `json:"text" validate:"required"`
	Type            QuestionType `json:"type" validate:"required,oneof=multiple_choice single_choice short_answer"`
	Options         []Option     `json:"options,omitempty" validate:"dive"`
	CanonicalAnswer string       `json:"canonical_answer,omitempty"`
	Weight          int          `json:"weight" validate:"min=1"`
	Position        int          `json:"position"`
}

type Collection struct {
	ID        string           `json:"id" validate:"required,max=128"`
	Title     string           `json:"title" validate:"required"`
	OwnerID   string           `json:"owner_id"`
	Status    CollectionStatus `json:"status" validate:"required,oneof=draft published archived"`
	CreatedAt time.Time        `json:"created_at"`
}

// NotificationSettings is stored with the instance and read by the external
// reminder scheduler. The submission confirmation is always sent.
type NotificationSettings struct {
	ReminderMinutesBefore []int `json:"reminder_minutes_before,omitempty" validate:"max=10,dive,min=1,max=10080"`
	NotifyOnAssign        bool  `json:"notify_on_assign"`
}

// Instance is a scheduled sitting of one collection. Times are UTC at rest.
type Instance struct {
	ID               string               `json:"id" validate:"required,max=128"`
	CollectionID     string               `json:"collection_id" validate:"required"`
	Title            string               `json:"title" validate:"required"`
	StartAt          time.Time            `json:"start_at"`
	EndAt            time.Time            `json:"end_at"`
	MaxAttempts      int                  `json:"max_attempts" validate:"min=1"`
	PassingScore     float64              `json:"passing_score" validate:"gte=0,lte=100"`
	ShuffleQuestions bool                 `json:"shuffle_questions"`
	AllowReview      bool                 `json:"allow_review"`
	Notifications    NotificationSettings `json:"notifications"`
	CreatedBy        string               `json:"created_by"`
	CreatedAt        time.Time            `json:"created_at"`
}

// StudentExam binds one student to one instance.
type StudentExam struct {
	ID               string `json:"id"`
	InstanceID       string `json:"instance_id"`
	StudentID        string `json:"student_id"`
	Status           Status `json:"status"`
	AttemptsTaken    int    `json:"attempts_taken"`
	CurrentAttemptID string `json:"current_attempt_id,omitempty"`
}

// Attempt is one sitting. QuestionOrder is fixed when the attempt is created.
type Attempt struct {
	ID            string     `json:"id"`
	StudentExamID string     `json:"student_exam_id"`
	Status        Status     `json:"status"`
	QuestionOrder []string   `json:"question_order"`
	StartedAt     time.Time  `json:"started_at"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	Grade         *float64   `json:"grade,omitempty"`
	Passed        *bool      `json:"passed,omitempty"`
}

// Response is the per-question answer record of an attempt. OptionOrder is
// the display order of the question's options, fixed at creation.
type Response struct {
	ID                string     `json:"id"`
	AttemptID         string     `json:"attempt_id"`
	QuestionID        string     `json:"question_id"`
	SelectedOptionIDs []string   `json:"selected_option_ids"`
	Text              string     `json:"text"`
	OptionOrder       []string   `json:"option_order"`
	Flagged           bool       `json:"flagged"`
	Score             float64    `json:"score"`
	UpdatedAt         *time.Time `json:"updated_at,omitempty"`
}

// Answer is the payload of a save: option ids for choice questions, text for short answers.
type Answer struct {
	SelectedOptionIDs []string `json:"selected_option_ids,omitempty" validate:"max=64,dive,required,max=128"`
	Text              *string  `json:"text,omitempty" validate:"omitempty,max=4000"`
}

type SanitizedOption struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// SanitizedQuestion is what a student receives: no correctness markers, no canonical answer.
type SanitizedQuestion struct {
	ID      string            `json:"id"`
	Text    string            `json:"text"`
	Type    QuestionType      `json:"type"`
	Weight  int               `json:"weight"`
	Options []SanitizedOption `json:"options,omitempty"`
}

type QuestionWithResponse struct {
	SanitizedQuestion
	SelectedOptionIDs []string `json:"selected_option_ids"`
	AnswerText        string   `json:"answer_text"`
	Flagged           bool     `json:"flagged"`
}

type AttemptSummary struct {
	StudentExamID   string     `json:"student_exam_id"`
	AttemptID       string     `json:"attempt_id"`
	Status          Status     `json:"status"`
	StartedAt       time.Time  `json:"started_at"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	Grade           *float64   `json:"grade"`
	PassFail        string     `json:"pass_fail,omitempty"`
	ReviewAvailable bool       `json:"review_available"`
}

const (
	Pass = "PASS"
	Fail = "FAIL"
)

type ReviewItem struct {
	Question          Question `json:"question"`
	SelectedOptionIDs []string `json:"selected_option_ids"`
	AnswerText        string   `json:"answer_text"`
	Flagged           bool     `json:"flagged"`
	Score             float64  `json:"score"`
	Correct           bool     `json:"correct"`
}

type Review struct {
	Summary AttemptSummary `json:"summary"`
	Items   []ReviewItem   `json:"items"`
}

// StudentExamView is a student's assignment listing entry.
type StudentExamView struct {
	StudentExam
	Title       string    `json:"title"`
	StartAt     time.Time `json:"start_at"`
	EndAt       time.Time `json:"end_at"`
	MaxAttempts int       `json:"max_attempts"`
}
