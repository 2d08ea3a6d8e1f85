package domain

import (
	"fmt"
	"sort"
	"time"
)

const (
	// ModuleTypeQuiz is the module type handled by the grading engine.
	ModuleTypeQuiz = "quiz"

	// QuestionTypeMultipleChoice is the only question type currently exercised.
	QuestionTypeMultipleChoice = "multiple_choice"

	// DefaultQuestionSeconds is the per-question countdown when none is authored.
	DefaultQuestionSeconds = 20
	// DefaultQuestionPoints is the per-question point value when none is authored.
	DefaultQuestionPoints = 1000
)

// Module is a generic content unit within a course. The grading engine only
// acts on modules of type quiz, treating ContentID as the quiz definition id.
type Module struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	ContentID string `json:"contentId"`
}

// Option is a possible answer owned by its question.
type Option struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models an MCQ question. Zero TimeLimitSeconds/Points mean the
// authored value was absent and the defaults apply.
type Question struct {
	ID               string   `json:"id"`
	Text             string   `json:"text"`
	Type             string   `json:"type"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"`
	Points           int      `json:"points"`
	Position         int      `json:"position"`
	Options          []Option `json:"options"`
}

// Quiz is an ordered collection of questions plus quiz-level settings.
type Quiz struct {
	ID               string     `json:"id"`
	Description      string     `json:"description"`
	TimeLimitMinutes *int       `json:"timeLimitMinutes,omitempty"`
	PassingGrade     *int       `json:"passingGrade,omitempty"`
	Questions        []Question `json:"questions"`
}

// Normalize orders questions by position and fills in authored-value defaults.
// Loaders call it so the rest of the engine sees one canonical shape.
func (q *Quiz) Normalize() {
	sort.SliceStable(q.Questions, func(i, j int) bool {
		return q.Questions[i].Position < q.Questions[j].Position
	})
	for i := range q.Questions {
		question := &q.Questions[i]
		if question.Type == "" {
			question.Type = QuestionTypeMultipleChoice
		}
		if question.TimeLimitSeconds <= 0 {
			question.TimeLimitSeconds = DefaultQuestionSeconds
		}
		if question.Points <= 0 {
			question.Points = DefaultQuestionPoints
		}
	}
}

// Validate enforces authoring rules: every question needs options and exactly
// one of them flagged correct. Grading tolerates malformed content (it scores
// zero), but new content must not reach that state.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %s: no questions", q.ID)
	}
	for _, question := range q.Questions {
		if len(question.Options) == 0 {
			return fmt.Errorf("quiz %s question %s: no options", q.ID, question.ID)
		}
		correct := 0
		for _, opt := range question.Options {
			if opt.Correct {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("quiz %s question %s: %d options flagged correct, want exactly 1", q.ID, question.ID, correct)
		}
	}
	return nil
}

// OptionView is an option as shown to a student taking the quiz.
type OptionView struct {
	ID   string `json:"id"`
	Text string `json:"text"`
}

// QuestionView is a question as shown to a student taking the quiz.
type QuestionView struct {
	ID               string       `json:"id"`
	Text             string       `json:"text"`
	Type             string       `json:"type"`
	TimeLimitSeconds int          `json:"timeLimitSeconds"`
	Points           int          `json:"points"`
	Options          []OptionView `json:"options"`
}

// QuizView is the answer-stripped projection served to an unstarted or
// in-progress session. It has no correctness field at all, so the answer key
// cannot leak through this read path.
type QuizView struct {
	ID               string         `json:"id"`
	Description      string         `json:"description"`
	TimeLimitMinutes *int           `json:"timeLimitMinutes,omitempty"`
	PassingGrade     *int           `json:"passingGrade,omitempty"`
	Questions        []QuestionView `json:"questions"`
}

// ForTaking builds the sanitized view of the quiz.
func (q Quiz) ForTaking() QuizView {
	view := QuizView{
		ID:               q.ID,
		Description:      q.Description,
		TimeLimitMinutes: q.TimeLimitMinutes,
		PassingGrade:     q.PassingGrade,
		Questions:        make([]QuestionView, 0, len(q.Questions)),
	}
	for _, question := range q.Questions {
		qv := QuestionView{
			ID:               question.ID,
			Text:             question.Text,
			Type:             question.Type,
			TimeLimitSeconds: question.TimeLimitSeconds,
			Points:           question.Points,
			Options:          make([]OptionView, 0, len(question.Options)),
		}
		for _, opt := range question.Options {
			qv.Options = append(qv.Options, OptionView{ID: opt.ID, Text: opt.Text})
		}
		view.Questions = append(view.Questions, qv)
	}
	return view
}

// AttemptAnswer is one recorded selection within an attempt.
type AttemptAnswer struct {
	QuestionID string `json:"questionId"`
	OptionID   string `json:"optionId"`
}

// Attempt is one immutable record of a student playing through a quiz.
// Attempts are append-only; re-submission creates a new one.
type Attempt struct {
	ID          string          `json:"id"`
	QuizID      string          `json:"quizId"`
	ModuleID    string          `json:"moduleId"`
	UserID      string          `json:"userId"`
	Score       int             `json:"score"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
	Answers     []AttemptAnswer `json:"answers"`
}

// Grade is the single current score for a (user, module) pair. The latest
// submission always overwrites it; a nil GraderID marks it auto-graded.
type Grade struct {
	UserID   string    `json:"userId"`
	ModuleID string    `json:"moduleId"`
	Score    int       `json:"score"`
	Feedback *string   `json:"feedback,omitempty"`
	GraderID *string   `json:"graderId,omitempty"`
	GradedAt time.Time `json:"gradedAt"`
}

// LeaderboardRow is one ranked grade.
type LeaderboardRow struct {
	UserID   string    `json:"userId"`
	Username string    `json:"username"`
	Score    int       `json:"score"`
	GradedAt time.Time `json:"gradedAt"`
}

// Leaderboard captures the ordered gradebook view for one quiz module.
type Leaderboard struct {
	ModuleID  string           `json:"moduleId"`
	Rows      []LeaderboardRow `json:"rows"`
	UpdatedAt time.Time        `json:"updatedAt"`
}
