package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"lms-quiz-service/internal/domain"
)

const (
	// DefaultLeaderboardLimit applies when the caller does not pass one.
	DefaultLeaderboardLimit = 20
	// MaxLeaderboardLimit caps caller-supplied limits.
	MaxLeaderboardLimit = 100

	// maxStartedAtAge bounds how far back a client-reported play start may lie.
	maxStartedAtAge = 24 * time.Hour
)

// ModuleResolver maps a module id to its type and content reference.
type ModuleResolver interface {
	ResolveModule(ctx context.Context, moduleID string) (domain.Module, error)
}

// QuizRepository loads quiz definitions (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// Gradebook persists attempts and serves ranked grades. RecordAttempt must
// write the attempt and upsert the grade atomically: both commit or neither.
type Gradebook interface {
	RecordAttempt(ctx context.Context, attempt domain.Attempt, grade domain.Grade) error
	Leaderboard(ctx context.Context, moduleID string, limit int) ([]domain.LeaderboardRow, error)
}

// SubmitRequest carries one quiz submission. StartedAt is the client's play
// start and is advisory; only the server-computed score is trusted.
type SubmitRequest struct {
	ModuleID  string            `validate:"required"`
	UserID    string            `validate:"required"`
	Answers   map[string]string `validate:"omitempty,dive,keys,required,endkeys,required"`
	StartedAt time.Time
}

// QuizService contains the grading use cases.
type QuizService struct {
	modules   ModuleResolver
	quizzes   QuizRepository
	gradebook Gradebook
	feed      *LeaderboardFeed
	validate  *validator.Validate
	now       func() time.Time
	newID     func() string
}

func NewQuizService(modules ModuleResolver, quizzes QuizRepository, gradebook Gradebook) *QuizService {
	return &QuizService{
		modules:   modules,
		quizzes:   quizzes,
		gradebook: gradebook,
		feed:      NewLeaderboardFeed(),
		validate:  validator.New(),
		now:       time.Now,
		newID:     uuid.NewString,
	}
}

// NewQuizServiceWithClock is test-only for deterministic timestamps and ids.
func NewQuizServiceWithClock(modules ModuleResolver, quizzes QuizRepository, gradebook Gradebook, now func() time.Time, newID func() string) *QuizService {
	s := NewQuizService(modules, quizzes, gradebook)
	s.now = now
	s.newID = newID
	return s
}

// Feed exposes the live leaderboard feed for transport subscriptions.
func (s *QuizService) Feed() *LeaderboardFeed {
	return s.feed
}

// Submit scores a submission server-side and records it: one new immutable
// attempt plus the grade upsert for (user, module), committed together. The
// returned attempt carries the only score the client may treat as
// authoritative.
func (s *QuizService) Submit(ctx context.Context, req SubmitRequest) (domain.Attempt, error) {
	if err := s.validate.Struct(req); err != nil {
		return domain.Attempt{}, &domain.ValidationError{Reason: err.Error()}
	}

	quiz, module, err := s.resolveQuiz(ctx, req.ModuleID)
	if err != nil {
		return domain.Attempt{}, err
	}

	result := domain.Score(quiz, req.Answers)

	now := s.now()
	attempt := domain.Attempt{
		ID:          s.newID(),
		QuizID:      quiz.ID,
		ModuleID:    module.ID,
		UserID:      req.UserID,
		Score:       result.TotalScore,
		StartedAt:   clampStartedAt(req.StartedAt, now),
		CompletedAt: now,
		Answers:     recordableAnswers(quiz, req.Answers),
	}
	grade := domain.Grade{
		UserID:   req.UserID,
		ModuleID: module.ID,
		Score:    result.TotalScore,
		GraderID: nil, // auto-graded
		GradedAt: now,
	}

	if err := s.gradebook.RecordAttempt(ctx, attempt, grade); err != nil {
		if errors.Is(err, domain.ErrPersistence) {
			return domain.Attempt{}, err
		}
		return domain.Attempt{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}

	s.publishLeaderboard(ctx, module.ID)
	return attempt, nil
}

// Leaderboard ranks current grades for a quiz module: score descending, ties
// broken by earlier grading time. It reads committed grades directly, so it
// reflects the latest upsert immediately.
func (s *QuizService) Leaderboard(ctx context.Context, moduleID string, limit int) (domain.Leaderboard, error) {
	if _, _, err := s.resolveQuiz(ctx, moduleID); err != nil {
		return domain.Leaderboard{}, err
	}
	rows, err := s.gradebook.Leaderboard(ctx, moduleID, clampLimit(limit))
	if err != nil {
		return domain.Leaderboard{}, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
	}
	return domain.Leaderboard{ModuleID: moduleID, Rows: rows, UpdatedAt: s.now()}, nil
}

// QuizForTaking returns the answer-stripped quiz definition a session plays
// against. Correctness flags never travel through this path.
func (s *QuizService) QuizForTaking(ctx context.Context, moduleID string) (domain.QuizView, error) {
	quiz, _, err := s.resolveQuiz(ctx, moduleID)
	if err != nil {
		return domain.QuizView{}, err
	}
	return quiz.ForTaking(), nil
}

func (s *QuizService) resolveQuiz(ctx context.Context, moduleID string) (domain.Quiz, domain.Module, error) {
	module, err := s.modules.ResolveModule(ctx, moduleID)
	if err != nil {
		return domain.Quiz{}, domain.Module{}, err
	}
	if module.Type != domain.ModuleTypeQuiz {
		return domain.Quiz{}, domain.Module{}, domain.ErrModuleNotFound
	}
	quiz, err := s.quizzes.GetQuiz(ctx, module.ContentID)
	if err != nil {
		return domain.Quiz{}, domain.Module{}, err
	}
	return quiz, module, nil
}

func (s *QuizService) publishLeaderboard(ctx context.Context, moduleID string) {
	if !s.feed.HasSubscribers(moduleID) {
		return
	}
	rows, err := s.gradebook.Leaderboard(ctx, moduleID, DefaultLeaderboardLimit)
	if err != nil {
		return // push is best-effort; readers still have the query path
	}
	s.feed.Publish(domain.Leaderboard{ModuleID: moduleID, Rows: rows, UpdatedAt: s.now()})
}

// recordableAnswers keeps only answers that point at options that actually
// exist on the quiz, in question order. Invalid entries are dropped, not fatal.
func recordableAnswers(quiz domain.Quiz, answers map[string]string) []domain.AttemptAnswer {
	recorded := make([]domain.AttemptAnswer, 0, len(answers))
	for _, question := range quiz.Questions {
		selected, ok := answers[question.ID]
		if !ok {
			continue
		}
		for _, opt := range question.Options {
			if opt.ID == selected {
				recorded = append(recorded, domain.AttemptAnswer{QuestionID: question.ID, OptionID: selected})
				break
			}
		}
	}
	return recorded
}

func clampStartedAt(startedAt, now time.Time) time.Time {
	if startedAt.IsZero() || startedAt.After(now) || now.Sub(startedAt) > maxStartedAtAge {
		return now
	}
	return startedAt
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}
