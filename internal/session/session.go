// Package session drives one student through question-by-question timed quiz
// play: intro -> playing (countdown, selection lock, feedback pause, advance)
// -> result, with restart back to intro. It computes an optimistic local score
// with the same scoring engine the server uses, but only the submitted
// server response is authoritative.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
)

// State is the top-level session state.
type State string

const (
	Intro   State = "intro"
	Playing State = "playing"
	Result  State = "result"
)

// DefaultFeedbackDelay is how long the feedback overlay shows after a
// selection before the session advances.
const DefaultFeedbackDelay = 1500 * time.Millisecond

var (
	ErrAlreadyStarted  = errors.New("session already started")
	ErrNotPlaying      = errors.New("session is not playing")
	ErrSelectionLocked = errors.New("selection already registered for this question")
	ErrUnknownOption   = errors.New("option does not belong to the current question")
	ErrNotFinished     = errors.New("session has questions remaining")
	ErrSubmitInFlight  = errors.New("submission already in flight")
	ErrNotResult       = errors.New("session is not showing a result")
)

// Submitter is the authoritative grading call, satisfied by *app.QuizService
// or any client of the HTTP surface.
type Submitter interface {
	Submit(ctx context.Context, req app.SubmitRequest) (domain.Attempt, error)
}

// Scheduler runs fn after d and returns a stop function. Tests inject a
// manual implementation; production uses time.AfterFunc.
type Scheduler func(d time.Duration, fn func()) (stop func())

// Options are test/integration hooks.
type Options struct {
	FeedbackDelay time.Duration
	Schedule      Scheduler
	Now           func() time.Time
}

// Session is the per-student state machine. All methods are safe for
// concurrent use; scheduled callbacks are generation-guarded so a state or
// question transition structurally cancels anything still pending from the
// previous question.
type Session struct {
	moduleID string
	userID   string
	quiz     domain.Quiz
	submit   Submitter

	feedbackDelay time.Duration
	schedule      Scheduler
	now           func() time.Time

	mu         sync.Mutex
	ctx        context.Context
	state      State
	index      int
	answers    map[string]string
	locked     bool
	completed  bool
	submitting bool
	remaining  int
	startedAt  time.Time
	localScore int
	feedback   *domain.QuestionScore
	result     domain.Attempt
	lastErr    error

	gen      int
	stopTick func()
	stopWait func()
}

// New builds a session over a quiz definition as served to this client. When
// the definition is the sanitized taking view, local feedback degrades to
// "incorrect" for everything; the authoritative result is unaffected.
func New(quiz domain.Quiz, moduleID, userID string, submit Submitter) *Session {
	return NewWithOptions(quiz, moduleID, userID, submit, Options{})
}

func NewWithOptions(quiz domain.Quiz, moduleID, userID string, submit Submitter, opts Options) *Session {
	quiz.Normalize()
	s := &Session{
		moduleID:      moduleID,
		userID:        userID,
		quiz:          quiz,
		submit:        submit,
		feedbackDelay: opts.FeedbackDelay,
		schedule:      opts.Schedule,
		now:           opts.Now,
		state:         Intro,
		answers:       make(map[string]string),
	}
	if s.feedbackDelay <= 0 {
		s.feedbackDelay = DefaultFeedbackDelay
	}
	if s.schedule == nil {
		s.schedule = func(d time.Duration, fn func()) func() {
			t := time.AfterFunc(d, fn)
			return func() { t.Stop() }
		}
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Start moves intro -> playing and begins the first question's countdown.
// ctx bounds the eventual submit call for this play-through.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Intro {
		return ErrAlreadyStarted
	}
	s.ctx = ctx
	s.state = Playing
	s.startedAt = s.now()
	s.index = 0
	if len(s.quiz.Questions) == 0 {
		s.completed = true
		s.beginSubmitLocked()
		return nil
	}
	s.enterQuestionLocked()
	return nil
}

// Select registers the student's pick for the current question. The first
// registered selection locks the question: further picks are rejected until
// the next question loads. Feedback shows for the configured delay, then the
// session advances (or submits, on the last question).
func (s *Session) Select(optionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing || s.completed {
		return ErrNotPlaying
	}
	if s.locked {
		return ErrSelectionLocked
	}

	question := s.quiz.Questions[s.index]
	known := false
	for _, opt := range question.Options {
		if opt.ID == optionID {
			known = true
			break
		}
	}
	if !known {
		return ErrUnknownOption
	}

	s.answers[question.ID] = optionID
	s.locked = true
	s.cancelPendingLocked()

	// Optimistic feedback with the shared scoring engine. Advisory only.
	scored := domain.Score(s.quiz, s.answers)
	s.localScore = scored.TotalScore
	for i := range scored.PerQuestion {
		if scored.PerQuestion[i].QuestionID == question.ID {
			fb := scored.PerQuestion[i]
			s.feedback = &fb
			break
		}
	}

	gen := s.gen
	s.stopWait = s.schedule(s.feedbackDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.state != Playing {
			return
		}
		s.advanceLocked()
	})
	return nil
}

// Retry re-submits after a failed submission. Collected answers are intact;
// only valid once all questions are done and no call is in flight.
func (s *Session) Retry() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing {
		return ErrNotPlaying
	}
	if !s.completed {
		return ErrNotFinished
	}
	if s.submitting {
		return ErrSubmitInFlight
	}
	s.beginSubmitLocked()
	return nil
}

// Restart moves result -> intro, clearing the question index, all selected
// answers and the score. Server-side attempts from the finished play-through
// are untouched; completing the next play-through creates a new one.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Result {
		return ErrNotResult
	}
	s.cancelPendingLocked()
	s.state = Intro
	s.index = 0
	s.answers = make(map[string]string)
	s.locked = false
	s.completed = false
	s.remaining = 0
	s.localScore = 0
	s.feedback = nil
	s.result = domain.Attempt{}
	s.lastErr = nil
	return nil
}

// enterQuestionLocked resets the per-question sub-state and starts the
// countdown for the question at s.index.
func (s *Session) enterQuestionLocked() {
	s.cancelPendingLocked()
	s.locked = false
	s.feedback = nil
	s.remaining = s.quiz.Questions[s.index].TimeLimitSeconds
	s.scheduleTickLocked()
}

func (s *Session) scheduleTickLocked() {
	gen := s.gen
	s.stopTick = s.schedule(time.Second, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen || s.state != Playing || s.locked {
			return
		}
		s.remaining--
		if s.remaining > 0 {
			s.scheduleTickLocked()
			return
		}
		// Countdown expired with no selection: the question scores as
		// unanswered and the session advances with no feedback pause.
		s.advanceLocked()
	})
}

// advanceLocked moves past the current question: to the next one, or into the
// authoritative submit after the last.
func (s *Session) advanceLocked() {
	s.cancelPendingLocked()
	if s.index+1 < len(s.quiz.Questions) {
		s.index++
		s.enterQuestionLocked()
		return
	}
	s.completed = true
	s.beginSubmitLocked()
}

func (s *Session) beginSubmitLocked() {
	s.submitting = true
	s.lastErr = nil

	answers := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		answers[k] = v
	}
	req := app.SubmitRequest{
		ModuleID:  s.moduleID,
		UserID:    s.userID,
		Answers:   answers,
		StartedAt: s.startedAt,
	}
	ctx := s.ctx

	go func() {
		attempt, err := s.submit.Submit(ctx, req)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.submitting = false
		if err != nil {
			// Stay in playing with answers intact; the student may retry.
			s.lastErr = err
			return
		}
		s.state = Result
		s.result = attempt
		s.localScore = attempt.Score
	}()
}

// cancelPendingLocked invalidates and stops every scheduled callback. The
// generation bump is the structural guard: even a callback that already fired
// and is waiting on the mutex will see a stale generation and do nothing.
func (s *Session) cancelPendingLocked() {
	s.gen++
	if s.stopTick != nil {
		s.stopTick()
		s.stopTick = nil
	}
	if s.stopWait != nil {
		s.stopWait()
		s.stopWait = nil
	}
}

// State returns the current top-level state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// QuestionIndex returns the zero-based index of the active question.
func (s *Session) QuestionIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.index
}

// Remaining returns the seconds left on the active question's countdown.
func (s *Session) Remaining() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining
}

// Answers returns a copy of the selections collected so far.
func (s *Session) Answers() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// LocalScore is the optimistic running score. Advisory; overwritten by the
// server's score once the result arrives.
func (s *Session) LocalScore() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localScore
}

// Feedback returns the advisory correctness of the last selection, if a
// feedback overlay is active.
func (s *Session) Feedback() (domain.QuestionScore, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.feedback == nil {
		return domain.QuestionScore{}, false
	}
	return *s.feedback, true
}

// Result returns the authoritative attempt once the session reached result.
func (s *Session) Result() (domain.Attempt, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Result {
		return domain.Attempt{}, false
	}
	return s.result, true
}

// Submitting reports whether an authoritative submit call is in flight. The
// UI disables its submit affordance while true, so a user-triggered retry can
// never run two calls at once.
func (s *Session) Submitting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.submitting
}

// Err returns the failure of the last submit call, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}
