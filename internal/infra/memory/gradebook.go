package memory

import (
	"context"
	"sort"
	"sync"

	"lms-quiz-service/internal/domain"
)

// Gradebook is the in-memory persistence for attempts and grades, used by
// tests and by demo mode when no Postgres is configured. The mutex gives the
// same all-or-nothing behavior per call that the postgres implementation gets
// from a transaction.
type Gradebook struct {
	mu        sync.RWMutex
	attempts  []domain.Attempt
	grades    map[string]map[string]domain.Grade // moduleID -> userID -> grade
	usernames map[string]string
	failWith  error
}

func NewGradebook() *Gradebook {
	return &Gradebook{
		grades:    make(map[string]map[string]domain.Grade),
		usernames: make(map[string]string),
	}
}

// RegisterUser records a display name for leaderboard rows.
func (g *Gradebook) RegisterUser(userID, username string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.usernames[userID] = username
}

// FailWith makes every subsequent RecordAttempt fail with err until reset
// with nil. Test hook for the retry paths.
func (g *Gradebook) FailWith(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.failWith = err
}

func (g *Gradebook) RecordAttempt(_ context.Context, attempt domain.Attempt, grade domain.Grade) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failWith != nil {
		return g.failWith
	}

	g.attempts = append(g.attempts, attempt)
	if g.grades[grade.ModuleID] == nil {
		g.grades[grade.ModuleID] = make(map[string]domain.Grade)
	}
	// latest submission always overwrites, regardless of score
	g.grades[grade.ModuleID][grade.UserID] = grade
	return nil
}

func (g *Gradebook) Leaderboard(_ context.Context, moduleID string, limit int) ([]domain.LeaderboardRow, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rows := make([]domain.LeaderboardRow, 0, len(g.grades[moduleID]))
	for userID, grade := range g.grades[moduleID] {
		username := g.usernames[userID]
		if username == "" {
			username = userID
		}
		rows = append(rows, domain.LeaderboardRow{
			UserID:   userID,
			Username: username,
			Score:    grade.Score,
			GradedAt: grade.GradedAt,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Score != rows[j].Score {
			return rows[i].Score > rows[j].Score
		}
		return rows[i].GradedAt.Before(rows[j].GradedAt)
	})

	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// Attempts returns the recorded attempts for one user on one module, in
// submission order. Test accessor; the append-only log has no read API in
// the service itself.
func (g *Gradebook) Attempts(moduleID, userID string) []domain.Attempt {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []domain.Attempt
	for _, attempt := range g.attempts {
		if attempt.ModuleID == moduleID && attempt.UserID == userID {
			out = append(out, attempt)
		}
	}
	return out
}

// Grade returns the current grade for (userID, moduleID), if any.
func (g *Gradebook) Grade(moduleID, userID string) (domain.Grade, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	grade, ok := g.grades[moduleID][userID]
	return grade, ok
}
