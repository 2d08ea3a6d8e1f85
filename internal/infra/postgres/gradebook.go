package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"lms-quiz-service/internal/domain"
)

// Gradebook is the transactional persistence for attempts and grades. The
// attempt insert and the grade upsert for one submission share a transaction:
// a failure anywhere aborts the whole write, never leaving an attempt without
// its grade update or the reverse.
type Gradebook struct {
	pool *pgxpool.Pool
}

func NewGradebook(pool *pgxpool.Pool) *Gradebook {
	return &Gradebook{pool: pool}
}

func (g *Gradebook) RecordAttempt(ctx context.Context, attempt domain.Attempt, grade domain.Grade) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", domain.ErrPersistence, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO quiz_attempts (id, quiz_id, module_id, user_id, score, started_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		attempt.ID, attempt.QuizID, attempt.ModuleID, attempt.UserID, attempt.Score, attempt.StartedAt, attempt.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: insert attempt: %v", domain.ErrPersistence, err)
	}

	for _, answer := range attempt.Answers {
		_, err = tx.Exec(ctx,
			`INSERT INTO quiz_attempt_answers (attempt_id, question_id, option_id) VALUES ($1, $2, $3)`,
			attempt.ID, answer.QuestionID, answer.OptionID,
		)
		if err != nil {
			return fmt.Errorf("%w: insert answer: %v", domain.ErrPersistence, err)
		}
	}

	// Latest submission always overwrites the current grade, higher or lower.
	_, err = tx.Exec(ctx,
		`INSERT INTO grades (user_id, module_id, score, feedback, grader_id, graded_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (user_id, module_id) DO UPDATE
		 SET score = EXCLUDED.score,
		     feedback = EXCLUDED.feedback,
		     grader_id = EXCLUDED.grader_id,
		     graded_at = EXCLUDED.graded_at`,
		grade.UserID, grade.ModuleID, grade.Score, grade.Feedback, grade.GraderID, grade.GradedAt,
	)
	if err != nil {
		return fmt.Errorf("%w: upsert grade: %v", domain.ErrPersistence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("%w: commit: %v", domain.ErrPersistence, err)
	}
	return nil
}

func (g *Gradebook) Leaderboard(ctx context.Context, moduleID string, limit int) ([]domain.LeaderboardRow, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT g.user_id, COALESCE(u.username, g.user_id), g.score, g.graded_at
		 FROM grades g
		 LEFT JOIN users u ON u.id = g.user_id
		 WHERE g.module_id = $1
		 ORDER BY g.score DESC, g.graded_at ASC
		 LIMIT $2`,
		moduleID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: leaderboard: %v", domain.ErrPersistence, err)
	}
	defer rows.Close()

	out := make([]domain.LeaderboardRow, 0, limit)
	for rows.Next() {
		var row domain.LeaderboardRow
		if err := rows.Scan(&row.UserID, &row.Username, &row.Score, &row.GradedAt); err != nil {
			return nil, fmt.Errorf("%w: scan leaderboard row: %v", domain.ErrPersistence, err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: leaderboard rows: %v", domain.ErrPersistence, err)
	}
	return out, nil
}
