package domain

// QuestionScore is the per-question outcome of a scoring run.
type QuestionScore struct {
	QuestionID string `json:"questionId"`
	Correct    bool   `json:"correct"`
}

// ScoreResult is the outcome of scoring one answer map against one quiz.
type ScoreResult struct {
	TotalScore  int             `json:"totalScore"`
	PerQuestion []QuestionScore `json:"perQuestion"`
}

// CorrectOption returns the question's answer key: the first option flagged
// correct. Content with multiple flags is under-specified upstream; the first
// match wins, matching the observed grading behavior.
func CorrectOption(q Question) (Option, bool) {
	for _, opt := range q.Options {
		if opt.Correct {
			return opt, true
		}
	}
	return Option{}, false
}

// Score grades an answer map against a quiz. It is deterministic and
// side-effect-free so the same function serves both the optimistic client
// feedback path and the authoritative server path.
//
// Every question in the quiz is scored, answered or not: a question is correct
// iff the submitted option id equals its answer key's id. Missing selections,
// selections that do not match the key, and questions with no correct option
// all contribute zero. It never fails; a malformed quiz just has no achievable
// points.
func Score(quiz Quiz, answers map[string]string) ScoreResult {
	result := ScoreResult{
		PerQuestion: make([]QuestionScore, 0, len(quiz.Questions)),
	}
	for _, question := range quiz.Questions {
		correct := false
		if key, ok := CorrectOption(question); ok {
			if selected, answered := answers[question.ID]; answered && selected == key.ID {
				correct = true
			}
		}
		if correct {
			points := question.Points
			if points <= 0 {
				points = DefaultQuestionPoints
			}
			result.TotalScore += points
		}
		result.PerQuestion = append(result.PerQuestion, QuestionScore{
			QuestionID: question.ID,
			Correct:    correct,
		})
	}
	return result
}

// MaxScore is the sum of all questions' points, the upper bound of Score.
func MaxScore(quiz Quiz) int {
	total := 0
	for _, question := range quiz.Questions {
		points := question.Points
		if points <= 0 {
			points = DefaultQuestionPoints
		}
		total += points
	}
	return total
}
