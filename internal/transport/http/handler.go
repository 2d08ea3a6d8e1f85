package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
)

// Handler binds the grading use cases to the HTTP surface.
type Handler struct {
	service *app.QuizService
	ws      *leaderboardWS
}

func NewHandler(service *app.QuizService) *Handler {
	return &Handler{
		service: service,
		ws:      newLeaderboardWS(service),
	}
}

// Register mounts the quiz routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /modules/{moduleID}/quiz/submissions", h.handleSubmit)
	mux.HandleFunc("GET /modules/{moduleID}/quiz", h.handleQuizForTaking)
	mux.HandleFunc("GET /modules/{moduleID}/leaderboard", h.handleLeaderboard)
	mux.HandleFunc("GET /modules/{moduleID}/leaderboard/ws", h.ws.serve)
}

type submitRequest struct {
	UserID    string            `json:"userId"`
	Answers   map[string]string `json:"answers"`
	StartedAt *time.Time        `json:"startedAt,omitempty"`
}

type submitResponse struct {
	AttemptID   string    `json:"attemptId"`
	Score       int       `json:"score"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

type errorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var body submitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, &domain.ValidationError{Reason: "malformed request body"})
		return
	}

	req := app.SubmitRequest{
		ModuleID: r.PathValue("moduleID"),
		UserID:   body.UserID,
		Answers:  body.Answers,
	}
	if body.StartedAt != nil {
		req.StartedAt = *body.StartedAt
	}

	attempt, err := h.service.Submit(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, submitResponse{
		AttemptID:   attempt.ID,
		Score:       attempt.Score,
		StartedAt:   attempt.StartedAt,
		CompletedAt: attempt.CompletedAt,
	})
}

func (h *Handler) handleQuizForTaking(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.QuizForTaking(r.Context(), r.PathValue("moduleID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, &domain.ValidationError{Reason: "limit must be a non-negative integer"})
			return
		}
		limit = parsed
	}

	lb, err := h.service.Leaderboard(r.Context(), r.PathValue("moduleID"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lb)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrModuleNotFound), errors.Is(err, domain.ErrQuizNotFound), errors.Is(err, domain.ErrUserNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case domain.IsValidation(err):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrPersistence):
		// Retryable, but a retry creates a new attempt; clients keep submit
		// disabled while a call is in flight.
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "temporary storage failure", Retryable: true})
	default:
		log.Printf("unhandled error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}
