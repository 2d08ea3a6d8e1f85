package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
	"lms-quiz-service/internal/infra/memory"
)

func TestSubmitEndpoint(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	resp := postJSON(t, server.URL+"/modules/mod-1/quiz/submissions", map[string]any{
		"userId":  "u1",
		"answers": map[string]string{"q1": "5", "q2": "1"},
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want 201", resp.StatusCode)
	}

	var body struct {
		AttemptID string `json:"attemptId"`
		Score     int    `json:"score"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Score != 1000 {
		t.Fatalf("score = %d, want 1000", body.Score)
	}
	if body.AttemptID == "" {
		t.Fatal("missing attempt id")
	}
}

func TestSubmitErrorMapping(t *testing.T) {
	server, gb := newTestServer(t)
	defer server.Close()

	// Unknown module -> 404.
	resp := postJSON(t, server.URL+"/modules/nope/quiz/submissions", map[string]any{"userId": "u1"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}

	// Missing user -> 400, rejected before scoring.
	resp = postJSON(t, server.URL+"/modules/mod-1/quiz/submissions", map[string]any{})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}

	// Storage outage -> 503 flagged retryable.
	gb.FailWith(fmt.Errorf("%w: db down", domain.ErrPersistence))
	resp = postJSON(t, server.URL+"/modules/mod-1/quiz/submissions", map[string]any{"userId": "u1"})
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
	var failure struct {
		Retryable bool `json:"retryable"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&failure); err != nil {
		t.Fatalf("decode: %v", err)
	}
	resp.Body.Close()
	if !failure.Retryable {
		t.Fatal("persistence failure not flagged retryable")
	}
}

func TestQuizForTakingEndpointStripsAnswers(t *testing.T) {
	server, _ := newTestServer(t)
	defer server.Close()

	resp, err := http.Get(server.URL + "/modules/mod-1/quiz")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	var raw bytes.Buffer
	if _, err := raw.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.Contains(strings.ToLower(raw.String()), "correct") {
		t.Fatalf("taking endpoint leaks the answer key: %s", raw.String())
	}

	var view domain.QuizView
	if err := json.Unmarshal(raw.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(view.Questions) != 2 || len(view.Questions[0].Options) != 2 {
		t.Fatalf("view lost content: %+v", view)
	}
}

func TestLeaderboardEndpoint(t *testing.T) {
	server, gb := newTestServer(t)
	defer server.Close()
	gb.RegisterUser("u1", "Alice")
	gb.RegisterUser("u2", "Bob")

	for _, s := range []struct {
		user    string
		answers map[string]string
	}{
		{"u1", map[string]string{"q1": "5", "q2": "9"}},
		{"u2", map[string]string{"q1": "5"}},
	} {
		resp := postJSON(t, server.URL+"/modules/mod-1/quiz/submissions", map[string]any{"userId": s.user, "answers": s.answers})
		resp.Body.Close()
	}

	resp, err := http.Get(server.URL + "/modules/mod-1/leaderboard?limit=10")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var lb domain.Leaderboard
	if err := json.NewDecoder(resp.Body).Decode(&lb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(lb.Rows) != 2 || lb.Rows[0].Username != "Alice" || lb.Rows[0].Score != 1500 {
		t.Fatalf("unexpected leaderboard %+v", lb.Rows)
	}

	resp, err = http.Get(server.URL + "/modules/mod-1/leaderboard?limit=banana")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad limit", resp.StatusCode)
	}
}

func TestLeaderboardWebSocketStream(t *testing.T) {
	server, gb := newTestServer(t)
	defer server.Close()
	gb.RegisterUser("u1", "Alice")

	u := "ws" + server.URL[len("http"):] + "/modules/mod-1/leaderboard/ws"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	// Initial snapshot first, empty board.
	snapshot := readLeaderboard(t, conn)
	if len(snapshot.Rows) != 0 {
		t.Fatalf("initial snapshot rows = %d, want 0", len(snapshot.Rows))
	}

	resp := postJSON(t, server.URL+"/modules/mod-1/quiz/submissions", map[string]any{
		"userId":  "u1",
		"answers": map[string]string{"q1": "5"},
	})
	resp.Body.Close()

	update := readLeaderboard(t, conn)
	if len(update.Rows) != 1 || update.Rows[0].Score != 1000 || update.Rows[0].Username != "Alice" {
		t.Fatalf("unexpected update %+v", update.Rows)
	}
}

func readLeaderboard(t *testing.T, conn *websocket.Conn) domain.Leaderboard {
	t.Helper()
	var msg struct {
		Type    string             `json:"type"`
		Payload domain.Leaderboard `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if msg.Type != "leaderboard" {
		t.Fatalf("message type = %s, want leaderboard", msg.Type)
	}
	return msg.Payload
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func newTestServer(t *testing.T) (*httptest.Server, *memory.Gradebook) {
	t.Helper()

	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1": {
			ID: "quiz-1",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Text:   "Worth a thousand",
					Points: 1000,
					Options: []domain.Option{
						{ID: "4", Text: "no"},
						{ID: "5", Text: "yes", Correct: true},
					},
				},
				{
					ID:     "q2",
					Text:   "Worth five hundred",
					Points: 500,
					Options: []domain.Option{
						{ID: "1", Text: "no"},
						{ID: "9", Text: "yes", Correct: true},
					},
				},
			},
		},
	}), time.Minute)
	modules := memory.NewStaticModuleResolver(map[string]domain.Module{
		"mod-1": {ID: "mod-1", Type: domain.ModuleTypeQuiz, ContentID: "quiz-1"},
	})
	gradebook := memory.NewGradebook()
	service := app.NewQuizService(modules, quizzes, gradebook)

	mux := http.NewServeMux()
	NewHandler(service).Register(mux)
	return httptest.NewServer(mux), gradebook
}
