package http

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"lms-quiz-service/internal/app"
	"lms-quiz-service/internal/domain"
)

// leaderboardWS streams leaderboard snapshots for one quiz module over a
// websocket: the current snapshot on connect, then a fresh one after every
// committed submission. The stream is read-only; inbound frames are ignored.
type leaderboardWS struct {
	service  *app.QuizService
	upgrader websocket.Upgrader
}

func newLeaderboardWS(service *app.QuizService) *leaderboardWS {
	return &leaderboardWS{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type outboundMessage struct {
	Type    string             `json:"type"`
	Payload domain.Leaderboard `json:"payload"`
}

func (h *leaderboardWS) serve(w http.ResponseWriter, r *http.Request) {
	moduleID := r.PathValue("moduleID")

	// Resolve and snapshot before upgrading so a bad module id still gets a
	// proper HTTP status.
	initial, err := h.service.Leaderboard(r.Context(), moduleID, 0)
	if err != nil {
		writeError(w, err)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := h.service.Feed().Subscribe(moduleID)
	defer cancel()

	send := make(chan outboundMessage, 16)
	readerDone := make(chan struct{})
	writerDone := make(chan struct{})

	// Single writer goroutine keeps conn writes serialized.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	// Reader exists only to notice the peer going away.
	go func() {
		defer close(readerDone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send <- outboundMessage{Type: "leaderboard", Payload: initial}

	for {
		select {
		case update, ok := <-updates:
			if !ok {
				close(send)
				<-writerDone
				return
			}
			select {
			case send <- outboundMessage{Type: "leaderboard", Payload: update}:
			case <-readerDone:
				close(send)
				<-writerDone
				return
			case <-writerDone:
				return
			}
		case <-readerDone:
			close(send)
			<-writerDone
			return
		case <-writerDone:
			return
		}
	}
}
