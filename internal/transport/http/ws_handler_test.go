package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/infra/memory"
)

type fixture struct {
	service *app.AttemptService
	store   *memory.AttemptStore
	server  *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewAttemptStore()
	service := app.NewAttemptService(
		memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute),
		store,
		memory.NewLocalCache(),
		memory.NewSessionStore(),
		app.WithLogger(zaptest.NewLogger(t)),
	)
	wsHandler := NewWSHandler(service, zaptest.NewLogger(t))
	attempts := NewAttemptHandler(service, zaptest.NewLogger(t))

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	mux.HandleFunc("/attempts", attempts.ServeAttempt)
	mux.HandleFunc("/admin/unlock", attempts.ServeUnlock)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return &fixture{service: service, store: store, server: server}
}

func (f *fixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	u := "ws" + f.server.URL[len("http"):] + "/ws?quizId=quiz-1&studentId=s1&classId=c1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketAttemptFlow(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)

	view := readState(t, conn, func(v domain.AttemptView) bool { return true })
	if view.State != domain.StateAnswering || view.TotalQuestions != 2 {
		t.Fatalf("expected answering a 2 question quiz, got %+v", view)
	}

	send(t, conn, "signal", map[string]any{"kind": "blur"})
	readState(t, conn, func(v domain.AttemptView) bool { return v.Warnings == 1 })
	send(t, conn, "signal", map[string]any{"kind": "return"})

	send(t, conn, "answer", map[string]any{"choice": 1})
	readState(t, conn, func(v domain.AttemptView) bool { return len(v.Answers) == 1 })
	send(t, conn, "next", nil)
	readState(t, conn, func(v domain.AttemptView) bool { return v.CurrentIndex == 1 })
	send(t, conn, "answer", map[string]any{"text": " paris."})
	readState(t, conn, func(v domain.AttemptView) bool { return len(v.Answers) == 2 })
	send(t, conn, "submit", nil)

	view = readState(t, conn, func(v domain.AttemptView) bool { return v.Submitted && !v.SavePending })
	if view.Score == nil || *view.Score != 2 || view.TotalItems != 2 || view.Warnings != 1 {
		t.Fatalf("unexpected submitted view %+v", view)
	}
	subs, _ := f.store.FetchSubmissions(context.Background(), domain.AttemptKey{QuizID: "quiz-1", StudentID: "s1", ClassID: "c1"})
	if len(subs) != 1 {
		t.Fatalf("expected one stored submission, got %d", len(subs))
	}
}

func TestWebSocketLeaveConfirmation(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readState(t, conn, func(v domain.AttemptView) bool { return true })

	send(t, conn, "signal", map[string]any{"kind": "close"})
	readState(t, conn, func(v domain.AttemptView) bool { return v.State == domain.StateAwaitingLeaveConfirmation })
	send(t, conn, "leave", nil)
	view := readState(t, conn, func(v domain.AttemptView) bool { return v.State == domain.StateAnswering })
	if view.Warnings != 1 {
		t.Fatalf("expected one warning after leaving, got %d", view.Warnings)
	}
}

func TestWebSocketRejectsBadMessages(t *testing.T) {
	f := newFixture(t)
	conn := f.dial(t)
	readState(t, conn, func(v domain.AttemptView) bool { return true })

	send(t, conn, "teleport", nil)
	if msg := readError(t, conn); msg.Message != "unsupported message type" || msg.Retryable {
		t.Fatalf("unexpected error %+v", msg)
	}
	send(t, conn, "signal", map[string]any{"kind": "devtools"})
	if msg := readError(t, conn); msg.Message != "unsupported signal kind" {
		t.Fatalf("unexpected error %+v", msg)
	}
	send(t, conn, "answer", map[string]any{"choice": 7})
	if msg := readError(t, conn); msg.Message != domain.ErrInvalidAnswer.Error() {
		t.Fatalf("unexpected error %+v", msg)
	}
}

func TestWebSocketRequiresAttemptKey(t *testing.T) {
	f := newFixture(t)
	resp, err := http.Get(f.server.URL + "/ws?quizId=quiz-1&studentId=s1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestAttemptViewAndUnlock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_ = f.store.WriteLock(ctx, domain.Lock{QuizID: "quiz-1", StudentID: "s1", ClassID: "c1", Reason: "test"})

	resp, err := http.Get(f.server.URL + "/attempts?quizId=quiz-1&studentId=s1&classId=c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 without a live session, got %d", resp.StatusCode)
	}

	conn := f.dial(t)
	readState(t, conn, func(v domain.AttemptView) bool { return v.State == domain.StateLocked })

	resp, err = http.Get(f.server.URL + "/attempts?quizId=quiz-1&studentId=s1&classId=c1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	var view domain.AttemptView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	resp.Body.Close()
	if view.State != domain.StateLocked {
		t.Fatalf("expected locked view, got %s", view.State)
	}

	resp, err = http.Post(f.server.URL+"/admin/unlock?quizId=quiz-1&studentId=s1", "", nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if lock, _ := f.store.FetchLock(ctx, "quiz-1", "s1"); lock != nil {
		t.Fatalf("expected lock removed")
	}
}

func send(t *testing.T, conn *websocket.Conn, typ string, payload any) {
	t.Helper()
	msg := map[string]any{"type": typ}
	if payload != nil {
		msg["payload"] = payload
	}
	if err := conn.WriteJSON(msg); err != nil {
		t.Fatalf("write %s: %v", typ, err)
	}
}

type envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func readNext(t *testing.T, conn *websocket.Conn) envelope {
	t.Helper()
	var msg envelope
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	return msg
}

// readState skips messages until a state matching match arrives.
func readState(t *testing.T, conn *websocket.Conn, match func(domain.AttemptView) bool) domain.AttemptView {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readNext(t, conn)
		if msg.Type != "state" {
			continue
		}
		var view domain.AttemptView
		if err := json.Unmarshal(msg.Payload, &view); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		if match(view) {
			return view
		}
	}
	t.Fatalf("expected state not received")
	return domain.AttemptView{}
}

func readError(t *testing.T, conn *websocket.Conn) errorPayload {
	t.Helper()
	for i := 0; i < 10; i++ {
		msg := readNext(t, conn)
		if msg.Type != "error" {
			continue
		}
		var payload errorPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		return payload
	}
	t.Fatalf("expected error not received")
	return errorPayload{}
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What is 2 + 2?",
					Type:   domain.QuestionMultipleChoice,
					Options: []domain.Option{
						{Text: "3"},
						{Text: "4"},
						{Text: "5"},
					},
					CorrectIndex: 1,
				},
				{ID: "q2", Prompt: "Capital of France?", Type: domain.QuestionIdentification, CorrectAnswer: "Paris"},
			},
			Security: domain.SecuritySettings{Enabled: true, LockOnLeave: true, MaxWarnings: 3},
		},
	}
}
