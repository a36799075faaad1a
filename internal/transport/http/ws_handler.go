package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/domain"
	"quiz-integrity-service/internal/infra/memory"
)

type WSHandler struct {
	service  *app.AttemptService
	log      *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.AttemptService, log *zap.Logger) *WSHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WSHandler{
		service: service,
		log:     log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// answerPayload carries either an option index or free text.
type answerPayload struct {
	Choice *int    `json:"choice"`
	Text   *string `json:"text"`
}

type signalPayload struct {
	Kind domain.SignalKind `json:"kind"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

func errorMessage(err error) outboundMessage[any] {
	payload := errorPayload{Message: err.Error()}
	var pe *domain.PersistenceError
	if errors.As(err, &pe) {
		payload.Retryable = pe.Retryable()
	}
	return outboundMessage[any]{Type: "error", Payload: payload}
}

// ServeWS upgrades HTTP requests to websockets and runs one attempt over the connection.
// The client reports environment events as "signal" messages; every state change is
// pushed back as a "state" message.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	key, ok := attemptKey(r)
	if !ok {
		http.Error(w, "missing quizId, studentId, or classId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	signals := memory.NewSignalBus()
	session, err := h.service.Open(r.Context(), key, signals)
	if err != nil {
		_ = conn.WriteJSON(errorMessage(err))
		return
	}
	defer func() {
		if err := h.service.Dismiss(context.Background(), session); err != nil {
			h.log.Warn("dismiss attempt", zap.String("session", session.ID()), zap.Error(err))
		}
	}()

	updates, cancel := session.Subscribe()
	defer cancel()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case view, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "state", Payload: view}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.handle(r.Context(), session, signals, inbound); err != nil {
			send <- errorMessage(err)
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// handle applies one client message. Resulting views arrive through the subscription.
func (h *WSHandler) handle(ctx context.Context, session *app.Session, signals *memory.SignalBus, msg inboundMessage) error {
	var err error
	switch msg.Type {
	case "answer":
		var payload answerPayload
		if json.Unmarshal(msg.Payload, &payload) != nil || (payload.Choice == nil && payload.Text == nil) {
			return errors.New("invalid answer payload")
		}
		var answer domain.Answer
		if payload.Text != nil {
			answer = domain.TextAnswer(*payload.Text)
		} else {
			answer = domain.ChoiceAnswer(*payload.Choice)
		}
		_, err = session.Answer(ctx, answer)
	case "signal":
		var payload signalPayload
		if json.Unmarshal(msg.Payload, &payload) != nil || payload.Kind == "" {
			return errors.New("invalid signal payload")
		}
		if !payload.Kind.Known() {
			return errors.New("unsupported signal kind")
		}
		signals.Emit(domain.Signal{Kind: payload.Kind})
	case "next":
		_, err = session.Next(ctx)
	case "previous":
		_, err = session.Previous(ctx)
	case "stay":
		_, err = session.Stay(ctx)
	case "leave":
		_, err = session.ConfirmLeave(ctx)
	case "submit":
		_, err = session.Submit(ctx)
	case "retry":
		_, err = session.RetrySubmit(ctx)
	case "review":
		_, err = session.ToggleReview(ctx)
	default:
		return errors.New("unsupported message type")
	}
	return err
}

func attemptKey(r *http.Request) (domain.AttemptKey, bool) {
	q := r.URL.Query()
	key := domain.AttemptKey{
		QuizID:    q.Get("quizId"),
		StudentID: q.Get("studentId"),
		ClassID:   q.Get("classId"),
	}
	return key, key.Valid()
}
