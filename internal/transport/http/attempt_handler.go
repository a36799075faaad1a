package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"quiz-integrity-service/internal/app"
	"quiz-integrity-service/internal/domain"
)

// AttemptHandler exposes read-only attempt views and the administrative unlock.
type AttemptHandler struct {
	service *app.AttemptService
	log     *zap.Logger
}

func NewAttemptHandler(service *app.AttemptService, log *zap.Logger) *AttemptHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AttemptHandler{service: service, log: log}
}

// ServeAttempt returns the live view of an attempt: GET /attempts?quizId=&studentId=&classId=
func (h *AttemptHandler) ServeAttempt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	key, ok := attemptKey(r)
	if !ok {
		http.Error(w, "missing quizId, studentId, or classId", http.StatusBadRequest)
		return
	}
	session, err := h.service.Get(key)
	if errors.Is(err, domain.ErrSessionNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, session.View())
}

// ServeUnlock lifts a lock: POST /admin/unlock?quizId=&studentId=
func (h *AttemptHandler) ServeUnlock(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	quizID, studentID := r.URL.Query().Get("quizId"), r.URL.Query().Get("studentId")
	if quizID == "" || studentID == "" {
		http.Error(w, "missing quizId or studentId", http.StatusBadRequest)
		return
	}
	if err := h.service.Unlock(r.Context(), quizID, studentID); err != nil {
		h.log.Error("unlock", zap.String("quizId", quizID), zap.String("studentId", studentID), zap.Error(err))
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
