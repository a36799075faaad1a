package domain

// State is the externally visible phase of an attempt session.
type State string

const (
	StateLoading        State = "loading"
	StateUnavailable    State = "unavailable"
	StateLocked         State = "locked"
	StateNoAttemptsLeft State = "noAttemptsLeft"
	// StateAnswering and StateAwaitingLeaveConfirmation are the in-progress sub-states.
	StateAnswering                 State = "answering"
	StateAwaitingLeaveConfirmation State = "awaitingLeaveConfirmation"
	// StateSubmitted and StateReviewOpen are the finished sub-states.
	StateSubmitted  State = "submitted"
	StateReviewOpen State = "reviewOpen"
)

// InProgress reports whether the student is still taking the quiz.
func (s State) InProgress() bool {
	return s == StateAnswering || s == StateAwaitingLeaveConfirmation
}

// Finished reports whether the attempt has been submitted.
func (s State) Finished() bool {
	return s == StateSubmitted || s == StateReviewOpen
}

// SignalKind names a client environment event.
type SignalKind string

const (
	SignalBackground SignalKind = "background"
	SignalBlur       SignalKind = "blur"
	SignalHidden     SignalKind = "hidden"
	SignalUnload     SignalKind = "unload"
	SignalNavigate   SignalKind = "navigate"
	SignalClose      SignalKind = "close"
	SignalPaste      SignalKind = "paste"
	// SignalReturn marks the student coming back (focus regained, app resumed).
	SignalReturn SignalKind = "return"
)

// Known reports whether k is one of the defined signal kinds.
func (k SignalKind) Known() bool {
	switch k {
	case SignalBackground, SignalBlur, SignalHidden, SignalUnload, SignalNavigate, SignalClose, SignalPaste, SignalReturn:
		return true
	}
	return false
}

// IsIntent reports whether the signal announces a departure that has not happened yet
// and can still be cancelled by the student.
func (k SignalKind) IsIntent() bool {
	return k == SignalUnload || k == SignalNavigate || k == SignalClose
}

// IsDeparture reports whether the signal reports that the student already left the quiz.
func (k SignalKind) IsDeparture() bool {
	return k == SignalBackground || k == SignalBlur || k == SignalHidden
}

// Signal is a single event emitted by a client signal source.
type Signal struct {
	Kind SignalKind `json:"kind"`
}

// AttemptView is a read-only snapshot of a session for clients and monitoring.
type AttemptView struct {
	SessionID      string         `json:"sessionId"`
	Key            AttemptKey     `json:"key"`
	State          State          `json:"state"`
	QuestionIDs    []string       `json:"questionIds"`
	CurrentIndex   int            `json:"currentIndex"`
	TotalQuestions int            `json:"totalQuestions"`
	Answers        map[int]Answer `json:"answers"`
	Warnings       int            `json:"warnings"`
	MaxWarnings    int            `json:"maxWarnings"`
	Locked         bool           `json:"locked"`
	Submitted      bool           `json:"submitted"`
	SavePending    bool           `json:"savePending"`
	Score          *int           `json:"score"`
	TotalItems     int            `json:"totalItems"`
	AttemptsUsed   int            `json:"attemptsUsed"`
	MaxAttempts    int            `json:"maxAttempts"`
	Late           bool           `json:"late"`
}
