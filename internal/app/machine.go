package app

import "quiz-integrity-service/internal/domain"

// attempt is the mutable aggregate of one attempt. transition never mutates its input.
type attempt struct {
	state     domain.State
	security  domain.SecuritySettings
	questions []domain.Question
	current   int
	answers   map[int]domain.Answer

	warnings    int
	maxWarnings int
	locked      bool
	// away is set while a departure episode is open; it closes on SignalReturn.
	away bool
	// intent is the signal waiting for the student's leave confirmation.
	intent domain.SignalKind

	submitted     bool
	savePending   bool
	score         *int
	totalItems    int
	priorAttempts int
	maxAttempts   int
	late          bool
}

type eventKind int

const (
	eventAnswer eventKind = iota
	eventNext
	eventPrevious
	eventSignal
	eventStay
	eventLeave
	eventSubmit
	eventSaved
	eventToggleReview
)

func (k eventKind) String() string {
	switch k {
	case eventAnswer:
		return "answer"
	case eventNext:
		return "next"
	case eventPrevious:
		return "previous"
	case eventSignal:
		return "signal"
	case eventStay:
		return "stay"
	case eventLeave:
		return "leave"
	case eventSubmit:
		return "submit"
	case eventSaved:
		return "saved"
	case eventToggleReview:
		return "review"
	}
	return "unknown"
}

type event struct {
	kind   eventKind
	answer domain.Answer
	signal domain.SignalKind
}

type effectKind int

const (
	effectPersistWarnings effectKind = iota
	effectWriteLock
	effectClearLocal
	effectWriteSubmission
)

type effect struct {
	kind     effectKind
	warnings int
	reason   domain.SignalKind
	score    int
	total    int
	attempt  int
}

// transition applies ev to a and returns the next aggregate plus the side effects the
// caller must perform. domain.ErrInvalidState means ev was not allowed and a is unchanged.
func transition(a attempt, ev event) (attempt, []effect, error) {
	switch ev.kind {
	case eventAnswer:
		if a.state != domain.StateAnswering || a.current >= len(a.questions) {
			return a, nil, domain.ErrInvalidState
		}
		q := a.questions[a.current]
		if !q.Type.IsTextual() && (ev.answer.Choice < 0 || ev.answer.Choice >= len(q.Options)) {
			return a, nil, domain.ErrInvalidAnswer
		}
		answers := make(map[int]domain.Answer, len(a.answers)+1)
		for i, ans := range a.answers {
			answers[i] = ans
		}
		answers[a.current] = ev.answer
		a.answers = answers
		return a, nil, nil

	case eventNext:
		if a.state != domain.StateAnswering || a.current+1 >= len(a.questions) {
			return a, nil, domain.ErrInvalidState
		}
		if _, ok := a.answers[a.current]; !ok {
			return a, nil, domain.ErrInvalidState
		}
		a.current++
		return a, nil, nil

	case eventPrevious:
		if a.state != domain.StateAnswering || a.current == 0 {
			return a, nil, domain.ErrInvalidState
		}
		a.current--
		return a, nil, nil

	case eventSignal:
		return a.onSignal(ev.signal)

	case eventStay:
		if a.state != domain.StateAwaitingLeaveConfirmation {
			return a, nil, domain.ErrInvalidState
		}
		a.state = domain.StateAnswering
		a.intent = ""
		return a, nil, nil

	case eventLeave:
		if a.state != domain.StateAwaitingLeaveConfirmation {
			return a, nil, domain.ErrInvalidState
		}
		reason := a.intent
		a.state = domain.StateAnswering
		a.intent = ""
		return a.warn(reason)

	case eventSubmit:
		if a.submitted || a.locked || a.state != domain.StateAnswering || a.current != len(a.questions)-1 {
			return a, nil, domain.ErrInvalidState
		}
		number := a.priorAttempts + 1
		if number > a.maxAttempts {
			return a, nil, domain.ErrInvalidState
		}
		score, total := Score(a.questions, a.answers)
		a.score = &score
		a.totalItems = total
		a.submitted = true
		a.savePending = true
		a.away = false
		a.state = domain.StateSubmitted
		return a, []effect{
			{kind: effectClearLocal},
			{kind: effectWriteSubmission, score: score, total: total, attempt: number},
		}, nil

	case eventSaved:
		if !a.savePending {
			return a, nil, domain.ErrInvalidState
		}
		a.savePending = false
		a.priorAttempts++
		return a, nil, nil

	case eventToggleReview:
		switch a.state {
		case domain.StateSubmitted:
			a.state = domain.StateReviewOpen
		case domain.StateReviewOpen:
			a.state = domain.StateSubmitted
		default:
			return a, nil, domain.ErrInvalidState
		}
		return a, nil, nil
	}
	return a, nil, domain.ErrInvalidState
}

func (a attempt) onSignal(kind domain.SignalKind) (attempt, []effect, error) {
	// Signals after submission or lock are expected and simply dropped.
	if !a.state.InProgress() || a.submitted || a.locked {
		return a, nil, nil
	}
	if kind == domain.SignalReturn {
		a.away = false
		return a, nil, nil
	}
	if !a.watches(kind) || a.state == domain.StateAwaitingLeaveConfirmation {
		return a, nil, nil
	}

	switch {
	case kind.IsIntent():
		a.state = domain.StateAwaitingLeaveConfirmation
		a.intent = kind
		return a, nil, nil
	case kind.IsDeparture():
		if a.away {
			return a, nil, nil
		}
		a.away = true
		return a.warn(kind)
	case kind == domain.SignalPaste:
		return a.warn(kind)
	}
	return a, nil, nil
}

func (a attempt) watches(kind domain.SignalKind) bool {
	if !a.security.Enabled {
		return false
	}
	if kind == domain.SignalPaste {
		return a.security.WarnOnPaste
	}
	return a.security.LockOnLeave
}

func (a attempt) warn(reason domain.SignalKind) (attempt, []effect, error) {
	a.warnings++
	effects := []effect{{kind: effectPersistWarnings, warnings: a.warnings, reason: reason}}
	if a.warnings >= a.maxWarnings {
		a.warnings = a.maxWarnings
		a.locked = true
		a.away = false
		a.state = domain.StateLocked
		effects = append(effects, effect{kind: effectWriteLock, reason: reason})
	}
	return a, effects, nil
}
