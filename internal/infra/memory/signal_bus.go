package memory

import (
	"sync"

	"quiz-integrity-service/internal/domain"
)

// SignalBus is an app.SignalSource fed by Emit. Handlers run on the emitting goroutine
// and may unregister themselves.
type SignalBus struct {
	mu       sync.Mutex
	next     int
	handlers map[int]func(domain.Signal)
}

func NewSignalBus() *SignalBus {
	return &SignalBus{handlers: make(map[int]func(domain.Signal))}
}

func (b *SignalBus) OnLeaveSignal(fn func(domain.Signal)) func() {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers sig to every registered handler.
func (b *SignalBus) Emit(sig domain.Signal) {
	b.mu.Lock()
	handlers := make([]func(domain.Signal), 0, len(b.handlers))
	for _, fn := range b.handlers {
		handlers = append(handlers, fn)
	}
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(sig)
	}
}

// Listeners reports how many handlers are registered.
func (b *SignalBus) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers)
}
