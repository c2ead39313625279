package events

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"
)

// Handler reacts to one event. Handlers are side-effect-only: a returned error
// is logged and never reaches the publisher, so a dropped broadcast can never
// roll back a committed order mutation.
type Handler func(ctx context.Context, e Event) error

// Bus is an in-process fan-out. Publish dispatches asynchronously; the command
// pipeline publishes only after its write has landed.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Name][]Handler
	log      *logrus.Logger
}

func NewBus(log *logrus.Logger) *Bus {
	return &Bus{handlers: make(map[Name][]Handler), log: log}
}

func (b *Bus) Subscribe(name Name, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *Bus) Publish(ctx context.Context, e Event) {
	b.mu.RLock()
	hs := b.handlers[e.Name()]
	b.mu.RUnlock()

	for _, h := range hs {
		go b.run(ctx, h, e)
	}
}

func (b *Bus) run(ctx context.Context, h Handler, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("event", e.Name()).Errorf("event handler panic: %v", r)
		}
	}()
	if err := h(ctx, e); err != nil {
		b.log.WithField("event", e.Name()).WithError(err).Error("event handler failed")
	}
}
