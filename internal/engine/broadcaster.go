package engine

import (
	"sync"

	"github.com/yoshihiko555/takt/internal/models"
)

// Listener receives every event the engine emits during a run.
type Listener func(models.Event)

// Broadcaster is a synchronous, in-process pub/sub for engine events.
// Subscribers are invoked in registration order on the goroutine that
// calls Emit; there is no buffering or async dispatch, so a listener
// that writes to the NDJSON session log sees events strictly in the
// order the engine produced them.
type Broadcaster struct {
	mu        sync.Mutex
	listeners []Listener
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe registers l as a persistent listener, called for every
// subsequent Emit.
func (b *Broadcaster) Subscribe(l Listener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Emit delivers ev to every subscribed listener in order.
func (b *Broadcaster) Emit(ev models.Event) {
	b.mu.Lock()
	listeners := make([]Listener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l(ev)
	}
}

func (b *Broadcaster) emit(t models.EventType, data map[string]any) {
	if b == nil {
		return
	}
	b.Emit(models.NewEvent(t, data))
}
