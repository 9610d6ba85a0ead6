package marketdata

import (
	"sync"
)

// Tick is one last-traded-price update fanned out to quote-stream
// subscribers.
type Tick struct {
	Type         string `json:"type"`
	InstrumentID string `json:"instrument_id"`
	Symbol       string `json:"symbol"`
	LTP          string `json:"ltp"`
}

// subscriberBuffer absorbs short bursts per client; a consumer that falls
// further behind loses ticks instead of stalling the publisher.
const subscriberBuffer = 64

// Bus fans price ticks out to websocket subscribers within the API
// process.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Tick]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[chan Tick]struct{})}
}

func (b *Bus) Subscribe() chan Tick {
	ch := make(chan Tick, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

func (b *Bus) Unsubscribe(ch chan Tick) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers a tick to every subscriber without blocking on any of
// them.
func (b *Bus) Publish(t Tick) {
	b.mu.RLock()
	for ch := range b.subs {
		select {
		case ch <- t:
		default:
		}
	}
	b.mu.RUnlock()
}
