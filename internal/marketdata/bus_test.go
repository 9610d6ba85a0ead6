package marketdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanout(t *testing.T) {
	bus := NewBus()
	a := bus.Subscribe()
	b := bus.Subscribe()

	bus.Publish(Tick{Type: "quote", Symbol: "RELIANCE", LTP: "2500"})

	got := <-a
	assert.Equal(t, "quote", got.Type)
	assert.Equal(t, "RELIANCE", got.Symbol)
	assert.Equal(t, "2500", (<-b).LTP)
}

func TestBusUnsubscribeClosesChannel(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()
	bus.Unsubscribe(ch)

	_, open := <-ch
	assert.False(t, open)

	// Double unsubscribe is a no-op, not a double close.
	bus.Unsubscribe(ch)
}

func TestBusSlowConsumerDropsInsteadOfBlocking(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	// Fill the buffer and keep publishing; the publisher must not block.
	for i := 0; i < subscriberBuffer+20; i++ {
		bus.Publish(Tick{Type: "quote"})
	}
	require.Len(t, ch, subscriberBuffer)
}
