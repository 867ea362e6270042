package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChanEmitter(t *testing.T) {
	e := NewChanEmitter(2)
	sub := e.Subscribe()

	e.Emit(context.Background(), Event{Type: EventRouted, Data: RouteData{ChainID: "c"}})
	e.Emit(context.Background(), Event{Type: EventSent, Data: MessageData{Content: "hi"}})
	e.Emit(context.Background(), Event{Type: EventDropped})

	assert.EqualValues(t, 1, e.Dropped(), "full buffer drops instead of blocking")

	first := <-sub.Events()
	assert.Equal(t, EventRouted, first.Type)
	assert.Equal(t, "c", first.Data.(RouteData).ChainID)
	second := <-sub.Events()
	assert.Equal(t, "hi", second.Data.(MessageData).Content)

	e.Close()
	e.Close()
	e.Emit(context.Background(), Event{Type: EventSent})
	_, open := <-sub.Events()
	assert.False(t, open)
}

func TestNop(t *testing.T) {
	var e Emitter = Nop{}
	e.Emit(context.Background(), Event{Type: EventSent})
}

func TestMulti(t *testing.T) {
	a := NewChanEmitter(4)
	b := NewChanEmitter(4)
	m := Multi{a, nil, b}

	m.Emit(context.Background(), Event{Type: EventSent, EventID: "e1"})

	for _, e := range []*ChanEmitter{a, b} {
		select {
		case got := <-e.Subscribe().Events():
			assert.Equal(t, "e1", got.EventID)
		default:
			t.Fatal("event was not delivered")
		}
	}
}
