package events

import (
	"sync"
	"testing"
	"time"
)

func TestEmitSyncOrder(t *testing.T) {
	bus := NewEventBus()

	var got []string
	bus.Subscribe("a", Func(func(e Event) { got = append(got, "a1:"+e.Type) }))
	bus.Subscribe(Wildcard, Func(func(e Event) { got = append(got, "*:"+e.Type) }))
	bus.Subscribe("a", Func(func(e Event) { got = append(got, "a2:"+e.Type) }))

	bus.EmitSync(New(EventSourceIRC, "a", nil))
	bus.EmitSync(New(EventSourceIRC, "b", nil))

	want := []string{"a1:a", "a2:a", "*:a", "*:b"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestUnsubscribe(t *testing.T) {
	bus := NewEventBus()

	calls := 0
	sub := Func(func(e Event) { calls++ })
	bus.Subscribe("x", sub)
	bus.EmitSync(New(EventSourceSystem, "x", nil))
	bus.Unsubscribe("x", sub)
	bus.EmitSync(New(EventSourceSystem, "x", nil))

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestEmitAsync(t *testing.T) {
	bus := NewEventBus()

	var wg sync.WaitGroup
	wg.Add(2)
	bus.Subscribe("x", Func(func(e Event) { wg.Done() }))
	bus.Subscribe(Wildcard, Func(func(e Event) { wg.Done() }))
	bus.Emit(New(EventSourceSystem, "x", map[string]interface{}{"k": 1}))

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("subscribers were not called")
	}
}
