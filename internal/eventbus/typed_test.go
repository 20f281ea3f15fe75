package eventbus

import "testing"

func TestTypedBusPublishSubscribe(t *testing.T) {
	bus := NewTyped[string](0)
	ch := bus.Subscribe()
	if dropped := bus.Publish("hello"); dropped != 0 {
		t.Fatalf("expected no drops got %d", dropped)
	}
	v := <-ch
	if v != "hello" {
		t.Fatalf("expected hello got %v", v)
	}
	bus.Unsubscribe(ch)
	if bus.Len() != 0 {
		t.Fatalf("expected no subscribers")
	}
}

func TestTypedBusSlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewTyped[int](1)
	slow := bus.Subscribe()
	fast := bus.Subscribe()
	bus.Publish(1)
	<-fast
	if dropped := bus.Publish(2); dropped != 1 {
		t.Fatalf("expected slow subscriber to drop, got %d", dropped)
	}
	if v := <-fast; v != 2 {
		t.Fatalf("fast subscriber got %d", v)
	}
	if v := <-slow; v != 1 {
		t.Fatalf("slow subscriber got %d", v)
	}
}

func TestTypedBusClose(t *testing.T) {
	bus := NewTyped[int](0)
	ch1 := bus.Subscribe()
	ch2 := bus.Subscribe()
	bus.Close()
	if _, ok := <-ch1; ok {
		t.Fatalf("expected ch1 closed")
	}
	if _, ok := <-ch2; ok {
		t.Fatalf("expected ch2 closed")
	}
	if _, ok := <-bus.Subscribe(); ok {
		t.Fatalf("subscribe after close should return closed channel")
	}
}

func TestTypedBusUnsubscribeAfterClose(t *testing.T) {
	bus := NewTyped[float64](0)
	ch := bus.Subscribe()
	bus.Close()
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("panic on Unsubscribe after Close: %v", r)
		}
	}()
	bus.Unsubscribe(ch)
}
