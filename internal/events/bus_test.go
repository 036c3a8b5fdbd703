package events

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventPositionOpened, 4)
	defer unsub()

	want := PositionEvent{InstanceID: "inst-1", Symbol: "BTCUSDT"}
	b.Publish(EventPositionOpened, want)

	select {
	case got := <-ch:
		pe, ok := got.(PositionEvent)
		if !ok || pe.InstanceID != "inst-1" {
			t.Fatalf("received %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventBotStopped, 1)
	defer unsub()

	b.Publish(EventBotStarted, BotEvent{InstanceID: "inst-1"})

	select {
	case got := <-ch:
		t.Fatalf("cross-topic delivery: %+v", got)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBus()
	ch, unsub := b.Subscribe(EventRiskDenied, 1)
	unsub()

	b.Publish(EventRiskDenied, RiskDeniedEvent{Rule: "margin_cap_exceeded"})

	select {
	case _, open := <-ch:
		if open {
			t.Fatal("delivery after unsubscribe")
		}
	case <-time.After(20 * time.Millisecond):
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := NewBus()
	_, unsub := b.Subscribe(EventPositionClosed, 1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		// Nobody drains the channel; extra events must be dropped.
		for i := 0; i < 100; i++ {
			b.Publish(EventPositionClosed, PositionEvent{})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a full subscriber")
	}
}
