package room

import "testing"

func TestBroadcasterTargetedDelivery(t *testing.T) {
	b := newBroadcaster()
	alice, cancelAlice := b.subscribe("p-alice")
	defer cancelAlice()
	bob, cancelBob := b.subscribe("p-bob")
	defer cancelBob()
	host, cancelHost := b.subscribe("")
	defer cancelHost()

	b.publish(Event{Type: EventAnswerAck, To: "p-alice"})
	b.publish(Event{Type: EventScoreboardUpdate})

	if ev := <-alice; ev.Type != EventAnswerAck {
		t.Fatalf("alice expected her ack first, got %s", ev.Type)
	}
	if ev := <-bob; ev.Type != EventScoreboardUpdate {
		t.Fatalf("bob must not see alice's ack, got %s", ev.Type)
	}
	if ev := <-host; ev.Type != EventScoreboardUpdate {
		t.Fatalf("host must not see targeted acks, got %s", ev.Type)
	}
}

func TestBroadcasterDropsOldestForSlowSubscriber(t *testing.T) {
	b := newBroadcaster()
	slow, cancel := b.subscribe("")
	defer cancel()

	// Overflow the buffer; publish must never block.
	for i := 0; i < 40; i++ {
		b.publish(Event{Type: EventScoreboardUpdate, RoomID: "r"})
	}
	b.publish(Event{Type: EventRoomCompleted, RoomID: "r"})

	var last Event
	for {
		select {
		case ev := <-slow:
			last = ev
			continue
		default:
		}
		break
	}
	if last.Type != EventRoomCompleted {
		t.Fatalf("latest event must survive backpressure, got %s", last.Type)
	}
}

func TestBroadcasterCancelIsIdempotent(t *testing.T) {
	b := newBroadcaster()
	_, cancel := b.subscribe("p1")
	cancel()
	cancel() // second cancel must not panic on a closed channel
	b.publish(Event{Type: EventScoreboardUpdate})
}
