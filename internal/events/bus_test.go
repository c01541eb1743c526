package events

import "testing"

func TestSubscribePublishDelivers(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventChannelStateChanged)

	b.Publish(EventChannelStateChanged, Payload{"channel_id": 1})

	select {
	case p := <-sub:
		if p["channel_id"] != 1 {
			t.Fatalf("payload = %+v, want channel_id 1", p)
		}
	default:
		t.Fatalf("expected a delivered payload")
	}
}

func TestPublishOnlyReachesMatchingEventType(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventChannelStateChanged)

	b.Publish(EventListenerDropped, Payload{"listener_id": "x"})

	select {
	case p := <-sub:
		t.Fatalf("unexpected delivery for a different event type: %+v", p)
	default:
	}
}

func TestPublishWithNoSubscribersDoesNotBlockOrPanic(t *testing.T) {
	b := NewBus()
	b.Publish(EventExclusionGranted, Payload{"track_id": "a"})
}

func TestPublishToFullSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventChannelDecodeFailure)

	// The subscriber channel has capacity 8; fill it and publish past
	// capacity to confirm Publish never blocks on a slow subscriber.
	for i := 0; i < 8; i++ {
		b.Publish(EventChannelDecodeFailure, Payload{"n": i})
	}
	b.Publish(EventChannelDecodeFailure, Payload{"n": "overflow"})

	for i := 0; i < 8; i++ {
		p := <-sub
		if p["n"] != i {
			t.Fatalf("payload[%d] = %+v, want n=%d", i, p, i)
		}
	}
	select {
	case p := <-sub:
		t.Fatalf("expected the 9th publish to be dropped, got %+v", p)
	default:
	}
}

func TestUnsubscribeStopsDeliveryAndClosesChannel(t *testing.T) {
	b := NewBus()
	sub := b.Subscribe(EventSpeakerFanout)

	b.Unsubscribe(EventSpeakerFanout, sub)
	b.Publish(EventSpeakerFanout, Payload{"zone": "kitchen"})

	_, ok := <-sub
	if ok {
		t.Fatalf("expected the unsubscribed channel to be closed")
	}
}

func TestUnsubscribeUnknownSubscriberIsANoOp(t *testing.T) {
	b := NewBus()
	stray := make(Subscriber, 1)
	b.Unsubscribe(EventListenerDropped, stray) // must not panic
}

func TestMultipleSubscribersAllReceive(t *testing.T) {
	b := NewBus()
	subA := b.Subscribe(EventChannelStateChanged)
	subB := b.Subscribe(EventChannelStateChanged)

	b.Publish(EventChannelStateChanged, Payload{"channel_id": 2})

	for _, sub := range []Subscriber{subA, subB} {
		select {
		case p := <-sub:
			if p["channel_id"] != 2 {
				t.Fatalf("payload = %+v, want channel_id 2", p)
			}
		default:
			t.Fatalf("expected both subscribers to receive the publish")
		}
	}
}
