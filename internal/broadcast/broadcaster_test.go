package broadcast

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case e, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return e
	case <-time.After(time.Second):
		t.Fatalf("no event for subscriber %s", sub.Name())
		return Event{}
	}
}

func TestPublishFansOutToAttached(t *testing.T) {
	b := NewBroadcaster(8, nil)
	defer b.Close()

	subs := make([]*Subscription, 5)
	for i := range subs {
		subs[i] = b.Attach(fmt.Sprintf("sub-%d", i))
	}
	detached := b.Attach("detached")
	b.Detach(detached)
	require.Equal(t, 5, b.Count())

	b.Publish(NewEvent(KindPacket, SeveritySuccess, "decoded", PacketData{IMEI: "abc", PacketHeader: "1001"}))

	for _, sub := range subs {
		e := receive(t, sub)
		assert.Equal(t, KindPacket, e.Kind)
		assert.Equal(t, SeveritySuccess, e.Severity)
		assert.Equal(t, "abc", e.Data.(PacketData).IMEI)
	}

	_, ok := <-detached.Events()
	assert.False(t, ok, "detached subscription must be closed and empty")
}

func TestLateSubscriberGetsNoReplay(t *testing.T) {
	b := NewBroadcaster(8, nil)
	defer b.Close()

	b.Publish(NewEvent(KindConnected, SeverityInfo, "early", nil))
	late := b.Attach("late")

	select {
	case e := <-late.Events():
		t.Fatalf("late subscriber received %+v", e)
	default:
	}
}

func TestSlowSubscriberDropsOldest(t *testing.T) {
	b := NewBroadcaster(3, nil)
	defer b.Close()

	slow := b.Attach("slow")
	for i := 0; i < 5; i++ {
		b.Publish(NewEvent(KindPacket, SeverityInfo, fmt.Sprintf("event-%d", i), nil))
	}

	assert.Equal(t, uint64(2), slow.Dropped())
	for _, want := range []string{"event-2", "event-3", "event-4"} {
		assert.Equal(t, want, receive(t, slow).Message)
	}
}

func TestPublishPreservesOrderPerSubscriber(t *testing.T) {
	b := NewBroadcaster(128, nil)
	defer b.Close()

	sub := b.Attach("ordered")
	for i := 0; i < 100; i++ {
		b.Publish(NewEvent(KindPacket, SeverityInfo, fmt.Sprint(i), nil))
	}
	for i := 0; i < 100; i++ {
		require.Equal(t, fmt.Sprint(i), receive(t, sub).Message)
	}
}

func TestConcurrentAttachDetachPublish(t *testing.T) {
	b := NewBroadcaster(4, nil)
	defer b.Close()

	var wg sync.WaitGroup
	stop := make(chan struct{})

	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				b.Publish(NewEvent(KindPacket, SeverityInfo, fmt.Sprint(i), nil))
			}
		}(i)
	}

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 200; j++ {
				sub := b.Attach(fmt.Sprintf("churn-%d", i))
				select {
				case <-sub.Events():
				default:
				}
				b.Detach(sub)
			}
		}(i)
	}

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
	assert.Equal(t, 0, b.Count())
}

func TestDetachTwiceAndClose(t *testing.T) {
	b := NewBroadcaster(0, nil)
	sub := b.Attach("one")
	b.Detach(sub)
	b.Detach(sub)
	b.Detach(nil)

	other := b.Attach("two")
	b.Close()
	b.Close()
	_, ok := <-other.Events()
	assert.False(t, ok)

	afterClose := b.Attach("three")
	_, ok = <-afterClose.Events()
	assert.False(t, ok)

	b.Publish(NewEvent(KindPacket, SeverityInfo, "ignored", nil))
	assert.Equal(t, 0, b.Count())
}
