package realtime

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func TestEmitterDeliversInFIFOOrder(t *testing.T) {
	emitter := NewEmitter(zerolog.Nop())
	defer emitter.Close()

	var mu sync.Mutex
	var got []string
	done := make(chan struct{})

	unsubscribe := emitter.Subscribe(func(n Notification) {
		mu.Lock()
		got = append(got, n.Order.OrderNumber)
		if len(got) == 10 {
			close(done)
		}
		mu.Unlock()
	})
	defer unsubscribe()

	want := make([]string, 0, 10)
	for i := 0; i < 10; i++ {
		number := fmt.Sprintf("ord-%d", i)
		want = append(want, number)
		emitter.Emit(Notification{
			Kind:       NotificationNewOrder,
			Order:      &Order{OrderNumber: number},
			ReceivedAt: time.Now(),
		})
	}

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notifications not delivered")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, want, got)
}

func TestEmitterFansOutToAllSubscribers(t *testing.T) {
	emitter := NewEmitter(zerolog.Nop())
	defer emitter.Close()

	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		unsub := emitter.Subscribe(func(Notification) { wg.Done() })
		defer unsub()
	}

	emitter.Emit(Notification{Kind: NotificationChatRequest, ReceivedAt: time.Now()})

	waitDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(waitDone)
	}()

	select {
	case <-waitDone:
	case <-time.After(time.Second):
		t.Fatal("not all subscribers notified")
	}
}

func TestEmitterUnsubscribeStopsDelivery(t *testing.T) {
	emitter := NewEmitter(zerolog.Nop())
	defer emitter.Close()

	var mu sync.Mutex
	count := 0
	unsubscribe := emitter.Subscribe(func(Notification) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	unsubscribe()
	emitter.Emit(Notification{Kind: NotificationNewOrder, ReceivedAt: time.Now()})

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Zero(t, count)
}

func TestEmitterSubscribeAfterCloseIsInert(t *testing.T) {
	emitter := NewEmitter(zerolog.Nop())
	emitter.Close()

	unsubscribe := emitter.Subscribe(func(Notification) {
		t.Error("subscriber invoked after close")
	})
	emitter.Emit(Notification{Kind: NotificationNewOrder, ReceivedAt: time.Now()})
	unsubscribe()

	time.Sleep(20 * time.Millisecond)
}
