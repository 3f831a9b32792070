package realtime

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type routerFixture struct {
	orders  *OrderFeed
	chats   *ChatSessions
	tracker *roomTracker
	emitter *Emitter
	router  *eventRouter
	rec     *sendRecorder
}

func newRouterFixture(t *testing.T, session Session) *routerFixture {
	t.Helper()

	rec := &sendRecorder{}
	orders := NewOrderFeed(zerolog.Nop())
	chats := NewChatSessions(0, zerolog.Nop())
	emitter := NewEmitter(zerolog.Nop())
	tracker := newRoomTracker(session, rec.send, zerolog.Nop())
	tracker.OnStateChange(openChange())

	t.Cleanup(emitter.Close)

	return &routerFixture{
		orders:  orders,
		chats:   chats,
		tracker: tracker,
		emitter: emitter,
		router:  newEventRouter(orders, chats, tracker, emitter, zerolog.Nop()),
		rec:     rec,
	}
}

func mustEnvelope(t *testing.T, event string, payload any) Envelope {
	t.Helper()
	env, err := NewEnvelope(event, payload)
	require.NoError(t, err)
	return env
}

func collectNotifications(t *testing.T, emitter *Emitter) (*[]Notification, *sync.Mutex) {
	t.Helper()

	var mu sync.Mutex
	var got []Notification
	unsub := emitter.Subscribe(func(n Notification) {
		mu.Lock()
		got = append(got, n)
		mu.Unlock()
	})
	t.Cleanup(unsub)

	return &got, &mu
}

func TestRouterDropsUnknownEvents(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleStaff})

	// Must not panic or mutate anything.
	f.router.route(Envelope{Event: "somethingNew", Data: json.RawMessage(`{"x":1}`)})

	require.Empty(t, f.orders.ListOrders())
	require.Empty(t, f.chats.Rooms())
}

func TestRouterNewOrderFeedsAggregateAndNotifies(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleStaff})
	got, mu := collectNotifications(t, f.emitter)

	order := Order{ID: 1, OrderNumber: "1001", Status: OrderStatusPending, CreatedAt: time.Now()}
	f.router.route(mustEnvelope(t, EventNewOrder, order))

	require.Len(t, f.orders.ListOrders(), 1)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 1 && (*got)[0].Kind == NotificationNewOrder
	}, time.Second, 10*time.Millisecond)
}

func TestRouterChatRequestScenario(t *testing.T) {
	// A customer opens a chat about order #1042; the staff session in the
	// global room receives exactly one chat-request carrying that number.
	f := newRouterFixture(t, Session{Role: RoleStaff, DisplayName: "alice"})
	got, mu := collectNotifications(t, f.emitter)

	room := ChatRoom{
		ChatID:       "chat-77",
		CustomerName: "Maya",
		OrderNumber:  "1042",
		Status:       "pending",
		CreatedAt:    time.Now(),
	}
	f.router.route(mustEnvelope(t, EventNewChatAvailable, room))

	msg := Message{
		MessageID:  "msg-1",
		ChatID:     "chat-77",
		Sender:     "Maya",
		SenderType: SenderTypeCustomer,
		Content:    "Hi, need help with order #1042",
		CreatedAt:  time.Now(),
	}
	f.router.route(mustEnvelope(t, EventNewMessage, MessageEventPayload{ChatID: "chat-77", Message: msg}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(*got) == 2
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()

	requests := 0
	for _, n := range *got {
		if n.Kind == NotificationChatRequest {
			requests++
			require.Equal(t, "1042", n.Chat.OrderNumber)
		}
	}
	require.Equal(t, 1, requests)

	// The chat room was marked desired and joined.
	require.Contains(t, f.tracker.Joined(), ChatRoomID("chat-77"))
}

func TestRouterOwnEchoDoesNotNotify(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleCustomer, DisplayName: "Maya"})
	got, mu := collectNotifications(t, f.emitter)

	f.chats.RegisterRoom(ChatRoom{ChatID: "chat-1", Status: "active"})
	correlationID, err := f.chats.SendMessage("chat-1", "Maya", SenderTypeCustomer, "hello")
	require.NoError(t, err)

	echo := Message{
		MessageID:     "msg-1",
		ChatID:        "chat-1",
		Sender:        "Maya",
		SenderType:    SenderTypeCustomer,
		Content:       "hello",
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	}
	f.router.route(mustEnvelope(t, EventNewMessage, MessageEventPayload{ChatID: "chat-1", Message: echo}))

	require.Len(t, f.chats.Messages("chat-1"), 1)

	time.Sleep(50 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	require.Empty(t, *got)
}

func TestRouterStatusEventsDriveFeed(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleStaff})

	order := Order{ID: 9, OrderNumber: "2009", Status: OrderStatusPending, CreatedAt: time.Now()}
	f.router.route(mustEnvelope(t, EventNewOrder, order))
	f.router.route(mustEnvelope(t, EventOrderAccepted, OrderStatusPayload{OrderID: 9, Status: OrderStatusAccepted, AssignedTo: "alice"}))
	f.router.route(mustEnvelope(t, EventOrderStatusUpdated, OrderStatusPayload{OrderID: 9, Status: OrderStatusPreparing}))

	// Stale duplicate arrives late; the feed keeps the newer state.
	f.router.route(mustEnvelope(t, EventOrderAccepted, OrderStatusPayload{OrderID: 9, Status: OrderStatusAccepted, AssignedTo: "bob"}))

	got, ok := f.orders.Get(9)
	require.True(t, ok)
	require.Equal(t, OrderStatusPreparing, got.Status)
	require.Equal(t, "alice", got.AssignedTo)
}

func TestRouterEditAndDeleteEvents(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleCustomer})
	f.chats.RegisterRoom(ChatRoom{ChatID: "chat-1", Status: "active"})
	f.chats.IngestMessage("chat-1", Message{MessageID: "msg-1", ChatID: "chat-1", Sender: "staff", SenderType: SenderTypeStaff, Content: "typo"})

	f.router.route(mustEnvelope(t, EventMessageEdited, MessageEditedPayload{ChatID: "chat-1", MessageID: "msg-1", Content: "fixed", EditedAt: time.Now()}))
	require.Equal(t, "fixed", f.chats.Messages("chat-1")[0].Content)

	f.router.route(mustEnvelope(t, EventMessageDeleted, MessageDeletedPayload{ChatID: "chat-1", MessageID: "msg-1"}))
	require.True(t, f.chats.Messages("chat-1")[0].IsDeleted)
}

func TestRouterTypingEvents(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleCustomer})
	f.chats.RegisterRoom(ChatRoom{ChatID: "chat-1", Status: "active"})

	f.router.route(mustEnvelope(t, EventTypingStatus, TypingStatusPayload{ChatID: "chat-1", Sender: "staff", IsTyping: true}))
	require.Equal(t, []string{"staff"}, f.chats.Typing("chat-1"))

	f.router.route(mustEnvelope(t, EventTypingStatus, TypingStatusPayload{ChatID: "chat-1", Sender: "staff", IsTyping: false}))
	require.Empty(t, f.chats.Typing("chat-1"))
}

func TestRouterChatAcceptedUpdatesRoom(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleCustomer})
	f.chats.RegisterRoom(ChatRoom{ChatID: "chat-1", Status: "pending"})

	f.router.route(mustEnvelope(t, EventChatAccepted, ChatAcceptedPayload{ChatID: "chat-1", AcceptedBy: "alice"}))

	room, ok := f.chats.Room("chat-1")
	require.True(t, ok)
	require.Equal(t, "active", room.Status)
	require.Equal(t, "alice", room.AcceptedBy)
}

func TestRouterMalformedPayloadIsDropped(t *testing.T) {
	f := newRouterFixture(t, Session{Role: RoleStaff})

	f.router.route(Envelope{Event: EventNewOrder, Data: json.RawMessage(`{"order_id": "not-a-number"`)})

	require.Empty(t, f.orders.ListOrders())
}
