package realtime

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
)

// eventRouter serializes all inbound server events through one dispatch
// loop. Aggregate mutations happen only here (plus the typing auto-clear
// timers), so event handling order matches arrival order. Unknown event
// kinds are logged and dropped, never fatal.
type eventRouter struct {
	orders  *OrderFeed
	chats   *ChatSessions
	rooms   *roomTracker
	emitter *Emitter
	logger  zerolog.Logger

	handlers map[string]func(json.RawMessage)
}

func newEventRouter(orders *OrderFeed, chats *ChatSessions, rooms *roomTracker, emitter *Emitter, logger zerolog.Logger) *eventRouter {
	r := &eventRouter{
		orders:  orders,
		chats:   chats,
		rooms:   rooms,
		emitter: emitter,
		logger:  logger.With().Str("component", "event_router").Logger(),
	}

	r.handlers = map[string]func(json.RawMessage){
		EventNewOrder:           r.handleNewOrder,
		EventOrderAccepted:      r.handleOrderStatus,
		EventOrderRejected:      r.handleOrderStatus,
		EventOrderStatusUpdated: r.handleOrderStatus,
		EventNewChatAvailable:   r.handleNewChat,
		EventChatAccepted:       r.handleChatAccepted,
		EventNewMessage:         r.handleNewMessage,
		EventMessageEdited:      r.handleMessageEdited,
		EventMessageDeleted:     r.handleMessageDeleted,
		EventTypingStatus:       r.handleTyping,
	}

	return r
}

// run consumes inbound envelopes until the session closes.
func (r *eventRouter) run(inbound <-chan Envelope, done <-chan struct{}) {
	for {
		select {
		case env := <-inbound:
			r.route(env)
		case <-done:
			return
		}
	}
}

func (r *eventRouter) route(env Envelope) {
	handler, ok := r.handlers[env.Event]
	if !ok {
		r.logger.Warn().Str("event", env.Event).Msg("unknown event dropped")
		return
	}
	handler(env.Data)
}

func (r *eventRouter) handleNewOrder(data json.RawMessage) {
	var order Order
	if err := json.Unmarshal(data, &order); err != nil {
		r.logger.Warn().Err(err).Msg("malformed newOrder payload")
		return
	}

	r.orders.IngestRealtime(order)
	r.emitter.Emit(Notification{
		Kind:       NotificationNewOrder,
		Order:      &order,
		ReceivedAt: time.Now(),
	})
}

func (r *eventRouter) handleOrderStatus(data json.RawMessage) {
	var payload OrderStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed order status payload")
		return
	}

	// A stale transition is already logged by the feed; the router only
	// needs to avoid treating it as fatal.
	_ = r.orders.ApplyStatusTransition(payload.OrderID, payload.Status, payload.AssignedTo)
}

func (r *eventRouter) handleNewChat(data json.RawMessage) {
	var room ChatRoom
	if err := json.Unmarshal(data, &room); err != nil {
		r.logger.Warn().Err(err).Msg("malformed newChatAvailable payload")
		return
	}

	r.chats.RegisterRoom(room)
	r.rooms.MarkDesired(room.ChatID)
	r.emitter.Emit(Notification{
		Kind:       NotificationChatRequest,
		Chat:       &room,
		ReceivedAt: time.Now(),
	})
}

func (r *eventRouter) handleChatAccepted(data json.RawMessage) {
	var payload ChatAcceptedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed chatAccepted payload")
		return
	}

	r.chats.MarkAccepted(payload.ChatID, payload.AcceptedBy)
}

func (r *eventRouter) handleNewMessage(data json.RawMessage) {
	var payload MessageEventPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed newMessage payload")
		return
	}

	fromOther := r.chats.IngestMessage(payload.ChatID, payload.Message)
	if fromOther && payload.Message.SenderType != SenderTypeSystem {
		msg := payload.Message
		r.emitter.Emit(Notification{
			Kind:       NotificationChatMessage,
			Message:    &msg,
			ReceivedAt: time.Now(),
		})
	}
}

func (r *eventRouter) handleMessageEdited(data json.RawMessage) {
	var payload MessageEditedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed messageEdited payload")
		return
	}

	r.chats.ApplyEdit(payload.ChatID, payload.MessageID, payload.Content)
}

func (r *eventRouter) handleMessageDeleted(data json.RawMessage) {
	var payload MessageDeletedPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed messageDeleted payload")
		return
	}

	r.chats.ApplyTombstone(payload.ChatID, payload.MessageID)
}

func (r *eventRouter) handleTyping(data json.RawMessage) {
	var payload TypingStatusPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		r.logger.Warn().Err(err).Msg("malformed typingStatus payload")
		return
	}

	r.chats.SetTyping(payload.ChatID, payload.Sender, payload.IsTyping)
}
