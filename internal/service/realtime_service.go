package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/dto"
	"github.com/dinehub/realtime-core/internal/observability"
)

const (
	// RoomOrders is the global room staff sessions join to receive order
	// lifecycle events and chat requests.
	RoomOrders = "orders"

	clientSendBufferSize = 32
	keepaliveInterval    = 30 * time.Second

	defaultTypingClear = 4 * time.Second
)

// ChatRoomPrefix namespaces per-chat rooms on the wire.
const ChatRoomPrefix = "chat:"

// ChatRoomName returns the hub room id for a chat.
func ChatRoomName(chatID string) string {
	return ChatRoomPrefix + chatID
}

// ConnectionOptions wraps metadata extracted during the HTTP upgrade.
type ConnectionOptions struct {
	UserName      string
	Staff         bool
	CorrelationID string
	Context       context.Context
}

// MessageSink receives chat messages that arrive over the realtime channel
// instead of REST. The chat service implements it; the indirection keeps the
// hub free of persistence concerns.
type MessageSink interface {
	IngestRealtimeMessage(ctx context.Context, payload dto.SendMessagePayload) error
}

// RoomGreeter supplies the catch-up event replayed to a client right after it
// joins a chat room, typically the last cached message.
type RoomGreeter interface {
	LastRoomEvent(ctx context.Context, chatID string) (dto.RealtimeEnvelope, bool)
}

// RealtimeService owns the websocket hub: room membership, event broadcast,
// and cross-node fanout. The realtime layer is a notification mechanism only;
// every state change commits through REST/database first.
type RealtimeService interface {
	ServeConnection(conn *websocket.Conn, opts ConnectionOptions)
	Publish(ctx context.Context, room, event string, payload any)
	SetMessageSink(sink MessageSink)
	SetRoomGreeter(greeter RoomGreeter)
	Start(ctx context.Context)
}

type realtimeService struct {
	redis       *redis.Client
	redisStream string
	nats        *nats.Conn
	natsSubject string
	validator   *validator.Validate
	logger      zerolog.Logger
	hub         *roomHub
	sink        MessageSink
	greeter     RoomGreeter
	nodeID      string

	typingClear  time.Duration
	typingMu     sync.Mutex
	typingTimers map[string]*time.Timer
}

type roomHub struct {
	mu    sync.RWMutex
	rooms map[string]map[*rtClient]struct{}
	log   zerolog.Logger
}

type rtClient struct {
	conn    *websocket.Conn
	send    chan dto.RealtimeEnvelope
	options ConnectionOptions
	service *realtimeService
	mu      sync.Mutex
	rooms   map[string]struct{}
	closed  chan struct{}
	once    sync.Once
	baseCtx context.Context
}

// nodeEvent is the cross-node fanout frame; Source filters self-echo.
type nodeEvent struct {
	Source string          `json:"source"`
	Room   string          `json:"room"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data,omitempty"`
	SentAt time.Time       `json:"sent_at"`
}

// NewRealtimeService creates the websocket hub service.
func NewRealtimeService(redisClient *redis.Client, channelBase string, natsConn *nats.Conn, typingClear time.Duration, validate *validator.Validate, logger zerolog.Logger) RealtimeService {
	stream := ""
	subject := ""
	if channelBase != "" {
		stream = channelBase + ":events"
		subject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	}
	if typingClear <= 0 {
		typingClear = defaultTypingClear
	}

	return &realtimeService{
		redis:       redisClient,
		redisStream: stream,
		nats:        natsConn,
		natsSubject: subject,
		validator:   validate,
		logger:      logger.With().Str("component", "realtime_service").Logger(),
		hub: &roomHub{
			rooms: make(map[string]map[*rtClient]struct{}),
			log:   logger.With().Str("component", "room_hub").Logger(),
		},
		nodeID:       uuid.NewString(),
		typingClear:  typingClear,
		typingTimers: make(map[string]*time.Timer),
	}
}

func (s *realtimeService) SetMessageSink(sink MessageSink) {
	s.sink = sink
}

func (s *realtimeService) SetRoomGreeter(greeter RoomGreeter) {
	s.greeter = greeter
}

func (s *realtimeService) Start(ctx context.Context) {
	if s.redis != nil && s.redisStream != "" {
		go s.consumeRedis(ctx)
	}
	if s.nats != nil && s.natsSubject != "" {
		go s.consumeNATS(ctx)
	}
}

func (s *realtimeService) ServeConnection(conn *websocket.Conn, opts ConnectionOptions) {
	baseCtx := opts.Context
	if baseCtx == nil {
		baseCtx = context.Background()
	}

	client := &rtClient{
		conn:    conn,
		send:    make(chan dto.RealtimeEnvelope, clientSendBufferSize),
		options: opts,
		service: s,
		rooms:   make(map[string]struct{}),
		closed:  make(chan struct{}),
		baseCtx: baseCtx,
	}

	observability.RealtimeClients().Inc()
	defer observability.RealtimeClients().Dec()

	go client.writer()
	client.reader()
}

// Publish frames the payload and delivers it to every local subscriber of
// room, then hands it to the cross-node brokers.
func (s *realtimeService) Publish(ctx context.Context, room, event string, payload any) {
	envelope, err := dto.NewRealtimeEnvelope(event, payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to frame realtime event")
		return
	}

	s.hub.broadcast(room, envelope)
	observability.RealtimeEvents().WithLabelValues(event).Inc()

	if err := s.publishCrossNode(ctx, room, envelope); err != nil {
		s.logger.Warn().Err(err).Str("event", event).Msg("failed to publish realtime event to broker")
	}
}

func (s *realtimeService) publishCrossNode(ctx context.Context, room string, envelope dto.RealtimeEnvelope) error {
	if (s.redis == nil || s.redisStream == "") && (s.nats == nil || s.natsSubject == "") {
		return nil
	}

	frame := nodeEvent{
		Source: s.nodeID,
		Room:   room,
		Event:  envelope.Event,
		Data:   envelope.Data,
		SentAt: time.Now().UTC(),
	}

	payload, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	if s.redis != nil && s.redisStream != "" {
		if err := s.redis.Publish(ctx, s.redisStream, payload).Err(); err != nil {
			return err
		}
	}

	if s.nats != nil && s.natsSubject != "" {
		if err := s.nats.Publish(s.natsSubject, payload); err != nil {
			return err
		}
	}

	return nil
}

func (s *realtimeService) consumeRedis(ctx context.Context) {
	pubsub := s.redis.Subscribe(ctx, s.redisStream)
	defer func() { _ = pubsub.Close() }()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			s.logger.Error().Err(err).Msg("realtime redis subscription closed")
			return
		}
		s.handleNodeEvent([]byte(msg.Payload))
	}
}

func (s *realtimeService) consumeNATS(ctx context.Context) {
	sub, err := s.nats.QueueSubscribe(s.natsSubject, "dinehub-realtime", func(msg *nats.Msg) {
		s.handleNodeEvent(msg.Data)
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to subscribe to nats events subject")
		return
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			s.logger.Warn().Err(err).Msg("failed to drain realtime nats subscription")
		}
	}()
}

func (s *realtimeService) handleNodeEvent(payload []byte) {
	var frame nodeEvent
	if err := json.Unmarshal(payload, &frame); err != nil {
		s.logger.Warn().Err(err).Msg("invalid cross-node realtime event")
		return
	}

	if frame.Source == s.nodeID {
		return
	}

	observability.RealtimeEvents().WithLabelValues(frame.Event).Inc()
	s.hub.broadcast(frame.Room, dto.RealtimeEnvelope{Event: frame.Event, Data: frame.Data})
}

// trackTyping clears a stale typing indicator for clients whose "stopped
// typing" frame never arrives (socket drop, backgrounded tab). Each new
// indicator from the same sender re-arms the timer.
func (s *realtimeService) trackTyping(payload dto.TypingStatusPayload) {
	key := payload.ChatID + "|" + payload.Sender

	s.typingMu.Lock()
	defer s.typingMu.Unlock()

	if timer, ok := s.typingTimers[key]; ok {
		timer.Stop()
		delete(s.typingTimers, key)
	}

	if !payload.IsTyping {
		return
	}

	s.typingTimers[key] = time.AfterFunc(s.typingClear, func() {
		s.typingMu.Lock()
		delete(s.typingTimers, key)
		s.typingMu.Unlock()

		cleared := dto.TypingStatusPayload{ChatID: payload.ChatID, Sender: payload.Sender, IsTyping: false}
		s.Publish(context.Background(), ChatRoomName(payload.ChatID), dto.EventTypingStatus, cleared)
	})
}

func (h *roomHub) join(client *rtClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.rooms[room]; !exists {
		h.rooms[room] = make(map[*rtClient]struct{})
	}
	h.rooms[room][client] = struct{}{}

	client.mu.Lock()
	client.rooms[room] = struct{}{}
	client.mu.Unlock()

	h.log.Debug().Str("room", room).Str("user", client.options.UserName).Msg("client joined room")
}

func (h *roomHub) leave(client *rtClient, room string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if clients, ok := h.rooms[room]; ok {
		delete(clients, client)
		if len(clients) == 0 {
			delete(h.rooms, room)
		}
	}

	client.mu.Lock()
	delete(client.rooms, room)
	client.mu.Unlock()

	h.log.Debug().Str("room", room).Str("user", client.options.UserName).Msg("client left room")
}

func (h *roomHub) leaveAll(client *rtClient) {
	client.mu.Lock()
	rooms := make([]string, 0, len(client.rooms))
	for room := range client.rooms {
		rooms = append(rooms, room)
	}
	client.mu.Unlock()

	for _, room := range rooms {
		h.leave(client, room)
	}
}

func (h *roomHub) broadcast(room string, envelope dto.RealtimeEnvelope) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	clients := h.rooms[room]
	for client := range clients {
		select {
		case client.send <- envelope:
			observability.NotificationFanout().WithLabelValues(room).Inc()
		default:
			h.log.Warn().Str("room", room).Str("user", client.options.UserName).Msg("dropping realtime event for slow client")
		}
	}
}

func (c *rtClient) reader() {
	defer c.close()

	for {
		var envelope dto.RealtimeEnvelope
		if err := c.conn.ReadJSON(&envelope); err != nil {
			c.service.logger.Debug().Err(err).Msg("realtime read loop ended")
			return
		}

		c.dispatch(envelope)
	}
}

// dispatch handles client-initiated events. Unknown kinds are logged and
// dropped so newer clients never kill the connection.
func (c *rtClient) dispatch(envelope dto.RealtimeEnvelope) {
	switch envelope.Event {
	case dto.EventJoinChat:
		var payload dto.JoinChatPayload
		if err := c.decode(envelope.Data, &payload); err != nil {
			return
		}
		c.service.hub.join(c, ChatRoomName(payload.ChatID))
		if c.service.greeter != nil {
			if envelope, ok := c.service.greeter.LastRoomEvent(c.baseCtx, payload.ChatID); ok {
				select {
				case c.send <- envelope:
				default:
				}
			}
		}

	case dto.EventLeaveChat:
		var payload dto.JoinChatPayload
		if err := c.decode(envelope.Data, &payload); err != nil {
			return
		}
		c.service.hub.leave(c, ChatRoomName(payload.ChatID))

	case dto.EventJoinOrders:
		if !c.options.Staff {
			c.service.logger.Warn().Str("user", c.options.UserName).Msg("non-staff session attempted to join orders room")
			return
		}
		c.service.hub.join(c, RoomOrders)

	case dto.EventTypingStatus:
		var payload dto.TypingStatusPayload
		if err := c.decode(envelope.Data, &payload); err != nil {
			return
		}
		c.service.Publish(c.baseCtx, ChatRoomName(payload.ChatID), dto.EventTypingStatus, payload)
		c.service.trackTyping(payload)

	case dto.EventSendMessage:
		var payload dto.SendMessagePayload
		if err := c.decode(envelope.Data, &payload); err != nil {
			return
		}
		if c.service.sink == nil {
			c.service.logger.Warn().Msg("realtime message received but no sink is configured")
			return
		}
		if err := c.service.sink.IngestRealtimeMessage(c.baseCtx, payload); err != nil {
			c.service.logger.Warn().Err(err).Str("chat_id", payload.ChatID).Msg("failed to ingest realtime message")
		}

	default:
		c.service.logger.Info().Str("event", envelope.Event).Msg("dropping unknown realtime event")
	}
}

func (c *rtClient) decode(data json.RawMessage, target any) error {
	if err := json.Unmarshal(data, target); err != nil {
		c.service.logger.Warn().Err(err).Msg("invalid realtime payload")
		return err
	}
	if err := c.service.validator.Struct(target); err != nil {
		c.service.logger.Warn().Err(err).Msg("realtime payload failed validation")
		return err
	}
	return nil
}

func (c *rtClient) writer() {
	defer c.close()

	for {
		select {
		case envelope, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(envelope); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime write loop terminated")
				return
			}
		case <-time.After(keepaliveInterval):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Msg("realtime ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *rtClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.hub.leaveAll(c)
		_ = c.conn.Close()
	})
}
