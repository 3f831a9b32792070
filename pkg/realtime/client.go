// Package realtime is the notification and chat core for the ordering
// frontend: one websocket connection per session, room membership that
// converges after reconnects, and in-memory order/chat aggregates reconciled
// between REST snapshots and realtime deltas. The backend is the single
// source of truth; the realtime stream only notifies.
package realtime

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Options configures a Client.
type Options struct {
	// SocketURL is the websocket endpoint, e.g. ws://host/api/v1/ws.
	SocketURL string

	// APIBaseURL is the REST root, e.g. http://host.
	APIBaseURL string

	Session     Session
	Token       string
	TokenSource TokenSource
	HTTPClient  *http.Client
	Logger      *zerolog.Logger

	HandshakeTimeout time.Duration
	PlacementTimeout time.Duration
	TypingClearAfter time.Duration
}

// Client ties the connection manager, room tracker, event router, aggregates
// and emitter into one session-scoped facade. Create one per logged-in
// session; state is not shared across sessions.
type Client struct {
	session Session
	logger  zerolog.Logger

	conn    *connManager
	rooms   *roomTracker
	orders  *OrderFeed
	chats   *ChatSessions
	emitter *Emitter
	router  *eventRouter
	rest    *RESTClient

	done      chan struct{}
	closeOnce sync.Once
	startOnce sync.Once
}

// New builds a client from options. Connect must be called before events
// flow.
func New(opts Options) *Client {
	logger := zerolog.Nop()
	if opts.Logger != nil {
		logger = *opts.Logger
	}

	socketURL := opts.SocketURL
	if u, err := url.Parse(opts.SocketURL); err == nil {
		q := u.Query()
		q.Set("user_name", opts.Session.DisplayName)
		if opts.Session.Role.IsStaff() {
			q.Set("user_type", SenderTypeStaff)
		} else {
			q.Set("user_type", SenderTypeCustomer)
		}
		u.RawQuery = q.Encode()
		socketURL = u.String()
	}

	conn := newConnManager(socketURL, nil, opts.HandshakeTimeout, logger)
	orders := NewOrderFeed(logger)
	chats := NewChatSessions(opts.TypingClearAfter, logger)
	emitter := NewEmitter(logger)
	rooms := newRoomTracker(opts.Session, conn.Send, logger)
	router := newEventRouter(orders, chats, rooms, emitter, logger)
	rest := NewRESTClient(RESTOptions{
		BaseURL:          opts.APIBaseURL,
		Token:            opts.Token,
		TokenSource:      opts.TokenSource,
		HTTPClient:       opts.HTTPClient,
		PlacementTimeout: opts.PlacementTimeout,
		Logger:           logger,
	})

	return &Client{
		session: opts.Session,
		logger:  logger.With().Str("component", "realtime_client").Logger(),
		conn:    conn,
		rooms:   rooms,
		orders:  orders,
		chats:   chats,
		emitter: emitter,
		router:  router,
		rest:    rest,
		done:    make(chan struct{}),
	}
}

// Connect establishes the transport and starts the dispatch loop. It blocks
// until the first dial succeeds or fails with ErrConnectionTimeout. Dropped
// connections after that reconnect automatically with backoff; room
// membership reconverges on every reconnect without re-registering handlers.
func (c *Client) Connect(ctx context.Context) error {
	c.startOnce.Do(func() {
		go c.router.run(c.conn.Inbound(), c.done)
		go c.watchStates()
	})

	return c.conn.Connect(ctx)
}

// watchStates feeds transport transitions to the room tracker and resyncs
// aggregates after every reconnect so events missed during the outage are
// recovered from REST.
func (c *Client) watchStates() {
	sawOpen := false
	for {
		select {
		case change := <-c.conn.States():
			c.rooms.OnStateChange(change)
			if change.State == StateOpen {
				if sawOpen {
					go c.resync()
				}
				sawOpen = true
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) resync() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.session.Role.IsStaff() {
		if err := c.RefreshOrders(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("order resync failed")
		}
	}

	for _, room := range c.chats.Rooms() {
		if err := c.RefreshChat(ctx, room.ChatID); err != nil {
			c.logger.Warn().Err(err).Str("chat_id", room.ChatID).Msg("chat resync failed")
		}
	}
}

// Close tears the session down: transport, retries, and notification
// delivery all stop.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
		c.emitter.Close()
	})
}

// Orders exposes the order feed read model.
func (c *Client) Orders() *OrderFeed { return c.orders }

// Chats exposes the chat session read model.
func (c *Client) Chats() *ChatSessions { return c.chats }

// Notifications exposes the emitter subscription surface.
func (c *Client) Notifications() *Emitter { return c.emitter }

// REST exposes the underlying HTTP client for calls the facade does not
// wrap.
func (c *Client) REST() *RESTClient { return c.rest }

// PlaceOrder commits an order through REST. Outcomes are exactly one of
// confirmed, ErrDuplicateOrder (with the existing order, pending user
// confirmation), ErrUncertain, or an error.
func (c *Client) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	order, err := c.rest.PlaceOrder(ctx, req)
	if err != nil {
		return order, err
	}

	c.orders.IngestRealtime(order)
	return order, nil
}

// AcceptOrder claims a pending order. Losing the race reconciles the feed to
// the server-confirmed assignee and returns ErrAlreadyAssigned; the local
// optimistic guess never wins.
func (c *Client) AcceptOrder(ctx context.Context, orderID uint) (Order, error) {
	order, err := c.rest.AcceptOrder(ctx, orderID)
	if err == nil {
		c.orders.Reconcile(order)
		return order, nil
	}

	if errors.Is(err, ErrAlreadyAssigned) && order.ID != 0 {
		c.orders.Reconcile(order)
	}
	return order, err
}

// RejectOrder moves a pending order to rejected.
func (c *Client) RejectOrder(ctx context.Context, orderID uint) (Order, error) {
	order, err := c.rest.RejectOrder(ctx, orderID)
	if err == nil {
		c.orders.Reconcile(order)
	}
	return order, err
}

// UpdateOrderStatus advances an order's lifecycle through REST.
func (c *Client) UpdateOrderStatus(ctx context.Context, orderID uint, status string) (Order, error) {
	order, err := c.rest.UpdateOrderStatus(ctx, orderID, status)
	if err == nil {
		c.orders.Reconcile(order)
	}
	return order, err
}

// RefreshOrders pulls a REST snapshot into the order feed.
func (c *Client) RefreshOrders(ctx context.Context) error {
	orders, err := c.rest.ListOrders(ctx)
	if err != nil {
		return err
	}

	c.orders.ReconcileSnapshot(orders)
	return nil
}

// CreateChat opens a support conversation and joins its room.
func (c *Client) CreateChat(ctx context.Context, req ChatCreateRequest) (ChatRoom, error) {
	room, err := c.rest.CreateChat(ctx, req)
	if err != nil {
		return ChatRoom{}, err
	}

	c.chats.RegisterRoom(room)
	c.rooms.MarkDesired(room.ChatID)
	return room, nil
}

// JoinChat registers a known room and subscribes to its events.
func (c *Client) JoinChat(room ChatRoom) {
	c.chats.RegisterRoom(room)
	c.rooms.MarkDesired(room.ChatID)
}

// LeaveChat unsubscribes from a room's events. The local log is retained.
func (c *Client) LeaveChat(chatID string) {
	c.rooms.Forget(chatID)
}

// AcceptChat claims a pending conversation for this staff session and joins
// its room.
func (c *Client) AcceptChat(ctx context.Context, chatID string) (ChatRoom, error) {
	room, err := c.rest.AcceptChat(ctx, chatID)
	if err != nil {
		return ChatRoom{}, err
	}

	c.chats.RegisterRoom(room)
	c.chats.MarkAccepted(chatID, room.AcceptedBy)
	c.rooms.MarkDesired(chatID)
	return room, nil
}

// SendMessage appends an optimistic echo, commits through REST, and collapses
// the acknowledgement into the pending entry by correlation id. Any realtime
// echo of the same message collapses the same way, so the log holds exactly
// one entry per logical message. The correlation id is returned even on
// error so an ErrUncertain outcome can be reconciled later.
func (c *Client) SendMessage(ctx context.Context, chatID, content string) (string, error) {
	senderType := SenderTypeCustomer
	if c.session.Role.IsStaff() {
		senderType = SenderTypeStaff
	}

	correlationID, err := c.chats.SendMessage(chatID, c.session.DisplayName, senderType, content)
	if err != nil {
		return "", err
	}

	confirmed, err := c.rest.PostMessage(ctx, chatID, ChatMessagePost{
		Sender:        c.session.DisplayName,
		SenderType:    senderType,
		Content:       content,
		CorrelationID: correlationID,
	})
	if err != nil {
		return correlationID, err
	}

	c.chats.IngestMessage(chatID, confirmed)
	return correlationID, nil
}

// EditMessage commits an edit through REST and applies it locally.
func (c *Client) EditMessage(ctx context.Context, chatID, messageID, content string) error {
	msg, err := c.rest.EditMessage(ctx, chatID, messageID, content)
	if err != nil {
		return err
	}

	c.chats.ApplyEdit(chatID, msg.MessageID, msg.Content)
	return nil
}

// DeleteMessage tombstones a message through REST and applies it locally.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID string) error {
	msg, err := c.rest.DeleteMessage(ctx, chatID, messageID)
	if err != nil {
		return err
	}

	c.chats.ApplyTombstone(chatID, msg.MessageID)
	return nil
}

// RefreshChat replays a room's history from REST, recovering messages
// delivered while the transport was down.
func (c *Client) RefreshChat(ctx context.Context, chatID string) error {
	history, err := c.rest.ChatHistory(ctx, chatID)
	if err != nil {
		return err
	}

	c.chats.ReplaceHistory(chatID, history.Messages)
	return nil
}

// SetTyping broadcasts this session's typing indicator for a chat.
func (c *Client) SetTyping(chatID string, isTyping bool) error {
	env, err := NewEnvelope(EventTypingStatus, TypingStatusPayload{
		ChatID:   chatID,
		Sender:   c.session.DisplayName,
		IsTyping: isTyping,
	})
	if err != nil {
		return err
	}

	return c.conn.Send(env)
}
