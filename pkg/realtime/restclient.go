package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const defaultPlacementTimeout = 10 * time.Second

// TokenSource supplies a fresh bearer token, used for the single retry after
// a 401 response.
type TokenSource func(ctx context.Context) (string, error)

// OrderRequest is the payload for placing an order.
type OrderRequest struct {
	CustomerName     string      `json:"customer_name"`
	CustomerEmail    string      `json:"customer_email,omitempty"`
	CustomerPhone    string      `json:"customer_phone,omitempty"`
	TableNumber      string      `json:"table_number"`
	Items            []OrderItem `json:"items"`
	PaymentMethod    string      `json:"payment_method,omitempty"`
	ConfirmDuplicate bool        `json:"confirm_duplicate"`
}

// ChatCreateRequest opens a new support conversation.
type ChatCreateRequest struct {
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email,omitempty"`
	OrderNumber   string `json:"order_number,omitempty"`
}

// ChatMessagePost commits a message through REST, the authoritative path.
type ChatMessagePost struct {
	Sender        string `json:"sender"`
	SenderType    string `json:"sender_type"`
	Content       string `json:"content"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

// ChatHistory bundles a room id with its chronological message log.
type ChatHistory struct {
	ChatID   string    `json:"chat_id"`
	Messages []Message `json:"messages"`
}

// duplicateOrderDetails mirrors the 409 payload returned by order placement.
type duplicateOrderDetails struct {
	IsDuplicate   bool  `json:"is_duplicate"`
	ExistingOrder Order `json:"existing_order"`
}

type apiResponse struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
	Details json.RawMessage `json:"details,omitempty"`
}

// RESTClient talks to the backend HTTP API. The realtime stream is a
// notification mechanism only; every state change commits through here.
type RESTClient struct {
	baseURL          string
	client           *http.Client
	refresh          TokenSource
	placementTimeout time.Duration
	logger           zerolog.Logger

	mu    sync.Mutex
	token string
}

// RESTOptions configures a RESTClient.
type RESTOptions struct {
	BaseURL          string
	Token            string
	TokenSource      TokenSource
	HTTPClient       *http.Client
	PlacementTimeout time.Duration
	Logger           zerolog.Logger
}

// NewRESTClient creates a client for the backend API.
func NewRESTClient(opts RESTOptions) *RESTClient {
	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	timeout := opts.PlacementTimeout
	if timeout <= 0 {
		timeout = defaultPlacementTimeout
	}

	return &RESTClient{
		baseURL:          strings.TrimRight(opts.BaseURL, "/"),
		client:           client,
		refresh:          opts.TokenSource,
		placementTimeout: timeout,
		logger:           opts.Logger.With().Str("component", "rest_client").Logger(),
		token:            opts.Token,
	}
}

// PlaceOrder places an order with a bounded timeout. A timeout resolves to
// ErrUncertain, never a silent drop: the order may exist server-side and the
// caller must re-query instead of resubmitting. A 409 returns the existing
// order alongside ErrDuplicateOrder for user confirmation.
func (c *RESTClient) PlaceOrder(ctx context.Context, req OrderRequest) (Order, error) {
	ctx, cancel := context.WithTimeout(ctx, c.placementTimeout)
	defer cancel()

	var order Order
	resp, status, err := c.do(ctx, http.MethodPost, "/order", req, &order)
	if err != nil {
		return Order{}, err
	}

	if status == http.StatusConflict {
		var dup duplicateOrderDetails
		if resp != nil && len(resp.Details) > 0 {
			if err := json.Unmarshal(resp.Details, &dup); err != nil {
				c.logger.Warn().Err(err).Msg("malformed duplicate order details")
			}
		}
		return dup.ExistingOrder, ErrDuplicateOrder
	}
	if status >= 400 {
		return Order{}, c.statusError(resp, status)
	}

	return order, nil
}

// SearchOrders looks orders up by order number, email, or phone.
func (c *RESTClient) SearchOrders(ctx context.Context, term string) ([]Order, error) {
	var orders []Order
	resp, status, err := c.do(ctx, http.MethodGet, "/order/search/"+url.PathEscape(term), nil, &orders)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, c.statusError(resp, status)
	}
	return orders, nil
}

// TrackOrder fetches the current state of one order.
func (c *RESTClient) TrackOrder(ctx context.Context, orderNumber string) (Order, error) {
	var order Order
	resp, status, err := c.do(ctx, http.MethodGet, "/order/"+url.PathEscape(orderNumber)+"/track", nil, &order)
	if err != nil {
		return Order{}, err
	}
	if status >= 400 {
		return Order{}, c.statusError(resp, status)
	}
	return order, nil
}

// ListOrders fetches the staff order feed snapshot.
func (c *RESTClient) ListOrders(ctx context.Context) ([]Order, error) {
	var orders []Order
	resp, status, err := c.do(ctx, http.MethodGet, "/restaurant/orders", nil, &orders)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, c.statusError(resp, status)
	}
	return orders, nil
}

// AcceptOrder claims a pending order for this staff session. Losing the race
// returns the server-confirmed assignment alongside ErrAlreadyAssigned.
func (c *RESTClient) AcceptOrder(ctx context.Context, orderID uint) (Order, error) {
	var order Order
	resp, status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/restaurant/orders/%d/accept", orderID), nil, &order)
	if err != nil {
		return Order{}, err
	}

	if status == http.StatusConflict {
		var current Order
		if resp != nil && len(resp.Details) > 0 {
			_ = json.Unmarshal(resp.Details, &current)
		}
		return current, ErrAlreadyAssigned
	}
	if status >= 400 {
		return Order{}, c.statusError(resp, status)
	}

	return order, nil
}

// RejectOrder moves a pending order to its rejected terminal state.
func (c *RESTClient) RejectOrder(ctx context.Context, orderID uint) (Order, error) {
	var order Order
	resp, status, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/restaurant/orders/%d/reject", orderID), nil, &order)
	if err != nil {
		return Order{}, err
	}

	if status == http.StatusConflict {
		var current Order
		if resp != nil && len(resp.Details) > 0 {
			_ = json.Unmarshal(resp.Details, &current)
		}
		return current, ErrAlreadyAssigned
	}
	if status >= 400 {
		return Order{}, c.statusError(resp, status)
	}

	return order, nil
}

// UpdateOrderStatus advances an order along its lifecycle. A 409 means the
// transition was stale.
func (c *RESTClient) UpdateOrderStatus(ctx context.Context, orderID uint, status string) (Order, error) {
	var order Order
	body := map[string]string{"status": status}
	resp, code, err := c.do(ctx, http.MethodPut, fmt.Sprintf("/restaurant/orders/%d/status", orderID), body, &order)
	if err != nil {
		return Order{}, err
	}

	if code == http.StatusConflict {
		return Order{}, ErrOutOfOrderTransition
	}
	if code >= 400 {
		return Order{}, c.statusError(resp, code)
	}

	return order, nil
}

// CreateChat opens a support conversation.
func (c *RESTClient) CreateChat(ctx context.Context, req ChatCreateRequest) (ChatRoom, error) {
	var room ChatRoom
	resp, status, err := c.do(ctx, http.MethodPost, "/chat/create", req, &room)
	if err != nil {
		return ChatRoom{}, err
	}
	if status >= 400 {
		return ChatRoom{}, c.statusError(resp, status)
	}
	return room, nil
}

// ChatHistory fetches the message log for a chat.
func (c *RESTClient) ChatHistory(ctx context.Context, chatID string) (ChatHistory, error) {
	var history ChatHistory
	resp, status, err := c.do(ctx, http.MethodGet, "/chat/"+url.PathEscape(chatID)+"/messages", nil, &history)
	if err != nil {
		return ChatHistory{}, err
	}
	if status >= 400 {
		return ChatHistory{}, c.statusError(resp, status)
	}
	return history, nil
}

// PostMessage commits a chat message.
func (c *RESTClient) PostMessage(ctx context.Context, chatID string, req ChatMessagePost) (Message, error) {
	var msg Message
	resp, status, err := c.do(ctx, http.MethodPost, "/chat/"+url.PathEscape(chatID)+"/messages", req, &msg)
	if err != nil {
		return Message{}, err
	}
	if status >= 400 {
		return Message{}, c.statusError(resp, status)
	}
	return msg, nil
}

// EditMessage replaces a message's content.
func (c *RESTClient) EditMessage(ctx context.Context, chatID, messageID, content string) (Message, error) {
	var msg Message
	body := map[string]string{"content": content}
	resp, status, err := c.do(ctx, http.MethodPut, "/chat/"+url.PathEscape(chatID)+"/messages/"+url.PathEscape(messageID), body, &msg)
	if err != nil {
		return Message{}, err
	}
	if status >= 400 {
		return Message{}, c.statusError(resp, status)
	}
	return msg, nil
}

// DeleteMessage tombstones a message.
func (c *RESTClient) DeleteMessage(ctx context.Context, chatID, messageID string) (Message, error) {
	var msg Message
	resp, status, err := c.do(ctx, http.MethodDelete, "/chat/"+url.PathEscape(chatID)+"/messages/"+url.PathEscape(messageID), nil, &msg)
	if err != nil {
		return Message{}, err
	}
	if status >= 400 {
		return Message{}, c.statusError(resp, status)
	}
	return msg, nil
}

// StaffChats lists the conversations visible to staff.
func (c *RESTClient) StaffChats(ctx context.Context) ([]ChatRoom, error) {
	var rooms []ChatRoom
	resp, status, err := c.do(ctx, http.MethodGet, "/restaurant/chat/staff/chats", nil, &rooms)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, c.statusError(resp, status)
	}
	return rooms, nil
}

// AcceptChat claims a pending conversation for this staff session.
func (c *RESTClient) AcceptChat(ctx context.Context, chatID string) (ChatRoom, error) {
	var room ChatRoom
	resp, status, err := c.do(ctx, http.MethodPost, "/restaurant/chat/"+url.PathEscape(chatID)+"/accept", nil, &room)
	if err != nil {
		return ChatRoom{}, err
	}

	if status == http.StatusConflict {
		return ChatRoom{}, ErrAlreadyAssigned
	}
	if status >= 400 {
		return ChatRoom{}, c.statusError(resp, status)
	}

	return room, nil
}

// do executes one request with the 401 single-retry policy. On a first 401
// the token source is asked for fresh credentials and the request is retried
// exactly once; a second 401 surfaces ErrUnauthorized. Timeouts map to
// ErrUncertain since the server-side effect is unknown.
func (c *RESTClient) do(ctx context.Context, method, path string, body, out any) (*apiResponse, int, error) {
	resp, status, err := c.doOnce(ctx, method, path, body, out)
	if err != nil {
		return nil, 0, err
	}

	if status != http.StatusUnauthorized {
		return resp, status, nil
	}

	if c.refresh == nil {
		return nil, status, ErrUnauthorized
	}

	token, err := c.refresh(ctx)
	if err != nil {
		return nil, status, ErrUnauthorized
	}
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()

	resp, status, err = c.doOnce(ctx, method, path, body, out)
	if err != nil {
		return nil, 0, err
	}
	if status == http.StatusUnauthorized {
		return nil, status, ErrUnauthorized
	}

	return resp, status, nil
}

func (c *RESTClient) doOnce(ctx context.Context, method, path string, body, out any) (*apiResponse, int, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, 0, err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api/v1"+path, reader)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	c.mu.Lock()
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	c.mu.Unlock()

	httpResp, err := c.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return nil, 0, ErrUncertain
		}
		return nil, 0, err
	}
	defer httpResp.Body.Close()

	var resp apiResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, httpResp.StatusCode, fmt.Errorf("decode response: %w", err)
	}

	if out != nil && len(resp.Data) > 0 {
		if err := json.Unmarshal(resp.Data, out); err != nil {
			return &resp, httpResp.StatusCode, fmt.Errorf("decode payload: %w", err)
		}
	}

	return &resp, httpResp.StatusCode, nil
}

func (c *RESTClient) statusError(resp *apiResponse, status int) error {
	message := "request failed"
	if resp != nil && resp.Message != "" {
		message = resp.Message
	}
	return fmt.Errorf("%s (status %d)", message, status)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr interface{ Timeout() bool }
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
