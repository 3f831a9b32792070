package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/dinehub/realtime-core/internal/dto"
	"github.com/dinehub/realtime-core/internal/models"
	"github.com/dinehub/realtime-core/internal/observability"
	"github.com/dinehub/realtime-core/internal/repository"
)

var (
	// ErrDuplicateOrder indicates a matching order was placed within the
	// duplicate window and the caller has not confirmed the repeat.
	ErrDuplicateOrder = errors.New("duplicate order within window")
	// ErrAlreadyAssigned indicates another staff session won the accept race.
	ErrAlreadyAssigned = errors.New("order already assigned")
	// ErrOutOfOrderTransition indicates a stale or backwards status change.
	ErrOutOfOrderTransition = errors.New("out of order status transition")
	// ErrOrderNotFound indicates the order does not exist.
	ErrOrderNotFound = errors.New("order not found")
)

// OrderService owns order placement and the lifecycle state machine. The
// database is the single authority for transitions; the realtime layer only
// announces what was committed.
type OrderService interface {
	Place(ctx context.Context, req dto.OrderCreateRequest) (dto.OrderResponse, error)
	Accept(ctx context.Context, orderID uint, staffID string) (dto.OrderResponse, error)
	Reject(ctx context.Context, orderID uint, staffID string) (dto.OrderResponse, error)
	UpdateStatus(ctx context.Context, orderID uint, status string) (dto.OrderResponse, error)
	Track(ctx context.Context, orderNumber string) (dto.OrderResponse, error)
	Search(ctx context.Context, term string) ([]dto.OrderResponse, error)
	ListRecent(ctx context.Context) ([]dto.OrderResponse, error)
}

type orderService struct {
	repo             repository.OrderRepository
	redis            *redis.Client
	dedupPrefix      string
	duplicateWindow  time.Duration
	placementTimeout time.Duration
	realtime         RealtimeService
	validator        *validator.Validate
	sanitizer        *bluemonday.Policy
	logger           zerolog.Logger
	tracer           trace.Tracer
}

// NewOrderService constructs the order service.
func NewOrderService(repo repository.OrderRepository, redisClient *redis.Client, channelBase string, duplicateWindow, placementTimeout time.Duration, realtime RealtimeService, validate *validator.Validate, logger zerolog.Logger) OrderService {
	dedupPrefix := ""
	if channelBase != "" {
		dedupPrefix = channelBase + ":orders:dedup"
	}
	if duplicateWindow <= 0 {
		duplicateWindow = 2 * time.Minute
	}
	if placementTimeout <= 0 {
		placementTimeout = 10 * time.Second
	}

	return &orderService{
		repo:             repo,
		redis:            redisClient,
		dedupPrefix:      dedupPrefix,
		duplicateWindow:  duplicateWindow,
		placementTimeout: placementTimeout,
		realtime:         realtime,
		validator:        validate,
		sanitizer:        bluemonday.StrictPolicy(),
		logger:           logger.With().Str("component", "order_service").Logger(),
		tracer:           otel.Tracer("github.com/dinehub/realtime-core/internal/service/order"),
	}
}

func (s *orderService) Place(ctx context.Context, req dto.OrderCreateRequest) (dto.OrderResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.OrderResponse{}, err
	}

	customerName := strings.TrimSpace(s.sanitizer.Sanitize(req.CustomerName))
	if customerName == "" {
		return dto.OrderResponse{}, fmt.Errorf("customer name empty after sanitization")
	}

	// Placement is bounded: past the budget the caller must treat the outcome
	// as uncertain and re-query rather than resubmit.
	ctx, cancel := context.WithTimeout(ctx, s.placementTimeout)
	defer cancel()

	spanCtx, span := s.tracer.Start(ctx, "orders.place", trace.WithAttributes(
		attribute.String("order.table_number", req.TableNumber),
		attribute.Int("order.item_count", len(req.Items)),
	))
	defer span.End()

	if !req.ConfirmDuplicate {
		if existing, found := s.findDuplicate(spanCtx, req); found {
			observability.OrdersPlaced().WithLabelValues("duplicate").Inc()
			return dto.NewOrderResponse(existing), ErrDuplicateOrder
		}
	}

	items := make([]models.OrderLineItem, 0, len(req.Items))
	total := 0.0
	for _, item := range req.Items {
		items = append(items, models.OrderLineItem{
			Name:     strings.TrimSpace(item.Name),
			Quantity: item.Quantity,
			Price:    item.Price,
			Notes:    strings.TrimSpace(item.Notes),
		})
		total += item.Price * float64(item.Quantity)
	}

	order := models.Order{
		OrderNumber:   newOrderNumber(),
		CustomerName:  customerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		TableNumber:   strings.TrimSpace(req.TableNumber),
		Items:         items,
		TotalAmount:   total,
		PaymentMethod: req.PaymentMethod,
		Status:        models.OrderStatusPending,
	}

	if err := s.repo.Create(spanCtx, &order); err != nil {
		span.RecordError(err)
		observability.OrdersPlaced().WithLabelValues("error").Inc()
		return dto.OrderResponse{}, err
	}

	s.rememberFingerprint(spanCtx, req)

	response := dto.NewOrderResponse(order)
	s.realtime.Publish(spanCtx, RoomOrders, dto.EventNewOrder, response)
	observability.OrdersPlaced().WithLabelValues("confirmed").Inc()

	return response, nil
}

func (s *orderService) Accept(ctx context.Context, orderID uint, staffID string) (dto.OrderResponse, error) {
	if strings.TrimSpace(staffID) == "" {
		return dto.OrderResponse{}, fmt.Errorf("staff identity is required")
	}

	spanCtx, span := s.tracer.Start(ctx, "orders.accept", trace.WithAttributes(
		attribute.Int("order.id", int(orderID)),
		attribute.String("order.staff_id", staffID),
	))
	defer span.End()

	order, err := s.repo.ClaimPending(spanCtx, orderID, staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			// The conditional update matched nothing: either the order is
			// gone or another session claimed it first.
			current, lookupErr := s.repo.GetByID(spanCtx, orderID)
			if lookupErr != nil {
				if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
					return dto.OrderResponse{}, ErrOrderNotFound
				}
				return dto.OrderResponse{}, lookupErr
			}
			return dto.NewOrderResponse(current), ErrAlreadyAssigned
		}
		span.RecordError(err)
		return dto.OrderResponse{}, err
	}

	response := dto.NewOrderResponse(order)
	s.realtime.Publish(spanCtx, RoomOrders, dto.EventOrderAccepted, dto.OrderStatusPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		AssignedTo:  order.AssignedTo,
	})
	observability.OrderTransitions().WithLabelValues(models.OrderStatusAccepted).Inc()

	return response, nil
}

func (s *orderService) Reject(ctx context.Context, orderID uint, staffID string) (dto.OrderResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "orders.reject", trace.WithAttributes(
		attribute.Int("order.id", int(orderID)),
	))
	defer span.End()

	order, err := s.repo.TransitionStatus(spanCtx, orderID, models.OrderStatusPending, models.OrderStatusRejected)
	if err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			current, lookupErr := s.repo.GetByID(spanCtx, orderID)
			if lookupErr != nil {
				if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
					return dto.OrderResponse{}, ErrOrderNotFound
				}
				return dto.OrderResponse{}, lookupErr
			}
			return dto.NewOrderResponse(current), ErrAlreadyAssigned
		}
		span.RecordError(err)
		return dto.OrderResponse{}, err
	}

	response := dto.NewOrderResponse(order)
	s.realtime.Publish(spanCtx, RoomOrders, dto.EventOrderRejected, dto.OrderStatusPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
	})
	observability.OrderTransitions().WithLabelValues(models.OrderStatusRejected).Inc()

	return response, nil
}

func (s *orderService) UpdateStatus(ctx context.Context, orderID uint, status string) (dto.OrderResponse, error) {
	if !models.KnownOrderStatus(status) {
		return dto.OrderResponse{}, fmt.Errorf("unknown order status %q", status)
	}

	current, err := s.repo.GetByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OrderResponse{}, ErrOrderNotFound
		}
		return dto.OrderResponse{}, err
	}

	if !models.StatusAdvances(current.Status, status) {
		s.logger.Warn().
			Uint("order_id", orderID).
			Str("current", current.Status).
			Str("requested", status).
			Msg("rejected out-of-order status transition")
		return dto.NewOrderResponse(current), ErrOutOfOrderTransition
	}

	order, err := s.repo.TransitionStatus(ctx, orderID, current.Status, status)
	if err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			// State moved under us between the read and the update.
			return dto.NewOrderResponse(current), ErrOutOfOrderTransition
		}
		return dto.OrderResponse{}, err
	}

	response := dto.NewOrderResponse(order)
	s.realtime.Publish(ctx, RoomOrders, dto.EventOrderStatusUpdated, dto.OrderStatusPayload{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		AssignedTo:  order.AssignedTo,
	})
	observability.OrderTransitions().WithLabelValues(status).Inc()

	return response, nil
}

func (s *orderService) Track(ctx context.Context, orderNumber string) (dto.OrderResponse, error) {
	order, err := s.repo.GetByNumber(ctx, strings.TrimSpace(orderNumber))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.OrderResponse{}, ErrOrderNotFound
		}
		return dto.OrderResponse{}, err
	}
	return dto.NewOrderResponse(order), nil
}

func (s *orderService) Search(ctx context.Context, term string) ([]dto.OrderResponse, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, fmt.Errorf("search term is required")
	}

	orders, err := s.repo.Search(ctx, term, 0)
	if err != nil {
		return nil, err
	}
	return dto.NewOrderResponseSlice(orders), nil
}

func (s *orderService) ListRecent(ctx context.Context) ([]dto.OrderResponse, error) {
	orders, err := s.repo.ListRecent(ctx, 0)
	if err != nil {
		return nil, err
	}
	return dto.NewOrderResponseSlice(orders), nil
}

// findDuplicate applies the duplicate policy: same customer phone, same
// table, same item set, within the configured window. Redis holds the hot
// fingerprint; the database query is the fallback when redis is absent.
func (s *orderService) findDuplicate(ctx context.Context, req dto.OrderCreateRequest) (models.Order, bool) {
	if s.redis != nil && s.dedupPrefix != "" {
		key := fmt.Sprintf("%s:%s", s.dedupPrefix, fingerprint(req))
		exists, err := s.redis.Exists(ctx, key).Result()
		if err != nil {
			s.logger.Warn().Err(err).Msg("duplicate fingerprint lookup failed")
		} else if exists == 0 {
			return models.Order{}, false
		}
	}

	since := time.Now().Add(-s.duplicateWindow)
	existing, err := s.repo.FindRecentMatch(ctx, strings.TrimSpace(req.CustomerPhone), strings.TrimSpace(req.TableNumber), since)
	if err != nil {
		return models.Order{}, false
	}
	return existing, true
}

func (s *orderService) rememberFingerprint(ctx context.Context, req dto.OrderCreateRequest) {
	if s.redis == nil || s.dedupPrefix == "" {
		return
	}

	key := fmt.Sprintf("%s:%s", s.dedupPrefix, fingerprint(req))
	if err := s.redis.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), s.duplicateWindow).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to store duplicate fingerprint")
	}
}

// fingerprint produces a stable digest of the fields the duplicate policy
// compares. Item order does not matter.
func fingerprint(req dto.OrderCreateRequest) string {
	lines := make([]string, 0, len(req.Items))
	for _, item := range req.Items {
		lines = append(lines, fmt.Sprintf("%s x%d", strings.ToLower(strings.TrimSpace(item.Name)), item.Quantity))
	}
	sort.Strings(lines)

	digest := sha256.Sum256([]byte(strings.Join([]string{
		strings.TrimSpace(req.CustomerPhone),
		strings.TrimSpace(req.TableNumber),
		strings.Join(lines, "|"),
	}, "#")))
	return hex.EncodeToString(digest[:16])
}

// newOrderNumber produces a short human-facing order number. Uniqueness is
// enforced by the database index; collisions within the same second are
// avoided by the random suffix.
func newOrderNumber() string {
	suffix := strings.ToUpper(uuid.NewString()[:4])
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), suffix)
}
