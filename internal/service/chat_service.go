package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
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

const chatCacheTTL = 30 * time.Minute

var (
	// ErrChatNotFound indicates the chat room does not exist.
	ErrChatNotFound = errors.New("chat not found")
	// ErrChatAlreadyAccepted indicates another staff session claimed the chat.
	ErrChatAlreadyAccepted = errors.New("chat already accepted")
	// ErrMessageNotFound indicates the message does not exist in the room.
	ErrMessageNotFound = errors.New("message not found")
	// ErrMessageImmutable indicates an edit or delete targeted a message that
	// cannot change, e.g. a system message or an already-deleted one.
	ErrMessageImmutable = errors.New("message cannot be modified")
)

// ChatService owns chat rooms and their message logs. Every mutation commits
// through the repository first and is then announced on the realtime hub.
type ChatService interface {
	Create(ctx context.Context, req dto.ChatCreateRequest) (dto.ChatRoomResponse, error)
	History(ctx context.Context, chatID string, before time.Time, limit int) (dto.ChatHistoryResponse, error)
	PostMessage(ctx context.Context, chatID string, req dto.ChatMessageCreateRequest) (dto.ChatMessageResponse, error)
	EditMessage(ctx context.Context, chatID, messageID, content string) (dto.ChatMessageResponse, error)
	DeleteMessage(ctx context.Context, chatID, messageID string) (dto.ChatMessageResponse, error)
	StaffChats(ctx context.Context) ([]dto.ChatRoomResponse, error)
	Accept(ctx context.Context, chatID, staffID string) (dto.ChatRoomResponse, error)

	// MessageSink and RoomGreeter wiring for the realtime hub.
	IngestRealtimeMessage(ctx context.Context, payload dto.SendMessagePayload) error
	LastRoomEvent(ctx context.Context, chatID string) (dto.RealtimeEnvelope, bool)
}

type chatService struct {
	repo        repository.ChatRepository
	redis       *redis.Client
	cachePrefix string
	realtime    RealtimeService
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
	tracer      trace.Tracer
}

// NewChatService constructs the chat service.
func NewChatService(repo repository.ChatRepository, redisClient *redis.Client, channelBase string, realtime RealtimeService, validate *validator.Validate, logger zerolog.Logger) ChatService {
	sanitizer := bluemonday.UGCPolicy()
	sanitizer.AllowElements("br")

	cachePrefix := ""
	if channelBase != "" {
		cachePrefix = channelBase + ":chat:last"
	}

	return &chatService{
		repo:        repo,
		redis:       redisClient,
		cachePrefix: cachePrefix,
		realtime:    realtime,
		validator:   validate,
		sanitizer:   sanitizer,
		logger:      logger.With().Str("component", "chat_service").Logger(),
		tracer:      otel.Tracer("github.com/dinehub/realtime-core/internal/service/chat"),
	}
}

func (s *chatService) Create(ctx context.Context, req dto.ChatCreateRequest) (dto.ChatRoomResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	customerName := strings.TrimSpace(s.sanitizer.Sanitize(req.CustomerName))
	if customerName == "" {
		return dto.ChatRoomResponse{}, fmt.Errorf("customer name empty after sanitization")
	}

	room := models.ChatRoom{
		ChatID:        uuid.NewString(),
		CustomerName:  customerName,
		CustomerEmail: strings.TrimSpace(req.CustomerEmail),
		OrderNumber:   strings.TrimSpace(req.OrderNumber),
		Status:        models.ChatStatusPending,
	}

	if err := s.repo.CreateRoom(ctx, &room); err != nil {
		return dto.ChatRoomResponse{}, err
	}

	// A system entry anchors the conversation so staff joining later can see
	// the order context without scrolling REST history.
	systemContent := fmt.Sprintf("%s started a chat", customerName)
	if room.OrderNumber != "" {
		systemContent = fmt.Sprintf("%s started a chat about order #%s", customerName, room.OrderNumber)
	}
	if _, err := s.saveAndBroadcast(ctx, room.ChatID, models.ChatMessage{
		MessageID:  uuid.NewString(),
		ChatID:     room.ChatID,
		Sender:     "system",
		SenderType: models.SenderTypeSystem,
		Content:    systemContent,
	}); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", room.ChatID).Msg("failed to record chat opening message")
	}

	response := dto.NewChatRoomResponse(room)
	s.realtime.Publish(ctx, RoomOrders, dto.EventNewChatAvailable, response)

	return response, nil
}

func (s *chatService) History(ctx context.Context, chatID string, before time.Time, limit int) (dto.ChatHistoryResponse, error) {
	if _, err := s.room(ctx, chatID); err != nil {
		return dto.ChatHistoryResponse{}, err
	}

	messages, err := s.repo.ListMessages(ctx, chatID, before, limit)
	if err != nil {
		return dto.ChatHistoryResponse{}, err
	}

	return dto.ChatHistoryResponse{
		ChatID:   chatID,
		Messages: dto.NewChatMessageResponseSlice(messages),
	}, nil
}

func (s *chatService) PostMessage(ctx context.Context, chatID string, req dto.ChatMessageCreateRequest) (dto.ChatMessageResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	if _, err := s.room(ctx, chatID); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(req.Content))
	if clean == "" {
		return dto.ChatMessageResponse{}, fmt.Errorf("message content empty after sanitization")
	}

	attrs := []attribute.KeyValue{
		attribute.String("chat.chat_id", chatID),
		attribute.String("chat.sender_type", req.SenderType),
	}
	if req.CorrelationID != "" {
		attrs = append(attrs, attribute.String("correlation_id", req.CorrelationID))
	}

	spanCtx, span := s.tracer.Start(ctx, "chat.post_message", trace.WithAttributes(attrs...))
	defer span.End()

	response, err := s.saveAndBroadcast(spanCtx, chatID, models.ChatMessage{
		MessageID:     uuid.NewString(),
		ChatID:        chatID,
		Sender:        strings.TrimSpace(req.Sender),
		SenderType:    req.SenderType,
		Content:       clean,
		CorrelationID: strings.TrimSpace(req.CorrelationID),
	})
	if err != nil {
		span.RecordError(err)
		return dto.ChatMessageResponse{}, err
	}

	observability.ChatMessages().WithLabelValues(req.SenderType).Inc()
	return response, nil
}

func (s *chatService) EditMessage(ctx context.Context, chatID, messageID, content string) (dto.ChatMessageResponse, error) {
	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return dto.ChatMessageResponse{}, fmt.Errorf("message content empty after sanitization")
	}

	message, err := s.repo.EditMessage(ctx, chatID, messageID, clean)
	if err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			if _, lookupErr := s.repo.GetMessage(ctx, chatID, messageID); lookupErr != nil {
				return dto.ChatMessageResponse{}, ErrMessageNotFound
			}
			return dto.ChatMessageResponse{}, ErrMessageImmutable
		}
		return dto.ChatMessageResponse{}, err
	}

	s.realtime.Publish(ctx, ChatRoomName(chatID), dto.EventMessageEdited, dto.MessageEditedPayload{
		ChatID:    chatID,
		MessageID: messageID,
		Content:   message.Content,
		EditedAt:  message.UpdatedAt,
	})
	s.cacheLastMessage(ctx, dto.NewChatMessageResponse(message))

	return dto.NewChatMessageResponse(message), nil
}

func (s *chatService) DeleteMessage(ctx context.Context, chatID, messageID string) (dto.ChatMessageResponse, error) {
	message, err := s.repo.TombstoneMessage(ctx, chatID, messageID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.ChatMessageResponse{}, ErrMessageNotFound
		}
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			return dto.ChatMessageResponse{}, ErrMessageImmutable
		}
		return dto.ChatMessageResponse{}, err
	}

	s.realtime.Publish(ctx, ChatRoomName(chatID), dto.EventMessageDeleted, dto.MessageDeletedPayload{
		ChatID:    chatID,
		MessageID: messageID,
	})

	return dto.NewChatMessageResponse(message), nil
}

func (s *chatService) StaffChats(ctx context.Context) ([]dto.ChatRoomResponse, error) {
	rooms, err := s.repo.ListRooms(ctx, 0)
	if err != nil {
		return nil, err
	}
	return dto.NewChatRoomResponseSlice(rooms), nil
}

func (s *chatService) Accept(ctx context.Context, chatID, staffID string) (dto.ChatRoomResponse, error) {
	if strings.TrimSpace(staffID) == "" {
		return dto.ChatRoomResponse{}, fmt.Errorf("staff identity is required")
	}

	room, err := s.repo.ClaimRoom(ctx, chatID, staffID)
	if err != nil {
		if errors.Is(err, repository.ErrNoRowsUpdated) {
			if _, lookupErr := s.repo.GetRoom(ctx, chatID); lookupErr != nil {
				return dto.ChatRoomResponse{}, ErrChatNotFound
			}
			return dto.ChatRoomResponse{}, ErrChatAlreadyAccepted
		}
		return dto.ChatRoomResponse{}, err
	}

	if _, err := s.saveAndBroadcast(ctx, chatID, models.ChatMessage{
		MessageID:  uuid.NewString(),
		ChatID:     chatID,
		Sender:     "system",
		SenderType: models.SenderTypeSystem,
		Content:    fmt.Sprintf("%s joined the chat", staffID),
	}); err != nil {
		s.logger.Warn().Err(err).Str("chat_id", chatID).Msg("failed to record chat accept message")
	}

	payload := dto.ChatAcceptedPayload{ChatID: chatID, AcceptedBy: staffID}
	s.realtime.Publish(ctx, ChatRoomName(chatID), dto.EventChatAccepted, payload)
	s.realtime.Publish(ctx, RoomOrders, dto.EventChatAccepted, payload)

	return dto.NewChatRoomResponse(room), nil
}

// IngestRealtimeMessage lets older clients post through the websocket; it is
// translated into the same commit path as the REST endpoint.
func (s *chatService) IngestRealtimeMessage(ctx context.Context, payload dto.SendMessagePayload) error {
	_, err := s.PostMessage(ctx, payload.ChatID, dto.ChatMessageCreateRequest{
		Sender:        payload.Sender,
		SenderType:    payload.SenderType,
		Content:       payload.Content,
		CorrelationID: payload.CorrelationID,
	})
	return err
}

// LastRoomEvent replays the cached last message to a freshly joined client.
func (s *chatService) LastRoomEvent(ctx context.Context, chatID string) (dto.RealtimeEnvelope, bool) {
	if s.redis == nil || s.cachePrefix == "" {
		return dto.RealtimeEnvelope{}, false
	}

	key := fmt.Sprintf("%s:%s", s.cachePrefix, chatID)
	result, err := s.redis.Get(ctx, key).Result()
	if err != nil {
		return dto.RealtimeEnvelope{}, false
	}

	var message dto.ChatMessageResponse
	if err := json.Unmarshal([]byte(result), &message); err != nil {
		s.logger.Warn().Err(err).Msg("failed to unmarshal cached chat message")
		return dto.RealtimeEnvelope{}, false
	}

	envelope, err := dto.NewRealtimeEnvelope(dto.EventNewMessage, dto.MessageEventPayload{
		ChatID:  chatID,
		Message: message,
	})
	if err != nil {
		return dto.RealtimeEnvelope{}, false
	}
	return envelope, true
}

func (s *chatService) saveAndBroadcast(ctx context.Context, chatID string, message models.ChatMessage) (dto.ChatMessageResponse, error) {
	if err := s.repo.SaveMessage(ctx, &message); err != nil {
		return dto.ChatMessageResponse{}, err
	}

	response := dto.NewChatMessageResponse(message)
	s.cacheLastMessage(ctx, response)
	s.realtime.Publish(ctx, ChatRoomName(chatID), dto.EventNewMessage, dto.MessageEventPayload{
		ChatID:  chatID,
		Message: response,
	})

	return response, nil
}

func (s *chatService) cacheLastMessage(ctx context.Context, message dto.ChatMessageResponse) {
	if s.redis == nil || s.cachePrefix == "" {
		return
	}

	payload, err := json.Marshal(message)
	if err != nil {
		s.logger.Warn().Err(err).Msg("failed to marshal chat message for cache")
		return
	}

	key := fmt.Sprintf("%s:%s", s.cachePrefix, message.ChatID)
	if err := s.redis.Set(ctx, key, payload, chatCacheTTL).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to cache chat message")
	}
}

func (s *chatService) room(ctx context.Context, chatID string) (models.ChatRoom, error) {
	room, err := s.repo.GetRoom(ctx, chatID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.ChatRoom{}, ErrChatNotFound
		}
		return models.ChatRoom{}, err
	}
	return room, nil
}
