package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const defaultTypingClearAfter = 4 * time.Second

// ChatSessions holds the per-room message logs for a session. Locally sent
// messages carry a client-generated correlation id; the REST acknowledgement
// and any realtime echo of the same message collapse into one entry by that
// id, so a logical message is never rendered twice.
type ChatSessions struct {
	logger    zerolog.Logger
	typingTTL time.Duration
	mu        sync.Mutex
	rooms     map[string]*chatRoomState
	onTyping  func(chatID, sender string, isTyping bool)
}

type chatRoomState struct {
	room          ChatRoom
	messages      []Message
	byID          map[string]int
	byCorrelation map[string]int
	typing        map[string]*time.Timer
}

// NewChatSessions creates an empty chat aggregate. typingTTL bounds how long
// a typing indicator stays lit without activity; a stop event is not
// required, since the other party may drop without sending one.
func NewChatSessions(typingTTL time.Duration, logger zerolog.Logger) *ChatSessions {
	if typingTTL <= 0 {
		typingTTL = defaultTypingClearAfter
	}

	return &ChatSessions{
		logger:    logger.With().Str("component", "chat_sessions").Logger(),
		typingTTL: typingTTL,
		rooms:     make(map[string]*chatRoomState),
	}
}

// OnTypingChanged registers a callback fired whenever a typing indicator
// turns on or off, including auto-clears.
func (s *ChatSessions) OnTypingChanged(fn func(chatID, sender string, isTyping bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onTyping = fn
}

// RegisterRoom records a chat room, updating metadata when it is already
// known.
func (s *ChatSessions) RegisterRoom(room ChatRoom) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[room.ChatID]
	if ok {
		state.room = room
		return
	}

	s.rooms[room.ChatID] = &chatRoomState{
		room:          room,
		byID:          make(map[string]int),
		byCorrelation: make(map[string]int),
		typing:        make(map[string]*time.Timer),
	}
}

// Room returns the metadata for a chat.
func (s *ChatSessions) Room(chatID string) (ChatRoom, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return ChatRoom{}, false
	}
	return state.room, true
}

// Rooms returns every registered chat room.
func (s *ChatSessions) Rooms() []ChatRoom {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]ChatRoom, 0, len(s.rooms))
	for _, state := range s.rooms {
		out = append(out, state.room)
	}
	return out
}

// MarkAccepted records that staff claimed the conversation.
func (s *ChatSessions) MarkAccepted(chatID, acceptedBy string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}
	state.room.Status = "active"
	state.room.AcceptedBy = acceptedBy
}

// SendMessage appends an optimistic local echo and returns the correlation
// id the caller attaches to the commit request. The entry is marked pending
// until the server confirms it.
func (s *ChatSessions) SendMessage(chatID, sender, senderType, content string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return "", ErrUnknownChat
	}

	correlationID := uuid.NewString()
	msg := Message{
		MessageID:     "pending-" + correlationID,
		ChatID:        chatID,
		Sender:        sender,
		SenderType:    senderType,
		Content:       content,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
		Pending:       true,
	}

	state.messages = append(state.messages, msg)
	idx := len(state.messages) - 1
	state.byID[msg.MessageID] = idx
	state.byCorrelation[correlationID] = idx

	return correlationID, nil
}

// IngestMessage applies a message that arrived from the server, collapsing
// it into the pending local echo when the correlation id matches. Messages
// already applied by id are a no-op; everything else appends in arrival
// order. Returns true only when the message was newly appended, i.e. it came
// from another party rather than confirming one of our own.
func (s *ChatSessions) IngestMessage(chatID string, msg Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		// A message for a room the router has not registered yet. Create a
		// shell room so history is not lost.
		s.rooms[chatID] = &chatRoomState{
			room:          ChatRoom{ChatID: chatID, Status: "active"},
			byID:          make(map[string]int),
			byCorrelation: make(map[string]int),
			typing:        make(map[string]*time.Timer),
		}
		state = s.rooms[chatID]
	}

	if msg.CorrelationID != "" {
		if idx, ok := state.byCorrelation[msg.CorrelationID]; ok {
			previous := state.messages[idx]
			delete(state.byID, previous.MessageID)
			msg.Pending = false
			state.messages[idx] = msg
			state.byID[msg.MessageID] = idx
			return false
		}
	}

	if _, ok := state.byID[msg.MessageID]; ok {
		return false
	}

	state.messages = append(state.messages, msg)
	idx := len(state.messages) - 1
	state.byID[msg.MessageID] = idx
	if msg.CorrelationID != "" {
		state.byCorrelation[msg.CorrelationID] = idx
	}
	return true
}

// ApplyEdit replaces a message's content in place. Idempotent by message id;
// system and tombstoned messages are immutable.
func (s *ChatSessions) ApplyEdit(chatID, messageID, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}
	idx, ok := state.byID[messageID]
	if !ok {
		return
	}

	msg := state.messages[idx]
	if msg.SenderType == SenderTypeSystem || msg.IsDeleted {
		return
	}

	msg.Content = content
	msg.IsEdited = true
	state.messages[idx] = msg
}

// ApplyTombstone soft-deletes a message, replacing its content with the
// placeholder. Applying the same tombstone twice is a no-op.
func (s *ChatSessions) ApplyTombstone(chatID, messageID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}
	idx, ok := state.byID[messageID]
	if !ok {
		return
	}

	msg := state.messages[idx]
	if msg.IsDeleted {
		return
	}
	if msg.SenderType == SenderTypeSystem {
		return
	}

	msg.IsDeleted = true
	msg.Content = DeletedMessagePlaceholder
	state.messages[idx] = msg
}

// SetTyping updates the typing indicator for a sender. An active indicator
// auto-clears after the inactivity window even if no stop event arrives.
func (s *ChatSessions) SetTyping(chatID, sender string, isTyping bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}

	if timer, ok := state.typing[sender]; ok {
		timer.Stop()
		delete(state.typing, sender)
	}

	if !isTyping {
		s.notifyTypingLocked(chatID, sender, false)
		return
	}

	state.typing[sender] = time.AfterFunc(s.typingTTL, func() {
		s.clearTyping(chatID, sender)
	})
	s.notifyTypingLocked(chatID, sender, true)
}

func (s *ChatSessions) clearTyping(chatID, sender string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}
	if _, ok := state.typing[sender]; !ok {
		return
	}

	delete(state.typing, sender)
	s.notifyTypingLocked(chatID, sender, false)
}

func (s *ChatSessions) notifyTypingLocked(chatID, sender string, isTyping bool) {
	if s.onTyping == nil {
		return
	}
	fn := s.onTyping
	go fn(chatID, sender, isTyping)
}

// Typing returns the senders currently marked as typing in a chat.
func (s *ChatSessions) Typing(chatID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return nil
	}

	out := make([]string, 0, len(state.typing))
	for sender := range state.typing {
		out = append(out, sender)
	}
	return out
}

// Messages returns a copy of the room's log in append order.
func (s *ChatSessions) Messages(chatID string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return nil
	}

	out := make([]Message, len(state.messages))
	copy(out, state.messages)
	return out
}

// ReplaceHistory swaps the room's log for a server-fetched history, keeping
// any still-pending local echoes whose correlation id the server has not
// confirmed. Used after reconnect so messages delivered during the outage
// are recovered.
func (s *ChatSessions) ReplaceHistory(chatID string, history []Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state, ok := s.rooms[chatID]
	if !ok {
		return
	}

	pending := make([]Message, 0)
	for _, msg := range state.messages {
		if msg.Pending {
			pending = append(pending, msg)
		}
	}

	state.messages = nil
	state.byID = make(map[string]int)
	state.byCorrelation = make(map[string]int)

	for _, msg := range history {
		if _, ok := state.byID[msg.MessageID]; ok {
			continue
		}
		state.messages = append(state.messages, msg)
		idx := len(state.messages) - 1
		state.byID[msg.MessageID] = idx
		if msg.CorrelationID != "" {
			state.byCorrelation[msg.CorrelationID] = idx
		}
	}

	for _, msg := range pending {
		if _, ok := state.byCorrelation[msg.CorrelationID]; ok {
			continue
		}
		state.messages = append(state.messages, msg)
		idx := len(state.messages) - 1
		state.byID[msg.MessageID] = idx
		state.byCorrelation[msg.CorrelationID] = idx
	}
}
