package realtime

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestChats(t *testing.T) *ChatSessions {
	t.Helper()
	chats := NewChatSessions(0, zerolog.Nop())
	chats.RegisterRoom(ChatRoom{ChatID: "room-1", CustomerName: "Maya", Status: "active"})
	return chats
}

func serverMessage(id, sender, senderType, content, correlationID string) Message {
	return Message{
		MessageID:     id,
		ChatID:        "room-1",
		Sender:        sender,
		SenderType:    senderType,
		Content:       content,
		CorrelationID: correlationID,
		CreatedAt:     time.Now(),
	}
}

func TestChatSessionCollapsesOwnEchoByCorrelationID(t *testing.T) {
	chats := newTestChats(t)

	correlationID, err := chats.SendMessage("room-1", "Maya", SenderTypeCustomer, "hello")
	require.NoError(t, err)
	require.Len(t, chats.Messages("room-1"), 1)
	require.True(t, chats.Messages("room-1")[0].Pending)

	// REST acknowledgement collapses into the pending entry.
	ack := serverMessage("msg-1", "Maya", SenderTypeCustomer, "hello", correlationID)
	require.False(t, chats.IngestMessage("room-1", ack))

	// The realtime echo of the same message is also absorbed.
	require.False(t, chats.IngestMessage("room-1", ack))

	messages := chats.Messages("room-1")
	require.Len(t, messages, 1)
	require.Equal(t, "msg-1", messages[0].MessageID)
	require.False(t, messages[0].Pending)
}

func TestChatSessionPreservesArrivalOrderForOtherParties(t *testing.T) {
	chats := newTestChats(t)

	correlationID, err := chats.SendMessage("room-1", "Maya", SenderTypeCustomer, "first")
	require.NoError(t, err)

	require.True(t, chats.IngestMessage("room-1", serverMessage("msg-2", "staff", SenderTypeStaff, "second", "")))
	require.False(t, chats.IngestMessage("room-1", serverMessage("msg-1", "Maya", SenderTypeCustomer, "first", correlationID)))
	require.True(t, chats.IngestMessage("room-1", serverMessage("msg-3", "staff", SenderTypeStaff, "third", "")))

	messages := chats.Messages("room-1")
	require.Len(t, messages, 3)
	require.Equal(t, "msg-1", messages[0].MessageID)
	require.Equal(t, "msg-2", messages[1].MessageID)
	require.Equal(t, "msg-3", messages[2].MessageID)
}

func TestChatSessionEditIsIdempotent(t *testing.T) {
	chats := newTestChats(t)
	chats.IngestMessage("room-1", serverMessage("msg-1", "staff", SenderTypeStaff, "typo", ""))

	chats.ApplyEdit("room-1", "msg-1", "fixed")
	once := chats.Messages("room-1")

	chats.ApplyEdit("room-1", "msg-1", "fixed")
	twice := chats.Messages("room-1")

	require.Equal(t, once, twice)
	require.Equal(t, "fixed", twice[0].Content)
	require.True(t, twice[0].IsEdited)
}

func TestChatSessionTombstoneIsIdempotent(t *testing.T) {
	chats := newTestChats(t)
	chats.IngestMessage("room-1", serverMessage("msg-1", "Maya", SenderTypeCustomer, "remove me", ""))

	chats.ApplyTombstone("room-1", "msg-1")
	once := chats.Messages("room-1")

	chats.ApplyTombstone("room-1", "msg-1")
	twice := chats.Messages("room-1")

	require.Equal(t, once, twice)
	require.Len(t, twice, 1)
	require.True(t, twice[0].IsDeleted)
	require.Equal(t, DeletedMessagePlaceholder, twice[0].Content)
}

func TestChatSessionSystemMessagesAreImmutable(t *testing.T) {
	chats := newTestChats(t)
	chats.IngestMessage("room-1", serverMessage("sys-1", "system", SenderTypeSystem, "Maya started a chat", ""))

	chats.ApplyEdit("room-1", "sys-1", "tampered")
	chats.ApplyTombstone("room-1", "sys-1")

	messages := chats.Messages("room-1")
	require.Equal(t, "Maya started a chat", messages[0].Content)
	require.False(t, messages[0].IsDeleted)
}

func TestChatSessionEditAfterTombstoneIsNoOp(t *testing.T) {
	chats := newTestChats(t)
	chats.IngestMessage("room-1", serverMessage("msg-1", "Maya", SenderTypeCustomer, "secret", ""))

	chats.ApplyTombstone("room-1", "msg-1")
	chats.ApplyEdit("room-1", "msg-1", "resurrected")

	require.Equal(t, DeletedMessagePlaceholder, chats.Messages("room-1")[0].Content)
}

func TestChatSessionTypingAutoClears(t *testing.T) {
	chats := NewChatSessions(50*time.Millisecond, zerolog.Nop())
	chats.RegisterRoom(ChatRoom{ChatID: "room-1", Status: "active"})

	chats.SetTyping("room-1", "staff", true)
	require.Equal(t, []string{"staff"}, chats.Typing("room-1"))

	// No explicit stop event ever arrives; the indicator clears on its own.
	require.Eventually(t, func() bool {
		return len(chats.Typing("room-1")) == 0
	}, time.Second, 10*time.Millisecond)
}

func TestChatSessionTypingStopClearsImmediately(t *testing.T) {
	chats := NewChatSessions(time.Hour, zerolog.Nop())
	chats.RegisterRoom(ChatRoom{ChatID: "room-1", Status: "active"})

	chats.SetTyping("room-1", "staff", true)
	chats.SetTyping("room-1", "staff", false)

	require.Empty(t, chats.Typing("room-1"))
}

func TestChatSessionSendToUnknownRoomFails(t *testing.T) {
	chats := NewChatSessions(0, zerolog.Nop())

	_, err := chats.SendMessage("nope", "Maya", SenderTypeCustomer, "hello")
	require.ErrorIs(t, err, ErrUnknownChat)
}

func TestChatSessionReplaceHistoryKeepsUnconfirmedPending(t *testing.T) {
	chats := newTestChats(t)

	confirmedCorr, err := chats.SendMessage("room-1", "Maya", SenderTypeCustomer, "made it")
	require.NoError(t, err)
	pendingCorr, err := chats.SendMessage("room-1", "Maya", SenderTypeCustomer, "still in flight")
	require.NoError(t, err)

	history := []Message{
		serverMessage("msg-1", "staff", SenderTypeStaff, "welcome", ""),
		serverMessage("msg-2", "Maya", SenderTypeCustomer, "made it", confirmedCorr),
		serverMessage("msg-3", "staff", SenderTypeStaff, "sent during outage", ""),
	}
	chats.ReplaceHistory("room-1", history)

	messages := chats.Messages("room-1")
	require.Len(t, messages, 4)
	require.Equal(t, "msg-1", messages[0].MessageID)
	require.Equal(t, "msg-2", messages[1].MessageID)
	require.Equal(t, "msg-3", messages[2].MessageID)
	require.Equal(t, pendingCorr, messages[3].CorrelationID)
	require.True(t, messages[3].Pending)
}

func TestChatSessionManyMessagesStayUnique(t *testing.T) {
	chats := newTestChats(t)

	for i := 0; i < 50; i++ {
		id := fmt.Sprintf("msg-%d", i)
		chats.IngestMessage("room-1", serverMessage(id, "staff", SenderTypeStaff, id, ""))
		chats.IngestMessage("room-1", serverMessage(id, "staff", SenderTypeStaff, id, ""))
	}

	require.Len(t, chats.Messages("room-1"), 50)
}
