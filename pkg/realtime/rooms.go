package realtime

import (
	"sync"

	"github.com/rs/zerolog"
)

// RoomOrders is the global room staff sessions join for order lifecycle
// events and chat requests.
const RoomOrders = "orders"

const chatRoomPrefix = "chat:"

// ChatRoomID returns the tracker's room id for a chat.
func ChatRoomID(chatID string) string {
	return chatRoomPrefix + chatID
}

// roomTracker maintains the set of rooms the session must be joined to and
// reconciles it against what the transport has actually joined. All join
// logic lives here; after any reconnect one reconciliation pass converges
// the joined set to the desired set.
type roomTracker struct {
	session Session
	send    func(Envelope) error
	logger  zerolog.Logger

	mu      sync.Mutex
	desired map[string]struct{}
	joined  map[string]struct{}
	online  bool
}

func newRoomTracker(session Session, send func(Envelope) error, logger zerolog.Logger) *roomTracker {
	t := &roomTracker{
		session: session,
		send:    send,
		logger:  logger.With().Str("component", "room_tracker").Logger(),
		desired: make(map[string]struct{}),
		joined:  make(map[string]struct{}),
	}

	for _, room := range DesiredRooms(session) {
		t.desired[room] = struct{}{}
	}

	return t
}

// DesiredRooms computes the base room set for a session role. Staff roles
// subscribe to the global order stream; chat rooms are added as they become
// active via MarkDesired.
func DesiredRooms(session Session) []string {
	if session.Role.IsStaff() {
		return []string{RoomOrders}
	}
	return nil
}

// MarkDesired adds a chat room to the desired set and joins it immediately
// when the transport is open.
func (t *roomTracker) MarkDesired(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.desired[ChatRoomID(chatID)] = struct{}{}
	if t.online {
		t.reconcileLocked()
	}
}

// Forget removes a chat room from the desired set and leaves it.
func (t *roomTracker) Forget(chatID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.desired, ChatRoomID(chatID))
	if t.online {
		t.reconcileLocked()
	}
}

// Desired returns a snapshot of the desired room set.
func (t *roomTracker) Desired() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.desired))
	for room := range t.desired {
		out = append(out, room)
	}
	return out
}

// Joined returns a snapshot of the rooms joined on the current transport.
func (t *roomTracker) Joined() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]string, 0, len(t.joined))
	for room := range t.joined {
		out = append(out, room)
	}
	return out
}

// OnStateChange reacts to transport transitions. A drop resets the joined
// set; an open (initial connect and every reconnect) triggers one
// reconciliation pass over the full desired set.
func (t *roomTracker) OnStateChange(change StateChange) {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch change.State {
	case StateOpen:
		t.online = true
		t.joined = make(map[string]struct{})
		t.reconcileLocked()
	case StateClosed, StateConnecting:
		t.online = false
		t.joined = make(map[string]struct{})
	}
}

// reconcileLocked issues joins for desired-but-not-joined rooms and leaves
// for joined-but-no-longer-desired rooms. Rooms whose join command could not
// be sent stay out of the joined set and are retried on the next pass.
func (t *roomTracker) reconcileLocked() {
	for room := range t.desired {
		if _, ok := t.joined[room]; ok {
			continue
		}
		if err := t.joinRoom(room); err != nil {
			t.logger.Warn().Err(err).Str("room", room).Msg("join failed")
			continue
		}
		t.joined[room] = struct{}{}
	}

	for room := range t.joined {
		if _, ok := t.desired[room]; ok {
			continue
		}
		if err := t.leaveRoom(room); err != nil {
			t.logger.Warn().Err(err).Str("room", room).Msg("leave failed")
			continue
		}
		delete(t.joined, room)
	}
}

func (t *roomTracker) joinRoom(room string) error {
	if room == RoomOrders {
		env, err := NewEnvelope(EventJoinOrders, nil)
		if err != nil {
			return err
		}
		return t.send(env)
	}

	userType := SenderTypeCustomer
	if t.session.Role.IsStaff() {
		userType = SenderTypeStaff
	}

	env, err := NewEnvelope(EventJoinChat, JoinChatPayload{
		ChatID:   room[len(chatRoomPrefix):],
		UserType: userType,
		UserName: t.session.DisplayName,
	})
	if err != nil {
		return err
	}
	return t.send(env)
}

func (t *roomTracker) leaveRoom(room string) error {
	if room == RoomOrders {
		return nil
	}

	env, err := NewEnvelope(EventLeaveChat, JoinChatPayload{ChatID: room[len(chatRoomPrefix):]})
	if err != nil {
		return err
	}
	return t.send(env)
}
