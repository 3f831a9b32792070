package realtime

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(*http.Request) bool { return true },
}

func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestConnManagerConnectAndEcho(t *testing.T) {
	received := make(chan Envelope, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return
		}
		received <- env

		_ = conn.WriteJSON(Envelope{Event: EventNewOrder})
		time.Sleep(time.Second)
	}))
	t.Cleanup(server.Close)

	manager := newConnManager(wsURL(server), nil, 5*time.Second, zerolog.Nop())
	t.Cleanup(manager.Close)

	require.NoError(t, manager.Connect(context.Background()))

	env, err := NewEnvelope(EventJoinOrders, nil)
	require.NoError(t, err)
	require.NoError(t, manager.Send(env))

	select {
	case got := <-received:
		require.Equal(t, EventJoinOrders, got.Event)
	case <-time.After(time.Second):
		t.Fatal("server never received the envelope")
	}

	select {
	case got := <-manager.Inbound():
		require.Equal(t, EventNewOrder, got.Event)
	case <-time.After(time.Second):
		t.Fatal("client never received the inbound event")
	}
}

func TestConnManagerConnectTimeout(t *testing.T) {
	// Plain HTTP endpoint: every websocket handshake fails, so the first
	// open never happens.
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	manager := newConnManager(wsURL(server), nil, 200*time.Millisecond, zerolog.Nop())
	t.Cleanup(manager.Close)

	err := manager.Connect(context.Background())
	require.ErrorIs(t, err, ErrConnectionTimeout)
}

func TestConnManagerReconnectsAfterDrop(t *testing.T) {
	var mu sync.Mutex
	accepted := 0

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}

		mu.Lock()
		accepted++
		first := accepted == 1
		mu.Unlock()

		if first {
			// Drop the first transport immediately to force a reconnect.
			conn.Close()
			return
		}

		defer conn.Close()
		time.Sleep(2 * time.Second)
	}))
	t.Cleanup(server.Close)

	manager := newConnManager(wsURL(server), nil, 5*time.Second, zerolog.Nop())
	t.Cleanup(manager.Close)

	require.NoError(t, manager.Connect(context.Background()))

	var states []ConnState
	deadline := time.After(5 * time.Second)
	for {
		var change StateChange
		select {
		case change = <-manager.States():
		case <-deadline:
			t.Fatalf("reconnect never completed, states seen: %v", states)
		}
		states = append(states, change.State)

		if change.State == StateClosed {
			require.ErrorIs(t, change.Err, ErrConnectionLost)
		}

		// Initial open, drop, then a second open on the new transport.
		opens := 0
		for _, s := range states {
			if s == StateOpen {
				opens++
			}
		}
		if opens >= 2 {
			return
		}
	}
}

func TestConnManagerSendAfterClose(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		time.Sleep(time.Second)
	}))
	t.Cleanup(server.Close)

	manager := newConnManager(wsURL(server), nil, 5*time.Second, zerolog.Nop())
	require.NoError(t, manager.Connect(context.Background()))
	manager.Close()

	env, err := NewEnvelope(EventJoinOrders, nil)
	require.NoError(t, err)
	require.ErrorIs(t, manager.Send(env), ErrSessionClosed)
}
