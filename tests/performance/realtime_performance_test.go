package performance_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/dinehub/realtime-core/internal/dto"
	"github.com/dinehub/realtime-core/internal/handler"
	"github.com/dinehub/realtime-core/internal/middleware"
	"github.com/dinehub/realtime-core/internal/service"
)

func TestRealtimeWebsocketRoundtripP95Under250ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	realtimeService := service.NewRealtimeService(nil, "", nil, 0, validator.New(), zerolog.Nop())
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, zerolog.Nop())
	realtimeHandler.Register(app.Group("/api/v1"))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/ws?user_name=perf&user_type=customer"
	clients := 300
	durations := make([]time.Duration, 0, clients)

	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	for i := 0; i < clients; i++ {
		chatID := "perf-" + strconv.Itoa(i)
		start := time.Now()

		conn, resp, err := dialer.Dial(url, http.Header{"X-Correlation-ID": {"perf-" + strconv.Itoa(i)}})
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}

		// Join a room and echo a typing indicator through the hub; the reply
		// proves the full dispatch path, not just the upgrade.
		if err := writeEnvelope(conn, dto.EventJoinChat, dto.JoinChatPayload{ChatID: chatID, UserType: "customer", UserName: "perf"}); err != nil {
			t.Fatalf("join failed: %v", err)
		}
		if err := writeEnvelope(conn, dto.EventTypingStatus, dto.TypingStatusPayload{ChatID: chatID, Sender: "perf", IsTyping: true}); err != nil {
			t.Fatalf("typing publish failed: %v", err)
		}

		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		var echoed dto.RealtimeEnvelope
		if err := conn.ReadJSON(&echoed); err != nil {
			t.Fatalf("typing echo never arrived for client %d: %v", i, err)
		}
		if echoed.Event != dto.EventTypingStatus {
			t.Fatalf("expected typingStatus echo, got %s", echoed.Event)
		}

		_ = conn.Close()
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 250*time.Millisecond {
		t.Fatalf("expected websocket roundtrip P95 <= 250ms, got %s", p95)
	}
}

func TestRealtimeBroadcastFanoutP95Under300ms(t *testing.T) {
	app := fiber.New()
	app.Use(middleware.CorrelationID())

	realtimeService := service.NewRealtimeService(nil, "", nil, 0, validator.New(), zerolog.Nop())
	realtimeHandler := handler.NewRealtimeHandler(realtimeService, zerolog.Nop())
	realtimeHandler.Register(app.Group("/api/v1"))

	baseURL, shutdown := startFiberServer(t, app)
	defer shutdown()

	url := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/v1/ws?user_name=staff&user_type=staff"
	dialer := websocket.Dialer{HandshakeTimeout: 3 * time.Second}

	listeners := 50
	conns := make([]*websocket.Conn, 0, listeners)
	defer func() {
		for _, conn := range conns {
			_ = conn.Close()
		}
	}()

	for i := 0; i < listeners; i++ {
		conn, resp, err := dialer.Dial(url, nil)
		if err != nil {
			t.Fatalf("websocket dial failed: %v", err)
		}
		if resp != nil {
			_ = resp.Body.Close()
		}
		if err := writeEnvelope(conn, dto.EventJoinOrders, nil); err != nil {
			t.Fatalf("joinOrders failed: %v", err)
		}
		conns = append(conns, conn)
	}

	// Joins are handled asynchronously by each reader loop.
	time.Sleep(100 * time.Millisecond)

	rounds := 20
	durations := make([]time.Duration, 0, rounds)

	for round := 0; round < rounds; round++ {
		start := time.Now()
		realtimeService.Publish(context.Background(), service.RoomOrders, dto.EventNewOrder, dto.OrderStatusPayload{
			OrderID:     uint(round + 1),
			OrderNumber: strconv.Itoa(1000 + round),
			Status:      "pending",
		})

		for i, conn := range conns {
			_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
			var envelope dto.RealtimeEnvelope
			if err := conn.ReadJSON(&envelope); err != nil {
				t.Fatalf("listener %d missed broadcast %d: %v", i, round, err)
			}
			if envelope.Event != dto.EventNewOrder {
				t.Fatalf("expected newOrder broadcast, got %s", envelope.Event)
			}
		}
		durations = append(durations, time.Since(start))
	}

	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })
	p95 := percentile(durations, 0.95)

	if p95 > 300*time.Millisecond {
		t.Fatalf("expected fanout P95 <= 300ms, got %s", p95)
	}
}

func writeEnvelope(conn *websocket.Conn, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(dto.RealtimeEnvelope{Event: event, Data: data})
}

func percentile(values []time.Duration, pct float64) time.Duration {
	if len(values) == 0 {
		return 0
	}
	index := int(math.Ceil(pct*float64(len(values)))) - 1
	if index < 0 {
		index = 0
	}
	if index >= len(values) {
		index = len(values) - 1
	}
	return values[index]
}

func startFiberServer(t *testing.T, app *fiber.App) (string, func()) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to create listener: %v", err)
	}

	done := make(chan struct{})
	go func() {
		if err := app.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			t.Logf("fiber listener stopped: %v", err)
		}
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)

	shutdown := func() {
		_ = app.Shutdown()
		_ = listener.Close()
		select {
		case <-done:
		case <-time.After(100 * time.Millisecond):
		}
	}

	return "http://" + listener.Addr().String(), shutdown
}
