package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// ConnState describes the transport lifecycle observed by the room tracker.
type ConnState string

const (
	StateConnecting ConnState = "connecting"
	StateOpen       ConnState = "open"
	StateClosed     ConnState = "closed"
)

// StateChange is emitted whenever the underlying transport changes state.
type StateChange struct {
	State ConnState
	Err   error
	At    time.Time
}

const (
	defaultHandshakeTimeout = 20 * time.Second
	reconnectBase           = time.Second
	reconnectCap            = 30 * time.Second
	outboundBufferSize      = 32
	inboundBufferSize       = 64
	stateBufferSize         = 16
)

// connManager owns the single websocket transport for a session. It dials,
// reads, writes, and on unexpected drops retries with exponential backoff
// for as long as the session lives. Event registration happens once per
// session, not per transport, so reconnects never duplicate subscriptions.
type connManager struct {
	url       string
	header    http.Header
	dialer    *websocket.Dialer
	logger    zerolog.Logger
	handshake time.Duration

	outbound chan Envelope
	inbound  chan Envelope
	states   chan StateChange

	startOnce sync.Once
	closeOnce sync.Once
	done      chan struct{}
	firstOpen chan struct{}
	openOnce  sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnManager(url string, header http.Header, handshake time.Duration, logger zerolog.Logger) *connManager {
	if handshake <= 0 {
		handshake = defaultHandshakeTimeout
	}

	return &connManager{
		url:       url,
		header:    header,
		dialer:    &websocket.Dialer{HandshakeTimeout: handshake},
		logger:    logger.With().Str("component", "conn_manager").Logger(),
		handshake: handshake,
		outbound:  make(chan Envelope, outboundBufferSize),
		inbound:   make(chan Envelope, inboundBufferSize),
		states:    make(chan StateChange, stateBufferSize),
		done:      make(chan struct{}),
		firstOpen: make(chan struct{}),
	}
}

// Connect starts the transport loop and blocks until the first dial succeeds
// or the handshake window elapses. Reconnects after that are automatic and
// surface only as state changes.
func (m *connManager) Connect(ctx context.Context) error {
	m.startOnce.Do(func() { go m.run() })

	timer := time.NewTimer(m.handshake)
	defer timer.Stop()

	select {
	case <-m.firstOpen:
		return nil
	case <-timer.C:
		return ErrConnectionTimeout
	case <-ctx.Done():
		return ErrConnectionTimeout
	case <-m.done:
		return ErrSessionClosed
	}
}

// Send queues an envelope for the writer. Envelopes queued while the
// transport is down are flushed after reconnect.
func (m *connManager) Send(env Envelope) error {
	select {
	case <-m.done:
		return ErrSessionClosed
	default:
	}

	select {
	case m.outbound <- env:
		return nil
	case <-m.done:
		return ErrSessionClosed
	default:
		return ErrConnectionLost
	}
}

// Inbound returns the stream of server events.
func (m *connManager) Inbound() <-chan Envelope { return m.inbound }

// States returns the stream of transport state changes.
func (m *connManager) States() <-chan StateChange { return m.states }

// Close tears the transport down and stops all retries.
func (m *connManager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		if m.conn != nil {
			_ = m.conn.Close()
		}
		m.mu.Unlock()
	})
}

func (m *connManager) run() {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = reconnectBase
	bo.MaxInterval = reconnectCap
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-m.done:
			return
		default:
		}

		m.emitState(StateConnecting, nil)

		conn, resp, err := m.dialer.Dial(m.url, m.header)
		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		if err != nil {
			wait := bo.NextBackOff()
			m.logger.Warn().Err(err).Dur("retry_in", wait).Msg("dial failed")
			select {
			case <-m.done:
				return
			case <-time.After(wait):
			}
			continue
		}

		bo.Reset()
		m.mu.Lock()
		m.conn = conn
		m.mu.Unlock()
		m.openOnce.Do(func() { close(m.firstOpen) })
		m.emitState(StateOpen, nil)

		writerStop := make(chan struct{})
		go m.writeLoop(conn, writerStop)
		readErr := m.readLoop(conn)
		close(writerStop)
		_ = conn.Close()

		m.mu.Lock()
		m.conn = nil
		m.mu.Unlock()

		select {
		case <-m.done:
			return
		default:
		}

		m.logger.Warn().Err(readErr).Msg("transport dropped")
		m.emitState(StateClosed, ErrConnectionLost)
	}
}

func (m *connManager) readLoop(conn *websocket.Conn) error {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return err
		}

		select {
		case m.inbound <- env:
		case <-m.done:
			return nil
		}
	}
}

func (m *connManager) writeLoop(conn *websocket.Conn, stop <-chan struct{}) {
	for {
		select {
		case env := <-m.outbound:
			if err := conn.WriteJSON(env); err != nil {
				m.logger.Warn().Err(err).Str("event", env.Event).Msg("write failed")
				return
			}
		case <-stop:
			return
		case <-m.done:
			return
		}
	}
}

func (m *connManager) emitState(state ConnState, err error) {
	change := StateChange{State: state, Err: err, At: time.Now()}
	select {
	case m.states <- change:
	default:
		m.logger.Warn().Str("state", string(state)).Msg("state change dropped, consumer lagging")
	}
}
