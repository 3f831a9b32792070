package realtime

import "errors"

// Sentinel errors surfaced by the realtime core. Transport failures are
// recovered internally by the connection manager; only the terminal or
// caller-actionable conditions below escape to callers.
var (
	// ErrConnectionTimeout indicates the initial connect did not complete
	// within the handshake deadline.
	ErrConnectionTimeout = errors.New("realtime: connection timeout")

	// ErrConnectionLost indicates the transport dropped. The connection
	// manager keeps retrying with backoff while the session lives, so this
	// is observed through state changes rather than returned from commands.
	ErrConnectionLost = errors.New("realtime: connection lost")

	// ErrAlreadyAssigned is returned to the losing side of an order-accept
	// race. The server-confirmed assignee is reconciled into the order feed.
	ErrAlreadyAssigned = errors.New("realtime: order already assigned")

	// ErrOutOfOrderTransition is returned when a status event would move an
	// order backwards in its lifecycle. The stale event is logged and dropped.
	ErrOutOfOrderTransition = errors.New("realtime: out of order status transition")

	// ErrDuplicateOrder is returned when placement matches a recent order and
	// the caller has not confirmed the duplicate. The existing order is
	// returned alongside so the caller can ask the user.
	ErrDuplicateOrder = errors.New("realtime: duplicate order")

	// ErrUnauthorized is returned after the single credential refresh retry
	// also fails. The session should be torn down.
	ErrUnauthorized = errors.New("realtime: unauthorized")

	// ErrUncertain is returned when a request timed out with unknown
	// server-side effect. The caller must re-query rather than resubmit.
	ErrUncertain = errors.New("realtime: outcome uncertain")

	// ErrSessionClosed is returned by commands issued after Close.
	ErrSessionClosed = errors.New("realtime: session closed")

	// ErrUnknownChat is returned when a chat id has not been registered.
	ErrUnknownChat = errors.New("realtime: unknown chat")
)
