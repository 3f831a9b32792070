package realtime

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// OrderFeed is the authoritative in-memory view of orders relevant to this
// session, reconciled between REST snapshots and realtime deltas. Orders are
// keyed by id; entries are never removed (terminal states are retained for
// history).
type OrderFeed struct {
	logger zerolog.Logger

	mu     sync.RWMutex
	orders map[uint]Order
}

// NewOrderFeed creates an empty order feed.
func NewOrderFeed(logger zerolog.Logger) *OrderFeed {
	return &OrderFeed{
		logger: logger.With().Str("component", "order_feed").Logger(),
		orders: make(map[uint]Order),
	}
}

// IngestRealtime applies a newOrder event. Insert-or-update by id: when a
// REST snapshot already produced the same order the event only refreshes the
// entry, so snapshot-then-event and event-then-snapshot converge.
func (f *OrderFeed) IngestRealtime(order Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	existing, ok := f.orders[order.ID]
	if ok && !StatusAdvances(existing.Status, order.Status) && existing.Status != order.Status {
		// Keep the fresher local status, refresh everything else.
		order.Status = existing.Status
		order.AssignedTo = existing.AssignedTo
	}
	f.orders[order.ID] = order
}

// ApplyStatusTransition applies a lifecycle event. Transitions that move an
// order backwards are rejected with ErrOutOfOrderTransition and logged, not
// applied.
func (f *OrderFeed) ApplyStatusTransition(orderID uint, status, assignedTo string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	order, ok := f.orders[orderID]
	if !ok {
		// Transition for an order this session has never seen. Record a
		// placeholder so a later snapshot fills in the details.
		f.orders[orderID] = Order{ID: orderID, Status: status, AssignedTo: assignedTo}
		return nil
	}

	if !StatusAdvances(order.Status, status) {
		f.logger.Warn().
			Uint("order_id", orderID).
			Str("current", order.Status).
			Str("rejected", status).
			Msg("stale status transition dropped")
		return ErrOutOfOrderTransition
	}

	order.Status = status
	if assignedTo != "" {
		order.AssignedTo = assignedTo
	}
	f.orders[orderID] = order
	return nil
}

// ReconcileSnapshot merges a REST snapshot by key: snapshot entries
// overwrite local state, locally-known orders absent from the snapshot are
// retained. The server feed is append-only, so absence means the snapshot
// was scoped, not that the order vanished.
func (f *OrderFeed) ReconcileSnapshot(orders []Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, order := range orders {
		f.orders[order.ID] = order
	}
}

// Reconcile force-overwrites a single order with server-confirmed state,
// regardless of the monotonic guard. Used after a lost accept race, where
// the backend's answer is authoritative.
func (f *OrderFeed) Reconcile(order Order) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.orders[order.ID] = order
}

// Get returns the order with the given id.
func (f *OrderFeed) Get(orderID uint) (Order, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	order, ok := f.orders[orderID]
	return order, ok
}

// ListOrders returns every known order newest-first. The ordering is stable
// under repeated snapshot reconciliation: ties on creation time break by id.
func (f *OrderFeed) ListOrders() []Order {
	f.mu.RLock()
	defer f.mu.RUnlock()

	out := make([]Order, 0, len(f.orders))
	for _, order := range f.orders {
		out = append(out, order)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}
