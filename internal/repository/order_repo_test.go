package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dinehub/realtime-core/internal/models"
)

func setupOrderRepo(t *testing.T) OrderRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Order{}))

	return NewOrderRepository(db)
}

func pendingOrder(number, phone, table string) models.Order {
	return models.Order{
		OrderNumber:   number,
		CustomerName:  "Maya",
		CustomerPhone: phone,
		TableNumber:   table,
		Items: []models.OrderLineItem{
			{Name: "Ramen", Quantity: 1, Price: 12.5},
		},
		TotalAmount: 12.5,
		Status:      models.OrderStatusPending,
	}
}

func TestClaimPendingHasExactlyOneWinner(t *testing.T) {
	repo := setupOrderRepo(t)
	ctx := context.Background()

	order := pendingOrder("1001", "0812", "T5")
	require.NoError(t, repo.Create(ctx, &order))

	won, err := repo.ClaimPending(ctx, order.ID, "alice")
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusAccepted, won.Status)
	require.Equal(t, "alice", won.AssignedTo)

	// The second claim finds no pending row to update.
	_, err = repo.ClaimPending(ctx, order.ID, "bob")
	require.ErrorIs(t, err, ErrNoRowsUpdated)

	current, err := repo.GetByID(ctx, order.ID)
	require.NoError(t, err)
	require.Equal(t, "alice", current.AssignedTo)
}

func TestTransitionStatusIsConditional(t *testing.T) {
	repo := setupOrderRepo(t)
	ctx := context.Background()

	order := pendingOrder("1002", "0812", "T5")
	require.NoError(t, repo.Create(ctx, &order))

	accepted, err := repo.ClaimPending(ctx, order.ID, "alice")
	require.NoError(t, err)

	preparing, err := repo.TransitionStatus(ctx, order.ID, accepted.Status, models.OrderStatusPreparing)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusPreparing, preparing.Status)

	// A transition conditioned on a stale current status matches nothing.
	_, err = repo.TransitionStatus(ctx, order.ID, models.OrderStatusAccepted, models.OrderStatusCompleted)
	require.ErrorIs(t, err, ErrNoRowsUpdated)

	completed, err := repo.TransitionStatus(ctx, order.ID, models.OrderStatusPreparing, models.OrderStatusCompleted)
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusCompleted, completed.Status)
}

func TestFindRecentMatchRespectsWindow(t *testing.T) {
	repo := setupOrderRepo(t)
	ctx := context.Background()

	order := pendingOrder("1003", "0813", "T2")
	require.NoError(t, repo.Create(ctx, &order))

	found, err := repo.FindRecentMatch(ctx, "0813", "T2", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, found.OrderNumber)

	_, err = repo.FindRecentMatch(ctx, "0813", "T2", time.Now().Add(time.Minute))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = repo.FindRecentMatch(ctx, "0999", "T2", time.Now().Add(-time.Minute))
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestSearchMatchesNumberEmailAndPhone(t *testing.T) {
	repo := setupOrderRepo(t)
	ctx := context.Background()

	order := pendingOrder("1004", "0814", "T3")
	order.CustomerEmail = "maya@example.com"
	require.NoError(t, repo.Create(ctx, &order))

	for _, term := range []string{"1004", "maya@example.com", "0814"} {
		results, err := repo.Search(ctx, term, 0)
		require.NoError(t, err)
		require.Len(t, results, 1, "term %q", term)
	}

	results, err := repo.Search(ctx, "nope", 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestGetByNumber(t *testing.T) {
	repo := setupOrderRepo(t)
	ctx := context.Background()

	order := pendingOrder("1005", "0815", "T4")
	require.NoError(t, repo.Create(ctx, &order))

	found, err := repo.GetByNumber(ctx, "1005")
	require.NoError(t, err)
	require.Equal(t, order.ID, found.ID)
	require.Len(t, found.Items, 1)
	require.Equal(t, "Ramen", found.Items[0].Name)
}
