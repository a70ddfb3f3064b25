package repository_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
)

func buildTransfer(dest, status string, lines ...*repository.TransferLine) *repository.Transfer {
	return &repository.Transfer{
		SourceWarehouseID: "warehouse-main",
		DestLocationID:    dest,
		Status:            status,
		Lines:             lines,
	}
}

func TestTransferRepository_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	butter := seedIngredient(t, ctx)
	repo := repository.NewTransferRepository(suite.DB)

	tr := buildTransfer("kitchen-1", repository.TransferStatusPending,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(3)},
		&repository.TransferLine{IngredientID: butter.ID, QuantityOrdered: decimal.NewFromInt(2)},
	)
	require.NoError(t, repo.Create(ctx, tr))
	assert.NotEmpty(t, tr.ID)

	got, err := repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, "kitchen-1", got.DestLocationID)
	assert.Equal(t, repository.TransferStatusPending, got.Status)
	require.Len(t, got.Lines, 2)
	assert.True(t, got.Lines[0].QuantityReceived.IsZero())
}

func TestTransferRepository_UpdateStatus_Guarded(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewTransferRepository(suite.DB)

	tr := buildTransfer("kitchen-1", repository.TransferStatusPending,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(3)})
	require.NoError(t, repo.Create(ctx, tr))

	require.NoError(t, repo.UpdateStatus(ctx, tr.ID, repository.TransferStatusPending, repository.TransferStatusInTransit))

	// The second dispatch finds the row no longer pending.
	err := repo.UpdateStatus(ctx, tr.ID, repository.TransferStatusPending, repository.TransferStatusInTransit)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestTransferRepository_CancelFrom(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewTransferRepository(suite.DB)

	cancellable := []string{
		repository.TransferStatusDraft,
		repository.TransferStatusPending,
		repository.TransferStatusInTransit,
	}

	tr := buildTransfer("kitchen-1", repository.TransferStatusInTransit,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(3)})
	require.NoError(t, repo.Create(ctx, tr))

	from, err := repo.CancelFrom(ctx, tr.ID, cancellable)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferStatusInTransit, from)

	got, err := repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferStatusCancelled, got.Status)

	// A cancelled transfer cannot be cancelled again.
	_, err = repo.CancelFrom(ctx, tr.ID, cancellable)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidTransfer))

	_, err = repo.CancelFrom(ctx, "00000000-0000-0000-0000-000000000000", cancellable)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestTransferRepository_Receive(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewTransferRepository(suite.DB)
	txnRepo := repository.NewTransactionRepository(suite.DB)

	// Seed warehouse stock so the ledger tells a coherent story.
	appendTransaction(t, ctx, salmon.ID, "warehouse-main", repository.KindDeliveryIn, decimal.NewFromInt(10))

	tr := buildTransfer("kitchen-1", repository.TransferStatusInTransit,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(3)})
	require.NoError(t, repo.Create(ctx, tr))

	tr.Lines[0].QuantityReceived = decimal.NewFromInt(3)
	txns := []*repository.InventoryTransaction{
		{IngredientID: salmon.ID, LocationID: "warehouse-main", Kind: repository.KindTransferOut, Quantity: decimal.NewFromInt(-3), Reference: tr.ID},
		{IngredientID: salmon.ID, LocationID: "kitchen-1", Kind: repository.KindTransferIn, Quantity: decimal.NewFromInt(3), Reference: tr.ID},
	}
	require.NoError(t, repo.Receive(ctx, tr, txns))
	assert.Equal(t, repository.TransferStatusReceived, tr.Status)

	got, err := repo.GetByID(ctx, tr.ID)
	require.NoError(t, err)
	assert.Equal(t, repository.TransferStatusReceived, got.Status)
	require.Len(t, got.Lines, 1)
	assert.True(t, got.Lines[0].QuantityReceived.Equal(decimal.NewFromInt(3)))

	onHand, err := txnRepo.ProjectStock(ctx, salmon.ID, "warehouse-main", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(7)))

	onHand, err = txnRepo.ProjectStock(ctx, salmon.ID, "kitchen-1", time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, onHand.Equal(decimal.NewFromInt(3)))

	// Receiving again must not double-book the movement.
	err = repo.Receive(ctx, tr, txns)
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrConflict))
}

func TestTransferRepository_ListOpen(t *testing.T) {
	ctx := context.Background()
	suite.TruncateStockTables(t, ctx)

	salmon := seedIngredient(t, ctx)
	repo := repository.NewTransferRepository(suite.DB)

	pending := buildTransfer("kitchen-1", repository.TransferStatusPending,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(3)})
	require.NoError(t, repo.Create(ctx, pending))

	inTransit := buildTransfer("bar-1", repository.TransferStatusInTransit,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(4)})
	require.NoError(t, repo.Create(ctx, inTransit))

	cancelled := buildTransfer("kitchen-1", repository.TransferStatusCancelled,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(5)})
	require.NoError(t, repo.Create(ctx, cancelled))

	// Drafts hold no reservations, so the rebuild must not see them
	draft := buildTransfer("bar-1", repository.TransferStatusDraft,
		&repository.TransferLine{IngredientID: salmon.ID, QuantityOrdered: decimal.NewFromInt(6)})
	require.NoError(t, repo.Create(ctx, draft))

	open, err := repo.ListOpen(ctx)
	require.NoError(t, err)
	require.Len(t, open, 2)

	ids := []string{open[0].ID, open[1].ID}
	assert.Contains(t, ids, pending.ID)
	assert.Contains(t, ids, inTransit.ID)
	for _, tr := range open {
		require.Len(t, tr.Lines, 1, "open transfers carry their lines for reservation rebuild")
	}
}
