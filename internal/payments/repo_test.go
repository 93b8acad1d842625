package payments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jemo-app/jemo-backend/pkg/db/models"
	"github.com/jemo-app/jemo-backend/pkg/enums"
	"github.com/jemo-app/jemo-backend/pkg/pagination"
)

func seedRepoIntent(t *testing.T, repo Repository, userID, productID uuid.UUID, mutate func(*models.PaymentIntent)) *models.PaymentIntent {
	t.Helper()
	intent := &models.PaymentIntent{
		ID:                uuid.New(),
		UserID:            userID,
		ProductID:         productID,
		Quantity:          1,
		ProductSubtotal:   5000,
		DeliveryFee:       1000,
		TotalAmount:       6000,
		Operator:          enums.OperatorMTN,
		CustomerPhone:     "+237670000000",
		AppTransactionRef: AppRefPrefix + uuid.NewString(),
		Status:            enums.PaymentIntentStatusInitiated,
		ExpiresAt:         time.Now().Add(30 * time.Minute),
	}
	if mutate != nil {
		mutate(intent)
	}
	require.NoError(t, repo.Create(context.Background(), intent))
	return intent
}

func TestRepositoryMarkUsedFirstWriterWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	intent := seedRepoIntent(t, repo, uuid.New(), uuid.New(), nil)
	firstOrder := uuid.New()
	secondOrder := uuid.New()

	applied, err := repo.MarkUsed(ctx, intent.ID, firstOrder)
	require.NoError(t, err)
	assert.True(t, applied)

	applied, err = repo.MarkUsed(ctx, intent.ID, secondOrder)
	require.NoError(t, err)
	assert.False(t, applied)

	stored, err := repo.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.UsedForOrderID)
	assert.Equal(t, firstOrder, *stored.UsedForOrderID)
}

// A success webhook and the expiry sweep can race on the same intent; the
// conditional write lets the first settlement stand.
func TestRepositoryUpdateStatusTerminalWins(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	intent := seedRepoIntent(t, repo, uuid.New(), uuid.New(), nil)

	applied, err := repo.UpdateStatus(ctx, intent.ID, enums.PaymentIntentStatusSuccess, nil,
		enums.PaymentIntentStatusInitiated)
	require.NoError(t, err)
	assert.True(t, applied)

	reason := "payment intent expired"
	applied, err = repo.UpdateStatus(ctx, intent.ID, enums.PaymentIntentStatusFailed, &reason,
		enums.PaymentIntentStatusInitiated)
	require.NoError(t, err)
	assert.False(t, applied, "settled intent must not be regressed")

	stored, err := repo.FindByID(ctx, intent.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentIntentStatusSuccess, stored.Status)
	assert.Nil(t, stored.FailureReason)
}

func TestRepositoryPurgeStaleInitiated(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	userID := uuid.New()
	productID := uuid.New()
	old := time.Now().Add(-10 * time.Minute)

	stale := seedRepoIntent(t, repo, userID, productID, func(p *models.PaymentIntent) {
		p.CreatedAt = old
	})
	tracked := seedRepoIntent(t, repo, userID, productID, func(p *models.PaymentIntent) {
		p.CreatedAt = old
		ref := "mcp-ref-1"
		p.ProviderTransactionRef = &ref
	})
	settled := seedRepoIntent(t, repo, userID, productID, func(p *models.PaymentIntent) {
		p.CreatedAt = old
		p.Status = enums.PaymentIntentStatusSuccess
	})
	fresh := seedRepoIntent(t, repo, userID, productID, nil)

	require.NoError(t, repo.PurgeStaleInitiated(ctx, userID, productID, time.Now().Add(-2*time.Minute)))

	_, err := repo.FindByID(ctx, stale.ID)
	assert.Error(t, err, "abandoned attempt without provider ref should be gone")
	for _, keep := range []uuid.UUID{tracked.ID, settled.ID, fresh.ID} {
		_, err := repo.FindByID(ctx, keep)
		assert.NoError(t, err)
	}
}

func TestRepositoryListByUserCursor(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo := NewRepository(newTestDB(t))

	userID := uuid.New()
	productID := uuid.New()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		created := base.Add(time.Duration(i) * time.Minute)
		seedRepoIntent(t, repo, userID, productID, func(p *models.PaymentIntent) {
			p.CreatedAt = created
		})
	}
	seedRepoIntent(t, repo, uuid.New(), productID, nil)

	page, err := repo.ListByUser(ctx, userID, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.True(t, page[0].CreatedAt.After(page[1].CreatedAt))

	rest, err := repo.ListByUser(ctx, userID, 2, &pagination.Cursor{
		CreatedAt: page[1].CreatedAt,
		ID:        page[1].ID,
	})
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.True(t, page[1].CreatedAt.After(rest[0].CreatedAt))
}
