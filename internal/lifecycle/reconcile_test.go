package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mmeshcher/parceltrack/internal/model"
	"github.com/mmeshcher/parceltrack/internal/repository"
)

func TestReconcileOrderNumbers(t *testing.T) {
	ctx := context.Background()
	repo := repository.NewMemoryRepository()
	base := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)

	seed := []struct {
		id     string
		number string
		at     time.Time
	}{
		{id: "legacy-7", number: "ENT0007", at: base},
		{id: "canon-2", number: "0002", at: base.Add(time.Hour)},
		{id: "legacy-2", number: "ENT0002", at: base.Add(2 * time.Hour)},
		{id: "legacy-big", number: "ENT123456", at: base.Add(3 * time.Hour)},
	}
	for _, s := range seed {
		require.NoError(t, repo.InsertDelivery(ctx, &model.Delivery{
			ID: s.id, OrderNumber: s.number, Status: model.DeliveryStatusCreated, CreatedAt: s.at,
		}))
	}

	e, _ := newTestEngine(repo)
	n, err := e.ReconcileOrderNumbers(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	expect := map[string]string{
		"0007": "legacy-7",
		"0002": "canon-2",
		"0001": "legacy-2",
		"0003": "legacy-big",
	}
	for number, id := range expect {
		d, err := repo.GetDelivery(ctx, number)
		require.NoError(t, err, number)
		assert.Equal(t, id, d.ID, number)
	}

	n, err = e.ReconcileOrderNumbers(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	d, err := e.Create(ctx, anaSilva())
	require.NoError(t, err)
	assert.Equal(t, "0005", d.OrderNumber)
}
