package repository_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/larder/larder-backend/internal/stock/repository"
	"github.com/larder/larder-backend/pkg/errors"
)

func TestMovementKind_Valid(t *testing.T) {
	for _, kind := range repository.AllMovementKinds {
		assert.True(t, kind.Valid(), "expected %s to be valid", kind)
	}

	assert.False(t, repository.MovementKind("").Valid())
	assert.False(t, repository.MovementKind("teleport").Valid())
}

func TestMovementKind_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		kind     repository.MovementKind
		quantity string
		want     string
		wantErr  bool
	}{
		{name: "delivery stays positive", kind: repository.KindDeliveryIn, quantity: "12.5", want: "12.5"},
		{name: "transfer in stays positive", kind: repository.KindTransferIn, quantity: "3", want: "3"},
		{name: "transfer out is negated", kind: repository.KindTransferOut, quantity: "3", want: "-3"},
		{name: "consumption is negated", kind: repository.KindConsumption, quantity: "0.25", want: "-0.25"},
		{name: "adjustment keeps positive sign", kind: repository.KindManualAdjustment, quantity: "1.5", want: "1.5"},
		{name: "adjustment keeps negative sign", kind: repository.KindManualAdjustment, quantity: "-1.5", want: "-1.5"},
		{name: "zero is rejected", kind: repository.KindDeliveryIn, quantity: "0", wantErr: true},
		{name: "zero adjustment is rejected", kind: repository.KindManualAdjustment, quantity: "0", wantErr: true},
		{name: "negative delivery is rejected", kind: repository.KindDeliveryIn, quantity: "-1", wantErr: true},
		{name: "negative consumption is rejected", kind: repository.KindConsumption, quantity: "-1", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.kind.Normalize(decimal.RequireFromString(tt.quantity))

			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidQuantity))
				return
			}

			require.NoError(t, err)
			assert.True(t, got.Equal(decimal.RequireFromString(tt.want)),
				"got %s, want %s", got, tt.want)
		})
	}
}

func TestMovementKind_Inbound(t *testing.T) {
	assert.True(t, repository.KindDeliveryIn.Inbound())
	assert.True(t, repository.KindTransferIn.Inbound())
	assert.False(t, repository.KindTransferOut.Inbound())
	assert.False(t, repository.KindConsumption.Inbound())
	assert.False(t, repository.KindManualAdjustment.Inbound())
}
