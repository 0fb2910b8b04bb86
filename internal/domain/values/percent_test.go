package values

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPercent(t *testing.T) {
	tests := []struct {
		name    string
		ratio   decimal.Decimal
		wantErr bool
	}{
		{
			name:  "zero",
			ratio: decimal.Zero,
		},
		{
			name:  "seventy percent",
			ratio: decimal.NewFromFloat(0.7),
		},
		{
			name:  "one hundred percent",
			ratio: decimal.NewFromInt(1),
		},
		{
			name:    "negative",
			ratio:   decimal.NewFromFloat(-0.1),
			wantErr: true,
		},
		{
			name:    "above one",
			ratio:   decimal.NewFromFloat(1.01),
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewPercent(tt.ratio)

			if tt.wantErr {
				assert.Error(t, err)
				assert.False(t, p.Valid())
			} else {
				assert.NoError(t, err)
				assert.True(t, p.Valid())
				assert.True(t, tt.ratio.Equal(p.Ratio()))
			}
		})
	}
}

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name      string
		part      int
		whole     int
		wantValid bool
		wantStr   string
	}{
		{
			name:      "seven of ten",
			part:      7,
			whole:     10,
			wantValid: true,
			wantStr:   "70%",
		},
		{
			name:      "all resolved",
			part:      5,
			whole:     5,
			wantValid: true,
			wantStr:   "100%",
		},
		{
			name:      "none resolved",
			part:      0,
			whole:     8,
			wantValid: true,
			wantStr:   "0%",
		},
		{
			name:      "zero whole is undefined, not zero",
			part:      0,
			whole:     0,
			wantValid: false,
			wantStr:   "N/A",
		},
		{
			name:      "two thirds rounds for display",
			part:      2,
			whole:     3,
			wantValid: true,
			wantStr:   "66.67%",
		},
		{
			name:      "part above whole is bounded",
			part:      9,
			whole:     3,
			wantValid: true,
			wantStr:   "100%",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PercentOf(tt.part, tt.whole)

			assert.Equal(t, tt.wantValid, p.Valid())
			assert.Equal(t, tt.wantStr, p.String())
			if tt.wantValid {
				assert.GreaterOrEqual(t, p.Float64(), 0.0)
				assert.LessOrEqual(t, p.Float64(), 1.0)
			}
		})
	}
}

func TestUndefinedDistinctFromZero(t *testing.T) {
	undefined := UndefinedPercent()
	zero := ZeroPercent()

	assert.False(t, undefined.Valid())
	assert.True(t, zero.Valid())
	assert.False(t, undefined.Equal(zero))
	assert.True(t, undefined.Equal(UndefinedPercent()))
}

func TestPercentValue100(t *testing.T) {
	p := PercentOf(7, 10)
	assert.True(t, decimal.NewFromInt(70).Equal(p.Value100()))
}

func TestPercentJSON(t *testing.T) {
	t.Run("defined marshals as ratio number", func(t *testing.T) {
		data, err := json.Marshal(PercentOf(7, 10))
		require.NoError(t, err)
		assert.Equal(t, "0.7", string(data))

		var back Percent
		require.NoError(t, json.Unmarshal(data, &back))
		assert.True(t, back.Valid())
		assert.InDelta(t, 0.7, back.Float64(), 1e-9)
	})

	t.Run("undefined marshals as null", func(t *testing.T) {
		data, err := json.Marshal(UndefinedPercent())
		require.NoError(t, err)
		assert.Equal(t, "null", string(data))

		var back Percent
		require.NoError(t, json.Unmarshal(data, &back))
		assert.False(t, back.Valid())
	})

	t.Run("out of range rejected", func(t *testing.T) {
		var p Percent
		assert.Error(t, json.Unmarshal([]byte("1.5"), &p))
	})
}
