package calc

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/forecourt-io/forecourt/internal/shared"
)

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestProvisionalRolloverVolume(t *testing.T) {
	got := ProvisionalRolloverVolume(d("14000.0"), d("100.5"), d("999999.9"))
	require.True(t, got.Equal(d("986100.4")), "got %s", got)
}

func TestRolloverConfirmationValidate(t *testing.T) {
	opening := d("14000.0")
	capacity := d("999999.9")

	cases := []struct {
		name string
		conf RolloverConfirmation
		ok   bool
	}{
		{"valid", RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}, true},
		{"at opening", RolloverConfirmation{RolloverValue: d("14000.0"), NewClosing: d("100.5")}, false},
		{"below opening", RolloverConfirmation{RolloverValue: d("13000.0"), NewClosing: d("100.5")}, false},
		{"above capacity", RolloverConfirmation{RolloverValue: d("1000000.0"), NewClosing: d("100.5")}, false},
		{"negative closing", RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("-1")}, false},
		{"closing above capacity", RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("1000000.0")}, false},
		{"zero closing", RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("0")}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.conf.Validate(opening, capacity)
			if tc.ok {
				require.NoError(t, err)
			} else {
				require.ErrorIs(t, err, shared.ErrValidation)
			}
		})
	}
}

func TestRolloverConfirmationVolume(t *testing.T) {
	conf := RolloverConfirmation{RolloverValue: d("999999.9"), NewClosing: d("100.5")}
	require.True(t, conf.Volume(d("14000.0")).Equal(d("986100.4")))
}
