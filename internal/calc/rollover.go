package calc

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/forecourt-io/forecourt/internal/shared"
)

// ProvisionalRolloverVolume computes the dispensed volume for a day where the
// closing meter reads below the opening one, assuming the meter wrapped at its
// capacity exactly once: (capacity - opening) + closing.
func ProvisionalRolloverVolume(opening, closing, capacity decimal.Decimal) decimal.Decimal {
	return capacity.Sub(opening).Add(closing)
}

// RolloverConfirmation carries a supervisor's confirmed wrap point and the
// post-rollover closing reading.
type RolloverConfirmation struct {
	RolloverValue decimal.Decimal
	NewClosing    decimal.Decimal
}

// Validate checks the confirmation against the calculation's opening reading
// and the pump's meter capacity.
func (rc RolloverConfirmation) Validate(opening, capacity decimal.Decimal) error {
	if rc.RolloverValue.LessThanOrEqual(opening) {
		return fmt.Errorf("%w: rollover value must exceed the opening reading %s", shared.ErrValidation, opening)
	}
	if rc.RolloverValue.GreaterThan(capacity) {
		return fmt.Errorf("%w: rollover value exceeds meter capacity %s", shared.ErrValidation, capacity)
	}
	if rc.NewClosing.IsNegative() || rc.NewClosing.GreaterThan(capacity) {
		return fmt.Errorf("%w: closing reading must be between 0 and meter capacity %s", shared.ErrValidation, capacity)
	}
	return nil
}

// Volume computes the confirmed dispensed volume:
// (rolloverValue - opening) + newClosing.
func (rc RolloverConfirmation) Volume(opening decimal.Decimal) decimal.Decimal {
	return rc.RolloverValue.Sub(opening).Add(rc.NewClosing)
}
