package recipe

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrVariantMismatch is returned when two servings of different units are compared.
	ErrVariantMismatch = errors.New("serving units differ")
	// ErrDivisionByZero is returned when the original serving has a zero dimension.
	ErrDivisionByZero = errors.New("original serving has a zero dimension")
	// ErrOutOfRange is returned when a scaled quantity does not fit a float64.
	ErrOutOfRange = errors.New("scaled quantity is out of range")
)

// Quantities this large carry no fractional cents to round.
const roundLimit = 1e15

// Scale converts quantity from the original serving to the target serving.
// A nil quantity means "to taste" and is returned unchanged.
func Scale(original, target Serving, quantity *float64) (*float64, error) {
	if quantity == nil {
		return nil, nil
	}
	factor, err := ScaleFactor(original, target)
	if err != nil {
		return nil, err
	}
	return scaleBy(*quantity, factor)
}

func scaleBy(quantity, factor float64) (*float64, error) {
	product := quantity * factor
	if math.IsInf(product, 0) || math.IsNaN(product) {
		return nil, fmt.Errorf("%w: %g x %g", ErrOutOfRange, quantity, factor)
	}
	scaled := round2(product)
	return &scaled, nil
}

// ScaleFactor returns the multiplier between two servings of the same unit.
// Springforms scale with the pan area, so by the squared diameter ratio.
func ScaleFactor(original, target Serving) (float64, error) {
	if original.unit != target.unit {
		return 0, fmt.Errorf("%w: %s vs %s", ErrVariantMismatch, original.unit, target.unit)
	}
	var factor float64
	switch original.unit {
	case UnitNumber:
		if original.count == 0 {
			return 0, ErrDivisionByZero
		}
		factor = float64(target.count) / float64(original.count)
	case UnitSpringform:
		if original.diameter == 0 {
			return 0, ErrDivisionByZero
		}
		ratio := target.diameter / original.diameter
		factor = ratio * ratio
	case UnitBakingTray:
		area := original.width * original.length
		if area == 0 {
			return 0, ErrDivisionByZero
		}
		factor = (target.width * target.length) / area
	default:
		return 0, ErrMissingServingUnit
	}
	if math.IsInf(factor, 0) || math.IsNaN(factor) {
		return 0, fmt.Errorf("%w: scale factor", ErrOutOfRange)
	}
	return factor, nil
}

// ScaleLines rescales every line of a recipe. Lines without a quantity are
// copied as they are. The servings are checked even when no line has a
// quantity. The input slice is not modified.
func ScaleLines(original, target Serving, lines []IngredientLine) ([]IngredientLine, error) {
	factor, err := ScaleFactor(original, target)
	if err != nil {
		return nil, err
	}
	out := make([]IngredientLine, len(lines))
	for i, line := range lines {
		if line.Quantity != nil {
			q, err := scaleBy(*line.Quantity, factor)
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", i, err)
			}
			line.Quantity = q
		}
		out[i] = line
	}
	return out, nil
}

func round2(v float64) float64 {
	if math.Abs(v) >= roundLimit {
		return v
	}
	return math.Round(v*100) / 100
}
