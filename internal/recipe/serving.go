package recipe

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ServingUnit selects which shape a Serving takes.
type ServingUnit string

const (
	UnitNumber     ServingUnit = "NUMBER"
	UnitSpringform ServingUnit = "SPRINGFORM"
	UnitBakingTray ServingUnit = "BAKING_TRAY"
)

// Validation errors returned while building a Serving.
var (
	ErrMissingServingUnit = errors.New("serving unit is required")
	ErrUnknownServingUnit = errors.New("unknown serving unit")
	ErrInvalidQuantity    = errors.New("servings count must be a positive whole number")
	ErrMissingDimension   = errors.New("dimension must be a positive number")
	ErrMixedFields        = errors.New("servings carry fields of another unit")
)

// ParseServingUnit accepts the wire names plus the lower-case and spaced
// spellings older recipes were stored with ("number", "baking tray").
func ParseServingUnit(s string) (ServingUnit, error) {
	normalized := strings.ToUpper(strings.TrimSpace(s))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	switch ServingUnit(normalized) {
	case UnitNumber, UnitSpringform, UnitBakingTray:
		return ServingUnit(normalized), nil
	case "":
		return "", ErrMissingServingUnit
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownServingUnit, s)
	}
}

// Serving describes how much a recipe makes. The zero value has no unit and
// is rejected everywhere a Serving is required.
type Serving struct {
	unit     ServingUnit
	count    int
	diameter float64
	width    float64
	length   float64
}

// ServingFields holds the raw, possibly incomplete values typed into a form.
// A nil field was left blank.
type ServingFields struct {
	Count    *float64 `json:"count,omitempty"`
	Diameter *float64 `json:"diameter,omitempty"`
	Width    *float64 `json:"width,omitempty"`
	Length   *float64 `json:"length,omitempty"`
}

// NewNumber returns a Serving counted in portions.
func NewNumber(count int) (Serving, error) {
	if count <= 0 {
		return Serving{}, fmt.Errorf("%w: got %d", ErrInvalidQuantity, count)
	}
	return Serving{unit: UnitNumber, count: count}, nil
}

// NewSpringform returns a Serving for a round pan of the given diameter in centimeters.
func NewSpringform(diameter float64) (Serving, error) {
	if !positive(diameter) {
		return Serving{}, fmt.Errorf("%w: diameter %v", ErrMissingDimension, diameter)
	}
	return Serving{unit: UnitSpringform, diameter: diameter}, nil
}

// NewBakingTray returns a Serving for a rectangular tray in centimeters.
func NewBakingTray(width, length float64) (Serving, error) {
	if !positive(width) {
		return Serving{}, fmt.Errorf("%w: width %v", ErrMissingDimension, width)
	}
	if !positive(length) {
		return Serving{}, fmt.Errorf("%w: length %v", ErrMissingDimension, length)
	}
	return Serving{unit: UnitBakingTray, width: width, length: length}, nil
}

// Construct validates raw form values for the selected unit.
func Construct(unit ServingUnit, fields ServingFields) (Serving, error) {
	switch unit {
	case "":
		return Serving{}, ErrMissingServingUnit
	case UnitNumber:
		if fields.Diameter != nil || fields.Width != nil || fields.Length != nil {
			return Serving{}, ErrMixedFields
		}
		if fields.Count == nil {
			return Serving{}, fmt.Errorf("%w: count is missing", ErrInvalidQuantity)
		}
		c := *fields.Count
		if !positive(c) || c != math.Trunc(c) || c > math.MaxInt32 {
			return Serving{}, fmt.Errorf("%w: got %v", ErrInvalidQuantity, c)
		}
		return NewNumber(int(c))
	case UnitSpringform:
		if fields.Count != nil || fields.Width != nil || fields.Length != nil {
			return Serving{}, ErrMixedFields
		}
		if fields.Diameter == nil {
			return Serving{}, fmt.Errorf("%w: diameter is missing", ErrMissingDimension)
		}
		return NewSpringform(*fields.Diameter)
	case UnitBakingTray:
		if fields.Count != nil || fields.Diameter != nil {
			return Serving{}, ErrMixedFields
		}
		if fields.Width == nil || fields.Length == nil {
			return Serving{}, fmt.Errorf("%w: width and length are required", ErrMissingDimension)
		}
		return NewBakingTray(*fields.Width, *fields.Length)
	default:
		return Serving{}, fmt.Errorf("%w: %q", ErrUnknownServingUnit, unit)
	}
}

// ParseServing decodes the servings JSON value that travels next to a
// servings_unit field. NUMBER also accepts a bare number, the shape recipes
// were stored with before servings became an object.
func ParseServing(unit ServingUnit, data json.RawMessage) (Serving, error) {
	if unit == "" {
		return Serving{}, ErrMissingServingUnit
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return Construct(unit, ServingFields{})
	}
	if unit == UnitNumber && data[0] != '{' {
		var n float64
		if err := json.Unmarshal(data, &n); err != nil {
			return Serving{}, fmt.Errorf("%w: %s", ErrInvalidQuantity, data)
		}
		return Construct(unit, ServingFields{Count: &n})
	}
	var fields ServingFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return Serving{}, fmt.Errorf("failed to decode servings: %w", err)
	}
	return Construct(unit, fields)
}

// Unit returns the serving unit, or "" for the zero value.
func (s Serving) Unit() ServingUnit { return s.unit }

// IsZero reports whether s was never constructed.
func (s Serving) IsZero() bool { return s.unit == "" }

// Count is the number of portions for UnitNumber servings.
func (s Serving) Count() int { return s.count }

// Diameter is the pan diameter for UnitSpringform servings.
func (s Serving) Diameter() float64 { return s.diameter }

// Width is the tray width for UnitBakingTray servings.
func (s Serving) Width() float64 { return s.width }

// Length is the tray length for UnitBakingTray servings.
func (s Serving) Length() float64 { return s.length }

// Fields returns the raw values of s, populated according to its unit.
func (s Serving) Fields() ServingFields {
	switch s.unit {
	case UnitNumber:
		c := float64(s.count)
		return ServingFields{Count: &c}
	case UnitSpringform:
		d := s.diameter
		return ServingFields{Diameter: &d}
	case UnitBakingTray:
		w, l := s.width, s.length
		return ServingFields{Width: &w, Length: &l}
	}
	return ServingFields{}
}

// MarshalJSON writes exactly {count}, {diameter} or {width,length}.
func (s Serving) MarshalJSON() ([]byte, error) {
	switch s.unit {
	case UnitNumber:
		return json.Marshal(struct {
			Count int `json:"count"`
		}{s.count})
	case UnitSpringform:
		return json.Marshal(struct {
			Diameter float64 `json:"diameter"`
		}{s.diameter})
	case UnitBakingTray:
		return json.Marshal(struct {
			Width  float64 `json:"width"`
			Length float64 `json:"length"`
		}{s.width, s.length})
	}
	return []byte("null"), nil
}

func (s Serving) String() string {
	switch s.unit {
	case UnitNumber:
		return fmt.Sprintf("%d servings", s.count)
	case UnitSpringform:
		return fmt.Sprintf("springform Ø%gcm", s.diameter)
	case UnitBakingTray:
		return fmt.Sprintf("baking tray %gx%gcm", s.width, s.length)
	}
	return "no servings"
}

func positive(v float64) bool {
	return v > 0 && !math.IsInf(v, 1) && !math.IsNaN(v)
}
