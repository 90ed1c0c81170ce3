package recipe

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Submission errors.
var (
	ErrMissingTitle        = errors.New("title is required")
	ErrMissingInstructions = errors.New("instructions are required")
	ErrNoIngredients       = errors.New("at least one ingredient is required")
	ErrInvalidDuration     = errors.New("times must not be negative")
)

// ErrNotFound is returned when a recipe does not exist.
var ErrNotFound = errors.New("recipe not found")

// IngredientLine is one row of a recipe's ingredient list.
// A nil Quantity means "to taste"; a nil Unit means no unit at all.
type IngredientLine struct {
	IngredientID int64    `json:"-"`
	Name         string   `json:"name"`
	Quantity     *float64 `json:"quantity"`
	Unit         *string  `json:"unit"`
}

// MarshalJSON writes a blank unit as null, never "".
func (l IngredientLine) MarshalJSON() ([]byte, error) {
	type wire struct {
		Name     string   `json:"name"`
		Quantity *float64 `json:"quantity"`
		Unit     *string  `json:"unit"`
	}
	return json.Marshal(wire{Name: l.Name, Quantity: l.Quantity, Unit: UnitOf(l.Unit)})
}

// UnitOf returns nil for a missing or blank unit and the trimmed unit otherwise.
func UnitOf(unit *string) *string {
	if unit == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*unit)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// Quantity returns a pointer to v, for building lines in code.
func Quantity(v float64) *float64 { return &v }

// Recipe is a stored recipe as fetched for the detail view.
type Recipe struct {
	ID           int64            `json:"id"`
	Title        string           `json:"title"`
	Ingredients  []IngredientLine `json:"ingredients"`
	Servings     Serving          `json:"servings"`
	ServingsUnit ServingUnit      `json:"servings_unit"`
}

// UnmarshalJSON implements the json.Unmarshaler interface for Recipe.
// The servings value is decoded according to servings_unit.
func (r *Recipe) UnmarshalJSON(data []byte) error {
	type Alias Recipe // Create an alias to avoid infinite recursion
	aux := &struct {
		Servings     json.RawMessage `json:"servings"`
		ServingsUnit string          `json:"servings_unit"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	unit, err := ParseServingUnit(aux.ServingsUnit)
	if err != nil {
		return err
	}
	serving, err := ParseServing(unit, aux.Servings)
	if err != nil {
		return fmt.Errorf("recipe %d: %w", r.ID, err)
	}
	r.Servings = serving
	r.ServingsUnit = unit
	return nil
}

// Draft is a recipe being authored. Times are in minutes; nil or zero means
// not set.
type Draft struct {
	Title            string
	Instructions     string
	Lines            []IngredientLine
	Servings         Serving
	SpecialEquipment []string
	PrepTime         *int
	CookTime         *int
	RestTime         *int
	Source           string
}

// Payload is the request body sent when a recipe is submitted.
type Payload struct {
	Title            string           `json:"title"`
	Instructions     string           `json:"instructions"`
	Ingredients      []IngredientLine `json:"ingredients"`
	Servings         Serving          `json:"servings"`
	ServingsUnit     ServingUnit      `json:"servings_unit"`
	SpecialEquipment []string         `json:"special_equipment"`
	PrepTime         *int             `json:"prep_time,omitempty"`
	CookTime         *int             `json:"cook_time,omitempty"`
	RestTime         *int             `json:"rest_time,omitempty"`
	Source           string           `json:"source"`
}

// Payload checks the draft's required fields and builds the submission body.
// Blank equipment entries are dropped.
func (d Draft) Payload() (Payload, error) {
	title := strings.TrimSpace(d.Title)
	if title == "" {
		return Payload{}, ErrMissingTitle
	}
	instructions := strings.TrimSpace(d.Instructions)
	if instructions == "" {
		return Payload{}, ErrMissingInstructions
	}
	if d.Servings.IsZero() {
		return Payload{}, ErrMissingServingUnit
	}
	if len(d.Lines) == 0 || strings.TrimSpace(d.Lines[0].Name) == "" {
		return Payload{}, ErrNoIngredients
	}
	lines := make([]IngredientLine, len(d.Lines))
	for i, line := range d.Lines {
		line.Name = strings.TrimSpace(line.Name)
		line.Unit = UnitOf(line.Unit)
		lines[i] = line
	}
	equipment := []string{}
	for _, e := range d.SpecialEquipment {
		if e = strings.TrimSpace(e); e != "" {
			equipment = append(equipment, e)
		}
	}
	p := Payload{
		Title:            title,
		Instructions:     instructions,
		Ingredients:      lines,
		Servings:         d.Servings,
		ServingsUnit:     d.Servings.Unit(),
		SpecialEquipment: equipment,
		Source:           strings.TrimSpace(d.Source),
	}
	var err error
	if p.PrepTime, err = minutes("prep_time", d.PrepTime); err != nil {
		return Payload{}, err
	}
	if p.CookTime, err = minutes("cook_time", d.CookTime); err != nil {
		return Payload{}, err
	}
	if p.RestTime, err = minutes("rest_time", d.RestTime); err != nil {
		return Payload{}, err
	}
	return p, nil
}

func minutes(name string, v *int) (*int, error) {
	switch {
	case v == nil || *v == 0:
		return nil, nil
	case *v < 0:
		return nil, fmt.Errorf("%w: %s is %d", ErrInvalidDuration, name, *v)
	}
	m := *v
	return &m, nil
}

// View is the state of a recipe detail page: the stored recipe and the
// serving size the reader wants to cook for.
type View struct {
	recipe *Recipe
	target Serving
}

// NewView starts a view at the recipe's own serving size.
func NewView(r *Recipe) *View {
	return &View{recipe: r, target: r.Servings}
}

// Target returns the serving size currently displayed.
func (v *View) Target() Serving { return v.target }

// Adjust replaces the target serving. Invalid input is rejected and the
// previous target is kept.
func (v *View) Adjust(fields ServingFields) error {
	s, err := Construct(v.recipe.Servings.Unit(), fields)
	if err != nil {
		return err
	}
	v.target = s
	return nil
}

// Lines returns the recipe's ingredients scaled to the target serving.
func (v *View) Lines() ([]IngredientLine, error) {
	return ScaleLines(v.recipe.Servings, v.target, v.recipe.Ingredients)
}
