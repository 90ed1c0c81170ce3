package recipe

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIngredientLineUnitSerializesNull(t *testing.T) {
	empty := ""
	spaces := "  "
	cup := " cup "
	lines := []IngredientLine{
		{Name: "salt"},
		{Name: "pepper", Unit: &empty},
		{Name: "sugar", Quantity: Quantity(1), Unit: &spaces},
		{Name: "milk", Quantity: Quantity(2), Unit: &cup},
	}
	got, err := json.Marshal(lines)
	require.NoError(t, err)
	assert.JSONEq(t, `[
		{"name":"salt","quantity":null,"unit":null},
		{"name":"pepper","quantity":null,"unit":null},
		{"name":"sugar","quantity":1,"unit":null},
		{"name":"milk","quantity":2,"unit":"cup"}
	]`, string(got))
}

func TestRecipeUnmarshal(t *testing.T) {
	data := `{
		"id": 7,
		"title": "Cheesecake",
		"ingredients": [{"name":"quark","quantity":500,"unit":"g"},{"name":"salt","quantity":null,"unit":null}],
		"servings": {"diameter": 26},
		"servings_unit": "springform"
	}`
	var r Recipe
	require.NoError(t, json.Unmarshal([]byte(data), &r))
	assert.Equal(t, int64(7), r.ID)
	assert.Equal(t, UnitSpringform, r.ServingsUnit)
	assert.Equal(t, 26.0, r.Servings.Diameter())
	require.Len(t, r.Ingredients, 2)
	assert.Nil(t, r.Ingredients[1].Quantity)
	assert.Nil(t, r.Ingredients[1].Unit)
}

func TestRecipeUnmarshalRejectsUntagged(t *testing.T) {
	var r Recipe
	err := json.Unmarshal([]byte(`{"title":"x","servings":{"count":2}}`), &r)
	assert.ErrorIs(t, err, ErrMissingServingUnit)
}

func TestDraftPayload(t *testing.T) {
	serving := mustTray(t, 20, 30)
	blank := ""
	prep, cook, rest := 20, 0, 45
	d := Draft{
		Title:        "  Sheet cake ",
		Instructions: " Mix and bake. ",
		Lines: []IngredientLine{
			{Name: " flour", Quantity: Quantity(400), Unit: &blank},
		},
		Servings:         serving,
		SpecialEquipment: []string{"mixer", "  ", "", " sheet pan"},
		PrepTime:         &prep,
		CookTime:         &cook,
		RestTime:         &rest,
		Source:           "Grandma",
	}
	p, err := d.Payload()
	require.NoError(t, err)
	assert.Equal(t, "Sheet cake", p.Title)
	assert.Equal(t, UnitBakingTray, p.ServingsUnit)
	assert.Nil(t, p.Ingredients[0].Unit)
	assert.Equal(t, []string{"mixer", "sheet pan"}, p.SpecialEquipment)
	assert.Nil(t, p.CookTime)

	body, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title":"Sheet cake",
		"instructions":"Mix and bake.",
		"ingredients":[{"name":"flour","quantity":400,"unit":null}],
		"servings":{"width":20,"length":30},
		"servings_unit":"BAKING_TRAY",
		"special_equipment":["mixer","sheet pan"],
		"prep_time":20,
		"rest_time":45,
		"source":"Grandma"
	}`, string(body))
}

func TestDraftPayloadOptionalFieldsEmpty(t *testing.T) {
	p, err := Draft{
		Title:        "Toast",
		Instructions: "Toast the bread.",
		Lines:        []IngredientLine{{Name: "bread"}},
		Servings:     mustNumber(t, 1),
	}.Payload()
	require.NoError(t, err)

	body, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"title":"Toast",
		"instructions":"Toast the bread.",
		"ingredients":[{"name":"bread","quantity":null,"unit":null}],
		"servings":{"count":1},
		"servings_unit":"NUMBER",
		"special_equipment":[],
		"source":""
	}`, string(body))
}

func TestDraftPayloadValidation(t *testing.T) {
	serving := mustNumber(t, 2)
	lines := []IngredientLine{{Name: "egg"}}
	steps := "Whisk and fry."

	_, err := Draft{Instructions: steps, Lines: lines, Servings: serving}.Payload()
	assert.ErrorIs(t, err, ErrMissingTitle)

	_, err = Draft{Title: "Omelette", Instructions: "  ", Lines: lines, Servings: serving}.Payload()
	assert.ErrorIs(t, err, ErrMissingInstructions)

	_, err = Draft{Title: "Omelette", Instructions: steps, Lines: lines}.Payload()
	assert.ErrorIs(t, err, ErrMissingServingUnit)

	_, err = Draft{Title: "Omelette", Instructions: steps, Servings: serving}.Payload()
	assert.ErrorIs(t, err, ErrNoIngredients)

	negative := -5
	_, err = Draft{Title: "Omelette", Instructions: steps, Lines: lines, Servings: serving, CookTime: &negative}.Payload()
	assert.ErrorIs(t, err, ErrInvalidDuration)
}

func TestViewAdjust(t *testing.T) {
	r := &Recipe{
		Title:       "Pancakes",
		Ingredients: []IngredientLine{{Name: "milk", Quantity: Quantity(250)}, {Name: "salt"}},
		Servings:    mustNumber(t, 2),
	}
	v := NewView(r)

	lines, err := v.Lines()
	require.NoError(t, err)
	assert.Equal(t, 250.0, *lines[0].Quantity)

	require.NoError(t, v.Adjust(ServingFields{Count: f(5)}))
	lines, err = v.Lines()
	require.NoError(t, err)
	assert.Equal(t, 625.0, *lines[0].Quantity)
	assert.Nil(t, lines[1].Quantity)

	err = v.Adjust(ServingFields{Count: f(0)})
	assert.ErrorIs(t, err, ErrInvalidQuantity)
	assert.Equal(t, 5, v.Target().Count(), "previous target is kept")

	err = v.Adjust(ServingFields{Diameter: f(26)})
	assert.Error(t, err)
	assert.Equal(t, 5, v.Target().Count())
}
