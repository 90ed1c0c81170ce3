package ingredient

import (
	"fmt"
	"strings"

	"recipebook/internal/recipe"
)

// FieldState is the state of one ingredient-name input.
//
//	Idle -> Typing -> Matched | NoMatch
//	NoMatch -> Creating -> Matched  (or back to NoMatch on cancel)
type FieldState int

const (
	StateIdle FieldState = iota
	StateTyping
	StateMatched
	StateNoMatch
	StateCreating
)

func (s FieldState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTyping:
		return "typing"
	case StateMatched:
		return "matched"
	case StateNoMatch:
		return "no_match"
	case StateCreating:
		return "creating"
	default:
		return "unknown"
	}
}

// Draft is a pending new ingredient or translation proposed from a field
// whose text matched nothing.
type Draft struct {
	Name          string `json:"name"`
	Language      string `json:"language"`
	IsTranslation bool   `json:"is_translation"`
	TranslationOf int64  `json:"translation_of,omitempty"`
}

// Validate checks the draft and canonicalizes its language.
func (d Draft) Validate() (Draft, error) {
	d.Name = strings.TrimSpace(d.Name)
	if d.Name == "" {
		return d, ErrMissingName
	}
	lang, err := CanonicalLanguage(d.Language)
	if err != nil {
		return d, err
	}
	d.Language = lang
	if d.IsTranslation && d.TranslationOf == 0 {
		return d, ErrMissingTarget
	}
	return d, nil
}

// Field tracks one ingredient line of a recipe form.
type Field struct {
	text     string
	state    FieldState
	result   MatchResult
	draft    *Draft
	quantity *float64
	unit     *string
}

// State returns the field's current state.
func (f *Field) State() FieldState { return f.state }

// Text returns what was last typed.
func (f *Field) Text() string { return f.text }

// Result returns the last resolution.
func (f *Field) Result() MatchResult { return f.result }

// Type records a keystroke. Blank text returns the field to Idle.
func (f *Field) Type(text string) error {
	if f.state == StateCreating {
		return fmt.Errorf("%w: cannot edit %q while creating", ErrInvalidTransition, f.text)
	}
	f.text = text
	f.result = MatchResult{Kind: NoMatch, Input: text}
	if Normalize(text) == "" {
		f.state = StateIdle
		return nil
	}
	f.state = StateTyping
	return nil
}

// Resolve matches the current text against snap. Idle and Creating fields
// are left as they are. An ambiguous result keeps the field in Typing.
func (f *Field) Resolve(snap *Snapshot) MatchResult {
	switch f.state {
	case StateIdle, StateCreating:
		return f.result
	}
	f.result = Resolve(f.text, snap)
	switch f.result.Kind {
	case Matched:
		f.state = StateMatched
	case NoMatch:
		f.state = StateNoMatch
	default:
		f.state = StateTyping
	}
	return f.result
}

// ProposeCreate enters Creating with a draft named after the typed text.
func (f *Field) ProposeCreate() (Draft, error) {
	if f.state != StateNoMatch {
		return Draft{}, fmt.Errorf("%w: create from %s", ErrInvalidTransition, f.state)
	}
	d := Draft{Name: strings.TrimSpace(f.text)}
	f.draft = &d
	f.state = StateCreating
	return d, nil
}

// CancelCreate abandons the draft and returns to NoMatch.
func (f *Field) CancelCreate() error {
	if f.state != StateCreating {
		return fmt.Errorf("%w: cancel from %s", ErrInvalidTransition, f.state)
	}
	f.draft = nil
	f.state = StateNoMatch
	return nil
}

// Draft returns the pending draft while the field is Creating.
func (f *Field) Draft() (Draft, bool) {
	if f.draft == nil {
		return Draft{}, false
	}
	return *f.draft, true
}

func (f *Field) completeCreate(name string, res MatchResult) {
	f.text = name
	f.result = res
	f.draft = nil
	f.state = StateMatched
}

// Line returns the field as a recipe ingredient line.
func (f *Field) Line() recipe.IngredientLine {
	line := recipe.IngredientLine{
		Name:     strings.TrimSpace(f.text),
		Quantity: f.quantity,
		Unit:     recipe.UnitOf(f.unit),
	}
	if f.state == StateMatched {
		line.IngredientID = f.result.Ingredient.ID
	}
	return line
}
