package ingredient

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"recipebook/internal/recipe"
)

// LanguageDetector guesses the language of an ingredient name so a new
// ingredient draft can be pre-filled.
type LanguageDetector interface {
	DetectLanguage(ctx context.Context, name string) (string, error)
}

// FieldView is a read-only copy of a field, for rendering.
type FieldView struct {
	Index      int         `json:"index"`
	Name       string      `json:"name"`
	State      string      `json:"state"`
	Quantity   *float64    `json:"quantity"`
	Unit       *string     `json:"unit"`
	Ingredient *Ingredient `json:"ingredient,omitempty"`
	Candidates []Hit       `json:"candidates,omitempty"`
	Draft      *Draft      `json:"draft,omitempty"`
}

// Form is the ingredient section of a recipe being authored. All of its
// fields share one catalog and are re-resolved whenever the catalog
// snapshot is replaced.
type Form struct {
	catalog     *Catalog
	detector    LanguageDetector
	unsubscribe func()

	mu     sync.Mutex
	fields []*Field
}

// NewForm starts a form with one empty line. detector may be nil.
func NewForm(catalog *Catalog, detector LanguageDetector) *Form {
	f := &Form{
		catalog:  catalog,
		detector: detector,
		fields:   []*Field{{}},
	}
	f.unsubscribe = catalog.Subscribe(f.onSnapshot)
	return f
}

// Close detaches the form from the catalog.
func (f *Form) Close() {
	f.unsubscribe()
}

func (f *Form) onSnapshot(snap *Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range f.fields {
		field.Resolve(snap)
	}
}

func (f *Form) field(i int) (*Field, error) {
	if i < 0 || i >= len(f.fields) {
		return nil, fmt.Errorf("%w: %d", ErrLineOutOfRange, i)
	}
	return f.fields[i], nil
}

// Len returns the number of lines.
func (f *Form) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.fields)
}

// AddLine appends an empty line and returns its index.
func (f *Form) AddLine() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fields = append(f.fields, &Field{})
	return len(f.fields) - 1
}

// RemoveLine deletes line i; later lines shift down.
func (f *Form) RemoveLine(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.field(i); err != nil {
		return err
	}
	f.fields = append(f.fields[:i], f.fields[i+1:]...)
	return nil
}

// Type records the text of line i and resolves it against the current
// snapshot. Ambiguous matches are returned as an *AmbiguousError.
func (f *Form) Type(i int, text string) (MatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, err := f.field(i)
	if err != nil {
		return MatchResult{}, err
	}
	if err := field.Type(text); err != nil {
		return MatchResult{}, err
	}
	res := field.Resolve(f.catalog.Snapshot())
	return res, res.Err()
}

// SetAmount sets the quantity and unit of line i. Either may be nil.
func (f *Form) SetAmount(i int, quantity *float64, unit *string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, err := f.field(i)
	if err != nil {
		return err
	}
	field.quantity = quantity
	field.unit = unit
	return nil
}

// ProposeCreate moves line i from NoMatch to Creating. When a detector is
// configured the draft language is guessed; the caller may still override it.
func (f *Form) ProposeCreate(ctx context.Context, i int) (Draft, error) {
	f.mu.Lock()
	field, err := f.field(i)
	if err != nil {
		f.mu.Unlock()
		return Draft{}, err
	}
	draft, err := field.ProposeCreate()
	f.mu.Unlock()
	if err != nil || f.detector == nil {
		return draft, err
	}

	lang, err := f.detector.DetectLanguage(ctx, draft.Name)
	if err != nil {
		log.Printf("language detection for %q failed: %v", draft.Name, err)
		return draft, nil
	}
	if lang, err = CanonicalLanguage(lang); err != nil {
		log.Printf("detector returned unusable language for %q: %v", draft.Name, err)
		return draft, nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if field.state == StateCreating && field.draft != nil {
		field.draft.Language = lang
		draft = *field.draft
	}
	return draft, nil
}

// CancelCreate drops the draft of line i.
func (f *Form) CancelCreate(i int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	field, err := f.field(i)
	if err != nil {
		return err
	}
	return field.CancelCreate()
}

// SubmitCreate sends the draft of line i to the store: a plain create adds a
// canonical ingredient, a translation create adds a name under an existing
// one. On success the catalog is refreshed and the line becomes Matched
// against the new entity. On failure the line stays in Creating.
func (f *Form) SubmitCreate(ctx context.Context, i int, d Draft) (MatchResult, error) {
	f.mu.Lock()
	field, err := f.field(i)
	if err == nil && field.state != StateCreating {
		err = fmt.Errorf("%w: submit from %s", ErrInvalidTransition, field.state)
	}
	if err == nil && d.Name == "" && field.draft != nil {
		d.Name = field.draft.Name
	}
	f.mu.Unlock()
	if err != nil {
		return MatchResult{}, err
	}
	if d, err = d.Validate(); err != nil {
		return MatchResult{}, err
	}

	var created Ingredient
	via := ViaCanonical
	in := NewIngredient{Name: d.Name, Language: d.Language}
	if d.IsTranslation {
		created, _, err = f.catalog.CreateTranslation(ctx, d.TranslationOf, in)
		via = ViaTranslation
	} else {
		created, err = f.catalog.CreateIngredient(ctx, in)
	}
	if err != nil {
		return MatchResult{}, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	res := Resolve(d.Name, f.catalog.Snapshot())
	if res.Kind != Matched || res.Ingredient.ID != created.ID {
		res = MatchResult{Kind: Matched, Input: d.Name, Ingredient: created, Via: via}
	}
	field.completeCreate(d.Name, res)
	return res, nil
}

// Lines returns every line in order.
func (f *Form) Lines() []recipe.IngredientLine {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]recipe.IngredientLine, len(f.fields))
	for i, field := range f.fields {
		lines[i] = field.Line()
	}
	return lines
}

// Validate checks that every line resolves against the current snapshot.
func (f *Form) Validate() ([]recipe.IngredientLine, error) {
	return ValidateAll(f.Lines(), f.catalog.Snapshot())
}

// Fields returns a view of every line.
func (f *Form) Fields() []FieldView {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FieldView, len(f.fields))
	for i, field := range f.fields {
		v := FieldView{
			Index:    i,
			Name:     field.text,
			State:    field.state.String(),
			Quantity: field.quantity,
			Unit:     field.unit,
		}
		switch field.result.Kind {
		case Matched:
			ing := field.result.Ingredient
			v.Ingredient = &ing
		case Ambiguous:
			v.Candidates = field.result.Candidates
		}
		if d, ok := field.Draft(); ok {
			v.Draft = &d
		}
		out[i] = v
	}
	return out
}

// DetectionPrompt is the instruction LanguageDetector implementations send
// to a language model.
func DetectionPrompt(name string) string {
	return fmt.Sprintf("Which language is the cooking ingredient name %q written in? Respond with the ISO 639-1 code only, for example 'en' or 'de'. If it is unclear, respond with 'und'.", name)
}

// ParseLanguageAnswer extracts the language code from a model answer,
// tolerating quotes, trailing punctuation and code fences.
func ParseLanguageAnswer(answer string) (string, error) {
	code := strings.Trim(strings.TrimSpace(answer), "`'\". \n")
	if fields := strings.Fields(code); len(fields) > 0 {
		code = fields[0]
	}
	code = strings.ToLower(code)
	if code == "" || code == "und" {
		return "", fmt.Errorf("model could not tell the language of the answer %q", answer)
	}
	return code, nil
}
