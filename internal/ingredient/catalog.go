package ingredient

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Store is the remote ingredient store the catalog reads from and writes to.
type Store interface {
	ListIngredients(ctx context.Context) ([]Ingredient, error)
	CreateIngredient(ctx context.Context, in NewIngredient) (*Ingredient, error)
	CreateTranslation(ctx context.Context, ingredientID int64, in NewIngredient) (*Translation, error)
	DeleteIngredient(ctx context.Context, id int64) error
	DeleteTranslation(ctx context.Context, ingredientID, translationID int64) error
}

// MatchVia tells which name of an ingredient a lookup matched.
type MatchVia int

const (
	ViaCanonical MatchVia = iota
	ViaTranslation
)

func (v MatchVia) String() string {
	if v == ViaTranslation {
		return "translation"
	}
	return "canonical"
}

// Hit is one exact-name match in the catalog.
type Hit struct {
	Ingredient  Ingredient   `json:"ingredient"`
	Via         MatchVia     `json:"-"`
	Translation *Translation `json:"translation,omitempty"`
}

type nameRef struct {
	ingredient  int
	translation int // -1 for the canonical name
}

// Snapshot is an immutable view of the catalog at one point in time.
type Snapshot struct {
	version     uint64
	ingredients []Ingredient
	byID        map[int64]int
	byName      map[string][]nameRef
}

func newSnapshot(version uint64, ingredients []Ingredient) *Snapshot {
	s := &Snapshot{
		version:     version,
		ingredients: make([]Ingredient, len(ingredients)),
		byID:        make(map[int64]int, len(ingredients)),
		byName:      make(map[string][]nameRef, len(ingredients)),
	}
	for i, ing := range ingredients {
		ing = ing.clone()
		s.ingredients[i] = ing
		s.byID[ing.ID] = i
		key := Normalize(ing.Name)
		s.byName[key] = append(s.byName[key], nameRef{ingredient: i, translation: -1})
		for j, tr := range ing.Translations {
			key := Normalize(tr.Name)
			s.byName[key] = append(s.byName[key], nameRef{ingredient: i, translation: j})
		}
	}
	return s
}

// Version increases every time the catalog replaces its snapshot.
func (s *Snapshot) Version() uint64 { return s.version }

// Len returns the number of canonical ingredients.
func (s *Snapshot) Len() int { return len(s.ingredients) }

// Ingredients returns a copy of every ingredient in catalog order.
func (s *Snapshot) Ingredients() []Ingredient {
	out := make([]Ingredient, len(s.ingredients))
	for i, ing := range s.ingredients {
		out[i] = ing.clone()
	}
	return out
}

// Get returns the ingredient with the given id.
func (s *Snapshot) Get(id int64) (Ingredient, bool) {
	i, ok := s.byID[id]
	if !ok {
		return Ingredient{}, false
	}
	return s.ingredients[i].clone(), true
}

// FindExact returns every canonical name or translation equal to name after
// normalization.
func (s *Snapshot) FindExact(name string) []Hit {
	refs := s.byName[Normalize(name)]
	hits := make([]Hit, 0, len(refs))
	for _, ref := range refs {
		ing := s.ingredients[ref.ingredient].clone()
		hit := Hit{Ingredient: ing, Via: ViaCanonical}
		if ref.translation >= 0 {
			tr := ing.Translations[ref.translation]
			hit.Via = ViaTranslation
			hit.Translation = &tr
		}
		hits = append(hits, hit)
	}
	return hits
}

// Suggest returns up to limit ingredients with a name containing query, for
// autocompletion. A limit of zero or less means no limit.
func (s *Snapshot) Suggest(query string, limit int) []Ingredient {
	q := Normalize(query)
	if q == "" {
		return nil
	}
	var out []Ingredient
	for _, ing := range s.ingredients {
		if !containsName(ing, q) {
			continue
		}
		out = append(out, ing.clone())
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func containsName(ing Ingredient, q string) bool {
	if strings.Contains(Normalize(ing.Name), q) {
		return true
	}
	for _, tr := range ing.Translations {
		if strings.Contains(Normalize(tr.Name), q) {
			return true
		}
	}
	return false
}

// Catalog keeps the current ingredient snapshot for an authoring or viewing
// session. Loads replace the snapshot wholesale; only the most recently
// started load may install its result.
type Catalog struct {
	store Store

	mu     sync.RWMutex
	snap   *Snapshot
	issued uint64

	listenersMu sync.Mutex
	listeners   map[int]func(*Snapshot)
	nextID      int

	// notifyMu serializes deliveries; notified is the last version sent.
	notifyMu sync.Mutex
	notified uint64
}

// NewCatalog creates an empty catalog backed by store.
func NewCatalog(store Store) *Catalog {
	return &Catalog{
		store:     store,
		snap:      newSnapshot(0, nil),
		listeners: make(map[int]func(*Snapshot)),
	}
}

// Snapshot returns the current snapshot.
func (c *Catalog) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Subscribe registers fn to run after every snapshot replacement, in
// version order. fn must not modify the catalog. The returned function
// removes the subscription.
func (c *Catalog) Subscribe(fn func(*Snapshot)) func() {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	id := c.nextID
	c.nextID++
	c.listeners[id] = fn
	return func() {
		c.listenersMu.Lock()
		defer c.listenersMu.Unlock()
		delete(c.listeners, id)
	}
}

// FindExact looks name up in the current snapshot.
func (c *Catalog) FindExact(name string) []Hit {
	return c.Snapshot().FindExact(name)
}

// Suggest runs an autocomplete query against the current snapshot.
func (c *Catalog) Suggest(query string, limit int) []Ingredient {
	return c.Snapshot().Suggest(query, limit)
}

// Load fetches the full ingredient list and replaces the snapshot. On
// failure the previous snapshot stays in place. If another load or a local
// change happened while this one was in flight, its result is dropped and
// ErrSuperseded is returned.
func (c *Catalog) Load(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	c.issued++
	ticket := c.issued
	c.mu.Unlock()

	list, err := c.store.ListIngredients(ctx)
	if err != nil {
		log.Printf("failed to load ingredient catalog: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrCatalogUnavailable, err)
	}

	c.mu.Lock()
	if latest := c.issued; ticket != latest {
		c.mu.Unlock()
		log.Printf("discarding stale catalog load %d, latest is %d", ticket, latest)
		return nil, ErrSuperseded
	}
	snap := newSnapshot(ticket, list)
	c.snap = snap
	c.mu.Unlock()

	log.Printf("ingredient catalog loaded: %d ingredients (version %d)", snap.Len(), snap.Version())
	c.notify(snap)
	return snap, nil
}

// CreateIngredient adds a new canonical ingredient and refreshes the catalog.
func (c *Catalog) CreateIngredient(ctx context.Context, in NewIngredient) (Ingredient, error) {
	in, err := c.checkNew(in)
	if err != nil {
		return Ingredient{}, err
	}

	created, err := c.store.CreateIngredient(ctx, in)
	if err != nil {
		log.Printf("failed to create ingredient %q: %v", in.Name, err)
		return Ingredient{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	ing := created.clone()
	log.Printf("created ingredient %d %q (%s)", ing.ID, ing.Name, ing.Language)

	c.replace(func(list []Ingredient) []Ingredient {
		for i := range list {
			if list[i].ID == ing.ID {
				list[i] = ing
				return list
			}
		}
		return append(list, ing)
	})
	c.refresh(ctx)
	return ing, nil
}

// CreateTranslation adds a translation under an existing ingredient and
// refreshes the catalog. It returns the updated parent and the new translation.
func (c *Catalog) CreateTranslation(ctx context.Context, ingredientID int64, in NewIngredient) (Ingredient, Translation, error) {
	in, err := c.checkNew(in)
	if err != nil {
		return Ingredient{}, Translation{}, err
	}
	parent, ok := c.Snapshot().Get(ingredientID)
	if !ok {
		return Ingredient{}, Translation{}, fmt.Errorf("%w: %d", ErrNotFound, ingredientID)
	}
	if parent.hasLanguage(in.Language) {
		return Ingredient{}, Translation{}, fmt.Errorf("%w: %q already has %s", ErrDuplicateLanguage, parent.Name, in.Language)
	}

	created, err := c.store.CreateTranslation(ctx, ingredientID, in)
	if err != nil {
		log.Printf("failed to create translation %q for ingredient %d: %v", in.Name, ingredientID, err)
		return Ingredient{}, Translation{}, fmt.Errorf("%w: %v", ErrCreateFailed, err)
	}
	tr := *created
	log.Printf("created translation %d %q (%s) for ingredient %d", tr.ID, tr.Name, tr.Language, ingredientID)

	c.replace(func(list []Ingredient) []Ingredient {
		for i := range list {
			if list[i].ID != ingredientID {
				continue
			}
			for _, existing := range list[i].Translations {
				if existing.ID == tr.ID {
					return list
				}
			}
			list[i].Translations = append(list[i].Translations, tr)
		}
		return list
	})
	c.refresh(ctx)

	parent, _ = c.Snapshot().Get(ingredientID)
	return parent, tr, nil
}

// DeleteIngredient removes a user-added ingredient with all its translations.
func (c *Catalog) DeleteIngredient(ctx context.Context, id int64) error {
	ing, ok := c.Snapshot().Get(id)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if ing.Predefined {
		return fmt.Errorf("%w: %q", ErrReadOnly, ing.Name)
	}
	if err := c.store.DeleteIngredient(ctx, id); err != nil {
		log.Printf("failed to delete ingredient %d: %v", id, err)
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	log.Printf("deleted ingredient %d %q", id, ing.Name)

	c.replace(func(list []Ingredient) []Ingredient {
		out := list[:0]
		for _, other := range list {
			if other.ID != id {
				out = append(out, other)
			}
		}
		return out
	})
	c.refresh(ctx)
	return nil
}

// DeleteTranslation removes one translation of a user-added ingredient.
func (c *Catalog) DeleteTranslation(ctx context.Context, ingredientID, translationID int64) error {
	ing, ok := c.Snapshot().Get(ingredientID)
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, ingredientID)
	}
	if ing.Predefined {
		return fmt.Errorf("%w: %q", ErrReadOnly, ing.Name)
	}
	found := false
	for _, tr := range ing.Translations {
		if tr.ID == translationID {
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("%w: translation %d of ingredient %d", ErrNotFound, translationID, ingredientID)
	}
	if err := c.store.DeleteTranslation(ctx, ingredientID, translationID); err != nil {
		log.Printf("failed to delete translation %d of ingredient %d: %v", translationID, ingredientID, err)
		return fmt.Errorf("%w: %v", ErrDeleteFailed, err)
	}
	log.Printf("deleted translation %d of ingredient %d", translationID, ingredientID)

	c.replace(func(list []Ingredient) []Ingredient {
		for i := range list {
			if list[i].ID != ingredientID {
				continue
			}
			kept := make([]Translation, 0, len(list[i].Translations))
			for _, tr := range list[i].Translations {
				if tr.ID != translationID {
					kept = append(kept, tr)
				}
			}
			list[i].Translations = kept
		}
		return list
	})
	c.refresh(ctx)
	return nil
}

// checkNew validates a create request against the current snapshot and
// canonicalizes its language tag.
func (c *Catalog) checkNew(in NewIngredient) (NewIngredient, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return in, ErrMissingName
	}
	lang, err := CanonicalLanguage(in.Language)
	if err != nil {
		return in, err
	}
	in.Language = lang
	if hits := c.FindExact(in.Name); len(hits) > 0 {
		return in, fmt.Errorf("%w: %q is %q", ErrNameTaken, in.Name, hits[0].Ingredient.Name)
	}
	return in, nil
}

// replace applies a local change on top of the current snapshot. Loads still
// in flight become stale.
func (c *Catalog) replace(change func([]Ingredient) []Ingredient) {
	c.mu.Lock()
	c.issued++
	snap := newSnapshot(c.issued, change(c.snap.Ingredients()))
	c.snap = snap
	c.mu.Unlock()
	c.notify(snap)
}

// refresh reloads after a local change. A failed reload keeps the locally
// merged snapshot.
func (c *Catalog) refresh(ctx context.Context) {
	if _, err := c.Load(ctx); err != nil {
		log.Printf("catalog refresh after change: %v", err)
	}
}

// notify hands snap to every listener unless a newer snapshot was already
// delivered. Listeners never see versions go backwards.
func (c *Catalog) notify(snap *Snapshot) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()
	if snap.Version() <= c.notified {
		return
	}
	c.notified = snap.Version()

	c.listenersMu.Lock()
	fns := make([]func(*Snapshot), 0, len(c.listeners))
	for _, fn := range c.listeners {
		fns = append(fns, fn)
	}
	c.listenersMu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// CanonicalLanguage parses a BCP 47 tag or ISO 639 code and returns its
// canonical form, e.g. "de" for "DE".
func CanonicalLanguage(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", ErrMissingLanguage
	}
	tag, err := language.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidLanguage, s)
	}
	return tag.String(), nil
}
