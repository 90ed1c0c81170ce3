package ingredient

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore is an in-memory Store. onList, when set, replaces the stored
// list for the given call number (starting at 1).
type fakeStore struct {
	mu          sync.Mutex
	ingredients []Ingredient
	nextID      int64
	calls       int
	onList      func(call int) ([]Ingredient, error)
	listErr     error
	createErr   error
}

func newFakeStore(ingredients ...Ingredient) *fakeStore {
	return &fakeStore{ingredients: ingredients, nextID: 100}
}

func (s *fakeStore) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	s.mu.Lock()
	s.calls++
	call, hook, err := s.calls, s.onList, s.listErr
	out := make([]Ingredient, len(s.ingredients))
	for i, ing := range s.ingredients {
		out[i] = ing.clone()
	}
	s.mu.Unlock()

	if hook != nil {
		return hook(call)
	}
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *fakeStore) CreateIngredient(ctx context.Context, in NewIngredient) (*Ingredient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.nextID++
	ing := Ingredient{ID: s.nextID, Name: in.Name, Language: in.Language, Translations: []Translation{}}
	s.ingredients = append(s.ingredients, ing)
	return &ing, nil
}

func (s *fakeStore) CreateTranslation(ctx context.Context, ingredientID int64, in NewIngredient) (*Translation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	for i := range s.ingredients {
		if s.ingredients[i].ID == ingredientID {
			s.nextID++
			tr := Translation{ID: s.nextID, Name: in.Name, Language: in.Language}
			s.ingredients[i].Translations = append(s.ingredients[i].Translations, tr)
			return &tr, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeStore) DeleteIngredient(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ingredients {
		if s.ingredients[i].ID == id {
			s.ingredients = append(s.ingredients[:i], s.ingredients[i+1:]...)
			return nil
		}
	}
	return ErrNotFound
}

func (s *fakeStore) DeleteTranslation(ctx context.Context, ingredientID, translationID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.ingredients {
		if s.ingredients[i].ID != ingredientID {
			continue
		}
		for j, tr := range s.ingredients[i].Translations {
			if tr.ID == translationID {
				s.ingredients[i].Translations = append(s.ingredients[i].Translations[:j], s.ingredients[i].Translations[j+1:]...)
				return nil
			}
		}
	}
	return ErrNotFound
}

func (s *fakeStore) setListErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

func sampleIngredients() []Ingredient {
	return []Ingredient{
		{ID: 1, Name: "Flour", Language: "en", Predefined: true, Translations: []Translation{
			{ID: 11, Name: "Mehl", Language: "de"},
		}},
		{ID: 2, Name: "Sugar", Language: "en", Predefined: true, Translations: []Translation{
			{ID: 21, Name: "Zucker", Language: "de"},
		}},
		{ID: 3, Name: "Butter", Language: "en", Translations: []Translation{
			{ID: 31, Name: "Butter", Language: "de"},
		}},
	}
}

func loadedCatalog(t *testing.T, store *fakeStore) *Catalog {
	t.Helper()
	c := NewCatalog(store)
	_, err := c.Load(context.Background())
	require.NoError(t, err)
	return c
}

func TestCatalogLoad(t *testing.T) {
	c := NewCatalog(newFakeStore(sampleIngredients()...))
	assert.Equal(t, 0, c.Snapshot().Len())

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Same(t, snap, c.Snapshot())
	assert.Equal(t, 3, snap.Len())
	assert.Equal(t, uint64(1), snap.Version())

	hits := c.FindExact("  FLOUR ")
	if assert.Len(t, hits, 1) {
		assert.Equal(t, int64(1), hits[0].Ingredient.ID)
		assert.Equal(t, ViaCanonical, hits[0].Via)
		assert.Nil(t, hits[0].Translation)
	}

	hits = c.FindExact("zucker")
	if assert.Len(t, hits, 1) {
		assert.Equal(t, ViaTranslation, hits[0].Via)
		assert.Equal(t, "Zucker", hits[0].Translation.Name)
	}

	assert.Empty(t, c.FindExact("Salt"))
}

func TestCatalogLoadFailureKeepsSnapshot(t *testing.T) {
	store := newFakeStore(sampleIngredients()...)
	c := loadedCatalog(t, store)
	before := c.Snapshot()

	store.setListErr(errors.New("connection refused"))
	snap, err := c.Load(context.Background())
	assert.Nil(t, snap)
	assert.ErrorIs(t, err, ErrCatalogUnavailable)
	assert.Same(t, before, c.Snapshot())
	assert.Len(t, c.FindExact("flour"), 1)
}

func TestCatalogStaleLoadDiscarded(t *testing.T) {
	store := newFakeStore()
	entered := make(chan struct{})
	release := make(chan struct{})
	store.onList = func(call int) ([]Ingredient, error) {
		if call == 1 {
			close(entered)
			<-release
			return []Ingredient{{ID: 9, Name: "Old", Language: "en"}}, nil
		}
		return []Ingredient{{ID: 10, Name: "New", Language: "en"}}, nil
	}
	c := NewCatalog(store)

	done := make(chan error, 1)
	go func() {
		_, err := c.Load(context.Background())
		done <- err
	}()
	<-entered

	snap, err := c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "New", snap.Ingredients()[0].Name)

	close(release)
	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, "New", c.Snapshot().Ingredients()[0].Name)
	assert.Empty(t, c.FindExact("Old"))
}

func TestCatalogSubscribe(t *testing.T) {
	c := NewCatalog(newFakeStore(sampleIngredients()...))

	var versions []uint64
	cancel := c.Subscribe(func(s *Snapshot) { versions = append(versions, s.Version()) })

	_, err := c.Load(context.Background())
	require.NoError(t, err)
	_, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []uint64{1, 2}, versions)

	cancel()
	_, err = c.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, versions, 2)
}

func TestCatalogNotifySkipsOlderSnapshots(t *testing.T) {
	c := NewCatalog(newFakeStore())

	var versions []uint64
	c.Subscribe(func(s *Snapshot) { versions = append(versions, s.Version()) })

	c.notify(newSnapshot(2, nil))
	c.notify(newSnapshot(1, nil))
	c.notify(newSnapshot(2, nil))
	c.notify(newSnapshot(3, nil))
	assert.Equal(t, []uint64{2, 3}, versions)
}

func TestCatalogConcurrentLoadsAndForms(t *testing.T) {
	c := loadedCatalog(t, newFakeStore(sampleIngredients()...))
	ctx := context.Background()

	var mu sync.Mutex
	var last uint64
	ordered := true
	c.Subscribe(func(s *Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		if s.Version() <= last {
			ordered = false
		}
		last = s.Version()
	})

	const workers = 8
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				if _, err := c.Load(ctx); err != nil && !errors.Is(err, ErrSuperseded) {
					errs <- err
				}
			}
		}()
		go func(w int) {
			defer wg.Done()
			form := NewForm(c, nil)
			defer form.Close()

			name := fmt.Sprintf("Item %d", w)
			if res, err := form.Type(0, name); err != nil || res.Kind != NoMatch {
				errs <- fmt.Errorf("type %s: %v %v", name, res.Kind, err)
				return
			}
			if _, err := form.ProposeCreate(ctx, 0); err != nil {
				errs <- err
				return
			}
			if _, err := form.SubmitCreate(ctx, 0, Draft{Name: name, Language: "en"}); err != nil {
				errs <- err
				return
			}
			if _, err := form.Validate(); err != nil {
				errs <- err
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	assert.True(t, ordered)
	for w := 0; w < workers; w++ {
		assert.Equal(t, Matched, Resolve(fmt.Sprintf("item %d", w), c.Snapshot()).Kind)
	}
}

func TestCatalogCreateTranslationThenResolve(t *testing.T) {
	c := loadedCatalog(t, newFakeStore(sampleIngredients()...))

	parent, tr, err := c.CreateTranslation(context.Background(), 1, NewIngredient{Name: " Farine ", Language: "FR"})
	require.NoError(t, err)
	assert.Equal(t, "Farine", tr.Name)
	assert.Equal(t, "fr", tr.Language)
	assert.Len(t, parent.Translations, 2)

	res := Resolve("farine", c.Snapshot())
	assert.Equal(t, Matched, res.Kind)
	assert.Equal(t, int64(1), res.Ingredient.ID)
	assert.Equal(t, ViaTranslation, res.Via)
}

func TestCatalogCreateKeepsMergeWhenRefreshFails(t *testing.T) {
	store := newFakeStore(sampleIngredients()...)
	c := loadedCatalog(t, store)
	store.setListErr(errors.New("timeout"))

	ing, err := c.CreateIngredient(context.Background(), NewIngredient{Name: "Zucchini", Language: "it"})
	require.NoError(t, err)

	res := Resolve("zucchini", c.Snapshot())
	assert.Equal(t, Matched, res.Kind)
	assert.Equal(t, ing.ID, res.Ingredient.ID)
	assert.Equal(t, 4, c.Snapshot().Len())
}

func TestCatalogCreateErrors(t *testing.T) {
	store := newFakeStore(sampleIngredients()...)
	c := loadedCatalog(t, store)
	ctx := context.Background()

	_, err := c.CreateIngredient(ctx, NewIngredient{Name: "MEHL", Language: "de"})
	assert.ErrorIs(t, err, ErrNameTaken)

	_, err = c.CreateIngredient(ctx, NewIngredient{Name: "   ", Language: "en"})
	assert.ErrorIs(t, err, ErrMissingName)

	_, err = c.CreateIngredient(ctx, NewIngredient{Name: "Salt"})
	assert.ErrorIs(t, err, ErrMissingLanguage)

	_, err = c.CreateIngredient(ctx, NewIngredient{Name: "Salt", Language: "12"})
	assert.ErrorIs(t, err, ErrInvalidLanguage)

	_, _, err = c.CreateTranslation(ctx, 2, NewIngredient{Name: "Sucre de canne", Language: "en"})
	assert.ErrorIs(t, err, ErrDuplicateLanguage)

	_, _, err = c.CreateTranslation(ctx, 99, NewIngredient{Name: "Sel", Language: "fr"})
	assert.ErrorIs(t, err, ErrNotFound)

	store.createErr = errors.New("500 internal server error")
	_, err = c.CreateIngredient(ctx, NewIngredient{Name: "Salt", Language: "en"})
	assert.ErrorIs(t, err, ErrCreateFailed)
	assert.Empty(t, c.FindExact("salt"))
}

func TestCatalogDelete(t *testing.T) {
	c := loadedCatalog(t, newFakeStore(sampleIngredients()...))
	ctx := context.Background()

	assert.ErrorIs(t, c.DeleteIngredient(ctx, 1), ErrReadOnly)
	assert.ErrorIs(t, c.DeleteTranslation(ctx, 2, 21), ErrReadOnly)
	assert.ErrorIs(t, c.DeleteIngredient(ctx, 42), ErrNotFound)
	assert.ErrorIs(t, c.DeleteTranslation(ctx, 3, 99), ErrNotFound)

	require.NoError(t, c.DeleteTranslation(ctx, 3, 31))
	ing, ok := c.Snapshot().Get(3)
	require.True(t, ok)
	assert.Empty(t, ing.Translations)

	require.NoError(t, c.DeleteIngredient(ctx, 3))
	_, ok = c.Snapshot().Get(3)
	assert.False(t, ok)
	assert.Empty(t, c.FindExact("butter"))
}

func TestSnapshotSuggest(t *testing.T) {
	c := loadedCatalog(t, newFakeStore(sampleIngredients()...))

	got := c.Suggest("ER", 0)
	names := make([]string, len(got))
	for i, ing := range got {
		names[i] = ing.Name
	}
	// Sugar matches through "Zucker".
	assert.Equal(t, []string{"Sugar", "Butter"}, names)

	assert.Len(t, c.Suggest("er", 1), 1)
	assert.Empty(t, c.Suggest("  ", 5))
}

func TestSnapshotIsolation(t *testing.T) {
	c := loadedCatalog(t, newFakeStore(sampleIngredients()...))

	list := c.Snapshot().Ingredients()
	list[0].Name = "Changed"
	list[0].Translations[0].Name = "Changed"

	ing, ok := c.Snapshot().Get(1)
	require.True(t, ok)
	assert.Equal(t, "Flour", ing.Name)
	assert.Equal(t, "Mehl", ing.Translations[0].Name)
}

func TestCanonicalLanguage(t *testing.T) {
	for in, want := range map[string]string{
		"de":    "de",
		"DE":    "de",
		" en ":  "en",
		"pt-br": "pt-BR",
	} {
		got, err := CanonicalLanguage(in)
		assert.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := CanonicalLanguage("")
	assert.ErrorIs(t, err, ErrMissingLanguage)
	_, err = CanonicalLanguage("not a language")
	assert.ErrorIs(t, err, ErrInvalidLanguage)
}
