package ingredient

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs against a real database when TEST_DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	store, err := NewPostgresStore(dsn)
	require.NoError(t, err)
	defer store.Close()
	ctx := context.Background()

	_, err = store.db.ExecContext(ctx, "TRUNCATE ingredients, ingredient_translations RESTART IDENTITY")
	require.NoError(t, err)
	_, err = store.db.ExecContext(ctx, "INSERT INTO ingredients (name, language, predefined) VALUES ('Flour', 'en', TRUE)")
	require.NoError(t, err)

	ing, err := store.CreateIngredient(ctx, NewIngredient{Name: "Zucchini", Language: "it"})
	require.NoError(t, err)
	assert.NotZero(t, ing.ID)

	tr, err := store.CreateTranslation(ctx, ing.ID, NewIngredient{Name: "Courgette", Language: "fr"})
	require.NoError(t, err)
	assert.NotZero(t, tr.ID)

	_, err = store.CreateTranslation(ctx, ing.ID, NewIngredient{Name: "Courgette verte", Language: "fr"})
	assert.Error(t, err)

	_, err = store.CreateTranslation(ctx, 9999, NewIngredient{Name: "Sel", Language: "fr"})
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := store.ListIngredients(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.True(t, list[0].Predefined)
	assert.Empty(t, list[0].Translations)
	assert.Equal(t, []Translation{{ID: tr.ID, Name: "Courgette", Language: "fr"}}, list[1].Translations)

	assert.ErrorIs(t, store.DeleteIngredient(ctx, list[0].ID), ErrNotFound)
	require.NoError(t, store.DeleteTranslation(ctx, ing.ID, tr.ID))
	assert.ErrorIs(t, store.DeleteTranslation(ctx, ing.ID, tr.ID), ErrNotFound)
	require.NoError(t, store.DeleteIngredient(ctx, ing.ID))

	// The catalog reads the same rows.
	c := NewCatalog(store)
	snap, err := c.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
	assert.Equal(t, Matched, Resolve("flour", snap).Kind)
}
