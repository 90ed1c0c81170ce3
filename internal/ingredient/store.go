package ingredient

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// PostgresStore implements the Store interface for PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to the database and creates the ingredient tables if needed.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Create ingredients table if not exists
	schema := `
	CREATE TABLE IF NOT EXISTS ingredients (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		language VARCHAR(20) NOT NULL,
		predefined BOOLEAN NOT NULL DEFAULT FALSE
	);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingredients table: %w", err)
	}

	// Create ingredient_translations table if not exists
	schema = `
	CREATE TABLE IF NOT EXISTS ingredient_translations (
		id BIGSERIAL PRIMARY KEY,
		ingredient_id BIGINT NOT NULL REFERENCES ingredients(id) ON DELETE CASCADE,
		language VARCHAR(20) NOT NULL,
		name TEXT NOT NULL,
		CONSTRAINT uq_ingredient_language UNIQUE (ingredient_id, language)
	);
	CREATE INDEX IF NOT EXISTS ix_ingredient_translations_name ON ingredient_translations (name);
	`
	_, err = db.Exec(schema)
	if err != nil {
		return nil, fmt.Errorf("failed to create ingredient_translations table: %w", err)
	}

	return NewPostgresStoreFromDB(db), nil
}

// NewPostgresStoreFromDB wraps an existing connection.
func NewPostgresStoreFromDB(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type translationRow struct {
	IngredientID int64 `db:"ingredient_id"`
	Translation
}

// ListIngredients returns every ingredient with its translations, ordered by id.
func (s *PostgresStore) ListIngredients(ctx context.Context) ([]Ingredient, error) {
	var ingredients []Ingredient
	err := s.db.SelectContext(ctx, &ingredients, "SELECT id, name, language, predefined FROM ingredients ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}

	var rows []translationRow
	err = s.db.SelectContext(ctx, &rows, "SELECT id, ingredient_id, language, name FROM ingredient_translations ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to list translations: %w", err)
	}

	index := make(map[int64]int, len(ingredients))
	for i := range ingredients {
		ingredients[i].Translations = []Translation{}
		index[ingredients[i].ID] = i
	}
	for _, row := range rows {
		if i, ok := index[row.IngredientID]; ok {
			ingredients[i].Translations = append(ingredients[i].Translations, row.Translation)
		}
	}
	return ingredients, nil
}

// CreateIngredient inserts a user-added ingredient.
func (s *PostgresStore) CreateIngredient(ctx context.Context, in NewIngredient) (*Ingredient, error) {
	ing := Ingredient{Name: in.Name, Language: in.Language, Translations: []Translation{}}
	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO ingredients (name, language) VALUES ($1, $2) RETURNING id",
		in.Name,
		in.Language,
	).Scan(&ing.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save ingredient: %w", err)
	}
	return &ing, nil
}

// CreateTranslation inserts a translation under an existing ingredient.
func (s *PostgresStore) CreateTranslation(ctx context.Context, ingredientID int64, in NewIngredient) (*Translation, error) {
	var exists bool
	err := s.db.QueryRowxContext(ctx, "SELECT EXISTS (SELECT 1 FROM ingredients WHERE id = $1)", ingredientID).Scan(&exists)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ingredient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrNotFound, ingredientID)
	}

	tr := Translation{Name: in.Name, Language: in.Language}
	err = s.db.QueryRowxContext(ctx,
		"INSERT INTO ingredient_translations (ingredient_id, language, name) VALUES ($1, $2, $3) RETURNING id",
		ingredientID,
		in.Language,
		in.Name,
	).Scan(&tr.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to save translation: %w", err)
	}
	return &tr, nil
}

// DeleteIngredient removes a user-added ingredient; its translations go with it.
func (s *PostgresStore) DeleteIngredient(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM ingredients WHERE id = $1 AND NOT predefined", id)
	if err != nil {
		return fmt.Errorf("failed to delete ingredient: %w", err)
	}
	return expectOne(res, id)
}

// DeleteTranslation removes a single translation.
func (s *PostgresStore) DeleteTranslation(ctx context.Context, ingredientID, translationID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM ingredient_translations WHERE id = $1 AND ingredient_id = $2",
		translationID,
		ingredientID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete translation: %w", err)
	}
	return expectOne(res, translationID)
}

func expectOne(res sql.Result, id int64) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	return nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	if s.db == nil {
		return errors.New("store is not open")
	}
	return s.db.Close()
}
