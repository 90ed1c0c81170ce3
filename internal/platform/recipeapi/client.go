// Package recipeapi talks to the remote recipe API: the ingredient catalog,
// ingredient and translation creation, and recipe submission.
package recipeapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"recipebook/internal/ingredient"
	"recipebook/internal/recipe"
)

// ErrNotFound is returned for 404 responses.
var ErrNotFound = errors.New("not found")

// StatusError is returned for any other non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("received non-OK status code: %d: %s", e.Code, e.Body)
}

// Client is a client for the recipe API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
}

var _ ingredient.Store = (*Client)(nil)

// NewClient creates a new client for the API at baseURL. token is sent as a
// bearer token when not empty.
func NewClient(baseURL, token string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
	}
}

// ListIngredients fetches every ingredient with its translations.
func (c *Client) ListIngredients(ctx context.Context) ([]ingredient.Ingredient, error) {
	var list []ingredient.Ingredient
	if err := c.doJSON(ctx, http.MethodGet, "/api/ingredients", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to list ingredients: %w", err)
	}
	if list == nil {
		list = []ingredient.Ingredient{}
	}
	return list, nil
}

// CreateIngredient creates a new canonical ingredient.
func (c *Client) CreateIngredient(ctx context.Context, in ingredient.NewIngredient) (*ingredient.Ingredient, error) {
	var created ingredient.Ingredient
	if err := c.doJSON(ctx, http.MethodPost, "/api/ingredients", in, &created); err != nil {
		return nil, fmt.Errorf("failed to create ingredient: %w", err)
	}
	return &created, nil
}

// CreateTranslation adds a translation to an existing ingredient.
func (c *Client) CreateTranslation(ctx context.Context, ingredientID int64, in ingredient.NewIngredient) (*ingredient.Translation, error) {
	var created ingredient.Translation
	path := fmt.Sprintf("/api/ingredients/%d/translations", ingredientID)
	if err := c.doJSON(ctx, http.MethodPost, path, in, &created); err != nil {
		return nil, fmt.Errorf("failed to create translation: %w", err)
	}
	return &created, nil
}

// DeleteIngredient deletes a user-added ingredient.
func (c *Client) DeleteIngredient(ctx context.Context, id int64) error {
	if err := c.doJSON(ctx, http.MethodDelete, fmt.Sprintf("/api/ingredients/%d", id), nil, nil); err != nil {
		return fmt.Errorf("failed to delete ingredient: %w", err)
	}
	return nil
}

// DeleteTranslation deletes one translation of an ingredient.
func (c *Client) DeleteTranslation(ctx context.Context, ingredientID, translationID int64) error {
	path := fmt.Sprintf("/api/ingredients/%d/translations/%d", ingredientID, translationID)
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("failed to delete translation: %w", err)
	}
	return nil
}

// GetRecipe fetches a stored recipe.
func (c *Client) GetRecipe(ctx context.Context, id int64) (*recipe.Recipe, error) {
	var r recipe.Recipe
	err := c.doJSON(ctx, http.MethodGet, fmt.Sprintf("/api/recipes/%d", id), nil, &r)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", recipe.ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recipe: %w", err)
	}
	return &r, nil
}

// SubmitRecipe posts a new recipe as a multipart form, the encoding the API
// expects because the same request may carry images. It returns the id of
// the created recipe.
func (c *Client) SubmitRecipe(ctx context.Context, p recipe.Payload) (int64, error) {
	ingredients, err := json.Marshal(p.Ingredients)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal ingredients: %w", err)
	}
	servings, err := json.Marshal(p.Servings)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal servings: %w", err)
	}
	equipment, err := json.Marshal(p.SpecialEquipment)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal special equipment: %w", err)
	}

	fields := [][2]string{
		{"title", p.Title},
		{"instructions", p.Instructions},
		{"ingredients", string(ingredients)},
		{"servings", string(servings)},
		{"servings_unit", string(p.ServingsUnit)},
		{"special_equipment", string(equipment)},
		{"source", p.Source},
	}
	// Times the author left out are omitted rather than sent as zero.
	for _, t := range []struct {
		name    string
		minutes *int
	}{{"prep_time", p.PrepTime}, {"cook_time", p.CookTime}, {"rest_time", p.RestTime}} {
		if t.minutes != nil {
			fields = append(fields, [2]string{t.name, strconv.Itoa(*t.minutes)})
		}
	}

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, field := range fields {
		if err := writer.WriteField(field[0], field[1]); err != nil {
			return 0, fmt.Errorf("failed to write form field %s: %w", field[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("failed to close form: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPost, "/api/recipes", body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	var created struct {
		ID int64 `json:"id"`
	}
	if err := c.do(req, &created); err != nil {
		return 0, fmt.Errorf("failed to submit recipe: %w", err)
	}
	return created.ID, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		reqBytes, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(reqBytes)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response body: %w", err)
	}
	return nil
}
