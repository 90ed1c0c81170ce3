package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"recipebook/internal/ingredient"
	"recipebook/internal/recipe"
)

// RecipeService submits and fetches recipes on the remote API.
type RecipeService interface {
	SubmitRecipe(ctx context.Context, p recipe.Payload) (int64, error)
	GetRecipe(ctx context.Context, id int64) (*recipe.Recipe, error)
}

// Defaults for authoring-form retention.
const (
	DefaultFormTTL  = 2 * time.Hour
	DefaultMaxForms = 1000
)

type formSession struct {
	form     *ingredient.Form
	lastUsed time.Time
	seq      uint64
}

// Handler handles HTTP requests.
type Handler struct {
	Catalog  *ingredient.Catalog
	Detector ingredient.LanguageDetector
	Recipes  RecipeService

	// Forms untouched for FormTTL are closed. When MaxForms are open the
	// least recently used one is closed to make room.
	FormTTL  time.Duration
	MaxForms int

	now   func() time.Time
	mu    sync.Mutex
	forms map[string]*formSession
	seq   uint64
}

// NewHandler creates a new Handler. detector and recipes may be nil.
func NewHandler(catalog *ingredient.Catalog, detector ingredient.LanguageDetector, recipes RecipeService) *Handler {
	return &Handler{
		Catalog:  catalog,
		Detector: detector,
		Recipes:  recipes,
		FormTTL:  DefaultFormTTL,
		MaxForms: DefaultMaxForms,
		now:      time.Now,
		forms:    make(map[string]*formSession),
	}
}

// RegisterRoutes mounts every endpoint on r.
func (h *Handler) RegisterRoutes(r gin.IRouter) {
	r.GET("/ingredients", h.ListIngredients)
	r.POST("/ingredients/refresh", h.RefreshIngredients)
	r.GET("/ingredients/suggest", h.SuggestIngredients)
	r.POST("/ingredients/resolve", h.ResolveIngredient)
	r.POST("/ingredients", h.CreateIngredient)
	r.POST("/ingredients/:id/translations", h.CreateTranslation)
	r.DELETE("/ingredients/:id", h.DeleteIngredient)
	r.DELETE("/ingredients/:id/translations/:tid", h.DeleteTranslation)

	r.POST("/forms", h.NewForm)
	r.GET("/forms/:id", h.GetForm)
	r.DELETE("/forms/:id", h.CloseForm)
	r.POST("/forms/:id/lines", h.AddLine)
	r.PUT("/forms/:id/lines/:index", h.UpdateLine)
	r.DELETE("/forms/:id/lines/:index", h.RemoveLine)
	r.POST("/forms/:id/lines/:index/propose", h.ProposeCreate)
	r.POST("/forms/:id/lines/:index/create", h.SubmitCreate)
	r.POST("/forms/:id/lines/:index/cancel", h.CancelCreate)
	r.POST("/forms/:id/submit", h.SubmitForm)

	r.POST("/recipes/scale", h.ScaleRecipe)
	r.GET("/recipes/:id", h.GetRecipe)
}

// ListIngredients returns the current catalog snapshot.
func (h *Handler) ListIngredients(c *gin.Context) {
	c.JSON(http.StatusOK, h.Catalog.Snapshot().Ingredients())
}

// RefreshIngredients reloads the catalog from the store.
func (h *Handler) RefreshIngredients(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	snap, err := h.Catalog.Load(ctx)
	if errors.Is(err, ingredient.ErrSuperseded) {
		// A newer load won; whatever it installed is current.
		snap, err = h.Catalog.Snapshot(), nil
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap.Ingredients())
}

// SuggestIngredients handles autocomplete queries.
func (h *Handler) SuggestIngredients(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.String(http.StatusBadRequest, "limit must be a non-negative number")
			return
		}
		limit = n
	}
	suggestions := h.Catalog.Suggest(c.Query("q"), limit)
	if suggestions == nil {
		suggestions = []ingredient.Ingredient{}
	}
	c.JSON(http.StatusOK, suggestions)
}

type resolveRequest struct {
	Name string `json:"name"`
}

type matchResponse struct {
	Kind       string                 `json:"kind"`
	Input      string                 `json:"input"`
	Ingredient *ingredient.Ingredient `json:"ingredient,omitempty"`
	Via        string                 `json:"via,omitempty"`
	Candidates []ingredient.Hit       `json:"candidates,omitempty"`
}

func newMatchResponse(res ingredient.MatchResult) matchResponse {
	out := matchResponse{Kind: res.Kind.String(), Input: res.Input, Candidates: res.Candidates}
	if res.Kind == ingredient.Matched {
		ing := res.Ingredient
		out.Ingredient = &ing
		out.Via = res.Via.String()
	}
	return out
}

// ResolveIngredient matches a free-text name against the catalog.
func (h *Handler) ResolveIngredient(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}
	res := ingredient.Resolve(req.Name, h.Catalog.Snapshot())
	if res.Kind == ingredient.Ambiguous {
		log.Printf("ambiguous ingredient name %q: %v", req.Name, res.Err())
		c.JSON(http.StatusConflict, newMatchResponse(res))
		return
	}
	c.JSON(http.StatusOK, newMatchResponse(res))
}

// CreateIngredient adds a canonical ingredient.
func (h *Handler) CreateIngredient(c *gin.Context) {
	var req ingredient.NewIngredient
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	ing, err := h.Catalog.CreateIngredient(ctx, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, ing)
}

// CreateTranslation adds a translation under an existing ingredient.
func (h *Handler) CreateTranslation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req ingredient.NewIngredient
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	_, tr, err := h.Catalog.CreateTranslation(ctx, id, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tr)
}

// DeleteIngredient removes a user-added ingredient.
func (h *Handler) DeleteIngredient(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.Catalog.DeleteIngredient(ctx, id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// DeleteTranslation removes one translation of a user-added ingredient.
func (h *Handler) DeleteTranslation(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	tid, ok := paramID(c, "tid")
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	if err := h.Catalog.DeleteTranslation(ctx, id, tid); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type formResponse struct {
	ID    string                 `json:"id"`
	Lines []ingredient.FieldView `json:"lines"`
}

// NewForm opens an authoring form.
func (h *Handler) NewForm(c *gin.Context) {
	id := uuid.NewString()
	form := ingredient.NewForm(h.Catalog, h.Detector)

	h.mu.Lock()
	evicted := h.evictLocked()
	h.seq++
	h.forms[id] = &formSession{form: form, lastUsed: h.now(), seq: h.seq}
	h.mu.Unlock()
	for _, f := range evicted {
		f.Close()
	}

	log.Printf("opened form %s", id)
	c.JSON(http.StatusCreated, formResponse{ID: id, Lines: form.Fields()})
}

func (h *Handler) form(c *gin.Context) (*ingredient.Form, bool) {
	id := c.Param("id")
	h.mu.Lock()
	session, ok := h.forms[id]
	now := h.now()
	if ok && now.Sub(session.lastUsed) > h.FormTTL {
		delete(h.forms, id)
		h.mu.Unlock()
		session.form.Close()
		log.Printf("form %s expired", id)
		ok = false
	} else {
		if ok {
			h.seq++
			session.lastUsed, session.seq = now, h.seq
		}
		h.mu.Unlock()
	}
	if !ok {
		c.String(http.StatusNotFound, "Form not found")
		return nil, false
	}
	return session.form, true
}

// evictLocked drops expired forms and, if the cap is still reached, the
// least recently used one. The caller closes the returned forms after
// releasing h.mu.
func (h *Handler) evictLocked() []*ingredient.Form {
	var evicted []*ingredient.Form
	now := h.now()
	for id, session := range h.forms {
		if now.Sub(session.lastUsed) > h.FormTTL {
			delete(h.forms, id)
			evicted = append(evicted, session.form)
		}
	}
	for h.MaxForms > 0 && len(h.forms) >= h.MaxForms {
		var oldestID string
		var oldest uint64
		for id, session := range h.forms {
			if oldestID == "" || session.seq < oldest {
				oldestID, oldest = id, session.seq
			}
		}
		evicted = append(evicted, h.forms[oldestID].form)
		delete(h.forms, oldestID)
	}
	if len(evicted) > 0 {
		log.Printf("closed %d idle forms", len(evicted))
	}
	return evicted
}

// OpenForms returns the number of forms currently kept.
func (h *Handler) OpenForms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.forms)
}

// GetForm returns the state of every line.
func (h *Handler) GetForm(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, formResponse{ID: c.Param("id"), Lines: form.Fields()})
}

// CloseForm discards a form.
func (h *Handler) CloseForm(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	h.mu.Lock()
	delete(h.forms, c.Param("id"))
	h.mu.Unlock()
	form.Close()
	c.Status(http.StatusNoContent)
}

// AddLine appends an empty ingredient line.
func (h *Handler) AddLine(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	form.AddLine()
	c.JSON(http.StatusCreated, formResponse{ID: c.Param("id"), Lines: form.Fields()})
}

type lineRequest struct {
	Name     string   `json:"name"`
	Quantity *float64 `json:"quantity"`
	Unit     *string  `json:"unit"`
}

// UpdateLine records a keystroke in a line and returns its match state.
func (h *Handler) UpdateLine(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	index, ok := paramIndex(c)
	if !ok {
		return
	}
	var req lineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}

	if err := form.SetAmount(index, req.Quantity, req.Unit); err != nil {
		writeError(c, err)
		return
	}
	res, err := form.Type(index, req.Name)
	if res.Kind == ingredient.Ambiguous {
		log.Printf("ambiguous ingredient name %q in line %d: %v", req.Name, index, err)
		c.JSON(http.StatusConflict, newMatchResponse(res))
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form.Fields()[index])
}

// RemoveLine deletes an ingredient line.
func (h *Handler) RemoveLine(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	index, ok := paramIndex(c)
	if !ok {
		return
	}
	if err := form.RemoveLine(index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, formResponse{ID: c.Param("id"), Lines: form.Fields()})
}

// ProposeCreate starts the new-ingredient flow for a line that matched nothing.
func (h *Handler) ProposeCreate(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	index, ok := paramIndex(c)
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	draft, err := form.ProposeCreate(ctx, index)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, draft)
}

// SubmitCreate creates the drafted ingredient or translation.
func (h *Handler) SubmitCreate(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	index, ok := paramIndex(c)
	if !ok {
		return
	}
	var draft ingredient.Draft
	if err := c.ShouldBindJSON(&draft); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 15*time.Second)
	defer cancel()

	res, err := form.SubmitCreate(ctx, index, draft)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newMatchResponse(res))
}

// CancelCreate abandons a draft.
func (h *Handler) CancelCreate(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	index, ok := paramIndex(c)
	if !ok {
		return
	}
	if err := form.CancelCreate(index); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, form.Fields()[index])
}

type submitRequest struct {
	Title            string          `json:"title"`
	Instructions     string          `json:"instructions"`
	ServingsUnit     string          `json:"servings_unit"`
	Servings         json.RawMessage `json:"servings"`
	SpecialEquipment []string        `json:"special_equipment"`
	PrepTime         *int            `json:"prep_time"`
	CookTime         *int            `json:"cook_time"`
	RestTime         *int            `json:"rest_time"`
	Source           string          `json:"source"`
}

// SubmitForm validates the form and sends the recipe to the API.
func (h *Handler) SubmitForm(c *gin.Context) {
	form, ok := h.form(c)
	if !ok {
		return
	}
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid request: %s", err.Error()))
		return
	}

	unit, err := recipe.ParseServingUnit(req.ServingsUnit)
	if err != nil {
		writeError(c, err)
		return
	}
	servings, err := recipe.ParseServing(unit, req.Servings)
	if err != nil {
		writeError(c, err)
		return
	}
	lines, err := form.Validate()
	if err != nil {
		writeError(c, err)
		return
	}
	payload, err := recipe.Draft{
		Title:            req.Title,
		Instructions:     req.Instructions,
		Lines:            lines,
		Servings:         servings,
		SpecialEquipment: req.SpecialEquipment,
		PrepTime:         req.PrepTime,
		CookTime:         req.CookTime,
		RestTime:         req.RestTime,
		Source:           req.Source,
	}.Payload()
	if err != nil {
		writeError(c, err)
		return
	}

	if h.Recipes == nil {
		c.String(http.StatusServiceUnavailable, "recipe submission is not configured")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 30*time.Second)
	defer cancel()

	id, err := h.Recipes.SubmitRecipe(ctx, payload)
	if err != nil {
		log.Printf("failed to submit recipe %q: %v", payload.Title, err)
		c.String(http.StatusBadGateway, fmt.Sprintf("failed to submit recipe: %s", err.Error()))
		return
	}
	log.Printf("submitted recipe %d %q from form %s", id, payload.Title, c.Param("id"))
	c.JSON(http.StatusCreated, gin.H{"id": id, "recipe": payload})
}

type scaleRequest struct {
	Recipe recipe.Recipe        `json:"recipe"`
	Target recipe.ServingFields `json:"target"`
}

type scaledRecipe struct {
	Title        string                  `json:"title"`
	Servings     recipe.Serving          `json:"servings"`
	ServingsUnit recipe.ServingUnit      `json:"servings_unit"`
	Ingredients  []recipe.IngredientLine `json:"ingredients"`
}

// ScaleRecipe rescales the ingredients of a recipe sent in the body.
func (h *Handler) ScaleRecipe(c *gin.Context) {
	var req scaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, err)
		return
	}
	h.writeScaled(c, &req.Recipe, req.Target)
}

// GetRecipe fetches a stored recipe and scales it to the serving given in
// the query (count, diameter or width and length). Without a query the
// recipe is returned at its own size.
func (h *Handler) GetRecipe(c *gin.Context) {
	if h.Recipes == nil {
		c.String(http.StatusServiceUnavailable, "recipe API is not configured")
		return
	}
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	fields, err := servingQuery(c)
	if err != nil {
		c.String(http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	r, err := h.Recipes.GetRecipe(ctx, id)
	if errors.Is(err, recipe.ErrNotFound) {
		c.String(http.StatusNotFound, "Recipe not found")
		return
	}
	if err != nil {
		log.Printf("failed to fetch recipe %d: %v", id, err)
		c.String(http.StatusBadGateway, fmt.Sprintf("failed to fetch recipe: %s", err.Error()))
		return
	}
	h.writeScaled(c, r, fields)
}

func (h *Handler) writeScaled(c *gin.Context, r *recipe.Recipe, target recipe.ServingFields) {
	view := recipe.NewView(r)
	if target != (recipe.ServingFields{}) {
		if err := view.Adjust(target); err != nil {
			writeError(c, err)
			return
		}
	}
	lines, err := view.Lines()
	if err != nil {
		log.Printf("cannot scale recipe %d: %v", r.ID, err)
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, scaledRecipe{
		Title:        r.Title,
		Servings:     view.Target(),
		ServingsUnit: view.Target().Unit(),
		Ingredients:  lines,
	})
}

func servingQuery(c *gin.Context) (recipe.ServingFields, error) {
	var fields recipe.ServingFields
	for name, dst := range map[string]**float64{
		"count":    &fields.Count,
		"diameter": &fields.Diameter,
		"width":    &fields.Width,
		"length":   &fields.Length,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return recipe.ServingFields{}, fmt.Errorf("%s must be a number", name)
		}
		*dst = &v
	}
	return fields, nil
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.String(http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

func paramIndex(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		c.String(http.StatusBadRequest, "invalid line index")
		return 0, false
	}
	return index, true
}

// writeError maps domain errors onto status codes. Input problems are the
// caller's to fix; mismatched or ambiguous stored data is a conflict.
func writeError(c *gin.Context, err error) {
	var unresolved *ingredient.UnresolvedError
	if errors.As(err, &unresolved) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "lines": unresolved.Indices})
		return
	}

	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, recipe.ErrMissingServingUnit),
		errors.Is(err, recipe.ErrUnknownServingUnit),
		errors.Is(err, recipe.ErrInvalidQuantity),
		errors.Is(err, recipe.ErrMissingDimension),
		errors.Is(err, recipe.ErrMixedFields),
		errors.Is(err, recipe.ErrMissingTitle),
		errors.Is(err, recipe.ErrMissingInstructions),
		errors.Is(err, recipe.ErrInvalidDuration),
		errors.Is(err, recipe.ErrNoIngredients),
		errors.Is(err, ingredient.ErrMissingName),
		errors.Is(err, ingredient.ErrMissingLanguage),
		errors.Is(err, ingredient.ErrInvalidLanguage),
		errors.Is(err, ingredient.ErrMissingTarget),
		errors.Is(err, ingredient.ErrInvalidTransition):
		status = http.StatusBadRequest
	case errors.Is(err, recipe.ErrVariantMismatch),
		errors.Is(err, recipe.ErrDivisionByZero),
		errors.Is(err, ingredient.ErrAmbiguous),
		errors.Is(err, ingredient.ErrNameTaken),
		errors.Is(err, ingredient.ErrDuplicateLanguage):
		status = http.StatusConflict
	case errors.Is(err, recipe.ErrOutOfRange):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, ingredient.ErrNotFound),
		errors.Is(err, recipe.ErrNotFound),
		errors.Is(err, ingredient.ErrLineOutOfRange):
		status = http.StatusNotFound
	case errors.Is(err, ingredient.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, ingredient.ErrCatalogUnavailable),
		errors.Is(err, ingredient.ErrCreateFailed),
		errors.Is(err, ingredient.ErrDeleteFailed):
		status = http.StatusBadGateway
	default:
		var syntaxErr *json.SyntaxError
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
			status = http.StatusBadRequest
		}
	}
	c.String(status, err.Error())
}
