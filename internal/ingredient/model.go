// Package ingredient holds the ingredient catalog and resolves free-text
// ingredient names typed into recipe forms against it.
package ingredient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
)

// Translation is an alternate-language name of an ingredient.
type Translation struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Language string `json:"language" db:"language"`
}

// Ingredient is a canonical catalog entry.
type Ingredient struct {
	ID           int64         `json:"id" db:"id"`
	Name         string        `json:"name" db:"name"`
	Language     string        `json:"language" db:"language"`
	Predefined   bool          `json:"predefined" db:"predefined"`
	Translations []Translation `json:"translations"`
}

// NewIngredient is the body of a create-ingredient or create-translation request.
type NewIngredient struct {
	Name     string `json:"name"`
	Language string `json:"language"`
}

// Normalize trims surrounding whitespace and case-folds s. Stored names and
// user input both go through it before they are compared.
func Normalize(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// UnmarshalJSON implements the json.Unmarshaler interface for Ingredient.
// Depending on the API version translations arrive as a list, as an object
// keyed by language, or not at all.
func (i *Ingredient) UnmarshalJSON(data []byte) error {
	type Alias Ingredient
	aux := &struct {
		Translations json.RawMessage `json:"translations"`
		*Alias
	}{
		Alias: (*Alias)(i),
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	translations, err := decodeTranslations(aux.Translations)
	if err != nil {
		return fmt.Errorf("ingredient %d: %w", i.ID, err)
	}
	i.Translations = translations
	return nil
}

func decodeTranslations(raw json.RawMessage) ([]Translation, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return []Translation{}, nil
	}
	switch raw[0] {
	case '[':
		var list []Translation
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, fmt.Errorf("failed to decode translations: %w", err)
		}
		if list == nil {
			list = []Translation{}
		}
		return list, nil
	case '{':
		var keyed map[string]json.RawMessage
		if err := json.Unmarshal(raw, &keyed); err != nil {
			return nil, fmt.Errorf("failed to decode translations: %w", err)
		}
		langs := make([]string, 0, len(keyed))
		for lang := range keyed {
			langs = append(langs, lang)
		}
		sort.Strings(langs)

		list := make([]Translation, 0, len(keyed))
		for _, lang := range langs {
			var tr Translation
			value := bytes.TrimSpace(keyed[lang])
			if len(value) > 0 && value[0] == '"' {
				if err := json.Unmarshal(value, &tr.Name); err != nil {
					return nil, fmt.Errorf("failed to decode translation %q: %w", lang, err)
				}
			} else if err := json.Unmarshal(value, &tr); err != nil {
				return nil, fmt.Errorf("failed to decode translation %q: %w", lang, err)
			}
			if tr.Language == "" {
				tr.Language = lang
			}
			list = append(list, tr)
		}
		return list, nil
	default:
		return nil, fmt.Errorf("unexpected translations value: %s", raw)
	}
}

// hasLanguage reports whether i already has a name in lang, canonical or translated.
func (i Ingredient) hasLanguage(lang string) bool {
	if strings.EqualFold(i.Language, lang) {
		return true
	}
	for _, tr := range i.Translations {
		if strings.EqualFold(tr.Language, lang) {
			return true
		}
	}
	return false
}

func (i Ingredient) clone() Ingredient {
	out := i
	out.Translations = append([]Translation(nil), i.Translations...)
	if out.Translations == nil {
		out.Translations = []Translation{}
	}
	return out
}
