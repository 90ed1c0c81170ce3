package ingredient

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors returned by the catalog and the matcher.
var (
	ErrCatalogUnavailable = errors.New("ingredient catalog unavailable")
	ErrCreateFailed       = errors.New("create failed")
	ErrDeleteFailed       = errors.New("delete failed")
	ErrSuperseded         = errors.New("catalog load superseded by a newer load")
	ErrNotFound           = errors.New("ingredient not found")
	ErrReadOnly           = errors.New("predefined ingredients cannot be changed")
	ErrNameTaken          = errors.New("name already used by another ingredient")
	ErrDuplicateLanguage  = errors.New("ingredient already has a name in this language")
	ErrMissingName        = errors.New("ingredient name is required")
	ErrMissingLanguage    = errors.New("language is required")
	ErrInvalidLanguage    = errors.New("invalid language")
	ErrMissingTarget      = errors.New("translation needs an existing ingredient")
	ErrInvalidTransition  = errors.New("invalid field transition")
	ErrAmbiguous          = errors.New("ingredient name is ambiguous")
	ErrUnresolvedLines    = errors.New("ingredient lines are not resolved")
	ErrLineOutOfRange     = errors.New("no such ingredient line")
)

// AmbiguousError lists every catalog entry an input matched.
type AmbiguousError struct {
	Input      string
	Candidates []Hit
}

func (e *AmbiguousError) Error() string {
	ids := make([]string, len(e.Candidates))
	for i, c := range e.Candidates {
		ids[i] = fmt.Sprintf("%d", c.Ingredient.ID)
	}
	return fmt.Sprintf("%s: %q matches ingredients %s", ErrAmbiguous, e.Input, strings.Join(ids, ", "))
}

func (e *AmbiguousError) Unwrap() error { return ErrAmbiguous }

// UnresolvedError lists the index of every line that did not resolve.
type UnresolvedError struct {
	Indices []int
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, len(e.Indices))
	for i, idx := range e.Indices {
		parts[i] = fmt.Sprintf("%d", idx)
	}
	return fmt.Sprintf("%s: lines %s", ErrUnresolvedLines, strings.Join(parts, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolvedLines }
