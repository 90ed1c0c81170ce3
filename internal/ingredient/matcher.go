package ingredient

import "recipebook/internal/recipe"

// MatchKind is the outcome of resolving a name.
type MatchKind int

const (
	NoMatch MatchKind = iota
	Matched
	Ambiguous
)

func (k MatchKind) String() string {
	switch k {
	case Matched:
		return "matched"
	case Ambiguous:
		return "ambiguous"
	default:
		return "no_match"
	}
}

// MatchResult is the resolution of one free-text ingredient name.
type MatchResult struct {
	Kind       MatchKind
	Input      string
	Ingredient Ingredient
	Via        MatchVia
	Candidates []Hit
}

// Err returns an *AmbiguousError for ambiguous results and nil otherwise.
func (r MatchResult) Err() error {
	if r.Kind != Ambiguous {
		return nil
	}
	return &AmbiguousError{Input: r.Input, Candidates: r.Candidates}
}

// Resolve matches input against canonical names and translations in snap.
// A translation resolves to its parent ingredient. Several hits on the same
// ingredient count as one; hits on different ingredients are ambiguous.
func Resolve(input string, snap *Snapshot) MatchResult {
	res := MatchResult{Kind: NoMatch, Input: input}
	if Normalize(input) == "" {
		return res
	}
	hits := snap.FindExact(input)
	unique := hits[:0:0]
	seen := make(map[int64]bool, len(hits))
	for _, h := range hits {
		if seen[h.Ingredient.ID] {
			continue
		}
		seen[h.Ingredient.ID] = true
		unique = append(unique, h)
	}
	switch len(unique) {
	case 0:
		return res
	case 1:
		res.Kind = Matched
		res.Ingredient = unique[0].Ingredient
		res.Via = unique[0].Via
		return res
	default:
		res.Kind = Ambiguous
		res.Candidates = unique
		return res
	}
}

// ValidateAll resolves every line. When all lines match it returns copies
// with IngredientID set; otherwise an *UnresolvedError naming every line that
// did not resolve.
func ValidateAll(lines []recipe.IngredientLine, snap *Snapshot) ([]recipe.IngredientLine, error) {
	out := make([]recipe.IngredientLine, len(lines))
	var failed []int
	for i, line := range lines {
		res := Resolve(line.Name, snap)
		if res.Kind != Matched {
			failed = append(failed, i)
			continue
		}
		line.IngredientID = res.Ingredient.ID
		out[i] = line
	}
	if len(failed) > 0 {
		return nil, &UnresolvedError{Indices: failed}
	}
	return out, nil
}
