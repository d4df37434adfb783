// Package normalize resolves free-text product type queries against the
// catalog using fuzzy matching.
package normalize

import (
	"context"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/sells-group/manuid/internal/model"
	"github.com/sells-group/manuid/internal/store"
)

// matchThreshold is the minimum blended score to accept a catalog match.
const matchThreshold = 0.45

var (
	tokenSplitRE = regexp.MustCompile(`[^a-zA-Z0-9]+`)
	slugRE       = regexp.MustCompile(`[^a-z0-9]+`)
	titleCaser   = cases.Title(language.English)
)

// Result is the outcome of normalizing a product type query.
type Result struct {
	// ProductType is the matched catalog entry, nil when no candidate
	// cleared the threshold.
	ProductType *model.ProductType
	// NormalizedQuery is the canonical name on a match, otherwise the
	// cleaned input.
	NormalizedQuery string
}

// Query matches a free-text product type query against the catalog. The
// blend weighs character-bigram similarity at 0.55 and token overlap at
// 0.45; candidates below the threshold are rejected.
func Query(ctx context.Context, st store.Store, query string) (*Result, error) {
	clean := strings.TrimSpace(query)
	if clean == "" {
		return &Result{NormalizedQuery: query}, nil
	}

	productTypes, err := st.ListProductTypes(ctx, store.ProductTypeFilter{Limit: 1000})
	if err != nil {
		return nil, err
	}
	if len(productTypes) == 0 {
		return &Result{NormalizedQuery: clean}, nil
	}

	queryTokens := tokenSet(clean)

	var (
		best      *model.ProductType
		bestScore float64
	)
	for i := range productTypes {
		pt := &productTypes[i]
		candidates := append([]string{pt.Name, pt.Slug}, pt.Keywords...)

		var itemScore float64
		for _, candidate := range candidates {
			ratio := bigramSimilarity(strings.ToLower(clean), strings.ToLower(candidate))
			overlap := tokenOverlap(queryTokens, tokenSet(candidate))
			if score := 0.55*ratio + 0.45*overlap; score > itemScore {
				itemScore = score
			}
		}
		if itemScore > bestScore {
			bestScore = itemScore
			best = pt
		}
	}

	if best != nil && bestScore >= matchThreshold {
		return &Result{ProductType: best, NormalizedQuery: best.Name}, nil
	}
	return &Result{NormalizedQuery: clean}, nil
}

// Slugify converts a product type name to its catalog slug form.
func Slugify(value string) string {
	slug := strings.Trim(slugRE.ReplaceAllString(strings.ToLower(value), "_"), "_")
	if len(slug) > 120 {
		slug = slug[:120]
	}
	if slug == "" {
		return "custom_product_type"
	}
	return slug
}

// TitleName renders a user query as a catalog display name.
func TitleName(value string) string {
	return titleCaser.String(strings.TrimSpace(value))
}

func tokenSet(value string) map[string]bool {
	set := make(map[string]bool)
	for _, t := range tokenSplitRE.Split(strings.ToLower(value), -1) {
		if t != "" {
			set[t] = true
		}
	}
	return set
}

func tokenOverlap(query, candidate map[string]bool) float64 {
	if len(query) == 0 {
		return 0
	}
	matched := 0
	for t := range query {
		if candidate[t] {
			matched++
		}
	}
	return float64(matched) / float64(len(query))
}

// bigramSimilarity is the Dice coefficient over character
// bigrams, which tracks sequence similarity well for short catalog
// names.
func bigramSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ab := bigrams(a)
	bb := bigrams(b)
	if len(ab) == 0 || len(bb) == 0 {
		return 0
	}
	matched := 0
	for bg, n := range ab {
		if m := bb[bg]; m > 0 {
			if n < m {
				matched += n
			} else {
				matched += m
			}
		}
	}
	total := 0
	for _, n := range ab {
		total += n
	}
	for _, n := range bb {
		total += n
	}
	return 2 * float64(matched) / float64(total)
}

func bigrams(s string) map[string]int {
	out := make(map[string]int)
	runes := []rune(s)
	for i := 0; i+1 < len(runes); i++ {
		out[string(runes[i:i+2])]++
	}
	return out
}
