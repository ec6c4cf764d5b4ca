package store

import (
	"cmp"
	"slices"
	"strings"

	"github.com/abgdnv/storefront/internal/model"
)

// applyQuery filters, sorts and pages products in memory. The input order is kept for equal keys
// and when no sort key is given. It returns the page and the total number of matches.
func applyQuery(products []model.Product, q model.ProductQuery) ([]model.Product, int) {
	matched := make([]model.Product, 0, len(products))
	for _, p := range products {
		if matches(p, q) {
			matched = append(matched, p)
		}
	}

	if cmpFn := comparator(q.SortBy); cmpFn != nil {
		desc := q.Order == model.OrderDesc
		slices.SortStableFunc(matched, func(a, b model.Product) int {
			if desc {
				return cmpFn(b, a)
			}
			return cmpFn(a, b)
		})
	}

	total := len(matched)
	if q.Offset < 0 || q.Offset >= total {
		return []model.Product{}, total
	}
	end := total
	if q.Limit > 0 && q.Limit < total-q.Offset {
		end = q.Offset + q.Limit
	}
	return matched[q.Offset:end], total
}

func matches(p model.Product, q model.ProductQuery) bool {
	if q.Category != "" && !containsFold(p.Category, q.Category) {
		return false
	}
	if q.Search != "" && !containsFold(p.Title, q.Search) && !containsFold(p.Description, q.Search) {
		return false
	}
	if q.MinPrice != nil && p.Price.LessThan(*q.MinPrice) {
		return false
	}
	if q.MaxPrice != nil && p.Price.GreaterThan(*q.MaxPrice) {
		return false
	}
	if q.Available != nil && p.Available() != *q.Available {
		return false
	}
	return true
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func comparator(sortBy string) func(a, b model.Product) int {
	switch sortBy {
	case model.SortByPrice:
		return func(a, b model.Product) int { return a.Price.Cmp(b.Price) }
	case model.SortByTitle:
		return func(a, b model.Product) int { return cmp.Compare(strings.ToLower(a.Title), strings.ToLower(b.Title)) }
	case model.SortByStock:
		return func(a, b model.Product) int { return cmp.Compare(a.Stock, b.Stock) }
	case model.SortByCode:
		return func(a, b model.Product) int { return cmp.Compare(a.Code, b.Code) }
	case model.SortByCreatedAt:
		return func(a, b model.Product) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return nil
	}
}
