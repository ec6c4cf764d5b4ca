// Package model holds the storefront domain types shared by stores and services.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// prices travel as JSON numbers
	decimal.MarshalJSONWithoutQuotes = true
}

// Product field limits.
const (
	TitleMinLen       = 3
	TitleMaxLen       = 100
	DescriptionMinLen = 10
	DescriptionMaxLen = 500
	CodeMinLen        = 2
	CodeMaxLen        = 50
	MaxStock          = 999999
	MaxThumbnails     = 5
)

var (
	MinPrice = decimal.RequireFromString("0.01")
	MaxPrice = decimal.NewFromInt(999999)
)

// Categories lists the accepted product categories, stored lowercase.
var Categories = []string{
	"electronics", "clothing", "home", "sports", "books",
	"toys", "beauty", "automotive", "garden", "pets",
}

type Product struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Code        string          `json:"code"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	Status      bool            `json:"status"`
	Category    string          `json:"category"`
	Thumbnails  []string        `json:"thumbnails"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Available reports whether the product can be bought at all.
func (p Product) Available() bool {
	return p.Status && p.Stock > 0
}

// Sort keys accepted by ProductQuery.SortBy.
const (
	SortByPrice     = "price"
	SortByTitle     = "title"
	SortByStock     = "stock"
	SortByCode      = "code"
	SortByCreatedAt = "createdAt"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

// ProductQuery filters, sorts and slices a product listing. Zero values disable a criterion.
// Limit 0 returns every match.
type ProductQuery struct {
	Category  string
	Search    string
	MinPrice  *decimal.Decimal
	MaxPrice  *decimal.Decimal
	Available *bool
	SortBy    string
	Order     string
	Limit     int
	Offset    int
}

// StockChange is a quantity to remove from one product's stock.
type StockChange struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
