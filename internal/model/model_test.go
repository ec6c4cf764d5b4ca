package model

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Product_priceIsJSONNumber(t *testing.T) {
	// given
	p := Product{ID: "1", Title: "Phone", Price: decimal.RequireFromString("199.90"), Thumbnails: []string{}}

	// when
	raw, err := json.Marshal(p)

	// then
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":199.9`)

	var back Product
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, p.Price.Equal(back.Price))
}

func Test_Product_Available(t *testing.T) {
	assert.True(t, Product{Status: true, Stock: 1}.Available())
	assert.False(t, Product{Status: true, Stock: 0}.Available())
	assert.False(t, Product{Status: false, Stock: 5}.Available())
}

func Test_Cart_helpers(t *testing.T) {
	// given
	c := NewCart(time.Now())
	c.Products = append(c.Products, LineItem{ProductID: "a", Quantity: 2}, LineItem{ProductID: "b", Quantity: 3})

	// then
	assert.Equal(t, CartStatusActive, c.Status)
	assert.Equal(t, 1, c.LineIndex("b"))
	assert.Equal(t, -1, c.LineIndex("z"))
	assert.Equal(t, 5, c.TotalQuantity())
}

func Test_NewPage(t *testing.T) {
	two, three := 2, 3
	one := 1
	hugePrev := math.MaxInt/10 - 1
	testCases := []struct {
		name     string
		total    int
		page     int
		limit    int
		expected Page
	}{
		{
			name: "first of three", total: 25, page: 1, limit: 10,
			expected: Page{TotalDocs: 25, Limit: 10, Page: 1, TotalPages: 3, HasNextPage: true, NextPage: &two, PagingCounter: 1},
		},
		{
			name: "middle page", total: 25, page: 2, limit: 10,
			expected: Page{TotalDocs: 25, Limit: 10, Page: 2, TotalPages: 3, HasNextPage: true, HasPrevPage: true, NextPage: &three, PrevPage: &one, PagingCounter: 11},
		},
		{
			name: "empty result has one page", total: 0, page: 1, limit: 10,
			expected: Page{TotalDocs: 0, Limit: 10, Page: 1, TotalPages: 1, PagingCounter: 1},
		},
		{
			name: "huge page saturates the counter", total: 5, page: math.MaxInt / 10, limit: 50,
			expected: Page{TotalDocs: 5, Limit: 50, Page: math.MaxInt / 10, TotalPages: 1, HasPrevPage: true, PrevPage: &hugePrev, PagingCounter: math.MaxInt},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			p := NewPage(nil, tc.total, tc.page, tc.limit)

			// then
			assert.Equal(t, tc.expected, p)
		})
	}
}
