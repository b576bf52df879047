package dto

import "github.com/shopspring/decimal"

// ItemFilter is bound from the query string of GET /v1/items.
type ItemFilter struct {
	Name  string `form:"name"`
	Page  int    `form:"page,default=1"    validate:"min=1"`
	Limit int    `form:"limit,default=100" validate:"min=1,max=500"`
}

type ItemResponse struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Version  string          `json:"version"`
	MSRP     decimal.Decimal `json:"msrp"`
	MinPrice decimal.Decimal `json:"min_price"`
}

type ItemListResponse struct {
	Data  []ItemResponse `json:"data"`
	Total int64          `json:"total"`
	Page  int            `json:"page"`
	Limit int            `json:"limit"`
}
