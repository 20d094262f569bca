package dto

type Pagination struct {
	Page  int `form:"page" binding:"omitempty,min=1"`
	Limit int `form:"limit" binding:"omitempty,min=1,max=50"`
}

// Normalize fills defaults and returns the offset.
func (p *Pagination) Normalize() int {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = 20
	}
	return (p.Page - 1) * p.Limit
}

type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	TotalPages  int   `json:"total_pages"`
	TotalItems  int64 `json:"total_items"`
	Limit       int   `json:"limit"`
}

func NewPaginationMeta(p Pagination, total int64) PaginationMeta {
	pages := 0
	if p.Limit > 0 {
		pages = int((total + int64(p.Limit) - 1) / int64(p.Limit))
	}
	return PaginationMeta{CurrentPage: p.Page, TotalPages: pages, TotalItems: total, Limit: p.Limit}
}

type IDParam struct {
	ID string `uri:"id" binding:"required,uuid"`
}
