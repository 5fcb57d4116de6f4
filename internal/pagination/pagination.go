package pagination

import (
	"math"
	"net/http"
	"strconv"
	"strings"
)

const DefaultPage = 1

type Options struct {
	DefaultPerPage int
	MaxPerPage     int
}

// Params is a 1-based page request. PerPage of 0 means "use the caller's default".
type Params struct {
	Page    int
	PerPage int
}

// Parse reads page and per_page (or limit) from the query string.
func Parse(r *http.Request) Params {
	q := r.URL.Query()

	page := atoiDefault(q.Get("page"), DefaultPage)
	if page < 1 {
		page = DefaultPage
	}

	perRaw := strings.TrimSpace(q.Get("per_page"))
	if perRaw == "" {
		perRaw = strings.TrimSpace(q.Get("limit"))
	}
	per := atoiDefault(perRaw, 0)
	if per < 0 {
		per = 0
	}

	return Params{Page: page, PerPage: per}
}

// Normalize fills defaults, clamps PerPage to opt.MaxPerPage and clamps Page
// so that Offset stays within a 32-bit row offset.
func (p Params) Normalize(opt Options) Params {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.PerPage < 1 {
		p.PerPage = opt.DefaultPerPage
	}
	if opt.MaxPerPage > 0 && p.PerPage > opt.MaxPerPage {
		p.PerPage = opt.MaxPerPage
	}
	if p.PerPage > 0 {
		if maxPage := math.MaxInt32/p.PerPage + 1; p.Page > maxPage {
			p.Page = maxPage
		}
	}
	return p
}

func (p Params) Limit() int  { return p.PerPage }
func (p Params) Offset() int { return (p.Page - 1) * p.PerPage }

type Meta struct {
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	Total      int  `json:"total"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

func BuildMeta(total int, p Params) Meta {
	totalPages := 0
	if total > 0 && p.PerPage > 0 {
		totalPages = int(math.Ceil(float64(total) / float64(p.PerPage)))
	}
	return Meta{
		Page:       p.Page,
		PerPage:    p.PerPage,
		Total:      total,
		TotalPages: totalPages,
		HasPrev:    p.Page > 1,
		HasNext:    totalPages > 0 && p.Page < totalPages,
	}
}

func atoiDefault(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}
