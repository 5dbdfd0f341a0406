package pagination

import (
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request.
type Params struct {
	Limit  int
	Offset int
}

// FromContext extracts pagination parameters from the request query.
func FromContext(c echo.Context) Params {
	return FromValues(c.QueryParams())
}

// FromValues reads _count/_offset (or limit/offset) from decoded query or
// form values.
func FromValues(v url.Values) Params {
	limit, _ := strconv.Atoi(v.Get("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(v.Get("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(v.Get("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(v.Get("offset"))
	}
	if offset < 0 {
		offset = 0
	}

	return Params{Limit: limit, Offset: offset}
}

// FilterQuery re-encodes v without the paging keys, for use in page links.
func FilterQuery(v url.Values) string {
	out := url.Values{}
	for k, vals := range v {
		switch k {
		case "_count", "_offset", "limit", "offset":
			continue
		}
		out[k] = vals
	}
	return out.Encode()
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page.
// Returns 0 if the result would be negative.
func (p Params) PreviousOffset() int {
	prev := p.Offset - p.Limit
	if prev < 0 {
		return 0
	}
	return prev
}
