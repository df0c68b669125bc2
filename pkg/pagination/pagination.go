package pagination

import (
	"fmt"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/ehr/conceptsync/internal/platform/fhir"
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

// FromContext reads _count and _offset, falling back to limit and offset.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("_count"))
	if limit <= 0 {
		limit, _ = strconv.Atoi(c.QueryParam("limit"))
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	offset, _ := strconv.Atoi(c.QueryParam("_offset"))
	if offset <= 0 {
		offset, _ = strconv.Atoi(c.QueryParam("offset"))
	}
	if offset < 0 {
		offset = 0
	}
	return Params{Limit: limit, Offset: offset}
}

func (p Params) HasNext(total int) bool {
	return p.Offset+p.Limit < total
}

func (p Params) HasPrevious() bool {
	return p.Offset > 0
}

func (p Params) PreviousOffset() int {
	if p.Offset-p.Limit < 0 {
		return 0
	}
	return p.Offset - p.Limit
}

// AddLinks appends next and previous links to a searchset bundle whose
// first link is the self link.
func AddLinks(b *fhir.Bundle, p Params, total int) {
	if len(b.Link) == 0 {
		return
	}
	base := b.Link[0].URL
	page := func(offset int) string {
		return fmt.Sprintf("%s?_count=%d&_offset=%d", base, p.Limit, offset)
	}
	b.Link[0].URL = page(p.Offset)
	if p.HasNext(total) {
		b.Link = append(b.Link, fhir.BundleLink{Relation: "next", URL: page(p.Offset + p.Limit)})
	}
	if p.HasPrevious() {
		b.Link = append(b.Link, fhir.BundleLink{Relation: "previous", URL: page(p.PreviousOffset())})
	}
}
