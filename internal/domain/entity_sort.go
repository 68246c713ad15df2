package domain

import "strings"

// SortDirection represents ordering direction for sortable fields.
type SortDirection string

const (
	SortDirectionAsc  SortDirection = "asc"
	SortDirectionDesc SortDirection = "desc"
)

// EntitySort captures one ordering preference for entity listings. Field is a
// property path as understood by the criteria root ("createdAt", "owner.name").
type EntitySort struct {
	Field     string
	Direction SortDirection
}

// ParseEntitySort parses "field" or "field,desc". Unknown directions fall back to ascending.
func ParseEntitySort(raw string) (EntitySort, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return EntitySort{}, false
	}
	field, dir, _ := strings.Cut(raw, ",")
	field = strings.TrimSpace(field)
	if field == "" {
		return EntitySort{}, false
	}
	sort := EntitySort{Field: field, Direction: SortDirectionAsc}
	if strings.EqualFold(strings.TrimSpace(dir), string(SortDirectionDesc)) {
		sort.Direction = SortDirectionDesc
	}
	return sort, true
}

// Page bounds a listing.
type Page struct {
	Limit  int
	Offset int
}

const (
	DefaultPageLimit = 25
	MaxPageLimit     = 1000
)

// Normalize clamps the page into [1, maxLimit], substituting defaultLimit for
// a missing limit. Non-positive bounds fall back to the package defaults.
func (p Page) Normalize(defaultLimit, maxLimit int) Page {
	if defaultLimit <= 0 {
		defaultLimit = DefaultPageLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxPageLimit
	}
	if p.Limit <= 0 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
