// Package pagination implements cursor-based listing over rows ordered by
// creation time with an id tie-break.
package pagination

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"chatkit/internal/domain"
	"chatkit/internal/infra/config"
)

// Key is the stable sort key of a listed row.
type Key struct {
	CreatedAt time.Time
	ID        string
}

// Less orders keys by creation time, then id.
func (k Key) Less(o Key) bool {
	if !k.CreatedAt.Equal(o.CreatedAt) {
		return k.CreatedAt.Before(o.CreatedAt)
	}
	return k.ID < o.ID
}

// Params are the list parameters shared by threads.list and items.list.
type Params struct {
	Limit *int
	Order domain.SortOrder
	After *string
}

// ThreadListParams extracts the list parameters of a threads.list request.
func ThreadListParams(p domain.ThreadListParams) Params {
	return Params{Limit: p.Limit, Order: p.Order, After: p.After}
}

// ItemsListParams extracts the list parameters of an items.list request.
func ItemsListParams(p domain.ItemsListParams) Params {
	return Params{Limit: p.Limit, Order: p.Order, After: p.After}
}

// ThreadKey is the sort key of a thread listing.
func ThreadKey(m domain.ThreadMetadata) Key {
	return Key{CreatedAt: m.CreatedAt, ID: m.ID}
}

// ItemKey is the sort key of an item listing.
func ItemKey(item domain.ThreadItem) Key {
	b := item.Base()
	return Key{CreatedAt: b.CreatedAt, ID: b.ID}
}

type cursor struct {
	CreatedAt time.Time        `json:"created_at"`
	ID        string           `json:"id"`
	Order     domain.SortOrder `json:"order"`
}

// EncodeCursor returns the opaque token resuming a listing after k.
func EncodeCursor(k Key, order domain.SortOrder) string {
	data, _ := json.Marshal(cursor{CreatedAt: k.CreatedAt.UTC(), ID: k.ID, Order: order})
	return base64.RawURLEncoding.EncodeToString(data)
}

// DecodeCursor parses a token produced by EncodeCursor for the same order.
func DecodeCursor(token string, order domain.SortOrder) (Key, error) {
	data, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Key{}, domain.NewDomainError("pagination.DecodeCursor", domain.ErrInvalidCursor, "not base64url")
	}
	var c cursor
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		return Key{}, domain.NewDomainError("pagination.DecodeCursor", domain.ErrInvalidCursor, "malformed payload")
	}
	if c.Order != order {
		return Key{}, domain.NewDomainError("pagination.DecodeCursor", domain.ErrInvalidCursor,
			fmt.Sprintf("cursor was issued for order %q", c.Order))
	}
	return Key{CreatedAt: c.CreatedAt, ID: c.ID}, nil
}

// Paginator applies the configured default and maximum page sizes.
type Paginator struct {
	defaultLimit int
	maxLimit     int
}

// New creates a Paginator from config. Non-positive sizes fall back to the
// config defaults, and the default never exceeds the maximum.
func New(cfg config.PaginationConfig) *Paginator {
	def := config.Defaults().Pagination
	if cfg.MaxLimit <= 0 {
		cfg.MaxLimit = def.MaxLimit
	}
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = def.DefaultLimit
	}
	return &Paginator{defaultLimit: min(cfg.DefaultLimit, cfg.MaxLimit), maxLimit: cfg.MaxLimit}
}

// Limit resolves the effective page size. Absent means the default; values
// above the maximum are capped; non-positive values are rejected.
func (p *Paginator) Limit(limit *int) (int, error) {
	if limit == nil {
		return p.defaultLimit, nil
	}
	if *limit <= 0 {
		return 0, domain.NewDomainError("pagination.Limit", domain.ErrInvalidInput,
			fmt.Sprintf("limit must be positive, got %d", *limit))
	}
	return min(*limit, p.maxLimit), nil
}

// Order resolves the listing order; empty means descending.
func Order(o domain.SortOrder) (domain.SortOrder, error) {
	switch domain.SortOrder(strings.ToLower(string(o))) {
	case "", domain.OrderDesc:
		return domain.OrderDesc, nil
	case domain.OrderAsc:
		return domain.OrderAsc, nil
	}
	return "", domain.NewDomainError("pagination.Order", domain.ErrInvalidInput, fmt.Sprintf("unknown order %q", o))
}

// Paginate returns one page of rows. rows need not be sorted; key must be
// unique per row. The cursor names the last row of the previous page, so
// rows created between calls never shift later pages.
func Paginate[T any](p *Paginator, rows []T, key func(T) Key, params Params) (domain.Page[T], error) {
	limit, err := p.Limit(params.Limit)
	if err != nil {
		return domain.Page[T]{}, err
	}
	order, err := Order(params.Order)
	if err != nil {
		return domain.Page[T]{}, err
	}

	sorted := make([]T, len(rows))
	copy(sorted, rows)
	before := func(a, b Key) bool { return a.Less(b) }
	if order == domain.OrderDesc {
		before = func(a, b Key) bool { return b.Less(a) }
	}
	sort.SliceStable(sorted, func(i, j int) bool { return before(key(sorted[i]), key(sorted[j])) })

	start := 0
	if params.After != nil {
		after, err := DecodeCursor(*params.After, order)
		if err != nil {
			return domain.Page[T]{}, err
		}
		start = sort.Search(len(sorted), func(i int) bool { return before(after, key(sorted[i])) })
	}

	// Read one row past the limit to learn whether more exist.
	end := min(start+limit+1, len(sorted))
	window := sorted[start:end]
	page := domain.Page[T]{Data: window}
	if len(window) > limit {
		page.Data = window[:limit]
		page.HasMore = true
		next := EncodeCursor(key(page.Data[limit-1]), order)
		page.After = &next
	}
	return page, nil
}
