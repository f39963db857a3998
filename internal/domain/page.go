package domain

import (
	"encoding/json"
)

// Page is one window of a cursor-paginated listing. After is only
// meaningful together with the request that produced it.
type Page[T any] struct {
	Data    []T     `json:"data"`
	HasMore bool    `json:"has_more"`
	After   *string `json:"after"`
}

func (p Page[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Data    []T     `json:"data"`
		HasMore bool    `json:"has_more"`
		After   *string `json:"after"`
	}{nonNil(p.Data), p.HasMore, p.After})
}

// decodePage builds a page decoder around the element decoder each.
func decodePage[T any](each func(d *decoder, path string, raw json.RawMessage) (T, bool)) func(d *decoder, path string, raw json.RawMessage) (Page[T], bool) {
	return func(d *decoder, path string, raw json.RawMessage) (Page[T], bool) {
		n := len(d.errs)
		o, ok := d.object(path, raw)
		if !ok {
			return Page[T]{}, false
		}
		p := Page[T]{
			Data:    list(o, "data", false, each),
			HasMore: o.boolDefault("has_more", false),
			After:   o.optStr("after"),
		}
		return p, len(d.errs) == n
	}
}
