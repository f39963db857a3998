package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// WidgetComponent is a node of a widget tree. Only the properties the
// protocol addresses are typed; every other property is kept verbatim in
// Extra.
type WidgetComponent struct {
	Type      string
	ID        *string
	Value     *string // streaming text buffer
	Streaming *bool
	Children  []WidgetComponent // nil when the component has no children property
	Extra     map[string]json.RawMessage
}

// WidgetRoot is the top of a widget tree.
type WidgetRoot = WidgetComponent

func (c WidgetComponent) MarshalJSON() ([]byte, error) {
	props := make(map[string]any, len(c.Extra)+5)
	for k, v := range c.Extra {
		props[k] = v
	}
	props["type"] = c.Type
	if c.ID != nil {
		props["id"] = *c.ID
	}
	if c.Value != nil {
		props["value"] = *c.Value
	}
	if c.Streaming != nil {
		props["streaming"] = *c.Streaming
	}
	if c.Children != nil {
		props["children"] = c.Children
	}
	return json.Marshal(props)
}

// Clone returns a deep copy of the tree.
func (c WidgetComponent) Clone() WidgetComponent {
	out := c
	if c.Children != nil {
		out.Children = make([]WidgetComponent, len(c.Children))
		for i, child := range c.Children {
			out.Children[i] = child.Clone()
		}
	}
	if c.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(c.Extra))
		for k, v := range c.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

// Find returns the component with the given id, searching depth first.
func (c WidgetComponent) Find(id string) (WidgetComponent, bool) {
	if c.ID != nil && *c.ID == id {
		return c, true
	}
	for _, child := range c.Children {
		if found, ok := child.Find(id); ok {
			return found, true
		}
	}
	return WidgetComponent{}, false
}

// Update returns a copy of the tree in which the component with the given id
// has been replaced by fn's result. The receiver is not modified.
func (c WidgetComponent) Update(id string, fn func(WidgetComponent) (WidgetComponent, error)) (WidgetComponent, error) {
	out, found, err := c.update(id, fn)
	if err != nil {
		return c, err
	}
	if !found {
		return c, fmt.Errorf("%w: %q", ErrUnknownComponent, id)
	}
	return out, nil
}

func (c WidgetComponent) update(id string, fn func(WidgetComponent) (WidgetComponent, error)) (WidgetComponent, bool, error) {
	if c.ID != nil && *c.ID == id {
		next, err := fn(c)
		return next, true, err
	}
	for i, child := range c.Children {
		next, found, err := child.update(id, fn)
		if err != nil {
			return c, true, err
		}
		if found {
			out := c
			out.Children = append([]WidgetComponent(nil), c.Children...)
			out.Children[i] = next
			return out, true, nil
		}
	}
	return c, false, nil
}

func decodeWidgetComponent(d *decoder, path string, raw json.RawMessage) (WidgetComponent, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return WidgetComponent{}, false
	}
	c := WidgetComponent{
		Type: o.str("type"),
		ID:   o.optStr("id"),
	}
	for k, v := range o.fields {
		switch k {
		case "type", "id":
		case "value":
			if isJSONString(v) {
				s := decodeString(d, o.at(k), v)
				c.Value = &s
				continue
			}
			c.setExtra(k, v)
		case "streaming":
			if b, ok := jsonBool(v); ok {
				c.Streaming = &b
				continue
			}
			c.setExtra(k, v)
		case "children":
			c.Children = decodeList(d, o.at(k), v, decodeWidgetComponent)
		default:
			c.setExtra(k, v)
		}
	}
	return c, len(d.errs) == n
}

func (c *WidgetComponent) setExtra(k string, v json.RawMessage) {
	if c.Extra == nil {
		c.Extra = make(map[string]json.RawMessage)
	}
	c.Extra[k] = v
}

func isJSONString(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '"'
}

func jsonBool(raw json.RawMessage) (bool, bool) {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true, true
	case "false":
		return false, true
	}
	return false, false
}
