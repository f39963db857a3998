package domain

import (
	"encoding/json"
)

// Action is a client-triggered widget action. Payload is opaque; its shape
// is defined per action type by the integration.
type Action struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func (a Action) MarshalJSON() ([]byte, error) {
	type wire Action
	w := wire(a)
	w.Payload = rawOrNull(w.Payload)
	return json.Marshal(w)
}

func decodeAction(d *decoder, path string, raw json.RawMessage) (Action, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return Action{}, false
	}
	a := Action{
		Type:    o.str("type"),
		Payload: o.anyJSON("payload", false),
	}
	return a, len(d.errs) == n
}
