package domain

import (
	"encoding/json"
	"time"
)

// ThreadMetadata is a thread without its items.
type ThreadMetadata struct {
	ID        string       `json:"id"`
	Title     *string      `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	Status    ThreadStatus `json:"status"` // nil means active
	Metadata  JSONMap      `json:"metadata"`
}

// Thread is a thread together with a page of its items.
type Thread struct {
	ThreadMetadata
	Items Page[ThreadItem] `json:"items"`
}

type threadWire struct {
	ID        string       `json:"id"`
	Title     *string      `json:"title"`
	CreatedAt time.Time    `json:"created_at"`
	Status    ThreadStatus `json:"status"`
	Metadata  JSONMap      `json:"metadata"`
}

func (m ThreadMetadata) wire() threadWire {
	return threadWire{
		ID:        m.ID,
		Title:     m.Title,
		CreatedAt: m.CreatedAt,
		Status:    StatusOf(m.Status),
		Metadata:  m.Metadata,
	}
}

func (m ThreadMetadata) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.wire())
}

func (t Thread) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		threadWire
		Items Page[ThreadItem] `json:"items"`
	}{t.wire(), t.Items})
}

// ClientView returns the thread as clients may see it: internal-only items
// are dropped from the page.
func (t Thread) ClientView() Thread {
	out := t
	out.Items.Data = make([]ThreadItem, 0, len(t.Items.Data))
	for _, item := range t.Items.Data {
		if item.ItemType() == ItemHiddenContext {
			continue
		}
		out.Items.Data = append(out.Items.Data, item)
	}
	return out
}

// ParseThread parses a thread with its items page.
func ParseThread(data []byte) (Thread, error) {
	return parseRoot("thread", data, decodeThread)
}

// ParseThreadMetadata parses a thread, ignoring any items.
func ParseThreadMetadata(data []byte) (ThreadMetadata, error) {
	return parseRoot("thread metadata", data, decodeThreadMetadata)
}

func decodeThreadMetadata(d *decoder, path string, raw json.RawMessage) (ThreadMetadata, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return ThreadMetadata{}, false
	}
	m := threadMetadataFields(o)
	return m, len(d.errs) == n
}

func threadMetadataFields(o object) ThreadMetadata {
	m := ThreadMetadata{
		ID:        o.str("id"),
		Title:     o.optStr("title"),
		CreatedAt: o.timestamp("created_at"),
		Status:    ActiveStatus{},
		Metadata:  o.jsonMap("metadata", false),
	}
	// Status defaults only when absent; null is rejected by decodeStatus.
	if raw, ok := o.raw("status"); ok {
		if s, ok := decodeStatus(o.d, o.at("status"), raw); ok {
			m.Status = s
		}
	}
	return m
}

func decodeThread(d *decoder, path string, raw json.RawMessage) (Thread, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return Thread{}, false
	}
	t := Thread{
		ThreadMetadata: threadMetadataFields(o),
		Items:          nested(o, "items", decodePage(decodeThreadItem)),
	}
	return t, len(d.errs) == n
}
