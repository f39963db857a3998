package domain

import (
	"encoding/json"
)

// SourceType discriminates citation sources.
type SourceType string

const (
	SourceTypeURL    SourceType = "url"
	SourceTypeFile   SourceType = "file"
	SourceTypeEntity SourceType = "entity"
)

var sourceTags = []string{string(SourceTypeURL), string(SourceTypeFile), string(SourceTypeEntity)}

// Source describes where a cited piece of content came from.
type Source interface {
	SourceType() SourceType
	isSource()
}

// SourceBase holds the fields shared by every source variant.
type SourceBase struct {
	Title       string  `json:"title"`
	Description *string `json:"description"`
	Timestamp   *string `json:"timestamp"`
	Group       *string `json:"group"`
}

// URLSource cites a web page.
type URLSource struct {
	SourceBase
	URL         string  `json:"url"`
	Attribution *string `json:"attribution"`
}

// FileSource cites an uploaded or indexed file.
type FileSource struct {
	SourceBase
	Filename string `json:"filename"`
}

// EntitySource cites an integration-defined entity.
type EntitySource struct {
	SourceBase
	ID      string  `json:"id"`
	Icon    *string `json:"icon"`
	Preview *string `json:"preview"` // "lazy" or nil
}

func (URLSource) SourceType() SourceType    { return SourceTypeURL }
func (FileSource) SourceType() SourceType   { return SourceTypeFile }
func (EntitySource) SourceType() SourceType { return SourceTypeEntity }

func (URLSource) isSource()    {}
func (FileSource) isSource()   {}
func (EntitySource) isSource() {}

func (s URLSource) MarshalJSON() ([]byte, error) {
	type wire URLSource
	return tagged(string(SourceTypeURL), wire(s))
}

func (s FileSource) MarshalJSON() ([]byte, error) {
	type wire FileSource
	return tagged(string(SourceTypeFile), wire(s))
}

func (s EntitySource) MarshalJSON() ([]byte, error) {
	type wire EntitySource
	return tagged(string(SourceTypeEntity), wire(s))
}

// ParseSource parses a citation source.
func ParseSource(data []byte) (Source, error) {
	return parseRoot("source", data, decodeSource)
}

func decodeSource(d *decoder, path string, raw json.RawMessage) (Source, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("source", sourceTags)
	if !ok {
		return nil, false
	}
	var s Source
	switch SourceType(tag) {
	case SourceTypeURL:
		s = decodeURLFields(o)
	case SourceTypeFile:
		s = decodeFileFields(o)
	case SourceTypeEntity:
		s = EntitySource{
			SourceBase: decodeSourceBase(o),
			ID:         o.str("id"),
			Icon:       o.optStr("icon"),
			Preview:    o.optEnum("preview", []string{"lazy"}),
		}
	}
	return s, len(d.errs) == n
}

func decodeSourceBase(o object) SourceBase {
	return SourceBase{
		Title:       o.str("title"),
		Description: o.optStr("description"),
		Timestamp:   o.optStr("timestamp"),
		Group:       o.optStr("group"),
	}
}

func decodeURLFields(o object) URLSource {
	return URLSource{
		SourceBase:  decodeSourceBase(o),
		URL:         o.str("url"),
		Attribution: o.optStr("attribution"),
	}
}

func decodeFileFields(o object) FileSource {
	return FileSource{
		SourceBase: decodeSourceBase(o),
		Filename:   o.str("filename"),
	}
}

// decodeURLSource decodes a source that must be a URL source.
func decodeURLSource(d *decoder, path string, raw json.RawMessage) (URLSource, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return URLSource{}, false
	}
	if _, ok := o.tag("url source", []string{string(SourceTypeURL)}); !ok {
		return URLSource{}, false
	}
	s := decodeURLFields(o)
	return s, len(d.errs) == n
}

// decodeFileSource decodes a source that must be a file source.
func decodeFileSource(d *decoder, path string, raw json.RawMessage) (FileSource, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return FileSource{}, false
	}
	if _, ok := o.tag("file source", []string{string(SourceTypeFile)}); !ok {
		return FileSource{}, false
	}
	s := decodeFileFields(o)
	return s, len(d.errs) == n
}

// tagged encodes v and prepends the "type" discriminator.
func tagged(tag string, v any) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	quoted, err := json.Marshal(tag)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, len(body)+len(quoted)+9)
	out = append(out, `{"type":`...)
	out = append(out, quoted...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
