package domain

import (
	"bytes"
	"encoding/json"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const absent = "<absent>"

// decoder walks an untyped JSON payload and records every field that does
// not match the declared shape. Decoding continues past failures so that a
// single pass reports all offending fields.
type decoder struct {
	errs []FieldError
}

func (d *decoder) fail(path, expected string, actual json.RawMessage) {
	d.errs = append(d.errs, FieldError{Path: path, Expected: expected, Actual: preview(actual)})
}

func (d *decoder) failCause(path, expected string, actual json.RawMessage, cause error) {
	d.errs = append(d.errs, FieldError{Path: path, Expected: expected, Actual: preview(actual), Cause: cause})
}

func (d *decoder) err(union string) error {
	if len(d.errs) == 0 {
		return nil
	}
	return &ValidationError{Union: union, Fields: d.errs}
}

func preview(raw json.RawMessage) string {
	if raw == nil {
		return absent
	}
	s := string(bytes.TrimSpace(raw))
	if len(s) > 64 {
		s = s[:61] + "..."
	}
	return s
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func joinPath(path, name string) string {
	if path == "" {
		return name
	}
	return path + "." + name
}

func indexPath(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}

// object is a JSON object found at path.
type object struct {
	d      *decoder
	path   string
	fields map[string]json.RawMessage
}

func (d *decoder) object(path string, raw json.RawMessage) (object, bool) {
	var fields map[string]json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &fields) != nil {
		d.fail(path, "object", raw)
		return object{}, false
	}
	return object{d: d, path: path, fields: fields}, true
}

func (o object) at(name string) string { return joinPath(o.path, name) }

func (o object) raw(name string) (json.RawMessage, bool) {
	raw, ok := o.fields[name]
	return raw, ok
}

// tag reads the discriminator and checks it against the closed variant set.
func (o object) tag(union string, allowed []string) (string, bool) {
	path := o.at("type")
	raw, ok := o.fields["type"]
	if !ok {
		o.d.failCause(path, "discriminator for "+union, nil, ErrMissingDiscriminator)
		return "", false
	}
	var tag string
	if json.Unmarshal(raw, &tag) != nil {
		o.d.fail(path, "string discriminator", raw)
		return "", false
	}
	if !slices.Contains(allowed, tag) {
		o.d.failCause(path, "one of "+strings.Join(allowed, ", "), raw,
			&UnknownVariantError{Union: union, Tag: tag, Expected: allowed})
		return "", false
	}
	return tag, true
}

// constTag checks a fixed discriminator that defaults when absent.
func (o object) constTag(value string) {
	raw, ok := o.fields["type"]
	if !ok {
		return
	}
	var tag string
	if json.Unmarshal(raw, &tag) != nil || tag != value {
		o.d.fail(o.at("type"), strconv.Quote(value), raw)
	}
}

func (o object) str(name string) string {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "string", nil)
		return ""
	}
	return decodeString(o.d, o.at(name), raw)
}

func decodeString(d *decoder, path string, raw json.RawMessage) string {
	var s string
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '"' || json.Unmarshal(trimmed, &s) != nil {
		d.fail(path, "string", raw)
		return ""
	}
	return s
}

func (o object) optStr(name string) *string {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	s := decodeString(o.d, o.at(name), raw)
	return &s
}

func (o object) strDefault(name, def string) string {
	raw, ok := o.fields[name]
	if !ok {
		return def
	}
	return decodeString(o.d, o.at(name), raw)
}

func (o object) enum(name string, allowed []string, def string) string {
	raw, ok := o.fields[name]
	if !ok {
		if def == "" {
			o.d.fail(o.at(name), "one of "+strings.Join(allowed, ", "), nil)
		}
		return def
	}
	return decodeEnum(o.d, o.at(name), raw, allowed)
}

func decodeEnum(d *decoder, path string, raw json.RawMessage, allowed []string) string {
	var s string
	if json.Unmarshal(raw, &s) != nil || !slices.Contains(allowed, s) {
		d.fail(path, "one of "+strings.Join(allowed, ", "), raw)
		return ""
	}
	return s
}

func (o object) optEnum(name string, allowed []string) *string {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	s := decodeEnum(o.d, o.at(name), raw, allowed)
	return &s
}

func (o object) boolDefault(name string, def bool) bool {
	raw, ok := o.fields[name]
	if !ok {
		return def
	}
	return decodeBool(o.d, o.at(name), raw)
}

func (o object) boolean(name string) bool {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "boolean", nil)
		return false
	}
	return decodeBool(o.d, o.at(name), raw)
}

func decodeBool(d *decoder, path string, raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "true":
		return true
	case "false":
		return false
	}
	d.fail(path, "boolean", raw)
	return false
}

func (o object) integer(name string) int {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "integer", nil)
		return 0
	}
	return decodeInt(o.d, o.at(name), raw)
}

func (o object) optInt(name string) *int {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	n := decodeInt(o.d, o.at(name), raw)
	return &n
}

func decodeInt(d *decoder, path string, raw json.RawMessage) int {
	n, err := strconv.Atoi(string(bytes.TrimSpace(raw)))
	if err != nil {
		d.fail(path, "integer", raw)
		return 0
	}
	return n
}

// Naive timestamps carry no offset and are read as UTC.
const naiveTimeLayout = "2006-01-02T15:04:05.999999999"

func (o object) timestamp(name string) time.Time {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "RFC 3339 timestamp", nil)
		return time.Time{}
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t
		}
		if t, err := time.ParseInLocation(naiveTimeLayout, s, time.UTC); err == nil {
			return t
		}
	}
	o.d.fail(o.at(name), "RFC 3339 timestamp", raw)
	return time.Time{}
}

// absURL reads an absolute URL.
func (o object) absURL(name string) string {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "absolute URL", nil)
		return ""
	}
	return decodeURL(o.d, o.at(name), raw)
}

func (o object) optURL(name string) *string {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	s := decodeURL(o.d, o.at(name), raw)
	return &s
}

func decodeURL(d *decoder, path string, raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		if u, err := url.Parse(s); err == nil && u.Scheme != "" {
			return s
		}
	}
	d.fail(path, "absolute URL", raw)
	return ""
}

// jsonMap reads an open string-keyed map. Absent yields an empty map.
func (o object) jsonMap(name string, required bool) JSONMap {
	raw, ok := o.fields[name]
	if !ok {
		if required {
			o.d.fail(o.at(name), "object", nil)
		}
		return JSONMap{}
	}
	var m JSONMap
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' || json.Unmarshal(trimmed, &m) != nil {
		o.d.fail(o.at(name), "object", raw)
		return JSONMap{}
	}
	return m
}

// anyJSON reads a field holding arbitrary JSON. Absent optional fields
// decode as JSON null.
func (o object) anyJSON(name string, required bool) json.RawMessage {
	raw, ok := o.fields[name]
	if !ok {
		if required {
			o.d.fail(o.at(name), "JSON value", nil)
		}
		return json.RawMessage("null")
	}
	return json.RawMessage(bytes.TrimSpace(raw))
}

// list decodes an array field element by element.
func list[T any](o object, name string, required bool, each func(d *decoder, path string, raw json.RawMessage) (T, bool)) []T {
	raw, ok := o.fields[name]
	if !ok {
		if required {
			o.d.fail(o.at(name), "array", nil)
		}
		return []T{}
	}
	return decodeList(o.d, o.at(name), raw, each)
}

func decodeList[T any](d *decoder, path string, raw json.RawMessage, each func(d *decoder, path string, raw json.RawMessage) (T, bool)) []T {
	var elems []json.RawMessage
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' || json.Unmarshal(trimmed, &elems) != nil {
		d.fail(path, "array", raw)
		return []T{}
	}
	out := make([]T, 0, len(elems))
	for i, elem := range elems {
		if v, ok := each(d, indexPath(path, i), elem); ok {
			out = append(out, v)
		}
	}
	return out
}

func stringElem(d *decoder, path string, raw json.RawMessage) (string, bool) {
	n := len(d.errs)
	s := decodeString(d, path, raw)
	return s, len(d.errs) == n
}

// nested decodes a required object-valued field with fn.
func nested[T any](o object, name string, fn func(d *decoder, path string, raw json.RawMessage) (T, bool)) T {
	raw, ok := o.fields[name]
	if !ok {
		o.d.fail(o.at(name), "object", nil)
		var zero T
		return zero
	}
	v, _ := fn(o.d, o.at(name), raw)
	return v
}

// optNested decodes an optional object-valued field; absent and null yield nil.
func optNested[T any](o object, name string, fn func(d *decoder, path string, raw json.RawMessage) (T, bool)) *T {
	raw, ok := o.fields[name]
	if !ok || isNull(raw) {
		return nil
	}
	v, ok := fn(o.d, o.at(name), raw)
	if !ok {
		return nil
	}
	return &v
}

// parseRoot runs fn over data and returns the value or the accumulated
// validation failure for union.
func parseRoot[T any](union string, data []byte, fn func(d *decoder, path string, raw json.RawMessage) (T, bool)) (T, error) {
	d := &decoder{}
	v, _ := fn(d, "", json.RawMessage(data))
	if err := d.err(union); err != nil {
		var zero T
		return zero, err
	}
	return v, nil
}

// nonNil returns s, or an empty slice when s is nil, so that list fields
// serialize as [] rather than null.
func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
