package domain

import (
	"encoding/json"
)

const (
	outputTextType = "output_text"
	annotationType = "annotation"
)

// AssistantMessageContent is one output_text part of an assistant message.
// Annotations are addressed by position.
type AssistantMessageContent struct {
	Text        string       `json:"text"`
	Annotations []Annotation `json:"annotations"`
}

// Annotation attaches a citation source to an output text part.
type Annotation struct {
	Source Source `json:"source"`
	Index  *int   `json:"index"`
}

func (c AssistantMessageContent) MarshalJSON() ([]byte, error) {
	type wire AssistantMessageContent
	w := wire(c)
	w.Annotations = nonNil(w.Annotations)
	return tagged(outputTextType, w)
}

func (a Annotation) MarshalJSON() ([]byte, error) {
	type wire Annotation
	return tagged(annotationType, wire(a))
}

// Clone returns a copy whose annotation slice is not shared with c.
func (c AssistantMessageContent) Clone() AssistantMessageContent {
	c.Annotations = append([]Annotation(nil), c.Annotations...)
	return c
}

func decodeAssistantContent(d *decoder, path string, raw json.RawMessage) (AssistantMessageContent, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return AssistantMessageContent{}, false
	}
	o.constTag(outputTextType)
	c := AssistantMessageContent{
		Text:        o.str("text"),
		Annotations: list(o, "annotations", false, decodeAnnotation),
	}
	return c, len(d.errs) == n
}

func decodeAnnotation(d *decoder, path string, raw json.RawMessage) (Annotation, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return Annotation{}, false
	}
	o.constTag(annotationType)
	a := Annotation{
		Source: nested(o, "source", decodeSource),
		Index:  o.optInt("index"),
	}
	return a, len(d.errs) == n
}

// UserContentType discriminates user message content.
type UserContentType string

const (
	UserContentText UserContentType = "input_text"
	UserContentTag  UserContentType = "input_tag"
)

var userContentTags = []string{string(UserContentText), string(UserContentTag)}

// UserMessageContent is one part of a user message.
type UserMessageContent interface {
	UserContentType() UserContentType
	isUserMessageContent()
}

type UserMessageTextContent struct {
	Text string `json:"text"`
}

// UserMessageTagContent is an inline mention of an integration entity.
type UserMessageTagContent struct {
	ID          string  `json:"id"`
	Text        string  `json:"text"`
	Data        JSONMap `json:"data"`
	Interactive bool    `json:"interactive"`
}

func (UserMessageTextContent) UserContentType() UserContentType { return UserContentText }
func (UserMessageTagContent) UserContentType() UserContentType  { return UserContentTag }

func (UserMessageTextContent) isUserMessageContent() {}
func (UserMessageTagContent) isUserMessageContent()  {}

func (c UserMessageTextContent) MarshalJSON() ([]byte, error) {
	type wire UserMessageTextContent
	return tagged(string(UserContentText), wire(c))
}

func (c UserMessageTagContent) MarshalJSON() ([]byte, error) {
	type wire UserMessageTagContent
	return tagged(string(UserContentTag), wire(c))
}

// ParseUserContent parses one user message content part.
func ParseUserContent(data []byte) (UserMessageContent, error) {
	return parseRoot("user_content", data, decodeUserContent)
}

func decodeUserContent(d *decoder, path string, raw json.RawMessage) (UserMessageContent, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("user_content", userContentTags)
	if !ok {
		return nil, false
	}
	var c UserMessageContent
	switch UserContentType(tag) {
	case UserContentText:
		c = UserMessageTextContent{Text: o.str("text")}
	case UserContentTag:
		c = UserMessageTagContent{
			ID:          o.str("id"),
			Text:        o.str("text"),
			Data:        o.jsonMap("data", true),
			Interactive: o.boolDefault("interactive", false),
		}
	}
	return c, len(d.errs) == n
}

// UserMessageInput is what a client submits to start a user turn.
// Attachments holds ids of previously created attachments.
type UserMessageInput struct {
	Content          []UserMessageContent `json:"content"`
	Attachments      []string             `json:"attachments"`
	QuotedText       *string              `json:"quoted_text"`
	InferenceOptions InferenceOptions     `json:"inference_options"`
}

func (in UserMessageInput) MarshalJSON() ([]byte, error) {
	type wire UserMessageInput
	w := wire(in)
	w.Content = nonNil(w.Content)
	w.Attachments = nonNil(w.Attachments)
	return json.Marshal(w)
}

func decodeUserMessageInput(d *decoder, path string, raw json.RawMessage) (UserMessageInput, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return UserMessageInput{}, false
	}
	in := UserMessageInput{
		Content:          list(o, "content", true, decodeUserContent),
		Attachments:      list(o, "attachments", true, stringElem),
		QuotedText:       o.optStr("quoted_text"),
		InferenceOptions: nested(o, "inference_options", decodeInferenceOptions),
	}
	return in, len(d.errs) == n
}

type InferenceOptions struct {
	ToolChoice *ToolChoice `json:"tool_choice"`
	Model      *string     `json:"model"`
}

type ToolChoice struct {
	ID string `json:"id"`
}

func decodeInferenceOptions(d *decoder, path string, raw json.RawMessage) (InferenceOptions, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return InferenceOptions{}, false
	}
	opts := InferenceOptions{
		ToolChoice: optNested(o, "tool_choice", decodeToolChoice),
		Model:      o.optStr("model"),
	}
	return opts, len(d.errs) == n
}

func decodeToolChoice(d *decoder, path string, raw json.RawMessage) (ToolChoice, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return ToolChoice{}, false
	}
	tc := ToolChoice{ID: o.str("id")}
	return tc, len(d.errs) == n
}
