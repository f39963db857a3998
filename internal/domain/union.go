package domain

// Union names a closed family of variants discriminated by "type".
type Union string

const (
	UnionRequest     Union = "request"
	UnionEvent       Union = "event"
	UnionItem        Union = "item"
	UnionUpdate      Union = "update"
	UnionSource      Union = "source"
	UnionTask        Union = "task"
	UnionAttachment  Union = "attachment"
	UnionStatus      Union = "status"
	UnionUserContent Union = "user_content"
)

var unionTags = map[Union][]string{
	UnionRequest:     requestTags,
	UnionEvent:       eventTags,
	UnionItem:        itemTags,
	UnionUpdate:      updateTags,
	UnionSource:      sourceTags,
	UnionTask:        taskTags,
	UnionAttachment:  attachmentTags,
	UnionStatus:      statusTags,
	UnionUserContent: userContentTags,
}

// Unions lists every union in a fixed order.
func Unions() []Union {
	return []Union{
		UnionRequest, UnionEvent, UnionItem, UnionUpdate, UnionSource,
		UnionTask, UnionAttachment, UnionStatus, UnionUserContent,
	}
}

// Tags returns the discriminator values of u, or nil for an unknown union.
func (u Union) Tags() []string {
	tags, ok := unionTags[u]
	if !ok {
		return nil
	}
	return append([]string(nil), tags...)
}

// Valid reports whether u names a known union.
func (u Union) Valid() bool {
	_, ok := unionTags[u]
	return ok
}
