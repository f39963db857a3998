package domain

import (
	"encoding/json"
)

// UpdateType discriminates item updates.
type UpdateType string

const (
	UpdateContentPartAdded      UpdateType = "assistant_message.content_part.added"
	UpdateContentPartTextDelta  UpdateType = "assistant_message.content_part.text_delta"
	UpdateContentPartAnnotation UpdateType = "assistant_message.content_part.annotation_added"
	UpdateContentPartDone       UpdateType = "assistant_message.content_part.done"
	UpdateWidgetTextDelta       UpdateType = "widget.streaming_text.value_delta"
	UpdateWidgetRoot            UpdateType = "widget.root.updated"
	UpdateWidgetComponent       UpdateType = "widget.component.updated"
	UpdateWorkflowTaskAdded     UpdateType = "workflow.task.added"
	UpdateWorkflowTaskUpdated   UpdateType = "workflow.task.updated"
)

var updateTags = []string{
	string(UpdateContentPartAdded),
	string(UpdateContentPartTextDelta),
	string(UpdateContentPartAnnotation),
	string(UpdateContentPartDone),
	string(UpdateWidgetTextDelta),
	string(UpdateWidgetRoot),
	string(UpdateWidgetComponent),
	string(UpdateWorkflowTaskAdded),
	string(UpdateWorkflowTaskUpdated),
}

// ThreadItemUpdate is an incremental change to one item.
type ThreadItemUpdate interface {
	UpdateType() UpdateType
	// TargetType is the item type the update applies to.
	TargetType() ItemType
	isThreadItemUpdate()
}

type ContentPartAdded struct {
	ContentIndex int                     `json:"content_index"`
	Content      AssistantMessageContent `json:"content"`
}

type ContentPartTextDelta struct {
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ContentPartAnnotationAdded struct {
	ContentIndex    int        `json:"content_index"`
	AnnotationIndex int        `json:"annotation_index"`
	Annotation      Annotation `json:"annotation"`
}

type ContentPartDone struct {
	ContentIndex int                     `json:"content_index"`
	Content      AssistantMessageContent `json:"content"`
}

type WidgetStreamingTextValueDelta struct {
	ComponentID string `json:"component_id"`
	Delta       string `json:"delta"`
	Done        bool   `json:"done"`
}

type WidgetRootUpdated struct {
	Widget WidgetRoot `json:"widget"`
}

type WidgetComponentUpdated struct {
	ComponentID string          `json:"component_id"`
	Component   WidgetComponent `json:"component"`
}

type WorkflowTaskAdded struct {
	TaskIndex int  `json:"task_index"`
	Task      Task `json:"task"`
}

type WorkflowTaskUpdated struct {
	TaskIndex int  `json:"task_index"`
	Task      Task `json:"task"`
}

func (ContentPartAdded) UpdateType() UpdateType              { return UpdateContentPartAdded }
func (ContentPartTextDelta) UpdateType() UpdateType          { return UpdateContentPartTextDelta }
func (ContentPartAnnotationAdded) UpdateType() UpdateType    { return UpdateContentPartAnnotation }
func (ContentPartDone) UpdateType() UpdateType               { return UpdateContentPartDone }
func (WidgetStreamingTextValueDelta) UpdateType() UpdateType { return UpdateWidgetTextDelta }
func (WidgetRootUpdated) UpdateType() UpdateType             { return UpdateWidgetRoot }
func (WidgetComponentUpdated) UpdateType() UpdateType        { return UpdateWidgetComponent }
func (WorkflowTaskAdded) UpdateType() UpdateType             { return UpdateWorkflowTaskAdded }
func (WorkflowTaskUpdated) UpdateType() UpdateType           { return UpdateWorkflowTaskUpdated }

func (ContentPartAdded) TargetType() ItemType              { return ItemAssistantMessage }
func (ContentPartTextDelta) TargetType() ItemType          { return ItemAssistantMessage }
func (ContentPartAnnotationAdded) TargetType() ItemType    { return ItemAssistantMessage }
func (ContentPartDone) TargetType() ItemType               { return ItemAssistantMessage }
func (WidgetStreamingTextValueDelta) TargetType() ItemType { return ItemWidget }
func (WidgetRootUpdated) TargetType() ItemType             { return ItemWidget }
func (WidgetComponentUpdated) TargetType() ItemType        { return ItemWidget }
func (WorkflowTaskAdded) TargetType() ItemType             { return ItemWorkflow }
func (WorkflowTaskUpdated) TargetType() ItemType           { return ItemWorkflow }

func (ContentPartAdded) isThreadItemUpdate()              {}
func (ContentPartTextDelta) isThreadItemUpdate()          {}
func (ContentPartAnnotationAdded) isThreadItemUpdate()    {}
func (ContentPartDone) isThreadItemUpdate()               {}
func (WidgetStreamingTextValueDelta) isThreadItemUpdate() {}
func (WidgetRootUpdated) isThreadItemUpdate()             {}
func (WidgetComponentUpdated) isThreadItemUpdate()        {}
func (WorkflowTaskAdded) isThreadItemUpdate()             {}
func (WorkflowTaskUpdated) isThreadItemUpdate()           {}

func (u ContentPartAdded) MarshalJSON() ([]byte, error) {
	type wire ContentPartAdded
	return tagged(string(UpdateContentPartAdded), wire(u))
}

func (u ContentPartTextDelta) MarshalJSON() ([]byte, error) {
	type wire ContentPartTextDelta
	return tagged(string(UpdateContentPartTextDelta), wire(u))
}

func (u ContentPartAnnotationAdded) MarshalJSON() ([]byte, error) {
	type wire ContentPartAnnotationAdded
	return tagged(string(UpdateContentPartAnnotation), wire(u))
}

func (u ContentPartDone) MarshalJSON() ([]byte, error) {
	type wire ContentPartDone
	return tagged(string(UpdateContentPartDone), wire(u))
}

func (u WidgetStreamingTextValueDelta) MarshalJSON() ([]byte, error) {
	type wire WidgetStreamingTextValueDelta
	return tagged(string(UpdateWidgetTextDelta), wire(u))
}

func (u WidgetRootUpdated) MarshalJSON() ([]byte, error) {
	type wire WidgetRootUpdated
	return tagged(string(UpdateWidgetRoot), wire(u))
}

func (u WidgetComponentUpdated) MarshalJSON() ([]byte, error) {
	type wire WidgetComponentUpdated
	return tagged(string(UpdateWidgetComponent), wire(u))
}

func (u WorkflowTaskAdded) MarshalJSON() ([]byte, error) {
	type wire WorkflowTaskAdded
	return tagged(string(UpdateWorkflowTaskAdded), wire(u))
}

func (u WorkflowTaskUpdated) MarshalJSON() ([]byte, error) {
	type wire WorkflowTaskUpdated
	return tagged(string(UpdateWorkflowTaskUpdated), wire(u))
}

// ParseUpdate parses a thread item update.
func ParseUpdate(data []byte) (ThreadItemUpdate, error) {
	return parseRoot("update", data, decodeUpdate)
}

func decodeUpdate(d *decoder, path string, raw json.RawMessage) (ThreadItemUpdate, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("update", updateTags)
	if !ok {
		return nil, false
	}
	var u ThreadItemUpdate
	switch UpdateType(tag) {
	case UpdateContentPartAdded:
		u = ContentPartAdded{
			ContentIndex: o.integer("content_index"),
			Content:      nested(o, "content", decodeAssistantContent),
		}
	case UpdateContentPartTextDelta:
		u = ContentPartTextDelta{
			ContentIndex: o.integer("content_index"),
			Delta:        o.str("delta"),
		}
	case UpdateContentPartAnnotation:
		u = ContentPartAnnotationAdded{
			ContentIndex:    o.integer("content_index"),
			AnnotationIndex: o.integer("annotation_index"),
			Annotation:      nested(o, "annotation", decodeAnnotation),
		}
	case UpdateContentPartDone:
		u = ContentPartDone{
			ContentIndex: o.integer("content_index"),
			Content:      nested(o, "content", decodeAssistantContent),
		}
	case UpdateWidgetTextDelta:
		u = WidgetStreamingTextValueDelta{
			ComponentID: o.str("component_id"),
			Delta:       o.str("delta"),
			Done:        o.boolean("done"),
		}
	case UpdateWidgetRoot:
		u = WidgetRootUpdated{Widget: nested(o, "widget", decodeWidgetComponent)}
	case UpdateWidgetComponent:
		u = WidgetComponentUpdated{
			ComponentID: o.str("component_id"),
			Component:   nested(o, "component", decodeWidgetComponent),
		}
	case UpdateWorkflowTaskAdded:
		u = WorkflowTaskAdded{
			TaskIndex: o.integer("task_index"),
			Task:      nested(o, "task", decodeTask),
		}
	case UpdateWorkflowTaskUpdated:
		u = WorkflowTaskUpdated{
			TaskIndex: o.integer("task_index"),
			Task:      nested(o, "task", decodeTask),
		}
	}
	return u, len(d.errs) == n
}
