package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// ItemType discriminates thread items.
type ItemType string

const (
	ItemUserMessage      ItemType = "user_message"
	ItemAssistantMessage ItemType = "assistant_message"
	ItemClientToolCall   ItemType = "client_tool_call"
	ItemWidget           ItemType = "widget"
	ItemTask             ItemType = "task"
	ItemWorkflow         ItemType = "workflow"
	ItemEndOfTurn        ItemType = "end_of_turn"
	ItemHiddenContext    ItemType = "hidden_context_item"
)

var itemTags = []string{
	string(ItemUserMessage),
	string(ItemAssistantMessage),
	string(ItemClientToolCall),
	string(ItemWidget),
	string(ItemTask),
	string(ItemWorkflow),
	string(ItemEndOfTurn),
	string(ItemHiddenContext),
}

// ThreadItem is one entry of a thread. The id is unique within the thread
// and the concrete type never changes once the item exists.
type ThreadItem interface {
	ItemType() ItemType
	Base() ItemBase
	isThreadItem()
}

// ItemBase holds the identity shared by every item.
type ItemBase struct {
	ID        string    `json:"id"`
	ThreadID  string    `json:"thread_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (b ItemBase) Base() ItemBase { return b }

type UserMessageItem struct {
	ItemBase
	Content          []UserMessageContent `json:"content"`
	Attachments      []Attachment         `json:"attachments"`
	QuotedText       *string              `json:"quoted_text"`
	InferenceOptions InferenceOptions     `json:"inference_options"`
}

type AssistantMessageItem struct {
	ItemBase
	Content []AssistantMessageContent `json:"content"`
}

// ToolCallStatus is the state of a client tool call.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
)

// ClientToolCallItem asks the client to run a tool. CallID, Name and
// Arguments are fixed at creation; Output is set once on completion.
type ClientToolCallItem struct {
	ItemBase
	Status    ToolCallStatus  `json:"status"`
	CallID    string          `json:"call_id"`
	Name      string          `json:"name"`
	Arguments JSONMap         `json:"arguments"`
	Output    json.RawMessage `json:"output"`
}

// Complete records the tool output and marks the call completed.
func (c ClientToolCallItem) Complete(output json.RawMessage) (ClientToolCallItem, error) {
	if c.Status == ToolCallCompleted {
		return c, NewDomainError("ClientToolCallItem.Complete", ErrToolCallCompleted, c.CallID)
	}
	c.Status = ToolCallCompleted
	c.Output = rawOrNull(output)
	return c, nil
}

type WidgetItem struct {
	ItemBase
	Widget   WidgetRoot `json:"widget"`
	CopyText *string    `json:"copy_text"`
}

type TaskItem struct {
	ItemBase
	Task Task `json:"task"`
}

type WorkflowItem struct {
	ItemBase
	Workflow Workflow `json:"workflow"`
}

// EndOfTurnItem marks the end of an assistant turn.
type EndOfTurnItem struct {
	ItemBase
}

// HiddenContextItem carries model context that is never shown to clients.
type HiddenContextItem struct {
	ItemBase
	Content json.RawMessage `json:"content"`
}

func (UserMessageItem) ItemType() ItemType      { return ItemUserMessage }
func (AssistantMessageItem) ItemType() ItemType { return ItemAssistantMessage }
func (ClientToolCallItem) ItemType() ItemType   { return ItemClientToolCall }
func (WidgetItem) ItemType() ItemType           { return ItemWidget }
func (TaskItem) ItemType() ItemType             { return ItemTask }
func (WorkflowItem) ItemType() ItemType         { return ItemWorkflow }
func (EndOfTurnItem) ItemType() ItemType        { return ItemEndOfTurn }
func (HiddenContextItem) ItemType() ItemType    { return ItemHiddenContext }

func (UserMessageItem) isThreadItem()      {}
func (AssistantMessageItem) isThreadItem() {}
func (ClientToolCallItem) isThreadItem()   {}
func (WidgetItem) isThreadItem()           {}
func (TaskItem) isThreadItem()             {}
func (WorkflowItem) isThreadItem()         {}
func (EndOfTurnItem) isThreadItem()        {}
func (HiddenContextItem) isThreadItem()    {}

func (i UserMessageItem) MarshalJSON() ([]byte, error) {
	type wire UserMessageItem
	w := wire(i)
	w.Content = nonNil(w.Content)
	w.Attachments = nonNil(w.Attachments)
	return tagged(string(ItemUserMessage), w)
}

func (i AssistantMessageItem) MarshalJSON() ([]byte, error) {
	type wire AssistantMessageItem
	w := wire(i)
	w.Content = nonNil(w.Content)
	return tagged(string(ItemAssistantMessage), w)
}

func (i ClientToolCallItem) MarshalJSON() ([]byte, error) {
	type wire ClientToolCallItem
	w := wire(i)
	w.Output = rawOrNull(w.Output)
	return tagged(string(ItemClientToolCall), w)
}

func (i WidgetItem) MarshalJSON() ([]byte, error) {
	type wire WidgetItem
	return tagged(string(ItemWidget), wire(i))
}

func (i TaskItem) MarshalJSON() ([]byte, error) {
	type wire TaskItem
	return tagged(string(ItemTask), wire(i))
}

func (i WorkflowItem) MarshalJSON() ([]byte, error) {
	type wire WorkflowItem
	return tagged(string(ItemWorkflow), wire(i))
}

func (i EndOfTurnItem) MarshalJSON() ([]byte, error) {
	type wire EndOfTurnItem
	return tagged(string(ItemEndOfTurn), wire(i))
}

func (i HiddenContextItem) MarshalJSON() ([]byte, error) {
	type wire HiddenContextItem
	w := wire(i)
	w.Content = rawOrNull(w.Content)
	return tagged(string(ItemHiddenContext), w)
}

// WithBase returns item with its identity replaced by b.
func WithBase(item ThreadItem, b ItemBase) ThreadItem {
	switch it := item.(type) {
	case UserMessageItem:
		it.ItemBase = b
		return it
	case AssistantMessageItem:
		it.ItemBase = b
		return it
	case ClientToolCallItem:
		it.ItemBase = b
		return it
	case WidgetItem:
		it.ItemBase = b
		return it
	case TaskItem:
		it.ItemBase = b
		return it
	case WorkflowItem:
		it.ItemBase = b
		return it
	case EndOfTurnItem:
		it.ItemBase = b
		return it
	case HiddenContextItem:
		it.ItemBase = b
		return it
	}
	panic(fmt.Sprintf("domain: unhandled thread item %T", item))
}

// ParseThreadItem parses a thread item.
func ParseThreadItem(data []byte) (ThreadItem, error) {
	return parseRoot("item", data, decodeThreadItem)
}

func decodeThreadItem(d *decoder, path string, raw json.RawMessage) (ThreadItem, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("item", itemTags)
	if !ok {
		return nil, false
	}
	base := ItemBase{
		ID:        o.str("id"),
		ThreadID:  o.str("thread_id"),
		CreatedAt: o.timestamp("created_at"),
	}
	var item ThreadItem
	switch ItemType(tag) {
	case ItemUserMessage:
		item = UserMessageItem{
			ItemBase:         base,
			Content:          list(o, "content", true, decodeUserContent),
			Attachments:      list(o, "attachments", false, decodeAttachment),
			QuotedText:       o.optStr("quoted_text"),
			InferenceOptions: nested(o, "inference_options", decodeInferenceOptions),
		}
	case ItemAssistantMessage:
		item = AssistantMessageItem{
			ItemBase: base,
			Content:  list(o, "content", true, decodeAssistantContent),
		}
	case ItemClientToolCall:
		item = ClientToolCallItem{
			ItemBase:  base,
			Status:    ToolCallStatus(o.enum("status", []string{string(ToolCallPending), string(ToolCallCompleted)}, string(ToolCallPending))),
			CallID:    o.str("call_id"),
			Name:      o.str("name"),
			Arguments: o.jsonMap("arguments", true),
			Output:    o.anyJSON("output", false),
		}
	case ItemWidget:
		item = WidgetItem{
			ItemBase: base,
			Widget:   nested(o, "widget", decodeWidgetComponent),
			CopyText: o.optStr("copy_text"),
		}
	case ItemTask:
		item = TaskItem{
			ItemBase: base,
			Task:     nested(o, "task", decodeTask),
		}
	case ItemWorkflow:
		item = WorkflowItem{
			ItemBase: base,
			Workflow: nested(o, "workflow", decodeWorkflow),
		}
	case ItemEndOfTurn:
		item = EndOfTurnItem{ItemBase: base}
	case ItemHiddenContext:
		item = HiddenContextItem{
			ItemBase: base,
			Content:  o.anyJSON("content", true),
		}
	}
	return item, len(d.errs) == n
}
