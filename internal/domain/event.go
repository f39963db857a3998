package domain

import (
	"context"
	"encoding/json"
	"time"
)

// EventType identifies a server-to-client stream event.
type EventType string

const (
	EventThreadCreated      EventType = "thread.created"
	EventThreadUpdated      EventType = "thread.updated"
	EventThreadItemAdded    EventType = "thread.item.added"
	EventThreadItemUpdated  EventType = "thread.item.updated"
	EventThreadItemDone     EventType = "thread.item.done"
	EventThreadItemRemoved  EventType = "thread.item.removed"
	EventThreadItemReplaced EventType = "thread.item.replaced"

	// Transient signals. They never change thread state.
	EventProgressUpdate EventType = "progress_update"
	EventError          EventType = "error"
	EventNotice         EventType = "notice"
)

var eventTags = []string{
	string(EventThreadCreated),
	string(EventThreadUpdated),
	string(EventThreadItemAdded),
	string(EventThreadItemUpdated),
	string(EventThreadItemDone),
	string(EventThreadItemRemoved),
	string(EventThreadItemReplaced),
	string(EventProgressUpdate),
	string(EventError),
	string(EventNotice),
}

// ThreadStreamEvent is one emission of a streaming response.
type ThreadStreamEvent interface {
	EventType() EventType
	isThreadStreamEvent()
}

// IsTransient reports whether e is a signal that carries no thread state.
func IsTransient(e ThreadStreamEvent) bool {
	switch e.EventType() {
	case EventProgressUpdate, EventError, EventNotice:
		return true
	}
	return false
}

type ThreadCreatedEvent struct {
	Thread Thread `json:"thread"`
}

type ThreadUpdatedEvent struct {
	Thread Thread `json:"thread"`
}

type ThreadItemAddedEvent struct {
	Item ThreadItem `json:"item"`
}

type ThreadItemUpdatedEvent struct {
	ItemID string           `json:"item_id"`
	Update ThreadItemUpdate `json:"update"`
}

type ThreadItemDoneEvent struct {
	Item ThreadItem `json:"item"`
}

type ThreadItemRemovedEvent struct {
	ItemID string `json:"item_id"`
}

type ThreadItemReplacedEvent struct {
	Item ThreadItem `json:"item"`
}

type ProgressUpdateEvent struct {
	Icon *IconName `json:"icon"`
	Text string    `json:"text"`
}

// StreamErrorCode classifies an error event.
type StreamErrorCode string

const (
	StreamErrorStream StreamErrorCode = "stream.error"
	StreamErrorCustom StreamErrorCode = "custom"
)

var streamErrorCodes = []string{string(StreamErrorStream), string(StreamErrorCustom)}

// ErrorEvent reports a user-facing failure as data.
type ErrorEvent struct {
	Code       StreamErrorCode `json:"code"`
	Message    *string         `json:"message"`
	AllowRetry bool            `json:"allow_retry"`
}

// NoticeLevel is the severity of a notice.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeDanger  NoticeLevel = "danger"
)

var noticeLevels = []string{string(NoticeInfo), string(NoticeWarning), string(NoticeDanger)}

// NoticeEvent shows a message to the user. Message may contain markdown.
type NoticeEvent struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
	Title   *string     `json:"title"`
}

func (ThreadCreatedEvent) EventType() EventType      { return EventThreadCreated }
func (ThreadUpdatedEvent) EventType() EventType      { return EventThreadUpdated }
func (ThreadItemAddedEvent) EventType() EventType    { return EventThreadItemAdded }
func (ThreadItemUpdatedEvent) EventType() EventType  { return EventThreadItemUpdated }
func (ThreadItemDoneEvent) EventType() EventType     { return EventThreadItemDone }
func (ThreadItemRemovedEvent) EventType() EventType  { return EventThreadItemRemoved }
func (ThreadItemReplacedEvent) EventType() EventType { return EventThreadItemReplaced }
func (ProgressUpdateEvent) EventType() EventType     { return EventProgressUpdate }
func (ErrorEvent) EventType() EventType              { return EventError }
func (NoticeEvent) EventType() EventType             { return EventNotice }

func (ThreadCreatedEvent) isThreadStreamEvent()      {}
func (ThreadUpdatedEvent) isThreadStreamEvent()      {}
func (ThreadItemAddedEvent) isThreadStreamEvent()    {}
func (ThreadItemUpdatedEvent) isThreadStreamEvent()  {}
func (ThreadItemDoneEvent) isThreadStreamEvent()     {}
func (ThreadItemRemovedEvent) isThreadStreamEvent()  {}
func (ThreadItemReplacedEvent) isThreadStreamEvent() {}
func (ProgressUpdateEvent) isThreadStreamEvent()     {}
func (ErrorEvent) isThreadStreamEvent()              {}
func (NoticeEvent) isThreadStreamEvent()             {}

func (e ThreadCreatedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadCreatedEvent
	return tagged(string(EventThreadCreated), wire(e))
}

func (e ThreadUpdatedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadUpdatedEvent
	return tagged(string(EventThreadUpdated), wire(e))
}

func (e ThreadItemAddedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadItemAddedEvent
	return tagged(string(EventThreadItemAdded), wire(e))
}

func (e ThreadItemUpdatedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadItemUpdatedEvent
	return tagged(string(EventThreadItemUpdated), wire(e))
}

func (e ThreadItemDoneEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadItemDoneEvent
	return tagged(string(EventThreadItemDone), wire(e))
}

func (e ThreadItemRemovedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadItemRemovedEvent
	return tagged(string(EventThreadItemRemoved), wire(e))
}

func (e ThreadItemReplacedEvent) MarshalJSON() ([]byte, error) {
	type wire ThreadItemReplacedEvent
	return tagged(string(EventThreadItemReplaced), wire(e))
}

func (e ProgressUpdateEvent) MarshalJSON() ([]byte, error) {
	type wire ProgressUpdateEvent
	return tagged(string(EventProgressUpdate), wire(e))
}

func (e ErrorEvent) MarshalJSON() ([]byte, error) {
	type wire ErrorEvent
	w := wire(e)
	if w.Code == "" {
		w.Code = StreamErrorCustom
	}
	return tagged(string(EventError), w)
}

func (e NoticeEvent) MarshalJSON() ([]byte, error) {
	type wire NoticeEvent
	return tagged(string(EventNotice), wire(e))
}

// ParseEvent parses a thread stream event.
func ParseEvent(data []byte) (ThreadStreamEvent, error) {
	return parseRoot("event", data, decodeEvent)
}

func decodeEvent(d *decoder, path string, raw json.RawMessage) (ThreadStreamEvent, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("event", eventTags)
	if !ok {
		return nil, false
	}
	var e ThreadStreamEvent
	switch EventType(tag) {
	case EventThreadCreated:
		e = ThreadCreatedEvent{Thread: nested(o, "thread", decodeThread)}
	case EventThreadUpdated:
		e = ThreadUpdatedEvent{Thread: nested(o, "thread", decodeThread)}
	case EventThreadItemAdded:
		e = ThreadItemAddedEvent{Item: nested(o, "item", decodeThreadItem)}
	case EventThreadItemUpdated:
		e = ThreadItemUpdatedEvent{
			ItemID: o.str("item_id"),
			Update: nested(o, "update", decodeUpdate),
		}
	case EventThreadItemDone:
		e = ThreadItemDoneEvent{Item: nested(o, "item", decodeThreadItem)}
	case EventThreadItemRemoved:
		e = ThreadItemRemovedEvent{ItemID: o.str("item_id")}
	case EventThreadItemReplaced:
		e = ThreadItemReplacedEvent{Item: nested(o, "item", decodeThreadItem)}
	case EventProgressUpdate:
		ev := ProgressUpdateEvent{Text: o.str("text")}
		if icon := o.optEnum("icon", iconNames); icon != nil {
			ev.Icon = Ptr(IconName(*icon))
		}
		e = ev
	case EventError:
		e = ErrorEvent{
			Code:       StreamErrorCode(o.enum("code", streamErrorCodes, string(StreamErrorCustom))),
			Message:    o.optStr("message"),
			AllowRetry: o.boolDefault("allow_retry", false),
		}
	case EventNotice:
		e = NoticeEvent{
			Level:   NoticeLevel(o.enum("level", noticeLevels, "")),
			Message: o.str("message"),
			Title:   o.optStr("title"),
		}
	}
	return e, len(d.errs) == n
}

// Signal is a transient stream event published for the presentation layer.
type Signal struct {
	ThreadID  string            `json:"thread_id"`
	Timestamp time.Time         `json:"timestamp"`
	Event     ThreadStreamEvent `json:"event"`
}

// Type returns the type of the wrapped event.
func (s Signal) Type() EventType {
	if s.Event == nil {
		return ""
	}
	return s.Event.EventType()
}

// SignalHandler is a callback invoked when a signal is received.
type SignalHandler func(ctx context.Context, signal Signal)

// SignalBus provides a publish/subscribe mechanism for transient signals.
type SignalBus interface {
	// Publish sends a signal to all matching subscribers.
	Publish(ctx context.Context, signal Signal)
	// Subscribe registers a handler for one event type.
	// Returns an unsubscribe function.
	Subscribe(eventType EventType, handler SignalHandler) func()
	// SubscribeAll registers a handler that receives every signal.
	// Returns an unsubscribe function.
	SubscribeAll(handler SignalHandler) func()
	// Close drains in-flight handlers and prevents new publishes.
	Close()
}
