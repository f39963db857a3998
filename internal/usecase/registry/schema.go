package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"time"

	"github.com/invopop/jsonschema"

	"chatkit/internal/domain"
)

// variants holds one zero value per tag, used to reflect schemas.
var variants = map[domain.Union]map[string]any{
	domain.UnionItem: {
		string(domain.ItemUserMessage):      domain.UserMessageItem{},
		string(domain.ItemAssistantMessage): domain.AssistantMessageItem{},
		string(domain.ItemClientToolCall):   domain.ClientToolCallItem{},
		string(domain.ItemWidget):           domain.WidgetItem{},
		string(domain.ItemTask):             domain.TaskItem{},
		string(domain.ItemWorkflow):         domain.WorkflowItem{},
		string(domain.ItemEndOfTurn):        domain.EndOfTurnItem{},
		string(domain.ItemHiddenContext):    domain.HiddenContextItem{},
	},
	domain.UnionEvent: {
		string(domain.EventThreadCreated):      domain.ThreadCreatedEvent{},
		string(domain.EventThreadUpdated):      domain.ThreadUpdatedEvent{},
		string(domain.EventThreadItemAdded):    domain.ThreadItemAddedEvent{},
		string(domain.EventThreadItemUpdated):  domain.ThreadItemUpdatedEvent{},
		string(domain.EventThreadItemDone):     domain.ThreadItemDoneEvent{},
		string(domain.EventThreadItemRemoved):  domain.ThreadItemRemovedEvent{},
		string(domain.EventThreadItemReplaced): domain.ThreadItemReplacedEvent{},
		string(domain.EventProgressUpdate):     domain.ProgressUpdateEvent{},
		string(domain.EventError):              domain.ErrorEvent{},
		string(domain.EventNotice):             domain.NoticeEvent{},
	},
	domain.UnionUpdate: {
		string(domain.UpdateContentPartAdded):      domain.ContentPartAdded{},
		string(domain.UpdateContentPartTextDelta):  domain.ContentPartTextDelta{},
		string(domain.UpdateContentPartAnnotation): domain.ContentPartAnnotationAdded{},
		string(domain.UpdateContentPartDone):       domain.ContentPartDone{},
		string(domain.UpdateWidgetTextDelta):       domain.WidgetStreamingTextValueDelta{},
		string(domain.UpdateWidgetRoot):            domain.WidgetRootUpdated{},
		string(domain.UpdateWidgetComponent):       domain.WidgetComponentUpdated{},
		string(domain.UpdateWorkflowTaskAdded):     domain.WorkflowTaskAdded{},
		string(domain.UpdateWorkflowTaskUpdated):   domain.WorkflowTaskUpdated{},
	},
	domain.UnionSource: {
		string(domain.SourceTypeURL):    domain.URLSource{},
		string(domain.SourceTypeFile):   domain.FileSource{},
		string(domain.SourceTypeEntity): domain.EntitySource{},
	},
	domain.UnionTask: {
		string(domain.TaskCustom):    domain.CustomTask{},
		string(domain.TaskWebSearch): domain.SearchTask{},
		string(domain.TaskThought):   domain.ThoughtTask{},
		string(domain.TaskFile):      domain.FileTask{},
		string(domain.TaskImage):     domain.ImageTask{},
	},
	domain.UnionAttachment: {
		string(domain.AttachmentFile):  domain.FileAttachment{},
		string(domain.AttachmentImage): domain.ImageAttachment{},
	},
	domain.UnionStatus: {
		string(domain.StatusActive): domain.ActiveStatus{},
		string(domain.StatusLocked): domain.LockedStatus{},
		string(domain.StatusClosed): domain.ClosedStatus{},
	},
	domain.UnionUserContent: {
		string(domain.UserContentText): domain.UserMessageTextContent{},
		string(domain.UserContentTag):  domain.UserMessageTagContent{},
	},
	domain.UnionRequest: {
		string(domain.ReqThreadsGetByID):             domain.ThreadGetByIDParams{},
		string(domain.ReqThreadsCreate):              domain.ThreadCreateParams{},
		string(domain.ReqThreadsList):                domain.ThreadListParams{},
		string(domain.ReqThreadsAddUserMessage):      domain.ThreadAddUserMessageParams{},
		string(domain.ReqThreadsAddClientToolOutput): domain.ThreadAddClientToolOutputParams{},
		string(domain.ReqThreadsCustomAction):        domain.ThreadCustomActionParams{},
		string(domain.ReqThreadsRetryAfterItem):      domain.ThreadRetryAfterItemParams{},
		string(domain.ReqThreadsUpdate):              domain.ThreadUpdateParams{},
		string(domain.ReqThreadsDelete):              domain.ThreadDeleteParams{},
		string(domain.ReqItemsList):                  domain.ItemsListParams{},
		string(domain.ReqItemsFeedback):              domain.ItemFeedbackParams{},
		string(domain.ReqAttachmentsCreate):          domain.AttachmentCreateParams{},
		string(domain.ReqAttachmentsDelete):          domain.AttachmentDeleteParams{},
	},
}

// interfaceUnions maps the sealed interfaces that appear as fields to the
// union whose variants implement them.
var interfaceUnions = map[reflect.Type]domain.Union{
	reflect.TypeFor[domain.ThreadItem]():         domain.UnionItem,
	reflect.TypeFor[domain.ThreadItemUpdate]():   domain.UnionUpdate,
	reflect.TypeFor[domain.Source]():             domain.UnionSource,
	reflect.TypeFor[domain.Task]():               domain.UnionTask,
	reflect.TypeFor[domain.Attachment]():         domain.UnionAttachment,
	reflect.TypeFor[domain.ThreadStatus]():       domain.UnionStatus,
	reflect.TypeFor[domain.UserMessageContent](): domain.UnionUserContent,
}

var (
	rawType     = reflect.TypeFor[json.RawMessage]()
	jsonMapType = reflect.TypeFor[domain.JSONMap]()
	widgetType  = reflect.TypeFor[domain.WidgetComponent]()
	summaryType = reflect.TypeFor[domain.WorkflowSummary]()
	timeType    = reflect.TypeFor[time.Time]()
)

// JSONSchema reflects a JSON Schema for union u: a oneOf with one entry per
// variant, each pinning its "type" discriminator.
func JSONSchema(u domain.Union) (*jsonschema.Schema, error) {
	if !u.Valid() {
		return nil, fmt.Errorf("%w %q", ErrUnknownUnion, u)
	}
	g := &generator{}
	g.r = &jsonschema.Reflector{
		DoNotReference:             true,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
		Mapper:                     g.mapType,
	}
	s := g.union(u)
	s.Version = jsonschema.Version
	s.Title = string(u)
	return s, nil
}

type generator struct {
	r *jsonschema.Reflector
}

func (g *generator) union(u domain.Union) *jsonschema.Schema {
	out := &jsonschema.Schema{}
	for _, tag := range u.Tags() {
		out.OneOf = append(out.OneOf, g.variant(u, tag))
	}
	return out
}

func (g *generator) variant(u domain.Union, tag string) *jsonschema.Schema {
	sample := variants[u][tag]
	if u == domain.UnionRequest {
		props := jsonschema.NewProperties()
		props.Set("type", &jsonschema.Schema{Const: tag})
		props.Set("params", g.reflect(sample))
		props.Set("metadata", &jsonschema.Schema{Type: "object"})
		return &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"type", "params"}}
	}
	s := g.reflect(sample)
	tagged(s, tag)
	return s
}

func (g *generator) reflect(v any) *jsonschema.Schema {
	s := g.r.Reflect(v)
	s.Version = ""
	return s
}

func tagged(s *jsonschema.Schema, tag string) {
	if s.Properties == nil {
		s.Properties = jsonschema.NewProperties()
	}
	s.Properties.Set("type", &jsonschema.Schema{Const: tag})
	s.Required = append([]string{"type"}, s.Required...)
}

// mapType overrides reflection for types whose wire form differs from
// their Go shape.
func (g *generator) mapType(t reflect.Type) *jsonschema.Schema {
	if u, ok := interfaceUnions[t]; ok {
		return g.union(u)
	}
	switch t {
	case rawType:
		return &jsonschema.Schema{}
	case jsonMapType:
		return &jsonschema.Schema{Type: "object"}
	case timeType:
		return &jsonschema.Schema{Type: "string", Format: "date-time"}
	case widgetType:
		props := jsonschema.NewProperties()
		props.Set("type", &jsonschema.Schema{Type: "string"})
		props.Set("id", &jsonschema.Schema{Type: "string"})
		props.Set("value", &jsonschema.Schema{Type: "string"})
		props.Set("streaming", &jsonschema.Schema{Type: "boolean"})
		props.Set("children", &jsonschema.Schema{Type: "array", Items: &jsonschema.Schema{Type: "object"}})
		return &jsonschema.Schema{Type: "object", Properties: props, Required: []string{"type"}}
	case summaryType:
		custom := jsonschema.NewProperties()
		custom.Set("title", &jsonschema.Schema{Type: "string"})
		custom.Set("icon", &jsonschema.Schema{Type: "string"})
		duration := jsonschema.NewProperties()
		duration.Set("duration", &jsonschema.Schema{Type: "integer"})
		return &jsonschema.Schema{OneOf: []*jsonschema.Schema{
			{Type: "object", Properties: custom, Required: []string{"title"}},
			{Type: "object", Properties: duration, Required: []string{"duration"}},
			{Type: "null"},
		}}
	}
	return nil
}
