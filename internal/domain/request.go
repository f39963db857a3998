package domain

import (
	"encoding/json"
)

// RequestType discriminates client requests.
type RequestType string

const (
	ReqThreadsGetByID             RequestType = "threads.get_by_id"
	ReqThreadsCreate              RequestType = "threads.create"
	ReqThreadsList                RequestType = "threads.list"
	ReqThreadsAddUserMessage      RequestType = "threads.add_user_message"
	ReqThreadsAddClientToolOutput RequestType = "threads.add_client_tool_output"
	ReqThreadsCustomAction        RequestType = "threads.custom_action"
	ReqThreadsRetryAfterItem      RequestType = "threads.retry_after_item"
	ReqThreadsUpdate              RequestType = "threads.update"
	ReqThreadsDelete              RequestType = "threads.delete"
	ReqItemsList                  RequestType = "items.list"
	ReqItemsFeedback              RequestType = "items.feedback"
	ReqAttachmentsCreate          RequestType = "attachments.create"
	ReqAttachmentsDelete          RequestType = "attachments.delete"
)

var requestTags = []string{
	string(ReqThreadsGetByID),
	string(ReqThreadsCreate),
	string(ReqThreadsList),
	string(ReqThreadsAddUserMessage),
	string(ReqThreadsAddClientToolOutput),
	string(ReqThreadsCustomAction),
	string(ReqThreadsRetryAfterItem),
	string(ReqThreadsUpdate),
	string(ReqThreadsDelete),
	string(ReqItemsList),
	string(ReqItemsFeedback),
	string(ReqAttachmentsCreate),
	string(ReqAttachmentsDelete),
}

// Request is a validated request envelope {type, params, metadata}.
type Request interface {
	RequestType() RequestType
	RequestMetadata() JSONMap
	// ThreadID returns the existing thread the request addresses, if any.
	ThreadID() (string, bool)
	isRequest()
}

// Params is the variant-specific body of a request. The params type alone
// determines the request tag.
type Params interface {
	RequestType() RequestType
}

type threadScoped interface {
	targetThread() string
}

// Req is the request envelope for params of type P.
type Req[P Params] struct {
	Params   P
	Metadata JSONMap
}

func (r Req[P]) RequestType() RequestType { return r.Params.RequestType() }
func (r Req[P]) RequestMetadata() JSONMap { return r.Metadata }
func (Req[P]) isRequest()                 {}

func (r Req[P]) ThreadID() (string, bool) {
	if ts, ok := any(r.Params).(threadScoped); ok {
		return ts.targetThread(), true
	}
	return "", false
}

func (r Req[P]) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Type     RequestType `json:"type"`
		Params   P           `json:"params"`
		Metadata JSONMap     `json:"metadata"`
	}{r.Params.RequestType(), r.Params, r.Metadata})
}

// SortOrder is the direction of a listing.
type SortOrder string

const (
	OrderAsc  SortOrder = "asc"
	OrderDesc SortOrder = "desc"
)

var sortOrders = []string{string(OrderAsc), string(OrderDesc)}

type ThreadGetByIDParams struct {
	ThreadID string `json:"thread_id"`
}

type ThreadCreateParams struct {
	Input UserMessageInput `json:"input"`
}

type ThreadListParams struct {
	Limit *int      `json:"limit"`
	Order SortOrder `json:"order"`
	After *string   `json:"after"`
}

type ThreadAddUserMessageParams struct {
	Input    UserMessageInput `json:"input"`
	ThreadID string           `json:"thread_id"`
}

type ThreadAddClientToolOutputParams struct {
	ThreadID string          `json:"thread_id"`
	Result   json.RawMessage `json:"result"`
}

type ThreadCustomActionParams struct {
	ThreadID string  `json:"thread_id"`
	ItemID   *string `json:"item_id"`
	Action   Action  `json:"action"`
}

type ThreadRetryAfterItemParams struct {
	ThreadID string `json:"thread_id"`
	ItemID   string `json:"item_id"`
}

type ThreadUpdateParams struct {
	ThreadID string `json:"thread_id"`
	Title    string `json:"title"`
}

type ThreadDeleteParams struct {
	ThreadID string `json:"thread_id"`
}

type ItemsListParams struct {
	ThreadID string    `json:"thread_id"`
	Limit    *int      `json:"limit"`
	Order    SortOrder `json:"order"`
	After    *string   `json:"after"`
}

type ItemFeedbackParams struct {
	ThreadID string       `json:"thread_id"`
	ItemIDs  []string     `json:"item_ids"`
	Kind     FeedbackKind `json:"kind"`
}

type AttachmentCreateParams struct {
	Name     string `json:"name"`
	Size     int    `json:"size"`
	MimeType string `json:"mime_type"`
}

type AttachmentDeleteParams struct {
	AttachmentID string `json:"attachment_id"`
}

func (ThreadGetByIDParams) RequestType() RequestType        { return ReqThreadsGetByID }
func (ThreadCreateParams) RequestType() RequestType         { return ReqThreadsCreate }
func (ThreadListParams) RequestType() RequestType           { return ReqThreadsList }
func (ThreadAddUserMessageParams) RequestType() RequestType { return ReqThreadsAddUserMessage }
func (ThreadAddClientToolOutputParams) RequestType() RequestType {
	return ReqThreadsAddClientToolOutput
}
func (ThreadCustomActionParams) RequestType() RequestType   { return ReqThreadsCustomAction }
func (ThreadRetryAfterItemParams) RequestType() RequestType { return ReqThreadsRetryAfterItem }
func (ThreadUpdateParams) RequestType() RequestType         { return ReqThreadsUpdate }
func (ThreadDeleteParams) RequestType() RequestType         { return ReqThreadsDelete }
func (ItemsListParams) RequestType() RequestType            { return ReqItemsList }
func (ItemFeedbackParams) RequestType() RequestType         { return ReqItemsFeedback }
func (AttachmentCreateParams) RequestType() RequestType     { return ReqAttachmentsCreate }
func (AttachmentDeleteParams) RequestType() RequestType     { return ReqAttachmentsDelete }

func (p ThreadGetByIDParams) targetThread() string             { return p.ThreadID }
func (p ThreadAddUserMessageParams) targetThread() string      { return p.ThreadID }
func (p ThreadAddClientToolOutputParams) targetThread() string { return p.ThreadID }
func (p ThreadCustomActionParams) targetThread() string        { return p.ThreadID }
func (p ThreadRetryAfterItemParams) targetThread() string      { return p.ThreadID }
func (p ThreadUpdateParams) targetThread() string              { return p.ThreadID }
func (p ThreadDeleteParams) targetThread() string              { return p.ThreadID }
func (p ItemsListParams) targetThread() string                 { return p.ThreadID }
func (p ItemFeedbackParams) targetThread() string              { return p.ThreadID }

func (p ThreadAddClientToolOutputParams) MarshalJSON() ([]byte, error) {
	type wire ThreadAddClientToolOutputParams
	w := wire(p)
	w.Result = rawOrNull(w.Result)
	return json.Marshal(w)
}

func (p ItemFeedbackParams) MarshalJSON() ([]byte, error) {
	type wire ItemFeedbackParams
	w := wire(p)
	w.ItemIDs = nonNil(w.ItemIDs)
	return json.Marshal(w)
}

func (p ThreadListParams) MarshalJSON() ([]byte, error) {
	type wire ThreadListParams
	w := wire(p)
	if w.Order == "" {
		w.Order = OrderDesc
	}
	return json.Marshal(w)
}

func (p ItemsListParams) MarshalJSON() ([]byte, error) {
	type wire ItemsListParams
	w := wire(p)
	if w.Order == "" {
		w.Order = OrderDesc
	}
	return json.Marshal(w)
}

type (
	ThreadsGetByIDReq             = Req[ThreadGetByIDParams]
	ThreadsCreateReq              = Req[ThreadCreateParams]
	ThreadsListReq                = Req[ThreadListParams]
	ThreadsAddUserMessageReq      = Req[ThreadAddUserMessageParams]
	ThreadsAddClientToolOutputReq = Req[ThreadAddClientToolOutputParams]
	ThreadsCustomActionReq        = Req[ThreadCustomActionParams]
	ThreadsRetryAfterItemReq      = Req[ThreadRetryAfterItemParams]
	ThreadsUpdateReq              = Req[ThreadUpdateParams]
	ThreadsDeleteReq              = Req[ThreadDeleteParams]
	ItemsListReq                  = Req[ItemsListParams]
	ItemsFeedbackReq              = Req[ItemFeedbackParams]
	AttachmentsCreateReq          = Req[AttachmentCreateParams]
	AttachmentsDeleteReq          = Req[AttachmentDeleteParams]
)

// RequestTags returns every request type in declaration order.
func RequestTags() []RequestType {
	out := make([]RequestType, len(requestTags))
	for i, t := range requestTags {
		out[i] = RequestType(t)
	}
	return out
}

// ParseRequest parses a request envelope.
func ParseRequest(data []byte) (Request, error) {
	return parseRoot("request", data, decodeRequest)
}

func decodeRequest(d *decoder, path string, raw json.RawMessage) (Request, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("request", requestTags)
	if !ok {
		return nil, false
	}
	var r Request
	switch RequestType(tag) {
	case ReqThreadsGetByID:
		r = decodeReq(o, func(p object) ThreadGetByIDParams {
			return ThreadGetByIDParams{ThreadID: p.str("thread_id")}
		})
	case ReqThreadsCreate:
		r = decodeReq(o, func(p object) ThreadCreateParams {
			return ThreadCreateParams{Input: nested(p, "input", decodeUserMessageInput)}
		})
	case ReqThreadsList:
		r = decodeReq(o, func(p object) ThreadListParams {
			return ThreadListParams{
				Limit: p.optInt("limit"),
				Order: SortOrder(p.enum("order", sortOrders, string(OrderDesc))),
				After: p.optStr("after"),
			}
		})
	case ReqThreadsAddUserMessage:
		r = decodeReq(o, func(p object) ThreadAddUserMessageParams {
			return ThreadAddUserMessageParams{
				Input:    nested(p, "input", decodeUserMessageInput),
				ThreadID: p.str("thread_id"),
			}
		})
	case ReqThreadsAddClientToolOutput:
		r = decodeReq(o, func(p object) ThreadAddClientToolOutputParams {
			return ThreadAddClientToolOutputParams{
				ThreadID: p.str("thread_id"),
				Result:   p.anyJSON("result", true),
			}
		})
	case ReqThreadsCustomAction:
		r = decodeReq(o, func(p object) ThreadCustomActionParams {
			return ThreadCustomActionParams{
				ThreadID: p.str("thread_id"),
				ItemID:   p.optStr("item_id"),
				Action:   nested(p, "action", decodeAction),
			}
		})
	case ReqThreadsRetryAfterItem:
		r = decodeReq(o, func(p object) ThreadRetryAfterItemParams {
			return ThreadRetryAfterItemParams{
				ThreadID: p.str("thread_id"),
				ItemID:   p.str("item_id"),
			}
		})
	case ReqThreadsUpdate:
		r = decodeReq(o, func(p object) ThreadUpdateParams {
			return ThreadUpdateParams{
				ThreadID: p.str("thread_id"),
				Title:    p.str("title"),
			}
		})
	case ReqThreadsDelete:
		r = decodeReq(o, func(p object) ThreadDeleteParams {
			return ThreadDeleteParams{ThreadID: p.str("thread_id")}
		})
	case ReqItemsList:
		r = decodeReq(o, func(p object) ItemsListParams {
			return ItemsListParams{
				ThreadID: p.str("thread_id"),
				Limit:    p.optInt("limit"),
				Order:    SortOrder(p.enum("order", sortOrders, string(OrderDesc))),
				After:    p.optStr("after"),
			}
		})
	case ReqItemsFeedback:
		r = decodeReq(o, func(p object) ItemFeedbackParams {
			return ItemFeedbackParams{
				ThreadID: p.str("thread_id"),
				ItemIDs:  list(p, "item_ids", true, stringElem),
				Kind:     FeedbackKind(p.enum("kind", feedbackKinds, "")),
			}
		})
	case ReqAttachmentsCreate:
		r = decodeReq(o, func(p object) AttachmentCreateParams {
			return AttachmentCreateParams{
				Name:     p.str("name"),
				Size:     p.integer("size"),
				MimeType: p.str("mime_type"),
			}
		})
	case ReqAttachmentsDelete:
		r = decodeReq(o, func(p object) AttachmentDeleteParams {
			return AttachmentDeleteParams{AttachmentID: p.str("attachment_id")}
		})
	}
	return r, len(d.errs) == n
}

// decodeReq reads the params object with fn and the shared metadata map.
func decodeReq[P Params](o object, fn func(p object) P) Req[P] {
	params := nested(o, "params", func(d *decoder, path string, raw json.RawMessage) (P, bool) {
		n := len(d.errs)
		p, ok := d.object(path, raw)
		if !ok {
			var zero P
			return zero, false
		}
		v := fn(p)
		return v, len(d.errs) == n
	})
	return Req[P]{Params: params, Metadata: o.jsonMap("metadata", false)}
}
