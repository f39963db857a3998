// Package classifier decides the response mode of a request and whether a
// thread's status admits it.
package classifier

import (
	"errors"

	"chatkit/internal/domain"
)

// Mode is how a request is answered.
type Mode int

const (
	NonStreaming Mode = iota // a single response value
	Streaming                // an ordered sequence of stream events
)

func (m Mode) String() string {
	if m == Streaming {
		return "streaming"
	}
	return "non_streaming"
}

var streaming = map[domain.RequestType]bool{
	domain.ReqThreadsCreate:              true,
	domain.ReqThreadsAddUserMessage:      true,
	domain.ReqThreadsAddClientToolOutput: true,
	domain.ReqThreadsRetryAfterItem:      true,
	domain.ReqThreadsCustomAction:        true,
}

// Classify returns the mode for a request tag. It depends on nothing else.
func Classify(t domain.RequestType) Mode {
	if streaming[t] {
		return Streaming
	}
	return NonStreaming
}

// ClassifyRequest is Classify applied to a parsed request.
func ClassifyRequest(req domain.Request) Mode {
	return Classify(req.RequestType())
}

// Mutates reports whether a request adds to or rewrites the items of an
// existing thread.
func Mutates(t domain.RequestType) bool {
	return streaming[t] && t != domain.ReqThreadsCreate
}

// Guard checks req against the status of the thread it targets. Requests
// that do not mutate an existing thread always pass.
func Guard(req domain.Request, status domain.ThreadStatus) error {
	if !Mutates(req.RequestType()) {
		return nil
	}
	threadID, _ := req.ThreadID()
	return domain.CheckMutation(threadID, status)
}

// ErrorEvent converts a request or stream failure into the error event
// shown to the user.
func ErrorEvent(err error) domain.ErrorEvent {
	msg := err.Error()
	ev := domain.ErrorEvent{Code: domain.StreamErrorCustom, Message: &msg}

	var locked *domain.LockedError
	switch {
	case errors.As(err, &locked):
		ev.AllowRetry = true
	case errors.Is(err, domain.ErrThreadClosed):
	case domain.IsReductionError(err):
		ev.Code = domain.StreamErrorStream
		ev.AllowRetry = true
	case errors.Is(err, domain.ErrInvalidInput):
	default:
		ev.Code = domain.StreamErrorStream
		ev.AllowRetry = true
	}
	return ev
}
