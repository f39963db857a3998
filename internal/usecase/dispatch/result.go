package dispatch

import (
	"chatkit/internal/domain"
	"chatkit/internal/usecase/classifier"
)

// Result is the answer to one request. A non-streaming result carries
// Value; a streaming result delivers reduced events on Events, which is
// closed when the stream ends.
type Result struct {
	ID      string // request id, also recorded on the span and in logs
	Mode    classifier.Mode
	Request domain.Request
	Value   any
	Events  <-chan domain.ThreadStreamEvent

	done     chan struct{}
	threadID string
	err      error
}

func completed(req domain.Request, v any) *Result {
	done := make(chan struct{})
	close(done)
	return &Result{Mode: classifier.NonStreaming, Request: req, Value: v, done: done}
}

// Wait blocks until the request has finished and returns the error that
// ended the stream, if any.
func (r *Result) Wait() error {
	<-r.done
	return r.err
}

// ThreadID returns the thread the stream reduced into. It is only
// meaningful after Wait returns.
func (r *Result) ThreadID() string {
	<-r.done
	return r.threadID
}

// Collect drains Events and waits for the stream to end.
func (r *Result) Collect() ([]domain.ThreadStreamEvent, error) {
	var out []domain.ThreadStreamEvent
	if r.Events != nil {
		for ev := range r.Events {
			out = append(out, ev)
		}
	}
	return out, r.Wait()
}
