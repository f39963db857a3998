package domain

import (
	"encoding/json"
	"fmt"
)

// StatusType is the lifecycle state of a thread.
type StatusType string

const (
	StatusActive StatusType = "active"
	StatusLocked StatusType = "locked"
	StatusClosed StatusType = "closed"
)

var statusTags = []string{string(StatusActive), string(StatusLocked), string(StatusClosed)}

// ThreadStatus is one of ActiveStatus, LockedStatus or ClosedStatus.
type ThreadStatus interface {
	StatusType() StatusType
	isThreadStatus()
}

// ActiveStatus is the initial state.
type ActiveStatus struct{}

// LockedStatus blocks requests until the thread is reactivated, e.g. while
// a rate limit applies.
type LockedStatus struct {
	Reason *string `json:"reason"`
}

// ClosedStatus is terminal.
type ClosedStatus struct {
	Reason *string `json:"reason"`
}

func (ActiveStatus) StatusType() StatusType { return StatusActive }
func (LockedStatus) StatusType() StatusType { return StatusLocked }
func (ClosedStatus) StatusType() StatusType { return StatusClosed }

func (ActiveStatus) isThreadStatus() {}
func (LockedStatus) isThreadStatus() {}
func (ClosedStatus) isThreadStatus() {}

func (ActiveStatus) MarshalJSON() ([]byte, error) {
	return tagged(string(StatusActive), struct{}{})
}

func (s LockedStatus) MarshalJSON() ([]byte, error) {
	type wire LockedStatus
	return tagged(string(StatusLocked), wire(s))
}

func (s ClosedStatus) MarshalJSON() ([]byte, error) {
	type wire ClosedStatus
	return tagged(string(StatusClosed), wire(s))
}

// StatusOf returns s, treating a nil status as active.
func StatusOf(s ThreadStatus) ThreadStatus {
	if s == nil {
		return ActiveStatus{}
	}
	return s
}

// Transition checks that a thread may move from one status to another.
// Active and locked may be re-entered (e.g. to change the reason). Closed is
// terminal: no transition leaves it, including one to closed again.
func Transition(from, to ThreadStatus) error {
	from, to = StatusOf(from), StatusOf(to)
	if from.StatusType() != StatusClosed {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from.StatusType(), to.StatusType())
}

// SameStatus reports whether a and b are the same state with the same
// reason. A nil status is active.
func SameStatus(a, b ThreadStatus) bool {
	a, b = StatusOf(a), StatusOf(b)
	if a.StatusType() != b.StatusType() {
		return false
	}
	return statusReason(a) == statusReason(b)
}

func statusReason(s ThreadStatus) string {
	var r *string
	switch st := s.(type) {
	case LockedStatus:
		r = st.Reason
	case ClosedStatus:
		r = st.Reason
	}
	if r == nil {
		return ""
	}
	return *r
}

// CheckMutation reports whether a request may mutate the items of a thread
// in status s. No request is allowed while a thread is locked.
func CheckMutation(threadID string, s ThreadStatus) error {
	switch st := StatusOf(s).(type) {
	case ClosedStatus:
		return NewDomainError("CheckMutation", ErrThreadClosed, threadID)
	case LockedStatus:
		le := &LockedError{ThreadID: threadID}
		if st.Reason != nil {
			le.Reason = *st.Reason
		}
		return le
	}
	return nil
}

// ParseStatus parses a thread status.
func ParseStatus(data []byte) (ThreadStatus, error) {
	return parseRoot("status", data, decodeStatus)
}

func decodeStatus(d *decoder, path string, raw json.RawMessage) (ThreadStatus, bool) {
	n := len(d.errs)
	o, ok := d.object(path, raw)
	if !ok {
		return nil, false
	}
	tag, ok := o.tag("status", statusTags)
	if !ok {
		return nil, false
	}
	var s ThreadStatus
	switch StatusType(tag) {
	case StatusActive:
		s = ActiveStatus{}
	case StatusLocked:
		s = LockedStatus{Reason: o.optStr("reason")}
	case StatusClosed:
		s = ClosedStatus{Reason: o.optStr("reason")}
	}
	return s, len(d.errs) == n
}
