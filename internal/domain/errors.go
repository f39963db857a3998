package domain

import (
	"errors"
	"fmt"
)

// Category sentinels.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Registry errors.
var (
	ErrMissingDiscriminator = fmt.Errorf("%w: missing discriminator", ErrInvalidInput)
	ErrUnknownVariant       = fmt.Errorf("%w: unknown variant", ErrInvalidInput)
	ErrInvalidCursor        = fmt.Errorf("%w: invalid cursor", ErrInvalidInput)
	ErrActionSchema         = fmt.Errorf("%w: action payload rejected by schema", ErrInvalidInput)
)

// Reduction errors. They signal producer/consumer desynchronization and are
// fatal to the stream being reduced.
var (
	ErrDuplicateItem       = fmt.Errorf("duplicate item")
	ErrUnknownItem         = fmt.Errorf("unknown item")
	ErrOutOfOrderIndex     = fmt.Errorf("out of order index")
	ErrIncompatibleUpdate  = fmt.Errorf("incompatible update")
	ErrItemAlreadyDone     = fmt.Errorf("item already done")
	ErrUnknownContentIndex = fmt.Errorf("unknown content index")
	ErrUnknownTaskIndex    = fmt.Errorf("unknown task index")
	ErrUnknownComponent    = fmt.Errorf("unknown widget component")
	ErrComponentClosed     = fmt.Errorf("widget component closed")
	ErrThreadMismatch      = fmt.Errorf("item belongs to another thread")
	ErrStreamNotStarted    = fmt.Errorf("event before thread.created")
)

// Thread lifecycle errors.
var (
	ErrThreadNotFound     = fmt.Errorf("thread: %w", ErrNotFound)
	ErrThreadClosed       = fmt.Errorf("thread closed")
	ErrThreadLocked       = fmt.Errorf("thread locked")
	ErrInvalidTransition  = fmt.Errorf("invalid status transition")
	ErrToolCallCompleted  = fmt.Errorf("client tool call already completed")
	ErrRequestUnsupported = fmt.Errorf("request type not supported by backend")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Reducer.Apply")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// LockedError is returned for requests against a locked thread.
type LockedError struct {
	ThreadID string
	Reason   string
}

func (e *LockedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("thread %s: %s", e.ThreadID, ErrThreadLocked)
	}
	return fmt.Sprintf("thread %s: %s: %s", e.ThreadID, ErrThreadLocked, e.Reason)
}

func (e *LockedError) Unwrap() error { return ErrThreadLocked }

// IsReductionError reports whether err came from an event sequence that
// violates ordering or identity rules.
func IsReductionError(err error) bool {
	for _, sentinel := range reductionSentinels {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

var reductionSentinels = []error{
	ErrDuplicateItem,
	ErrUnknownItem,
	ErrOutOfOrderIndex,
	ErrIncompatibleUpdate,
	ErrItemAlreadyDone,
	ErrUnknownContentIndex,
	ErrUnknownTaskIndex,
	ErrUnknownComponent,
	ErrComponentClosed,
	ErrThreadMismatch,
	ErrStreamNotStarted,
	ErrInvalidTransition,
	ErrToolCallCompleted,
}

// ErrorCode is a machine-parseable error category for monitoring and alerting.
type ErrorCode string

const (
	CodeUnknown              ErrorCode = "UNKNOWN"
	CodeNotFound             ErrorCode = "NOT_FOUND"
	CodeInvalidInput         ErrorCode = "INVALID_INPUT"
	CodeMissingDiscriminator ErrorCode = "MISSING_DISCRIMINATOR"
	CodeUnknownVariant       ErrorCode = "UNKNOWN_VARIANT"
	CodeInvalidCursor        ErrorCode = "INVALID_CURSOR"
	CodeActionSchema         ErrorCode = "ACTION_SCHEMA"
	CodeDuplicateItem        ErrorCode = "DUPLICATE_ITEM"
	CodeUnknownItem          ErrorCode = "UNKNOWN_ITEM"
	CodeOutOfOrderIndex      ErrorCode = "OUT_OF_ORDER_INDEX"
	CodeIncompatibleUpdate   ErrorCode = "INCOMPATIBLE_UPDATE"
	CodeItemAlreadyDone      ErrorCode = "ITEM_ALREADY_DONE"
	CodeUnknownContentIndex  ErrorCode = "UNKNOWN_CONTENT_INDEX"
	CodeUnknownTaskIndex     ErrorCode = "UNKNOWN_TASK_INDEX"
	CodeUnknownComponent     ErrorCode = "UNKNOWN_COMPONENT"
	CodeComponentClosed      ErrorCode = "COMPONENT_CLOSED"
	CodeThreadMismatch       ErrorCode = "THREAD_MISMATCH"
	CodeStreamNotStarted     ErrorCode = "STREAM_NOT_STARTED"
	CodeThreadNotFound       ErrorCode = "THREAD_NOT_FOUND"
	CodeThreadClosed         ErrorCode = "THREAD_CLOSED"
	CodeThreadLocked         ErrorCode = "THREAD_LOCKED"
	CodeInvalidTransition    ErrorCode = "INVALID_TRANSITION"
	CodeToolCallCompleted    ErrorCode = "TOOL_CALL_COMPLETED"
	CodeRequestUnsupported   ErrorCode = "REQUEST_UNSUPPORTED"
)

// errorCodeMap maps sentinel errors to their machine-parseable codes.
// Specific sentinels are listed before the categories they wrap.
var errorCodeMap = []struct {
	err  error
	code ErrorCode
}{
	{ErrMissingDiscriminator, CodeMissingDiscriminator},
	{ErrUnknownVariant, CodeUnknownVariant},
	{ErrInvalidCursor, CodeInvalidCursor},
	{ErrActionSchema, CodeActionSchema},
	{ErrDuplicateItem, CodeDuplicateItem},
	{ErrUnknownItem, CodeUnknownItem},
	{ErrOutOfOrderIndex, CodeOutOfOrderIndex},
	{ErrIncompatibleUpdate, CodeIncompatibleUpdate},
	{ErrItemAlreadyDone, CodeItemAlreadyDone},
	{ErrUnknownContentIndex, CodeUnknownContentIndex},
	{ErrUnknownTaskIndex, CodeUnknownTaskIndex},
	{ErrUnknownComponent, CodeUnknownComponent},
	{ErrComponentClosed, CodeComponentClosed},
	{ErrThreadMismatch, CodeThreadMismatch},
	{ErrStreamNotStarted, CodeStreamNotStarted},
	{ErrThreadNotFound, CodeThreadNotFound},
	{ErrThreadClosed, CodeThreadClosed},
	{ErrThreadLocked, CodeThreadLocked},
	{ErrInvalidTransition, CodeInvalidTransition},
	{ErrToolCallCompleted, CodeToolCallCompleted},
	{ErrRequestUnsupported, CodeRequestUnsupported},

	// Category sentinels (fallback codes).
	{ErrNotFound, CodeNotFound},
	{ErrInvalidInput, CodeInvalidInput},
}

// ErrorCodeOf returns the machine-parseable error code for the given error.
// Returns CodeUnknown if no matching sentinel is found.
func ErrorCodeOf(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}
	for _, entry := range errorCodeMap {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeUnknown
}

// Code returns the ErrorCode for this DomainError's underlying sentinel.
func (e *DomainError) Code() ErrorCode {
	return ErrorCodeOf(e.Err)
}
