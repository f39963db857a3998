package reducer

import (
	"context"
	"fmt"

	"chatkit/internal/domain"
	"chatkit/internal/infra/tracer"
)

// Replay reduces a recorded event log over an empty state. On failure it
// returns the state as of the last committed event together with an error
// naming the offending position.
func Replay(ctx context.Context, events []domain.ThreadStreamEvent, opts Options) (*State, error) {
	ctx, span := tracer.StartSpan(ctx, "reducer.replay", tracer.AttrEventCount.Int(len(events)))
	s := NewState("", opts)
	err := s.ApplyAll(ctx, events)
	span.SetAttributes(tracer.AttrThreadID.String(s.ThreadID()))
	tracer.End(span, err, codeOf(err))
	s.opts.Metrics.Replayed(s.Applied())
	return s, err
}

// ApplyAll applies events in order, stopping at the first error or when
// ctx is cancelled between events.
func (s *State) ApplyAll(ctx context.Context, events []domain.ThreadStreamEvent) error {
	for i, ev := range events {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("replay stopped before event %d: %w", i, err)
		}
		if err := s.Apply(ctx, ev); err != nil {
			return fmt.Errorf("event %d (%s): %w", i, ev.EventType(), err)
		}
	}
	return nil
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return string(domain.ErrorCodeOf(err))
}
