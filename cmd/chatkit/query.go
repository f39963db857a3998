package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/classifier"
	"chatkit/internal/usecase/dispatch"
	"chatkit/internal/usecase/pagination"
	"chatkit/internal/usecase/reducer"
)

func runQuery(args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(a.Positional) == 0 {
		return fmt.Errorf("usage: chatkit query LOG... < REQUESTS")
	}

	ctx := context.Background()
	rt, err := setup(ctx, a.Config)
	if err != nil {
		return err
	}
	defer rt.close()

	threads, err := replayFiles(ctx, rt, a.Positional)
	if err != nil {
		return err
	}
	p := rt.processor(newLogBackend(threads, pagination.New(rt.cfg.Pagination)))

	failed, total, err := answerRequests(ctx, os.Stdout, p, os.Stdin)
	if err != nil {
		return err
	}
	if a.Stats {
		if err := writeStats(os.Stderr, rt.gatherer); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, total)
	}
	return nil
}

func (rt *runtime) processor(b dispatch.Backend) *dispatch.Processor {
	return dispatch.New(dispatch.Deps{
		Backend:   b,
		Registry:  rt.registry,
		Hub:       reducer.NewHub(rt.reducerOptions(), rt.cfg.Reducer.ReplayConcurrency),
		Config:    rt.cfg.Dispatch,
		Buffer:    rt.cfg.Stream.Buffer,
		Paginator: pagination.New(rt.cfg.Pagination),
		Metrics:   rt.metrics,
		Logger:    rt.log,
	})
}

// answerRequests handles one request per line of r and writes one JSON
// line per answer: the response value, each streamed event, or the error
// event a client would see.
func answerRequests(ctx context.Context, w io.Writer, p *dispatch.Processor, r io.Reader) (failed, total int, err error) {
	enc := json.NewEncoder(w)
	err = eachLine(r, func(n int, line []byte) error {
		total++
		res, err := p.Process(ctx, line)
		if err != nil {
			failed++
			return enc.Encode(classifier.ErrorEvent(fmt.Errorf("line %d: %w", n, err)))
		}
		if res.Mode == classifier.NonStreaming {
			return enc.Encode(res.Value)
		}
		// A failed stream ends with its own error event.
		events, err := res.Collect()
		if err != nil {
			failed++
		}
		for _, ev := range events {
			if err := enc.Encode(ev); err != nil {
				return err
			}
		}
		return nil
	})
	return failed, total, err
}

// logBackend answers read requests from replayed threads. It cannot run a
// turn, so every streaming request is unsupported.
type logBackend struct {
	threads   map[string]domain.Thread
	paginator *pagination.Paginator
}

func newLogBackend(threads []domain.Thread, pg *pagination.Paginator) *logBackend {
	b := &logBackend{threads: make(map[string]domain.Thread, len(threads)), paginator: pg}
	for _, t := range threads {
		b.threads[t.ID] = t.ClientView()
	}
	return b
}

func (b *logBackend) LoadThread(_ context.Context, threadID string) (domain.Thread, error) {
	t, ok := b.threads[threadID]
	if !ok {
		return domain.Thread{}, domain.NewDomainError("logBackend.LoadThread", domain.ErrThreadNotFound, threadID)
	}
	return t, nil
}

func (b *logBackend) Respond(ctx context.Context, req domain.Request) (any, error) {
	switch r := req.(type) {
	case domain.ThreadsGetByIDReq:
		return b.LoadThread(ctx, r.Params.ThreadID)
	case domain.ThreadsListReq:
		rows := make([]domain.ThreadMetadata, 0, len(b.threads))
		for _, t := range b.threads {
			rows = append(rows, t.ThreadMetadata)
		}
		return pagination.Paginate(b.paginator, rows, pagination.ThreadKey, pagination.ThreadListParams(r.Params))
	case domain.ItemsListReq:
		t, err := b.LoadThread(ctx, r.Params.ThreadID)
		if err != nil {
			return nil, err
		}
		return pagination.Paginate(b.paginator, t.Items.Data, pagination.ItemKey, pagination.ItemsListParams(r.Params))
	}
	return nil, domain.NewDomainError("logBackend.Respond", domain.ErrRequestUnsupported, string(req.RequestType()))
}

func (b *logBackend) Stream(_ context.Context, req domain.Request, _ dispatch.Emit) error {
	return domain.NewDomainError("logBackend.Stream", domain.ErrRequestUnsupported, string(req.RequestType()))
}
