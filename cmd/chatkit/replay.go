package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/reducer"
)

func runReplay(args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(a.Positional) == 0 {
		return fmt.Errorf("usage: chatkit replay LOG...")
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
	if err := writeThreads(os.Stdout, threads); err != nil {
		return err
	}
	if a.Stats {
		return writeStats(os.Stderr, rt.gatherer)
	}
	return nil
}

// replayFiles reduces every log, in parallel across logs.
func replayFiles(ctx context.Context, rt *runtime, paths []string) ([]domain.Thread, error) {
	logs := make(map[string][]domain.ThreadStreamEvent, len(paths))
	for _, p := range paths {
		events, err := readEventFile(rt.registry, p)
		if err != nil {
			return nil, err
		}
		id := logThreadID(p, events)
		if _, dup := logs[id]; dup {
			return nil, fmt.Errorf("%s: thread %s appears in more than one log", p, id)
		}
		logs[id] = events
	}

	hub := reducer.NewHub(rt.reducerOptions(), rt.cfg.Reducer.ReplayConcurrency)
	out, err := hub.ReplayAll(ctx, logs)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out))
	for id := range out {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	threads := make([]domain.Thread, 0, len(ids))
	for _, id := range ids {
		threads = append(threads, out[id])
	}
	rt.log.Debug("replayed logs", "threads", len(threads))
	return threads, nil
}

func writeThreads(w io.Writer, threads []domain.Thread) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	for _, t := range threads {
		if err := enc.Encode(t); err != nil {
			return err
		}
	}
	return nil
}
