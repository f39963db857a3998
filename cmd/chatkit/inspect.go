package main

import (
	"context"
	"fmt"
	"os"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/pagination"
	"chatkit/internal/usecase/reducer"
)

func runInspect(args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(a.Positional) != 1 {
		return fmt.Errorf("usage: chatkit inspect LOG")
	}

	ctx := context.Background()
	rt, err := setup(ctx, a.Config)
	if err != nil {
		return err
	}
	defer rt.close()

	events, err := readEventFile(rt.registry, a.Positional[0])
	if err != nil {
		return err
	}
	state, err := reducer.Replay(ctx, events, rt.reducerOptions())
	if err != nil {
		// Show what was committed before the failure.
		fmt.Fprintf(os.Stderr, "replay stopped: %v\n", err)
	}

	t := state.Thread().ClientView()
	page, err := pagination.Paginate(pagination.New(rt.cfg.Pagination), t.Items.Data, pagination.ItemKey, pagination.Params{
		Limit: a.Limit,
		Order: domain.SortOrder(a.Order),
		After: a.After,
	})
	if err != nil {
		return err
	}
	t.Items = page

	r, err := newRenderer(a.Width)
	if err != nil {
		return err
	}
	fmt.Print(r.thread(t))
	return nil
}
