package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/registry"
)

func runValidate(args []string) error {
	a, err := parseArgs(args)
	if err != nil {
		return err
	}
	if len(a.Positional) < 1 || len(a.Positional) > 2 {
		return fmt.Errorf("usage: chatkit validate UNION [FILE]")
	}
	u := domain.Union(a.Positional[0])
	if _, err := registry.Tags(u); err != nil {
		return err
	}
	path := "-"
	if len(a.Positional) == 2 {
		path = a.Positional[1]
	}

	rt, err := setup(context.Background(), a.Config)
	if err != nil {
		return err
	}
	defer rt.close()

	f, err := openInput(path)
	if err != nil {
		return err
	}
	defer f.Close()

	failed, total, err := validateStream(os.Stdout, rt.registry, u, f)
	if err != nil {
		return err
	}
	if a.Stats {
		if err := writeStats(os.Stderr, rt.gatherer); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d payloads invalid", failed, total)
	}
	return nil
}

// validateStream checks each line of r and reports one line per payload.
func validateStream(w io.Writer, reg *registry.Registry, u domain.Union, r io.Reader) (failed, total int, err error) {
	err = eachLine(r, func(n int, line []byte) error {
		total++
		v, perr := reg.Parse(u, line)
		if perr == nil {
			fmt.Fprintf(w, "line %d: ok (%s)\n", n, variantTag(v))
			return nil
		}
		failed++
		fmt.Fprintf(w, "line %d: %s\n", n, domain.ErrorCodeOf(perr))
		var ve *domain.ValidationError
		if errors.As(perr, &ve) {
			for _, f := range ve.Fields {
				fmt.Fprintf(w, "    %s\n", f.String())
			}
		} else {
			fmt.Fprintf(w, "    %v\n", perr)
		}
		return nil
	})
	return failed, total, err
}

// variantTag returns the discriminator of a parsed union value.
func variantTag(v any) string {
	switch x := v.(type) {
	case domain.Request:
		return string(x.RequestType())
	case domain.ThreadStreamEvent:
		return string(x.EventType())
	case domain.ThreadItem:
		return string(x.ItemType())
	case domain.ThreadItemUpdate:
		return string(x.UpdateType())
	case domain.Task:
		return string(x.TaskType())
	case domain.ThreadStatus:
		return string(x.StatusType())
	case domain.UserMessageContent:
		return string(x.UserContentType())
	case domain.Source:
		return string(x.SourceType())
	case domain.Attachment:
		return string(x.AttachmentType())
	}
	return fmt.Sprintf("%T", v)
}
