package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chatkit/internal/domain"
	"chatkit/internal/usecase/registry"
)

const maxLineSize = 4 << 20

// eachLine calls fn for every non-blank line of r, numbering from 1.
func eachLine(r io.Reader, fn func(n int, line []byte) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	n := 0
	for sc.Scan() {
		n++
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		if err := fn(n, line); err != nil {
			return err
		}
	}
	return sc.Err()
}

// readEvents parses a JSON-lines event log.
func readEvents(reg *registry.Registry, r io.Reader) ([]domain.ThreadStreamEvent, error) {
	var events []domain.ThreadStreamEvent
	err := eachLine(r, func(n int, line []byte) error {
		ev, err := reg.ParseEvent(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", n, err)
		}
		events = append(events, ev)
		return nil
	})
	return events, err
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	return os.Open(path)
}

func readEventFile(reg *registry.Registry, path string) ([]domain.ThreadStreamEvent, error) {
	f, err := openInput(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	events, err := readEvents(reg, f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return events, nil
}

// logThreadID names a log by the thread its first event addresses, falling
// back to the file name.
func logThreadID(path string, events []domain.ThreadStreamEvent) string {
	for _, ev := range events {
		switch e := ev.(type) {
		case domain.ThreadCreatedEvent:
			return e.Thread.ID
		case domain.ThreadUpdatedEvent:
			return e.Thread.ID
		case domain.ThreadItemAddedEvent:
			return e.Item.Base().ThreadID
		case domain.ThreadItemDoneEvent:
			return e.Item.Base().ThreadID
		case domain.ThreadItemReplacedEvent:
			return e.Item.Base().ThreadID
		}
	}
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
