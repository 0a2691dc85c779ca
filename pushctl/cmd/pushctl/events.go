package main

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"github.com/storyhub/presencehub/pkg/pushapi"
)

const maxEventLine = 1 << 20

// readEvents decodes one envelope per non-blank line of r and hands each to
// fn. It stops at the first decode or fn error and returns how many events
// fn accepted.
func readEvents(r io.Reader, fn func(pushapi.Event) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxEventLine)

	n, line := 0, 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		ev, err := pushapi.DecodeEvent(b)
		if err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		if err := fn(ev); err != nil {
			return n, fmt.Errorf("line %d: %w", line, err)
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("read events: %w", err)
	}
	return n, nil
}
