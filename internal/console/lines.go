// Package console reads line-oriented local input for the command and
// input loops.
package console

import (
	"bufio"
	"context"
	"io"
	"strings"
)

// Lines streams the lines of r, without their line endings, until r is
// exhausted or ctx is done. The channel is closed in both cases.
//
// Reads from r cannot be interrupted, so the reading goroutine may outlive
// ctx until the next line arrives.
func Lines(ctx context.Context, r io.Reader) <-chan string {
	out := make(chan string)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case out <- strings.TrimRight(scanner.Text(), "\r"):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
