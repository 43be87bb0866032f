package driver

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/patacongo/pascal-pcode/lang/object"
)

// Disasm loads each textual object file and prints its normalized
// rendition: a quick way to validate an object file round-trips through
// the loader intact.
func (c *Cmd) Disasm(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var firstErr error
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		b, err := os.ReadFile(arg)
		if err != nil {
			printError(stdio, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		sink, err := object.Load(b)
		if err != nil {
			printError(stdio, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		out, err := sink.Bytes()
		if err != nil {
			printError(stdio, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		fmt.Fprintf(stdio.Stdout, "%s", out)
	}
	return firstErr
}
