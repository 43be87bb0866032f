package driver

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/mna/mainer"
	"github.com/patacongo/pascal-pcode/lang/compiler"
	"github.com/patacongo/pascal-pcode/lang/object"
	"github.com/patacongo/pascal-pcode/lang/scanner"
	"github.com/patacongo/pascal-pcode/lang/token"
)

func (c *Cmd) Compile(ctx context.Context, stdio mainer.Stdio, args []string) error {
	var firstErr error
	for _, arg := range args {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.compileOne(stdio, arg); err != nil {
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (c *Cmd) compileOne(stdio mainer.Stdio, arg string) error {
	path, err := c.resolvePath(arg)
	if err != nil {
		return printError(stdio, err)
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return printError(stdio, err)
	}

	fs := token.NewFileSet()
	file := fs.AddFile(path, len(src))
	toks, scanErr := scanner.ScanFile(file, src)
	if scanErr != nil {
		c.reportDiagnostics(stdio, scanErr.Error())
	}

	sink := object.NewTextSink()
	comp := compiler.New(file, toks, sink)
	compErr := comp.Compile()
	if compErr != nil {
		c.reportDiagnostics(stdio, compErr.Error())
	}

	if c.Listing != "" {
		if err := writeListing(c.Listing, src, comp.Diagnostics()); err != nil {
			return printError(stdio, err)
		}
	}
	if scanErr != nil {
		return scanErr
	}
	if compErr != nil {
		return compErr
	}

	out, err := sink.Bytes()
	if err != nil {
		return printError(stdio, err)
	}
	dst := c.Output
	if dst == "" {
		dst = path + ".po"
	}
	if err := os.WriteFile(dst, out, 0600); err != nil {
		return printError(stdio, err)
	}
	return nil
}

// reportDiagnostics writes the diagnostics text to standard error and, when
// requested, appends it to the error file.
func (c *Cmd) reportDiagnostics(stdio mainer.Stdio, text string) {
	fmt.Fprintln(stdio.Stderr, text)
	if c.Errors == "" {
		return
	}
	f, err := os.OpenFile(c.Errors, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintln(stdio.Stderr, err)
		return
	}
	defer f.Close()
	fmt.Fprintln(f, text)
}

// writeListing renders the numbered source listing with each diagnostic
// attached under its source line.
func writeListing(path string, src []byte, diags []compiler.Diagnostic) error {
	byLine := make(map[int][]compiler.Diagnostic)
	for _, d := range diags {
		byLine[d.Pos.Line] = append(byLine[d.Pos.Line], d)
	}

	var buf strings.Builder
	sc := bufio.NewScanner(bytes.NewReader(src))
	line := 0
	for sc.Scan() {
		line++
		fmt.Fprintf(&buf, "%5d  %s\n", line, sc.Text())
		for _, d := range byLine[line] {
			fmt.Fprintf(&buf, "*****  %s\n", d)
		}
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(buf.String()), 0600)
}
