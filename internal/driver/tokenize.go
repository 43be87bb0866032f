package driver

import (
	"context"
	"fmt"
	"os"

	"github.com/mna/mainer"
	"github.com/patacongo/pascal-pcode/lang/scanner"
	"github.com/patacongo/pascal-pcode/lang/token"
)

func (c *Cmd) Tokenize(ctx context.Context, stdio mainer.Stdio, args []string) error {
	paths := make([]string, 0, len(args))
	for _, arg := range args {
		p, err := c.resolvePath(arg)
		if err != nil {
			return printError(stdio, err)
		}
		paths = append(paths, p)
	}
	return TokenizeFiles(ctx, stdio, paths...)
}

// TokenizeFiles scans each file and prints one line per token: position,
// token class, and the raw lexeme when it carries one.
func TokenizeFiles(ctx context.Context, stdio mainer.Stdio, files ...string) error {
	var firstErr error
	fs := token.NewFileSet()
	for _, name := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		src, err := os.ReadFile(name)
		if err != nil {
			return printError(stdio, err)
		}
		file := fs.AddFile(name, len(src))
		toks, err := scanner.ScanFile(file, src)
		for _, v := range toks {
			fmt.Fprintf(stdio.Stdout, "%s: %s", file.Position(v.Pos), v.Tok)
			if lit := tokenLiteral(v); lit != "" {
				fmt.Fprintf(stdio.Stdout, " %s", lit)
			}
			fmt.Fprintln(stdio.Stdout)
		}
		if err != nil {
			printError(stdio, err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func tokenLiteral(v token.Value) string {
	switch v.Tok {
	case token.IDENT, token.INTLIT, token.REALLIT, token.STRINGLIT, token.CHARLIT:
		return v.Raw
	}
	return ""
}
