package driver

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mna/mainer"
	"github.com/patacongo/pascal-pcode/internal/filetest"
	"github.com/patacongo/pascal-pcode/lang/object"
)

var testUpdateTokenizeTests = flag.Bool("test.update-tokenize-tests", false, "If set, replaces the tokenize golden files with the actual output.")

func TestTokenizeGolden(t *testing.T) {
	dir := filepath.Join("testdata", "tokenize")
	for _, name := range filetest.Sources(t, dir) {
		t.Run(name, func(t *testing.T) {
			var stdout, stderr strings.Builder
			stdio := mainer.Stdio{Stdout: &stdout, Stderr: &stderr}

			// a scan error still produces tokens; it is diffed via the .err
			// golden rather than failing the test outright
			_ = TokenizeFiles(context.Background(), stdio, filepath.Join(dir, name))
			filetest.Output(t, dir, name, stdout.String(), testUpdateTokenizeTests)
			filetest.Errors(t, dir, name, stderr.String(), testUpdateTokenizeTests)
		})
	}
}

func TestCompileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "hello.pas")
	if err := os.WriteFile(src, []byte(`
PROGRAM hello;
VAR x : Integer;
BEGIN x := 1 END.
`), 0600); err != nil {
		t.Fatal(err)
	}

	out := filepath.Join(dir, "hello.po")
	c := &Cmd{Output: out}
	var stdout, stderr strings.Builder
	stdio := mainer.Stdio{Stdout: &stdout, Stderr: &stderr}
	if err := c.Compile(context.Background(), stdio, []string{src}); err != nil {
		t.Fatalf("%v\nstderr:\n%s", err, stderr.String())
	}

	b, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	sink, err := object.Load(b)
	if err != nil {
		t.Fatal(err)
	}
	if len(sink.Code()) == 0 {
		t.Fatal("expected a non-empty code section")
	}
	if _, ok := sink.Lookup("x"); !ok {
		t.Fatal("expected x to be exported in the object file")
	}
}

func TestCompileReportsDiagnostics(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "bad.pas")
	if err := os.WriteFile(src, []byte(`
PROGRAM bad;
VAR x : Integer;
BEGIN y := 1 END.
`), 0600); err != nil {
		t.Fatal(err)
	}

	errFile := filepath.Join(dir, "bad.err")
	listFile := filepath.Join(dir, "bad.lst")
	c := &Cmd{Errors: errFile, Listing: listFile}
	var stdout, stderr strings.Builder
	stdio := mainer.Stdio{Stdout: &stdout, Stderr: &stderr}
	if err := c.Compile(context.Background(), stdio, []string{src}); err == nil {
		t.Fatal("expected a compile error")
	}
	if !strings.Contains(stderr.String(), "undefined") {
		t.Fatalf("expected the diagnostic on stderr, got:\n%s", stderr.String())
	}
	// diagnostics go to both the error file and the listing file
	for _, f := range []string{errFile, listFile} {
		b, err := os.ReadFile(f)
		if err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(string(b), "undefined") {
			t.Fatalf("expected the diagnostic in %s, got:\n%s", f, b)
		}
	}
}

func TestValidateRejectsUnknownCommand(t *testing.T) {
	c := &Cmd{}
	c.SetArgs([]string{"frobnicate", "x.pas"})
	c.SetFlags(nil)
	if err := c.Validate(); err == nil {
		t.Fatal("expected an error for an unknown command")
	}

	c2 := &Cmd{}
	c2.SetArgs([]string{"compile"})
	c2.SetFlags(nil)
	if err := c2.Validate(); err == nil {
		t.Fatal("expected an error when no file is provided")
	}
}
