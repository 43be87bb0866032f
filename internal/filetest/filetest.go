// Package filetest holds the golden-file helpers shared by the scanner,
// compiler and driver tests: enumerate the Pascal sources of a testdata
// directory, then diff a phase's output (or its diagnostics) against the
// recorded golden file, rewriting the golden file instead when an update
// flag is set.
package filetest

import (
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/kylelemons/godebug/diff"
)

var updateAll = flag.Bool("test.update-golden", false, "If set, rewrites every golden file with the actual output.")

// Sources returns the names of the Pascal source files (.pas) in dir.
func Sources(t *testing.T, dir string) []string {
	t.Helper()

	dents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, dent := range dents {
		if dent.Type().IsRegular() && filepath.Ext(dent.Name()) == ".pas" {
			names = append(names, dent.Name())
		}
	}
	return names
}

// Output diffs got against dir/src+".want", the golden output recorded for
// the source file src.
func Output(t *testing.T, dir, src, got string, update *bool) {
	t.Helper()
	golden(t, "output", filepath.Join(dir, src+".want"), got, update)
}

// Errors diffs got against dir/src+".err", the golden diagnostics recorded
// for the source file src. A source with no .err file is expected to
// produce no diagnostics.
func Errors(t *testing.T, dir, src, got string, update *bool) {
	t.Helper()
	golden(t, "errors", filepath.Join(dir, src+".err"), got, update)
}

func golden(t *testing.T, label, goldFile, got string, update *bool) {
	t.Helper()

	if *update || *updateAll {
		if got == "" && label == "errors" {
			// no diagnostics: the convention is no .err file at all
			return
		}
		if err := os.WriteFile(goldFile, []byte(got), 0600); err != nil {
			t.Fatal(err)
		}
		return
	}

	wantb, err := os.ReadFile(goldFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatal(err)
	}
	if testing.Verbose() {
		t.Logf("got %s:\n%s\n", label, got)
	}
	if patch := diff.Diff(string(wantb), got); patch != "" {
		t.Errorf("%s differs from %s:\n%s", label, goldFile, patch)
	}
}
