// Command ccc is a thin command-line front end over the Symbol Database
// read path: it loads a program image, publishes it, and dumps the result
// in one of a few plain-text views.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"mdebug.dev/ccc"
	"mdebug.dev/ccc/internal/ast"
	"mdebug.dev/ccc/internal/config"
	"mdebug.dev/ccc/internal/demangle"
	"mdebug.dev/ccc/internal/flag2"
	"mdebug.dev/ccc/internal/symtab"
	"mdebug.dev/ccc/internal/xdebug"
)

func init() {
	flag.String("config", "", "path to a YAML session configuration file")
	flag.Bool("refine", false, "run data refinement over every global variable")
	flag.String("demangle", "", "path to a c++filt-compatible demangler binary (empty disables demangling)")
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	var err error
	switch args[0] {
	case "types":
		err = runTypes(args[1:], os.Stdout)
	case "files":
		err = runFiles(args[1:], os.Stdout)
	case "load":
		err = runLoad(args[1:], os.Stdout)
	default:
		usage()
		os.Exit(1)
	}

	if err != nil {
		reportError(err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: ccc [-config path] [-refine] [-demangle binary] <types|files|load> <image> [overlay...]")
}

// reportError writes err to stderr, colorized in red when stderr is a
// terminal, and notes it against the running error count through
// xdebug.NoteError, the same counter the parsers bump for a dropped symbol.
func reportError(err error) {
	xdebug.NoteError()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		fmt.Fprintf(os.Stderr, "\x1b[31mccc: %v\x1b[0m\n", err)
		return
	}
	fmt.Fprintf(os.Stderr, "ccc: %v\n", err)
}

// load parses common flags and runs the reconstruction pipeline for
// primary plus any overlays.
func load(ctx context.Context, primary string, overlays []string) (*symtab.Guardian, error) {
	cfg := config.Default()
	if path := flag2.Lookup[string]("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("ccc: %w", err)
		}
		cfg = loaded
	}

	return ccc.Load(ctx, ccc.Options{
		Primary:  primary,
		Overlays: overlays,
		Refine:   flag2.Lookup[bool]("refine"),
		Config:   cfg,
	})
}

func runTypes(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("types: missing image argument")
	}

	g, err := load(context.Background(), args[0], args[1:])
	if err != nil {
		return err
	}

	var printErr error
	g.Read(g.CurrentHandle(), func(db *symtab.Database) {
		db.RangeDataTypes(func(_ symtab.DataTypeHandle, t ast.Node) bool {
			_, printErr = fmt.Fprintf(out, "%s\n", t.Common().Name)
			return printErr == nil
		})
	})
	return printErr
}

func runFiles(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("files: missing image argument")
	}

	g, err := load(context.Background(), args[0], args[1:])
	if err != nil {
		return err
	}

	var printErr error
	g.Read(g.CurrentHandle(), func(db *symtab.Database) {
		db.RangeSourceFiles(func(_ symtab.SourceFileHandle, f *ast.SourceFile) bool {
			_, printErr = fmt.Fprintf(out, "%s\n", f.Path)
			return printErr == nil
		})
	})
	return printErr
}

func runLoad(args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("load: missing image argument")
	}

	g, err := load(context.Background(), args[0], args[1:])
	if err != nil {
		return err
	}

	demangler := demangle.New(flag2.Lookup[string]("demangle"))

	var printErr error
	g.Read(g.CurrentHandle(), func(db *symtab.Database) {
		db.RangeFunctions(func(_ symtab.FunctionHandle, fn *ast.FunctionDefinition) bool {
			name := fn.Common.Name
			if flag2.Lookup[string]("demangle") != "" {
				if demangled, err := demangler.One(name); err == nil {
					name = demangled
				}
			}
			_, printErr = fmt.Fprintf(out, "%s\n", name)
			return printErr == nil
		})
		db.RangeGlobalVariables(func(_ symtab.GlobalVariableHandle, v *ast.Variable) bool {
			_, printErr = fmt.Fprintf(out, "%s\n", v.Common.Name)
			return printErr == nil
		})
	})
	return printErr
}
