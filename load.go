// Package ccc reconstructs a deduplicated C/C++ type system, function, and
// global-variable view from the STABS debug info embedded in a 32-bit MIPS
// ELF. Load wires every stage together in order: acquire image bytes,
// parse ELF, locate .mdebug, walk file descriptors, parse STABS and lower
// to AST per file, deduplicate across files, attribute files, optionally
// refine global data, and publish the result into a fresh Symbol Database.
package ccc

import (
	"context"
	"fmt"
	"strings"

	"mdebug.dev/ccc/internal/ast"
	"mdebug.dev/ccc/internal/attribution"
	"mdebug.dev/ccc/internal/config"
	"mdebug.dev/ccc/internal/dedup"
	"mdebug.dev/ccc/internal/elf"
	"mdebug.dev/ccc/internal/loader"
	"mdebug.dev/ccc/internal/mdebug"
	"mdebug.dev/ccc/internal/refine"
	"mdebug.dev/ccc/internal/symtab"
)

// Options configures one Load call.
type Options struct {
	// Primary is the program image to reconstruct debug info from: a
	// local filesystem path or a "user@host:/path" SSH reference.
	Primary string
	// Overlays are additional MIPS overlay module images, fetched
	// alongside Primary and consulted by internal/elf.ReadVirtual during
	// refinement.
	Overlays []string
	// Refine runs Data Refinement (C7) over every global after
	// attribution. Skipping it is cheaper for a caller that only wants
	// the type/function/source-file lists.
	Refine bool
	// Config is this load's session configuration. nil uses
	// config.Default().
	Config *config.Session
}

// Load runs the full reconstruction pipeline against opts and publishes
// the result into a freshly built Guardian.
func Load(ctx context.Context, opts Options) (*symtab.Guardian, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	refs := append([]string{opts.Primary}, opts.Overlays...)
	images, err := loader.AcquireAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("ccc: load %s: %w", opts.Primary, err)
	}

	modules := make([]*elf.File, len(images))
	for i, img := range images {
		modules[i] = img.File
	}

	table, err := mdebug.Parse(modules[0])
	if err != nil {
		return nil, fmt.Errorf("ccc: load %s: %w", opts.Primary, err)
	}

	files := make([]*ast.SourceFile, len(table.Files))
	for i, fd := range table.Files {
		files[i] = ast.NewAnalyser(i).AnalyseFile(fd)
	}

	for _, f := range files {
		for _, g := range f.Globals {
			gl, ok := g.Storage.(ast.Global)
			if !ok {
				continue
			}
			for _, s := range modules[0].Sections {
				if s.HasAddr && gl.Address >= uint32(s.Addr) && gl.Address-uint32(s.Addr) < s.Size {
					gl.Section = strings.TrimPrefix(s.Name, ".")
					g.Storage = gl
					break
				}
			}
		}
	}

	result := dedup.Run(files)
	attribution.Run(files, result.Types)

	if opts.Refine {
		refine.Run(files, result.Types, cfg, modules...)
	}

	return symtab.NewGuardian(publish(files, result.Types)), nil
}

// publish copies every lowered file's functions, globals, and labels, plus
// the canonical type list, into a fresh Database ready for a Guardian to
// hand out.
func publish(files []*ast.SourceFile, types []ast.Node) *symtab.Database {
	db := symtab.NewDatabase()

	for _, t := range types {
		db.AddDataType(t)
	}
	for _, f := range files {
		db.AddSourceFile(f)
		for _, fn := range f.Functions {
			db.AddFunction(fn)
		}
		for _, g := range f.Globals {
			db.AddGlobalVariable(g)
		}
		for _, l := range f.Labels {
			db.AddLabel(l)
		}
	}
	return db
}
