package attribution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/ast"
	"mdebug.dev/ccc/internal/attribution"
	"mdebug.dev/ccc/internal/dedup"
	"mdebug.dev/ccc/internal/mdebug"
)

func sym(typ mdebug.SymbolType, value uint32, str string) mdebug.Symbol {
	return mdebug.Symbol{Type: typ, Value: value, Str: str}
}

// vec3.h is shared by two translation units: both declare the type, but
// only vec3.cpp defines a method on it, so the this-pointer heuristic
// should claim it for vec3.cpp specifically.
const vec3Stab = "vec3:T5=s12x:6,0,32;y:6,32,32;z:6,64,32;"

func TestThisPointerHeuristicClaimsDefiningFile(t *testing.T) {
	t.Parallel()

	aHeader := ast.NewAnalyser(0)
	fHeader := aHeader.AnalyseFile(mdebug.FileDescriptor{
		Name:    "user.c",
		Symbols: []mdebug.Symbol{sym(mdebug.TYPEDEF, 0, vec3Stab)},
	})

	aImpl := ast.NewAnalyser(1)
	fImpl := aImpl.AnalyseFile(mdebug.FileDescriptor{
		Name: "vec3.cpp",
		Procedures: []mdebug.ProcedureDescriptor{
			{Name: "normalize", Address: 0x4000, Size: 0x20},
		},
		Symbols: []mdebug.Symbol{
			sym(mdebug.TYPEDEF, 0, vec3Stab),
			sym(mdebug.PROC, 0x4000, "normalize:f1=r1;0;4294967295;"),
			sym(mdebug.PARAM, 8, "this:p6=*5"),
			sym(mdebug.END, 0, ""),
		},
	})

	files := []*ast.SourceFile{fHeader, fImpl}
	result := dedup.Run(files)
	attribution.Run(files, result.Types)

	require.Len(t, result.Types, 1)
	vec3 := result.Types[0]
	assert.Equal(t, []int{1}, vec3.Common().Files, "this-pointer heuristic should attribute vec3 to vec3.cpp")
	assert.True(t, vec3.Common().ProbablyDefinedInCppFile)
}

func TestReferenceCountHeuristicPicksHighestCountFile(t *testing.T) {
	t.Parallel()

	// File 0 uses vec3 for three globals; file 1 uses it for one. Neither
	// file defines a method on it, so the this-pointer pass has nothing to
	// say and the reference-count pass should decide in file 0's favor.
	aHeavy := ast.NewAnalyser(0)
	fHeavy := aHeavy.AnalyseFile(mdebug.FileDescriptor{
		Name: "heavy.c",
		Symbols: []mdebug.Symbol{
			sym(mdebug.TYPEDEF, 0, vec3Stab),
			sym(mdebug.GLOBAL, 0x1000, "a:G5"),
			sym(mdebug.GLOBAL, 0x1010, "b:G5"),
			sym(mdebug.GLOBAL, 0x1020, "c:G5"),
		},
	})

	aLight := ast.NewAnalyser(1)
	fLight := aLight.AnalyseFile(mdebug.FileDescriptor{
		Name: "light.c",
		Symbols: []mdebug.Symbol{
			sym(mdebug.GLOBAL, 0x2000, "origin:G(0,5)"),
		},
	})

	files := []*ast.SourceFile{fHeavy, fLight}
	result := dedup.Run(files)
	attribution.Run(files, result.Types)

	require.Len(t, result.Types, 1)
	assert.Equal(t, []int{0}, result.Types[0].Common().Files)
}
