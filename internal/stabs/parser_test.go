package stabs_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mdebug.dev/ccc/internal/stabs"
)

func TestParseSymbolPointerTypedef(t *testing.T) {
	t.Parallel()

	p := stabs.NewParser(0)
	parsed, err := p.ParseSymbol("IntPtr:t1=*2")
	require.NoError(t, err)
	assert.Equal(t, "IntPtr", parsed.Name)
	assert.Equal(t, stabs.DescTypeName, parsed.Descriptor)

	node, ok := p.Tree().Lookup(1)
	require.True(t, ok)
	ptr, ok := node.(*stabs.Pointer)
	require.True(t, ok)
	assert.Equal(t, stabs.TypeNumber{File: 0, Num: 2}, ptr.Pointee)
}

func TestParseSymbolStructVec3(t *testing.T) {
	t.Parallel()

	p := stabs.NewParser(0)
	// struct Vec3 { float x,y,z; }, 12 bytes, three 32-bit fields.
	parsed, err := p.ParseSymbol("vec3:T5=s12x:6,0,32;y:6,32,32;z:6,64,32;")
	require.NoError(t, err)
	assert.Equal(t, "vec3", parsed.Name)

	node, ok := p.Tree().Lookup(5)
	require.True(t, ok)
	su, ok := node.(*stabs.StructOrUnion)
	require.True(t, ok)
	assert.False(t, su.IsUnion)
	assert.Equal(t, 12, su.SizeBytes)
	require.Len(t, su.Fields, 3)
	assert.Equal(t, "x", su.Fields[0].Name)
	assert.Equal(t, 0, su.Fields[0].OffsetBits)
	assert.Equal(t, 32, su.Fields[0].SizeBits)
	assert.Equal(t, "z", su.Fields[2].Name)
	assert.Equal(t, 64, su.Fields[2].OffsetBits)
}

func TestParseSymbolEnum(t *testing.T) {
	t.Parallel()

	p := stabs.NewParser(0)
	_, err := p.ParseSymbol("Color:T9=eRED:0,GREEN:1,BLUE:2,;")
	require.NoError(t, err)

	node, ok := p.Tree().Lookup(9)
	require.True(t, ok)
	en, ok := node.(*stabs.Enum)
	require.True(t, ok)
	require.Len(t, en.Constants, 3)
	assert.Equal(t, "GREEN", en.Constants[1].Name)
	assert.Equal(t, int64(1), en.Constants[1].Value)
}

func TestParseSymbolCrossReference(t *testing.T) {
	t.Parallel()

	p := stabs.NewParser(0)
	parsed, err := p.ParseSymbol("FooPtr:t1=*2=xsFoo:")
	require.NoError(t, err)
	assert.Equal(t, "FooPtr", parsed.Name)

	ptr := p.Tree().Nodes[1].(*stabs.Pointer)
	cross := p.Tree().Nodes[ptr.Pointee.Num].(*stabs.CrossRef)
	assert.Equal(t, stabs.CrossRefStruct, cross.Tag)
	assert.Equal(t, "Foo", cross.Identifier)
}

func TestParseSymbolTruncatedCascade(t *testing.T) {
	t.Parallel()

	p := stabs.NewParser(0)
	// The template argument was truncated to a null byte mid-string
	// (already cut short by the .mdebug string reader by the time it
	// reaches here), so the defining stab never even lexes.
	_, err := p.ParseSymbol("ThisStabWillGetTruncated<")
	assert.Error(t, err)

	// A subsequent stab referencing that same (never-defined) type number
	// still parses: the reference is left dangling for internal/ast to
	// turn into a TypeName{source: error} rather than aborting the file.
	parsed, err := p.ParseSymbol("Lies:t10=s4faulty_pointer:11,0,32;")
	require.NoError(t, err)
	assert.Equal(t, "Lies", parsed.Name)

	su := p.Tree().Nodes[10].(*stabs.StructOrUnion)
	assert.Equal(t, stabs.TypeNumber{File: 0, Num: 11}, su.Fields[0].Type)
	_, defined := p.Tree().Lookup(11)
	assert.False(t, defined, "type 11 was never defined by this file")
}
