package stabs

import (
	"strconv"
	"strings"
)

// Descriptor is the symbol-descriptor character that classifies a STABS
// string: what kind of thing (type name, tag, function, parameter, local
// or global variable) the rest of the string describes.
type Descriptor byte

const (
	DescTypeName      Descriptor = 't' // typedef
	DescTag           Descriptor = 'T' // struct/union/enum tag
	DescGlobalVar     Descriptor = 'G' // global variable
	DescStaticFunc    Descriptor = 'f' // file-scope function
	DescGlobalFunc    Descriptor = 'F' // global function
	DescValueParam    Descriptor = 'p' // value parameter
	DescRegisterVar   Descriptor = 'r' // register variable or register parameter
	DescFileStatic    Descriptor = 'S' // file-scope static variable
	DescProcStatic    Descriptor = 'V' // procedure-scope static variable
	DescLocalVar      Descriptor = 'l' // stack-local variable
	DescConstant      Descriptor = 'c' // compile-time constant
	DescUnknown       Descriptor = 0
)

// Symbol is the tokenized form of one STABS string, prior to type-expression
// parsing: its optional tag/variable name, its descriptor, and the
// unconsumed remainder carrying the type expression.
type Symbol struct {
	Name       string
	Descriptor Descriptor
	Rest       string
}

// Lex splits a STABS string of the form "name:descriptor<rest>" into its
// three parts. An empty name (the string starts with ':') is valid — many
// anonymous tag and cross-reference stabs have no name.
//
// Lex fails (ok=false) if no descriptor character follows a syntactically
// valid name, which happens whenever the underlying string was truncated by
// an embedded NUL byte (edge case iii): this module's .mdebug reader already
// cuts C strings at the first NUL, so a truncated stab simply runs out of
// input here rather than surfacing as a separate "embedded NUL" condition.
func Lex(s string) (Symbol, bool) {
	nameEnd, ok := findNameEnd(s)
	if !ok {
		return Symbol{}, false
	}

	name := s[:nameEnd]
	rest := s[nameEnd:]
	rest = strings.TrimPrefix(rest, ":")
	if rest == "" {
		return Symbol{}, false
	}

	return Symbol{
		Name:       name,
		Descriptor: Descriptor(rest[0]),
		Rest:       rest[1:],
	}, true
}

// findNameEnd returns the index of the ':' that terminates the leading
// name, honoring two edge cases real-world STABS producers hit:
//
//   - a C++ template argument list may itself contain a "::" (e.g.
//     "Outer<Namespace::A>"), so unescaped '<' / '>' nesting must be
//     tracked and a ':' is only a terminator at nesting depth zero;
//   - a character literal may contain '<', '>', or ':' (e.g. a defaulted
//     template parameter "Foo<'<'>"), so counting is suspended between an
//     opening and matching closing single quote.
func findNameEnd(s string) (int, bool) {
	depth := 0
	inLiteral := false

	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inLiteral:
			if c == '\'' {
				inLiteral = false
			}
		case c == '\'':
			inLiteral = true
		case c == '<':
			depth++
		case c == '>':
			if depth > 0 {
				depth--
			}
		case c == ':' && depth == 0:
			return i, true
		}
	}
	return 0, false
}

// LexTypeNumber parses a leading type number off s: either a bare decimal
// integer, or the "(file,num)" cross-file form. Returns the parsed number
// and the unconsumed remainder of s.
func LexTypeNumber(s string) (TypeNumber, string, bool) {
	if strings.HasPrefix(s, "(") {
		close := strings.IndexByte(s, ')')
		if close < 0 {
			return TypeNumber{}, s, false
		}
		inner := s[1:close]
		file, num, ok := strings.Cut(inner, ",")
		if !ok {
			return TypeNumber{}, s, false
		}
		f, err1 := strconv.Atoi(file)
		n, err2 := strconv.Atoi(num)
		if err1 != nil || err2 != nil {
			return TypeNumber{}, s, false
		}
		return TypeNumber{File: f, Num: n}, s[close+1:], true
	}

	end := 0
	for end < len(s) && (s[end] == '-' || (s[end] >= '0' && s[end] <= '9')) {
		end++
	}
	if end == 0 {
		return TypeNumber{}, s, false
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return TypeNumber{}, s, false
	}
	return TypeNumber{File: -1, Num: n}, s[end:], true
}
