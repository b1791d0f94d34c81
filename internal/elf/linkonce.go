package elf

import "strings"

// StorageLocation is the section a GNU link-once symbol was placed in,
// decoded from its synthetic section name.
type StorageLocation int

const (
	// NIL means the link-once section does not designate a data storage
	// location (e.g. it names a function in .text).
	NIL StorageLocation = iota
	BSS
	DATA
	SDATA
	SBSS
)

// LinkOnce is the decoded form of a ".gnu.linkonce.<code>.<symbol>" section
// name.
type LinkOnce struct {
	Location StorageLocation
	IsText   bool
	Symbol   string
}

const linkOncePrefix = ".gnu.linkonce."

var linkOnceCodes = map[string]LinkOnce{
	"b":  {Location: BSS},
	"d":  {Location: DATA},
	"s":  {Location: SDATA},
	"sb": {Location: SBSS},
	"t":  {Location: NIL, IsText: true},
}

// DecodeGNULinkOnce decodes a GNU link-once section name of the form
// ".gnu.linkonce.<code>.<symbol>" into a storage location, a text flag, and
// the wrapped symbol name. Returns ok=false for any other prefix, a missing
// code, a missing symbol, or an unrecognized code.
func DecodeGNULinkOnce(name string) (LinkOnce, bool) {
	rest, ok := strings.CutPrefix(name, linkOncePrefix)
	if !ok {
		return LinkOnce{}, false
	}

	code, symbol, ok := strings.Cut(rest, ".")
	if !ok || code == "" || symbol == "" {
		return LinkOnce{}, false
	}

	proto, ok := linkOnceCodes[code]
	if !ok {
		return LinkOnce{}, false
	}

	proto.Symbol = symbol
	return proto, true
}
