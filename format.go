package persist

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Encoding selects the external representation of an archive.
type Encoding int

const (
	Binary Encoding = iota
	XML
	JSON
	Lua
	MsgPack
)

var encodingNames = [...]string{
	Binary:  "binary",
	XML:     "xml",
	JSON:    "json",
	Lua:     "lua",
	MsgPack: "msgpack",
}

var encodingExts = map[string]Encoding{
	".bin":     Binary,
	".xml":     XML,
	".json":    JSON,
	".lua":     Lua,
	".msgpack": MsgPack,
	".mpk":     MsgPack,
}

func (enc Encoding) String() string {
	if enc >= 0 && int(enc) < len(encodingNames) {
		return encodingNames[enc]
	}
	return fmt.Sprintf("encoding(%d)", int(enc))
}

// IsTree reports whether the encoding goes through an Element tree.
func (enc Encoding) IsTree() bool {
	return enc != Binary
}

func (enc Encoding) MarshalText() ([]byte, error) {
	return []byte(enc.String()), nil
}

func (enc *Encoding) UnmarshalText(text []byte) error {
	v, err := ParseEncoding(string(text))
	if err != nil {
		return err
	}
	*enc = v
	return nil
}

func ParseEncoding(s string) (Encoding, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, name := range encodingNames {
		if name == s {
			return Encoding(i), nil
		}
	}
	if enc, ok := encodingExts["."+s]; ok {
		return enc, nil
	}
	return 0, fmt.Errorf("unknown encoding %q", s)
}

// EncodingForPath picks the encoding from a file extension.
func EncodingForPath(path string) (Encoding, bool) {
	enc, ok := encodingExts[strings.ToLower(filepath.Ext(path))]
	return enc, ok
}

// ParseTree parses tree-encoded archive text into its document element.
func ParseTree(enc Encoding, path string, data []byte) (*Element, error) {
	switch enc {
	case XML:
		return parseXML(path, data)
	case JSON:
		return parseJSON(path, data)
	case Lua:
		return parseLua(path, data)
	case MsgPack:
		return parseMsgPack(path, data)
	default:
		return nil, fmt.Errorf("%v archives have no element tree", enc)
	}
}

// PrintTree prints a document element in the given tree encoding.
func PrintTree(enc Encoding, doc *Element) ([]byte, error) {
	bb := getBuilder()
	defer releaseBuilder(bb)
	switch enc {
	case XML:
		if err := printXML(bb, doc); err != nil {
			return nil, err
		}
	case JSON:
		printJSON(bb, doc)
	case Lua:
		printLua(bb, doc)
	case MsgPack:
		if err := printMsgPack(bb, doc); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%v archives have no element tree", enc)
	}
	return bb.Bytes(), nil
}
