package persist

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math"
	"sort"
	"strconv"
	"unicode/utf8"
)

const hexDigits = "0123456789abcdef"

func printJSON(bb *bytesBuilder, doc *Element) {
	printJSONObject(bb, doc, 0)
	bb.AppendByte('\n')
}

func printJSONObject(bb *bytesBuilder, e *Element, depth int) {
	bb.AppendByte('{')
	var n int
	entry := func(name string) {
		if n > 0 {
			bb.AppendByte(',')
		}
		n++
		bb.AppendByte('\n')
		indent(bb, depth+1)
		quoteJSON(bb, name)
		bb.WriteString(": ")
	}
	for _, a := range e.Attributes {
		entry(a.Name)
		printJSONScalar(bb, a)
	}
	for _, group := range e.childGroups() {
		entry(group[0].Name)
		if len(group) == 1 {
			printJSONObject(bb, group[0], depth+1)
			continue
		}
		bb.AppendByte('[')
		for i, c := range group {
			if i > 0 {
				bb.AppendByte(',')
			}
			bb.AppendByte('\n')
			indent(bb, depth+2)
			printJSONObject(bb, c, depth+2)
		}
		bb.AppendByte('\n')
		indent(bb, depth+1)
		bb.AppendByte(']')
	}
	if n > 0 {
		bb.AppendByte('\n')
		indent(bb, depth)
	}
	bb.AppendByte('}')
}

func printJSONScalar(bb *bytesBuilder, a Attribute) {
	switch a.kind {
	case AttributeVoid:
		bb.WriteString("null")
	case AttributeBool, AttributeInt, AttributeUint, AttributeAddress:
		bb.WriteString(a.String())
	case AttributeReal:
		if math.IsNaN(a.f) || math.IsInf(a.f, 0) {
			quoteJSON(bb, strconv.FormatFloat(a.f, 'g', -1, 64))
		} else {
			bb.WriteString(strconv.FormatFloat(a.f, 'g', -1, 64))
		}
	default:
		quoteJSON(bb, a.String())
	}
}

func quoteJSON(bb *bytesBuilder, s string) {
	bb.AppendByte('"')
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != '"' && c != '\\' {
			continue
		}
		bb.WriteString(s[last:i])
		last = i + 1
		switch c {
		case '"':
			bb.WriteString(`\"`)
		case '\\':
			bb.WriteString(`\\`)
		case '\n':
			bb.WriteString(`\n`)
		case '\t':
			bb.WriteString(`\t`)
		case '\r':
			bb.WriteString(`\r`)
		default:
			bb.WriteString(`\u00`)
			bb.AppendByte(hexDigits[c>>4])
			bb.AppendByte(hexDigits[c&0xF])
		}
	}
	bb.WriteString(s[last:])
	bb.AppendByte('"')
}

type jsonParser struct {
	path  string
	data  []byte
	lines []int // offsets of line starts
	d     *json.Decoder
}

func parseJSON(path string, data []byte) (*Element, error) {
	if !utf8.Valid(data) {
		return nil, parseErrf(path, 0, nil, "invalid UTF-8")
	}
	p := &jsonParser{path: path, data: data, lines: []int{0}}
	for i, c := range data {
		if c == '\n' {
			p.lines = append(p.lines, i+1)
		}
	}
	p.d = json.NewDecoder(bytes.NewReader(data))
	p.d.UseNumber()

	doc := newDocument()
	err := safelyCall(func() {
		tok := p.token()
		if tok != json.Delim('{') {
			fail(parseErrf(path, p.line(), nil, "expected an object at the top level"))
		}
		p.object(doc)
		if _, err := p.d.Token(); err != io.EOF {
			fail(parseErrf(path, p.line(), nil, "unexpected data after the top-level object"))
		}
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (p *jsonParser) line() int {
	return lineAt(p.lines, int(p.d.InputOffset()))
}

func lineAt(lines []int, off int) int {
	return sort.Search(len(lines), func(i int) bool { return lines[i] > off })
}

func (p *jsonParser) token() json.Token {
	tok, err := p.d.Token()
	if err != nil {
		var se *json.SyntaxError
		if errors.As(err, &se) {
			fail(parseErrf(p.path, lineAt(p.lines, int(se.Offset)), nil, "%s", se.Error()))
		}
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		fail(parseErrf(p.path, p.line(), err, "invalid JSON"))
	}
	return tok
}

func (p *jsonParser) object(el *Element) {
	for {
		tok := p.token()
		if tok == json.Delim('}') {
			return
		}
		key, ok := tok.(string)
		if !ok {
			fail(parseErrf(p.path, p.line(), nil, "expected a key, got %v", tok))
		}
		p.value(el, key)
	}
}

func (p *jsonParser) value(el *Element, key string) {
	line := p.line()
	switch tok := p.token().(type) {
	case json.Delim:
		switch tok {
		case '{':
			p.object(el.AddElement(&Element{Name: key, Line: line, Flags: ElementPreserveEmpty}))
		case '[':
			for {
				line := p.line()
				switch item := p.token(); item {
				case json.Delim(']'):
					return
				case json.Delim('{'):
					p.object(el.AddElement(&Element{Name: key, Line: line, Flags: ElementPreserveEmpty}))
				default:
					fail(parseErrf(p.path, line, nil, "array %q may only contain objects", key))
				}
			}
		default:
			fail(parseErrf(p.path, line, nil, "unexpected %v", tok))
		}
	case json.Number:
		a, err := numberAttribute(key, tok.String())
		if err != nil {
			fail(parseErrf(p.path, line, err, "bad number for %s", key))
		}
		el.AddAttribute(a)
	case string:
		el.AddAttribute(StringAttribute(key, tok))
	case bool:
		el.AddAttribute(BoolAttribute(key, tok))
	case nil:
		el.AddAttribute(VoidAttribute(key))
	}
}
