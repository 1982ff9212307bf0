package persist

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

const xmlHeader = `<?xml version="1.0" encoding="UTF-8"?>` + "\n"

// printXML fails on control characters other than tab, newline and carriage
// return, which XML 1.0 cannot carry even as character references.
func printXML(bb *bytesBuilder, doc *Element) error {
	bb.WriteString(xmlHeader)
	if doc.Flags.Contains(ElementAnonymous) {
		for _, c := range doc.Elements {
			if err := printXMLElement(bb, c, 0); err != nil {
				return err
			}
		}
		return nil
	}
	return printXMLElement(bb, doc, 0)
}

func printXMLElement(bb *bytesBuilder, e *Element, depth int) error {
	if !e.printable() {
		return nil
	}
	indent(bb, depth)
	bb.AppendByte('<')
	bb.WriteString(e.Name)
	for _, a := range e.Attributes {
		if a.IsVoid() {
			continue
		}
		bb.AppendByte(' ')
		bb.WriteString(a.Name)
		bb.WriteString(`="`)
		if err := escapeXML(bb, a.String()); err != nil {
			return fmt.Errorf("%s.%s: %w", e.Name, a.Name, err)
		}
		bb.AppendByte('"')
	}
	var children bool
	for _, c := range e.Elements {
		if c.printable() {
			children = true
			break
		}
	}
	if !children {
		bb.WriteString("/>\n")
		return nil
	}
	bb.WriteString(">\n")
	for _, c := range e.Elements {
		if err := printXMLElement(bb, c, depth+1); err != nil {
			return err
		}
	}
	indent(bb, depth)
	bb.WriteString("</")
	bb.WriteString(e.Name)
	bb.WriteString(">\n")
	return nil
}

func indent(bb *bytesBuilder, depth int) {
	for i := 0; i < depth; i++ {
		bb.AppendByte('\t')
	}
}

func escapeXML(bb *bytesBuilder, s string) error {
	last := 0
	for i := 0; i < len(s); i++ {
		var esc string
		switch s[i] {
		case '&':
			esc = "&amp;"
		case '<':
			esc = "&lt;"
		case '>':
			esc = "&gt;"
		case '"':
			esc = "&quot;"
		case '\'':
			esc = "&apos;"
		case '\n':
			esc = "&#10;"
		case '\r':
			esc = "&#13;"
		case '\t':
			esc = "&#9;"
		default:
			if s[i] < 0x20 {
				return fmt.Errorf("character %U cannot be written to XML", rune(s[i]))
			}
			continue
		}
		bb.WriteString(s[last:i])
		bb.WriteString(esc)
		last = i + 1
	}
	bb.WriteString(s[last:])
	return nil
}

func parseXML(path string, data []byte) (*Element, error) {
	doc := newDocument()
	stack := []*Element{doc}
	d := xml.NewDecoder(bytes.NewReader(data))
	for {
		line, _ := d.InputPos()
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			var se *xml.SyntaxError
			if errors.As(err, &se) {
				return nil, parseErrf(path, se.Line, nil, "%s", se.Msg)
			}
			return nil, parseErrf(path, line, err, "invalid XML")
		}
		switch tok := tok.(type) {
		case xml.StartElement:
			el := &Element{Name: tok.Name.Local, Line: line, Flags: ElementPreserveEmpty}
			for _, a := range tok.Attr {
				el.AddAttribute(StringAttribute(a.Name.Local, a.Value))
			}
			stack[len(stack)-1].AddElement(el)
			stack = append(stack, el)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 1 && strings.TrimSpace(string(tok)) != "" {
				return nil, parseErrf(path, line, nil, "unexpected text in <%s>", stack[len(stack)-1].Name)
			}
		}
	}
	if len(stack) != 1 {
		return nil, parseErrf(path, 0, nil, "unexpected end of XML inside <%s>", stack[len(stack)-1].Name)
	}
	if len(doc.Elements) == 0 {
		return nil, parseErrf(path, 0, nil, "no root element")
	}
	return doc, nil
}
