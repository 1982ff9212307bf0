package persist

import (
	"bytes"
	"errors"
	"math"

	"github.com/yuin/gopher-lua/ast"
	"github.com/yuin/gopher-lua/parse"
)

var luaKeywords = map[string]bool{
	"and": true, "break": true, "do": true, "else": true, "elseif": true,
	"end": true, "false": true, "for": true, "function": true, "goto": true,
	"if": true, "in": true, "local": true, "nil": true, "not": true,
	"or": true, "repeat": true, "return": true, "then": true, "true": true,
	"until": true, "while": true,
}

func isLuaIdentifier(s string) bool {
	if s == "" || luaKeywords[s] {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// printLua prints the document as one assignment per root element, each a
// nested table literal a Lua interpreter can load.
func printLua(bb *bytesBuilder, doc *Element) {
	if !doc.Flags.Contains(ElementAnonymous) {
		doc = &Element{Elements: []*Element{doc}}
	}
	for _, group := range doc.childGroups() {
		bb.WriteString(group[0].Name)
		bb.WriteString(" = ")
		printLuaGroup(bb, group, 0)
		bb.AppendByte('\n')
	}
}

func printLuaGroup(bb *bytesBuilder, group []*Element, depth int) {
	if len(group) == 1 {
		printLuaTable(bb, group[0], depth)
		return
	}
	bb.AppendByte('{')
	for i, c := range group {
		if i > 0 {
			bb.AppendByte(',')
		}
		bb.AppendByte('\n')
		indent(bb, depth+1)
		printLuaTable(bb, c, depth+1)
	}
	bb.AppendByte('\n')
	indent(bb, depth)
	bb.AppendByte('}')
}

func printLuaTable(bb *bytesBuilder, e *Element, depth int) {
	bb.AppendByte('{')
	var n int
	field := func(name string) {
		if n > 0 {
			bb.AppendByte(',')
		}
		n++
		bb.AppendByte('\n')
		indent(bb, depth+1)
		if isLuaIdentifier(name) {
			bb.WriteString(name)
		} else {
			bb.AppendByte('[')
			quoteLua(bb, name)
			bb.AppendByte(']')
		}
		bb.WriteString(" = ")
	}
	for _, a := range e.Attributes {
		field(a.Name)
		printLuaScalar(bb, a)
	}
	for _, group := range e.childGroups() {
		field(group[0].Name)
		printLuaGroup(bb, group, depth+1)
	}
	if n > 0 {
		bb.AppendByte('\n')
		indent(bb, depth)
	}
	bb.AppendByte('}')
}

func printLuaScalar(bb *bytesBuilder, a Attribute) {
	switch a.kind {
	case AttributeVoid:
		bb.WriteString("nil")
	case AttributeBool, AttributeInt, AttributeUint, AttributeAddress:
		bb.WriteString(a.String())
	case AttributeReal:
		if math.IsNaN(a.f) || math.IsInf(a.f, 0) {
			quoteLua(bb, a.String())
		} else {
			bb.WriteString(a.String())
		}
	default:
		quoteLua(bb, a.String())
	}
}

func quoteLua(bb *bytesBuilder, s string) {
	bb.AppendByte('"')
	last := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c >= 0x20 && c != 0x7f && c != '"' && c != '\\' {
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
			bb.AppendByte('\\')
			bb.AppendByte('0' + c/100)
			bb.AppendByte('0' + c/10%10)
			bb.AppendByte('0' + c%10)
		}
	}
	bb.WriteString(s[last:])
	bb.AppendByte('"')
}

// parseLua accepts a chunk of `name = table` assignments.
func parseLua(path string, data []byte) (*Element, error) {
	chunk, err := parse.Parse(bytes.NewReader(data), path)
	if err != nil {
		var pe *parse.Error
		if errors.As(err, &pe) {
			return nil, parseErrf(path, pe.Pos.Line, nil, "%s", pe.Message)
		}
		return nil, parseErrf(path, 0, err, "invalid Lua")
	}
	doc := newDocument()
	err = safelyCall(func() {
		for _, stmt := range chunk {
			assign, ok := stmt.(*ast.AssignStmt)
			if !ok || len(assign.Lhs) != len(assign.Rhs) {
				fail(parseErrf(path, stmt.Line(), nil, "expected name = {...}"))
			}
			for i, lhs := range assign.Lhs {
				ident, ok := lhs.(*ast.IdentExpr)
				if !ok {
					fail(parseErrf(path, lhs.Line(), nil, "expected a name"))
				}
				luaField(path, doc, ident.Value, assign.Rhs[i])
			}
		}
	})
	if err != nil {
		return nil, err
	}
	if len(doc.Elements) == 0 {
		return nil, parseErrf(path, 0, nil, "no root element")
	}
	return doc, nil
}

func luaField(path string, el *Element, name string, expr ast.Expr) {
	switch expr := expr.(type) {
	case *ast.TableExpr:
		if isLuaArray(expr) {
			for _, f := range expr.Fields {
				t, ok := f.Value.(*ast.TableExpr)
				if !ok || isLuaArray(t) {
					fail(parseErrf(path, f.Value.Line(), nil, "array %q may only contain tables", name))
				}
				luaTable(path, el.AddElement(&Element{Name: name, Line: t.Line(), Flags: ElementPreserveEmpty}), t)
			}
			return
		}
		luaTable(path, el.AddElement(&Element{Name: name, Line: expr.Line(), Flags: ElementPreserveEmpty}), expr)
	case *ast.NilExpr:
		el.AddAttribute(VoidAttribute(name))
	case *ast.TrueExpr:
		el.AddAttribute(BoolAttribute(name, true))
	case *ast.FalseExpr:
		el.AddAttribute(BoolAttribute(name, false))
	case *ast.StringExpr:
		el.AddAttribute(StringAttribute(name, expr.Value))
	case *ast.NumberExpr:
		el.AddAttribute(luaNumber(path, name, expr.Line(), expr.Value))
	case *ast.UnaryMinusOpExpr:
		num, ok := expr.Expr.(*ast.NumberExpr)
		if !ok {
			fail(parseErrf(path, expr.Line(), nil, "unsupported expression for %s", name))
		}
		el.AddAttribute(luaNumber(path, name, expr.Line(), "-"+num.Value))
	default:
		fail(parseErrf(path, expr.Line(), nil, "unsupported expression for %s", name))
	}
}

func luaNumber(path, name string, line int, lit string) Attribute {
	a, err := numberAttribute(name, lit)
	if err != nil {
		fail(parseErrf(path, line, err, "bad number for %s", name))
	}
	return a
}

// isLuaArray reports whether every field of t is positional. Empty tables
// are elements, not arrays.
func isLuaArray(t *ast.TableExpr) bool {
	if len(t.Fields) == 0 {
		return false
	}
	for _, f := range t.Fields {
		if f.Key != nil {
			return false
		}
	}
	return true
}

func luaTable(path string, el *Element, t *ast.TableExpr) {
	for _, f := range t.Fields {
		if f.Key == nil {
			fail(parseErrf(path, f.Value.Line(), nil, "unexpected positional value in %s", el.Name))
		}
		var name string
		switch key := f.Key.(type) {
		case *ast.StringExpr:
			name = key.Value
		case *ast.NumberExpr:
			name = key.Value
		default:
			fail(parseErrf(path, f.Key.Line(), nil, "unsupported key in %s", el.Name))
		}
		luaField(path, el, name, f.Value)
	}
}
