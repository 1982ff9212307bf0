package persist

import (
	"fmt"
	"strings"
)

const indentStep = "  "

// Dump renders an element tree for diagnostics, one line per element with
// its attributes aligned beneath it.
func Dump(e *Element) string {
	var buf strings.Builder
	dumpElement(&buf, "", e)
	return buf.String()
}

func dumpElement(w *strings.Builder, prefix string, e *Element) {
	name := e.Name
	if e.Flags.Contains(ElementAnonymous) {
		name = "(document)"
	}
	w.WriteString(prefix)
	w.WriteString(name)
	if e.Line > 0 {
		fmt.Fprintf(w, " [line %d]", e.Line)
	}
	if e.IsEmpty() && e.Flags.Contains(ElementPreserveEmpty) {
		w.WriteString(" (empty)")
	}
	w.WriteByte('\n')

	width := 0
	for _, a := range e.Attributes {
		width = max(width, len(a.Name))
	}
	for _, a := range e.Attributes {
		w.WriteString(prefix)
		w.WriteString(indentStep)
		w.WriteString(rpad("@"+a.Name, width+1, ' '))
		w.WriteString(" = ")
		switch a.kind {
		case AttributeString:
			fmt.Fprintf(w, "%q", a.s)
		case AttributeVoid:
			w.WriteString("null")
		default:
			w.WriteString(a.String())
		}
		w.WriteString(" (")
		w.WriteString(a.kind.String())
		w.WriteString(")\n")
	}
	for _, c := range e.Elements {
		dumpElement(w, prefix+indentStep, c)
	}
}
