package persist

// writerImpl is the encoding-specific half of a writing archive. Calls nest:
// every begin is matched by its end, and items only occur inside sequences.
type writerImpl interface {
	scalar(a Attribute)
	beginObject(name string, addr Address)
	endObject()
	// nilObject marks a null owned pointer or interface. Tree encodings only
	// keep a placeholder when it stands for a sequence item.
	nilObject(name string, item bool)
	enter(format string, version int)
	beginSequence(name string, n int)
	nilSequence(name string)
	endSequence()
	beginItem(name string)
	endItem()
	reference(name string, addr Address, item bool)
}

// readerImpl is the encoding-specific half of a reading archive. A false ok
// means the site is absent (or null) and no frame was opened.
type readerImpl interface {
	scalar(name string, kind AttributeKind) (a Attribute, ok bool)
	beginObject(name string) (addr Address, ok bool)
	endObject()
	// enter returns the format and version stored on the current object;
	// ok is false when no version was stored.
	enter() (format string, version int, ok bool)
	beginSequence(name, child string) (n int, ok bool)
	endSequence()
	// beginItem always opens a frame, possibly an empty one.
	beginItem(name string)
	endItem()
	reference(name string, item bool) Address
	// line is the source line of the current frame, 0 if unknown.
	line() int
}
