/*
Package persist writes and reads graphs of Go objects, including shared
pointers, cycles and interface-typed fields, in several encodings using one
Persist method per type.

A type describes its fields once:

	func (t *Target) Persist(ar *persist.Archive) {
		ar.Value("id", &t.ID)
		ar.Filtered("path", &t.Path, persist.PathFilter())
		ar.Refer("parent", &t.Parent)
		ar.References("dependencies", "dependency", &t.Dependencies)
	}

and the same method drives writing, reading and resolving.

# Value and reference sites

Value fields own what they hold: scalars, text marshalers, structs, pointers
and interfaces to structs, and slices, arrays and maps of those. Reference
fields (Refer, References) point at objects owned by a value field elsewhere
in the graph. Every object written by value is given an address, assigned
in traversal order starting at 1, and references store that address.

# Reading

Reading makes two passes. The read pass fills in values and records, for
each object, container and map entry, the addresses its reference fields
held. The resolve pass then walks the in-memory graph in the same order as
a write would, registers every object under its archived address and patches
reference fields from the recording, positionally. Reference fields whose
target never appears make Read fail with UnresolvedReferencesError.

Fields missing from an archive are left untouched, so archives may be
sparse or hand-edited.

# Encodings

Binary archives are a flat length-prefixed stream, readable by the same
program only:

1. Magic "PRST".
2. Objects: uint32 size, uint64 address, the class name for interface
fields, format and version when entered, then fields in Persist order.
3. Scalars are untagged, little-endian, 8 bytes wide (bools take one byte);
strings are a uint64 length plus bytes; containers start with an int64
count, -1 for nil.

XML, JSON, Lua and MsgPack archives go through an Element tree: one element
per object, attributes for scalars, child elements for objects, references
and containers, whose items are same-named children.

# Versions

Enter stores a format name and version on an object. Readers reject other
formats and newer versions, and Version reports the archived version while
the object is read so that Persist can skip fields older archives lack.
*/
package persist
