package persist

import (
	"strconv"
	"strings"
)

// EnumEntry names one value of an enumeration or one bit of a mask.
type EnumEntry struct {
	Name  string
	Value int64
}

type enumFilter struct {
	entries []EnumEntry
}

// EnumFilter stores an integer field as the name of the matching entry.
// Values without an entry are stored as decimal numbers, and numbers are
// accepted on read; unknown names fail with InvalidIdentifierError.
func EnumFilter(entries ...EnumEntry) Filter {
	return &enumFilter{entries}
}

func (f *enumFilter) ToArchive(ar *Archive, value any) (string, error) {
	v, err := intOf(value)
	if err != nil {
		return "", err
	}
	for _, e := range f.entries {
		if e.Value == v {
			return e.Name, nil
		}
	}
	return strconv.FormatInt(v, 10), nil
}

func (f *enumFilter) FromArchive(ar *Archive, text string, ptr any) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	v, err := lookupEntry(f.entries, text)
	if err != nil {
		return err
	}
	return setInt(ptr, v)
}

type maskFilter struct {
	entries []EnumEntry
}

// MaskFilter stores an integer field as the |-joined names of its set bits,
// lowest bit first. Bits without an entry are dropped; zero is stored as the
// name of the entry whose value is 0, if any.
func MaskFilter(entries ...EnumEntry) Filter {
	return &maskFilter{entries}
}

func (f *maskFilter) ToArchive(ar *Archive, value any) (string, error) {
	v, err := intOf(value)
	if err != nil {
		return "", err
	}
	if v == 0 {
		for _, e := range f.entries {
			if e.Value == 0 {
				return e.Name, nil
			}
		}
		return "", nil
	}
	var buf strings.Builder
	for bit := 0; bit < 64; bit++ {
		mask := int64(1) << bit
		if v&mask == 0 {
			continue
		}
		for _, e := range f.entries {
			if e.Value == mask {
				if buf.Len() > 0 {
					buf.WriteByte('|')
				}
				buf.WriteString(e.Name)
				break
			}
		}
	}
	return buf.String(), nil
}

func (f *maskFilter) FromArchive(ar *Archive, text string, ptr any) error {
	var v int64
	for rest, more := text, true; more; {
		var token string
		token, rest, more = splitByte(rest, '|')
		token = strings.TrimSpace(token)
		if token == "" {
			continue
		}
		bits, err := lookupEntry(f.entries, token)
		if err != nil {
			return err
		}
		v |= bits
	}
	return setInt(ptr, v)
}

func lookupEntry(entries []EnumEntry, name string) (int64, error) {
	for _, e := range entries {
		if e.Name == name {
			return e.Value, nil
		}
	}
	if looksNumeric(name) {
		return parseInt(name)
	}
	known := make([]string, len(entries))
	for i, e := range entries {
		known[i] = e.Name
	}
	return 0, &InvalidIdentifierError{Identifier: name, Known: known}
}

func looksNumeric(s string) bool {
	if s != "" && (s[0] == '-' || s[0] == '+') {
		s = s[1:]
	}
	return s != "" && s[0] >= '0' && s[0] <= '9'
}
