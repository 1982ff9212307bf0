package persist

import (
	"fmt"
	"reflect"
	"unicode/utf8"
)

// utf8Lengths maps a leading byte to the length of its UTF-8 sequence; 0
// marks continuation bytes and bytes that never start a sequence.
var utf8Lengths = func() (t [256]uint8) {
	for b := 0; b < 256; b++ {
		switch {
		case b < 0x80:
			t[b] = 1
		case b >= 0xC2 && b < 0xE0:
			t[b] = 2
		case b >= 0xE0 && b < 0xF0:
			t[b] = 3
		case b >= 0xF0 && b < 0xF5:
			t[b] = 4
		}
	}
	return
}()

var uint16SliceType = reflect.TypeOf([]uint16(nil))

type ucs2Filter struct{}

// Ucs2Filter stores a []uint16 of UCS-2 code units as UTF-8 text. Characters
// outside the Basic Multilingual Plane read back as U+FFFD.
func Ucs2Filter() Filter {
	return ucs2Filter{}
}

func (ucs2Filter) ToArchive(ar *Archive, value any) (string, error) {
	v := reflect.ValueOf(value)
	if !v.IsValid() || !v.Type().ConvertibleTo(uint16SliceType) {
		return "", fmt.Errorf("expected []uint16, got %T", value)
	}
	return UCS2ToUTF8(v.Convert(uint16SliceType).Interface().([]uint16)), nil
}

func (ucs2Filter) FromArchive(ar *Archive, text string, ptr any) error {
	v := reflect.ValueOf(ptr)
	if v.Kind() != reflect.Pointer || v.IsNil() || !uint16SliceType.ConvertibleTo(v.Elem().Type()) {
		return fmt.Errorf("expected *[]uint16, got %T", ptr)
	}
	v.Elem().Set(reflect.ValueOf(UTF8ToUCS2(text)).Convert(v.Elem().Type()))
	return nil
}

// UCS2ToUTF8 converts UCS-2 code units to UTF-8.
func UCS2ToUTF8(units []uint16) string {
	buf := make([]byte, 0, len(units))
	for _, u := range units {
		// lone surrogates encode as U+FFFD
		buf = utf8.AppendRune(buf, rune(u))
	}
	return string(buf)
}

// UTF8ToUCS2 converts UTF-8 to UCS-2. Malformed bytes and code points
// outside the Basic Multilingual Plane become U+FFFD.
func UTF8ToUCS2(s string) []uint16 {
	if s == "" {
		return nil
	}
	units := make([]uint16, 0, len(s))
	for i := 0; i < len(s); {
		n := int(utf8Lengths[s[i]])
		if n == 0 || i+n > len(s) {
			units = append(units, utf8.RuneError)
			i++
			continue
		}
		var r rune
		switch n {
		case 1:
			r = rune(s[i])
		case 2:
			r = rune(s[i]&0x1F)<<6 | rune(s[i+1]&0x3F)
		case 3:
			r = rune(s[i]&0x0F)<<12 | rune(s[i+1]&0x3F)<<6 | rune(s[i+2]&0x3F)
		case 4:
			r = utf8.MaxRune + 1
		}
		if !continuations(s[i+1:i+n]) || n == 3 && (r < 0x800 || r >= 0xD800 && r < 0xE000) {
			units = append(units, utf8.RuneError)
			i++
			continue
		}
		if r > 0xFFFF {
			r = utf8.RuneError
		}
		units = append(units, uint16(r))
		i += n
	}
	return units
}

func continuations(b string) bool {
	for i := 0; i < len(b); i++ {
		if b[i]&0xC0 != 0x80 {
			return false
		}
	}
	return true
}
