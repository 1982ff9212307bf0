package persist

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Address is an object's identity within one archive. Writers hand out
// addresses 1, 2, 3... in the order objects are first tracked; 0 is null.
type Address uint64

// AttributeKind tags the value held by an Attribute.
type AttributeKind uint8

const (
	AttributeVoid AttributeKind = iota
	AttributeAddress
	AttributeBool
	AttributeInt
	AttributeUint
	AttributeReal
	AttributeString
)

func (k AttributeKind) String() string {
	switch k {
	case AttributeVoid:
		return "void"
	case AttributeAddress:
		return "address"
	case AttributeBool:
		return "bool"
	case AttributeInt:
		return "int"
	case AttributeUint:
		return "uint"
	case AttributeReal:
		return "real"
	case AttributeString:
		return "string"
	default:
		return "unknown"
	}
}

// Attribute is a named scalar. Parsers produce whatever kind their syntax
// carries (XML only ever produces strings); readers coerce on demand.
type Attribute struct {
	Name string

	kind AttributeKind
	u    uint64 // address, uint, bool
	i    int64
	f    float64
	s    string
}

func VoidAttribute(name string) Attribute {
	return Attribute{Name: name, kind: AttributeVoid}
}

func AddressAttribute(name string, v Address) Attribute {
	return Attribute{Name: name, kind: AttributeAddress, u: uint64(v)}
}

func BoolAttribute(name string, v bool) Attribute {
	a := Attribute{Name: name, kind: AttributeBool}
	if v {
		a.u = 1
	}
	return a
}

func IntAttribute(name string, v int64) Attribute {
	return Attribute{Name: name, kind: AttributeInt, i: v}
}

func UintAttribute(name string, v uint64) Attribute {
	return Attribute{Name: name, kind: AttributeUint, u: v}
}

func RealAttribute(name string, v float64) Attribute {
	return Attribute{Name: name, kind: AttributeReal, f: v}
}

func StringAttribute(name string, v string) Attribute {
	return Attribute{Name: name, kind: AttributeString, s: v}
}

func (a Attribute) Kind() AttributeKind {
	return a.kind
}

func (a Attribute) IsVoid() bool {
	return a.kind == AttributeVoid
}

// String coerces the value to text. Void is the empty string.
func (a Attribute) String() string {
	switch a.kind {
	case AttributeAddress, AttributeUint:
		return strconv.FormatUint(a.u, 10)
	case AttributeBool:
		if a.u != 0 {
			return "true"
		}
		return "false"
	case AttributeInt:
		return strconv.FormatInt(a.i, 10)
	case AttributeReal:
		return strconv.FormatFloat(a.f, 'g', -1, 64)
	case AttributeString:
		return a.s
	default:
		return ""
	}
}

func (a Attribute) Bool() (bool, error) {
	switch a.kind {
	case AttributeBool, AttributeAddress, AttributeUint:
		return a.u != 0, nil
	case AttributeInt:
		return a.i != 0, nil
	case AttributeReal:
		return a.f != 0, nil
	case AttributeString:
		return strconv.ParseBool(strings.TrimSpace(a.s))
	default:
		return false, nil
	}
}

func (a Attribute) Int() (int64, error) {
	switch a.kind {
	case AttributeInt:
		return a.i, nil
	case AttributeBool:
		return int64(a.u), nil
	case AttributeAddress, AttributeUint:
		if a.u > math.MaxInt64 {
			return 0, fmt.Errorf("value %d overflows int64", a.u)
		}
		return int64(a.u), nil
	case AttributeReal:
		if a.f != math.Trunc(a.f) || a.f < math.MinInt64 || a.f >= math.MaxInt64 {
			return 0, fmt.Errorf("value %v is not an integer", a.f)
		}
		return int64(a.f), nil
	case AttributeString:
		return parseInt(a.s)
	default:
		return 0, nil
	}
}

func (a Attribute) Uint() (uint64, error) {
	switch a.kind {
	case AttributeAddress, AttributeUint, AttributeBool:
		return a.u, nil
	case AttributeInt:
		if a.i < 0 {
			return 0, fmt.Errorf("value %d is negative", a.i)
		}
		return uint64(a.i), nil
	case AttributeReal:
		if a.f != math.Trunc(a.f) || a.f < 0 || a.f >= math.MaxUint64 {
			return 0, fmt.Errorf("value %v is not an unsigned integer", a.f)
		}
		return uint64(a.f), nil
	case AttributeString:
		return parseUint(a.s)
	default:
		return 0, nil
	}
}

func (a Attribute) Real() (float64, error) {
	switch a.kind {
	case AttributeReal:
		return a.f, nil
	case AttributeInt:
		return float64(a.i), nil
	case AttributeAddress, AttributeUint, AttributeBool:
		return float64(a.u), nil
	case AttributeString:
		return strconv.ParseFloat(strings.TrimSpace(a.s), 64)
	default:
		return 0, nil
	}
}

func (a Attribute) Address() (Address, error) {
	v, err := a.Uint()
	return Address(v), err
}

func parseInt(s string) (int64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// 0x-prefixed values from hand-edited archives
		v, err = strconv.ParseInt(s, 0, 64)
	}
	return v, err
}

func parseUint(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		v, err = strconv.ParseUint(s, 0, 64)
	}
	return v, err
}

// numberAttribute classifies a numeric literal the way JSON, Lua and
// hand-written archives spell it. Integers that fit in int64 are Int, larger
// ones Uint.
func numberAttribute(name, lit string) (Attribute, error) {
	if strings.ContainsAny(lit, ".eEnN") && !strings.HasPrefix(lit, "0x") && !strings.HasPrefix(lit, "0X") {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return Attribute{}, err
		}
		return RealAttribute(name, f), nil
	}
	if strings.HasPrefix(lit, "-") {
		v, err := parseInt(lit)
		if err != nil {
			f, ferr := strconv.ParseFloat(lit, 64)
			if ferr != nil {
				return Attribute{}, err
			}
			return RealAttribute(name, f), nil
		}
		return IntAttribute(name, v), nil
	}
	v, err := parseUint(lit)
	if err != nil {
		f, ferr := strconv.ParseFloat(lit, 64)
		if ferr != nil {
			return Attribute{}, err
		}
		return RealAttribute(name, f), nil
	}
	if v <= math.MaxInt64 {
		return IntAttribute(name, int64(v)), nil
	}
	return UintAttribute(name, v), nil
}
