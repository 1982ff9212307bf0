package persist

import (
	"bytes"
	"fmt"
	"io"

	"github.com/vmihailenco/msgpack/v5"
	"github.com/vmihailenco/msgpack/v5/msgpcode"
)

// printMsgPack encodes the tree in the same shape as JSON: an element is a
// map of attributes and child groups, a group of several children an array.
func printMsgPack(bb *bytesBuilder, doc *Element) error {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)
	enc.Reset(bb)
	return encodeMsgPackElement(enc, doc)
}

func encodeMsgPackElement(enc *msgpack.Encoder, e *Element) error {
	groups := e.childGroups()
	if err := enc.EncodeMapLen(len(e.Attributes) + len(groups)); err != nil {
		return err
	}
	for _, a := range e.Attributes {
		if err := enc.EncodeString(a.Name); err != nil {
			return err
		}
		if err := encodeMsgPackScalar(enc, a); err != nil {
			return err
		}
	}
	for _, group := range groups {
		if err := enc.EncodeString(group[0].Name); err != nil {
			return err
		}
		if len(group) == 1 {
			if err := encodeMsgPackElement(enc, group[0]); err != nil {
				return err
			}
			continue
		}
		if err := enc.EncodeArrayLen(len(group)); err != nil {
			return err
		}
		for _, c := range group {
			if err := encodeMsgPackElement(enc, c); err != nil {
				return err
			}
		}
	}
	return nil
}

func encodeMsgPackScalar(enc *msgpack.Encoder, a Attribute) error {
	switch a.kind {
	case AttributeVoid:
		return enc.EncodeNil()
	case AttributeBool:
		return enc.EncodeBool(a.u != 0)
	case AttributeInt:
		return enc.EncodeInt(a.i)
	case AttributeUint, AttributeAddress:
		return enc.EncodeUint(a.u)
	case AttributeReal:
		return enc.EncodeFloat64(a.f)
	default:
		return enc.EncodeString(a.s)
	}
}

type msgpackParser struct {
	path string
	dec  *msgpack.Decoder
}

func parseMsgPack(path string, data []byte) (*Element, error) {
	dec := msgpack.GetDecoder()
	defer msgpack.PutDecoder(dec)
	dec.Reset(bytes.NewReader(data))
	p := &msgpackParser{path: path, dec: dec}

	doc := newDocument()
	err := safelyCall(func() {
		c := p.peek()
		if !isMsgPackMap(c) {
			fail(parseErrf(path, 0, nil, "expected a map at the top level, got code 0x%02x", c))
		}
		p.element(doc)
		if _, err := dec.PeekCode(); err != io.EOF {
			fail(parseErrf(path, 0, err, "unexpected data after the top-level map"))
		}
	})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func isMsgPackMap(c byte) bool {
	return msgpcode.IsFixedMap(c) || c == msgpcode.Map16 || c == msgpcode.Map32
}

func isMsgPackArray(c byte) bool {
	return msgpcode.IsFixedArray(c) || c == msgpcode.Array16 || c == msgpcode.Array32
}

func (p *msgpackParser) check(err error) {
	if err != nil {
		fail(parseErrf(p.path, 0, err, "invalid MsgPack"))
	}
}

func (p *msgpackParser) peek() byte {
	c, err := p.dec.PeekCode()
	if err == io.EOF {
		err = io.ErrUnexpectedEOF
	}
	p.check(err)
	return c
}

func (p *msgpackParser) element(el *Element) {
	n, err := p.dec.DecodeMapLen()
	p.check(err)
	for i := 0; i < n; i++ {
		key, err := p.dec.DecodeString()
		p.check(err)
		p.value(el, key)
	}
}

func (p *msgpackParser) value(el *Element, key string) {
	c := p.peek()
	switch {
	case isMsgPackMap(c):
		p.element(el.AddElement(&Element{Name: key, Flags: ElementPreserveEmpty}))
	case isMsgPackArray(c):
		n, err := p.dec.DecodeArrayLen()
		p.check(err)
		for i := 0; i < n; i++ {
			if !isMsgPackMap(p.peek()) {
				fail(parseErrf(p.path, 0, nil, "array %q may only contain maps", key))
			}
			p.element(el.AddElement(&Element{Name: key, Flags: ElementPreserveEmpty}))
		}
	default:
		v, err := p.dec.DecodeInterfaceLoose()
		p.check(err)
		el.AddAttribute(msgpackAttribute(p.path, key, v))
	}
}

func msgpackAttribute(path, key string, v any) Attribute {
	switch v := v.(type) {
	case nil:
		return VoidAttribute(key)
	case bool:
		return BoolAttribute(key, v)
	case int64:
		return IntAttribute(key, v)
	case uint64:
		return UintAttribute(key, v)
	case float64:
		return RealAttribute(key, v)
	case string:
		return StringAttribute(key, v)
	default:
		fail(parseErrf(path, 0, nil, "unsupported value for %s: %s", key, fmt.Sprintf("%T", v)))
		return Attribute{}
	}
}
