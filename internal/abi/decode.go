package abi

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

// ErrShortData is returned when a read runs past the end of the input.
var ErrShortData = errors.New("abi: data too short")

// Decoder reads ABI words from an encoded buffer. Positions are absolute byte
// offsets into the buffer.
type Decoder struct {
	data []byte
}

// NewDecoder wraps data (without the 4-byte selector).
func NewDecoder(data []byte) *Decoder { return &Decoder{data: data} }

// Len returns the buffer length.
func (d *Decoder) Len() int { return len(d.data) }

func (d *Decoder) word(pos int) ([]byte, error) {
	if pos < 0 || pos+WordSize > len(d.data) {
		return nil, fmt.Errorf("%w: word at %d, have %d bytes", ErrShortData, pos, len(d.data))
	}
	return d.data[pos : pos+WordSize], nil
}

// Uint reads an unsigned integer word.
func (d *Decoder) Uint(pos int) (*big.Int, error) {
	w, err := d.word(pos)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(w), nil
}

// Int reads a two's complement signed integer word.
func (d *Decoder) Int(pos int) (*big.Int, error) {
	n, err := d.Uint(pos)
	if err != nil {
		return nil, err
	}
	if n.Bit(255) == 1 {
		n.Sub(n, twoTo256)
	}
	return n, nil
}

// Offset reads a word used as a length or offset and bounds-checks it as an int.
func (d *Decoder) Offset(pos int) (int, error) {
	n, err := d.Uint(pos)
	if err != nil {
		return 0, err
	}
	if !n.IsInt64() || n.Int64() > int64(len(d.data)) {
		return 0, fmt.Errorf("%w: offset %s out of range", ErrShortData, n)
	}
	return int(n.Int64()), nil
}

// Address reads a left-padded address word.
func (d *Decoder) Address(pos int) (Address, error) {
	w, err := d.word(pos)
	if err != nil {
		return Address{}, err
	}
	return BytesToAddress(w), nil
}

// Bool reads a boolean word.
func (d *Decoder) Bool(pos int) (bool, error) {
	n, err := d.Uint(pos)
	if err != nil {
		return false, err
	}
	return n.Sign() != 0, nil
}

// FixedBytes reads the first size bytes of a right-padded word.
func (d *Decoder) FixedBytes(pos, size int) ([]byte, error) {
	w, err := d.word(pos)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	copy(out, w[:size])
	return out, nil
}

// Selector reads a bytes4 word.
func (d *Decoder) Selector(pos int) (Selector, error) {
	var s Selector
	b, err := d.FixedBytes(pos, SelectorLength)
	if err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

// Tail resolves the dynamic value referenced from the head word at pos, with
// offsets relative to base.
func (d *Decoder) Tail(pos, base int) (int, error) {
	off, err := d.Offset(pos)
	if err != nil {
		return 0, err
	}
	return base + off, nil
}

// Bytes reads a length-prefixed byte string starting at start.
func (d *Decoder) Bytes(start int) ([]byte, error) {
	n, err := d.Offset(start)
	if err != nil {
		return nil, err
	}
	begin := start + WordSize
	if begin+n > len(d.data) {
		return nil, fmt.Errorf("%w: bytes of length %d at %d", ErrShortData, n, start)
	}
	out := make([]byte, n)
	copy(out, d.data[begin:begin+n])
	return out, nil
}

// AddressArray reads a length-prefixed address[] starting at start.
func (d *Decoder) AddressArray(start int) ([]Address, error) {
	n, err := d.Offset(start)
	if err != nil {
		return nil, err
	}
	out := make([]Address, 0, n)
	for i := 0; i < n; i++ {
		a, err := d.Address(start + WordSize*(i+1))
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// Unpack decodes return data for the given canonical types. Supported: address,
// bool, intN, uintN, bytesN, bytes, string and one-dimensional dynamic arrays of
// static elements.
func Unpack(types []string, data []byte) ([]any, error) {
	d := NewDecoder(data)
	out := make([]any, 0, len(types))
	for i, t := range types {
		v, err := d.value(t, i*WordSize, 0)
		if err != nil {
			return nil, fmt.Errorf("output %d (%s): %w", i, t, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func (d *Decoder) value(t string, pos, base int) (any, error) {
	if elem, ok := strings.CutSuffix(t, "[]"); ok {
		if isDynamicType(elem) {
			return nil, fmt.Errorf("unsupported nested dynamic type %q", t)
		}
		start, err := d.Tail(pos, base)
		if err != nil {
			return nil, err
		}
		n, err := d.Offset(start)
		if err != nil {
			return nil, err
		}
		items := make([]any, 0, n)
		for i := 0; i < n; i++ {
			v, err := d.value(elem, start+WordSize*(i+1), start+WordSize)
			if err != nil {
				return nil, err
			}
			items = append(items, v)
		}
		return items, nil
	}
	switch {
	case t == "address":
		return d.Address(pos)
	case t == "bool":
		return d.Bool(pos)
	case t == "bytes":
		start, err := d.Tail(pos, base)
		if err != nil {
			return nil, err
		}
		return d.Bytes(start)
	case t == "string":
		start, err := d.Tail(pos, base)
		if err != nil {
			return nil, err
		}
		b, err := d.Bytes(start)
		return string(b), err
	case strings.HasPrefix(t, "uint"):
		return d.Uint(pos)
	case strings.HasPrefix(t, "int"):
		return d.Int(pos)
	case strings.HasPrefix(t, "bytes"):
		size, err := atoiStrict(strings.TrimPrefix(t, "bytes"))
		if err != nil || size > WordSize {
			return nil, fmt.Errorf("invalid type %q", t)
		}
		return d.FixedBytes(pos, size)
	}
	return nil, fmt.Errorf("unsupported type %q", t)
}

func isDynamicType(t string) bool {
	return t == "bytes" || t == "string" || strings.HasSuffix(t, "[]") || strings.HasPrefix(t, "(")
}

// FormatValue renders a decoded value for reports.
func FormatValue(v any) string {
	switch x := v.(type) {
	case Address:
		return x.Hex()
	case *big.Int:
		return x.String()
	case bool:
		return fmt.Sprintf("%t", x)
	case []byte:
		return "0x" + hex.EncodeToString(x)
	case string:
		return x
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = FormatValue(e)
		}
		return "[" + strings.Join(parts, ",") + "]"
	}
	return fmt.Sprint(v)
}
