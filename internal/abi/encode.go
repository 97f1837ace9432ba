package abi

import (
	"fmt"
	"math/big"
)

// WordSize is the ABI slot width in bytes.
const WordSize = 32

// Value is one ABI-encodable argument.
//
// Static values encode in place; dynamic values are referenced by an offset in the
// head and appended to the tail.
type Value interface {
	Dynamic() bool
	Encode() []byte
}

type staticWord []byte

func (w staticWord) Dynamic() bool  { return false }
func (w staticWord) Encode() []byte { return []byte(w) }

// AddressValue encodes an address left-padded to 32 bytes.
func AddressValue(a Address) Value {
	word := make([]byte, WordSize)
	copy(word[WordSize-AddressLength:], a[:])
	return staticWord(word)
}

// UintValue encodes a non-negative integer. Negative inputs are encoded as two's
// complement so IntValue can share the path.
func UintValue(v *big.Int) Value {
	return staticWord(intWord(v))
}

// IntValue encodes a signed integer in two's complement.
func IntValue(v *big.Int) Value { return UintValue(v) }

// Uint64Value is a convenience wrapper for small unsigned integers.
func Uint64Value(v uint64) Value { return UintValue(new(big.Int).SetUint64(v)) }

// BoolValue encodes true as 1 and false as 0.
func BoolValue(b bool) Value {
	if b {
		return Uint64Value(1)
	}
	return Uint64Value(0)
}

// FixedBytesValue encodes bytes1..bytes32, right-padded.
func FixedBytesValue(b []byte) Value {
	word := make([]byte, WordSize)
	copy(word, b)
	return staticWord(word)
}

// SelectorValue encodes a selector as bytes4.
func SelectorValue(s Selector) Value { return FixedBytesValue(s[:]) }

type dynamicBytes []byte

func (b dynamicBytes) Dynamic() bool { return true }
func (b dynamicBytes) Encode() []byte {
	out := intWord(big.NewInt(int64(len(b))))
	return append(out, padRight(b)...)
}

// BytesValue encodes a dynamic byte string.
func BytesValue(b []byte) Value { return dynamicBytes(b) }

// StringValue encodes a dynamic UTF-8 string.
func StringValue(s string) Value { return dynamicBytes(s) }

type arrayValue struct {
	elems []Value
	fixed bool
}

func (a arrayValue) Dynamic() bool {
	if !a.fixed {
		return true
	}
	for _, e := range a.elems {
		if e.Dynamic() {
			return true
		}
	}
	return false
}

func (a arrayValue) Encode() []byte {
	body := Pack(a.elems...)
	if a.fixed {
		return body
	}
	return append(intWord(big.NewInt(int64(len(a.elems)))), body...)
}

// ArrayValue encodes a dynamic-length array T[].
func ArrayValue(elems ...Value) Value { return arrayValue{elems: elems} }

// FixedArrayValue encodes a fixed-length array T[k].
func FixedArrayValue(elems ...Value) Value { return arrayValue{elems: elems, fixed: true} }

type tupleValue []Value

func (t tupleValue) Dynamic() bool {
	for _, e := range t {
		if e.Dynamic() {
			return true
		}
	}
	return false
}

func (t tupleValue) Encode() []byte { return Pack(t...) }

// TupleValue encodes a struct.
func TupleValue(fields ...Value) Value { return tupleValue(fields) }

// Pack encodes values with the standard head/tail layout.
func Pack(values ...Value) []byte {
	headSize := 0
	for _, v := range values {
		if v.Dynamic() {
			headSize += WordSize
		} else {
			headSize += len(v.Encode())
		}
	}
	head := make([]byte, 0, headSize)
	var tail []byte
	for _, v := range values {
		if v.Dynamic() {
			head = append(head, intWord(big.NewInt(int64(headSize+len(tail))))...)
			tail = append(tail, v.Encode()...)
			continue
		}
		head = append(head, v.Encode()...)
	}
	return append(head, tail...)
}

// EncodeCall prefixes the packed arguments with fn's selector.
func EncodeCall(fn Function, args ...Value) ([]byte, error) {
	if len(args) != len(fn.Inputs) {
		return nil, fmt.Errorf("%s: want %d arguments, got %d", fn.Signature(), len(fn.Inputs), len(args))
	}
	sel := fn.Selector()
	return append(sel[:], Pack(args...)...), nil
}

var twoTo256 = new(big.Int).Lsh(big.NewInt(1), 256)

func intWord(v *big.Int) []byte {
	n := new(big.Int).Set(v)
	if n.Sign() < 0 {
		n.Add(n, twoTo256)
	}
	word := make([]byte, WordSize)
	return n.FillBytes(word)
}

func padRight(b []byte) []byte {
	size := (len(b) + WordSize - 1) / WordSize * WordSize
	out := make([]byte, size)
	copy(out, b)
	return out
}
