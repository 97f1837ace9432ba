package abi

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

var units = map[string]int64{
	"wei":   0,
	"gwei":  9,
	"ether": 18,
}

// ParseValue converts a textual argument into an encodable value of canonical type t.
// Integers accept decimal, 0x-hex and unit suffixes ("0.01 ether", "5 gwei");
// arrays and tuples use bracketed, comma separated lists ("[1,2]", "(0xab..,3)").
func ParseValue(t, raw string) (Value, error) {
	raw = strings.TrimSpace(raw)
	if elem, suffix := splitArraySuffix(t); suffix != "" {
		return parseArray(t, elem, suffix, raw)
	}
	if strings.HasPrefix(t, "(") {
		return parseTuple(t, raw)
	}
	switch {
	case t == "address":
		a, err := HexToAddress(raw)
		if err != nil {
			return nil, err
		}
		return AddressValue(a), nil
	case t == "bool":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid bool %q", raw)
		}
		return BoolValue(b), nil
	case t == "string":
		return StringValue(raw), nil
	case t == "bytes":
		b, err := decodeHex(raw)
		if err != nil {
			return nil, err
		}
		return BytesValue(b), nil
	case strings.HasPrefix(t, "bytes"):
		size, err := atoiStrict(strings.TrimPrefix(t, "bytes"))
		if err != nil || size > WordSize {
			return nil, fmt.Errorf("unsupported type %q", t)
		}
		b, err := decodeHex(raw)
		if err != nil {
			return nil, err
		}
		if len(b) > size {
			return nil, fmt.Errorf("value %q too long for %s", raw, t)
		}
		return FixedBytesValue(b), nil
	case strings.HasPrefix(t, "uint"), strings.HasPrefix(t, "int"):
		return parseInteger(t, raw)
	}
	return nil, fmt.Errorf("unsupported argument type %q", t)
}

// ParseInteger parses an integer literal with an optional unit suffix.
func ParseInteger(raw string) (*big.Int, error) {
	raw = strings.TrimSpace(raw)
	num, unit, _ := strings.Cut(raw, " ")
	exp := int64(0)
	if unit = strings.TrimSpace(unit); unit != "" {
		e, ok := units[strings.ToLower(unit)]
		if !ok {
			return nil, fmt.Errorf("unknown unit %q", unit)
		}
		exp = e
	}
	if strings.HasPrefix(num, "0x") {
		n, ok := new(big.Int).SetString(num[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		return n.Mul(n, new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)), nil
	}
	r, ok := new(big.Rat).SetString(num)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", raw)
	}
	r.Mul(r, new(big.Rat).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(exp), nil)))
	if !r.IsInt() {
		return nil, fmt.Errorf("%q is not a whole number of wei", raw)
	}
	return new(big.Int).Set(r.Num()), nil
}

func parseInteger(t, raw string) (Value, error) {
	n, err := ParseInteger(raw)
	if err != nil {
		return nil, err
	}
	signed := !strings.HasPrefix(t, "uint")
	bits, err := atoiStrict(strings.TrimPrefix(strings.TrimPrefix(t, "u"), "int"))
	if err != nil {
		return nil, fmt.Errorf("unsupported type %q", t)
	}
	if !signed {
		if n.Sign() < 0 || n.BitLen() > bits {
			return nil, fmt.Errorf("value %s out of range for %s", n, t)
		}
		return UintValue(n), nil
	}
	limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
	if n.Cmp(limit) >= 0 || n.Cmp(new(big.Int).Neg(limit)) < 0 {
		return nil, fmt.Errorf("value %s out of range for %s", n, t)
	}
	return IntValue(n), nil
}

func parseArray(t, elem, suffix, raw string) (Value, error) {
	inner, err := unwrap(raw, '[', ']')
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	// peel one dimension: "uint256[2][]" has outer dimension "[]"
	last := strings.LastIndexByte(suffix, '[')
	elemType := elem + suffix[:last]
	dim := suffix[last+1 : len(suffix)-1]

	var items []string
	if strings.TrimSpace(inner) != "" {
		if items, err = splitTopLevel(inner); err != nil {
			return nil, err
		}
	}
	values := make([]Value, 0, len(items))
	for _, item := range items {
		v, err := ParseValue(elemType, item)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	if dim == "" {
		return ArrayValue(values...), nil
	}
	size, err := atoiStrict(dim)
	if err != nil || size != len(values) {
		return nil, fmt.Errorf("%s: want %s elements, got %d", t, dim, len(values))
	}
	return FixedArrayValue(values...), nil
}

func parseTuple(t, raw string) (Value, error) {
	fieldTypes, err := parseParams(t[1 : len(t)-1])
	if err != nil {
		return nil, err
	}
	inner, err := unwrap(raw, '(', ')')
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t, err)
	}
	items, err := splitTopLevel(inner)
	if err != nil {
		return nil, err
	}
	if len(items) != len(fieldTypes) {
		return nil, fmt.Errorf("%s: want %d fields, got %d", t, len(fieldTypes), len(items))
	}
	fields := make([]Value, len(items))
	for i, item := range items {
		if fields[i], err = ParseValue(fieldTypes[i], item); err != nil {
			return nil, err
		}
	}
	return TupleValue(fields...), nil
}

func unwrap(raw string, open, closing byte) (string, error) {
	if len(raw) < 2 || raw[0] != open || raw[len(raw)-1] != closing {
		return "", fmt.Errorf("expected %c...%c, got %q", open, closing, raw)
	}
	return raw[1 : len(raw)-1], nil
}

func decodeHex(raw string) ([]byte, error) {
	b, err := hex.DecodeString(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid hex %q: %w", raw, err)
	}
	return b, nil
}
