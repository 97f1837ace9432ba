// Package abi provides the EVM contract-interface primitives used by facetctl:
// addresses, function selectors, canonical signatures and the ABI word codec.
package abi

import (
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"
)

// AddressLength is the byte length of an account or contract address.
const AddressLength = 20

// SelectorLength is the byte length of a function selector.
const SelectorLength = 4

// Address is a 20-byte account or contract address.
type Address [AddressLength]byte

// ZeroAddress is the all-zero address used for "none" in cut payloads.
var ZeroAddress Address

// HexToAddress parses a 0x-prefixed (or bare) 40 digit hex string.
func HexToAddress(s string) (Address, error) {
	var a Address
	raw := strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(s), "0x"), "0X")
	if len(raw) != 2*AddressLength {
		return a, fmt.Errorf("invalid address %q: want %d hex digits, got %d", s, 2*AddressLength, len(raw))
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return a, fmt.Errorf("invalid address %q: %w", s, err)
	}
	copy(a[:], b)
	return a, nil
}

// BytesToAddress takes the last 20 bytes of b (left-padding when shorter).
func BytesToAddress(b []byte) Address {
	var a Address
	if len(b) > AddressLength {
		b = b[len(b)-AddressLength:]
	}
	copy(a[AddressLength-len(b):], b)
	return a
}

// IsZero reports whether a is the zero address.
func (a Address) IsZero() bool { return a == ZeroAddress }

// Hex returns the EIP-55 mixed-case checksum encoding.
func (a Address) Hex() string {
	lower := []byte(hex.EncodeToString(a[:]))
	sum := Keccak256(lower)
	for i, c := range lower {
		if c < 'a' {
			continue
		}
		nibble := sum[i/2]
		if i%2 == 0 {
			nibble >>= 4
		}
		if nibble&0x0f >= 8 {
			lower[i] = c - 32
		}
	}
	return "0x" + string(lower)
}

func (a Address) String() string { return a.Hex() }

// MarshalText implements encoding.TextMarshaler.
func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := HexToAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// Selector is the 4-byte routing key derived from a canonical function signature.
type Selector [SelectorLength]byte

// ParseSelector parses "0x" followed by 8 hex digits.
func ParseSelector(s string) (Selector, error) {
	var sel Selector
	raw := strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(raw) != 2*SelectorLength {
		return sel, fmt.Errorf("invalid selector %q", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return sel, fmt.Errorf("invalid selector %q: %w", s, err)
	}
	copy(sel[:], b)
	return sel, nil
}

func (s Selector) String() string { return "0x" + hex.EncodeToString(s[:]) }

// Bytes returns a copy of the selector bytes.
func (s Selector) Bytes() []byte { return append([]byte(nil), s[:]...) }

// MarshalText implements encoding.TextMarshaler.
func (s Selector) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Selector) UnmarshalText(text []byte) error {
	parsed, err := ParseSelector(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Keccak256 returns the legacy (pre-NIST) Keccak-256 digest used by the EVM.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

// Mutability is a function's state mutability classification.
type Mutability string

const (
	Pure       Mutability = "pure"
	View       Mutability = "view"
	NonPayable Mutability = "nonpayable"
	Payable    Mutability = "payable"
)

// ParseMutability validates a mutability keyword. Empty input means nonpayable.
func ParseMutability(s string) (Mutability, error) {
	switch m := Mutability(strings.ToLower(strings.TrimSpace(s))); m {
	case Pure, View, NonPayable, Payable:
		return m, nil
	case "":
		return NonPayable, nil
	default:
		return "", fmt.Errorf("unknown state mutability %q", s)
	}
}

// ReadOnly reports whether calls never change state.
func (m Mutability) ReadOnly() bool { return m == Pure || m == View }

// Function is one callable fragment of a module interface.
type Function struct {
	Name       string     `json:"name" yaml:"name"`
	Inputs     []string   `json:"inputs" yaml:"inputs"`
	Outputs    []string   `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Mutability Mutability `json:"stateMutability" yaml:"stateMutability"`
}

// Signature returns the canonical signature, e.g. "transfer(address,uint256)".
func (f Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Inputs, ",") + ")"
}

// Selector returns the routing key for f.
func (f Function) Selector() Selector {
	return ComputeSelector(f.Signature())
}

// ComputeSelector hashes a canonical signature and keeps the first 4 bytes.
func ComputeSelector(signature string) Selector {
	var sel Selector
	copy(sel[:], Keccak256([]byte(signature)))
	return sel
}
