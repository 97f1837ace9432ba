package abi

import (
	"fmt"
	"strings"
)

// ParseSignature parses a human-readable function fragment such as
//
//	function updateSlot(uint256 slot, uint256 price, uint8 percent) external
//	getTreasury() view returns (address)
//
// Parameter names are dropped and type aliases are canonicalised.
func ParseSignature(s string) (Function, error) {
	src := strings.TrimSpace(s)
	src = strings.TrimPrefix(src, "function ")
	open := strings.IndexByte(src, '(')
	if open <= 0 {
		return Function{}, fmt.Errorf("invalid signature %q: missing parameter list", s)
	}
	name := strings.TrimSpace(src[:open])
	if strings.ContainsAny(name, " \t,)") {
		return Function{}, fmt.Errorf("invalid signature %q: bad function name", s)
	}
	closing, err := matchParen(src, open)
	if err != nil {
		return Function{}, fmt.Errorf("invalid signature %q: %w", s, err)
	}
	inputs, err := parseParams(src[open+1 : closing])
	if err != nil {
		return Function{}, fmt.Errorf("invalid signature %q: %w", s, err)
	}

	fn := Function{Name: name, Inputs: inputs, Mutability: NonPayable}
	rest := strings.TrimSpace(src[closing+1:])
	for rest != "" {
		if strings.HasPrefix(rest, "returns") {
			r := strings.TrimSpace(strings.TrimPrefix(rest, "returns"))
			if !strings.HasPrefix(r, "(") {
				return Function{}, fmt.Errorf("invalid signature %q: malformed returns", s)
			}
			end, err := matchParen(r, 0)
			if err != nil {
				return Function{}, fmt.Errorf("invalid signature %q: %w", s, err)
			}
			if fn.Outputs, err = parseParams(r[1:end]); err != nil {
				return Function{}, fmt.Errorf("invalid signature %q: %w", s, err)
			}
			rest = strings.TrimSpace(r[end+1:])
			continue
		}
		word, tail, _ := strings.Cut(rest, " ")
		switch word {
		case "pure", "view", "payable", "nonpayable":
			fn.Mutability = Mutability(word)
		case "external", "public", "virtual", "override":
		default:
			return Function{}, fmt.Errorf("invalid signature %q: unexpected %q", s, word)
		}
		rest = strings.TrimSpace(tail)
	}
	return fn, nil
}

// CanonicalType normalises type aliases ("uint" -> "uint256") recursively through
// tuples and array suffixes.
func CanonicalType(t string) (string, error) {
	t = strings.TrimSpace(t)
	if t == "" {
		return "", fmt.Errorf("empty type")
	}
	base, suffix := splitArraySuffix(t)
	if strings.HasPrefix(base, "(") {
		end, err := matchParen(base, 0)
		if err != nil || end != len(base)-1 {
			return "", fmt.Errorf("malformed tuple type %q", t)
		}
		parts, err := parseParams(base[1:end])
		if err != nil {
			return "", err
		}
		return "(" + strings.Join(parts, ",") + ")" + suffix, nil
	}
	switch base {
	case "uint":
		base = "uint256"
	case "int":
		base = "int256"
	case "byte":
		base = "bytes1"
	case "fixed", "ufixed":
		base += "128x18"
	}
	if !validElementary(base) {
		return "", fmt.Errorf("unsupported type %q", t)
	}
	return base + suffix, nil
}

func validElementary(t string) bool {
	switch t {
	case "address", "bool", "string", "bytes", "function":
		return true
	}
	for _, prefix := range []string{"uint", "int"} {
		if n, ok := strings.CutPrefix(t, prefix); ok {
			bits, err := atoiStrict(n)
			return err == nil && bits > 0 && bits <= 256 && bits%8 == 0
		}
	}
	if n, ok := strings.CutPrefix(t, "bytes"); ok {
		size, err := atoiStrict(n)
		return err == nil && size > 0 && size <= 32
	}
	return strings.HasPrefix(t, "fixed") || strings.HasPrefix(t, "ufixed")
}

func parseParams(list string) ([]string, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return []string{}, nil
	}
	raw, err := splitTopLevel(list)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		p = strings.TrimSpace(p)
		typ := p
		if idx := topLevelSpace(p); idx >= 0 {
			typ = p[:idx]
		}
		canon, err := CanonicalType(typ)
		if err != nil {
			return nil, err
		}
		out = append(out, canon)
	}
	return out, nil
}

// splitTopLevel splits on commas that are not nested in parentheses or brackets.
func splitTopLevel(s string) ([]string, error) {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("unbalanced %q", s)
			}
		case ',':
			if depth == 0 {
				parts = append(parts, s[start:i])
				start = i + 1
			}
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("unbalanced %q", s)
	}
	return append(parts, s[start:]), nil
}

func topLevelSpace(s string) int {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ' ', '\t':
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func matchParen(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, fmt.Errorf("unbalanced parentheses")
}

// splitArraySuffix separates "uint256[2][]" into "uint256" and "[2][]".
func splitArraySuffix(t string) (string, string) {
	end := len(t)
	for end > 0 && t[end-1] == ']' {
		open := strings.LastIndexByte(t[:end], '[')
		if open < 0 {
			break
		}
		end = open
	}
	return t[:end], t[end:]
}

func atoiStrict(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	n := 0
	for _, c := range s {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("not a number: %q", s)
		}
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return 0, fmt.Errorf("number too large: %q", s)
		}
	}
	return n, nil
}
