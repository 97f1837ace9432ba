package abi

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"
)

// Artifact is a compiled module: its interface and creation bytecode.
type Artifact struct {
	Name      string
	Functions []Function
	Bytecode  []byte
}

// LoadArtifact reads a Hardhat or Foundry artifact, or a bare ABI array, from path.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("read artifact: %w", err)
	}
	art, err := ParseArtifact(data)
	if err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", path, err)
	}
	if art.Name == "" {
		art.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return art, nil
}

// ParseArtifact extracts the function fragments (in declaration order) and
// bytecode from artifact JSON.
func ParseArtifact(data []byte) (*Artifact, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("invalid JSON")
	}
	root := gjson.ParseBytes(data)
	abiJSON := root
	if !root.IsArray() {
		abiJSON = root.Get("abi")
		if !abiJSON.IsArray() {
			return nil, fmt.Errorf("missing abi array")
		}
	}

	art := &Artifact{Name: root.Get("contractName").String()}
	var parseErr error
	abiJSON.ForEach(func(_, frag gjson.Result) bool {
		if frag.Get("type").String() != "function" {
			return true
		}
		fn, err := parseFragment(frag)
		if err != nil {
			parseErr = err
			return false
		}
		art.Functions = append(art.Functions, fn)
		return true
	})
	if parseErr != nil {
		return nil, parseErr
	}

	code := root.Get("bytecode")
	if code.IsObject() {
		code = code.Get("object")
	}
	if raw := strings.TrimPrefix(code.String(), "0x"); raw != "" {
		b, err := hex.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode bytecode: %w", err)
		}
		art.Bytecode = b
	}
	return art, nil
}

func parseFragment(frag gjson.Result) (Function, error) {
	name := frag.Get("name").String()
	if name == "" {
		return Function{}, fmt.Errorf("function fragment without name")
	}
	fn := Function{Name: name}
	for _, in := range frag.Get("inputs").Array() {
		t, err := fragmentType(in)
		if err != nil {
			return Function{}, fmt.Errorf("%s: %w", name, err)
		}
		fn.Inputs = append(fn.Inputs, t)
	}
	if fn.Inputs == nil {
		fn.Inputs = []string{}
	}
	for _, out := range frag.Get("outputs").Array() {
		t, err := fragmentType(out)
		if err != nil {
			return Function{}, fmt.Errorf("%s: %w", name, err)
		}
		fn.Outputs = append(fn.Outputs, t)
	}

	switch sm := frag.Get("stateMutability"); {
	case sm.Exists():
		m, err := ParseMutability(sm.String())
		if err != nil {
			return Function{}, fmt.Errorf("%s: %w", name, err)
		}
		fn.Mutability = m
	case frag.Get("constant").Bool():
		fn.Mutability = View
	case frag.Get("payable").Bool():
		fn.Mutability = Payable
	default:
		fn.Mutability = NonPayable
	}
	return fn, nil
}

func fragmentType(param gjson.Result) (string, error) {
	t := param.Get("type").String()
	if suffix, ok := strings.CutPrefix(t, "tuple"); ok {
		var parts []string
		for _, c := range param.Get("components").Array() {
			ct, err := fragmentType(c)
			if err != nil {
				return "", err
			}
			parts = append(parts, ct)
		}
		return "(" + strings.Join(parts, ",") + ")" + suffix, nil
	}
	return CanonicalType(t)
}
