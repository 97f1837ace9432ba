package diamond

import (
	"fmt"
	"strings"

	"github.com/R3E-Network/facetctl/internal/abi"
)

// Action is the routing table operation applied to a cut entry's selectors.
type Action uint8

const (
	Add     Action = 0
	Replace Action = 1
	Remove  Action = 2
)

// ParseAction accepts "add", "replace" or "remove" (any case).
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "add", "":
		return Add, nil
	case "replace":
		return Replace, nil
	case "remove":
		return Remove, nil
	}
	return 0, fmt.Errorf("unknown cut action %q", s)
}

func (a Action) String() string {
	switch a {
	case Add:
		return "add"
	case Replace:
		return "replace"
	case Remove:
		return "remove"
	}
	return fmt.Sprintf("action(%d)", uint8(a))
}

// MarshalText implements encoding.TextMarshaler.
func (a Action) MarshalText() ([]byte, error) { return []byte(a.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Action) UnmarshalText(text []byte) error {
	parsed, err := ParseAction(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// CutEntry is one element of a diamond cut batch.
type CutEntry struct {
	Module        string         `json:"module" yaml:"module"`
	ModuleAddress abi.Address    `json:"moduleAddress" yaml:"moduleAddress"`
	Action        Action         `json:"action" yaml:"action"`
	Selectors     []abi.Selector `json:"selectors" yaml:"selectors"`
}

// Validate checks the entry is non-empty with unique selectors.
func (e CutEntry) Validate() error {
	if len(e.Selectors) == 0 {
		return fmt.Errorf("module %s: %w", e.Module, ErrEmptyCutEntry)
	}
	seen := make(map[abi.Selector]struct{}, len(e.Selectors))
	for _, s := range e.Selectors {
		if _, dup := seen[s]; dup {
			return fmt.Errorf("module %s: %w: %s repeated in cut entry", e.Module, ErrSelectorDefect, s)
		}
		seen[s] = struct{}{}
	}
	if e.Action == Remove && !e.ModuleAddress.IsZero() {
		return fmt.Errorf("module %s: remove entries must target the zero address", e.Module)
	}
	if e.Action != Remove && e.ModuleAddress.IsZero() {
		return fmt.Errorf("module %s: %s entry without module address", e.Module, e.Action)
	}
	return nil
}

// BuildCut turns resolved assignments into an ordered cut batch, one entry per
// module in declaration order. Remove entries target the zero address.
func BuildCut(res *Resolution, action Action) ([]CutEntry, error) {
	if action > Remove {
		return nil, fmt.Errorf("unknown cut action %d", action)
	}
	entries := make([]CutEntry, 0, len(res.Assignments))
	for _, a := range res.Assignments {
		entry := CutEntry{
			Module:    a.Module.Name(),
			Action:    action,
			Selectors: append([]abi.Selector(nil), a.Selectors...),
		}
		if action != Remove {
			addr, ok := a.Module.Address()
			if !ok {
				return nil, fmt.Errorf("module %s: not deployed", a.Module.Name())
			}
			entry.ModuleAddress = addr
		}
		if err := entry.Validate(); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, ErrEmptyCut
	}
	return entries, nil
}

// DistinctModules returns the distinct non-zero module addresses in a batch, in
// first-appearance order.
func DistinctModules(entries []CutEntry) []abi.Address {
	seen := make(map[abi.Address]struct{})
	var out []abi.Address
	for _, e := range entries {
		if e.ModuleAddress.IsZero() {
			continue
		}
		if _, ok := seen[e.ModuleAddress]; ok {
			continue
		}
		seen[e.ModuleAddress] = struct{}{}
		out = append(out, e.ModuleAddress)
	}
	return out
}
