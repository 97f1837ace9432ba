// Package diamond implements selector routing for multi-facet proxies: selector
// extraction, cross-module collision resolution, cut batch construction and the
// routing table those batches mutate.
package diamond

import (
	"errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/facetctl/internal/abi"
)

var (
	// ErrAddressAlreadySet is returned when a module address is assigned twice.
	ErrAddressAlreadySet = errors.New("module address already set")
	// ErrDuplicateFunction marks an interface that declares the same name twice.
	ErrDuplicateFunction = errors.New("duplicate function name in module interface")
	// ErrSelectorDefect marks two fragments of one module hashing to the same selector.
	ErrSelectorDefect = errors.New("module declares two functions with the same selector")
	// ErrSelectorCollision is returned by strict resolution on a cross-module collision.
	ErrSelectorCollision = errors.New("selector claimed by more than one module")
	// ErrEmptyCutEntry is returned for a cut entry without selectors.
	ErrEmptyCutEntry = errors.New("cut entry has no selectors")
	// ErrEmptyCut is returned when a cut batch has no entries.
	ErrEmptyCut = errors.New("cut batch is empty")
)

// ModuleDescriptor identifies one facet: its label, its interface and, once
// deployed, its address.
type ModuleDescriptor struct {
	name      string
	functions []abi.Function
	address   abi.Address
	deployed  bool
}

// NewModuleDescriptor validates and builds a descriptor. The function slice is
// copied so later edits by the caller have no effect.
func NewModuleDescriptor(name string, functions []abi.Function) (*ModuleDescriptor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("module name required")
	}
	seen := make(map[string]struct{}, len(functions))
	for _, fn := range functions {
		if fn.Name == "" {
			return nil, fmt.Errorf("module %s: function without name", name)
		}
		if _, dup := seen[fn.Name]; dup {
			return nil, fmt.Errorf("module %s: %w: %s", name, ErrDuplicateFunction, fn.Name)
		}
		seen[fn.Name] = struct{}{}
	}
	fns := make([]abi.Function, len(functions))
	copy(fns, functions)
	return &ModuleDescriptor{name: name, functions: fns}, nil
}

// Name returns the module label.
func (d *ModuleDescriptor) Name() string { return d.name }

// Functions returns the declared interface in declaration order.
func (d *ModuleDescriptor) Functions() []abi.Function {
	out := make([]abi.Function, len(d.functions))
	copy(out, d.functions)
	return out
}

// Function looks up a declared function by name.
func (d *ModuleDescriptor) Function(name string) (abi.Function, bool) {
	for _, fn := range d.functions {
		if fn.Name == name {
			return fn, true
		}
	}
	return abi.Function{}, false
}

// Address returns the deployed address and whether one has been set.
func (d *ModuleDescriptor) Address() (abi.Address, bool) { return d.address, d.deployed }

// SetAddress records the deployed address. It may be called once.
func (d *ModuleDescriptor) SetAddress(addr abi.Address) error {
	if d.deployed {
		return fmt.Errorf("module %s: %w (%s)", d.name, ErrAddressAlreadySet, d.address.Hex())
	}
	d.address = addr
	d.deployed = true
	return nil
}
